// Package config provides centralized configuration management using Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for nbrun.
type Config struct {
	Timeout  int    `mapstructure:"timeout" yaml:"timeout"`
	Output   string `mapstructure:"output" yaml:"output"`
	DataDir  string `mapstructure:"data_dir" yaml:"data_dir"`
	Python   string `mapstructure:"python" yaml:"python"`
	Journal  bool   `mapstructure:"journal" yaml:"journal"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	LogFile  string `mapstructure:"log_file" yaml:"log_file"`
	Debug    bool   `mapstructure:"debug" yaml:"debug"`
}

// Load loads configuration with full precedence:
// CLI flags > ENV vars > project config > XDG global config > defaults
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigName("nbrun")

	// Set defaults (timeout 0 means no per-cell limit)
	v.SetDefault("timeout", 0)
	v.SetDefault("output", "")
	v.SetDefault("data_dir", ".nbrun")
	v.SetDefault("python", "python3")
	v.SetDefault("journal", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("debug", false)

	// Setup ENV binding with NBRUN_ prefix
	v.SetEnvPrefix("NBRUN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Explicit ENV bindings for better bool/int parsing
	// Note: BindEnv errors are very rare (only invalid key names), but we check them anyway
	if err := v.BindEnv("timeout", "NBRUN_TIMEOUT"); err != nil {
		return nil, fmt.Errorf("binding timeout env: %w", err)
	}
	if err := v.BindEnv("output", "NBRUN_OUTPUT"); err != nil {
		return nil, fmt.Errorf("binding output env: %w", err)
	}
	if err := v.BindEnv("data_dir", "NBRUN_DATA_DIR"); err != nil {
		return nil, fmt.Errorf("binding data_dir env: %w", err)
	}
	if err := v.BindEnv("python", "NBRUN_PYTHON"); err != nil {
		return nil, fmt.Errorf("binding python env: %w", err)
	}
	if err := v.BindEnv("journal", "NBRUN_JOURNAL"); err != nil {
		return nil, fmt.Errorf("binding journal env: %w", err)
	}
	if err := v.BindEnv("log_level", "NBRUN_LOG_LEVEL"); err != nil {
		return nil, fmt.Errorf("binding log_level env: %w", err)
	}
	if err := v.BindEnv("log_file", "NBRUN_LOG_FILE"); err != nil {
		return nil, fmt.Errorf("binding log_file env: %w", err)
	}
	if err := v.BindEnv("debug", "NBRUN_DEBUG"); err != nil {
		return nil, fmt.Errorf("binding debug env: %w", err)
	}

	// Load global config first (if exists)
	globalPath := GlobalPath()
	if fileExists(globalPath) {
		v.SetConfigFile(globalPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading global config: %w", err)
		}
	}

	// Merge project config on top (if exists)
	projectPath := ProjectPath()
	if fileExists(projectPath) {
		// Need to set config file explicitly for merge
		v.SetConfigFile(projectPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("merging project config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Exists returns true if any config file exists (global or project).
func Exists() bool {
	return fileExists(GlobalPath()) || fileExists(ProjectPath())
}

// GlobalPath returns the XDG global config path.
// Returns ~/.config/nbrun/nbrun.yml or $XDG_CONFIG_HOME/nbrun/nbrun.yml.
func GlobalPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "nbrun", "nbrun.yml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "nbrun", "nbrun.yml")
}

// ProjectPath returns the project-local config path.
// Returns ./nbrun.yml in the current working directory.
func ProjectPath() string {
	return "nbrun.yml"
}

// WriteGlobal writes the config to the XDG global location.
func WriteGlobal(cfg *Config) error {
	path := GlobalPath()

	// Create parent directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	// Marshal to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Write file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// WriteProject writes the config to the project-local location.
func WriteProject(cfg *Config) error {
	path := ProjectPath()

	// Marshal to YAML
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	// Write file
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
