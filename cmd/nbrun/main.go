package main

import (
	"context"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/nbrun/nbrun/internal/logger"
	"github.com/spf13/cobra"
)

// Version set via ldflags during build
var version = "dev"

func main() {
	// Ensure logger is closed on exit
	defer func() { _ = logger.Close() }()

	if err := fang.Execute(context.Background(), rootCmd, fang.WithVersion(version)); err != nil {
		logger.Error("Command execution failed: %v", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "nbrun",
	Short: "Sequential Jupyter notebook runner with live output",
	Long: `nbrun executes Jupyter notebook code cells one at a time against a
long-lived Python session, streaming output as each cell produces it.

Cells share a single namespace, so variables defined in one cell are
visible to the next. When a cell fails or times out, nbrun asks whether
to continue, stop, or quit. Run history can be recorded to an embedded
NATS JetStream journal.`,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(infoCmd)
}
