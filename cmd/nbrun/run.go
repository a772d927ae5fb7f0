package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nbrun/nbrun/internal/config"
	"github.com/nbrun/nbrun/internal/journal"
	"github.com/nbrun/nbrun/internal/logger"
	"github.com/nbrun/nbrun/internal/notebook"
	"github.com/nbrun/nbrun/internal/runner"
)

var runFlags struct {
	timeout   int
	output    string
	rangeSpec string
	python    string
	dataDir   string
	journal   bool
	debug     bool
}

var runCmd = &cobra.Command{
	Use:   "run <notebook>",
	Short: "Execute notebook cells sequentially",
	Long: `Execute the code cells of a notebook one at a time against a single
long-lived Python session.

Output streams as cells produce it. If a cell fails or exceeds the
timeout, you are asked whether to continue with the next cell. Press
Ctrl+C to interrupt the running cell and end the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVarP(&runFlags.timeout, "timeout", "t", 0, "Per-cell timeout in seconds, 0=unbounded")
	runCmd.Flags().StringVarP(&runFlags.output, "output", "o", "", "Write all execution output to a file instead of the console")
	runCmd.Flags().StringVarP(&runFlags.rangeSpec, "range", "r", "", "Cells to execute, e.g. 3 or 2-5 (default: all)")
	runCmd.Flags().StringVar(&runFlags.python, "python", "", "Python interpreter for the kernel session")
	runCmd.Flags().StringVar(&runFlags.dataDir, "data-dir", "", "Data directory for the run journal")
	runCmd.Flags().BoolVar(&runFlags.journal, "journal", false, "Record this run in the journal")
	runCmd.Flags().BoolVar(&runFlags.debug, "debug", false, "Print internal error details")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// CLI flags win over config file and environment values.
	if cmd.Flags().Changed("timeout") {
		cfg.Timeout = runFlags.timeout
	}
	if cmd.Flags().Changed("output") {
		cfg.Output = runFlags.output
	}
	if cmd.Flags().Changed("python") {
		cfg.Python = runFlags.python
	}
	if cmd.Flags().Changed("data-dir") {
		cfg.DataDir = runFlags.dataDir
	}
	if cmd.Flags().Changed("journal") {
		cfg.Journal = runFlags.journal
	}
	if cmd.Flags().Changed("debug") {
		cfg.Debug = runFlags.debug
	}

	if err := logger.Configure(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("configuring logger: %w", err)
	}

	notebookPath := args[0]

	fmt.Printf("Starting notebook execution: %s\n", notebookPath)
	if cfg.Timeout > 0 {
		fmt.Printf("Cell timeout: %ds\n", cfg.Timeout)
	} else {
		fmt.Println("Cell timeout: no limit")
	}
	fmt.Println("Use Ctrl+C to interrupt execution")
	fmt.Println("Each cell waits for the previous one to complete")
	fmt.Println()

	// First Ctrl+C cancels the run (interrupting the busy cell);
	// a second one aborts immediately.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		cancel()
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nAborted.")
		os.Exit(1)
	}()

	var j *journal.Journal
	if cfg.Journal {
		j, err = journal.Open(ctx, cfg.DataDir)
		if err != nil {
			logger.Warn("Journal unavailable, continuing without history: %v", err)
			j = nil
		} else {
			defer func() {
				if err := j.Close(); err != nil {
					logger.Warn("Closing journal: %v", err)
				}
			}()
		}
	}

	r := runner.New(runner.Config{
		NotebookPath: notebookPath,
		RangeSpec:    runFlags.rangeSpec,
		CellTimeout:  time.Duration(cfg.Timeout) * time.Second,
		OutputFile:   cfg.Output,
		Python:       cfg.Python,
		Debug:        cfg.Debug,
		Journal:      j,
	})

	report, err := r.Run(ctx)
	if err != nil {
		if errors.Is(err, notebook.ErrNotFound) {
			return fmt.Errorf("notebook file not found: %s", notebookPath)
		}
		return err
	}
	if report.CleanupErr != nil {
		logger.Warn("Cleanup finished with errors: %v", report.CleanupErr)
	}

	final := finalMessage(report.Status)
	fmt.Println(final)
	if cfg.Output != "" {
		if err := appendLine(cfg.Output, final); err != nil {
			logger.Warn("Appending final status to %s: %v", cfg.Output, err)
		}
	}

	return nil
}

func finalMessage(status runner.Status) string {
	switch status {
	case runner.StatusCompleted:
		return "\nNotebook execution completed!"
	case runner.StatusStopped:
		return "\nExecution stopped by user."
	case runner.StatusInterrupted:
		return "\nExecution interrupted."
	default:
		return "\nExecution failed."
	}
}

// appendLine adds the final status line to the transcript file so the
// file tells the whole story even though stdout was restored already.
func appendLine(path, line string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = fmt.Fprintln(f, line)
	return err
}
