package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nbrun/nbrun/internal/config"
	"github.com/nbrun/nbrun/internal/journal"
	"github.com/nbrun/nbrun/internal/notebook"
)

var infoFlags struct {
	history bool
	dataDir string
}

var infoCmd = &cobra.Command{
	Use:   "info <notebook>",
	Short: "Show notebook cell counts and run history",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVar(&infoFlags.history, "journal", false, "Show recorded runs from the journal")
	infoCmd.Flags().StringVar(&infoFlags.dataDir, "data-dir", "", "Data directory for the run journal")
}

func runInfo(cmd *cobra.Command, args []string) error {
	path := args[0]

	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("notebook file not found: %s", path)
	}

	nb, err := notebook.Load(path)
	if err != nil {
		return err
	}

	stats := nb.Stats()
	fmt.Printf("Notebook: %s\n", path)
	fmt.Printf("Last modified: %s\n", fi.ModTime().Format("2006-01-02 15:04:05"))
	fmt.Printf("Total cells: %d\n", stats.TotalCells)
	fmt.Printf("Code cells: %d\n", stats.CodeCells)
	fmt.Printf("Executable cells: %d\n", stats.ExecutableCells)

	if !infoFlags.history {
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	dataDir := cfg.DataDir
	if cmd.Flags().Changed("data-dir") {
		dataDir = infoFlags.dataDir
	}

	j, err := journal.Open(cmd.Context(), dataDir)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer func() { _ = j.Close() }()

	events, err := j.History(cmd.Context(), journal.SessionName(path))
	if err != nil {
		return fmt.Errorf("reading history: %w", err)
	}

	fmt.Println()
	printHistory(events)
	return nil
}

// printHistory renders journal events as one line per run, with the cell
// verdicts of the most recent run expanded underneath.
func printHistory(events []journal.Event) {
	if len(events) == 0 {
		fmt.Println("No recorded runs.")
		return
	}

	type run struct {
		started journal.Event
		cells   []journal.Event
		ended   *journal.Event
	}

	var runs []*run
	for i := range events {
		ev := events[i]
		switch ev.Type {
		case journal.EventRunStart:
			runs = append(runs, &run{started: ev})
		case journal.EventCell:
			if len(runs) > 0 {
				last := runs[len(runs)-1]
				last.cells = append(last.cells, ev)
			}
		case journal.EventRunEnd:
			if len(runs) > 0 {
				runs[len(runs)-1].ended = &ev
			}
		}
	}

	fmt.Printf("Recorded runs: %d\n", len(runs))
	for _, r := range runs {
		status := "unfinished"
		if r.ended != nil && r.ended.Status != "" {
			status = r.ended.Status
		}
		succeeded := 0
		for _, c := range r.cells {
			if c.Verdict == "success" {
				succeeded++
			}
		}
		fmt.Printf("  %s  %-12s %d/%d cells succeeded\n",
			r.started.Timestamp.Format("2006-01-02 15:04:05"), status, succeeded, len(r.cells))
	}

	last := runs[len(runs)-1]
	if len(last.cells) == 0 {
		return
	}
	fmt.Println("Last run:")
	for _, c := range last.cells {
		fmt.Printf("  cell %d/%d: %s (%.1fs)\n", c.Cell, c.Total, c.Verdict, c.Elapsed)
	}
}
