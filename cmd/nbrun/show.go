package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/nbrun/nbrun/internal/notebook"
)

var showFlags struct {
	plain bool
}

var showCmd = &cobra.Command{
	Use:   "show <notebook> [cell]",
	Short: "Print notebook code cells",
	Long: `Print the source of a notebook's code cells.

With a cell number, prints only that cell. Cells are numbered 1-based
over the code cells in notebook order. Output is syntax highlighted
when writing to a terminal.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runShow,
}

func init() {
	showCmd.Flags().BoolVar(&showFlags.plain, "plain", false, "Disable syntax highlighting")
}

func runShow(cmd *cobra.Command, args []string) error {
	var cellNum int
	path := args[0]
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			return fmt.Errorf("invalid cell number: %s", args[1])
		}
		cellNum = n
	}

	nb, err := notebook.Load(path)
	if err != nil {
		return err
	}

	cells := nb.CodeCells()
	if len(cells) == 0 {
		fmt.Println("Notebook has no code cells.")
		return nil
	}
	if cellNum > len(cells) {
		return fmt.Errorf("cell %d out of range: notebook has %d code cells", cellNum, len(cells))
	}

	for i, cell := range cells {
		if cellNum != 0 && i+1 != cellNum {
			continue
		}
		fmt.Printf("--- Cell %d ---\n", i+1)
		printSource(cell.Source)
		fmt.Println()
	}

	return nil
}

func printSource(source string) {
	if !strings.HasSuffix(source, "\n") {
		source += "\n"
	}

	if showFlags.plain || !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Print(source)
		return
	}

	if err := quick.Highlight(os.Stdout, source, "python", "terminal256", "monokai"); err != nil {
		// Fall back to plain text rather than failing the command.
		fmt.Print(source)
	}
}
