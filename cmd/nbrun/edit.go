package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/aymanbagabas/go-udiff"
	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"

	"github.com/nbrun/nbrun/internal/notebook"
)

var editCmd = &cobra.Command{
	Use:   "edit <cell> <notebook>",
	Short: "Edit one code cell in your editor",
	Long: `Open a code cell's source in $EDITOR and write changes back to the
notebook file. Cells are numbered 1-based over the code cells in
notebook order. All other notebook content is preserved as-is.`,
	Args: cobra.ExactArgs(2),
	RunE: runEdit,
}

func runEdit(cmd *cobra.Command, args []string) error {
	cellNum, err := strconv.Atoi(args[0])
	if err != nil || cellNum < 1 {
		return fmt.Errorf("invalid cell number: %s", args[0])
	}
	path := args[1]

	nb, err := notebook.Load(path)
	if err != nil {
		return err
	}

	cells := nb.CodeCells()
	if cellNum > len(cells) {
		return fmt.Errorf("cell %d out of range: notebook has %d code cells", cellNum, len(cells))
	}
	cell := cells[cellNum-1]

	tmpfile, err := os.CreateTemp("", "nbrun_cell_*.py")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmpfile.Name()) }()

	if _, err := tmpfile.WriteString(cell.Source); err != nil {
		_ = tmpfile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpfile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}

	edit, err := editor.Command("nbrun", tmpfile.Name())
	if err != nil {
		return fmt.Errorf("resolving editor: %w", err)
	}
	edit.Stdin = os.Stdin
	edit.Stdout = os.Stdout
	edit.Stderr = os.Stderr
	if err := edit.Run(); err != nil {
		return fmt.Errorf("running editor: %w", err)
	}

	edited, err := os.ReadFile(tmpfile.Name())
	if err != nil {
		return fmt.Errorf("reading edited cell: %w", err)
	}

	if string(edited) == cell.Source {
		fmt.Println("No changes made.")
		return nil
	}

	diff := udiff.Unified(
		fmt.Sprintf("cell %d (before)", cellNum),
		fmt.Sprintf("cell %d (after)", cellNum),
		cell.Source,
		string(edited),
	)
	fmt.Print(diff)

	cell.Source = string(edited)
	if err := notebook.Save(path, nb); err != nil {
		return err
	}

	fmt.Printf("Cell %d updated in %s\n", cellNum, path)
	return nil
}
