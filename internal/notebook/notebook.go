// Package notebook loads and saves Jupyter notebooks (nbformat 4 JSON).
//
// Only the fields nbrun needs are modeled: the ordered cell list, each cell's
// type and source text. Everything else (outputs, execution counts, metadata,
// attachments) is carried through save untouched as raw JSON, so editing one
// cell never destroys the rest of the document.
package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Document error sentinels.
var (
	ErrNotFound = errors.New("notebook not found")
	ErrParse    = errors.New("notebook parse error")
	ErrWrite    = errors.New("notebook write error")
)

// CellCode marks executable cells; other known types are markdown and raw.
const CellCode = "code"

// Cell is one notebook cell. Type and Source are decoded views; the remaining
// cell fields live in raw and round-trip through Save unchanged.
type Cell struct {
	Type   string
	Source string

	raw map[string]json.RawMessage
}

// Executable reports whether the cell is a code cell with non-empty trimmed
// source. Blank code cells are skipped by the runner and excluded from cell
// numbering.
func (c *Cell) Executable() bool {
	return c.Type == CellCode && strings.TrimSpace(c.Source) != ""
}

// Notebook is a parsed .ipynb document.
type Notebook struct {
	Cells []*Cell

	raw map[string]json.RawMessage
}

// Stats summarizes a notebook for the info command.
type Stats struct {
	TotalCells      int
	CodeCells       int
	ExecutableCells int
}

// Load reads and parses a notebook file.
// Returns ErrNotFound for a missing file and ErrParse for malformed content.
func Load(path string) (*Notebook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: reading %s: %v", ErrParse, path, err)
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	// nbformat 4 is the only version we understand.
	var version int
	if rawVer, ok := top["nbformat"]; ok {
		if err := json.Unmarshal(rawVer, &version); err != nil {
			return nil, fmt.Errorf("%w: bad nbformat field: %v", ErrParse, err)
		}
	}
	if version != 4 {
		return nil, fmt.Errorf("%w: unsupported nbformat version %d", ErrParse, version)
	}

	var rawCells []json.RawMessage
	if rawList, ok := top["cells"]; ok {
		if err := json.Unmarshal(rawList, &rawCells); err != nil {
			return nil, fmt.Errorf("%w: bad cells field: %v", ErrParse, err)
		}
	}

	nb := &Notebook{raw: top}
	for i, rc := range rawCells {
		cell, err := parseCell(rc)
		if err != nil {
			return nil, fmt.Errorf("%w: cell %d: %v", ErrParse, i, err)
		}
		nb.Cells = append(nb.Cells, cell)
	}

	return nb, nil
}

func parseCell(data json.RawMessage) (*Cell, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}

	cell := &Cell{raw: fields}

	if rawType, ok := fields["cell_type"]; ok {
		if err := json.Unmarshal(rawType, &cell.Type); err != nil {
			return nil, fmt.Errorf("bad cell_type: %v", err)
		}
	}

	if rawSource, ok := fields["source"]; ok {
		source, err := decodeSource(rawSource)
		if err != nil {
			return nil, fmt.Errorf("bad source: %v", err)
		}
		cell.Source = source
	}

	return cell, nil
}

// decodeSource accepts both nbformat source shapes: a single string or an
// array of line strings.
func decodeSource(data json.RawMessage) (string, error) {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	var lines []string
	if err := json.Unmarshal(data, &lines); err != nil {
		return "", err
	}
	return strings.Join(lines, ""), nil
}

// sourceLines splits source into the nbformat array form: each line keeps its
// trailing newline except possibly the last.
func sourceLines(source string) []string {
	if source == "" {
		return []string{}
	}
	lines := strings.SplitAfter(source, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// Save writes the notebook back to path, re-encoding only cell_type and
// source and passing every other field through from the original document.
func Save(path string, nb *Notebook) error {
	top := make(map[string]json.RawMessage, len(nb.raw))
	for k, v := range nb.raw {
		top[k] = v
	}

	cells := make([]json.RawMessage, 0, len(nb.Cells))
	for i, cell := range nb.Cells {
		raw, err := encodeCell(cell)
		if err != nil {
			return fmt.Errorf("%w: cell %d: %v", ErrWrite, i, err)
		}
		cells = append(cells, raw)
	}

	rawCells, err := json.Marshal(cells)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	top["cells"] = rawCells

	data, err := json.MarshalIndent(top, "", " ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

func encodeCell(cell *Cell) (json.RawMessage, error) {
	fields := make(map[string]json.RawMessage, len(cell.raw)+2)
	for k, v := range cell.raw {
		fields[k] = v
	}

	rawType, err := json.Marshal(cell.Type)
	if err != nil {
		return nil, err
	}
	fields["cell_type"] = rawType

	rawSource, err := json.Marshal(sourceLines(cell.Source))
	if err != nil {
		return nil, err
	}
	fields["source"] = rawSource

	return json.Marshal(fields)
}

// CodeCells returns the notebook's code cells in document order, including
// blank ones. Callers that only want runnable cells filter with Executable.
func (nb *Notebook) CodeCells() []*Cell {
	var cells []*Cell
	for _, c := range nb.Cells {
		if c.Type == CellCode {
			cells = append(cells, c)
		}
	}
	return cells
}

// ExecutableCells returns code cells whose trimmed source is non-empty, in
// document order. This is the list cell ranges index into.
func (nb *Notebook) ExecutableCells() []*Cell {
	var cells []*Cell
	for _, c := range nb.Cells {
		if c.Executable() {
			cells = append(cells, c)
		}
	}
	return cells
}

// Stats returns cell counts for the info command.
func (nb *Notebook) Stats() Stats {
	s := Stats{TotalCells: len(nb.Cells)}
	for _, c := range nb.Cells {
		if c.Type == CellCode {
			s.CodeCells++
			if c.Executable() {
				s.ExecutableCells++
			}
		}
	}
	return s
}
