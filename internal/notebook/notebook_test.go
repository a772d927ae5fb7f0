package notebook

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleNotebook = `{
 "cells": [
  {
   "cell_type": "markdown",
   "metadata": {},
   "source": ["# Title\n", "Some prose."]
  },
  {
   "cell_type": "code",
   "execution_count": 3,
   "metadata": {"tags": ["setup"]},
   "outputs": [{"name": "stdout", "output_type": "stream", "text": ["hi\n"]}],
   "source": ["import os\n", "print('hi')"]
  },
  {
   "cell_type": "code",
   "execution_count": null,
   "metadata": {},
   "outputs": [],
   "source": "   \n"
  },
  {
   "cell_type": "code",
   "execution_count": null,
   "metadata": {},
   "outputs": [],
   "source": "x = 1 + 1"
  }
 ],
 "metadata": {"kernelspec": {"name": "python3"}},
 "nbformat": 4,
 "nbformat_minor": 5
}`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.ipynb")
	require.NoError(t, os.WriteFile(path, []byte(sampleNotebook), 0644))
	return path
}

func TestLoad(t *testing.T) {
	nb, err := Load(writeSample(t))
	require.NoError(t, err)

	require.Len(t, nb.Cells, 4)
	assert.Equal(t, "markdown", nb.Cells[0].Type)
	assert.Equal(t, "# Title\nSome prose.", nb.Cells[0].Source)

	// Array-form source joins into one string.
	assert.Equal(t, "import os\nprint('hi')", nb.Cells[1].Source)
	// String-form source passes through.
	assert.Equal(t, "x = 1 + 1", nb.Cells[3].Source)
}

func TestLoad_NotFound(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.ipynb"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.ipynb")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrParse)
}

func TestLoad_UnsupportedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.ipynb")
	require.NoError(t, os.WriteFile(path, []byte(`{"cells": [], "nbformat": 3}`), 0644))

	_, err := Load(path)
	assert.ErrorIs(t, err, ErrParse)
}

func TestExecutableCells(t *testing.T) {
	nb, err := Load(writeSample(t))
	require.NoError(t, err)

	// Markdown and the blank code cell are excluded.
	cells := nb.ExecutableCells()
	require.Len(t, cells, 2)
	assert.Equal(t, "import os\nprint('hi')", cells[0].Source)
	assert.Equal(t, "x = 1 + 1", cells[1].Source)

	// CodeCells keeps the blank one.
	assert.Len(t, nb.CodeCells(), 3)
}

func TestStats(t *testing.T) {
	nb, err := Load(writeSample(t))
	require.NoError(t, err)

	s := nb.Stats()
	assert.Equal(t, 4, s.TotalCells)
	assert.Equal(t, 3, s.CodeCells)
	assert.Equal(t, 2, s.ExecutableCells)
}

func TestSave_PreservesUnknownFields(t *testing.T) {
	path := writeSample(t)
	nb, err := Load(path)
	require.NoError(t, err)

	// Edit one cell and save.
	nb.Cells[3].Source = "x = 2 + 2\nprint(x)"
	require.NoError(t, Save(path, nb))

	// Raw JSON still carries fields the model does not understand.
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &top))
	assert.Contains(t, top, "metadata")
	assert.Contains(t, top, "nbformat_minor")

	var cells []map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(top["cells"], &cells))
	require.Len(t, cells, 4)
	assert.Contains(t, cells[1], "outputs")
	assert.Contains(t, cells[1], "execution_count")

	// Reload sees the edit, source round-trips through the array form.
	nb2, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "x = 2 + 2\nprint(x)", nb2.Cells[3].Source)
}

func TestSourceLines(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   []string
	}{
		{"empty", "", []string{}},
		{"single line no newline", "x = 1", []string{"x = 1"}},
		{"trailing newline", "x = 1\n", []string{"x = 1\n"}},
		{"multi line", "a\nb\nc", []string{"a\n", "b\n", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sourceLines(tt.source))
		})
	}
}
