package runner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nberrors "github.com/nbrun/nbrun/internal/errors"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name  string
		spec  string
		total int
		want  Range
	}{
		{"empty spec selects all", "", 5, Range{1, 5}},
		{"empty spec with no cells", "", 0, Range{1, 0}},
		{"single cell", "3", 5, Range{3, 3}},
		{"first cell", "1", 1, Range{1, 1}},
		{"span", "2-4", 5, Range{2, 4}},
		{"full span", "1-5", 5, Range{1, 5}},
		{"degenerate span", "2-2", 5, Range{2, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRange(tt.spec, tt.total)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRange_Errors(t *testing.T) {
	tests := []struct {
		name  string
		spec  string
		total int
	}{
		{"zero start", "0", 5},
		{"zero span start", "0-3", 5},
		{"end before start", "4-2", 5},
		{"end past total", "2-6", 5},
		{"start past total", "6", 5},
		{"explicit spec with no cells", "1", 0},
		{"not a number", "abc", 5},
		{"garbage span", "1-x", 5},
		{"trailing dash", "3-", 5},
		{"double dash", "1-2-3", 5},
		{"negative", "-2", 5},
		{"whitespace", " 2", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRange(tt.spec, tt.total)
			require.Error(t, err)
			assert.ErrorIs(t, err, nberrors.ErrInvalidRange)
		})
	}
}

func TestRange_Len(t *testing.T) {
	assert.Equal(t, 1, Range{3, 3}.Len())
	assert.Equal(t, 4, Range{2, 5}.Len())
	assert.Equal(t, 0, Range{1, 0}.Len())
}
