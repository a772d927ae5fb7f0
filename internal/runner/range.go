package runner

import (
	"fmt"
	"strconv"
	"strings"

	nberrors "github.com/nbrun/nbrun/internal/errors"
)

// Range is an inclusive, 1-based window over the notebook's executable cells.
type Range struct {
	Start int
	End   int
}

// Len returns the number of cells the range selects.
func (r Range) Len() int {
	return r.End - r.Start + 1
}

// ParseRange resolves a range spec ("N" or "N-M") against the executable cell
// count. An empty spec selects every executable cell. Out-of-bounds specs are
// always an error, never clamped.
func ParseRange(spec string, total int) (Range, error) {
	if spec == "" {
		return Range{Start: 1, End: total}, nil
	}

	start, end, err := splitSpec(spec)
	if err != nil {
		return Range{}, err
	}

	if start < 1 || end < start || end > total {
		return Range{}, fmt.Errorf("%w: %q out of bounds (have %d executable cells)",
			nberrors.ErrInvalidRange, spec, total)
	}
	return Range{Start: start, End: end}, nil
}

func splitSpec(spec string) (int, int, error) {
	first, second, dashed := strings.Cut(spec, "-")

	start, err := strconv.Atoi(first)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q is not of the form N or N-M", nberrors.ErrInvalidRange, spec)
	}
	if !dashed {
		return start, start, nil
	}

	end, err := strconv.Atoi(second)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q is not of the form N or N-M", nberrors.ErrInvalidRange, spec)
	}
	return start, end, nil
}
