package cleaning

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"prepost/domain/frame"
	"prepost/internal/errors"
)

// DefaultLikertScale scores agreement answers; lower is stronger agreement
func DefaultLikertScale() map[string]float64 {
	return map[string]float64{
		"strongly disagree": 6,
		"disagree":          5,
		"somewhat disagree": 4,
		"somewhat agree":    3,
		"agree":             2,
		"strongly agree":    1,
	}
}

// NormalizeZip drops a spreadsheet float suffix: 68104.0 -> 68104
func NormalizeZip(c frame.Cell) frame.Cell {
	if c.IsEmpty() {
		return c
	}
	zip, _, _ := strings.Cut(c.String(), ".")
	return frame.Str(zip)
}

// ParseYearsAtCamp turns ordinal answers such as "2nd" or "4th" into numbers
func ParseYearsAtCamp(c frame.Cell) (frame.Cell, error) {
	if c.IsEmpty() {
		return c, nil
	}
	if v, ok := c.Float(); ok {
		return frame.Num(v), nil
	}
	trimmed := strings.TrimRight(strings.TrimSpace(strings.ToLower(c.String())), "ndthsr")
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return c, errors.Newf(errors.CodeInvalidInput, "years at camp %q is not an ordinal number", c.String())
	}
	return frame.Num(float64(n)), nil
}

// LikertScore recodes an agreement answer. Numbers and unknown text are
// returned unchanged.
func LikertScore(scale map[string]float64, c frame.Cell) frame.Cell {
	if c.Kind() != frame.KindString {
		return c
	}
	if v, ok := scale[strings.ToLower(strings.TrimSpace(c.String()))]; ok {
		return frame.Num(v)
	}
	return c
}

// Mode returns the most frequent non-empty cell. Ties go to the smallest
// value, comparing numerically when both cells are numbers.
func Mode(cells []frame.Cell) (frame.Cell, bool) {
	counts := make(map[string]int)
	first := make(map[string]frame.Cell)
	for _, c := range cells {
		if c.IsEmpty() {
			continue
		}
		key := c.String()
		if _, ok := first[key]; !ok {
			first[key] = c
		}
		counts[key]++
	}
	if len(counts) == 0 {
		return frame.Empty(), false
	}

	candidates := make([]frame.Cell, 0, len(first))
	best := 0
	for key, n := range counts {
		switch {
		case n > best:
			best = n
			candidates = append(candidates[:0], first[key])
		case n == best:
			candidates = append(candidates, first[key])
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return less(candidates[i], candidates[j]) })
	return candidates[0], true
}

func less(a, b frame.Cell) bool {
	av, aok := a.Float()
	bv, bok := b.Float()
	switch {
	case aok && bok:
		return av < bv
	case aok != bok:
		// numbers sort before text
		return aok
	default:
		return a.String() < b.String()
	}
}

// FillMode replaces empty cells of each column with that column's mode
func FillMode(f *frame.Frame, columns ...string) error {
	for _, col := range columns {
		cells, err := f.Column(col)
		if err != nil {
			return err
		}
		mode, ok := Mode(cells)
		if !ok {
			return errors.Newf(errors.CodeInvalidInput, "column %q has no values to take a mode from", col)
		}
		if err := f.Map(col, func(c frame.Cell) frame.Cell {
			if c.IsEmpty() {
				return mode
			}
			return c
		}); err != nil {
			return err
		}
	}
	return nil
}

// ClientID builds the study-wide client id: raw id + zip + year
func ClientID(id, zip, year frame.Cell) string {
	return fmt.Sprintf("%s%s%s", id.String(), NormalizeZip(zip).String(), year.String())
}
