package cleaning

import (
	"prepost/domain/frame"
	"prepost/internal/errors"
)

// Span is a half-open column range [Start, End)
type Span struct {
	Start int
	End   int
}

// Layout describes the survey workbook by column position. Resolve turns it
// into the named column lists Clean works with, so positional assumptions
// stay in one place.
type Layout struct {
	// KeepFirst columns of the raw sheet are considered; the rest are dropped
	KeepFirst int
	// Unused are dropped from the kept columns
	Unused Span
	// UnusedFromEnd drops the n-th column counting from the end, after Unused
	UnusedFromEnd int
	// Likert counts from the end of the remaining columns: Start=6, End=3
	// selects the sixth- to fourth-last columns
	Likert Span
	// Fill is a range of the remaining columns imputed with their mode
	Fill Span
}

// DefaultLayout matches the 2018/2019 workbooks
func DefaultLayout() Layout {
	return Layout{
		KeepFirst:     37,
		Unused:        Span{Start: 5, End: 19},
		UnusedFromEnd: 4,
		Likert:        Span{Start: 6, End: 3},
		Fill:          Span{Start: 5, End: 19},
	}
}

// Resolve fills opts.Drop, opts.LikertColumns and opts.FillColumns from the
// raw column order. Raw must already carry the tag columns appended by the
// reader.
func (l Layout) Resolve(raw *frame.Frame, opts Options) (Options, error) {
	columns := raw.Columns()
	keep := columns
	var drop []string
	if l.KeepFirst > 0 && l.KeepFirst < len(columns) {
		keep = columns[:l.KeepFirst]
		drop = append(drop, columns[l.KeepFirst:]...)
	}
	if l.Unused.End > len(keep) || l.Unused.Start > l.Unused.End {
		return opts, errors.Newf(errors.CodeShapeMismatch, "layout: unused range [%d, %d) outside %d columns", l.Unused.Start, l.Unused.End, len(keep))
	}

	remaining := make([]string, 0, len(keep))
	for i, c := range keep {
		if i >= l.Unused.Start && i < l.Unused.End {
			drop = append(drop, c)
			continue
		}
		remaining = append(remaining, c)
	}
	if l.UnusedFromEnd > 0 {
		at := len(remaining) - l.UnusedFromEnd
		if at < 0 {
			return opts, errors.Newf(errors.CodeShapeMismatch, "layout: cannot drop column %d from the end of %d", l.UnusedFromEnd, len(remaining))
		}
		drop = append(drop, remaining[at])
		remaining = append(remaining[:at:at], remaining[at+1:]...)
	}

	likertFrom, likertTo := len(remaining)-l.Likert.Start, len(remaining)-l.Likert.End
	if l.Likert.Start > 0 && (likertFrom < 0 || likertFrom > likertTo) {
		return opts, errors.Newf(errors.CodeShapeMismatch, "layout: agreement columns outside %d columns", len(remaining))
	}
	if l.Fill.End > len(remaining) || l.Fill.Start > l.Fill.End {
		return opts, errors.Newf(errors.CodeShapeMismatch, "layout: fill range [%d, %d) outside %d columns", l.Fill.Start, l.Fill.End, len(remaining))
	}

	opts.Drop = drop
	if l.Likert.Start > 0 {
		opts.LikertColumns = append([]string(nil), remaining[likertFrom:likertTo]...)
	}
	opts.FillColumns = append([]string(nil), remaining[l.Fill.Start:l.Fill.End]...)
	return opts, nil
}
