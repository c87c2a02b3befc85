package lsd

import (
	"prepost/domain/frame"
	"prepost/domain/survey"
)

// Result table columns
const (
	ColumnPairs         = "pairs"
	ColumnAbsDiff       = "abs_diff"
	ColumnCriticalValue = "critical_value"
	ColumnSignificance  = "significance"
)

// TableFrame lays out pairwise results as a frame, one row per pair
func TableFrame(results []survey.PairwiseResult) *frame.Frame {
	out := frame.MustNew(ColumnPairs, ColumnAbsDiff, ColumnCriticalValue, ColumnSignificance)
	for _, r := range results {
		// widths always match the four columns above
		_ = out.Append(
			frame.Str(r.Pair),
			frame.Num(r.AbsMeanDiff),
			frame.Num(r.CriticalValue),
			frame.Str(string(r.Verdict)),
		)
	}
	return out
}

// SummaryFrame lays out group summaries as a frame, one row per group
func SummaryFrame(treatment string, summaries []survey.GroupSummary) *frame.Frame {
	out := frame.MustNew(treatment, "n", "mean", "median", "q1", "q3", "std")
	for _, s := range summaries {
		_ = out.Append(
			frame.Str(s.Label),
			frame.Num(float64(s.N)),
			frame.Num(s.Mean),
			frame.Num(s.Median),
			frame.Num(s.Q1),
			frame.Num(s.Q3),
			frame.Num(s.StdDev),
		)
	}
	return out
}
