package lsd

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"prepost/internal/errors"
)

// AnovaTable is the sequential (Type I) decomposition of a one-way model
type AnovaTable struct {
	BetweenSS  float64 `json:"between_ss"`
	BetweenDF  int     `json:"between_df"`
	BetweenMS  float64 `json:"between_ms"`
	WithinSS   float64 `json:"within_ss"`
	WithinDF   int     `json:"within_df"`
	MSE        float64 `json:"mse"`
	F          float64 `json:"f"`
	PValue     float64 `json:"p_value"`
	TotalCount int     `json:"n"`
}

// fitOneWay returns the ANOVA table of y grouped by labels. labels[i] is the
// group ordinal (0..k-1) of observation i. For a one-way model the least
// squares fit of each group is its mean, so the sums of squares are taken
// about the group means directly.
func fitOneWay(y []float64, labels []int, k int) (AnovaTable, error) {
	n := len(y)
	if n != len(labels) {
		return AnovaTable{}, errors.InternalError("anova: response and group vectors differ in length")
	}
	if k < 2 {
		return AnovaTable{}, errors.InsufficientGroups(fmt.Sprintf("anova: need at least 2 groups, have %d", k))
	}
	dfWithin := n - k
	if dfWithin <= 0 {
		return AnovaTable{}, errors.ComputationError(
			fmt.Sprintf("anova: %d observations in %d groups leave no within-group degrees of freedom", n, k), nil)
	}

	constant := true
	for _, v := range y {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return AnovaTable{}, errors.ComputationError("anova: response is not finite", nil)
		}
		if v != y[0] {
			constant = false
		}
	}
	if constant {
		return AnovaTable{}, errors.ComputationError("anova: response is constant", nil)
	}

	means, counts := groupMeans(y, labels, k)
	grand := stat.Mean(y, nil)

	withinSS := 0.0
	for i, v := range y {
		d := v - means[labels[i]]
		withinSS += d * d
	}
	betweenSS := 0.0
	for g := range means {
		d := means[g] - grand
		betweenSS += float64(counts[g]) * d * d
	}

	dfBetween := k - 1
	msBetween := betweenSS / float64(dfBetween)
	mse := withinSS / float64(dfWithin)
	f := math.Inf(1)
	if mse > 0 {
		f = msBetween / mse
	}

	return AnovaTable{
		BetweenSS:  betweenSS,
		BetweenDF:  dfBetween,
		BetweenMS:  msBetween,
		WithinSS:   withinSS,
		WithinDF:   dfWithin,
		MSE:        mse,
		F:          f,
		PValue:     fSurvival(f, float64(dfBetween), float64(dfWithin)),
		TotalCount: n,
	}, nil
}

// groupMeans averages each group about its first observation, so a group of
// equal values has exactly that value as its mean.
func groupMeans(y []float64, labels []int, k int) ([]float64, []int) {
	first := make([]float64, k)
	seen := make([]bool, k)
	sums := make([]float64, k)
	counts := make([]int, k)
	for i, g := range labels {
		if !seen[g] {
			seen[g] = true
			first[g] = y[i]
		}
		sums[g] += y[i] - first[g]
		counts[g]++
	}
	means := make([]float64, k)
	for g := range means {
		if counts[g] > 0 {
			means[g] = first[g] + sums[g]/float64(counts[g])
		}
	}
	return means, counts
}

// fSurvival is P(F > f) for an F(d1, d2) variable, taken from the upper
// incomplete beta tail so small p values keep their precision.
func fSurvival(f, d1, d2 float64) float64 {
	switch {
	case math.IsInf(f, 1):
		return 0
	case f <= 0:
		return 1
	}
	return mathext.RegIncBeta(d2/2, d1/2, d2/(d2+d1*f))
}

// tQuantile returns the two-sided critical t value for the given alpha
func tQuantile(alpha float64, dof int) (float64, error) {
	t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(dof)}.Quantile(1 - alpha/2)
	if math.IsNaN(t) || math.IsInf(t, 0) {
		return 0, errors.ComputationError(fmt.Sprintf("t quantile for alpha=%g dof=%d is not finite", alpha, dof), nil)
	}
	return t, nil
}
