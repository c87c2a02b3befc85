// Package lsd implements Fisher's Least Significant Difference procedure:
// pairwise comparison of treatment group means using the pooled error term of
// a one-way analysis of variance.
package lsd

import (
	"fmt"
	"math"

	"github.com/montanaflynn/stats"

	"prepost/domain/frame"
	"prepost/domain/survey"
	"prepost/internal/errors"
)

// DefaultConfidence is the confidence level used when none is given
const DefaultConfidence = 0.95

// Option configures a Comparator
type Option func(*Comparator)

// WithConfidence sets the confidence level, 0 < c < 1
func WithConfidence(c float64) Option {
	return func(cmp *Comparator) {
		cmp.confidence = c
	}
}

// Comparator runs Fisher's LSD over one slice of a long-form table. The slice
// is captured at construction; build a new Comparator for another slice.
type Comparator struct {
	treatment    string
	response     string
	groupby      string
	groupbyValue string
	confidence   float64

	slice  *frame.Frame
	groups []group
	labels []int // group ordinal of each slice row
	values []float64
}

type group struct {
	label  string
	values []float64
}

// New filters table to rows where groupby equals groupbyValue and prepares
// the treatment groups of that slice.
func New(table *frame.Frame, treatment, response, groupby, groupbyValue string, opts ...Option) (*Comparator, error) {
	if table == nil {
		return nil, errors.InvalidInput("lsd: observed data is not a table")
	}
	c := &Comparator{
		treatment:    treatment,
		response:     response,
		groupby:      groupby,
		groupbyValue: groupbyValue,
		confidence:   DefaultConfidence,
	}
	for _, opt := range opts {
		opt(c)
	}
	if !(c.confidence > 0 && c.confidence < 1) {
		return nil, errors.InvalidInput(fmt.Sprintf("lsd: confidence must be in (0, 1), got %g", c.confidence))
	}
	if err := table.Require(treatment, response, groupby); err != nil {
		return nil, errors.Wrap(err, "lsd: table does not carry the requested columns")
	}

	slice, err := table.Where(groupby, frame.Str(groupbyValue))
	if err != nil {
		return nil, err
	}
	c.slice = slice

	treatments, err := slice.Column(treatment)
	if err != nil {
		return nil, err
	}
	values, err := slice.Floats(response)
	if err != nil {
		return nil, errors.Wrapf(err, "lsd: response column %q", response)
	}

	index := make(map[string]int)
	c.labels = make([]int, len(values))
	for i, cell := range treatments {
		if cell.IsEmpty() {
			return nil, errors.InvalidInput(fmt.Sprintf("lsd: row %d of slice %s=%s has no %s", i, groupby, groupbyValue, treatment))
		}
		label := cell.String()
		g, ok := index[label]
		if !ok {
			g = len(c.groups)
			index[label] = g
			c.groups = append(c.groups, group{label: label})
		}
		c.groups[g].values = append(c.groups[g].values, values[i])
		c.labels[i] = g
	}
	c.values = values

	return c, nil
}

// Confidence returns the configured confidence level
func (c *Comparator) Confidence() float64 {
	return c.confidence
}

// Alpha returns 1 - confidence
func (c *Comparator) Alpha() float64 {
	return 1 - c.confidence
}

// GroupbyValue returns the slice key the comparator was built for
func (c *Comparator) GroupbyValue() string {
	return c.groupbyValue
}

// Treatment returns the treatment column name
func (c *Comparator) Treatment() string {
	return c.treatment
}

// Slice returns a copy of the filtered rows
func (c *Comparator) Slice() *frame.Frame {
	return c.slice.Clone()
}

// Groups returns the treatment labels in first-appearance order; the label at
// index i is population i+1.
func (c *Comparator) Groups() []string {
	out := make([]string, len(c.groups))
	for i, g := range c.groups {
		out[i] = g.label
	}
	return out
}

// ANOVA fits the one-way model response ~ C(treatment) over the slice
func (c *Comparator) ANOVA() (AnovaTable, error) {
	if err := c.checkGroups(); err != nil {
		return AnovaTable{}, err
	}
	return fitOneWay(c.values, c.labels, len(c.groups))
}

// Table compares every pair of treatment groups. Rows are ordered with the
// first group ascending and the second ascending within it.
func (c *Comparator) Table() ([]survey.PairwiseResult, error) {
	anova, err := c.ANOVA()
	if err != nil {
		return nil, err
	}
	return c.table(anova)
}

// Comparison is everything the comparator derives from one ANOVA fit
type Comparison struct {
	ANOVA     AnovaTable
	Results   []survey.PairwiseResult
	Summaries []survey.GroupSummary
	Series    []survey.ComparisonSeries
	Figure    []byte
}

// Compare fits the model once and builds the pairwise table, the group
// summaries, the comparison series and the figure from that fit.
func (c *Comparator) Compare() (*Comparison, error) {
	anova, err := c.ANOVA()
	if err != nil {
		return nil, err
	}
	results, err := c.table(anova)
	if err != nil {
		return nil, err
	}
	summaries, err := c.Describe()
	if err != nil {
		return nil, err
	}
	series := c.series(results)
	fig, err := c.figure(series)
	if err != nil {
		return nil, err
	}
	return &Comparison{
		ANOVA:     anova,
		Results:   results,
		Summaries: summaries,
		Series:    series,
		Figure:    fig,
	}, nil
}

func (c *Comparator) table(anova AnovaTable) ([]survey.PairwiseResult, error) {
	t, err := tQuantile(c.Alpha(), anova.WithinDF)
	if err != nil {
		return nil, err
	}

	means := make([]float64, len(c.groups))
	for i, g := range c.groups {
		m, err := stats.Mean(g.values)
		if err != nil {
			return nil, errors.ComputationError(fmt.Sprintf("lsd: mean of group %q", g.label), err)
		}
		means[i] = m
	}

	k := len(c.groups)
	results := make([]survey.PairwiseResult, 0, k*(k-1)/2)
	for i := 0; i < k-1; i++ {
		for j := i + 1; j < k; j++ {
			diff := math.Abs(means[i] - means[j])
			ni, nj := float64(len(c.groups[i].values)), float64(len(c.groups[j].values))
			critical := t * math.Sqrt(anova.MSE*(1/ni+1/nj))

			results = append(results, survey.PairwiseResult{
				Pair:          pairLabel(c.groups[i].label, c.groups[j].label),
				GroupA:        c.groups[i].label,
				GroupB:        c.groups[j].label,
				AbsMeanDiff:   diff,
				CriticalValue: critical,
				Verdict:       verdict(diff, critical),
			})
		}
	}
	return results, nil
}

// Describe summarises each treatment group of the slice
func (c *Comparator) Describe() ([]survey.GroupSummary, error) {
	out := make([]survey.GroupSummary, len(c.groups))
	for i, g := range c.groups {
		summary, err := summarize(g.values)
		if err != nil {
			return nil, errors.ComputationError(fmt.Sprintf("lsd: summary of group %q", g.label), err)
		}
		summary.Ordinal = i + 1
		summary.Label = g.label
		out[i] = summary
	}
	return out, nil
}

func (c *Comparator) checkGroups() error {
	if len(c.groups) < 2 {
		return errors.InsufficientGroups(fmt.Sprintf("lsd: slice %s=%s has %d distinct %s value(s), need at least 2",
			c.groupby, c.groupbyValue, len(c.groups), c.treatment))
	}
	return nil
}

func verdict(absDiff, critical float64) survey.Verdict {
	if absDiff >= critical {
		return survey.Significant
	}
	return survey.NotSignificant
}

func pairLabel(a, b string) string {
	return a + " vs. " + b
}

func summarize(values []float64) (survey.GroupSummary, error) {
	data := stats.Float64Data(values)
	mean, err := data.Mean()
	if err != nil {
		return survey.GroupSummary{}, err
	}
	median, err := data.Median()
	if err != nil {
		return survey.GroupSummary{}, err
	}
	// Percentile rejects very small samples; the median stands in there.
	q1, err := data.Percentile(25)
	if err != nil {
		q1 = median
	}
	q3, err := data.Percentile(75)
	if err != nil {
		q3 = median
	}
	sd := 0.0
	if len(values) > 1 {
		if sd, err = data.StandardDeviationSample(); err != nil {
			return survey.GroupSummary{}, err
		}
	}
	return survey.GroupSummary{
		N:      len(values),
		Mean:   mean,
		Median: median,
		Q1:     q1,
		Q3:     q3,
		StdDev: sd,
	}, nil
}
