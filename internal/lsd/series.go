package lsd

import (
	"encoding/json"
	"fmt"
	"strconv"

	"prepost/domain/survey"
	"prepost/internal/errors"
)

// Palette slots per comparison. The first group of comparison i takes
// FirstColors[i], the second SecondColors[i]; both cycle past six comparisons.
var (
	FirstColors  = []string{"seagreen", "seagreen", "seagreen", "slateblue", "slateblue", "sienna"}
	SecondColors = []string{"slateblue", "sienna", "silver", "sienna", "silver", "silver"}
)

// Series returns, for each pairwise comparison, the raw response values of
// both groups tagged with the 1-based comparison index. It is the data a split
// violin plot is drawn from.
func (c *Comparator) Series() ([]survey.ComparisonSeries, error) {
	table, err := c.Table()
	if err != nil {
		return nil, err
	}
	return c.series(table), nil
}

func (c *Comparator) series(table []survey.PairwiseResult) []survey.ComparisonSeries {
	byLabel := make(map[string][]float64, len(c.groups))
	for _, g := range c.groups {
		byLabel[g.label] = g.values
	}

	out := make([]survey.ComparisonSeries, len(table))
	for i, row := range table {
		out[i] = survey.ComparisonSeries{
			Index: i + 1,
			Pair:  row.Pair,
			First: survey.GroupSeries{
				Label:  row.GroupA,
				Values: append([]float64(nil), byLabel[row.GroupA]...),
				Side:   "negative",
				Color:  FirstColors[i%len(FirstColors)],
			},
			Second: survey.GroupSeries{
				Label:  row.GroupB,
				Values: append([]float64(nil), byLabel[row.GroupB]...),
				Side:   "positive",
				Color:  SecondColors[i%len(SecondColors)],
			},
			ShowLegend: i == 0 || i == len(table)-1,
		}
	}
	return out
}

type violinTrace struct {
	Type        string    `json:"type"`
	X           []string  `json:"x"`
	Y           []float64 `json:"y"`
	Name        string    `json:"name"`
	LegendGroup string    `json:"legendgroup"`
	ScaleGroup  string    `json:"scalegroup"`
	Side        string    `json:"side"`
	Marker      struct {
		Color string `json:"color"`
	} `json:"marker"`
	ShowLegend bool `json:"showlegend"`
	MeanLine   struct {
		Visible bool `json:"visible"`
	} `json:"meanline"`
}

type figure struct {
	Data   []violinTrace  `json:"data"`
	Layout map[string]any `json:"layout"`
}

// Figure encodes Series as a Plotly figure: one split violin per comparison,
// overlaid, with mean lines shown.
func (c *Comparator) Figure() ([]byte, error) {
	series, err := c.Series()
	if err != nil {
		return nil, err
	}
	return c.figure(series)
}

func (c *Comparator) figure(series []survey.ComparisonSeries) ([]byte, error) {
	fig := figure{
		Layout: map[string]any{
			"title": map[string]any{
				"text": fmt.Sprintf("Change between pre and post test scored, question %s<br><i>by pairwise comparison of %s",
					c.groupbyValue, c.treatment),
			},
			"violinmode": "overlay",
		},
	}
	for _, s := range series {
		x := strconv.Itoa(s.Index)
		fig.Data = append(fig.Data, trace(x, s.First, s.ShowLegend), trace(x, s.Second, s.ShowLegend))
	}

	payload, err := json.Marshal(fig)
	if err != nil {
		return nil, errors.Wrap(err, "lsd: encode figure")
	}
	return payload, nil
}

func trace(x string, g survey.GroupSeries, showLegend bool) violinTrace {
	t := violinTrace{
		Type:        "violin",
		X:           make([]string, len(g.Values)),
		Y:           g.Values,
		Name:        g.Label,
		LegendGroup: g.Label,
		ScaleGroup:  g.Label,
		Side:        g.Side,
		ShowLegend:  showLegend,
	}
	for i := range t.X {
		t.X[i] = x
	}
	t.Marker.Color = g.Color
	t.MeanLine.Visible = true
	return t
}
