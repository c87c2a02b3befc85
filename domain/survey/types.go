package survey

// Test types carried by the test_type column of the wide export
const (
	PreTest  = "pre-test"
	PostTest = "post-test"
)

// Canonical column names of the tidy long table
const (
	ColumnClient        = "client"
	ColumnQuestion      = "question"
	ColumnScorePretest  = "score_pretest"
	ColumnScorePosttest = "score_posttest"
	ColumnDelta         = "delta"
	ColumnTestType      = "test_type"
	ColumnZipCode       = "zip_code"
	ColumnYearsAtCamp   = "years_at_camp"
	ColumnRace          = "race/ethnicity"
	ColumnAge           = "age"
	ColumnAgeGroup      = "age_group"
	ColumnYear          = "year"
)

// Field is a single identifying column value carried through the reshape
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// LongRecord is one (client, question) observation with both scores
type LongRecord struct {
	Client        string  `json:"client"`
	Identifiers   []Field `json:"identifiers,omitempty"` // ordered, excludes the client column
	Question      string  `json:"question"`
	ScorePretest  float64 `json:"score_pretest"`
	ScorePosttest float64 `json:"score_posttest"`
	Delta         float64 `json:"delta"`
}

// Identifier returns the value of a named identifying field
func (r LongRecord) Identifier(name string) (string, bool) {
	for _, f := range r.Identifiers {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Side names which half of the pre/post join a dropped pair came from
type Side string

const (
	SidePreOnly  Side = "pre-only"
	SidePostOnly Side = "post-only"
)

// DroppedPair is a (client, question) pair the inner join discarded
type DroppedPair struct {
	Client   string `json:"client"`
	Question string `json:"question"`
	Side     Side   `json:"side"`
}

// Verdict is the outcome of a single LSD comparison
type Verdict string

const (
	Significant    Verdict = "significant"
	NotSignificant Verdict = "not significant"
)

// PairwiseResult is one row of the Fisher's LSD summary table
type PairwiseResult struct {
	Pair          string  `json:"pair"`
	GroupA        string  `json:"group_a"`
	GroupB        string  `json:"group_b"`
	AbsMeanDiff   float64 `json:"abs_diff"`
	CriticalValue float64 `json:"critical_value"`
	Verdict       Verdict `json:"significance"`
}

// GroupSeries is the raw response distribution of one group in a comparison
type GroupSeries struct {
	Label  string    `json:"label"`
	Values []float64 `json:"values"`
	Side   string    `json:"side"` // "negative" or "positive" half of a split violin
	Color  string    `json:"color"`
}

// ComparisonSeries is the data behind one split violin: both groups of a
// pairwise comparison tagged with its 1-based index
type ComparisonSeries struct {
	Index      int         `json:"comparison"`
	Pair       string      `json:"pair"`
	First      GroupSeries `json:"first"`
	Second     GroupSeries `json:"second"`
	ShowLegend bool        `json:"show_legend"`
}

// GroupSummary describes one treatment group inside an analysis slice
type GroupSummary struct {
	Ordinal int     `json:"ordinal"`
	Label   string  `json:"label"`
	N       int     `json:"n"`
	Mean    float64 `json:"mean"`
	Median  float64 `json:"median"`
	Q1      float64 `json:"q1"`
	Q3      float64 `json:"q3"`
	StdDev  float64 `json:"std_dev"`
}
