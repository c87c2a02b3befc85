// Package reshape turns the wide pre/post survey export into the long
// per-(client, question) table used by the pairwise comparisons.
package reshape

import (
	"fmt"
	"strings"

	"prepost/domain/frame"
	"prepost/domain/survey"
	"prepost/internal/errors"
)

// DefaultIDCount is how many leading columns are treated as identifiers when
// no identifier columns are named
const DefaultIDCount = 5

// Options controls how the wide table is interpreted
type Options struct {
	ClientColumn   string
	TestTypeColumn string
	PreLabel       string
	PostLabel      string

	// DropColumns are removed from both halves before unpivoting
	DropColumns []string

	// IDColumns names the identifying columns to repeat on every long row.
	// When empty the first IDCount columns left after dropping are used.
	IDColumns []string
	IDCount   int

	// QuestionSeparator splits the question label from its descriptive text
	QuestionSeparator string
}

// DefaultOptions matches the layout produced by the cleaning step
func DefaultOptions() Options {
	return Options{
		ClientColumn:      survey.ColumnClient,
		TestTypeColumn:    survey.ColumnTestType,
		PreLabel:          survey.PreTest,
		PostLabel:         survey.PostTest,
		DropColumns:       []string{survey.ColumnZipCode, survey.ColumnTestType, survey.ColumnYearsAtCamp},
		IDCount:           DefaultIDCount,
		QuestionSeparator: ".",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ClientColumn == "" {
		o.ClientColumn = d.ClientColumn
	}
	if o.TestTypeColumn == "" {
		o.TestTypeColumn = d.TestTypeColumn
	}
	if o.PreLabel == "" {
		o.PreLabel = d.PreLabel
	}
	if o.PostLabel == "" {
		o.PostLabel = d.PostLabel
	}
	if o.DropColumns == nil {
		o.DropColumns = d.DropColumns
	}
	if o.IDCount <= 0 {
		o.IDCount = d.IDCount
	}
	if o.QuestionSeparator == "" {
		o.QuestionSeparator = d.QuestionSeparator
	}
	return o
}

// Result is the reshaped long table
type Result struct {
	Records []survey.LongRecord
	// Dropped lists pairs present on only one side of the pre/post join
	Dropped []survey.DroppedPair
	// IDColumns are the resolved identifier columns, client first
	IDColumns []string
}

type pairKey struct {
	client   string
	question string
}

type score struct {
	value   float64
	present bool
}

// Reshape partitions wide by test type, unpivots both halves and inner-joins
// them on (client, question). A table without pre-test or post-test rows
// yields an empty result rather than an error.
func Reshape(wide *frame.Frame, opts Options) (*Result, error) {
	if wide == nil {
		return nil, errors.InvalidInput("reshape: input table is nil")
	}
	opts = opts.withDefaults()

	if err := wide.Require(opts.ClientColumn, opts.TestTypeColumn); err != nil {
		return nil, errors.WithCode(errors.CodeShapeMismatch, err)
	}

	trimmed := wide.Drop(opts.DropColumns...)
	if !trimmed.Has(opts.ClientColumn) {
		return nil, errors.ShapeMismatch(fmt.Sprintf("reshape: client column %q is listed in DropColumns", opts.ClientColumn))
	}

	ids, err := resolveIDColumns(trimmed, opts)
	if err != nil {
		return nil, err
	}
	questions := questionColumns(trimmed, ids)
	if err := checkLabels(questions, opts.QuestionSeparator); err != nil {
		return nil, err
	}

	testTypes, err := wide.Column(opts.TestTypeColumn)
	if err != nil {
		return nil, errors.WithCode(errors.CodeShapeMismatch, err)
	}
	pre := trimmed.Filter(func(i int) bool { return testTypes[i].String() == opts.PreLabel })
	post := trimmed.Filter(func(i int) bool { return testTypes[i].String() == opts.PostLabel })

	preRows, err := indexClients(pre, opts.ClientColumn, opts.PreLabel)
	if err != nil {
		return nil, err
	}
	postScores, err := meltScores(post, opts.ClientColumn, opts.PostLabel, questions)
	if err != nil {
		return nil, err
	}

	result := &Result{IDColumns: ids}
	matched := make(map[pairKey]struct{})

	// Column-major like an unpivot: every client for the first question, then
	// the next question.
	for _, q := range questions {
		label := questionLabel(q, opts.QuestionSeparator)
		for _, row := range preRows {
			client := pre.Get(row, opts.ClientColumn).String()
			before, err := scoreAt(pre, row, q, client)
			if err != nil {
				return nil, err
			}
			after := postScores[pairKey{client: client, question: q}]

			switch {
			case before.present && after.present:
				matched[pairKey{client: client, question: q}] = struct{}{}
				result.Records = append(result.Records, survey.LongRecord{
					Client:        client,
					Identifiers:   identifiers(pre, row, ids[1:]),
					Question:      label,
					ScorePretest:  before.value,
					ScorePosttest: after.value,
					Delta:         after.value - before.value,
				})
			case before.present:
				result.Dropped = append(result.Dropped, survey.DroppedPair{Client: client, Question: label, Side: survey.SidePreOnly})
			}
		}
	}

	postClients, _ := post.Strings(opts.ClientColumn)
	for _, q := range questions {
		label := questionLabel(q, opts.QuestionSeparator)
		for _, client := range postClients {
			key := pairKey{client: client, question: q}
			if _, ok := matched[key]; ok {
				continue
			}
			if postScores[key].present {
				result.Dropped = append(result.Dropped, survey.DroppedPair{Client: client, Question: label, Side: survey.SidePostOnly})
			}
		}
	}

	return result, nil
}

// Frame renders the records as a table with columns
// client, <identifiers>, question, score_pretest, score_posttest, delta
func (r *Result) Frame() *frame.Frame {
	columns := []string{survey.ColumnClient}
	if len(r.IDColumns) > 1 {
		columns = append(columns, r.IDColumns[1:]...)
	}
	columns = append(columns, survey.ColumnQuestion, survey.ColumnScorePretest, survey.ColumnScorePosttest, survey.ColumnDelta)

	out := frame.MustNew(columns...)
	for _, rec := range r.Records {
		cells := make([]frame.Cell, 0, len(columns))
		cells = append(cells, frame.Str(rec.Client))
		for _, f := range rec.Identifiers {
			cells = append(cells, frame.Parse(f.Value))
		}
		cells = append(cells,
			frame.Str(rec.Question),
			frame.Num(rec.ScorePretest),
			frame.Num(rec.ScorePosttest),
			frame.Num(rec.Delta),
		)
		// Width always matches: identifiers come from the same resolved columns.
		_ = out.Append(cells...)
	}
	return out
}

// Questions returns the distinct question labels in output order
func (r *Result) Questions() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, rec := range r.Records {
		if _, ok := seen[rec.Question]; ok {
			continue
		}
		seen[rec.Question] = struct{}{}
		out = append(out, rec.Question)
	}
	return out
}

func resolveIDColumns(f *frame.Frame, opts Options) ([]string, error) {
	var ids []string
	if len(opts.IDColumns) > 0 {
		if err := f.Require(opts.IDColumns...); err != nil {
			return nil, errors.WithCode(errors.CodeShapeMismatch, err)
		}
		ids = append(ids, opts.ClientColumn)
		for _, c := range opts.IDColumns {
			if c != opts.ClientColumn {
				ids = append(ids, c)
			}
		}
		return ids, nil
	}

	columns := f.Columns()
	if len(columns) <= opts.IDCount {
		return nil, errors.ShapeMismatch(fmt.Sprintf("reshape: need more than %d columns after dropping %s, have %d",
			opts.IDCount, strings.Join(opts.DropColumns, ", "), len(columns)))
	}
	leading := columns[:opts.IDCount]
	hasClient := false
	for _, c := range leading {
		if c == opts.ClientColumn {
			hasClient = true
		}
	}
	if !hasClient {
		return nil, errors.ShapeMismatch(fmt.Sprintf("reshape: client column %q is not among the first %d columns", opts.ClientColumn, opts.IDCount))
	}
	ids = append(ids, opts.ClientColumn)
	for _, c := range leading {
		if c != opts.ClientColumn {
			ids = append(ids, c)
		}
	}
	return ids, nil
}

func questionColumns(f *frame.Frame, ids []string) []string {
	isID := make(map[string]struct{}, len(ids))
	for _, c := range ids {
		isID[c] = struct{}{}
	}
	var out []string
	for _, c := range f.Columns() {
		if _, ok := isID[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}

// checkLabels rejects question columns that shorten to the same label, such
// as "3. a" and "3. b", which would pair two different questions as one.
func checkLabels(questions []string, sep string) error {
	owner := make(map[string]string, len(questions))
	for _, q := range questions {
		label := questionLabel(q, sep)
		if first, dup := owner[label]; dup {
			return errors.ShapeMismatch(fmt.Sprintf("reshape: question columns %q and %q share the label %q", first, q, label))
		}
		owner[label] = q
	}
	return nil
}

func indexClients(f *frame.Frame, clientColumn, testType string) ([]int, error) {
	seen := make(map[string]struct{}, f.Len())
	rows := make([]int, 0, f.Len())
	for i := 0; i < f.Len(); i++ {
		client := f.Get(i, clientColumn)
		if client.IsEmpty() {
			return nil, errors.ShapeMismatch(fmt.Sprintf("reshape: %s row %d has no client id", testType, i))
		}
		if _, dup := seen[client.String()]; dup {
			return nil, errors.ShapeMismatch(fmt.Sprintf("reshape: client %q has more than one %s row", client.String(), testType))
		}
		seen[client.String()] = struct{}{}
		rows = append(rows, i)
	}
	return rows, nil
}

func meltScores(f *frame.Frame, clientColumn, testType string, questions []string) (map[pairKey]score, error) {
	rows, err := indexClients(f, clientColumn, testType)
	if err != nil {
		return nil, err
	}
	out := make(map[pairKey]score, len(rows)*len(questions))
	for _, row := range rows {
		client := f.Get(row, clientColumn).String()
		for _, q := range questions {
			s, err := scoreAt(f, row, q, client)
			if err != nil {
				return nil, err
			}
			out[pairKey{client: client, question: q}] = s
		}
	}
	return out, nil
}

// scoreAt reads a score cell. Blank cells count as absent; text that is not a
// number is a shape error rather than a silent NaN.
func scoreAt(f *frame.Frame, row int, question, client string) (score, error) {
	cell := f.Get(row, question)
	if cell.IsEmpty() {
		return score{}, nil
	}
	v, ok := cell.Float()
	if !ok {
		return score{}, errors.ShapeMismatch(fmt.Sprintf("reshape: client %q question %q: score %q is not numeric", client, question, cell.String()))
	}
	return score{value: v, present: true}, nil
}

func identifiers(f *frame.Frame, row int, names []string) []survey.Field {
	if len(names) == 0 {
		return nil
	}
	out := make([]survey.Field, len(names))
	for i, name := range names {
		out[i] = survey.Field{Name: name, Value: f.Get(row, name).String()}
	}
	return out
}

func questionLabel(column, sep string) string {
	label, _, _ := strings.Cut(column, sep)
	return label
}
