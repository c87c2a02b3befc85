package reshape

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prepost/domain/frame"
	"prepost/domain/survey"
	"prepost/internal/errors"
)

var wideColumns = []string{
	"client", "age_group", "year", "test_type", "age", "years_at_camp", "race/ethnicity", "zip_code",
	"1. I like music", "2. I can play an instrument", "3. Did you enjoy camp?",
}

type wideRow struct {
	client   string
	testType string
	scores   [3]float64
}

func wideFrame(t *testing.T, rows []wideRow) *frame.Frame {
	t.Helper()
	f := frame.MustNew(wideColumns...)
	for _, r := range rows {
		require.NoError(t, f.Append(
			frame.Str(r.client), frame.Str("older group"), frame.Str("2018"), frame.Str(r.testType),
			frame.Num(12), frame.Num(2), frame.Str("black"), frame.Str("68104"),
			frame.Num(r.scores[0]), frame.Num(r.scores[1]), frame.Num(r.scores[2]),
		))
	}
	return f
}

func TestReshape_RowCountAndDelta(t *testing.T) {
	rows := []wideRow{
		{"a", survey.PreTest, [3]float64{1, 2, 3}},
		{"b", survey.PreTest, [3]float64{4, 5, 6}},
		{"a", survey.PostTest, [3]float64{2, 2, 1}},
		{"b", survey.PostTest, [3]float64{6, 3.5, 6}},
	}
	res, err := Reshape(wideFrame(t, rows), DefaultOptions())
	require.NoError(t, err)

	require.Len(t, res.Records, 2*3)
	assert.Empty(t, res.Dropped)
	for _, rec := range res.Records {
		assert.Equal(t, rec.ScorePosttest-rec.ScorePretest, rec.Delta)
	}

	// unpivot order: question outer, client inner
	first := res.Records[0]
	assert.Equal(t, "a", first.Client)
	assert.Equal(t, "1", first.Question)
	assert.Equal(t, 1.0, first.ScorePretest)
	assert.Equal(t, 2.0, first.ScorePosttest)
	assert.Equal(t, 1.0, first.Delta)

	second := res.Records[1]
	assert.Equal(t, "b", second.Client)
	assert.Equal(t, "1", second.Question)

	last := res.Records[5]
	assert.Equal(t, "b", last.Client)
	assert.Equal(t, "3", last.Question)
	assert.Equal(t, 0.0, last.Delta)

	assert.Equal(t, []string{"1", "2", "3"}, res.Questions())
}

func TestReshape_DefaultIdentifiersDropTestTypeZipAndYears(t *testing.T) {
	res, err := Reshape(wideFrame(t, []wideRow{
		{"a", survey.PreTest, [3]float64{1, 2, 3}},
		{"a", survey.PostTest, [3]float64{1, 2, 3}},
	}), DefaultOptions())
	require.NoError(t, err)

	// first five columns after dropping test_type, years_at_camp and zip_code
	assert.Equal(t, []string{"client", "age_group", "year", "age", "race/ethnicity"}, res.IDColumns)

	rec := res.Records[0]
	race, ok := rec.Identifier("race/ethnicity")
	require.True(t, ok)
	assert.Equal(t, "black", race)
	_, ok = rec.Identifier("zip_code")
	assert.False(t, ok)
	_, ok = rec.Identifier("test_type")
	assert.False(t, ok)

	f := res.Frame()
	assert.Equal(t, []string{
		"client", "age_group", "year", "age", "race/ethnicity",
		"question", "score_pretest", "score_posttest", "delta",
	}, f.Columns())
	assert.Equal(t, 3, f.Len())
}

func TestReshape_QuestionLabel(t *testing.T) {
	assert.Equal(t, "3", questionLabel("3. Did you enjoy camp?", "."))
	assert.Equal(t, "Q7", questionLabel("Q7", "."))
	assert.Equal(t, "12", questionLabel("12. a.b", "."))
}

func TestReshape_InnerJoinDropsUnmatchedClients(t *testing.T) {
	res, err := Reshape(wideFrame(t, []wideRow{
		{"a", survey.PreTest, [3]float64{1, 2, 3}},
		{"only-pre", survey.PreTest, [3]float64{1, 1, 1}},
		{"a", survey.PostTest, [3]float64{3, 3, 3}},
		{"only-post", survey.PostTest, [3]float64{2, 2, 2}},
	}), DefaultOptions())
	require.NoError(t, err)

	require.Len(t, res.Records, 3)
	for _, rec := range res.Records {
		assert.Equal(t, "a", rec.Client)
	}

	require.Len(t, res.Dropped, 6)
	sides := map[survey.Side]int{}
	for _, d := range res.Dropped {
		sides[d.Side]++
		switch d.Side {
		case survey.SidePreOnly:
			assert.Equal(t, "only-pre", d.Client)
		case survey.SidePostOnly:
			assert.Equal(t, "only-post", d.Client)
		}
	}
	assert.Equal(t, 3, sides[survey.SidePreOnly])
	assert.Equal(t, 3, sides[survey.SidePostOnly])
}

func TestReshape_BlankScoreIsDroppedPair(t *testing.T) {
	f := wideFrame(t, []wideRow{
		{"a", survey.PreTest, [3]float64{1, 2, 3}},
		{"a", survey.PostTest, [3]float64{1, 2, 3}},
	})
	require.NoError(t, f.Map("2. I can play an instrument", func(c frame.Cell) frame.Cell { return frame.Empty() }))

	res, err := Reshape(f, DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.Empty(t, res.Dropped)
}

func TestReshape_MissingTestTypesYieldEmptyResult(t *testing.T) {
	res, err := Reshape(wideFrame(t, []wideRow{
		{"a", "PRE", [3]float64{1, 2, 3}},
		{"a", "POST", [3]float64{1, 2, 3}},
	}), DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Records)
	assert.Equal(t, 0, res.Frame().Len())
}

func TestReshape_NamedIdentifierColumns(t *testing.T) {
	opts := DefaultOptions()
	opts.IDColumns = []string{"age_group", "year", "race/ethnicity"}

	res, err := Reshape(wideFrame(t, []wideRow{
		{"a", survey.PreTest, [3]float64{1, 2, 3}},
		{"a", survey.PostTest, [3]float64{2, 3, 4}},
	}), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{"client", "age_group", "year", "race/ethnicity"}, res.IDColumns)
	// age is no longer an identifier, so it is unpivoted like a question
	assert.Equal(t, []string{"age", "1", "2", "3"}, res.Questions())
	assert.Len(t, res.Records, 4)
}

func TestReshape_ShapeMismatch(t *testing.T) {
	f := wideFrame(t, []wideRow{{"a", survey.PreTest, [3]float64{1, 2, 3}}})

	_, err := Reshape(f.Drop("test_type"), DefaultOptions())
	assert.True(t, errors.HasCode(err, errors.CodeShapeMismatch))

	opts := DefaultOptions()
	opts.IDColumns = []string{"not-a-column"}
	_, err = Reshape(f, opts)
	assert.True(t, errors.HasCode(err, errors.CodeShapeMismatch))

	// client pushed out of the first five identifier positions
	moved := f.Clone()
	require.NoError(t, moved.Move("client", len(wideColumns)-1))
	_, err = Reshape(moved, DefaultOptions())
	assert.True(t, errors.HasCode(err, errors.CodeShapeMismatch))

	_, err = Reshape(nil, DefaultOptions())
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestReshape_NonNumericScoreFailsFast(t *testing.T) {
	f := wideFrame(t, []wideRow{
		{"a", survey.PreTest, [3]float64{1, 2, 3}},
		{"a", survey.PostTest, [3]float64{1, 2, 3}},
	})
	require.NoError(t, f.Map("1. I like music", func(c frame.Cell) frame.Cell { return frame.Str("agree") }))

	_, err := Reshape(f, DefaultOptions())
	assert.True(t, errors.HasCode(err, errors.CodeShapeMismatch))
}

func TestReshape_DuplicateClientRow(t *testing.T) {
	_, err := Reshape(wideFrame(t, []wideRow{
		{"a", survey.PreTest, [3]float64{1, 2, 3}},
		{"a", survey.PreTest, [3]float64{1, 2, 3}},
	}), DefaultOptions())
	assert.True(t, errors.HasCode(err, errors.CodeShapeMismatch))
}

func TestReshape_ClientsTimesQuestions(t *testing.T) {
	var rows []wideRow
	for i := 0; i < 25; i++ {
		client := fmt.Sprintf("c%d", i)
		rows = append(rows,
			wideRow{client, survey.PreTest, [3]float64{float64(i % 6), 2, 3}},
			wideRow{client, survey.PostTest, [3]float64{float64(i % 5), 4, 1}},
		)
	}
	res, err := Reshape(wideFrame(t, rows), DefaultOptions())
	require.NoError(t, err)
	assert.Len(t, res.Records, 25*3)
}

func TestReshape_FullRecord(t *testing.T) {
	res, err := Reshape(wideFrame(t, []wideRow{
		{"a", survey.PreTest, [3]float64{1, 2, 3}},
		{"a", survey.PostTest, [3]float64{4, 2, 1}},
	}), DefaultOptions())
	require.NoError(t, err)

	want := survey.LongRecord{
		Client: "a",
		Identifiers: []survey.Field{
			{Name: survey.ColumnAgeGroup, Value: "older group"},
			{Name: survey.ColumnYear, Value: "2018"},
			{Name: survey.ColumnAge, Value: "12"},
			{Name: survey.ColumnRace, Value: "black"},
		},
		Question:      "1",
		ScorePretest:  1,
		ScorePosttest: 4,
		Delta:         3,
	}
	if diff := cmp.Diff(want, res.Records[0]); diff != "" {
		t.Errorf("first record mismatch (-want +got):\n%s", diff)
	}
}

func TestReshape_DuplicateQuestionLabels(t *testing.T) {
	for _, questions := range [][2]string{
		{"3. a", "3. b"},
		{"3. Did you enjoy camp?", "3. Did you enjoy camp?.1"},
	} {
		f := frame.MustNew("client", "age_group", "year", "test_type", "age", "race/ethnicity", questions[0], questions[1])
		for _, tt := range []string{survey.PreTest, survey.PostTest} {
			require.NoError(t, f.Append(
				frame.Str("a"), frame.Str("older group"), frame.Str("2018"), frame.Str(tt),
				frame.Num(12), frame.Str("black"), frame.Num(1), frame.Num(2),
			))
		}

		_, err := Reshape(f, DefaultOptions())
		require.Error(t, err, questions[1])
		assert.True(t, errors.HasCode(err, errors.CodeShapeMismatch))
		assert.Contains(t, err.Error(), questions[0])
		assert.Contains(t, err.Error(), questions[1])
	}
}

func TestReshape_NumericClientIDsKeepTheirDigits(t *testing.T) {
	f := frame.MustNew(wideColumns...)
	for _, client := range []frame.Cell{frame.Num(1681042018), frame.Parse("123456789681052018")} {
		for _, tt := range []string{survey.PreTest, survey.PostTest} {
			require.NoError(t, f.Append(
				client, frame.Str("older group"), frame.Str("2018"), frame.Str(tt),
				frame.Num(12), frame.Num(2), frame.Str("black"), frame.Str("68104"),
				frame.Num(1), frame.Num(2), frame.Num(3),
			))
		}
	}

	res, err := Reshape(f, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Records, 2*3)
	assert.Equal(t, "1681042018", res.Records[0].Client)
	assert.Equal(t, "123456789681052018", res.Records[1].Client)

	clients, err := res.Frame().Strings(survey.ColumnClient)
	require.NoError(t, err)
	assert.Equal(t, "123456789681052018", clients[1])
}
