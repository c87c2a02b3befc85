package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"prepost/adapters/excel"
	"prepost/domain/frame"
	"prepost/domain/survey"
	"prepost/internal/cleaning"
	"prepost/internal/config"
	"prepost/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// database/sql keeps a connection opener per pool until Close
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		Input: config.InputConfig{
			RawDir:    dir,
			CleanFile: filepath.Join(dir, "processed", "girls_rock_data.csv"),
		},
		Analysis: config.AnalysisConfig{
			Treatment:  survey.ColumnRace,
			Response:   survey.ColumnDelta,
			Groupby:    survey.ColumnQuestion,
			Confidence: 0.95,
			Workers:    2,
		},
		Output: config.OutputConfig{
			Dir:          filepath.Join(dir, "processed"),
			WriteHTML:    true,
			WriteFigures: true,
		},
		Log: config.LogConfig{Level: "info"},
	}
}

type respondent struct {
	id   string
	race string
	pre  []interface{}
	post []interface{}
}

// writeSurvey writes a pre and a post sheet, each under a title row, with
// the raw headers of the camp workbooks
func writeSurvey(t *testing.T, path string, people []respondent) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	header := []interface{}{
		cleaning.RawClientID, cleaning.RawZipCode, cleaning.RawAge, cleaning.RawRace, cleaning.RawYearsAtCamp,
		"1. I like music", "2. I can play",
	}
	for _, sheet := range []string{"PRE", "POST"} {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
		rows := [][]interface{}{{"Girls Rock survey"}, header}
		for _, p := range people {
			scores := p.pre
			if sheet == "POST" {
				scores = p.post
			}
			row := []interface{}{p.id, 68104, 12, p.race, "1st"}
			rows = append(rows, append(row, scores...))
		}
		for i, row := range rows {
			axis, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			r := row
			require.NoError(t, f.SetSheetRow(sheet, axis, &r))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

// narrowLayout keeps every column and recodes or fills none of them
func narrowLayout() cleaning.Layout {
	return cleaning.Layout{}
}

func surveyPipeline(t *testing.T, cfg *config.Config, opts ...Option) *Pipeline {
	t.Helper()
	path := filepath.Join(cfg.Input.RawDir, "2019.xlsx")
	// Question 1: deltas caucasian [1,2,3], black [4,5,6], other [1,1,1].
	// Question 2: only caucasian respondents answered the post-test.
	writeSurvey(t, path, []respondent{
		{"c1", "Caucasian", []interface{}{1, 3}, []interface{}{2, 4}},
		{"c2", "Caucasian", []interface{}{1, 3}, []interface{}{3, 4}},
		{"c3", "Caucasian", []interface{}{1, 3}, []interface{}{4, 5}},
		{"b1", "Black/African", []interface{}{1, 3}, []interface{}{5}},
		{"b2", "Black", []interface{}{1, 3}, []interface{}{6}},
		{"b3", "Black/African", []interface{}{1, 3}, []interface{}{7}},
		{"h1", "Hispanic", []interface{}{1, 3}, []interface{}{2}},
		{"h2", "Hispanic", []interface{}{1, 3}, []interface{}{2}},
		{"h3", "Hispanic Latinx", []interface{}{1, 3}, []interface{}{2}},
	})
	opts = append(opts,
		WithSources(
			excel.SurveySource(path, "PRE", "older group", "2019", survey.PreTest),
			excel.SurveySource(path, "POST", "older group", "2019", survey.PostTest),
		),
		WithLayout(narrowLayout()),
	)
	return New(cfg, zap.NewNop(), opts...)
}

func TestRun_EndToEnd(t *testing.T) {
	cfg := testConfig(t)
	summary, err := surveyPipeline(t, cfg).Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, summary.RunID.String())
	assert.Equal(t, 18, summary.Wide)
	assert.Equal(t, 12, summary.Records)
	assert.Equal(t, 6, summary.Dropped)

	require.Len(t, summary.Analysis.Slices, 1)
	slice := summary.Analysis.Slices[0]
	assert.Equal(t, "1", slice.GroupbyValue)

	require.Len(t, slice.Results, 3)
	assert.Equal(t, "caucasian vs. black", slice.Results[0].Pair)
	assert.Equal(t, "caucasian vs. other", slice.Results[1].Pair)
	assert.Equal(t, "black vs. other", slice.Results[2].Pair)
	assert.InDelta(t, 3.0, slice.Results[0].AbsMeanDiff, 1e-9)
	assert.InDelta(t, 1.631275, slice.Results[0].CriticalValue, 1e-5)
	assert.Equal(t, survey.Significant, slice.Results[0].Verdict)
	assert.Equal(t, survey.NotSignificant, slice.Results[1].Verdict)
	assert.Equal(t, survey.Significant, slice.Results[2].Verdict)
	assert.Len(t, slice.Series, 3)
	assert.NotEmpty(t, slice.Figure)

	require.Len(t, summary.Analysis.Skipped, 1)
	assert.Equal(t, "2", summary.Analysis.Skipped[0].GroupbyValue)

	for _, name := range []string{LongFile, DroppedFile, ResultsFile, ReportFile, filepath.Join(FiguresDir, "question_1.json")} {
		assert.FileExists(t, filepath.Join(cfg.Output.Dir, name))
	}
	assert.FileExists(t, cfg.Input.CleanFile)
	assert.Contains(t, summary.Files, filepath.Join(cfg.Output.Dir, ReportFile))

	page, err := os.ReadFile(filepath.Join(cfg.Output.Dir, ReportFile))
	require.NoError(t, err)
	assert.Contains(t, string(page), "caucasian vs. black")

	back, err := excel.NewDataReader(filepath.Join(cfg.Output.Dir, ResultsFile), nil).ReadSheet("question 1", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, back.Len())
}

func TestRun_DisabledOutputs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.WriteHTML = false
	cfg.Output.WriteFigures = false

	_, err := surveyPipeline(t, cfg).Run(context.Background())
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(cfg.Output.Dir, ReportFile))
	assert.NoDirExists(t, filepath.Join(cfg.Output.Dir, FiguresDir))
	assert.FileExists(t, filepath.Join(cfg.Output.Dir, ResultsFile))
}

func TestRun_PersistsToStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.URL = "sqlite://" + filepath.Join(t.TempDir(), "results.db")
	ctx := context.Background()

	opts, closer, err := Options(ctx, cfg, nil)
	require.NoError(t, err)
	defer closer()

	summary, err := surveyPipeline(t, cfg, opts...).Run(ctx)
	require.NoError(t, err)

	s, err := store.Open(ctx, cfg.Database.URL, nil)
	require.NoError(t, err)
	defer s.Close()
	rows, err := s.Results(ctx, summary.RunID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "1", rows[0].GroupbyValue)
	assert.Equal(t, "caucasian vs. black", rows[0].Pair)
}

func TestOptions_SourceList(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input.SourcesFile = filepath.Join(cfg.Input.RawDir, "sources.yaml")
	require.NoError(t, os.WriteFile(cfg.Input.SourcesFile,
		[]byte("sources:\n  - {path: a.xlsx, sheet: PRE, skip_rows: 1}\n"), 0o644))

	opts, closer, err := Options(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer closer()

	p := New(cfg, nil, opts...)
	require.Len(t, p.sources, 1)
	assert.Equal(t, filepath.Join(cfg.Input.RawDir, "a.xlsx"), p.sources[0].Path)
}

func TestRun_MissingWorkbook(t *testing.T) {
	cfg := testConfig(t)
	_, err := New(cfg, nil,
		WithSources(excel.SurveySource(filepath.Join(cfg.Input.RawDir, "missing.xlsx"), "PRE", "older group", "2019", survey.PreTest)),
	).Run(context.Background())
	assert.Error(t, err)
}

func longFrame(t *testing.T, rows [][3]interface{}) *frame.Frame {
	t.Helper()
	f := frame.MustNew(survey.ColumnQuestion, survey.ColumnRace, survey.ColumnDelta)
	for _, r := range rows {
		require.NoError(t, f.Append(frame.Str(r[0].(string)), frame.Str(r[1].(string)), frame.Num(r[2].(float64))))
	}
	return f
}

func TestAnalyze_KeepsSliceOrderAndSkipsSingleGroups(t *testing.T) {
	long := longFrame(t, [][3]interface{}{
		{"3", "a", 1.0}, {"3", "b", 2.0}, {"3", "a", 2.0}, {"3", "b", 4.0},
		{"1", "a", 1.0}, {"1", "a", 3.0},
		{"2", "a", 1.0}, {"2", "b", 5.0}, {"2", "a", 0.0}, {"2", "b", 6.0},
	})

	analysis, err := New(testConfig(t), nil).Analyze(context.Background(), long)
	require.NoError(t, err)

	require.Len(t, analysis.Slices, 2)
	assert.Equal(t, "3", analysis.Slices[0].GroupbyValue)
	assert.Equal(t, "2", analysis.Slices[1].GroupbyValue)
	require.Len(t, analysis.Skipped, 1)
	assert.Equal(t, "1", analysis.Skipped[0].GroupbyValue)
}

func TestAnalyze_SkipsDegenerateSlice(t *testing.T) {
	long := longFrame(t, [][3]interface{}{
		{"1", "a", 1.0}, {"1", "b", 2.0}, {"1", "a", 2.0}, {"1", "b", 4.0},
		{"2", "a", 1.0}, {"2", "b", 1.0}, {"2", "a", 1.0}, {"2", "b", 1.0},
		{"3", "a", 5.0}, {"3", "b", 6.0}, {"3", "a", 6.0}, {"3", "b", 9.0},
	})

	analysis, err := New(testConfig(t), nil).Analyze(context.Background(), long)
	require.NoError(t, err)

	require.Len(t, analysis.Slices, 2)
	assert.Equal(t, "1", analysis.Slices[0].GroupbyValue)
	assert.Equal(t, "3", analysis.Slices[1].GroupbyValue)

	require.Len(t, analysis.Skipped, 1)
	assert.Equal(t, "2", analysis.Skipped[0].GroupbyValue)
	assert.Contains(t, analysis.Skipped[0].Reason, "constant")
}

func TestAnalyze_ZeroWithinVarianceSliceIsAnalysed(t *testing.T) {
	long := longFrame(t, [][3]interface{}{
		{"1", "a", 1.0}, {"1", "b", 3.0}, {"1", "a", 1.0}, {"1", "b", 3.0},
	})

	analysis, err := New(testConfig(t), nil).Analyze(context.Background(), long)
	require.NoError(t, err)
	require.Len(t, analysis.Slices, 1)
	assert.Empty(t, analysis.Skipped)
	assert.Equal(t, 0.0, analysis.Slices[0].ANOVA.MSE)
	require.Len(t, analysis.Slices[0].Results, 1)
	assert.Equal(t, survey.Significant, analysis.Slices[0].Results[0].Verdict)
}

func TestAnalyze_Cancelled(t *testing.T) {
	long := longFrame(t, [][3]interface{}{{"1", "a", 1.0}, {"1", "b", 2.0}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testConfig(t), nil).Analyze(ctx, long)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSheetAndFileNames(t *testing.T) {
	assert.Equal(t, "race-ethnicity (1)", sheetName("race/ethnicity [1]"))
	assert.Len(t, []rune(sheetName("question 1 with a very long descriptive title")), maxSheetName)
	assert.Equal(t, "question_1_a_b", fileName("question 1/a?b"))
}
