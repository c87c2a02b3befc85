package excel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"prepost/domain/frame"
	"prepost/domain/survey"
	"prepost/internal/errors"
)

// writeWorkbook creates a workbook whose sheets start with a title row, the
// way the survey exports do.
func writeWorkbook(t *testing.T, path string, sheets map[string][][]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for name, rows := range sheets {
		_, err := f.NewSheet(name)
		require.NoError(t, err)
		for i, row := range rows {
			axis, err := excelize.CoordinatesToCellName(1, i+1)
			require.NoError(t, err)
			r := row
			require.NoError(t, f.SetSheetRow(name, axis, &r))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func TestReadSheet_SkipsTitleRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "survey.xlsx")
	writeWorkbook(t, path, map[string][][]interface{}{
		"PREtest-Older Group": {
			{"Girls Rock survey"},
			{"Client ID", "Age", "", "1. I like music", "Age"},
			{"Ana", 12, "x", 4, 13},
			{nil, nil, nil, nil, nil},
			{"Bea", 11, nil, 2.5},
		},
	})

	f, err := NewDataReader(path, nil).ReadSheet("PREtest-Older Group", 1)
	require.NoError(t, err)

	assert.Equal(t, []string{"Client ID", "Age", "Unnamed: 2", "1. I like music", "Age.1"}, f.Columns())
	require.Equal(t, 2, f.Len())
	assert.Equal(t, "Ana", f.Get(0, "Client ID").String())
	assert.Equal(t, frame.KindNumber, f.Get(0, "Age").Kind())
	assert.Equal(t, "13", f.Get(0, "Age.1").String())
	assert.Equal(t, "2.5", f.Get(1, "1. I like music").String())
	assert.True(t, f.Get(1, "Age.1").IsEmpty())
}

func TestReadSheet_MissingFileAndSheet(t *testing.T) {
	_, err := NewDataReader(filepath.Join(t.TempDir(), "missing.xlsx"), nil).ReadSheet("Sheet1", 0)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "one.xlsx")
	writeWorkbook(t, path, map[string][][]interface{}{"Data": {{"a"}, {1}}})
	_, err = NewDataReader(path, nil).ReadSheet("Other", 0)
	assert.Error(t, err)

	names, err := NewDataReader(path, nil).SheetNames()
	require.NoError(t, err)
	assert.Contains(t, names, "Data")
}

func TestReadSheet_CSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "long.csv")
	require.NoError(t, os.WriteFile(path, []byte("client,question,delta\na,1,2\nb,1,-1.5\n"), 0o644))

	f, err := NewDataReader(path, nil).ReadSheet("", 0)
	require.NoError(t, err)
	deltas, err := f.Floats("delta")
	require.NoError(t, err)
	assert.Equal(t, []float64{2, -1.5}, deltas)
}

func TestReadSources_AppendsTags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "2018.xlsx")
	writeWorkbook(t, path, map[string][][]interface{}{
		"PRE":  {{"title"}, {"Client ID", "1. Q"}, {"Ana", 3}},
		"POST": {{"title"}, {"Client ID", "1. Q", "2. Q"}, {"Ana", 4, 5}},
	})

	f, err := ReadSources([]Source{
		SurveySource(path, "PRE", "older group", "2018", survey.PreTest),
		SurveySource(path, "POST", "older group", "2018", survey.PostTest),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"Client ID", "1. Q", survey.ColumnAgeGroup, survey.ColumnYear, survey.ColumnTestType, "2. Q"}, f.Columns())
	require.Equal(t, 2, f.Len())
	assert.Equal(t, survey.PreTest, f.Get(0, survey.ColumnTestType).String())
	assert.Equal(t, survey.PostTest, f.Get(1, survey.ColumnTestType).String())
	assert.True(t, f.Get(0, "2. Q").IsEmpty())
}

func TestDefaultSources(t *testing.T) {
	sources := DefaultSources("data/raw")
	require.Len(t, sources, 8)
	assert.Equal(t, "POSTtest-Younger Group", sources[3].Sheet)
	assert.Equal(t, filepath.Join("data/raw", "2019Girls Rock Data Analysis.xlsx"), sources[7].Path)
	for _, s := range sources {
		assert.Equal(t, 1, s.SkipRows)
		require.Len(t, s.Tags, 3)
	}
}

func TestWriteXLSX_RoundTrip(t *testing.T) {
	src := frame.MustNew("pairs", "abs_diff", "significance")
	require.NoError(t, src.Append(frame.Str("X vs. Y"), frame.Num(3), frame.Str("significant")))
	require.NoError(t, src.Append(frame.Str("X vs. Z"), frame.Num(0.25), frame.Empty()))

	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, WriteXLSX(path, Sheet{Name: "question 1", Frame: src}))

	names, err := NewDataReader(path, nil).SheetNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"question 1"}, names)

	back, err := NewDataReader(path, nil).ReadSheet("question 1", 0)
	require.NoError(t, err)
	assert.Equal(t, src.Columns(), back.Columns())
	diffs, err := back.Floats("abs_diff")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 0.25}, diffs)
	assert.True(t, back.Get(1, "significance").IsEmpty())
}

func TestWriteCSV(t *testing.T) {
	src := frame.MustNew("client", "delta")
	require.NoError(t, src.Append(frame.Str("a"), frame.Num(-1)))

	path := filepath.Join(t.TempDir(), "out.csv")
	require.NoError(t, WriteCSV(path, src))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "client,delta\na,-1\n", string(raw))
}

func TestLoadSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`sources:
  - path: 2020.xlsx
    sheet: PREtest-Older Group
    skip_rows: 1
    tags:
      - {name: age_group, value: older group}
      - {name: year, value: "2020"}
      - {name: test_type, value: pre-test}
  - path: /data/extra.csv
`), 0o644))

	sources, err := LoadSources(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, filepath.Join(dir, "2020.xlsx"), sources[0].Path)
	assert.Equal(t, 1, sources[0].SkipRows)
	assert.Equal(t, Tag{Name: survey.ColumnYear, Value: "2020"}, sources[0].Tags[1])
	assert.Equal(t, "/data/extra.csv", sources[1].Path)
}

func TestLoadSources_Invalid(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadSources(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	noSheet := filepath.Join(dir, "nosheet.yaml")
	require.NoError(t, os.WriteFile(noSheet, []byte("sources:\n  - path: a.xlsx\n"), 0o644))
	_, err = LoadSources(noSheet)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("sources: []\n"), 0o644))
	_, err = LoadSources(empty)
	assert.True(t, errors.HasCode(err, errors.CodeInvalidInput))
}

func TestCSV_RoundTripKeepsClientIDs(t *testing.T) {
	src := frame.MustNew("client", "zip_code", "delta")
	require.NoError(t, src.Append(frame.Num(1681042018), frame.Parse("02134"), frame.Num(0.5)))
	require.NoError(t, src.Append(frame.Parse("123456789681052018"), frame.Num(68104), frame.Num(-2)))

	path := filepath.Join(t.TempDir(), "long.csv")
	require.NoError(t, WriteCSV(path, src))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "client,zip_code,delta\n1681042018,02134,0.5\n123456789681052018,68104,-2\n", string(raw))

	back, err := NewDataReader(path, nil).ReadSheet("", 0)
	require.NoError(t, err)
	clients, err := back.Strings("client")
	require.NoError(t, err)
	assert.Equal(t, []string{"1681042018", "123456789681052018"}, clients)
	assert.Equal(t, "02134", back.Get(0, "zip_code").String())

	// a second pass must not drift
	again := filepath.Join(t.TempDir(), "again.csv")
	require.NoError(t, WriteCSV(again, back))
	rawAgain, err := os.ReadFile(again)
	require.NoError(t, err)
	assert.Equal(t, string(raw), string(rawAgain))
}

func TestWriteXLSX_KeepsLongIDsAsText(t *testing.T) {
	src := frame.MustNew("client", "score")
	require.NoError(t, src.Append(frame.Parse("123456789681052018"), frame.Num(4)))
	require.NoError(t, src.Append(frame.Num(1681042018), frame.Num(5)))

	path := filepath.Join(t.TempDir(), "ids.xlsx")
	require.NoError(t, WriteXLSX(path, Sheet{Name: "data", Frame: src}))

	back, err := NewDataReader(path, nil).ReadSheet("data", 0)
	require.NoError(t, err)
	clients, err := back.Strings("client")
	require.NoError(t, err)
	assert.Equal(t, []string{"123456789681052018", "1681042018"}, clients)

	wb, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer wb.Close()
	text := []excelize.CellType{excelize.CellTypeSharedString, excelize.CellTypeInlineString}
	id, err := wb.GetCellType("data", "A2")
	require.NoError(t, err)
	assert.Contains(t, text, id)
	score, err := wb.GetCellType("data", "B2")
	require.NoError(t, err)
	assert.NotContains(t, text, score)
}
