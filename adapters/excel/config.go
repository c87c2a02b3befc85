package excel

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"prepost/domain/frame"
	"prepost/domain/survey"
	"prepost/internal/errors"
)

// Tag is a constant column appended to every row read from a source
type Tag struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

// Source is one sheet of one workbook
type Source struct {
	Path     string `json:"path" yaml:"path"`
	Sheet    string `json:"sheet" yaml:"sheet"`
	SkipRows int    `json:"skip_rows" yaml:"skip_rows"`
	Tags     []Tag  `json:"tags" yaml:"tags"`
}

// sourceFile is the YAML layout of a source list
type sourceFile struct {
	Sources []Source `yaml:"sources"`
}

// SurveySource builds the source for one cohort sheet
func SurveySource(path, sheet, ageGroup, year, testType string) Source {
	return Source{
		Path:     path,
		Sheet:    sheet,
		SkipRows: 1,
		Tags: []Tag{
			{Name: survey.ColumnAgeGroup, Value: ageGroup},
			{Name: survey.ColumnYear, Value: year},
			{Name: survey.ColumnTestType, Value: testType},
		},
	}
}

// DefaultSources lists the 2018 and 2019 survey workbooks under dir
func DefaultSources(dir string) []Source {
	var out []Source
	for _, year := range []string{"2018", "2019"} {
		path := filepath.Join(dir, year+"Girls Rock Data Analysis.xlsx")
		out = append(out,
			SurveySource(path, "PREtest-Older Group", "older group", year, survey.PreTest),
			SurveySource(path, "POSTtest-Older Group", "older group", year, survey.PostTest),
			SurveySource(path, "PREtest-Younger Group", "younger group", year, survey.PreTest),
			SurveySource(path, "POSTtest-Younger Group", "younger group", year, survey.PostTest),
		)
	}
	return out
}

// LoadSources reads a YAML source list. Relative workbook paths resolve
// against the directory of the list.
func LoadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.IOError("read source list "+path, err)
	}
	var file sourceFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.WithCode(errors.CodeInvalidInput, errors.Wrapf(err, "parse source list %s", path))
	}
	if len(file.Sources) == 0 {
		return nil, errors.InvalidInput("source list " + path + " is empty")
	}
	base := filepath.Dir(path)
	for i, src := range file.Sources {
		if src.Path == "" || (src.Sheet == "" && !isCSV(src.Path)) {
			return nil, errors.Newf(errors.CodeInvalidInput, "source %d of %s needs a path and a sheet", i+1, path)
		}
		if !filepath.IsAbs(src.Path) {
			file.Sources[i].Path = filepath.Join(base, src.Path)
		}
	}
	return file.Sources, nil
}

// ReadSources reads every source, appends its tags and stacks the results
func ReadSources(sources []Source, logger *zap.Logger) (*frame.Frame, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	frames := make([]*frame.Frame, 0, len(sources))
	for _, src := range sources {
		f, err := NewDataReader(src.Path, logger).ReadSheet(src.Sheet, src.SkipRows)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s [%s]", src.Path, src.Sheet)
		}
		for _, tag := range src.Tags {
			values := make([]frame.Cell, f.Len())
			for i := range values {
				values[i] = frame.Str(tag.Value)
			}
			if err := f.Set(tag.Name, values); err != nil {
				return nil, errors.Wrapf(err, "tag %s [%s]", src.Path, src.Sheet)
			}
		}
		logger.Info("source loaded",
			zap.String("path", src.Path),
			zap.String("sheet", src.Sheet),
			zap.Int("rows", f.Len()))
		frames = append(frames, f)
	}
	return frame.Concat(frames...)
}
