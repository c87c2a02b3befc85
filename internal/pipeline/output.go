package pipeline

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"prepost/adapters/excel"
	"prepost/domain/frame"
	"prepost/internal/errors"
	"prepost/internal/lsd"
	"prepost/internal/report"
	"prepost/internal/reshape"
)

// Output file names under the output directory
const (
	LongFile    = "prepost_long.csv"
	DroppedFile = "prepost_dropped.csv"
	ResultsFile = "lsd_results.xlsx"
	ReportFile  = "lsd_report.html"
	FiguresDir  = "figures"
)

const maxSheetName = 31

// WriteWide writes the cleaned wide table to path, as xlsx or CSV by extension
func (p *Pipeline) WriteWide(path string, wide *frame.Frame) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.IOError("create "+filepath.Dir(path), err)
	}
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return excel.WriteXLSX(path, excel.Sheet{Name: "data", Frame: wide})
	}
	return excel.WriteCSV(path, wide)
}

// WriteLong writes the paired records and the pairs dropped by the join
func (p *Pipeline) WriteLong(dir string, result *reshape.Result) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.IOError("create "+dir, err)
	}
	longPath := filepath.Join(dir, LongFile)
	if err := excel.WriteCSV(longPath, result.Frame()); err != nil {
		return nil, err
	}
	files := []string{longPath}

	if len(result.Dropped) > 0 {
		dropped := frame.MustNew("client", "question", "side")
		for _, d := range result.Dropped {
			_ = dropped.Append(frame.Str(d.Client), frame.Str(d.Question), frame.Str(string(d.Side)))
		}
		droppedPath := filepath.Join(dir, DroppedFile)
		if err := excel.WriteCSV(droppedPath, dropped); err != nil {
			return nil, err
		}
		files = append(files, droppedPath)
	}
	return files, nil
}

// WriteAnalysis writes the results workbook, the HTML report and one Plotly
// figure per slice, as enabled in the output configuration
func (p *Pipeline) WriteAnalysis(dir string, analysis *Analysis, rep *report.Report) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.IOError("create "+dir, err)
	}
	var files []string

	if len(analysis.Slices) > 0 {
		sheets := make([]excel.Sheet, 0, 2*len(analysis.Slices))
		for _, s := range analysis.Slices {
			name := sheetName(p.cfg.Analysis.Groupby + " " + s.GroupbyValue)
			sheets = append(sheets,
				excel.Sheet{Name: name, Frame: lsd.TableFrame(s.Results)},
				excel.Sheet{Name: sheetName(name + " groups"), Frame: lsd.SummaryFrame(p.cfg.Analysis.Treatment, s.Summaries)},
			)
		}
		path := filepath.Join(dir, ResultsFile)
		if err := excel.WriteXLSX(path, sheets...); err != nil {
			return nil, err
		}
		files = append(files, path)
	}

	if p.cfg.Output.WriteHTML {
		path := filepath.Join(dir, ReportFile)
		if err := os.WriteFile(path, rep.HTML(), 0o644); err != nil {
			return nil, errors.IOError("write "+path, err)
		}
		files = append(files, path)
	}

	if p.cfg.Output.WriteFigures && len(analysis.Slices) > 0 {
		figDir := filepath.Join(dir, FiguresDir)
		if err := os.MkdirAll(figDir, 0o755); err != nil {
			return nil, errors.IOError("create "+figDir, err)
		}
		for _, s := range analysis.Slices {
			path := filepath.Join(figDir, fileName(p.cfg.Analysis.Groupby+"_"+s.GroupbyValue)+".json")
			if err := os.WriteFile(path, s.Figure, 0o644); err != nil {
				return nil, errors.IOError("write "+path, err)
			}
			files = append(files, path)
		}
	}

	p.logger.Debug("analysis written", zap.String("dir", dir), zap.Int("files", len(files)))
	return files, nil
}

func (p *Pipeline) writeOutputs(wide *frame.Frame, reshaped *reshape.Result, analysis *Analysis, rep *report.Report) ([]string, error) {
	dir := p.cfg.Output.Dir
	if err := p.WriteWide(p.cfg.Input.CleanFile, wide); err != nil {
		return nil, err
	}
	files := []string{p.cfg.Input.CleanFile}

	longFiles, err := p.WriteLong(dir, reshaped)
	if err != nil {
		return nil, err
	}
	files = append(files, longFiles...)

	analysisFiles, err := p.WriteAnalysis(dir, analysis, rep)
	if err != nil {
		return nil, err
	}
	return append(files, analysisFiles...), nil
}

var sheetReplacer = strings.NewReplacer("[", "(", "]", ")", ":", "-", "*", "-", "?", "", "/", "-", `\`, "-")

// sheetName makes s a valid, unique-enough worksheet name
func sheetName(s string) string {
	s = sheetReplacer.Replace(s)
	if r := []rune(s); len(r) > maxSheetName {
		s = string(r[:maxSheetName])
	}
	return s
}

func fileName(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, s)
}
