package excel

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"prepost/domain/frame"
	"prepost/internal/errors"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	logger   *zap.Logger
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(filePath string, logger *zap.Logger) *DataReader {
	fileType := "xlsx"
	if isCSV(filePath) {
		fileType = "csv"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DataReader{filePath: filePath, fileType: fileType, logger: logger}
}

func isCSV(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".csv")
}

// ReadSheet reads one sheet into a frame. The header is the first row after
// skipRows; CSV files ignore the sheet name.
func (r *DataReader) ReadSheet(sheet string, skipRows int) (*frame.Frame, error) {
	r.logger.Debug("reading data file",
		zap.String("path", r.filePath),
		zap.String("type", r.fileType),
		zap.String("sheet", sheet),
		zap.Int("skip_rows", skipRows))

	if _, err := os.Stat(r.filePath); os.IsNotExist(err) {
		return nil, errors.IOError(fmt.Sprintf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath), err)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSVRows()
	case "xlsx":
		rows, err = r.readExcelRows(sheet)
	default:
		return nil, errors.InvalidInput(fmt.Sprintf("unsupported file type: %s", r.fileType))
	}
	if err != nil {
		return nil, err
	}
	return r.processRows(rows, skipRows)
}

// SheetNames lists the sheets of an Excel workbook
func (r *DataReader) SheetNames() ([]string, error) {
	if r.fileType != "xlsx" {
		return nil, errors.InvalidInput("sheet names are only available for Excel files")
	}
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.IOError("failed to open Excel file", err)
	}
	defer f.Close()
	return f.GetSheetList(), nil
}

func (r *DataReader) readExcelRows(sheet string) ([][]string, error) {
	startTime := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, errors.IOError("failed to open Excel file", err)
	}
	defer f.Close()

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.IOError(fmt.Sprintf("failed to read sheet %q", sheet), err)
	}
	r.logger.Debug("sheet read",
		zap.String("sheet", sheet),
		zap.Int("rows", len(rows)),
		zap.Duration("elapsed", time.Since(startTime)))
	return rows, nil
}

func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, errors.IOError("failed to open CSV file", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, errors.IOError("failed to read CSV file", err)
	}
	return rows, nil
}

// processRows converts raw string rows into a frame. Blank headers become
// "Unnamed: <index>" and repeated headers get a ".<n>" suffix; fully blank
// data rows are skipped.
func (r *DataReader) processRows(rows [][]string, skipRows int) (*frame.Frame, error) {
	if skipRows < 0 {
		skipRows = 0
	}
	if len(rows) <= skipRows {
		return nil, errors.ShapeMismatch(fmt.Sprintf("%s has no header row after skipping %d row(s)", r.filePath, skipRows))
	}

	headerRow := rows[skipRows]
	headers := make([]string, len(headerRow))
	seen := make(map[string]int, len(headerRow))
	for i, header := range headerRow {
		name := strings.TrimSpace(header)
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n+1)
		} else {
			seen[name] = 0
		}
		headers[i] = name
	}

	f, err := frame.New(headers...)
	if err != nil {
		return nil, err
	}

	skipped := 0
	for _, row := range rows[skipRows+1:] {
		cells := make([]frame.Cell, len(headers))
		blank := true
		for j := range headers {
			if j < len(row) {
				cells[j] = frame.Parse(row[j])
				if !cells[j].IsEmpty() {
					blank = false
				}
			}
		}
		if blank {
			skipped++
			continue
		}
		if err := f.Append(cells...); err != nil {
			return nil, err
		}
	}

	r.logger.Debug("data file processed",
		zap.String("path", r.filePath),
		zap.Int("columns", len(headers)),
		zap.Int("rows", f.Len()),
		zap.Int("blank_rows_skipped", skipped))
	return f, nil
}
