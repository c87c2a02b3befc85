package excel

import (
	"encoding/csv"
	"os"

	"github.com/xuri/excelize/v2"

	"prepost/domain/frame"
	"prepost/internal/errors"
)

// Sheet is a named frame written to a workbook
type Sheet struct {
	Name  string
	Frame *frame.Frame
}

// WriteXLSX writes each frame to its own sheet. Numeric cells are stored as
// numbers, except those whose digits a float64 cannot hold, which are stored
// as text; empty cells are left blank.
func WriteXLSX(path string, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return errors.InvalidInput("no sheets to write")
	}
	f := excelize.NewFile()
	defer f.Close()

	const defaultSheet = "Sheet1"
	keepDefault := false
	for i, s := range sheets {
		if s.Name == defaultSheet {
			keepDefault = true
		}
		idx, err := f.NewSheet(s.Name)
		if err != nil {
			return errors.IOError("create sheet "+s.Name, err)
		}
		if i == 0 {
			f.SetActiveSheet(idx)
		}
		if err := writeSheet(f, s); err != nil {
			return err
		}
	}
	if !keepDefault {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return errors.IOError("remove default sheet", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return errors.IOError("save workbook "+path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, s Sheet) error {
	header := make([]interface{}, 0, s.Frame.Width())
	for _, c := range s.Frame.Columns() {
		header = append(header, c)
	}
	if err := f.SetSheetRow(s.Name, "A1", &header); err != nil {
		return errors.IOError("write header of "+s.Name, err)
	}
	for i := 0; i < s.Frame.Len(); i++ {
		row := make([]interface{}, s.Frame.Width())
		for j := range row {
			cell := s.Frame.At(i, j)
			switch {
			case cell.Exact():
				v, _ := cell.Float()
				row[j] = v
			case !cell.IsEmpty():
				row[j] = cell.String()
			default:
				row[j] = nil
			}
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.IOError("address row", err)
		}
		if err := f.SetSheetRow(s.Name, axis, &row); err != nil {
			return errors.IOError("write row of "+s.Name, err)
		}
	}
	return nil
}

// WriteCSV writes a frame with a header row
func WriteCSV(path string, f *frame.Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.IOError("create "+path, err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(f.Columns()); err != nil {
		return errors.IOError("write csv header", err)
	}
	for i := 0; i < f.Len(); i++ {
		record := make([]string, f.Width())
		for j := range record {
			record[j] = f.At(i, j).String()
		}
		if err := w.Write(record); err != nil {
			return errors.IOError("write csv row", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errors.IOError("flush csv", err)
	}
	return nil
}
