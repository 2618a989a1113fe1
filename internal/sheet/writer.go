package sheet

import (
	"os"
	"path/filepath"
	"strconv"

	"SupplyScraper/internal/errors"
	"SupplyScraper/internal/models"

	"github.com/xuri/excelize/v2"
)

// Reserved result workbook columns.
const (
	SheetName    = "Results"
	StatusColumn = "status"
	ErrorColumn  = "error"
)

// WriteResults writes set to a fresh workbook at path, replacing any file
// already there. Columns are idColumn, the set's field columns in order,
// status and error. Absent values are left as empty cells.
//
// The workbook is written to a temporary file next to path and renamed over
// it, so path always holds either the previous or the complete new file.
func WriteResults(path, idColumn string, set *models.ResultSet) error {
	for _, c := range set.Columns {
		if c == idColumn || c == StatusColumn || c == ErrorColumn {
			return errors.Newf("field column %q collides with a reserved column", c)
		}
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return errors.Wrap(err, "rename sheet")
	}

	header := make([]interface{}, 0, len(set.Columns)+3)
	header = append(header, idColumn)
	for _, c := range set.Columns {
		header = append(header, c)
	}
	header = append(header, StatusColumn, ErrorColumn)
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return errors.Wrap(err, "write header")
	}

	for i, r := range set.Results {
		row := make([]interface{}, 0, len(header))
		row = append(row, r.Number)
		for _, c := range set.Columns {
			row = append(row, cellValue(set.Kind(c), r.Fields, c))
		}
		row = append(row, string(r.Status), r.Error)

		ref, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return errors.Wrap(err, "cell reference")
		}
		if err := f.SetSheetRow(SheetName, ref, &row); err != nil {
			return errors.Wrapf(err, "write row for %s", r.Number)
		}
	}

	return saveAtomic(f, path)
}

// cellValue returns nil for absent values so the cell stays empty, a float
// for number fields that parse, and the text otherwise.
func cellValue(kind models.FieldKind, fields models.Fields, column string) interface{} {
	v, ok := fields[column]
	if !ok {
		return nil
	}
	if kind == models.KindNumber {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return v
}

func saveAtomic(f *excelize.File, path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".partial-*.xlsx")
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "create temp file for %s", path), errors.ErrFileFormat)
	}
	defer os.Remove(tmp.Name())

	if err := f.Write(tmp); err != nil {
		tmp.Close()
		return errors.Mark(errors.Wrapf(err, "write workbook %s", path), errors.ErrFileFormat)
	}
	if err := tmp.Close(); err != nil {
		return errors.Mark(errors.Wrapf(err, "close workbook %s", path), errors.ErrFileFormat)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Mark(errors.Wrapf(err, "replace %s", path), errors.ErrFileFormat)
	}
	return nil
}
