// Package sheet reads product lists and reads and writes result workbooks.
package sheet

import (
	"strings"

	"SupplyScraper/internal/errors"
	"SupplyScraper/internal/models"
	"SupplyScraper/pkg/config"
	"SupplyScraper/utils"

	"github.com/xuri/excelize/v2"
)

// readRows returns every row of one worksheet. An empty sheet name selects
// the first sheet in the workbook.
func readRows(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "open workbook %s", path), errors.ErrFileFormat)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, errors.Wrapf(errors.ErrFileFormat, "workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "read sheet %q of %s", sheet, path), errors.ErrFileFormat)
	}
	if len(rows) == 0 {
		return nil, errors.Wrapf(errors.ErrFileFormat, "sheet %q of %s has no header row", sheet, path)
	}
	return rows, nil
}

// headerIndex maps trimmed header names to column positions. The first
// column wins when a header repeats.
func headerIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, ok := index[h]; !ok {
			index[h] = i
		}
	}
	return index
}

func requireColumns(path string, header []string, index map[string]int, names ...string) error {
	var missing []string
	for _, name := range names {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	err := errors.Wrapf(errors.ErrMissingColumn, "%s: column(s) %q not found; columns present: %q", path, missing, header)
	return errors.WithHint(err, "set input.id_column / input.description_column in config.yml to the workbook's header names")
}

// cell returns row[idx] trimmed; excelize drops trailing empty cells.
func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// LoadProducts reads the product list described by cfg from the workbook at
// path. Rows with a blank product number are skipped and repeated numbers
// keep their first row.
func LoadProducts(path string, cfg config.InputConfig) ([]models.Product, error) {
	rows, err := readRows(path, cfg.Sheet)
	if err != nil {
		return nil, err
	}

	header := rows[0]
	index := headerIndex(header)

	required := []string{cfg.IDColumn}
	if cfg.DescriptionColumn != "" {
		required = append(required, cfg.DescriptionColumn)
	}
	if err := requireColumns(path, header, index, required...); err != nil {
		return nil, err
	}

	idIdx := index[cfg.IDColumn]
	descIdx, supplierIdx := -1, -1
	if cfg.DescriptionColumn != "" {
		descIdx = index[cfg.DescriptionColumn]
	}
	if i, ok := index[cfg.SupplierColumn]; ok && cfg.SupplierColumn != "" {
		supplierIdx = i
	}

	seen := make(map[string]bool)
	var products []models.Product
	for r, row := range rows[1:] {
		number := cell(row, idIdx)
		if number == "" || seen[number] {
			continue
		}
		seen[number] = true

		p := models.Product{
			Number:      number,
			Description: cell(row, descIdx),
			Supplier:    cell(row, supplierIdx),
			Row:         r + 2,
		}
		for name, i := range index {
			if i == idIdx || i == descIdx || i == supplierIdx {
				continue
			}
			if v := cell(row, i); v != "" {
				if p.Extra == nil {
					p.Extra = make(map[string]string)
				}
				p.Extra[name] = v
			}
		}
		products = append(products, p)
	}
	return products, nil
}

// LoadProductNumbers reads the distinct, non-blank values of idColumn from
// the first sheet of any workbook, e.g. a previous result file.
func LoadProductNumbers(path, idColumn string) ([]string, error) {
	rows, err := readRows(path, "")
	if err != nil {
		return nil, err
	}
	index := headerIndex(rows[0])
	if err := requireColumns(path, rows[0], index, idColumn); err != nil {
		return nil, err
	}

	var numbers []string
	for _, row := range rows[1:] {
		if n := cell(row, index[idColumn]); n != "" {
			numbers = append(numbers, n)
		}
	}
	return utils.UniqueStrings(numbers), nil
}

// FilterProducts drops products listed in exclude and products whose number
// starts with one of skipPrefixes. It returns the kept products in order and
// the number dropped.
func FilterProducts(products []models.Product, exclude []string, skipPrefixes []string) ([]models.Product, int) {
	excluded := make(map[string]bool, len(exclude))
	for _, n := range exclude {
		excluded[n] = true
	}

	kept := make([]models.Product, 0, len(products))
	for _, p := range products {
		if excluded[p.Number] || utils.HasAnyPrefix(p.Number, skipPrefixes) {
			continue
		}
		kept = append(kept, p)
	}
	return kept, len(products) - len(kept)
}
