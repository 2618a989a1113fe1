package sheet

import (
	"strconv"
	"strings"

	"SupplyScraper/internal/models"
)

// ReadResults reads a result workbook written by WriteResults, or any
// workbook with an idColumn header. The status and error columns are
// optional; every other named column is a field. Empty cells are absent
// values and rows with a blank product number are skipped.
//
// Rows are returned as stored; a file built by concatenating runs may repeat
// a product number, which the merger folds together.
func ReadResults(path, idColumn string) (*models.ResultSet, error) {
	rows, err := readRows(path, "")
	if err != nil {
		return nil, err
	}

	header := rows[0]
	index := headerIndex(header)
	if err := requireColumns(path, header, index, idColumn); err != nil {
		return nil, err
	}

	idIdx := index[idColumn]
	statusIdx, errorIdx := -1, -1
	if i, ok := index[StatusColumn]; ok {
		statusIdx = i
	}
	if i, ok := index[ErrorColumn]; ok {
		errorIdx = i
	}

	set := models.NewResultSet()
	fieldIdx := make(map[string]int)
	for i, h := range header {
		h = strings.TrimSpace(h)
		if h == "" || i == idIdx || i == statusIdx || i == errorIdx {
			continue
		}
		if _, dup := fieldIdx[h]; dup {
			continue
		}
		fieldIdx[h] = i
		set.Columns = append(set.Columns, h)
	}

	for _, row := range rows[1:] {
		number := cell(row, idIdx)
		if number == "" {
			continue
		}
		r := models.ScrapeResult{
			Number: number,
			Fields: make(models.Fields),
			Status: models.Status(cell(row, statusIdx)),
			Error:  cell(row, errorIdx),
		}
		for _, c := range set.Columns {
			if v := cell(row, fieldIdx[c]); v != "" {
				r.Fields[c] = v
			}
		}
		set.Results = append(set.Results, r)
	}

	for _, c := range set.Columns {
		if numericColumn(set.Results, c) {
			set.Kinds[c] = models.KindNumber
		}
	}
	return set, nil
}

// numericColumn reports whether every present value of column is a number
// in canonical form, so writing it back as a numeric cell loses nothing.
// "007" or "1,5" stay text.
func numericColumn(results []models.ScrapeResult, column string) bool {
	present := false
	for _, r := range results {
		v, ok := r.Fields[column]
		if !ok {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || strconv.FormatFloat(n, 'f', -1, 64) != v {
			return false
		}
		present = true
	}
	return present
}
