package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Product is one row of the input product list.
type Product struct {
	// Number is the product number, kept as text to preserve its format.
	Number      string
	Description string
	Supplier    string
	// Row is the 1-based worksheet row the product was read from.
	Row int
	// Extra holds the remaining input columns, keyed by header.
	Extra map[string]string
}

// Status marks the outcome of scraping one product.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Rank orders statuses from least to most informative. Unknown statuses,
// e.g. from result files written without a status column, rank lowest.
func (s Status) Rank() int {
	switch s {
	case StatusSuccess:
		return 3
	case StatusNotFound:
		return 2
	case StatusError:
		return 1
	default:
		return 0
	}
}

// Fields maps a field name to its extracted value. A missing key means the
// value is absent.
type Fields map[string]string

// Value implements the driver.Valuer interface to store Fields as JSON.
func (f Fields) Value() (driver.Value, error) {
	if f == nil {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface to read Fields from JSON.
func (f *Fields) Scan(value interface{}) error {
	if value == nil {
		*f = nil
		return nil
	}
	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("unsupported type for Fields")
	}
	return json.Unmarshal(bytes, f)
}

// ScrapeResult is the outcome of scraping one product.
type ScrapeResult struct {
	Number string
	Fields Fields
	Status Status
	// Error describes the failure when Status is StatusError.
	Error string
}

// Get returns a field value and whether it is present.
func (r ScrapeResult) Get(name string) (string, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// FieldKind tells writers how to store a field's values.
type FieldKind string

const (
	KindText   FieldKind = "text"
	KindNumber FieldKind = "number"
)

// ResultSet is an ordered collection of results sharing one set of field
// columns. Product numbers are unique within a set.
type ResultSet struct {
	Columns []string
	Kinds   map[string]FieldKind
	Results []ScrapeResult
}

// NewResultSet returns an empty set with the given columns, all text.
func NewResultSet(columns ...string) *ResultSet {
	return &ResultSet{
		Columns: columns,
		Kinds:   make(map[string]FieldKind),
	}
}

// Kind returns the kind of a column, defaulting to text.
func (s *ResultSet) Kind(column string) FieldKind {
	if k, ok := s.Kinds[column]; ok {
		return k
	}
	return KindText
}

// Numbers returns the product numbers in set order.
func (s *ResultSet) Numbers() []string {
	numbers := make([]string, 0, len(s.Results))
	for _, r := range s.Results {
		numbers = append(numbers, r.Number)
	}
	return numbers
}

// StatusCounts tallies results per status.
func (s *ResultSet) StatusCounts() map[Status]int {
	counts := make(map[Status]int)
	for _, r := range s.Results {
		counts[r.Status]++
	}
	return counts
}
