// Package errors provides error handling for the scrape pipeline.
//
// It re-exports github.com/cockroachdb/errors and defines the pipeline's
// error taxonomy. Run-level errors (file format, missing column, session,
// key conflict) abort a run; record-level errors (fetch, not found,
// extraction miss) are downgraded to a status marker on the result.
//
//	if err := load(); err != nil {
//	    return errors.Wrap(err, "load input")
//	}
//	if errors.Is(err, errors.ErrMissingColumn) { ... }
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Mark           = crdb.Mark
	UnwrapAll      = crdb.UnwrapAll
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
)

var (
	// ErrFileFormat indicates an input or output workbook that cannot be
	// read or written.
	ErrFileFormat = New("file format error")

	// ErrMissingColumn indicates a required column is absent from the
	// input workbook.
	ErrMissingColumn = New("missing column")

	// ErrExtractionMiss indicates one extraction rule matched nothing.
	ErrExtractionMiss = New("extraction miss")

	// ErrFetch indicates a network or browser failure for one product.
	ErrFetch = New("fetch error")

	// ErrNotFound indicates the site has no page for the product.
	ErrNotFound = New("product not found")

	// ErrSession indicates the browser or HTTP session could not be created.
	ErrSession = New("session error")

	// ErrKeyConflict indicates two merge sources disagree on a field value.
	ErrKeyConflict = New("key conflict")
)

// IsFatal reports whether err aborts a whole run rather than a single record.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !IsAny(err, ErrFetch, ErrNotFound, ErrExtractionMiss)
}
