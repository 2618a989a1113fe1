// Package merger combines result sets from several scrape runs into one set
// keyed by product number.
package merger

import (
	"slices"

	"SupplyScraper/internal/errors"
	"SupplyScraper/internal/models"
	"SupplyScraper/pkg/config"
)

// Options controls how overlapping products are combined.
type Options struct {
	// Policy is config.PolicyLast or config.PolicyFirst. Empty means last.
	Policy string
	// Strict turns the first field conflict into an errors.ErrKeyConflict.
	Strict bool
}

// Conflict records two present values that disagreed for one field.
type Conflict struct {
	Number  string
	Field   string
	Kept    string
	Dropped string
	// Source is the index of the set whose record raised the conflict.
	Source int
}

// Report summarises a merge.
type Report struct {
	Sources   int
	Records   int
	Keys      int
	Conflicts []Conflict
}

// Merge unions sets on product number. Keys and columns keep the order in
// which they first appear across sets, taken in slice order. For a key seen
// more than once, each field keeps a present value over an absent one and
// resolves disagreements per opts.Policy. The status is the best one seen,
// with its error message.
//
// The result is a fresh set; inputs are not modified.
func Merge(sets []*models.ResultSet, opts Options) (*models.ResultSet, Report, error) {
	policy := opts.Policy
	if policy == "" {
		policy = config.PolicyLast
	}
	if policy != config.PolicyLast && policy != config.PolicyFirst {
		return nil, Report{}, errors.Newf("unknown merge policy %q", policy)
	}

	report := Report{Sources: len(sets)}
	merged := models.NewResultSet()
	merged.Columns = mergeColumns(sets)
	merged.Kinds = mergeKinds(sets, merged.Columns)

	index := make(map[string]int)
	for src, set := range sets {
		for _, r := range set.Results {
			report.Records++
			i, seen := index[r.Number]
			if !seen {
				index[r.Number] = len(merged.Results)
				merged.Results = append(merged.Results, clone(r))
				continue
			}

			conflicts := fold(&merged.Results[i], r, merged.Columns, policy, src)
			if len(conflicts) > 0 && opts.Strict {
				c := conflicts[0]
				return nil, report, errors.WithHint(
					errors.Wrapf(errors.ErrKeyConflict, "product %s field %s: %q vs %q", c.Number, c.Field, c.Kept, c.Dropped),
					"Merge without --strict to resolve conflicts by policy.",
				)
			}
			report.Conflicts = append(report.Conflicts, conflicts...)
		}
	}

	report.Keys = len(merged.Results)
	return merged, report, nil
}

// fold merges next into acc and returns the field conflicts it resolved, in
// column order.
func fold(acc *models.ScrapeResult, next models.ScrapeResult, columns []string, policy string, src int) []Conflict {
	var conflicts []Conflict
	for _, name := range columns {
		v, present := next.Fields[name]
		if !present {
			continue
		}
		cur, ok := acc.Fields[name]
		switch {
		case !ok:
			acc.Fields[name] = v
		case cur == v:
		case policy == config.PolicyLast:
			conflicts = append(conflicts, Conflict{Number: acc.Number, Field: name, Kept: v, Dropped: cur, Source: src})
			acc.Fields[name] = v
		default:
			conflicts = append(conflicts, Conflict{Number: acc.Number, Field: name, Kept: cur, Dropped: v, Source: src})
		}
	}

	if next.Status.Rank() > acc.Status.Rank() {
		acc.Status = next.Status
		acc.Error = next.Error
	}
	return conflicts
}

func clone(r models.ScrapeResult) models.ScrapeResult {
	fields := make(models.Fields, len(r.Fields))
	for k, v := range r.Fields {
		fields[k] = v
	}
	r.Fields = fields
	return r
}

func mergeColumns(sets []*models.ResultSet) []string {
	var columns []string
	seen := make(map[string]bool)
	for _, set := range sets {
		for _, c := range set.Columns {
			if !seen[c] {
				seen[c] = true
				columns = append(columns, c)
			}
		}
	}
	return columns
}

// mergeKinds keeps a column numeric only when every set carrying it agrees.
func mergeKinds(sets []*models.ResultSet, columns []string) map[string]models.FieldKind {
	kinds := make(map[string]models.FieldKind)
	for _, c := range columns {
		numeric := true
		for _, set := range sets {
			if slices.Contains(set.Columns, c) && set.Kind(c) != models.KindNumber {
				numeric = false
				break
			}
		}
		if numeric {
			kinds[c] = models.KindNumber
		}
	}
	return kinds
}
