package scraper

import (
	"regexp"
	"strings"

	"SupplyScraper/internal/errors"
	"SupplyScraper/pkg/config"
	"SupplyScraper/utils"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// ParseDocument parses page HTML into a queryable document.
func ParseDocument(raw string) (*goquery.Document, error) {
	node, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(err, "parse page HTML")
	}
	return goquery.NewDocumentFromNode(node), nil
}

// Page is a parsed product page plus the product's row in the page's
// product table, located on first use.
type Page struct {
	Doc           *goquery.Document
	tableSelector string
	number        string

	located bool
	columns map[string]int
	cells   *goquery.Selection
}

// NewPage wraps doc for the product with the given number.
func NewPage(doc *goquery.Document, tableSelector, number string) *Page {
	return &Page{Doc: doc, tableSelector: tableSelector, number: number}
}

// productRow returns the header map and the cells of the product's row.
// The header comes from thead, or from the first body row when the table
// has no thead. The row is the first whose cell text equals the product
// number, falling back to the first cell containing it. Header and data
// cells are both counted over th and td so a row led by a th stays aligned.
func (p *Page) productRow() (map[string]int, *goquery.Selection, error) {
	if p.located {
		if p.cells == nil {
			return nil, nil, errors.Wrapf(errors.ErrExtractionMiss, "no row for %s in %q", p.number, p.tableSelector)
		}
		return p.columns, p.cells, nil
	}
	p.located = true

	table := p.Doc.Find(p.tableSelector).First()
	if table.Length() == 0 {
		return nil, nil, errors.Wrapf(errors.ErrExtractionMiss, "table %q not on page", p.tableSelector)
	}

	headers := table.Find("thead th")
	if headers.Length() == 0 {
		headers = rowCells(table.Find("tbody > tr").First())
	}
	p.columns = make(map[string]int)
	headers.Each(func(i int, h *goquery.Selection) {
		name := utils.NormalizeHeader(h.Text())
		if _, ok := p.columns[name]; name != "" && !ok {
			p.columns[name] = i
		}
	})

	rows := table.Find("tbody > tr")
	var exact, partial *goquery.Selection
	rows.EachWithBreak(func(_ int, row *goquery.Selection) bool {
		rowCells(row).EachWithBreak(func(_ int, td *goquery.Selection) bool {
			text := utils.CollapseSpace(td.Text())
			if text == p.number {
				exact = row
				return false
			}
			if partial == nil && strings.Contains(text, p.number) {
				partial = row
			}
			return true
		})
		return exact == nil
	})

	row := exact
	if row == nil {
		row = partial
	}
	if row == nil {
		return nil, nil, errors.Wrapf(errors.ErrExtractionMiss, "no row for %s in %q", p.number, p.tableSelector)
	}
	p.cells = rowCells(row)
	return p.columns, p.cells, nil
}

func rowCells(row *goquery.Selection) *goquery.Selection {
	return row.Children().Filter("th, td")
}

// Rule is a compiled extraction rule.
type Rule struct {
	config.RuleConfig
	match        *regexp.Regexp
	allowed      map[string]bool
	decimalComma bool
}

// CompileRules prepares the site's rule configs for use.
func CompileRules(site config.SiteConfig) ([]Rule, error) {
	rules := make([]Rule, 0, len(site.Rules))
	for _, c := range site.Rules {
		r := Rule{RuleConfig: c, decimalComma: site.DecimalComma}
		if c.Match != "" {
			re, err := regexp.Compile(c.Match)
			if err != nil {
				return nil, errors.Wrapf(err, "rule %s: match pattern", c.Name)
			}
			r.match = re
		}
		if len(c.Allowed) > 0 {
			r.allowed = make(map[string]bool, len(c.Allowed))
			for _, a := range c.Allowed {
				r.allowed[a] = true
			}
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Apply extracts the rule's value from page. Any miss, including a value
// rejected by the rule's filters, is an errors.ErrExtractionMiss.
func (r Rule) Apply(page *Page) (string, error) {
	raw, err := r.lookup(page)
	if err != nil {
		return "", err
	}
	if raw == "" {
		return "", errors.Wrapf(errors.ErrExtractionMiss, "%s: empty value", r.Name)
	}
	if r.match != nil && !r.match.MatchString(raw) {
		return "", errors.Wrapf(errors.ErrExtractionMiss, "%s: %q does not match %s", r.Name, raw, r.Match)
	}
	if r.allowed != nil && !r.allowed[raw] {
		return "", errors.Wrapf(errors.ErrExtractionMiss, "%s: %q is not an allowed value", r.Name, raw)
	}
	if r.Type == config.TypeNumber {
		n, ok := utils.NormalizeNumber(raw, r.decimalComma)
		if !ok {
			return "", errors.Wrapf(errors.ErrExtractionMiss, "%s: %q is not a number", r.Name, raw)
		}
		return n, nil
	}
	return raw, nil
}

func (r Rule) lookup(page *Page) (string, error) {
	switch r.Kind {
	case config.RuleSelector:
		sel := page.Doc.Find(r.Selector).First()
		if sel.Length() == 0 {
			return "", errors.Wrapf(errors.ErrExtractionMiss, "%s: selector %q matched nothing", r.Name, r.Selector)
		}
		if r.Attr != "" {
			v, ok := sel.Attr(r.Attr)
			if !ok {
				return "", errors.Wrapf(errors.ErrExtractionMiss, "%s: attribute %q missing", r.Name, r.Attr)
			}
			return strings.TrimSpace(v), nil
		}
		return utils.CollapseSpace(sel.Text()), nil

	case config.RuleTableColumn:
		columns, cells, err := page.productRow()
		if err != nil {
			return "", err
		}
		idx, ok := columns[utils.NormalizeHeader(r.Header)]
		if !ok || r.Header == "" || idx >= cells.Length() {
			if r.FallbackIndex == nil {
				return "", errors.Wrapf(errors.ErrExtractionMiss, "%s: no column %q", r.Name, r.Header)
			}
			idx = *r.FallbackIndex
		}
		if idx < 0 || idx >= cells.Length() {
			return "", errors.Wrapf(errors.ErrExtractionMiss, "%s: row has no cell %d", r.Name, idx)
		}
		return utils.CollapseSpace(cells.Eq(idx).Text()), nil

	default:
		return "", errors.Newf("%s: unknown rule kind %q", r.Name, r.Kind)
	}
}
