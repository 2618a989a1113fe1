package scraper

import (
	"context"
	"fmt"
	"testing"

	"SupplyScraper/internal/errors"
	"SupplyScraper/internal/models"
	"SupplyScraper/pkg/config"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeSession serves canned pages keyed by product number.
type fakeSession struct {
	pages   map[string]string
	errs    map[string]error
	fetched []string
	closed  int
	// onFetch runs before each fetch returns.
	onFetch func(number string)
}

func (f *fakeSession) Fetch(_ context.Context, p models.Product, _ string) (string, error) {
	f.fetched = append(f.fetched, p.Number)
	if f.onFetch != nil {
		f.onFetch(p.Number)
	}
	if err, ok := f.errs[p.Number]; ok {
		return "", err
	}
	if html, ok := f.pages[p.Number]; ok {
		return html, nil
	}
	return "<html><body></body></html>", nil
}

func (f *fakeSession) Close() error {
	f.closed++
	return nil
}

var testSite = config.SiteConfig{
	URLTemplate:   "https://shop.test/p/{number}",
	TableSelector: "table",
	Rules: []config.RuleConfig{
		{Name: "lengthM", Kind: config.RuleTableColumn, Header: "length", Type: config.TypeNumber},
		{Name: "unit", Kind: config.RuleTableColumn, Header: "unit"},
	},
}

func productPage(number, length, unit string) string {
	return fmt.Sprintf(`<html><body><table><thead><tr><th>No</th><th>Length</th><th>Unit</th></tr></thead>
<tbody><tr><td>%s</td><td>%s</td><td>%s</td></tr></tbody></table></body></html>`, number, length, unit)
}

func nopLog() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func products(numbers ...string) []models.Product {
	out := make([]models.Product, len(numbers))
	for i, n := range numbers {
		out[i] = models.Product{Number: n, Row: i + 2}
	}
	return out
}

func newScraper(t *testing.T, session Session) *Scraper {
	t.Helper()
	s, err := New(session, testSite, NewPacer(0, 0, 0), nopLog())
	require.NoError(t, err)
	return s
}

func collect(ctx context.Context, s *Scraper, ps []models.Product) ([]int, []models.ScrapeResult) {
	var idx []int
	var results []models.ScrapeResult
	for i, r := range s.Scrape(ctx, ps) {
		idx = append(idx, i)
		results = append(results, r)
	}
	return idx, results
}

func TestScrapeStatuses(t *testing.T) {
	session := &fakeSession{
		pages: map[string]string{
			"P1": productPage("P1", "12,5", "m"),
			"P3": productPage("P3", "", ""),
			"P4": productPage("P4", "n/a", "rolls"),
		},
		errs: map[string]error{
			"P2": errors.Mark(errors.New("timeout waiting for table"), errors.ErrFetch),
			"P5": errors.Mark(errors.New("no suggestion"), errors.ErrNotFound),
		},
	}
	s := newScraper(t, session)

	idx, results := collect(context.Background(), s, products("P1", "P2", "P3", "P4", "P5"))

	assert.Equal(t, []int{0, 1, 2, 3, 4}, idx)
	want := []models.ScrapeResult{
		{Number: "P1", Fields: models.Fields{"lengthM": "12.5", "unit": "m"}, Status: models.StatusSuccess},
		{Number: "P2", Fields: models.Fields{}, Status: models.StatusError, Error: "timeout waiting for table"},
		{Number: "P3", Fields: models.Fields{}, Status: models.StatusNotFound},
		{Number: "P4", Fields: models.Fields{"unit": "rolls"}, Status: models.StatusSuccess},
		{Number: "P5", Fields: models.Fields{}, Status: models.StatusNotFound},
	}
	if diff := cmp.Diff(want, results); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"P1", "P2", "P3", "P4", "P5"}, session.fetched)
}

func TestScrapeUnclassifiedFetchError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	session := &fakeSession{
		pages: map[string]string{"B": productPage("B", "3", "m")},
		errs:  map[string]error{"A": errors.New("browser tab crashed")},
	}
	s, err := New(session, testSite, NewPacer(0, 0, 0), zap.New(core).Sugar())
	require.NoError(t, err)

	_, results := collect(context.Background(), s, products("A", "B"))

	require.Len(t, results, 2)
	assert.Equal(t, models.StatusError, results[0].Status)
	assert.Equal(t, "browser tab crashed", results[0].Error)
	assert.Equal(t, models.StatusSuccess, results[1].Status)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.ErrorLevel).Len())
}

func TestScrapeEmptyInput(t *testing.T) {
	session := &fakeSession{}
	s := newScraper(t, session)

	idx, _ := collect(context.Background(), s, nil)
	assert.Empty(t, idx)
	assert.Empty(t, session.fetched)
}

func TestScrapeStopsWhenConsumerStops(t *testing.T) {
	session := &fakeSession{}
	s := newScraper(t, session)

	for i := range s.Scrape(context.Background(), products("A", "B", "C")) {
		if i == 1 {
			break
		}
	}
	assert.Equal(t, []string{"A", "B"}, session.fetched)
}

func TestScrapeCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	session := &fakeSession{
		onFetch: func(number string) {
			if number == "B" {
				cancel()
			}
		},
	}
	s := newScraper(t, session)

	idx, results := collect(ctx, s, products("A", "B", "C"))
	assert.Equal(t, []int{0}, idx, "the interrupted product is not yielded")
	assert.Equal(t, "A", results[0].Number)
	assert.Equal(t, []string{"A", "B"}, session.fetched)
}

func TestScrapeBadTarget(t *testing.T) {
	site := testSite
	site.URLTemplate = "/relative/{number}"
	session := &fakeSession{}
	s, err := New(session, site, NewPacer(0, 0, 0), nopLog())
	require.NoError(t, err)

	r := s.ScrapeProduct(context.Background(), models.Product{Number: "A"})
	assert.Equal(t, models.StatusError, r.Status)
	assert.NotEmpty(t, r.Error)
	assert.Empty(t, session.fetched)
}

func TestResultSetFor(t *testing.T) {
	set := ResultSetFor(testSite.Rules)
	assert.Equal(t, []string{"lengthM", "unit"}, set.Columns)
	assert.Equal(t, models.KindNumber, set.Kind("lengthM"))
	assert.Equal(t, models.KindText, set.Kind("unit"))
}

func TestWithSession(t *testing.T) {
	log := nopLog()

	t.Run("Closes After Use", func(t *testing.T) {
		session := &fakeSession{}
		err := WithSession(context.Background(), func(context.Context) (Session, error) {
			return session, nil
		}, log, func(Session) error {
			return errors.New("boom")
		})
		assert.EqualError(t, err, "boom")
		assert.Equal(t, 1, session.closed)
	})

	t.Run("Closes On Panic", func(t *testing.T) {
		session := &fakeSession{}
		assert.Panics(t, func() {
			_ = WithSession(context.Background(), func(context.Context) (Session, error) {
				return session, nil
			}, log, func(Session) error {
				panic("boom")
			})
		})
		assert.Equal(t, 1, session.closed)
	})

	t.Run("Open Failure", func(t *testing.T) {
		called := false
		err := WithSession(context.Background(), func(context.Context) (Session, error) {
			return nil, errors.New("chrome not found")
		}, log, func(Session) error {
			called = true
			return nil
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrSession))
		assert.True(t, errors.IsFatal(err))
		assert.False(t, called)
	})
}
