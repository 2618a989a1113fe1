package app

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"SupplyScraper/internal/checkpoint"
	"SupplyScraper/internal/errors"
	"SupplyScraper/internal/merger"
	"SupplyScraper/internal/models"
	"SupplyScraper/internal/scraper"
	"SupplyScraper/internal/sheet"
	"SupplyScraper/pkg/config"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// fakeSession serves a product table per product number; numbers listed in
// fail time out.
type fakeSession struct {
	lengths map[string]string
	fail    map[string]bool
	fetched []string
	closed  bool
	onFetch func(number string)
}

func (f *fakeSession) Fetch(_ context.Context, p models.Product, _ string) (string, error) {
	f.fetched = append(f.fetched, p.Number)
	if f.onFetch != nil {
		f.onFetch(p.Number)
	}
	if f.fail[p.Number] {
		return "", errors.Mark(errors.New("timeout waiting for product table"), errors.ErrFetch)
	}
	length, ok := f.lengths[p.Number]
	if !ok {
		return "", errors.Mark(errors.New("no search suggestion"), errors.ErrNotFound)
	}
	return fmt.Sprintf(`<table><thead><tr><th>No</th><th>Length</th></tr></thead>
<tbody><tr><td>%s</td><td>%s</td></tr></tbody></table>`, p.Number, length), nil
}

func (f *fakeSession) Close() error {
	f.closed = true
	return nil
}

func newTestApp(t *testing.T, session scraper.Session) *App {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Scraper.MinDelay, cfg.Scraper.MaxDelay = 0, 0
	cfg.Site = config.SiteConfig{
		URLTemplate:   "https://shop.test/p/{number}",
		TableSelector: "table",
		Rules: []config.RuleConfig{
			{Name: "lengthM", Kind: config.RuleTableColumn, Header: "length", Type: config.TypeNumber},
		},
	}
	cfg.Input = config.InputConfig{IDColumn: "Varenr.", DescriptionColumn: "Beskrivelse"}
	cfg.Output = config.OutputConfig{
		Path:         filepath.Join(dir, "results.xlsx"),
		SaveInterval: time.Hour,
		CheckpointDB: filepath.Join(dir, "checkpoint.db"),
	}
	require.NoError(t, cfg.Validate())

	return &App{
		Config: cfg,
		Log:    zap.NewNop().Sugar(),
		Open: func(context.Context) (scraper.Session, error) {
			return session, nil
		},
		Out: &bytes.Buffer{},
	}
}

func writeInput(t *testing.T, rows ...[]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	all := append([][]interface{}{{"Varenr.", "Beskrivelse"}}, rows...)
	for i, row := range all {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", ref, &r))
	}
	path := filepath.Join(t.TempDir(), "input.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func readOutput(t *testing.T, a *App) []models.ScrapeResult {
	t.Helper()
	set, err := sheet.ReadResults(a.Config.Output.Path, a.Config.Input.IDColumn)
	require.NoError(t, err)
	return set.Results
}

var ignoreEmpty = cmpopts.EquateEmpty()

func TestRunScrapeWritesOneRowPerProduct(t *testing.T) {
	session := &fakeSession{
		lengths: map[string]string{"P1": "12,5"},
		fail:    map[string]bool{"P2": true},
	}
	a := newTestApp(t, session)
	input := writeInput(t, []interface{}{"P1", "Widget"}, []interface{}{"P2", "Gadget"})

	summary, err := a.RunScrape(context.Background(), input, ScrapeOptions{})
	require.NoError(t, err)

	assert.True(t, session.closed)
	assert.Equal(t, 2, summary.Written)
	assert.Equal(t, map[models.Status]int{models.StatusSuccess: 1, models.StatusError: 1}, summary.Counts)

	want := []models.ScrapeResult{
		{Number: "P1", Fields: models.Fields{"lengthM": "12.5"}, Status: models.StatusSuccess},
		{Number: "P2", Status: models.StatusError, Error: "timeout waiting for product table"},
	}
	if diff := cmp.Diff(want, readOutput(t, a), ignoreEmpty); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}

	a.PrintScrapeSummary(summary)
	out := a.Out.(*bytes.Buffer).String()
	assert.Contains(t, out, "completed")
	assert.Contains(t, out, summary.RunID)
	assert.Contains(t, out, summary.Output)
}

func TestRunScrapeSessionFailure(t *testing.T) {
	a := newTestApp(t, nil)
	a.Open = func(context.Context) (scraper.Session, error) {
		return nil, errors.New("chrome not installed")
	}
	input := writeInput(t, []interface{}{"P1", "Widget"})

	_, err := a.RunScrape(context.Background(), input, ScrapeOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSession))

	_, statErr := os.Stat(a.Config.Output.Path)
	assert.True(t, os.IsNotExist(statErr), "no output after a fatal error")
}

func TestRunScrapeMissingColumn(t *testing.T) {
	a := newTestApp(t, &fakeSession{})
	a.Config.Input.IDColumn = "Item"
	input := writeInput(t, []interface{}{"P1", "Widget"})

	_, err := a.RunScrape(context.Background(), input, ScrapeOptions{})
	assert.True(t, errors.Is(err, errors.ErrMissingColumn))
}

func TestRunScrapeInterruptAndResume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lengths := map[string]string{"A": "1", "B": "2", "C": "3"}
	first := &fakeSession{
		lengths: lengths,
		onFetch: func(number string) {
			if number == "B" {
				cancel()
			}
		},
	}
	a := newTestApp(t, first)
	input := writeInput(t, []interface{}{"A", "a"}, []interface{}{"B", "b"}, []interface{}{"C", "c"})

	summary, err := a.RunScrape(ctx, input, ScrapeOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, summary.Interrupted)
	assert.True(t, first.closed)

	partial := readOutput(t, a)
	require.Len(t, partial, 1, "partial file holds the finished rows")
	assert.Equal(t, "A", partial[0].Number)

	store, err := checkpoint.InitDB(a.Config.Output.CheckpointDB)
	require.NoError(t, err)
	run, ok, err := store.LatestUnfinished(a.Config.Output.Path)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, checkpoint.StateFailed, run.State)
	assert.Equal(t, summary.RunID, run.ID)
	require.NoError(t, store.Close())

	second := &fakeSession{lengths: lengths}
	a.Open = func(context.Context) (scraper.Session, error) { return second, nil }

	summary, err = a.RunScrape(context.Background(), input, ScrapeOptions{Resume: true})
	require.NoError(t, err)
	assert.Equal(t, run.ID, summary.RunID)
	assert.Equal(t, 1, summary.Reused)
	assert.Equal(t, []string{"B", "C"}, second.fetched)

	got := readOutput(t, a)
	assert.Equal(t, []string{"A", "B", "C"}, []string{got[0].Number, got[1].Number, got[2].Number})
	assert.Equal(t, "3", got[2].Fields["lengthM"])
}

func TestRunScrapeExclude(t *testing.T) {
	session := &fakeSession{lengths: map[string]string{"A": "1", "C": "3"}}
	a := newTestApp(t, session)
	a.Config.Input.SkipPrefixes = []string{"25"}

	input := writeInput(t,
		[]interface{}{"A", "a"},
		[]interface{}{"B", "b"},
		[]interface{}{"C", "c"},
		[]interface{}{"25001", "d"},
	)
	previous := writeInput(t, []interface{}{"B", "b"})

	summary, err := a.RunScrape(context.Background(), input, ScrapeOptions{Exclude: previous})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Loaded)
	assert.Equal(t, 2, summary.Excluded)
	assert.Equal(t, []string{"A", "C"}, session.fetched)
}

func TestRunScrapeNothingToDo(t *testing.T) {
	a := newTestApp(t, nil)
	a.Open = func(context.Context) (scraper.Session, error) {
		t.Fatal("no session needed for an empty list")
		return nil, nil
	}
	input := writeInput(t)

	summary, err := a.RunScrape(context.Background(), input, ScrapeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Written)
	assert.Empty(t, readOutput(t, a))
}

func TestRunMerge(t *testing.T) {
	a := newTestApp(t, nil)
	dir := t.TempDir()
	id := a.Config.Input.IDColumn

	first := models.NewResultSet("lengthM")
	first.Kinds["lengthM"] = models.KindNumber
	first.Results = []models.ScrapeResult{
		{Number: "A", Fields: models.Fields{"lengthM": "1"}, Status: models.StatusSuccess},
		{Number: "B", Fields: models.Fields{"lengthM": "2"}, Status: models.StatusSuccess},
	}
	second := models.NewResultSet("lengthM")
	second.Kinds["lengthM"] = models.KindNumber
	second.Results = []models.ScrapeResult{
		{Number: "B", Fields: models.Fields{"lengthM": "20"}, Status: models.StatusSuccess},
		{Number: "C", Status: models.StatusNotFound},
	}
	pathA, pathB := filepath.Join(dir, "a.xlsx"), filepath.Join(dir, "b.xlsx")
	require.NoError(t, sheet.WriteResults(pathA, id, first))
	require.NoError(t, sheet.WriteResults(pathB, id, second))
	out := filepath.Join(dir, "merged.xlsx")

	summary, err := a.RunMerge([]string{pathA, pathB}, out, merger.Options{Policy: config.PolicyLast})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Report.Keys)
	assert.Len(t, summary.Report.Conflicts, 1)

	merged, err := sheet.ReadResults(out, id)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, merged.Numbers())
	assert.Equal(t, "20", merged.Results[1].Fields["lengthM"])

	_, err = a.RunMerge([]string{pathA, pathB}, out, merger.Options{Strict: true})
	assert.True(t, errors.Is(err, errors.ErrKeyConflict))

	a.PrintMergeSummary(summary)
	assert.Contains(t, a.Out.(*bytes.Buffer).String(), "merged.xlsx")
}
