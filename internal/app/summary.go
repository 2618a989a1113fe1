package app

import (
	"fmt"
	"time"

	"SupplyScraper/internal/models"

	"github.com/jedib0t/go-pretty/v6/table"
)

var statusOrder = []models.Status{models.StatusSuccess, models.StatusNotFound, models.StatusError}

// PrintScrapeSummary renders s as a table on a.Out.
func (a *App) PrintScrapeSummary(s ScrapeSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(a.Out)
	t.SetTitle("Scrape run")
	t.AppendRows([]table.Row{
		{"Run", s.RunID},
		{"Output", s.Output},
		{"Products loaded", s.Loaded},
		{"Excluded", s.Excluded},
		{"Reused from checkpoint", s.Reused},
		{"Scraped", s.Scraped},
		{"Rows written", s.Written},
	})
	t.AppendSeparator()
	for _, st := range statusOrder {
		t.AppendRow(table.Row{string(st), s.Counts[st]})
	}
	t.AppendSeparator()
	if s.Interrupted {
		t.AppendRow(table.Row{"Result", "interrupted, partial file"})
	} else {
		t.AppendRow(table.Row{"Result", "completed"})
	}
	t.AppendRow(table.Row{"Duration", s.Duration.Round(time.Millisecond).String()})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

// PrintMergeSummary renders s as a table on a.Out.
func (a *App) PrintMergeSummary(s MergeSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(a.Out)
	t.SetTitle("Merge")
	t.AppendHeader(table.Row{"#", "Source"})
	for i, p := range s.Inputs {
		t.AppendRow(table.Row{i + 1, p})
	}
	t.AppendSeparator()
	t.AppendRow(table.Row{"Output", s.Output})
	t.AppendRow(table.Row{"Records read", s.Report.Records})
	t.AppendRow(table.Row{"Products", s.Report.Keys})
	t.AppendRow(table.Row{"Conflicts", len(s.Report.Conflicts)})
	for _, st := range statusOrder {
		t.AppendRow(table.Row{string(st), s.Counts[st]})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
	if n := len(s.Report.Conflicts); n > 0 {
		fmt.Fprintf(a.Out, "%d field conflicts resolved by policy; run with --verbose to list them.\n", n)
	}
}
