package app

import (
	"context"
	"io"
	"os"
	"time"

	"SupplyScraper/internal/checkpoint"
	"SupplyScraper/internal/errors"
	"SupplyScraper/internal/logger"
	"SupplyScraper/internal/merger"
	"SupplyScraper/internal/models"
	"SupplyScraper/internal/scraper"
	"SupplyScraper/internal/sheet"
	"SupplyScraper/pkg/config"
	"SupplyScraper/utils"

	"go.uber.org/zap"
)

// App is the main application structure holding all dependencies.
type App struct {
	Config *config.Config
	Log    *zap.SugaredLogger
	// Open creates the scrape session. Nil selects one by Config.Scraper.Driver.
	Open scraper.OpenFunc
	// Out receives the run summary tables.
	Out io.Writer
}

// New creates a new application instance for cfg.
func New(cfg *config.Config) *App {
	return &App{
		Config: cfg,
		Log:    logger.Named("app"),
		Out:    os.Stdout,
	}
}

// ScrapeOptions are the per-invocation switches of RunScrape.
type ScrapeOptions struct {
	// Exclude is a workbook whose product numbers are not scraped again.
	Exclude string
	// Resume continues the latest unfinished run for the same output file.
	Resume bool
}

// ScrapeSummary describes a finished or interrupted scrape run.
type ScrapeSummary struct {
	RunID       string
	Output      string
	Loaded      int
	Excluded    int
	Reused      int
	Scraped     int
	Written     int
	Counts      map[models.Status]int
	Interrupted bool
	Duration    time.Duration
}

// RunScrape loads the product list at inputPath, scrapes every product and
// writes one result row per product to the configured output file.
//
// Results are flushed to the output file every Output.SaveInterval. When ctx
// is cancelled mid-run, the rows finished so far are written, the run is
// marked failed and the context error is returned.
func (a *App) RunScrape(ctx context.Context, inputPath string, opts ScrapeOptions) (ScrapeSummary, error) {
	start := time.Now()
	cfg := a.Config
	summary := ScrapeSummary{Output: cfg.Output.Path}

	loaded, err := sheet.LoadProducts(inputPath, cfg.Input)
	if err != nil {
		return summary, err
	}
	summary.Loaded = len(loaded)

	var exclude []string
	if opts.Exclude != "" {
		if exclude, err = sheet.LoadProductNumbers(opts.Exclude, cfg.Input.IDColumn); err != nil {
			return summary, errors.Wrap(err, "load exclude list")
		}
	}
	products, excluded := sheet.FilterProducts(loaded, exclude, cfg.Input.SkipPrefixes)
	summary.Excluded = excluded
	a.Log.Infow("Loaded product list",
		logger.FieldFile, inputPath,
		logger.FieldTotalCount, len(loaded),
		logger.FieldCount, len(products),
		"excluded", excluded,
	)

	run, err := a.startRun(cfg.Output.CheckpointDB, cfg.Output.Path, len(products), opts.Resume)
	if err != nil {
		return summary, err
	}
	defer run.close()
	summary.RunID = run.id
	log := a.Log.With(logger.FieldRunID, run.id)

	results := make([]models.ScrapeResult, len(products))
	done := make([]bool, len(products))
	var pending []int
	for i, p := range products {
		if prev, ok := run.previous[i]; ok && prev.Number == p.Number {
			results[i], done[i] = prev, true
			summary.Reused++
			continue
		}
		pending = append(pending, i)
	}
	if summary.Reused > 0 {
		log.Infow("Reusing checkpointed results", logger.FieldCount, summary.Reused)
	}

	set := scraper.ResultSetFor(cfg.Site.Rules)
	flush := func() error {
		set.Results = set.Results[:0]
		for i, r := range results {
			if done[i] {
				set.Results = append(set.Results, r)
			}
		}
		summary.Written = len(set.Results)
		return sheet.WriteResults(cfg.Output.Path, cfg.Input.IDColumn, set)
	}

	if len(pending) > 0 {
		err = scraper.WithSession(ctx, a.opener(), log, func(session scraper.Session) error {
			s, err := scraper.New(session, cfg.Site, scraper.NewPacer(cfg.Scraper.MinDelay, cfg.Scraper.MaxDelay, cfg.Scraper.MaxPerMinute), log.Named("scraper"))
			if err != nil {
				return err
			}

			batch := make([]models.Product, len(pending))
			for j, i := range pending {
				batch[j] = products[i]
			}

			lastFlush := time.Now()
			for j, result := range s.Scrape(ctx, batch) {
				i := pending[j]
				results[i], done[i] = result, true
				summary.Scraped++
				run.save(log, i, result)

				if cfg.Output.SaveInterval > 0 && time.Since(lastFlush) >= cfg.Output.SaveInterval {
					if err := flush(); err != nil {
						return errors.Wrap(err, "periodic save")
					}
					lastFlush = time.Now()
					log.Infow("Saved progress", logger.FieldFile, cfg.Output.Path, logger.FieldCount, summary.Written)
				}
			}
			return nil
		})
		if err != nil {
			run.finish(log, checkpoint.StateFailed)
			return summary, err
		}
	}

	if err := flush(); err != nil {
		run.finish(log, checkpoint.StateFailed)
		return summary, err
	}
	summary.Counts = set.StatusCounts()
	summary.Duration = time.Since(start)

	if ctx.Err() != nil {
		summary.Interrupted = true
		run.finish(log, checkpoint.StateFailed)
		log.Warnw("Scrape interrupted, partial results saved",
			logger.FieldFile, cfg.Output.Path,
			logger.FieldCount, summary.Written,
			logger.FieldTotalCount, len(products),
		)
		return summary, errors.Wrap(ctx.Err(), "scrape interrupted")
	}

	run.finish(log, checkpoint.StateCompleted)
	log.Infow("Scrape finished",
		logger.FieldFile, cfg.Output.Path,
		logger.FieldCount, summary.Written,
		logger.FieldDurationMS, summary.Duration.Milliseconds(),
	)
	return summary, nil
}

func (a *App) opener() scraper.OpenFunc {
	if a.Open != nil {
		return a.Open
	}
	sc := a.Config.Scraper
	if sc.Driver == config.DriverHTTP {
		return scraper.HTTPOpener(sc, a.Config.Site, a.Log.Named("http"))
	}
	utils.CheckHostResources(a.Log, sc.MinFreeMemoryMB)
	return scraper.BrowserOpener(sc, a.Config.Site, a.Log.Named("browser"))
}

// MergeSummary describes a merge invocation.
type MergeSummary struct {
	Output string
	Inputs []string
	Counts map[models.Status]int
	Report merger.Report
}

// RunMerge reads the result workbooks at paths, merges them in order and
// writes the merged set to out.
func (a *App) RunMerge(paths []string, out string, opts merger.Options) (MergeSummary, error) {
	summary := MergeSummary{Output: out, Inputs: paths}
	if len(paths) == 0 {
		return summary, errors.New("no result files to merge")
	}

	sets := make([]*models.ResultSet, 0, len(paths))
	for _, p := range paths {
		set, err := sheet.ReadResults(p, a.Config.Input.IDColumn)
		if err != nil {
			return summary, err
		}
		a.Log.Infow("Read result file", logger.FieldFile, p, logger.FieldCount, len(set.Results))
		sets = append(sets, set)
	}

	merged, report, err := merger.Merge(sets, opts)
	summary.Report = report
	if err != nil {
		return summary, err
	}
	for _, c := range report.Conflicts {
		a.Log.Debugw("Resolved field conflict",
			logger.FieldProduct, c.Number,
			logger.FieldField, c.Field,
			"kept", c.Kept,
			"dropped", c.Dropped,
		)
	}

	if err := sheet.WriteResults(out, a.Config.Input.IDColumn, merged); err != nil {
		return summary, err
	}
	summary.Counts = merged.StatusCounts()
	a.Log.Infow("Merged result files",
		logger.FieldFile, out,
		logger.FieldCount, report.Keys,
		"sources", report.Sources,
		"conflicts", len(report.Conflicts),
	)
	return summary, nil
}
