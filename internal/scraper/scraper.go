package scraper

import (
	"context"
	"iter"
	"time"

	"SupplyScraper/internal/errors"
	"SupplyScraper/internal/logger"
	"SupplyScraper/internal/models"
	"SupplyScraper/pkg/config"

	"go.uber.org/zap"
)

// Session is the one external resource a run talks to the supplier site
// through: a browser tab or an HTTP client. It is owned by a single run.
type Session interface {
	// Fetch loads the page for product and returns its HTML once the
	// site's ready content is present. Errors marked errors.ErrNotFound mean
	// the site has no page for the product; anything else is a fetch error.
	Fetch(ctx context.Context, product models.Product, target string) (string, error)
	Close() error
}

// OpenFunc creates a session.
type OpenFunc func(ctx context.Context) (Session, error)

// WithSession opens a session, runs fn with it and closes it on every exit
// path, including panics. A failure to open is marked errors.ErrSession and
// fn is never called.
func WithSession(ctx context.Context, open OpenFunc, log *zap.SugaredLogger, fn func(Session) error) error {
	session, err := open(ctx)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "open session"), errors.ErrSession)
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warnw("Failed to close session", logger.FieldError, err)
		}
	}()
	return fn(session)
}

// Scraper turns products into scrape results one at a time.
type Scraper struct {
	session Session
	site    config.SiteConfig
	rules   []Rule
	pacer   *Pacer
	log     *zap.SugaredLogger
}

// New returns a scraper for site that fetches through session. It fails when
// an extraction rule does not compile.
func New(session Session, site config.SiteConfig, pacer *Pacer, log *zap.SugaredLogger) (*Scraper, error) {
	rules, err := CompileRules(site)
	if err != nil {
		return nil, err
	}
	return &Scraper{
		session: session,
		site:    site,
		rules:   rules,
		pacer:   pacer,
		log:     log,
	}, nil
}

// NewResultSet returns an empty set with one column per extraction rule.
func (s *Scraper) NewResultSet() *models.ResultSet {
	return ResultSetFor(s.site.Rules)
}

// ResultSetFor returns an empty set with one column per rule, typed by the
// rule's value type.
func ResultSetFor(rules []config.RuleConfig) *models.ResultSet {
	set := models.NewResultSet()
	for _, r := range rules {
		set.Columns = append(set.Columns, r.Name)
		if r.Type == config.TypeNumber {
			set.Kinds[r.Name] = models.KindNumber
		}
	}
	return set
}

// Scrape lazily scrapes products in order, yielding each product's position
// in products and its result. Every product yields exactly one result
// whatever happens to its fetch; the pacer delay runs between products.
//
// The sequence stops early only when ctx is done, and then the product being
// fetched at that moment is not yielded.
func (s *Scraper) Scrape(ctx context.Context, products []models.Product) iter.Seq2[int, models.ScrapeResult] {
	return func(yield func(int, models.ScrapeResult) bool) {
		for i, p := range products {
			if ctx.Err() != nil {
				return
			}
			result := s.ScrapeProduct(ctx, p)
			if ctx.Err() != nil {
				return
			}
			if !yield(i, result) {
				return
			}
			if i < len(products)-1 {
				if err := s.pacer.Wait(ctx); err != nil {
					return
				}
			}
		}
	}
}

// ScrapeProduct fetches one product page and applies the extraction rules.
// It never fails: fetch problems become StatusError or StatusNotFound.
func (s *Scraper) ScrapeProduct(ctx context.Context, p models.Product) models.ScrapeResult {
	start := time.Now()
	log := s.log.With(logger.FieldProduct, p.Number, logger.FieldRow, p.Row)
	result := models.ScrapeResult{Number: p.Number, Fields: make(models.Fields)}

	target, err := BuildTarget(s.site, p)
	if err != nil {
		result.Status = models.StatusError
		result.Error = err.Error()
		log.Warnw("Could not build request target", logger.FieldError, err)
		return result
	}

	log.Debugw("Fetching product page", logger.FieldTarget, target)
	html, err := s.session.Fetch(ctx, p, target)
	if err != nil {
		switch {
		case errors.Is(err, errors.ErrNotFound):
			result.Status = models.StatusNotFound
			log.Infow("Product not found on site", logger.FieldError, err)
		case errors.IsFatal(err):
			// The session failed in a way it did not classify. It still
			// costs only this product.
			result.Status = models.StatusError
			result.Error = err.Error()
			log.Errorw("Session failed while fetching product page", logger.FieldError, err)
		default:
			result.Status = models.StatusError
			result.Error = err.Error()
			log.Warnw("Failed to fetch product page", logger.FieldError, err)
		}
		return result
	}

	doc, err := ParseDocument(html)
	if err != nil {
		result.Status = models.StatusError
		result.Error = err.Error()
		log.Warnw("Failed to parse product page", logger.FieldError, err)
		return result
	}

	page := NewPage(doc, s.site.TableSelector, p.Number)
	for _, rule := range s.rules {
		value, err := rule.Apply(page)
		if err != nil {
			log.Debugw("Field not extracted", logger.FieldField, rule.Name, logger.FieldError, err)
			continue
		}
		result.Fields[rule.Name] = value
	}

	if len(result.Fields) == 0 {
		result.Status = models.StatusNotFound
	} else {
		result.Status = models.StatusSuccess
	}
	log.Infow("Scraped product",
		logger.FieldStatus, result.Status,
		"fields", len(result.Fields),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return result
}
