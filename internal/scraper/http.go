package scraper

import (
	"context"
	"net/http"

	"SupplyScraper/internal/errors"
	"SupplyScraper/internal/models"
	"SupplyScraper/pkg/config"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// HTTPSession fetches product pages with plain GET requests. It suits sites
// that render product data server side.
type HTTPSession struct {
	client *resty.Client
	site   config.SiteConfig
}

// HTTPOpener returns an OpenFunc for an HTTP session.
func HTTPOpener(sc config.ScraperConfig, site config.SiteConfig, log *zap.SugaredLogger) OpenFunc {
	return func(ctx context.Context) (Session, error) {
		log.Infow("HTTP session ready", "timeout", sc.PageTimeout)
		return NewHTTPSession(sc, site), nil
	}
}

// NewHTTPSession returns a session using a fresh resty client.
func NewHTTPSession(sc config.ScraperConfig, site config.SiteConfig) *HTTPSession {
	client := resty.New().
		SetTimeout(sc.PageTimeout).
		SetHeader("Accept", "text/html,application/xhtml+xml")
	if sc.UserAgent != "" {
		client.SetHeader("User-Agent", sc.UserAgent)
	}
	return &HTTPSession{client: client, site: site}
}

// Fetch implements Session. A 404, or a page without the ready content, is
// errors.ErrNotFound; other failures are errors.ErrFetch.
func (s *HTTPSession) Fetch(ctx context.Context, product models.Product, target string) (string, error) {
	resp, err := s.client.R().SetContext(ctx).Get(target)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "GET %s", target), errors.ErrFetch)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return "", errors.Mark(errors.Newf("GET %s: %s", target, resp.Status()), errors.ErrNotFound)
	}
	if resp.IsError() {
		return "", errors.Mark(errors.Newf("GET %s: %s", target, resp.Status()), errors.ErrFetch)
	}

	body := resp.String()
	if s.site.ReadySelector != "" {
		doc, err := ParseDocument(body)
		if err != nil {
			return "", errors.Mark(err, errors.ErrFetch)
		}
		if doc.Find(s.site.ReadySelector).Length() == 0 {
			return "", errors.Mark(errors.Newf("%s: %q not on page", product.Number, s.site.ReadySelector), errors.ErrNotFound)
		}
	}
	return body, nil
}

// Close releases idle connections.
func (s *HTTPSession) Close() error {
	s.client.GetClient().CloseIdleConnections()
	return nil
}
