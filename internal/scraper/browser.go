package scraper

import (
	"context"
	"time"

	"SupplyScraper/internal/errors"
	"SupplyScraper/internal/logger"
	"SupplyScraper/internal/models"
	"SupplyScraper/pkg/config"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"go.uber.org/zap"
)

const (
	cookieWait     = 5 * time.Second
	searchBoxWait  = 4 * time.Second
	suggestionWait = 4 * time.Second
)

// BrowserSession drives one stealth Chrome tab.
type BrowserSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	site     config.SiteConfig
	timeout  time.Duration
	log      *zap.SugaredLogger
}

// BrowserOpener returns an OpenFunc that launches Chrome with the scraper
// settings and prepares the site's start page.
func BrowserOpener(sc config.ScraperConfig, site config.SiteConfig, log *zap.SugaredLogger) OpenFunc {
	return func(ctx context.Context) (Session, error) {
		s, err := OpenBrowser(ctx, sc, site, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// OpenBrowser launches the browser and, for a search flow, loads the start
// page and dismisses the cookie banner. Everything started here is torn down
// again on failure.
func OpenBrowser(ctx context.Context, sc config.ScraperConfig, site config.SiteConfig, log *zap.SugaredLogger) (*BrowserSession, error) {
	l := launcher.New().
		Headless(sc.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", "1280,800").
		Context(ctx)
	u, err := l.Launch()
	if err != nil {
		l.Cleanup()
		return nil, errors.Wrap(err, "launch browser")
	}

	s := &BrowserSession{launcher: l, site: site, timeout: sc.PageTimeout, log: log}
	if err := s.prepare(ctx, u, sc); err != nil {
		if cerr := s.Close(); cerr != nil {
			log.Debugw("Cleanup after failed start", logger.FieldError, cerr)
		}
		return nil, err
	}
	log.Infow("Browser session ready", "headless", sc.Headless)
	return s, nil
}

func (s *BrowserSession) prepare(ctx context.Context, controlURL string, sc config.ScraperConfig) error {
	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return errors.Wrap(err, "connect to browser")
	}
	// Later calls get their own context per fetch.
	s.browser = browser.Context(context.Background())

	page, err := stealth.Page(s.browser)
	if err != nil {
		return errors.Wrap(err, "open stealth page")
	}
	s.page = page
	if sc.UserAgent != "" {
		if err := s.page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: sc.UserAgent}); err != nil {
			return errors.Wrap(err, "set user agent")
		}
	}

	if s.site.SearchInputSelector != "" {
		return s.openStartPage(ctx)
	}
	return nil
}

func (s *BrowserSession) openStartPage(ctx context.Context) error {
	page := s.page.Context(ctx).Timeout(s.timeout)
	defer page.CancelTimeout()

	if err := page.Navigate(s.site.BaseURL); err != nil {
		return errors.Wrapf(err, "open %s", s.site.BaseURL)
	}
	if err := page.WaitLoad(); err != nil {
		return errors.Wrapf(err, "load %s", s.site.BaseURL)
	}
	s.acceptCookies(ctx)
	return nil
}

// acceptCookies clicks the cookie banner button if one shows up.
func (s *BrowserSession) acceptCookies(ctx context.Context) {
	if s.site.CookieAcceptSelector == "" {
		return
	}
	page := s.page.Context(ctx).Timeout(cookieWait)
	defer page.CancelTimeout()

	btn, err := page.Element(s.site.CookieAcceptSelector)
	if err != nil {
		s.log.Debugw("No cookie banner", logger.FieldError, err)
		return
	}
	if err := btn.Click(proto.InputMouseButtonLeft, 1); err != nil {
		s.log.Debugw("Could not dismiss cookie banner", logger.FieldError, err)
		return
	}
	_ = btn.WaitInvisible()
}

// Fetch implements Session.
func (s *BrowserSession) Fetch(ctx context.Context, product models.Product, target string) (string, error) {
	var err error
	if s.site.SearchInputSelector != "" {
		err = s.search(ctx, target)
	} else {
		err = s.navigate(ctx, target)
	}
	if err != nil {
		return "", err
	}

	if s.site.ReadySelector != "" {
		page := s.page.Context(ctx).Timeout(s.timeout)
		_, err := page.Element(s.site.ReadySelector)
		page.CancelTimeout()
		if err != nil {
			return "", errors.Mark(errors.Wrapf(err, "%s: page content did not appear", product.Number), errors.ErrFetch)
		}
	}

	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "read page HTML"), errors.ErrFetch)
	}
	return html, nil
}

func (s *BrowserSession) navigate(ctx context.Context, target string) error {
	page := s.page.Context(ctx).Timeout(s.timeout)
	defer page.CancelTimeout()

	if err := page.Navigate(target); err != nil {
		return errors.Mark(errors.Wrapf(err, "open %s", target), errors.ErrFetch)
	}
	if err := page.WaitLoad(); err != nil {
		return errors.Mark(errors.Wrapf(err, "load %s", target), errors.ErrFetch)
	}
	return nil
}

// search types number into the site search box and follows the first
// suggestion. No suggestion means the site does not carry the product.
func (s *BrowserSession) search(ctx context.Context, number string) error {
	input, err := s.element(ctx, s.site.SearchInputSelector, searchBoxWait)
	if err != nil {
		// The previous product page may lack the header search box.
		s.log.Debugw("Search box missing, reloading start page", logger.FieldError, err)
		if err := s.navigate(ctx, s.site.BaseURL); err != nil {
			return err
		}
		if input, err = s.element(ctx, s.site.SearchInputSelector, s.timeout); err != nil {
			return errors.Mark(errors.Wrap(err, "find search box"), errors.ErrFetch)
		}
	}

	if err := input.SelectAllText(); err != nil {
		return errors.Mark(errors.Wrap(err, "clear search box"), errors.ErrFetch)
	}
	if err := input.Input(number); err != nil {
		return errors.Mark(errors.Wrap(err, "type product number"), errors.ErrFetch)
	}

	suggestion, err := s.element(ctx, s.site.SuggestionSelector, suggestionWait)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "no search suggestion for %s", number), errors.ErrNotFound)
	}

	page := s.page.Context(ctx).Timeout(s.timeout)
	defer page.CancelTimeout()
	wait := page.WaitNavigation(proto.PageLifecycleEventNameLoad)
	if err := suggestion.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return errors.Mark(errors.Wrap(err, "open search suggestion"), errors.ErrFetch)
	}
	wait()
	return nil
}

func (s *BrowserSession) element(ctx context.Context, selector string, wait time.Duration) (*rod.Element, error) {
	page := s.page.Context(ctx).Timeout(wait)
	el, err := page.Element(selector)
	page.CancelTimeout()
	if err != nil {
		return nil, err
	}
	// Detach the element from the timed-out context.
	return el.Context(ctx), nil
}

// Close shuts the browser down and removes its profile directory.
func (s *BrowserSession) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	s.launcher.Kill()
	s.launcher.Cleanup()
	return errors.Wrap(err, "close browser")
}
