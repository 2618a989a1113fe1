package scraper

import (
	"net/url"
	"strings"

	"SupplyScraper/internal/errors"
	"SupplyScraper/internal/models"
	"SupplyScraper/pkg/config"
)

// BuildTarget returns what the session should load for p. With a search
// flow that is the product number itself; otherwise the site's URL template
// with {number}, {description} and {supplier} replaced by their escaped
// values.
func BuildTarget(site config.SiteConfig, p models.Product) (string, error) {
	if site.SearchInputSelector != "" {
		return p.Number, nil
	}
	if site.URLTemplate == "" {
		return "", errors.New("site has neither a search flow nor a URL template")
	}

	target := strings.NewReplacer(
		"{number}", escape(p.Number),
		"{description}", escape(p.Description),
		"{supplier}", escape(p.Supplier),
	).Replace(site.URLTemplate)

	u, err := url.Parse(target)
	if err != nil {
		return "", errors.Wrapf(err, "target for %s", p.Number)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.Newf("target for %s is not an absolute http(s) URL: %s", p.Number, target)
	}
	return target, nil
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
