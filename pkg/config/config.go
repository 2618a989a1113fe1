package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Session drivers.
const (
	DriverBrowser = "browser"
	DriverHTTP    = "http"
)

// Extraction rule kinds.
const (
	RuleSelector    = "selector"
	RuleTableColumn = "table_column"
)

// Field value types.
const (
	TypeText   = "text"
	TypeNumber = "number"
)

// Merge precedence policies.
const (
	PolicyLast  = "last"
	PolicyFirst = "first"
)

// ScraperConfig holds general scraper settings.
type ScraperConfig struct {
	Driver      string        `yaml:"driver"`
	Headless    bool          `yaml:"headless"`
	MinDelay    time.Duration `yaml:"min_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	PageTimeout time.Duration `yaml:"page_timeout"`
	// MaxPerMinute caps product requests per minute; 0 means no cap beyond
	// the delays.
	MaxPerMinute int    `yaml:"max_per_minute"`
	UserAgent    string `yaml:"user_agent"`
	// MinFreeMemoryMB triggers a warning before launching the browser.
	MinFreeMemoryMB uint64 `yaml:"min_free_memory_mb"`
}

// RuleConfig describes how one field is pulled out of a product page.
type RuleConfig struct {
	Name          string   `yaml:"name"`
	Kind          string   `yaml:"kind"`
	Selector      string   `yaml:"selector"`
	Attr          string   `yaml:"attr"`
	Header        string   `yaml:"header"`
	FallbackIndex *int     `yaml:"fallback_index"`
	Match         string   `yaml:"match"`
	Allowed       []string `yaml:"allowed"`
	Type          string   `yaml:"type"`
}

// SiteConfig holds settings specific to the supplier site being scraped.
type SiteConfig struct {
	BaseURL string `yaml:"base_url"`
	// URLTemplate builds a per-product target. Placeholders: {number},
	// {description}, {supplier}. Ignored when SearchInputSelector is set.
	URLTemplate          string `yaml:"url_template"`
	SearchInputSelector  string `yaml:"search_input_selector"`
	SuggestionSelector   string `yaml:"suggestion_selector"`
	CookieAcceptSelector string `yaml:"cookie_accept_selector"`
	ReadySelector        string `yaml:"ready_selector"`
	TableSelector        string `yaml:"table_selector"`
	// DecimalComma marks a site that prints "12,5" for twelve and a half and
	// groups thousands with dots, so "1.000" reads as one thousand.
	DecimalComma bool         `yaml:"decimal_comma"`
	Rules        []RuleConfig `yaml:"rules"`
}

// InputConfig describes the columns of the product workbook.
type InputConfig struct {
	Sheet             string   `yaml:"sheet"`
	IDColumn          string   `yaml:"id_column"`
	DescriptionColumn string   `yaml:"description_column"`
	SupplierColumn    string   `yaml:"supplier_column"`
	SkipPrefixes      []string `yaml:"skip_prefixes"`
}

// OutputConfig holds result file and checkpoint settings.
type OutputConfig struct {
	Path         string        `yaml:"path"`
	SaveInterval time.Duration `yaml:"save_interval"`
	CheckpointDB string        `yaml:"checkpoint_db"`
}

// MergeConfig holds results merger settings.
type MergeConfig struct {
	Policy string `yaml:"policy"`
	Strict bool   `yaml:"strict"`
}

// Config is the complete structure for the config.yml file.
type Config struct {
	Scraper ScraperConfig `yaml:"scraper"`
	Site    SiteConfig    `yaml:"site"`
	Input   InputConfig   `yaml:"input"`
	Output  OutputConfig  `yaml:"output"`
	Merge   MergeConfig   `yaml:"merge"`
}

// Default returns the configuration used for any value a config file leaves
// unset. The site section matches the alfotech.dk search flow.
func Default() *Config {
	meterIdx, unitIdx := 4, 6
	return &Config{
		Scraper: ScraperConfig{
			Driver:          DriverBrowser,
			Headless:        false,
			MinDelay:        500 * time.Millisecond,
			MaxDelay:        time.Second,
			PageTimeout:     10 * time.Second,
			UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
			MinFreeMemoryMB: 512,
		},
		Site: SiteConfig{
			BaseURL:              "https://www.alfotech.dk/",
			SearchInputSelector:  "body > header > div > div:nth-of-type(1) > div:nth-of-type(1) > div > form > input",
			SuggestionSelector:   "body > header > div > div:nth-of-type(1) > div:nth-of-type(1) > div > div > a:nth-of-type(1)",
			CookieAcceptSelector: "#coiPage-1 > div:nth-of-type(2) > div:nth-of-type(1) > button:nth-of-type(3)",
			ReadySelector:        "#addMultipleToCartForm > div > table",
			TableSelector:        "#addMultipleToCartForm > div > table",
			DecimalComma:         true,
			Rules: []RuleConfig{
				{Name: "meter_pr_rulle", Kind: RuleTableColumn, Header: "meter pr. rulle", FallbackIndex: &meterIdx, Type: TypeNumber},
				{Name: "basisenhed", Kind: RuleTableColumn, Header: "basisenhed", FallbackIndex: &unitIdx, Allowed: []string{"MTR", "Mtr."}},
			},
		},
		Input: InputConfig{
			IDColumn: "Varenr.",
		},
		Output: OutputConfig{
			Path:         "results.xlsx",
			SaveInterval: time.Minute,
			CheckpointDB: "checkpoint.db",
		},
		Merge: MergeConfig{
			Policy: PolicyLast,
		},
	}
}

// LoadConfig reads path and an optional "<name>.local.<ext>" overlay next to
// it on top of Default and validates the result. Keys a file sets win, even
// when set to a zero value such as "min_delay: 0s" or "headless: false". A
// missing base file is not an error; the defaults are used.
func LoadConfig(path string) (*Config, error) {
	var layers []layer
	for _, p := range []string{path, localPath(path)} {
		data, err := readFile(p)
		if err != nil {
			return nil, err
		}
		if data != nil {
			layers = append(layers, layer{path: p, data: data})
		}
	}

	// The default site is taken as a whole or not at all; mixing its
	// selectors into a configured site would change that site's flow.
	var probe struct {
		Site SiteConfig `yaml:"site"`
	}
	for _, l := range layers {
		if err := l.decode(&probe); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	if probe.Site.configured() {
		cfg.Site = SiteConfig{}
	}
	for _, l := range layers {
		if err := l.decode(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Override copies every non-zero value of o into c. Zero values in o leave c
// untouched, so o only needs the fields being overridden.
func (c *Config) Override(o Config) error {
	if err := mergo.Merge(c, o, mergo.WithOverride); err != nil {
		return fmt.Errorf("applying overrides: %w", err)
	}
	return nil
}

type layer struct {
	path string
	data []byte
}

// decode unmarshals the layer over out. Fields the layer does not mention
// keep their current value.
func (l layer) decode(out any) error {
	if err := yaml.Unmarshal(l.data, out); err != nil {
		return fmt.Errorf("unmarshalling config YAML %s: %w", l.path, err)
	}
	return nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	return data, nil
}

func localPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + ".local" + ext
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Scraper.Driver {
	case DriverBrowser, DriverHTTP:
	default:
		return fmt.Errorf("scraper.driver: unknown driver %q", c.Scraper.Driver)
	}
	if c.Scraper.MinDelay < 0 || c.Scraper.MaxDelay < c.Scraper.MinDelay {
		return fmt.Errorf("scraper: need 0 <= min_delay <= max_delay, got %s and %s", c.Scraper.MinDelay, c.Scraper.MaxDelay)
	}
	if c.Scraper.PageTimeout <= 0 {
		return fmt.Errorf("scraper.page_timeout must be positive")
	}
	if c.Scraper.MaxPerMinute < 0 {
		return fmt.Errorf("scraper.max_per_minute must not be negative")
	}
	if c.Scraper.Driver == DriverHTTP && c.Site.SearchInputSelector != "" {
		return fmt.Errorf("site.search_input_selector needs the browser driver; use url_template with the http driver")
	}
	if c.Input.IDColumn == "" {
		return fmt.Errorf("input.id_column is required")
	}
	switch c.Merge.Policy {
	case PolicyLast, PolicyFirst:
	default:
		return fmt.Errorf("merge.policy: unknown policy %q", c.Merge.Policy)
	}
	return c.Site.Validate()
}

func (s *SiteConfig) configured() bool {
	return s.URLTemplate != "" || s.SearchInputSelector != "" || len(s.Rules) > 0
}

// Validate checks the site's target and extraction rules.
func (s *SiteConfig) Validate() error {
	if s.SearchInputSelector == "" && s.URLTemplate == "" {
		return fmt.Errorf("site: one of url_template or search_input_selector is required")
	}
	if s.SearchInputSelector != "" && s.SuggestionSelector == "" {
		return fmt.Errorf("site.suggestion_selector is required with search_input_selector")
	}
	if len(s.Rules) == 0 {
		return fmt.Errorf("site.rules: at least one extraction rule is required")
	}

	seen := make(map[string]bool)
	for i, r := range s.Rules {
		if r.Name == "" {
			return fmt.Errorf("site.rules[%d]: name is required", i)
		}
		if seen[r.Name] {
			return fmt.Errorf("site.rules[%d]: duplicate name %q", i, r.Name)
		}
		seen[r.Name] = true

		switch r.Kind {
		case RuleSelector:
			if r.Selector == "" {
				return fmt.Errorf("site.rules[%d] %s: selector is required", i, r.Name)
			}
		case RuleTableColumn:
			if s.TableSelector == "" {
				return fmt.Errorf("site.rules[%d] %s: site.table_selector is required", i, r.Name)
			}
			if r.Header == "" && r.FallbackIndex == nil {
				return fmt.Errorf("site.rules[%d] %s: header or fallback_index is required", i, r.Name)
			}
		default:
			return fmt.Errorf("site.rules[%d] %s: unknown kind %q", i, r.Name, r.Kind)
		}

		switch r.Type {
		case "", TypeText, TypeNumber:
		default:
			return fmt.Errorf("site.rules[%d] %s: unknown type %q", i, r.Name, r.Type)
		}
		if r.Match != "" {
			if _, err := regexp.Compile(r.Match); err != nil {
				return fmt.Errorf("site.rules[%d] %s: bad match pattern: %w", i, r.Name, err)
			}
		}
	}
	return nil
}
