package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/sitemirror/internal/crawler"
	"github.com/nao1215/sitemirror/internal/extract"
	"github.com/nao1215/sitemirror/internal/fetcher"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/transport"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitemirror"

	// DefaultOutputDir is where the mirror is written when -o is not given.
	DefaultOutputDir = "out"

	// DefaultConcurrency is the number of crawl workers.
	DefaultConcurrency = crawler.DefaultConcurrency

	// DefaultDelay is the minimum gap between two requests to one host.
	DefaultDelay = crawler.DefaultDelay

	// DefaultTimeout bounds a single HTTP attempt.
	DefaultTimeout = transport.DefaultTimeout

	// DefaultRetries is the number of retries after a transient failure.
	DefaultRetries = fetcher.DefaultRetries

	// DefaultInitialBackoff is the wait before the first retry; it doubles
	// for every further retry.
	DefaultInitialBackoff = fetcher.DefaultInitialBackoff

	// DefaultMaxBodySize is the largest artifact that is stored.
	DefaultMaxBodySize = fetcher.DefaultMaxBodySize

	// DefaultUserAgent identifies sitemirror in HTTP requests.
	DefaultUserAgent = transport.DefaultUserAgent
)

// Config holds all options of a mirror run. It is populated from CLI flags
// and the optional configuration file, validated once, and then passed
// down explicitly.
type Config struct {
	// SeedURL is the start URL of the crawl. Its host defines the site.
	SeedURL string

	// OutputDir is the mirror root. It is created if missing and cleared
	// if it exists; its parent must exist.
	OutputDir string

	// RemoveBadge enables the Webflow badge removal rule.
	RemoveBadge bool

	// Sitemap writes sitemap.xml into the mirror root.
	Sitemap bool

	// Strict fails the run when the seed page shows no Webflow indicator.
	Strict bool

	// Concurrency is the number of workers fetching at once.
	Concurrency int

	// Delay is the per-host politeness delay. 0 disables it.
	Delay time.Duration

	// Timeout bounds one HTTP attempt.
	Timeout time.Duration

	// Retries is the number of retries after a transient failure.
	Retries int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBodySize is the largest artifact in bytes. 0 selects the default.
	MaxBodySize int64

	// MaxPages caps the number of distinct pages. 0 means unlimited.
	MaxPages int

	// ProxyURL routes all requests through an HTTP or SOCKS5 proxy.
	ProxyURL string

	// UserAgent is sent with every request.
	UserAgent string

	// Cookie is sent with every request.
	Cookie string

	// Headers are added to every request.
	Headers map[string]string

	// AllowedHosts are host suffixes whose assets are mirrored even though
	// they are not the seed host.
	AllowedHosts []string

	// IgnorePatterns exclude seed-host paths from the crawl.
	IgnorePatterns []string

	// FollowPatterns, when set, restrict the crawl to matching paths.
	FollowPatterns []string

	// Verbose enables debug logging.
	Verbose bool

	// Quiet suppresses all logging and the summary.
	Quiet bool

	// JSONReport prints the summary as JSON.
	JSONReport bool

	// MarkdownReport prints the summary as Markdown.
	MarkdownReport bool

	// ReportFile writes the summary to a file instead of stdout.
	ReportFile string

	// ConfigFilePath is an explicit configuration file. When empty,
	// .sitemirror is searched in the current and the home directory.
	ConfigFilePath string

	// SiteConfigs holds the loaded configuration file, if any.
	SiteConfigs *File

	// DBDir is the directory of the run history database.
	DBDir string

	// SaveHistory records the run in the history database.
	SaveHistory bool
}

// NewConfig returns a Config with every default applied.
func NewConfig() *Config {
	return &Config{
		OutputDir:      DefaultOutputDir,
		Concurrency:    DefaultConcurrency,
		Delay:          DefaultDelay,
		Timeout:        DefaultTimeout,
		Retries:        DefaultRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBodySize:    DefaultMaxBodySize,
		UserAgent:      DefaultUserAgent,
		AllowedHosts:   slices.Clone(extract.DefaultAllowedHosts),
		DBDir:          XDGDataDir(),
		SaveHistory:    true,
	}
}

// XDGDataDir returns the data directory of sitemirror, which holds the
// run history database.
// On Linux: ~/.local/share/sitemirror
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the config directory of sitemirror.
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.SeedURL == "" {
		return ErrNoSeedURL
	}
	if _, err := model.ParseURL(c.SeedURL, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSeedURL, err)
	}
	if c.OutputDir == "" {
		return ErrNoOutputDir
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.Delay < 0 {
		return ErrInvalidDelay
	}
	if c.Retries < 0 {
		return ErrInvalidRetries
	}
	if c.InitialBackoff < 0 {
		return ErrInvalidBackoff
	}
	if c.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.MaxPages < 0 {
		return ErrInvalidMaxPages
	}
	if c.Verbose && c.Quiet {
		return ErrConflictingVerbosity
	}
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}

// FetchBudget is the longest one URL may take with every retry used:
// each attempt's timeout plus the exponential waits between attempts.
func (c *Config) FetchBudget() time.Duration {
	budget := c.Timeout * time.Duration(c.Retries+1)
	wait := c.InitialBackoff
	for range c.Retries {
		budget += wait
		wait *= 2
	}
	return budget
}

// ApplySite merges a site configuration into c. explicit reports whether
// a setting was given on the command line; such settings are kept.
// Allowed hosts are added to the defaults rather than replacing them.
func (c *Config) ApplySite(sc SiteConfig, explicit func(name string) bool) {
	if explicit == nil {
		explicit = func(string) bool { return false }
	}
	if sc.Cookie != "" && !explicit("cookie") {
		c.Cookie = sc.Cookie
	}
	if sc.UserAgent != "" && !explicit("user-agent") {
		c.UserAgent = sc.UserAgent
	}
	if len(sc.Headers) > 0 {
		if c.Headers == nil {
			c.Headers = make(map[string]string, len(sc.Headers))
		}
		for k, v := range sc.Headers {
			if _, set := c.Headers[k]; !set {
				c.Headers[k] = v
			}
		}
	}
	for _, h := range sc.AllowedHosts {
		if !slices.Contains(c.AllowedHosts, h) {
			c.AllowedHosts = append(c.AllowedHosts, h)
		}
	}
	if len(sc.IgnorePatterns) > 0 && len(c.IgnorePatterns) == 0 {
		c.IgnorePatterns = slices.Clone(sc.IgnorePatterns)
	}
	if len(sc.FollowPatterns) > 0 && len(c.FollowPatterns) == 0 {
		c.FollowPatterns = slices.Clone(sc.FollowPatterns)
	}
	if sc.Delay != nil && !explicit("delay") {
		c.Delay = time.Duration(*sc.Delay)
	}
	if sc.Concurrency > 0 && !explicit("concurrency") {
		c.Concurrency = sc.Concurrency
	}
}
