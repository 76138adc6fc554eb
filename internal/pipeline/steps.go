package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/nao1215/sitemirror/internal/crawler"
	"github.com/nao1215/sitemirror/internal/detect"
	"github.com/nao1215/sitemirror/internal/extract"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/rewrite"
	"github.com/nao1215/sitemirror/internal/sitemap"
	"github.com/nao1215/sitemirror/internal/storage"
)

// ErrSeedNotMirrored is returned by a strict DetectStep when the seed page
// could not be mirrored and therefore not inspected.
var ErrSeedNotMirrored = errors.New("seed page was not mirrored")

// PrepareStep creates or clears the output directory.
type PrepareStep struct {
	store  *storage.Store
	logger *slog.Logger
}

// NewPrepareStep creates a PrepareStep for store.
func NewPrepareStep(store *storage.Store, logger *slog.Logger) *PrepareStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &PrepareStep{store: store, logger: logger}
}

// Name returns the step name.
func (s *PrepareStep) Name() string {
	return "prepare"
}

// Do prepares the output directory.
func (s *PrepareStep) Do(_ context.Context, report *model.MirrorReport) error {
	if err := s.store.Prepare(); err != nil {
		return fmt.Errorf("prepare output directory: %w", err)
	}
	report.OutputDir = s.store.Root()
	s.logger.Debug("output directory ready", "dir", s.store.Root())
	return nil
}

// CrawlStep runs the crawler from the seed URL and records its result.
type CrawlStep struct {
	crawler *crawler.Crawler
	seed    *url.URL
}

// NewCrawlStep creates a CrawlStep.
func NewCrawlStep(c *crawler.Crawler, seed *url.URL) *CrawlStep {
	return &CrawlStep{crawler: c, seed: seed}
}

// Name returns the step name.
func (s *CrawlStep) Name() string {
	return "crawl"
}

// Do crawls the site. Per-URL failures end up in the records; a canceled
// crawl still records what was mirrored and marks the run canceled.
func (s *CrawlStep) Do(ctx context.Context, report *model.MirrorReport) error {
	result, err := s.crawler.Crawl(ctx, s.seed)
	if err != nil {
		return err
	}
	report.Records = result.Records()
	report.OffSite = result.OffSite
	report.Skipped = result.Skipped
	if result.Canceled {
		report.Status = model.RunStatusCanceled
	}
	return nil
}

// DetectStep inspects the mirrored seed page for Webflow indicators.
type DetectStep struct {
	store       *storage.Store
	strict      bool
	removeBadge bool
	logger      *slog.Logger
}

// DetectStepOption configures a DetectStep.
type DetectStepOption func(*DetectStep)

// WithStrict makes a site without Webflow indicators fail the run.
func WithStrict(strict bool) DetectStepOption {
	return func(s *DetectStep) {
		s.strict = strict
	}
}

// WithBadgeWarning warns when badge removal was requested on a site that
// does not look like Webflow.
func WithBadgeWarning(removeBadge bool) DetectStepOption {
	return func(s *DetectStep) {
		s.removeBadge = removeBadge
	}
}

// WithDetectLogger sets the logger.
func WithDetectLogger(logger *slog.Logger) DetectStepOption {
	return func(s *DetectStep) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewDetectStep creates a DetectStep reading from store.
func NewDetectStep(store *storage.Store, opts ...DetectStepOption) *DetectStep {
	s := &DetectStep{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the step name.
func (s *DetectStep) Name() string {
	return "detect"
}

// Finishes reports that detection only reads local files.
func (s *DetectStep) Finishes() bool {
	return true
}

// Do inspects the seed page.
func (s *DetectStep) Do(_ context.Context, report *model.MirrorReport) error {
	seed, ok := seedRecord(report)
	if !ok {
		if s.strict {
			return ErrSeedNotMirrored
		}
		s.logger.Warn("seed page was not mirrored, skipping platform detection", "seed", report.SeedURL)
		return nil
	}

	page, err := s.store.Read(seed.LocalPath)
	if err != nil {
		return fmt.Errorf("read seed page: %w", err)
	}
	inspect := detect.Webflow
	if s.strict {
		inspect = detect.Require
	}
	platform, err := inspect(page)
	if platform != nil {
		report.Platform = platform
	}
	if err != nil {
		return err
	}

	if platform.Webflow {
		s.logger.Debug("webflow site detected", "indicators", platform.Indicators)
		return nil
	}
	s.logger.Warn("site does not appear to be built with Webflow", "seed", report.SeedURL)
	if s.removeBadge {
		s.logger.Warn("badge removal requested but no Webflow badge script is expected on this site")
	}
	return nil
}

func seedRecord(report *model.MirrorReport) (model.Record, bool) {
	for _, rec := range report.Records {
		if rec.URL == report.SeedURL {
			return rec, rec.Mirrored()
		}
	}
	return model.Record{}, false
}

// RewriteStep localizes references in every mirrored page, stylesheet and
// script, applying the configured content rules first.
type RewriteStep struct {
	store  *storage.Store
	scope  *extract.Scope
	rules  []rewrite.Rule
	logger *slog.Logger
}

// NewRewriteStep creates a RewriteStep. Redirect targets outside scope
// are never localized; a nil scope keeps them to the requested host.
func NewRewriteStep(store *storage.Store, scope *extract.Scope, logger *slog.Logger, rules ...rewrite.Rule) *RewriteStep {
	if logger == nil {
		logger = slog.Default()
	}
	return &RewriteStep{store: store, scope: scope, rules: rules, logger: logger}
}

// Name returns the step name.
func (s *RewriteStep) Name() string {
	return "rewrite"
}

// Finishes reports that rewriting only touches local files.
func (s *RewriteStep) Finishes() bool {
	return true
}

// Do rewrites the mirror. Files that fail are listed in the report and do
// not fail the step.
func (s *RewriteStep) Do(_ context.Context, report *model.MirrorReport) error {
	index := rewrite.NewIndex(report.Records, s.scope)
	rw := rewrite.New(s.store, index,
		rewrite.WithRules(s.rules...),
		rewrite.WithLogger(s.logger),
	)
	stats, err := rw.RewriteAll(report.Records)
	report.Rewritten = stats.Changed
	if err != nil {
		report.RewriteErrors = append(report.RewriteErrors, errorList(err)...)
	}
	s.logger.Debug("rewrite completed",
		"indexed_urls", index.Len(),
		"visited", stats.Visited,
		"changed", stats.Changed)
	return nil
}

// errorList flattens an aggregated error into messages.
func errorList(err error) []string {
	if multi, ok := err.(interface{ Unwrap() []error }); ok {
		var msgs []string
		for _, e := range multi.Unwrap() {
			msgs = append(msgs, e.Error())
		}
		return msgs
	}
	return []string{err.Error()}
}

// SitemapStep writes sitemap.xml for the mirrored pages.
type SitemapStep struct {
	store *storage.Store
	now   func() time.Time
}

// NewSitemapStep creates a SitemapStep.
func NewSitemapStep(store *storage.Store) *SitemapStep {
	return &SitemapStep{store: store, now: time.Now}
}

// Name returns the step name.
func (s *SitemapStep) Name() string {
	return "sitemap"
}

// Finishes reports that the sitemap is built from local state.
func (s *SitemapStep) Finishes() bool {
	return true
}

// Do writes the sitemap.
func (s *SitemapStep) Do(_ context.Context, report *model.MirrorReport) error {
	path, err := sitemap.Write(s.store, report.MirroredPages(), s.now())
	if err != nil {
		return err
	}
	report.SitemapPath = path
	return nil
}
