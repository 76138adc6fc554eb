package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitemirror/internal/classify"
	"github.com/nao1215/sitemirror/internal/extract"
	"github.com/nao1215/sitemirror/internal/fetcher"
	"github.com/nao1215/sitemirror/internal/frontier"
	"github.com/nao1215/sitemirror/internal/localpath"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/storage"
)

const (
	// DefaultConcurrency is the number of workers fetching at once.
	DefaultConcurrency = 8

	// DefaultDelay is the minimum gap between request starts to one host.
	DefaultDelay = 200 * time.Millisecond

	// DefaultFetchBudget bounds one URL's fetch, retries included.
	DefaultFetchBudget = 2 * time.Minute
)

// ErrNotAttempted marks an entry that was dequeued when the crawl was
// canceled and never requested. Records reports it as pending.
var ErrNotAttempted = errors.New("not attempted: crawl canceled")

// Failure classes recorded for entries that did not fail in the fetcher.
const (
	FailureCollision  = "collision"
	FailureWriteError = "write-error"
)

// Crawler mirrors a site: it drives a Frontier with a bounded pool of
// workers that fetch, classify, extract and store every in-scope URL.
type Crawler struct {
	fetcher  fetcher.Fetcher
	resolver *localpath.Resolver
	store    *storage.Store

	concurrency int
	pageLimit   int
	fetchBudget time.Duration
	limiter     *HostLimiter
	scope       *extract.Scope
	logger      *slog.Logger
}

// Option configures a Crawler.
type Option func(*Crawler)

// WithConcurrency sets the number of workers.
func WithConcurrency(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithPageLimit caps the number of distinct pages. 0 means unlimited.
func WithPageLimit(n int) Option {
	return func(c *Crawler) {
		if n >= 0 {
			c.pageLimit = n
		}
	}
}

// WithFetchBudget bounds how long one URL may take, retries included.
// In-flight fetches keep running after cancellation until they finish or
// exhaust this budget.
func WithFetchBudget(d time.Duration) Option {
	return func(c *Crawler) {
		if d > 0 {
			c.fetchBudget = d
		}
	}
}

// WithDelay sets the per-host politeness delay. 0 disables it.
func WithDelay(d time.Duration) Option {
	return func(c *Crawler) {
		c.limiter = NewHostLimiter(d)
	}
}

// WithScope sets the scope that decides which references are followed.
// Without it the crawl follows the seed host with the default allow-list.
func WithScope(scope *extract.Scope) Option {
	return func(c *Crawler) {
		c.scope = scope
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Crawler) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Crawler that fetches with f, maps URLs with resolver and
// writes files to store.
func New(f fetcher.Fetcher, resolver *localpath.Resolver, store *storage.Store, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:     f,
		resolver:    resolver,
		store:       store,
		concurrency: DefaultConcurrency,
		fetchBudget: DefaultFetchBudget,
		limiter:     NewHostLimiter(DefaultDelay),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is the outcome of a crawl.
type Result struct {
	// Entries holds one entry per unique normalized URL, sorted by URL.
	Entries []model.Entry

	// OffSite lists the distinct references that were out of scope.
	OffSite []string

	// Ignored lists the distinct on-site references excluded by patterns.
	Ignored []string

	// Skipped counts page discoveries refused by the page limit.
	Skipped int

	// Canceled is true when the crawl stopped before draining.
	Canceled bool
}

// Crawl mirrors everything reachable from seed. It returns when the
// frontier has drained or ctx is canceled; per-URL failures never abort it.
// On cancellation no new fetch starts, in-flight fetches complete, and
// the result lists the remaining entries as pending.
func (c *Crawler) Crawl(ctx context.Context, seed *url.URL) (*Result, error) {
	if seed == nil {
		return nil, errors.New("seed URL is nil")
	}

	scope := c.scope
	if scope == nil {
		scope = extract.NewScope(seed)
	}
	run := &crawl{
		Crawler:  c,
		scope:    scope,
		frontier: frontier.New(frontier.WithPageLimit(c.pageLimit)),
		offSite:  make(map[string]struct{}),
		ignored:  make(map[string]struct{}),
	}
	run.frontier.Enqueue(model.Reference{URL: seed, Kind: model.KindPage, Hint: model.HintSeed})

	c.logger.Info("crawl started", "seed", seed.String(), "workers", c.concurrency)

	var g errgroup.Group
	for range c.concurrency {
		g.Go(func() error {
			for {
				ref, ok := run.frontier.Dequeue(ctx)
				if !ok {
					return nil
				}
				run.process(ctx, ref)
			}
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("crawl workers failed: %w", err)
	}
	run.frontier.Close()

	stats := run.frontier.Stats()
	result := &Result{
		Entries:  run.frontier.Entries(),
		OffSite:  sortedKeys(run.offSite),
		Ignored:  sortedKeys(run.ignored),
		Skipped:  stats.Skipped,
		Canceled: ctx.Err() != nil,
	}

	c.logger.Info("crawl finished",
		"done", stats.Done,
		"failed", stats.Failed,
		"pending", stats.Pending,
		"off_site", len(result.OffSite))
	return result, nil
}

// crawl is the state of one Crawl call.
type crawl struct {
	*Crawler
	scope    *extract.Scope
	frontier *frontier.Frontier

	mu      sync.Mutex
	offSite map[string]struct{}
	ignored map[string]struct{}
}

// process takes one in-flight reference to done or failed.
func (r *crawl) process(ctx context.Context, ref model.Reference) {
	key := ref.Key()
	logger := r.logger.With("url", key)

	if err := r.limiter.Wait(ctx, ref.URL.Host); err != nil {
		// Dequeued but never requested.
		r.fail(key, fmt.Errorf("%w: %w", ErrNotAttempted, err))
		return
	}

	// Detached from cancellation so an in-flight fetch completes.
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchBudget)
	defer cancel()

	resp, err := r.fetcher.Fetch(fctx, key)
	if err != nil {
		var fe *fetcher.FetchError
		if errors.As(err, &fe) && fe.Kind == fetcher.FailureOffSiteRedirect && fe.Location != "" {
			r.record(r.offSite, fe.Location)
		}
		logger.Warn("fetch failed", "error", err)
		r.fail(key, err)
		return
	}
	if resp.FinalURL != nil && !r.scope.Mirrorable(resp.FinalURL) {
		final := resp.FinalURL.String()
		logger.Warn("redirected off site, not mirrored", "final_url", final)
		r.record(r.offSite, final)
		r.fail(key, &fetcher.FetchError{
			Kind:     fetcher.FailureOffSiteRedirect,
			URL:      key,
			Location: final,
			Attempts: resp.Attempts,
			Err:      fetcher.ErrOffSiteRedirect,
		})
		return
	}

	kind := classify.Classify(ref.URL, resp.ContentType, ref.Hint)
	rel, err := r.resolver.Resolve(ref.URL, kind)
	if err != nil {
		logger.Error("cannot assign local path", "error", err)
		r.fail(key, err)
		return
	}

	// Children are enqueued before this entry leaves in-flight, so the
	// frontier cannot drain while discoveries are pending.
	if kind.Recursable() {
		base := resp.FinalURL
		if base == nil {
			base = ref.URL
		}
		r.discover(resp.Body, kind, base, key)
	}

	artifact := model.Artifact{LocalPath: rel, Body: resp.Body, Source: ref.URL, Kind: kind}
	if err := r.store.Write(artifact.LocalPath, artifact.Body); err != nil {
		logger.Error("failed to write artifact", "path", rel, "error", err)
		r.fail(key, err)
		return
	}

	outcome := model.Outcome{
		Kind:        kind,
		LocalPath:   rel,
		StatusCode:  resp.StatusCode,
		ContentType: resp.ContentType,
		Size:        int64(len(resp.Body)),
	}
	// The final URL is kept verbatim: its trailing slash decides how the
	// file's relative references resolve.
	if final, err := model.Normalize(resp.FinalURL); err == nil && final.String() != key {
		outcome.FinalURL = resp.FinalURL.String()
	}
	if err := r.frontier.MarkDone(key, outcome); err != nil {
		logger.Error("frontier rejected completion", "error", err)
		return
	}
	logger.Debug("mirrored", "kind", kind, "path", rel, "bytes", outcome.Size)
}

// discover extracts the references of a recursable artifact and routes
// each one to the frontier or the off-site and ignored sets.
func (r *crawl) discover(body []byte, kind model.Kind, base *url.URL, referrer string) {
	for link := range extract.Extract(body, kind, base) {
		switch r.scope.Decide(link.URL, link.Hint) {
		case extract.Follow:
			r.frontier.Enqueue(model.Reference{
				URL:      link.URL,
				Kind:     classify.Classify(link.URL, "", link.Hint),
				Hint:     link.Hint,
				Referrer: referrer,
			})
		case extract.OffSite:
			r.record(r.offSite, link.URL.String())
		case extract.Ignored:
			r.record(r.ignored, link.URL.String())
		}
	}
}

func (r *crawl) record(set map[string]struct{}, key string) {
	r.mu.Lock()
	set[key] = struct{}{}
	r.mu.Unlock()
}

func (r *crawl) fail(key string, cause error) {
	if err := r.frontier.MarkFailed(key, cause); err != nil {
		r.logger.Error("frontier rejected failure", "url", key, "error", err)
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Records converts the result's entries into report records.
func (res *Result) Records() []model.Record {
	records := make([]model.Record, 0, len(res.Entries))
	for _, e := range res.Entries {
		rec := model.Record{
			URL:        e.Ref.Key(),
			Kind:       e.Ref.Kind,
			State:      e.State,
			LocalPath:  e.Outcome.LocalPath,
			FinalURL:   e.Outcome.FinalURL,
			StatusCode: e.Outcome.StatusCode,
			Size:       e.Outcome.Size,
			Referrer:   e.Ref.Referrer,
		}
		switch {
		case e.State == model.StateFailed && errors.Is(e.Err, ErrNotAttempted):
			rec.State = model.StatePending
		case e.State == model.StateFailed && e.Err != nil:
			rec.Failure = FailureClass(e.Err)
			rec.Error = e.Err.Error()
			var fe *fetcher.FetchError
			if errors.As(e.Err, &fe) {
				rec.StatusCode = fe.StatusCode
			}
		}
		records = append(records, rec)
	}
	return records
}

// FailureClass names the failure category of a failed entry's error.
func FailureClass(err error) string {
	if kind := fetcher.KindOf(err); kind != 0 {
		return kind.String()
	}
	if errors.Is(err, localpath.ErrUnresolvableCollision) {
		return FailureCollision
	}
	return FailureWriteError
}
