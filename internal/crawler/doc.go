// Package crawler mirrors a website into a local directory tree.
//
// # Architecture
//
// The Crawler seeds a frontier.Frontier with the start URL and runs a
// bounded pool of workers (golang.org/x/sync/errgroup). Each worker pulls
// one reference at a time and takes it through:
//
//	discovered -> fetching -> fetched -> (pages, CSS, JS) extracting -> done
//	                       \-> failed
//
// A fetched artifact is classified with its server content type, assigned
// a local path by the localpath.Resolver, scanned for further references
// when it is a page, stylesheet or script, and written to the
// storage.Store. References are routed by an extract.Scope: in-scope ones
// go to the frontier, off-site and pattern-ignored ones are recorded.
//
// # Politeness
//
//   - A HostLimiter spaces request starts per host (golang.org/x/time/rate)
//   - The worker count bounds simultaneous fetches
//   - An optional page limit stops runaway crawls
//
// # Failure handling
//
// Per-URL failures mark the entry failed and never abort the crawl. On
// cancellation the workers stop pulling work; fetches already in flight run
// to completion on a detached context bounded by the fetch budget.
//
// # Usage
//
//	c := crawler.New(f, localpath.NewResolver(), storage.New(out),
//		crawler.WithConcurrency(8))
//	result, err := c.Crawl(ctx, seed)
package crawler
