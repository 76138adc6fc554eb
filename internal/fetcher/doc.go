// Package fetcher performs single network retrievals for the crawler.
//
// HTTPFetcher returns the decoded body, content type and status of one URL
// or a *FetchError classified as timeout, connection-error, http-error,
// too-large, malformed-url, canceled or off-site-redirect. A redirect filter
// refuses redirects that leave the mirrored site before they are
// requested. Transient failures (timeouts,
// dropped connections, 5xx, 429) are retried with the exponential backoff
// of cloudeng.io/net/ratecontrol; everything else fails immediately.
//
// Bodies are decoded from gzip, deflate or brotli and capped at a maximum
// size so that a single response cannot exhaust memory. The fetcher has no
// side effects beyond the network call.
package fetcher
