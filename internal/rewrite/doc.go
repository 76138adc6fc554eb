// Package rewrite post-processes a crawled mirror so that it works offline.
//
// After the crawl, every mirrored page, stylesheet and script is read
// back, passed through the configured content rules (for example
// BadgeRule) and then localized: each reference naming a mirrored URL is
// replaced by the relative path to that URL's local file. References to
// off-site or unmirrored URLs are left as they are. Only the bytes of a
// recognized reference change; the rest of the file is copied through.
//
// Every reference is resolved against the remote URL it was fetched from.
// A redirect's final URL is only localized when it stays within the
// mirror's scope. The rewriter remembers its own output and RewriteAll
// marks records as rewritten, so running it twice yields the same output
// as running it once.
package rewrite
