package extract

import (
	"net/url"
	"path"
	"strings"

	"github.com/nao1215/sitemirror/internal/model"
)

// Decision is what the crawler does with a discovered reference.
type Decision int

const (
	// Follow means the reference is fetched and mirrored.
	Follow Decision = iota
	// OffSite means the reference points outside the mirrored site. It is
	// recorded and left unchanged in rewritten output.
	OffSite
	// Ignored means the reference is on-site but excluded by a path pattern.
	Ignored
)

// String returns the decision name.
func (d Decision) String() string {
	switch d {
	case Follow:
		return "follow"
	case OffSite:
		return "off-site"
	case Ignored:
		return "ignored"
	default:
		return "unknown"
	}
}

// DefaultAllowedHosts are the host suffixes whose assets are mirrored
// alongside the site. Webflow serves CSS, JS and images from this CDN.
var DefaultAllowedHosts = []string{"website-files.com"}

// Scope decides which references belong to the mirror.
//
// A reference on the seed's host is followed unless its path is excluded by
// the ignore or follow patterns. A reference on an allow-listed host is
// followed only when it names an asset; navigating to another site through
// a CDN is never followed. Everything else is off-site.
type Scope struct {
	host           string
	allowedHosts   []string
	ignorePatterns []string
	followPatterns []string
}

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithAllowedHosts replaces the allow-listed host suffixes.
func WithAllowedHosts(hosts []string) ScopeOption {
	return func(s *Scope) {
		s.allowedHosts = normalizeHosts(hosts)
	}
}

// WithIgnorePatterns sets URL path patterns to skip.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf").
func WithIgnorePatterns(patterns []string) ScopeOption {
	return func(s *Scope) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow.
// If set, only on-site paths matching at least one pattern are followed.
// The seed is always followed.
func WithFollowPatterns(patterns []string) ScopeOption {
	return func(s *Scope) {
		s.followPatterns = patterns
	}
}

// NewScope creates a Scope rooted at the seed URL's host.
func NewScope(seed *url.URL, opts ...ScopeOption) *Scope {
	s := &Scope{
		host:         strings.ToLower(seed.Host),
		allowedHosts: normalizeHosts(DefaultAllowedHosts),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Host returns the seed host.
func (s *Scope) Host() string {
	return s.host
}

// Decide classifies a reference found with the given hint.
func (s *Scope) Decide(u *url.URL, hint model.Hint) Decision {
	host := strings.ToLower(u.Host)
	switch {
	case host == s.host:
		if hint == model.HintSeed || s.shouldCrawl(u.Path) {
			return Follow
		}
		return Ignored
	case s.allowed(host) && !hint.Navigational():
		return Follow
	default:
		return OffSite
	}
}

// Mirrorable reports whether u's host may appear in the mirror at all: the
// seed host or an allow-listed host. Redirect targets and final URLs are
// checked against it.
func (s *Scope) Mirrorable(u *url.URL) bool {
	host := strings.ToLower(u.Host)
	return host == s.host || s.allowed(host)
}

func (s *Scope) allowed(host string) bool {
	for _, suffix := range s.allowedHosts {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// shouldCrawl applies the path patterns:
//  1. a path matching any ignore pattern is skipped;
//  2. with follow patterns set, a path must match one of them;
//  3. otherwise the path is crawled.
func (s *Scope) shouldCrawl(p string) bool {
	if p == "" {
		p = "/"
	}
	for _, pattern := range s.ignorePatterns {
		if matchPattern(pattern, p) {
			return false
		}
	}
	if len(s.followPatterns) == 0 {
		return true
	}
	for _, pattern := range s.followPatterns {
		if matchPattern(pattern, p) {
			return true
		}
	}
	return false
}

// matchPattern reports whether a URL path matches a glob pattern.
//
//	"/blog/*" matches "/blog" and everything below it
//	"*.pdf"   matches any path ending in .pdf
//	"/v?"     matches "/v1", "/v2"
func matchPattern(pattern, p string) bool {
	if prefix, ok := strings.CutSuffix(pattern, "/*"); ok {
		if p == prefix || strings.HasPrefix(p, prefix+"/") {
			return true
		}
	}
	if ext, ok := strings.CutPrefix(pattern, "*"); ok && strings.HasPrefix(ext, ".") && strings.HasSuffix(p, ext) {
		return true
	}
	if matched, err := path.Match(pattern, p); err == nil && matched {
		return true
	}
	if strings.Contains(pattern, "*") && !strings.Contains(pattern, "/") {
		if matched, err := path.Match(pattern, path.Base(p)); err == nil && matched {
			return true
		}
	}
	return false
}

func normalizeHosts(hosts []string) []string {
	out := make([]string, 0, len(hosts))
	for _, h := range hosts {
		h = strings.Trim(strings.ToLower(strings.TrimSpace(h)), ".")
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}
