package extract

import (
	"iter"
	"net/url"
	"strings"

	"github.com/nao1215/sitemirror/internal/model"
)

// Link is one reference found in a document, resolved against the
// document's base URL.
type Link struct {
	// Raw is the reference text as written (after HTML unescaping).
	Raw string

	// URL is the normalized absolute URL.
	URL *url.URL

	// Hint is the markup context.
	Hint model.Hint
}

// skippedPrefixes are reference forms that never name a fetchable resource.
var skippedPrefixes = []string{
	"#", "javascript:", "mailto:", "tel:", "sms:", "data:", "blob:", "about:",
}

// Skippable reports whether a raw reference is a same-document fragment or
// a non-fetchable scheme.
func Skippable(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return true
	}
	lower := strings.ToLower(raw)
	for _, prefix := range skippedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Extract returns a lazy, finite sequence of the references in content,
// which is parsed as kind and resolved against base.
//
// Parsing is best-effort: malformed markup, unparseable URLs and
// unsupported schemes are skipped, never reported as errors. A <base href>
// in an HTML document changes the base for the references that follow it.
func Extract(content []byte, kind model.Kind, base *url.URL) iter.Seq[Link] {
	return func(yield func(Link) bool) {
		current := base
		for sp := range Scan(content, kind) {
			raw := strings.TrimSpace(sp.Value(content))
			if sp.Hint == model.HintBase {
				if u, ok := ResolveBase(raw, base); ok {
					current = u
				}
				continue
			}
			if Skippable(raw) {
				continue
			}
			u, err := model.ParseURL(raw, current)
			if err != nil {
				continue
			}
			if !yield(Link{Raw: raw, URL: u, Hint: sp.Hint}) {
				return
			}
		}
	}
}

// ResolveBase resolves a <base href> value. Unlike ParseURL it keeps a
// trailing slash, which is significant for resolving relative references.
func ResolveBase(raw string, source *url.URL) (*url.URL, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, false
	}
	if source != nil {
		u = source.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return nil, false
	}
	return u, true
}
