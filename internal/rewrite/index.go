package rewrite

import (
	"net/url"
	"strings"

	"github.com/nao1215/sitemirror/internal/extract"
	"github.com/nao1215/sitemirror/internal/model"
)

// Index maps mirrored URLs to their local paths.
type Index struct {
	byURL map[string]string
}

// NewIndex builds an index from the records of a crawl. Only mirrored
// records are indexed. A redirected record is reachable both by its
// requested URL and by its final URL, as long as the final URL is one
// scope may mirror. With a nil scope the final URL must stay on the
// requested URL's host.
func NewIndex(records []model.Record, scope *extract.Scope) *Index {
	ix := &Index{byURL: make(map[string]string, len(records))}
	for _, rec := range records {
		if !rec.Mirrored() || rec.LocalPath == "" {
			continue
		}
		ix.byURL[rec.URL] = rec.LocalPath
	}
	for _, rec := range records {
		if !rec.Mirrored() || rec.FinalURL == "" {
			continue
		}
		final, err := model.ParseURL(rec.FinalURL, nil)
		if err != nil || !mirrorable(scope, rec.URL, final) {
			continue
		}
		if _, taken := ix.byURL[final.String()]; !taken {
			ix.byURL[final.String()] = rec.LocalPath
		}
	}
	return ix
}

func mirrorable(scope *extract.Scope, requested string, final *url.URL) bool {
	if scope != nil {
		return scope.Mirrorable(final)
	}
	u, err := url.Parse(requested)
	return err == nil && strings.EqualFold(u.Host, final.Host)
}

// Lookup returns the local path of a normalized URL.
func (ix *Index) Lookup(u *url.URL) (string, bool) {
	if u == nil {
		return "", false
	}
	p, ok := ix.byURL[u.String()]
	return p, ok
}

// Len returns the number of indexed URLs.
func (ix *Index) Len() int {
	return len(ix.byURL)
}
