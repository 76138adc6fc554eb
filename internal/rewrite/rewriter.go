package rewrite

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"cloudeng.io/errors"
	"golang.org/x/crypto/sha3"
	"golang.org/x/net/html"

	"github.com/nao1215/sitemirror/internal/extract"
	"github.com/nao1215/sitemirror/internal/localpath"
	"github.com/nao1215/sitemirror/internal/model"
	"github.com/nao1215/sitemirror/internal/storage"
)

// Rewriter turns a freshly crawled mirror into a self-contained one by
// pointing every reference to a mirrored URL at its local file.
//
// Output paths are relative to the local tree while input references are
// relative to the remote site, so a localized file cannot be told apart
// from a remote one by its text. The Rewriter remembers what it produced
// and never transforms its own output again.
type Rewriter struct {
	store  *storage.Store
	index  *Index
	rules  []Rule
	logger *slog.Logger

	mu       sync.Mutex
	produced map[output]struct{}
}

// output identifies content the Rewriter produced for a file.
type output struct {
	from string
	sum  [32]byte
}

// Option configures a Rewriter.
type Option func(*Rewriter)

// WithRules adds content rules. Rules run in the order given, before
// references are localized, so they see the original text.
func WithRules(rules ...Rule) Option {
	return func(rw *Rewriter) {
		rw.rules = append(rw.rules, rules...)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(rw *Rewriter) {
		if logger != nil {
			rw.logger = logger
		}
	}
}

// New creates a Rewriter over the files in store.
func New(store *storage.Store, index *Index, opts ...Option) *Rewriter {
	rw := &Rewriter{
		store:  store,
		index:    index,
		logger:   slog.Default(),
		produced: make(map[output]struct{}),
	}
	for _, opt := range opts {
		opt(rw)
	}
	return rw
}

// Stats counts the work done by RewriteAll.
type Stats struct {
	// Visited is the number of files examined.
	Visited int

	// Changed is the number of files whose content changed.
	Changed int
}

// RewriteAll rewrites every mirrored page, stylesheet and script in
// records and marks each one Rewritten. Records already marked are
// skipped. A file that cannot be rewritten is reported in the returned
// error and does not stop the others.
func (rw *Rewriter) RewriteAll(records []model.Record) (Stats, error) {
	var (
		stats Stats
		errs  errors.M
	)
	for i, rec := range records {
		if !rec.Mirrored() || !rec.Kind.Recursable() || rec.Rewritten {
			continue
		}
		source, err := sourceOf(rec)
		if err != nil {
			errs.Append(fmt.Errorf("%s: %w", rec.LocalPath, err))
			continue
		}
		stats.Visited++
		changed, err := rw.Rewrite(rec.LocalPath, rec.Kind, source)
		if err != nil {
			rw.logger.Warn("rewrite failed", "path", rec.LocalPath, "error", err)
			errs.Append(err)
			continue
		}
		records[i].Rewritten = true
		if changed {
			stats.Changed++
		}
	}
	return stats, errs.Err()
}

// Rewrite rewrites the file at rel in place. source is the URL the file
// was fetched from, used to resolve its relative references. It reports
// whether the content changed.
func (rw *Rewriter) Rewrite(rel string, kind model.Kind, source *url.URL) (bool, error) {
	content, err := rw.store.Read(rel)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", rel, err)
	}
	out := rw.Transform(content, kind, rel, source)
	if bytes.Equal(out, content) {
		return false, nil
	}
	if err := rw.store.Write(rel, out); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", rel, err)
	}
	rw.logger.Debug("rewrote file", "path", rel, "kind", kind)
	return true, nil
}

// Transform returns content with the content rules applied and its
// references localized. from is the file's own local path. Content this
// Rewriter already produced for from is returned unchanged.
func (rw *Rewriter) Transform(content []byte, kind model.Kind, from string, source *url.URL) []byte {
	if rw.producedFor(from, content) {
		return content
	}
	for _, rule := range rw.rules {
		content = rule.Apply(kind, content)
	}
	content = rw.localize(content, kind, from, source)

	rw.mu.Lock()
	rw.produced[output{from: from, sum: sha3.Sum256(content)}] = struct{}{}
	rw.mu.Unlock()
	return content
}

func (rw *Rewriter) producedFor(from string, content []byte) bool {
	rw.mu.Lock()
	defer rw.mu.Unlock()
	_, ok := rw.produced[output{from: from, sum: sha3.Sum256(content)}]
	return ok
}

// localize replaces every reference that names a mirrored URL with the
// relative path from the file at from. Bytes outside recognized
// references are copied through unchanged.
func (rw *Rewriter) localize(content []byte, kind model.Kind, from string, source *url.URL) []byte {
	var (
		out     bytes.Buffer
		last    int
		changed bool
		base    = source
	)
	for sp := range extract.Scan(content, kind) {
		if sp.Start < last {
			continue
		}
		value := sp.Value(content)
		if sp.Hint == model.HintBase {
			if u, ok := extract.ResolveBase(value, source); ok {
				base = u
			}
			continue
		}
		replacement, ok := rw.localRef(strings.TrimSpace(value), from, base)
		if !ok {
			continue
		}
		if sp.Escaped {
			replacement = html.EscapeString(replacement)
		}
		if !changed {
			out.Grow(len(content))
			changed = true
		}
		out.Write(content[last:sp.Start])
		out.WriteString(replacement)
		last = sp.End
	}
	if !changed {
		return content
	}
	out.Write(content[last:])
	return out.Bytes()
}

// localRef returns the local replacement for one reference, or false to
// leave it alone.
func (rw *Rewriter) localRef(value, from string, base *url.URL) (string, bool) {
	if extract.Skippable(value) {
		return "", false
	}
	ref, fragment, hasFragment := strings.Cut(value, "#")

	u, err := model.ParseURL(ref, base)
	if err != nil {
		return "", false
	}
	target, ok := rw.index.Lookup(u)
	if !ok {
		return "", false
	}
	// Already pointing at the right file.
	if rel, ok := localpath.Join(from, ref); ok && strings.EqualFold(rel, target) {
		return "", false
	}
	local := localpath.Relative(from, target)
	if hasFragment {
		local += "#" + fragment
	}
	if local == value {
		return "", false
	}
	return local, true
}

// sourceOf returns the URL relative references in a record's file
// resolve against: the final URL after redirects, else the requested one.
func sourceOf(rec model.Record) (*url.URL, error) {
	raw := rec.URL
	if rec.FinalURL != "" {
		raw = rec.FinalURL
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid source URL %q: %w", raw, err)
	}
	return u, nil
}
