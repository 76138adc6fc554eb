package localpath

import (
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/nao1215/sitemirror/internal/model"
)

// IndexFile is the page marker file written for directory-style URLs.
const IndexFile = "index.html"

// ErrUnresolvableCollision is returned when every discriminator for a URL
// is already taken. It signals a broken invariant rather than a normal
// failure: distinct URLs have distinct digests.
var ErrUnresolvableCollision = errors.New("unresolvable local path collision")

// discriminatorLengths are the hex digest prefix lengths tried, in order,
// when two URLs want the same local path.
var discriminatorLengths = []int{8, 16, 64}

// Resolver maps remote URLs to local paths under an output root.
//
// The mapping is deterministic and idempotent within a run: the first call
// for a URL assigns a path, and every later call returns the same path.
// Two distinct URLs never share a path, and no assigned file sits where
// another assigned path needs a directory. Paths are compared
// case-insensitively so the mirror stays valid on case-insensitive
// filesystems.
//
// Resolver is safe for concurrent use.
type Resolver struct {
	mu sync.Mutex
	// assigned maps URL key to its local path.
	assigned map[string]string
	// owners maps the lowercased local path to the URL key that owns it.
	owners map[string]string
	// dirs holds every lowercased directory prefix of an assigned path.
	dirs map[string]struct{}
}

// NewResolver creates an empty Resolver.
func NewResolver() *Resolver {
	return &Resolver{
		assigned: make(map[string]string),
		owners:   make(map[string]string),
		dirs:     make(map[string]struct{}),
	}
}

// Resolve returns the slash-separated local path, relative to the output
// root, for u mirrored as kind.
func (r *Resolver) Resolve(u *url.URL, kind model.Kind) (string, error) {
	key := u.String()

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.assigned[key]; ok {
		return p, nil
	}

	candidate := Candidate(u, kind)
	if r.claimLocked(key, candidate) {
		return candidate, nil
	}

	digest := sha3.Sum256([]byte(key))
	sum := hex.EncodeToString(digest[:])
	for _, n := range discriminatorLengths {
		alt := r.alternativeLocked(candidate, sum[:n])
		if r.claimLocked(key, alt) {
			return alt, nil
		}
	}
	return "", fmt.Errorf("%w: %s -> %s", ErrUnresolvableCollision, key, candidate)
}

// alternativeLocked returns p with disc inserted. When an assigned file
// blocks one of p's directories, that directory is renamed instead of the
// file name: images/logo/big.png -> images/logo-1a2b3c4d/big.png.
func (r *Resolver) alternativeLocked(p, disc string) string {
	if i := r.fileAncestorLocked(strings.ToLower(p)); i > 0 {
		return p[:i] + "-" + disc + p[i:]
	}
	return withDiscriminator(p, disc)
}

// fileAncestorLocked returns the length of the shortest directory prefix
// of lower that is an assigned file, or 0 when there is none.
func (r *Resolver) fileAncestorLocked(lower string) int {
	for i := range len(lower) {
		if lower[i] != '/' {
			continue
		}
		if _, isFile := r.owners[lower[:i]]; isFile {
			return i
		}
	}
	return 0
}

func (r *Resolver) claimLocked(key, p string) bool {
	lower := strings.ToLower(p)
	if owner, taken := r.owners[lower]; taken && owner != key {
		return false
	}
	if _, isDir := r.dirs[lower]; isDir {
		return false
	}
	if r.fileAncestorLocked(lower) > 0 {
		return false
	}
	r.owners[lower] = key
	r.assigned[key] = p
	for i := range len(lower) {
		if lower[i] == '/' {
			r.dirs[lower[:i]] = struct{}{}
		}
	}
	return true
}

// Candidate returns the preferred local path for u before collision
// handling.
//
// Pages keep the remote directory structure: "/" becomes index.html, a path
// ending in .html or .htm keeps its name, and any other path becomes a
// directory holding index.html. Assets are grouped under their kind's
// directory (css, js, images, media, assets) followed by the original path,
// unless the original path already starts with that directory.
func Candidate(u *url.URL, kind model.Kind) string {
	segments := splitSegments(u.Path)

	if kind == model.KindPage {
		if len(segments) == 0 {
			return IndexFile
		}
		last := strings.ToLower(path.Ext(segments[len(segments)-1]))
		if last == ".html" || last == ".htm" {
			return path.Join(segments...)
		}
		return path.Join(append(segments, IndexFile)...)
	}

	dir := kind.Dir()
	if len(segments) == 0 {
		return path.Join(dir, "index")
	}
	if !strings.EqualFold(segments[0], dir) {
		segments = append([]string{dir}, segments...)
	}
	return path.Join(segments...)
}

// splitSegments splits a URL path into sanitized, non-empty segments.
func splitSegments(p string) []string {
	raw := strings.Split(p, "/")
	out := make([]string, 0, len(raw))
	for _, seg := range raw {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		out = append(out, sanitize(seg))
	}
	return out
}

// sanitize replaces characters that are invalid in file names on common
// filesystems.
func sanitize(seg string) string {
	var b strings.Builder
	b.Grow(len(seg))
	for _, r := range seg {
		switch {
		case r < 0x20 || r == 0x7f:
			b.WriteByte('_')
		case strings.ContainsRune(`<>:"\|?*`, r):
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	s := strings.TrimRight(b.String(), ". ")
	if s == "" {
		return "_"
	}
	return s
}

// withDiscriminator inserts "-<disc>" before the extension of the last
// path element, e.g. css/site.css -> css/site-1a2b3c4d.css.
func withDiscriminator(p, disc string) string {
	dir, file := path.Split(p)
	ext := path.Ext(file)
	stem := strings.TrimSuffix(file, ext)
	return dir + stem + "-" + disc + ext
}
