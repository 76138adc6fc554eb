package localpath

import (
	"net/url"
	"path"
	"strings"
)

// Relative returns the URL-escaped relative reference from the file at
// from to the file at to. Both are slash-separated paths relative to the
// output root.
//
//	Relative("about/index.html", "index.html") == "../index.html"
func Relative(from, to string) string {
	fromDir := splitSegments(path.Dir(from))
	target := splitSegments(to)

	common := 0
	for common < len(fromDir) && common < len(target)-1 && fromDir[common] == target[common] {
		common++
	}

	parts := make([]string, 0, len(fromDir)-common+len(target)-common)
	for range fromDir[common:] {
		parts = append(parts, "..")
	}
	parts = append(parts, target[common:]...)

	return (&url.URL{Path: strings.Join(parts, "/")}).String()
}

// Join resolves a relative reference found in the file at from into a
// slash-separated path relative to the output root. It returns false when
// the reference leaves the output root or is not a plain relative path.
func Join(from, ref string) (string, bool) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Opaque != "" {
		return "", false
	}
	if u.Path == "" || strings.HasPrefix(u.Path, "/") {
		return "", false
	}
	joined := path.Join(path.Dir(from), u.Path)
	if joined == ".." || strings.HasPrefix(joined, "../") {
		return "", false
	}
	return path.Join(splitSegments(joined)...), true
}
