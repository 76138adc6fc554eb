package model

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	// ErrUnsupportedScheme is returned when a URL is not http or https.
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")

	// ErrMissingHost is returned when an absolute URL has no host.
	ErrMissingHost = errors.New("URL has no host")

	// ErrUnknownKind is returned when a kind name cannot be parsed.
	ErrUnknownKind = errors.New("unknown resource kind")
)

// Reference is a normalized absolute URL together with what is known
// about it at discovery time.
//
// Two references whose URLs normalize identically are the same entity:
// Key is the identity used by the frontier, the path resolver and the
// rewriter index.
type Reference struct {
	// URL is the normalized absolute URL.
	URL *url.URL

	// Kind is the classification at discovery time. The crawler refines it
	// once the server's content type is known.
	Kind Kind

	// Hint is the markup context the reference was found in.
	Hint Hint

	// Referrer is the key of the page the reference was discovered on.
	// It is empty for the seed.
	Referrer string
}

// Key returns the identity of the reference.
func (r Reference) Key() string {
	if r.URL == nil {
		return ""
	}
	return r.URL.String()
}

// ParseURL parses raw and resolves it against base (which may be nil for
// absolute input), then normalizes the result.
func ParseURL(raw string, base *url.URL) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if base != nil {
		u = base.ResolveReference(u)
	}
	return Normalize(u)
}

// Normalize returns the canonical form of an absolute http(s) URL.
//
// The fragment is dropped, dot segments are resolved, scheme and host are
// lowercased, default ports are removed, an empty path becomes "/" and a
// trailing slash on any other path is removed so that /about and /about/
// name the same page. The input is not modified.
func Normalize(u *url.URL) (*url.URL, error) {
	if u == nil {
		return nil, ErrMissingHost
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if u.Host == "" {
		return nil, ErrMissingHost
	}

	n := *u
	n.Scheme = scheme
	n.Fragment = ""
	n.RawFragment = ""
	n.ForceQuery = false
	n.Opaque = ""
	n.Host = canonicalHost(scheme, u.Host)

	// Resolving an absolute URL against itself removes "." and ".." segments.
	n = *n.ResolveReference(&n)
	n.Fragment = ""
	n.RawFragment = ""

	if n.Path == "" {
		n.Path = "/"
		n.RawPath = ""
	}
	if len(n.Path) > 1 && strings.HasSuffix(n.Path, "/") {
		n.Path = strings.TrimRight(n.Path, "/")
		if n.Path == "" {
			n.Path = "/"
		}
		n.RawPath = strings.TrimRight(n.RawPath, "/")
	}
	if n.RawQuery == "" {
		n.ForceQuery = false
	}
	return &n, nil
}

// canonicalHost lowercases the host and strips the scheme's default port.
func canonicalHost(scheme, host string) string {
	host = strings.ToLower(host)
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		if strings.Contains(h, ":") {
			return "[" + h + "]"
		}
		return h
	}
	return host
}
