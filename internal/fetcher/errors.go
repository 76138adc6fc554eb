package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ErrBodyTooLarge is wrapped by FetchError when a response exceeds the
// configured maximum artifact size.
var ErrBodyTooLarge = errors.New("response body exceeds size limit")

// ErrOffSiteRedirect is wrapped by FetchError when a redirect leaves the
// mirrored site.
var ErrOffSiteRedirect = errors.New("redirect leaves the mirrored site")

var errNotHTTP = errors.New("not an absolute http(s) URL")

// FailureKind classifies why a fetch failed.
type FailureKind int

const (
	// FailureTimeout means the request or the body read timed out.
	FailureTimeout FailureKind = iota + 1
	// FailureConnection means the connection could not be made or broke.
	FailureConnection
	// FailureHTTP means the server answered with a non-success status.
	FailureHTTP
	// FailureTooLarge means the body exceeded the size limit.
	FailureTooLarge
	// FailureMalformedURL means the URL cannot be requested at all.
	FailureMalformedURL
	// FailureCanceled means the crawl was stopped before the fetch finished.
	FailureCanceled
	// FailureOffSiteRedirect means the server redirected outside the site.
	FailureOffSiteRedirect
)

// String returns the failure kind name used in reports.
func (k FailureKind) String() string {
	switch k {
	case FailureTimeout:
		return "timeout"
	case FailureConnection:
		return "connection-error"
	case FailureHTTP:
		return "http-error"
	case FailureTooLarge:
		return "too-large"
	case FailureMalformedURL:
		return "malformed-url"
	case FailureCanceled:
		return "canceled"
	case FailureOffSiteRedirect:
		return "off-site-redirect"
	default:
		return "unknown"
	}
}

// FetchError is the classified failure of a single fetch.
type FetchError struct {
	Kind FailureKind

	// URL is the requested URL.
	URL string

	// StatusCode is set for FailureHTTP.
	StatusCode int

	// Location is the refused redirect target for FailureOffSiteRedirect.
	Location string

	// Attempts is the number of requests made, retries included.
	Attempts int

	Err error
}

// Error implements error.
func (e *FetchError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Kind == FailureHTTP {
		fmt.Fprintf(&b, " %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	fmt.Fprintf(&b, ": %s", e.URL)
	if e.Attempts > 1 {
		fmt.Fprintf(&b, " (after %d attempts)", e.Attempts)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure is transient: timeouts, dropped
// connections, HTTP 5xx and HTTP 429. A host that does not resolve is not
// retried.
func (e *FetchError) Retryable() bool {
	switch e.Kind {
	case FailureTimeout:
		return true
	case FailureConnection:
		var dnsErr *net.DNSError
		if errors.As(e.Err, &dnsErr) && dnsErr.IsNotFound {
			return false
		}
		return true
	case FailureHTTP:
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	default:
		return false
	}
}

// KindOf returns the failure kind of err, or 0 when err is not a FetchError.
func KindOf(err error) FailureKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// classifyTransportError maps an error from http.Client.Do or a body read
// to a failure kind.
func classifyTransportError(ctx context.Context, err error) FailureKind {
	switch {
	case errors.Is(err, ErrOffSiteRedirect):
		return FailureOffSiteRedirect
	case errors.Is(err, ErrBodyTooLarge):
		return FailureTooLarge
	case errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled):
		return FailureCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTimeout
	}
	return FailureConnection
}
