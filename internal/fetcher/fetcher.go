package fetcher

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cloudeng.io/net/ratecontrol"
	"github.com/andybalholm/brotli"
)

const (
	// DefaultMaxBodySize is the largest artifact accepted (50 MiB).
	DefaultMaxBodySize int64 = 50 << 20

	// DefaultRetries is how many times a transient failure is retried.
	DefaultRetries = 3

	// DefaultInitialBackoff is the first retry delay; it doubles per retry.
	DefaultInitialBackoff = 500 * time.Millisecond
)

// Fetcher retrieves a single URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Response, error)
}

// Response is a successful fetch.
type Response struct {
	// URL is the requested URL.
	URL *url.URL

	// FinalURL is the URL after redirects. Relative references in the body
	// resolve against it.
	FinalURL *url.URL

	StatusCode  int
	ContentType string
	Header      http.Header

	// Body is the decoded body.
	Body []byte

	// Attempts is the number of requests made, retries included.
	Attempts int
}

// HTTPFetcher implements Fetcher over an http.Client with retry and
// exponential backoff.
type HTTPFetcher struct {
	client         *http.Client
	maxBodySize    int64
	retries        int
	initialBackoff time.Duration
	allowRedirect  func(*url.URL) bool
	logger         *slog.Logger
}

// Option configures an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithMaxBodySize sets the maximum decoded body size in bytes.
func WithMaxBodySize(n int64) Option {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBodySize = n
		}
	}
}

// WithRetries sets how many times a transient failure is retried.
// Zero disables retries.
func WithRetries(n int) Option {
	return func(f *HTTPFetcher) {
		if n >= 0 {
			f.retries = n
		}
	}
}

// WithInitialBackoff sets the delay before the first retry.
func WithInitialBackoff(d time.Duration) Option {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.initialBackoff = d
		}
	}
}

// WithRedirectFilter refuses to follow a redirect whose target fails
// allow. The fetch then fails with FailureOffSiteRedirect and the target is
// reported in FetchError.Location.
func WithRedirectFilter(allow func(*url.URL) bool) Option {
	return func(f *HTTPFetcher) {
		f.allowRedirect = allow
	}
}

// WithLogger sets the logger for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(f *HTTPFetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewHTTPFetcher creates a fetcher that sends requests with client.
// A nil client uses http.DefaultClient.
func NewHTTPFetcher(client *http.Client, opts ...Option) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	f := &HTTPFetcher{
		client:         client,
		maxBodySize:    DefaultMaxBodySize,
		retries:        DefaultRetries,
		initialBackoff: DefaultInitialBackoff,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.allowRedirect != nil {
		f.client = filterRedirects(client, f.allowRedirect)
	}
	return f
}

// redirectError carries the refused redirect target out of CheckRedirect.
type redirectError struct {
	target *url.URL
}

func (e *redirectError) Error() string {
	return fmt.Sprintf("%v: %s", ErrOffSiteRedirect, e.target)
}

func (e *redirectError) Unwrap() error {
	return ErrOffSiteRedirect
}

// filterRedirects returns a copy of client whose CheckRedirect refuses
// targets that fail allow before applying the client's own policy.
func filterRedirects(client *http.Client, allow func(*url.URL) bool) *http.Client {
	c := *client
	next := client.CheckRedirect
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if !allow(req.URL) {
			return &redirectError{target: req.URL}
		}
		if next != nil {
			return next(req, via)
		}
		if len(via) >= 10 {
			return errors.New("stopped after 10 redirects")
		}
		return nil
	}
	return &c
}

// Fetch downloads rawURL. Transient failures are retried with exponential
// backoff; every other failure returns immediately. The returned error is
// always a *FetchError.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &FetchError{Kind: FailureMalformedURL, URL: rawURL, Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &FetchError{Kind: FailureMalformedURL, URL: rawURL, Err: errNotHTTP}
	}

	backoff := ratecontrol.NewExpontentialBackoff(f.initialBackoff, f.retries)
	for attempt := 1; ; attempt++ {
		resp, fe := f.fetchOnce(ctx, u)
		if fe == nil {
			resp.Attempts = attempt
			return resp, nil
		}
		fe.Attempts = attempt
		if !fe.Retryable() {
			return nil, fe
		}

		done, werr := backoff.Wait(ctx, nil)
		if werr != nil {
			return nil, &FetchError{Kind: FailureCanceled, URL: rawURL, Attempts: attempt, Err: werr}
		}
		if done {
			return nil, fe
		}
		f.logger.Debug("retrying fetch",
			"url", rawURL,
			"attempt", attempt+1,
			"error", fe)
	}
}

// fetchOnce performs one request.
func (f *HTTPFetcher) fetchOnce(ctx context.Context, u *url.URL) (*Response, *FetchError) {
	rawURL := u.String()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: FailureMalformedURL, URL: rawURL, Err: err}
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/css,*/*;q=0.8")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	resp, err := f.client.Do(req)
	if err != nil {
		fe := &FetchError{Kind: classifyTransportError(ctx, err), URL: rawURL, Err: err}
		var re *redirectError
		if errors.As(err, &re) {
			fe.Location = re.target.String()
		}
		return nil, fe
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{Kind: FailureHTTP, URL: rawURL, StatusCode: resp.StatusCode}
	}
	if resp.ContentLength > f.maxBodySize && resp.Header.Get("Content-Encoding") == "" {
		return nil, &FetchError{
			Kind: FailureTooLarge,
			URL:  rawURL,
			Err:  fmt.Errorf("%w: declared %d bytes, limit %d", ErrBodyTooLarge, resp.ContentLength, f.maxBodySize),
		}
	}

	body, err := f.readBody(resp)
	if err != nil {
		return nil, &FetchError{Kind: classifyTransportError(ctx, err), URL: rawURL, Err: err}
	}

	finalURL := u
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	return &Response{
		URL:         u,
		FinalURL:    finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header.Clone(),
		Body:        body,
	}, nil
}

// readBody decodes the Content-Encoding and reads at most maxBodySize
// bytes.
func (f *HTTPFetcher) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	var closers []io.Closer

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, f.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBodySize {
		return nil, fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, f.maxBodySize)
	}
	return body, nil
}

// IsCanceled reports whether err is a fetch stopped by cancellation.
func IsCanceled(err error) bool {
	return KindOf(err) == FailureCanceled || errors.Is(err, context.Canceled)
}
