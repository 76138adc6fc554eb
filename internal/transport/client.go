package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/proxy"
)

const (
	// DefaultTimeout bounds a whole request, redirects and body included.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent identifies the mirror to remote servers.
	DefaultUserAgent = "sitemirror/1.0 (+https://github.com/nao1215/sitemirror)"

	// maxRedirects stops redirect loops while allowing normal chains.
	maxRedirects = 10
)

// Client builds HTTP clients for the crawl, optionally routed through an
// HTTP or SOCKS5 proxy.
type Client struct {
	proxyURL  *url.URL
	dialer    proxy.Dialer
	timeout   time.Duration
	userAgent string
	cookie    string
	headers   map[string]string
	siteHost  string
}

// Option configures a Client.
type Option func(*Client) error

// WithProxy routes every request through the proxy at raw, which must be an
// http, https, socks5 or socks5h URL with a host and port
// (e.g., "socks5://127.0.0.1:1080"). An empty string means a direct
// connection.
func WithProxy(raw string) Option {
	return func(c *Client) error {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil
		}
		u, err := url.Parse(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidProxyAddress, err)
		}
		if !isValidProxyAddress(u.Host) {
			return fmt.Errorf("%w: %q", ErrInvalidProxyAddress, raw)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
		case "socks5", "socks5h":
			dialer, err := proxy.FromURL(u, proxy.Direct)
			if err != nil {
				return fmt.Errorf("failed to create SOCKS5 dialer: %w", err)
			}
			c.dialer = dialer
		default:
			return fmt.Errorf("%w: %q", ErrUnsupportedProxyScheme, u.Scheme)
		}
		c.proxyURL = u
		return nil
	}
}

// WithTimeout sets the overall request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d > 0 {
			c.timeout = d
		}
		return nil
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) error {
		if ua != "" {
			c.userAgent = ua
		}
		return nil
	}
}

// WithCookie sends a raw cookie string (e.g., "session=abc") with every
// request to the site host.
func WithCookie(cookie string) Option {
	return func(c *Client) error {
		c.cookie = cookie
		return nil
	}
}

// WithHeaders sends extra headers with every request to the site host.
func WithHeaders(headers map[string]string) Option {
	return func(c *Client) error {
		c.headers = make(map[string]string, len(headers))
		for k, v := range headers {
			c.headers[k] = v
		}
		return nil
	}
}

// WithSiteHost names the host ("example.com" or "127.0.0.1:8080") that
// receives the cookie and custom headers. Requests to any other host,
// including redirect targets, go out without them. Without a site host the
// cookie and headers are never sent.
func WithSiteHost(host string) Option {
	return func(c *Client) error {
		c.siteHost = strings.ToLower(strings.TrimSpace(host))
		return nil
	}
}

// NewClient creates a Client. It validates the proxy configuration but does
// not connect to anything.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		timeout:   DefaultTimeout,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ProxyAddress returns the proxy URL, or "" for a direct connection.
func (c *Client) ProxyAddress() string {
	if c.proxyURL == nil {
		return ""
	}
	return c.proxyURL.Redacted()
}

// HTTPClient returns a new HTTP client with the configured proxy, cookie
// jar, redirect limit and injected headers.
//
// Transparent decompression is disabled: the fetcher advertises and decodes
// gzip, deflate and brotli itself so the size limit applies to decoded bytes.
func (c *Client) HTTPClient() *http.Client {
	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: time.Second,
		DisableCompression:    true,
	}
	switch {
	case c.dialer != nil:
		transport.DialContext = c.dialContext
	case c.proxyURL != nil:
		transport.Proxy = http.ProxyURL(c.proxyURL)
	}

	jar, _ := cookiejar.New(nil) //nolint:errcheck // cookiejar.New only fails with invalid options

	return &http.Client{
		Transport: &headerInjectingTransport{
			base:      transport,
			userAgent: c.userAgent,
			cookie:    c.cookie,
			headers:   c.headers,
		},
		Timeout: c.timeout,
		Jar:     jar,
		CheckRedirect: func(_ *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// dialContext dials through the SOCKS5 dialer, honoring ctx when the dialer
// supports it.
func (c *Client) dialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if cd, ok := c.dialer.(proxy.ContextDialer); ok {
		return cd.DialContext(ctx, network, address)
	}

	type dialResult struct {
		conn net.Conn
		err  error
	}
	resultCh := make(chan dialResult, 1)
	go func() {
		conn, err := c.dialer.Dial(network, address)
		resultCh <- dialResult{conn, err}
	}()

	select {
	case result := <-resultCh:
		return result.conn, result.err
	case <-ctx.Done():
		go func() {
			if result := <-resultCh; result.conn != nil {
				_ = result.conn.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

// isValidProxyAddress checks that address is "host:port" with a non-empty
// host and a port in 1-65535.
func isValidProxyAddress(address string) bool {
	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" || port == "" {
		return false
	}
	n, err := strconv.Atoi(port)
	return err == nil && n >= 1 && n <= 65535
}

// headerInjectingTransport wraps an http.RoundTripper to inject the user
// agent into every request, redirects included. The cookie and custom
// headers only go to siteHost.
type headerInjectingTransport struct {
	base      http.RoundTripper
	userAgent string
	cookie    string
	headers   map[string]string
	siteHost  string
}

// RoundTrip implements http.RoundTripper.
func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if t.userAgent != "" && clone.Header.Get("User-Agent") == "" {
		clone.Header.Set("User-Agent", t.userAgent)
	}
	if t.siteHost == "" || !strings.EqualFold(clone.URL.Host, t.siteHost) {
		return t.base.RoundTrip(clone)
	}
	if t.cookie != "" {
		if existing := clone.Header.Get("Cookie"); existing != "" {
			clone.Header.Set("Cookie", existing+"; "+t.cookie)
		} else {
			clone.Header.Set("Cookie", t.cookie)
		}
	}
	for key, value := range t.headers {
		clone.Header.Set(key, value)
	}

	return t.base.RoundTrip(clone)
}
