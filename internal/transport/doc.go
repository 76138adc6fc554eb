// Package transport builds the HTTP clients used to fetch a site.
//
// A Client carries the connection-level settings of a run: an optional
// HTTP or SOCKS5 proxy (golang.org/x/net/proxy), the overall request
// timeout, the user agent injected into every request, and the cookie and
// headers injected only into requests to the site host. Redirects are
// followed up to a fixed limit and cookies set by the site are kept in a
// per-client jar.
//
// # Usage
//
//	c, err := transport.NewClient(
//		transport.WithProxy("socks5://127.0.0.1:1080"),
//		transport.WithCookie("session=abc"),
//		transport.WithSiteHost("example.webflow.io"),
//	)
//	if err != nil {
//		return err
//	}
//	httpClient := c.HTTPClient()
package transport
