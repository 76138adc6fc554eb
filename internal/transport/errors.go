package transport

import "errors"

var (
	// ErrInvalidProxyAddress is returned when the proxy URL has no valid
	// host:port.
	ErrInvalidProxyAddress = errors.New("invalid proxy address: expected scheme://host:port")

	// ErrUnsupportedProxyScheme is returned for proxy schemes other than
	// http, https, socks5 and socks5h.
	ErrUnsupportedProxyScheme = errors.New("unsupported proxy scheme")
)
