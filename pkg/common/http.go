package common

import (
	_ "embed"
	"net/http"
	"strings"
	"time"
)

//go:embed VERSION
var version string

// UserAgent is sent on every request made through HTTPClient.
func UserAgent() string {
	return "FranklinWH-Go/" + strings.TrimSpace(version)
}

type userAgentTransport struct {
	transport http.RoundTripper
	userAgent string
}

// RoundTrip implements http.RoundTripper
func (t *userAgentTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// Clone the request to avoid modifying the original request's headers
	// which might be shared or reused
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", t.userAgent)
	return t.transport.RoundTrip(req)
}

// HTTPClient returns a default http client with a default user-agent set. The
// timeout covers the whole exchange including reading the body.
func HTTPClient(timeout time.Duration) *http.Client {
	return WrapClient(&http.Client{Timeout: timeout})
}

// WrapClient installs the user-agent transport on c, keeping c's existing
// transport (or the default one) underneath.
func WrapClient(c *http.Client) *http.Client {
	base := c.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	if _, ok := base.(*userAgentTransport); ok {
		return c
	}
	wrapped := *c
	wrapped.Transport = &userAgentTransport{
		transport: base,
		userAgent: UserAgent(),
	}
	return &wrapped
}
