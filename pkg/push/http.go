package push

import (
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"time"
)

// HTTPClient defines the interface for making HTTP requests.
// Hosts can supply their own transport; tests use httptest servers.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// defaultHTTPClient is a production HTTP client with sensible defaults.
type defaultHTTPClient struct {
	client *http.Client
}

// newDefaultHTTPClient creates an HTTP client tuned for short push round trips.
func newDefaultHTTPClient(timeout time.Duration, tlsConfig *tls.Config) HTTPClient {
	customTLS := tlsConfig
	if customTLS == nil {
		customTLS = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	} else {
		customTLS = tlsConfig.Clone()
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       customTLS,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: timeout,
	}

	return &defaultHTTPClient{
		client: &http.Client{
			Timeout:   timeout,
			Transport: &retryTransport{base: transport, maxRetries: 3, initialBackoff: 100 * time.Millisecond},
		},
	}
}

// Do executes the HTTP request.
func (c *defaultHTTPClient) Do(req *http.Request) (*http.Response, error) {
	return c.client.Do(req)
}

// retryTransport retries requests that never reached the server. Signed
// registration and approval POSTs are not idempotent, so any response, and any
// error after the connection was established, is returned as is.
type retryTransport struct {
	base           http.RoundTripper
	maxRetries     int
	initialBackoff time.Duration
}

// RoundTrip implements http.RoundTripper with retry logic.
func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	attempts := t.maxRetries
	if attempts < 1 || (req.Body != nil && req.GetBody == nil) {
		attempts = 1
	}

	backoff := t.initialBackoff
	for attempt := 0; ; attempt++ {
		r := req
		if attempt > 0 && req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r = req.Clone(req.Context())
			r.Body = body
		}

		resp, err := t.base.RoundTrip(r)
		if err == nil || !isDialError(err) || attempt == attempts-1 {
			return resp, err
		}

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// isDialError reports whether err happened while connecting, before any
// part of the request was written.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}
