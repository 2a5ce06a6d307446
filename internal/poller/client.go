package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// exposition documents of a busy JVM run to a few hundred KB
const maxResponseBodySize = 8 << 20 // 8MB

// connection pooling limits; the console talks to a single backend host
const (
	defaultMaxIdleConns        = 10
	defaultMaxIdleConnsPerHost = 4
	defaultMaxConnsPerHost     = 4
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// Response holds the result of an HTTP request made by [Client].
type Response struct {
	// Body contains the HTTP response body, limited to 8MB.
	Body []byte

	// StatusCode is the HTTP status code (e.g., 200, 404, 500).
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any error that occurred during the request.
	// nil indicates the request completed (though status may indicate an error).
	Error error
}

// Client is an HTTP client wrapper for retrieving the metrics exposition.
//
// Client applies an optional per-request timeout via context rather than a
// global client timeout. Response bodies are limited to 8MB.
type Client struct {
	httpClient *http.Client
}

// NewPooledTransport returns the base transport used by the console for all
// backend traffic. Callers usually wrap it with the bearer-token transport.
func NewPooledTransport() *http.Transport {
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        defaultMaxIdleConns,
		MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
		MaxConnsPerHost:     defaultMaxConnsPerHost,
		IdleConnTimeout:     defaultIdleConnTimeout,
		DisableKeepAlives:   false, // explicitly enable connection reuse
	}
}

// NewClient creates a new [Client] that sends requests through rt.
//
// If rt is nil a pooled transport from [NewPooledTransport] is used. The
// console passes the shared bearer-token transport here so that the metrics
// request gets the same credential handling as every other API call.
func NewClient(rt http.RoundTripper) *Client {
	if rt == nil {
		rt = NewPooledTransport()
	}
	return &Client{
		// no default timeout - timeouts are per-request via context
		httpClient: &http.Client{Transport: rt},
	}
}

// Fetch performs a GET request and returns a structured [Response].
//
// A timeout of zero means no timeout beyond the parent context. Fetch always
// returns a Response; errors are captured in the Error field rather than
// returned separately.
func (c *Client) Fetch(ctx context.Context, url string, headers map[string]string, timeout time.Duration) Response {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode,
		Latency:    time.Since(start),
	}
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close, the client remains usable but
// new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	c.httpClient.CloseIdleConnections()
}
