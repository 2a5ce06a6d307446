package poller

import (
	"context"
	"time"

	"github.com/jpalmerr/opsconsole/exposition"
)

// MetricsFetcher retrieves and parses one metrics snapshot.
// [Broadcaster] depends on this interface so tests can inject fakes.
type MetricsFetcher interface {
	Fetch(ctx context.Context) (*exposition.Snapshot, error)
}

// Fetcher performs exactly one GET against the metrics endpoint per call and
// hands the body to [exposition.Parse]. It never retries.
type Fetcher struct {
	client  *Client
	url     string
	timeout time.Duration
}

// NewFetcher creates a [Fetcher] for url using client. A zero timeout leaves
// the request bounded only by the transport.
func NewFetcher(client *Client, url string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		client:  client,
		url:     url,
		timeout: timeout,
	}
}

// URL returns the metrics endpoint this fetcher requests.
func (f *Fetcher) URL() string {
	return f.url
}

// Fetch requests the exposition text and parses it.
//
// Network failures and non-2xx responses are returned as *[FetchError].
// Parsing cannot fail.
func (f *Fetcher) Fetch(ctx context.Context) (*exposition.Snapshot, error) {
	resp := f.client.Fetch(ctx, f.url, map[string]string{"Accept": "text/plain"}, f.timeout)
	if resp.Error != nil {
		return nil, &FetchError{URL: f.url, StatusCode: resp.StatusCode, Err: resp.Error}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{URL: f.url, StatusCode: resp.StatusCode}
	}
	return exposition.Parse(string(resp.Body)), nil
}
