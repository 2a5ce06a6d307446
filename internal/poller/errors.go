package poller

import "fmt"

// FetchError reports a transport-level failure of a metrics fetch: the
// request could not be sent, the body could not be read, or the server
// answered with a non-2xx status.
type FetchError struct {
	// URL is the metrics endpoint that was requested.
	URL string

	// StatusCode is the HTTP status returned by the server.
	// Zero when no response was received.
	StatusCode int

	// Err is the underlying transport error, if any.
	Err error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("metrics fetch failed (status %d): %v", e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("metrics fetch failed: HTTP status %d", e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("metrics fetch failed: %v", e.Err)
	}
	return "metrics fetch failed"
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// SubscriberError reports a subscriber callback that panicked while a state
// update was being delivered. The full stack is only logged; the error itself
// carries the correlation ID to find it.
type SubscriberError struct {
	// CorrelationID links the error to the server-side log entry.
	CorrelationID string

	// Panic is the recovered panic value.
	Panic any
}

func (e *SubscriberError) Error() string {
	return fmt.Sprintf("subscriber callback panicked: %v (correlation_id: %s)", e.Panic, e.CorrelationID)
}
