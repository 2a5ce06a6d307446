package store

import (
	"context"
	"time"
)

// Point is one recorded value of a dashboard metric.
type Point struct {
	// Name identifies the metric, e.g. "cpu_percent".
	Name string `json:"name"`

	// Value is the recorded value.
	Value float64 `json:"value"`

	// At is when the snapshot holding the value was fetched.
	At time.Time `json:"at"`
}

// Sample is the set of values taken from one metrics snapshot.
type Sample struct {
	At     time.Time
	Values map[string]float64
}

// Points flattens the sample, ordered by name.
func (s Sample) Points() []Point {
	points := make([]Point, 0, len(s.Values))
	for _, name := range sortedKeys(s.Values) {
		points = append(points, Point{Name: name, Value: s.Values[name], At: s.At})
	}
	return points
}

// Store keeps the history of dashboard metrics.
//
// Store implementations must be safe for concurrent access. Recorded points
// are also published to subscribers so that live views can append them
// without polling [Store.Query].
type Store interface {
	// Record persists all values of a sample atomically and publishes them.
	Record(ctx context.Context, sample Sample) error

	// Query returns the points of one metric recorded at or after since,
	// oldest first. A zero since returns everything retained.
	Query(ctx context.Context, name string, since time.Time) ([]Point, error)

	// Names returns the metric names that have history, sorted.
	Names(ctx context.Context) ([]string, error)

	// Subscribe returns a channel that receives every recorded point.
	// The returned channel has a buffer; slow consumers may miss points.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Point

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Point)

	// Close releases resources and closes all subscriber channels.
	Close() error
}
