package store

import (
	"context"
	"slices"
	"sync"
	"time"
)

// DefaultCapacity is the number of points MemoryStore keeps per metric.
const DefaultCapacity = 1000

// ring is a fixed-size FIFO of points; the oldest point is overwritten once
// it is full.
type ring struct {
	buf   []Point
	start int
	n     int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]Point, capacity)}
}

func (r *ring) push(p Point) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = p
		r.n++
		return
	}
	r.buf[r.start] = p
	r.start = (r.start + 1) % len(r.buf)
}

// since returns the points at or after t, oldest first.
func (r *ring) since(t time.Time) []Point {
	out := make([]Point, 0, r.n)
	for i := 0; i < r.n; i++ {
		p := r.buf[(r.start+i)%len(r.buf)]
		if p.At.Before(t) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// MemoryStore is an in-memory implementation of [Store].
//
// Each metric keeps at most capacity points; recording beyond that drops the
// oldest point of that metric. History is lost when the process exits.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	series   map[string]*ring
	hub      *hub
}

// NewMemoryStore creates a [MemoryStore] keeping capacity points per metric.
// A non-positive capacity uses [DefaultCapacity].
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		series:   make(map[string]*ring),
		hub:      newHub(),
	}
}

// Record appends every value of sample and notifies subscribers.
func (m *MemoryStore) Record(ctx context.Context, sample Sample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	points := sample.Points()
	if len(points) == 0 {
		return nil
	}

	m.mu.Lock()
	for _, p := range points {
		r, ok := m.series[p.Name]
		if !ok {
			r = newRing(m.capacity)
			m.series[p.Name] = r
		}
		r.push(p)
	}
	m.mu.Unlock()

	m.hub.publish(points)
	return nil
}

// Query returns the retained points of name at or after since.
func (m *MemoryStore) Query(ctx context.Context, name string, since time.Time) ([]Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.series[name]
	if !ok {
		return []Point{}, nil
	}
	return r.since(since), nil
}

// Names returns the recorded metric names, sorted.
func (m *MemoryStore) Names(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.series))
	for name := range m.series {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// Subscribe creates a new subscription and returns a channel for receiving
// recorded points. The channel has a buffer of 100 points.
func (m *MemoryStore) Subscribe() <-chan Point {
	return m.hub.subscribe()
}

// Unsubscribe removes a subscription and closes its channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Point) {
	m.hub.unsubscribe(ch)
}

// Close closes all subscriber channels. The recorded history stays readable.
func (m *MemoryStore) Close() error {
	m.hub.close()
	return nil
}
