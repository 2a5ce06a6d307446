package store

import (
	"slices"
	"sync"
)

const subscriberBuffer = 100

// hub fans recorded points out to subscribers. Sends are non-blocking; if a
// subscriber's buffer is full the point is dropped for that subscriber.
type hub struct {
	mu          sync.RWMutex
	subscribers map[chan Point]struct{}
	closed      bool
}

func newHub() *hub {
	return &hub{subscribers: make(map[chan Point]struct{})}
}

func (h *hub) subscribe() <-chan Point {
	ch := make(chan Point, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers[ch] = struct{}{}
	return ch
}

func (h *hub) unsubscribe(ch <-chan Point) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// find and delete the channel (need to convert to the right type)
	for subCh := range h.subscribers {
		if subCh == ch {
			delete(h.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

func (h *hub) publish(points []Point) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subscribers {
		for _, p := range points {
			select {
			case ch <- p:
			default:
				// subscriber is slow, drop the point
			}
		}
	}
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		delete(h.subscribers, ch)
		close(ch)
	}
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
