package poller

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/opsconsole/exposition"
)

// DefaultInterval is the time between two poll cycles.
const DefaultInterval = 10 * time.Second

// State is what subscribers receive: the latest good snapshot, whether a
// fetch is in flight, and the most recent failure.
//
// Metrics is nil until the first successful fetch. A failed fetch leaves
// Metrics untouched and sets Err, so consumers can keep showing the last good
// snapshot. UpdatedAt is when Metrics was fetched.
type State struct {
	Metrics   *exposition.Snapshot
	UpdatedAt time.Time
	Loading   bool
	Err       error
}

// Callback receives state updates. Callbacks run synchronously on the
// polling goroutine and must not block; they may call [Broadcaster.Snapshot]
// or their own unsubscribe function but must not call [Broadcaster.Subscribe].
type Callback func(State)

// Observer receives lifecycle events, used for self-instrumentation.
// Implementations must be safe for concurrent use.
type Observer interface {
	CycleCompleted(elapsed time.Duration, snap *exposition.Snapshot, err error)
	SubscribersChanged(n int)
	SubscriberPanicked()
}

type noopObserver struct{}

func (noopObserver) CycleCompleted(time.Duration, *exposition.Snapshot, error) {}
func (noopObserver) SubscribersChanged(int)                                    {}
func (noopObserver) SubscriberPanicked()                                       {}

type subscription struct {
	cb   Callback
	live atomic.Bool
}

// Broadcaster polls the metrics endpoint while anyone is subscribed and fans
// every result out to all subscribers.
//
// Polling starts when the subscriber count goes from zero to one and stops
// when it drops back to zero. Each start performs one immediate cycle, then
// one cycle per interval. Cycles never overlap: they are serialized, and the
// loop runs them inline so ticks that fire during a slow cycle are dropped.
//
// The latest state survives a stop; a later subscriber sees it immediately
// and triggers a fresh immediate cycle.
//
// All methods are safe for concurrent use.
type Broadcaster struct {
	fetcher  MetricsFetcher
	interval time.Duration
	logger   *slog.Logger
	observer Observer

	// baseCtx bounds fetches; it is only cancelled by Close, never by an
	// unsubscribe, so an in-flight fetch always runs to completion.
	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu        sync.Mutex
	metrics   *exposition.Snapshot
	updatedAt time.Time
	err       error
	inFlight  bool
	pending   int // loops started whose first cycle has not begun yet
	subs      []*subscription
	stop      context.CancelFunc // non-nil while polling
	closed    bool

	cycleMu   sync.Mutex // single-flight
	deliverMu sync.Mutex // orders initial pushes against notification passes
}

// BroadcasterOption configures a [Broadcaster].
type BroadcasterOption func(*Broadcaster)

// WithObserver registers an [Observer] for lifecycle events.
func WithObserver(o Observer) BroadcasterOption {
	return func(b *Broadcaster) {
		if o != nil {
			b.observer = o
		}
	}
}

// NewBroadcaster creates a [Broadcaster] that polls fetcher every interval.
//
// A non-positive interval falls back to [DefaultInterval]; a nil logger to
// [slog.Default]. Nothing is fetched until the first [Broadcaster.Subscribe].
func NewBroadcaster(fetcher MetricsFetcher, interval time.Duration, logger *slog.Logger, opts ...BroadcasterOption) *Broadcaster {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Broadcaster{
		fetcher:    fetcher,
		interval:   interval,
		logger:     logger,
		observer:   noopObserver{},
		baseCtx:    ctx,
		baseCancel: cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Interval returns the time between poll cycles.
func (b *Broadcaster) Interval() time.Duration {
	return b.interval
}

// Subscribe registers cb and returns a function that removes it.
//
// Before returning, Subscribe invokes cb once with the current state, even if
// nothing has been fetched yet. If cb is the first subscriber, polling
// starts. Every call is a distinct registration; the returned function is
// idempotent. A panic in cb is recovered and recorded as the latest error.
func (b *Broadcaster) Subscribe(cb Callback) (unsubscribe func()) {
	if cb == nil {
		return func() {}
	}

	sub := &subscription{cb: cb}
	sub.live.Store(true)

	b.deliverMu.Lock()
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	n := len(b.subs)
	if n == 1 && b.stop == nil && !b.closed {
		b.startLocked()
	}
	state := b.stateLocked()
	b.mu.Unlock()

	b.observer.SubscribersChanged(n)
	b.invoke(sub, state)
	b.deliverMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(sub) })
	}
}

// Snapshot returns the current state without side effects. It can be called
// before any subscription exists.
func (b *Broadcaster) Snapshot() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

// Subscribers returns the number of registered subscribers.
func (b *Broadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Polling reports whether the polling loop is active.
func (b *Broadcaster) Polling() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stop != nil
}

// Refresh runs one poll cycle immediately and notifies subscribers. It waits
// for any in-flight cycle first, so it never overlaps with the loop.
// It returns the fetch error of its own cycle, if any.
func (b *Broadcaster) Refresh(ctx context.Context) error {
	return b.cycle(ctx, false)
}

// Close stops polling, cancels any in-flight fetch and waits for the loop to
// exit. Subscribers stay registered but receive no further updates.
// Close is idempotent.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	b.closed = true
	if b.stop != nil {
		b.stop()
		b.stop = nil
	}
	b.mu.Unlock()

	b.baseCancel()
	b.wg.Wait()
}

func (b *Broadcaster) unsubscribe(sub *subscription) {
	sub.live.Store(false)

	b.mu.Lock()
	if i := slices.Index(b.subs, sub); i >= 0 {
		b.subs = slices.Delete(b.subs, i, i+1)
	}
	n := len(b.subs)
	if n == 0 && b.stop != nil {
		// cancels the next tick only; a running fetch completes
		b.stop()
		b.stop = nil
		b.logger.Debug("metrics polling stopped")
	}
	b.mu.Unlock()

	b.observer.SubscribersChanged(n)
}

// startLocked launches the polling loop. Caller must hold b.mu.
func (b *Broadcaster) startLocked() {
	ctx, cancel := context.WithCancel(b.baseCtx)
	b.stop = cancel
	b.pending++

	b.logger.Debug("metrics polling started", "interval", b.interval.String())

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.run(ctx)
	}()
}

func (b *Broadcaster) run(ctx context.Context) {
	_ = b.cycle(ctx, true)

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			_ = b.cycle(ctx, false)
		}
	}
}

// cycle performs one fetch and one notification pass. first marks the
// immediate cycle of a freshly started loop.
func (b *Broadcaster) cycle(ctx context.Context, first bool) error {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()

	b.mu.Lock()
	if first {
		b.pending--
	}
	if ctx.Err() != nil {
		// loop stopped (or caller gave up) before this cycle began
		b.mu.Unlock()
		return ctx.Err()
	}
	b.inFlight = true
	b.mu.Unlock()

	start := time.Now()
	snap, err := b.safeFetch()
	elapsed := time.Since(start)

	b.mu.Lock()
	if err != nil {
		b.err = err
	} else {
		b.metrics = snap
		b.updatedAt = start.Add(elapsed)
		b.err = nil
	}
	b.inFlight = false
	state := b.stateLocked()
	subs := slices.Clone(b.subs)
	b.mu.Unlock()

	b.observer.CycleCompleted(elapsed, snap, err)
	if err != nil {
		b.logger.Warn("metrics poll failed",
			"error", err.Error(),
			"latency_ms", elapsed.Milliseconds(),
		)
	} else {
		b.logger.Debug("metrics poll completed",
			"series", snap.Len(),
			"latency_ms", elapsed.Milliseconds(),
			"subscribers", len(subs),
		)
	}

	b.deliver(subs, state)
	return err
}

// safeFetch calls the fetcher with panic recovery.
func (b *Broadcaster) safeFetch() (snap *exposition.Snapshot, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			b.logger.Error("metrics fetcher panic",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			snap = nil
			err = fmt.Errorf("metrics fetcher panic (correlation_id: %s)", correlationID)
		}
	}()
	return b.fetcher.Fetch(b.baseCtx)
}

// deliver invokes every still-registered subscriber in registration order.
func (b *Broadcaster) deliver(subs []*subscription, state State) {
	b.deliverMu.Lock()
	defer b.deliverMu.Unlock()

	for _, sub := range subs {
		if !sub.live.Load() {
			continue
		}
		b.invoke(sub, state)
	}
}

// invoke calls one subscriber with panic recovery. A panic becomes the
// latest error and does not stop the pass.
func (b *Broadcaster) invoke(sub *subscription, state State) {
	defer func() {
		if r := recover(); r != nil {
			subErr := &SubscriberError{
				CorrelationID: uuid.NewString(),
				Panic:         r,
			}
			b.logger.Error("subscriber callback panicked",
				"correlation_id", subErr.CorrelationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)

			b.mu.Lock()
			b.err = subErr
			b.mu.Unlock()

			b.observer.SubscriberPanicked()
		}
	}()
	sub.cb(state)
}

// stateLocked builds the published state. Caller must hold b.mu.
func (b *Broadcaster) stateLocked() State {
	return State{
		Metrics:   b.metrics,
		UpdatedAt: b.updatedAt,
		Loading:   b.inFlight || b.pending > 0,
		Err:       b.err,
	}
}
