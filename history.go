package opsconsole

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/opsconsole/exposition"
	"github.com/jpalmerr/opsconsole/internal/store"
)

const (
	recorderBuffer = 16
	recordTimeout  = 5 * time.Second
)

// recorder writes the summary gauges of every new snapshot to a history
// store. observe runs on the polling goroutine, so writes happen on the
// recorder's own goroutine.
type recorder struct {
	store  store.Store
	logger *slog.Logger

	mu      sync.Mutex
	last    *exposition.Snapshot
	samples chan store.Sample
	stopped bool

	wg sync.WaitGroup
}

func newRecorder(st store.Store, logger *slog.Logger) *recorder {
	r := &recorder{
		store:   st,
		logger:  logger,
		samples: make(chan store.Sample, recorderBuffer),
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run()
	}()
	return r
}

// observe is the broadcaster callback. Repeated deliveries of the same
// snapshot, e.g. after a failed cycle, are recorded once.
func (r *recorder) observe(st State) {
	if st.Metrics == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped || st.Metrics == r.last {
		return
	}
	r.last = st.Metrics

	at := st.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	sample := store.Sample{At: at, Values: Summarize(st.Metrics).Gauges()}

	select {
	case r.samples <- sample:
	default:
		r.logger.Warn("history recorder is behind, sample dropped")
	}
}

func (r *recorder) run() {
	for sample := range r.samples {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		if err := r.store.Record(ctx, sample); err != nil {
			r.logger.Warn("failed to record history", "error", err.Error())
		}
		cancel()
	}
}

// stop drains pending samples and waits for the writer to exit. Safe to call
// more than once.
func (r *recorder) stop() {
	r.mu.Lock()
	if !r.stopped {
		r.stopped = true
		close(r.samples)
	}
	r.mu.Unlock()

	r.wg.Wait()
}
