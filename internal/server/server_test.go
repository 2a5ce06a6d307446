package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jpalmerr/opsconsole/exposition"
	"github.com/jpalmerr/opsconsole/internal/poller"
	"github.com/jpalmerr/opsconsole/internal/store"
)

const sampleExposition = `# HELP system_cpu_usage The recent cpu usage
system_cpu_usage 0.42
jvm_memory_usage_after_gc_percent{area="heap",pool="long-lived"} 0.31
jvm_memory_usage_after_gc_percent{area="nonheap",pool="metaspace"} 0.9
`

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSource implements Source for testing.
type fakeSource struct {
	mu        sync.Mutex
	state     poller.State
	subs      map[int]poller.Callback
	nextID    int
	refreshes atomic.Int32
	refresh   func() poller.State
}

func newFakeSource(st poller.State) *fakeSource {
	return &fakeSource{state: st, subs: make(map[int]poller.Callback)}
}

func (f *fakeSource) Subscribe(cb poller.Callback) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = cb
	st := f.state
	f.mu.Unlock()

	cb(st)

	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeSource) Snapshot() poller.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSource) Refresh(context.Context) error {
	f.refreshes.Add(1)
	if f.refresh != nil {
		f.publish(f.refresh())
	}
	return nil
}

func (f *fakeSource) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeSource) publish(st poller.State) {
	f.mu.Lock()
	f.state = st
	subs := make([]poller.Callback, 0, len(f.subs))
	for _, cb := range f.subs {
		subs = append(subs, cb)
	}
	f.mu.Unlock()

	for _, cb := range subs {
		cb(st)
	}
}

func readyState() poller.State {
	return poller.State{
		Metrics:   exposition.Parse(sampleExposition),
		UpdatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// --- JSON API ---

func TestHandleMetrics_RendersCurrentState(t *testing.T) {
	src := newFakeSource(readyState())
	srv := NewServer(src, func(st poller.State) any {
		v, _ := st.Metrics.First("system_cpu_usage")
		return map[string]float64{"cpu": v}
	}, 0, nil, "", testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
	var got map[string]float64
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got["cpu"] != 0.42 {
		t.Errorf("cpu = %v, want 0.42", got["cpu"])
	}
}

func TestHandleMetrics_DefaultRender(t *testing.T) {
	src := newFakeSource(poller.State{Err: errors.New("connection refused")})
	srv := NewServer(src, nil, 0, nil, "", testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

	var got struct {
		Loading bool            `json:"loading"`
		Error   string          `json:"error"`
		Metrics json.RawMessage `json:"metrics"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if got.Error != "connection refused" {
		t.Errorf("error = %q, want connection refused", got.Error)
	}
	if string(got.Metrics) != "null" {
		t.Errorf("metrics = %s, want null", got.Metrics)
	}
}

func TestHandleMetrics_MethodNotAllowed(t *testing.T) {
	srv := NewServer(newFakeSource(poller.State{}), nil, 0, nil, "", testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/metrics", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestHandleRefresh(t *testing.T) {
	src := newFakeSource(poller.State{Loading: true})
	src.refresh = readyState
	srv := NewServer(src, nil, 0, nil, "", testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/metrics/refresh", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if n := src.refreshes.Load(); n != 1 {
		t.Errorf("refreshes = %d, want 1", n)
	}
	if !strings.Contains(rec.Body.String(), "system_cpu_usage") {
		t.Errorf("refreshed view should contain metrics, got: %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics/refresh", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET refresh status = %d, want 405", rec.Code)
	}
}

func TestHandleSeries(t *testing.T) {
	tests := []struct {
		name       string
		state      poller.State
		query      string
		wantStatus int
	}{
		{name: "missing name", state: readyState(), query: "", wantStatus: http.StatusBadRequest},
		{name: "no data yet", state: poller.State{Loading: true}, query: "?name=system_cpu_usage", wantStatus: http.StatusServiceUnavailable},
		{name: "unknown metric", state: readyState(), query: "?name=nope", wantStatus: http.StatusNotFound},
		{name: "known metric", state: readyState(), query: "?name=jvm_memory_usage_after_gc_percent", wantStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewServer(newFakeSource(tt.state), nil, 0, nil, "", testLogger())

			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics/series"+tt.query, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var series []exposition.Series
			if err := json.Unmarshal(rec.Body.Bytes(), &series); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if len(series) != 2 {
				t.Fatalf("got %d series, want 2", len(series))
			}
			if series[1].Labels["pool"] != "metaspace" {
				t.Errorf("second series labels = %v, want pool=metaspace", series[1].Labels)
			}
		})
	}
}

func TestHandleHistory(t *testing.T) {
	st := store.NewMemoryStore(10)
	defer func() { _ = st.Close() }()

	base := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		err := st.Record(context.Background(), store.Sample{
			At:     base.Add(time.Duration(i) * 20 * time.Minute),
			Values: map[string]float64{"cpu_percent": float64(10 * (i + 1)), "requests": float64(i)},
		})
		if err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}

	srv := NewServer(newFakeSource(readyState()), nil, 0, nil, "", testLogger(), WithHistory(st))
	h := srv.Handler()

	t.Run("names", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))

		var got struct {
			Names []string `json:"names"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if strings.Join(got.Names, ",") != "cpu_percent,requests" {
			t.Errorf("names = %v, want [cpu_percent requests]", got.Names)
		}
	})

	t.Run("all points", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?name=cpu_percent", nil))

		var points []store.Point
		if err := json.Unmarshal(rec.Body.Bytes(), &points); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(points) != 3 {
			t.Fatalf("got %d points, want 3", len(points))
		}
		if points[0].Value != 10 || points[2].Value != 30 {
			t.Errorf("points not oldest first: %+v", points)
		}
	})

	t.Run("since timestamp", func(t *testing.T) {
		since := base.Add(20 * time.Minute).Format(time.RFC3339)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?name=cpu_percent&since="+since, nil))

		var points []store.Point
		if err := json.Unmarshal(rec.Body.Bytes(), &points); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(points) != 2 {
			t.Errorf("got %d points, want 2", len(points))
		}
	})

	t.Run("since duration", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?name=cpu_percent&since=30m", nil))

		var points []store.Point
		if err := json.Unmarshal(rec.Body.Bytes(), &points); err != nil {
			t.Fatalf("invalid JSON: %v", err)
		}
		if len(points) != 1 {
			t.Errorf("got %d points, want 1", len(points))
		}
	})

	t.Run("invalid since", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?name=cpu_percent&since=yesterday", nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown name is empty", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history?name=nope", nil))
		if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
			t.Errorf("body = %s, want []", body)
		}
	})
}

func TestHandleHistory_Disabled(t *testing.T) {
	srv := NewServer(newFakeSource(poller.State{}), nil, 0, nil, "", testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		raw     string
		want    time.Time
		wantErr bool
	}{
		{raw: "", want: time.Time{}},
		{raw: "2025-03-01T10:00:00Z", want: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
		{raw: "90m", want: now.Add(-90 * time.Minute)},
		{raw: "-5m", wantErr: true},
		{raw: "last week", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseSince(tt.raw, now)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseSince(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseSince(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestMetricsHandler(t *testing.T) {
	called := false
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		_, _ = io.WriteString(w, "opsconsole_up 1\n")
	})

	srv := NewServer(newFakeSource(poller.State{}), nil, 0, nil, "", testLogger(), WithMetricsHandler(metrics))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if !called {
		t.Fatal("metrics handler was not called")
	}
	if !strings.Contains(rec.Body.String(), "opsconsole_up 1") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestRecoverPanics(t *testing.T) {
	srv := NewServer(newFakeSource(poller.State{}), func(poller.State) any {
		panic("render exploded")
	}, 0, nil, "", testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "correlation_id") {
		t.Errorf("error should carry a correlation id, got: %s", rec.Body.String())
	}
}

// --- SSE ---

func TestHandleSSE_BasicFlow(t *testing.T) {
	src := newFakeSource(readyState())
	srv := NewServer(src, nil, 0, nil, "", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req = req.WithContext(ctx)

	srv.handleSSE(rec, req)

	body := rec.Body.String()

	// should start with the current view
	if !strings.HasPrefix(body, "event: metrics\n") {
		t.Errorf("first event should be metrics, got: %s", body)
	}
	if !strings.Contains(body, "system_cpu_usage") {
		t.Errorf("response should contain the current metrics, got: %s", body)
	}
	if src.subscribers() != 0 {
		t.Errorf("handler left %d subscriptions behind", src.subscribers())
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	src := newFakeSource(poller.State{Loading: true})
	srv := NewServer(src, nil, 0, nil, "", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	waitFor(t, func() bool { return src.subscribers() == 1 })

	src.publish(readyState())

	// give time for update to be written
	time.Sleep(50 * time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	events := parseSSEEvents(rec.Body.String())
	if len(events) < 2 {
		t.Fatalf("expected initial and streamed events, got %d", len(events))
	}
	if !strings.Contains(events[len(events)-1].data, "system_cpu_usage") {
		t.Errorf("last event should carry the update, got: %s", events[len(events)-1].data)
	}
}

func TestHandleSSE_StreamsHistory(t *testing.T) {
	st := store.NewMemoryStore(10)
	defer func() { _ = st.Close() }()

	src := newFakeSource(readyState())
	srv := NewServer(src, nil, 0, nil, "", testLogger(), WithHistory(st))

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	waitFor(t, func() bool { return src.subscribers() == 1 })

	err := st.Record(context.Background(), store.Sample{
		At:     time.Now(),
		Values: map[string]float64{"cpu_percent": 42},
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	var found bool
	for _, e := range parseSSEEvents(rec.Body.String()) {
		if e.event != "history" {
			continue
		}
		var p store.Point
		if err := json.Unmarshal([]byte(e.data), &p); err != nil {
			t.Fatalf("invalid history event: %v", err)
		}
		if p.Name == "cpu_percent" && p.Value == 42 {
			found = true
		}
	}
	if !found {
		t.Errorf("history point not streamed, got: %s", rec.Body.String())
	}
}

func TestOfferLatest_KeepsNewest(t *testing.T) {
	ch := make(chan poller.State, 1)

	offerLatest(ch, poller.State{Loading: true})
	offerLatest(ch, poller.State{Err: errors.New("second")})

	got := <-ch
	if got.Err == nil || got.Err.Error() != "second" {
		t.Errorf("got %+v, want the newest state", got)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra state %+v", extra)
	default:
	}
}

func TestHandleSSE_ClientDisconnect(t *testing.T) {
	src := newFakeSource(poller.State{})
	srv := NewServer(src, nil, 0, nil, "", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	ctx, cancel := context.WithCancel(context.Background())
	req = req.WithContext(ctx)

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	// simulate client disconnect
	waitFor(t, func() bool { return src.subscribers() == 1 })
	cancel()

	select {
	case <-done:
		// handler exited as expected
	case <-time.After(1 * time.Second):
		t.Fatal("handler did not exit after client disconnect")
	}

	if src.subscribers() != 0 {
		t.Error("disconnect should release the subscription")
	}
}

func TestHandleSSE_NoGoroutineLeaks(t *testing.T) {
	// allow existing goroutines to settle
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	before := runtime.NumGoroutine()

	src := newFakeSource(readyState())
	srv := NewServer(src, nil, 0, nil, "", testLogger())

	// run multiple SSE connections
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
			req = req.WithContext(ctx)
			rec := httptest.NewRecorder()

			srv.handleSSE(rec, req)
		}()
	}

	wg.Wait()

	// allow cleanup
	runtime.GC()
	time.Sleep(200 * time.Millisecond)

	after := runtime.NumGoroutine()
	if after > before+2 { // small tolerance for runtime variance
		t.Errorf("potential goroutine leak: before=%d, after=%d", before, after)
	}
}

func TestHandleSSE_ConcurrentClientsShutdown(t *testing.T) {
	src := newFakeSource(readyState())
	srv := NewServer(src, nil, 0, nil, "", testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())

	numClients := 10
	var wg sync.WaitGroup

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
			req = req.WithContext(serverCtx)
			rec := httptest.NewRecorder()

			srv.handleSSE(rec, req)
		}()
	}

	waitFor(t, func() bool { return src.subscribers() == numClients })

	// trigger shutdown
	serverCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		// all handlers exited
	case <-time.After(3 * time.Second):
		t.Fatal("not all handlers exited after shutdown")
	}
}

func TestHandleSSE_SSENotSupported(t *testing.T) {
	srv := NewServer(newFakeSource(poller.State{}), nil, 0, nil, "", testLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)

	// use a writer that doesn't support flushing
	w := &nonFlushWriter{header: make(http.Header)}

	srv.handleSSE(w, req)

	if w.statusCode != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.statusCode)
	}
}

// nonFlushWriter is a ResponseWriter that doesn't implement http.Flusher.
type nonFlushWriter struct {
	header     http.Header
	statusCode int
	body       []byte
}

func (n *nonFlushWriter) Header() http.Header {
	return n.header
}

func (n *nonFlushWriter) Write(b []byte) (int, error) {
	n.body = append(n.body, b...)
	return len(b), nil
}

func (n *nonFlushWriter) WriteHeader(statusCode int) {
	n.statusCode = statusCode
}

func TestHandleSSE_Headers(t *testing.T) {
	srv := NewServer(newFakeSource(poller.State{}), nil, 0, nil, "", testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	headers := map[string]string{
		"Content-Type":  "text/event-stream",
		"Cache-Control": "no-cache",
		"Connection":    "keep-alive",
	}
	for k, want := range headers {
		if got := rec.Header().Get(k); got != want {
			t.Errorf("header %s = %q, want %q", k, got, want)
		}
	}
}

// --- Integration tests with real HTTP connections ---
//
// These tests use httptest.Server to create real HTTP connections that support
// write deadlines. Mock ResponseWriters don't support SetWriteDeadline, so we
// can't unit test deadline behavior with mocks.

func TestHandleSSE_ServerShutdownIntegration(t *testing.T) {
	src := newFakeSource(readyState())
	srv := NewServer(src, nil, 0, nil, "", testLogger())

	serverCtx, serverCancel := context.WithCancel(context.Background())

	// create HTTP handler that respects server context
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// derive request context from server context (simulates BaseContext)
		r = r.WithContext(serverCtx)
		srv.handleSSE(w, r)
	})

	ts := httptest.NewServer(handler)
	defer ts.Close()

	client := ts.Client()
	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	firstEvent := make(chan string, 1)
	connDone := make(chan error, 1)
	go func() {
		resp, err := client.Do(req)
		if err != nil {
			connDone <- err
			return
		}
		defer func() { _ = resp.Body.Close() }()

		// read until connection closes
		buf := make([]byte, 4096)
		first := true
		for {
			n, err := resp.Body.Read(buf)
			if first && n > 0 {
				firstEvent <- string(buf[:n])
				first = false
			}
			if err != nil {
				connDone <- nil // expected - connection closed
				return
			}
		}
	}()

	select {
	case ev := <-firstEvent:
		if !strings.Contains(ev, "event: metrics") {
			t.Errorf("first chunk should be a metrics event, got: %s", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no initial event received")
	}

	// trigger server shutdown
	serverCancel()

	select {
	case <-connDone:
		// success
	case <-time.After(3 * time.Second):
		t.Fatal("SSE connection did not close after server shutdown")
	}
}

// --- Helper to read SSE events from response ---

type sseEvent struct {
	event string
	data  string
}

func parseSSEEvents(body string) []sseEvent {
	var events []sseEvent
	for _, block := range strings.Split(body, "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
		if ev.event != "" {
			events = append(events, ev)
		}
	}
	return events
}

// --- Server Start Tests ---

func TestStart_ServesRoutes(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()

	srv := NewServer(newFakeSource(readyState()), nil, port, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	resp, err := http.Get("http://" + net.JoinHostPort("127.0.0.1", strconv.Itoa(port)) + "/api/metrics")
	if err != nil {
		t.Fatalf("GET /api/metrics: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestStart_AvailablePort_ReturnsNil(t *testing.T) {
	// port 0 = OS assigns available port. Valid for the internal Server
	// package, though the public Console API validates port > 0.
	srv := NewServer(newFakeSource(poller.State{}), nil, 0, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Errorf("Start() on available port returned error: %v", err)
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	// occupy a port
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port

	srv := NewServer(newFakeSource(poller.State{}), nil, port, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("expected bind error, got: %v", err)
	}
}

func TestStart_InvalidPort_ReturnsError(t *testing.T) {
	srv := NewServer(newFakeSource(poller.State{}), nil, -1, nil, "", testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err == nil {
		t.Fatal("Start() with invalid port should return error")
	}
}

// --- Dashboard Title Tests ---

// mockFS implements fs.ReadFileFS for testing dashboard rendering.
type mockFS struct {
	content string
}

func (m *mockFS) Open(name string) (fs.File, error) {
	return nil, fs.ErrNotExist
}

func (m *mockFS) ReadFile(name string) ([]byte, error) {
	if name == "assets/index.html" {
		return []byte(m.content), nil
	}
	return nil, fs.ErrNotExist
}

func TestHandleDashboard_Title(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "custom", title: "Shop Backend", want: "<title>Shop Backend</title><h1>Shop Backend</h1>"},
		{name: "default", title: "", want: "<title>Ops Console</title><h1>Ops Console</h1>"},
		{name: "escaped", title: "<script>alert('xss')</script>", want: "&lt;script&gt;"},
		{name: "ampersand", title: "Health & Status", want: "Health &amp; Status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assets := &mockFS{content: "<title>{{.Title}}</title><h1>{{.Title}}</h1>"}
			srv := NewServer(newFakeSource(poller.State{}), nil, 0, assets, tt.title, testLogger())

			rec := httptest.NewRecorder()
			srv.handleDashboard(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			body := rec.Body.String()
			if !strings.Contains(body, tt.want) {
				t.Errorf("body = %s, want it to contain %s", body, tt.want)
			}
			if strings.Contains(body, "<script>") {
				t.Error("title should be HTML-escaped to prevent XSS")
			}
		})
	}
}

func TestHandleDashboard_NoAssets(t *testing.T) {
	srv := NewServer(newFakeSource(poller.State{}), nil, 0, nil, "Custom Title", testLogger())

	rec := httptest.NewRecorder()
	srv.handleDashboard(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, rec.Code)
	}
}

func TestHandleDashboard_NonRootPath(t *testing.T) {
	assets := &mockFS{content: "<title>{{.Title}}</title>"}
	srv := NewServer(newFakeSource(poller.State{}), nil, 0, assets, "", testLogger())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status %d for non-root path, got %d", http.StatusNotFound, rec.Code)
	}
}

// --- Benchmark ---

func BenchmarkHandleSSE_SingleClient(b *testing.B) {
	srv := NewServer(newFakeSource(readyState()), nil, 0, nil, "", testLogger())

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
		req = req.WithContext(ctx)
		rec := httptest.NewRecorder()

		srv.handleSSE(rec, req)
		cancel()
	}
}
