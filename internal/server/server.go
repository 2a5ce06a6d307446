package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/opsconsole/internal/poller"
	"github.com/jpalmerr/opsconsole/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	// shutdownTimeout bounds graceful shutdown of in-flight requests.
	shutdownTimeout = 5 * time.Second

	// defaultTitle is used when no custom title is configured.
	defaultTitle = "Ops Console"

	// titlePlaceholder is the marker in HTML that gets replaced with the actual title.
	titlePlaceholder = "{{.Title}}"
)

// Source is the live metrics feed rendered by the server. The poller's
// Broadcaster implements it.
type Source interface {
	Subscribe(cb poller.Callback) (unsubscribe func())
	Snapshot() poller.State
	Refresh(ctx context.Context) error
}

// Renderer turns a state into the JSON document sent to clients.
type Renderer func(poller.State) any

// Option configures optional server features.
type Option func(*Server)

// WithHistory enables /api/history and the "history" SSE event.
func WithHistory(st store.Store) Option {
	return func(s *Server) {
		s.history = st
	}
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metricsHandler = h
	}
}

// Server handles HTTP requests for the console dashboard and API.
//
// Server provides these endpoints:
//   - GET /: Serves the embedded dashboard HTML
//   - GET /api/metrics: Returns the current view as JSON
//   - POST /api/metrics/refresh: Fetches immediately, then returns the view
//   - GET /api/metrics/series?name=: Returns the raw series of one metric
//   - GET /api/sse: Server-Sent Events stream of views and history points
//   - GET /api/history?name=&since=: Returns recorded history
//   - GET /metrics: The console's own Prometheus metrics
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	source         Source
	render         Renderer
	history        store.Store
	metricsHandler http.Handler
	port           int
	httpServer     *http.Server
	assets         fs.FS
	title          string
	logger         *slog.Logger
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - src: Live metrics feed
//   - render: Converts a state into its JSON view (nil sends the raw state fields)
//   - port: TCP port to listen on
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - title: Dashboard title (defaults to "Ops Console" if empty)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(src Source, render Renderer, port int, assets fs.FS, title string, logger *slog.Logger, opts ...Option) *Server {
	if render == nil {
		render = defaultRender
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		source: src,
		render: render,
		port:   port,
		assets: assets,
		title:  title,
		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route multiplexer without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/metrics", s.handleMetrics)
	mux.HandleFunc("/api/metrics/refresh", s.handleRefresh)
	mux.HandleFunc("/api/metrics/series", s.handleSeries)
	mux.HandleFunc("/api/sse", s.handleSSE)
	mux.HandleFunc("/api/history", s.handleHistory)

	if s.metricsHandler != nil {
		mux.Handle("/metrics", s.metricsHandler)
	}

	// serve dashboard assets
	if s.assets != nil {
		// serve index.html at root
		mux.HandleFunc("/", s.handleDashboard)
	}

	return s.recoverPanics(mux)
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// recoverPanics turns a handler panic into a 500 with a correlation ID.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				correlationID := uuid.NewString()
				s.logger.Error("http handler panic",
					"correlation_id", correlationID,
					"path", r.URL.Path,
					"panic", fmt.Sprintf("%v", rec),
				)
				writeJSONError(w, http.StatusInternalServerError,
					fmt.Sprintf("internal error (correlation_id: %s)", correlationID))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// read index.html from embedded assets
	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	// apply title substitution with HTML escaping to prevent XSS
	title := s.title
	if title == "" {
		title = defaultTitle
	}
	safeTitle := html.EscapeString(title)
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, safeTitle)

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleMetrics returns the current view as JSON.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, http.StatusOK, s.render(s.source.Snapshot()))
}

// handleRefresh runs one poll cycle and returns the resulting view. A failed
// fetch is reported inside the view, not as an HTTP error.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := s.source.Refresh(r.Context()); err != nil {
		s.logger.Debug("manual refresh failed", "error", err.Error())
	}
	s.writeJSON(w, http.StatusOK, s.render(s.source.Snapshot()))
}

// handleSeries returns every labelled sample of one metric.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, "query parameter name is required")
		return
	}

	snap := s.source.Snapshot().Metrics
	if snap == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no metrics fetched yet")
		return
	}
	if !snap.Has(name) {
		writeJSONError(w, http.StatusNotFound, fmt.Sprintf("unknown metric %q", name))
		return
	}
	s.writeJSON(w, http.StatusOK, snap.Series(name))
}

// handleHistory returns recorded points of one metric, or the recorded
// metric names when no name is given.
//
// since accepts an RFC 3339 timestamp or a duration such as "15m", meaning
// that long before now.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		writeJSONError(w, http.StatusNotFound, "history is disabled")
		return
	}

	q := r.URL.Query()
	name := q.Get("name")
	if name == "" {
		names, err := s.history.Names(r.Context())
		if err != nil {
			s.logger.Error("failed to list history names", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to read history")
			return
		}
		s.writeJSON(w, http.StatusOK, map[string][]string{"names": names})
		return
	}

	since, err := parseSince(q.Get("since"), time.Now())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := s.history.Query(r.Context(), name, since)
	if err != nil {
		s.logger.Error("failed to query history", "name", name, "error", err)
		writeJSONError(w, http.StatusInternalServerError, "failed to read history")
		return
	}
	s.writeJSON(w, http.StatusOK, points)
}

func parseSince(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid since %q: want RFC 3339 time or positive duration", raw)
	}
	return now.Add(-d), nil
}

// handleSSE streams views and history points via Server-Sent Events.
//
// The handler subscribes to the metrics source for the lifetime of the
// connection, which keeps polling active while a dashboard is open. The
// subscriber callback only hands the state to this goroutine through a
// one-slot channel, keeping the newest state, so a slow client never blocks
// the polling goroutine.
//
// The handler uses write deadlines to prevent goroutine leaks when clients are
// slow or disconnected. Without deadlines, a blocked Fprintf call would prevent
// the handler from detecting context cancellation or channel closure.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	// check if flushing is supported
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	// ResponseController provides deadline-aware write and flush operations.
	rc := http.NewResponseController(w)

	// track if write deadlines are supported (may not be for some ResponseWriter impls)
	deadlinesSupported := true

	// writeEvent writes one SSE event with a deadline to prevent blocking forever.
	writeEvent := func(event string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			s.logger.Error("failed to encode sse event", "event", event, "error", err)
			return nil
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				// deadline not supported by underlying connection, continue without
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
			return err
		}

		// ResponseController.Flush respects the write deadline
		return rc.Flush()
	}

	// set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	var points <-chan store.Point
	if s.history != nil {
		ch := s.history.Subscribe()
		defer s.history.Unsubscribe(ch)
		points = ch
	}

	// Subscribe pushes the current state synchronously, so the first event
	// is always the current view.
	updates := make(chan poller.State, 1)
	unsubscribe := s.source.Subscribe(func(st poller.State) {
		offerLatest(updates, st)
	})
	defer unsubscribe()

	// stream updates
	for {
		select {
		case st := <-updates:
			if err := writeEvent("metrics", s.render(st)); err != nil {
				return
			}

		case p, ok := <-points:
			if !ok {
				points = nil
				continue
			}
			if err := writeEvent("history", p); err != nil {
				return
			}

		case <-r.Context().Done():
			// request context is derived from server context via BaseContext,
			// so this fires on both client disconnect AND server shutdown
			return
		}
	}
}

// offerLatest puts st into the one-slot channel, replacing a state the
// reader has not picked up yet. Only the broadcaster sends on ch, and it
// delivers sequentially, so the second send cannot block.
func offerLatest(ch chan poller.State, st poller.State) {
	select {
	case ch <- st:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- st:
	default:
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// stateView is the fallback rendering used when no Renderer is configured.
type stateView struct {
	Loading   bool      `json:"loading"`
	Error     string    `json:"error,omitempty"`
	Metrics   any       `json:"metrics"`
	UpdatedAt time.Time `json:"updated_at"`
}

func defaultRender(st poller.State) any {
	v := stateView{Loading: st.Loading, UpdatedAt: st.UpdatedAt}
	if st.Err != nil {
		v.Error = st.Err.Error()
	}
	if st.Metrics != nil {
		v.Metrics = st.Metrics
	}
	return v
}
