// Package mockbackend is a stand-in for the monitored backend, used by the
// examples. It serves a Prometheus text exposition at /actuator/prometheus
// whose gauges drift over time, and an in-memory admin API.
//
// Any login id is accepted with the password "admin". Issued tokens are
// HS256 JWTs valid for one hour.
package mockbackend

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Password is the only password the mock accepts.
const Password = "admin"

var signingKey = []byte("mock-backend-key")

type alert struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	WakeTime string `json:"wakeTime"`
	Status   string `json:"status"`
}

// Backend holds the mock's mutable state. The zero value is not usable; call
// [New].
type Backend struct {
	logger  *slog.Logger
	started time.Time

	mu       sync.Mutex
	cpu      float64
	memory   float64
	sessions float64
	requests float64
	respSum  float64
	threads  float64
	peak     float64
	alerts   []alert
	nextID   int
}

// New returns a backend with plausible starting figures.
func New(logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		logger:   logger,
		started:  time.Now().Add(-26 * time.Hour),
		cpu:      0.35,
		memory:   0.5,
		sessions: 12,
		threads:  40,
		peak:     40,
		nextID:   3,
		alerts: []alert{
			{ID: 1, Title: "Welcome", Content: "Thanks for joining", WakeTime: "2025-01-01T09:00:00Z", Status: "COMPLETED"},
			{ID: 2, Title: "Maintenance", Content: "Back in 30 minutes", WakeTime: "2025-01-02T22:00:00Z", Status: "CANCELED"},
		},
	}
}

// Handler returns the HTTP surface of the mock.
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /actuator/prometheus", b.handleMetrics)
	mux.HandleFunc("POST /api/v2/admin/login", b.handleLogin)
	mux.Handle("GET /api/v2/admin/feedbacks", b.authorized(b.handleFeedbacks))
	mux.Handle("GET /api/v2/admin/reports", b.authorized(b.handleReports))
	mux.Handle("GET /api/v2/notices/categories", b.authorized(b.handleCategories))
	mux.Handle("POST /api/v2/admin/notices/dev", b.authorized(b.handleNotice))
	mux.Handle("POST /api/v2/admin/notices/prod", b.authorized(b.handleProdNotice))
	mux.Handle("GET /api/v2/admin/alerts", b.authorized(b.handleAlerts))
	mux.Handle("POST /api/v2/admin/alerts", b.authorized(b.handleCreateAlert))
	mux.Handle("DELETE /api/v2/admin/alerts/{id}", b.authorized(b.handleCancelAlert))
	return mux
}

// ListenAndServe serves [Backend.Handler] on addr until it fails.
func (b *Backend) ListenAndServe(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           b.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv.ListenAndServe()
}

// step advances the simulated load by one scrape.
func (b *Backend) step() {
	walk := func(v, scale, lo, hi float64) float64 {
		return math.Min(hi, math.Max(lo, v+(rand.Float64()-0.5)*scale))
	}
	b.cpu = walk(b.cpu, 0.15, 0.02, 0.98)
	b.memory = walk(b.memory, 0.08, 0.1, 0.95)
	b.sessions = math.Round(walk(b.sessions, 6, 0, 55))
	b.threads = math.Round(walk(b.threads, 4, 20, 90))
	b.peak = math.Max(b.peak, b.threads)

	n := float64(5 + rand.Intn(20))
	b.requests += n
	b.respSum += n * (0.02 + rand.Float64()*0.08)
}

func (b *Backend) handleMetrics(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.step()
	var sb strings.Builder
	fmt.Fprintf(&sb, "# HELP system_cpu_usage The recent cpu usage for the whole system\n")
	fmt.Fprintf(&sb, "# TYPE system_cpu_usage gauge\n")
	fmt.Fprintf(&sb, "system_cpu_usage %g\n", b.cpu)
	fmt.Fprintf(&sb, "# TYPE jvm_memory_usage_after_gc_percent gauge\n")
	fmt.Fprintf(&sb, "jvm_memory_usage_after_gc_percent{area=\"heap\",pool=\"long-lived\"} %g\n", b.memory)
	fmt.Fprintf(&sb, "# TYPE tomcat_sessions_active_current_sessions gauge\n")
	fmt.Fprintf(&sb, "tomcat_sessions_active_current_sessions %g\n", b.sessions)
	fmt.Fprintf(&sb, "tomcat_sessions_active_max_sessions 0.0\n")
	fmt.Fprintf(&sb, "# TYPE http_server_requests_seconds summary\n")
	fmt.Fprintf(&sb, "http_server_requests_seconds_count{method=\"GET\",status=\"200\",uri=\"/api/v2/posts\"} %g\n", b.requests)
	fmt.Fprintf(&sb, "http_server_requests_seconds_sum{method=\"GET\",status=\"200\",uri=\"/api/v2/posts\"} %g\n", b.respSum)
	fmt.Fprintf(&sb, "hikaricp_connections_idle{pool=\"HikariPool-1\"} %d\n", 2+rand.Intn(7))
	fmt.Fprintf(&sb, "hikaricp_connections_max{pool=\"HikariPool-1\"} 10.0\n")
	fmt.Fprintf(&sb, "jvm_threads_live_threads %g\n", b.threads)
	fmt.Fprintf(&sb, "jvm_threads_peak_threads %g\n", b.peak)
	fmt.Fprintf(&sb, "process_uptime_seconds %g\n", time.Since(b.started).Seconds())
	b.mu.Unlock()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_, _ = w.Write([]byte(sb.String()))
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		LoginID  string `json:"loginId"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.LoginID == "" {
		respond(w, http.StatusBadRequest, "loginId and password are required", nil)
		return
	}
	if body.Password != Password {
		respond(w, http.StatusUnauthorized, "invalid credentials", nil)
		return
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": body.LoginID,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(signingKey)
	if err != nil {
		respond(w, http.StatusInternalServerError, "failed to issue token", nil)
		return
	}
	b.logger.Info("admin logged in", "login_id", body.LoginID)
	respond(w, http.StatusOK, "OK", map[string]string{"accessToken": token})
}

// authorized rejects requests without a valid bearer token.
func (b *Backend) authorized(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			respond(w, http.StatusUnauthorized, "authentication required", nil)
			return
		}
		_, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return signingKey, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		)
		if err != nil {
			respond(w, http.StatusUnauthorized, "invalid token", nil)
			return
		}
		next(w, r)
	})
}

func (b *Backend) handleFeedbacks(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "OK", map[string]any{
		"feedbacks": []map[string]any{
			{"userId": 101, "contents": "Dark mode please", "createdAt": "2025-01-03 10:12:00"},
			{"userId": 102, "contents": "Search is slow\non older phones", "createdAt": "2025-01-04 18:40:00"},
		},
		"totalPages":    1,
		"totalElements": 2,
		"hasNext":       false,
	})
}

func (b *Backend) handleReports(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "OK", map[string]any{
		"reports": []map[string]any{
			{"id": 9, "reporterId": 101, "targetId": 5521, "reason": "spam", "createdTime": "2025-01-05 08:00:00"},
		},
		"totalPages":    1,
		"totalElements": 1,
	})
}

func (b *Backend) handleCategories(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, "OK", []map[string]string{
		{"name": "GENERAL", "korName": "General"},
		{"name": "EVENT"},
	})
}

func (b *Backend) handleNotice(w http.ResponseWriter, r *http.Request) {
	b.logger.Info("test notice sent")
	respond(w, http.StatusOK, "OK", nil)
}

func (b *Backend) handleProdNotice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		AdminPassword string `json:"adminPassword"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if body.AdminPassword != Password {
		respond(w, http.StatusOK, "admin password mismatch", nil, 403)
		return
	}
	b.logger.Info("production notice sent")
	respond(w, http.StatusOK, "OK", nil)
}

func (b *Backend) handleAlerts(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	alerts := append([]alert(nil), b.alerts...)
	b.mu.Unlock()

	respond(w, http.StatusOK, "OK", map[string]any{
		"alerts":        alerts,
		"totalPages":    1,
		"totalElements": len(alerts),
	})
}

func (b *Backend) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Title     string `json:"title"`
		Content   string `json:"content"`
		AlertTime string `json:"alertTime"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond(w, http.StatusBadRequest, "invalid body", nil)
		return
	}
	at, err := time.Parse(time.DateTime, body.AlertTime)
	if err != nil {
		respond(w, http.StatusBadRequest, "alertTime must be yyyy-MM-dd HH:mm:ss", nil)
		return
	}

	b.mu.Lock()
	b.alerts = append(b.alerts, alert{
		ID:       b.nextID,
		Title:    body.Title,
		Content:  body.Content,
		WakeTime: at.Format("2006-01-02T15:04:05"),
		Status:   "PENDING",
	})
	b.nextID++
	b.mu.Unlock()
	respond(w, http.StatusOK, "OK", nil)
}

func (b *Backend) handleCancelAlert(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		respond(w, http.StatusBadRequest, "invalid id", nil)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.alerts {
		if b.alerts[i].ID == id && b.alerts[i].Status == "PENDING" {
			b.alerts[i].Status = "CANCELED"
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	respond(w, http.StatusNotFound, "no pending alert with that id", nil)
}

// respond writes the backend's {"code","message","data"} envelope. code
// defaults to the HTTP status.
func respond(w http.ResponseWriter, status int, message string, data any, code ...int) {
	c := status
	if len(code) > 0 {
		c = code[0]
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"code": c, "message": message, "data": data})
}
