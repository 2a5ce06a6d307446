package poller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/http/httptrace"
	"strings"
	"testing"
	"time"
)

// TestClient_ConnectionReuse verifies that the HTTP client reuses connections
// when making sequential requests to the same host.
func TestClient_ConnectionReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("up 1\n"))
	}))
	defer server.Close()

	client := NewClient(nil)

	var reusedCount int
	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				reusedCount++
			}
		},
	}

	const numRequests = 5

	for i := 0; i < numRequests; i++ {
		ctx := httptrace.WithClientTrace(context.Background(), trace)
		resp := client.Fetch(ctx, server.URL, nil, 5*time.Second)
		if resp.Error != nil {
			t.Fatalf("request %d failed: %v", i, resp.Error)
		}
	}

	expectedMinReuse := numRequests - 2 // allow some tolerance
	if reusedCount < expectedMinReuse {
		t.Errorf("expected at least %d reused connections, got %d out of %d requests",
			expectedMinReuse, reusedCount, numRequests)
	}
}

// TestClient_Close verifies that Close() is safe to call and idempotent.
func TestClient_Close(t *testing.T) {
	client := NewClient(nil)

	client.Close()
	client.Close()
	client.Close()
}

// TestClient_Close_NilClient verifies that Close() handles nil receiver safely.
func TestClient_Close_NilClient(t *testing.T) {
	var client *Client

	client.Close()
}

func TestClient_Fetch_SendsHeaders(t *testing.T) {
	var gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	resp := NewClient(nil).Fetch(context.Background(), server.URL, map[string]string{"Accept": "text/plain"}, time.Second)
	if resp.Error != nil {
		t.Fatalf("Fetch() error = %v", resp.Error)
	}
	if gotAccept != "text/plain" {
		t.Errorf("Accept header = %q, want text/plain", gotAccept)
	}
}

func TestClient_Fetch_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	resp := NewClient(nil).Fetch(context.Background(), server.URL, nil, 50*time.Millisecond)
	if resp.Error == nil {
		t.Fatal("Fetch() expected timeout error, got nil")
	}
	if resp.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0", resp.StatusCode)
	}
}

func TestClient_Fetch_UsesInjectedTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Header.Get("Authorization")))
	}))
	defer server.Close()

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		req = req.Clone(req.Context())
		req.Header.Set("Authorization", "Bearer injected")
		return http.DefaultTransport.RoundTrip(req)
	})

	resp := NewClient(rt).Fetch(context.Background(), server.URL, nil, 0)
	if resp.Error != nil {
		t.Fatalf("Fetch() error = %v", resp.Error)
	}
	if string(resp.Body) != "Bearer injected" {
		t.Errorf("body = %q, want the injected header echoed", resp.Body)
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestFetcher_Fetch_ParsesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if got := r.Header.Get("Accept"); got != "text/plain" {
			t.Errorf("Accept = %q, want text/plain", got)
		}
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = w.Write([]byte("# HELP system_cpu_usage cpu\nsystem_cpu_usage 0.42\n"))
	}))
	defer server.Close()

	fetcher := NewFetcher(NewClient(nil), server.URL+"/actuator/prometheus", 0)
	snap, err := fetcher.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if v, ok := snap.First("system_cpu_usage"); !ok || v != 0.42 {
		t.Errorf("system_cpu_usage = %v, %v, want 0.42", v, ok)
	}
}

func TestFetcher_Fetch_NonSuccessStatus(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewFetcher(NewClient(nil), server.URL, 0).Fetch(context.Background())
	if err == nil {
		t.Fatal("Fetch() expected error, got nil")
	}

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error type = %T, want *FetchError", err)
	}
	if fetchErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d, want 503", fetchErr.StatusCode)
	}
	if !strings.Contains(err.Error(), "503") {
		t.Errorf("error message %q should contain the status code", err.Error())
	}
	if calls != 1 {
		t.Errorf("server called %d times, want exactly 1 (no retry)", calls)
	}
}

func TestFetcher_Fetch_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := NewFetcher(NewClient(nil), url, time.Second).Fetch(context.Background())

	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want *FetchError", err)
	}
	if fetchErr.StatusCode != 0 {
		t.Errorf("StatusCode = %d, want 0 for network failure", fetchErr.StatusCode)
	}
	if fetchErr.Unwrap() == nil {
		t.Error("Unwrap() = nil, want underlying transport error")
	}
}
