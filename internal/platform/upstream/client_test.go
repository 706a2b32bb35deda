package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func TestGetJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/devices" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"count": 3}`))
	}))
	defer srv.Close()

	c := NewClient("wearable-vendor", srv.URL, 5*time.Second, zerolog.Nop())

	var out struct {
		Count int `json:"count"`
	}
	if err := c.GetJSON(context.Background(), "/v1/devices", &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.Count != 3 {
		t.Errorf("expected count 3, got %d", out.Count)
	}
}

func TestPostJSONSendsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected json content type, got %q", ct)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	c := NewClient("ehr", srv.URL, 5*time.Second, zerolog.Nop())
	err := c.PostJSON(context.Background(), "/sync", map[string]string{"patient": "p1"}, nil)
	if err != nil {
		t.Fatalf("PostJSON: %v", err)
	}
}

func TestNon2xxReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient("ehr", srv.URL, 5*time.Second, zerolog.Nop())
	err := c.GetJSON(context.Background(), "/records", nil)

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", se.StatusCode)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("flaky", srv.URL, 5*time.Second, zerolog.Nop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := c.GetJSON(ctx, "/x", nil); err == nil {
			t.Fatal("expected failure")
		}
	}

	err := c.GetJSON(ctx, "/x", nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen after repeated failures, got %v", err)
	}
}

func TestCallCounterTracksResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			http.Error(w, "down", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	calls := prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "test_upstream_calls_total"},
		[]string{"target", "result"},
	)
	c := NewClient("ehr", srv.URL, 5*time.Second, zerolog.Nop())
	c.SetMetrics(calls)

	if err := c.GetJSON(context.Background(), "/ok", nil); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if err := c.GetJSON(context.Background(), "/bad", nil); err == nil {
		t.Fatal("expected error from failing path")
	}

	if got := testutil.ToFloat64(calls.WithLabelValues("ehr", "ok")); got != 1 {
		t.Errorf("ok count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(calls.WithLabelValues("ehr", "error")); got != 1 {
		t.Errorf("error count = %v, want 1", got)
	}
}
