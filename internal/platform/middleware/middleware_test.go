package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/auth"
)

func run(t *testing.T, mw echo.MiddlewareFunc, handler echo.HandlerFunc) (*httptest.ResponseRecorder, echo.Context) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := mw(handler)(c); err != nil {
		e.HTTPErrorHandler(err, c)
	}
	return rec, c
}

func okHandler(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func TestRequestID_GeneratesNew(t *testing.T) {
	rec, c := run(t, RequestID(), okHandler)
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID header to be set")
	}
	if rid, _ := c.Get("request_id").(string); rid == "" {
		t.Error("expected request_id on context")
	}
}

func TestRequestID_HonorsInbound(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "fixed-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if err := RequestID()(okHandler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) != "fixed-id" {
		t.Errorf("expected fixed-id, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	logger := zerolog.Nop()
	rec, _ := run(t, Recovery(logger), func(c echo.Context) error {
		panic("boom")
	})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 after panic, got %d", rec.Code)
	}
}

func TestSecurityHeaders_Set(t *testing.T) {
	rec, _ := run(t, SecurityHeaders(), okHandler)
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected nosniff header")
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected no-store cache control")
	}
}

func TestRateLimit_AllowsWithinBurst(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 10, BurstSize: 2})
	rec, _ := run(t, mw, okHandler)
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestRateLimit_RejectsWhenExhausted(t *testing.T) {
	e := echo.New()
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 0.001, BurstSize: 1})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if err := mw(okHandler)(c); err != nil {
			e.HTTPErrorHandler(err, c)
		}
		codes = append(codes, rec.Code)
	}

	if codes[0] != http.StatusOK {
		t.Errorf("expected first request allowed, got %d", codes[0])
	}
	if codes[1] != http.StatusTooManyRequests {
		t.Errorf("expected second request limited, got %d", codes[1])
	}
}

func TestLogger_AttachesSubjectAndLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/medications", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := Logger(logger)(func(c echo.Context) error {
		ctx := context.WithValue(c.Request().Context(), auth.UserIDKey, "user-123")
		c.SetRequest(c.Request().WithContext(ctx))
		return c.NoContent(http.StatusNotFound)
	})
	if err := handler(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("unmarshal log line: %v (%s)", err, buf.String())
	}
	if line["user_id"] != "user-123" {
		t.Errorf("expected user_id on the log line, got %v", line["user_id"])
	}
	if line["level"] != "warn" {
		t.Errorf("expected warn level for a 404, got %v", line["level"])
	}
	if line["path"] != "/api/v1/medications" {
		t.Errorf("unexpected path %v", line["path"])
	}
}
