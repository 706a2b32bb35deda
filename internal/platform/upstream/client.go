// Package upstream provides a resilient HTTP client for outbound calls
// to EHR systems and wearable-device vendors. Calls run through a
// per-target circuit breaker so a failing vendor cannot tie up the
// request path.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the breaker for a target is open.
var ErrCircuitOpen = errors.New("upstream circuit open")

// StatusError reports a non-2xx response from an upstream target.
type StatusError struct {
	Target     string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s returned %d", e.Target, e.StatusCode)
}

// Client wraps an http.Client with a named circuit breaker.
type Client struct {
	target     string
	baseURL    string
	authHeader string
	http       *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     zerolog.Logger
	calls      *prometheus.CounterVec
}

// NewClient builds a client for one upstream target. The breaker opens
// after five consecutive failures and probes again after 30 seconds.
func NewClient(target, baseURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        target,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("target", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("upstream breaker state change")
		},
	}

	return &Client{
		target:  target,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger.With().Str("upstream", target).Logger(),
	}
}

// Target returns the breaker name for this client.
func (c *Client) Target() string { return c.target }

// SetMetrics wires a counter labelled {target, result} that is bumped
// on every outbound call.
func (c *Client) SetMetrics(calls *prometheus.CounterVec) { c.calls = calls }

func (c *Client) count(result string) {
	if c.calls != nil {
		c.calls.WithLabelValues(c.target, result).Inc()
	}
}

// SetBearerToken sets the Authorization header sent on every request.
// An empty token clears it.
func (c *Client) SetBearerToken(token string) {
	if token == "" {
		c.authHeader = ""
		return
	}
	c.authHeader = "Bearer " + token
}

// GetJSON performs a GET against path and decodes the response into out.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// PostJSON performs a POST with a JSON body and decodes the response into out.
// out may be nil when the caller does not need the response body.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	result, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.authHeader != "" {
			req.Header.Set("Authorization", c.authHeader)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &StatusError{Target: c.target, StatusCode: resp.StatusCode, Body: string(data)}
		}
		return data, nil
	})
	if err != nil {
		c.count("error")
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s", ErrCircuitOpen, c.target)
		}
		return err
	}
	c.count("ok")

	if out == nil {
		return nil
	}
	data := result.([]byte)
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.target, err)
	}
	return nil
}
