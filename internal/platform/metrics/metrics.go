// Package metrics provides Prometheus metrics for the portal server.
package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests    *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	DosesMarked     *prometheus.CounterVec
	SessionsStarted prometheus.Counter
	SessionsExpired prometheus.Counter
	AlertsSent      prometheus.Counter
	SyncJobsRun     *prometheus.CounterVec
	UpstreamCalls   *prometheus.CounterVec
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_http_requests_total",
			Help: "Total HTTP requests by method, path, and status",
		}, []string{"method", "path", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "portal_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"method", "path"}),
		DosesMarked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_doses_marked_total",
			Help: "Doses marked by outcome (taken or skipped)",
		}, []string{"outcome"}),
		SessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_telemedicine_sessions_started_total",
			Help: "Telemedicine sessions started",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_telemedicine_sessions_expired_total",
			Help: "Telemedicine sessions expired by the watcher",
		}),
		AlertsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_emergency_alerts_sent_total",
			Help: "Emergency alerts dispatched",
		}),
		SyncJobsRun: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_ehr_sync_jobs_total",
			Help: "EHR sync jobs by result",
		}, []string{"result"}),
		UpstreamCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_upstream_calls_total",
			Help: "Outbound vendor calls by target and result",
		}, []string{"target", "result"}),
	}

	reg.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.DosesMarked,
		m.SessionsStarted,
		m.SessionsExpired,
		m.AlertsSent,
		m.SyncJobsRun,
		m.UpstreamCalls,
	)

	return m
}

// Handler returns the /metrics HTTP handler for the private registry.
func (m *Metrics) Handler() echo.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return echo.WrapHandler(h)
}

// Middleware records request count and duration for every request.
// The route path template (not the raw URL) keeps cardinality bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			m.HTTPRequests.WithLabelValues(c.Request().Method, path, strconv.Itoa(status)).Inc()
			m.HTTPDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())

			return err
		}
	}
}
