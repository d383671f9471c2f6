package observability

import (
	"context"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mauv0809/good-morning/internal/ingest"
)

var (
	// FetchesTotal tracks upstream fetches by endpoint and outcome
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goodmorning_fetches_total",
			Help: "Total number of Morningstar fetches",
		},
		[]string{"endpoint", "outcome"},
	)

	// FetchDuration tracks upstream fetch duration
	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goodmorning_fetch_duration_seconds",
			Help:    "Morningstar fetch duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// DownloadsTotal tracks per-ticker downloads by kind and status
	DownloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goodmorning_downloads_total",
			Help: "Total number of ticker downloads",
		},
		[]string{"kind", "status"},
	)

	// RequestsTotal tracks admin HTTP requests
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goodmorning_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "code"},
	)

	// RequestDuration tracks admin HTTP request duration
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goodmorning_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// Fetcher wraps an ingest.Fetcher with fetch metrics.
type Fetcher struct {
	next ingest.Fetcher
}

// NewFetcher instruments next.
func NewFetcher(next ingest.Fetcher) *Fetcher {
	return &Fetcher{next: next}
}

// Fetch implements ingest.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	endpoint := endpointLabel(rawURL)

	start := time.Now()
	body, err := f.next.Fetch(ctx, rawURL)
	FetchDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case len(body) == 0:
		outcome = "empty"
	}
	FetchesTotal.WithLabelValues(endpoint, outcome).Inc()

	return body, err
}

// endpointLabel keeps label cardinality bounded: only the last path element.
func endpointLabel(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Path == "" {
		return "unknown"
	}
	return path.Base(u.Path)
}

// RecordDownload counts one ticker download.
func RecordDownload(kind, status string) {
	DownloadsTotal.WithLabelValues(kind, status).Inc()
}

// Middleware records request counts and durations by route template.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}

			RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			RequestsTotal.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			return err
		}
	}
}
