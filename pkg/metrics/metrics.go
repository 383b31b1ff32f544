// Package metrics provides Prometheus instrumentation for load runs.
//
// # Overview
//
// Every API request, fetched page, submitted table and finished loader is
// counted on the default registry. A run is a short-lived batch process, so
// there is no scrape endpoint: when a Pushgateway is configured the CLI
// pushes the registry once when the run ends.
//
// # Basic Usage
//
//	metrics.HTTPRequests.WithLabelValues("pages", "graphql", "200").Inc()
//
//	timer := metrics.NewTimer("pages")
//	res := load()
//	metrics.ObserveLoader("pages", "ok", timer.Stop())
//
//	if err := metrics.Push(ctx, gatewayURL, "shopsync"); err != nil {
//	    log.Warn("metrics push failed", zap.Error(err))
//	}
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// HTTPRequests counts API requests by resource, request kind and status.
	// Labels: resource, kind (graphql/rest/fanout/partner), status (HTTP code or "error")
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsync_http_requests_total",
			Help: "Total number of API requests issued",
		},
		[]string{"resource", "kind", "status"},
	)

	// PagesFetched counts pages consumed by paginators
	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsync_pages_fetched_total",
			Help: "Total number of pages fetched",
		},
		[]string{"resource"},
	)

	// FanOutSkipped counts per-item secondary requests that failed and were skipped
	FanOutSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsync_fanout_skipped_total",
			Help: "Total number of fan-out items skipped after a failed request",
		},
		[]string{"resource"},
	)

	// RowsSubmitted counts rows handed to the destination per table
	RowsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsync_rows_submitted_total",
			Help: "Total number of rows submitted to the destination",
		},
		[]string{"table", "destination"},
	)

	// LoaderRuns counts loader executions by outcome (ok/failed/skipped)
	LoaderRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsync_loader_runs_total",
			Help: "Total number of loader executions",
		},
		[]string{"loader", "outcome"},
	)

	// LoaderDuration tracks loader wall time in seconds
	LoaderDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopsync_loader_duration_seconds",
			Help:    "Loader wall time in seconds",
			Buckets: []float64{0.5, 1, 5, 15, 30, 60, 180, 600, 1800},
		},
		[]string{"loader", "outcome"},
	)

	// BackfillWindows counts backfill windows by result (done/failed/skipped)
	BackfillWindows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsync_backfill_windows_total",
			Help: "Total number of backfill windows by result",
		},
		[]string{"result"},
	)
)

// ObserveLoader records one loader execution
func ObserveLoader(loader, outcome string, elapsed time.Duration) {
	LoaderRuns.WithLabelValues(loader, outcome).Inc()
	LoaderDuration.WithLabelValues(loader, outcome).Observe(elapsed.Seconds())
}

// Push sends the default registry to a Pushgateway under job
func Push(ctx context.Context, gatewayURL, job string) error {
	if gatewayURL == "" {
		return nil
	}
	if err := push.New(gatewayURL, job).Gatherer(prometheus.DefaultGatherer).PushContext(ctx); err != nil {
		return fmt.Errorf("failed to push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}

// Timer measures elapsed time for a named operation
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
// The name parameter is for identification in logs or metrics.
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the timer name
func (t *Timer) Name() string {
	return t.name
}

// Stop returns the elapsed duration since creation. The timer can be
// stopped multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
