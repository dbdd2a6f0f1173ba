// Package telemetry provides application-level observability for the consumer
// registry.
//
// All metrics are registered against the default Prometheus registry and are
// served on the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<OCR_TELEMETRY_METRICS_PORT>/metrics
//
// Default port: 9090. The endpoint is deliberately not part of the Gin router
// so the scrape path stays off the public ingress and avoids the rate-limiting
// middleware.
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/consumers/:key)
// rather than the raw URL to prevent unbounded label cardinality from
// user-supplied path segments such as consumer keys.
package telemetry

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route template, and
	// status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes HTTP request latencies by method and route
	// template.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// ConsumerTransitionsTotal counts lifecycle transitions, labelled by the
	// stage the consumer left and the stage it entered. Lazy expiry shows up
	// here as proposed→expired.
	ConsumerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "consumer_transitions_total",
			Help: "Total number of consumer lifecycle transitions, by source and target stage.",
		},
		[]string{"from", "to"},
	)

	// ConsumersByStage is refreshed periodically from the stats rollup.
	ConsumersByStage = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "consumers_by_stage",
			Help: "Current number of non-deleted consumers in each lifecycle stage.",
		},
		[]string{"stage"},
	)

	// AccessTokensIssuedTotal counts issued access tokens.
	AccessTokensIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "access_tokens_issued_total",
			Help: "Total number of access tokens issued.",
		},
	)

	// AccessTokensRevokedTotal counts revoked access tokens, including bulk
	// revocation on consumer disable.
	AccessTokensRevokedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "access_tokens_revoked_total",
			Help: "Total number of access tokens revoked.",
		},
	)

	// ActiveAccessTokens is refreshed periodically from the stats rollup.
	ActiveAccessTokens = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "access_tokens_active",
			Help: "Current number of non-revoked access tokens.",
		},
	)

	// SuppressedConsumers is refreshed periodically from the stats rollup.
	SuppressedConsumers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "consumers_suppressed",
			Help: "Current number of suppressed consumers.",
		},
	)
)

// StageCounter is the slice of the stats repository the gauge refresher needs.
type StageCounter interface {
	ConsumerCountsByStage(ctx context.Context) (map[string]int, error)
	ActiveTokenCount(ctx context.Context) (int, error)
	SuppressedConsumerCount(ctx context.Context) (int, error)
}

// RefreshStageGauge polls the stats rollups every interval and updates
// ConsumersByStage, ActiveAccessTokens, and SuppressedConsumers until ctx is
// cancelled. Stages with zero consumers are explicitly set to 0 so a stage
// emptying out does not leave a stale gauge.
func RefreshStageGauge(ctx context.Context, stats StageCounter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	stages := []string{"proposed", "rejected", "expired", "approved", "disabled"}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			counts, err := stats.ConsumerCountsByStage(ctx)
			if err != nil {
				slog.Warn("stage gauge refresh failed", "error", err)
				continue
			}
			for _, stage := range stages {
				ConsumersByStage.WithLabelValues(stage).Set(float64(counts[stage]))
			}

			if n, err := stats.ActiveTokenCount(ctx); err != nil {
				slog.Warn("active token gauge refresh failed", "error", err)
			} else {
				ActiveAccessTokens.Set(float64(n))
			}
			if n, err := stats.SuppressedConsumerCount(ctx); err != nil {
				slog.Warn("suppressed consumer gauge refresh failed", "error", err)
			} else {
				SuppressedConsumers.Set(float64(n))
			}
		}
	}
}
