// Package metrics exposes Prometheus counters for triage sessions.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	// ClassificationsTotal counts decisions by the tier that produced them.
	// Labels: tier (learned, model, heuristic)
	ClassificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easemail",
			Subsystem: "classifier",
			Name:      "classifications_total",
			Help:      "Total number of classifications by winning tier",
		},
		[]string{"tier"},
	)

	// TierFailuresTotal counts tiers that failed and fell through.
	// Labels: tier, reason
	TierFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easemail",
			Subsystem: "classifier",
			Name:      "tier_failures_total",
			Help:      "Total number of classifier tier failures",
		},
		[]string{"tier", "reason"},
	)

	// ModelLatency tracks external model round trips.
	ModelLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "easemail",
			Subsystem: "classifier",
			Name:      "model_latency_seconds",
			Help:      "Duration of external model calls in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// DecisionsTotal counts confirmed decisions.
	// Labels: action, mode (auto, manual)
	DecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easemail",
			Subsystem: "pipeline",
			Name:      "decisions_total",
			Help:      "Total number of confirmed decisions",
		},
		[]string{"action", "mode"},
	)

	// ApplyFailuresTotal counts decisions the mail provider rejected.
	// Labels: action
	ApplyFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easemail",
			Subsystem: "pipeline",
			Name:      "apply_failures_total",
			Help:      "Total number of decisions that failed to apply",
		},
		[]string{"action"},
	)

	// LearningFailuresTotal counts skipped preference updates.
	LearningFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "easemail",
			Subsystem: "pipeline",
			Name:      "learning_failures_total",
			Help:      "Total number of items whose learning step failed",
		},
	)

	// ChunksTotal counts reviewed chunks by how they were classified.
	// Labels: source (sync, prepared, inline)
	ChunksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "easemail",
			Subsystem: "scheduler",
			Name:      "chunks_total",
			Help:      "Total number of chunks presented for review",
		},
		[]string{"source"},
	)

	// WorkerJoinTimeouts counts background workers that missed the join deadline.
	WorkerJoinTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "easemail",
			Subsystem: "scheduler",
			Name:      "worker_join_timeouts_total",
			Help:      "Total number of background workers abandoned at join",
		},
	)

	// NotificationsInterrupted counts announcements cut short by a keypress.
	NotificationsInterrupted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "easemail",
			Subsystem: "notifier",
			Name:      "interrupted_total",
			Help:      "Total number of interrupted announcements",
		},
	)
)

// Serve exposes /metrics on addr until ctx is done. An empty addr is a no-op.
func Serve(ctx context.Context, addr string, logger *zap.Logger) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logger.Info("Serving metrics", zap.String("address", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", zap.Error(err))
		}
	}()
}
