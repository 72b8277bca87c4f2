// Package metrics holds the prometheus collectors of the planner.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// SubscriptionsOpen counts live queries per collection.
	SubscriptionsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "planner_subscriptions_open",
			Help: "Number of open live queries",
		},
		[]string{"collection"},
	)

	// SnapshotsDelivered counts snapshots delivered to live query callbacks.
	SnapshotsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_snapshots_delivered_total",
			Help: "Snapshots delivered to live query callbacks",
		},
		[]string{"collection"},
	)

	// StoreErrors counts failed store queries seen by live queries.
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_store_errors_total",
			Help: "Store errors reported to live query callbacks",
		},
		[]string{"collection"},
	)

	// Resubscriptions counts group-task subscriptions replaced after a
	// membership change or refresh.
	Resubscriptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "planner_group_resubscriptions_total",
			Help: "Group task subscriptions replaced after membership changes",
		},
	)

	// RecurrenceInstances counts persisted recurring instances.
	RecurrenceInstances = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "planner_recurrence_instances_total",
			Help: "Recurring task instances persisted",
		},
	)

	// BatchFailures counts batches that stopped partway.
	BatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "planner_batch_failures_total",
			Help: "Batch operations that stopped partway",
		},
		[]string{"op"},
	)

	// ViewPublishDuration observes the merge-and-publish time of the
	// aggregated view.
	ViewPublishDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "planner_view_publish_duration_seconds",
			Help:    "Time spent merging and publishing the aggregated view",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)
)

// Handler returns the HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shut down metrics server")
		}
	}()

	logger.Info().Str("addr", addr).Msg("serving metrics")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
