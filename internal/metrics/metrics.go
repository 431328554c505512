// Package metrics exposes Prometheus counters for both roles.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Reasons for dropping a frame on the producer side
const (
	DropUnavailable = "unavailable" // channel could not be opened
	DropWrite       = "write"       // write to an open channel failed
	DropQueueFull   = "queue_full"  // sender could not keep up
)

var (
	registerOnce sync.Once

	framesSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multistatus",
			Subsystem: "producer",
			Name:      "frames_sent_total",
			Help:      "Status lines written to the channel.",
		},
		[]string{"priority"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multistatus",
			Subsystem: "producer",
			Name:      "frames_dropped_total",
			Help:      "Status lines that could not be delivered.",
		},
		[]string{"priority", "reason"},
	)
	updates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "multistatus",
			Subsystem: "consumer",
			Name:      "updates_total",
			Help:      "Frames received by the consumer, by acceptance result.",
		},
		[]string{"priority", "result"},
	)
	linesDiscarded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "multistatus",
			Subsystem: "consumer",
			Name:      "lines_discarded_total",
			Help:      "Channel lines discarded because of an invalid priority tag.",
		},
	)
	ownerPriority = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "multistatus",
			Subsystem: "consumer",
			Name:      "owner_priority",
			Help:      "Priority of the most recently accepted update.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(framesSent, framesDropped, updates, linesDiscarded, ownerPriority)
	})
}

func RecordFrameSent(priority int) {
	RegisterMetrics()
	framesSent.WithLabelValues(strconv.Itoa(priority)).Inc()
}

func RecordFrameDropped(priority int, reason string) {
	RegisterMetrics()
	framesDropped.WithLabelValues(strconv.Itoa(priority), reason).Inc()
}

func RecordUpdate(priority int, accepted bool) {
	RegisterMetrics()
	result := "rejected"
	if accepted {
		result = "accepted"
		ownerPriority.Set(float64(priority))
	}
	updates.WithLabelValues(strconv.Itoa(priority), result).Inc()
}

func RecordLineDiscarded() {
	RegisterMetrics()
	linesDiscarded.Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled
func Serve(ctx context.Context, addr string) error {
	RegisterMetrics()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	slog.Info("Serving metrics", "addr", addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server failed: %w", err)
	}
	return nil
}
