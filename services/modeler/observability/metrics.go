// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the modeler.
//
// Metrics cover the generation pipeline (submissions, provider calls,
// terminal outcomes) and the SSE delivery path (active streams,
// keepalives, soft timeouts, client disconnects). All operations are
// thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "threatcompass"

const generationSubsystem = "generation"

// GenerationMetrics holds all Prometheus metrics for the generation and
// streaming pipeline. Initialize once at startup via InitMetrics().
type GenerationMetrics struct {
	// GenerationsTotal counts generations by provider and terminal status.
	// Labels: provider (openai, ollama), status (success, error)
	GenerationsTotal *prometheus.CounterVec

	// ErrorsTotal counts terminal errors by taxonomy kind.
	// Labels: provider, kind (authentication_failure, rate_limit_or_quota, ...)
	ErrorsTotal *prometheus.CounterVec

	// ProviderCallSeconds measures provider round-trip latency.
	// Labels: provider
	ProviderCallSeconds *prometheus.HistogramVec

	// GenerationSeconds measures submission-to-terminal duration.
	// Labels: provider, status
	GenerationSeconds *prometheus.HistogramVec

	// TokensTotal counts normalized token units by direction.
	// Labels: provider, direction (prompt, completion)
	TokensTotal *prometheus.CounterVec

	// ActiveStreams tracks open SSE connections.
	ActiveStreams prometheus.Gauge

	// KeepAlivesTotal counts SSE keepalive comments sent.
	KeepAlivesTotal prometheus.Counter

	// SoftTimeoutsTotal counts streams that hit the background-processing
	// notice before a terminal event arrived.
	SoftTimeoutsTotal prometheus.Counter

	// ClientDisconnectsTotal counts streams closed by the client before a
	// terminal event was delivered.
	ClientDisconnectsTotal prometheus.Counter
}

// DefaultMetrics is the singleton instance, populated by InitMetrics().
var DefaultMetrics *GenerationMetrics

// InitMetrics creates and registers all metrics. Call once at startup.
func InitMetrics() *GenerationMetrics {
	if DefaultMetrics != nil {
		return DefaultMetrics
	}

	DefaultMetrics = &GenerationMetrics{
		GenerationsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: generationSubsystem,
			Name:      "requests_total",
			Help:      "Generation requests by provider and terminal status.",
		}, []string{"provider", "status"}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: generationSubsystem,
			Name:      "errors_total",
			Help:      "Terminal generation errors by taxonomy kind.",
		}, []string{"provider", "kind"}),

		ProviderCallSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: generationSubsystem,
			Name:      "provider_call_seconds",
			Help:      "Provider round-trip latency in seconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"provider"}),

		GenerationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: generationSubsystem,
			Name:      "duration_seconds",
			Help:      "Submission-to-terminal duration in seconds.",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		}, []string{"provider", "status"}),

		TokensTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: generationSubsystem,
			Name:      "tokens_total",
			Help:      "Normalized token units by provider and direction.",
		}, []string{"provider", "direction"}),

		ActiveStreams: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "streaming",
			Name:      "active_streams",
			Help:      "Currently open SSE connections.",
		}),

		KeepAlivesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "streaming",
			Name:      "keepalives_total",
			Help:      "SSE keepalive comments sent.",
		}),

		SoftTimeoutsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "streaming",
			Name:      "soft_timeouts_total",
			Help:      "Streams that emitted the background-processing notice.",
		}),

		ClientDisconnectsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "streaming",
			Name:      "client_disconnects_total",
			Help:      "Streams closed by the client before terminal delivery.",
		}),
	}
	return DefaultMetrics
}

// RecordGeneration records a terminal outcome with its duration.
func (m *GenerationMetrics) RecordGeneration(provider, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(provider, status).Inc()
	m.GenerationSeconds.WithLabelValues(provider, status).Observe(elapsed.Seconds())
}

// RecordProviderCall records one provider round trip.
func (m *GenerationMetrics) RecordProviderCall(provider string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.ProviderCallSeconds.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// RecordError records a terminal error by taxonomy kind.
func (m *GenerationMetrics) RecordError(provider, kind string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(provider, kind).Inc()
}

// RecordTokens records normalized usage units.
func (m *GenerationMetrics) RecordTokens(provider string, promptUnits, completionUnits int) {
	if m == nil {
		return
	}
	m.TokensTotal.WithLabelValues(provider, "prompt").Add(float64(promptUnits))
	m.TokensTotal.WithLabelValues(provider, "completion").Add(float64(completionUnits))
}
