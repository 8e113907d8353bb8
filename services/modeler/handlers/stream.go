// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/observability"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/registry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var streamTracer = otel.Tracer("threatcompass.modeler.handlers")

// StreamConfig holds the delivery-path timing knobs. All of them affect
// only the stream connection, never the underlying generation.
type StreamConfig struct {
	// PollInterval is how often the registry is drained for new events.
	PollInterval time.Duration

	// KeepaliveInterval is how often an SSE comment is sent to defeat
	// idle-connection timeouts in intermediaries.
	KeepaliveInterval time.Duration

	// SoftTimeout is how long a connection waits for a terminal event
	// before emitting the background-processing notice. Advisory only:
	// the generation keeps running and persists its result.
	SoftTimeout time.Duration

	// RegistryGrace is how long a delivered entry lingers before
	// removal, tolerating redelivery races.
	RegistryGrace time.Duration
}

// DefaultStreamConfig returns the standard delivery timings.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		PollInterval:      1 * time.Second,
		KeepaliveInterval: 5 * time.Second,
		SoftTimeout:       30 * time.Second,
		RegistryGrace:     2 * time.Second,
	}
}

// applyStreamDefaults fills zero-valued fields so a partially built
// config cannot produce a busy loop.
func applyStreamDefaults(cfg StreamConfig) StreamConfig {
	def := DefaultStreamConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = def.KeepaliveInterval
	}
	if cfg.SoftTimeout <= 0 {
		cfg.SoftTimeout = def.SoftTimeout
	}
	if cfg.RegistryGrace < 0 {
		cfg.RegistryGrace = def.RegistryGrace
	}
	return cfg
}

// HandleGenerationStream serves the per-request SSE stream.
//
// # Description
//
// One connection serves one request id. The handler emits an open event,
// then drains the registry on a fixed interval and forwards every queued
// event in push order. A comment keepalive runs on a shorter interval.
// If no terminal event has been forwarded within the soft timeout, a
// single background-processing notice is emitted; the generation itself
// is never cancelled by anything that happens on this connection.
//
// After forwarding a terminal event the handler stops polling and
// removes the registry entry once the grace period has passed. On client
// disconnect the entry is only removed when the generation has already
// completed; a still-running coordinator keeps its entry.
func HandleGenerationStream(reg *registry.Registry, cfg StreamConfig) gin.HandlerFunc {
	cfg = applyStreamDefaults(cfg)

	return func(c *gin.Context) {
		requestID := c.Param("requestId")
		_, span := streamTracer.Start(c.Request.Context(), "HandleGenerationStream")
		defer span.End()
		span.SetAttributes(attribute.String("generation.request_id", requestID))

		if !reg.Exists(requestID) {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown request id"})
			return
		}

		SetSSEHeaders(c.Writer)
		writer, err := NewSSEWriter(c.Writer)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
			return
		}

		metrics := observability.DefaultMetrics
		if metrics != nil {
			metrics.ActiveStreams.Inc()
			defer metrics.ActiveStreams.Dec()
		}

		if err := writer.WriteEvent(registry.EventOpen, gin.H{
			"status":     "connected",
			"request_id": requestID,
		}); err != nil {
			slog.Debug("Failed to write open event", "request_id", requestID, "error", err)
			return
		}

		// Drain whatever queued up before the client connected.
		if forwardDrained(writer, reg, requestID) {
			finishStream(reg, requestID, cfg.RegistryGrace)
			return
		}

		pollTicker := time.NewTicker(cfg.PollInterval)
		defer pollTicker.Stop()
		keepaliveTicker := time.NewTicker(cfg.KeepaliveInterval)
		defer keepaliveTicker.Stop()
		softTimeout := time.NewTimer(cfg.SoftTimeout)
		defer softTimeout.Stop()

		clientGone := c.Request.Context().Done()
		noticeSent := false

		for {
			select {
			case <-clientGone:
				slog.Debug("Stream client disconnected", "request_id", requestID)
				if metrics != nil {
					metrics.ClientDisconnectsTotal.Inc()
				}
				// A still-running generation keeps its registry entry so
				// its terminal state is not lost; only a finished one is
				// reclaimed here.
				if reg.IsComplete(requestID) {
					reg.Remove(requestID)
				}
				return

			case <-keepaliveTicker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					slog.Debug("Failed to write keepalive", "request_id", requestID, "error", err)
				} else if metrics != nil {
					metrics.KeepAlivesTotal.Inc()
				}

			case <-softTimeout.C:
				if noticeSent {
					continue
				}
				noticeSent = true
				if metrics != nil {
					metrics.SoftTimeoutsTotal.Inc()
				}
				// Advisory only. The generation keeps running and will
				// persist its result; the client may close this stream
				// and fetch the model later.
				if err := writer.WriteEvent(registry.EventProcessing, gin.H{
					"status":     "processing_in_background",
					"message":    "generation is still running; the result will be saved when it completes",
					"request_id": requestID,
				}); err != nil {
					slog.Debug("Failed to write timeout notice", "request_id", requestID, "error", err)
				}

			case <-pollTicker.C:
				if forwardDrained(writer, reg, requestID) {
					finishStream(reg, requestID, cfg.RegistryGrace)
					return
				}
			}
		}
	}
}

// forwardDrained forwards every queued event in order and reports
// whether a terminal event went out.
func forwardDrained(writer SSEWriter, reg *registry.Registry, requestID string) bool {
	terminal := false
	for _, ev := range reg.Drain(requestID) {
		if err := writer.WriteEvent(ev.Type, ev.Data); err != nil {
			slog.Debug("Failed to forward stream event",
				"request_id", requestID, "event", ev.Type, "error", err)
		}
		if ev.Type == registry.EventResponse || ev.Type == registry.EventError {
			terminal = true
		}
	}
	return terminal
}

// finishStream reclaims the registry entry after the grace delay.
func finishStream(reg *registry.Registry, requestID string, grace time.Duration) {
	time.AfterFunc(grace, func() {
		if reg.IsComplete(requestID) {
			reg.Remove(requestID)
		}
	})
}
