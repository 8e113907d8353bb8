// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// SSEWriter abstracts Server-Sent Event serialization and writing so the
// stream publisher can be tested without HTTP response mechanics.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use: the poll loop and the
// keepalive ticker write from different select arms.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders before the first write
//   - The ResponseWriter supports http.Flusher
type SSEWriter interface {
	// WriteEvent serializes payload to JSON and writes it as a named SSE
	// event (event: type\ndata: json\n\n), flushing immediately.
	WriteEvent(eventType string, payload any) error

	// WriteKeepAlive sends a comment line (": ping") that clients ignore
	// but that resets idle-connection timers in intermediaries.
	WriteKeepAlive() error
}

// sseWriter implements SSEWriter on an http.ResponseWriter.
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter wraps the ResponseWriter. Fails when the writer cannot
// flush, since buffered SSE defeats the purpose.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

func (w *sseWriter) WriteEvent(eventType string, payload any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", eventType, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// SSE comment format: colon, text, blank line.
	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// SetSSEHeaders configures the response for Server-Sent Events. Must be
// called before any body write.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

var _ SSEWriter = (*sseWriter)(nil)
