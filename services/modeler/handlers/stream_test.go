// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/registry"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fastStreamConfig keeps stream tests quick: tight polling, a near-
// immediate soft timeout, and no removal grace.
func fastStreamConfig() StreamConfig {
	return StreamConfig{
		PollInterval:      5 * time.Millisecond,
		KeepaliveInterval: 1 * time.Hour,
		SoftTimeout:       20 * time.Millisecond,
		RegistryGrace:     1 * time.Millisecond,
	}
}

func newStreamServer(t *testing.T, reg *registry.Registry, cfg StreamConfig) *httptest.Server {
	t.Helper()
	router := gin.New()
	router.GET("/v1/models/stream/:requestId", HandleGenerationStream(reg, cfg))
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

// readStream performs the GET and returns the full SSE body; the
// handler closes the stream after forwarding a terminal event.
func readStream(t *testing.T, url string) string {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

// =============================================================================
// HandleGenerationStream Tests
// =============================================================================

func TestStream_UnknownRequestID(t *testing.T) {
	server := newStreamServer(t, registry.New(), fastStreamConfig())

	resp, err := http.Get(server.URL + "/v1/models/stream/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStream_DeliversQueuedEventsInOrder(t *testing.T) {
	reg := registry.New()
	reg.Create("req-1")
	require.NoError(t, reg.PushEvent("req-1", registry.EventPrompt, gin.H{"prompt": "resolved prompt"}))
	require.NoError(t, reg.PushEvent("req-1", registry.EventProcessing, gin.H{"status": "working"}))
	require.NoError(t, reg.PushEvent("req-1", registry.EventResponse, gin.H{"response": "final text"}))
	require.NoError(t, reg.MarkComplete("req-1", nil))

	server := newStreamServer(t, reg, fastStreamConfig())
	body := readStream(t, server.URL+"/v1/models/stream/req-1")

	openIdx := strings.Index(body, "event: open")
	promptIdx := strings.Index(body, "event: prompt")
	processingIdx := strings.Index(body, "event: processing")
	responseIdx := strings.Index(body, "event: response")

	require.GreaterOrEqual(t, openIdx, 0)
	assert.Greater(t, promptIdx, openIdx)
	assert.Greater(t, processingIdx, promptIdx)
	assert.Greater(t, responseIdx, processingIdx)
	assert.Contains(t, body, "final text")
}

func TestStream_DeliversLateEvents(t *testing.T) {
	reg := registry.New()
	reg.Create("req-1")
	server := newStreamServer(t, reg, fastStreamConfig())

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = reg.PushEvent("req-1", registry.EventResponse, gin.H{"response": "late but delivered"})
		_ = reg.MarkComplete("req-1", nil)
	}()

	body := readStream(t, server.URL+"/v1/models/stream/req-1")
	assert.Contains(t, body, "late but delivered")
}

func TestStream_ErrorEventIsTerminal(t *testing.T) {
	reg := registry.New()
	reg.Create("req-1")
	require.NoError(t, reg.PushEvent("req-1", registry.EventError, gin.H{
		"message": "provider rejected the configured credentials",
		"type":    "authentication_failure",
	}))

	server := newStreamServer(t, reg, fastStreamConfig())
	body := readStream(t, server.URL+"/v1/models/stream/req-1")

	assert.Contains(t, body, "event: error")
	assert.Contains(t, body, "authentication_failure")
}

// TestStream_SoftTimeoutNoticeExactlyOnce verifies the advisory notice:
// when no terminal event arrives within the soft timeout, exactly one
// background-processing event is emitted and the stream stays open
// until the real terminal event shows up.
func TestStream_SoftTimeoutNoticeExactlyOnce(t *testing.T) {
	reg := registry.New()
	reg.Create("req-1")

	cfg := fastStreamConfig()
	cfg.SoftTimeout = 15 * time.Millisecond
	server := newStreamServer(t, reg, cfg)

	go func() {
		// Long enough for the soft timeout to fire well before the
		// terminal event, and for a second firing to have happened if
		// the notice were not one-shot.
		time.Sleep(100 * time.Millisecond)
		_ = reg.PushEvent("req-1", registry.EventResponse, gin.H{"response": "done"})
		_ = reg.MarkComplete("req-1", nil)
	}()

	body := readStream(t, server.URL+"/v1/models/stream/req-1")

	assert.Equal(t, 1, strings.Count(body, "processing_in_background"))
	// The terminal event still arrives after the notice.
	assert.Greater(t, strings.Index(body, "event: response"), strings.Index(body, "processing_in_background"))
}

func TestStream_KeepaliveComments(t *testing.T) {
	reg := registry.New()
	reg.Create("req-1")

	cfg := fastStreamConfig()
	cfg.KeepaliveInterval = 10 * time.Millisecond
	server := newStreamServer(t, reg, cfg)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = reg.PushEvent("req-1", registry.EventResponse, gin.H{"response": "done"})
		_ = reg.MarkComplete("req-1", nil)
	}()

	body := readStream(t, server.URL+"/v1/models/stream/req-1")
	assert.Contains(t, body, ": ping")
}

// TestStream_RemovesEntryAfterDelivery verifies the registry entry is
// reclaimed once the terminal event has been delivered and the grace
// period has passed.
func TestStream_RemovesEntryAfterDelivery(t *testing.T) {
	reg := registry.New()
	reg.Create("req-1")
	require.NoError(t, reg.PushEvent("req-1", registry.EventResponse, gin.H{"response": "done"}))
	require.NoError(t, reg.MarkComplete("req-1", nil))

	server := newStreamServer(t, reg, fastStreamConfig())
	readStream(t, server.URL+"/v1/models/stream/req-1")

	assert.Eventually(t, func() bool {
		return !reg.Exists("req-1")
	}, 2*time.Second, 5*time.Millisecond)
}

// TestStream_DisconnectKeepsRunningEntry verifies that a client
// disconnect does not discard a still-running generation's entry.
func TestStream_DisconnectKeepsRunningEntry(t *testing.T) {
	reg := registry.New()
	reg.Create("req-1")

	server := newStreamServer(t, reg, fastStreamConfig())

	req, err := http.NewRequest("GET", server.URL+"/v1/models/stream/req-1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	// Read the open event, then drop the connection mid-stream.
	buf := make([]byte, 64)
	_, _ = resp.Body.Read(buf)
	resp.Body.Close()

	// The incomplete entry must survive the disconnect so the terminal
	// state is not lost.
	time.Sleep(50 * time.Millisecond)
	assert.True(t, reg.Exists("req-1"))
}
