// Copyright (C) 2026 ThreatCompass AI (dev@threatcompass.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ThreatCompassAI/ThreatCompass/services/llm"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/datatypes"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/prompts"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/registry"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/services"
	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/store"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

// stubClient implements llm.Client for handler testing.
type stubClient struct {
	text string
	err  error
}

func (s *stubClient) Complete(ctx context.Context, prompt, model string,
	maxTokens int) (*llm.NormalizedResponse, error) {

	if s.err != nil {
		return nil, s.err
	}
	return &llm.NormalizedResponse{
		Text:  s.text,
		Usage: datatypes.TokenUsage{PromptUnits: 10, CompletionUnits: 5, TotalUnits: 15},
	}, nil
}

func (s *stubClient) CheckAvailability(ctx context.Context) bool { return true }
func (s *stubClient) Name() string                               { return llm.FamilyOllama }
func (s *stubClient) DefaultModel() string                       { return "llama3" }

func newGenerateRouter(t *testing.T, client llm.Client) (*gin.Engine, *registry.Registry) {
	t.Helper()
	st, err := store.Open(store.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg := registry.New()
	coord := services.NewCoordinator(
		map[string]llm.Client{llm.FamilyOllama: client},
		reg, st, prompts.NewLibrary(), nil)

	router := gin.New()
	router.POST("/v1/models", HandleGenerateModel(coord))
	return router, reg
}

func postJSON(router *gin.Engine, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest("POST", path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// =============================================================================
// HandleGenerateModel Tests
// =============================================================================

func TestHandleGenerateModel_AsyncAccepted(t *testing.T) {
	router, reg := newGenerateRouter(t, &stubClient{text: "model text"})

	w := postJSON(router, "/v1/models", datatypes.GenerateModelRequest{
		SubjectText: "A web shop with a database.",
		Provider:    llm.FamilyOllama,
	})

	require.Equal(t, http.StatusAccepted, w.Code)
	var resp datatypes.GenerateModelResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RequestID)
	assert.True(t, reg.Exists(resp.RequestID))
}

func TestHandleGenerateModel_InvalidJSON(t *testing.T) {
	router, _ := newGenerateRouter(t, &stubClient{text: "ok"})

	req, _ := http.NewRequest("POST", "/v1/models", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGenerateModel_ValidationFailures(t *testing.T) {
	router, _ := newGenerateRouter(t, &stubClient{text: "ok"})

	cases := []datatypes.GenerateModelRequest{
		{Provider: llm.FamilyOllama},                          // missing subject
		{SubjectText: "something"},                            // missing provider
		{SubjectText: "something", Provider: "not-a-backend"}, // unknown provider
		{SubjectText: strings.Repeat("x", datatypes.MaxSubjectBytes+1), Provider: llm.FamilyOllama},
	}

	for i, body := range cases {
		w := postJSON(router, "/v1/models", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "case %d", i)
	}
}

func TestHandleGenerateModel_SyncMode(t *testing.T) {
	router, _ := newGenerateRouter(t, &stubClient{text: "synchronous result"})

	w := postJSON(router, "/v1/models?sync=true", datatypes.GenerateModelRequest{
		SubjectText: "A queue-backed ingest service.",
		Provider:    llm.FamilyOllama,
	})

	require.Equal(t, http.StatusOK, w.Code)
	var resp datatypes.SyncGenerateResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "synchronous result", resp.Response)
	assert.Equal(t, 15, resp.Tokens.TotalUnits)
	assert.NotEmpty(t, resp.SubjectID)
}

// =============================================================================
// Error Mapping Tests
// =============================================================================

func TestHandleGenerateModel_SyncErrorMapping(t *testing.T) {
	cases := []struct {
		kind       llm.ErrorKind
		wantStatus int
	}{
		{llm.ErrRateLimitOrQuota, http.StatusTooManyRequests},
		{llm.ErrNetworkOrTimeout, http.StatusGatewayTimeout},
		{llm.ErrAuthenticationFailure, http.StatusBadGateway},
		{llm.ErrMalformedResponse, http.StatusBadGateway},
	}

	for _, tc := range cases {
		router, _ := newGenerateRouter(t, &stubClient{
			err: llm.NewProviderError(tc.kind, "upstream failure"),
		})

		w := postJSON(router, "/v1/models?sync=true", datatypes.GenerateModelRequest{
			SubjectText: "anything",
			Provider:    llm.FamilyOllama,
		})

		assert.Equal(t, tc.wantStatus, w.Code, "kind=%s", tc.kind)
		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, string(tc.kind), body["type"])
	}
}

// TestHandleGenerateModel_SyncUnknownTemplate verifies an unresolvable
// template id is the caller's fault, not the provider's: 400, not 502.
func TestHandleGenerateModel_SyncUnknownTemplate(t *testing.T) {
	router, _ := newGenerateRouter(t, &stubClient{text: "never reached"})

	w := postJSON(router, "/v1/models?sync=true", datatypes.GenerateModelRequest{
		SubjectText:      "anything",
		Provider:         llm.FamilyOllama,
		PromptTemplateID: "does-not-exist",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
