package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestOllamaClient points a client at an httptest server without
// going through environment configuration.
func newTestOllamaClient(baseURL string, apiLog *APIEventLog) *OllamaClient {
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		model:      "llama3",
		apiLog:     apiLog,
	}
}

func TestOllamaComplete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)

		var req ollamaGenerateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.False(t, req.Stream)
		assert.EqualValues(t, 2048, req.Options["num_predict"])

		json.NewEncoder(w).Encode(ollamaGenerateResponse{
			Model:           req.Model,
			Response:        "## Threat: Example\n**Description:** text.",
			Done:            true,
			PromptEvalCount: 120,
			EvalCount:       80,
		})
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL, NewAPIEventLog(0))
	resp, err := client.Complete(context.Background(), "describe threats", "", 2048)
	require.NoError(t, err)

	assert.Contains(t, resp.Text, "## Threat: Example")
	assert.Equal(t, 120, resp.Usage.PromptUnits)
	assert.Equal(t, 80, resp.Usage.CompletionUnits)
	assert.Equal(t, 200, resp.Usage.PromptUnits+resp.Usage.CompletionUnits)
}

func TestOllamaComplete_AuthFailureClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL, nil)
	_, err := client.Complete(context.Background(), "prompt", "llama3", 0)

	perr, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrAuthenticationFailure, perr.Kind)
	assert.Equal(t, http.StatusUnauthorized, perr.HTTPStatus)
}

func TestOllamaComplete_RateLimitClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL, nil)
	_, err := client.Complete(context.Background(), "prompt", "llama3", 0)

	perr, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrRateLimitOrQuota, perr.Kind)
}

func TestOllamaComplete_ModelNotFoundMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "model 'nope' not found"})
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL, nil)
	_, err := client.Complete(context.Background(), "prompt", "nope", 0)

	perr, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Contains(t, perr.Message, "ollama pull nope")
}

func TestOllamaComplete_EmptyResponseIsMalformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "   ", Done: true})
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL, nil)
	_, err := client.Complete(context.Background(), "prompt", "llama3", 0)

	perr, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrMalformedResponse, perr.Kind)
}

func TestOllamaComplete_NetworkErrorClassified(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	client := newTestOllamaClient(server.URL, nil)
	_, err := client.Complete(context.Background(), "prompt", "llama3", 0)

	perr, ok := AsProviderError(err)
	require.True(t, ok)
	assert.Equal(t, ErrNetworkOrTimeout, perr.Kind)
}

func TestOllamaComplete_RecordsAPIEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(ollamaGenerateResponse{Response: "ok", Done: true})
	}))
	defer server.Close()

	apiLog := NewAPIEventLog(8)
	client := newTestOllamaClient(server.URL, apiLog)

	_, err := client.Complete(context.Background(), "secret prompt", "llama3", 0)
	require.NoError(t, err)

	events := apiLog.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, FamilyOllama, events[0].Provider)
	assert.Equal(t, "llama3", events[0].Model)
	assert.Equal(t, 200, events[0].HTTPStatus)
	assert.Empty(t, events[0].Err)
}

func TestOllamaCheckAvailability(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestOllamaClient(server.URL, nil)
	assert.True(t, client.CheckAvailability(context.Background()))

	server.Close()
	assert.False(t, client.CheckAvailability(context.Background()))
}
