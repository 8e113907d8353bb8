package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var ollamaTracer = otel.Tracer("threatcompass.llm.ollama")

// OllamaClient talks to a locally-run Ollama server. Ollama only offers a
// flat completion endpoint; there is no multi-message chat shape to build.
type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
	apiLog     *APIEventLog
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model           string `json:"model"`
	CreatedAt       string `json:"created_at"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

// NewOllamaClient builds a client from OLLAMA_BASE_URL and OLLAMA_MODEL.
// The base URL is required; the model falls back to a default that only
// applies when a request carries no model of its own.
func NewOllamaClient(apiLog *APIEventLog) (*OllamaClient, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	model := os.Getenv("OLLAMA_MODEL")
	if baseURL == "" {
		return nil, fmt.Errorf("OLLAMA_BASE_URL environment variable not set")
	}
	if model == "" {
		slog.Warn("OLLAMA_MODEL not set, defaulting", "model", "llama3")
		model = "llama3"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "default_model", model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		model:      model,
		apiLog:     apiLog,
	}, nil
}

func (o *OllamaClient) Name() string { return FamilyOllama }

func (o *OllamaClient) DefaultModel() string { return o.model }

// Complete implements the Client interface.
func (o *OllamaClient) Complete(ctx context.Context, prompt string, model string,
	maxTokens int) (*NormalizedResponse, error) {

	ctx, span := ollamaTracer.Start(ctx, "OllamaClient.Complete")
	defer span.End()

	if model == "" {
		model = o.model
	}
	span.SetAttributes(attribute.String("llm.model", model))
	slog.Debug("Generating text via Ollama", "model", model)

	generateURL := o.baseURL + "/api/generate"
	options := map[string]interface{}{
		"temperature": 0.2,
	}
	if maxTokens > 0 {
		options["num_predict"] = maxTokens
	}
	payload := ollamaGenerateRequest{
		Model:   model,
		Prompt:  prompt,
		Stream:  false,
		Options: options,
	}

	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to marshal request to Ollama: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", generateURL, bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to create request to Ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Ollama API call failed", "error", err)
		pe := ClassifyTransportError(FamilyOllama, err)
		o.recordEvent(model, generateURL, prompt, "", 0, start, pe.Message)
		return nil, pe
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		pe := ClassifyTransportError(FamilyOllama, err)
		o.recordEvent(model, generateURL, prompt, "", resp.StatusCode, start, pe.Message)
		return nil, pe
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("Ollama returned an error", "status_code", resp.StatusCode,
			"response", string(respBodyBytes))
		pe := ClassifyHTTPStatus(FamilyOllama, resp.StatusCode)
		if resp.StatusCode == http.StatusNotFound {
			var errResp struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(respBodyBytes, &errResp); err == nil &&
				strings.Contains(errResp.Error, "model") && strings.Contains(errResp.Error, "not found") {
				slog.Warn("Ollama model not found", "model", model)
				pe.Message = fmt.Sprintf("model '%s' not found, run: 'ollama pull %s'", model, model)
			}
		}
		o.recordEvent(model, generateURL, prompt, string(respBodyBytes), resp.StatusCode, start, pe.Message)
		return nil, pe
	}

	var ollamaResp ollamaGenerateResponse
	if err := json.Unmarshal(respBodyBytes, &ollamaResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Failed to parse JSON response from Ollama", "error", err)
		pe := NewProviderError(ErrMalformedResponse, "failed to parse Ollama response")
		o.recordEvent(model, generateURL, prompt, string(respBodyBytes), resp.StatusCode, start, pe.Message)
		return nil, pe
	}
	if strings.TrimSpace(ollamaResp.Response) == "" {
		// A 200 with no text is a contract violation, not an empty answer.
		pe := NewProviderError(ErrMalformedResponse, "Ollama returned 200 with an empty response field")
		o.recordEvent(model, generateURL, prompt, "", resp.StatusCode, start, pe.Message)
		return nil, pe
	}

	o.recordEvent(model, generateURL, prompt, ollamaResp.Response, resp.StatusCode, start, "")
	slog.Debug("Received response from Ollama")
	return &NormalizedResponse{
		Text: ollamaResp.Response,
		Usage: usageFromCounts(
			ollamaResp.PromptEvalCount,
			ollamaResp.EvalCount,
		),
	}, nil
}

// CheckAvailability probes the Ollama tag listing. Never returns an
// error; any failure is reported as unavailable.
func (o *OllamaClient) CheckAvailability(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", o.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (o *OllamaClient) recordEvent(model, endpoint, prompt, response string,
	status int, start time.Time, errMsg string) {

	o.apiLog.Record(APIEvent{
		Timestamp:  start,
		Provider:   FamilyOllama,
		Model:      model,
		Endpoint:   endpoint,
		PromptPrev: prompt,
		RespPrev:   response,
		HTTPStatus: status,
		DurationMs: time.Since(start).Milliseconds(),
		Err:        errMsg,
	})
}
