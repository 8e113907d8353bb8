package llm

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var openaiTracer = otel.Tracer("threatcompass.llm.openai")

// OpenAIClient talks to the hosted OpenAI API. Unlike Ollama this family
// only supports chat-style multi-message calls, so the flat prompt is
// wrapped in a single user message behind a system persona.
type OpenAIClient struct {
	client *openai.Client
	model  string
	apiLog *APIEventLog
}

// NewOpenAIClient builds a client from OPENAI_API_KEY and OPENAI_MODEL,
// falling back to the mounted secret file when the env var is absent.
func NewOpenAIClient(apiLog *APIEventLog) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from mounted secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, errors.New("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("OPENAI_MODEL not set, defaulting to gpt-4o-mini")
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
		apiLog: apiLog,
	}, nil
}

func (o *OpenAIClient) Name() string { return FamilyOpenAI }

func (o *OpenAIClient) DefaultModel() string { return o.model }

// Complete implements the Client interface.
func (o *OpenAIClient) Complete(ctx context.Context, prompt string, model string,
	maxTokens int) (*NormalizedResponse, error) {

	ctx, span := openaiTracer.Start(ctx, "OpenAIClient.Complete")
	defer span.End()

	if model == "" {
		model = o.model
	}
	span.SetAttributes(attribute.String("llm.model", model))
	slog.Debug("Generating text via OpenAI", "model", model)

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You are a security architect producing threat models."},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if maxTokens > 0 {
		req.MaxCompletionTokens = maxTokens
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("OpenAI API call failed", "error", err)
		pe := classifyOpenAIError(err)
		o.recordEvent(model, prompt, "", pe.HTTPStatus, start, pe.Message)
		return nil, pe
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		slog.Warn("OpenAI returned no choices or empty content")
		pe := NewProviderError(ErrMalformedResponse, "OpenAI returned no usable completion text")
		o.recordEvent(model, prompt, "", 200, start, pe.Message)
		return nil, pe
	}

	text := resp.Choices[0].Message.Content
	o.recordEvent(model, prompt, text, 200, start, "")
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return &NormalizedResponse{
		Text:  text,
		Usage: usageFromCounts(resp.Usage.PromptTokens, resp.Usage.CompletionTokens),
	}, nil
}

// CheckAvailability probes the model listing endpoint. Never returns an
// error; any failure is reported as unavailable.
func (o *OpenAIClient) CheckAvailability(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	_, err := o.client.ListModels(ctx)
	return err == nil
}

// classifyOpenAIError maps go-openai errors to the taxonomy. The SDK
// wraps non-2xx replies in *openai.APIError carrying the HTTP status.
func classifyOpenAIError(err error) *ProviderError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		pe := ClassifyHTTPStatus(FamilyOpenAI, apiErr.HTTPStatusCode)
		if code, ok := apiErr.Code.(string); ok {
			pe.Code = code
		}
		return pe
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return ClassifyHTTPStatus(FamilyOpenAI, reqErr.HTTPStatusCode)
	}
	return ClassifyTransportError(FamilyOpenAI, err)
}

func (o *OpenAIClient) recordEvent(model, prompt, response string,
	status int, start time.Time, errMsg string) {

	o.apiLog.Record(APIEvent{
		Timestamp:  start,
		Provider:   FamilyOpenAI,
		Model:      model,
		Endpoint:   "chat/completions",
		PromptPrev: prompt,
		RespPrev:   response,
		HTTPStatus: status,
		DurationMs: time.Since(start).Milliseconds(),
		Err:        errMsg,
	})
}
