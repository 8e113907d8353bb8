package llm

import (
	"context"
	"strings"

	"github.com/ThreatCompassAI/ThreatCompass/services/modeler/datatypes"
)

// NormalizedResponse is the uniform shape every provider client returns,
// regardless of the backend's native response envelope.
type NormalizedResponse struct {
	Text  string               `json:"text"`
	Usage datatypes.TokenUsage `json:"usage"`
}

// Client defines the standard interface for any LLM backend.
//
// Complete sends a single flat prompt and returns the normalized result.
// CheckAvailability is a side-effect-free health probe: it never returns
// an error, only whether the backend currently answers.
type Client interface {
	Complete(ctx context.Context, prompt string, model string, maxTokens int) (*NormalizedResponse, error)
	CheckAvailability(ctx context.Context) bool
	Name() string
	DefaultModel() string
}

// usageFromCounts normalizes per-provider token counters into the shared
// usage shape.
func usageFromCounts(prompt, completion int) datatypes.TokenUsage {
	return datatypes.TokenUsage{
		PromptUnits:     prompt,
		CompletionUnits: completion,
		TotalUnits:      prompt + completion,
	}
}

// Family names for the supported backend kinds.
const (
	FamilyOpenAI = "openai"
	FamilyOllama = "ollama"
)

// openAIModelPrefixes are model-name tokens characteristic of the OpenAI
// family. Ollama model names instead carry tags ("llama3:8b") or local
// family names.
var openAIModelPrefixes = []string{"gpt-", "o1", "o3", "o4", "chatgpt", "text-davinci"}

var ollamaModelTokens = []string{"llama", "mistral", "gemma", "phi", "qwen", "deepseek", "codellama"}

// DetectFamily guesses which backend family a model name belongs to.
// Returns FamilyOpenAI, FamilyOllama, or "" when the name is not
// indicative of either. This is a heuristic used only to avoid sending a
// guaranteed-invalid model to the wrong backend; callers surface a
// warning when they act on it.
func DetectFamily(model string) string {
	lower := strings.ToLower(strings.TrimSpace(model))
	if lower == "" {
		return ""
	}
	for _, p := range openAIModelPrefixes {
		if strings.HasPrefix(lower, p) {
			return FamilyOpenAI
		}
	}
	if strings.Contains(lower, ":") {
		return FamilyOllama
	}
	for _, t := range ollamaModelTokens {
		if strings.Contains(lower, t) {
			return FamilyOllama
		}
	}
	return ""
}
