package llm

import (
	"context"
	"strings"
)

// Purpose selects which configured model serves a request.
type Purpose string

// Model purposes map to the llm.model_* configuration keys.
const (
	PurposeQueryGen  Purpose = "query_gen"
	PurposeRelevance Purpose = "relevance"
	PurposeSynthesis Purpose = "synthesis"
)

// CompletionRequest is a single model call.
type CompletionRequest struct {
	Model       string
	System      string
	User        string
	MaxTokens   int
	Temperature float64
}

// Provider is the minimal surface the gateway needs from a model backend.
type Provider interface {
	// Complete returns the raw text of the model's reply.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	// Name identifies the provider in logs.
	Name() string
}

// reasoningModelPrefixes identify model families that reject explicit
// output-token limits and non-default temperature. The gateway strips both
// before dispatch.
var reasoningModelPrefixes = []string{"o1", "o3", "o4", "gpt-5"}

// isReasoningModel reports whether the identifier names a reasoning-heavy
// model with restricted sampling parameters.
func isReasoningModel(model string) bool {
	for _, p := range reasoningModelPrefixes {
		if strings.HasPrefix(model, p) {
			return true
		}
	}
	return false
}

// applyModelQuirks normalizes a request for provider-specific constraints.
func applyModelQuirks(req CompletionRequest) CompletionRequest {
	if isReasoningModel(req.Model) {
		req.MaxTokens = 0
		req.Temperature = 1
	}
	return req
}

// refusalMarkers are phrases that indicate the model declined to produce a
// plan rather than failing to format one.
var refusalMarkers = []string{
	"i can't help",
	"i cannot help",
	"i can't assist",
	"i cannot assist",
	"i'm unable to",
	"i am unable to",
	"i won't be able to",
}

// looksLikeRefusal reports whether a non-JSON reply reads as a refusal.
func looksLikeRefusal(content string) bool {
	lower := strings.ToLower(content)
	for _, m := range refusalMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
