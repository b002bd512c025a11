package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

// OpenAIProvider backs the gateway with the OpenAI chat completions API
// (or any OpenAI-compatible endpoint via base_url).
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider creates a provider. baseURL may be empty for the
// default endpoint.
func NewOpenAIProvider(apiKey, baseURL string) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{client: openai.NewClient(opts...)}
}

// Name identifies the provider in logs.
func (p *OpenAIProvider) Name() string { return "openai" }

// Complete performs one chat completion and returns the reply text.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	req = applyModelQuirks(req)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(req.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", models.NewSourceError(models.ErrKindParseError, "", "openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		kind := models.ClassifyHTTPStatus(apiErr.StatusCode)
		if apiErr.StatusCode == 429 {
			kind = models.ErrKindRateLimited
		}
		return models.NewSourceError(kind, "", "openai: %v", apiErr)
	}
	return fmt.Errorf("openai request failed: %w", err)
}
