package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/semaphore"

	"github.com/BrianMills2718/OSINT-sub001/pkg/config"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

// Prompt is the caller-supplied content for a structured call.
type Prompt struct {
	System string
	User   string
}

// Caller is the gateway surface consumed by the research engine, monitor,
// and adapters. Implementations return structured JSON validated against
// the call site's registered schema.
type Caller interface {
	CompleteJSON(ctx context.Context, site CallSite, purpose Purpose, prompt Prompt, out any) error
}

// Gateway is the single entry point for all model calls. It enforces the
// per-call timeout, the process-wide concurrency cap, provider-specific
// model quirks, and schema validation with exactly one repair attempt.
type Gateway struct {
	provider Provider
	cfg      *config.LLMConfig
	sem      *semaphore.Weighted
	logger   *slog.Logger
}

// NewGateway wraps a provider.
func NewGateway(cfg *config.LLMConfig, provider Provider) *Gateway {
	return &Gateway{
		provider: provider,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxParallel)),
		logger:   slog.Default().With("component", "llm-gateway", "provider", provider.Name()),
	}
}

// NewFromConfig builds the provider named by the configuration.
func NewFromConfig(cfg *config.LLMConfig) (*Gateway, error) {
	key := cfg.APIKey()
	if key == "" {
		return nil, models.NewSourceError(models.ErrKindConfigMissing, "",
			"LLM credential env %s is empty", cfg.APIKeyEnv)
	}
	switch cfg.Provider {
	case "openai":
		return NewGateway(cfg, NewOpenAIProvider(key, cfg.BaseURL)), nil
	case "anthropic":
		return NewGateway(cfg, NewAnthropicProvider(key, cfg.BaseURL)), nil
	default:
		return nil, models.NewSourceError(models.ErrKindConfigMissing, "",
			"unknown LLM provider %q", cfg.Provider)
	}
}

func (g *Gateway) modelFor(purpose Purpose) string {
	switch purpose {
	case PurposeRelevance:
		return g.cfg.ModelRelevance
	case PurposeSynthesis:
		return g.cfg.ModelSynthesis
	default:
		return g.cfg.ModelQueryGen
	}
}

// CompleteJSON performs one structured call: acquire a concurrency slot,
// dispatch with the per-call timeout, extract and validate the JSON reply
// against the site's schema, and decode into out.
//
// A reply that fails parsing or validation triggers exactly one repair
// attempt: the model is re-prompted with the validator's error text. A
// second failure surfaces llm_invalid_output. Rate-limit errors from the
// provider return immediately; callers translate them into integration
// failures instead of retrying in a loop.
func (g *Gateway) CompleteJSON(ctx context.Context, site CallSite, purpose Purpose, prompt Prompt, out any) error {
	schema, schemaText, err := SchemaFor(site)
	if err != nil {
		return err
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return models.ClassifyError("", err)
	}
	defer g.sem.Release(1)

	model := g.modelFor(purpose)
	system := prompt.System + "\n\nRespond with a single JSON object matching this JSON schema, and nothing else:\n" + schemaText

	raw, err := g.completeOnce(ctx, model, system, prompt.User)
	if err != nil {
		return err
	}

	validated, valErr := extractAndValidate(raw, schema)
	if valErr == nil {
		return json.Unmarshal(validated, out)
	}

	if looksLikeRefusal(raw) {
		return models.NewSourceError(models.ErrKindLLMRefusal, "",
			"model declined at call site %s: %s", site, firstLine(raw))
	}

	g.logger.Warn("Schema validation failed, attempting repair",
		"site", string(site), "model", model, "error", valErr)

	repairUser := fmt.Sprintf(
		"Your previous reply was rejected by the schema validator:\n%v\n\nPrevious reply:\n%s\n\nReturn a corrected JSON object matching the schema exactly.",
		valErr, Truncate(raw, 2000))
	raw, err = g.completeOnce(ctx, model, system, prompt.User+"\n\n"+repairUser)
	if err != nil {
		return err
	}

	validated, valErr = extractAndValidate(raw, schema)
	if valErr != nil {
		return models.NewSourceError(models.ErrKindLLMInvalidOutput, "",
			"call site %s: output failed schema validation after repair: %v", site, valErr)
	}
	return json.Unmarshal(validated, out)
}

func (g *Gateway) completeOnce(ctx context.Context, model, system, user string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.cfg.Timeout())
	defer cancel()

	raw, err := g.provider.Complete(callCtx, CompletionRequest{
		Model:       model,
		System:      system,
		User:        user,
		MaxTokens:   4096,
		Temperature: 0.2,
	})
	if err != nil {
		var se *models.SourceError
		if errors.As(err, &se) {
			return "", se
		}
		return "", models.ClassifyError("", err)
	}
	return raw, nil
}

// extractAndValidate pulls the JSON object out of a model reply (which may
// be fenced or surrounded by prose) and validates it against the schema.
func extractAndValidate(raw string, schema interface{ Validate(any) error }) ([]byte, error) {
	jsonText, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := json.Unmarshal([]byte(jsonText), &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return nil, err
	}
	return []byte(jsonText), nil
}

// ExtractJSON returns the first top-level JSON object in a reply,
// tolerating markdown fences and surrounding prose.
func ExtractJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if idx := strings.Index(s, "```"); idx >= 0 {
		rest := s[idx+3:]
		rest = strings.TrimPrefix(rest, "json")
		if end := strings.Index(rest, "```"); end >= 0 {
			s = rest[:end]
		} else {
			s = rest
		}
		s = strings.TrimSpace(s)
	}
	start := strings.IndexByte(s, '{')
	end := strings.LastIndexByte(s, '}')
	if start < 0 || end <= start {
		return "", fmt.Errorf("no JSON object found in reply")
	}
	return s[start : end+1], nil
}

// Truncate clips text for inclusion in repair prompts and logs.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return Truncate(s, 200)
}
