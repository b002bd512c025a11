package models

// SourceCategory classifies an upstream source for selection prompts.
type SourceCategory string

// Source categories.
const (
	CategoryGovContracts   SourceCategory = "government-contracts"
	CategoryGovMedia       SourceCategory = "government-media"
	CategoryGovJobs        SourceCategory = "government-jobs"
	CategoryClearedJobs    SourceCategory = "cleared-jobs"
	CategoryGovDocs        SourceCategory = "government-docs"
	CategoryGovRegulations SourceCategory = "government-regulations"
	CategorySocialForum    SourceCategory = "social-forum"
	CategorySocialMicro    SourceCategory = "social-microblog"
	CategorySocialChat     SourceCategory = "social-chat-archive"
	CategoryWebSearch      SourceCategory = "web-search"
	CategoryOther          SourceCategory = "other"
)

// Reliability grades a search strategy for the fallback helper.
type Reliability string

// Strategy reliability levels.
const (
	ReliabilityHigh   Reliability = "high"
	ReliabilityMedium Reliability = "medium"
	ReliabilityLow    Reliability = "low"
)

// SearchStrategy describes one method the generic fallback helper may try.
// MethodName must resolve to a strategy registered by the adapter;
// RequiredParam names the query parameter the strategy needs; strategies
// whose parameter is absent from the generated params are skipped.
type SearchStrategy struct {
	MethodName    string      `json:"method_name"`
	Reliability   Reliability `json:"reliability"`
	RequiredParam string      `json:"required_param"`
}

// SourceMetadata is the immutable self-description of an integration.
// Metadata() is called frequently by the registry, selector, and logger
// and must not perform I/O.
type SourceMetadata struct {
	ID                 string         `json:"id"`
	DisplayName        string         `json:"display_name"`
	Category           SourceCategory `json:"category"`
	RequiresCredential bool           `json:"requires_credential"`

	EstimatedLatencyMS   int     `json:"estimated_latency_ms,omitempty"`
	EstimatedCostPerCall float64 `json:"estimated_cost_per_call,omitempty"`
	DailyCallLimit       int     `json:"daily_call_limit,omitempty"`

	// Description is free text fed into the source-selection prompt.
	Description string `json:"description"`

	// SupportsBooleanOperators controls whether monitor keywords with
	// embedded AND/OR/NOT operators are passed through verbatim or
	// normalized to bare terms first.
	SupportsBooleanOperators bool `json:"supports_boolean_operators,omitempty"`

	SearchStrategies []SearchStrategy `json:"search_strategies,omitempty"`
}

// QueryParams is the structured output of an adapter's GenerateQuery call.
// When NotApplicable is true the adapter concluded (via the LLM) that this
// source cannot help; Reason explains why and no search is executed.
type QueryParams struct {
	SourceID      string         `json:"source_id"`
	NotApplicable bool           `json:"not_applicable"`
	Reason        string         `json:"reason,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
}

// StringField returns a string-typed field value, or "" when absent or
// not a string.
func (p *QueryParams) StringField(key string) string {
	if p == nil || p.Fields == nil {
		return ""
	}
	s, _ := p.Fields[key].(string)
	return s
}

// HasField reports whether a non-empty value exists for key.
func (p *QueryParams) HasField(key string) bool {
	if p == nil || p.Fields == nil {
		return false
	}
	v, ok := p.Fields[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	return true
}
