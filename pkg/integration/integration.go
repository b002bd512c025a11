// Package integration defines the four-operation adapter contract every
// upstream source implements, the process-lifetime registry that catalogs
// adapter factories, and the generic strategy-fallback search helper.
package integration

import (
	"context"

	"github.com/BrianMills2718/OSINT-sub001/pkg/config"
	"github.com/BrianMills2718/OSINT-sub001/pkg/llm"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

// Integration is the capability contract for one upstream source.
// Implementations encapsulate everything source-specific.
type Integration interface {
	// Metadata returns the source's immutable self-description. Pure:
	// called frequently by the registry, selector, and logger; must not
	// perform I/O.
	Metadata() models.SourceMetadata

	// IsRelevant is a cheap pre-filter (keyword or category heuristic).
	// Returning true does not commit to producing results; returning
	// false short-circuits the integration for this question. Adapters
	// that cannot pre-filter return true. Must complete in O(10ms).
	IsRelevant(question string) bool

	// GenerateQuery asks the LLM gateway for source-specific query
	// parameters under a strict JSON schema. A NotApplicable result
	// carries the model's reason and causes no search. The adapter
	// validates the model's output against source constraints and fails
	// fast on invalid output; there is no heuristic keyword fallback.
	GenerateQuery(ctx context.Context, question string) (*models.QueryParams, error)

	// ExecuteSearch performs the upstream request and maps native fields
	// into ResultItems. Upstream errors (HTTP, timeout, auth, rate limit)
	// are caught and returned as QueryResult{Success: false} with a
	// classified error, never as a panic.
	ExecuteSearch(ctx context.Context, params *models.QueryParams, limit int) *models.QueryResult
}

// Deps is everything a factory needs to build a fresh adapter instance.
type Deps struct {
	LLM    llm.Caller
	Config *config.IntegrationConfig
	HTTP   Doer
}

// Doer is the HTTP transport surface adapters use, satisfied by the
// shared retrying client in sources and by test stubs. body may be nil.
type Doer interface {
	Do(ctx context.Context, method, url string, headers map[string]string, body []byte) ([]byte, int, error)
}

// Factory produces a fresh short-lived adapter instance per query.
type Factory func(deps Deps) Integration

// StrategyFunc is one named search method tried by the fallback helper.
type StrategyFunc func(ctx context.Context, params *models.QueryParams, limit int) (*models.QueryResult, error)

// StrategyProvider is implemented by adapters that declare
// SearchStrategies in their metadata; each declared method_name must
// resolve to an entry of StrategyMethods.
type StrategyProvider interface {
	StrategyMethods() map[string]StrategyFunc
}
