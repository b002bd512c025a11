package integration

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

// Registry is the process-lifetime catalog mapping source id → adapter
// factory. It is populated once during initialization; lookups afterwards
// are read-only.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	metadata  map[string]models.SourceMetadata
	order     []string
	deps      Deps
}

// NewRegistry creates a registry whose factories receive deps.
func NewRegistry(deps Deps) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		metadata:  make(map[string]models.SourceMetadata),
		deps:      deps,
	}
}

// Register validates and installs an adapter factory. Violations of the
// registration contract fail the process setup:
//   - the probe instance's Metadata().ID must match id
//   - declared search strategy method names must resolve on the adapter
//
// A missing description (used by the source-selection prompt) is a
// warning only.
func (r *Registry) Register(id string, factory Factory) error {
	if factory == nil {
		return fmt.Errorf("integration %q: nil factory", id)
	}

	probe := factory(r.deps)
	if probe == nil {
		return fmt.Errorf("integration %q: factory returned nil", id)
	}

	meta := probe.Metadata()
	if meta.ID != id {
		return fmt.Errorf("integration %q: metadata id %q does not match registration id", id, meta.ID)
	}
	if meta.Description == "" {
		slog.Warn("Integration has no description for the source-selection prompt", "source_id", id)
	}

	if len(meta.SearchStrategies) > 0 {
		sp, ok := probe.(StrategyProvider)
		if !ok {
			return fmt.Errorf("integration %q declares search strategies but implements no StrategyMethods", id)
		}
		methods := sp.StrategyMethods()
		for _, st := range meta.SearchStrategies {
			if _, found := methods[st.MethodName]; !found {
				return fmt.Errorf("integration %q: strategy method %q does not resolve", id, st.MethodName)
			}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("integration %q already registered", id)
	}
	r.factories[id] = factory
	r.metadata[id] = meta
	r.order = append(r.order, id)

	slog.Info("Integration registered",
		"source_id", id,
		"category", string(meta.Category),
		"requires_credential", meta.RequiresCredential)
	return nil
}

// MustRegister is Register that exits setup on violation.
func (r *Registry) MustRegister(id string, factory Factory) {
	if err := r.Register(id, factory); err != nil {
		panic(fmt.Sprintf("integration registration failed: %v", err))
	}
}

// Get builds a fresh short-lived adapter instance for one query.
func (r *Registry) Get(id string) (Integration, error) {
	r.mu.RLock()
	factory, ok := r.factories[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("integration %q not registered", id)
	}
	return factory(r.deps), nil
}

// Metadata returns the cached metadata for a source id.
func (r *Registry) Metadata(id string) (models.SourceMetadata, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.metadata[id]
	return m, ok
}

// List returns metadata for all registered sources in registration order.
func (r *Registry) List() []models.SourceMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.SourceMetadata, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.metadata[id])
	}
	return out
}

// IDs returns all registered source ids in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
