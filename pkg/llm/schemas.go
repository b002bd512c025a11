package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// CallSite identifies a structured-output call site. Schemas live here,
// keyed by call site, rather than inline at every caller.
type CallSite string

// Built-in call sites.
const (
	SiteDecompose        CallSite = "decompose"
	SiteSourceSelect     CallSite = "source_select"
	SiteRelevance        CallSite = "relevance_validation"
	SiteReformulate      CallSite = "reformulate"
	SiteFollowups        CallSite = "followups"
	SiteEntities         CallSite = "entity_extraction"
	SiteMonitorRelevance CallSite = "monitor_relevance"
	SiteSynthesis        CallSite = "synthesis"
)

// QueryGenSite returns the call-site key for a source adapter's query
// generation schema.
func QueryGenSite(sourceID string) CallSite {
	return CallSite("query_gen:" + sourceID)
}

type schemaRegistry struct {
	mu       sync.RWMutex
	raw      map[CallSite]string
	compiled map[CallSite]*jsonschema.Schema
}

var registry = &schemaRegistry{
	raw:      make(map[CallSite]string),
	compiled: make(map[CallSite]*jsonschema.Schema),
}

// RegisterSchema installs the JSON schema for a call site. Adapters call
// this from their constructors for their query-generation sites; built-in
// sites are registered at package init. Registering an invalid schema
// panics: that is a programming error caught at startup.
func RegisterSchema(site CallSite, schemaJSON string) {
	compiled, err := compileSchema(string(site), schemaJSON)
	if err != nil {
		panic(fmt.Sprintf("llm: invalid schema for call site %q: %v", site, err))
	}
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.raw[site] = schemaJSON
	registry.compiled[site] = compiled
}

// SchemaFor returns the compiled schema for a call site.
func SchemaFor(site CallSite) (*jsonschema.Schema, string, error) {
	registry.mu.RLock()
	defer registry.mu.RUnlock()
	s, ok := registry.compiled[site]
	if !ok {
		return nil, "", fmt.Errorf("no schema registered for call site %q", site)
	}
	return s, registry.raw[site], nil
}

func compileSchema(name, schemaJSON string) (*jsonschema.Schema, error) {
	var doc any
	if err := json.Unmarshal([]byte(schemaJSON), &doc); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	// The resource name is parsed as a URL; call-site names like
	// "query_gen:clearancejobs" contain a colon, which is invalid in the
	// first path segment of a relative URL.
	resource := strings.ReplaceAll(name, ":", "_") + ".json"
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	schema, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

func init() {
	RegisterSchema(SiteDecompose, `{
		"type": "object",
		"required": ["tasks"],
		"properties": {
			"tasks": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["query"],
					"properties": {
						"query": {"type": "string", "minLength": 3},
						"rationale": {"type": "string"}
					}
				}
			}
		}
	}`)

	RegisterSchema(SiteSourceSelect, `{
		"type": "object",
		"required": ["sources"],
		"properties": {
			"sources": {
				"type": "array",
				"minItems": 1,
				"items": {
					"type": "object",
					"required": ["source_id", "reason"],
					"properties": {
						"source_id": {"type": "string"},
						"reason": {"type": "string"}
					}
				}
			}
		}
	}`)

	RegisterSchema(SiteRelevance, `{
		"type": "object",
		"required": ["score", "reasoning"],
		"properties": {
			"score": {"type": "integer", "minimum": 0, "maximum": 10},
			"reasoning": {"type": "string"}
		}
	}`)

	RegisterSchema(SiteReformulate, `{
		"type": "object",
		"required": ["query"],
		"properties": {
			"query": {"type": "string", "minLength": 3},
			"rationale": {"type": "string"}
		}
	}`)

	RegisterSchema(SiteFollowups, `{
		"type": "object",
		"required": ["followups"],
		"properties": {
			"followups": {
				"type": "array",
				"maxItems": 3,
				"items": {
					"type": "object",
					"required": ["query", "rationale"],
					"properties": {
						"query": {"type": "string", "minLength": 3},
						"rationale": {"type": "string"}
					}
				}
			}
		}
	}`)

	RegisterSchema(SiteEntities, `{
		"type": "object",
		"required": ["entities"],
		"properties": {
			"entities": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["name"],
					"properties": {
						"name": {"type": "string", "minLength": 2},
						"type": {"type": "string"},
						"item_indexes": {"type": "array", "items": {"type": "integer"}}
					}
				}
			}
		}
	}`)

	RegisterSchema(SiteMonitorRelevance, `{
		"type": "object",
		"required": ["score"],
		"properties": {
			"score": {"type": "integer", "minimum": 0, "maximum": 10},
			"reasoning": {"type": "string"}
		}
	}`)

	RegisterSchema(SiteSynthesis, `{
		"type": "object",
		"required": ["executive_summary", "key_findings", "detailed_analysis"],
		"properties": {
			"executive_summary": {"type": "string"},
			"key_findings": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["finding"],
					"properties": {
						"finding": {"type": "string"},
						"citations": {
							"type": "array",
							"items": {
								"type": "object",
								"required": ["title"],
								"properties": {
									"title": {"type": "string"},
									"url": {"type": "string"}
								}
							}
						}
					}
				}
			},
			"detailed_analysis": {"type": "string"},
			"gaps": {"type": "array", "items": {"type": "string"}}
		}
	}`)
}
