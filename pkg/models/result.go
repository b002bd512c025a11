package models

import "encoding/json"

// ResultItem is the uniform item shape across all sources. Adapters map
// source-native fields into it; Raw retains the native object read-only
// for later entity extraction.
type ResultItem struct {
	Title       string          `json:"title"`
	URL         string          `json:"url"`
	Date        string          `json:"date,omitempty"` // RFC3339 or empty
	Description string          `json:"description,omitempty"`
	Author      string          `json:"author,omitempty"`
	SourceID    string          `json:"source_id"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}

// QueryResult is the uniform return from every integration search.
// Failures are carried in Error with Success=false; upstream errors never
// propagate above the executor as Go errors.
type QueryResult struct {
	SourceID          string         `json:"source_id"`
	SourceDisplayName string         `json:"source_display_name"`
	Success           bool           `json:"success"`
	TotalUpstream     int            `json:"total_upstream"`
	Items             []ResultItem   `json:"items"`
	QueryParams       map[string]any `json:"query_params,omitempty"`
	Error             *SourceError   `json:"error,omitempty"`
	ResponseTimeMS    int64          `json:"response_time_ms"`
	FromCache         bool           `json:"from_cache"`
}

// FailedResult builds a uniform failure QueryResult for a source.
func FailedResult(meta SourceMetadata, err *SourceError) *QueryResult {
	return &QueryResult{
		SourceID:          meta.ID,
		SourceDisplayName: meta.DisplayName,
		Success:           false,
		Error:             err,
	}
}
