package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/BrianMills2718/OSINT-sub001/pkg/integration"
	"github.com/BrianMills2718/OSINT-sub001/pkg/llm"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

const (
	regulationsID      = "regulations"
	regulationsBaseURL = "https://api.regulations.gov/v4/documents"
)

func init() {
	llm.RegisterSchema(llm.QueryGenSite(regulationsID), queryGenSchema(`
		"search_term": {"type": "string"},
		"agency_id": {"type": "string"},
		"document_type": {
			"type": "string",
			"enum": ["Notice", "Rule", "Proposed Rule", "Supporting & Related Material", "Other"]
		}
	`))
}

// regulationsAdapter searches rulemaking dockets on Regulations.gov.
type regulationsAdapter struct {
	deps integration.Deps
}

func NewRegulations(deps integration.Deps) integration.Integration {
	return &regulationsAdapter{deps: deps}
}

func (a *regulationsAdapter) Metadata() models.SourceMetadata {
	return models.SourceMetadata{
		ID:                 regulationsID,
		DisplayName:        "Regulations.gov Dockets",
		Category:           models.CategoryGovRegulations,
		RequiresCredential: true,
		EstimatedLatencyMS: 3000,
		Description: "Federal rulemaking documents: proposed and final rules, notices, and " +
			"public comments, filterable by agency and document type. Useful for tracking " +
			"regulatory activity around a technology or industry.",
	}
}

func (a *regulationsAdapter) IsRelevant(question string) bool {
	return containsAny(question,
		"regulation", "rulemaking", "rule", "docket", "comment period",
		"notice", "federal register", "compliance", "agency", "export control", "itar", "ear")
}

type regulationsQuery struct {
	NotApplicable bool   `json:"not_applicable"`
	Reason        string `json:"reason"`
	SearchTerm    string `json:"search_term"`
	AgencyID      string `json:"agency_id"`
	DocumentType  string `json:"document_type"`
}

func (a *regulationsAdapter) GenerateQuery(ctx context.Context, question string) (*models.QueryParams, error) {
	var q regulationsQuery
	prompt := llm.Prompt{
		System: queryGenSystem("Regulations.gov docket search",
			"Produce a search term, optionally an agency acronym (e.g. DOD, BIS, DDTC, FAA) "+
				"and a document type."),
		User: question,
	}
	if err := a.deps.LLM.CompleteJSON(ctx, llm.QueryGenSite(regulationsID), llm.PurposeQueryGen, prompt, &q); err != nil {
		return nil, err
	}
	if q.NotApplicable {
		return &models.QueryParams{SourceID: regulationsID, NotApplicable: true, Reason: q.Reason}, nil
	}
	if q.SearchTerm == "" {
		return nil, invalidOutput(regulationsID, fmt.Errorf("empty search_term"))
	}
	return &models.QueryParams{SourceID: regulationsID, Fields: map[string]any{
		"search_term":   q.SearchTerm,
		"agency_id":     q.AgencyID,
		"document_type": q.DocumentType,
	}}, nil
}

type regulationsResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Title        string `json:"title"`
			DocumentType string `json:"documentType"`
			AgencyID     string `json:"agencyId"`
			PostedDate   string `json:"postedDate"`
			Summary      string `json:"summary"`
		} `json:"attributes"`
	} `json:"data"`
	Meta struct {
		TotalElements int `json:"totalElements"`
	} `json:"meta"`
}

func (a *regulationsAdapter) ExecuteSearch(ctx context.Context, params *models.QueryParams, limit int) *models.QueryResult {
	meta := a.Metadata()
	start := time.Now()

	base := regulationsBaseURL
	if a.deps.Config != nil && a.deps.Config.BaseURL != "" {
		base = a.deps.Config.BaseURL
	}

	v := url.Values{}
	v.Set("filter[searchTerm]", params.StringField("search_term"))
	if ag := params.StringField("agency_id"); ag != "" {
		v.Set("filter[agencyId]", ag)
	}
	if dt := params.StringField("document_type"); dt != "" {
		v.Set("filter[documentType]", dt)
	}
	v.Set("page[size]", fmt.Sprintf("%d", limit))
	v.Set("sort", "-postedDate")

	headers := map[string]string{"X-Api-Key": a.deps.Config.APIKey()}

	body, status, err := a.deps.HTTP.Do(ctx, "GET", base+"?"+v.Encode(), headers, nil)
	if se := classifyResponse(regulationsID, status, err); se != nil {
		return models.FailedResult(meta, se)
	}

	var resp regulationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.FailedResult(meta, models.NewSourceError(
			models.ErrKindParseError, regulationsID, "decoding response: %v", err))
	}

	items := make([]models.ResultItem, 0, len(resp.Data))
	for _, d := range resp.Data {
		raw, _ := json.Marshal(d)
		items = append(items, models.ResultItem{
			Title:       d.Attributes.Title,
			URL:         "https://www.regulations.gov/document/" + d.ID,
			Date:        toRFC3339(d.Attributes.PostedDate),
			Description: llm.Truncate(d.Attributes.Summary, 500),
			Author:      d.Attributes.AgencyID,
			SourceID:    regulationsID,
			Raw:         raw,
		})
	}

	return &models.QueryResult{
		SourceID:          regulationsID,
		SourceDisplayName: meta.DisplayName,
		Success:           true,
		TotalUpstream:     resp.Meta.TotalElements,
		Items:             clampItems(items, limit),
		QueryParams:       map[string]any{"filter[searchTerm]": params.StringField("search_term")},
		ResponseTimeMS:    time.Since(start).Milliseconds(),
	}
}
