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
	clearancejobsID      = "clearancejobs"
	clearancejobsBaseURL = "https://api.clearancejobs.com/api/v1/jobs/search"
)

func init() {
	llm.RegisterSchema(llm.QueryGenSite(clearancejobsID), queryGenSchema(`
		"keywords": {"type": "string"},
		"clearance_level": {
			"type": "string",
			"enum": ["confidential", "secret", "top secret", "ts/sci", "ts/sci with polygraph"]
		},
		"location": {"type": "string"}
	`))
}

// clearancejobsAdapter searches security-cleared job postings. Cleared
// hiring is one of the few public signals of classified program scale
// and location.
type clearancejobsAdapter struct {
	deps integration.Deps
}

func NewClearanceJobs(deps integration.Deps) integration.Integration {
	return &clearancejobsAdapter{deps: deps}
}

func (a *clearancejobsAdapter) Metadata() models.SourceMetadata {
	return models.SourceMetadata{
		ID:                 clearancejobsID,
		DisplayName:        "ClearanceJobs Postings",
		Category:           models.CategoryClearedJobs,
		RequiresCredential: true,
		EstimatedLatencyMS: 3000,
		Description: "Job postings requiring a US security clearance, searchable by keyword, " +
			"clearance level, and location. Indicates contractor staffing for classified work " +
			"by company, skill, and site.",
	}
}

func (a *clearancejobsAdapter) IsRelevant(question string) bool {
	return containsAny(question,
		"clearance", "cleared", "ts/sci", "polygraph", "sci", "classified",
		"defense contractor", "intelligence", "hiring", "job", "staffing")
}

type clearancejobsQuery struct {
	NotApplicable  bool   `json:"not_applicable"`
	Reason         string `json:"reason"`
	Keywords       string `json:"keywords"`
	ClearanceLevel string `json:"clearance_level"`
	Location       string `json:"location"`
}

func (a *clearancejobsAdapter) GenerateQuery(ctx context.Context, question string) (*models.QueryParams, error) {
	var q clearancejobsQuery
	prompt := llm.Prompt{
		System: queryGenSystem("ClearanceJobs cleared-position search",
			"Produce a keyword phrase for the role, technology, or employer, and optionally "+
				"a clearance level and a location (city or state)."),
		User: question,
	}
	if err := a.deps.LLM.CompleteJSON(ctx, llm.QueryGenSite(clearancejobsID), llm.PurposeQueryGen, prompt, &q); err != nil {
		return nil, err
	}
	if q.NotApplicable {
		return &models.QueryParams{SourceID: clearancejobsID, NotApplicable: true, Reason: q.Reason}, nil
	}
	if q.Keywords == "" {
		return nil, invalidOutput(clearancejobsID, fmt.Errorf("empty keywords"))
	}
	return &models.QueryParams{SourceID: clearancejobsID, Fields: map[string]any{
		"keywords":        q.Keywords,
		"clearance_level": q.ClearanceLevel,
		"location":        q.Location,
	}}, nil
}

type clearancejobsResponse struct {
	Total int `json:"total"`
	Jobs  []struct {
		Title          string `json:"title"`
		URL            string `json:"url"`
		PostedAt       string `json:"posted_at"`
		Company        string `json:"company"`
		Summary        string `json:"summary"`
		ClearanceLevel string `json:"clearance_level"`
		Location       string `json:"location"`
	} `json:"jobs"`
}

func (a *clearancejobsAdapter) ExecuteSearch(ctx context.Context, params *models.QueryParams, limit int) *models.QueryResult {
	meta := a.Metadata()
	start := time.Now()

	base := clearancejobsBaseURL
	if a.deps.Config != nil && a.deps.Config.BaseURL != "" {
		base = a.deps.Config.BaseURL
	}

	v := url.Values{}
	v.Set("q", params.StringField("keywords"))
	if lvl := params.StringField("clearance_level"); lvl != "" {
		v.Set("clearance", lvl)
	}
	if loc := params.StringField("location"); loc != "" {
		v.Set("location", loc)
	}
	v.Set("limit", fmt.Sprintf("%d", limit))

	headers := map[string]string{
		"Authorization": "Bearer " + a.deps.Config.APIKey(),
	}

	body, status, err := a.deps.HTTP.Do(ctx, "GET", base+"?"+v.Encode(), headers, nil)
	if se := classifyResponse(clearancejobsID, status, err); se != nil {
		return models.FailedResult(meta, se)
	}

	var resp clearancejobsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.FailedResult(meta, models.NewSourceError(
			models.ErrKindParseError, clearancejobsID, "decoding response: %v", err))
	}

	items := make([]models.ResultItem, 0, len(resp.Jobs))
	for _, j := range resp.Jobs {
		raw, _ := json.Marshal(j)
		desc := j.Summary
		if j.ClearanceLevel != "" {
			desc = fmt.Sprintf("[%s] %s", j.ClearanceLevel, desc)
		}
		items = append(items, models.ResultItem{
			Title:       j.Title,
			URL:         j.URL,
			Date:        toRFC3339(j.PostedAt),
			Description: llm.Truncate(desc, 500),
			Author:      j.Company,
			SourceID:    clearancejobsID,
			Raw:         raw,
		})
	}

	return &models.QueryResult{
		SourceID:          clearancejobsID,
		SourceDisplayName: meta.DisplayName,
		Success:           true,
		TotalUpstream:     resp.Total,
		Items:             clampItems(items, limit),
		QueryParams:       map[string]any{"q": params.StringField("keywords")},
		ResponseTimeMS:    time.Since(start).Milliseconds(),
	}
}
