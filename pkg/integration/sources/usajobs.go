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
	usajobsID      = "usajobs"
	usajobsBaseURL = "https://data.usajobs.gov/api/search"
)

func init() {
	llm.RegisterSchema(llm.QueryGenSite(usajobsID), queryGenSchema(`
		"keyword": {"type": "string"},
		"location": {"type": "string"},
		"organization": {"type": "string"}
	`))
}

// usajobsAdapter searches federal job postings. Postings reveal which
// agencies are hiring for which skills, a useful signal for program
// activity.
type usajobsAdapter struct {
	deps integration.Deps
}

func NewUSAJobs(deps integration.Deps) integration.Integration {
	return &usajobsAdapter{deps: deps}
}

func (a *usajobsAdapter) Metadata() models.SourceMetadata {
	return models.SourceMetadata{
		ID:                 usajobsID,
		DisplayName:        "USAJOBS Federal Postings",
		Category:           models.CategoryGovJobs,
		RequiresCredential: true,
		EstimatedLatencyMS: 2500,
		Description: "Open federal government job postings searchable by keyword, duty " +
			"location, and hiring organization. Indicates which agencies are staffing " +
			"which skills and programs.",
	}
}

func (a *usajobsAdapter) IsRelevant(question string) bool {
	return containsAny(question,
		"job", "hiring", "position", "vacancy", "recruit", "staffing",
		"workforce", "personnel", "employment", "analyst", "engineer", "clearance")
}

type usajobsQuery struct {
	NotApplicable bool   `json:"not_applicable"`
	Reason        string `json:"reason"`
	Keyword       string `json:"keyword"`
	Location      string `json:"location"`
	Organization  string `json:"organization"`
}

func (a *usajobsAdapter) GenerateQuery(ctx context.Context, question string) (*models.QueryParams, error) {
	var q usajobsQuery
	prompt := llm.Prompt{
		System: queryGenSystem("USAJOBS federal job search",
			"Produce a keyword phrase describing the role or skill, and optionally a duty "+
				"location (city or state) and a hiring organization name."),
		User: question,
	}
	if err := a.deps.LLM.CompleteJSON(ctx, llm.QueryGenSite(usajobsID), llm.PurposeQueryGen, prompt, &q); err != nil {
		return nil, err
	}
	if q.NotApplicable {
		return &models.QueryParams{SourceID: usajobsID, NotApplicable: true, Reason: q.Reason}, nil
	}
	if q.Keyword == "" {
		return nil, invalidOutput(usajobsID, fmt.Errorf("empty keyword"))
	}
	return &models.QueryParams{SourceID: usajobsID, Fields: map[string]any{
		"keyword":      q.Keyword,
		"location":     q.Location,
		"organization": q.Organization,
	}}, nil
}

type usajobsResponse struct {
	SearchResult struct {
		SearchResultCountAll int `json:"SearchResultCountAll"`
		SearchResultItems    []struct {
			MatchedObjectDescriptor struct {
				PositionTitle    string `json:"PositionTitle"`
				PositionURI      string `json:"PositionURI"`
				PublicationStart string `json:"PublicationStartDate"`
				OrganizationName string `json:"OrganizationName"`
				UserArea         struct {
					Details struct {
						JobSummary string `json:"JobSummary"`
					} `json:"Details"`
				} `json:"UserArea"`
			} `json:"MatchedObjectDescriptor"`
		} `json:"SearchResultItems"`
	} `json:"SearchResult"`
}

func (a *usajobsAdapter) ExecuteSearch(ctx context.Context, params *models.QueryParams, limit int) *models.QueryResult {
	meta := a.Metadata()
	start := time.Now()

	base := usajobsBaseURL
	if a.deps.Config != nil && a.deps.Config.BaseURL != "" {
		base = a.deps.Config.BaseURL
	}

	v := url.Values{}
	v.Set("Keyword", params.StringField("keyword"))
	if loc := params.StringField("location"); loc != "" {
		v.Set("LocationName", loc)
	}
	if org := params.StringField("organization"); org != "" {
		v.Set("Organization", org)
	}
	v.Set("ResultsPerPage", fmt.Sprintf("%d", limit))

	// USAJOBS authenticates with a header pair, not a query parameter.
	headers := map[string]string{
		"Authorization-Key": a.deps.Config.APIKey(),
		"User-Agent":        "osint-research-platform/1.0",
	}

	body, status, err := a.deps.HTTP.Do(ctx, "GET", base+"?"+v.Encode(), headers, nil)
	if se := classifyResponse(usajobsID, status, err); se != nil {
		return models.FailedResult(meta, se)
	}

	var resp usajobsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.FailedResult(meta, models.NewSourceError(
			models.ErrKindParseError, usajobsID, "decoding response: %v", err))
	}

	items := make([]models.ResultItem, 0, len(resp.SearchResult.SearchResultItems))
	for _, it := range resp.SearchResult.SearchResultItems {
		d := it.MatchedObjectDescriptor
		raw, _ := json.Marshal(d)
		items = append(items, models.ResultItem{
			Title:       d.PositionTitle,
			URL:         d.PositionURI,
			Date:        toRFC3339(d.PublicationStart),
			Description: llm.Truncate(d.UserArea.Details.JobSummary, 500),
			Author:      d.OrganizationName,
			SourceID:    usajobsID,
			Raw:         raw,
		})
	}

	return &models.QueryResult{
		SourceID:          usajobsID,
		SourceDisplayName: meta.DisplayName,
		Success:           true,
		TotalUpstream:     resp.SearchResult.SearchResultCountAll,
		Items:             clampItems(items, limit),
		QueryParams:       map[string]any{"Keyword": params.StringField("keyword")},
		ResponseTimeMS:    time.Since(start).Milliseconds(),
	}
}
