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
	dvidsID      = "dvidshub"
	dvidsBaseURL = "https://api.dvidshub.net/search"
)

func init() {
	llm.RegisterSchema(llm.QueryGenSite(dvidsID), queryGenSchema(`
		"query": {"type": "string"},
		"unit": {"type": "string"},
		"branch": {
			"type": "string",
			"enum": ["Army", "Navy", "Air Force", "Marines", "Space Force", "Coast Guard", "Joint"]
		}
	`))
}

// dvidsAdapter searches DVIDS, the US military's public-affairs media
// hub. Unit press releases and imagery captions often name exercises,
// deployments, and equipment before other outlets do.
type dvidsAdapter struct {
	deps integration.Deps
}

func NewDVIDS(deps integration.Deps) integration.Integration {
	return &dvidsAdapter{deps: deps}
}

func (a *dvidsAdapter) Metadata() models.SourceMetadata {
	return models.SourceMetadata{
		ID:                 dvidsID,
		DisplayName:        "DVIDS Military Media",
		Category:           models.CategoryGovMedia,
		RequiresCredential: true,
		EstimatedLatencyMS: 2500,
		Description: "Official US military news articles, press releases, imagery, and video " +
			"from unit public-affairs offices, searchable by keyword, unit, and service " +
			"branch. Primary-source coverage of exercises, deployments, and programs.",
	}
}

func (a *dvidsAdapter) IsRelevant(question string) bool {
	return containsAny(question,
		"military", "army", "navy", "air force", "marines", "space force",
		"exercise", "deployment", "unit", "base", "squadron", "brigade",
		"weapon", "aircraft", "ship", "pentagon", "defense")
}

type dvidsQuery struct {
	NotApplicable bool   `json:"not_applicable"`
	Reason        string `json:"reason"`
	Query         string `json:"query"`
	Unit          string `json:"unit"`
	Branch        string `json:"branch"`
}

func (a *dvidsAdapter) GenerateQuery(ctx context.Context, question string) (*models.QueryParams, error) {
	var q dvidsQuery
	prompt := llm.Prompt{
		System: queryGenSystem("DVIDS military media search",
			"Produce a keyword query, optionally a unit name and a service branch."),
		User: question,
	}
	if err := a.deps.LLM.CompleteJSON(ctx, llm.QueryGenSite(dvidsID), llm.PurposeQueryGen, prompt, &q); err != nil {
		return nil, err
	}
	if q.NotApplicable {
		return &models.QueryParams{SourceID: dvidsID, NotApplicable: true, Reason: q.Reason}, nil
	}
	if q.Query == "" {
		return nil, invalidOutput(dvidsID, fmt.Errorf("empty query"))
	}
	return &models.QueryParams{SourceID: dvidsID, Fields: map[string]any{
		"query":  q.Query,
		"unit":   q.Unit,
		"branch": q.Branch,
	}}, nil
}

type dvidsResponse struct {
	PageInfo struct {
		TotalResults int `json:"total_results"`
	} `json:"page_info"`
	Results []struct {
		Title           string `json:"title"`
		URL             string `json:"url"`
		DatePublished   string `json:"date_published"`
		UnitName        string `json:"unit_name"`
		ShortDescription string `json:"short_description"`
		Type            string `json:"type"`
	} `json:"results"`
}

func (a *dvidsAdapter) ExecuteSearch(ctx context.Context, params *models.QueryParams, limit int) *models.QueryResult {
	meta := a.Metadata()
	start := time.Now()

	base := dvidsBaseURL
	if a.deps.Config != nil && a.deps.Config.BaseURL != "" {
		base = a.deps.Config.BaseURL
	}

	v := url.Values{}
	v.Set("api_key", a.deps.Config.APIKey())
	v.Set("q", params.StringField("query"))
	if unit := params.StringField("unit"); unit != "" {
		v.Set("unit", unit)
	}
	if branch := params.StringField("branch"); branch != "" {
		v.Set("branch", branch)
	}
	v.Set("max_results", fmt.Sprintf("%d", limit))

	body, status, err := a.deps.HTTP.Do(ctx, "GET", base+"?"+v.Encode(), nil, nil)
	if se := classifyResponse(dvidsID, status, err); se != nil {
		return models.FailedResult(meta, se)
	}

	var resp dvidsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.FailedResult(meta, models.NewSourceError(
			models.ErrKindParseError, dvidsID, "decoding response: %v", err))
	}

	items := make([]models.ResultItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		raw, _ := json.Marshal(r)
		items = append(items, models.ResultItem{
			Title:       r.Title,
			URL:         r.URL,
			Date:        toRFC3339(r.DatePublished),
			Description: llm.Truncate(r.ShortDescription, 500),
			Author:      r.UnitName,
			SourceID:    dvidsID,
			Raw:         raw,
		})
	}

	return &models.QueryResult{
		SourceID:          dvidsID,
		SourceDisplayName: meta.DisplayName,
		Success:           true,
		TotalUpstream:     resp.PageInfo.TotalResults,
		Items:             clampItems(items, limit),
		QueryParams:       map[string]any{"q": params.StringField("query")},
		ResponseTimeMS:    time.Since(start).Milliseconds(),
	}
}
