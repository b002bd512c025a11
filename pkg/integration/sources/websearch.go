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
	websearchID      = "websearch"
	websearchBaseURL = "https://api.search.brave.com/res/v1/web/search"
)

func init() {
	llm.RegisterSchema(llm.QueryGenSite(websearchID), queryGenSchema(`
		"query": {"type": "string"},
		"freshness": {"type": "string", "enum": ["pd", "pw", "pm", "py"]},
		"site": {"type": "string"}
	`))
}

// websearchAdapter is the general-web fallback, backed by the Brave
// Search API. It catches news coverage, blogs, and documents the
// specialized sources miss.
type websearchAdapter struct {
	deps integration.Deps
}

func NewWebSearch(deps integration.Deps) integration.Integration {
	return &websearchAdapter{deps: deps}
}

func (a *websearchAdapter) Metadata() models.SourceMetadata {
	return models.SourceMetadata{
		ID:                 websearchID,
		DisplayName:        "Web Search",
		Category:           models.CategoryWebSearch,
		RequiresCredential: true,
		EstimatedLatencyMS: 1500,
		Description: "General web search over news sites, blogs, company pages, and public " +
			"documents. The catch-all when no specialized source covers the question.",
		SupportsBooleanOperators: true,
	}
}

// The general web is relevant to every question.
func (a *websearchAdapter) IsRelevant(question string) bool {
	return true
}

type websearchQuery struct {
	NotApplicable bool   `json:"not_applicable"`
	Reason        string `json:"reason"`
	Query         string `json:"query"`
	Freshness     string `json:"freshness"`
	Site          string `json:"site"`
}

func (a *websearchAdapter) GenerateQuery(ctx context.Context, question string) (*models.QueryParams, error) {
	var q websearchQuery
	prompt := llm.Prompt{
		System: queryGenSystem("general web search",
			"Produce a focused search query (quoted phrases and site: operators are "+
				"supported), optionally a freshness window (pd=day, pw=week, pm=month, "+
				"py=year) and a site restriction domain."),
		User: question,
	}
	if err := a.deps.LLM.CompleteJSON(ctx, llm.QueryGenSite(websearchID), llm.PurposeQueryGen, prompt, &q); err != nil {
		return nil, err
	}
	if q.NotApplicable {
		return &models.QueryParams{SourceID: websearchID, NotApplicable: true, Reason: q.Reason}, nil
	}
	if q.Query == "" {
		return nil, invalidOutput(websearchID, fmt.Errorf("empty query"))
	}
	return &models.QueryParams{SourceID: websearchID, Fields: map[string]any{
		"query":     q.Query,
		"freshness": q.Freshness,
		"site":      q.Site,
	}}, nil
}

type websearchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
			Age         string `json:"page_age"`
			Profile     struct {
				Name string `json:"name"`
			} `json:"profile"`
		} `json:"results"`
	} `json:"web"`
}

func (a *websearchAdapter) ExecuteSearch(ctx context.Context, params *models.QueryParams, limit int) *models.QueryResult {
	meta := a.Metadata()
	start := time.Now()

	base := websearchBaseURL
	if a.deps.Config != nil && a.deps.Config.BaseURL != "" {
		base = a.deps.Config.BaseURL
	}

	q := params.StringField("query")
	if site := params.StringField("site"); site != "" {
		q += " site:" + site
	}

	v := url.Values{}
	v.Set("q", q)
	v.Set("count", fmt.Sprintf("%d", limit))
	if fr := params.StringField("freshness"); fr != "" {
		v.Set("freshness", fr)
	}

	headers := map[string]string{
		"X-Subscription-Token": a.deps.Config.APIKey(),
		"Accept":               "application/json",
	}

	body, status, err := a.deps.HTTP.Do(ctx, "GET", base+"?"+v.Encode(), headers, nil)
	if se := classifyResponse(websearchID, status, err); se != nil {
		return models.FailedResult(meta, se)
	}

	var resp websearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.FailedResult(meta, models.NewSourceError(
			models.ErrKindParseError, websearchID, "decoding response: %v", err))
	}

	items := make([]models.ResultItem, 0, len(resp.Web.Results))
	for _, r := range resp.Web.Results {
		raw, _ := json.Marshal(r)
		items = append(items, models.ResultItem{
			Title:       r.Title,
			URL:         r.URL,
			Date:        toRFC3339(r.Age),
			Description: llm.Truncate(r.Description, 500),
			Author:      r.Profile.Name,
			SourceID:    websearchID,
			Raw:         raw,
		})
	}

	return &models.QueryResult{
		SourceID:          websearchID,
		SourceDisplayName: meta.DisplayName,
		Success:           true,
		TotalUpstream:     len(items),
		Items:             clampItems(items, limit),
		QueryParams:       map[string]any{"q": q},
		ResponseTimeMS:    time.Since(start).Milliseconds(),
	}
}
