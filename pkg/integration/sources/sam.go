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
	samID          = "sam"
	samBaseURL     = "https://api.sam.gov/opportunities/v2/search"
	samMaxLookback = 365 * 24 * time.Hour
)

func init() {
	llm.RegisterSchema(llm.QueryGenSite(samID), queryGenSchema(`
		"keywords": {"type": "string"},
		"naics_code": {"type": "string", "pattern": "^[0-9]{6}$"},
		"posted_from": {"type": "string"},
		"posted_to": {"type": "string"}
	`))
}

// samAdapter searches SAM.gov federal contract opportunities.
type samAdapter struct {
	deps integration.Deps
}

// NewSAM builds a SAM.gov adapter instance.
func NewSAM(deps integration.Deps) integration.Integration {
	return &samAdapter{deps: deps}
}

func (a *samAdapter) Metadata() models.SourceMetadata {
	return models.SourceMetadata{
		ID:                 samID,
		DisplayName:        "SAM.gov Contract Opportunities",
		Category:           models.CategoryGovContracts,
		RequiresCredential: true,
		EstimatedLatencyMS: 2000,
		DailyCallLimit:     1000,
		Description: "Federal contract opportunities: solicitations, presolicitations, " +
			"award notices, and sources-sought from all US federal agencies. Searchable by " +
			"keyword, NAICS code, and posted-date window (up to one year back).",
		SupportsBooleanOperators: true,
		SearchStrategies: []models.SearchStrategy{
			{MethodName: "keyword_search", Reliability: models.ReliabilityHigh, RequiredParam: "keywords"},
			{MethodName: "naics_search", Reliability: models.ReliabilityMedium, RequiredParam: "naics_code"},
		},
	}
}

func (a *samAdapter) IsRelevant(question string) bool {
	return containsAny(question,
		"contract", "solicitation", "procurement", "rfp", "rfi", "award",
		"vendor", "sam.gov", "naics", "federal", "agency", "defense", "pentagon")
}

type samQuery struct {
	NotApplicable bool   `json:"not_applicable"`
	Reason        string `json:"reason"`
	Keywords      string `json:"keywords"`
	NAICSCode     string `json:"naics_code"`
	PostedFrom    string `json:"posted_from"`
	PostedTo      string `json:"posted_to"`
}

func (a *samAdapter) GenerateQuery(ctx context.Context, question string) (*models.QueryParams, error) {
	var q samQuery
	prompt := llm.Prompt{
		System: queryGenSystem("SAM.gov contract opportunities",
			"Produce keywords (boolean AND/OR and quoted phrases are supported), an optional "+
				"6-digit NAICS code, and an optional posted_from/posted_to date window as "+
				"YYYY-MM-DD. The window may reach back at most one year."),
		User: question,
	}
	if err := a.deps.LLM.CompleteJSON(ctx, llm.QueryGenSite(samID), llm.PurposeQueryGen, prompt, &q); err != nil {
		return nil, err
	}
	if q.NotApplicable {
		return &models.QueryParams{SourceID: samID, NotApplicable: true, Reason: q.Reason}, nil
	}
	if q.Keywords == "" && q.NAICSCode == "" {
		return nil, invalidOutput(samID, fmt.Errorf("neither keywords nor naics_code set"))
	}
	if err := validDate(q.PostedFrom); err != nil {
		return nil, invalidOutput(samID, err)
	}
	if err := validDate(q.PostedTo); err != nil {
		return nil, invalidOutput(samID, err)
	}
	if err := withinLookback(q.PostedFrom, samMaxLookback); err != nil {
		return nil, invalidOutput(samID, err)
	}
	fields := map[string]any{}
	if q.Keywords != "" {
		fields["keywords"] = q.Keywords
	}
	if q.NAICSCode != "" {
		fields["naics_code"] = q.NAICSCode
	}
	if q.PostedFrom != "" {
		fields["posted_from"] = q.PostedFrom
	}
	if q.PostedTo != "" {
		fields["posted_to"] = q.PostedTo
	}
	return &models.QueryParams{SourceID: samID, Fields: fields}, nil
}

func (a *samAdapter) ExecuteSearch(ctx context.Context, params *models.QueryParams, limit int) *models.QueryResult {
	return integration.ExecuteWithFallback(ctx, a, params, limit)
}

func (a *samAdapter) StrategyMethods() map[string]integration.StrategyFunc {
	return map[string]integration.StrategyFunc{
		"keyword_search": func(ctx context.Context, p *models.QueryParams, limit int) (*models.QueryResult, error) {
			return a.search(ctx, p, limit, "title", p.StringField("keywords"))
		},
		"naics_search": func(ctx context.Context, p *models.QueryParams, limit int) (*models.QueryResult, error) {
			return a.search(ctx, p, limit, "ncode", p.StringField("naics_code"))
		},
	}
}

type samResponse struct {
	TotalRecords      int `json:"totalRecords"`
	OpportunitiesData []struct {
		Title              string `json:"title"`
		SolicitationNumber string `json:"solicitationNumber"`
		PostedDate         string `json:"postedDate"`
		UILink             string `json:"uiLink"`
		Department         string `json:"fullParentPathName"`
		Type               string `json:"type"`
		Description        string `json:"description"`
	} `json:"opportunitiesData"`
}

func (a *samAdapter) search(ctx context.Context, params *models.QueryParams, limit int, queryKey, queryVal string) (*models.QueryResult, error) {
	meta := a.Metadata()
	start := time.Now()

	base := samBaseURL
	if a.deps.Config != nil && a.deps.Config.BaseURL != "" {
		base = a.deps.Config.BaseURL
	}

	// SAM requires a posted-date window; default to the trailing 90 days.
	from := params.StringField("posted_from")
	to := params.StringField("posted_to")
	if from == "" {
		from = time.Now().AddDate(0, 0, -90).Format("2006-01-02")
	}
	if to == "" {
		to = time.Now().Format("2006-01-02")
	}

	v := url.Values{}
	v.Set("api_key", a.deps.Config.APIKey())
	v.Set(queryKey, queryVal)
	v.Set("postedFrom", samDate(from))
	v.Set("postedTo", samDate(to))
	v.Set("limit", fmt.Sprintf("%d", limit))

	body, status, err := a.deps.HTTP.Do(ctx, "GET", base+"?"+v.Encode(), nil, nil)
	if se := classifyResponse(samID, status, err); se != nil {
		return models.FailedResult(meta, se), nil
	}

	var resp samResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.FailedResult(meta, models.NewSourceError(
			models.ErrKindParseError, samID, "decoding response: %v", err)), nil
	}

	items := make([]models.ResultItem, 0, len(resp.OpportunitiesData))
	for _, opp := range resp.OpportunitiesData {
		raw, _ := json.Marshal(opp)
		items = append(items, models.ResultItem{
			Title:       opp.Title,
			URL:         opp.UILink,
			Date:        toRFC3339(opp.PostedDate),
			Description: llm.Truncate(opp.Description, 500),
			Author:      opp.Department,
			SourceID:    samID,
			Raw:         raw,
		})
	}

	return &models.QueryResult{
		SourceID:          samID,
		SourceDisplayName: meta.DisplayName,
		Success:           true,
		TotalUpstream:     resp.TotalRecords,
		Items:             clampItems(items, limit),
		QueryParams:       map[string]any{queryKey: queryVal, "postedFrom": from, "postedTo": to},
		ResponseTimeMS:    time.Since(start).Milliseconds(),
	}, nil
}

// samDate converts YYYY-MM-DD to SAM's MM/dd/yyyy query format.
func samDate(s string) string {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return s
	}
	return t.Format("01/02/2006")
}
