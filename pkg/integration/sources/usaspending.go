package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BrianMills2718/OSINT-sub001/pkg/integration"
	"github.com/BrianMills2718/OSINT-sub001/pkg/llm"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

const (
	usaspendingID      = "usaspending"
	usaspendingBaseURL = "https://api.usaspending.gov/api/v2/search/spending_by_award/"
)

func init() {
	llm.RegisterSchema(llm.QueryGenSite(usaspendingID), queryGenSchema(`
		"keywords": {"type": "array", "items": {"type": "string"}, "minItems": 1, "maxItems": 5},
		"start_date": {"type": "string"},
		"end_date": {"type": "string"},
		"award_types": {
			"type": "array",
			"items": {"type": "string", "enum": ["A", "B", "C", "D"]}
		}
	`))
}

// usaspendingAdapter searches awarded federal spending records. The API
// is open, no credential required.
type usaspendingAdapter struct {
	deps integration.Deps
}

// NewUSASpending builds a USAspending adapter instance.
func NewUSASpending(deps integration.Deps) integration.Integration {
	return &usaspendingAdapter{deps: deps}
}

func (a *usaspendingAdapter) Metadata() models.SourceMetadata {
	return models.SourceMetadata{
		ID:          usaspendingID,
		DisplayName: "USAspending.gov Awards",
		Category:    models.CategoryGovContracts,
		Description: "Awarded federal contracts and grants with recipient names, award " +
			"amounts, agencies, and periods of performance. Best for questions about money " +
			"already obligated, not open solicitations.",
		EstimatedLatencyMS: 3000,
	}
}

func (a *usaspendingAdapter) IsRelevant(question string) bool {
	return containsAny(question,
		"contract", "award", "spending", "grant", "recipient", "obligat",
		"funding", "federal", "agency", "vendor", "prime", "subcontract")
}

type usaspendingQuery struct {
	NotApplicable bool     `json:"not_applicable"`
	Reason        string   `json:"reason"`
	Keywords      []string `json:"keywords"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
	AwardTypes    []string `json:"award_types"`
}

func (a *usaspendingAdapter) GenerateQuery(ctx context.Context, question string) (*models.QueryParams, error) {
	var q usaspendingQuery
	prompt := llm.Prompt{
		System: queryGenSystem("USAspending.gov award search",
			"Produce 1-5 keyword strings (company names, program names, technologies), an "+
				"optional start_date/end_date window as YYYY-MM-DD, and optional award type "+
				"codes (A-D are contract types)."),
		User: question,
	}
	if err := a.deps.LLM.CompleteJSON(ctx, llm.QueryGenSite(usaspendingID), llm.PurposeQueryGen, prompt, &q); err != nil {
		return nil, err
	}
	if q.NotApplicable {
		return &models.QueryParams{SourceID: usaspendingID, NotApplicable: true, Reason: q.Reason}, nil
	}
	if len(q.Keywords) == 0 {
		return nil, invalidOutput(usaspendingID, fmt.Errorf("no keywords produced"))
	}
	if err := validDate(q.StartDate); err != nil {
		return nil, invalidOutput(usaspendingID, err)
	}
	if err := validDate(q.EndDate); err != nil {
		return nil, invalidOutput(usaspendingID, err)
	}
	return &models.QueryParams{SourceID: usaspendingID, Fields: map[string]any{
		"keywords":    q.Keywords,
		"start_date":  q.StartDate,
		"end_date":    q.EndDate,
		"award_types": q.AwardTypes,
	}}, nil
}

type usaspendingResponse struct {
	PageMetadata struct {
		Total int `json:"total"`
	} `json:"page_metadata"`
	Results []struct {
		InternalID    string  `json:"generated_internal_id"`
		AwardID       string  `json:"Award ID"`
		RecipientName string  `json:"Recipient Name"`
		Description   string  `json:"Description"`
		AwardAmount   float64 `json:"Award Amount"`
		StartDate     string  `json:"Start Date"`
		AwardingAgency string `json:"Awarding Agency"`
	} `json:"results"`
}

func (a *usaspendingAdapter) ExecuteSearch(ctx context.Context, params *models.QueryParams, limit int) *models.QueryResult {
	meta := a.Metadata()
	start := time.Now()

	base := usaspendingBaseURL
	if a.deps.Config != nil && a.deps.Config.BaseURL != "" {
		base = a.deps.Config.BaseURL
	}

	keywords, _ := params.Fields["keywords"].([]string)
	if keywords == nil {
		// Fields may round-trip through JSON as []any.
		if anyKw, ok := params.Fields["keywords"].([]any); ok {
			for _, k := range anyKw {
				if s, isStr := k.(string); isStr {
					keywords = append(keywords, s)
				}
			}
		}
	}

	filters := map[string]any{"keywords": keywords}
	if from := params.StringField("start_date"); from != "" {
		to := params.StringField("end_date")
		if to == "" {
			to = time.Now().Format("2006-01-02")
		}
		filters["time_period"] = []map[string]string{{"start_date": from, "end_date": to}}
	}
	reqBody, _ := json.Marshal(map[string]any{
		"filters": filters,
		"fields": []string{"Award ID", "Recipient Name", "Description",
			"Award Amount", "Start Date", "Awarding Agency"},
		"limit": limit,
		"page":  1,
	})

	body, status, err := a.deps.HTTP.Do(ctx, "POST", base, nil, reqBody)
	if se := classifyResponse(usaspendingID, status, err); se != nil {
		return models.FailedResult(meta, se)
	}

	var resp usaspendingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.FailedResult(meta, models.NewSourceError(
			models.ErrKindParseError, usaspendingID, "decoding response: %v", err))
	}

	items := make([]models.ResultItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		raw, _ := json.Marshal(r)
		title := r.AwardID
		if r.RecipientName != "" {
			title = fmt.Sprintf("%s — %s ($%.0f)", r.RecipientName, r.AwardID, r.AwardAmount)
		}
		items = append(items, models.ResultItem{
			Title:       title,
			URL:         "https://www.usaspending.gov/award/" + r.InternalID,
			Date:        toRFC3339(r.StartDate),
			Description: llm.Truncate(r.Description, 500),
			Author:      r.AwardingAgency,
			SourceID:    usaspendingID,
			Raw:         raw,
		})
	}

	return &models.QueryResult{
		SourceID:          usaspendingID,
		SourceDisplayName: meta.DisplayName,
		Success:           true,
		TotalUpstream:     resp.PageMetadata.Total,
		Items:             clampItems(items, limit),
		QueryParams:       map[string]any{"keywords": keywords},
		ResponseTimeMS:    time.Since(start).Milliseconds(),
	}
}
