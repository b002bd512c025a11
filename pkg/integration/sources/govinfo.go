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
	govinfoID      = "govinfo"
	govinfoBaseURL = "https://api.govinfo.gov/search"
)

func init() {
	llm.RegisterSchema(llm.QueryGenSite(govinfoID), queryGenSchema(`
		"query": {"type": "string"},
		"collections": {
			"type": "array",
			"items": {"type": "string", "enum": ["BILLS", "CHRG", "CREC", "CRPT", "FR", "GAOREPORTS", "PLAW"]},
			"maxItems": 3
		}
	`))
}

// govinfoAdapter searches published federal documents on govinfo.gov:
// bills, hearings, committee reports, the Federal Register, GAO reports,
// and public laws.
type govinfoAdapter struct {
	deps integration.Deps
}

func NewGovInfo(deps integration.Deps) integration.Integration {
	return &govinfoAdapter{deps: deps}
}

func (a *govinfoAdapter) Metadata() models.SourceMetadata {
	return models.SourceMetadata{
		ID:                 govinfoID,
		DisplayName:        "GovInfo Federal Documents",
		Category:           models.CategoryGovDocs,
		RequiresCredential: true,
		EstimatedLatencyMS: 3500,
		Description: "Official federal publications: congressional bills, hearing " +
			"transcripts, committee reports, the Federal Register, GAO reports, and public " +
			"laws. Supports full-text boolean queries.",
		SupportsBooleanOperators: true,
	}
}

func (a *govinfoAdapter) IsRelevant(question string) bool {
	return containsAny(question,
		"congress", "bill", "hearing", "testimony", "committee", "legislation",
		"federal register", "gao", "report", "law", "appropriation", "budget", "oversight")
}

type govinfoQuery struct {
	NotApplicable bool     `json:"not_applicable"`
	Reason        string   `json:"reason"`
	Query         string   `json:"query"`
	Collections   []string `json:"collections"`
}

func (a *govinfoAdapter) GenerateQuery(ctx context.Context, question string) (*models.QueryParams, error) {
	var q govinfoQuery
	prompt := llm.Prompt{
		System: queryGenSystem("GovInfo federal document search",
			"Produce a full-text query (boolean AND/OR and quoted phrases are supported) and "+
				"optionally up to three collection codes: BILLS, CHRG (hearings), CREC "+
				"(Congressional Record), CRPT (committee reports), FR (Federal Register), "+
				"GAOREPORTS, PLAW (public laws)."),
		User: question,
	}
	if err := a.deps.LLM.CompleteJSON(ctx, llm.QueryGenSite(govinfoID), llm.PurposeQueryGen, prompt, &q); err != nil {
		return nil, err
	}
	if q.NotApplicable {
		return &models.QueryParams{SourceID: govinfoID, NotApplicable: true, Reason: q.Reason}, nil
	}
	if q.Query == "" {
		return nil, invalidOutput(govinfoID, fmt.Errorf("empty query"))
	}
	return &models.QueryParams{SourceID: govinfoID, Fields: map[string]any{
		"query":       q.Query,
		"collections": q.Collections,
	}}, nil
}

type govinfoResponse struct {
	Count   int `json:"count"`
	Results []struct {
		Title         string `json:"title"`
		PackageID     string `json:"packageId"`
		LastModified  string `json:"lastModified"`
		DateIssued    string `json:"dateIssued"`
		CollectionCode string `json:"collectionCode"`
		GovernmentAuthor []string `json:"governmentAuthor"`
		ResultLink    string `json:"resultLink"`
	} `json:"results"`
}

func (a *govinfoAdapter) ExecuteSearch(ctx context.Context, params *models.QueryParams, limit int) *models.QueryResult {
	meta := a.Metadata()
	start := time.Now()

	base := govinfoBaseURL
	if a.deps.Config != nil && a.deps.Config.BaseURL != "" {
		base = a.deps.Config.BaseURL
	}

	query := params.StringField("query")
	if cols, ok := params.Fields["collections"].([]string); ok && len(cols) > 0 {
		for _, c := range cols {
			query += " collection:" + c
		}
	}

	reqBody, _ := json.Marshal(map[string]any{
		"query":    query,
		"pageSize": limit,
		"offsetMark": "*",
		"sorts": []map[string]string{
			{"field": "score", "sortOrder": "DESC"},
		},
	})
	headers := map[string]string{"X-Api-Key": a.deps.Config.APIKey()}

	body, status, err := a.deps.HTTP.Do(ctx, "POST", base, headers, reqBody)
	if se := classifyResponse(govinfoID, status, err); se != nil {
		return models.FailedResult(meta, se)
	}

	var resp govinfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.FailedResult(meta, models.NewSourceError(
			models.ErrKindParseError, govinfoID, "decoding response: %v", err))
	}

	items := make([]models.ResultItem, 0, len(resp.Results))
	for _, r := range resp.Results {
		raw, _ := json.Marshal(r)
		link := r.ResultLink
		if link == "" {
			link = "https://www.govinfo.gov/app/details/" + r.PackageID
		}
		date := r.DateIssued
		if date == "" {
			date = r.LastModified
		}
		author := ""
		if len(r.GovernmentAuthor) > 0 {
			author = r.GovernmentAuthor[0]
		}
		items = append(items, models.ResultItem{
			Title:       r.Title,
			URL:         link,
			Date:        toRFC3339(date),
			Description: "Collection: " + r.CollectionCode,
			Author:      author,
			SourceID:    govinfoID,
			Raw:         raw,
		})
	}

	return &models.QueryResult{
		SourceID:          govinfoID,
		SourceDisplayName: meta.DisplayName,
		Success:           true,
		TotalUpstream:     resp.Count,
		Items:             clampItems(items, limit),
		QueryParams:       map[string]any{"query": query},
		ResponseTimeMS:    time.Since(start).Milliseconds(),
	}
}
