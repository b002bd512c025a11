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
	redditID      = "reddit"
	redditBaseURL = "https://www.reddit.com"
)

func init() {
	llm.RegisterSchema(llm.QueryGenSite(redditID), queryGenSchema(`
		"query": {"type": "string"},
		"subreddit": {"type": "string"},
		"sort": {"type": "string", "enum": ["relevance", "new", "top"]},
		"time_window": {"type": "string", "enum": ["day", "week", "month", "year", "all"]}
	`))
}

// redditAdapter searches Reddit posts through the public JSON endpoints.
// Community discussion surfaces rumors, employee chatter, and local
// observations that never reach official channels.
type redditAdapter struct {
	deps integration.Deps
}

func NewReddit(deps integration.Deps) integration.Integration {
	return &redditAdapter{deps: deps}
}

func (a *redditAdapter) Metadata() models.SourceMetadata {
	return models.SourceMetadata{
		ID:                 redditID,
		DisplayName:        "Reddit Discussions",
		Category:           models.CategorySocialForum,
		EstimatedLatencyMS: 2000,
		Description: "Reddit posts and discussion threads, optionally restricted to one " +
			"subreddit. Good for community chatter, firsthand observations, and niche " +
			"communities around defense, aviation, and specific localities.",
	}
}

// Social chatter can bear on almost any question, so this adapter never
// pre-filters itself out.
func (a *redditAdapter) IsRelevant(question string) bool {
	return true
}

type redditQuery struct {
	NotApplicable bool   `json:"not_applicable"`
	Reason        string `json:"reason"`
	Query         string `json:"query"`
	Subreddit     string `json:"subreddit"`
	Sort          string `json:"sort"`
	TimeWindow    string `json:"time_window"`
}

func (a *redditAdapter) GenerateQuery(ctx context.Context, question string) (*models.QueryParams, error) {
	var q redditQuery
	prompt := llm.Prompt{
		System: queryGenSystem("Reddit search",
			"Produce a search query, optionally a single subreddit name (without the r/ "+
				"prefix), a sort order, and a time window."),
		User: question,
	}
	if err := a.deps.LLM.CompleteJSON(ctx, llm.QueryGenSite(redditID), llm.PurposeQueryGen, prompt, &q); err != nil {
		return nil, err
	}
	if q.NotApplicable {
		return &models.QueryParams{SourceID: redditID, NotApplicable: true, Reason: q.Reason}, nil
	}
	if q.Query == "" {
		return nil, invalidOutput(redditID, fmt.Errorf("empty query"))
	}
	return &models.QueryParams{SourceID: redditID, Fields: map[string]any{
		"query":       q.Query,
		"subreddit":   q.Subreddit,
		"sort":        q.Sort,
		"time_window": q.TimeWindow,
	}}, nil
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Title      string  `json:"title"`
				Permalink  string  `json:"permalink"`
				CreatedUTC float64 `json:"created_utc"`
				Author     string  `json:"author"`
				Selftext   string  `json:"selftext"`
				Subreddit  string  `json:"subreddit"`
				Score      int     `json:"score"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

func (a *redditAdapter) ExecuteSearch(ctx context.Context, params *models.QueryParams, limit int) *models.QueryResult {
	meta := a.Metadata()
	start := time.Now()

	base := redditBaseURL
	if a.deps.Config != nil && a.deps.Config.BaseURL != "" {
		base = a.deps.Config.BaseURL
	}

	path := "/search.json"
	if sub := params.StringField("subreddit"); sub != "" {
		path = "/r/" + url.PathEscape(sub) + "/search.json"
	}

	v := url.Values{}
	v.Set("q", params.StringField("query"))
	v.Set("limit", fmt.Sprintf("%d", limit))
	if sort := params.StringField("sort"); sort != "" {
		v.Set("sort", sort)
	}
	if tw := params.StringField("time_window"); tw != "" {
		v.Set("t", tw)
	}
	if params.StringField("subreddit") != "" {
		v.Set("restrict_sr", "1")
	}

	body, status, err := a.deps.HTTP.Do(ctx, "GET", base+path+"?"+v.Encode(), nil, nil)
	if se := classifyResponse(redditID, status, err); se != nil {
		return models.FailedResult(meta, se)
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return models.FailedResult(meta, models.NewSourceError(
			models.ErrKindParseError, redditID, "decoding listing: %v", err))
	}

	items := make([]models.ResultItem, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		p := child.Data
		raw, _ := json.Marshal(p)
		items = append(items, models.ResultItem{
			Title:       p.Title,
			URL:         "https://www.reddit.com" + p.Permalink,
			Date:        time.Unix(int64(p.CreatedUTC), 0).UTC().Format(time.RFC3339),
			Description: llm.Truncate(p.Selftext, 500),
			Author:      p.Author,
			SourceID:    redditID,
			Raw:         raw,
		})
	}

	return &models.QueryResult{
		SourceID:          redditID,
		SourceDisplayName: meta.DisplayName,
		Success:           true,
		TotalUpstream:     len(items),
		Items:             clampItems(items, limit),
		QueryParams:       map[string]any{"q": params.StringField("query"), "subreddit": params.StringField("subreddit")},
		ResponseTimeMS:    time.Since(start).Milliseconds(),
	}
}
