package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/BrianMills2718/OSINT-sub001/pkg/integration"
	"github.com/BrianMills2718/OSINT-sub001/pkg/llm"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

const (
	mastodonID             = "mastodon"
	mastodonDefaultBaseURL = "https://mastodon.social"
)

func init() {
	llm.RegisterSchema(llm.QueryGenSite(mastodonID), queryGenSchema(`
		"query": {"type": "string"},
		"hashtag": {"type": "string", "pattern": "^[A-Za-z0-9_]*$"}
	`))
}

// mastodonAdapter searches federated Mastodon statuses. The instance to
// query comes from the integration's base_url setting.
type mastodonAdapter struct {
	deps integration.Deps
}

func NewMastodon(deps integration.Deps) integration.Integration {
	return &mastodonAdapter{deps: deps}
}

func (a *mastodonAdapter) Metadata() models.SourceMetadata {
	return models.SourceMetadata{
		ID:                 mastodonID,
		DisplayName:        "Mastodon Statuses",
		Category:           models.CategorySocialMicro,
		RequiresCredential: true,
		EstimatedLatencyMS: 2000,
		Description: "Public microblog posts from the configured Mastodon instance and its " +
			"federated network, searchable by full text or hashtag. OSINT, aviation-tracking, " +
			"and infosec communities are active here.",
	}
}

func (a *mastodonAdapter) IsRelevant(question string) bool {
	return containsAny(question,
		"social media", "mastodon", "post", "chatter", "discussion",
		"osint", "sighting", "spotted", "tracking", "community", "researcher")
}

type mastodonQuery struct {
	NotApplicable bool   `json:"not_applicable"`
	Reason        string `json:"reason"`
	Query         string `json:"query"`
	Hashtag       string `json:"hashtag"`
}

func (a *mastodonAdapter) GenerateQuery(ctx context.Context, question string) (*models.QueryParams, error) {
	var q mastodonQuery
	prompt := llm.Prompt{
		System: queryGenSystem("Mastodon status search",
			"Produce a short full-text query and optionally a single hashtag (letters, "+
				"digits, underscores, no # prefix)."),
		User: question,
	}
	if err := a.deps.LLM.CompleteJSON(ctx, llm.QueryGenSite(mastodonID), llm.PurposeQueryGen, prompt, &q); err != nil {
		return nil, err
	}
	if q.NotApplicable {
		return &models.QueryParams{SourceID: mastodonID, NotApplicable: true, Reason: q.Reason}, nil
	}
	if q.Query == "" && q.Hashtag == "" {
		return nil, invalidOutput(mastodonID, fmt.Errorf("neither query nor hashtag set"))
	}
	return &models.QueryParams{SourceID: mastodonID, Fields: map[string]any{
		"query":   q.Query,
		"hashtag": q.Hashtag,
	}}, nil
}

type mastodonStatus struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
	Content   string `json:"content"`
	Account   struct {
		Acct        string `json:"acct"`
		DisplayName string `json:"display_name"`
	} `json:"account"`
}

type mastodonSearchResponse struct {
	Statuses []mastodonStatus `json:"statuses"`
}

func (a *mastodonAdapter) ExecuteSearch(ctx context.Context, params *models.QueryParams, limit int) *models.QueryResult {
	meta := a.Metadata()
	start := time.Now()

	base := mastodonDefaultBaseURL
	if a.deps.Config != nil && a.deps.Config.BaseURL != "" {
		base = strings.TrimRight(a.deps.Config.BaseURL, "/")
	}

	q := params.StringField("query")
	if q == "" {
		q = "#" + params.StringField("hashtag")
	}

	v := url.Values{}
	v.Set("q", q)
	v.Set("type", "statuses")
	v.Set("limit", fmt.Sprintf("%d", limit))

	headers := map[string]string{
		"Authorization": "Bearer " + a.deps.Config.APIKey(),
	}

	body, status, err := a.deps.HTTP.Do(ctx, "GET", base+"/api/v2/search?"+v.Encode(), headers, nil)
	if se := classifyResponse(mastodonID, status, err); se != nil {
		return models.FailedResult(meta, se)
	}

	var resp mastodonSearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.FailedResult(meta, models.NewSourceError(
			models.ErrKindParseError, mastodonID, "decoding response: %v", err))
	}

	items := make([]models.ResultItem, 0, len(resp.Statuses))
	for _, s := range resp.Statuses {
		raw, _ := json.Marshal(s)
		text := stripHTMLTags(s.Content)
		items = append(items, models.ResultItem{
			Title:       llm.Truncate(text, 120),
			URL:         s.URL,
			Date:        toRFC3339(s.CreatedAt),
			Description: llm.Truncate(text, 500),
			Author:      s.Account.Acct,
			SourceID:    mastodonID,
			Raw:         raw,
		})
	}

	return &models.QueryResult{
		SourceID:          mastodonID,
		SourceDisplayName: meta.DisplayName,
		Success:           true,
		TotalUpstream:     len(items),
		Items:             clampItems(items, limit),
		QueryParams:       map[string]any{"q": q},
		ResponseTimeMS:    time.Since(start).Milliseconds(),
	}
}

var htmlTagRe = regexp.MustCompile(`<[^>]+>`)

// stripHTMLTags flattens Mastodon's HTML status content to plain text.
func stripHTMLTags(s string) string {
	s = strings.ReplaceAll(s, "</p><p>", "\n")
	s = strings.ReplaceAll(s, "<br />", "\n")
	s = strings.ReplaceAll(s, "<br/>", "\n")
	return strings.TrimSpace(htmlTagRe.ReplaceAllString(s, ""))
}
