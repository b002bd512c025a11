package sources

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrianMills2718/OSINT-sub001/pkg/config"
	"github.com/BrianMills2718/OSINT-sub001/pkg/integration"
	"github.com/BrianMills2718/OSINT-sub001/pkg/llm"
	"github.com/BrianMills2718/OSINT-sub001/pkg/models"
)

// cannedCaller answers every query-generation call with a fixed JSON reply.
type cannedCaller struct {
	reply string
	err   error
}

func (c *cannedCaller) CompleteJSON(_ context.Context, _ llm.CallSite, _ llm.Purpose, _ llm.Prompt, out any) error {
	if c.err != nil {
		return c.err
	}
	return json.Unmarshal([]byte(c.reply), out)
}

// stubDoer records the request and replies with a canned body and status.
type stubDoer struct {
	gotMethod string
	gotURL    string
	body      []byte
	status    int
	err       error
}

func (d *stubDoer) Do(_ context.Context, method, rawURL string, _ map[string]string, _ []byte) ([]byte, int, error) {
	d.gotMethod = method
	d.gotURL = rawURL
	return d.body, d.status, d.err
}

func (d *stubDoer) query(t *testing.T) url.Values {
	t.Helper()
	u, err := url.Parse(d.gotURL)
	require.NoError(t, err)
	return u.Query()
}

func samDeps(t *testing.T, caller llm.Caller, doer *stubDoer) integration.Deps {
	t.Helper()
	t.Setenv("TEST_SAM_API_KEY", "sam-test-key")
	return integration.Deps{
		LLM:    caller,
		Config: &config.IntegrationConfig{APIKeyEnv: "TEST_SAM_API_KEY"},
		HTTP:   doer,
	}
}

func samBody(t *testing.T, total int, titles ...string) []byte {
	t.Helper()
	type opp struct {
		Title      string `json:"title"`
		PostedDate string `json:"postedDate"`
		UILink     string `json:"uiLink"`
	}
	opps := make([]opp, len(titles))
	for i, title := range titles {
		opps[i] = opp{
			Title:      title,
			PostedDate: "2026-08-01",
			UILink:     "https://sam.gov/opp/" + url.PathEscape(title),
		}
	}
	body, err := json.Marshal(map[string]any{"totalRecords": total, "opportunitiesData": opps})
	require.NoError(t, err)
	return body
}

func TestSAM_Metadata(t *testing.T) {
	a := NewSAM(integration.Deps{})
	meta := a.Metadata()

	assert.Equal(t, "sam", meta.ID)
	assert.Equal(t, models.CategoryGovContracts, meta.Category)
	assert.True(t, meta.RequiresCredential)
	require.Len(t, meta.SearchStrategies, 2)
	assert.Equal(t, "keyword_search", meta.SearchStrategies[0].MethodName)
	assert.Equal(t, "naics_search", meta.SearchStrategies[1].MethodName)
}

func TestSAM_IsRelevant(t *testing.T) {
	a := NewSAM(integration.Deps{})
	assert.True(t, a.IsRelevant("Which federal contracts cover counter-drone systems?"))
	assert.True(t, a.IsRelevant("recent RFP activity for NAICS 541715"))
	assert.False(t, a.IsRelevant("mastodon chatter about conference talks"))
}

func TestSAM_GenerateQuery(t *testing.T) {
	caller := &cannedCaller{reply: `{
		"not_applicable": false,
		"keywords": "\"counter-drone\" AND radar",
		"naics_code": "541715",
		"posted_from": "2026-06-01"
	}`}
	a := NewSAM(samDeps(t, caller, &stubDoer{}))

	params, err := a.GenerateQuery(context.Background(), "counter-drone contracts")
	require.NoError(t, err)
	assert.Equal(t, "sam", params.SourceID)
	assert.Equal(t, `"counter-drone" AND radar`, params.StringField("keywords"))
	assert.Equal(t, "541715", params.StringField("naics_code"))
	assert.Equal(t, "2026-06-01", params.StringField("posted_from"))
}

func TestSAM_GenerateQueryNotApplicable(t *testing.T) {
	caller := &cannedCaller{reply: `{"not_applicable": true, "reason": "question is about social media"}`}
	a := NewSAM(samDeps(t, caller, &stubDoer{}))

	params, err := a.GenerateQuery(context.Background(), "mastodon sentiment")
	require.NoError(t, err)
	assert.True(t, params.NotApplicable)
	assert.Equal(t, "question is about social media", params.Reason)
}

func TestSAM_GenerateQueryRejectsBadOutput(t *testing.T) {
	tooOld := time.Now().AddDate(-2, 0, 0).Format("2006-01-02")
	tests := []struct {
		name  string
		reply string
	}{
		{name: "no keywords or naics", reply: `{"not_applicable": false}`},
		{name: "malformed date", reply: `{"not_applicable": false, "keywords": "x", "posted_from": "last week"}`},
		{name: "lookback exceeded", reply: `{"not_applicable": false, "keywords": "x", "posted_from": "` + tooOld + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewSAM(samDeps(t, &cannedCaller{reply: tt.reply}, &stubDoer{}))
			_, err := a.GenerateQuery(context.Background(), "question")
			require.Error(t, err)
			var se *models.SourceError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, models.ErrKindLLMInvalidOutput, se.Kind)
		})
	}
}

func TestSAM_KeywordSearch(t *testing.T) {
	doer := &stubDoer{body: samBody(t, 40, "Counter-UAS radar", "Base defense systems"), status: 200}
	a := NewSAM(samDeps(t, &cannedCaller{}, doer))

	params := &models.QueryParams{SourceID: "sam", Fields: map[string]any{
		"keywords":    "counter-drone",
		"posted_from": "2026-06-01",
		"posted_to":   "2026-08-01",
	}}
	res := a.ExecuteSearch(context.Background(), params, 25)

	require.True(t, res.Success)
	q := doer.query(t)
	assert.Equal(t, "sam-test-key", q.Get("api_key"))
	assert.Equal(t, "counter-drone", q.Get("title"))
	assert.Equal(t, "06/01/2026", q.Get("postedFrom"), "dates are sent in SAM's MM/dd/yyyy format")
	assert.Equal(t, "08/01/2026", q.Get("postedTo"))
	assert.Equal(t, "25", q.Get("limit"))

	assert.Equal(t, 40, res.TotalUpstream)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "Counter-UAS radar", res.Items[0].Title)
	assert.Equal(t, "2026-08-01T00:00:00Z", res.Items[0].Date)
	assert.Equal(t, "sam", res.Items[0].SourceID)
}

func TestSAM_KeywordSearchDefaultsDateWindow(t *testing.T) {
	doer := &stubDoer{body: samBody(t, 1, "One hit"), status: 200}
	a := NewSAM(samDeps(t, &cannedCaller{}, doer))

	res := a.ExecuteSearch(context.Background(),
		&models.QueryParams{SourceID: "sam", Fields: map[string]any{"keywords": "drone"}}, 10)

	require.True(t, res.Success)
	q := doer.query(t)
	assert.NotEmpty(t, q.Get("postedFrom"), "a trailing window is supplied when the query omits dates")
	assert.NotEmpty(t, q.Get("postedTo"))
}

func TestSAM_FallsBackToNAICSSearch(t *testing.T) {
	doer := &stubDoer{body: samBody(t, 3, "NAICS hit"), status: 200}
	a := NewSAM(samDeps(t, &cannedCaller{}, doer))

	// No keywords: keyword_search is skipped for its missing required
	// param and naics_search runs instead.
	params := &models.QueryParams{SourceID: "sam", Fields: map[string]any{"naics_code": "541715"}}
	res := a.ExecuteSearch(context.Background(), params, 10)

	require.True(t, res.Success)
	assert.Equal(t, "541715", doer.query(t).Get("ncode"))
	assert.Empty(t, doer.query(t).Get("title"))
}

func TestSAM_ClampsToLimit(t *testing.T) {
	doer := &stubDoer{body: samBody(t, 5, "one", "two", "three", "four", "five"), status: 200}
	a := NewSAM(samDeps(t, &cannedCaller{}, doer))

	res := a.ExecuteSearch(context.Background(),
		&models.QueryParams{SourceID: "sam", Fields: map[string]any{"keywords": "x"}}, 3)

	require.True(t, res.Success)
	assert.Len(t, res.Items, 3)
	assert.Equal(t, 5, res.TotalUpstream)
}

func TestSAM_UpstreamFailureExhaustsStrategies(t *testing.T) {
	doer := &stubDoer{body: []byte("{}"), status: 429}
	a := NewSAM(samDeps(t, &cannedCaller{}, doer))

	res := a.ExecuteSearch(context.Background(),
		&models.QueryParams{SourceID: "sam", Fields: map[string]any{"keywords": "x"}}, 10)

	require.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Contains(t, res.Error.Message, "all search strategies exhausted")
	assert.Contains(t, res.Error.Message, "upstream returned status 429")
	assert.Contains(t, res.Error.Message, `naics_search: skipped (missing param "naics_code")`)
}

func TestSAM_MalformedBodyIsParseError(t *testing.T) {
	doer := &stubDoer{body: []byte("<html>maintenance</html>"), status: 200}
	a := NewSAM(samDeps(t, &cannedCaller{}, doer))

	res := a.ExecuteSearch(context.Background(),
		&models.QueryParams{SourceID: "sam", Fields: map[string]any{"keywords": "x"}}, 10)

	require.False(t, res.Success)
	require.NotNil(t, res.Error)
	assert.Contains(t, res.Error.Message, "decoding response")
	assert.True(t, strings.HasPrefix(doer.gotURL, "https://api.sam.gov/"))
}
