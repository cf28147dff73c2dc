package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lead-cli/internal/config"
	"github.com/sells-group/lead-cli/internal/model"
	"github.com/sells-group/lead-cli/internal/pipeline"
	"github.com/sells-group/lead-cli/internal/router"
	"github.com/sells-group/lead-cli/internal/store"
)

const janeKey = "https://www.linkedin.com/in/jane"

func newTestHandler(t *testing.T) (http.Handler, store.Store) {
	t.Helper()
	return newWrappedTestHandler(t, nil)
}

// newWrappedTestHandler builds the handler over a SQLite store, optionally
// wrapped to inject failures.
func newWrappedTestHandler(t *testing.T, wrap func(store.Store) store.Store) (http.Handler, store.Store) {
	t.Helper()

	sqlite, err := store.NewSQLite(filepath.Join(t.TempDir(), "leads.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() }) //nolint:errcheck
	require.NoError(t, sqlite.Migrate(context.Background()))

	var st store.Store = sqlite
	if wrap != nil {
		st = wrap(sqlite)
	}

	q, err := buildQualifier(config.ScoringConfig{Strategy: "heuristic", Threshold: 30}, nil)
	require.NoError(t, err)
	f, err := buildFilter(config.FilterConfig{ExcerptChars: 500}, nil)
	require.NoError(t, err)
	n, err := buildNormalizer(config.NormalizeConfig{})
	require.NoError(t, err)

	r := router.New(st, q)
	p := pipeline.New(n, f, q, r, st)
	return newHandler(&api{store: st, router: r, pipeline: p}), st
}

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func ingestJane(t *testing.T, h http.Handler) {
	t.Helper()
	body := `[{"linkedin_url":"https://www.linkedin.com/in/jane/","full_name":"Jane Doe","title":"CEO & Founder | Leadership Development","location":"London"}]`
	rr := do(h, http.MethodPost, "/ingest/linkedin", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestHandler_Health(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := do(h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandler_Metrics(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := do(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestHandler_IngestRoutesLead(t *testing.T) {
	h, st := newTestHandler(t)

	body := strings.Join([]string{
		`{"linkedin_url":"https://www.linkedin.com/in/jane/","full_name":"Jane Doe","title":"CEO & Founder | Leadership Development","location":"London"}`,
		`{"linkedin_url":"https://linkedin.com/in/coachbob","full_name":"Bob","about":"Book a free consultation today."}`,
	}, "\n")
	rr := do(h, http.MethodPost, "/ingest/linkedin", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var res pipeline.RunResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, pipeline.Counters{Processed: 2, Qualified: 1, Rejected: 1}, res.Total)

	_, bucket, err := st.Get(context.Background(), janeKey)
	require.NoError(t, err)
	assert.Equal(t, store.Active, bucket)
}

func TestHandler_IngestBadRequests(t *testing.T) {
	h, _ := newTestHandler(t)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/ingest/myspace", "[]").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPost, "/ingest/reddit", "not json").Code)
}

func TestHandler_GetLead(t *testing.T) {
	h, _ := newTestHandler(t)
	ingestJane(t, h)

	rr := do(h, http.MethodGet, "/lead?key="+url.QueryEscape(janeKey), "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Store string `json:"store"`
		Lead  struct {
			IdentityKey string `json:"identity_key"`
			DisplayName string `json:"display_name"`
		} `json:"lead"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "active", body.Store)
	assert.Equal(t, janeKey, body.Lead.IdentityKey)
	assert.Equal(t, "Jane Doe", body.Lead.DisplayName)

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodGet, "/lead?key=https://nowhere", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/lead", "").Code)
}

func TestHandler_QueryLeads(t *testing.T) {
	h, _ := newTestHandler(t)
	ingestJane(t, h)

	rr := do(h, http.MethodGet, "/leads?min=30&scope=all", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var leads []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &leads))
	require.Len(t, leads, 1)
	assert.Equal(t, janeKey, leads[0]["identity_key"])

	rr = do(h, http.MethodGet, "/leads?max=1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/leads?min=abc", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/leads?scope=everything", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodGet, "/leads?limit=-1", "").Code)
}

func TestHandler_RescoreLead(t *testing.T) {
	h, _ := newTestHandler(t)
	ingestJane(t, h)

	rr := do(h, http.MethodPost, "/lead/rescore?key="+url.QueryEscape(janeKey), "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "active", body["from"])
	assert.Equal(t, "active", body["to"])
	assert.NotNil(t, body["previous_score"])

	assert.Equal(t, http.StatusNotFound, do(h, http.MethodPost, "/lead/rescore?key=https://nowhere", "").Code)
}

func TestHandler_Stats(t *testing.T) {
	h, _ := newTestHandler(t)
	ingestJane(t, h)

	rr := do(h, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Active    int `json:"active"`
		Discarded int `json:"discarded"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Active)
	assert.Equal(t, 0, body.Discarded)
}

func TestHandler_CORSPreflight(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodOptions, "/leads", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

// outageAfterFirstInsert reports the store unreachable from the second
// insert on.
type outageAfterFirstInsert struct {
	store.Store
	inserts atomic.Int32
}

func (o *outageAfterFirstInsert) Insert(ctx context.Context, b store.Bucket, l model.Lead) error {
	if o.inserts.Add(1) > 1 {
		return eris.Wrap(store.ErrUnavailable, "sqlite: insert lead: database is locked")
	}
	return o.Store.Insert(ctx, b, l)
}

func TestHandler_IngestStoreOutageReturnsPartialCounters(t *testing.T) {
	h, _ := newWrappedTestHandler(t, func(s store.Store) store.Store { return &outageAfterFirstInsert{Store: s} })

	body := strings.Join([]string{
		`{"linkedin_url":"https://www.linkedin.com/in/jane/","full_name":"Jane Doe","title":"CEO & Founder","location":"London"}`,
		`{"linkedin_url":"https://www.linkedin.com/in/sam/","full_name":"Sam Roe","title":"Founder"}`,
		`{"linkedin_url":"https://www.linkedin.com/in/kim/","full_name":"Kim Poe","title":"Director"}`,
	}, "\n")
	rr := do(h, http.MethodPost, "/ingest/linkedin", body)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code, rr.Body.String())

	var resp struct {
		Error  string              `json:"error"`
		Result *pipeline.RunResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "store unavailable", resp.Error)
	require.NotNil(t, resp.Result)
	assert.NotEmpty(t, resp.Result.RunID)
	assert.Equal(t, 2, resp.Result.Total.Processed)
	assert.Equal(t, 1, resp.Result.Total.Errors)
	assert.Equal(t, 1, resp.Result.Total.Qualified+resp.Result.Total.Discarded)
}
