package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/intbuddy/internal/chat"
	"github.com/jonathan/intbuddy/internal/llm"
	"github.com/jonathan/intbuddy/internal/scrape"
	"github.com/jonathan/intbuddy/internal/server/ratelimit"
	"github.com/jonathan/intbuddy/internal/session"
	"github.com/jonathan/intbuddy/internal/types"
)

const description = "## Interview Preparation Journey\nPractised graphs and dp for two months." +
	"\n\n## Interview Rounds\n\n### Round 1\nTwo graph questions on BFS.\n\n### Round 2\nHR discussion about projects."

type fakeScraper struct {
	mu      sync.Mutex
	records []types.InterviewRecord
	queries []types.Query
}

func (f *fakeScraper) RunWithProgress(_ context.Context, q types.Query, progress scrape.ProgressFunc) (*types.ResultSet, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if len(f.records) == 0 {
		return &types.ResultSet{Status: types.StatusNoLinks}, nil
	}
	for i := range f.records {
		if progress != nil {
			progress(i+1, len(f.records)+1)
		}
	}
	return &types.ResultSet{
		Records:    f.records,
		LinksFound: len(f.records) + 1,
		Failed:     1,
		Status:     types.StatusPartial,
	}, nil
}

func (f *fakeScraper) lastQuery() types.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries[len(f.queries)-1]
}

type fakeClient struct{}

func (fakeClient) GenerateContent(_ context.Context, _ string, tier llm.ModelTier) (string, error) {
	if tier == llm.TierLite {
		return "what was asked in round 1?", nil
	}
	return "Round 1 had two graph questions.", nil
}

func (fakeClient) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(strings.Count(t, "graph")) + 1, 1}
	}
	return out, nil
}

func (fakeClient) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (fakeClient) GetModel(tier llm.ModelTier) string { return string(tier) }

func (fakeClient) Close() error { return nil }

type testServer struct {
	*Server
	scraper *fakeScraper
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter, records ...types.InterviewRecord) *testServer {
	t.Helper()
	scraper := &fakeScraper{records: records}
	manager := session.NewManager(scraper, func(context.Context) (llm.Client, error) {
		return fakeClient{}, nil
	}, session.Config{}, nil)
	t.Cleanup(func() { _ = manager.Close() })
	return &testServer{
		Server:  New(Config{Port: "0", MaxPages: 3}, manager, limiter, nil),
		scraper: scraper,
	}
}

func sampleRecords() []types.InterviewRecord {
	return []types.InterviewRecord{
		{Company: "Google", Role: "sde-2", Description: description},
		{Company: "Google", Role: "sde-2", Description: description},
	}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) createSession(t *testing.T) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["session_id"])
	return resp["session_id"]
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestHandleMetrics(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/metrics", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodOptions, "/sessions", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLoad_UnknownSession(t *testing.T) {
	ts := newTestServer(t, nil, sampleRecords()...)
	rec := ts.do(t, http.MethodPost, "/sessions/missing/load", loadRequest{Company: "Google", Role: "SDE 2"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLoad_Validation(t *testing.T) {
	ts := newTestServer(t, nil, sampleRecords()...)
	id := ts.createSession(t)

	tests := []struct {
		name  string
		body  any
		field string
	}{
		{"missing role", loadRequest{Company: "Google"}, "role"},
		{"blank company", loadRequest{Company: "  ", Role: "sde"}, "company"},
		{"not an object", "nope", "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/sessions/"+id+"/load", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decode[map[string]string](t, rec)["error"], tt.field)
		})
	}
}

func TestLoad_NonPositivePagesClampedToOne(t *testing.T) {
	ts := newTestServer(t, nil, sampleRecords()...)

	for _, pages := range []int{-3, 0} {
		id := ts.createSession(t)
		rec := ts.do(t, http.MethodPost, "/sessions/"+id+"/load", loadRequest{Company: "Google", Role: "SDE 2", Pages: pages})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, 1, decode[loadResponse](t, rec).Pages)
		assert.Equal(t, 1, ts.scraper.lastQuery().Pages)
	}
}

func TestLoadAskAndExport(t *testing.T) {
	ts := newTestServer(t, nil, sampleRecords()...)
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodPost, "/sessions/"+id+"/load", loadRequest{Company: "Google", Role: "SDE 2", Pages: 50})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	load := decode[loadResponse](t, rec)
	assert.True(t, load.Ready)
	assert.Equal(t, types.StatusPartial, load.Status)
	assert.Equal(t, 2, load.Records)
	assert.Equal(t, "SDE 2", load.Role)
	assert.Equal(t, 3, load.Pages)
	assert.Positive(t, load.Chunks)
	assert.Equal(t, "1 of 3 interviews could not be extracted", load.Warning)
	assert.Equal(t, 3, ts.scraper.lastQuery().Pages)

	rec = ts.do(t, http.MethodPost, "/sessions/"+id+"/ask", askRequest{Question: "What was asked in round 1?"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ans := decode[askResponse](t, rec)
	assert.Equal(t, "Round 1 had two graph questions.", ans.Answer)
	assert.NotEmpty(t, ans.Sources)
	assert.Empty(t, ans.Standalone)

	rec = ts.do(t, http.MethodPost, "/sessions/"+id+"/ask", askRequest{Question: "and round 2?"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "what was asked in round 1?", decode[askResponse](t, rec).Standalone)

	rec = ts.do(t, http.MethodGet, "/sessions/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[map[string][]types.Turn](t, rec)["turns"], 2)

	rec = ts.do(t, http.MethodGet, "/sessions/"+id+"/export.csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "google_sde-2.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "company,role,description\n"))

	rec = ts.do(t, http.MethodGet, "/sessions/"+id+"/structured", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decode[types.InterviewData](t, rec)
	assert.Len(t, data.Experiences, 2)

	rec = ts.do(t, http.MethodGet, "/sessions/"+id+"/export.md", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Google SDE 2 interview experiences")
}

func TestLoad_NoLinksIsWarningNotError(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodPost, "/sessions/"+id+"/load", loadRequest{Company: "Nowhere", Role: "sde"})
	require.Equal(t, http.StatusOK, rec.Code)

	load := decode[loadResponse](t, rec)
	assert.False(t, load.Ready)
	assert.Equal(t, types.StatusNoLinks, load.Status)
	assert.Zero(t, load.Records)
	assert.NotEmpty(t, load.Warning)

	rec = ts.do(t, http.MethodPost, "/sessions/"+id+"/ask", askRequest{Question: "anything?"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/sessions/"+id+"/structured", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAsk_BeforeLoad(t *testing.T) {
	ts := newTestServer(t, nil, sampleRecords()...)
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodPost, "/sessions/"+id+"/ask", askRequest{Question: "hello"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/sessions/"+id+"/export.csv", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestAsk_ExitEndsSession(t *testing.T) {
	ts := newTestServer(t, nil, sampleRecords()...)
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodPost, "/sessions/"+id+"/load", loadRequest{Company: "Google", Role: "sde-2"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/sessions/"+id+"/ask", askRequest{Question: "Bye"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[askResponse](t, rec).Ended)

	rec = ts.do(t, http.MethodPost, "/sessions/"+id+"/ask", askRequest{Question: "still there?"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/sessions/"+id+"/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[map[string][]types.Turn](t, rec)["turns"])
}

func TestLoadStream(t *testing.T) {
	ts := newTestServer(t, nil, sampleRecords()...)
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodPost, "/sessions/"+id+"/load/stream", loadRequest{Company: "Google", Role: "sde-2"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))

	body := rec.Body.String()
	assert.Contains(t, body, "event: progress\ndata: {\"done\":1,\"total\":3}\n\n")
	assert.Contains(t, body, "event: complete\n")
	assert.Less(t, strings.Index(body, "event: progress"), strings.Index(body, "event: complete"))
}

func TestLoadStream_UnknownSession(t *testing.T) {
	ts := newTestServer(t, nil, sampleRecords()...)
	rec := ts.do(t, http.MethodPost, "/sessions/missing/load/stream", loadRequest{Company: "Google", Role: "sde-2"})

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestDeleteSession(t *testing.T) {
	ts := newTestServer(t, nil)
	id := ts.createSession(t)

	rec := ts.do(t, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimit_Load(t *testing.T) {
	limiter := ratelimit.NewLimiter(&ratelimit.Config{
		Enabled:         true,
		DefaultLimit:    100,
		DefaultWindow:   time.Minute,
		EndpointConfigs: ratelimit.DefaultEndpointConfigs(1, 10),
	})
	defer limiter.Stop()
	ts := newTestServer(t, limiter, sampleRecords()...)

	var last *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		id := ts.createSession(t)
		last = ts.do(t, http.MethodPost, "/sessions/"+id+"/load", loadRequest{Company: "Google", Role: "sde-2"})
		if i < 3 {
			require.Equal(t, http.StatusOK, last.Code, "load %d", i)
			assert.Equal(t, "1", last.Header().Get("X-RateLimit-Limit"))
		}
	}

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.Equal(t, "rate_limit_exceeded", decode[map[string]any](t, last)["error"])
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&ErrValidation{Field: "role", Message: "required"}, http.StatusBadRequest},
		{chat.ErrEmptyQuestion, http.StatusBadRequest},
		{fmt.Errorf("lookup: %w", session.ErrSessionNotFound), http.StatusNotFound},
		{session.ErrNotLoaded, http.StatusConflict},
		{session.ErrSessionEnded, http.StatusGone},
		{context.Canceled, statusClientClosedRequest},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("model unavailable"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}

func TestExportName(t *testing.T) {
	assert.Equal(t, "goldman-sachs_sde-1.csv", exportName(types.Query{Company: "Goldman  Sachs", Role: "SDE - 1"}, "csv"))
	assert.Equal(t, "amazon.md", exportName(types.Query{Company: "Amazon"}, "md"))
	assert.Equal(t, "interviews.csv", exportName(types.Query{}, "csv"))
}
