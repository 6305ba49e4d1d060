package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prompt-general/answerhub/internal/answer"
	"github.com/prompt-general/answerhub/internal/config"
	"github.com/prompt-general/answerhub/internal/health"
	"github.com/prompt-general/answerhub/internal/knowledge"
	"github.com/prompt-general/answerhub/internal/matcher"
	"github.com/prompt-general/answerhub/internal/pipeline"
	"github.com/prompt-general/answerhub/internal/provider"
	"github.com/prompt-general/answerhub/internal/ratelimit"
	"github.com/prompt-general/answerhub/pkg/models"
)

type fakeAnswerer struct {
	resp *models.QuestionResponse
	err  error
}

func (a *fakeAnswerer) Answer(ctx context.Context, collection, question string) (*models.QuestionResponse, error) {
	return a.resp, a.err
}

type fakeEntryStore struct {
	entries  map[string]*models.Entry
	listed   []models.Entry
	stats    *models.CollectionStats
	storeErr error
}

func newFakeEntryStore() *fakeEntryStore {
	return &fakeEntryStore{entries: map[string]*models.Entry{}}
}

func (s *fakeEntryStore) CreateEntry(ctx context.Context, entry *models.Entry) error {
	if s.storeErr != nil {
		return s.storeErr
	}
	entry.ID = "generated-id"
	if entry.Collection == "" {
		entry.Collection = models.DefaultCollection
	}
	s.entries[entry.ID] = entry
	return nil
}

func (s *fakeEntryStore) GetEntry(ctx context.Context, id string) (*models.Entry, error) {
	if s.storeErr != nil {
		return nil, s.storeErr
	}
	entry, ok := s.entries[id]
	if !ok {
		return nil, knowledge.ErrEntryNotFound
	}
	return entry, nil
}

func (s *fakeEntryStore) ListEntries(ctx context.Context, filter models.EntryFilter) ([]models.Entry, error) {
	if s.storeErr != nil {
		return nil, s.storeErr
	}
	return s.listed, nil
}

func (s *fakeEntryStore) CollectionStats(ctx context.Context) (*models.CollectionStats, error) {
	if s.storeErr != nil {
		return nil, s.storeErr
	}
	return s.stats, nil
}

type fakeMaintenance struct {
	job    *models.EmbeddingJob
	runErr error
	jobErr error
	ranFor []string
}

func (m *fakeMaintenance) Run(collection string) (*models.EmbeddingJob, error) {
	m.ranFor = append(m.ranFor, collection)
	return m.job, m.runErr
}

func (m *fakeMaintenance) JobStatus(jobID string) (*models.EmbeddingJob, error) {
	if m.jobErr != nil {
		return nil, m.jobErr
	}
	return m.job, nil
}

type staticPinger struct{ err error }

func (p staticPinger) Ping(ctx context.Context) error { return p.err }

func newTestGateway(answerer Answerer, entries EntryStore, maintenance Maintenance, pingErr error) *Gateway {
	checker := health.NewChecker()
	checker.Register(&health.PingCheck{CheckName: "database", Target: staticPinger{err: pingErr}})

	cfg := config.APIConfig{Host: "127.0.0.1", Port: 0}
	return NewGateway(cfg, answerer, entries, maintenance, ratelimit.New(45, 200000), checker)
}

func doRequest(g *Gateway, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestAskQuestionLocal(t *testing.T) {
	score := 0.91
	answerer := &fakeAnswerer{resp: &models.QuestionResponse{
		Source:          models.SourceLocal,
		MatchedQuestion: "What steps do I take to reset my password?",
		Answer:          "Go to account settings.",
		SimilarityScore: &score,
	}}
	g := newTestGateway(answerer, newFakeEntryStore(), &fakeMaintenance{}, nil)

	rec := doRequest(g, "POST", "/api/v1/questions", models.QuestionRequest{Question: "How do I reset my password?"})
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var qr models.QuestionResponse
	require.NoError(t, json.Unmarshal(data, &qr))
	assert.Equal(t, models.SourceLocal, qr.Source)
	assert.Equal(t, "What steps do I take to reset my password?", qr.MatchedQuestion)
	require.NotNil(t, qr.SimilarityScore)
	assert.Equal(t, 0.91, *qr.SimilarityScore)
}

func TestAskQuestionErrorMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"empty question", matcher.ErrInvalidInput, http.StatusBadRequest, "INVALID_INPUT"},
		{"fallback down", answer.ErrFallbackUnavailable, http.StatusBadGateway, "FALLBACK_UNAVAILABLE"},
		{"embedding down", &provider.ProviderError{Op: "embed", Err: errors.New("timeout")}, http.StatusBadGateway, "EMBEDDING_UNAVAILABLE"},
		{"store down", &knowledge.StoreError{Op: "nearest", Err: errors.New("refused")}, http.StatusInternalServerError, "STORE_ERROR"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := newTestGateway(&fakeAnswerer{err: tc.err}, newFakeEntryStore(), &fakeMaintenance{}, nil)

			rec := doRequest(g, "POST", "/api/v1/questions", models.QuestionRequest{Question: "q"})
			assert.Equal(t, tc.wantStatus, rec.Code)

			resp := decodeResponse(t, rec)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tc.wantCode, resp.Error.Code)
		})
	}
}

func TestAskQuestionMalformedBody(t *testing.T) {
	g := newTestGateway(&fakeAnswerer{}, newFakeEntryStore(), &fakeMaintenance{}, nil)

	req := httptest.NewRequest("POST", "/api/v1/questions", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	g.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "INVALID_REQUEST", resp.Error.Code)
}

func TestCreateEntrySchedulesMaintenance(t *testing.T) {
	store := newFakeEntryStore()
	maintenance := &fakeMaintenance{job: &models.EmbeddingJob{ID: "j1", Status: models.JobPending}}
	g := newTestGateway(&fakeAnswerer{}, store, maintenance, nil)

	rec := doRequest(g, "POST", "/api/v1/entries", models.CreateEntryRequest{
		Question: "How do I deactivate my account?",
		Answer:   "Under account settings.",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{models.DefaultCollection}, maintenance.ranFor)
	assert.Len(t, store.entries, 1)
}

func TestCreateEntryToleratesRunningJob(t *testing.T) {
	maintenance := &fakeMaintenance{runErr: pipeline.ErrJobAlreadyRunning}
	g := newTestGateway(&fakeAnswerer{}, newFakeEntryStore(), maintenance, nil)

	rec := doRequest(g, "POST", "/api/v1/entries", models.CreateEntryRequest{Question: "q", Answer: "a"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCreateEntryRejectsEmptyFields(t *testing.T) {
	g := newTestGateway(&fakeAnswerer{}, newFakeEntryStore(), &fakeMaintenance{}, nil)

	for _, body := range []models.CreateEntryRequest{
		{Question: "", Answer: "a"},
		{Question: "q", Answer: "   "},
	} {
		rec := doRequest(g, "POST", "/api/v1/entries", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
}

func TestGetEntryNotFound(t *testing.T) {
	g := newTestGateway(&fakeAnswerer{}, newFakeEntryStore(), &fakeMaintenance{}, nil)

	rec := doRequest(g, "GET", "/api/v1/entries/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeResponse(t, rec)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestListEntriesPagination(t *testing.T) {
	store := newFakeEntryStore()
	store.listed = []models.Entry{{ID: "a"}, {ID: "b"}}
	g := newTestGateway(&fakeAnswerer{}, store, &fakeMaintenance{}, nil)

	rec := doRequest(g, "GET", "/api/v1/entries?limit=2&offset=4", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 2, resp.Meta.Total)
	assert.Equal(t, 2, resp.Meta.Limit)
	assert.Equal(t, 4, resp.Meta.Offset)
	assert.True(t, resp.Meta.HasMore)
}

func TestStartMaintenanceCoalesces(t *testing.T) {
	running := &models.EmbeddingJob{ID: "j1", Status: models.JobRunning, Collection: "default"}
	maintenance := &fakeMaintenance{job: running, runErr: pipeline.ErrJobAlreadyRunning}
	g := newTestGateway(&fakeAnswerer{}, newFakeEntryStore(), maintenance, nil)

	rec := doRequest(g, "POST", "/api/v1/collections/default/embeddings", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	assert.True(t, resp.Success)

	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var job models.EmbeddingJob
	require.NoError(t, json.Unmarshal(data, &job))
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, models.JobRunning, job.Status)
}

func TestJobStatusNotFound(t *testing.T) {
	maintenance := &fakeMaintenance{jobErr: pipeline.ErrJobNotFound}
	g := newTestGateway(&fakeAnswerer{}, newFakeEntryStore(), maintenance, nil)

	rec := doRequest(g, "GET", "/api/v1/jobs/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStats(t *testing.T) {
	store := newFakeEntryStore()
	store.stats = &models.CollectionStats{TotalEntries: 10, EmbeddedEntries: 8, Collections: []string{"default"}}
	g := newTestGateway(&fakeAnswerer{}, store, &fakeMaintenance{}, nil)

	rec := doRequest(g, "GET", "/api/v1/embeddings/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var stats models.CollectionStats
	require.NoError(t, json.Unmarshal(data, &stats))
	assert.Equal(t, 10, stats.TotalEntries)
	assert.Equal(t, 8, stats.EmbeddedEntries)
}

func TestRateLimitsEndpoint(t *testing.T) {
	g := newTestGateway(&fakeAnswerer{}, newFakeEntryStore(), &fakeMaintenance{}, nil)

	rec := doRequest(g, "GET", "/api/v1/rate-limits", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data, err := json.Marshal(resp.Data)
	require.NoError(t, err)
	var st ratelimit.Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, 45, st.RequestsPerMinute)
	assert.Equal(t, 200000, st.TokensPerMinute)
	assert.Zero(t, st.RequestsUsed)
}

func TestHealthEndpoint(t *testing.T) {
	g := newTestGateway(&fakeAnswerer{}, newFakeEntryStore(), &fakeMaintenance{}, nil)

	rec := doRequest(g, "GET", "/api/v1/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeResponse(t, rec).Success)
}

func TestHealthEndpointUnhealthy(t *testing.T) {
	g := newTestGateway(&fakeAnswerer{}, newFakeEntryStore(), &fakeMaintenance{}, errors.New("connection refused"))

	rec := doRequest(g, "GET", "/api/v1/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, decodeResponse(t, rec).Success)
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	g := newTestGateway(&fakeAnswerer{resp: &models.QuestionResponse{Source: models.SourceExternal, Answer: "a"}}, newFakeEntryStore(), &fakeMaintenance{}, nil)

	doRequest(g, "POST", "/api/v1/questions", models.QuestionRequest{Question: "q"})
	rec := doRequest(g, "GET", "/api/v1/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	resp := decodeResponse(t, rec)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.GreaterOrEqual(t, data["requests_total"].(float64), float64(1))
}
