package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/toeic4all/question-api/pkg/limiter"
	"github.com/toeic4all/question-api/pkg/query"
	"github.com/toeic4all/question-api/pkg/question"
)

// stubService serves canned results so handler behavior can be exercised
// without a document store.
type stubService struct {
	part5        []question.Part5Question
	answer       *question.Answer
	combinations [][]string
	count        int64
	part5Calls   int
}

func (s *stubService) ListPart5(ctx context.Context, _ query.Part5Filter, _, _ int) ([]question.Part5Question, error) {
	s.part5Calls++
	return s.part5, nil
}

func (s *stubService) CountPart5(ctx context.Context, _ query.Part5Filter) (int64, error) {
	return s.count, nil
}

func (s *stubService) Part5Answer(ctx context.Context, _ string) (*question.Answer, error) {
	return s.answer, nil
}

func (s *stubService) Part5Categories(ctx context.Context) ([]string, error) {
	return []string{"grammar", "vocabulary"}, nil
}

func (s *stubService) Part5Subtypes(ctx context.Context, _ string) ([]string, error) {
	return []string{"tense"}, nil
}

func (s *stubService) Part5Difficulties(ctx context.Context) ([]string, error) {
	return []string{"Easy", "Medium", "Hard"}, nil
}

func (s *stubService) ListPart6Sets(ctx context.Context, _ query.Part6Filter, _, _ int) ([]question.Part6Set, error) {
	return nil, nil
}

func (s *stubService) CountPart6Sets(ctx context.Context, _ query.Part6Filter) (int64, error) {
	return s.count, nil
}

func (s *stubService) Part6Answer(ctx context.Context, _ string, _ int) (*question.Answer, error) {
	return s.answer, nil
}

func (s *stubService) Part6PassageTypes(ctx context.Context) ([]string, error) {
	return []string{"email", "notice"}, nil
}

func (s *stubService) Part6Difficulties(ctx context.Context, _ string) ([]string, error) {
	return []string{"Easy", "Medium"}, nil
}

func (s *stubService) ListPart7Sets(ctx context.Context, _ query.Part7Filter, _, _ int) ([]question.Part7Set, error) {
	return nil, nil
}

func (s *stubService) CountPart7Sets(ctx context.Context, _ query.Part7Filter) (int64, error) {
	return s.count, nil
}

func (s *stubService) Part7Answer(ctx context.Context, _ string, _ int) (*question.Answer, error) {
	return s.answer, nil
}

func (s *stubService) Part7SetTypes(ctx context.Context) ([]string, error) {
	return []string{"Double", "Single", "Triple"}, nil
}

func (s *stubService) Part7PassageTypes(ctx context.Context, _ string) ([]string, error) {
	return []string{"Article", "Email"}, nil
}

func (s *stubService) Part7PassageCombinations(ctx context.Context, _ string) ([][]string, error) {
	return s.combinations, nil
}

func (s *stubService) Part7Difficulties(ctx context.Context, _ string) ([]string, error) {
	return []string{"Hard"}, nil
}

type stubStatus struct{}

func (stubStatus) ServerStatus(ctx context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"status": "online", "ok": 1.0}, nil
}

func newTestServer(t *testing.T, raw query.Service) (*Server, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	c := DefaultConfig()
	c.Debug = true
	return &Server{
		c:        c,
		rdb:      client,
		queries:  query.NewCachedService(raw, client),
		limiter:  limiter.NewMemoryLimiter(c.RateLimitMax, c.RateLimitWindow()),
		registry: prometheus.NewRegistry(),
		status:   stubStatus{},
	}, mr
}

func get(t *testing.T, router http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestListPart5Endpoint(t *testing.T) {
	raw := &stubService{part5: []question.Part5Question{{
		ID:           primitive.NewObjectID(),
		Part:         5,
		Difficulty:   "Medium",
		QuestionText: "The report ___ by Friday.",
	}}}
	srv, _ := newTestServer(t, raw)
	router := srv.Router()

	rec := get(t, router, "/api/v1/questions/part5?difficulty=Medium&limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Limit"))

	body := decode(t, rec)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, float64(5), body["limit"])
	assert.Equal(t, float64(1), body["page"])
}

func TestCountEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{count: 321})
	rec := get(t, srv.Router(), "/api/v1/questions/part5/count")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(321), decode(t, rec)["total"])
}

func TestAnswerEndpointNotFound(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{})
	rec := get(t, srv.Router(), "/api/v1/questions/part5/"+primitive.NewObjectID().Hex()+"/answer")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAnswerEndpointFound(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{answer: &question.Answer{
		ID:          primitive.NewObjectID(),
		Answer:      "B",
		Explanation: "Present simple matches the schedule sense.",
	}})
	rec := get(t, srv.Router(), "/api/v1/questions/part5/"+primitive.NewObjectID().Hex()+"/answer")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "B", decode(t, rec)["answer"])
}

func TestSetAnswerRejectsNonNumericSeq(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{})
	rec := get(t, srv.Router(), "/api/v1/questions/part6/abc/questions/one/answer")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSkipCacheBypassesStore(t *testing.T) {
	raw := &stubService{part5: []question.Part5Question{{ID: primitive.NewObjectID()}}}
	srv, mr := newTestServer(t, raw)
	router := srv.Router()

	get(t, router, "/api/v1/questions/part5?skip_cache=true")
	get(t, router, "/api/v1/questions/part5?skip_cache=true")

	assert.Equal(t, 2, raw.part5Calls)
	assert.Empty(t, mr.Keys())
}

func TestPart7MetadataEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{})
	router := srv.Router()

	rec := get(t, router, "/api/v1/questions/part7/set-types")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"Double", "Single", "Triple"}, decode(t, rec)["set_types"])

	rec = get(t, router, "/api/v1/questions/part7/passage-types?set_type=Double")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"Article", "Email"}, decode(t, rec)["passage_types"])

	rec = get(t, router, "/api/v1/questions/part7/difficulties")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"Hard"}, decode(t, rec)["difficulties"])

	rec = get(t, router, "/api/v1/questions/part6/difficulties?passage_type=Notice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []interface{}{"Easy", "Medium"}, decode(t, rec)["difficulties"])
}

func TestPassageCombinationsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{
		combinations: [][]string{{"Email", "Letter"}},
	})
	router := srv.Router()

	rec := get(t, router, "/api/v1/questions/part7/passage-combinations?set_type=Double")
	require.Equal(t, http.StatusOK, rec.Code)
	combos := decode(t, rec)["combinations"].([]interface{})
	assert.Len(t, combos, 1)

	// Single is not a combination set type.
	rec = get(t, router, "/api/v1/questions/part7/passage-combinations?set_type=Single")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = get(t, router, "/api/v1/questions/part7/passage-combinations")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPassageCombinationsFallback(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{})
	rec := get(t, srv.Router(), "/api/v1/questions/part7/passage-combinations?set_type=Triple")

	require.Equal(t, http.StatusOK, rec.Code)
	combos := decode(t, rec)["combinations"].([]interface{})
	assert.NotEmpty(t, combos, "an empty store falls back to the stock combinations")
	first := combos[0].([]interface{})
	assert.Len(t, first, 3, "Triple combinations have three passage types")
}

func TestClearCacheEndpoint(t *testing.T) {
	raw := &stubService{part5: []question.Part5Question{{ID: primitive.NewObjectID()}}}
	srv, _ := newTestServer(t, raw)
	router := srv.Router()

	// Warm the cache first.
	get(t, router, "/api/v1/questions/part5")

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/cache/part5", nil)
	req.RemoteAddr = "10.0.0.1:5000"
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "part5", body["resource"])
	assert.Equal(t, float64(1), body["cleared"])

	// A second clear finds nothing, and the lock has been released.
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/admin/cache/part5", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decode(t, rec)["cleared"])
}

func TestClearCacheUnknownResource(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{})
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/admin/cache/part9", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{})
	rec := get(t, srv.Router(), "/api/v1/admin/system/health")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "online", body["status"])
	assert.Equal(t, Version, body["version"])
	assert.Contains(t, body, "uptime_seconds")
}

func TestDBStatusEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{})
	rec := get(t, srv.Router(), "/api/v1/admin/system/db-status")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "online", decode(t, rec)["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{})
	rec := get(t, srv.Router(), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRootEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{})
	rec := get(t, srv.Router(), "/")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "online", decode(t, rec)["status"])
}

func TestErrorsHiddenWithoutDebug(t *testing.T) {
	srv, _ := newTestServer(t, &stubService{})
	srv.c.Debug = false
	rec := get(t, srv.Router(), "/api/v1/questions/part6/abc/questions/one/answer")

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusText(http.StatusBadRequest), decode(t, rec)["error"])
}

func TestUptimeAdvances(t *testing.T) {
	h := newHandlers(nil, nil, stubStatus{}, false)
	h.started = time.Now().Add(-90 * time.Second)

	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/system/health", nil))

	body := decode(t, rec)
	assert.GreaterOrEqual(t, body["uptime_seconds"], float64(90))
}
