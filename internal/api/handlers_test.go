package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradetrainer/internal/content"
	"tradetrainer/internal/domain"
	"tradetrainer/internal/performance"
	"tradetrainer/internal/program"
	programstub "tradetrainer/internal/program/stub"
	"tradetrainer/internal/session"
	"tradetrainer/internal/storage/memory"
)

const trader = "Wallet1"

type testServer struct {
	router  *gin.Engine
	program *programstub.Client
	content *content.MemoryFetcher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()

	prog := programstub.NewClient("Authority1")
	fetcher := content.NewMemoryFetcher()
	agg := performance.NewAggregator(memory.NewSettlementStore(), memory.NewPerformanceStore(), logger)
	manager := session.NewManager(context.Background(), session.Options{
		Program:  prog,
		Content:  fetcher,
		Store:    memory.NewKVStore(),
		Recorder: agg,
		Logger:   logger,
	}, nil)

	router := gin.New()
	RegisterRoutes(router.Group("/api/v1"), NewHandler(manager, agg, logger))
	return &testServer{router: router, program: prog, content: fetcher}
}

func (s *testServer) addExercise(t *testing.T, cid string) string {
	t.Helper()
	acc, err := s.program.CreateExercise(context.Background(), program.CreateExerciseParams{CID: cid, ValidationsCapacity: 5})
	require.NoError(t, err)
	s.content.PutChart(cid, &domain.Chart{
		Candles:  []domain.Candle{{Time: 1, Close: 100}},
		Position: domain.Position{Direction: domain.DirectionLong, TakeProfit: 0.1, StopLoss: 0.05, PostBars: 5},
	})
	return acc.PublicKey
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, "/api/v1/traders/"+trader+path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func TestLoadValidateAndHistory(t *testing.T) {
	srv := newTestServer(t)
	pk := srv.addExercise(t, "QmA")

	w, body := srv.do(t, http.MethodPost, "/session/load", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	exercise := body["exercise"].(map[string]interface{})
	assert.Equal(t, "QmA", exercise["cid"])
	assert.Equal(t, pk, exercise["public_key"])
	bar := body["bar"].(map[string]interface{})
	assert.InDelta(t, 110.0, bar["takeProfitPrice"], 1e-9)

	// price above take-profit clamps to +100
	w, body = srv.do(t, http.MethodPost, "/session/validate", ValidateRequest{Price: ptr(500.0)})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	item := body["item"].(map[string]interface{})
	assert.Equal(t, "checking", item["state"])
	assert.Equal(t, 100.0, item["validation"])

	w, body = srv.do(t, http.MethodGet, "/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, body["count"])

	w, body = srv.do(t, http.MethodGet, "/session", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, body["exercise"])
	assert.Equal(t, true, body["load_new_exercise"])
}

func TestValidateErrors(t *testing.T) {
	srv := newTestServer(t)

	w, _ := srv.do(t, http.MethodPost, "/session/validate", ValidateRequest{Percent: ptr(10.0)})
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = srv.do(t, http.MethodPost, "/session/validate", ValidateRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = srv.do(t, http.MethodPost, "/session/validate", ValidateRequest{Percent: ptr(1.0), Price: ptr(1.0)})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = srv.do(t, http.MethodPost, "/session/load", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSkipAndPerformance(t *testing.T) {
	srv := newTestServer(t)
	srv.addExercise(t, "QmA")

	w, body := srv.do(t, http.MethodPost, "/session/skip", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, body["item"])

	w, _ = srv.do(t, http.MethodPost, "/session/load", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body = srv.do(t, http.MethodPost, "/session/skip", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "skipped", body["item"].(map[string]interface{})["state"])

	w, body = srv.do(t, http.MethodGet, "/performance", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1.0, body["attempts"])
	assert.Equal(t, 1.0, body["skipped"])
}

func TestPriceMapping(t *testing.T) {
	srv := newTestServer(t)
	srv.addExercise(t, "QmA")

	w, _ := srv.do(t, http.MethodGet, "/session/price?percent=50", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = srv.do(t, http.MethodPost, "/session/load", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w, body := srv.do(t, http.MethodGet, "/session/price?percent=50", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, 105.0, body["price"], 1e-9)

	w, body = srv.do(t, http.MethodGet, "/session/price?percent=-250", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, -100.0, body["percent"])
	assert.InDelta(t, 95.0, body["price"], 1e-9)

	w, body = srv.do(t, http.MethodGet, "/session/percent?price=97.5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.InDelta(t, -50.0, body["percent"], 1e-9)

	w, _ = srv.do(t, http.MethodGet, "/session/price?percent=abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMapPriceRejectsNonFinite(t *testing.T) {
	srv := newTestServer(t)
	srv.addExercise(t, "QmA")

	w, _ := srv.do(t, http.MethodPost, "/session/load", nil)
	require.Equal(t, http.StatusOK, w.Code)

	for _, price := range []string{"NaN", "Inf", "-Inf", "+Inf"} {
		t.Run(price, func(t *testing.T) {
			w, body := srv.do(t, http.MethodGet, "/session/percent?price="+url.QueryEscape(price), nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, body["error"], "non-finite")
		})
	}

	w, body := srv.do(t, http.MethodGet, "/session/percent?price=110", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 110.0, body["price"])
	assert.InDelta(t, 100.0, body["percent"], 1e-9)
}

func TestReloadTraderUnknown(t *testing.T) {
	srv := newTestServer(t)

	w, _ := srv.do(t, http.MethodPost, "/account/reload", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 3, srv.program.Calls("ReloadTraderAccount"))
}

func ptr[T any](v T) *T { return &v }
