package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/secret-santa/internal/apperror"
	"github.com/sakif/secret-santa/internal/handler"
	"github.com/sakif/secret-santa/internal/model"
)

type mockExporter struct {
	key string
	err error
	got *model.RoundSummary
}

func (m *mockExporter) ExportCodes(_ context.Context, s *model.RoundSummary) (string, error) {
	m.got = s
	return m.key, m.err
}

func (m *mockExporter) Bucket() string { return "gifts" }

func testSummary() *model.RoundSummary {
	return &model.RoundSummary{
		RoundID: "r1",
		Pairs: []model.Pair{
			{Giver: "Alice", Receiver: "Bob", Code: "AAAAaaaa"},
			{Giver: "Bob", Receiver: "Alice", Code: `BB"bb"11`},
		},
	}
}

func roundRouter(h *handler.RoundHandler) http.Handler {
	r := chi.NewRouter()
	r.Post("/round", h.HandleGenerate)
	r.Get("/round", h.HandleStatus)
	r.Delete("/round", h.HandleReset)
	r.Get("/round/codes", h.HandleCodes)
	r.Get("/round/codes.csv", h.HandleCodesCSV)
	r.Post("/round/codes/export", h.HandleExport)
	r.Get("/round/codes/{giver}/qr.png", h.HandleQR)
	return r
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, nil))
	return rr
}

func TestRoundHandler_Generate(t *testing.T) {
	ex := &mockExchange{summary: testSummary()}
	rr := serve(roundRouter(handler.NewRoundHandler(ex, nil, "", testLogger())), http.MethodPost, "/round")

	assert.Equal(t, http.StatusCreated, rr.Code)
	var got model.RoundSummary
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, "r1", got.RoundID)
	assert.Len(t, got.Pairs, 2)

	for _, c := range []struct {
		err    error
		status int
	}{
		{apperror.InsufficientParticipants(1), http.StatusUnprocessableEntity},
		{apperror.GenerationFailed(5000), http.StatusServiceUnavailable},
	} {
		ex := &mockExchange{err: c.err}
		rr := serve(roundRouter(handler.NewRoundHandler(ex, nil, "", testLogger())), http.MethodPost, "/round")
		assert.Equal(t, c.status, rr.Code)
	}
}

func TestRoundHandler_StatusAndCodes(t *testing.T) {
	ex := &mockExchange{status: model.RoundStatus{RoundID: "r1", Total: 2, Revealed: 1}}
	router := roundRouter(handler.NewRoundHandler(ex, nil, "", testLogger()))

	rr := serve(router, http.MethodGet, "/round")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"revealed":1`)

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/round/codes").Code)
	ex.summary = testSummary()
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/round/codes").Code)
}

func TestRoundHandler_Reset(t *testing.T) {
	ex := &mockExchange{}
	router := roundRouter(handler.NewRoundHandler(ex, nil, "", testLogger()))

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodDelete, "/round").Code)
	assert.Equal(t, 1, ex.reset)
	assert.Equal(t, 0, ex.clearAll)

	assert.Equal(t, http.StatusNoContent, serve(router, http.MethodDelete, "/round?participants=true").Code)
	assert.Equal(t, 1, ex.clearAll)

	ex.err = errors.New("disk I/O error")
	assert.Equal(t, http.StatusInternalServerError, serve(router, http.MethodDelete, "/round").Code)
}

func TestRoundHandler_CodesCSV(t *testing.T) {
	ex := &mockExchange{summary: testSummary()}
	rr := serve(roundRouter(handler.NewRoundHandler(ex, nil, "", testLogger())), http.MethodGet, "/round/codes.csv")

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="secret_santa_codes.csv"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "giver,code\n\"Alice\",\"AAAAaaaa\"\n\"Bob\",\"BB\"\"bb\"\"11\"", rr.Body.String())
}

func TestRoundHandler_Export(t *testing.T) {
	ex := &mockExchange{summary: testSummary()}

	rr := serve(roundRouter(handler.NewRoundHandler(ex, nil, "", testLogger())), http.MethodPost, "/round/codes/export")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	exp := &mockExporter{key: "rounds/r1/secret_santa_codes.csv"}
	rr = serve(roundRouter(handler.NewRoundHandler(ex, exp, "", testLogger())), http.MethodPost, "/round/codes/export")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"bucket":"gifts","key":"rounds/r1/secret_santa_codes.csv"}`, rr.Body.String())
	assert.Equal(t, "r1", exp.got.RoundID)

	exp.err = errors.New("AccessDenied")
	rr = serve(roundRouter(handler.NewRoundHandler(ex, exp, "", testLogger())), http.MethodPost, "/round/codes/export")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.NotContains(t, rr.Body.String(), "AccessDenied")
}

func TestRoundHandler_QR(t *testing.T) {
	ex := &mockExchange{summary: testSummary()}
	router := roundRouter(handler.NewRoundHandler(ex, nil, "https://santa.example.com", testLogger()))

	rr := serve(router, http.MethodGet, "/round/codes/Alice/qr.png")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "image/png", rr.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(rr.Body.Bytes(), []byte("\x89PNG")))

	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/round/codes/Zed/qr.png").Code)

	// Without a configured public URL the link is built from the request.
	router = roundRouter(handler.NewRoundHandler(ex, nil, "", testLogger()))
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/round/codes/Bob/qr.png").Code)
}

func TestRoundHandler_QREscapedName(t *testing.T) {
	ex := &mockExchange{summary: &model.RoundSummary{
		RoundID: "r1",
		Pairs: []model.Pair{
			{Giver: "O'Brien", Receiver: "Zoë Ng", Code: "AAAAaaaa"},
			{Giver: "Zoë Ng", Receiver: "Ada 100%", Code: "BBBBbbbb"},
			{Giver: "Ada 100%", Receiver: "O'Brien", Code: "CCCCcccc"},
		},
	}}
	router := roundRouter(handler.NewRoundHandler(ex, nil, "https://santa.example.com", testLogger()))

	for _, target := range []string{
		"/round/codes/O%27Brien/qr.png",
		"/round/codes/Zo%C3%AB%20Ng/qr.png",
		"/round/codes/Ada%20100%25/qr.png",
	} {
		rr := serve(router, http.MethodGet, target)
		assert.Equal(t, http.StatusOK, rr.Code, target)
		assert.Equal(t, "image/png", rr.Header().Get("Content-Type"), target)
	}
}
