package handler_test

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/secret-santa/internal/apperror"
	"github.com/sakif/secret-santa/internal/handler"
	"github.com/sakif/secret-santa/internal/model"
	"github.com/sakif/secret-santa/internal/service"
)

func participantRouter(roster *mockRoster) http.Handler {
	h := handler.NewParticipantHandler(roster, testLogger())
	r := chi.NewRouter()
	r.Get("/participants", h.HandleList)
	r.Post("/participants", h.HandleCreate)
	r.Post("/participants/import", h.HandleImport)
	r.Get("/participants/{id}", h.HandleGetByID)
	r.Put("/participants/{id}", h.HandleUpdate)
	r.Delete("/participants/{id}", h.HandleDelete)
	return r
}

func TestParticipantHandler_CRUD(t *testing.T) {
	roster := &mockRoster{}
	router := participantRouter(roster)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/participants",
		strings.NewReader(`{"name":"Alice","wishlist":"books","address":"1 Elm St"}`)))
	require.Equal(t, http.StatusCreated, rr.Code)
	var created model.Participant
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&created))
	assert.Equal(t, "p1", created.ID)
	assert.Equal(t, "books", created.Wishlist)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/participants", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	var list []model.Participant
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	assert.Len(t, list, 1)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/participants/p1", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/participants/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, "/participants/p1",
		strings.NewReader(`{"name":"Alicia","wishlist":"","address":""}`)))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, participantInput{id: "p1", name: "Alicia"}, roster.lastInput)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/participants/p1", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "p1", roster.lastInput.id)
}

func TestParticipantHandler_CreateValidation(t *testing.T) {
	roster := &mockRoster{err: apperror.ValidationFailed("name", "name \"Alice\" already exists")}
	rr := httptest.NewRecorder()
	participantRouter(roster).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/participants",
		strings.NewReader(`{"name":"Alice"}`)))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var body handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "validation_error", body.Error)
	assert.Equal(t, "name", body.Field)
}

func TestParticipantHandler_Import(t *testing.T) {
	const csvData = "Name,Wishlist\nAlice,books\nBob,socks\n"

	t.Run("multipart", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", "people.csv")
		require.NoError(t, err)
		_, _ = fw.Write([]byte(csvData))
		require.NoError(t, mw.Close())

		roster := &mockRoster{}
		req := httptest.NewRequest(http.MethodPost, "/participants/import", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := httptest.NewRecorder()
		participantRouter(roster).ServeHTTP(rr, req)

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		assert.Equal(t, csvData, roster.imported)
		var res service.ImportResult
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
		assert.Equal(t, 2, res.Imported)
	})

	t.Run("raw body", func(t *testing.T) {
		roster := &mockRoster{}
		req := httptest.NewRequest(http.MethodPost, "/participants/import", strings.NewReader(csvData))
		req.Header.Set("Content-Type", "text/csv")
		rr := httptest.NewRecorder()
		participantRouter(roster).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, csvData, roster.imported)
	})

	t.Run("missing file field", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("other", "x"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/participants/import", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := httptest.NewRecorder()
		participantRouter(&mockRoster{}).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("service rejects file", func(t *testing.T) {
		roster := &mockRoster{err: apperror.ValidationFailed("file", "no Name column found")}
		req := httptest.NewRequest(http.MethodPost, "/participants/import", strings.NewReader("email\nx@y.z\n"))
		rr := httptest.NewRecorder()
		participantRouter(roster).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, rr.Body.String(), "no Name column found")
	})
}
