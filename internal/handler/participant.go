package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/secret-santa/internal/apperror"
	"github.com/sakif/secret-santa/internal/model"
	"github.com/sakif/secret-santa/internal/service"
)

// Roster is the organiser's view of the participant list.
// Implemented by *service.ParticipantService.
type Roster interface {
	Add(ctx context.Context, name, wishlist, address string) (*model.Participant, error)
	Get(ctx context.Context, id string) (*model.Participant, error)
	List(ctx context.Context) ([]model.Participant, error)
	Update(ctx context.Context, id, name, wishlist, address string) (*model.Participant, error)
	Delete(ctx context.Context, id string) error
	ImportCSV(ctx context.Context, r io.Reader) (*service.ImportResult, error)
}

// maxUploadBytes bounds the multipart form for CSV imports.
const maxUploadBytes = service.MaxImportBytes + 64<<10

// ParticipantHandler serves /api/admin/participants.
type ParticipantHandler struct {
	roster Roster
	logger *slog.Logger
}

func NewParticipantHandler(roster Roster, logger *slog.Logger) *ParticipantHandler {
	return &ParticipantHandler{roster: roster, logger: logger}
}

type participantRequest struct {
	Name     string `json:"name"`
	Wishlist string `json:"wishlist"`
	Address  string `json:"address"`
}

// HandleList returns the roster in the order people were added.
//
// HTTP: GET /api/admin/participants
func (h *ParticipantHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	participants, err := h.roster.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participants)
}

// HandleCreate adds one participant.
//
// HTTP: POST /api/admin/participants
// BODY: {"name": "Alice", "wishlist": "books", "address": "1 Elm St"}
func (h *ParticipantHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.roster.Add(r.Context(), req.Name, req.Wishlist, req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// HTTP: GET /api/admin/participants/{id}
func (h *ParticipantHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	p, err := h.roster.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpdate replaces a participant's name, wishlist and address. A round
// that is already drawn keeps the values it was drawn with.
//
// HTTP: PUT /api/admin/participants/{id}
func (h *ParticipantHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.roster.Update(r.Context(), chi.URLParam(r, "id"), req.Name, req.Wishlist, req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HTTP: DELETE /api/admin/participants/{id}
func (h *ParticipantHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.roster.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleImport merges a CSV spreadsheet export into the roster.
//
// HTTP: POST /api/admin/participants/import
// BODY: multipart/form-data with the file in field "file", or a raw text/csv body.
func (h *ParticipantHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, apperror.ValidationFailed("file", "file is too large"))
				return
			}
			writeError(w, apperror.ValidationFailed("file", "invalid multipart form"))
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			writeError(w, apperror.ValidationFailed("file", `form field "file" is required`))
			return
		}
		defer file.Close()
		src = file
	}

	result, err := h.roster.ImportCSV(r.Context(), src)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
