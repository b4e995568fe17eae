package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/secret-santa/internal/model"
)

// Revealer is the participant-facing side of the exchange.
// Implemented by *service.ExchangeService.
type Revealer interface {
	Reveal(ctx context.Context, name, code string) (*model.RevealResult, error)
}

// RevealHandler serves the one public endpoint that touches the round.
type RevealHandler struct {
	exchange Revealer
	logger   *slog.Logger
}

func NewRevealHandler(exchange Revealer, logger *slog.Logger) *RevealHandler {
	return &RevealHandler{exchange: exchange, logger: logger}
}

type revealRequest struct {
	Name string `json:"name"`
	Code string `json:"code"`
}

// HandleReveal checks a giver's name and code and returns their receiver.
//
// HTTP: POST /api/reveal
// BODY: {"name": "Alice", "code": "Ab3dEf9h"}
//
// 200 with the receiver's name, wishlist and address; 404 name_not_found,
// 403 invalid_code (the attempt is not used up), 409 already_revealed.
func (h *RevealHandler) HandleReveal(w http.ResponseWriter, r *http.Request) {
	var req revealRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.exchange.Reveal(r.Context(), req.Name, req.Code)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, result)
}
