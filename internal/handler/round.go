package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/secret-santa/internal/export"
	"github.com/sakif/secret-santa/internal/model"
)

// Exchange is the organiser's control over the round.
// Implemented by *service.ExchangeService.
type Exchange interface {
	Generate(ctx context.Context) (*model.RoundSummary, error)
	Status() model.RoundStatus
	Summary() (*model.RoundSummary, error)
	Pair(giver string) (*model.Pair, error)
	Reset(ctx context.Context) error
	ClearAll(ctx context.Context) error
}

// CodeExporter copies the distribution list somewhere durable.
// Implemented by *export.S3Exporter.
type CodeExporter interface {
	ExportCodes(ctx context.Context, summary *model.RoundSummary) (string, error)
	Bucket() string
}

// RoundHandler serves /api/admin/round.
type RoundHandler struct {
	exchange  Exchange
	exporter  CodeExporter // nil when object storage is not configured
	publicURL string       // base of reveal links; derived from the request if empty
	logger    *slog.Logger
}

func NewRoundHandler(exchange Exchange, exporter CodeExporter, publicURL string, logger *slog.Logger) *RoundHandler {
	return &RoundHandler{exchange: exchange, exporter: exporter, publicURL: publicURL, logger: logger}
}

// HandleGenerate draws a new round from the current roster. Any previous
// round, and who has revealed in it, is discarded.
//
// HTTP: POST /api/admin/round
// 201 with every giver's receiver and code; 422 insufficient_participants;
// 503 generation_failed (safe to retry).
func (h *RoundHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	summary, err := h.exchange.Generate(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusCreated, summary)
}

// HandleStatus reports who has revealed, without receivers or codes.
//
// HTTP: GET /api/admin/round
func (h *RoundHandler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.exchange.Status())
}

// HandleCodes returns the distribution list again, e.g. after a page reload.
//
// HTTP: GET /api/admin/round/codes
func (h *RoundHandler) HandleCodes(w http.ResponseWriter, _ *http.Request) {
	summary, err := h.exchange.Summary()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, summary)
}

// HandleReset discards the round. With ?participants=true the roster goes too.
//
// HTTP: DELETE /api/admin/round[?participants=true]
func (h *RoundHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	all, _ := strconv.ParseBool(r.URL.Query().Get("participants"))

	var err error
	if all {
		err = h.exchange.ClearAll(r.Context())
	} else {
		err = h.exchange.Reset(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleCodesCSV downloads the giver/code list.
//
// HTTP: GET /api/admin/round/codes.csv
func (h *RoundHandler) HandleCodesCSV(w http.ResponseWriter, _ *http.Request) {
	summary, err := h.exchange.Summary()
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.CodesFilename))
	w.Header().Set("Cache-Control", "no-store")
	if err := export.WriteCodesCSV(w, summary.Pairs); err != nil {
		h.logger.Error("writing codes CSV", slog.String("error", err.Error()))
	}
}

// HandleExport uploads the giver/code list to the configured bucket.
//
// HTTP: POST /api/admin/round/codes/export
func (h *RoundHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "export_unavailable",
			Message: "object storage is not configured",
		})
		return
	}
	summary, err := h.exchange.Summary()
	if err != nil {
		writeError(w, err)
		return
	}

	key, err := h.exporter.ExportCodes(r.Context(), summary)
	if err != nil {
		h.logger.Error("exporting codes", slog.String("roundID", summary.RoundID), slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadGateway, ErrorResponse{
			Error:   "export_failed",
			Message: "could not upload the codes file",
		})
		return
	}
	h.logger.Info("codes exported", slog.String("bucket", h.exporter.Bucket()), slog.String("key", key))
	writeJSON(w, http.StatusOK, map[string]string{"bucket": h.exporter.Bucket(), "key": key})
}

// HandleQR renders a scannable card that opens the reveal page with the
// giver's name and code filled in.
//
// HTTP: GET /api/admin/round/codes/{giver}/qr.png
func (h *RoundHandler) HandleQR(w http.ResponseWriter, r *http.Request) {
	pair, err := h.exchange.Pair(giverParam(r))
	if err != nil {
		writeError(w, err)
		return
	}

	png, err := export.QRCode(h.baseURL(r), pair.Giver, pair.Code, export.QRSize)
	if err != nil {
		h.logger.Error("rendering QR code", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "QR generation failed",
		})
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(png)
}

// giverParam decodes the {giver} segment. chi matches on RawPath when the
// request has one, leaving escapes such as %27 in the parameter.
func giverParam(r *http.Request) string {
	giver := chi.URLParam(r, "giver")
	if r.URL.RawPath == "" {
		return giver
	}
	if decoded, err := url.PathUnescape(giver); err == nil {
		return decoded
	}
	return giver
}

// baseURL prefers the configured public URL; otherwise it rebuilds one from
// the request, honouring X-Forwarded-Proto from a TLS-terminating proxy.
func (h *RoundHandler) baseURL(r *http.Request) string {
	if h.publicURL != "" {
		return h.publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + "/"
}
