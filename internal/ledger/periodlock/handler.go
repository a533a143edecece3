package periodlock

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bi-platform/bi-ledger/internal/platform/httpx"
	"github.com/bi-platform/bi-ledger/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.Get)
	r.Put("/", h.Set)
}

type lockResponse struct {
	PeriodLockBefore *string `json:"periodLockBefore"`
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cutoff, err := h.service.Get(r.Context())
	if err != nil {
		h.logger.Error("get period lock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	var value *string
	if cutoff != nil {
		formatted := cutoff.Format(dateLayout)
		value = &formatted
	}
	httpx.JSON(w, http.StatusOK, lockResponse{PeriodLockBefore: value})
}

func (h *Handler) Set(w http.ResponseWriter, r *http.Request) {
	var req lockResponse
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var cutoff *time.Time
	if req.PeriodLockBefore != nil && *req.PeriodLockBefore != "" {
		parsed, err := time.Parse(dateLayout, *req.PeriodLockBefore)
		if err != nil {
			httpx.RespondError(w, shared.ErrValidation)
			return
		}
		cutoff = &parsed
	}
	if err := h.service.Set(r.Context(), cutoff); err != nil {
		h.logger.Error("set period lock", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, req)
}
