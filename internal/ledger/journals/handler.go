package journals

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/bi-platform/bi-ledger/internal/platform/httpx"
	"github.com/bi-platform/bi-ledger/internal/shared"
)

const dateLayout = "2006-01-02"

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/reconcile", h.Reconcile)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
	r.Post("/{id}/post", h.Post)
}

type lineRequest struct {
	AccountID   int64  `json:"accountId" validate:"required"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Description string `json:"description"`
	CostCenter  string `json:"costCenter"`
}

type createEntryRequest struct {
	EntryDate     string        `json:"entryDate" validate:"required"`
	Description   string        `json:"description"`
	ReferenceType string        `json:"referenceType"`
	ReferenceID   *int64        `json:"referenceId"`
	Lines         []lineRequest `json:"lines" validate:"required,min=2,dive"`
}

type updateEntryRequest struct {
	EntryDate   *string       `json:"entryDate"`
	Description *string       `json:"description"`
	Lines       []lineRequest `json:"lines" validate:"omitempty,min=2,dive"`
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func toLineInputs(reqs []lineRequest) ([]LineInput, error) {
	lines := make([]LineInput, 0, len(reqs))
	for _, lr := range reqs {
		debit, err := parseAmount(lr.Debit)
		if err != nil {
			return nil, err
		}
		credit, err := parseAmount(lr.Credit)
		if err != nil {
			return nil, err
		}
		lines = append(lines, LineInput{
			AccountID:   lr.AccountID,
			Debit:       debit,
			Credit:      credit,
			Description: lr.Description,
			CostCenter:  lr.CostCenter,
		})
	}
	return lines, nil
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: EntryStatus(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		filter.Offset, _ = strconv.Atoi(raw)
	}
	entries, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list journal entries", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": entries})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse(dateLayout, req.EntryDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entryDate must be YYYY-MM-DD")
		return
	}
	lines, err := toLineInputs(req.Lines)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amounts must be decimal strings")
		return
	}
	actor := shared.ActorFromContext(r.Context())
	entry, err := h.service.CreateDraft(r.Context(), CreateDraftCommand{
		Date:          date,
		Description:   req.Description,
		ReferenceType: req.ReferenceType,
		ReferenceID:   req.ReferenceID,
		Lines:         lines,
	}, actor)
	if err != nil {
		h.logger.Error("create journal entry", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var req updateEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	cmd := UpdateDraftCommand{EntryID: id, Description: req.Description}
	if req.EntryDate != nil {
		date, err := time.Parse(dateLayout, *req.EntryDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entryDate must be YYYY-MM-DD")
			return
		}
		cmd.Date = &date
	}
	if req.Lines != nil {
		lines, err := toLineInputs(req.Lines)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amounts must be decimal strings")
			return
		}
		cmd.Lines = lines
	}
	actor := shared.ActorFromContext(r.Context())
	entry, err := h.service.UpdateDraft(r.Context(), cmd, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteDraft(r.Context(), id, actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Post(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	actor := shared.ActorFromContext(r.Context())
	entry, err := h.service.Post(r.Context(), id, actor)
	if err != nil {
		h.logger.Error("post journal entry", slog.Int64("entry_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	mismatches, err := h.service.Reconcile(r.Context())
	if err != nil {
		h.logger.Error("reconcile balances", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"balanced":   len(mismatches) == 0,
		"mismatches": mismatches,
	})
}
