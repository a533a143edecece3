package sales

import (
	"errors"
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
	r.Get("/{id}", h.Get)
	r.Post("/{id}/returns", h.CreateReturn)
}

type invoiceItemRequest struct {
	ProductID *int64 `json:"productId"`
	Name      string `json:"name" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
	UnitPrice string `json:"unitPrice" validate:"required"`
}

type createInvoiceRequest struct {
	Type        string               `json:"invoiceType"`
	PaymentType string               `json:"paymentType"`
	CustomerID  *int64               `json:"customerId"`
	Date        string               `json:"date" validate:"required"`
	Discount    string               `json:"discount"`
	PaidAmount  string               `json:"paidAmount"`
	Items       []invoiceItemRequest `json:"items" validate:"required,min=1,dive"`
}

type returnItemRequest struct {
	ProductID int64 `json:"productId" validate:"required"`
	Quantity  int64 `json:"quantity" validate:"required,gt=0"`
}

type createReturnRequest struct {
	Amount string              `json:"amount" validate:"required"`
	Date   string              `json:"date" validate:"required"`
	Notes  string              `json:"notes"`
	Items  []returnItemRequest `json:"items" validate:"omitempty,dive"`
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

// respondSaleError maps the sale-specific typed errors before falling back
// to the shared mapping.
func respondSaleError(w http.ResponseWriter, err error) {
	var stockErr *InsufficientStockError
	if errors.As(err, &stockErr) {
		httpx.Problem(w, http.StatusConflict, "Insufficient Stock", stockErr.Error())
		return
	}
	var retErr *ReturnExceedsRemainingError
	if errors.As(err, &retErr) {
		httpx.Problem(w, http.StatusBadRequest, "Return Exceeds Remaining", retErr.Error())
		return
	}
	httpx.RespondError(w, err)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: InvoiceStatus(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		filter.Offset, _ = strconv.Atoi(raw)
	}
	invoices, err := h.service.ListInvoices(r.Context(), filter)
	if err != nil {
		h.logger.Error("list invoices", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": invoices})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, invoice)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createInvoiceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	discount, err := parseAmount(req.Discount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "discount must be a decimal string")
		return
	}
	paid, err := parseAmount(req.PaidAmount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "paidAmount must be a decimal string")
		return
	}
	items := make([]ItemInput, 0, len(req.Items))
	for _, ir := range req.Items {
		price, err := parseAmount(ir.UnitPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unitPrice must be a decimal string")
			return
		}
		items = append(items, ItemInput{
			ProductID: ir.ProductID,
			Name:      ir.Name,
			Quantity:  ir.Quantity,
			UnitPrice: price,
		})
	}
	actor := shared.ActorFromContext(r.Context())
	invoice, err := h.service.CreateInvoice(r.Context(), CreateInvoiceCommand{
		Type:        req.Type,
		PaymentType: req.PaymentType,
		CustomerID:  req.CustomerID,
		Date:        date,
		Discount:    discount,
		PaidAmount:  paid,
		Items:       items,
	}, actor)
	if err != nil {
		h.logger.Error("create invoice", slog.Any("error", err))
		respondSaleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, invoice)
}

func (h *Handler) CreateReturn(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var req createReturnRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "amount must be a decimal string")
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return
	}
	items := make([]ReturnItemInput, 0, len(req.Items))
	for _, ir := range req.Items {
		items = append(items, ReturnItemInput{ProductID: ir.ProductID, Quantity: ir.Quantity})
	}
	actor := shared.ActorFromContext(r.Context())
	ret, err := h.service.CreateReturn(r.Context(), CreateReturnCommand{
		InvoiceID: invoiceID,
		Amount:    amount,
		Date:      date,
		Notes:     req.Notes,
		Items:     items,
	}, actor)
	if err != nil {
		h.logger.Error("create return", slog.Int64("invoice_id", invoiceID), slog.Any("error", err))
		respondSaleError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}
