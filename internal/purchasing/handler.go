package purchasing

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
	r.Get("/stats", h.Stats)
	r.Get("/{id}", h.Get)
	r.Post("/{id}/prices", h.AddPrices)
	r.Post("/{id}/receive", h.Receive)
	r.Post("/{id}/selling-prices", h.AddSellingPrices)
}

type batchItemRequest struct {
	ProductID *int64 `json:"productId"`
	Name      string `json:"name" validate:"required"`
	Quantity  int64  `json:"quantity" validate:"required,gt=0"`
}

type createBatchRequest struct {
	SupplierID  *int64             `json:"supplierId"`
	WarehouseID *int64             `json:"warehouseId"`
	Items       []batchItemRequest `json:"items" validate:"required,min=1,dive"`
}

type itemPriceRequest struct {
	ItemID   int64  `json:"itemId" validate:"required"`
	UnitCost string `json:"unitCost" validate:"required"`
}

type addPricesRequest struct {
	Prices []itemPriceRequest `json:"prices" validate:"required,min=1,dive"`
}

type deviceRequest struct {
	BatchItemID      int64  `json:"batchItemId" validate:"required"`
	InspectionStatus string `json:"inspectionStatus"`
	Notes            string `json:"notes"`
}

type receiveRequest struct {
	WarehouseID *int64          `json:"warehouseId"`
	Devices     []deviceRequest `json:"devices" validate:"required,min=1,dive"`
}

type devicePriceRequest struct {
	DeviceID     int64  `json:"deviceId" validate:"required"`
	SellingPrice string `json:"sellingPrice" validate:"required"`
}

type addSellingPricesRequest struct {
	Prices []devicePriceRequest `json:"prices" validate:"required,min=1,dive"`
}

// itemView and batchView omit purchase costs for non-manager callers.
type itemView struct {
	ID               int64  `json:"id"`
	BatchID          int64  `json:"batchId"`
	ProductID        *int64 `json:"productId,omitempty"`
	Name             string `json:"name"`
	Quantity         int64  `json:"quantity"`
	ReceivedQuantity int64  `json:"receivedQuantity"`
}

type batchView struct {
	ID            int64       `json:"id"`
	Number        string      `json:"batchNumber"`
	SupplierID    *int64      `json:"supplierId,omitempty"`
	WarehouseID   *int64      `json:"warehouseId,omitempty"`
	Status        BatchStatus `json:"status"`
	TotalItems    int64       `json:"totalItems"`
	ReceivedItems int64       `json:"receivedItems"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
	Items         []itemView  `json:"items,omitempty"`
}

func viewBatch(b Batch, manager bool) any {
	if manager {
		return b
	}
	view := batchView{
		ID:            b.ID,
		Number:        b.Number,
		SupplierID:    b.SupplierID,
		WarehouseID:   b.WarehouseID,
		Status:        b.Status,
		TotalItems:    b.TotalItems,
		ReceivedItems: b.ReceivedItems,
		CreatedAt:     b.CreatedAt,
		UpdatedAt:     b.UpdatedAt,
	}
	for _, item := range b.Items {
		view.Items = append(view.Items, itemView{
			ID:               item.ID,
			BatchID:          item.BatchID,
			ProductID:        item.ProductID,
			Name:             item.Name,
			Quantity:         item.Quantity,
			ReceivedQuantity: item.ReceivedQuantity,
		})
	}
	return view
}

func respondBatchError(w http.ResponseWriter, err error) {
	var stateErr *InvalidStateTransitionError
	if errors.As(err, &stateErr) {
		httpx.Problem(w, http.StatusConflict, "Invalid State", stateErr.Error())
		return
	}
	httpx.RespondError(w, err)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Status: BatchStatus(r.URL.Query().Get("status"))}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		filter.Limit, _ = strconv.Atoi(raw)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		filter.Offset, _ = strconv.Atoi(raw)
	}
	batches, err := h.service.ListBatches(r.Context(), filter)
	if err != nil {
		h.logger.Error("list batches", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	manager := shared.ActorFromContext(r.Context()).IsManager()
	views := make([]any, 0, len(batches))
	for _, b := range batches {
		views = append(views, viewBatch(b, manager))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"data": views})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	batch, err := h.service.GetBatch(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	manager := shared.ActorFromContext(r.Context()).IsManager()
	httpx.JSON(w, http.StatusOK, viewBatch(batch, manager))
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.logger.Error("batch stats", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	items := make([]BatchItemInput, 0, len(req.Items))
	for _, ir := range req.Items {
		items = append(items, BatchItemInput{ProductID: ir.ProductID, Name: ir.Name, Quantity: ir.Quantity})
	}
	actor := shared.ActorFromContext(r.Context())
	batch, err := h.service.CreateBatch(r.Context(), CreateBatchCommand{
		SupplierID:  req.SupplierID,
		WarehouseID: req.WarehouseID,
		Items:       items,
	}, actor)
	if err != nil {
		h.logger.Error("create batch", slog.Any("error", err))
		respondBatchError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, viewBatch(batch, actor.IsManager()))
}

func (h *Handler) AddPrices(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var req addPricesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	prices := make([]ItemPriceInput, 0, len(req.Prices))
	for _, pr := range req.Prices {
		cost, err := decimal.NewFromString(pr.UnitCost)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unitCost must be a decimal string")
			return
		}
		prices = append(prices, ItemPriceInput{ItemID: pr.ItemID, UnitCost: cost})
	}
	actor := shared.ActorFromContext(r.Context())
	batch, err := h.service.AddPrices(r.Context(), AddPricesCommand{BatchID: id, Prices: prices}, actor)
	if err != nil {
		respondBatchError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewBatch(batch, actor.IsManager()))
}

func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	devices := make([]DeviceInput, 0, len(req.Devices))
	for _, dr := range req.Devices {
		devices = append(devices, DeviceInput{
			BatchItemID:      dr.BatchItemID,
			InspectionStatus: dr.InspectionStatus,
			Notes:            dr.Notes,
		})
	}
	actor := shared.ActorFromContext(r.Context())
	batch, err := h.service.ReceiveDevices(r.Context(), ReceiveDevicesCommand{
		BatchID:     id,
		WarehouseID: req.WarehouseID,
		Devices:     devices,
	}, actor)
	if err != nil {
		h.logger.Error("receive devices", slog.Int64("batch_id", id), slog.Any("error", err))
		respondBatchError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewBatch(batch, actor.IsManager()))
}

func (h *Handler) AddSellingPrices(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var req addSellingPricesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	prices := make([]DevicePriceInput, 0, len(req.Prices))
	for _, pr := range req.Prices {
		price, err := decimal.NewFromString(pr.SellingPrice)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "sellingPrice must be a decimal string")
			return
		}
		prices = append(prices, DevicePriceInput{DeviceID: pr.DeviceID, SellingPrice: price})
	}
	actor := shared.ActorFromContext(r.Context())
	batch, err := h.service.AddSellingPrices(r.Context(), AddSellingPricesCommand{BatchID: id, Prices: prices}, actor)
	if err != nil {
		respondBatchError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, viewBatch(batch, actor.IsManager()))
}
