// Package purchasing orchestrates purchase batches from intake through
// pricing, device-level receiving and release for sale. Receiving is
// resumable; the ledger posting and the stock increments happen exactly
// once, when the last device arrives.
package purchasing

import (
	"time"

	"github.com/shopspring/decimal"
)

// BatchStatus is the purchase batch lifecycle. Transitions only move
// forward.
type BatchStatus string

const (
	StatusAwaitingPrices    BatchStatus = "awaiting_prices"
	StatusReadyForReceiving BatchStatus = "ready_for_receiving"
	StatusReceiving         BatchStatus = "receiving"
	StatusReceived          BatchStatus = "received"
	StatusReadyToSell       BatchStatus = "ready_to_sell"
)

// Batch is one purchase intake from a supplier.
type Batch struct {
	ID             int64           `json:"id"`
	Number         string          `json:"batchNumber"`
	SupplierID     *int64          `json:"supplierId,omitempty"`
	WarehouseID    *int64          `json:"warehouseId,omitempty"`
	Status         BatchStatus     `json:"status"`
	TotalItems     int64           `json:"totalItems"`
	ReceivedItems  int64           `json:"receivedItems"`
	TotalCost      decimal.Decimal `json:"totalCost"`
	JournalEntryID *int64          `json:"journalEntryId,omitempty"`
	CreatedBy      string          `json:"createdBy,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	Items          []BatchItem     `json:"items,omitempty"`
}

// BatchItem is one product position within a batch. Quantity counts
// expected units, ReceivedQuantity the units inspected so far.
type BatchItem struct {
	ID               int64           `json:"id"`
	BatchID          int64           `json:"batchId"`
	ProductID        *int64          `json:"productId,omitempty"`
	Name             string          `json:"name"`
	Quantity         int64           `json:"quantity"`
	ReceivedQuantity int64           `json:"receivedQuantity"`
	UnitCost         decimal.Decimal `json:"unitCost"`
	TotalCost        decimal.Decimal `json:"totalCost"`
}

// Device is one inspected physical unit with its assigned serial.
type Device struct {
	ID               int64           `json:"id"`
	BatchID          int64           `json:"batchId"`
	BatchItemID      int64           `json:"batchItemId"`
	Serial           string          `json:"serial"`
	ProductID        *int64          `json:"productId,omitempty"`
	PurchaseCost     decimal.Decimal `json:"purchaseCost"`
	SellingPrice     decimal.Decimal `json:"sellingPrice"`
	InspectionStatus string          `json:"inspectionStatus,omitempty"`
	Notes            string          `json:"notes,omitempty"`
	InspectedBy      string          `json:"inspectedBy,omitempty"`
	WarehouseID      *int64          `json:"warehouseId,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
}

// Stats summarises the pipeline for the dashboard.
type Stats struct {
	ByStatus   map[BatchStatus]int64 `json:"byStatus"`
	TotalCost  decimal.Decimal       `json:"totalCost"`
	BatchCount int64                 `json:"batchCount"`
}
