// Package inventory tracks product stock levels. Stock mutations happen
// inside the orchestrator transactions that cause them; this package owns
// the row-locking primitives and the read API.
package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is the slice of the product catalog the stock engine works with.
type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	SKU       string          `json:"sku,omitempty"`
	Quantity  int             `json:"quantity"`
	CostPrice decimal.Decimal `json:"costPrice"`
	UpdatedAt time.Time       `json:"updatedAt"`
}
