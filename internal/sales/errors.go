package sales

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InsufficientStockError rejects a sale that would drive stock negative.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int64
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d",
		e.Name, e.Requested, e.Available)
}

// ReturnExceedsRemainingError rejects a return larger than what is still
// owed on the invoice.
type ReturnExceedsRemainingError struct {
	InvoiceID int64
	Requested decimal.Decimal
	Remaining decimal.Decimal
}

func (e *ReturnExceedsRemainingError) Error() string {
	return fmt.Sprintf("return of %s exceeds remaining amount %s on invoice %d",
		e.Requested, e.Remaining, e.InvoiceID)
}
