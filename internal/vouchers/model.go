// Package vouchers records cash receipts and payments, each backed by a
// posted ledger entry.
package vouchers

import (
	"time"

	"github.com/shopspring/decimal"
)

type VoucherType string

const (
	TypeReceipt VoucherType = "receipt"
	TypePayment VoucherType = "payment"
)

// Voucher documents money received from a customer or paid to a supplier.
type Voucher struct {
	ID             int64           `json:"id"`
	Number         string          `json:"voucherNumber"`
	Type           VoucherType     `json:"voucherType"`
	Amount         decimal.Decimal `json:"amount"`
	PaymentMethod  string          `json:"paymentMethod,omitempty"`
	Description    string          `json:"description,omitempty"`
	JournalEntryID *int64          `json:"journalEntryId,omitempty"`
	CreatedBy      string          `json:"createdBy,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}
