// Package sales orchestrates invoices and returns: each operation moves
// stock, documents and ledger postings in a single transaction.
package sales

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceStatus tracks settlement, not lifecycle; invoices are final once
// created and corrected via returns.
type InvoiceStatus string

const (
	InvoiceUnpaid        InvoiceStatus = "unpaid"
	InvoicePartiallyPaid InvoiceStatus = "partially_paid"
	InvoicePaid          InvoiceStatus = "paid"
)

// Invoice is a sale document header.
type Invoice struct {
	ID              int64           `json:"id"`
	Number          string          `json:"invoiceNumber"`
	Type            string          `json:"invoiceType,omitempty"`
	PaymentType     string          `json:"paymentType,omitempty"`
	CustomerID      *int64          `json:"customerId,omitempty"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	Total           decimal.Decimal `json:"total"`
	PaidAmount      decimal.Decimal `json:"paidAmount"`
	RemainingAmount decimal.Decimal `json:"remainingAmount"`
	Status          InvoiceStatus   `json:"status"`
	JournalEntryID  *int64          `json:"journalEntryId,omitempty"`
	CreatedBy       string          `json:"createdBy,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	Items           []InvoiceItem   `json:"items,omitempty"`
}

// InvoiceItem is one sold line. ProductID is nil for ad-hoc lines that do
// not touch stock.
type InvoiceItem struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoiceId"`
	ProductID *int64          `json:"productId,omitempty"`
	Name      string          `json:"name"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Total     decimal.Decimal `json:"total"`
}

// Return records money given back against an invoice.
type Return struct {
	ID        int64           `json:"id"`
	Number    string          `json:"returnNumber"`
	InvoiceID int64           `json:"invoiceId"`
	Amount    decimal.Decimal `json:"amount"`
	Notes     string          `json:"notes,omitempty"`
	CreatedBy string          `json:"createdBy,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}
