package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryStatus enumerates the journal entry lifecycle. An entry transitions
// once, irrevocably, from draft to posted.
type EntryStatus string

const (
	StatusDraft  EntryStatus = "draft"
	StatusPosted EntryStatus = "posted"
)

// Entry captures a double-entry journal entry header.
type Entry struct {
	ID            int64           `json:"id"`
	Number        string          `json:"entryNumber"`
	Date          time.Time       `json:"entryDate"`
	Description   string          `json:"description,omitempty"`
	ReferenceType string          `json:"referenceType,omitempty"`
	ReferenceID   *int64          `json:"referenceId,omitempty"`
	TotalDebit    decimal.Decimal `json:"totalDebit"`
	TotalCredit   decimal.Decimal `json:"totalCredit"`
	Status        EntryStatus     `json:"status"`
	CreatedBy     string          `json:"createdBy,omitempty"`
	PostedBy      *string         `json:"postedBy,omitempty"`
	PostedAt      *time.Time      `json:"postedAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Lines         []Line          `json:"lines,omitempty"`
}

// Line stores a debit or credit amount against one account. Exactly one of
// the two sides is non-zero.
type Line struct {
	ID          int64           `json:"id"`
	EntryID     int64           `json:"entryId"`
	AccountID   int64           `json:"accountId"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description,omitempty"`
	CostCenter  string          `json:"costCenter,omitempty"`
}

// BalanceMismatch reports one account whose running balance disagrees with
// the sum derived from its posted lines.
type BalanceMismatch struct {
	AccountID int64           `json:"accountId"`
	Code      string          `json:"code"`
	Stored    decimal.Decimal `json:"stored"`
	Derived   decimal.Decimal `json:"derived"`
}
