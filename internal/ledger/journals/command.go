package journals

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/bi-platform/bi-ledger/internal/ledger/shared"
)

// Epsilon is the absolute tolerance for the debit/credit balance check. It
// accommodates rounding from upstream multiplication (unit price times
// quantity, percentage discounts).
var Epsilon = decimal.RequireFromString("0.01")

// LineInput describes one journal line of a command.
type LineInput struct {
	AccountID   int64
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	Description string
	CostCenter  string
}

// CreateDraftCommand groups the fields required to create a draft entry.
type CreateDraftCommand struct {
	Date          time.Time
	Description   string
	ReferenceType string
	ReferenceID   *int64
	Lines         []LineInput
}

// Validate checks line shape and balance, returning the computed totals.
func (cmd CreateDraftCommand) Validate() (totalDebit, totalCredit decimal.Decimal, err error) {
	return validateLines(cmd.Lines)
}

// UpdateDraftCommand carries a partial header update and, when Lines is
// non-nil, a full replacement line set re-validated exactly as in create.
type UpdateDraftCommand struct {
	EntryID     int64
	Date        *time.Time
	Description *string
	Lines       []LineInput
}

func validateLines(lines []LineInput) (totalDebit, totalCredit decimal.Decimal, err error) {
	if len(lines) < 2 {
		return decimal.Zero, decimal.Zero, shared.ErrTooFewLines
	}
	totalDebit = decimal.Zero
	totalCredit = decimal.Zero
	for _, line := range lines {
		if line.AccountID == 0 {
			return decimal.Zero, decimal.Zero, shared.ErrAccountNotFound
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return decimal.Zero, decimal.Zero, shared.ErrInvalidLine
		}
		if line.Debit.IsPositive() == line.Credit.IsPositive() {
			// both sides set, or both zero
			return decimal.Zero, decimal.Zero, shared.ErrInvalidLine
		}
		totalDebit = totalDebit.Add(line.Debit)
		totalCredit = totalCredit.Add(line.Credit)
	}
	if totalDebit.Sub(totalCredit).Abs().GreaterThan(Epsilon) {
		return decimal.Zero, decimal.Zero, shared.ErrUnbalanced
	}
	return totalDebit, totalCredit, nil
}
