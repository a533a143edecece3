// Package numbering issues unique, human-readable, monotonically increasing
// reference numbers per entity scope and period. Counters live in a single
// row per (scope, period) and are incremented inside the caller's
// transaction; a unique constraint on the formatted number in the target
// table backstops races the isolation level does not serialize.
package numbering

import (
	"fmt"
	"time"
)

// PeriodKind selects how the period key is derived from a date.
type PeriodKind int

const (
	PeriodYearly PeriodKind = iota
	PeriodMonthly
)

// Scope identifies one numbered entity type.
type Scope struct {
	Prefix string
	Digits int
	Period PeriodKind
}

var (
	// ScopeJournal numbers journal entries: JE-<year>-NNNNN.
	ScopeJournal = Scope{Prefix: "JE", Digits: 5, Period: PeriodYearly}
	// ScopeInvoice numbers sales invoices: INV-<yyyymm>-NNNN.
	ScopeInvoice = Scope{Prefix: "INV", Digits: 4, Period: PeriodMonthly}
	// ScopeReturn numbers sales returns: RET-<yyyymm>-NNNN.
	ScopeReturn = Scope{Prefix: "RET", Digits: 4, Period: PeriodMonthly}
	// ScopeBatch numbers purchase batches: PB-<yyyymm>-NNNN.
	ScopeBatch = Scope{Prefix: "PB", Digits: 4, Period: PeriodMonthly}
	// ScopeSerial numbers inspected devices: BI-<year>-NNNNNN.
	ScopeSerial = Scope{Prefix: "BI", Digits: 6, Period: PeriodYearly}
	// ScopeVoucher numbers cash vouchers: VC-<year>-NNNNN.
	ScopeVoucher = Scope{Prefix: "VC", Digits: 5, Period: PeriodYearly}
)

// PeriodKey derives the counter partition for a date.
func (s Scope) PeriodKey(at time.Time) string {
	switch s.Period {
	case PeriodMonthly:
		return at.Format("200601")
	default:
		return at.Format("2006")
	}
}

// Format renders the reference number for a sequence value.
func (s Scope) Format(periodKey string, seq int64) string {
	return fmt.Sprintf("%s-%s-%0*d", s.Prefix, periodKey, s.Digits, seq)
}
