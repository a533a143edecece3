// Package periodlock maintains the process-wide cutoff date below which no
// journal entry may be created or posted. The cutoff is a single persisted
// setting; it is read again inside every posting transaction because the
// lock can change between draft creation and posting.
package periodlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bi-platform/bi-ledger/internal/ledger/shared"
)

const (
	settingCategory = "accounting"
	settingKey      = "period_lock_before"
	dateLayout      = "2006-01-02"
)

// Guard checks entry dates against the current cutoff.
type Guard interface {
	AssertNotLocked(ctx context.Context, date time.Time) error
}

// TxGuard reads the cutoff inside the caller's transaction.
type TxGuard struct {
	tx pgx.Tx
}

// NewTxGuard binds a Guard to a transaction.
func NewTxGuard(tx pgx.Tx) *TxGuard {
	return &TxGuard{tx: tx}
}

// AssertNotLocked fails with ErrPeriodLocked when a cutoff is set and the
// date falls before it.
func (g *TxGuard) AssertNotLocked(ctx context.Context, date time.Time) error {
	var value *string
	err := g.tx.QueryRow(ctx, `SELECT value FROM system_settings WHERE category=$1 AND key=$2`,
		settingCategory, settingKey).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	}
	return assertAgainst(value, date)
}

func assertAgainst(value *string, date time.Time) error {
	if value == nil || *value == "" {
		return nil
	}
	cutoff, err := time.Parse(dateLayout, *value)
	if err != nil {
		return fmt.Errorf("periodlock: malformed cutoff %q: %w", *value, err)
	}
	if date.Before(cutoff) {
		return fmt.Errorf("%w: %s is before cutoff %s", shared.ErrPeriodLocked,
			date.Format(dateLayout), cutoff.Format(dateLayout))
	}
	return nil
}
