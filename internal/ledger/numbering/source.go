package numbering

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Source hands out the next reference number for a scope. Implementations
// must guarantee that two concurrent callers in the same scope/period never
// receive the same number; gaps after rollback are acceptable.
type Source interface {
	Next(ctx context.Context, scope Scope, at time.Time) (string, error)
}

// TxSource increments the per-(scope, period) counter row inside the
// surrounding transaction. The upsert takes a row lock, so concurrent
// transactions serialize on the counter and read distinct values.
type TxSource struct {
	tx pgx.Tx
}

// NewTxSource binds a Source to a transaction.
func NewTxSource(tx pgx.Tx) *TxSource {
	return &TxSource{tx: tx}
}

// Next reads-and-increments the counter and formats the number.
func (s *TxSource) Next(ctx context.Context, scope Scope, at time.Time) (string, error) {
	periodKey := scope.PeriodKey(at)
	var seq int64
	err := s.tx.QueryRow(ctx, `INSERT INTO number_sequences (scope, period_key, last_seq)
VALUES ($1, $2, 1)
ON CONFLICT (scope, period_key) DO UPDATE SET last_seq = number_sequences.last_seq + 1
RETURNING last_seq`, scope.Prefix, periodKey).Scan(&seq)
	if err != nil {
		return "", err
	}
	return scope.Format(periodKey, seq), nil
}
