package numbering

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bi-platform/bi-ledger/internal/ledger/shared"
)

const maxAttempts = 3

const uniqueViolation = "23505"

// IsConflict reports whether err is a unique violation on a formatted
// reference number, the structural backstop against counter races.
func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

// WithRetry re-runs the whole read-increment-write cycle on a number
// conflict, a bounded number of times. Anything else surfaces immediately.
func WithRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn(ctx)
		if err == nil || !IsConflict(err) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", shared.ErrNumberingConflict, maxAttempts, err)
}
