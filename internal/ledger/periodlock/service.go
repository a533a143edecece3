package periodlock

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Service reads and writes the persisted cutoff outside any ledger
// transaction (settings administration).
type Service struct {
	db *pgxpool.Pool
}

func NewService(db *pgxpool.Pool) *Service {
	return &Service{db: db}
}

// Get returns the current cutoff, or nil when no lock is set.
func (s *Service) Get(ctx context.Context) (*time.Time, error) {
	var value *string
	err := s.db.QueryRow(ctx, `SELECT value FROM system_settings WHERE category=$1 AND key=$2`,
		settingCategory, settingKey).Scan(&value)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if value == nil || *value == "" {
		return nil, nil
	}
	cutoff, err := time.Parse(dateLayout, *value)
	if err != nil {
		return nil, err
	}
	return &cutoff, nil
}

// Set stores a new cutoff; nil clears the lock.
func (s *Service) Set(ctx context.Context, cutoff *time.Time) error {
	var value *string
	if cutoff != nil {
		formatted := cutoff.Format(dateLayout)
		value = &formatted
	}
	_, err := s.db.Exec(ctx, `INSERT INTO system_settings (category, key, value, updated_at)
VALUES ($1, $2, $3, NOW())
ON CONFLICT (category, key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`,
		settingCategory, settingKey, value)
	return err
}
