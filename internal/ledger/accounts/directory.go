package accounts

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/bi-platform/bi-ledger/internal/ledger/shared"
)

// Directory resolves semantic roles to concrete accounts inside the caller's
// transaction. Account creation participates in the same transaction as the
// postings that depend on it.
type Directory struct {
	tx pgx.Tx
}

// NewDirectory binds a directory to a transaction.
func NewDirectory(tx pgx.Tx) *Directory {
	return &Directory{tx: tx}
}

// EnsureSystemAccounts idempotently creates all system accounts.
func (d *Directory) EnsureSystemAccounts(ctx context.Context) error {
	for _, sys := range systemAccounts {
		_, err := d.tx.Exec(ctx, `INSERT INTO accounts (code, name, nature, balance)
VALUES ($1, $2, $3, 0) ON CONFLICT (code) DO NOTHING`, sys.Code, sys.Name, sys.Nature)
		if err != nil {
			return fmt.Errorf("accounts: ensure %s: %w", sys.Code, err)
		}
	}
	return nil
}

// Resolve returns the account backing a system role.
func (d *Directory) Resolve(ctx context.Context, role Role) (Account, error) {
	code, ok := CodeForRole(role)
	if !ok {
		return Account{}, shared.ErrAccountNotFound
	}
	var a Account
	err := d.tx.QueryRow(ctx, `SELECT id, code, name, nature, balance, created_at, updated_at
FROM accounts WHERE code=$1`, code).
		Scan(&a.ID, &a.Code, &a.Name, &a.Nature, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// GetForUpdate locks and returns an account row for balance mutation.
func (d *Directory) GetForUpdate(ctx context.Context, id int64) (Account, error) {
	var a Account
	err := d.tx.QueryRow(ctx, `SELECT id, code, name, nature, balance, created_at, updated_at
FROM accounts WHERE id=$1 FOR UPDATE`, id).
		Scan(&a.ID, &a.Code, &a.Name, &a.Nature, &a.Balance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

// AddToBalance applies a signed delta to the running balance.
func (d *Directory) AddToBalance(ctx context.Context, id int64, delta decimal.Decimal) error {
	cmd, err := d.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id=$1`, id, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}
