package inventory

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/bi-platform/bi-ledger/internal/shared"
)

// TxStock locks and mutates stock rows inside a surrounding transaction.
// Orchestrators read quantities under lock, decide, then write, so that two
// concurrent sales cannot both consume the last unit.
type TxStock interface {
	GetForUpdate(ctx context.Context, productID int64) (Product, error)
	SetQuantity(ctx context.Context, productID int64, quantity int) error
	Increment(ctx context.Context, productID int64, delta int) error
}

type txStock struct {
	tx pgx.Tx
}

// NewTxStock binds stock operations to an existing transaction.
func NewTxStock(tx pgx.Tx) TxStock {
	return &txStock{tx: tx}
}

func (s *txStock) GetForUpdate(ctx context.Context, productID int64) (Product, error) {
	var p Product
	err := s.tx.QueryRow(ctx, `SELECT id, name, COALESCE(sku, ''), quantity, cost_price, updated_at
FROM products WHERE id=$1 FOR UPDATE`, productID).
		Scan(&p.ID, &p.Name, &p.SKU, &p.Quantity, &p.CostPrice, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Product{}, shared.ErrNotFound
		}
		return Product{}, err
	}
	return p, nil
}

func (s *txStock) SetQuantity(ctx context.Context, productID int64, quantity int) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE products SET quantity=$2, updated_at=NOW() WHERE id=$1`,
		productID, quantity)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *txStock) Increment(ctx context.Context, productID int64, delta int) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE products SET quantity = quantity + $2, updated_at=NOW() WHERE id=$1`,
		productID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
