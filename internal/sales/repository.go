package sales

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bi-platform/bi-ledger/internal/inventory"
	"github.com/bi-platform/bi-ledger/internal/ledger/journals"
	"github.com/bi-platform/bi-ledger/internal/platform/db"
	"github.com/bi-platform/bi-ledger/internal/shared"
)

// TxStore persists invoices and returns inside one transaction.
type TxStore interface {
	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	InsertItems(ctx context.Context, invoiceID int64, items []InvoiceItem) error
	GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error)
	SetJournalEntry(ctx context.Context, invoiceID, entryID int64) error
	InsertReturn(ctx context.Context, ret Return) (Return, error)
	ApplyReturn(ctx context.Context, invoiceID int64, remaining decimal.Decimal, status InvoiceStatus) error
}

// Tx bundles the ports one sale operation touches. Everything shares the
// same database transaction, so stock, documents and ledger entries commit
// together or roll back together.
type Tx struct {
	Store  TxStore
	Stock  inventory.TxStock
	Ledger journals.Tx
}

type ListFilter struct {
	Status InvoiceStatus
	Limit  int
	Offset int
}

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, Tx{
			Store:  &txStore{tx: tx},
			Stock:  inventory.NewTxStock(tx),
			Ledger: journals.NewTx(tx),
		})
	})
}

const invoiceColumns = `id, number, invoice_type, payment_type, customer_id, subtotal, total,
paid_amount, remaining_amount, status, journal_entry_id, created_by, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.Type, &inv.PaymentType, &inv.CustomerID,
		&inv.Subtotal, &inv.Total, &inv.PaidAmount, &inv.RemainingAmount, &inv.Status,
		&inv.JournalEntryID, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, shared.ErrNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (r *repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id))
	if err != nil {
		return Invoice{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, product_id, name, quantity, unit_price, total
FROM invoice_items WHERE invoice_id=$1 ORDER BY id`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item InvoiceItem
		if err := rows.Scan(&item.ID, &item.InvoiceID, &item.ProductID, &item.Name,
			&item.Quantity, &item.UnitPrice, &item.Total); err != nil {
			return Invoice{}, err
		}
		inv.Items = append(inv.Items, item)
	}
	return inv, rows.Err()
}

func (r *repository) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status=$1`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit) + ` OFFSET ` + strconv.Itoa(offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO invoices
(number, invoice_type, payment_type, customer_id, subtotal, total, paid_amount, remaining_amount, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id, created_at, updated_at`,
		inv.Number, inv.Type, inv.PaymentType, inv.CustomerID, inv.Subtotal, inv.Total,
		inv.PaidAmount, inv.RemainingAmount, inv.Status, inv.CreatedBy)
	if err := row.Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (s *txStore) InsertItems(ctx context.Context, invoiceID int64, items []InvoiceItem) error {
	for _, item := range items {
		if _, err := s.tx.Exec(ctx, `INSERT INTO invoice_items (invoice_id, product_id, name, quantity, unit_price, total)
VALUES ($1,$2,$3,$4,$5,$6)`,
			invoiceID, item.ProductID, item.Name, item.Quantity, item.UnitPrice, item.Total); err != nil {
			return err
		}
	}
	return nil
}

func (s *txStore) GetInvoiceForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return scanInvoice(s.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id))
}

func (s *txStore) SetJournalEntry(ctx context.Context, invoiceID, entryID int64) error {
	_, err := s.tx.Exec(ctx, `UPDATE invoices SET journal_entry_id=$2, updated_at=NOW() WHERE id=$1`,
		invoiceID, entryID)
	return err
}

func (s *txStore) InsertReturn(ctx context.Context, ret Return) (Return, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO sale_returns (number, invoice_id, amount, notes, created_by)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
		ret.Number, ret.InvoiceID, ret.Amount, ret.Notes, ret.CreatedBy)
	if err := row.Scan(&ret.ID, &ret.CreatedAt); err != nil {
		return Return{}, err
	}
	return ret, nil
}

func (s *txStore) ApplyReturn(ctx context.Context, invoiceID int64, remaining decimal.Decimal, status InvoiceStatus) error {
	_, err := s.tx.Exec(ctx, `UPDATE invoices SET remaining_amount=$2, status=$3, updated_at=NOW() WHERE id=$1`,
		invoiceID, remaining, status)
	return err
}
