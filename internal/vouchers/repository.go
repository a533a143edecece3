package vouchers

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bi-platform/bi-ledger/internal/ledger/journals"
	"github.com/bi-platform/bi-ledger/internal/platform/db"
	"github.com/bi-platform/bi-ledger/internal/shared"
)

// TxStore persists vouchers inside one transaction.
type TxStore interface {
	InsertVoucher(ctx context.Context, v Voucher) (Voucher, error)
	SetJournalEntry(ctx context.Context, voucherID, entryID int64) error
}

type Tx struct {
	Store  TxStore
	Ledger journals.Tx
}

type ListFilter struct {
	Type   VoucherType
	Limit  int
	Offset int
}

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	Get(ctx context.Context, id int64) (Voucher, error)
	List(ctx context.Context, filter ListFilter) ([]Voucher, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, Tx{Store: &txStore{tx: tx}, Ledger: journals.NewTx(tx)})
	})
}

const voucherColumns = `id, number, voucher_type, amount, payment_method, description, journal_entry_id, created_by, created_at`

func scanVoucher(row pgx.Row) (Voucher, error) {
	var v Voucher
	err := row.Scan(&v.ID, &v.Number, &v.Type, &v.Amount, &v.PaymentMethod, &v.Description,
		&v.JournalEntryID, &v.CreatedBy, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Voucher{}, shared.ErrNotFound
		}
		return Voucher{}, err
	}
	return v, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Voucher, error) {
	return scanVoucher(r.pool.QueryRow(ctx, `SELECT `+voucherColumns+` FROM vouchers WHERE id=$1`, id))
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Voucher, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + voucherColumns + ` FROM vouchers`
	args := []any{}
	if filter.Type != "" {
		query += ` WHERE voucher_type=$1`
		args = append(args, filter.Type)
	}
	query += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit) + ` OFFSET ` + strconv.Itoa(offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var vouchers []Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, err
		}
		vouchers = append(vouchers, v)
	}
	return vouchers, rows.Err()
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) InsertVoucher(ctx context.Context, v Voucher) (Voucher, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO vouchers (number, voucher_type, amount, payment_method, description, created_by)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at`,
		v.Number, v.Type, v.Amount, v.PaymentMethod, v.Description, v.CreatedBy)
	if err := row.Scan(&v.ID, &v.CreatedAt); err != nil {
		return Voucher{}, err
	}
	return v, nil
}

func (s *txStore) SetJournalEntry(ctx context.Context, voucherID, entryID int64) error {
	_, err := s.tx.Exec(ctx, `UPDATE vouchers SET journal_entry_id=$2 WHERE id=$1`, voucherID, entryID)
	return err
}
