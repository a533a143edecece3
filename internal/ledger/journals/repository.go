package journals

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bi-platform/bi-ledger/internal/ledger/accounts"
	"github.com/bi-platform/bi-ledger/internal/ledger/numbering"
	"github.com/bi-platform/bi-ledger/internal/ledger/periodlock"
	"github.com/bi-platform/bi-ledger/internal/ledger/shared"
	"github.com/bi-platform/bi-ledger/internal/platform/db"
)

// ListFilter narrows List results.
type ListFilter struct {
	Status EntryStatus
	Limit  int
	Offset int
}

// Repository encapsulates journal persistence. Mutations run through WithTx
// so that numbering, period-lock checks and balance updates share one
// transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	List(ctx context.Context, filter ListFilter) ([]Entry, error)
	GetWithLines(ctx context.Context, id int64) (Entry, error)
	Reconcile(ctx context.Context) ([]BalanceMismatch, error)
}

type repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// NewTx assembles the posting-engine ports over an existing transaction.
// Orchestrator repositories use this to post entries atomically with their
// own writes.
func NewTx(tx pgx.Tx) Tx {
	return Tx{
		Store:    &txStore{tx: tx},
		Accounts: accounts.NewDirectory(tx),
		Numbers:  numbering.NewTxSource(tx),
		Guard:    periodlock.NewTxGuard(tx),
	}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTx(tx))
	})
}

const entryColumns = `id, number, entry_date, description, reference_type, reference_id,
total_debit, total_credit, status, created_by, posted_by, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.Number, &e.Date, &e.Description, &e.ReferenceType, &e.ReferenceID,
		&e.TotalDebit, &e.TotalCredit, &e.Status, &e.CreatedBy, &e.PostedBy, &e.PostedAt,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, shared.ErrEntryNotFound
		}
		return Entry{}, err
	}
	return e, nil
}

func (r *repository) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	query := `SELECT ` + entryColumns + ` FROM journal_entries`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status=$1`
		args = append(args, filter.Status)
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query += ` ORDER BY created_at DESC LIMIT ` + strconv.Itoa(limit) + ` OFFSET ` + strconv.Itoa(offset)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *repository) GetWithLines(ctx context.Context, id int64) (Entry, error) {
	entry, err := scanEntry(r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1`, id))
	if err != nil {
		return Entry{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, description, cost_center
FROM journal_lines WHERE entry_id=$1 ORDER BY id`, id)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit,
			&line.Description, &line.CostCenter); err != nil {
			return Entry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

// Reconcile recomputes each account balance from its posted lines and
// reports accounts whose stored balance drifted outside the epsilon.
func (r *repository) Reconcile(ctx context.Context) ([]BalanceMismatch, error) {
	rows, err := r.pool.Query(ctx, `SELECT a.id, a.code, a.balance,
COALESCE(SUM(CASE WHEN a.nature='debit' THEN l.debit - l.credit ELSE l.credit - l.debit END), 0) AS derived
FROM accounts a
LEFT JOIN journal_lines l ON l.account_id = a.id
LEFT JOIN journal_entries e ON e.id = l.entry_id
WHERE l.id IS NULL OR e.status = 'posted'
GROUP BY a.id, a.code, a.balance`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var mismatches []BalanceMismatch
	for rows.Next() {
		var m BalanceMismatch
		if err := rows.Scan(&m.AccountID, &m.Code, &m.Stored, &m.Derived); err != nil {
			return nil, err
		}
		if m.Stored.Sub(m.Derived).Abs().GreaterThan(Epsilon) {
			mismatches = append(mismatches, m)
		}
	}
	return mismatches, rows.Err()
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO journal_entries
(number, entry_date, description, reference_type, reference_id, total_debit, total_credit, status, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
RETURNING id, created_at, updated_at`,
		entry.Number, entry.Date, entry.Description, entry.ReferenceType, entry.ReferenceID,
		entry.TotalDebit, entry.TotalCredit, entry.Status, entry.CreatedBy)
	if err := row.Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (s *txStore) InsertLines(ctx context.Context, entryID int64, lines []Line) error {
	for _, line := range lines {
		if _, err := s.tx.Exec(ctx, `INSERT INTO journal_lines (entry_id, account_id, debit, credit, description, cost_center)
VALUES ($1,$2,$3,$4,$5,$6)`,
			entryID, line.AccountID, line.Debit, line.Credit, line.Description, line.CostCenter); err != nil {
			return err
		}
	}
	return nil
}

func (s *txStore) ReplaceLines(ctx context.Context, entryID int64, lines []Line) error {
	if _, err := s.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, entryID); err != nil {
		return err
	}
	return s.InsertLines(ctx, entryID, lines)
}

func (s *txStore) UpdateHeader(ctx context.Context, entry Entry) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE journal_entries
SET entry_date=$2, description=$3, total_debit=$4, total_credit=$5, updated_at=NOW()
WHERE id=$1 AND status='draft'`,
		entry.ID, entry.Date, entry.Description, entry.TotalDebit, entry.TotalCredit)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryPosted
	}
	return nil
}

func (s *txStore) GetEntry(ctx context.Context, id int64) (Entry, error) {
	return scanEntry(s.tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=$1 FOR UPDATE`, id))
}

func (s *txStore) GetLines(ctx context.Context, entryID int64) ([]Line, error) {
	rows, err := s.tx.Query(ctx, `SELECT id, entry_id, account_id, debit, credit, description, cost_center
FROM journal_lines WHERE entry_id=$1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit,
			&line.Description, &line.CostCenter); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *txStore) MarkPosted(ctx context.Context, id int64, postedBy string, at time.Time) (bool, error) {
	cmd, err := s.tx.Exec(ctx, `UPDATE journal_entries
SET status='posted', posted_by=$2, posted_at=$3, updated_at=NOW()
WHERE id=$1 AND status='draft'`, id, postedBy, at)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (s *txStore) DeleteEntry(ctx context.Context, id int64) error {
	if _, err := s.tx.Exec(ctx, `DELETE FROM journal_lines WHERE entry_id=$1`, id); err != nil {
		return err
	}
	cmd, err := s.tx.Exec(ctx, `DELETE FROM journal_entries WHERE id=$1 AND status='draft'`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrEntryNotFound
	}
	return nil
}

