package purchasing

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

// TxStore persists batches, items and devices inside one transaction.
type TxStore interface {
	InsertBatch(ctx context.Context, batch Batch) (Batch, error)
	InsertItems(ctx context.Context, batchID int64, items []BatchItem) error
	GetBatchForUpdate(ctx context.Context, id int64) (Batch, error)
	GetItems(ctx context.Context, batchID int64) ([]BatchItem, error)
	SetItemCost(ctx context.Context, itemID int64, unitCost, totalCost decimal.Decimal) error
	SetBatchPriced(ctx context.Context, batchID int64, totalCost decimal.Decimal, status BatchStatus) error
	InsertDevice(ctx context.Context, device Device) (Device, error)
	IncrementItemReceived(ctx context.Context, itemID, delta int64) error
	SetBatchProgress(ctx context.Context, batchID, receivedItems int64, status BatchStatus) error
	SetJournalEntry(ctx context.Context, batchID, entryID int64) error
	GetDevicesForUpdate(ctx context.Context, batchID int64) ([]Device, error)
	SetDeviceSellingPrice(ctx context.Context, deviceID int64, price decimal.Decimal) error
	EnsureSellableSerial(ctx context.Context, device Device) error
	SetBatchStatus(ctx context.Context, batchID int64, status BatchStatus) error
}

// Tx bundles the ports one purchasing operation touches within a single
// transaction.
type Tx struct {
	Store  TxStore
	Stock  inventory.TxStock
	Ledger journals.Tx
}

type ListFilter struct {
	Status BatchStatus
	Limit  int
	Offset int
}

type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
	GetBatch(ctx context.Context, id int64) (Batch, error)
	ListBatches(ctx context.Context, filter ListFilter) ([]Batch, error)
	Stats(ctx context.Context) (Stats, error)
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

const batchColumns = `id, number, supplier_id, warehouse_id, status, total_items, received_items,
total_cost, journal_entry_id, created_by, created_at, updated_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.Number, &b.SupplierID, &b.WarehouseID, &b.Status, &b.TotalItems,
		&b.ReceivedItems, &b.TotalCost, &b.JournalEntryID, &b.CreatedBy, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, shared.ErrNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

const itemColumns = `id, batch_id, product_id, name, quantity, received_quantity, unit_cost, total_cost`

func scanItems(rows pgx.Rows) ([]BatchItem, error) {
	defer rows.Close()
	var items []BatchItem
	for rows.Next() {
		var item BatchItem
		if err := rows.Scan(&item.ID, &item.BatchID, &item.ProductID, &item.Name,
			&item.Quantity, &item.ReceivedQuantity, &item.UnitCost, &item.TotalCost); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *repository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	batch, err := scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM purchase_batches WHERE id=$1`, id))
	if err != nil {
		return Batch{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM purchase_batch_items WHERE batch_id=$1 ORDER BY id`, id)
	if err != nil {
		return Batch{}, err
	}
	batch.Items, err = scanItems(rows)
	return batch, err
}

func (r *repository) ListBatches(ctx context.Context, filter ListFilter) ([]Batch, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + batchColumns + ` FROM purchase_batches`
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
	var batches []Batch
	for rows.Next() {
		batch, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, batch)
	}
	return batches, rows.Err()
}

func (r *repository) Stats(ctx context.Context) (Stats, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*), COALESCE(SUM(total_cost), 0)
FROM purchase_batches GROUP BY status`)
	if err != nil {
		return Stats{}, err
	}
	defer rows.Close()
	stats := Stats{ByStatus: map[BatchStatus]int64{}, TotalCost: decimal.Zero}
	for rows.Next() {
		var status BatchStatus
		var count int64
		var cost decimal.Decimal
		if err := rows.Scan(&status, &count, &cost); err != nil {
			return Stats{}, err
		}
		stats.ByStatus[status] = count
		stats.BatchCount += count
		stats.TotalCost = stats.TotalCost.Add(cost)
	}
	return stats, rows.Err()
}

type txStore struct {
	tx pgx.Tx
}

func (s *txStore) InsertBatch(ctx context.Context, batch Batch) (Batch, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO purchase_batches
(number, supplier_id, warehouse_id, status, total_items, received_items, total_cost, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
RETURNING id, created_at, updated_at`,
		batch.Number, batch.SupplierID, batch.WarehouseID, batch.Status, batch.TotalItems,
		batch.ReceivedItems, batch.TotalCost, batch.CreatedBy)
	if err := row.Scan(&batch.ID, &batch.CreatedAt, &batch.UpdatedAt); err != nil {
		return Batch{}, err
	}
	return batch, nil
}

func (s *txStore) InsertItems(ctx context.Context, batchID int64, items []BatchItem) error {
	for _, item := range items {
		if _, err := s.tx.Exec(ctx, `INSERT INTO purchase_batch_items
(batch_id, product_id, name, quantity, received_quantity, unit_cost, total_cost)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			batchID, item.ProductID, item.Name, item.Quantity, item.ReceivedQuantity,
			item.UnitCost, item.TotalCost); err != nil {
			return err
		}
	}
	return nil
}

func (s *txStore) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	return scanBatch(s.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM purchase_batches WHERE id=$1 FOR UPDATE`, id))
}

func (s *txStore) GetItems(ctx context.Context, batchID int64) ([]BatchItem, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+itemColumns+` FROM purchase_batch_items WHERE batch_id=$1 ORDER BY id`, batchID)
	if err != nil {
		return nil, err
	}
	return scanItems(rows)
}

func (s *txStore) SetItemCost(ctx context.Context, itemID int64, unitCost, totalCost decimal.Decimal) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE purchase_batch_items SET unit_cost=$2, total_cost=$3 WHERE id=$1`,
		itemID, unitCost, totalCost)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *txStore) SetBatchPriced(ctx context.Context, batchID int64, totalCost decimal.Decimal, status BatchStatus) error {
	_, err := s.tx.Exec(ctx, `UPDATE purchase_batches SET total_cost=$2, status=$3, updated_at=NOW() WHERE id=$1`,
		batchID, totalCost, status)
	return err
}

func (s *txStore) InsertDevice(ctx context.Context, device Device) (Device, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO batch_devices
(batch_id, batch_item_id, serial, product_id, purchase_cost, selling_price, inspection_status, notes, inspected_by, warehouse_id)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id, created_at`,
		device.BatchID, device.BatchItemID, device.Serial, device.ProductID, device.PurchaseCost,
		device.SellingPrice, device.InspectionStatus, device.Notes, device.InspectedBy, device.WarehouseID)
	if err := row.Scan(&device.ID, &device.CreatedAt); err != nil {
		return Device{}, err
	}
	return device, nil
}

func (s *txStore) IncrementItemReceived(ctx context.Context, itemID, delta int64) error {
	_, err := s.tx.Exec(ctx, `UPDATE purchase_batch_items SET received_quantity = received_quantity + $2 WHERE id=$1`,
		itemID, delta)
	return err
}

func (s *txStore) SetBatchProgress(ctx context.Context, batchID, receivedItems int64, status BatchStatus) error {
	_, err := s.tx.Exec(ctx, `UPDATE purchase_batches SET received_items=$2, status=$3, updated_at=NOW() WHERE id=$1`,
		batchID, receivedItems, status)
	return err
}

func (s *txStore) SetJournalEntry(ctx context.Context, batchID, entryID int64) error {
	_, err := s.tx.Exec(ctx, `UPDATE purchase_batches SET journal_entry_id=$2, updated_at=NOW() WHERE id=$1`,
		batchID, entryID)
	return err
}

func (s *txStore) GetDevicesForUpdate(ctx context.Context, batchID int64) ([]Device, error) {
	rows, err := s.tx.Query(ctx, `SELECT id, batch_id, batch_item_id, serial, product_id, purchase_cost,
selling_price, inspection_status, notes, inspected_by, warehouse_id, created_at
FROM batch_devices WHERE batch_id=$1 ORDER BY id FOR UPDATE`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var devices []Device
	for rows.Next() {
		var d Device
		if err := rows.Scan(&d.ID, &d.BatchID, &d.BatchItemID, &d.Serial, &d.ProductID, &d.PurchaseCost,
			&d.SellingPrice, &d.InspectionStatus, &d.Notes, &d.InspectedBy, &d.WarehouseID, &d.CreatedAt); err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (s *txStore) SetDeviceSellingPrice(ctx context.Context, deviceID int64, price decimal.Decimal) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE batch_devices SET selling_price=$2 WHERE id=$1`, deviceID, price)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// EnsureSellableSerial publishes a device to the sellable pool. The insert
// is idempotent so re-running a partially failed release does not duplicate
// serials.
func (s *txStore) EnsureSellableSerial(ctx context.Context, device Device) error {
	_, err := s.tx.Exec(ctx, `INSERT INTO sellable_serials (serial, product_id, device_id, selling_price)
VALUES ($1,$2,$3,$4)
ON CONFLICT (serial) DO NOTHING`,
		device.Serial, device.ProductID, device.ID, device.SellingPrice)
	return err
}

func (s *txStore) SetBatchStatus(ctx context.Context, batchID int64, status BatchStatus) error {
	_, err := s.tx.Exec(ctx, `UPDATE purchase_batches SET status=$2, updated_at=NOW() WHERE id=$1`,
		batchID, status)
	return err
}
