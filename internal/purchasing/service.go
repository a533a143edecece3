package purchasing

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bi-platform/bi-ledger/internal/ledger/accounts"
	"github.com/bi-platform/bi-ledger/internal/ledger/journals"
	"github.com/bi-platform/bi-ledger/internal/ledger/numbering"
	"github.com/bi-platform/bi-ledger/internal/platform/cache"
	"github.com/bi-platform/bi-ledger/internal/shared"
)

// AuditPort records structured events after successful commits.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Notifier enqueues batch notifications. Delivery happens out of band; a
// failed enqueue is logged and never fails the transaction.
type Notifier interface {
	NotifyBatch(ctx context.Context, batchID int64, number string, status BatchStatus) error
}

// BatchItemInput declares one expected product position.
type BatchItemInput struct {
	ProductID *int64
	Name      string
	Quantity  int64
}

type CreateBatchCommand struct {
	SupplierID  *int64
	WarehouseID *int64
	Items       []BatchItemInput
}

// ItemPriceInput carries the purchase cost for one batch item.
type ItemPriceInput struct {
	ItemID   int64
	UnitCost decimal.Decimal
}

type AddPricesCommand struct {
	BatchID int64
	Prices  []ItemPriceInput
}

// DeviceInput describes one inspected unit to register.
type DeviceInput struct {
	BatchItemID      int64
	InspectionStatus string
	Notes            string
}

type ReceiveDevicesCommand struct {
	BatchID     int64
	WarehouseID *int64
	Devices     []DeviceInput
}

// DevicePriceInput carries the selling price for one device.
type DevicePriceInput struct {
	DeviceID     int64
	SellingPrice decimal.Decimal
}

type AddSellingPricesCommand struct {
	BatchID int64
	Prices  []DevicePriceInput
}

// Service drives the purchase batch state machine.
type Service struct {
	repo     Repository
	audit    AuditPort
	notifier Notifier
	logger   *slog.Logger
	cache    *cache.Cache
	now      func() time.Time
}

func NewService(repo Repository, audit AuditPort, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, notifier: notifier, logger: logger, now: time.Now}
}

// WithCache enables stats caching. State transitions bump the cache version.
func (s *Service) WithCache(c *cache.Cache) {
	s.cache = c
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) GetBatch(ctx context.Context, id int64) (Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

func (s *Service) ListBatches(ctx context.Context, filter ListFilter) ([]Batch, error) {
	return s.repo.ListBatches(ctx, filter)
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if s.cache == nil {
		return s.repo.Stats(ctx)
	}
	key, err := s.cache.BuildKey(ctx, "purchasing", "stats")
	if err != nil {
		s.logger.Warn("stats cache key", slog.Any("error", err))
		return s.repo.Stats(ctx)
	}
	var stats Stats
	err = s.cache.FetchJSON(ctx, key, &stats, func(ctx context.Context) (interface{}, error) {
		return s.repo.Stats(ctx)
	})
	if err != nil {
		s.logger.Warn("stats cache fetch", slog.Any("error", err))
		return s.repo.Stats(ctx)
	}
	return stats, nil
}

// invalidateStats is called after any committed state change. A failed bump
// only delays freshness until the TTL expires.
func (s *Service) invalidateStats(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("stats cache bump", slog.Any("error", err))
	}
}

// CreateBatch registers a new intake in awaiting_prices. Costs are unknown
// at this point; a manager supplies them later.
func (s *Service) CreateBatch(ctx context.Context, cmd CreateBatchCommand, actor shared.Actor) (Batch, error) {
	if len(cmd.Items) == 0 {
		return Batch{}, shared.ErrValidation
	}
	var totalItems int64
	for _, item := range cmd.Items {
		if item.Quantity <= 0 || item.Name == "" {
			return Batch{}, shared.ErrValidation
		}
		totalItems += item.Quantity
	}
	now := s.now()
	var batch Batch
	err := numbering.WithRetry(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			number, err := tx.Ledger.Numbers.Next(ctx, numbering.ScopeBatch, now)
			if err != nil {
				return err
			}
			b := Batch{
				Number:      number,
				SupplierID:  cmd.SupplierID,
				WarehouseID: cmd.WarehouseID,
				Status:      StatusAwaitingPrices,
				TotalItems:  totalItems,
				TotalCost:   decimal.Zero,
				CreatedBy:   actor.ID,
			}
			b, err = tx.Store.InsertBatch(ctx, b)
			if err != nil {
				return err
			}
			items := make([]BatchItem, 0, len(cmd.Items))
			for _, in := range cmd.Items {
				items = append(items, BatchItem{
					BatchID:   b.ID,
					ProductID: in.ProductID,
					Name:      in.Name,
					Quantity:  in.Quantity,
					UnitCost:  decimal.Zero,
					TotalCost: decimal.Zero,
				})
			}
			if err := tx.Store.InsertItems(ctx, b.ID, items); err != nil {
				return err
			}
			b.Items = items
			batch = b
			return nil
		})
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, actor, "batch.create", batch.ID, map[string]any{"number": batch.Number})
	s.invalidateStats(ctx)
	s.notify(ctx, batch)
	return batch, nil
}

// AddPrices sets purchase costs and moves the batch to ready_for_receiving.
// Prices are money decisions, so only managers may call this.
func (s *Service) AddPrices(ctx context.Context, cmd AddPricesCommand, actor shared.Actor) (Batch, error) {
	if !actor.IsManager() {
		return Batch{}, shared.ErrForbidden
	}
	if len(cmd.Prices) == 0 {
		return Batch{}, shared.ErrValidation
	}
	var batch Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.Store.GetBatchForUpdate(ctx, cmd.BatchID)
		if err != nil {
			return err
		}
		if b.Status != StatusAwaitingPrices {
			return &InvalidStateTransitionError{BatchID: b.ID, Status: b.Status, Operation: "add prices"}
		}
		items, err := tx.Store.GetItems(ctx, b.ID)
		if err != nil {
			return err
		}
		byID := make(map[int64]*BatchItem, len(items))
		for i := range items {
			byID[items[i].ID] = &items[i]
		}
		for _, price := range cmd.Prices {
			item, ok := byID[price.ItemID]
			if !ok {
				return shared.ErrNotFound
			}
			if price.UnitCost.IsNegative() {
				return shared.ErrValidation
			}
			item.UnitCost = price.UnitCost
			item.TotalCost = price.UnitCost.Mul(decimal.NewFromInt(item.Quantity))
			if err := tx.Store.SetItemCost(ctx, item.ID, item.UnitCost, item.TotalCost); err != nil {
				return err
			}
		}
		total := decimal.Zero
		for _, item := range items {
			total = total.Add(item.TotalCost)
		}
		if err := tx.Store.SetBatchPriced(ctx, b.ID, total, StatusReadyForReceiving); err != nil {
			return err
		}
		b.TotalCost = total
		b.Status = StatusReadyForReceiving
		b.Items = items
		batch = b
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, actor, "batch.price", batch.ID, map[string]any{
		"number":    batch.Number,
		"totalCost": batch.TotalCost.String(),
	})
	s.invalidateStats(ctx)
	s.notify(ctx, batch)
	return batch, nil
}

// ReceiveDevices registers inspected units against the batch. The call is
// resumable: partial deliveries leave the batch in receiving. Completing
// the last unit posts the inventory entry and increments product stock,
// exactly once.
func (s *Service) ReceiveDevices(ctx context.Context, cmd ReceiveDevicesCommand, actor shared.Actor) (Batch, error) {
	if len(cmd.Devices) == 0 {
		return Batch{}, shared.ErrValidation
	}
	now := s.now()
	var batch Batch
	err := numbering.WithRetry(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			b, err := tx.Store.GetBatchForUpdate(ctx, cmd.BatchID)
			if err != nil {
				return err
			}
			if b.Status != StatusReadyForReceiving && b.Status != StatusReceiving {
				return &InvalidStateTransitionError{BatchID: b.ID, Status: b.Status, Operation: "receive devices"}
			}
			items, err := tx.Store.GetItems(ctx, b.ID)
			if err != nil {
				return err
			}
			byID := make(map[int64]*BatchItem, len(items))
			for i := range items {
				byID[items[i].ID] = &items[i]
			}
			warehouseID := cmd.WarehouseID
			if warehouseID == nil {
				warehouseID = b.WarehouseID
			}
			for _, in := range cmd.Devices {
				item, ok := byID[in.BatchItemID]
				if !ok {
					return shared.ErrNotFound
				}
				if item.ReceivedQuantity >= item.Quantity {
					return shared.ErrValidation
				}
				serial, err := tx.Ledger.Numbers.Next(ctx, numbering.ScopeSerial, now)
				if err != nil {
					return err
				}
				if _, err := tx.Store.InsertDevice(ctx, Device{
					BatchID:          b.ID,
					BatchItemID:      item.ID,
					Serial:           serial,
					ProductID:        item.ProductID,
					PurchaseCost:     item.UnitCost,
					SellingPrice:     decimal.Zero,
					InspectionStatus: in.InspectionStatus,
					Notes:            in.Notes,
					InspectedBy:      actor.ID,
					WarehouseID:      warehouseID,
				}); err != nil {
					return err
				}
				if err := tx.Store.IncrementItemReceived(ctx, item.ID, 1); err != nil {
					return err
				}
				item.ReceivedQuantity++
				b.ReceivedItems++
			}

			status := StatusReceiving
			if b.ReceivedItems >= b.TotalItems {
				status = StatusReceived
			}
			if err := tx.Store.SetBatchProgress(ctx, b.ID, b.ReceivedItems, status); err != nil {
				return err
			}
			b.Status = status

			if status == StatusReceived {
				if b.TotalCost.IsPositive() {
					if err := tx.Ledger.Accounts.EnsureSystemAccounts(ctx); err != nil {
						return err
					}
					inventoryAcct, err := tx.Ledger.Accounts.Resolve(ctx, accounts.RoleInventory)
					if err != nil {
						return err
					}
					payable, err := tx.Ledger.Accounts.Resolve(ctx, accounts.RolePayable)
					if err != nil {
						return err
					}
					entry, err := tx.Ledger.CreateAndPost(ctx, journals.CreateDraftCommand{
						Date:          now,
						Description:   "Purchase batch " + b.Number + " received",
						ReferenceType: "purchase_batch",
						ReferenceID:   &b.ID,
						Lines: []journals.LineInput{
							{AccountID: inventoryAcct.ID, Debit: b.TotalCost},
							{AccountID: payable.ID, Credit: b.TotalCost},
						},
					}, actor.ID, now)
					if err != nil {
						return err
					}
					if err := tx.Store.SetJournalEntry(ctx, b.ID, entry.ID); err != nil {
						return err
					}
					b.JournalEntryID = &entry.ID
				}

				// Aggregate per product so each stock row is touched once.
				increments := map[int64]int64{}
				for _, item := range items {
					if item.ProductID != nil {
						increments[*item.ProductID] += item.ReceivedQuantity
					}
				}
				for productID, qty := range increments {
					if err := tx.Stock.Increment(ctx, productID, int(qty)); err != nil {
						return err
					}
				}
			}
			b.Items = items
			batch = b
			return nil
		})
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, actor, "batch.receive", batch.ID, map[string]any{
		"number":   batch.Number,
		"received": batch.ReceivedItems,
		"status":   string(batch.Status),
	})
	s.invalidateStats(ctx)
	if batch.Status == StatusReceived {
		s.notify(ctx, batch)
	}
	return batch, nil
}

// AddSellingPrices publishes received devices to the sellable pool and
// closes the batch. Re-running after a partial failure skips serials that
// already exist.
func (s *Service) AddSellingPrices(ctx context.Context, cmd AddSellingPricesCommand, actor shared.Actor) (Batch, error) {
	if !actor.IsManager() {
		return Batch{}, shared.ErrForbidden
	}
	if len(cmd.Prices) == 0 {
		return Batch{}, shared.ErrValidation
	}
	var batch Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		b, err := tx.Store.GetBatchForUpdate(ctx, cmd.BatchID)
		if err != nil {
			return err
		}
		if b.Status != StatusReceived {
			return &InvalidStateTransitionError{BatchID: b.ID, Status: b.Status, Operation: "add selling prices"}
		}
		devices, err := tx.Store.GetDevicesForUpdate(ctx, b.ID)
		if err != nil {
			return err
		}
		byID := make(map[int64]*Device, len(devices))
		for i := range devices {
			byID[devices[i].ID] = &devices[i]
		}
		for _, price := range cmd.Prices {
			device, ok := byID[price.DeviceID]
			if !ok {
				return shared.ErrNotFound
			}
			if !price.SellingPrice.IsPositive() {
				return shared.ErrValidation
			}
			device.SellingPrice = price.SellingPrice
			if err := tx.Store.SetDeviceSellingPrice(ctx, device.ID, price.SellingPrice); err != nil {
				return err
			}
			if err := tx.Store.EnsureSellableSerial(ctx, *device); err != nil {
				return err
			}
		}
		if err := tx.Store.SetBatchStatus(ctx, b.ID, StatusReadyToSell); err != nil {
			return err
		}
		b.Status = StatusReadyToSell
		batch = b
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, actor, "batch.release", batch.ID, map[string]any{"number": batch.Number})
	s.invalidateStats(ctx)
	s.notify(ctx, batch)
	return batch, nil
}

func (s *Service) notify(ctx context.Context, batch Batch) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyBatch(ctx, batch.ID, batch.Number, batch.Status); err != nil {
		s.logger.Warn("batch notification enqueue failed",
			slog.Int64("batch_id", batch.ID), slog.Any("error", err))
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, batchID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "purchase_batch",
		EntityID: strconv.FormatInt(batchID, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
