package purchasing

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bi-platform/bi-ledger/internal/inventory"
	"github.com/bi-platform/bi-ledger/internal/ledger/accounts"
	"github.com/bi-platform/bi-ledger/internal/ledger/ledgertest"
	"github.com/bi-platform/bi-ledger/internal/shared"
)

type memStock struct {
	products map[int64]*inventory.Product
}

func (s *memStock) GetForUpdate(_ context.Context, productID int64) (inventory.Product, error) {
	p, ok := s.products[productID]
	if !ok {
		return inventory.Product{}, shared.ErrNotFound
	}
	return *p, nil
}

func (s *memStock) SetQuantity(_ context.Context, productID int64, quantity int) error {
	p, ok := s.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	p.Quantity = quantity
	return nil
}

func (s *memStock) Increment(_ context.Context, productID int64, delta int) error {
	p, ok := s.products[productID]
	if !ok {
		return shared.ErrNotFound
	}
	p.Quantity += delta
	return nil
}

type memBatchStore struct {
	batches  map[int64]*Batch
	items    map[int64][]BatchItem
	devices  map[int64][]Device
	sellable map[string]bool
	nextID   int64
}

func newMemBatchStore() *memBatchStore {
	return &memBatchStore{
		batches:  map[int64]*Batch{},
		items:    map[int64][]BatchItem{},
		devices:  map[int64][]Device{},
		sellable: map[string]bool{},
	}
}

func (s *memBatchStore) InsertBatch(_ context.Context, batch Batch) (Batch, error) {
	s.nextID++
	batch.ID = s.nextID
	batch.CreatedAt = time.Now()
	batch.UpdatedAt = batch.CreatedAt
	stored := batch
	s.batches[batch.ID] = &stored
	return batch, nil
}

func (s *memBatchStore) InsertItems(_ context.Context, batchID int64, items []BatchItem) error {
	for i := range items {
		s.nextID++
		items[i].ID = s.nextID
		items[i].BatchID = batchID
	}
	s.items[batchID] = append([]BatchItem(nil), items...)
	return nil
}

func (s *memBatchStore) GetBatchForUpdate(_ context.Context, id int64) (Batch, error) {
	b, ok := s.batches[id]
	if !ok {
		return Batch{}, shared.ErrNotFound
	}
	return *b, nil
}

func (s *memBatchStore) GetItems(_ context.Context, batchID int64) ([]BatchItem, error) {
	return append([]BatchItem(nil), s.items[batchID]...), nil
}

func (s *memBatchStore) SetItemCost(_ context.Context, itemID int64, unitCost, totalCost decimal.Decimal) error {
	for batchID := range s.items {
		for i := range s.items[batchID] {
			if s.items[batchID][i].ID == itemID {
				s.items[batchID][i].UnitCost = unitCost
				s.items[batchID][i].TotalCost = totalCost
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

func (s *memBatchStore) SetBatchPriced(_ context.Context, batchID int64, totalCost decimal.Decimal, status BatchStatus) error {
	b := s.batches[batchID]
	b.TotalCost = totalCost
	b.Status = status
	return nil
}

func (s *memBatchStore) InsertDevice(_ context.Context, device Device) (Device, error) {
	s.nextID++
	device.ID = s.nextID
	device.CreatedAt = time.Now()
	s.devices[device.BatchID] = append(s.devices[device.BatchID], device)
	return device, nil
}

func (s *memBatchStore) IncrementItemReceived(_ context.Context, itemID, delta int64) error {
	for batchID := range s.items {
		for i := range s.items[batchID] {
			if s.items[batchID][i].ID == itemID {
				s.items[batchID][i].ReceivedQuantity += delta
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

func (s *memBatchStore) SetBatchProgress(_ context.Context, batchID, receivedItems int64, status BatchStatus) error {
	b := s.batches[batchID]
	b.ReceivedItems = receivedItems
	b.Status = status
	return nil
}

func (s *memBatchStore) SetJournalEntry(_ context.Context, batchID, entryID int64) error {
	s.batches[batchID].JournalEntryID = &entryID
	return nil
}

func (s *memBatchStore) GetDevicesForUpdate(_ context.Context, batchID int64) ([]Device, error) {
	return append([]Device(nil), s.devices[batchID]...), nil
}

func (s *memBatchStore) SetDeviceSellingPrice(_ context.Context, deviceID int64, price decimal.Decimal) error {
	for batchID := range s.devices {
		for i := range s.devices[batchID] {
			if s.devices[batchID][i].ID == deviceID {
				s.devices[batchID][i].SellingPrice = price
				return nil
			}
		}
	}
	return shared.ErrNotFound
}

func (s *memBatchStore) EnsureSellableSerial(_ context.Context, device Device) error {
	s.sellable[device.Serial] = true
	return nil
}

func (s *memBatchStore) SetBatchStatus(_ context.Context, batchID int64, status BatchStatus) error {
	s.batches[batchID].Status = status
	return nil
}

type memPurchasingRepo struct {
	store  *memBatchStore
	stock  *memStock
	ledger *ledgertest.MemLedger
}

func newMemPurchasingRepo() *memPurchasingRepo {
	return &memPurchasingRepo{
		store:  newMemBatchStore(),
		stock:  &memStock{products: map[int64]*inventory.Product{}},
		ledger: ledgertest.New(),
	}
}

func (r *memPurchasingRepo) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return fn(ctx, Tx{Store: r.store, Stock: r.stock, Ledger: r.ledger.Tx()})
}

func (r *memPurchasingRepo) GetBatch(_ context.Context, id int64) (Batch, error) {
	b, ok := r.store.batches[id]
	if !ok {
		return Batch{}, shared.ErrNotFound
	}
	out := *b
	out.Items = append([]BatchItem(nil), r.store.items[id]...)
	return out, nil
}

func (r *memPurchasingRepo) ListBatches(_ context.Context, _ ListFilter) ([]Batch, error) {
	var out []Batch
	for _, b := range r.store.batches {
		out = append(out, *b)
	}
	return out, nil
}

func (r *memPurchasingRepo) Stats(_ context.Context) (Stats, error) {
	stats := Stats{ByStatus: map[BatchStatus]int64{}, TotalCost: decimal.Zero}
	for _, b := range r.store.batches {
		stats.ByStatus[b.Status]++
		stats.BatchCount++
		stats.TotalCost = stats.TotalCost.Add(b.TotalCost)
	}
	return stats, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func int64Ptr(v int64) *int64 { return &v }

var (
	receiveDate = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	employee    = shared.Actor{ID: "emp1", Role: "employee"}
	manager     = shared.Actor{ID: "mgr1", Role: "manager"}
)

func newPurchasingFixture(t *testing.T) (*Service, *memPurchasingRepo) {
	t.Helper()
	repo := newMemPurchasingRepo()
	svc := NewService(repo, nil, nil, slog.Default())
	svc.WithNow(func() time.Time { return receiveDate })
	return svc, repo
}

// createPricedBatch walks a fresh batch to ready_for_receiving: two laptops
// at 400 and one phone at 200, total cost 1000.
func createPricedBatch(t *testing.T, svc *Service, repo *memPurchasingRepo) Batch {
	t.Helper()
	repo.stock.products[1] = &inventory.Product{ID: 1, Name: "Laptop", Quantity: 0}
	repo.stock.products[2] = &inventory.Product{ID: 2, Name: "Phone", Quantity: 0}

	batch, err := svc.CreateBatch(context.Background(), CreateBatchCommand{
		Items: []BatchItemInput{
			{ProductID: int64Ptr(1), Name: "Laptop", Quantity: 2},
			{ProductID: int64Ptr(2), Name: "Phone", Quantity: 1},
		},
	}, employee)
	require.NoError(t, err)

	items := repo.store.items[batch.ID]
	batch, err = svc.AddPrices(context.Background(), AddPricesCommand{
		BatchID: batch.ID,
		Prices: []ItemPriceInput{
			{ItemID: items[0].ID, UnitCost: dec("400")},
			{ItemID: items[1].ID, UnitCost: dec("200")},
		},
	}, manager)
	require.NoError(t, err)
	require.Equal(t, StatusReadyForReceiving, batch.Status)
	require.True(t, batch.TotalCost.Equal(dec("1000")))
	return batch
}

func TestCreateBatchStartsAwaitingPrices(t *testing.T) {
	svc, repo := newPurchasingFixture(t)

	batch, err := svc.CreateBatch(context.Background(), CreateBatchCommand{
		Items: []BatchItemInput{
			{ProductID: int64Ptr(1), Name: "Laptop", Quantity: 2},
		},
	}, employee)
	require.NoError(t, err)
	require.Equal(t, "PB-202603-0001", batch.Number)
	require.Equal(t, StatusAwaitingPrices, batch.Status)
	require.Equal(t, int64(2), batch.TotalItems)
	require.Len(t, repo.store.items[batch.ID], 1)
}

func TestAddPricesRequiresManager(t *testing.T) {
	svc, repo := newPurchasingFixture(t)
	batch, err := svc.CreateBatch(context.Background(), CreateBatchCommand{
		Items: []BatchItemInput{{Name: "Laptop", Quantity: 1}},
	}, employee)
	require.NoError(t, err)

	items := repo.store.items[batch.ID]
	_, err = svc.AddPrices(context.Background(), AddPricesCommand{
		BatchID: batch.ID,
		Prices:  []ItemPriceInput{{ItemID: items[0].ID, UnitCost: dec("100")}},
	}, employee)
	require.ErrorIs(t, err, shared.ErrForbidden)
}

func TestAddPricesRejectedOutsideAwaitingPrices(t *testing.T) {
	svc, repo := newPurchasingFixture(t)
	batch := createPricedBatch(t, svc, repo)

	items := repo.store.items[batch.ID]
	_, err := svc.AddPrices(context.Background(), AddPricesCommand{
		BatchID: batch.ID,
		Prices:  []ItemPriceInput{{ItemID: items[0].ID, UnitCost: dec("999")}},
	}, manager)

	var stateErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, StatusReadyForReceiving, stateErr.Status)
}

func TestReceiveDevicesPartialThenComplete(t *testing.T) {
	svc, repo := newPurchasingFixture(t)
	batch := createPricedBatch(t, svc, repo)
	items := repo.store.items[batch.ID]

	// First delivery: 2 of 3 units.
	batch, err := svc.ReceiveDevices(context.Background(), ReceiveDevicesCommand{
		BatchID: batch.ID,
		Devices: []DeviceInput{
			{BatchItemID: items[0].ID, InspectionStatus: "ok"},
			{BatchItemID: items[1].ID, InspectionStatus: "ok"},
		},
	}, employee)
	require.NoError(t, err)
	require.Equal(t, StatusReceiving, batch.Status)
	require.Equal(t, int64(2), batch.ReceivedItems)
	require.Nil(t, batch.JournalEntryID)
	require.Zero(t, repo.ledger.EntryCount())
	require.Equal(t, 0, repo.stock.products[1].Quantity)

	// Second delivery completes the batch.
	batch, err = svc.ReceiveDevices(context.Background(), ReceiveDevicesCommand{
		BatchID: batch.ID,
		Devices: []DeviceInput{
			{BatchItemID: items[0].ID, InspectionStatus: "ok"},
		},
	}, employee)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, batch.Status)
	require.Equal(t, int64(3), batch.ReceivedItems)
	require.NotNil(t, batch.JournalEntryID)

	// One entry: debit Inventory, credit Payable, for the full cost.
	require.Equal(t, 1, repo.ledger.EntryCount())
	require.True(t, repo.ledger.Balance(accounts.RoleInventory).Equal(dec("1000")))
	require.True(t, repo.ledger.Balance(accounts.RolePayable).Equal(dec("1000")))

	// Stock incremented per product, once.
	require.Equal(t, 2, repo.stock.products[1].Quantity)
	require.Equal(t, 1, repo.stock.products[2].Quantity)

	// Every unit got a distinct serial.
	devices := repo.store.devices[batch.ID]
	require.Len(t, devices, 3)
	serials := map[string]bool{}
	for _, d := range devices {
		require.NotEmpty(t, d.Serial)
		serials[d.Serial] = true
	}
	require.Len(t, serials, 3)
}

func TestReceiveDevicesRejectsOverDelivery(t *testing.T) {
	svc, repo := newPurchasingFixture(t)
	batch := createPricedBatch(t, svc, repo)
	items := repo.store.items[batch.ID]

	_, err := svc.ReceiveDevices(context.Background(), ReceiveDevicesCommand{
		BatchID: batch.ID,
		Devices: []DeviceInput{
			{BatchItemID: items[1].ID, InspectionStatus: "ok"},
			{BatchItemID: items[1].ID, InspectionStatus: "ok"},
		},
	}, employee)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestReceiveDevicesRejectedBeforePricing(t *testing.T) {
	svc, repo := newPurchasingFixture(t)
	batch, err := svc.CreateBatch(context.Background(), CreateBatchCommand{
		Items: []BatchItemInput{{Name: "Laptop", Quantity: 1}},
	}, employee)
	require.NoError(t, err)

	items := repo.store.items[batch.ID]
	_, err = svc.ReceiveDevices(context.Background(), ReceiveDevicesCommand{
		BatchID: batch.ID,
		Devices: []DeviceInput{{BatchItemID: items[0].ID}},
	}, employee)

	var stateErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &stateErr)
	require.Equal(t, StatusAwaitingPrices, stateErr.Status)
}

func receiveAll(t *testing.T, svc *Service, repo *memPurchasingRepo, batch Batch) Batch {
	t.Helper()
	items := repo.store.items[batch.ID]
	batch, err := svc.ReceiveDevices(context.Background(), ReceiveDevicesCommand{
		BatchID: batch.ID,
		Devices: []DeviceInput{
			{BatchItemID: items[0].ID, InspectionStatus: "ok"},
			{BatchItemID: items[0].ID, InspectionStatus: "ok"},
			{BatchItemID: items[1].ID, InspectionStatus: "ok"},
		},
	}, employee)
	require.NoError(t, err)
	require.Equal(t, StatusReceived, batch.Status)
	return batch
}

func TestAddSellingPricesReleasesBatch(t *testing.T) {
	svc, repo := newPurchasingFixture(t)
	batch := createPricedBatch(t, svc, repo)
	batch = receiveAll(t, svc, repo, batch)

	devices := repo.store.devices[batch.ID]
	prices := make([]DevicePriceInput, 0, len(devices))
	for _, d := range devices {
		prices = append(prices, DevicePriceInput{DeviceID: d.ID, SellingPrice: dec("599")})
	}

	batch, err := svc.AddSellingPrices(context.Background(), AddSellingPricesCommand{
		BatchID: batch.ID,
		Prices:  prices,
	}, manager)
	require.NoError(t, err)
	require.Equal(t, StatusReadyToSell, batch.Status)
	require.Len(t, repo.store.sellable, 3)
}

func TestAddSellingPricesRequiresManagerAndReceivedState(t *testing.T) {
	svc, repo := newPurchasingFixture(t)
	batch := createPricedBatch(t, svc, repo)

	_, err := svc.AddSellingPrices(context.Background(), AddSellingPricesCommand{
		BatchID: batch.ID,
		Prices:  []DevicePriceInput{{DeviceID: 1, SellingPrice: dec("599")}},
	}, employee)
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.AddSellingPrices(context.Background(), AddSellingPricesCommand{
		BatchID: batch.ID,
		Prices:  []DevicePriceInput{{DeviceID: 1, SellingPrice: dec("599")}},
	}, manager)
	var stateErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &stateErr)
}

func TestStatsCountsByStatus(t *testing.T) {
	svc, repo := newPurchasingFixture(t)
	createPricedBatch(t, svc, repo)

	_, err := svc.CreateBatch(context.Background(), CreateBatchCommand{
		Items: []BatchItemInput{{Name: "Tablet", Quantity: 1}},
	}, employee)
	require.NoError(t, err)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.BatchCount)
	require.Equal(t, int64(1), stats.ByStatus[StatusAwaitingPrices])
	require.Equal(t, int64(1), stats.ByStatus[StatusReadyForReceiving])
}
