package sales

import (
	"context"
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

type memSalesStore struct {
	invoices map[int64]*Invoice
	items    map[int64][]InvoiceItem
	returns  []Return
	nextID   int64
}

func (s *memSalesStore) InsertInvoice(_ context.Context, inv Invoice) (Invoice, error) {
	s.nextID++
	inv.ID = s.nextID
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	stored := inv
	s.invoices[inv.ID] = &stored
	return inv, nil
}

func (s *memSalesStore) InsertItems(_ context.Context, invoiceID int64, items []InvoiceItem) error {
	s.items[invoiceID] = append([]InvoiceItem(nil), items...)
	return nil
}

func (s *memSalesStore) GetInvoiceForUpdate(_ context.Context, id int64) (Invoice, error) {
	inv, ok := s.invoices[id]
	if !ok {
		return Invoice{}, shared.ErrNotFound
	}
	return *inv, nil
}

func (s *memSalesStore) SetJournalEntry(_ context.Context, invoiceID, entryID int64) error {
	s.invoices[invoiceID].JournalEntryID = &entryID
	return nil
}

func (s *memSalesStore) InsertReturn(_ context.Context, ret Return) (Return, error) {
	s.nextID++
	ret.ID = s.nextID
	ret.CreatedAt = time.Now()
	s.returns = append(s.returns, ret)
	return ret, nil
}

func (s *memSalesStore) ApplyReturn(_ context.Context, invoiceID int64, remaining decimal.Decimal, status InvoiceStatus) error {
	inv := s.invoices[invoiceID]
	inv.RemainingAmount = remaining
	inv.Status = status
	return nil
}

type memSalesRepo struct {
	store  *memSalesStore
	stock  *memStock
	ledger *ledgertest.MemLedger
}

func newMemSalesRepo() *memSalesRepo {
	return &memSalesRepo{
		store:  &memSalesStore{invoices: map[int64]*Invoice{}, items: map[int64][]InvoiceItem{}},
		stock:  &memStock{products: map[int64]*inventory.Product{}},
		ledger: ledgertest.New(),
	}
}

func (r *memSalesRepo) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return fn(ctx, Tx{Store: r.store, Stock: r.stock, Ledger: r.ledger.Tx()})
}

func (r *memSalesRepo) GetInvoice(_ context.Context, id int64) (Invoice, error) {
	inv, ok := r.store.invoices[id]
	if !ok {
		return Invoice{}, shared.ErrNotFound
	}
	out := *inv
	out.Items = append([]InvoiceItem(nil), r.store.items[id]...)
	return out, nil
}

func (r *memSalesRepo) ListInvoices(_ context.Context, _ ListFilter) ([]Invoice, error) {
	var out []Invoice
	for _, inv := range r.store.invoices {
		out = append(out, *inv)
	}
	return out, nil
}

func (r *memSalesRepo) addProduct(id int64, name string, qty int) {
	r.stock.products[id] = &inventory.Product{ID: id, Name: name, Quantity: qty}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func int64Ptr(v int64) *int64 { return &v }

var (
	saleDate  = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)
	testActor = shared.Actor{ID: "u1", Role: "employee"}
)

func newSalesFixture(t *testing.T) (*Service, *memSalesRepo) {
	t.Helper()
	repo := newMemSalesRepo()
	svc := NewService(repo, nil)
	svc.WithNow(func() time.Time { return saleDate })
	return svc, repo
}

func TestCreateInvoicePostsEntryAndDecrementsStock(t *testing.T) {
	svc, repo := newSalesFixture(t)
	repo.addProduct(7, "Laptop", 5)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceCommand{
		Date: saleDate,
		Items: []ItemInput{
			{ProductID: int64Ptr(7), Name: "Laptop", Quantity: 2, UnitPrice: dec("500")},
		},
	}, testActor)
	require.NoError(t, err)
	require.Equal(t, "INV-202603-0001", inv.Number)
	require.True(t, inv.Total.Equal(dec("1000")))
	require.Equal(t, InvoiceUnpaid, inv.Status)
	require.NotNil(t, inv.JournalEntryID)

	entry, ok := repo.ledger.Entry(*inv.JournalEntryID)
	require.True(t, ok)
	require.True(t, entry.TotalDebit.Equal(dec("1000")))
	require.True(t, repo.ledger.Balance(accounts.RoleReceivable).Equal(dec("1000")))
	require.True(t, repo.ledger.Balance(accounts.RoleSales).Equal(dec("1000")))

	require.Equal(t, 3, repo.stock.products[7].Quantity)
}

func TestCreateInvoiceRepeatedProductLinesAggregateStock(t *testing.T) {
	svc, repo := newSalesFixture(t)
	repo.addProduct(7, "Laptop", 5)

	// Two lines of the same product must fail against their combined
	// quantity, not line by line against the same snapshot.
	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceCommand{
		Date: saleDate,
		Items: []ItemInput{
			{ProductID: int64Ptr(7), Name: "Laptop", Quantity: 3, UnitPrice: dec("500")},
			{ProductID: int64Ptr(7), Name: "Laptop", Quantity: 3, UnitPrice: dec("500")},
		},
	}, testActor)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(6), stockErr.Requested)
	require.Equal(t, 5, stockErr.Available)

	require.Empty(t, repo.store.invoices)
	require.Zero(t, repo.ledger.EntryCount())
	require.Equal(t, 5, repo.stock.products[7].Quantity)
}

func TestCreateInvoiceRepeatedProductLinesDecrementOnce(t *testing.T) {
	svc, repo := newSalesFixture(t)
	repo.addProduct(7, "Laptop", 5)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceCommand{
		Date: saleDate,
		Items: []ItemInput{
			{ProductID: int64Ptr(7), Name: "Laptop", Quantity: 2, UnitPrice: dec("500")},
			{ProductID: int64Ptr(7), Name: "Laptop", Quantity: 2, UnitPrice: dec("450")},
		},
	}, testActor)
	require.NoError(t, err)
	require.True(t, inv.Total.Equal(dec("1900")))

	// Stock reflects both lines: 5 - (2+2).
	require.Equal(t, 1, repo.stock.products[7].Quantity)
	require.True(t, repo.ledger.Balance(accounts.RoleReceivable).Equal(dec("1900")))
}

func TestCreateInvoiceInsufficientStock(t *testing.T) {
	svc, repo := newSalesFixture(t)
	repo.addProduct(7, "Laptop", 1)

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceCommand{
		Date: saleDate,
		Items: []ItemInput{
			{ProductID: int64Ptr(7), Name: "Laptop", Quantity: 3, UnitPrice: dec("500")},
		},
	}, testActor)

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Equal(t, int64(7), stockErr.ProductID)
	require.Equal(t, int64(3), stockErr.Requested)
	require.Equal(t, 1, stockErr.Available)

	// Nothing persisted, nothing posted, stock untouched.
	require.Empty(t, repo.store.invoices)
	require.Zero(t, repo.ledger.EntryCount())
	require.Equal(t, 1, repo.stock.products[7].Quantity)
}

func TestCreateInvoiceZeroTotalSkipsPosting(t *testing.T) {
	svc, repo := newSalesFixture(t)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceCommand{
		Date: saleDate,
		Items: []ItemInput{
			{Name: "Warranty replacement", Quantity: 1, UnitPrice: decimal.Zero},
		},
	}, testActor)
	require.NoError(t, err)
	require.Nil(t, inv.JournalEntryID)
	require.Zero(t, repo.ledger.EntryCount())
}

func TestCreateInvoicePaidInFull(t *testing.T) {
	svc, repo := newSalesFixture(t)
	repo.addProduct(7, "Laptop", 5)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceCommand{
		Date:       saleDate,
		PaidAmount: dec("1000"),
		Items: []ItemInput{
			{ProductID: int64Ptr(7), Name: "Laptop", Quantity: 2, UnitPrice: dec("500")},
		},
	}, testActor)
	require.NoError(t, err)
	require.Equal(t, InvoicePaid, inv.Status)
	require.True(t, inv.RemainingAmount.IsZero())
}

func TestCreateReturnExceedingRemaining(t *testing.T) {
	svc, repo := newSalesFixture(t)
	repo.addProduct(7, "Laptop", 5)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceCommand{
		Date: saleDate,
		Items: []ItemInput{
			{ProductID: int64Ptr(7), Name: "Laptop", Quantity: 2, UnitPrice: dec("500")},
		},
	}, testActor)
	require.NoError(t, err)

	_, err = svc.CreateReturn(context.Background(), CreateReturnCommand{
		InvoiceID: inv.ID,
		Amount:    dec("1500"),
		Date:      saleDate,
	}, testActor)

	var retErr *ReturnExceedsRemainingError
	require.ErrorAs(t, err, &retErr)
	require.True(t, retErr.Remaining.Equal(dec("1000")))
	require.Empty(t, repo.store.returns)
}

func TestCreateReturnReversesEntryAndRestoresStock(t *testing.T) {
	svc, repo := newSalesFixture(t)
	repo.addProduct(7, "Laptop", 5)

	inv, err := svc.CreateInvoice(context.Background(), CreateInvoiceCommand{
		Date: saleDate,
		Items: []ItemInput{
			{ProductID: int64Ptr(7), Name: "Laptop", Quantity: 2, UnitPrice: dec("500")},
		},
	}, testActor)
	require.NoError(t, err)
	require.Equal(t, 3, repo.stock.products[7].Quantity)

	ret, err := svc.CreateReturn(context.Background(), CreateReturnCommand{
		InvoiceID: inv.ID,
		Amount:    dec("1000"),
		Date:      saleDate,
		Items:     []ReturnItemInput{{ProductID: 7, Quantity: 2}},
	}, testActor)
	require.NoError(t, err)
	require.Equal(t, "RET-202603-0001", ret.Number)

	// Reversing entry cancels the revenue posting.
	require.True(t, repo.ledger.Balance(accounts.RoleReceivable).IsZero())
	require.True(t, repo.ledger.Balance(accounts.RoleSales).IsZero())

	stored, err := repo.GetInvoice(context.Background(), inv.ID)
	require.NoError(t, err)
	require.True(t, stored.RemainingAmount.IsZero())
	require.Equal(t, InvoicePaid, stored.Status)

	require.Equal(t, 5, repo.stock.products[7].Quantity)
}

func TestCreateInvoiceValidation(t *testing.T) {
	svc, _ := newSalesFixture(t)

	_, err := svc.CreateInvoice(context.Background(), CreateInvoiceCommand{Date: saleDate}, testActor)
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.CreateInvoice(context.Background(), CreateInvoiceCommand{
		Date:  saleDate,
		Items: []ItemInput{{Name: "x", Quantity: 0, UnitPrice: dec("10")}},
	}, testActor)
	require.ErrorIs(t, err, shared.ErrValidation)
}
