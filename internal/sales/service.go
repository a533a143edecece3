package sales

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bi-platform/bi-ledger/internal/ledger/accounts"
	"github.com/bi-platform/bi-ledger/internal/ledger/journals"
	"github.com/bi-platform/bi-ledger/internal/ledger/numbering"
	"github.com/bi-platform/bi-ledger/internal/shared"
)

// AuditPort records structured events after successful commits.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ItemInput is one requested sale line.
type ItemInput struct {
	ProductID *int64
	Name      string
	Quantity  int64
	UnitPrice decimal.Decimal
}

// CreateInvoiceCommand groups the inputs of one sale.
type CreateInvoiceCommand struct {
	Type        string
	PaymentType string
	CustomerID  *int64
	Date        time.Time
	Discount    decimal.Decimal
	PaidAmount  decimal.Decimal
	Items       []ItemInput
}

// ReturnItemInput restocks one product as part of a return.
type ReturnItemInput struct {
	ProductID int64
	Quantity  int64
}

// CreateReturnCommand groups the inputs of one invoice return.
type CreateReturnCommand struct {
	InvoiceID int64
	Amount    decimal.Decimal
	Date      time.Time
	Notes     string
	Items     []ReturnItemInput
}

// Service is the sale orchestrator. Each operation runs in a single
// transaction covering the document, the stock movement and the ledger
// posting.
type Service struct {
	repo  Repository
	audit AuditPort
	now   func() time.Time
}

func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) ListInvoices(ctx context.Context, filter ListFilter) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, filter)
}

// CreateInvoice checks stock, stores the invoice with its items, posts the
// revenue entry and decrements stock, all in one transaction. A shortage on
// any stocked item aborts the whole sale.
func (s *Service) CreateInvoice(ctx context.Context, cmd CreateInvoiceCommand, actor shared.Actor) (Invoice, error) {
	if len(cmd.Items) == 0 {
		return Invoice{}, shared.ErrValidation
	}
	subtotal := decimal.Zero
	for _, item := range cmd.Items {
		if item.Quantity <= 0 || item.UnitPrice.IsNegative() {
			return Invoice{}, shared.ErrValidation
		}
		subtotal = subtotal.Add(item.UnitPrice.Mul(decimal.NewFromInt(item.Quantity)))
	}
	if cmd.Discount.IsNegative() || cmd.Discount.GreaterThan(subtotal) {
		return Invoice{}, shared.ErrValidation
	}
	total := subtotal.Sub(cmd.Discount)
	paid := cmd.PaidAmount
	if paid.IsNegative() || paid.GreaterThan(total) {
		return Invoice{}, shared.ErrValidation
	}

	now := s.now()
	var invoice Invoice
	err := numbering.WithRetry(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			// Aggregate per product first; one invoice may list the same
			// product on several lines and availability must hold for the
			// combined quantity.
			requested := map[int64]int64{}
			var productOrder []int64
			for _, item := range cmd.Items {
				if item.ProductID == nil {
					continue
				}
				if _, seen := requested[*item.ProductID]; !seen {
					productOrder = append(productOrder, *item.ProductID)
				}
				requested[*item.ProductID] += item.Quantity
			}

			// Lock every stocked product before writing anything; a shortfall
			// on the last product must abort the stock taken for the first.
			type locked struct {
				productID int64
				remaining int
			}
			decrements := make([]locked, 0, len(productOrder))
			for _, productID := range productOrder {
				product, err := tx.Stock.GetForUpdate(ctx, productID)
				if err != nil {
					return err
				}
				qty := requested[productID]
				if int64(product.Quantity) < qty {
					return &InsufficientStockError{
						ProductID: product.ID,
						Name:      product.Name,
						Requested: qty,
						Available: product.Quantity,
					}
				}
				decrements = append(decrements, locked{
					productID: product.ID,
					remaining: product.Quantity - int(qty),
				})
			}

			number, err := tx.Ledger.Numbers.Next(ctx, numbering.ScopeInvoice, now)
			if err != nil {
				return err
			}
			inv := Invoice{
				Number:          number,
				Type:            cmd.Type,
				PaymentType:     cmd.PaymentType,
				CustomerID:      cmd.CustomerID,
				Subtotal:        subtotal,
				Total:           total,
				PaidAmount:      paid,
				RemainingAmount: total.Sub(paid),
				Status:          settlementStatus(total.Sub(paid), paid),
				CreatedBy:       actor.ID,
			}
			inv, err = tx.Store.InsertInvoice(ctx, inv)
			if err != nil {
				return err
			}
			items := make([]InvoiceItem, 0, len(cmd.Items))
			for _, in := range cmd.Items {
				items = append(items, InvoiceItem{
					InvoiceID: inv.ID,
					ProductID: in.ProductID,
					Name:      in.Name,
					Quantity:  in.Quantity,
					UnitPrice: in.UnitPrice,
					Total:     in.UnitPrice.Mul(decimal.NewFromInt(in.Quantity)),
				})
			}
			if err := tx.Store.InsertItems(ctx, inv.ID, items); err != nil {
				return err
			}
			inv.Items = items

			if total.IsPositive() {
				if err := tx.Ledger.Accounts.EnsureSystemAccounts(ctx); err != nil {
					return err
				}
				receivable, err := tx.Ledger.Accounts.Resolve(ctx, accounts.RoleReceivable)
				if err != nil {
					return err
				}
				revenue, err := tx.Ledger.Accounts.Resolve(ctx, accounts.RoleSales)
				if err != nil {
					return err
				}
				entry, err := tx.Ledger.CreateAndPost(ctx, journals.CreateDraftCommand{
					Date:          cmd.Date,
					Description:   "Sale " + inv.Number,
					ReferenceType: "invoice",
					ReferenceID:   &inv.ID,
					Lines: []journals.LineInput{
						{AccountID: receivable.ID, Debit: total},
						{AccountID: revenue.ID, Credit: total},
					},
				}, actor.ID, now)
				if err != nil {
					return err
				}
				if err := tx.Store.SetJournalEntry(ctx, inv.ID, entry.ID); err != nil {
					return err
				}
				inv.JournalEntryID = &entry.ID
			}

			for _, dec := range decrements {
				if err := tx.Stock.SetQuantity(ctx, dec.productID, dec.remaining); err != nil {
					return err
				}
			}
			invoice = inv
			return nil
		})
	})
	if err != nil {
		return Invoice{}, err
	}
	s.recordAudit(ctx, actor, "invoice.create", invoice.ID, map[string]any{
		"number": invoice.Number,
		"total":  invoice.Total.String(),
	})
	return invoice, nil
}

// CreateReturn records a return against an invoice, posts the reversing
// entry and restocks the returned products.
func (s *Service) CreateReturn(ctx context.Context, cmd CreateReturnCommand, actor shared.Actor) (Return, error) {
	if !cmd.Amount.IsPositive() {
		return Return{}, shared.ErrValidation
	}
	now := s.now()
	var ret Return
	err := numbering.WithRetry(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			inv, err := tx.Store.GetInvoiceForUpdate(ctx, cmd.InvoiceID)
			if err != nil {
				return err
			}
			if cmd.Amount.GreaterThan(inv.RemainingAmount) {
				return &ReturnExceedsRemainingError{
					InvoiceID: inv.ID,
					Requested: cmd.Amount,
					Remaining: inv.RemainingAmount,
				}
			}
			number, err := tx.Ledger.Numbers.Next(ctx, numbering.ScopeReturn, now)
			if err != nil {
				return err
			}
			created, err := tx.Store.InsertReturn(ctx, Return{
				Number:    number,
				InvoiceID: inv.ID,
				Amount:    cmd.Amount,
				Notes:     cmd.Notes,
				CreatedBy: actor.ID,
			})
			if err != nil {
				return err
			}

			if err := tx.Ledger.Accounts.EnsureSystemAccounts(ctx); err != nil {
				return err
			}
			receivable, err := tx.Ledger.Accounts.Resolve(ctx, accounts.RoleReceivable)
			if err != nil {
				return err
			}
			revenue, err := tx.Ledger.Accounts.Resolve(ctx, accounts.RoleSales)
			if err != nil {
				return err
			}
			if _, err := tx.Ledger.CreateAndPost(ctx, journals.CreateDraftCommand{
				Date:          cmd.Date,
				Description:   "Return " + created.Number + " against " + inv.Number,
				ReferenceType: "sale_return",
				ReferenceID:   &created.ID,
				Lines: []journals.LineInput{
					{AccountID: revenue.ID, Debit: cmd.Amount},
					{AccountID: receivable.ID, Credit: cmd.Amount},
				},
			}, actor.ID, now); err != nil {
				return err
			}

			remaining := inv.RemainingAmount.Sub(cmd.Amount)
			if err := tx.Store.ApplyReturn(ctx, inv.ID, remaining, settlementStatus(remaining, inv.PaidAmount)); err != nil {
				return err
			}

			for _, item := range cmd.Items {
				if item.Quantity <= 0 {
					return shared.ErrValidation
				}
				if err := tx.Stock.Increment(ctx, item.ProductID, int(item.Quantity)); err != nil {
					return err
				}
			}
			ret = created
			return nil
		})
	})
	if err != nil {
		return Return{}, err
	}
	s.recordAudit(ctx, actor, "invoice.return", ret.InvoiceID, map[string]any{
		"number": ret.Number,
		"amount": ret.Amount.String(),
	})
	return ret, nil
}

func settlementStatus(remaining, paid decimal.Decimal) InvoiceStatus {
	switch {
	case !remaining.IsPositive():
		return InvoicePaid
	case paid.IsPositive():
		return InvoicePartiallyPaid
	default:
		return InvoiceUnpaid
	}
}

func (s *Service) recordAudit(ctx context.Context, actor shared.Actor, action string, invoiceID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "invoice",
		EntityID: strconv.FormatInt(invoiceID, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
