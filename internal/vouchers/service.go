package vouchers

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

type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

type CreateVoucherCommand struct {
	Type          VoucherType
	Amount        decimal.Decimal
	Date          time.Time
	PaymentMethod string
	Description   string
}

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

func (s *Service) Get(ctx context.Context, id int64) (Voucher, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Voucher, error) {
	return s.repo.List(ctx, filter)
}

// Create stores the voucher and posts its cash movement in one
// transaction. A receipt debits Cash against Receivable, a payment debits
// Payable against Cash. Zero amounts record the document without a
// posting.
func (s *Service) Create(ctx context.Context, cmd CreateVoucherCommand, actor shared.Actor) (Voucher, error) {
	if cmd.Type != TypeReceipt && cmd.Type != TypePayment {
		return Voucher{}, shared.ErrValidation
	}
	if cmd.Amount.IsNegative() {
		return Voucher{}, shared.ErrValidation
	}
	now := s.now()
	var voucher Voucher
	err := numbering.WithRetry(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			number, err := tx.Ledger.Numbers.Next(ctx, numbering.ScopeVoucher, now)
			if err != nil {
				return err
			}
			v, err := tx.Store.InsertVoucher(ctx, Voucher{
				Number:        number,
				Type:          cmd.Type,
				Amount:        cmd.Amount,
				PaymentMethod: cmd.PaymentMethod,
				Description:   cmd.Description,
				CreatedBy:     actor.ID,
			})
			if err != nil {
				return err
			}
			if cmd.Amount.IsPositive() {
				if err := tx.Ledger.Accounts.EnsureSystemAccounts(ctx); err != nil {
					return err
				}
				cash, err := tx.Ledger.Accounts.Resolve(ctx, accounts.RoleCash)
				if err != nil {
					return err
				}
				var lines []journals.LineInput
				switch cmd.Type {
				case TypeReceipt:
					receivable, err := tx.Ledger.Accounts.Resolve(ctx, accounts.RoleReceivable)
					if err != nil {
						return err
					}
					lines = []journals.LineInput{
						{AccountID: cash.ID, Debit: cmd.Amount},
						{AccountID: receivable.ID, Credit: cmd.Amount},
					}
				case TypePayment:
					payable, err := tx.Ledger.Accounts.Resolve(ctx, accounts.RolePayable)
					if err != nil {
						return err
					}
					lines = []journals.LineInput{
						{AccountID: payable.ID, Debit: cmd.Amount},
						{AccountID: cash.ID, Credit: cmd.Amount},
					}
				}
				entry, err := tx.Ledger.CreateAndPost(ctx, journals.CreateDraftCommand{
					Date:          cmd.Date,
					Description:   "Voucher " + v.Number,
					ReferenceType: "voucher",
					ReferenceID:   &v.ID,
					Lines:         lines,
				}, actor.ID, now)
				if err != nil {
					return err
				}
				if err := tx.Store.SetJournalEntry(ctx, v.ID, entry.ID); err != nil {
					return err
				}
				v.JournalEntryID = &entry.ID
			}
			voucher = v
			return nil
		})
	})
	if err != nil {
		return Voucher{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "voucher.create",
			Entity:   "voucher",
			EntityID: strconv.FormatInt(voucher.ID, 10),
			Meta: map[string]any{
				"number": voucher.Number,
				"type":   string(voucher.Type),
				"amount": voucher.Amount.String(),
			},
			At: s.now(),
		})
	}
	return voucher, nil
}
