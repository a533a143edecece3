package journals

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bi-platform/bi-ledger/internal/ledger/accounts"
	"github.com/bi-platform/bi-ledger/internal/ledger/numbering"
	"github.com/bi-platform/bi-ledger/internal/ledger/periodlock"
	"github.com/bi-platform/bi-ledger/internal/ledger/shared"
)

// DirectoryPort is the slice of the account directory the engine needs.
type DirectoryPort interface {
	EnsureSystemAccounts(ctx context.Context) error
	Resolve(ctx context.Context, role accounts.Role) (accounts.Account, error)
	GetForUpdate(ctx context.Context, id int64) (accounts.Account, error)
	AddToBalance(ctx context.Context, id int64, delta decimal.Decimal) error
}

// TxStore persists entries and lines inside one transaction.
type TxStore interface {
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	InsertLines(ctx context.Context, entryID int64, lines []Line) error
	ReplaceLines(ctx context.Context, entryID int64, lines []Line) error
	UpdateHeader(ctx context.Context, entry Entry) error
	GetEntry(ctx context.Context, id int64) (Entry, error)
	GetLines(ctx context.Context, entryID int64) ([]Line, error)
	MarkPosted(ctx context.Context, id int64, postedBy string, at time.Time) (bool, error)
	DeleteEntry(ctx context.Context, id int64) error
}

// Tx bundles the ports the posting engine uses within one transaction.
// Orchestrators obtain a Tx bound to their own transaction so that stock
// and money move together or not at all.
type Tx struct {
	Store    TxStore
	Accounts DirectoryPort
	Numbers  numbering.Source
	Guard    periodlock.Guard
}

// CreateDraft validates the command, allocates the entry number and stores
// the entry with its lines in draft status.
func (t Tx) CreateDraft(ctx context.Context, cmd CreateDraftCommand, createdBy string, now time.Time) (Entry, error) {
	totalDebit, totalCredit, err := cmd.Validate()
	if err != nil {
		return Entry{}, err
	}
	if err := t.Guard.AssertNotLocked(ctx, cmd.Date); err != nil {
		return Entry{}, err
	}
	number, err := t.Numbers.Next(ctx, numbering.ScopeJournal, now)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		Number:        number,
		Date:          cmd.Date,
		Description:   cmd.Description,
		ReferenceType: cmd.ReferenceType,
		ReferenceID:   cmd.ReferenceID,
		TotalDebit:    totalDebit,
		TotalCredit:   totalCredit,
		Status:        StatusDraft,
		CreatedBy:     createdBy,
	}
	entry, err = t.Store.InsertEntry(ctx, entry)
	if err != nil {
		return Entry{}, err
	}
	lines := toLines(entry.ID, cmd.Lines)
	if err := t.Store.InsertLines(ctx, entry.ID, lines); err != nil {
		return Entry{}, err
	}
	entry.Lines = lines
	return entry, nil
}

// UpdateDraft edits a draft header and optionally replaces its lines,
// re-validating totals exactly as in CreateDraft. Posted entries are
// immutable.
func (t Tx) UpdateDraft(ctx context.Context, cmd UpdateDraftCommand) (Entry, error) {
	entry, err := t.Store.GetEntry(ctx, cmd.EntryID)
	if err != nil {
		return Entry{}, err
	}
	if entry.Status != StatusDraft {
		return Entry{}, shared.ErrEntryPosted
	}
	if cmd.Date != nil {
		if err := t.Guard.AssertNotLocked(ctx, *cmd.Date); err != nil {
			return Entry{}, err
		}
		entry.Date = *cmd.Date
	}
	if cmd.Description != nil {
		entry.Description = *cmd.Description
	}
	if cmd.Lines != nil {
		totalDebit, totalCredit, err := validateLines(cmd.Lines)
		if err != nil {
			return Entry{}, err
		}
		entry.TotalDebit = totalDebit
		entry.TotalCredit = totalCredit
		lines := toLines(entry.ID, cmd.Lines)
		if err := t.Store.ReplaceLines(ctx, entry.ID, lines); err != nil {
			return Entry{}, err
		}
		entry.Lines = lines
	}
	if err := t.Store.UpdateHeader(ctx, entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// DeleteDraft removes a draft entry and its lines. Posted entries can only
// be corrected by a reversing entry.
func (t Tx) DeleteDraft(ctx context.Context, entryID int64) error {
	entry, err := t.Store.GetEntry(ctx, entryID)
	if err != nil {
		return err
	}
	if entry.Status != StatusDraft {
		return shared.ErrEntryPosted
	}
	return t.Store.DeleteEntry(ctx, entryID)
}

// Post flips a draft entry to posted and applies every line to its
// account's running balance, all within the surrounding transaction. The
// period lock is re-checked here because it may have changed since the
// draft was created.
func (t Tx) Post(ctx context.Context, entryID int64, postedBy string, now time.Time) (Entry, error) {
	entry, err := t.Store.GetEntry(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	if entry.Status != StatusDraft {
		return Entry{}, shared.ErrAlreadyPosted
	}
	if err := t.Guard.AssertNotLocked(ctx, entry.Date); err != nil {
		return Entry{}, err
	}
	// Claim the entry with a single conditional update so two concurrent
	// postings can never both apply balances.
	ok, err := t.Store.MarkPosted(ctx, entryID, postedBy, now)
	if err != nil {
		return Entry{}, err
	}
	if !ok {
		return Entry{}, shared.ErrAlreadyPosted
	}
	lines, err := t.Store.GetLines(ctx, entryID)
	if err != nil {
		return Entry{}, err
	}
	for _, line := range lines {
		account, err := t.Accounts.GetForUpdate(ctx, line.AccountID)
		if err != nil {
			return Entry{}, err
		}
		delta := signedContribution(account.Nature, line)
		if err := t.Accounts.AddToBalance(ctx, account.ID, delta); err != nil {
			return Entry{}, err
		}
	}
	entry.Status = StatusPosted
	entry.PostedBy = &postedBy
	entry.PostedAt = &now
	entry.Lines = lines
	return entry, nil
}

// CreateAndPost creates a balanced entry and posts it in one step. It is
// the integration point used by the orchestrators inside their own
// transaction.
func (t Tx) CreateAndPost(ctx context.Context, cmd CreateDraftCommand, actor string, now time.Time) (Entry, error) {
	entry, err := t.CreateDraft(ctx, cmd, actor, now)
	if err != nil {
		return Entry{}, err
	}
	return t.Post(ctx, entry.ID, actor, now)
}

// signedContribution converts one line into a balance delta per the account
// nature: +debit-credit for debit-increasing accounts, the inverse for
// credit-increasing ones.
func signedContribution(nature accounts.Nature, line Line) decimal.Decimal {
	if nature == accounts.NatureDebit {
		return line.Debit.Sub(line.Credit)
	}
	return line.Credit.Sub(line.Debit)
}

func toLines(entryID int64, inputs []LineInput) []Line {
	out := make([]Line, 0, len(inputs))
	for _, in := range inputs {
		out = append(out, Line{
			EntryID:     entryID,
			AccountID:   in.AccountID,
			Debit:       in.Debit,
			Credit:      in.Credit,
			Description: in.Description,
			CostCenter:  in.CostCenter,
		})
	}
	return out
}
