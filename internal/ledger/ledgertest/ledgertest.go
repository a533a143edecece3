// Package ledgertest provides in-memory implementations of the posting
// engine ports for orchestrator tests.
package ledgertest

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bi-platform/bi-ledger/internal/ledger/accounts"
	"github.com/bi-platform/bi-ledger/internal/ledger/journals"
	"github.com/bi-platform/bi-ledger/internal/ledger/numbering"
	"github.com/bi-platform/bi-ledger/internal/ledger/shared"
)

// MemLedger backs a journals.Tx entirely in memory. The five system
// accounts exist up front with zero balances.
type MemLedger struct {
	store     *memStore
	directory *memDirectory
	source    *memSource
	guard     *memGuard
}

func New() *MemLedger {
	return &MemLedger{
		store:     &memStore{entries: map[int64]*journals.Entry{}, lines: map[int64][]journals.Line{}},
		directory: newMemDirectory(),
		source:    &memSource{seq: map[string]int64{}},
		guard:     &memGuard{},
	}
}

// Tx returns the port bundle orchestrator transactions embed.
func (l *MemLedger) Tx() journals.Tx {
	return journals.Tx{
		Store:    l.store,
		Accounts: l.directory,
		Numbers:  l.source,
		Guard:    l.guard,
	}
}

// SetCutoff installs a period-lock cutoff for subsequent assertions.
func (l *MemLedger) SetCutoff(cutoff time.Time) {
	l.guard.cutoff = &cutoff
}

// Balance reads the running balance of a system account.
func (l *MemLedger) Balance(role accounts.Role) decimal.Decimal {
	id := l.directory.byRole[role]
	return l.directory.accounts[id].Balance
}

// Entry fetches a stored entry with its lines.
func (l *MemLedger) Entry(id int64) (journals.Entry, bool) {
	stored, ok := l.store.entries[id]
	if !ok {
		return journals.Entry{}, false
	}
	entry := *stored
	entry.Lines = append([]journals.Line(nil), l.store.lines[id]...)
	return entry, true
}

// EntryCount reports how many entries were created.
func (l *MemLedger) EntryCount() int {
	return len(l.store.entries)
}

type memStore struct {
	entries map[int64]*journals.Entry
	lines   map[int64][]journals.Line
	nextID  int64
}

func (s *memStore) InsertEntry(_ context.Context, entry journals.Entry) (journals.Entry, error) {
	s.nextID++
	entry.ID = s.nextID
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	stored := entry
	s.entries[entry.ID] = &stored
	return entry, nil
}

func (s *memStore) InsertLines(_ context.Context, entryID int64, lines []journals.Line) error {
	s.lines[entryID] = append([]journals.Line(nil), lines...)
	return nil
}

func (s *memStore) ReplaceLines(_ context.Context, entryID int64, lines []journals.Line) error {
	s.lines[entryID] = append([]journals.Line(nil), lines...)
	return nil
}

func (s *memStore) UpdateHeader(_ context.Context, entry journals.Entry) error {
	stored, ok := s.entries[entry.ID]
	if !ok {
		return shared.ErrEntryNotFound
	}
	if stored.Status != journals.StatusDraft {
		return shared.ErrEntryPosted
	}
	stored.Date = entry.Date
	stored.Description = entry.Description
	stored.TotalDebit = entry.TotalDebit
	stored.TotalCredit = entry.TotalCredit
	return nil
}

func (s *memStore) GetEntry(_ context.Context, id int64) (journals.Entry, error) {
	stored, ok := s.entries[id]
	if !ok {
		return journals.Entry{}, shared.ErrEntryNotFound
	}
	return *stored, nil
}

func (s *memStore) GetLines(_ context.Context, entryID int64) ([]journals.Line, error) {
	return append([]journals.Line(nil), s.lines[entryID]...), nil
}

func (s *memStore) MarkPosted(_ context.Context, id int64, postedBy string, at time.Time) (bool, error) {
	stored, ok := s.entries[id]
	if !ok || stored.Status != journals.StatusDraft {
		return false, nil
	}
	stored.Status = journals.StatusPosted
	stored.PostedBy = &postedBy
	stored.PostedAt = &at
	return true, nil
}

func (s *memStore) DeleteEntry(_ context.Context, id int64) error {
	stored, ok := s.entries[id]
	if !ok || stored.Status != journals.StatusDraft {
		return shared.ErrEntryNotFound
	}
	delete(s.entries, id)
	delete(s.lines, id)
	return nil
}

type memDirectory struct {
	accounts map[int64]*accounts.Account
	byRole   map[accounts.Role]int64
}

func newMemDirectory() *memDirectory {
	d := &memDirectory{accounts: map[int64]*accounts.Account{}, byRole: map[accounts.Role]int64{}}
	add := func(id int64, code string, nature accounts.Nature, role accounts.Role) {
		d.accounts[id] = &accounts.Account{ID: id, Code: code, Nature: nature, Balance: decimal.Zero}
		d.byRole[role] = id
	}
	add(1, "1010", accounts.NatureDebit, accounts.RoleCash)
	add(2, "1100", accounts.NatureDebit, accounts.RoleReceivable)
	add(3, "1200", accounts.NatureDebit, accounts.RoleInventory)
	add(4, "2100", accounts.NatureCredit, accounts.RolePayable)
	add(5, "4100", accounts.NatureCredit, accounts.RoleSales)
	return d
}

func (d *memDirectory) EnsureSystemAccounts(context.Context) error { return nil }

func (d *memDirectory) Resolve(_ context.Context, role accounts.Role) (accounts.Account, error) {
	id, ok := d.byRole[role]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return *d.accounts[id], nil
}

func (d *memDirectory) GetForUpdate(_ context.Context, id int64) (accounts.Account, error) {
	acct, ok := d.accounts[id]
	if !ok {
		return accounts.Account{}, shared.ErrAccountNotFound
	}
	return *acct, nil
}

func (d *memDirectory) AddToBalance(_ context.Context, id int64, delta decimal.Decimal) error {
	acct, ok := d.accounts[id]
	if !ok {
		return shared.ErrAccountNotFound
	}
	acct.Balance = acct.Balance.Add(delta)
	return nil
}

type memSource struct {
	seq map[string]int64
}

func (s *memSource) Next(_ context.Context, scope numbering.Scope, at time.Time) (string, error) {
	key := fmt.Sprintf("%s:%s", scope.Prefix, scope.PeriodKey(at))
	s.seq[key]++
	return scope.Format(scope.PeriodKey(at), s.seq[key]), nil
}

type memGuard struct {
	cutoff *time.Time
}

func (g *memGuard) AssertNotLocked(_ context.Context, date time.Time) error {
	if g.cutoff != nil && date.Before(*g.cutoff) {
		return fmt.Errorf("%w: %s is before cutoff", shared.ErrPeriodLocked, date.Format("2006-01-02"))
	}
	return nil
}
