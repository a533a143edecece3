package journals

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bi-platform/bi-ledger/internal/ledger/accounts"
	"github.com/bi-platform/bi-ledger/internal/ledger/numbering"
	"github.com/bi-platform/bi-ledger/internal/ledger/shared"
)

type memStore struct {
	entries map[int64]*Entry
	lines   map[int64][]Line
	nextID  int64
}

func newMemStore() *memStore {
	return &memStore{entries: map[int64]*Entry{}, lines: map[int64][]Line{}}
}

func (s *memStore) InsertEntry(_ context.Context, entry Entry) (Entry, error) {
	s.nextID++
	entry.ID = s.nextID
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	stored := entry
	s.entries[entry.ID] = &stored
	return entry, nil
}

func (s *memStore) InsertLines(_ context.Context, entryID int64, lines []Line) error {
	s.lines[entryID] = append([]Line(nil), lines...)
	return nil
}

func (s *memStore) ReplaceLines(_ context.Context, entryID int64, lines []Line) error {
	s.lines[entryID] = append([]Line(nil), lines...)
	return nil
}

func (s *memStore) UpdateHeader(_ context.Context, entry Entry) error {
	stored, ok := s.entries[entry.ID]
	if !ok {
		return shared.ErrEntryNotFound
	}
	if stored.Status != StatusDraft {
		return shared.ErrEntryPosted
	}
	stored.Date = entry.Date
	stored.Description = entry.Description
	stored.TotalDebit = entry.TotalDebit
	stored.TotalCredit = entry.TotalCredit
	return nil
}

func (s *memStore) GetEntry(_ context.Context, id int64) (Entry, error) {
	stored, ok := s.entries[id]
	if !ok {
		return Entry{}, shared.ErrEntryNotFound
	}
	return *stored, nil
}

func (s *memStore) GetLines(_ context.Context, entryID int64) ([]Line, error) {
	return append([]Line(nil), s.lines[entryID]...), nil
}

func (s *memStore) MarkPosted(_ context.Context, id int64, postedBy string, at time.Time) (bool, error) {
	stored, ok := s.entries[id]
	if !ok || stored.Status != StatusDraft {
		return false, nil
	}
	stored.Status = StatusPosted
	stored.PostedBy = &postedBy
	stored.PostedAt = &at
	return true, nil
}

func (s *memStore) DeleteEntry(_ context.Context, id int64) error {
	stored, ok := s.entries[id]
	if !ok || stored.Status != StatusDraft {
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
	d.add(1, "1100", accounts.NatureDebit, accounts.RoleReceivable)
	d.add(2, "4100", accounts.NatureCredit, accounts.RoleSales)
	d.add(3, "1200", accounts.NatureDebit, accounts.RoleInventory)
	d.add(4, "2100", accounts.NatureCredit, accounts.RolePayable)
	d.add(5, "1010", accounts.NatureDebit, accounts.RoleCash)
	return d
}

func (d *memDirectory) add(id int64, code string, nature accounts.Nature, role accounts.Role) {
	d.accounts[id] = &accounts.Account{ID: id, Code: code, Nature: nature, Balance: decimal.Zero}
	d.byRole[role] = id
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

func (d *memDirectory) balance(id int64) decimal.Decimal {
	return d.accounts[id].Balance
}

type seqSource struct {
	seq map[string]int64
}

func newSeqSource() *seqSource { return &seqSource{seq: map[string]int64{}} }

func (s *seqSource) Next(_ context.Context, scope numbering.Scope, at time.Time) (string, error) {
	key := fmt.Sprintf("%s:%s", scope.Prefix, scope.PeriodKey(at))
	s.seq[key]++
	return scope.Format(scope.PeriodKey(at), s.seq[key]), nil
}

type fakeGuard struct {
	cutoff *time.Time
}

func (g *fakeGuard) AssertNotLocked(_ context.Context, date time.Time) error {
	if g.cutoff != nil && date.Before(*g.cutoff) {
		return fmt.Errorf("%w: locked", shared.ErrPeriodLocked)
	}
	return nil
}

type fixture struct {
	store *memStore
	dir   *memDirectory
	guard *fakeGuard
	tx    Tx
}

func newFixture() *fixture {
	store := newMemStore()
	dir := newMemDirectory()
	guard := &fakeGuard{}
	return &fixture{
		store: store,
		dir:   dir,
		guard: guard,
		tx:    Tx{Store: store, Accounts: dir, Numbers: newSeqSource(), Guard: guard},
	}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func balancedCommand(date time.Time) CreateDraftCommand {
	return CreateDraftCommand{
		Date:        date,
		Description: "test entry",
		Lines: []LineInput{
			{AccountID: 1, Debit: dec("100")},
			{AccountID: 2, Credit: dec("100")},
		},
	}
}

var testDate = time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC)

func TestCreateDraftAllocatesNumberAndStoresLines(t *testing.T) {
	f := newFixture()
	entry, err := f.tx.CreateDraft(context.Background(), balancedCommand(testDate), "u1", testDate)
	require.NoError(t, err)
	require.Equal(t, "JE-2026-00001", entry.Number)
	require.Equal(t, StatusDraft, entry.Status)
	require.Len(t, f.store.lines[entry.ID], 2)
	require.True(t, entry.TotalDebit.Equal(dec("100")))
	require.True(t, entry.TotalCredit.Equal(dec("100")))

	second, err := f.tx.CreateDraft(context.Background(), balancedCommand(testDate), "u1", testDate)
	require.NoError(t, err)
	require.Equal(t, "JE-2026-00002", second.Number)
}

func TestCreateDraftValidation(t *testing.T) {
	f := newFixture()
	cases := []struct {
		name  string
		lines []LineInput
		want  error
	}{
		{"single line", []LineInput{{AccountID: 1, Debit: dec("100")}}, shared.ErrTooFewLines},
		{"both sides set", []LineInput{
			{AccountID: 1, Debit: dec("50"), Credit: dec("50")},
			{AccountID: 2, Credit: dec("50")},
		}, shared.ErrInvalidLine},
		{"both sides zero", []LineInput{
			{AccountID: 1},
			{AccountID: 2, Credit: dec("50")},
		}, shared.ErrInvalidLine},
		{"negative amount", []LineInput{
			{AccountID: 1, Debit: dec("-10")},
			{AccountID: 2, Credit: dec("-10")},
		}, shared.ErrInvalidLine},
		{"unbalanced", []LineInput{
			{AccountID: 1, Debit: dec("100")},
			{AccountID: 2, Credit: dec("99.50")},
		}, shared.ErrUnbalanced},
		{"missing account", []LineInput{
			{Debit: dec("100")},
			{AccountID: 2, Credit: dec("100")},
		}, shared.ErrAccountNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.tx.CreateDraft(context.Background(), CreateDraftCommand{Date: testDate, Lines: tc.lines}, "u1", testDate)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCreateDraftToleratesRoundingWithinEpsilon(t *testing.T) {
	f := newFixture()
	cmd := CreateDraftCommand{
		Date: testDate,
		Lines: []LineInput{
			{AccountID: 1, Debit: dec("100.00")},
			{AccountID: 2, Credit: dec("99.99")},
		},
	}
	_, err := f.tx.CreateDraft(context.Background(), cmd, "u1", testDate)
	require.NoError(t, err)
}

func TestPostAppliesBalancesPerNature(t *testing.T) {
	f := newFixture()
	entry, err := f.tx.CreateDraft(context.Background(), balancedCommand(testDate), "u1", testDate)
	require.NoError(t, err)

	posted, err := f.tx.Post(context.Background(), entry.ID, "u2", testDate)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.NotNil(t, posted.PostedBy)
	require.Equal(t, "u2", *posted.PostedBy)

	// Debit-nature receivable grows by its debit, credit-nature revenue by
	// its credit.
	require.True(t, f.dir.balance(1).Equal(dec("100")))
	require.True(t, f.dir.balance(2).Equal(dec("100")))
}

func TestPostOrderIndependence(t *testing.T) {
	run := func(lines []LineInput) (decimal.Decimal, decimal.Decimal) {
		f := newFixture()
		entry, err := f.tx.CreateDraft(context.Background(), CreateDraftCommand{Date: testDate, Lines: lines}, "u1", testDate)
		require.NoError(t, err)
		_, err = f.tx.Post(context.Background(), entry.ID, "u1", testDate)
		require.NoError(t, err)
		return f.dir.balance(1), f.dir.balance(2)
	}

	a1, a2 := run([]LineInput{
		{AccountID: 1, Debit: dec("60")},
		{AccountID: 1, Debit: dec("40")},
		{AccountID: 2, Credit: dec("100")},
	})
	b1, b2 := run([]LineInput{
		{AccountID: 2, Credit: dec("100")},
		{AccountID: 1, Debit: dec("40")},
		{AccountID: 1, Debit: dec("60")},
	})
	require.True(t, a1.Equal(b1))
	require.True(t, a2.Equal(b2))
}

func TestPostTwiceFails(t *testing.T) {
	f := newFixture()
	entry, err := f.tx.CreateDraft(context.Background(), balancedCommand(testDate), "u1", testDate)
	require.NoError(t, err)

	_, err = f.tx.Post(context.Background(), entry.ID, "u1", testDate)
	require.NoError(t, err)

	_, err = f.tx.Post(context.Background(), entry.ID, "u1", testDate)
	require.ErrorIs(t, err, shared.ErrAlreadyPosted)

	// Balances were applied exactly once.
	require.True(t, f.dir.balance(1).Equal(dec("100")))
}

func TestPeriodLockCheckedAtCreate(t *testing.T) {
	f := newFixture()
	cutoff := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	f.guard.cutoff = &cutoff

	_, err := f.tx.CreateDraft(context.Background(), balancedCommand(testDate), "u1", testDate)
	require.ErrorIs(t, err, shared.ErrPeriodLocked)
}

func TestPeriodLockRecheckedAtPost(t *testing.T) {
	f := newFixture()
	entry, err := f.tx.CreateDraft(context.Background(), balancedCommand(testDate), "u1", testDate)
	require.NoError(t, err)

	// The lock moves forward after the draft exists.
	cutoff := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	f.guard.cutoff = &cutoff

	_, err = f.tx.Post(context.Background(), entry.ID, "u1", time.Now())
	require.ErrorIs(t, err, shared.ErrPeriodLocked)

	stored, err := f.store.GetEntry(context.Background(), entry.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDraft, stored.Status)
}

func TestUpdateDraftReplacesLinesAndRevalidates(t *testing.T) {
	f := newFixture()
	entry, err := f.tx.CreateDraft(context.Background(), balancedCommand(testDate), "u1", testDate)
	require.NoError(t, err)

	_, err = f.tx.UpdateDraft(context.Background(), UpdateDraftCommand{
		EntryID: entry.ID,
		Lines: []LineInput{
			{AccountID: 1, Debit: dec("200")},
			{AccountID: 2, Credit: dec("150")},
		},
	})
	require.ErrorIs(t, err, shared.ErrUnbalanced)

	updated, err := f.tx.UpdateDraft(context.Background(), UpdateDraftCommand{
		EntryID: entry.ID,
		Lines: []LineInput{
			{AccountID: 1, Debit: dec("200")},
			{AccountID: 2, Credit: dec("200")},
		},
	})
	require.NoError(t, err)
	require.True(t, updated.TotalDebit.Equal(dec("200")))
}

func TestUpdateDraftRejectsPostedEntry(t *testing.T) {
	f := newFixture()
	entry, err := f.tx.CreateDraft(context.Background(), balancedCommand(testDate), "u1", testDate)
	require.NoError(t, err)
	_, err = f.tx.Post(context.Background(), entry.ID, "u1", testDate)
	require.NoError(t, err)

	desc := "rewrite"
	_, err = f.tx.UpdateDraft(context.Background(), UpdateDraftCommand{EntryID: entry.ID, Description: &desc})
	require.ErrorIs(t, err, shared.ErrEntryPosted)
}

func TestDeleteDraft(t *testing.T) {
	f := newFixture()
	entry, err := f.tx.CreateDraft(context.Background(), balancedCommand(testDate), "u1", testDate)
	require.NoError(t, err)

	require.NoError(t, f.tx.DeleteDraft(context.Background(), entry.ID))
	_, err = f.store.GetEntry(context.Background(), entry.ID)
	require.ErrorIs(t, err, shared.ErrEntryNotFound)
}

func TestDeleteDraftRejectsPostedEntry(t *testing.T) {
	f := newFixture()
	entry, err := f.tx.CreateDraft(context.Background(), balancedCommand(testDate), "u1", testDate)
	require.NoError(t, err)
	_, err = f.tx.Post(context.Background(), entry.ID, "u1", testDate)
	require.NoError(t, err)

	err = f.tx.DeleteDraft(context.Background(), entry.ID)
	require.ErrorIs(t, err, shared.ErrEntryPosted)
}

func TestCreateAndPost(t *testing.T) {
	f := newFixture()
	entry, err := f.tx.CreateAndPost(context.Background(), balancedCommand(testDate), "u1", testDate)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, entry.Status)
	require.True(t, f.dir.balance(1).Equal(dec("100")))
}

func TestSignedContribution(t *testing.T) {
	line := Line{Debit: dec("30"), Credit: decimal.Zero}
	require.True(t, signedContribution(accounts.NatureDebit, line).Equal(dec("30")))
	require.True(t, signedContribution(accounts.NatureCredit, line).Equal(dec("-30")))

	line = Line{Debit: decimal.Zero, Credit: dec("45")}
	require.True(t, signedContribution(accounts.NatureDebit, line).Equal(dec("-45")))
	require.True(t, signedContribution(accounts.NatureCredit, line).Equal(dec("45")))
}
