package journals

import (
	"context"
	"strconv"
	"time"

	"github.com/bi-platform/bi-ledger/internal/ledger/numbering"
	internalShared "github.com/bi-platform/bi-ledger/internal/shared"
)

// AuditPort records structured events after successful commits.
type AuditPort interface {
	Record(ctx context.Context, log internalShared.AuditLog) error
}

// MetricsPort counts posting-engine events.
type MetricsPort interface {
	EntryPosted()
}

// Service is the journal store and posting engine facade.
type Service struct {
	repo    Repository
	audit   AuditPort
	metrics MetricsPort
	now     func() time.Time
}

func NewService(repo Repository, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock, used by tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) Get(ctx context.Context, id int64) (Entry, error) {
	return s.repo.GetWithLines(ctx, id)
}

// CreateDraft stores a validated draft entry. The whole cycle is retried a
// bounded number of times when the allocated number collides with a
// concurrent writer.
func (s *Service) CreateDraft(ctx context.Context, cmd CreateDraftCommand, actor internalShared.Actor) (Entry, error) {
	var entry Entry
	err := numbering.WithRetry(ctx, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			created, err := tx.CreateDraft(ctx, cmd, actor.ID, s.now())
			if err != nil {
				return err
			}
			entry = created
			return nil
		})
	})
	if err != nil {
		return Entry{}, err
	}
	s.recordAudit(ctx, actor, "journal.create", entry, map[string]any{
		"number": entry.Number,
		"debit":  entry.TotalDebit.String(),
		"credit": entry.TotalCredit.String(),
	})
	return entry, nil
}

// UpdateDraft edits a draft entry; posted entries are immutable.
func (s *Service) UpdateDraft(ctx context.Context, cmd UpdateDraftCommand, actor internalShared.Actor) (Entry, error) {
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		updated, err := tx.UpdateDraft(ctx, cmd)
		if err != nil {
			return err
		}
		entry = updated
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.recordAudit(ctx, actor, "journal.update", entry, map[string]any{"number": entry.Number})
	return entry, nil
}

// DeleteDraft removes a draft entry.
func (s *Service) DeleteDraft(ctx context.Context, entryID int64, actor internalShared.Actor) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.DeleteDraft(ctx, entryID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor, "journal.delete", Entry{ID: entryID}, nil)
	return nil
}

// Post transitions a draft entry to posted and applies account balances.
func (s *Service) Post(ctx context.Context, entryID int64, actor internalShared.Actor) (Entry, error) {
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		posted, err := tx.Post(ctx, entryID, actor.ID, s.now())
		if err != nil {
			return err
		}
		entry = posted
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if s.metrics != nil {
		s.metrics.EntryPosted()
	}
	s.recordAudit(ctx, actor, "journal.post", entry, map[string]any{"number": entry.Number})
	return entry, nil
}

// Reconcile recomputes balances from posted lines and reports drift. The
// running balance is a maintained aggregate; this keeps it derivable for
// verification.
func (s *Service) Reconcile(ctx context.Context) ([]BalanceMismatch, error) {
	return s.repo.Reconcile(ctx)
}

func (s *Service) recordAudit(ctx context.Context, actor internalShared.Actor, action string, entry Entry, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, internalShared.AuditLog{
		ActorID:  actor.ID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: strconv.FormatInt(entry.ID, 10),
		Meta:     meta,
		At:       s.now(),
	})
}
