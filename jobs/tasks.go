package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/bi-platform/bi-ledger/internal/ledger/journals"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity recomputes account balances from posted lines.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskBatchNotify tells the back office about a batch status change.
	TaskBatchNotify = "notify:batch"
)

// BatchNotifyPayload describes one batch notification.
type BatchNotifyPayload struct {
	BatchID int64  `json:"batchId"`
	Number  string `json:"number"`
	Status  string `json:"status"`
}

// NewBatchNotifyTask constructs an Asynq task.
func NewBatchNotifyTask(payload BatchNotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBatchNotify, data), nil
}

// NewLedgerIntegrityTask constructs the integrity-scan task.
func NewLedgerIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskLedgerIntegrity, nil)
}

// NewBatchNotifyHandler returns the handler for TaskBatchNotify. Delivery
// is a log line for now; channels like mail or chat hang off this later.
func NewBatchNotifyHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload BatchNotifyPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.Info("batch notification",
			slog.Int64("batch_id", payload.BatchID),
			slog.String("number", payload.Number),
			slog.String("status", payload.Status))
		return nil
	}
}

// Reconciler verifies stored balances against posted journal lines.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]journals.BalanceMismatch, error)
}

// NewLedgerIntegrityHandler returns the handler for TaskLedgerIntegrity.
// Mismatches are logged, never repaired automatically.
func NewLedgerIntegrityHandler(logger *slog.Logger, reconciler Reconciler) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		mismatches, err := reconciler.Reconcile(ctx)
		if err != nil {
			return err
		}
		if len(mismatches) == 0 {
			logger.Info("ledger integrity scan clean")
			return nil
		}
		for _, m := range mismatches {
			logger.Error("account balance drift",
				slog.Int64("account_id", m.AccountID),
				slog.String("code", m.Code),
				slog.String("stored", m.Stored.String()),
				slog.String("derived", m.Derived.String()))
		}
		return nil
	}
}
