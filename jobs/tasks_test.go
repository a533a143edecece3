package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/bi-platform/bi-ledger/internal/ledger/journals"
)

func TestNewBatchNotifyTask(t *testing.T) {
	task, err := NewBatchNotifyTask(BatchNotifyPayload{BatchID: 9, Number: "PB-202603-0001", Status: "received"})
	require.NoError(t, err)
	require.Equal(t, TaskBatchNotify, task.Type())

	var payload BatchNotifyPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	require.Equal(t, int64(9), payload.BatchID)
	require.Equal(t, "received", payload.Status)
}

func TestBatchNotifyHandlerSkipsMalformedPayload(t *testing.T) {
	handler := NewBatchNotifyHandler(slog.Default())
	err := handler(context.Background(), asynq.NewTask(TaskBatchNotify, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestBatchNotifyHandlerAcceptsPayload(t *testing.T) {
	handler := NewBatchNotifyHandler(slog.Default())
	task, err := NewBatchNotifyTask(BatchNotifyPayload{BatchID: 1, Number: "PB-202603-0001", Status: "received"})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
}

type stubReconciler struct {
	mismatches []journals.BalanceMismatch
	err        error
}

func (s *stubReconciler) Reconcile(context.Context) ([]journals.BalanceMismatch, error) {
	return s.mismatches, s.err
}

func TestLedgerIntegrityHandler(t *testing.T) {
	handler := NewLedgerIntegrityHandler(slog.Default(), &stubReconciler{})
	require.NoError(t, handler(context.Background(), NewLedgerIntegrityTask()))

	boom := errors.New("db down")
	handler = NewLedgerIntegrityHandler(slog.Default(), &stubReconciler{err: boom})
	require.ErrorIs(t, handler(context.Background(), NewLedgerIntegrityTask()), boom)

	handler = NewLedgerIntegrityHandler(slog.Default(), &stubReconciler{
		mismatches: []journals.BalanceMismatch{{AccountID: 1, Code: "1100"}},
	})
	require.NoError(t, handler(context.Background(), NewLedgerIntegrityTask()))
}

func TestClientNotifyBatchEnqueues(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	require.NoError(t, client.NotifyBatch(context.Background(), 4, "PB-202603-0004", "received"))

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	defer func() { _ = inspector.Close() }()

	pending, err := inspector.ListPendingTasks(QueueDefault)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, TaskBatchNotify, pending[0].Type)
}
