package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/postings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

type auditSink struct {
	logs []internalShared.AuditLog
	err  error
}

func (a *auditSink) Record(_ context.Context, log internalShared.AuditLog) error {
	if a.err != nil {
		return a.err
	}
	a.logs = append(a.logs, log)
	return nil
}

func TestNotifierEnqueuesBudgetSpending(t *testing.T) {
	q := &fakeEnqueuer{}
	n := NewNotifier(q, discard, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, n.NotifyBudgetSpending(context.Background(), 3, "6000", decimal.RequireFromString("125.50"), 44))
	require.Len(t, q.tasks, 1)
	require.Equal(t, TaskBudgetSpending, q.tasks[0].Type())

	var payload BudgetSpendingPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	require.Equal(t, int64(3), payload.TenantID)
	require.Equal(t, "6000", payload.CategoryCode)
	require.Equal(t, "125.50", payload.Amount.StringFixed(2))
	require.Equal(t, int64(44), payload.DocumentID)
	require.False(t, payload.OccurredAt.IsZero())
}

func TestNotifierSurfacesQueueErrors(t *testing.T) {
	down := errors.New("redis down")
	n := NewNotifier(&fakeEnqueuer{err: down}, discard, nil)

	err := n.NotifyBudgetSpending(context.Background(), 1, "6000", decimal.NewFromInt(1), 1)
	require.ErrorIs(t, err, down)

	n.ReportEnrichmentFailure(context.Background(), 1, &postings.EnrichmentError{Name: "cogs", Err: down})

	require.NoError(t, NewNotifier(nil, discard, nil).NotifyBudgetSpending(context.Background(), 1, "6000", decimal.NewFromInt(1), 1))
}

func TestNotifierEnqueuesEnrichmentFailure(t *testing.T) {
	q := &fakeEnqueuer{}
	n := NewNotifier(q, discard, nil)

	n.ReportEnrichmentFailure(context.Background(), 2, &postings.EnrichmentError{
		Err:       &shared.MissingAccountError{Code: "5100"},
		Reference: journals.Reference{Kind: journals.RefSalesInvoice, ID: 12},
		Name:      "cogs",
		Retryable: true,
	})
	n.ReportEnrichmentFailure(context.Background(), 2, nil)

	require.Len(t, q.tasks, 1)
	var payload EnrichmentFailurePayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	require.Equal(t, "cogs", payload.Posting)
	require.Equal(t, string(journals.RefSalesInvoice), payload.ReferenceKind)
	require.Equal(t, int64(12), payload.ReferenceID)
	require.True(t, payload.Retryable)
	require.Contains(t, payload.Error, "5100")
}

func TestNotificationJobRecordsAudit(t *testing.T) {
	sink := &auditSink{}
	job := NewNotificationJob(sink, discard, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	mux := NewServeMux(job)

	budget, err := NewBudgetSpendingTask(BudgetSpendingPayload{TenantID: 1, CategoryCode: "6100", Amount: decimal.NewFromInt(900), DocumentID: 5})
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), budget))

	failure, err := NewEnrichmentFailureTask(EnrichmentFailurePayload{TenantID: 1, Posting: "cogs_reversal", ReferenceKind: "credit_note", ReferenceID: 8, Error: "boom"})
	require.NoError(t, err)
	require.NoError(t, mux.ProcessTask(context.Background(), failure))

	require.Len(t, sink.logs, 2)
	require.Equal(t, "budget.spending", sink.logs[0].Action)
	require.Equal(t, "5", sink.logs[0].EntityID)
	require.Equal(t, "900.00", sink.logs[0].Meta["amount"])
	require.Equal(t, "posting.enrichment_failed", sink.logs[1].Action)
	require.Equal(t, "credit_note", sink.logs[1].Entity)
	require.NoError(t, sink.logs[1].Validate())
}

func TestNotificationJobRejectsBadPayloads(t *testing.T) {
	job := NewNotificationJob(&auditSink{}, discard, nil)

	err := job.HandleBudgetSpending(context.Background(), asynq.NewTask(TaskBudgetSpending, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.HandleBudgetSpending(context.Background(), asynq.NewTask(TaskBudgetSpending, []byte(`{"tenant_id":1}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.HandleEnrichmentFailure(context.Background(), asynq.NewTask(TaskEnrichmentFailure, []byte(`{"tenant_id":1}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)

	var empty *NotificationJob
	require.Error(t, empty.HandleBudgetSpending(context.Background(), asynq.NewTask(TaskBudgetSpending, nil)))
}

func TestNotificationJobRetriesAuditErrors(t *testing.T) {
	down := errors.New("db down")
	job := NewNotificationJob(&auditSink{err: down}, discard, nil)
	task, err := NewBudgetSpendingTask(BudgetSpendingPayload{TenantID: 1, DocumentID: 2, Amount: decimal.NewFromInt(1)})
	require.NoError(t, err)

	err = job.HandleBudgetSpending(context.Background(), task)
	require.ErrorIs(t, err, down)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestJobsHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/api/jobs", NewHandler(nil, discard).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/jobs/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"retry":0}`, rr.Body.String())
}

func TestNewWorkerRequiresNotifications(t *testing.T) {
	_, err := NewWorker(WorkerConfig{Logger: discard})
	require.Error(t, err)
}
