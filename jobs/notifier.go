package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/postings"
	"github.com/odyssey-erp/odyssey-ledger/internal/bank"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// Enqueuer is the part of asynq.Client the notifier needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier turns ledger side effects into queued tasks. It satisfies the
// budget and enrichment ports of the bank and postings packages.
type Notifier struct {
	enqueuer Enqueuer
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
	now      func() time.Time
}

var (
	_ bank.BudgetNotifier = (*Notifier)(nil)
	_ postings.Reporter   = (*Notifier)(nil)
)

// NewNotifier constructs a notifier. A nil enqueuer drops every notification.
func NewNotifier(enqueuer Enqueuer, logger *slog.Logger, metrics *jobmetrics.Metrics) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		enqueuer: enqueuer,
		logger:   logger,
		metrics:  metrics,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// NotifyBudgetSpending enqueues a budget spending task.
func (n *Notifier) NotifyBudgetSpending(ctx context.Context, tenantID int64, categoryCode string, amount decimal.Decimal, documentID int64) error {
	task, err := NewBudgetSpendingTask(BudgetSpendingPayload{
		TenantID:     tenantID,
		CategoryCode: categoryCode,
		Amount:       amount,
		DocumentID:   documentID,
		OccurredAt:   n.now(),
	})
	if err != nil {
		return err
	}
	return n.enqueue(ctx, task)
}

// ReportEnrichmentFailure enqueues a follow-up for a skipped side posting.
// Queue errors are logged only.
func (n *Notifier) ReportEnrichmentFailure(ctx context.Context, tenantID int64, failure *postings.EnrichmentError) {
	if failure == nil {
		return
	}
	payload := EnrichmentFailurePayload{
		TenantID:      tenantID,
		Posting:       failure.Name,
		ReferenceKind: string(failure.Reference.Kind),
		ReferenceID:   failure.Reference.ID,
		Retryable:     failure.Retryable,
		OccurredAt:    n.now(),
	}
	if failure.Err != nil {
		payload.Error = failure.Err.Error()
	}
	task, err := NewEnrichmentFailureTask(payload)
	if err == nil {
		err = n.enqueue(ctx, task)
	}
	if err != nil {
		n.logger.Warn("enrichment failure not queued",
			slog.Int64("tenant_id", tenantID),
			slog.String("posting", failure.Name),
			slog.Int64("reference_id", failure.Reference.ID),
			slog.Any("error", err),
		)
	}
}

func (n *Notifier) enqueue(ctx context.Context, task *asynq.Task) error {
	if n == nil || n.enqueuer == nil {
		return nil
	}
	_, err := n.enqueuer.EnqueueContext(ctx, task, asynq.Queue(QueueDefault))
	n.metrics.Enqueued(task.Type(), err)
	if err != nil {
		return fmt.Errorf("jobs: enqueue %s: %w", task.Type(), err)
	}
	return nil
}
