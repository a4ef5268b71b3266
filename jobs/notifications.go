package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// NotificationJob consumes ledger notification tasks and records them in the
// audit trail.
type NotificationJob struct {
	Audit   shared.AuditRecorder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewNotificationJob initialises the notification handlers.
func NewNotificationJob(audit shared.AuditRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotificationJob {
	return &NotificationJob{Audit: audit, Logger: logger, Metrics: metrics}
}

// HandleBudgetSpending processes TaskBudgetSpending.
func (j *NotificationJob) HandleBudgetSpending(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Audit == nil {
		return errors.New("budget spending: handler not configured")
	}
	var payload BudgetSpendingPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("budget spending payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TenantID <= 0 || payload.DocumentID <= 0 {
		return fmt.Errorf("budget spending payload incomplete: %w", asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskBudgetSpending)
	defer func() { err = tracker.End(err) }()

	j.logger().Info("budget spending",
		slog.Int64("tenant_id", payload.TenantID),
		slog.String("category", payload.CategoryCode),
		slog.String("amount", payload.Amount.StringFixed(2)),
		slog.Int64("document_id", payload.DocumentID),
	)
	return j.Audit.Record(ctx, shared.AuditLog{
		TenantID: payload.TenantID,
		Action:   "budget.spending",
		Entity:   "cash_document",
		EntityID: fmt.Sprintf("%d", payload.DocumentID),
		Meta: map[string]any{
			"category": payload.CategoryCode,
			"amount":   payload.Amount.StringFixed(2),
		},
		At: payload.OccurredAt,
	})
}

// HandleEnrichmentFailure processes TaskEnrichmentFailure.
func (j *NotificationJob) HandleEnrichmentFailure(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Audit == nil {
		return errors.New("enrichment failure: handler not configured")
	}
	var payload EnrichmentFailurePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("enrichment failure payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.TenantID <= 0 || payload.ReferenceKind == "" {
		return fmt.Errorf("enrichment failure payload incomplete: %w", asynq.SkipRetry)
	}
	tracker := j.Metrics.Track(TaskEnrichmentFailure)
	defer func() { err = tracker.End(err) }()

	j.logger().Warn("side posting needs follow-up",
		slog.Int64("tenant_id", payload.TenantID),
		slog.String("posting", payload.Posting),
		slog.String("reference_type", payload.ReferenceKind),
		slog.Int64("reference_id", payload.ReferenceID),
		slog.Bool("retryable", payload.Retryable),
		slog.String("error", payload.Error),
	)
	return j.Audit.Record(ctx, shared.AuditLog{
		TenantID: payload.TenantID,
		Action:   "posting.enrichment_failed",
		Entity:   payload.ReferenceKind,
		EntityID: fmt.Sprintf("%d", payload.ReferenceID),
		Meta: map[string]any{
			"posting":   payload.Posting,
			"retryable": payload.Retryable,
			"error":     payload.Error,
		},
		At: payload.OccurredAt,
	})
}

func (j *NotificationJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
