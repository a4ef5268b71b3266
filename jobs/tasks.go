package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBudgetSpending carries expense spending to the budget consumer.
	TaskBudgetSpending = "ledger:budget_spending"
	// TaskEnrichmentFailure carries a skipped side posting for follow-up.
	TaskEnrichmentFailure = "ledger:enrichment_failure"
)

// BudgetSpendingPayload describes a committed expense document.
type BudgetSpendingPayload struct {
	TenantID     int64           `json:"tenant_id"`
	CategoryCode string          `json:"category_code"`
	Amount       decimal.Decimal `json:"amount"`
	DocumentID   int64           `json:"document_id"`
	OccurredAt   time.Time       `json:"occurred_at"`
}

// EnrichmentFailurePayload describes a side posting that was not written.
type EnrichmentFailurePayload struct {
	TenantID      int64     `json:"tenant_id"`
	Posting       string    `json:"posting"`
	ReferenceKind string    `json:"reference_kind"`
	ReferenceID   int64     `json:"reference_id"`
	Retryable     bool      `json:"retryable"`
	Error         string    `json:"error"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewBudgetSpendingTask builds the task for a budget notification.
func NewBudgetSpendingTask(payload BudgetSpendingPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBudgetSpending, data, asynq.MaxRetry(5)), nil
}

// NewEnrichmentFailureTask builds the task for a skipped side posting.
func NewEnrichmentFailureTask(payload EnrichmentFailurePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskEnrichmentFailure, data, asynq.MaxRetry(3)), nil
}
