package postings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// EnrichmentError indicates the parent document was posted but a side posting was not.
type EnrichmentError struct {
	Err       error
	Reference journals.Reference
	Name      string
	Retryable bool
}

func (e *EnrichmentError) Error() string {
	return fmt.Sprintf("%s for %s #%d not posted: %v", e.Name, e.Reference.Kind, e.Reference.ID, e.Err)
}

func (e *EnrichmentError) Unwrap() error {
	return e.Err
}

func newEnrichmentError(name string, ref journals.Reference, err error) *EnrichmentError {
	// Missing accounts can be fixed by the tenant and the side posting replayed.
	return &EnrichmentError{
		Err:       err,
		Reference: ref,
		Name:      name,
		Retryable: errors.Is(err, shared.ErrMissingAccount) || errors.Is(err, shared.ErrAccountInactive),
	}
}

// Reporter is told about side postings that were skipped.
type Reporter interface {
	ReportEnrichmentFailure(ctx context.Context, tenantID int64, failure *EnrichmentError)
}

// Metrics counts skipped side postings.
type Metrics interface {
	RecordEnrichmentFailure(reference string)
}

// Enricher posts non-essential entries such as COGS. A failure is rolled back
// to a savepoint, logged and reported; the parent transaction carries on.
type Enricher struct {
	journals *journals.Service
	logger   *slog.Logger
	reporter Reporter
	metrics  Metrics
}

func NewEnricher(journalService *journals.Service, logger *slog.Logger, reporter Reporter, metrics Metrics) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{journals: journalService, logger: logger, reporter: reporter, metrics: metrics}
}

// Post attempts the side posting. It returns the failure for callers that
// surface warnings, but callers must not treat it as fatal.
func (e *Enricher) Post(ctx context.Context, tx journals.TxRepository, tenantID int64, name string, in journals.PostingInput) *EnrichmentError {
	if e == nil || e.journals == nil {
		return nil
	}
	err := tx.Savepoint(ctx, func(ctx context.Context) error {
		_, err := e.journals.PostTx(ctx, tx, tenantID, in)
		return err
	})
	if err == nil {
		return nil
	}
	failure := newEnrichmentError(name, in.Reference, err)
	e.Report(ctx, tenantID, failure)
	return failure
}

// Report logs, counts and forwards a failure that happened before posting, such
// as an invalid cost amount.
func (e *Enricher) Report(ctx context.Context, tenantID int64, failure *EnrichmentError) {
	if e == nil || failure == nil {
		return
	}
	e.logger.Warn("side posting skipped",
		slog.Int64("tenant_id", tenantID),
		slog.String("posting", failure.Name),
		slog.String("reference_type", string(failure.Reference.Kind)),
		slog.Int64("reference_id", failure.Reference.ID),
		slog.Bool("retryable", failure.Retryable),
		slog.Any("error", failure.Err),
	)
	if e.metrics != nil {
		e.metrics.RecordEnrichmentFailure(string(failure.Reference.Kind))
	}
	if e.reporter != nil {
		e.reporter.ReportEnrichmentFailure(ctx, tenantID, failure)
	}
}

// PostCOGS posts the COGS entry (or its reversal for returns) for a document.
// A zero cost means the document carries no inventory and nothing is posted.
func (e *Enricher) PostCOGS(ctx context.Context, tx journals.TxRepository, tenantID int64, kind journals.ReferenceKind, doc Document, cost decimal.Decimal, reversal bool) *EnrichmentError {
	if e == nil || cost.IsZero() {
		return nil
	}
	name := "cogs"
	build := COGS
	if reversal {
		name = "cogs_reversal"
		build = COGSReversal
	}
	in, err := build(kind, doc, cost)
	if err != nil {
		failure := newEnrichmentError(name, journals.Reference{Kind: kind, ID: doc.ID}, err)
		e.Report(ctx, tenantID, failure)
		return failure
	}
	return e.Post(ctx, tx, tenantID, name, in)
}
