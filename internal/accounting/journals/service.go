package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Metrics receives posting outcomes.
type Metrics interface {
	RecordPosting(reference, status string)
}

// Service is the journal posting engine. Every balance change in the ledger
// goes through PostTx or ReverseTx.
type Service struct {
	repo     Repository
	accounts *accounts.Service
	audit    internalShared.AuditRecorder
	metrics  Metrics
	logger   *slog.Logger
	epsilon  decimal.Decimal
	now      func() time.Time
}

// Option customises the service.
type Option func(*Service)

// WithEpsilon overrides the balance tolerance.
func WithEpsilon(epsilon decimal.Decimal) Option {
	return func(s *Service) {
		if epsilon.IsPositive() {
			s.epsilon = epsilon
		}
	}
}

// WithMetrics attaches a posting metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAudit attaches the audit recorder.
func WithAudit(a internalShared.AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

func NewService(repo Repository, accountService *accounts.Service, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{repo: repo, accounts: accountService, logger: logger, epsilon: DefaultEpsilon, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Epsilon returns the configured balance tolerance.
func (s *Service) Epsilon() decimal.Decimal {
	return s.epsilon
}

// Post validates and persists a balanced entry in its own transaction.
func (s *Service) Post(ctx context.Context, tenantID int64, in PostingInput) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = s.PostTx(ctx, tx, tenantID, in)
		return err
	})
	if err != nil {
		return JournalEntry{}, err
	}
	s.recordAudit(ctx, tenantID, "journal.post", entry.ID, map[string]any{
		"reference_type": string(entry.Reference.Kind),
		"reference_id":   entry.Reference.ID,
		"total":          entry.TotalDebit.StringFixed(2),
	})
	return entry, nil
}

// PostTx posts on a caller-owned transaction so documents can commit their
// own rows together with the entry.
func (s *Service) PostTx(ctx context.Context, tx TxRepository, tenantID int64, in PostingInput) (JournalEntry, error) {
	entry, err := s.post(ctx, tx, tenantID, in)
	s.recordMetric(in.Reference.Kind, err)
	return entry, err
}

func (s *Service) post(ctx context.Context, tx TxRepository, tenantID int64, in PostingInput) (JournalEntry, error) {
	if in.EntryType == "" {
		in.EntryType = EntryTypeAutomatic
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	if err := in.Validate(s.epsilon); err != nil {
		return JournalEntry{}, err
	}

	// Resolve every code before the first write so a missing account leaves no rows.
	resolved := make(map[string]accounts.Account, len(in.Lines))
	ids := make([]int64, 0, len(in.Lines))
	for _, line := range in.Lines {
		code := strings.TrimSpace(line.AccountCode)
		if _, ok := resolved[code]; ok {
			continue
		}
		acc, err := s.accounts.LookupByCodeTx(ctx, tx, tenantID, code)
		if err != nil {
			if errors.Is(err, shared.ErrAccountNotFound) {
				return JournalEntry{}, &shared.MissingAccountError{Code: code}
			}
			return JournalEntry{}, err
		}
		if !acc.IsActive {
			return JournalEntry{}, fmt.Errorf("%w: %s", shared.ErrAccountInactive, code)
		}
		resolved[code] = acc
		ids = append(ids, acc.ID)
	}
	if err := tx.LockAccounts(ctx, tenantID, ids); err != nil {
		return JournalEntry{}, err
	}

	debit, credit := Totals(in.Lines)
	entry, err := tx.InsertJournalEntry(ctx, JournalEntry{
		TenantID:    tenantID,
		Date:        in.Date,
		EntryType:   in.EntryType,
		Reference:   in.Reference,
		Description: in.Description,
		TotalDebit:  debit,
		TotalCredit: credit,
		Status:      JournalStatusPosted,
	})
	if err != nil {
		return JournalEntry{}, err
	}

	items := make([]JournalItem, 0, len(in.Lines))
	deltas := make(map[int64]decimal.Decimal, len(ids))
	for _, line := range in.Lines {
		acc := resolved[strings.TrimSpace(line.AccountCode)]
		items = append(items, JournalItem{
			AccountID:   acc.ID,
			AccountCode: acc.Code,
			Description: line.Description,
			Debit:       line.Debit,
			Credit:      line.Credit,
		})
		deltas[acc.ID] = deltas[acc.ID].Add(acc.Delta(line.Debit, line.Credit))
	}
	entry.Items, err = tx.InsertJournalItems(ctx, entry.ID, items)
	if err != nil {
		return JournalEntry{}, err
	}
	if err := s.applyDeltas(ctx, tx, tenantID, deltas); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// Reverse undoes an entry's balance effects and deletes it.
func (s *Service) Reverse(ctx context.Context, tenantID, entryID int64) error {
	return s.reverse(ctx, tenantID, entryID, false)
}

// PostAdjustment posts a manual entry. Only the adjustment reference kind is
// accepted; document entries are posted by their owning module.
func (s *Service) PostAdjustment(ctx context.Context, tenantID int64, in PostingInput) (JournalEntry, error) {
	if in.Reference.Kind == "" {
		in.Reference.Kind = RefAdjustment
	}
	if in.Reference.Kind != RefAdjustment {
		return JournalEntry{}, fmt.Errorf("%w: manual entries must reference %s, got %q", shared.ErrInvalidReference, RefAdjustment, in.Reference.Kind)
	}
	in.EntryType = EntryTypeManual
	return s.Post(ctx, tenantID, in)
}

// ReverseAdjustment reverses a manual entry. Entries owned by a document are
// only removed together with that document.
func (s *Service) ReverseAdjustment(ctx context.Context, tenantID, entryID int64) error {
	return s.reverse(ctx, tenantID, entryID, true)
}

func (s *Service) reverse(ctx context.Context, tenantID, entryID int64, adjustmentOnly bool) error {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if adjustmentOnly {
			current, err := tx.GetJournalForUpdate(ctx, tenantID, entryID)
			if err != nil {
				return err
			}
			if current.Reference.Kind != RefAdjustment {
				return shared.NewStateError("journal_entry", entryID,
					fmt.Sprintf("owned by %s %d", current.Reference.Kind, current.Reference.ID), "reverse")
			}
		}
		var err error
		entry, err = s.ReverseTx(ctx, tx, tenantID, entryID)
		return err
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenantID, "journal.reverse", entryID, map[string]any{
		"reference_type": string(entry.Reference.Kind),
		"reference_id":   entry.Reference.ID,
	})
	return nil
}

// ReverseTx negates every item delta, then removes items and header. It
// returns the entry as it was before deletion.
func (s *Service) ReverseTx(ctx context.Context, tx TxRepository, tenantID, entryID int64) (JournalEntry, error) {
	entry, err := tx.GetJournalForUpdate(ctx, tenantID, entryID)
	if err != nil {
		return JournalEntry{}, err
	}
	ids := make([]int64, 0, len(entry.Items))
	for _, item := range entry.Items {
		ids = append(ids, item.AccountID)
	}
	if err := tx.LockAccounts(ctx, tenantID, ids); err != nil {
		return JournalEntry{}, err
	}
	deltas := make(map[int64]decimal.Decimal, len(ids))
	for _, item := range entry.Items {
		acc, err := tx.GetAccount(ctx, tenantID, item.AccountID)
		if err != nil {
			return JournalEntry{}, err
		}
		deltas[acc.ID] = deltas[acc.ID].Sub(acc.Delta(item.Debit, item.Credit))
	}
	if err := s.applyDeltas(ctx, tx, tenantID, deltas); err != nil {
		return JournalEntry{}, err
	}
	if err := tx.DeleteJournal(ctx, tenantID, entry.ID); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

// ReverseReferenceTx reverses every entry posted for ref and reports how many were removed.
func (s *Service) ReverseReferenceTx(ctx context.Context, tx TxRepository, tenantID int64, ref Reference) (int, error) {
	entries, err := tx.ListJournalsByReference(ctx, tenantID, ref)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if _, err := s.ReverseTx(ctx, tx, tenantID, entry.ID); err != nil {
			return 0, err
		}
	}
	return len(entries), nil
}

// Get returns an entry with its items.
func (s *Service) Get(ctx context.Context, tenantID, entryID int64) (JournalEntry, error) {
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.GetJournal(ctx, tenantID, entryID)
		return err
	})
	return entry, err
}

// ListByReference returns the entries a document produced.
func (s *Service) ListByReference(ctx context.Context, tenantID int64, ref Reference) ([]JournalEntry, error) {
	var out []JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.ListJournalsByReference(ctx, tenantID, ref)
		return err
	})
	return out, err
}

// applyDeltas writes balance changes in ascending account id order.
func (s *Service) applyDeltas(ctx context.Context, tx TxRepository, tenantID int64, deltas map[int64]decimal.Decimal) error {
	ids := make([]int64, 0, len(deltas))
	for id := range deltas {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		if err := s.accounts.ApplyDeltaTx(ctx, tx, tenantID, id, deltas[id]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) recordMetric(kind ReferenceKind, err error) {
	if s.metrics == nil {
		return
	}
	status := "posted"
	switch {
	case err == nil:
	case shared.IsValidation(err):
		status = "rejected"
	default:
		status = "failed"
	}
	s.metrics.RecordPosting(string(kind), status)
}

func (s *Service) recordAudit(ctx context.Context, tenantID int64, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		TenantID: tenantID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entryID),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit journal", slog.String("action", action), slog.Any("error", err))
	}
}
