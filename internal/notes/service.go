package notes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/postings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoices"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Service approves notes and applies their value against invoices and payments.
type Service struct {
	repo     Repository
	journals *journals.Service
	invoices *invoices.Service
	enricher *postings.Enricher
	logger   *slog.Logger
	audit    internalShared.AuditRecorder
	now      func() time.Time
}

// Option customises the service.
type Option func(*Service)

// WithAudit attaches the audit recorder.
func WithAudit(a internalShared.AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

// WithClock overrides the time source for default dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo Repository, journalService *journals.Service, invoiceService *invoices.Service, enricher *postings.Enricher, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
		journals: journalService,
		invoices: invoiceService,
		enricher: enricher,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateNote stores a draft note. A referenced origin invoice must belong to
// the same counterparty and be of the kind the note settles.
func (s *Service) CreateNote(ctx context.Context, tenantID int64, in CreateInput) (Note, error) {
	if !in.Kind.Valid() {
		return Note{}, fmt.Errorf("%w: kind %q", ErrInvalidNote, in.Kind)
	}
	if strings.TrimSpace(in.Number) == "" || in.CounterpartyID <= 0 {
		return Note{}, fmt.Errorf("%w: number and counterparty required", ErrInvalidNote)
	}
	if in.Subtotal.IsNegative() || in.Tax.IsNegative() || in.Cost.IsNegative() {
		return Note{}, fmt.Errorf("%w: amounts must not be negative", shared.ErrInvalidAmount)
	}
	total := in.Subtotal.Add(in.Tax)
	if !total.IsPositive() {
		return Note{}, fmt.Errorf("%w: note total must be positive", shared.ErrInvalidAmount)
	}
	if in.Kind == KindDebit && !in.Cost.IsZero() {
		return Note{}, fmt.Errorf("%w: cost applies to credit notes", ErrInvalidNote)
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	var out Note
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if in.InvoiceID != nil {
			inv, err := tx.GetInvoice(ctx, tenantID, *in.InvoiceID)
			if err != nil {
				return err
			}
			if err := matches(in.Kind, in.CounterpartyID, inv); err != nil {
				return err
			}
		}
		var err error
		out, err = tx.InsertNote(ctx, Note{
			TenantID:       tenantID,
			Kind:           in.Kind,
			Number:         strings.TrimSpace(in.Number),
			CounterpartyID: in.CounterpartyID,
			InvoiceID:      in.InvoiceID,
			Date:           in.Date,
			Subtotal:       in.Subtotal,
			Tax:            in.Tax,
			TotalAmount:    total,
			AppliedAmount:  decimal.Zero,
			BalanceAmount:  total,
			Cost:           in.Cost,
			Inventory:      in.Inventory,
			Status:         StatusDraft,
		})
		return err
	})
	return out, err
}

// ApproveResult carries the approved note, its entry and skipped side postings.
type ApproveResult struct {
	Note     Note
	Entry    journals.JournalEntry
	Warnings []string
}

// ApproveNote moves a draft note to approved and posts its reversal entry. A
// failing primary posting leaves the note in draft. The COGS reversal of a
// credit note carrying a cost is posted best-effort.
func (s *Service) ApproveNote(ctx context.Context, tenantID, id int64) (ApproveResult, error) {
	var out ApproveResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.GetNoteForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if n.Status != StatusDraft {
			return shared.NewStateError("note", n.ID, string(n.Status), "approve")
		}
		doc := postings.Document{ID: n.ID, Date: n.Date, Description: fmt.Sprintf("Note %s", n.Number)}
		var posting journals.PostingInput
		if n.Kind == KindDebit {
			posting, err = postings.DebitNote(doc, n.Subtotal, n.Tax, n.Inventory)
		} else {
			posting, err = postings.CreditNote(doc, n.Subtotal, n.Tax)
		}
		if err != nil {
			return err
		}
		entry, err := s.journals.PostTx(ctx, tx, tenantID, posting)
		if err != nil {
			return err
		}
		if err := tx.MarkNoteApproved(ctx, tenantID, n.ID, entry.ID); err != nil {
			return err
		}
		n.Status = StatusApproved
		n.JournalEntryID = &entry.ID
		out = ApproveResult{Note: n, Entry: entry}
		if n.Kind == KindCredit {
			if failure := s.enricher.PostCOGS(ctx, tx, tenantID, journals.RefCreditNote, doc, n.Cost, true); failure != nil {
				out.Warnings = append(out.Warnings, failure.Error())
			}
		}
		return nil
	})
	if err != nil {
		return ApproveResult{}, err
	}
	s.recordAudit(ctx, tenantID, "note.approve", out.Note.ID, map[string]any{
		"kind":  string(out.Note.Kind),
		"total": out.Note.TotalAmount.StringFixed(2),
	})
	return out, nil
}

// AutoApplyToInvoice consumes the counterparty's open notes against the
// invoice balance, oldest first, and returns the total applied.
func (s *Service) AutoApplyToInvoice(ctx context.Context, tenantID, invoiceID int64) (decimal.Decimal, error) {
	applied := decimal.Zero
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		applied, err = s.AutoApplyToInvoiceTx(ctx, tx, tenantID, invoiceID)
		return err
	})
	if err != nil {
		return decimal.Zero, err
	}
	return applied, nil
}

// AutoApplyToInvoiceTx runs the greedy application on a caller-owned transaction.
func (s *Service) AutoApplyToInvoiceTx(ctx context.Context, tx TxRepository, tenantID, invoiceID int64) (decimal.Decimal, error) {
	inv, err := tx.GetInvoiceForUpdate(ctx, tenantID, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	if inv.Status == invoices.StatusPaid {
		return decimal.Zero, nil
	}
	if !inv.Open() {
		return decimal.Zero, shared.NewStateError("invoice", inv.ID, string(inv.Status), "apply notes to")
	}
	candidates, err := tx.ListApplicableNotesForUpdate(ctx, tenantID, inv.CounterpartyID, KindFor(inv.Kind))
	if err != nil {
		return decimal.Zero, err
	}
	remaining := inv.BalanceAmount
	applied := decimal.Zero
	for _, n := range candidates {
		if !remaining.IsPositive() {
			break
		}
		if !n.Applicable() {
			continue
		}
		available, err := s.unreserved(ctx, tx, n)
		if err != nil {
			return decimal.Zero, err
		}
		if !available.IsPositive() {
			continue
		}
		amount := decimal.Min(available, remaining)
		if err := s.consume(ctx, tx, &n, TargetInvoice, inv.ID, amount); err != nil {
			return decimal.Zero, err
		}
		remaining = remaining.Sub(amount)
		applied = applied.Add(amount)
	}
	if applied.IsPositive() {
		if _, err := s.invoices.SettleTx(ctx, tx, tenantID, inv.ID, applied); err != nil {
			return decimal.Zero, err
		}
	}
	return applied, nil
}

// ApplyToInvoice applies amount of one note to one invoice.
func (s *Service) ApplyToInvoice(ctx context.Context, tenantID, noteID, invoiceID int64, amount decimal.Decimal) (Application, error) {
	if !amount.IsPositive() {
		return Application{}, fmt.Errorf("%w: application %s must be positive", shared.ErrInvalidAmount, amount.StringFixed(2))
	}
	var out Application
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, tenantID, invoiceID)
		if err != nil {
			return err
		}
		n, err := s.applicableNote(ctx, tx, tenantID, noteID, amount, true)
		if err != nil {
			return err
		}
		if err := matches(n.Kind, n.CounterpartyID, inv); err != nil {
			return err
		}
		if _, err := s.invoices.SettleTx(ctx, tx, tenantID, inv.ID, amount); err != nil {
			return err
		}
		if err := s.apply(ctx, tx, &n, amount); err != nil {
			return err
		}
		out, err = tx.InsertNoteApplication(ctx, Application{
			TenantID: tenantID, NoteID: n.ID, TargetType: TargetInvoice, TargetID: inv.ID, Amount: amount,
		})
		return err
	})
	return out, err
}

// ValidateForPaymentTx checks that amount of the note can be applied against
// a payment to counterpartyID settling invoices of kind. It takes the note lock.
func (s *Service) ValidateForPaymentTx(ctx context.Context, tx TxRepository, tenantID, noteID, counterpartyID int64, kind invoices.Kind, amount decimal.Decimal) (Note, error) {
	n, err := s.applicableNote(ctx, tx, tenantID, noteID, amount, true)
	if err != nil {
		return Note{}, err
	}
	if n.CounterpartyID != counterpartyID {
		return Note{}, fmt.Errorf("%w: note %d", shared.ErrCounterpartyMismatch, n.ID)
	}
	if n.Kind.InvoiceKind() != kind {
		return Note{}, fmt.Errorf("%w: %s note %d", ErrKindMismatch, n.Kind, n.ID)
	}
	return n, nil
}

// ApplyToPaymentTx consumes amount of the note for a clearing payment. The
// application row was written when the payment was created.
func (s *Service) ApplyToPaymentTx(ctx context.Context, tx TxRepository, tenantID, noteID int64, amount decimal.Decimal) (Note, error) {
	n, err := s.applicableNote(ctx, tx, tenantID, noteID, amount, false)
	if err != nil {
		return Note{}, err
	}
	if err := s.apply(ctx, tx, &n, amount); err != nil {
		return Note{}, err
	}
	return n, nil
}

// GetNote returns the note with its applications.
func (s *Service) GetNote(ctx context.Context, tenantID, id int64) (Note, error) {
	var out Note
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.GetNote(ctx, tenantID, id)
		if err != nil {
			return err
		}
		n.Applications, err = tx.ListNoteApplications(ctx, tenantID, n.ID)
		out = n
		return err
	})
	return out, err
}

// applicableNote locks the note and checks amount against its balance. With
// excludeReserved the amounts held by pending payments are not available.
func (s *Service) applicableNote(ctx context.Context, tx TxRepository, tenantID, noteID int64, amount decimal.Decimal, excludeReserved bool) (Note, error) {
	n, err := tx.GetNoteForUpdate(ctx, tenantID, noteID)
	if err != nil {
		return Note{}, err
	}
	if n.Status != StatusApproved && n.Status != StatusPartial {
		return Note{}, shared.NewStateError("note", n.ID, string(n.Status), "apply")
	}
	available := n.BalanceAmount
	if excludeReserved {
		if available, err = s.unreserved(ctx, tx, n); err != nil {
			return Note{}, err
		}
	}
	if amount.GreaterThan(available) {
		return Note{}, &shared.AllocationError{
			Err:        shared.ErrNoteExceedsBalance,
			DocumentID: n.ID,
			Amount:     amount,
			Balance:    available,
		}
	}
	return n, nil
}

// unreserved is the note balance minus what pending payments already hold.
func (s *Service) unreserved(ctx context.Context, tx TxRepository, n Note) (decimal.Decimal, error) {
	reserved, err := tx.PendingPaymentReservation(ctx, n.TenantID, n.ID)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Max(n.BalanceAmount.Sub(reserved), decimal.Zero), nil
}

func (s *Service) consume(ctx context.Context, tx TxRepository, n *Note, target TargetType, targetID int64, amount decimal.Decimal) error {
	if err := s.apply(ctx, tx, n, amount); err != nil {
		return err
	}
	_, err := tx.InsertNoteApplication(ctx, Application{
		TenantID: n.TenantID, NoteID: n.ID, TargetType: target, TargetID: targetID, Amount: amount,
	})
	return err
}

func (s *Service) apply(ctx context.Context, tx TxRepository, n *Note, amount decimal.Decimal) error {
	n.Apply(amount)
	return tx.UpdateNoteApplication(ctx, *n)
}

func matches(kind Kind, counterpartyID int64, inv invoices.Invoice) error {
	if inv.CounterpartyID != counterpartyID {
		return fmt.Errorf("%w: invoice %d", shared.ErrCounterpartyMismatch, inv.ID)
	}
	if kind.InvoiceKind() != inv.Kind {
		return fmt.Errorf("%w: %s note against %s invoice %d", ErrKindMismatch, kind, inv.Kind, inv.ID)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, tenantID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		TenantID: tenantID,
		Action:   action,
		Entity:   "note",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit note", slog.String("action", action), slog.Any("error", err))
	}
}
