package payments

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/postings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/bank"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoices"
	"github.com/odyssey-erp/odyssey-ledger/internal/notes"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Service is the payment allocation engine.
type Service struct {
	repo     Repository
	journals *journals.Service
	bank     *bank.Service
	invoices *invoices.Service
	notes    *notes.Service
	logger   *slog.Logger
	audit    internalShared.AuditRecorder
	locker   internalShared.Locker
	now      func() time.Time
}

// Option customises the service.
type Option func(*Service)

// WithAudit attaches the audit recorder.
func WithAudit(a internalShared.AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

// WithLocker guards payment clearance across processes.
func WithLocker(l internalShared.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo Repository, journalService *journals.Service, bankService *bank.Service, invoiceService *invoices.Service, noteService *notes.Service, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
		journals: journalService,
		bank:     bankService,
		invoices: invoiceService,
		notes:    noteService,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreatePayment validates and stores a pending payment with its allocations
// and note applications. No balance changes until ClearPayment.
func (s *Service) CreatePayment(ctx context.Context, tenantID int64, in CreateInput) (Payment, error) {
	if err := validateInput(in); err != nil {
		return Payment{}, err
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	kind := in.Direction.InvoiceKind()

	var out Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acct, err := tx.GetBankAccount(ctx, tenantID, in.BankAccountID)
		if err != nil {
			return err
		}
		if !acct.IsActive {
			return fmt.Errorf("%w: %d", bank.ErrBankAccountInactive, acct.ID)
		}

		allocs := slices.Clone(in.Allocations)
		slices.SortFunc(allocs, func(a, b AllocationInput) int { return compareID(a.InvoiceID, b.InvoiceID) })
		for _, a := range allocs {
			inv, err := tx.GetInvoiceForUpdate(ctx, tenantID, a.InvoiceID)
			if err != nil {
				return err
			}
			if err := checkInvoice(inv, in.CounterpartyID, kind, a.Amount); err != nil {
				return err
			}
		}
		apps := slices.Clone(in.NoteApplications)
		slices.SortFunc(apps, func(a, b NoteInput) int { return compareID(a.NoteID, b.NoteID) })
		for _, n := range apps {
			if _, err := s.notes.ValidateForPaymentTx(ctx, tx, tenantID, n.NoteID, in.CounterpartyID, kind, n.Amount); err != nil {
				return err
			}
		}

		p, err := tx.InsertPayment(ctx, Payment{
			TenantID:       tenantID,
			Direction:      in.Direction,
			CounterpartyID: in.CounterpartyID,
			BankAccountID:  in.BankAccountID,
			Amount:         in.Amount,
			Date:           in.Date,
			Reference:      in.Reference,
			Description:    in.Description,
			Status:         StatusPending,
		})
		if err != nil {
			return err
		}
		for _, a := range allocs {
			row, err := tx.InsertAllocation(ctx, Allocation{TenantID: tenantID, PaymentID: p.ID, InvoiceID: a.InvoiceID, Amount: a.Amount})
			if err != nil {
				return err
			}
			p.Allocations = append(p.Allocations, row)
		}
		for _, n := range apps {
			row, err := tx.InsertNoteApplication(ctx, notes.Application{
				TenantID: tenantID, NoteID: n.NoteID, TargetType: notes.TargetPayment, TargetID: p.ID, Amount: n.Amount,
			})
			if err != nil {
				return err
			}
			p.NoteApplications = append(p.NoteApplications, row)
		}
		out = p
		return nil
	})
	return out, err
}

func validateInput(in CreateInput) error {
	if !in.Direction.Valid() {
		return fmt.Errorf("%w: direction %q", ErrInvalidPayment, in.Direction)
	}
	if in.CounterpartyID <= 0 || in.BankAccountID <= 0 {
		return fmt.Errorf("%w: counterparty and bank account required", ErrInvalidPayment)
	}
	if in.Amount.IsNegative() {
		return fmt.Errorf("%w: payment amount %s", shared.ErrInvalidAmount, in.Amount.StringFixed(2))
	}
	if len(in.Allocations) == 0 {
		return shared.ErrNoAllocation
	}
	seen := make(map[int64]struct{}, len(in.Allocations))
	for _, a := range in.Allocations {
		if !a.Amount.IsPositive() {
			return fmt.Errorf("%w: allocation to invoice %d must be positive", shared.ErrInvalidAmount, a.InvoiceID)
		}
		if _, dup := seen[a.InvoiceID]; dup {
			return fmt.Errorf("%w: invoice %d allocated twice", ErrInvalidPayment, a.InvoiceID)
		}
		seen[a.InvoiceID] = struct{}{}
	}
	seenNotes := make(map[int64]struct{}, len(in.NoteApplications))
	for _, n := range in.NoteApplications {
		if !n.Amount.IsPositive() {
			return fmt.Errorf("%w: application of note %d must be positive", shared.ErrInvalidAmount, n.NoteID)
		}
		if _, dup := seenNotes[n.NoteID]; dup {
			return fmt.Errorf("%w: note %d applied twice", ErrInvalidPayment, n.NoteID)
		}
		seenNotes[n.NoteID] = struct{}{}
	}
	allocated, noted, cash := in.Totals()
	if noted.GreaterThan(allocated) {
		return fmt.Errorf("%w: notes %s, allocations %s", shared.ErrNoteExceedsAllocation, noted.StringFixed(2), allocated.StringFixed(2))
	}
	if cash.GreaterThan(in.Amount) {
		return fmt.Errorf("%w: cash applied %s, payment %s", shared.ErrAllocationExceedsPayment, cash.StringFixed(2), in.Amount.StringFixed(2))
	}
	return nil
}

func checkInvoice(inv invoices.Invoice, counterpartyID int64, kind invoices.Kind, amount decimal.Decimal) error {
	if inv.CounterpartyID != counterpartyID {
		return fmt.Errorf("%w: invoice %d", shared.ErrCounterpartyMismatch, inv.ID)
	}
	if inv.Kind != kind {
		return fmt.Errorf("%w: %s invoice %d cannot be settled by this payment", ErrInvalidPayment, inv.Kind, inv.ID)
	}
	if !inv.Open() {
		return shared.NewStateError("invoice", inv.ID, string(inv.Status), "allocate to")
	}
	if amount.GreaterThan(inv.BalanceAmount) {
		return &shared.AllocationError{
			Err:        shared.ErrAllocationExceedsBalance,
			DocumentID: inv.ID,
			Amount:     amount,
			Balance:    inv.BalanceAmount,
		}
	}
	return nil
}

func compareID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ClearPayment moves a pending payment to cleared. A positive amount posts the
// payment entry and appends its bank line; allocations then settle invoices and
// note applications consume notes. Everything commits together.
func (s *Service) ClearPayment(ctx context.Context, tenantID, id int64) error {
	var (
		cleared Payment
		txn     *bank.Transaction
	)
	err := s.withLock(ctx, internalShared.PaymentLockKey(tenantID, id), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			p, err := tx.GetPaymentForUpdate(ctx, tenantID, id)
			if err != nil {
				return err
			}
			if p.Status != StatusPending {
				return shared.NewStateError("payment", p.ID, string(p.Status), "clear")
			}
			allocs, err := tx.ListAllocations(ctx, tenantID, p.ID)
			if err != nil {
				return err
			}
			apps, err := tx.ListTargetApplications(ctx, tenantID, notes.TargetPayment, p.ID)
			if err != nil {
				return err
			}
			if len(allocs) == 0 {
				return shared.ErrNoAllocation
			}
			allocated, noted := decimal.Zero, decimal.Zero
			for _, a := range allocs {
				allocated = allocated.Add(a.Amount)
			}
			for _, a := range apps {
				noted = noted.Add(a.Amount)
			}

			if p.Amount.IsPositive() {
				link, _, err := s.bank.LinkTx(ctx, tx, tenantID, p.BankAccountID)
				if err != nil {
					return err
				}
				doc := postings.Document{ID: p.ID, Date: p.Date, Description: p.Description}
				var posting journals.PostingInput
				if p.Direction == DirectionVendor {
					posting, err = postings.VendorPayment(doc, link, p.Amount, allocated.Sub(noted))
				} else {
					posting, err = postings.CustomerPayment(doc, link, p.Amount, allocated.Sub(noted))
				}
				if err != nil {
					return err
				}
				entry, err := s.journals.PostTx(ctx, tx, tenantID, posting)
				if err != nil {
					return err
				}
				ref := p.Reference
				if ref == "" {
					ref = fmt.Sprintf("PAY-%d", p.ID)
				}
				line, err := s.bank.AppendTransactionTx(ctx, tx, tenantID, bank.AppendInput{
					BankAccountID:   p.BankAccountID,
					Date:            p.Date,
					Type:            p.Direction.BankType(),
					Amount:          p.Amount,
					ReferenceNumber: ref,
					Description:     posting.Description,
				})
				if err != nil {
					return err
				}
				p.JournalEntryID = &entry.ID
				p.BankTransactionID = &line.ID
				txn = &line
			}

			for _, a := range allocs {
				if _, err := s.invoices.SettleTx(ctx, tx, tenantID, a.InvoiceID, a.Amount); err != nil {
					return err
				}
			}
			for _, a := range apps {
				if _, err := s.notes.ApplyToPaymentTx(ctx, tx, tenantID, a.NoteID, a.Amount); err != nil {
					return err
				}
			}
			now := s.now()
			p.ClearedAt = &now
			if err := tx.MarkPaymentCleared(ctx, p); err != nil {
				return err
			}
			p.Status = StatusCleared
			p.Allocations = allocs
			p.NoteApplications = apps
			cleared = p
			return nil
		})
	})
	if err != nil {
		return err
	}
	if txn != nil {
		s.bank.Committed(*txn)
	}
	s.recordAudit(ctx, tenantID, "payment.clear", cleared.ID, map[string]any{
		"direction": string(cleared.Direction),
		"amount":    cleared.Amount.StringFixed(2),
	})
	return nil
}

// DeletePayment removes a pending payment. Cleared payments cannot be deleted.
func (s *Service) DeletePayment(ctx context.Context, tenantID, id int64) error {
	return s.withLock(ctx, internalShared.PaymentLockKey(tenantID, id), func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			p, err := tx.GetPaymentForUpdate(ctx, tenantID, id)
			if err != nil {
				return err
			}
			if p.Status != StatusPending {
				return shared.NewStateError("payment", p.ID, string(p.Status), "delete")
			}
			if err := tx.DeleteTargetApplications(ctx, tenantID, notes.TargetPayment, p.ID); err != nil {
				return err
			}
			return tx.DeletePayment(ctx, tenantID, p.ID)
		})
	})
}

// GetPayment returns the payment with its allocations and note applications.
func (s *Service) GetPayment(ctx context.Context, tenantID, id int64) (Payment, error) {
	var out Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.GetPayment(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if p.Allocations, err = tx.ListAllocations(ctx, tenantID, p.ID); err != nil {
			return err
		}
		if p.NoteApplications, err = tx.ListTargetApplications(ctx, tenantID, notes.TargetPayment, p.ID); err != nil {
			return err
		}
		out = p
		return nil
	})
	return out, err
}

func (s *Service) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	return s.locker.WithLock(ctx, key, fn)
}

func (s *Service) recordAudit(ctx context.Context, tenantID int64, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		TenantID: tenantID,
		Action:   action,
		Entity:   "payment",
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit payment", slog.String("action", action), slog.Any("error", err))
	}
}
