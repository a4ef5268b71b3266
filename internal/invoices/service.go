package invoices

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
)

// Service creates, posts and settles invoices.
type Service struct {
	repo     Repository
	journals *journals.Service
	enricher *postings.Enricher
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo Repository, journalService *journals.Service, enricher *postings.Enricher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, journals: journalService, enricher: enricher, logger: logger, now: time.Now}
}

// Create stores a draft invoice. Nothing is posted until Post.
func (s *Service) Create(ctx context.Context, tenantID int64, in CreateInput) (Invoice, error) {
	if !in.Kind.Valid() {
		return Invoice{}, fmt.Errorf("%w: kind %q", ErrInvalidInvoice, in.Kind)
	}
	if strings.TrimSpace(in.Number) == "" || in.CounterpartyID <= 0 {
		return Invoice{}, fmt.Errorf("%w: number and counterparty required", ErrInvalidInvoice)
	}
	if in.Subtotal.IsNegative() || in.Tax.IsNegative() || in.Cost.IsNegative() {
		return Invoice{}, fmt.Errorf("%w: amounts must not be negative", shared.ErrInvalidAmount)
	}
	total := in.Subtotal.Add(in.Tax)
	if !total.IsPositive() {
		return Invoice{}, fmt.Errorf("%w: invoice total must be positive", shared.ErrInvalidAmount)
	}
	if in.Kind == KindPurchase && !in.Cost.IsZero() {
		return Invoice{}, fmt.Errorf("%w: cost applies to sales invoices", ErrInvalidInvoice)
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	var out Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.InsertInvoice(ctx, Invoice{
			TenantID:       tenantID,
			Kind:           in.Kind,
			Number:         strings.TrimSpace(in.Number),
			CounterpartyID: in.CounterpartyID,
			Date:           in.Date,
			DueDate:        in.DueDate,
			Subtotal:       in.Subtotal,
			Tax:            in.Tax,
			TotalAmount:    total,
			PaidAmount:     decimal.Zero,
			BalanceAmount:  total,
			Cost:           in.Cost,
			Inventory:      in.Inventory,
			Status:         StatusDraft,
		})
		return err
	})
	return out, err
}

// PostResult carries the posted invoice, its entry and skipped side postings.
type PostResult struct {
	Invoice  Invoice
	Entry    journals.JournalEntry
	Warnings []string
}

// Post moves a draft invoice to posted and records its journal entry. COGS
// for sales invoices carrying a cost is posted best-effort.
func (s *Service) Post(ctx context.Context, tenantID, id int64) (PostResult, error) {
	var out PostResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetInvoiceForUpdate(ctx, tenantID, id)
		if err != nil {
			return err
		}
		if inv.Status != StatusDraft {
			return shared.NewStateError("invoice", inv.ID, string(inv.Status), "post")
		}
		doc := postings.Document{ID: inv.ID, Date: inv.Date, Description: fmt.Sprintf("Invoice %s", inv.Number)}
		var posting journals.PostingInput
		if inv.Kind == KindPurchase {
			posting, err = postings.PurchaseInvoice(doc, inv.Subtotal, inv.Tax, inv.Inventory)
		} else {
			posting, err = postings.SalesInvoice(doc, inv.Subtotal, inv.Tax)
		}
		if err != nil {
			return err
		}
		entry, err := s.journals.PostTx(ctx, tx, tenantID, posting)
		if err != nil {
			return err
		}
		if err := tx.MarkInvoicePosted(ctx, tenantID, inv.ID, entry.ID); err != nil {
			return err
		}
		inv.Status = StatusPosted
		inv.JournalEntryID = &entry.ID
		out = PostResult{Invoice: inv, Entry: entry}
		if inv.Kind == KindSales {
			if failure := s.enricher.PostCOGS(ctx, tx, tenantID, journals.RefSalesInvoice, doc, inv.Cost, false); failure != nil {
				out.Warnings = append(out.Warnings, failure.Error())
			}
		}
		return nil
	})
	return out, err
}

// SettleTx applies a settlement to an open invoice on a caller-owned
// transaction. The amount may not exceed the open balance.
func (s *Service) SettleTx(ctx context.Context, tx TxRepository, tenantID, id int64, amount decimal.Decimal) (Invoice, error) {
	if !amount.IsPositive() {
		return Invoice{}, fmt.Errorf("%w: settlement %s must be positive", shared.ErrInvalidAmount, amount.StringFixed(2))
	}
	inv, err := tx.GetInvoiceForUpdate(ctx, tenantID, id)
	if err != nil {
		return Invoice{}, err
	}
	if !inv.Open() {
		return Invoice{}, shared.NewStateError("invoice", inv.ID, string(inv.Status), "settle")
	}
	if amount.GreaterThan(inv.BalanceAmount) {
		return Invoice{}, &shared.AllocationError{
			Err:        shared.ErrAllocationExceedsBalance,
			DocumentID: inv.ID,
			Amount:     amount,
			Balance:    inv.BalanceAmount,
		}
	}
	inv.ApplySettlement(amount)
	if err := tx.UpdateInvoiceSettlement(ctx, inv); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

// Get returns the invoice.
func (s *Service) Get(ctx context.Context, tenantID, id int64) (Invoice, error) {
	var out Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.GetInvoice(ctx, tenantID, id)
		return err
	})
	return out, err
}
