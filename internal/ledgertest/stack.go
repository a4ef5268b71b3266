package ledgertest

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/postings"
	"github.com/odyssey-erp/odyssey-ledger/internal/bank"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoices"
	"github.com/odyssey-erp/odyssey-ledger/internal/notes"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Tenant is the tenant every fixture writes to.
const Tenant int64 = 1

// Recorder collects audit rows, metrics, enrichment failures and budget
// notifications.
type Recorder struct {
	mu          sync.Mutex
	Audits      []shared.AuditLog
	Postings    map[string]int
	Bank        map[string]int
	Enrichments []*postings.EnrichmentError
	Budget      []decimal.Decimal
	BudgetErr   error
}

func newRecorder() *Recorder {
	return &Recorder{Postings: map[string]int{}, Bank: map[string]int{}}
}

func (r *Recorder) Record(_ context.Context, log shared.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Audits = append(r.Audits, log)
	return nil
}

func (r *Recorder) RecordPosting(reference, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Postings[reference+"/"+status]++
}

func (r *Recorder) RecordBankTransaction(direction string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Bank[direction]++
}

func (r *Recorder) RecordEnrichmentFailure(string) {}

func (r *Recorder) ReportEnrichmentFailure(_ context.Context, _ int64, failure *postings.EnrichmentError) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Enrichments = append(r.Enrichments, failure)
}

func (r *Recorder) NotifyBudgetSpending(_ context.Context, _ int64, _ string, amount decimal.Decimal, _ int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Budget = append(r.Budget, amount)
	return r.BudgetErr
}

// Actions lists the recorded audit actions in order.
func (r *Recorder) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Audits))
	for _, a := range r.Audits {
		out = append(out, a.Action)
	}
	return out
}

// Stack wires every ledger service over one in-memory store.
type Stack struct {
	Store    *Store
	Recorder *Recorder
	Accounts *accounts.Service
	Journals *journals.Service
	Enricher *postings.Enricher
	Bank     *bank.Service
	Invoices *invoices.Service
	Notes    *notes.Service
	Payments *payments.Service
}

// Clock is the fixed time the stack runs at.
var Clock = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

// NewStack returns services over an empty store. The default chart is not seeded.
func NewStack(t testing.TB) *Stack {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := func() time.Time { return Clock }
	store := NewStore()
	store.now = now
	rec := newRecorder()

	acct := accounts.NewService(store.Accounts(), logger)
	jrn := journals.NewService(store.Journals(), acct, logger, journals.WithMetrics(rec), journals.WithAudit(rec))
	jrn.WithNow(now)
	enricher := postings.NewEnricher(jrn, logger, rec, rec)
	bnk := bank.NewService(store.Bank(), acct, jrn, enricher, logger,
		bank.WithMetrics(rec), bank.WithAudit(rec), bank.WithBudgetNotifier(rec), bank.WithClock(now))
	inv := invoices.NewService(store.Invoices(), jrn, enricher, logger)
	nts := notes.NewService(store.Notes(), jrn, inv, enricher, logger, notes.WithAudit(rec), notes.WithClock(now))
	pay := payments.NewService(store.Payments(), jrn, bnk, inv, nts, logger, payments.WithAudit(rec), payments.WithClock(now))

	return &Stack{
		Store:    store,
		Recorder: rec,
		Accounts: acct,
		Journals: jrn,
		Enricher: enricher,
		Bank:     bnk,
		Invoices: inv,
		Notes:    nts,
		Payments: pay,
	}
}

// NewSeededStack returns a stack with the default chart seeded for Tenant.
func NewSeededStack(t testing.TB) *Stack {
	t.Helper()
	s := NewStack(t)
	_, err := s.Accounts.SeedDefaults(context.Background(), Tenant)
	require.NoError(t, err)
	return s
}

// Balance returns the current balance of the account with code.
func (s *Stack) Balance(t testing.TB, code string) decimal.Decimal {
	t.Helper()
	acc, err := s.Accounts.LookupByCode(context.Background(), Tenant, code)
	require.NoError(t, err)
	return acc.CurrentBalance
}

// BankAccount opens a bank account linked to the cash at bank ledger account.
func (s *Stack) BankAccount(t testing.TB, name string) bank.BankAccount {
	t.Helper()
	acct, err := s.Bank.CreateBankAccount(context.Background(), Tenant, bank.CreateAccountInput{
		Name: name, AccountNumber: "ACC-" + name, GLCode: accounts.CodeCashAtBank,
	})
	require.NoError(t, err)
	return acct
}

// PostedInvoice creates and posts an invoice for counterpartyID.
func (s *Stack) PostedInvoice(t testing.TB, kind invoices.Kind, counterpartyID int64, subtotal, tax string) invoices.Invoice {
	t.Helper()
	ctx := context.Background()
	inv, err := s.Invoices.Create(ctx, Tenant, invoices.CreateInput{
		Kind: kind, Number: "INV", CounterpartyID: counterpartyID,
		Subtotal: decimal.RequireFromString(subtotal), Tax: decimal.RequireFromString(tax),
	})
	require.NoError(t, err)
	res, err := s.Invoices.Post(ctx, Tenant, inv.ID)
	require.NoError(t, err)
	return res.Invoice
}

// ApprovedNote creates and approves a note for counterpartyID.
func (s *Stack) ApprovedNote(t testing.TB, kind notes.Kind, counterpartyID int64, subtotal string) notes.Note {
	t.Helper()
	ctx := context.Background()
	n, err := s.Notes.CreateNote(ctx, Tenant, notes.CreateInput{
		Kind: kind, Number: "NOTE", CounterpartyID: counterpartyID, Subtotal: decimal.RequireFromString(subtotal),
	})
	require.NoError(t, err)
	res, err := s.Notes.ApproveNote(ctx, Tenant, n.ID)
	require.NoError(t, err)
	return res.Note
}

// JournalEntries lists every stored entry ordered by id.
func (s *Store) JournalEntries() []journals.JournalEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]journals.JournalEntry, 0, len(s.state.journals))
	for _, e := range s.state.journals {
		e.Items = slices.Clone(e.Items)
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b journals.JournalEntry) int { return cmpID(a.ID, b.ID) })
	return out
}

// Dump returns a copy of the whole state for equality checks across a rollback.
func (s *Store) Dump() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.state.clone()
}

// BalanceSum returns Σ current_balance over all accounts of the tenant, signed
// so debit-normal accounts count positive and credit-normal accounts negative.
func (s *Store) BalanceSum(tenantID int64) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := decimal.Zero
	for _, a := range s.state.accounts {
		if a.TenantID != tenantID {
			continue
		}
		if a.NormalBalance == accounts.NormalCredit {
			total = total.Sub(a.CurrentBalance)
			continue
		}
		total = total.Add(a.CurrentBalance)
	}
	return total
}
