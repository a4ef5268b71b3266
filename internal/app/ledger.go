package app

import (
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/postings"
	"github.com/odyssey-erp/odyssey-ledger/internal/bank"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoices"
	"github.com/odyssey-erp/odyssey-ledger/internal/notes"
	"github.com/odyssey-erp/odyssey-ledger/internal/observability"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// LedgerDeps groups the infrastructure the ledger services run on.
type LedgerDeps struct {
	Pool     *pgxpool.Pool
	Logger   *slog.Logger
	Config   *Config
	Metrics  *observability.Metrics
	Audit    shared.AuditRecorder
	Locker   shared.Locker
	Notifier *jobs.Notifier
}

// Ledger is the wired set of ledger services.
type Ledger struct {
	Accounts *accounts.Service
	Journals *journals.Service
	Enricher *postings.Enricher
	Bank     *bank.Service
	Invoices *invoices.Service
	Notes    *notes.Service
	Payments *payments.Service
}

// NewLedger builds every service over the PostgreSQL repositories.
func NewLedger(d LedgerDeps) *Ledger {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	journalOpts := []journals.Option{journals.WithMetrics(d.Metrics)}
	bankOpts := []bank.Option{bank.WithMetrics(d.Metrics)}
	noteOpts := []notes.Option{}
	paymentOpts := []payments.Option{}
	if d.Config != nil {
		journalOpts = append(journalOpts, journals.WithEpsilon(d.Config.Epsilon()))
	}
	if d.Audit != nil {
		journalOpts = append(journalOpts, journals.WithAudit(d.Audit))
		bankOpts = append(bankOpts, bank.WithAudit(d.Audit))
		noteOpts = append(noteOpts, notes.WithAudit(d.Audit))
		paymentOpts = append(paymentOpts, payments.WithAudit(d.Audit))
	}
	if d.Locker != nil {
		bankOpts = append(bankOpts, bank.WithLocker(d.Locker))
		paymentOpts = append(paymentOpts, payments.WithLocker(d.Locker))
	}
	var reporter postings.Reporter
	if d.Notifier != nil {
		reporter = d.Notifier
		bankOpts = append(bankOpts, bank.WithBudgetNotifier(d.Notifier))
	}

	acct := accounts.NewService(accounts.NewRepository(d.Pool), logger)
	jrn := journals.NewService(journals.NewRepository(d.Pool), acct, logger, journalOpts...)
	enricher := postings.NewEnricher(jrn, logger, reporter, d.Metrics)
	bnk := bank.NewService(bank.NewRepository(d.Pool), acct, jrn, enricher, logger, bankOpts...)
	inv := invoices.NewService(invoices.NewRepository(d.Pool), jrn, enricher, logger)
	nts := notes.NewService(notes.NewRepository(d.Pool), jrn, inv, enricher, logger, noteOpts...)
	pay := payments.NewService(payments.NewRepository(d.Pool), jrn, bnk, inv, nts, logger, paymentOpts...)
	return &Ledger{
		Accounts: acct,
		Journals: jrn,
		Enricher: enricher,
		Bank:     bnk,
		Invoices: inv,
		Notes:    nts,
		Payments: pay,
	}
}
