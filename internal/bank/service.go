package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/postings"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Metrics counts appended bank transactions.
type Metrics interface {
	RecordBankTransaction(direction string)
}

// BudgetNotifier is told about expense spending after it commits.
type BudgetNotifier interface {
	NotifyBudgetSpending(ctx context.Context, tenantID int64, categoryCode string, amount decimal.Decimal, documentID int64) error
}

// Service maintains bank balances and the running balance chain of every
// bank account.
type Service struct {
	repo     Repository
	accounts *accounts.Service
	journals *journals.Service
	enricher *postings.Enricher
	logger   *slog.Logger
	metrics  Metrics
	audit    internalShared.AuditRecorder
	locker   internalShared.Locker
	budget   BudgetNotifier
	now      func() time.Time
}

// Option customises the service.
type Option func(*Service)

// WithMetrics attaches a transaction metrics sink.
func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithAudit attaches the audit recorder.
func WithAudit(a internalShared.AuditRecorder) Option {
	return func(s *Service) { s.audit = a }
}

// WithLocker guards bank account mutations across processes.
func WithLocker(l internalShared.Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithBudgetNotifier attaches the expense notification hook.
func WithBudgetNotifier(n BudgetNotifier) Option {
	return func(s *Service) { s.budget = n }
}

// WithClock overrides the time source for default dates.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(repo Repository, accountService *accounts.Service, journalService *journals.Service, enricher *postings.Enricher, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:     repo,
		accounts: accountService,
		journals: journalService,
		enricher: enricher,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateBankAccount opens a bank account with a zero balance. The ledger link
// is optional at creation but required before any posting.
func (s *Service) CreateBankAccount(ctx context.Context, tenantID int64, in CreateAccountInput) (BankAccount, error) {
	if in.Name == "" || in.AccountNumber == "" {
		return BankAccount{}, fmt.Errorf("%w: name and account number required", internalShared.ErrValidation)
	}
	var out BankAccount
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acct := BankAccount{
			TenantID:       tenantID,
			Name:           in.Name,
			AccountNumber:  in.AccountNumber,
			CurrentBalance: decimal.Zero,
			IsActive:       true,
		}
		if in.GLCode != "" {
			gl, err := s.assetAccount(ctx, tx, tenantID, in.GLCode)
			if err != nil {
				return err
			}
			acct.GLAccountID = &gl.ID
		}
		var err error
		out, err = tx.InsertBankAccount(ctx, acct)
		return err
	})
	return out, err
}

// LinkGLAccount points the bank account at the asset account representing it.
func (s *Service) LinkGLAccount(ctx context.Context, tenantID, bankAccountID int64, glCode string) (BankAccount, error) {
	var out BankAccount
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acct, err := tx.GetBankAccountForUpdate(ctx, tenantID, bankAccountID)
		if err != nil {
			return err
		}
		gl, err := s.assetAccount(ctx, tx, tenantID, glCode)
		if err != nil {
			return err
		}
		if err := tx.SetBankGLAccount(ctx, tenantID, acct.ID, gl.ID); err != nil {
			return err
		}
		acct.GLAccountID = &gl.ID
		out = acct
		return nil
	})
	return out, err
}

func (s *Service) assetAccount(ctx context.Context, tx TxRepository, tenantID int64, code string) (accounts.Account, error) {
	gl, err := s.accounts.LookupByCodeTx(ctx, tx, tenantID, code)
	if err != nil {
		return accounts.Account{}, err
	}
	if gl.Type != accounts.AccountTypeAsset {
		return accounts.Account{}, fmt.Errorf("%w: %s is %s", ErrGLAccountNotAsset, code, gl.Type)
	}
	return gl, nil
}

// GetBankAccount returns the bank account.
func (s *Service) GetBankAccount(ctx context.Context, tenantID, id int64) (BankAccount, error) {
	var out BankAccount
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		out, err = tx.GetBankAccount(ctx, tenantID, id)
		return err
	})
	return out, err
}

// ListTransactions returns the chain in insertion order.
func (s *Service) ListTransactions(ctx context.Context, tenantID, bankAccountID int64) ([]Transaction, error) {
	var out []Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetBankAccount(ctx, tenantID, bankAccountID); err != nil {
			return err
		}
		var err error
		out, err = tx.ListBankTransactions(ctx, tenantID, bankAccountID)
		return err
	})
	return out, err
}

// LinkTx locks the bank account and resolves the ledger account code that
// postings must use for it. A bank account without a usable link is an
// integrity failure.
func (s *Service) LinkTx(ctx context.Context, tx TxRepository, tenantID, bankAccountID int64) (postings.BankLink, BankAccount, error) {
	acct, err := tx.GetBankAccountForUpdate(ctx, tenantID, bankAccountID)
	if err != nil {
		return postings.BankLink{}, BankAccount{}, err
	}
	if !acct.IsActive {
		return postings.BankLink{}, BankAccount{}, fmt.Errorf("%w: %d", ErrBankAccountInactive, acct.ID)
	}
	if acct.GLAccountID == nil {
		return postings.BankLink{}, BankAccount{}, fmt.Errorf("%w: bank account %d", shared.ErrBankAccountUnlinked, acct.ID)
	}
	gl, err := tx.GetAccount(ctx, tenantID, *acct.GLAccountID)
	if err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			return postings.BankLink{}, BankAccount{}, fmt.Errorf("%w: ledger account %d of bank account %d", shared.ErrBankAccountUnlinked, *acct.GLAccountID, acct.ID)
		}
		return postings.BankLink{}, BankAccount{}, err
	}
	return postings.BankLink{BankAccountID: acct.ID, GLCode: gl.Code}, acct, nil
}

// AppendTransaction appends one statement line in its own transaction.
func (s *Service) AppendTransaction(ctx context.Context, tenantID int64, in AppendInput) (Transaction, error) {
	var out Transaction
	err := s.withBankLocks(ctx, tenantID, []int64{in.BankAccountID}, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			var err error
			out, err = s.AppendTransactionTx(ctx, tx, tenantID, in)
			return err
		})
	})
	if err != nil {
		return Transaction{}, err
	}
	s.Committed(out)
	return out, nil
}

// AppendTransactionTx appends a statement line on a caller-owned transaction.
// The bank account row lock serialises the read of the latest transaction.
func (s *Service) AppendTransactionTx(ctx context.Context, tx TxRepository, tenantID int64, in AppendInput) (Transaction, error) {
	if !in.Type.Valid() {
		return Transaction{}, fmt.Errorf("%w: %q", ErrInvalidType, in.Type)
	}
	if !in.Amount.IsPositive() {
		return Transaction{}, fmt.Errorf("%w: %s", ErrAmountNotPositive, in.Amount.StringFixed(2))
	}
	acct, err := tx.GetBankAccountForUpdate(ctx, tenantID, in.BankAccountID)
	if err != nil {
		return Transaction{}, err
	}
	if !acct.IsActive {
		return Transaction{}, fmt.Errorf("%w: %d", ErrBankAccountInactive, acct.ID)
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}

	signed := in.Type.Signed(in.Amount)
	running := signed
	last, ok, err := tx.LastBankTransaction(ctx, tenantID, acct.ID)
	if err != nil {
		return Transaction{}, err
	}
	if ok {
		running = last.RunningBalance.Add(signed)
	}
	txn, err := tx.InsertBankTransaction(ctx, Transaction{
		TenantID:             tenantID,
		BankAccountID:        acct.ID,
		Date:                 in.Date,
		Type:                 in.Type,
		Amount:               in.Amount,
		RunningBalance:       running,
		ReconciliationStatus: StatusUnreconciled,
		ReferenceNumber:      in.ReferenceNumber,
		Description:          in.Description,
	})
	if err != nil {
		return Transaction{}, err
	}
	balance, err := s.updateBalance(ctx, tx, tenantID, acct.ID, signed)
	if err != nil {
		return Transaction{}, err
	}
	txn.RunningBalance = balance
	return txn, nil
}

// updateBalance adds signed to the bank balance and resyncs the latest
// transaction's running balance to the new balance.
func (s *Service) updateBalance(ctx context.Context, tx TxRepository, tenantID, bankAccountID int64, signed decimal.Decimal) (decimal.Decimal, error) {
	balance, err := tx.AddBankBalance(ctx, tenantID, bankAccountID, signed)
	if err != nil {
		return decimal.Zero, err
	}
	latest, ok, err := tx.LastBankTransaction(ctx, tenantID, bankAccountID)
	if err != nil {
		return decimal.Zero, err
	}
	if ok && !latest.RunningBalance.Equal(balance) {
		s.logger.Debug("running balance resynced",
			slog.Int64("tenant_id", tenantID),
			slog.Int64("bank_account_id", bankAccountID),
			slog.Int64("transaction_id", latest.ID),
			slog.String("from", latest.RunningBalance.StringFixed(2)),
			slog.String("to", balance.StringFixed(2)),
		)
		if err := tx.SetRunningBalance(ctx, tenantID, latest.ID, balance); err != nil {
			return decimal.Zero, err
		}
	}
	return balance, nil
}

// Committed counts transactions once their unit of work has committed.
func (s *Service) Committed(txns ...Transaction) {
	if s.metrics == nil {
		return
	}
	for _, txn := range txns {
		s.metrics.RecordBankTransaction(string(txn.Type))
	}
}

// MarkReconciled moves a transaction from unreconciled to reconciled.
func (s *Service) MarkReconciled(ctx context.Context, tenantID, txnID int64) error {
	var txn Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		txn, err = tx.GetBankTransactionForUpdate(ctx, tenantID, txnID)
		if err != nil {
			return err
		}
		if txn.ReconciliationStatus != StatusUnreconciled {
			return &shared.StateError{
				Entity:  "bank_transaction",
				ID:      txn.ID,
				Current: string(txn.ReconciliationStatus),
				Action:  "reconcile",
				Err:     shared.ErrAlreadyReconciled,
			}
		}
		return tx.SetReconciliationStatus(ctx, tenantID, txn.ID, StatusReconciled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, tenantID, "bank.reconcile", "bank_transaction", txn.ID, map[string]any{
		"bank_account_id": txn.BankAccountID,
		"amount":          txn.Amount.StringFixed(2),
	})
	return nil
}

// RecordTransfer posts a transfer and appends the outgoing and incoming lines.
func (s *Service) RecordTransfer(ctx context.Context, tenantID int64, in TransferInput) (Transfer, error) {
	if in.FromAccountID == in.ToAccountID {
		return Transfer{}, ErrSameAccount
	}
	if !in.Amount.IsPositive() {
		return Transfer{}, fmt.Errorf("%w: %s", ErrAmountNotPositive, in.Amount.StringFixed(2))
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}
	ids := []int64{in.FromAccountID, in.ToAccountID}
	var (
		out  Transfer
		txns []Transaction
	)
	err := s.withBankLocks(ctx, tenantID, ids, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			links, err := s.lockLinks(ctx, tx, tenantID, ids)
			if err != nil {
				return err
			}
			transfer, err := tx.InsertTransfer(ctx, Transfer{
				TenantID:        tenantID,
				FromAccountID:   in.FromAccountID,
				ToAccountID:     in.ToAccountID,
				Amount:          in.Amount,
				Date:            in.Date,
				ReferenceNumber: in.ReferenceNumber,
				Description:     in.Description,
			})
			if err != nil {
				return err
			}
			posting, err := postings.Transfer(postings.Document{ID: transfer.ID, Date: transfer.Date, Description: transfer.Description},
				links[in.FromAccountID], links[in.ToAccountID], transfer.Amount)
			if err != nil {
				return err
			}
			entry, err := s.journals.PostTx(ctx, tx, tenantID, posting)
			if err != nil {
				return err
			}
			ref := transfer.ReferenceNumber
			if ref == "" {
				ref = fmt.Sprintf("TRF-%d", transfer.ID)
			}
			outgoing, err := s.AppendTransactionTx(ctx, tx, tenantID, AppendInput{
				BankAccountID: transfer.FromAccountID, Date: transfer.Date, Type: TransactionDebit,
				Amount: transfer.Amount, ReferenceNumber: ref, Description: "Transfer out",
			})
			if err != nil {
				return err
			}
			incoming, err := s.AppendTransactionTx(ctx, tx, tenantID, AppendInput{
				BankAccountID: transfer.ToAccountID, Date: transfer.Date, Type: TransactionCredit,
				Amount: transfer.Amount, ReferenceNumber: ref, Description: "Transfer in",
			})
			if err != nil {
				return err
			}
			transfer.FromTransactionID = &outgoing.ID
			transfer.ToTransactionID = &incoming.ID
			transfer.JournalEntryID = &entry.ID
			if err := tx.UpdateTransferLinks(ctx, transfer); err != nil {
				return err
			}
			out = transfer
			txns = []Transaction{outgoing, incoming}
			return nil
		})
	})
	if err != nil {
		return Transfer{}, err
	}
	s.Committed(txns...)
	return out, nil
}

// DeleteTransfer removes a transfer completely: the journal entry is
// reversed, both statement lines are deleted, balances are restored and the
// running balance chains rebuilt.
func (s *Service) DeleteTransfer(ctx context.Context, tenantID, transferID int64) error {
	var ids []int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		transfer, err := tx.GetTransferForUpdate(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		ids = []int64{transfer.FromAccountID, transfer.ToAccountID}
		return nil
	})
	if err != nil {
		return err
	}
	return s.withBankLocks(ctx, tenantID, ids, func(ctx context.Context) error {
		return s.deleteTransfer(ctx, tenantID, transferID)
	})
}

func (s *Service) deleteTransfer(ctx context.Context, tenantID, transferID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		transfer, err := tx.GetTransferForUpdate(ctx, tenantID, transferID)
		if err != nil {
			return err
		}
		ids := []int64{transfer.FromAccountID, transfer.ToAccountID}
		slices.Sort(ids)
		for _, id := range ids {
			if _, err := tx.GetBankAccountForUpdate(ctx, tenantID, id); err != nil {
				return err
			}
		}
		var txns []Transaction
		for _, id := range []*int64{transfer.FromTransactionID, transfer.ToTransactionID} {
			if id == nil {
				continue
			}
			txn, err := tx.GetBankTransactionForUpdate(ctx, tenantID, *id)
			if err != nil {
				return err
			}
			if txn.ReconciliationStatus == StatusReconciled {
				return shared.NewStateError("bank_transaction", txn.ID, string(txn.ReconciliationStatus), "delete")
			}
			txns = append(txns, txn)
		}
		if _, err := s.journals.ReverseReferenceTx(ctx, tx, tenantID, journals.Reference{Kind: journals.RefTransfer, ID: transfer.ID}); err != nil {
			return err
		}
		for _, txn := range txns {
			if err := tx.DeleteBankTransaction(ctx, tenantID, txn.ID); err != nil {
				return err
			}
			if _, err := tx.AddBankBalance(ctx, tenantID, txn.BankAccountID, txn.Signed().Neg()); err != nil {
				return err
			}
		}
		for _, id := range ids {
			if err := s.RebuildRunningBalancesTx(ctx, tx, tenantID, id); err != nil {
				return err
			}
		}
		return tx.DeleteTransfer(ctx, tenantID, transfer.ID)
	})
}

// RebuildRunningBalancesTx recomputes every running balance of the account so
// the chain ends at current_balance. The caller holds the bank account lock.
func (s *Service) RebuildRunningBalancesTx(ctx context.Context, tx TxRepository, tenantID, bankAccountID int64) error {
	acct, err := tx.GetBankAccount(ctx, tenantID, bankAccountID)
	if err != nil {
		return err
	}
	txns, err := tx.ListBankTransactions(ctx, tenantID, bankAccountID)
	if err != nil {
		return err
	}
	total := decimal.Zero
	for _, txn := range txns {
		total = total.Add(txn.Signed())
	}
	running := acct.CurrentBalance.Sub(total)
	for _, txn := range txns {
		running = running.Add(txn.Signed())
		if txn.RunningBalance.Equal(running) {
			continue
		}
		if err := tx.SetRunningBalance(ctx, tenantID, txn.ID, running); err != nil {
			return err
		}
	}
	return nil
}

// VerifyRunningBalance recomputes the chain from a zero opening balance and
// compares it with the stored balances.
func (s *Service) VerifyRunningBalance(ctx context.Context, tenantID, bankAccountID int64) (Drift, error) {
	var out Drift
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		acct, err := tx.GetBankAccount(ctx, tenantID, bankAccountID)
		if err != nil {
			return err
		}
		txns, err := tx.ListBankTransactions(ctx, tenantID, bankAccountID)
		if err != nil {
			return err
		}
		out = Drift{BankAccountID: acct.ID, CurrentBalance: acct.CurrentBalance, Consistent: true}
		running := decimal.Zero
		for _, txn := range txns {
			running = running.Add(txn.Signed())
			if !txn.RunningBalance.Equal(running) {
				out.Consistent = false
			}
			out.LatestRunning = txn.RunningBalance
		}
		out.Recomputed = running
		if !out.Recomputed.Equal(out.CurrentBalance) || !out.LatestRunning.Equal(out.CurrentBalance) {
			out.Consistent = false
		}
		return nil
	})
	return out, err
}

// CashResult is the outcome of a cash document. Warnings name side postings
// that were skipped.
type CashResult struct {
	Document    CashDocument
	Transaction Transaction
	Entry       journals.JournalEntry
	Warnings    []string
}

// RecordCashDocument posts a revenue, expense, payroll, commission or POS
// document and appends its bank line. POS COGS is posted best-effort.
func (s *Service) RecordCashDocument(ctx context.Context, tenantID int64, in CashDocumentInput) (CashResult, error) {
	direction, err := in.Kind.Direction()
	if err != nil {
		return CashResult{}, err
	}
	if !in.Amount.IsPositive() {
		return CashResult{}, fmt.Errorf("%w: %s", ErrAmountNotPositive, in.Amount.StringFixed(2))
	}
	if in.Tax.IsNegative() || in.Cost.IsNegative() {
		return CashResult{}, fmt.Errorf("%w: tax and cost must not be negative", shared.ErrInvalidAmount)
	}
	if in.Kind != CashPOSSale && (!in.Tax.IsZero() || !in.Cost.IsZero()) {
		return CashResult{}, fmt.Errorf("%w: tax and cost apply to POS sales only", shared.ErrInvalidAmount)
	}
	if in.Date.IsZero() {
		in.Date = s.now()
	}

	var out CashResult
	err = s.withBankLocks(ctx, tenantID, []int64{in.BankAccountID}, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			link, _, err := s.LinkTx(ctx, tx, tenantID, in.BankAccountID)
			if err != nil {
				return err
			}
			doc, err := tx.InsertCashDocument(ctx, CashDocument{
				TenantID:      tenantID,
				Kind:          in.Kind,
				BankAccountID: in.BankAccountID,
				Date:          in.Date,
				Amount:        in.Amount,
				Tax:           in.Tax,
				Cost:          in.Cost,
				CategoryCode:  in.CategoryCode,
				Reference:     in.Reference,
				Description:   in.Description,
			})
			if err != nil {
				return err
			}
			pdoc := postings.Document{ID: doc.ID, Date: doc.Date, Description: doc.Description}
			posting, kind, err := cashPosting(doc, pdoc, link)
			if err != nil {
				return err
			}
			entry, err := s.journals.PostTx(ctx, tx, tenantID, posting)
			if err != nil {
				return err
			}
			ref := doc.Reference
			if ref == "" {
				ref = fmt.Sprintf("%s-%d", kind, doc.ID)
			}
			txn, err := s.AppendTransactionTx(ctx, tx, tenantID, AppendInput{
				BankAccountID:   doc.BankAccountID,
				Date:            doc.Date,
				Type:            direction,
				Amount:          doc.Total(),
				ReferenceNumber: ref,
				Description:     posting.Description,
			})
			if err != nil {
				return err
			}
			doc.TransactionID = &txn.ID
			doc.JournalEntryID = &entry.ID
			if err := tx.UpdateCashDocumentLinks(ctx, doc); err != nil {
				return err
			}
			out = CashResult{Document: doc, Transaction: txn, Entry: entry}
			if doc.Kind == CashPOSSale {
				if failure := s.enricher.PostCOGS(ctx, tx, tenantID, journals.RefPOSSale, pdoc, doc.Cost, false); failure != nil {
					out.Warnings = append(out.Warnings, failure.Error())
				}
			}
			return nil
		})
	})
	if err != nil {
		return CashResult{}, err
	}
	s.Committed(out.Transaction)
	if out.Document.Kind == CashExpense {
		s.notifyBudget(ctx, tenantID, out.Document)
	}
	return out, nil
}

func cashPosting(doc CashDocument, pdoc postings.Document, link postings.BankLink) (journals.PostingInput, journals.ReferenceKind, error) {
	var (
		in  journals.PostingInput
		err error
	)
	switch doc.Kind {
	case CashRevenue:
		in, err = postings.Revenue(pdoc, link, doc.Amount, doc.CategoryCode)
	case CashExpense:
		in, err = postings.Expense(pdoc, link, doc.Amount, doc.CategoryCode)
	case CashPayroll:
		in, err = postings.Payroll(pdoc, link, doc.Amount)
	case CashCommission:
		in, err = postings.Commission(pdoc, link, doc.Amount)
	case CashPOSSale:
		in, err = postings.POSSale(pdoc, link, doc.Amount, doc.Tax)
	default:
		err = fmt.Errorf("%w: cash document kind %q", internalShared.ErrValidation, doc.Kind)
	}
	return in, in.Reference.Kind, err
}

func (s *Service) notifyBudget(ctx context.Context, tenantID int64, doc CashDocument) {
	if s.budget == nil {
		return
	}
	category := doc.CategoryCode
	if category == "" {
		category = accounts.CodeGeneralExpense
	}
	if err := s.budget.NotifyBudgetSpending(ctx, tenantID, category, doc.Amount, doc.ID); err != nil {
		s.logger.Warn("budget notification skipped",
			slog.Int64("tenant_id", tenantID),
			slog.Int64("expense_id", doc.ID),
			slog.Any("error", err),
		)
	}
}

func (s *Service) lockLinks(ctx context.Context, tx TxRepository, tenantID int64, ids []int64) (map[int64]postings.BankLink, error) {
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	links := make(map[int64]postings.BankLink, len(sorted))
	for _, id := range sorted {
		link, _, err := s.LinkTx(ctx, tx, tenantID, id)
		if err != nil {
			return nil, err
		}
		links[id] = link
	}
	return links, nil
}

// withBankLocks takes the distributed locks for ids in ascending order.
func (s *Service) withBankLocks(ctx context.Context, tenantID int64, ids []int64, fn func(context.Context) error) error {
	if s.locker == nil || len(ids) == 0 {
		return fn(ctx)
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	return s.locker.WithLock(ctx, internalShared.BankAccountLockKey(tenantID, sorted[0]), func(ctx context.Context) error {
		return s.withBankLocks(ctx, tenantID, sorted[1:], fn)
	})
}

func (s *Service) recordAudit(ctx context.Context, tenantID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, internalShared.AuditLog{
		TenantID: tenantID,
		Action:   action,
		Entity:   entity,
		EntityID: fmt.Sprintf("%d", id),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit bank", slog.String("action", action), slog.Any("error", err))
	}
}
