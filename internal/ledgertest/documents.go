package ledgertest

import (
	"context"
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/bank"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoices"
	"github.com/odyssey-erp/odyssey-ledger/internal/notes"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
)

func accountNotFound() error { return shared.ErrAccountNotFound }

func journalNotFound() error { return shared.ErrJournalNotFound }

func duplicateCode(code string) error { return fmt.Errorf("%w: %s", shared.ErrDuplicateCode, code) }

func cmpID(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Bank.

func (t *Tx) InsertBankAccount(_ context.Context, acct bank.BankAccount) (bank.BankAccount, error) {
	acct.ID = t.st().next()
	acct.CreatedAt = t.store.now()
	acct.UpdatedAt = acct.CreatedAt
	t.st().bankAccounts[acct.ID] = acct
	return acct, nil
}

func (t *Tx) GetBankAccount(_ context.Context, tenantID, id int64) (bank.BankAccount, error) {
	acct, ok := t.st().bankAccounts[id]
	if !ok || acct.TenantID != tenantID {
		return bank.BankAccount{}, bank.ErrBankAccountNotFound
	}
	return acct, nil
}

func (t *Tx) GetBankAccountForUpdate(ctx context.Context, tenantID, id int64) (bank.BankAccount, error) {
	return t.GetBankAccount(ctx, tenantID, id)
}

func (t *Tx) SetBankGLAccount(ctx context.Context, tenantID, id, glAccountID int64) error {
	acct, err := t.GetBankAccount(ctx, tenantID, id)
	if err != nil {
		return err
	}
	acct.GLAccountID = &glAccountID
	t.st().bankAccounts[id] = acct
	return nil
}

func (t *Tx) AddBankBalance(ctx context.Context, tenantID, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	if err := t.check("AddBankBalance"); err != nil {
		return decimal.Zero, err
	}
	acct, err := t.GetBankAccount(ctx, tenantID, id)
	if err != nil {
		return decimal.Zero, err
	}
	acct.CurrentBalance = acct.CurrentBalance.Add(delta)
	t.st().bankAccounts[id] = acct
	return acct.CurrentBalance, nil
}

func (t *Tx) InsertBankTransaction(_ context.Context, txn bank.Transaction) (bank.Transaction, error) {
	if err := t.check("InsertBankTransaction"); err != nil {
		return bank.Transaction{}, err
	}
	txn.ID = t.st().next()
	txn.CreatedAt = t.store.now()
	t.st().bankTxns[txn.ID] = txn
	return txn, nil
}

func (t *Tx) LastBankTransaction(ctx context.Context, tenantID, bankAccountID int64) (bank.Transaction, bool, error) {
	txns, _ := t.ListBankTransactions(ctx, tenantID, bankAccountID)
	if len(txns) == 0 {
		return bank.Transaction{}, false, nil
	}
	return txns[len(txns)-1], true, nil
}

func (t *Tx) GetBankTransactionForUpdate(_ context.Context, tenantID, id int64) (bank.Transaction, error) {
	txn, ok := t.st().bankTxns[id]
	if !ok || txn.TenantID != tenantID {
		return bank.Transaction{}, bank.ErrTransactionNotFound
	}
	return txn, nil
}

func (t *Tx) ListBankTransactions(_ context.Context, tenantID, bankAccountID int64) ([]bank.Transaction, error) {
	var out []bank.Transaction
	for _, txn := range t.st().bankTxns {
		if txn.TenantID == tenantID && txn.BankAccountID == bankAccountID {
			out = append(out, txn)
		}
	}
	slices.SortFunc(out, func(a, b bank.Transaction) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (t *Tx) SetRunningBalance(ctx context.Context, tenantID, txnID int64, running decimal.Decimal) error {
	txn, err := t.GetBankTransactionForUpdate(ctx, tenantID, txnID)
	if err != nil {
		return err
	}
	txn.RunningBalance = running
	t.st().bankTxns[txnID] = txn
	return nil
}

func (t *Tx) SetReconciliationStatus(ctx context.Context, tenantID, txnID int64, status bank.ReconciliationStatus) error {
	txn, err := t.GetBankTransactionForUpdate(ctx, tenantID, txnID)
	if err != nil {
		return err
	}
	txn.ReconciliationStatus = status
	t.st().bankTxns[txnID] = txn
	return nil
}

func (t *Tx) DeleteBankTransaction(ctx context.Context, tenantID, txnID int64) error {
	if _, err := t.GetBankTransactionForUpdate(ctx, tenantID, txnID); err != nil {
		return err
	}
	delete(t.st().bankTxns, txnID)
	return nil
}

func (t *Tx) InsertTransfer(_ context.Context, tr bank.Transfer) (bank.Transfer, error) {
	tr.ID = t.st().next()
	tr.CreatedAt = t.store.now()
	t.st().transfers[tr.ID] = tr
	return tr, nil
}

func (t *Tx) GetTransferForUpdate(_ context.Context, tenantID, id int64) (bank.Transfer, error) {
	tr, ok := t.st().transfers[id]
	if !ok || tr.TenantID != tenantID {
		return bank.Transfer{}, bank.ErrTransferNotFound
	}
	return tr, nil
}

func (t *Tx) UpdateTransferLinks(ctx context.Context, tr bank.Transfer) error {
	current, err := t.GetTransferForUpdate(ctx, tr.TenantID, tr.ID)
	if err != nil {
		return err
	}
	current.FromTransactionID, current.ToTransactionID, current.JournalEntryID = tr.FromTransactionID, tr.ToTransactionID, tr.JournalEntryID
	t.st().transfers[tr.ID] = current
	return nil
}

func (t *Tx) DeleteTransfer(ctx context.Context, tenantID, id int64) error {
	if _, err := t.GetTransferForUpdate(ctx, tenantID, id); err != nil {
		return err
	}
	delete(t.st().transfers, id)
	return nil
}

func (t *Tx) InsertCashDocument(_ context.Context, doc bank.CashDocument) (bank.CashDocument, error) {
	doc.ID = t.st().next()
	doc.CreatedAt = t.store.now()
	t.st().cashDocs[doc.ID] = doc
	return doc, nil
}

func (t *Tx) UpdateCashDocumentLinks(_ context.Context, doc bank.CashDocument) error {
	current, ok := t.st().cashDocs[doc.ID]
	if !ok || current.TenantID != doc.TenantID {
		return fmt.Errorf("ledgertest: cash document %d not found", doc.ID)
	}
	current.TransactionID, current.JournalEntryID = doc.TransactionID, doc.JournalEntryID
	t.st().cashDocs[doc.ID] = current
	return nil
}

// Invoices.

func (t *Tx) InsertInvoice(_ context.Context, inv invoices.Invoice) (invoices.Invoice, error) {
	inv.ID = t.st().next()
	inv.CreatedAt = t.store.now()
	inv.UpdatedAt = inv.CreatedAt
	t.st().invoices[inv.ID] = inv
	return inv, nil
}

func (t *Tx) GetInvoice(_ context.Context, tenantID, id int64) (invoices.Invoice, error) {
	inv, ok := t.st().invoices[id]
	if !ok || inv.TenantID != tenantID {
		return invoices.Invoice{}, invoices.ErrInvoiceNotFound
	}
	return inv, nil
}

func (t *Tx) GetInvoiceForUpdate(ctx context.Context, tenantID, id int64) (invoices.Invoice, error) {
	return t.GetInvoice(ctx, tenantID, id)
}

func (t *Tx) UpdateInvoiceSettlement(ctx context.Context, inv invoices.Invoice) error {
	if err := t.check("UpdateInvoiceSettlement"); err != nil {
		return err
	}
	current, err := t.GetInvoice(ctx, inv.TenantID, inv.ID)
	if err != nil {
		return err
	}
	current.PaidAmount, current.BalanceAmount, current.Status = inv.PaidAmount, inv.BalanceAmount, inv.Status
	t.st().invoices[inv.ID] = current
	return nil
}

func (t *Tx) MarkInvoicePosted(ctx context.Context, tenantID, id, journalEntryID int64) error {
	current, err := t.GetInvoice(ctx, tenantID, id)
	if err != nil {
		return err
	}
	current.Status = invoices.StatusPosted
	current.JournalEntryID = &journalEntryID
	t.st().invoices[id] = current
	return nil
}

// Notes.

func (t *Tx) InsertNote(_ context.Context, n notes.Note) (notes.Note, error) {
	n.ID = t.st().next()
	n.CreatedAt = t.store.now()
	n.UpdatedAt = n.CreatedAt
	n.Applications = nil
	t.st().notes[n.ID] = n
	return n, nil
}

func (t *Tx) GetNote(_ context.Context, tenantID, id int64) (notes.Note, error) {
	n, ok := t.st().notes[id]
	if !ok || n.TenantID != tenantID {
		return notes.Note{}, notes.ErrNoteNotFound
	}
	return n, nil
}

func (t *Tx) GetNoteForUpdate(ctx context.Context, tenantID, id int64) (notes.Note, error) {
	return t.GetNote(ctx, tenantID, id)
}

func (t *Tx) ListApplicableNotesForUpdate(_ context.Context, tenantID, counterpartyID int64, kind notes.Kind) ([]notes.Note, error) {
	var out []notes.Note
	for _, n := range t.st().notes {
		if n.TenantID != tenantID || n.CounterpartyID != counterpartyID || n.Kind != kind {
			continue
		}
		if n.Applicable() {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b notes.Note) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return cmpID(a.ID, b.ID)
	})
	return out, nil
}

func (t *Tx) UpdateNoteApplication(ctx context.Context, n notes.Note) error {
	if err := t.check("UpdateNoteApplication"); err != nil {
		return err
	}
	current, err := t.GetNote(ctx, n.TenantID, n.ID)
	if err != nil {
		return err
	}
	current.AppliedAmount, current.BalanceAmount, current.Status = n.AppliedAmount, n.BalanceAmount, n.Status
	t.st().notes[n.ID] = current
	return nil
}

func (t *Tx) MarkNoteApproved(ctx context.Context, tenantID, id, journalEntryID int64) error {
	current, err := t.GetNote(ctx, tenantID, id)
	if err != nil {
		return err
	}
	current.Status = notes.StatusApproved
	current.JournalEntryID = &journalEntryID
	t.st().notes[id] = current
	return nil
}

func (t *Tx) InsertNoteApplication(_ context.Context, app notes.Application) (notes.Application, error) {
	app.ID = t.st().next()
	app.CreatedAt = t.store.now()
	t.st().applications[app.ID] = app
	return app, nil
}

func (t *Tx) ListNoteApplications(_ context.Context, tenantID, noteID int64) ([]notes.Application, error) {
	return t.filterApplications(func(a notes.Application) bool {
		return a.TenantID == tenantID && a.NoteID == noteID
	}), nil
}

func (t *Tx) ListTargetApplications(_ context.Context, tenantID int64, target notes.TargetType, targetID int64) ([]notes.Application, error) {
	return t.filterApplications(func(a notes.Application) bool {
		return a.TenantID == tenantID && a.TargetType == target && a.TargetID == targetID
	}), nil
}

func (t *Tx) DeleteTargetApplications(_ context.Context, tenantID int64, target notes.TargetType, targetID int64) error {
	for id, a := range t.st().applications {
		if a.TenantID == tenantID && a.TargetType == target && a.TargetID == targetID {
			delete(t.st().applications, id)
		}
	}
	return nil
}

func (t *Tx) PendingPaymentReservation(_ context.Context, tenantID, noteID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, a := range t.st().applications {
		if a.TenantID != tenantID || a.NoteID != noteID || a.TargetType != notes.TargetPayment {
			continue
		}
		if p, ok := t.st().payments[a.TargetID]; ok && p.Status == payments.StatusPending {
			total = total.Add(a.Amount)
		}
	}
	return total, nil
}

func (t *Tx) filterApplications(keep func(notes.Application) bool) []notes.Application {
	var out []notes.Application
	for _, a := range t.st().applications {
		if keep(a) {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b notes.Application) int { return cmpID(a.ID, b.ID) })
	return out
}

// Payments.

func (t *Tx) InsertPayment(_ context.Context, p payments.Payment) (payments.Payment, error) {
	p.ID = t.st().next()
	p.CreatedAt = t.store.now()
	stored := p
	stored.Allocations, stored.NoteApplications = nil, nil
	t.st().payments[p.ID] = stored
	return p, nil
}

func (t *Tx) GetPayment(_ context.Context, tenantID, id int64) (payments.Payment, error) {
	p, ok := t.st().payments[id]
	if !ok || p.TenantID != tenantID {
		return payments.Payment{}, payments.ErrPaymentNotFound
	}
	return p, nil
}

func (t *Tx) GetPaymentForUpdate(ctx context.Context, tenantID, id int64) (payments.Payment, error) {
	return t.GetPayment(ctx, tenantID, id)
}

func (t *Tx) InsertAllocation(_ context.Context, a payments.Allocation) (payments.Allocation, error) {
	a.ID = t.st().next()
	t.st().allocations[a.ID] = a
	return a, nil
}

func (t *Tx) ListAllocations(_ context.Context, tenantID, paymentID int64) ([]payments.Allocation, error) {
	var out []payments.Allocation
	for _, a := range t.st().allocations {
		if a.TenantID == tenantID && a.PaymentID == paymentID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b payments.Allocation) int {
		if c := cmpID(a.InvoiceID, b.InvoiceID); c != 0 {
			return c
		}
		return cmpID(a.ID, b.ID)
	})
	return out, nil
}

func (t *Tx) MarkPaymentCleared(ctx context.Context, p payments.Payment) error {
	if err := t.check("MarkPaymentCleared"); err != nil {
		return err
	}
	current, err := t.GetPayment(ctx, p.TenantID, p.ID)
	if err != nil {
		return err
	}
	current.Status = payments.StatusCleared
	current.JournalEntryID, current.BankTransactionID, current.ClearedAt = p.JournalEntryID, p.BankTransactionID, p.ClearedAt
	t.st().payments[p.ID] = current
	return nil
}

func (t *Tx) DeletePayment(ctx context.Context, tenantID, id int64) error {
	if _, err := t.GetPayment(ctx, tenantID, id); err != nil {
		return err
	}
	for aid, a := range t.st().allocations {
		if a.TenantID == tenantID && a.PaymentID == id {
			delete(t.st().allocations, aid)
		}
	}
	delete(t.st().payments, id)
	return nil
}
