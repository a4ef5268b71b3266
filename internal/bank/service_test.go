package bank_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/bank"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledgertest"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func appendLine(t *testing.T, s *ledgertest.Stack, acct int64, typ bank.TransactionType, amount string) bank.Transaction {
	t.Helper()
	txn, err := s.Bank.AppendTransaction(context.Background(), ledgertest.Tenant, bank.AppendInput{
		BankAccountID: acct, Type: typ, Amount: d(amount),
	})
	require.NoError(t, err)
	return txn
}

func runningBalances(t *testing.T, s *ledgertest.Stack, acct int64) []string {
	t.Helper()
	txns, err := s.Bank.ListTransactions(context.Background(), ledgertest.Tenant, acct)
	require.NoError(t, err)
	out := make([]string, 0, len(txns))
	for _, txn := range txns {
		out = append(out, txn.RunningBalance.StringFixed(2))
	}
	return out
}

func requireConsistent(t *testing.T, s *ledgertest.Stack, acct int64, balance string) {
	t.Helper()
	drift, err := s.Bank.VerifyRunningBalance(context.Background(), ledgertest.Tenant, acct)
	require.NoError(t, err)
	require.True(t, drift.Consistent, "drift %+v", drift)
	require.Equal(t, balance, drift.CurrentBalance.StringFixed(2))
}

func secondBank(t *testing.T, s *ledgertest.Stack) bank.BankAccount {
	t.Helper()
	ctx := context.Background()
	_, err := s.Accounts.Create(ctx, ledgertest.Tenant, accounts.CreateInput{Code: "1020", Name: "Operating Bank"})
	require.NoError(t, err)
	acct, err := s.Bank.CreateBankAccount(ctx, ledgertest.Tenant, bank.CreateAccountInput{Name: "Operating", AccountNumber: "OP-1", GLCode: "1020"})
	require.NoError(t, err)
	return acct
}

func TestAppendTransactionKeepsRunningBalance(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	acct := s.BankAccount(t, "main")
	require.True(t, acct.CurrentBalance.IsZero())

	first := appendLine(t, s, acct.ID, bank.TransactionCredit, "1000")
	require.Equal(t, "1000.00", first.RunningBalance.StringFixed(2))
	appendLine(t, s, acct.ID, bank.TransactionDebit, "300")
	last := appendLine(t, s, acct.ID, bank.TransactionCredit, "50")
	require.Equal(t, "750.00", last.RunningBalance.StringFixed(2))
	require.Equal(t, bank.StatusUnreconciled, last.ReconciliationStatus)

	require.Equal(t, []string{"1000.00", "700.00", "750.00"}, runningBalances(t, s, acct.ID))
	requireConsistent(t, s, acct.ID, "750.00")
	require.Equal(t, 2, s.Recorder.Bank["credit"])
	require.Equal(t, 1, s.Recorder.Bank["debit"])
}

func TestAppendTransactionRejectsBadInput(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	acct := s.BankAccount(t, "main")

	_, err := s.Bank.AppendTransaction(ctx, ledgertest.Tenant, bank.AppendInput{BankAccountID: acct.ID, Type: "sideways", Amount: d("1")})
	require.ErrorIs(t, err, bank.ErrInvalidType)

	_, err = s.Bank.AppendTransaction(ctx, ledgertest.Tenant, bank.AppendInput{BankAccountID: acct.ID, Type: bank.TransactionCredit, Amount: decimal.Zero})
	require.ErrorIs(t, err, bank.ErrAmountNotPositive)
	require.ErrorIs(t, err, internalShared.ErrValidation)

	_, err = s.Bank.AppendTransaction(ctx, ledgertest.Tenant, bank.AppendInput{BankAccountID: 999, Type: bank.TransactionCredit, Amount: d("1")})
	require.ErrorIs(t, err, bank.ErrBankAccountNotFound)

	_, err = s.Bank.AppendTransaction(ctx, ledgertest.Tenant+1, bank.AppendInput{BankAccountID: acct.ID, Type: bank.TransactionCredit, Amount: d("1")})
	require.ErrorIs(t, err, bank.ErrBankAccountNotFound)
}

func TestAppendTransactionRollsBackBalance(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	acct := s.BankAccount(t, "main")
	appendLine(t, s, acct.ID, bank.TransactionCredit, "100")
	s.Store.FailOn("AddBankBalance", nil)

	_, err := s.Bank.AppendTransaction(context.Background(), ledgertest.Tenant, bank.AppendInput{
		BankAccountID: acct.ID, Type: bank.TransactionDebit, Amount: d("40"),
	})
	require.ErrorIs(t, err, ledgertest.ErrInjected)
	require.Equal(t, []string{"100.00"}, runningBalances(t, s, acct.ID))
	requireConsistent(t, s, acct.ID, "100.00")
}

func TestMarkReconciledOnce(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	acct := s.BankAccount(t, "main")
	txn := appendLine(t, s, acct.ID, bank.TransactionCredit, "100")

	require.NoError(t, s.Bank.MarkReconciled(ctx, ledgertest.Tenant, txn.ID))
	err := s.Bank.MarkReconciled(ctx, ledgertest.Tenant, txn.ID)
	var state *shared.StateError
	require.ErrorAs(t, err, &state)
	require.Equal(t, string(bank.StatusReconciled), state.Current)
	require.ErrorIs(t, err, shared.ErrAlreadyReconciled)
	require.ErrorIs(t, err, internalShared.ErrInvalidState)

	require.ErrorIs(t, s.Bank.MarkReconciled(ctx, ledgertest.Tenant, 999), bank.ErrTransactionNotFound)
	require.Equal(t, []string{"bank.reconcile"}, s.Recorder.Actions())
}

func TestRecordTransferPostsAndAppendsBothSides(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	from := s.BankAccount(t, "main")
	to := secondBank(t, s)
	appendLine(t, s, from.ID, bank.TransactionCredit, "1000")

	tr, err := s.Bank.RecordTransfer(ctx, ledgertest.Tenant, bank.TransferInput{FromAccountID: from.ID, ToAccountID: to.ID, Amount: d("400")})
	require.NoError(t, err)
	require.NotNil(t, tr.FromTransactionID)
	require.NotNil(t, tr.ToTransactionID)
	require.NotNil(t, tr.JournalEntryID)

	require.Equal(t, []string{"1000.00", "600.00"}, runningBalances(t, s, from.ID))
	require.Equal(t, []string{"400.00"}, runningBalances(t, s, to.ID))
	requireConsistent(t, s, from.ID, "600.00")
	requireConsistent(t, s, to.ID, "400.00")
	require.Equal(t, "-400.00", s.Balance(t, accounts.CodeCashAtBank).StringFixed(2))
	require.Equal(t, "400.00", s.Balance(t, "1020").StringFixed(2))
}

func TestRecordTransferRejectsSameAccountAndUnknownAccount(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	acct := s.BankAccount(t, "main")

	_, err := s.Bank.RecordTransfer(ctx, ledgertest.Tenant, bank.TransferInput{FromAccountID: acct.ID, ToAccountID: acct.ID, Amount: d("1")})
	require.ErrorIs(t, err, bank.ErrSameAccount)

	before := s.Store.Dump()
	_, err = s.Bank.RecordTransfer(ctx, ledgertest.Tenant, bank.TransferInput{FromAccountID: acct.ID, ToAccountID: 999, Amount: d("1")})
	require.ErrorIs(t, err, bank.ErrBankAccountNotFound)
	require.Equal(t, before, s.Store.Dump())
}

func TestDeleteTransferRestoresChains(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	from := s.BankAccount(t, "main")
	to := secondBank(t, s)
	appendLine(t, s, from.ID, bank.TransactionCredit, "1000")
	tr, err := s.Bank.RecordTransfer(ctx, ledgertest.Tenant, bank.TransferInput{FromAccountID: from.ID, ToAccountID: to.ID, Amount: d("400")})
	require.NoError(t, err)
	appendLine(t, s, from.ID, bank.TransactionCredit, "100")
	require.Equal(t, []string{"1000.00", "600.00", "700.00"}, runningBalances(t, s, from.ID))

	require.NoError(t, s.Bank.DeleteTransfer(ctx, ledgertest.Tenant, tr.ID))

	require.Equal(t, []string{"1000.00", "1100.00"}, runningBalances(t, s, from.ID))
	require.Empty(t, runningBalances(t, s, to.ID))
	requireConsistent(t, s, from.ID, "1100.00")
	requireConsistent(t, s, to.ID, "0.00")
	require.True(t, s.Balance(t, accounts.CodeCashAtBank).IsZero())
	require.True(t, s.Balance(t, "1020").IsZero())
	entries, err := s.Journals.ListByReference(ctx, ledgertest.Tenant, journals.Reference{Kind: journals.RefTransfer, ID: tr.ID})
	require.NoError(t, err)
	require.Empty(t, entries)

	require.ErrorIs(t, s.Bank.DeleteTransfer(ctx, ledgertest.Tenant, tr.ID), bank.ErrTransferNotFound)
}

func TestDeleteTransferRejectsReconciledLine(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	from := s.BankAccount(t, "main")
	to := secondBank(t, s)
	tr, err := s.Bank.RecordTransfer(ctx, ledgertest.Tenant, bank.TransferInput{FromAccountID: from.ID, ToAccountID: to.ID, Amount: d("50")})
	require.NoError(t, err)
	require.NoError(t, s.Bank.MarkReconciled(ctx, ledgertest.Tenant, *tr.ToTransactionID))
	before := s.Store.Dump()

	err = s.Bank.DeleteTransfer(ctx, ledgertest.Tenant, tr.ID)
	require.ErrorIs(t, err, internalShared.ErrInvalidState)
	require.Equal(t, before, s.Store.Dump())
}

func TestRecordExpenseDocument(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	acct := s.BankAccount(t, "main")
	appendLine(t, s, acct.ID, bank.TransactionCredit, "1000")

	res, err := s.Bank.RecordCashDocument(context.Background(), ledgertest.Tenant, bank.CashDocumentInput{
		Kind: bank.CashExpense, BankAccountID: acct.ID, Amount: d("200"), Description: "Office rent",
	})
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Equal(t, bank.TransactionDebit, res.Transaction.Type)
	require.Equal(t, "800.00", res.Transaction.RunningBalance.StringFixed(2))
	require.Equal(t, journals.RefExpense, res.Entry.Reference.Kind)
	require.Equal(t, res.Document.ID, res.Entry.Reference.ID)
	require.Equal(t, "200.00", s.Balance(t, accounts.CodeGeneralExpense).StringFixed(2))
	require.Equal(t, "-200.00", s.Balance(t, accounts.CodeCashAtBank).StringFixed(2))
	require.Len(t, s.Recorder.Budget, 1)
	require.Equal(t, "200.00", s.Recorder.Budget[0].StringFixed(2))
}

func TestBudgetNotifierFailureDoesNotFailExpense(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	acct := s.BankAccount(t, "main")
	s.Recorder.BudgetErr = errors.New("queue down")

	_, err := s.Bank.RecordCashDocument(context.Background(), ledgertest.Tenant, bank.CashDocumentInput{
		Kind: bank.CashExpense, BankAccountID: acct.ID, Amount: d("20"),
	})
	require.NoError(t, err)
	require.Equal(t, "20.00", s.Balance(t, accounts.CodeGeneralExpense).StringFixed(2))
}

func TestRecordRevenuePayrollAndCommission(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	acct := s.BankAccount(t, "main")

	for _, tc := range []struct {
		kind bank.CashDocumentKind
		code string
	}{
		{bank.CashRevenue, accounts.CodeOtherRevenue},
		{bank.CashPayroll, accounts.CodeSalaries},
		{bank.CashCommission, accounts.CodeCommission},
	} {
		_, err := s.Bank.RecordCashDocument(ctx, ledgertest.Tenant, bank.CashDocumentInput{Kind: tc.kind, BankAccountID: acct.ID, Amount: d("100")})
		require.NoError(t, err, tc.kind)
		require.Equal(t, "100.00", s.Balance(t, tc.code).StringFixed(2), tc.kind)
	}
	require.Equal(t, []string{"100.00", "0.00", "-100.00"}, runningBalances(t, s, acct.ID))
	requireConsistent(t, s, acct.ID, "-100.00")
	require.Empty(t, s.Recorder.Budget)
}

func TestPOSSalePostsCOGS(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	acct := s.BankAccount(t, "main")

	res, err := s.Bank.RecordCashDocument(ctx, ledgertest.Tenant, bank.CashDocumentInput{
		Kind: bank.CashPOSSale, BankAccountID: acct.ID, Amount: d("100"), Tax: d("10"), Cost: d("60"),
	})
	require.NoError(t, err)
	require.Empty(t, res.Warnings)
	require.Equal(t, "110.00", res.Transaction.Amount.StringFixed(2))
	require.Equal(t, "100.00", s.Balance(t, accounts.CodeSalesRevenue).StringFixed(2))
	require.Equal(t, "10.00", s.Balance(t, accounts.CodeTaxPayable).StringFixed(2))
	require.Equal(t, "60.00", s.Balance(t, accounts.CodeCOGS).StringFixed(2))
	require.Equal(t, "-60.00", s.Balance(t, accounts.CodeInventory).StringFixed(2))

	entries, err := s.Journals.ListByReference(ctx, ledgertest.Tenant, journals.Reference{Kind: journals.RefPOSSale, ID: res.Document.ID})
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestPOSSaleCOGSFailureIsAWarning(t *testing.T) {
	s := ledgertest.NewStack(t)
	ctx := context.Background()
	for _, code := range []string{accounts.CodeCashAtBank, accounts.CodeSalesRevenue, accounts.CodeTaxPayable, accounts.CodeInventory} {
		_, err := s.Accounts.Create(ctx, ledgertest.Tenant, accounts.CreateInput{Code: code, Name: "Account " + code})
		require.NoError(t, err)
	}
	acct := s.BankAccount(t, "main")

	res, err := s.Bank.RecordCashDocument(ctx, ledgertest.Tenant, bank.CashDocumentInput{
		Kind: bank.CashPOSSale, BankAccountID: acct.ID, Amount: d("100"), Tax: d("10"), Cost: d("60"),
	})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], accounts.CodeCOGS)
	require.Len(t, s.Recorder.Enrichments, 1)
	require.ErrorIs(t, s.Recorder.Enrichments[0], shared.ErrMissingAccount)

	require.Equal(t, "110.00", s.Balance(t, accounts.CodeCashAtBank).StringFixed(2))
	require.True(t, s.Balance(t, accounts.CodeInventory).IsZero())
	requireConsistent(t, s, acct.ID, "110.00")
	require.Len(t, s.Store.JournalEntries(), 1)
}

func TestCashDocumentValidation(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	acct := s.BankAccount(t, "main")

	_, err := s.Bank.RecordCashDocument(ctx, ledgertest.Tenant, bank.CashDocumentInput{Kind: "gift", BankAccountID: acct.ID, Amount: d("1")})
	require.ErrorIs(t, err, internalShared.ErrValidation)

	_, err = s.Bank.RecordCashDocument(ctx, ledgertest.Tenant, bank.CashDocumentInput{Kind: bank.CashExpense, BankAccountID: acct.ID, Amount: d("10"), Tax: d("1")})
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	_, err = s.Bank.RecordCashDocument(ctx, ledgertest.Tenant, bank.CashDocumentInput{Kind: bank.CashRevenue, BankAccountID: acct.ID, Amount: d("-5")})
	require.ErrorIs(t, err, bank.ErrAmountNotPositive)
}

func TestUnlinkedBankAccountCannotPost(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	acct, err := s.Bank.CreateBankAccount(ctx, ledgertest.Tenant, bank.CreateAccountInput{Name: "Loose", AccountNumber: "L-1"})
	require.NoError(t, err)
	require.Nil(t, acct.GLAccountID)

	_, err = s.Bank.RecordCashDocument(ctx, ledgertest.Tenant, bank.CashDocumentInput{Kind: bank.CashRevenue, BankAccountID: acct.ID, Amount: d("10")})
	require.ErrorIs(t, err, shared.ErrBankAccountUnlinked)
	require.ErrorIs(t, err, internalShared.ErrIntegrity)

	_, err = s.Bank.LinkGLAccount(ctx, ledgertest.Tenant, acct.ID, accounts.CodeSalesRevenue)
	require.ErrorIs(t, err, bank.ErrGLAccountNotAsset)

	linked, err := s.Bank.LinkGLAccount(ctx, ledgertest.Tenant, acct.ID, accounts.CodeCashAtBank)
	require.NoError(t, err)
	require.NotNil(t, linked.GLAccountID)
	_, err = s.Bank.RecordCashDocument(ctx, ledgertest.Tenant, bank.CashDocumentInput{Kind: bank.CashRevenue, BankAccountID: acct.ID, Amount: d("10")})
	require.NoError(t, err)
}

func TestCreateBankAccountValidation(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()

	_, err := s.Bank.CreateBankAccount(ctx, ledgertest.Tenant, bank.CreateAccountInput{Name: "No number"})
	require.ErrorIs(t, err, internalShared.ErrValidation)

	_, err = s.Bank.CreateBankAccount(ctx, ledgertest.Tenant, bank.CreateAccountInput{Name: "x", AccountNumber: "1", GLCode: accounts.CodeAccountsPayable})
	require.ErrorIs(t, err, bank.ErrGLAccountNotAsset)
}

func TestDeleteTransferTakesBankAccountLocks(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	svc := bank.NewService(s.Store.Bank(), s.Accounts, s.Journals, s.Enricher, slog.New(slog.NewTextHandler(io.Discard, nil)),
		bank.WithLocker(internalShared.NewRedisLocker(client, time.Minute)))
	from := s.BankAccount(t, "ops")
	to := s.BankAccount(t, "reserve")
	appendLine(t, s, from.ID, bank.TransactionCredit, "500")

	transfer, err := svc.RecordTransfer(ctx, ledgertest.Tenant, bank.TransferInput{FromAccountID: from.ID, ToAccountID: to.ID, Amount: d("120")})
	require.NoError(t, err)

	held := internalShared.BankAccountLockKey(ledgertest.Tenant, to.ID)
	require.NoError(t, mr.Set(held, "another-worker"))
	err = svc.DeleteTransfer(ctx, ledgertest.Tenant, transfer.ID)
	require.ErrorIs(t, err, internalShared.ErrLocked)
	require.Equal(t, []string{"380.00"}, lastRunning(t, s, from.ID))

	mr.Del(held)
	require.NoError(t, svc.DeleteTransfer(ctx, ledgertest.Tenant, transfer.ID))
	require.Equal(t, []string{"500.00"}, lastRunning(t, s, from.ID))
	require.Empty(t, runningBalances(t, s, to.ID))
	require.False(t, mr.Exists(internalShared.BankAccountLockKey(ledgertest.Tenant, from.ID)))
}

func lastRunning(t *testing.T, s *ledgertest.Stack, acct int64) []string {
	t.Helper()
	all := runningBalances(t, s, acct)
	require.NotEmpty(t, all)
	return all[len(all)-1:]
}
