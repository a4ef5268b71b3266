package journals_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledgertest"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func adjustment(id int64, lines ...journals.Line) journals.PostingInput {
	return journals.PostingInput{
		EntryType: journals.EntryTypeManual,
		Reference: journals.Reference{Kind: journals.RefAdjustment, ID: id},
		Lines:     lines,
	}
}

func TestPostAppliesNormalSideDeltas(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()

	entry, err := s.Journals.Post(ctx, ledgertest.Tenant, adjustment(1,
		journals.Debit(accounts.CodeAccountsReceivable, d("1110"), ""),
		journals.Credit(accounts.CodeSalesRevenue, d("1000"), ""),
		journals.Credit(accounts.CodeTaxPayable, d("110"), ""),
	))
	require.NoError(t, err)
	require.Len(t, entry.Items, 3)
	require.Equal(t, "1110.00", entry.TotalDebit.StringFixed(2))
	require.Equal(t, "1110.00", entry.TotalCredit.StringFixed(2))
	require.Equal(t, ledgertest.Clock, entry.Date)

	require.Equal(t, "1110.00", s.Balance(t, accounts.CodeAccountsReceivable).StringFixed(2))
	require.Equal(t, "1000.00", s.Balance(t, accounts.CodeSalesRevenue).StringFixed(2))
	require.Equal(t, "110.00", s.Balance(t, accounts.CodeTaxPayable).StringFixed(2))
	require.True(t, s.Store.BalanceSum(ledgertest.Tenant).IsZero())
	require.Equal(t, 1, s.Recorder.Postings["adjustment/posted"])
	require.Equal(t, []string{"journal.post"}, s.Recorder.Actions())
}

func TestPostMergesRepeatedAccountLines(t *testing.T) {
	s := ledgertest.NewSeededStack(t)

	_, err := s.Journals.Post(context.Background(), ledgertest.Tenant, adjustment(1,
		journals.Debit(accounts.CodeGeneralExpense, d("40"), "taxi"),
		journals.Debit(accounts.CodeGeneralExpense, d("60"), "lunch"),
		journals.Credit(accounts.CodeCashAtBank, d("100"), ""),
	))
	require.NoError(t, err)
	require.Equal(t, "100.00", s.Balance(t, accounts.CodeGeneralExpense).StringFixed(2))
	require.Equal(t, "-100.00", s.Balance(t, accounts.CodeCashAtBank).StringFixed(2))
}

func TestPostRejectsUnbalancedEntry(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	before := s.Store.Dump()

	_, err := s.Journals.Post(context.Background(), ledgertest.Tenant, adjustment(1,
		journals.Debit(accounts.CodeCashAtBank, d("100"), ""),
		journals.Credit(accounts.CodeOtherRevenue, d("99.50"), ""),
	))
	var unbalanced *shared.UnbalancedEntryError
	require.ErrorAs(t, err, &unbalanced)
	require.Equal(t, "100.00", unbalanced.Debit.StringFixed(2))
	require.Equal(t, "99.50", unbalanced.Credit.StringFixed(2))
	require.True(t, shared.IsValidation(err))
	require.Equal(t, before, s.Store.Dump())
	require.Equal(t, 1, s.Recorder.Postings["adjustment/rejected"])
}

func TestPostToleratesSubEpsilonDifference(t *testing.T) {
	s := ledgertest.NewSeededStack(t)

	_, err := s.Journals.Post(context.Background(), ledgertest.Tenant, adjustment(1,
		journals.Debit(accounts.CodeCashAtBank, d("100.005"), ""),
		journals.Credit(accounts.CodeOtherRevenue, d("100"), ""),
	))
	require.NoError(t, err)
}

func TestPostRejectsMalformedLines(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()

	_, err := s.Journals.Post(ctx, ledgertest.Tenant, adjustment(1))
	require.ErrorIs(t, err, shared.ErrNoLines)

	_, err = s.Journals.Post(ctx, ledgertest.Tenant, adjustment(1,
		journals.Line{AccountCode: accounts.CodeCashAtBank, Debit: d("10"), Credit: d("10")},
	))
	require.ErrorIs(t, err, shared.ErrInvalidLine)

	_, err = s.Journals.Post(ctx, ledgertest.Tenant, adjustment(1,
		journals.Debit(accounts.CodeCashAtBank, d("-10"), ""),
		journals.Credit(accounts.CodeOtherRevenue, d("-10"), ""),
	))
	require.ErrorIs(t, err, shared.ErrInvalidLine)

	_, err = s.Journals.Post(ctx, ledgertest.Tenant, journals.PostingInput{
		Reference: journals.Reference{Kind: "gift", ID: 1},
		Lines:     []journals.Line{journals.Debit("1010", d("1"), ""), journals.Credit("4200", d("1"), "")},
	})
	require.ErrorIs(t, err, shared.ErrInvalidReference)
}

func TestPostMissingAccountWritesNothing(t *testing.T) {
	s := ledgertest.NewStack(t)
	ctx := context.Background()
	_, err := s.Accounts.Create(ctx, ledgertest.Tenant, accounts.CreateInput{Code: accounts.CodeAccountsReceivable, Name: "AR"})
	require.NoError(t, err)
	before := s.Store.Dump()

	_, err = s.Journals.Post(ctx, ledgertest.Tenant, adjustment(1,
		journals.Debit(accounts.CodeAccountsReceivable, d("500"), ""),
		journals.Credit(accounts.CodeSalesRevenue, d("500"), ""),
	))
	var missing *shared.MissingAccountError
	require.ErrorAs(t, err, &missing)
	require.Equal(t, accounts.CodeSalesRevenue, missing.Code)
	require.ErrorIs(t, err, shared.ErrMissingAccount)
	require.Equal(t, before, s.Store.Dump())
	require.Empty(t, s.Store.JournalEntries())
}

func TestPostRejectsInactiveAccount(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	acc, err := s.Accounts.LookupByCode(ctx, ledgertest.Tenant, accounts.CodeOtherRevenue)
	require.NoError(t, err)
	inactive := false
	_, err = s.Accounts.Update(ctx, ledgertest.Tenant, acc.ID, accounts.UpdateInput{IsActive: &inactive})
	require.NoError(t, err)

	_, err = s.Journals.Post(ctx, ledgertest.Tenant, adjustment(1,
		journals.Debit(accounts.CodeCashAtBank, d("10"), ""),
		journals.Credit(accounts.CodeOtherRevenue, d("10"), ""),
	))
	require.ErrorIs(t, err, shared.ErrAccountInactive)
}

func TestPostRollsBackOnStoreFailure(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	before := s.Store.Dump()
	s.Store.FailOn("ApplyDelta", nil)

	_, err := s.Journals.Post(context.Background(), ledgertest.Tenant, adjustment(1,
		journals.Debit(accounts.CodeCashAtBank, d("10"), ""),
		journals.Credit(accounts.CodeOtherRevenue, d("10"), ""),
	))
	require.ErrorIs(t, err, ledgertest.ErrInjected)
	require.Equal(t, before, s.Store.Dump())
	require.Equal(t, 1, s.Recorder.Postings["adjustment/failed"])
}

func TestReverseRestoresBalances(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	before := map[string]string{}
	codes := []string{accounts.CodeAccountsPayable, accounts.CodeInventory, accounts.CodeTaxReceivable}
	for _, code := range codes {
		before[code] = s.Balance(t, code).StringFixed(2)
	}

	entry, err := s.Journals.Post(ctx, ledgertest.Tenant, adjustment(7,
		journals.Debit(accounts.CodeInventory, d("800"), ""),
		journals.Debit(accounts.CodeTaxReceivable, d("88"), ""),
		journals.Credit(accounts.CodeAccountsPayable, d("888"), ""),
	))
	require.NoError(t, err)
	require.NoError(t, s.Journals.Reverse(ctx, ledgertest.Tenant, entry.ID))

	for _, code := range codes {
		require.Equal(t, before[code], s.Balance(t, code).StringFixed(2), code)
	}
	_, err = s.Journals.Get(ctx, ledgertest.Tenant, entry.ID)
	require.ErrorIs(t, err, shared.ErrJournalNotFound)
	require.Equal(t, []string{"journal.post", "journal.reverse"}, s.Recorder.Actions())
}

func TestReverseUnknownEntry(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	err := s.Journals.Reverse(context.Background(), ledgertest.Tenant, 999)
	require.ErrorIs(t, err, shared.ErrJournalNotFound)
}

func TestListByReference(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	for range 2 {
		_, err := s.Journals.Post(ctx, ledgertest.Tenant, adjustment(3,
			journals.Debit(accounts.CodeCashAtBank, d("5"), ""),
			journals.Credit(accounts.CodeOtherRevenue, d("5"), ""),
		))
		require.NoError(t, err)
	}
	entries, err := s.Journals.ListByReference(ctx, ledgertest.Tenant, journals.Reference{Kind: journals.RefAdjustment, ID: 3})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Less(t, entries[0].ID, entries[1].ID)

	other, err := s.Journals.ListByReference(ctx, ledgertest.Tenant+1, journals.Reference{Kind: journals.RefAdjustment, ID: 3})
	require.NoError(t, err)
	require.Empty(t, other)
}
