package accounts_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledgertest"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestCreateDerivesTypeAndNormalBalance(t *testing.T) {
	s := ledgertest.NewStack(t)
	ctx := context.Background()

	cases := []struct {
		code   string
		typ    accounts.AccountType
		normal accounts.NormalBalance
	}{
		{"1010", accounts.AccountTypeAsset, accounts.NormalDebit},
		{"2000", accounts.AccountTypeLiability, accounts.NormalCredit},
		{"3000", accounts.AccountTypeEquity, accounts.NormalCredit},
		{"4100", accounts.AccountTypeRevenue, accounts.NormalCredit},
		{"5100", accounts.AccountTypeExpense, accounts.NormalDebit},
		{"9000", accounts.AccountTypeExpense, accounts.NormalDebit},
	}
	for _, tc := range cases {
		acc, err := s.Accounts.Create(ctx, ledgertest.Tenant, accounts.CreateInput{Code: tc.code, Name: "Account " + tc.code})
		require.NoError(t, err, tc.code)
		require.Equal(t, tc.typ, acc.Type, tc.code)
		require.Equal(t, tc.normal, acc.NormalBalance, tc.code)
		require.True(t, acc.CurrentBalance.IsZero())
		require.True(t, acc.IsActive)
	}
}

func TestCreateRejectsBadInput(t *testing.T) {
	s := ledgertest.NewStack(t)
	ctx := context.Background()

	_, err := s.Accounts.Create(ctx, ledgertest.Tenant, accounts.CreateInput{Code: "10", Name: "Short"})
	require.ErrorIs(t, err, shared.ErrInvalidCode)

	_, err = s.Accounts.Create(ctx, ledgertest.Tenant, accounts.CreateInput{Code: "0999", Name: "Low"})
	require.ErrorIs(t, err, shared.ErrInvalidCode)

	_, err = s.Accounts.Create(ctx, ledgertest.Tenant, accounts.CreateInput{Code: "1010", Name: "  "})
	require.ErrorIs(t, err, shared.ErrNameRequired)

	_, err = s.Accounts.Create(ctx, ledgertest.Tenant, accounts.CreateInput{Code: "1010", Name: "Bank", NormalBalance: "sideways"})
	require.ErrorIs(t, err, shared.ErrInvalidNormalBalance)
	require.ErrorIs(t, err, internalShared.ErrValidation)
}

func TestCreateRejectsDuplicateCodePerTenant(t *testing.T) {
	s := ledgertest.NewStack(t)
	ctx := context.Background()

	_, err := s.Accounts.Create(ctx, ledgertest.Tenant, accounts.CreateInput{Code: "1010", Name: "Bank"})
	require.NoError(t, err)
	_, err = s.Accounts.Create(ctx, ledgertest.Tenant, accounts.CreateInput{Code: "1010", Name: "Bank again"})
	require.ErrorIs(t, err, shared.ErrDuplicateCode)
	require.ErrorIs(t, err, internalShared.ErrConflict)

	_, err = s.Accounts.Create(ctx, ledgertest.Tenant+1, accounts.CreateInput{Code: "1010", Name: "Other tenant bank"})
	require.NoError(t, err)
}

func TestSeedDefaultsIsIdempotentAndNestsAssets(t *testing.T) {
	s := ledgertest.NewStack(t)
	ctx := context.Background()

	created, err := s.Accounts.SeedDefaults(ctx, ledgertest.Tenant)
	require.NoError(t, err)
	require.Len(t, created, len(accounts.DefaultChart))

	again, err := s.Accounts.SeedDefaults(ctx, ledgertest.Tenant)
	require.NoError(t, err)
	require.Empty(t, again)

	tree, err := s.Accounts.Tree(ctx, ledgertest.Tenant)
	require.NoError(t, err)
	var current *accounts.Node
	for i := range tree {
		if tree[i].Account.Code == "1000" {
			current = &tree[i]
		}
	}
	require.NotNil(t, current)
	codes := make([]string, 0, len(current.Children))
	for _, child := range current.Children {
		codes = append(codes, child.Code)
		require.True(t, child.IsSystem)
	}
	require.ElementsMatch(t, []string{
		accounts.CodeCashAtBank, accounts.CodeAccountsReceivable, accounts.CodeInventory,
		accounts.CodeTaxReceivable, accounts.CodeVendorAdvances,
	}, codes)
}

func TestUpdateProtectsSystemAccounts(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()

	ar, err := s.Accounts.LookupByCode(ctx, ledgertest.Tenant, accounts.CodeAccountsReceivable)
	require.NoError(t, err)

	name := "Debtors"
	_, err = s.Accounts.Update(ctx, ledgertest.Tenant, ar.ID, accounts.UpdateInput{Name: &name})
	require.ErrorIs(t, err, shared.ErrSystemAccount)

	inactive := false
	updated, err := s.Accounts.Update(ctx, ledgertest.Tenant, ar.ID, accounts.UpdateInput{IsActive: &inactive})
	require.NoError(t, err)
	require.False(t, updated.IsActive)
}

func TestUpdateRecodesCustomAccount(t *testing.T) {
	s := ledgertest.NewStack(t)
	ctx := context.Background()

	acc, err := s.Accounts.Create(ctx, ledgertest.Tenant, accounts.CreateInput{Code: "6500", Name: "Travel"})
	require.NoError(t, err)

	code := "4500"
	updated, err := s.Accounts.Update(ctx, ledgertest.Tenant, acc.ID, accounts.UpdateInput{Code: &code})
	require.NoError(t, err)
	require.Equal(t, accounts.AccountTypeRevenue, updated.Type)

	_, err = s.Accounts.LookupByCode(ctx, ledgertest.Tenant, "6500")
	require.ErrorIs(t, err, shared.ErrAccountNotFound)
}

func TestUpdateTrimsBeforeComparing(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()

	ar, err := s.Accounts.LookupByCode(ctx, ledgertest.Tenant, accounts.CodeAccountsReceivable)
	require.NoError(t, err)
	padded := "  " + ar.Name + " "
	code := " " + ar.Code + " "
	updated, err := s.Accounts.Update(ctx, ledgertest.Tenant, ar.ID, accounts.UpdateInput{Code: &code, Name: &padded})
	require.NoError(t, err)
	require.Equal(t, ar.Name, updated.Name)
	require.Equal(t, ar.Code, updated.Code)

	blank := "   "
	_, err = s.Accounts.Update(ctx, ledgertest.Tenant, ar.ID, accounts.UpdateInput{Name: &blank})
	require.ErrorIs(t, err, shared.ErrNameRequired)

	acc, err := s.Accounts.Create(ctx, ledgertest.Tenant, accounts.CreateInput{Code: "6500", Name: "Travel"})
	require.NoError(t, err)
	recode := " 6600\t"
	updated, err = s.Accounts.Update(ctx, ledgertest.Tenant, acc.ID, accounts.UpdateInput{Code: &recode})
	require.NoError(t, err)
	require.Equal(t, "6600", updated.Code)

	found, err := s.Accounts.LookupByCode(ctx, ledgertest.Tenant, "6600")
	require.NoError(t, err)
	require.Equal(t, acc.ID, found.ID)
}

func TestCreateRejectsNestedParent(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()

	bank, err := s.Accounts.LookupByCode(ctx, ledgertest.Tenant, accounts.CodeCashAtBank)
	require.NoError(t, err)
	_, err = s.Accounts.Create(ctx, ledgertest.Tenant, accounts.CreateInput{Code: "1011", Name: "Petty cash", ParentID: &bank.ID})
	require.ErrorIs(t, err, shared.ErrInvalidParent)
}
