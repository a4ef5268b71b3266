package journals_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/bank"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoices"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

func journalRouter(s *ledgertest.Stack) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/journals", journals.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), s.Journals).MountRoutes)
	return r
}

func send(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(httpx.TenantHeader, fmt.Sprint(ledgertest.Tenant))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func manualBody(kind string, id int64) string {
	return fmt.Sprintf(`{"entry_type":"automatic","reference":{"kind":%q,"id":%d},"lines":[
		{"account_code":"6000","debit":"50"},
		{"account_code":"1010","credit":"50"}]}`, kind, id)
}

func TestJournalHandlerPostsAdjustmentsOnly(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	h := journalRouter(s)
	before := len(s.Store.JournalEntries())

	for _, kind := range []string{"transfer", "vendor_payment", "sales_invoice"} {
		rec := send(t, h, http.MethodPost, "/api/journals/", manualBody(kind, 31))
		require.Equal(t, http.StatusUnprocessableEntity, rec.Code, kind)
	}
	require.Len(t, s.Store.JournalEntries(), before)
	require.True(t, s.Balance(t, accounts.CodeGeneralExpense).IsZero())

	rec := send(t, h, http.MethodPost, "/api/journals/", manualBody("", 31))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var entry journals.JournalEntry
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&entry))
	require.Equal(t, journals.RefAdjustment, entry.Reference.Kind)
	require.Equal(t, journals.EntryTypeManual, entry.EntryType)
	require.Equal(t, "50.00", s.Balance(t, accounts.CodeGeneralExpense).StringFixed(2))

	rec = send(t, h, http.MethodDelete, fmt.Sprintf("/api/journals/%d", entry.ID), "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	require.True(t, s.Balance(t, accounts.CodeGeneralExpense).IsZero())
}

func TestJournalHandlerRefusesToReverseDocumentEntries(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	h := journalRouter(s)
	inv := s.PostedInvoice(t, invoices.KindSales, 7, "1000", "0")
	require.NotNil(t, inv.JournalEntryID)

	rec := send(t, h, http.MethodDelete, fmt.Sprintf("/api/journals/%d", *inv.JournalEntryID), "")
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
	require.Contains(t, rec.Body.String(), "owned by sales_invoice")

	require.Equal(t, "1000.00", s.Balance(t, accounts.CodeAccountsReceivable).StringFixed(2))
	require.Equal(t, "1000.00", s.Balance(t, accounts.CodeSalesRevenue).StringFixed(2))
	rec = send(t, h, http.MethodGet, fmt.Sprintf("/api/journals/%d", *inv.JournalEntryID), "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = send(t, h, http.MethodDelete, "/api/journals/999", "")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteTransferLeavesManualEntriesAlone(t *testing.T) {
	s := ledgertest.NewSeededStack(t)
	ctx := context.Background()
	h := journalRouter(s)
	from := s.BankAccount(t, "ops")
	to := s.BankAccount(t, "payroll")

	transfer, err := s.Bank.RecordTransfer(ctx, ledgertest.Tenant, bank.TransferInput{
		FromAccountID: from.ID, ToAccountID: to.ID, Amount: d("200"),
	})
	require.NoError(t, err)

	rec := send(t, h, http.MethodPost, "/api/journals/", manualBody("adjustment", transfer.ID))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.NoError(t, s.Bank.DeleteTransfer(ctx, ledgertest.Tenant, transfer.ID))
	require.Equal(t, "50.00", s.Balance(t, accounts.CodeGeneralExpense).StringFixed(2))
	require.Equal(t, "-50.00", s.Balance(t, accounts.CodeCashAtBank).StringFixed(2))
}
