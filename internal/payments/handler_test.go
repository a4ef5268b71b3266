package payments_test

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

	"github.com/odyssey-erp/odyssey-ledger/internal/bank"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoices"
	"github.com/odyssey-erp/odyssey-ledger/internal/ledgertest"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

func newRouter(f fixture) http.Handler {
	r := chi.NewRouter()
	r.Route("/api/payments", payments.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.Payments).MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, tenant bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if tenant {
		req.Header.Set(httpx.TenantHeader, fmt.Sprint(ledgertest.Tenant))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestPaymentHandlerLifecycle(t *testing.T) {
	f := newFixture(t, "1000")
	bill := f.PostedInvoice(t, invoices.KindPurchase, vendor, "500", "0")
	h := newRouter(f)

	body := fmt.Sprintf(`{"direction":"vendor","counterparty_id":%d,"bank_account_id":%d,"amount":"500","allocations":[{"invoice_id":%d,"amount":"500"}]}`,
		vendor, f.bank.ID, bill.ID)
	rec := do(t, h, http.MethodPost, "/api/payments/", body, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created payments.Payment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.Equal(t, payments.StatusPending, created.Status)
	require.Equal(t, "500.00", created.Amount.StringFixed(2))

	path := fmt.Sprintf("/api/payments/%d", created.ID)
	rec = do(t, h, http.MethodPost, path+"/clear", "", true)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, path, "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var shown payments.Payment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&shown))
	require.Equal(t, payments.StatusCleared, shown.Status)
	require.Len(t, shown.Allocations, 1)

	rec = do(t, h, http.MethodPost, path+"/clear", "", true)
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = do(t, h, http.MethodDelete, path, "", true)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestPaymentHandlerErrors(t *testing.T) {
	f := newFixture(t, "")
	inv := f.PostedInvoice(t, invoices.KindSales, customer, "100", "0")
	h := newRouter(f)

	cases := []struct {
		name   string
		method string
		path   string
		body   string
		tenant bool
		want   int
	}{
		{"missing tenant", http.MethodGet, "/api/payments/1", "", false, http.StatusUnauthorized},
		{"bad id", http.MethodGet, "/api/payments/abc", "", true, http.StatusBadRequest},
		{"unknown payment", http.MethodGet, "/api/payments/999", "", true, http.StatusNotFound},
		{"malformed body", http.MethodPost, "/api/payments/", "{", true, http.StatusBadRequest},
		{"bad direction", http.MethodPost, "/api/payments/", `{"direction":"sideways","counterparty_id":7,"bank_account_id":1}`, true, http.StatusBadRequest},
		{
			"over allocation", http.MethodPost, "/api/payments/",
			fmt.Sprintf(`{"direction":"customer","counterparty_id":%d,"bank_account_id":%d,"amount":"500","allocations":[{"invoice_id":%d,"amount":"150"}]}`, customer, f.bank.ID, inv.ID),
			true, http.StatusUnprocessableEntity,
		},
		{
			"cash beyond amount", http.MethodPost, "/api/payments/",
			fmt.Sprintf(`{"direction":"customer","counterparty_id":%d,"bank_account_id":%d,"amount":"10","allocations":[{"invoice_id":%d,"amount":"50"}]}`, customer, f.bank.ID, inv.ID),
			true, http.StatusUnprocessableEntity,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, h, tc.method, tc.path, tc.body, tc.tenant)
			require.Equal(t, tc.want, rec.Code, rec.Body.String())
		})
	}
}

func TestPaymentHandlerUnlinkedBankIsIntegrityError(t *testing.T) {
	f := newFixture(t, "")
	loose, err := f.Bank.CreateBankAccount(context.Background(), ledgertest.Tenant, bank.CreateAccountInput{Name: "Loose", AccountNumber: "L-2"})
	require.NoError(t, err)
	inv := f.PostedInvoice(t, invoices.KindSales, customer, "100", "0")
	h := newRouter(f)

	rec := do(t, h, http.MethodPost, "/api/payments/",
		fmt.Sprintf(`{"direction":"customer","counterparty_id":%d,"bank_account_id":%d,"amount":"100","allocations":[{"invoice_id":%d,"amount":"100"}]}`, customer, loose.ID, inv.ID),
		true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created payments.Payment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))

	rec = do(t, h, http.MethodPost, fmt.Sprintf("/api/payments/%d/clear", created.ID), "", true)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "Ledger Integrity Error")
}
