package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func TestRespondErrorMapsCategories(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("%w: lines required", shared.ErrValidation), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: payment cleared", shared.ErrInvalidState), http.StatusConflict},
		{fmt.Errorf("%w: payment 3", shared.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: bank account 1 unlinked", shared.ErrIntegrity), http.StatusInternalServerError},
		{fmt.Errorf("%w: key", shared.ErrLocked), http.StatusLocked},
		{fmt.Errorf("%w: header", ErrUnauthorized), http.StatusUnauthorized},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
		var body ProblemDetail
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, tc.status, body.Status)
	}
}

func TestTenantID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := TenantID(req)
	require.ErrorIs(t, err, ErrUnauthorized)

	req.Header.Set(TenantHeader, "abc")
	_, err = TenantID(req)
	require.ErrorIs(t, err, ErrUnauthorized)

	req.Header.Set(TenantHeader, "12")
	id, err := TenantID(req)
	require.NoError(t, err)
	require.Equal(t, int64(12), id)
}

func TestDecodeJSONValidates(t *testing.T) {
	type payload struct {
		Code string `json:"code" validate:"required,len=4"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"11"}`))
	var p payload
	require.ErrorIs(t, DecodeJSON(req, &p), ErrBadRequest)

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"1100"}`))
	require.NoError(t, DecodeJSON(req, &p))
	require.Equal(t, "1100", p.Code)
}
