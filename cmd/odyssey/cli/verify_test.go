package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/bank"
)

type stubVerifier struct {
	drifts map[int64]bank.Drift
}

func (s stubVerifier) VerifyRunningBalance(_ context.Context, _ int64, id int64) (bank.Drift, error) {
	drift, ok := s.drifts[id]
	if !ok {
		return bank.Drift{}, bank.ErrBankAccountNotFound
	}
	return drift, nil
}

func consistent(id int64, balance string) bank.Drift {
	v := decimal.RequireFromString(balance)
	return bank.Drift{BankAccountID: id, CurrentBalance: v, LatestRunning: v, Recomputed: v, Consistent: true}
}

func TestVerifyCommandJSONSuccess(t *testing.T) {
	cli, err := NewVerifyCLI(stubVerifier{drifts: map[int64]bank.Drift{1: consistent(1, "750"), 2: consistent(2, "0")}})
	require.NoError(t, err)

	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	code := cli.VerifyCommand(context.Background(), VerifyOptions{
		TenantID: 1, BankAccountIDs: []int64{1, 2}, JSONOutput: true, Stdout: stdout, Stderr: stderr,
	})
	require.Zero(t, code)
	require.Empty(t, stderr.String())

	var summary VerifySummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.True(t, summary.OK)
	require.Len(t, summary.Accounts, 2)
	require.Equal(t, "750.00", summary.Accounts[0].CurrentBalance)
}

func TestVerifyCommandReportsDrift(t *testing.T) {
	drift := consistent(3, "100")
	drift.LatestRunning = decimal.RequireFromString("90")
	drift.Consistent = false
	cli, err := NewVerifyCLI(stubVerifier{drifts: map[int64]bank.Drift{3: drift}})
	require.NoError(t, err)

	stdout := new(bytes.Buffer)
	code := cli.VerifyCommand(context.Background(), VerifyOptions{TenantID: 1, BankAccountIDs: []int64{3}, Stdout: stdout, Stderr: new(bytes.Buffer)})
	require.Equal(t, 10, code)
	require.Contains(t, stdout.String(), "account 3: DRIFT")
	require.Contains(t, stdout.String(), "latest running 90.00")
}

func TestVerifyCommandErrors(t *testing.T) {
	cli, err := NewVerifyCLI(stubVerifier{})
	require.NoError(t, err)

	stderr := new(bytes.Buffer)
	require.Equal(t, 1, cli.VerifyCommand(context.Background(), VerifyOptions{BankAccountIDs: []int64{1}, Stderr: stderr}))
	require.Contains(t, stderr.String(), "--tenant")

	stderr.Reset()
	require.Equal(t, 1, cli.VerifyCommand(context.Background(), VerifyOptions{TenantID: 1, Stderr: stderr}))
	require.Contains(t, stderr.String(), "--accounts")

	stderr.Reset()
	require.Equal(t, 1, cli.VerifyCommand(context.Background(), VerifyOptions{TenantID: 1, BankAccountIDs: []int64{9}, Stdout: new(bytes.Buffer), Stderr: stderr}))
	require.Contains(t, stderr.String(), "account 9")

	_, err = NewVerifyCLI(nil)
	require.Error(t, err)
}

func TestParseIDs(t *testing.T) {
	ids, err := ParseIDs(" 4, 7,,9 ")
	require.NoError(t, err)
	require.Equal(t, []int64{4, 7, 9}, ids)

	_, err = ParseIDs("4,x")
	require.Error(t, err)
	_, err = ParseIDs("0")
	require.Error(t, err)
}
