package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/bank"
)

// BalanceVerifier recomputes bank running balances.
type BalanceVerifier interface {
	VerifyRunningBalance(ctx context.Context, tenantID, bankAccountID int64) (bank.Drift, error)
}

// VerifyCLI checks bank running balance chains against account balances.
type VerifyCLI struct {
	verifier BalanceVerifier
}

// NewVerifyCLI constructs the helper.
func NewVerifyCLI(verifier BalanceVerifier) (*VerifyCLI, error) {
	if verifier == nil {
		return nil, errors.New("verify: verifier required")
	}
	return &VerifyCLI{verifier: verifier}, nil
}

// VerifyOptions defines the flags of the verify-bank command.
type VerifyOptions struct {
	TenantID       int64
	BankAccountIDs []int64
	JSONOutput     bool
	Stdout         io.Writer
	Stderr         io.Writer
}

// VerifySummary is the JSON output of verify-bank.
type VerifySummary struct {
	OK       bool          `json:"ok"`
	Accounts []VerifyEntry `json:"accounts"`
}

// VerifyEntry reports one bank account.
type VerifyEntry struct {
	BankAccountID  int64  `json:"bank_account_id"`
	CurrentBalance string `json:"current_balance"`
	LatestRunning  string `json:"latest_running"`
	Recomputed     string `json:"recomputed"`
	Consistent     bool   `json:"consistent"`
}

// ParseIDs parses a comma separated list of positive ids.
func ParseIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// VerifyCommand runs the verification and returns the process exit code:
// 0 when every chain is consistent, 10 on drift, 1 on errors.
func (c *VerifyCLI) VerifyCommand(ctx context.Context, opts VerifyOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.TenantID <= 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "verify-bank: --tenant is required and must be positive")
		return 1
	}
	if len(opts.BankAccountIDs) == 0 {
		_, _ = fmt.Fprintln(opts.Stderr, "verify-bank: --accounts requires at least one bank account id")
		return 1
	}

	summary := VerifySummary{OK: true, Accounts: make([]VerifyEntry, 0, len(opts.BankAccountIDs))}
	for _, id := range opts.BankAccountIDs {
		drift, err := c.verifier.VerifyRunningBalance(ctx, opts.TenantID, id)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "verify-bank: account %d: %v\n", id, err)
			return 1
		}
		summary.OK = summary.OK && drift.Consistent
		summary.Accounts = append(summary.Accounts, VerifyEntry{
			BankAccountID:  drift.BankAccountID,
			CurrentBalance: drift.CurrentBalance.StringFixed(2),
			LatestRunning:  drift.LatestRunning.StringFixed(2),
			Recomputed:     drift.Recomputed.StringFixed(2),
			Consistent:     drift.Consistent,
		})
	}

	if opts.JSONOutput {
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "verify-bank: encode json: %v\n", err)
			return 1
		}
	} else {
		renderVerifyHuman(opts.Stdout, opts.TenantID, summary)
	}
	if !summary.OK {
		return 10
	}
	return 0
}

func renderVerifyHuman(out io.Writer, tenantID int64, summary VerifySummary) {
	_, _ = fmt.Fprintf(out, "Bank running balance check for tenant %d\n", tenantID)
	for _, entry := range summary.Accounts {
		state := "ok"
		if !entry.Consistent {
			state = "DRIFT"
		}
		_, _ = fmt.Fprintf(out, " - account %d: %s (balance %s, latest running %s, recomputed %s)\n",
			entry.BankAccountID, state, entry.CurrentBalance, entry.LatestRunning, entry.Recomputed)
	}
}
