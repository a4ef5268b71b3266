package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	require.Equal(t, ups, downs)
}

func TestLedgerSchemaCreatesStoreTables(t *testing.T) {
	raw, err := fs.ReadFile(FS, "0001_ledger.up.sql")
	require.NoError(t, err)
	schema := string(raw)
	for _, table := range []string{
		"accounts", "journal_entries", "journal_entry_items",
		"bank_accounts", "bank_transactions", "bank_transfers", "cash_documents",
		"invoices", "notes", "note_applications",
		"payments", "payment_allocations", "audit_logs",
	} {
		require.Contains(t, schema, "CREATE TABLE "+table+" (", table)
	}
}
