package shared

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type execRecorder struct {
	sql  string
	args []any
	err  error
}

func (e *execRecorder) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	e.sql, e.args = sql, args
	return pgconn.NewCommandTag("INSERT 0 1"), e.err
}

func TestAuditLoggerRecord(t *testing.T) {
	db := &execRecorder{}
	stamp := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("WIB", 7*3600))
	logger := NewAuditLogger(db)
	logger.now = func() time.Time { return stamp }

	err := logger.Record(context.Background(), AuditLog{TenantID: 3, Action: "payment.clear", Entity: "payment", EntityID: "41"})
	require.NoError(t, err)
	require.Contains(t, db.sql, "INSERT INTO audit_logs")
	require.Equal(t, int64(3), db.args[0])
	require.Equal(t, "payment.clear", db.args[1])
	require.JSONEq(t, `{}`, string(db.args[4].([]byte)))
	require.Equal(t, stamp.UTC(), db.args[5])

	at := stamp.Add(time.Hour)
	err = logger.Record(context.Background(), AuditLog{TenantID: 3, Action: "journal.post", Entity: "journal_entry", EntityID: "7", Meta: map[string]any{"lines": 2}, At: at})
	require.NoError(t, err)
	require.JSONEq(t, `{"lines":2}`, string(db.args[4].([]byte)))
	require.Equal(t, at.UTC(), db.args[5])
}

func TestAuditLoggerRejectsIncompleteRows(t *testing.T) {
	db := &execRecorder{}
	logger := NewAuditLogger(db)

	err := logger.Record(context.Background(), AuditLog{Action: "payment.clear", Entity: "payment", EntityID: "1"})
	require.ErrorIs(t, err, ErrValidation)
	err = logger.Record(context.Background(), AuditLog{TenantID: 1, Entity: "payment", EntityID: "1"})
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, db.sql)

	var nilLogger *AuditLogger
	require.Error(t, nilLogger.Record(context.Background(), AuditLog{}))
}

func TestAuditLoggerWrapsInsertFailure(t *testing.T) {
	down := errors.New("connection refused")
	logger := NewAuditLogger(&execRecorder{err: down})
	err := logger.Record(context.Background(), AuditLog{TenantID: 1, Action: "bank.reconcile", Entity: "bank_transaction", EntityID: "9"})
	require.ErrorIs(t, err, down)
	require.ErrorContains(t, err, "audit: insert bank.reconcile")
}
