package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed   bool
	rolledBack  bool
	commitErr   error
	rollbackErr error
	nested      *fakeTx
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	f.nested = &fakeTx{}
	return f.nested, nil
}

func (f *fakeTx) Commit(context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return f.rollbackErr
}

type fakeBeginner struct {
	tx   *fakeTx
	opts pgx.TxOptions
	err  error
}

func (b *fakeBeginner) BeginTx(_ context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	b.opts = opts
	if b.err != nil {
		return nil, b.err
	}
	return b.tx, nil
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	b := &fakeBeginner{tx: &fakeTx{}}
	require.NoError(t, WithTx(context.Background(), b, func(pgx.Tx) error { return nil }))
	require.True(t, b.tx.committed)
	require.False(t, b.tx.rolledBack)
	require.Equal(t, pgx.ReadCommitted, b.opts.IsoLevel)
}

func TestWithTxRollsBackAndKeepsDomainError(t *testing.T) {
	domain := errors.New("allocation exceeds balance")
	b := &fakeBeginner{tx: &fakeTx{rollbackErr: errors.New("conn reset")}}
	err := WithTx(context.Background(), b, func(pgx.Tx) error { return domain })
	require.ErrorIs(t, err, domain)
	require.ErrorContains(t, err, "rollback: conn reset")
	require.True(t, b.tx.rolledBack)
	require.False(t, b.tx.committed)
}

func TestWithTxWrapsBeginAndCommitFailures(t *testing.T) {
	refused := errors.New("refused")
	err := WithTx(context.Background(), &fakeBeginner{err: refused}, func(pgx.Tx) error {
		t.Fatal("fn must not run")
		return nil
	})
	require.ErrorIs(t, err, refused)

	b := &fakeBeginner{tx: &fakeTx{commitErr: refused}}
	err = WithTx(context.Background(), b, func(pgx.Tx) error { return nil })
	require.ErrorIs(t, err, refused)
	require.ErrorContains(t, err, "commit tx")
}

func TestSavepointDiscardsOnlyNestedWork(t *testing.T) {
	outer := &fakeTx{}
	boom := errors.New("cogs posting failed")
	require.ErrorIs(t, Savepoint(context.Background(), outer, func(context.Context) error { return boom }), boom)
	require.True(t, outer.nested.rolledBack)
	require.False(t, outer.rolledBack)

	require.NoError(t, Savepoint(context.Background(), outer, func(context.Context) error { return nil }))
	require.True(t, outer.nested.committed)
}

func TestIsUniqueViolation(t *testing.T) {
	wrapped := errors.Join(errors.New("insert account"), &pgconn.PgError{Code: "23505"})
	require.True(t, IsUniqueViolation(wrapped))
	require.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	require.False(t, IsUniqueViolation(errors.New("plain")))
}

func TestNewRejectsMalformedDSN(t *testing.T) {
	_, err := New(context.Background(), PoolConfig{DSN: "postgres://%zz"})
	require.ErrorContains(t, err, "parse config")
}
