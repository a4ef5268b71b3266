package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// WithTx runs fn in a ReadCommitted transaction and commits when fn returns
// nil. Ledger writers take explicit FOR UPDATE locks on the rows they mutate.
func WithTx(ctx context.Context, b Beginner, fn func(pgx.Tx) error) error {
	tx, err := b.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	return finish(ctx, tx, fn(tx), "commit tx")
}

// Savepoint runs fn inside a nested transaction. A failing fn rolls back only
// the statements issued since the savepoint and the outer transaction stays usable.
func Savepoint(ctx context.Context, tx pgx.Tx, fn func(context.Context) error) error {
	sp, err := tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("platform/db: savepoint: %w", err)
	}
	return finish(ctx, sp, fn(ctx), "release savepoint")
}

func finish(ctx context.Context, tx pgx.Tx, fnErr error, op string) error {
	if fnErr != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(fnErr, fmt.Errorf("platform/db: rollback: %w", rbErr))
		}
		return fnErr
	}
	if err := tx.Commit(ctx); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("platform/db: %s: %w", op, err)
	}
	return nil
}
