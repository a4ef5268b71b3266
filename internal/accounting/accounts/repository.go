package accounts

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository opens transactional units over the account store.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes account operations available within a transaction.
type TxRepository interface {
	GetAccountByCode(ctx context.Context, tenantID int64, code string) (Account, error)
	GetAccount(ctx context.Context, tenantID, id int64) (Account, error)
	ListAccounts(ctx context.Context, tenantID int64) ([]Account, error)
	InsertAccount(ctx context.Context, a Account) (Account, error)
	UpdateAccount(ctx context.Context, a Account) error
	// LockAccounts takes row locks in ascending id order.
	LockAccounts(ctx context.Context, tenantID int64, ids []int64) error
	// ApplyDelta adds delta to current_balance. The sign is already resolved.
	ApplyDelta(ctx context.Context, tenantID, accountID int64, delta decimal.Decimal) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed account repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewAccountStore(tx))
	})
}

// AccountStore implements the account queries over a pgx transaction. Other
// ledger modules embed it in their own transactional repositories.
type AccountStore struct {
	tx pgx.Tx
}

// NewAccountStore binds the store to tx.
func NewAccountStore(tx pgx.Tx) *AccountStore {
	return &AccountStore{tx: tx}
}

const accountColumns = `id, tenant_id, code, name, type, normal_balance, current_balance, parent_id, is_active, is_system, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.TenantID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.CurrentBalance, &a.ParentID, &a.IsActive, &a.IsSystem, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (s *AccountStore) GetAccountByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	return scanAccount(s.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND code=$2`, tenantID, code))
}

func (s *AccountStore) GetAccount(ctx context.Context, tenantID, id int64) (Account, error) {
	return scanAccount(s.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (s *AccountStore) ListAccounts(ctx context.Context, tenantID int64) ([]Account, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts WHERE tenant_id=$1 ORDER BY code`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AccountStore) InsertAccount(ctx context.Context, a Account) (Account, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO accounts (tenant_id, code, name, type, normal_balance, current_balance, parent_id, is_active, is_system)
VALUES ($1,$2,$3,$4,$5,0,$6,$7,$8) RETURNING id, created_at, updated_at`, a.TenantID, a.Code, a.Name, a.Type, a.NormalBalance, a.ParentID, a.IsActive, a.IsSystem)
	if err := row.Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if db.IsUniqueViolation(err) {
			return Account{}, fmt.Errorf("%w: %s", shared.ErrDuplicateCode, a.Code)
		}
		return Account{}, err
	}
	a.CurrentBalance = decimal.Zero
	return a, nil
}

func (s *AccountStore) UpdateAccount(ctx context.Context, a Account) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE accounts SET code=$3, name=$4, type=$5, is_active=$6, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		a.TenantID, a.ID, a.Code, a.Name, a.Type, a.IsActive)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", shared.ErrDuplicateCode, a.Code)
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (s *AccountStore) LockAccounts(ctx context.Context, tenantID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	rows, err := s.tx.Query(ctx, `SELECT id FROM accounts WHERE tenant_id=$1 AND id = ANY($2) ORDER BY id FOR UPDATE`, tenantID, sorted)
	if err != nil {
		return err
	}
	defer rows.Close()
	locked := 0
	for rows.Next() {
		locked++
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if locked != len(slices.Compact(sorted)) {
		return shared.ErrAccountNotFound
	}
	return nil
}

func (s *AccountStore) ApplyDelta(ctx context.Context, tenantID, accountID int64, delta decimal.Decimal) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE accounts SET current_balance = current_balance + $3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrAccountNotFound
	}
	return nil
}
