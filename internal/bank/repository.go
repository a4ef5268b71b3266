package bank

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository opens transactional units over the bank store.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes bank operations together with the journal operations
// so statement lines and their ledger entry commit together.
type TxRepository interface {
	journals.TxRepository

	InsertBankAccount(ctx context.Context, acct BankAccount) (BankAccount, error)
	GetBankAccount(ctx context.Context, tenantID, id int64) (BankAccount, error)
	// GetBankAccountForUpdate locks the bank account row. Every writer to the
	// account's transaction chain takes this lock first.
	GetBankAccountForUpdate(ctx context.Context, tenantID, id int64) (BankAccount, error)
	SetBankGLAccount(ctx context.Context, tenantID, id, glAccountID int64) error
	// AddBankBalance increments current_balance and returns the new value.
	AddBankBalance(ctx context.Context, tenantID, id int64, delta decimal.Decimal) (decimal.Decimal, error)

	InsertBankTransaction(ctx context.Context, txn Transaction) (Transaction, error)
	// LastBankTransaction returns the newest transaction by id.
	LastBankTransaction(ctx context.Context, tenantID, bankAccountID int64) (Transaction, bool, error)
	GetBankTransactionForUpdate(ctx context.Context, tenantID, id int64) (Transaction, error)
	ListBankTransactions(ctx context.Context, tenantID, bankAccountID int64) ([]Transaction, error)
	SetRunningBalance(ctx context.Context, tenantID, txnID int64, running decimal.Decimal) error
	SetReconciliationStatus(ctx context.Context, tenantID, txnID int64, status ReconciliationStatus) error
	DeleteBankTransaction(ctx context.Context, tenantID, txnID int64) error

	InsertTransfer(ctx context.Context, t Transfer) (Transfer, error)
	GetTransferForUpdate(ctx context.Context, tenantID, id int64) (Transfer, error)
	UpdateTransferLinks(ctx context.Context, t Transfer) error
	DeleteTransfer(ctx context.Context, tenantID, id int64) error

	InsertCashDocument(ctx context.Context, doc CashDocument) (CashDocument, error)
	UpdateCashDocumentLinks(ctx context.Context, doc CashDocument) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed bank repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, NewTxRepository(tx))
	})
}

type txRepository struct {
	*accounts.AccountStore
	*journals.JournalStore
	*BankStore
}

// NewTxRepository composes the account, journal and bank stores over one transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{
		AccountStore: accounts.NewAccountStore(tx),
		JournalStore: journals.NewJournalStore(tx),
		BankStore:    NewBankStore(tx),
	}
}

// BankStore implements the bank queries over a pgx transaction.
type BankStore struct {
	tx pgx.Tx
}

// NewBankStore binds the store to tx.
func NewBankStore(tx pgx.Tx) *BankStore {
	return &BankStore{tx: tx}
}

const bankAccountColumns = `id, tenant_id, name, account_number, current_balance, gl_account_id, is_active, created_at, updated_at`

func scanBankAccount(row pgx.Row) (BankAccount, error) {
	var a BankAccount
	err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.AccountNumber, &a.CurrentBalance, &a.GLAccountID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankAccount{}, ErrBankAccountNotFound
		}
		return BankAccount{}, err
	}
	return a, nil
}

func (s *BankStore) InsertBankAccount(ctx context.Context, acct BankAccount) (BankAccount, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO bank_accounts (tenant_id, name, account_number, current_balance, gl_account_id, is_active)
VALUES ($1,$2,$3,$4,$5,$6) RETURNING id, created_at, updated_at`,
		acct.TenantID, acct.Name, acct.AccountNumber, acct.CurrentBalance, acct.GLAccountID, acct.IsActive)
	if err := row.Scan(&acct.ID, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return BankAccount{}, err
	}
	return acct, nil
}

func (s *BankStore) GetBankAccount(ctx context.Context, tenantID, id int64) (BankAccount, error) {
	return scanBankAccount(s.tx.QueryRow(ctx, `SELECT `+bankAccountColumns+` FROM bank_accounts WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (s *BankStore) GetBankAccountForUpdate(ctx context.Context, tenantID, id int64) (BankAccount, error) {
	return scanBankAccount(s.tx.QueryRow(ctx, `SELECT `+bankAccountColumns+` FROM bank_accounts WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

func (s *BankStore) SetBankGLAccount(ctx context.Context, tenantID, id, glAccountID int64) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE bank_accounts SET gl_account_id=$3, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`, tenantID, id, glAccountID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBankAccountNotFound
	}
	return nil
}

func (s *BankStore) AddBankBalance(ctx context.Context, tenantID, id int64, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.tx.QueryRow(ctx, `UPDATE bank_accounts SET current_balance = current_balance + $3, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 RETURNING current_balance`, tenantID, id, delta).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, ErrBankAccountNotFound
	}
	return balance, err
}

const transactionColumns = `id, tenant_id, bank_account_id, date, type, amount, running_balance, reconciliation_status, reference_number, description, created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.TenantID, &t.BankAccountID, &t.Date, &t.Type, &t.Amount, &t.RunningBalance, &t.ReconciliationStatus, &t.ReferenceNumber, &t.Description, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrTransactionNotFound
		}
		return Transaction{}, err
	}
	return t, nil
}

func (s *BankStore) InsertBankTransaction(ctx context.Context, txn Transaction) (Transaction, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO bank_transactions (tenant_id, bank_account_id, date, type, amount, running_balance, reconciliation_status, reference_number, description)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		txn.TenantID, txn.BankAccountID, txn.Date, txn.Type, txn.Amount, txn.RunningBalance, txn.ReconciliationStatus, txn.ReferenceNumber, txn.Description)
	if err := row.Scan(&txn.ID, &txn.CreatedAt); err != nil {
		return Transaction{}, err
	}
	return txn, nil
}

func (s *BankStore) LastBankTransaction(ctx context.Context, tenantID, bankAccountID int64) (Transaction, bool, error) {
	txn, err := scanTransaction(s.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM bank_transactions
WHERE tenant_id=$1 AND bank_account_id=$2 ORDER BY id DESC LIMIT 1`, tenantID, bankAccountID))
	if errors.Is(err, ErrTransactionNotFound) {
		return Transaction{}, false, nil
	}
	if err != nil {
		return Transaction{}, false, err
	}
	return txn, true, nil
}

func (s *BankStore) GetBankTransactionForUpdate(ctx context.Context, tenantID, id int64) (Transaction, error) {
	return scanTransaction(s.tx.QueryRow(ctx, `SELECT `+transactionColumns+` FROM bank_transactions WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

func (s *BankStore) ListBankTransactions(ctx context.Context, tenantID, bankAccountID int64) ([]Transaction, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+transactionColumns+` FROM bank_transactions WHERE tenant_id=$1 AND bank_account_id=$2 ORDER BY id`, tenantID, bankAccountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func (s *BankStore) SetRunningBalance(ctx context.Context, tenantID, txnID int64, running decimal.Decimal) error {
	_, err := s.tx.Exec(ctx, `UPDATE bank_transactions SET running_balance=$3 WHERE tenant_id=$1 AND id=$2`, tenantID, txnID, running)
	return err
}

func (s *BankStore) SetReconciliationStatus(ctx context.Context, tenantID, txnID int64, status ReconciliationStatus) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE bank_transactions SET reconciliation_status=$3 WHERE tenant_id=$1 AND id=$2`, tenantID, txnID, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *BankStore) DeleteBankTransaction(ctx context.Context, tenantID, txnID int64) error {
	cmd, err := s.tx.Exec(ctx, `DELETE FROM bank_transactions WHERE tenant_id=$1 AND id=$2`, tenantID, txnID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *BankStore) InsertTransfer(ctx context.Context, t Transfer) (Transfer, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO bank_transfers (tenant_id, from_account_id, to_account_id, amount, date, reference_number, description)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id, created_at`,
		t.TenantID, t.FromAccountID, t.ToAccountID, t.Amount, t.Date, t.ReferenceNumber, t.Description)
	if err := row.Scan(&t.ID, &t.CreatedAt); err != nil {
		return Transfer{}, err
	}
	return t, nil
}

func (s *BankStore) GetTransferForUpdate(ctx context.Context, tenantID, id int64) (Transfer, error) {
	var t Transfer
	err := s.tx.QueryRow(ctx, `SELECT id, tenant_id, from_account_id, to_account_id, amount, date, reference_number, description,
from_transaction_id, to_transaction_id, journal_entry_id, created_at
FROM bank_transfers WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id).Scan(
		&t.ID, &t.TenantID, &t.FromAccountID, &t.ToAccountID, &t.Amount, &t.Date, &t.ReferenceNumber, &t.Description,
		&t.FromTransactionID, &t.ToTransactionID, &t.JournalEntryID, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transfer{}, ErrTransferNotFound
	}
	return t, err
}

func (s *BankStore) UpdateTransferLinks(ctx context.Context, t Transfer) error {
	_, err := s.tx.Exec(ctx, `UPDATE bank_transfers SET from_transaction_id=$3, to_transaction_id=$4, journal_entry_id=$5 WHERE tenant_id=$1 AND id=$2`,
		t.TenantID, t.ID, t.FromTransactionID, t.ToTransactionID, t.JournalEntryID)
	return err
}

func (s *BankStore) DeleteTransfer(ctx context.Context, tenantID, id int64) error {
	cmd, err := s.tx.Exec(ctx, `DELETE FROM bank_transfers WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransferNotFound
	}
	return nil
}

func (s *BankStore) InsertCashDocument(ctx context.Context, doc CashDocument) (CashDocument, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO cash_documents (tenant_id, kind, bank_account_id, date, amount, tax, cost, category_code, reference, description)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`,
		doc.TenantID, doc.Kind, doc.BankAccountID, doc.Date, doc.Amount, doc.Tax, doc.Cost, doc.CategoryCode, doc.Reference, doc.Description)
	if err := row.Scan(&doc.ID, &doc.CreatedAt); err != nil {
		return CashDocument{}, err
	}
	return doc, nil
}

func (s *BankStore) UpdateCashDocumentLinks(ctx context.Context, doc CashDocument) error {
	_, err := s.tx.Exec(ctx, `UPDATE cash_documents SET transaction_id=$3, journal_entry_id=$4 WHERE tenant_id=$1 AND id=$2`,
		doc.TenantID, doc.ID, doc.TransactionID, doc.JournalEntryID)
	return err
}
