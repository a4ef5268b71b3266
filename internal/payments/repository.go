package payments

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/bank"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoices"
	"github.com/odyssey-erp/odyssey-ledger/internal/notes"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository opens transactional units over the payment store.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the widest unit of work in the ledger: clearing a payment
// touches bank, journal, invoice and note rows in one transaction.
type TxRepository interface {
	bank.TxRepository
	notes.TxRepository

	InsertPayment(ctx context.Context, p Payment) (Payment, error)
	GetPayment(ctx context.Context, tenantID, id int64) (Payment, error)
	GetPaymentForUpdate(ctx context.Context, tenantID, id int64) (Payment, error)
	InsertAllocation(ctx context.Context, a Allocation) (Allocation, error)
	ListAllocations(ctx context.Context, tenantID, paymentID int64) ([]Allocation, error)
	MarkPaymentCleared(ctx context.Context, p Payment) error
	// DeletePayment removes the allocations and then the payment.
	DeletePayment(ctx context.Context, tenantID, id int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed payment repository.
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
	*bank.BankStore
	*invoices.InvoiceStore
	*notes.NoteStore
	*PaymentStore
}

// NewTxRepository composes every ledger store over one transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{
		AccountStore: accounts.NewAccountStore(tx),
		JournalStore: journals.NewJournalStore(tx),
		BankStore:    bank.NewBankStore(tx),
		InvoiceStore: invoices.NewInvoiceStore(tx),
		NoteStore:    notes.NewNoteStore(tx),
		PaymentStore: NewPaymentStore(tx),
	}
}

// PaymentStore implements the payment queries over a pgx transaction.
type PaymentStore struct {
	tx pgx.Tx
}

// NewPaymentStore binds the store to tx.
func NewPaymentStore(tx pgx.Tx) *PaymentStore {
	return &PaymentStore{tx: tx}
}

const paymentColumns = `id, tenant_id, direction, counterparty_id, bank_account_id, amount, date, reference, description, status, journal_entry_id, bank_transaction_id, cleared_at, created_at`

func scanPayment(row pgx.Row) (Payment, error) {
	var p Payment
	err := row.Scan(&p.ID, &p.TenantID, &p.Direction, &p.CounterpartyID, &p.BankAccountID, &p.Amount, &p.Date,
		&p.Reference, &p.Description, &p.Status, &p.JournalEntryID, &p.BankTransactionID, &p.ClearedAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Payment{}, ErrPaymentNotFound
		}
		return Payment{}, err
	}
	return p, nil
}

func (s *PaymentStore) InsertPayment(ctx context.Context, p Payment) (Payment, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO payments (tenant_id, direction, counterparty_id, bank_account_id, amount, date, reference, description, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		p.TenantID, p.Direction, p.CounterpartyID, p.BankAccountID, p.Amount, p.Date, p.Reference, p.Description, p.Status)
	if err := row.Scan(&p.ID, &p.CreatedAt); err != nil {
		return Payment{}, err
	}
	return p, nil
}

func (s *PaymentStore) GetPayment(ctx context.Context, tenantID, id int64) (Payment, error) {
	return scanPayment(s.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (s *PaymentStore) GetPaymentForUpdate(ctx context.Context, tenantID, id int64) (Payment, error) {
	return scanPayment(s.tx.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

func (s *PaymentStore) InsertAllocation(ctx context.Context, a Allocation) (Allocation, error) {
	if err := s.tx.QueryRow(ctx, `INSERT INTO payment_allocations (tenant_id, payment_id, invoice_id, allocated_amount)
VALUES ($1,$2,$3,$4) RETURNING id`, a.TenantID, a.PaymentID, a.InvoiceID, a.Amount).Scan(&a.ID); err != nil {
		return Allocation{}, err
	}
	return a, nil
}

func (s *PaymentStore) ListAllocations(ctx context.Context, tenantID, paymentID int64) ([]Allocation, error) {
	rows, err := s.tx.Query(ctx, `SELECT id, tenant_id, payment_id, invoice_id, allocated_amount
FROM payment_allocations WHERE tenant_id=$1 AND payment_id=$2 ORDER BY invoice_id, id`, tenantID, paymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.TenantID, &a.PaymentID, &a.InvoiceID, &a.Amount); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PaymentStore) MarkPaymentCleared(ctx context.Context, p Payment) error {
	clearedAt := time.Now()
	if p.ClearedAt != nil {
		clearedAt = *p.ClearedAt
	}
	cmd, err := s.tx.Exec(ctx, `UPDATE payments SET status=$3, journal_entry_id=$4, bank_transaction_id=$5, cleared_at=$6 WHERE tenant_id=$1 AND id=$2`,
		p.TenantID, p.ID, StatusCleared, p.JournalEntryID, p.BankTransactionID, clearedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (s *PaymentStore) DeletePayment(ctx context.Context, tenantID, id int64) error {
	if _, err := s.tx.Exec(ctx, `DELETE FROM payment_allocations WHERE tenant_id=$1 AND payment_id=$2`, tenantID, id); err != nil {
		return err
	}
	cmd, err := s.tx.Exec(ctx, `DELETE FROM payments WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}
