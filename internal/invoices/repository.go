package invoices

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository opens transactional units over the invoice store.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes invoice operations alongside the journal operations.
type TxRepository interface {
	journals.TxRepository

	InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error)
	GetInvoice(ctx context.Context, tenantID, id int64) (Invoice, error)
	GetInvoiceForUpdate(ctx context.Context, tenantID, id int64) (Invoice, error)
	// UpdateInvoiceSettlement persists paid, balance and status.
	UpdateInvoiceSettlement(ctx context.Context, inv Invoice) error
	MarkInvoicePosted(ctx context.Context, tenantID, id, journalEntryID int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed invoice repository.
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
	*InvoiceStore
}

// NewTxRepository composes the account, journal and invoice stores over one transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{
		AccountStore: accounts.NewAccountStore(tx),
		JournalStore: journals.NewJournalStore(tx),
		InvoiceStore: NewInvoiceStore(tx),
	}
}

// InvoiceStore implements the invoice queries over a pgx transaction.
type InvoiceStore struct {
	tx pgx.Tx
}

// NewInvoiceStore binds the store to tx.
func NewInvoiceStore(tx pgx.Tx) *InvoiceStore {
	return &InvoiceStore{tx: tx}
}

const invoiceColumns = `id, tenant_id, kind, number, counterparty_id, date, due_date, subtotal, tax, total_amount, paid_amount, balance_amount, cost, inventory, status, journal_entry_id, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.TenantID, &inv.Kind, &inv.Number, &inv.CounterpartyID, &inv.Date, &inv.DueDate,
		&inv.Subtotal, &inv.Tax, &inv.TotalAmount, &inv.PaidAmount, &inv.BalanceAmount, &inv.Cost, &inv.Inventory,
		&inv.Status, &inv.JournalEntryID, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

func (s *InvoiceStore) InsertInvoice(ctx context.Context, inv Invoice) (Invoice, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO invoices (tenant_id, kind, number, counterparty_id, date, due_date, subtotal, tax, total_amount, paid_amount, balance_amount, cost, inventory, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id, created_at, updated_at`,
		inv.TenantID, inv.Kind, inv.Number, inv.CounterpartyID, inv.Date, inv.DueDate, inv.Subtotal, inv.Tax,
		inv.TotalAmount, inv.PaidAmount, inv.BalanceAmount, inv.Cost, inv.Inventory, inv.Status)
	if err := row.Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

func (s *InvoiceStore) GetInvoice(ctx context.Context, tenantID, id int64) (Invoice, error) {
	return scanInvoice(s.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (s *InvoiceStore) GetInvoiceForUpdate(ctx context.Context, tenantID, id int64) (Invoice, error) {
	return scanInvoice(s.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

func (s *InvoiceStore) UpdateInvoiceSettlement(ctx context.Context, inv Invoice) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE invoices SET paid_amount=$3, balance_amount=$4, status=$5, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		inv.TenantID, inv.ID, inv.PaidAmount, inv.BalanceAmount, inv.Status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (s *InvoiceStore) MarkInvoicePosted(ctx context.Context, tenantID, id, journalEntryID int64) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE invoices SET status=$3, journal_entry_id=$4, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, StatusPosted, journalEntryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}
