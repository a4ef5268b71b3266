package notes

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoices"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository opens transactional units over the note store.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes note operations alongside invoices and journals.
type TxRepository interface {
	invoices.TxRepository

	InsertNote(ctx context.Context, n Note) (Note, error)
	GetNote(ctx context.Context, tenantID, id int64) (Note, error)
	GetNoteForUpdate(ctx context.Context, tenantID, id int64) (Note, error)
	// ListApplicableNotesForUpdate locks approved or partial notes with a
	// positive balance, oldest first by date then id.
	ListApplicableNotesForUpdate(ctx context.Context, tenantID, counterpartyID int64, kind Kind) ([]Note, error)
	// UpdateNoteApplication persists applied, balance and status.
	UpdateNoteApplication(ctx context.Context, n Note) error
	MarkNoteApproved(ctx context.Context, tenantID, id, journalEntryID int64) error
	InsertNoteApplication(ctx context.Context, app Application) (Application, error)
	ListNoteApplications(ctx context.Context, tenantID, noteID int64) ([]Application, error)
	ListTargetApplications(ctx context.Context, tenantID int64, target TargetType, targetID int64) ([]Application, error)
	DeleteTargetApplications(ctx context.Context, tenantID int64, target TargetType, targetID int64) error
	// PendingPaymentReservation sums the note's applications held by payments
	// that have not cleared yet.
	PendingPaymentReservation(ctx context.Context, tenantID, noteID int64) (decimal.Decimal, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed note repository.
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
	*invoices.InvoiceStore
	*NoteStore
}

// NewTxRepository composes the stores a note operation touches over one transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{
		AccountStore: accounts.NewAccountStore(tx),
		JournalStore: journals.NewJournalStore(tx),
		InvoiceStore: invoices.NewInvoiceStore(tx),
		NoteStore:    NewNoteStore(tx),
	}
}

// NoteStore implements the note queries over a pgx transaction.
type NoteStore struct {
	tx pgx.Tx
}

// NewNoteStore binds the store to tx.
func NewNoteStore(tx pgx.Tx) *NoteStore {
	return &NoteStore{tx: tx}
}

const noteColumns = `id, tenant_id, kind, number, counterparty_id, invoice_id, date, subtotal, tax, total_amount, applied_amount, balance_amount, cost, inventory, status, journal_entry_id, created_at, updated_at`

func scanNote(row pgx.Row) (Note, error) {
	var n Note
	err := row.Scan(&n.ID, &n.TenantID, &n.Kind, &n.Number, &n.CounterpartyID, &n.InvoiceID, &n.Date,
		&n.Subtotal, &n.Tax, &n.TotalAmount, &n.AppliedAmount, &n.BalanceAmount, &n.Cost, &n.Inventory,
		&n.Status, &n.JournalEntryID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Note{}, ErrNoteNotFound
		}
		return Note{}, err
	}
	return n, nil
}

func (s *NoteStore) InsertNote(ctx context.Context, n Note) (Note, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO notes (tenant_id, kind, number, counterparty_id, invoice_id, date, subtotal, tax, total_amount, applied_amount, balance_amount, cost, inventory, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14) RETURNING id, created_at, updated_at`,
		n.TenantID, n.Kind, n.Number, n.CounterpartyID, n.InvoiceID, n.Date, n.Subtotal, n.Tax,
		n.TotalAmount, n.AppliedAmount, n.BalanceAmount, n.Cost, n.Inventory, n.Status)
	if err := row.Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return Note{}, err
	}
	return n, nil
}

func (s *NoteStore) GetNote(ctx context.Context, tenantID, id int64) (Note, error) {
	return scanNote(s.tx.QueryRow(ctx, `SELECT `+noteColumns+` FROM notes WHERE tenant_id=$1 AND id=$2`, tenantID, id))
}

func (s *NoteStore) GetNoteForUpdate(ctx context.Context, tenantID, id int64) (Note, error) {
	return scanNote(s.tx.QueryRow(ctx, `SELECT `+noteColumns+` FROM notes WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, id))
}

func (s *NoteStore) ListApplicableNotesForUpdate(ctx context.Context, tenantID, counterpartyID int64, kind Kind) ([]Note, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+noteColumns+` FROM notes
WHERE tenant_id=$1 AND counterparty_id=$2 AND kind=$3 AND status IN ('approved','partial') AND balance_amount > 0
ORDER BY date, id FOR UPDATE`, tenantID, counterpartyID, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *NoteStore) UpdateNoteApplication(ctx context.Context, n Note) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE notes SET applied_amount=$3, balance_amount=$4, status=$5, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		n.TenantID, n.ID, n.AppliedAmount, n.BalanceAmount, n.Status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoteNotFound
	}
	return nil
}

func (s *NoteStore) MarkNoteApproved(ctx context.Context, tenantID, id, journalEntryID int64) error {
	cmd, err := s.tx.Exec(ctx, `UPDATE notes SET status=$3, journal_entry_id=$4, updated_at=NOW() WHERE tenant_id=$1 AND id=$2`,
		tenantID, id, StatusApproved, journalEntryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNoteNotFound
	}
	return nil
}

func (s *NoteStore) InsertNoteApplication(ctx context.Context, app Application) (Application, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO note_applications (tenant_id, note_id, target_type, target_id, amount)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`, app.TenantID, app.NoteID, app.TargetType, app.TargetID, app.Amount)
	if err := row.Scan(&app.ID, &app.CreatedAt); err != nil {
		return Application{}, err
	}
	return app, nil
}

func (s *NoteStore) ListNoteApplications(ctx context.Context, tenantID, noteID int64) ([]Application, error) {
	return s.applications(ctx, `SELECT id, tenant_id, note_id, target_type, target_id, amount, created_at
FROM note_applications WHERE tenant_id=$1 AND note_id=$2 ORDER BY id`, tenantID, noteID)
}

func (s *NoteStore) ListTargetApplications(ctx context.Context, tenantID int64, target TargetType, targetID int64) ([]Application, error) {
	return s.applications(ctx, `SELECT id, tenant_id, note_id, target_type, target_id, amount, created_at
FROM note_applications WHERE tenant_id=$1 AND target_type=$2 AND target_id=$3 ORDER BY id`, tenantID, target, targetID)
}

func (s *NoteStore) DeleteTargetApplications(ctx context.Context, tenantID int64, target TargetType, targetID int64) error {
	_, err := s.tx.Exec(ctx, `DELETE FROM note_applications WHERE tenant_id=$1 AND target_type=$2 AND target_id=$3`, tenantID, target, targetID)
	return err
}

func (s *NoteStore) PendingPaymentReservation(ctx context.Context, tenantID, noteID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := s.tx.QueryRow(ctx, `SELECT COALESCE(SUM(na.amount), 0)
FROM note_applications na
JOIN payments p ON p.tenant_id = na.tenant_id AND p.id = na.target_id
WHERE na.tenant_id=$1 AND na.note_id=$2 AND na.target_type=$3 AND p.status='pending'`,
		tenantID, noteID, TargetPayment).Scan(&total)
	return total, err
}

func (s *NoteStore) applications(ctx context.Context, query string, args ...any) ([]Application, error) {
	rows, err := s.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Application
	for rows.Next() {
		var app Application
		if err := rows.Scan(&app.ID, &app.TenantID, &app.NoteID, &app.TargetType, &app.TargetID, &app.Amount, &app.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, app)
	}
	return out, rows.Err()
}
