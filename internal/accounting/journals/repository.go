package journals

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
)

// Repository encapsulates DB operations for journals.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes methods available within a posting transaction. It
// includes the account operations so entry rows and balance deltas commit together.
type TxRepository interface {
	accounts.TxRepository

	InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error)
	InsertJournalItems(ctx context.Context, entryID int64, items []JournalItem) ([]JournalItem, error)
	// GetJournalForUpdate loads the entry with its items and locks the header row.
	GetJournalForUpdate(ctx context.Context, tenantID, entryID int64) (JournalEntry, error)
	GetJournal(ctx context.Context, tenantID, entryID int64) (JournalEntry, error)
	ListJournalsByReference(ctx context.Context, tenantID int64, ref Reference) ([]JournalEntry, error)
	// DeleteJournal removes the items and then the header.
	DeleteJournal(ctx context.Context, tenantID, entryID int64) error
	// Savepoint scopes fn so its writes can be discarded without aborting the outer transaction.
	Savepoint(ctx context.Context, fn func(context.Context) error) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository returns a PostgreSQL backed journal repository.
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
	*JournalStore
}

// NewTxRepository composes the account and journal stores over one transaction.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{AccountStore: accounts.NewAccountStore(tx), JournalStore: NewJournalStore(tx)}
}

// JournalStore implements the journal queries over a pgx transaction.
type JournalStore struct {
	tx pgx.Tx
}

// NewJournalStore binds the store to tx.
func NewJournalStore(tx pgx.Tx) *JournalStore {
	return &JournalStore{tx: tx}
}

const journalColumns = `id, tenant_id, date, entry_type, reference_type, reference_id, description, total_debit, total_credit, status, created_at`

func scanJournal(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.TenantID, &e.Date, &e.EntryType, &e.Reference.Kind, &e.Reference.ID, &e.Description, &e.TotalDebit, &e.TotalCredit, &e.Status, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, shared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	return e, nil
}

func (s *JournalStore) InsertJournalEntry(ctx context.Context, entry JournalEntry) (JournalEntry, error) {
	row := s.tx.QueryRow(ctx, `INSERT INTO journal_entries (tenant_id, date, entry_type, reference_type, reference_id, description, total_debit, total_credit, status)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		entry.TenantID, entry.Date, entry.EntryType, entry.Reference.Kind, entry.Reference.ID, entry.Description, entry.TotalDebit, entry.TotalCredit, entry.Status)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return JournalEntry{}, err
	}
	return entry, nil
}

func (s *JournalStore) InsertJournalItems(ctx context.Context, entryID int64, items []JournalItem) ([]JournalItem, error) {
	out := make([]JournalItem, 0, len(items))
	for _, item := range items {
		item.EntryID = entryID
		if err := s.tx.QueryRow(ctx, `INSERT INTO journal_entry_items (journal_entry_id, account_id, description, debit_amount, credit_amount)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, entryID, item.AccountID, item.Description, item.Debit, item.Credit).Scan(&item.ID); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

func (s *JournalStore) GetJournalForUpdate(ctx context.Context, tenantID, entryID int64) (JournalEntry, error) {
	entry, err := scanJournal(s.tx.QueryRow(ctx, `SELECT `+journalColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2 FOR UPDATE`, tenantID, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Items, err = s.items(ctx, entry.ID)
	return entry, err
}

func (s *JournalStore) GetJournal(ctx context.Context, tenantID, entryID int64) (JournalEntry, error) {
	entry, err := scanJournal(s.tx.QueryRow(ctx, `SELECT `+journalColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, entryID))
	if err != nil {
		return JournalEntry{}, err
	}
	entry.Items, err = s.items(ctx, entry.ID)
	return entry, err
}

func (s *JournalStore) items(ctx context.Context, entryID int64) ([]JournalItem, error) {
	rows, err := s.tx.Query(ctx, `SELECT i.id, i.journal_entry_id, i.account_id, a.code, i.description, i.debit_amount, i.credit_amount
FROM journal_entry_items i JOIN accounts a ON a.id = i.account_id
WHERE i.journal_entry_id=$1 ORDER BY i.id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []JournalItem
	for rows.Next() {
		var item JournalItem
		if err := rows.Scan(&item.ID, &item.EntryID, &item.AccountID, &item.AccountCode, &item.Description, &item.Debit, &item.Credit); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (s *JournalStore) ListJournalsByReference(ctx context.Context, tenantID int64, ref Reference) ([]JournalEntry, error) {
	rows, err := s.tx.Query(ctx, `SELECT `+journalColumns+` FROM journal_entries WHERE tenant_id=$1 AND reference_type=$2 AND reference_id=$3 ORDER BY id`, tenantID, ref.Kind, ref.ID)
	if err != nil {
		return nil, err
	}
	var out []JournalEntry
	for rows.Next() {
		entry, err := scanJournal(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, entry)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Items, err = s.items(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *JournalStore) DeleteJournal(ctx context.Context, tenantID, entryID int64) error {
	if _, err := s.tx.Exec(ctx, `DELETE FROM journal_entry_items WHERE journal_entry_id=$1`, entryID); err != nil {
		return err
	}
	cmd, err := s.tx.Exec(ctx, `DELETE FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenantID, entryID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return shared.ErrJournalNotFound
	}
	return nil
}

func (s *JournalStore) Savepoint(ctx context.Context, fn func(context.Context) error) error {
	return db.Savepoint(ctx, s.tx, fn)
}
