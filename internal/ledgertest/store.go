// Package ledgertest provides an in-memory implementation of every ledger
// repository for service tests. A unit of work runs under one mutex; a failing
// unit restores the state it started from.
package ledgertest

import (
	"context"
	"errors"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/bank"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoices"
	"github.com/odyssey-erp/odyssey-ledger/internal/notes"
	"github.com/odyssey-erp/odyssey-ledger/internal/payments"
)

// ErrInjected is returned by operations armed with FailOn.
var ErrInjected = errors.New("ledgertest: injected failure")

type state struct {
	seq          int64
	accounts     map[int64]accounts.Account
	journals     map[int64]journals.JournalEntry
	bankAccounts map[int64]bank.BankAccount
	bankTxns     map[int64]bank.Transaction
	transfers    map[int64]bank.Transfer
	cashDocs     map[int64]bank.CashDocument
	invoices     map[int64]invoices.Invoice
	notes        map[int64]notes.Note
	applications map[int64]notes.Application
	payments     map[int64]payments.Payment
	allocations  map[int64]payments.Allocation
}

func newState() *state {
	return &state{
		accounts:     map[int64]accounts.Account{},
		journals:     map[int64]journals.JournalEntry{},
		bankAccounts: map[int64]bank.BankAccount{},
		bankTxns:     map[int64]bank.Transaction{},
		transfers:    map[int64]bank.Transfer{},
		cashDocs:     map[int64]bank.CashDocument{},
		invoices:     map[int64]invoices.Invoice{},
		notes:        map[int64]notes.Note{},
		applications: map[int64]notes.Application{},
		payments:     map[int64]payments.Payment{},
		allocations:  map[int64]payments.Allocation{},
	}
}

func (s *state) clone() *state {
	out := &state{
		seq:          s.seq,
		accounts:     maps.Clone(s.accounts),
		journals:     make(map[int64]journals.JournalEntry, len(s.journals)),
		bankAccounts: maps.Clone(s.bankAccounts),
		bankTxns:     maps.Clone(s.bankTxns),
		transfers:    maps.Clone(s.transfers),
		cashDocs:     maps.Clone(s.cashDocs),
		invoices:     maps.Clone(s.invoices),
		notes:        maps.Clone(s.notes),
		applications: maps.Clone(s.applications),
		payments:     maps.Clone(s.payments),
		allocations:  maps.Clone(s.allocations),
	}
	for id, e := range s.journals {
		e.Items = slices.Clone(e.Items)
		out.journals[id] = e
	}
	return out
}

func (s *state) next() int64 {
	s.seq++
	return s.seq
}

// Store is the in-memory database.
type Store struct {
	mu    sync.Mutex
	state *state
	fail  map[string]error
	now   func() time.Time
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{state: newState(), fail: map[string]error{}, now: time.Now}
}

// FailOn arms op (a repository method name) to return err once. A nil err
// uses ErrInjected.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	s.fail[op] = err
}

func (s *Store) withTx(fn func(*Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.state.clone()
	tx := &Tx{store: s}
	if err := fn(tx); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// Accounts returns the store as an account repository.
func (s *Store) Accounts() accounts.Repository { return accountRepo{s} }

// Journals returns the store as a journal repository.
func (s *Store) Journals() journals.Repository { return journalRepo{s} }

// Bank returns the store as a bank repository.
func (s *Store) Bank() bank.Repository { return bankRepo{s} }

// Invoices returns the store as an invoice repository.
func (s *Store) Invoices() invoices.Repository { return invoiceRepo{s} }

// Notes returns the store as a note repository.
func (s *Store) Notes() notes.Repository { return noteRepo{s} }

// Payments returns the store as a payment repository.
func (s *Store) Payments() payments.Repository { return paymentRepo{s} }

type accountRepo struct{ s *Store }

func (r accountRepo) WithTx(ctx context.Context, fn func(context.Context, accounts.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

type journalRepo struct{ s *Store }

func (r journalRepo) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

type bankRepo struct{ s *Store }

func (r bankRepo) WithTx(ctx context.Context, fn func(context.Context, bank.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

type invoiceRepo struct{ s *Store }

func (r invoiceRepo) WithTx(ctx context.Context, fn func(context.Context, invoices.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

type noteRepo struct{ s *Store }

func (r noteRepo) WithTx(ctx context.Context, fn func(context.Context, notes.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

type paymentRepo struct{ s *Store }

func (r paymentRepo) WithTx(ctx context.Context, fn func(context.Context, payments.TxRepository) error) error {
	return r.s.withTx(func(tx *Tx) error { return fn(ctx, tx) })
}

// Tx is a unit of work over the store. It implements every TxRepository.
type Tx struct {
	store *Store
}

var _ payments.TxRepository = (*Tx)(nil)

func (t *Tx) st() *state { return t.store.state }

// check consumes an armed failure for op.
func (t *Tx) check(op string) error {
	if err, ok := t.store.fail[op]; ok {
		delete(t.store.fail, op)
		return err
	}
	return nil
}

func (t *Tx) Savepoint(ctx context.Context, fn func(context.Context) error) error {
	snapshot := t.st().clone()
	if err := fn(ctx); err != nil {
		t.store.state = snapshot
		return err
	}
	return nil
}

// Accounts.

func (t *Tx) GetAccountByCode(_ context.Context, tenantID int64, code string) (accounts.Account, error) {
	if err := t.check("GetAccountByCode"); err != nil {
		return accounts.Account{}, err
	}
	for _, a := range t.st().accounts {
		if a.TenantID == tenantID && a.Code == code {
			return a, nil
		}
	}
	return accounts.Account{}, accountNotFound()
}

func (t *Tx) GetAccount(_ context.Context, tenantID, id int64) (accounts.Account, error) {
	a, ok := t.st().accounts[id]
	if !ok || a.TenantID != tenantID {
		return accounts.Account{}, accountNotFound()
	}
	return a, nil
}

func (t *Tx) ListAccounts(_ context.Context, tenantID int64) ([]accounts.Account, error) {
	var out []accounts.Account
	for _, a := range t.st().accounts {
		if a.TenantID == tenantID {
			out = append(out, a)
		}
	}
	slices.SortFunc(out, func(a, b accounts.Account) int { return strings.Compare(a.Code, b.Code) })
	return out, nil
}

func (t *Tx) InsertAccount(_ context.Context, a accounts.Account) (accounts.Account, error) {
	if err := t.check("InsertAccount"); err != nil {
		return accounts.Account{}, err
	}
	for _, existing := range t.st().accounts {
		if existing.TenantID == a.TenantID && existing.Code == a.Code {
			return accounts.Account{}, duplicateCode(a.Code)
		}
	}
	a.ID = t.st().next()
	a.CurrentBalance = decimal.Zero
	a.CreatedAt = t.store.now()
	a.UpdatedAt = a.CreatedAt
	t.st().accounts[a.ID] = a
	return a, nil
}

func (t *Tx) UpdateAccount(_ context.Context, a accounts.Account) error {
	current, ok := t.st().accounts[a.ID]
	if !ok || current.TenantID != a.TenantID {
		return accountNotFound()
	}
	for _, existing := range t.st().accounts {
		if existing.ID != a.ID && existing.TenantID == a.TenantID && existing.Code == a.Code {
			return duplicateCode(a.Code)
		}
	}
	current.Code, current.Name, current.Type, current.IsActive = a.Code, a.Name, a.Type, a.IsActive
	current.UpdatedAt = t.store.now()
	t.st().accounts[a.ID] = current
	return nil
}

func (t *Tx) LockAccounts(_ context.Context, tenantID int64, ids []int64) error {
	for _, id := range ids {
		if a, ok := t.st().accounts[id]; !ok || a.TenantID != tenantID {
			return accountNotFound()
		}
	}
	return nil
}

func (t *Tx) ApplyDelta(_ context.Context, tenantID, accountID int64, delta decimal.Decimal) error {
	if err := t.check("ApplyDelta"); err != nil {
		return err
	}
	a, ok := t.st().accounts[accountID]
	if !ok || a.TenantID != tenantID {
		return accountNotFound()
	}
	a.CurrentBalance = a.CurrentBalance.Add(delta)
	t.st().accounts[accountID] = a
	return nil
}

// Journals.

func (t *Tx) InsertJournalEntry(_ context.Context, e journals.JournalEntry) (journals.JournalEntry, error) {
	if err := t.check("InsertJournalEntry"); err != nil {
		return journals.JournalEntry{}, err
	}
	e.ID = t.st().next()
	e.CreatedAt = t.store.now()
	e.Items = nil
	t.st().journals[e.ID] = e
	return e, nil
}

func (t *Tx) InsertJournalItems(_ context.Context, entryID int64, items []journals.JournalItem) ([]journals.JournalItem, error) {
	if err := t.check("InsertJournalItems"); err != nil {
		return nil, err
	}
	e, ok := t.st().journals[entryID]
	if !ok {
		return nil, journalNotFound()
	}
	out := make([]journals.JournalItem, 0, len(items))
	for _, item := range items {
		item.ID = t.st().next()
		item.EntryID = entryID
		out = append(out, item)
	}
	e.Items = append(e.Items, out...)
	t.st().journals[entryID] = e
	return slices.Clone(out), nil
}

func (t *Tx) GetJournalForUpdate(ctx context.Context, tenantID, entryID int64) (journals.JournalEntry, error) {
	return t.GetJournal(ctx, tenantID, entryID)
}

func (t *Tx) GetJournal(_ context.Context, tenantID, entryID int64) (journals.JournalEntry, error) {
	e, ok := t.st().journals[entryID]
	if !ok || e.TenantID != tenantID {
		return journals.JournalEntry{}, journalNotFound()
	}
	e.Items = slices.Clone(e.Items)
	return e, nil
}

func (t *Tx) ListJournalsByReference(_ context.Context, tenantID int64, ref journals.Reference) ([]journals.JournalEntry, error) {
	var out []journals.JournalEntry
	for _, e := range t.st().journals {
		if e.TenantID == tenantID && e.Reference == ref {
			e.Items = slices.Clone(e.Items)
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b journals.JournalEntry) int { return cmpID(a.ID, b.ID) })
	return out, nil
}

func (t *Tx) DeleteJournal(_ context.Context, tenantID, entryID int64) error {
	if err := t.check("DeleteJournal"); err != nil {
		return err
	}
	e, ok := t.st().journals[entryID]
	if !ok || e.TenantID != tenantID {
		return journalNotFound()
	}
	delete(t.st().journals, entryID)
	return nil
}
