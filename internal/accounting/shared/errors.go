package shared

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

var (
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = fmt.Errorf("accounting: journal lines must balance: %w", internalShared.ErrValidation)
	// ErrNoLines indicates a posting without lines.
	ErrNoLines = fmt.Errorf("accounting: journal requires at least one line: %w", internalShared.ErrValidation)
	// ErrInvalidLine indicates a line without exactly one positive side.
	ErrInvalidLine = fmt.Errorf("accounting: line needs exactly one non-zero, non-negative side: %w", internalShared.ErrValidation)
	// ErrInvalidReference indicates an unknown reference kind or id.
	ErrInvalidReference = fmt.Errorf("accounting: invalid journal reference: %w", internalShared.ErrValidation)
	// ErrInvalidAmount indicates a negative or otherwise unusable document amount.
	ErrInvalidAmount = fmt.Errorf("accounting: invalid amount: %w", internalShared.ErrValidation)
	// ErrMissingAccount indicates an account code required by a posting does not exist.
	ErrMissingAccount = fmt.Errorf("accounting: required account missing: %w", internalShared.ErrValidation)
	// ErrAccountInactive indicates a posting against a deactivated account.
	ErrAccountInactive = fmt.Errorf("accounting: account inactive: %w", internalShared.ErrValidation)
	// ErrAccountNotFound indicates lookup miss.
	ErrAccountNotFound = fmt.Errorf("accounting: account not found: %w", internalShared.ErrNotFound)
	// ErrJournalNotFound indicates missing entry.
	ErrJournalNotFound = fmt.Errorf("accounting: journal entry not found: %w", internalShared.ErrNotFound)
	// ErrSystemAccount indicates an edit to a protected field of a system account.
	ErrSystemAccount = fmt.Errorf("accounting: system account code and name are protected: %w", internalShared.ErrInvalidState)
	// ErrDuplicateCode indicates the account code already exists for the tenant.
	ErrDuplicateCode = fmt.Errorf("accounting: account code already exists: %w", internalShared.ErrConflict)
	// ErrInvalidCode indicates a malformed account code.
	ErrInvalidCode = fmt.Errorf("accounting: account code must be four digits: %w", internalShared.ErrValidation)
	// ErrNameRequired indicates an account without a name.
	ErrNameRequired = fmt.Errorf("accounting: account name required: %w", internalShared.ErrValidation)
	// ErrInvalidNormalBalance indicates a side other than debit or credit.
	ErrInvalidNormalBalance = fmt.Errorf("accounting: normal balance must be debit or credit: %w", internalShared.ErrValidation)
	// ErrInvalidParent indicates a parent outside the tenant or below the top level.
	ErrInvalidParent = fmt.Errorf("accounting: invalid parent account: %w", internalShared.ErrValidation)

	// ErrNoAllocation indicates a payment without invoice allocations.
	ErrNoAllocation = fmt.Errorf("payments: at least one invoice allocation required: %w", internalShared.ErrValidation)
	// ErrNoteExceedsAllocation indicates note applications larger than the invoice allocations.
	ErrNoteExceedsAllocation = fmt.Errorf("payments: note applications exceed invoice allocations: %w", internalShared.ErrValidation)
	// ErrAllocationExceedsBalance indicates an allocation larger than the invoice balance.
	ErrAllocationExceedsBalance = fmt.Errorf("payments: allocation exceeds invoice balance: %w", internalShared.ErrValidation)
	// ErrAllocationExceedsPayment indicates cash allocations larger than the payment amount.
	ErrAllocationExceedsPayment = fmt.Errorf("payments: allocations exceed payment amount: %w", internalShared.ErrValidation)
	// ErrNoteExceedsBalance indicates a note application larger than the note balance.
	ErrNoteExceedsBalance = fmt.Errorf("notes: application exceeds note balance: %w", internalShared.ErrValidation)
	// ErrCounterpartyMismatch indicates a document that belongs to another customer or vendor.
	ErrCounterpartyMismatch = fmt.Errorf("payments: document belongs to another counterparty: %w", internalShared.ErrValidation)

	// ErrAlreadyReconciled indicates the bank transaction is not unreconciled.
	ErrAlreadyReconciled = fmt.Errorf("bank: transaction already reconciled: %w", internalShared.ErrInvalidState)
	// ErrBankAccountUnlinked indicates a bank account without its ledger account.
	ErrBankAccountUnlinked = fmt.Errorf("bank: bank account has no linked ledger account: %w", internalShared.ErrIntegrity)
)

// UnbalancedEntryError reports the totals of an entry that failed the balance check.
type UnbalancedEntryError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *UnbalancedEntryError) Error() string {
	return fmt.Sprintf("accounting: journal lines must balance (debit %s, credit %s)", e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

func (e *UnbalancedEntryError) Unwrap() error {
	return ErrUnbalanced
}

// MissingAccountError names the account code a posting could not resolve.
type MissingAccountError struct {
	Code string
}

func (e *MissingAccountError) Error() string {
	return fmt.Sprintf("accounting: required account %s missing", e.Code)
}

func (e *MissingAccountError) Unwrap() error {
	return ErrMissingAccount
}

// AllocationError names the document whose balance an allocation would exceed.
type AllocationError struct {
	Err        error
	DocumentID int64
	Amount     decimal.Decimal
	Balance    decimal.Decimal
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("%s (document %d: amount %s, balance %s)", e.Err.Error(), e.DocumentID, e.Amount.StringFixed(2), e.Balance.StringFixed(2))
}

func (e *AllocationError) Unwrap() error {
	return e.Err
}

// StateError rejects an action and names the state the document is currently in.
type StateError struct {
	Entity  string
	ID      int64
	Current string
	Action  string
	Err     error
}

func (e *StateError) Error() string {
	return fmt.Sprintf("%s %d: cannot %s while %s", e.Entity, e.ID, e.Action, e.Current)
}

func (e *StateError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return internalShared.ErrInvalidState
}

// NewStateError builds a StateError wrapping the generic invalid-state category.
func NewStateError(entity string, id int64, current, action string) *StateError {
	return &StateError{Entity: entity, ID: id, Current: current, Action: action}
}

// IsValidation reports whether err was rejected before any write.
func IsValidation(err error) bool {
	return errors.Is(err, internalShared.ErrValidation)
}
