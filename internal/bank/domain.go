package bank

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// TransactionType is the statement direction. Credits add to the balance.
type TransactionType string

const (
	TransactionDebit  TransactionType = "debit"
	TransactionCredit TransactionType = "credit"
)

// Valid reports whether t is a known direction.
func (t TransactionType) Valid() bool {
	return t == TransactionDebit || t == TransactionCredit
}

// Signed returns amount with the balance sign of the direction.
func (t TransactionType) Signed(amount decimal.Decimal) decimal.Decimal {
	if t == TransactionDebit {
		return amount.Neg()
	}
	return amount
}

// ReconciliationStatus tracks statement matching.
type ReconciliationStatus string

const (
	StatusUnreconciled ReconciliationStatus = "unreconciled"
	StatusReconciled   ReconciliationStatus = "reconciled"
)

// BankAccount is a cash account backed by a ledger account.
type BankAccount struct {
	ID             int64
	TenantID       int64
	Name           string
	AccountNumber  string
	CurrentBalance decimal.Decimal
	GLAccountID    *int64
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Transaction is one append-only statement line with the balance after it.
type Transaction struct {
	ID                   int64
	TenantID             int64
	BankAccountID        int64
	Date                 time.Time
	Type                 TransactionType
	Amount               decimal.Decimal
	RunningBalance       decimal.Decimal
	ReconciliationStatus ReconciliationStatus
	ReferenceNumber      string
	Description          string
	CreatedAt            time.Time
}

// Signed returns the balance effect of the transaction.
func (t Transaction) Signed() decimal.Decimal {
	return t.Type.Signed(t.Amount)
}

// Transfer moves money between two bank accounts of the same tenant.
type Transfer struct {
	ID                int64
	TenantID          int64
	FromAccountID     int64
	ToAccountID       int64
	Amount            decimal.Decimal
	Date              time.Time
	ReferenceNumber   string
	Description       string
	FromTransactionID *int64
	ToTransactionID   *int64
	JournalEntryID    *int64
	CreatedAt         time.Time
}

// CashDocumentKind enumerates single-bank money movements.
type CashDocumentKind string

const (
	CashRevenue    CashDocumentKind = "revenue"
	CashExpense    CashDocumentKind = "expense"
	CashPayroll    CashDocumentKind = "payroll"
	CashCommission CashDocumentKind = "commission"
	CashPOSSale    CashDocumentKind = "pos_sale"
)

// Direction returns the bank direction of the document kind.
func (k CashDocumentKind) Direction() (TransactionType, error) {
	switch k {
	case CashRevenue, CashPOSSale:
		return TransactionCredit, nil
	case CashExpense, CashPayroll, CashCommission:
		return TransactionDebit, nil
	default:
		return "", fmt.Errorf("%w: cash document kind %q", internalShared.ErrValidation, k)
	}
}

// CashDocument records a revenue, expense, payroll, commission or POS movement.
type CashDocument struct {
	ID             int64
	TenantID       int64
	Kind           CashDocumentKind
	BankAccountID  int64
	Date           time.Time
	Amount         decimal.Decimal
	Tax            decimal.Decimal
	Cost           decimal.Decimal
	CategoryCode   string
	Reference      string
	Description    string
	TransactionID  *int64
	JournalEntryID *int64
	CreatedAt      time.Time
}

// Total is the cash moved by the document.
func (d CashDocument) Total() decimal.Decimal {
	return d.Amount.Add(d.Tax)
}

// AppendInput describes a new bank transaction.
type AppendInput struct {
	BankAccountID   int64           `json:"bank_account_id"`
	Date            time.Time       `json:"date"`
	Type            TransactionType `json:"type" validate:"required,oneof=debit credit"`
	Amount          decimal.Decimal `json:"amount"`
	ReferenceNumber string          `json:"reference_number" validate:"max=64"`
	Description     string          `json:"description" validate:"max=255"`
}

// CreateAccountInput describes a new bank account.
type CreateAccountInput struct {
	Name          string `json:"name" validate:"required,max=120"`
	AccountNumber string `json:"account_number" validate:"required,max=64"`
	GLCode        string `json:"gl_code,omitempty" validate:"omitempty,len=4,numeric"`
}

// TransferInput describes a transfer between two bank accounts.
type TransferInput struct {
	FromAccountID   int64           `json:"from_account_id" validate:"required,gt=0"`
	ToAccountID     int64           `json:"to_account_id" validate:"required,gt=0"`
	Amount          decimal.Decimal `json:"amount"`
	Date            time.Time       `json:"date"`
	ReferenceNumber string          `json:"reference_number" validate:"max=64"`
	Description     string          `json:"description" validate:"max=255"`
}

// CashDocumentInput describes a cash movement document.
type CashDocumentInput struct {
	Kind          CashDocumentKind `json:"kind" validate:"required,oneof=revenue expense payroll commission pos_sale"`
	BankAccountID int64            `json:"bank_account_id" validate:"required,gt=0"`
	Date          time.Time        `json:"date"`
	Amount        decimal.Decimal  `json:"amount"`
	Tax           decimal.Decimal  `json:"tax"`
	Cost          decimal.Decimal  `json:"cost"`
	CategoryCode  string           `json:"category_code,omitempty" validate:"omitempty,len=4,numeric"`
	Reference     string           `json:"reference" validate:"max=64"`
	Description   string           `json:"description" validate:"max=255"`
}

// Drift reports the result of a running balance verification.
type Drift struct {
	BankAccountID  int64
	CurrentBalance decimal.Decimal
	LatestRunning  decimal.Decimal
	Recomputed     decimal.Decimal
	Consistent     bool
}

var (
	// ErrBankAccountNotFound indicates lookup miss.
	ErrBankAccountNotFound = fmt.Errorf("bank: bank account not found: %w", internalShared.ErrNotFound)
	// ErrTransactionNotFound indicates lookup miss.
	ErrTransactionNotFound = fmt.Errorf("bank: transaction not found: %w", internalShared.ErrNotFound)
	// ErrTransferNotFound indicates lookup miss.
	ErrTransferNotFound = fmt.Errorf("bank: transfer not found: %w", internalShared.ErrNotFound)
	// ErrBankAccountInactive indicates a movement against a closed bank account.
	ErrBankAccountInactive = fmt.Errorf("bank: bank account inactive: %w", internalShared.ErrValidation)
	// ErrSameAccount indicates a transfer to the source account.
	ErrSameAccount = fmt.Errorf("bank: transfer requires two different accounts: %w", internalShared.ErrValidation)
	// ErrInvalidType indicates an unknown transaction direction.
	ErrInvalidType = fmt.Errorf("bank: transaction type must be debit or credit: %w", internalShared.ErrValidation)
	// ErrGLAccountNotAsset indicates a ledger link to a non-asset account.
	ErrGLAccountNotAsset = fmt.Errorf("bank: linked ledger account must be an asset: %w", internalShared.ErrValidation)
	// ErrAmountNotPositive indicates a zero or negative amount.
	ErrAmountNotPositive = fmt.Errorf("bank: amount must be positive: %w", shared.ErrInvalidAmount)
)
