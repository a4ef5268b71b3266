// Package payments records customer receipts and vendor payments, allocates
// them across invoices and nets note applications on clearance.
package payments

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/bank"
	"github.com/odyssey-erp/odyssey-ledger/internal/invoices"
	"github.com/odyssey-erp/odyssey-ledger/internal/notes"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Direction tells receipts from disbursements.
type Direction string

const (
	DirectionCustomer Direction = "customer"
	DirectionVendor   Direction = "vendor"
)

// Valid reports whether d is known.
func (d Direction) Valid() bool {
	return d == DirectionCustomer || d == DirectionVendor
}

// InvoiceKind is the invoice kind payments in direction d settle.
func (d Direction) InvoiceKind() invoices.Kind {
	if d == DirectionVendor {
		return invoices.KindPurchase
	}
	return invoices.KindSales
}

// ReferenceKind is the journal reference of payments in direction d.
func (d Direction) ReferenceKind() journals.ReferenceKind {
	if d == DirectionVendor {
		return journals.RefVendorPayment
	}
	return journals.RefCustomerPayment
}

// BankType is the statement direction: receipts credit the bank account,
// vendor payments debit it.
func (d Direction) BankType() bank.TransactionType {
	if d == DirectionVendor {
		return bank.TransactionDebit
	}
	return bank.TransactionCredit
}

// Status enumerates payment lifecycle values.
type Status string

const (
	StatusPending Status = "pending"
	StatusCleared Status = "cleared"
)

// Payment is a receipt from a customer or a payment to a vendor.
type Payment struct {
	ID                int64
	TenantID          int64
	Direction         Direction
	CounterpartyID    int64
	BankAccountID     int64
	Amount            decimal.Decimal
	Date              time.Time
	Reference         string
	Description       string
	Status            Status
	JournalEntryID    *int64
	BankTransactionID *int64
	ClearedAt         *time.Time
	CreatedAt         time.Time
	Allocations       []Allocation
	NoteApplications  []notes.Application
}

// Allocation assigns part of a payment to one invoice.
type Allocation struct {
	ID        int64
	TenantID  int64
	PaymentID int64
	InvoiceID int64
	Amount    decimal.Decimal
}

// AllocationInput requests an allocation.
type AllocationInput struct {
	InvoiceID int64           `json:"invoice_id" validate:"required,gt=0"`
	Amount    decimal.Decimal `json:"amount"`
}

// NoteInput requests a note application netted against the payment.
type NoteInput struct {
	NoteID int64           `json:"note_id" validate:"required,gt=0"`
	Amount decimal.Decimal `json:"amount"`
}

// CreateInput describes a new pending payment.
type CreateInput struct {
	Direction        Direction         `json:"direction" validate:"required,oneof=customer vendor"`
	CounterpartyID   int64             `json:"counterparty_id" validate:"required,gt=0"`
	BankAccountID    int64             `json:"bank_account_id" validate:"required,gt=0"`
	Amount           decimal.Decimal   `json:"amount"`
	Date             time.Time         `json:"date"`
	Reference        string            `json:"reference" validate:"max=64"`
	Description      string            `json:"description" validate:"max=255"`
	Allocations      []AllocationInput `json:"allocations" validate:"dive"`
	NoteApplications []NoteInput       `json:"note_applications" validate:"dive"`
}

// Totals returns the allocated, note and cash applied sums of the input.
func (in CreateInput) Totals() (allocated, noted, cash decimal.Decimal) {
	for _, a := range in.Allocations {
		allocated = allocated.Add(a.Amount)
	}
	for _, n := range in.NoteApplications {
		noted = noted.Add(n.Amount)
	}
	return allocated, noted, allocated.Sub(noted)
}

var (
	// ErrPaymentNotFound indicates lookup miss.
	ErrPaymentNotFound = fmt.Errorf("payments: payment not found: %w", internalShared.ErrNotFound)
	// ErrInvalidPayment indicates malformed payment input.
	ErrInvalidPayment = fmt.Errorf("payments: invalid payment: %w", internalShared.ErrValidation)
)
