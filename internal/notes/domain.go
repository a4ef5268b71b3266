// Package notes manages credit and debit notes and their application against
// invoices and payments.
package notes

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/invoices"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Kind distinguishes customer credit notes from vendor debit notes.
type Kind string

const (
	KindCredit Kind = "credit"
	KindDebit  Kind = "debit"
)

// Valid reports whether k is known.
func (k Kind) Valid() bool {
	return k == KindCredit || k == KindDebit
}

// InvoiceKind is the invoice kind a note of kind k settles.
func (k Kind) InvoiceKind() invoices.Kind {
	if k == KindDebit {
		return invoices.KindPurchase
	}
	return invoices.KindSales
}

// KindFor returns the note kind that settles invoices of kind k.
func KindFor(k invoices.Kind) Kind {
	if k == invoices.KindPurchase {
		return KindDebit
	}
	return KindCredit
}

// Status enumerates note lifecycle values.
type Status string

const (
	StatusDraft    Status = "draft"
	StatusApproved Status = "approved"
	StatusPartial  Status = "partial"
	StatusApplied  Status = "applied"
)

// Note is a credit note (sales return) or debit note (purchase return).
type Note struct {
	ID             int64
	TenantID       int64
	Kind           Kind
	Number         string
	CounterpartyID int64
	InvoiceID      *int64
	Date           time.Time
	Subtotal       decimal.Decimal
	Tax            decimal.Decimal
	TotalAmount    decimal.Decimal
	AppliedAmount  decimal.Decimal
	BalanceAmount  decimal.Decimal
	Cost           decimal.Decimal
	Inventory      bool
	Status         Status
	JournalEntryID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Applications   []Application
}

// Applicable reports whether the note can be consumed.
func (n Note) Applicable() bool {
	return (n.Status == StatusApproved || n.Status == StatusPartial) && n.BalanceAmount.IsPositive()
}

// Apply consumes amount from the note and derives balance and status.
func (n *Note) Apply(amount decimal.Decimal) {
	n.AppliedAmount = n.AppliedAmount.Add(amount)
	n.BalanceAmount = n.TotalAmount.Sub(n.AppliedAmount)
	if n.BalanceAmount.IsPositive() {
		n.Status = StatusPartial
		return
	}
	n.Status = StatusApplied
}

// TargetType is the document a note application consumes against.
type TargetType string

const (
	TargetInvoice TargetType = "invoice"
	TargetPayment TargetType = "payment"
)

// Application records an amount of a note consumed against a target.
type Application struct {
	ID         int64
	TenantID   int64
	NoteID     int64
	TargetType TargetType
	TargetID   int64
	Amount     decimal.Decimal
	CreatedAt  time.Time
}

// CreateInput describes a new draft note.
type CreateInput struct {
	Kind           Kind            `json:"kind" validate:"required,oneof=credit debit"`
	Number         string          `json:"number" validate:"required,max=64"`
	CounterpartyID int64           `json:"counterparty_id" validate:"required,gt=0"`
	InvoiceID      *int64          `json:"invoice_id,omitempty"`
	Date           time.Time       `json:"date"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Cost           decimal.Decimal `json:"cost"`
	Inventory      bool            `json:"inventory"`
}

var (
	// ErrNoteNotFound indicates lookup miss.
	ErrNoteNotFound = fmt.Errorf("notes: note not found: %w", internalShared.ErrNotFound)
	// ErrInvalidNote indicates malformed note input.
	ErrInvalidNote = fmt.Errorf("notes: invalid note: %w", internalShared.ErrValidation)
	// ErrKindMismatch indicates a note applied to the wrong kind of invoice.
	ErrKindMismatch = fmt.Errorf("notes: note kind does not settle this invoice kind: %w", internalShared.ErrValidation)
)
