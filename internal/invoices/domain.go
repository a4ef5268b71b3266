// Package invoices keeps the settlement state of sales invoices and purchase
// bills that payments and notes settle.
package invoices

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Kind distinguishes customer invoices from vendor bills.
type Kind string

const (
	KindSales    Kind = "sales"
	KindPurchase Kind = "purchase"
)

// Valid reports whether k is known.
func (k Kind) Valid() bool {
	return k == KindSales || k == KindPurchase
}

// Status enumerates invoice lifecycle values.
type Status string

const (
	StatusDraft   Status = "draft"
	StatusPosted  Status = "posted"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
)

// Invoice is a receivable or payable document.
type Invoice struct {
	ID             int64
	TenantID       int64
	Kind           Kind
	Number         string
	CounterpartyID int64
	Date           time.Time
	DueDate        *time.Time
	Subtotal       decimal.Decimal
	Tax            decimal.Decimal
	TotalAmount    decimal.Decimal
	PaidAmount     decimal.Decimal
	BalanceAmount  decimal.Decimal
	Cost           decimal.Decimal
	Inventory      bool
	Status         Status
	JournalEntryID *int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// ReferenceKind returns the journal reference for the invoice kind.
func (i Invoice) ReferenceKind() journals.ReferenceKind {
	if i.Kind == KindPurchase {
		return journals.RefPurchaseInvoice
	}
	return journals.RefSalesInvoice
}

// Open reports whether the invoice accepts settlements.
func (i Invoice) Open() bool {
	return i.Status == StatusPosted || i.Status == StatusPartial
}

// ApplySettlement adds amount to the paid total and derives balance and status.
func (i *Invoice) ApplySettlement(amount decimal.Decimal) {
	i.PaidAmount = i.PaidAmount.Add(amount)
	i.BalanceAmount = i.TotalAmount.Sub(i.PaidAmount)
	switch {
	case i.BalanceAmount.IsZero():
		i.Status = StatusPaid
	case i.PaidAmount.IsPositive() && i.BalanceAmount.IsPositive():
		i.Status = StatusPartial
	}
}

// CreateInput describes a new draft invoice.
type CreateInput struct {
	Kind           Kind            `json:"kind" validate:"required,oneof=sales purchase"`
	Number         string          `json:"number" validate:"required,max=64"`
	CounterpartyID int64           `json:"counterparty_id" validate:"required,gt=0"`
	Date           time.Time       `json:"date"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	Cost           decimal.Decimal `json:"cost"`
	Inventory      bool            `json:"inventory"`
}

var (
	// ErrInvoiceNotFound indicates lookup miss.
	ErrInvoiceNotFound = fmt.Errorf("invoices: invoice not found: %w", internalShared.ErrNotFound)
	// ErrInvalidInvoice indicates malformed invoice input.
	ErrInvalidInvoice = fmt.Errorf("invoices: invalid invoice: %w", internalShared.ErrValidation)
)
