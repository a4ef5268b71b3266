package journals

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType distinguishes system generated entries from manual ones.
type EntryType string

const (
	EntryTypeAutomatic EntryType = "automatic"
	EntryTypeManual    EntryType = "manual"
)

// JournalStatus enumerates journal lifecycle values.
type JournalStatus string

const (
	JournalStatusPosted JournalStatus = "posted"
)

// ReferenceKind is the closed set of documents a journal entry can originate from.
type ReferenceKind string

const (
	RefSalesInvoice    ReferenceKind = "sales_invoice"
	RefPurchaseInvoice ReferenceKind = "purchase_invoice"
	RefCustomerPayment ReferenceKind = "customer_payment"
	RefVendorPayment   ReferenceKind = "vendor_payment"
	RefTransfer        ReferenceKind = "transfer"
	RefExpense         ReferenceKind = "expense"
	RefRevenue         ReferenceKind = "revenue"
	RefCreditNote      ReferenceKind = "credit_note"
	RefDebitNote       ReferenceKind = "debit_note"
	RefPayroll         ReferenceKind = "payroll"
	RefCommission      ReferenceKind = "commission"
	RefPOSSale         ReferenceKind = "pos_sale"
	RefAdjustment      ReferenceKind = "adjustment"
)

var referenceKinds = map[ReferenceKind]struct{}{
	RefSalesInvoice: {}, RefPurchaseInvoice: {}, RefCustomerPayment: {}, RefVendorPayment: {},
	RefTransfer: {}, RefExpense: {}, RefRevenue: {}, RefCreditNote: {}, RefDebitNote: {},
	RefPayroll: {}, RefCommission: {}, RefPOSSale: {}, RefAdjustment: {},
}

// Valid reports whether k is a known reference kind.
func (k ReferenceKind) Valid() bool {
	_, ok := referenceKinds[k]
	return ok
}

// Reference links an entry to the document that produced it.
type Reference struct {
	Kind ReferenceKind `json:"kind"`
	ID   int64         `json:"id"`
}

// JournalEntry is the immutable header of a posting.
type JournalEntry struct {
	ID          int64
	TenantID    int64
	Date        time.Time
	EntryType   EntryType
	Reference   Reference
	Description string
	TotalDebit  decimal.Decimal
	TotalCredit decimal.Decimal
	Status      JournalStatus
	CreatedAt   time.Time
	Items       []JournalItem
}

// JournalItem stores the debit or credit amount for one account.
type JournalItem struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	AccountCode string
	Description string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
}

// Line is a posting request line addressed by account code.
type Line struct {
	AccountCode string          `json:"account_code" validate:"required"`
	Description string          `json:"description,omitempty"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
}

// Debit builds a debit line.
func Debit(code string, amount decimal.Decimal, description string) Line {
	return Line{AccountCode: code, Debit: amount, Description: description}
}

// Credit builds a credit line.
func Credit(code string, amount decimal.Decimal, description string) Line {
	return Line{AccountCode: code, Credit: amount, Description: description}
}

// PostingInput groups fields required to create a journal entry.
type PostingInput struct {
	EntryType   EntryType `json:"entry_type"`
	Reference   Reference `json:"reference"`
	Date        time.Time `json:"date"`
	Description string    `json:"description"`
	Lines       []Line    `json:"lines" validate:"required,min=1,dive"`
}
