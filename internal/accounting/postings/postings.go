// Package postings holds the per-document line builders. Each builder fixes
// which accounts a document debits and credits; balance effects are applied by
// the journal engine alone.
package postings

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// BankLink is a bank account together with the ledger account that represents it.
type BankLink struct {
	BankAccountID int64
	GLCode        string
}

func (l BankLink) check() error {
	if l.GLCode == "" {
		return fmt.Errorf("%w: bank account %d", shared.ErrBankAccountUnlinked, l.BankAccountID)
	}
	return nil
}

// Document is the header shared by every routine.
type Document struct {
	ID          int64
	Date        time.Time
	Description string
}

type builder struct {
	lines []journals.Line
}

func (b *builder) debit(code string, amount decimal.Decimal, desc string) {
	if amount.IsPositive() {
		b.lines = append(b.lines, journals.Debit(code, amount, desc))
	}
}

func (b *builder) credit(code string, amount decimal.Decimal, desc string) {
	if amount.IsPositive() {
		b.lines = append(b.lines, journals.Credit(code, amount, desc))
	}
}

func (b *builder) finish(kind journals.ReferenceKind, doc Document, fallback string) (journals.PostingInput, error) {
	desc := doc.Description
	if desc == "" {
		desc = fmt.Sprintf("%s #%d", fallback, doc.ID)
	}
	in := journals.PostingInput{
		EntryType:   journals.EntryTypeAutomatic,
		Reference:   journals.Reference{Kind: kind, ID: doc.ID},
		Date:        doc.Date,
		Description: desc,
		Lines:       b.lines,
	}
	if err := in.Validate(journals.DefaultEpsilon); err != nil {
		return journals.PostingInput{}, err
	}
	return in, nil
}

func nonNegative(values ...decimal.Decimal) error {
	for _, v := range values {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s", shared.ErrInvalidAmount, v.StringFixed(2))
		}
	}
	return nil
}

func positive(v decimal.Decimal) error {
	if !v.IsPositive() {
		return fmt.Errorf("%w: %s must be positive", shared.ErrInvalidAmount, v.StringFixed(2))
	}
	return nil
}

// SalesInvoice debits receivables for the gross and credits revenue and output tax.
func SalesInvoice(doc Document, subtotal, tax decimal.Decimal) (journals.PostingInput, error) {
	if err := nonNegative(subtotal, tax); err != nil {
		return journals.PostingInput{}, err
	}
	var b builder
	b.debit(accounts.CodeAccountsReceivable, subtotal.Add(tax), "Invoice receivable")
	b.credit(accounts.CodeSalesRevenue, subtotal, "Sales revenue")
	b.credit(accounts.CodeTaxPayable, tax, "Output tax")
	return b.finish(journals.RefSalesInvoice, doc, "Sales invoice")
}

// PurchaseInvoice debits inventory (or purchases) and input tax and credits payables.
func PurchaseInvoice(doc Document, subtotal, tax decimal.Decimal, inventory bool) (journals.PostingInput, error) {
	if err := nonNegative(subtotal, tax); err != nil {
		return journals.PostingInput{}, err
	}
	var b builder
	b.debit(costAccount(inventory), subtotal, "Purchased goods")
	b.debit(accounts.CodeTaxReceivable, tax, "Input tax")
	b.credit(accounts.CodeAccountsPayable, subtotal.Add(tax), "Bill payable")
	return b.finish(journals.RefPurchaseInvoice, doc, "Purchase invoice")
}

// CustomerPayment debits the bank for the receipt, credits receivables for the
// cash applied to invoices and customer deposits for any excess.
func CustomerPayment(doc Document, bank BankLink, amount, applied decimal.Decimal) (journals.PostingInput, error) {
	if err := bank.check(); err != nil {
		return journals.PostingInput{}, err
	}
	if err := positive(amount); err != nil {
		return journals.PostingInput{}, err
	}
	if err := nonNegative(applied); err != nil {
		return journals.PostingInput{}, err
	}
	applied = decimal.Min(applied, amount)
	var b builder
	b.debit(bank.GLCode, amount, "Customer receipt")
	b.credit(accounts.CodeAccountsReceivable, applied, "Invoices settled")
	b.credit(accounts.CodeCustomerDeposits, amount.Sub(applied), "Unapplied receipt")
	return b.finish(journals.RefCustomerPayment, doc, "Customer payment")
}

// VendorPayment debits payables for the cash applied to bills and vendor
// advances for any excess, and credits the bank.
func VendorPayment(doc Document, bank BankLink, amount, applied decimal.Decimal) (journals.PostingInput, error) {
	if err := bank.check(); err != nil {
		return journals.PostingInput{}, err
	}
	if err := positive(amount); err != nil {
		return journals.PostingInput{}, err
	}
	if err := nonNegative(applied); err != nil {
		return journals.PostingInput{}, err
	}
	applied = decimal.Min(applied, amount)
	var b builder
	b.debit(accounts.CodeAccountsPayable, applied, "Bills settled")
	b.debit(accounts.CodeVendorAdvances, amount.Sub(applied), "Unapplied payment")
	b.credit(bank.GLCode, amount, "Vendor payment")
	return b.finish(journals.RefVendorPayment, doc, "Vendor payment")
}

// Transfer moves funds between two bank ledger accounts.
func Transfer(doc Document, from, to BankLink, amount decimal.Decimal) (journals.PostingInput, error) {
	if err := from.check(); err != nil {
		return journals.PostingInput{}, err
	}
	if err := to.check(); err != nil {
		return journals.PostingInput{}, err
	}
	if err := positive(amount); err != nil {
		return journals.PostingInput{}, err
	}
	var b builder
	b.debit(to.GLCode, amount, "Transfer in")
	b.credit(from.GLCode, amount, "Transfer out")
	return b.finish(journals.RefTransfer, doc, "Bank transfer")
}

// Revenue debits the bank and credits the revenue category (other revenue by default).
func Revenue(doc Document, bank BankLink, amount decimal.Decimal, categoryCode string) (journals.PostingInput, error) {
	if err := bank.check(); err != nil {
		return journals.PostingInput{}, err
	}
	if err := positive(amount); err != nil {
		return journals.PostingInput{}, err
	}
	if categoryCode == "" {
		categoryCode = accounts.CodeOtherRevenue
	}
	var b builder
	b.debit(bank.GLCode, amount, "Revenue received")
	b.credit(categoryCode, amount, "Revenue")
	return b.finish(journals.RefRevenue, doc, "Revenue")
}

// Expense debits the expense category (general expense by default) and credits the bank.
func Expense(doc Document, bank BankLink, amount decimal.Decimal, categoryCode string) (journals.PostingInput, error) {
	if err := bank.check(); err != nil {
		return journals.PostingInput{}, err
	}
	if err := positive(amount); err != nil {
		return journals.PostingInput{}, err
	}
	if categoryCode == "" {
		categoryCode = accounts.CodeGeneralExpense
	}
	var b builder
	b.debit(categoryCode, amount, "Expense")
	b.credit(bank.GLCode, amount, "Expense paid")
	return b.finish(journals.RefExpense, doc, "Expense")
}

// Payroll debits salaries and credits the paying bank.
func Payroll(doc Document, bank BankLink, amount decimal.Decimal) (journals.PostingInput, error) {
	if err := bank.check(); err != nil {
		return journals.PostingInput{}, err
	}
	if err := positive(amount); err != nil {
		return journals.PostingInput{}, err
	}
	var b builder
	b.debit(accounts.CodeSalaries, amount, "Salaries")
	b.credit(bank.GLCode, amount, "Payroll paid")
	return b.finish(journals.RefPayroll, doc, "Payroll")
}

// Commission debits commission expense and credits the paying bank.
func Commission(doc Document, bank BankLink, amount decimal.Decimal) (journals.PostingInput, error) {
	if err := bank.check(); err != nil {
		return journals.PostingInput{}, err
	}
	if err := positive(amount); err != nil {
		return journals.PostingInput{}, err
	}
	var b builder
	b.debit(accounts.CodeCommission, amount, "Commission")
	b.credit(bank.GLCode, amount, "Commission paid")
	return b.finish(journals.RefCommission, doc, "Commission")
}

// POSSale debits the bank for the gross and credits revenue and output tax.
func POSSale(doc Document, bank BankLink, subtotal, tax decimal.Decimal) (journals.PostingInput, error) {
	if err := bank.check(); err != nil {
		return journals.PostingInput{}, err
	}
	if err := nonNegative(subtotal, tax); err != nil {
		return journals.PostingInput{}, err
	}
	var b builder
	b.debit(bank.GLCode, subtotal.Add(tax), "POS receipt")
	b.credit(accounts.CodeSalesRevenue, subtotal, "POS revenue")
	b.credit(accounts.CodeTaxPayable, tax, "Output tax")
	return b.finish(journals.RefPOSSale, doc, "POS sale")
}

// CreditNote reverses revenue and output tax against receivables.
func CreditNote(doc Document, subtotal, tax decimal.Decimal) (journals.PostingInput, error) {
	if err := nonNegative(subtotal, tax); err != nil {
		return journals.PostingInput{}, err
	}
	var b builder
	b.debit(accounts.CodeSalesRevenue, subtotal, "Sales return")
	b.debit(accounts.CodeTaxPayable, tax, "Output tax reversal")
	b.credit(accounts.CodeAccountsReceivable, subtotal.Add(tax), "Customer credit")
	return b.finish(journals.RefCreditNote, doc, "Credit note")
}

// DebitNote reverses a purchase against payables.
func DebitNote(doc Document, subtotal, tax decimal.Decimal, inventory bool) (journals.PostingInput, error) {
	if err := nonNegative(subtotal, tax); err != nil {
		return journals.PostingInput{}, err
	}
	var b builder
	b.debit(accounts.CodeAccountsPayable, subtotal.Add(tax), "Vendor debit")
	b.credit(costAccount(inventory), subtotal, "Purchase return")
	b.credit(accounts.CodeTaxReceivable, tax, "Input tax reversal")
	return b.finish(journals.RefDebitNote, doc, "Debit note")
}

// COGS recognises cost of goods sold for a sale. The entry carries the sale's reference.
func COGS(kind journals.ReferenceKind, doc Document, cost decimal.Decimal) (journals.PostingInput, error) {
	if err := positive(cost); err != nil {
		return journals.PostingInput{}, err
	}
	var b builder
	b.debit(accounts.CodeCOGS, cost, "Cost of goods sold")
	b.credit(accounts.CodeInventory, cost, "Inventory issued")
	return b.finish(kind, doc, "COGS")
}

// COGSReversal returns goods to inventory for a sales return.
func COGSReversal(kind journals.ReferenceKind, doc Document, cost decimal.Decimal) (journals.PostingInput, error) {
	if err := positive(cost); err != nil {
		return journals.PostingInput{}, err
	}
	var b builder
	b.debit(accounts.CodeInventory, cost, "Inventory returned")
	b.credit(accounts.CodeCOGS, cost, "COGS reversal")
	return b.finish(kind, doc, "COGS reversal")
}

// Adjustment wraps caller supplied lines as a manual entry.
func Adjustment(doc Document, lines []journals.Line) (journals.PostingInput, error) {
	b := builder{lines: lines}
	in, err := b.finish(journals.RefAdjustment, doc, "Adjustment")
	if err != nil {
		return journals.PostingInput{}, err
	}
	in.EntryType = journals.EntryTypeManual
	return in, nil
}

func costAccount(inventory bool) string {
	if inventory {
		return accounts.CodeInventory
	}
	return accounts.CodePurchases
}
