package accounts

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// NormalBalance is the side on which an account balance grows.
type NormalBalance string

const (
	NormalDebit  NormalBalance = "debit"
	NormalCredit NormalBalance = "credit"
)

// Valid reports whether n is a known side.
func (n NormalBalance) Valid() bool {
	return n == NormalDebit || n == NormalCredit
}

// Account models a chart of accounts node.
type Account struct {
	ID             int64
	TenantID       int64
	Code           string
	Name           string
	Type           AccountType
	NormalBalance  NormalBalance
	CurrentBalance decimal.Decimal
	ParentID       *int64
	IsActive       bool
	IsSystem       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Delta resolves the signed balance change of one debit/credit pair against
// this account's normal side. It is the only place the sign rule lives.
func (a Account) Delta(debit, credit decimal.Decimal) decimal.Decimal {
	if a.NormalBalance == NormalCredit {
		return credit.Sub(debit)
	}
	return debit.Sub(credit)
}

// TypeForCode derives the category from the numeric code range.
func TypeForCode(code string) (AccountType, error) {
	if len(code) != 4 {
		return "", shared.ErrInvalidCode
	}
	n, err := strconv.Atoi(code)
	if err != nil || n < 1000 {
		return "", shared.ErrInvalidCode
	}
	switch n / 1000 {
	case 1:
		return AccountTypeAsset, nil
	case 2:
		return AccountTypeLiability, nil
	case 3:
		return AccountTypeEquity, nil
	case 4:
		return AccountTypeRevenue, nil
	default:
		return AccountTypeExpense, nil
	}
}

// DefaultNormalBalance returns the conventional side for a category.
func DefaultNormalBalance(t AccountType) NormalBalance {
	switch t {
	case AccountTypeAsset, AccountTypeExpense:
		return NormalDebit
	default:
		return NormalCredit
	}
}

// CreateInput describes a new account.
type CreateInput struct {
	Code          string        `json:"code" validate:"required,len=4,numeric"`
	Name          string        `json:"name" validate:"required,max=120"`
	NormalBalance NormalBalance `json:"normal_balance,omitempty" validate:"omitempty,oneof=debit credit"`
	ParentID      *int64        `json:"parent_id,omitempty"`
	IsSystem      bool          `json:"-"`
}

// UpdateInput carries editable fields. Nil pointers leave the field untouched.
type UpdateInput struct {
	Code     *string `json:"code,omitempty" validate:"omitempty,len=4,numeric"`
	Name     *string `json:"name,omitempty" validate:"omitempty,max=120"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// Node groups a top-level account with its children.
type Node struct {
	Account  Account
	Children []Account
}
