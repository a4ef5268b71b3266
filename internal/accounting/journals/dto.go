package journals

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
)

// DefaultEpsilon is the largest debit/credit difference still considered balanced.
var DefaultEpsilon = decimal.NewFromFloat(0.01)

// Totals sums both sides of the lines.
func Totals(lines []Line) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	return debit, credit
}

// CheckBalanced fails with *shared.UnbalancedEntryError when the sides differ by epsilon or more.
func CheckBalanced(lines []Line, epsilon decimal.Decimal) error {
	debit, credit := Totals(lines)
	if debit.Sub(credit).Abs().GreaterThanOrEqual(epsilon) {
		return &shared.UnbalancedEntryError{Debit: debit, Credit: credit}
	}
	return nil
}

// Validate ensures posting input meets minimum criteria. Account existence is
// checked by the engine against the tenant chart.
func (in PostingInput) Validate(epsilon decimal.Decimal) error {
	if !in.Reference.Kind.Valid() {
		return fmt.Errorf("%w: kind %q", shared.ErrInvalidReference, in.Reference.Kind)
	}
	if in.Reference.ID <= 0 {
		return fmt.Errorf("%w: id %d", shared.ErrInvalidReference, in.Reference.ID)
	}
	if in.EntryType != "" && in.EntryType != EntryTypeAutomatic && in.EntryType != EntryTypeManual {
		return fmt.Errorf("%w: entry type %q", shared.ErrInvalidReference, in.EntryType)
	}
	if len(in.Lines) == 0 {
		return shared.ErrNoLines
	}
	for idx, line := range in.Lines {
		if strings.TrimSpace(line.AccountCode) == "" {
			return fmt.Errorf("%w: line %d missing account code", shared.ErrInvalidLine, idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d negative amount", shared.ErrInvalidLine, idx)
		}
		if line.Debit.IsZero() == line.Credit.IsZero() {
			return fmt.Errorf("%w: line %d", shared.ErrInvalidLine, idx)
		}
	}
	return CheckBalanced(in.Lines, epsilon)
}
