/*
Package generic provides the path-agnostic core of the simulation engine.

PURPOSE:
  Every game path (job saving, business, early retirement) is built from the
  same parts: money arithmetic, ordered expense lists, amortizing loans,
  investments, and a dispatch table that turns an action string plus a JSON
  payload into a new state. This package holds those parts so the path
  packages only describe what is specific to them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: decimal.Decimal, never float64, so repeated ticks do not drift
  - ItemID: stable identifier assigned when a list element is created
  - Expense, Loan, Investment: list elements shared by several paths

DESIGN PRINCIPLES:
  1. Purity: no I/O, no clocks, no global randomness (see action.go: Turn)
  2. Precision: decimal.Decimal for every currency amount
  3. Copy-on-write: engines clone state before mutating it
  4. Stable addressing: list elements carry ids, indices are a fallback

SEE ALSO:
  - finance.go: EMI and compound growth
  - action.go: Action table, funds guard
  - errors.go: Error taxonomy
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY
// =============================================================================

// Money is a currency amount.
type Money = decimal.Decimal

// D converts a float literal to Money. Intended for constants and tests.
func D(v float64) Money { return decimal.NewFromFloat(v) }

// DI converts an integer to Money.
func DI(v int64) Money { return decimal.NewFromInt(v) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

// ItemID identifies one element of an expense, loan or investment list.
type ItemID string

// ItemRef addresses a list element. ID wins when both are set; Index is kept
// for clients that still address elements by position.
type ItemRef struct {
	ID    ItemID `json:"id,omitempty"`
	Index *int   `json:"index,omitempty"`
}

// =============================================================================
// EXPENSE
// =============================================================================

type Expense struct {
	ID        ItemID `json:"id"`
	Category  string `json:"category"`
	Amount    Money  `json:"amount"`
	Recurring bool   `json:"recurring"`
}

// ExpenseInput is the payload shape for creating or replacing an expense.
type ExpenseInput struct {
	Category  string `json:"category"`
	Amount    Money  `json:"amount"`
	Recurring bool   `json:"recurring"`
}

// =============================================================================
// LOAN
// =============================================================================

// Loan is an amortizing loan. RemainingAmount only ever decreases.
type Loan struct {
	ID              ItemID    `json:"id"`
	Amount          Money     `json:"amount"`
	InterestRate    Money     `json:"interest_rate"` // annual percent, e.g. 12 = 12%
	Term            int       `json:"term"`          // years
	RemainingAmount Money     `json:"remaining_amount"`
	MonthlyPayment  Money     `json:"monthly_payment"`
	StartDate       time.Time `json:"start_date"`
}

// Active reports whether the loan still has a balance to repay.
func (l Loan) Active() bool { return l.RemainingAmount.IsPositive() }

// =============================================================================
// INVESTMENT
// =============================================================================

type InvestmentType string

const (
	InvestStocks     InvestmentType = "stocks"
	InvestBonds      InvestmentType = "bonds"
	InvestRealEstate InvestmentType = "real_estate"
	InvestGold       InvestmentType = "gold"
	InvestIndexFunds InvestmentType = "index_funds"
)

// InvestmentTypes lists the accepted investment types in display order.
var InvestmentTypes = []InvestmentType{
	InvestStocks, InvestBonds, InvestRealEstate, InvestGold, InvestIndexFunds,
}

// Valid reports whether t is one of the known investment types.
func (t InvestmentType) Valid() bool {
	for _, known := range InvestmentTypes {
		if t == known {
			return true
		}
	}
	return false
}

type Investment struct {
	ID             ItemID         `json:"id"`
	Type           InvestmentType `json:"type"`
	Amount         Money          `json:"amount"`
	PurchaseDate   time.Time      `json:"purchase_date"`
	PurchaseMonth  int            `json:"purchase_month"`  // game progress at purchase
	ExpectedReturn Money          `json:"expected_return"` // annual fraction, e.g. 0.08
}

// =============================================================================
// CLONING
// =============================================================================

// CloneSlice copies a slice of value types. A nil input stays nil.
func CloneSlice[T any](in []T) []T {
	if in == nil {
		return nil
	}
	out := make([]T, len(in))
	copy(out, in)
	return out
}
