package generic

import (
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Resolve returns the position ref points at in items.
func Resolve[T any](list string, items []T, idOf func(T) ItemID, ref ItemRef) (int, error) {
	if ref.ID != "" {
		for i, it := range items {
			if idOf(it) == ref.ID {
				return i, nil
			}
		}
		return -1, &InvalidIndexError{List: list, Ref: ref, Count: len(items)}
	}
	if ref.Index == nil || *ref.Index < 0 || *ref.Index >= len(items) {
		return -1, &InvalidIndexError{List: list, Ref: ref, Count: len(items)}
	}
	return *ref.Index, nil
}

// =============================================================================
// EXPENSES
// =============================================================================

func expenseID(e Expense) ItemID { return e.ID }

func (in ExpenseInput) validate() error {
	if strings.TrimSpace(in.Category) == "" {
		return Invalid("category", "is required")
	}
	return RequireNonNegative("amount", in.Amount)
}

// ModifyExpenseInput replaces the expense ref points at.
type ModifyExpenseInput struct {
	ItemRef
	Expense ExpenseInput `json:"expense"`
}

// AddExpense appends a new expense.
func AddExpense(list []Expense, in ExpenseInput, id ItemID) ([]Expense, error) {
	if err := in.validate(); err != nil {
		return list, err
	}
	return append(list, Expense{
		ID:        id,
		Category:  strings.TrimSpace(in.Category),
		Amount:    in.Amount,
		Recurring: in.Recurring,
	}), nil
}

// RemoveExpense drops the expense ref points at, keeping the order of the rest.
func RemoveExpense(list []Expense, ref ItemRef) ([]Expense, error) {
	i, err := Resolve("expenses", list, expenseID, ref)
	if err != nil {
		return list, err
	}
	return slices.Delete(list, i, i+1), nil
}

// ModifyExpense replaces the expense ref points at. The id is preserved.
func ModifyExpense(list []Expense, in ModifyExpenseInput) ([]Expense, error) {
	i, err := Resolve("expenses", list, expenseID, in.ItemRef)
	if err != nil {
		return list, err
	}
	if err := in.Expense.validate(); err != nil {
		return list, err
	}
	list[i] = Expense{
		ID:        list[i].ID,
		Category:  strings.TrimSpace(in.Expense.Category),
		Amount:    in.Expense.Amount,
		Recurring: in.Expense.Recurring,
	}
	return list, nil
}

// RecurringTotal sums the amounts of recurring expenses.
func RecurringTotal(list []Expense) Money {
	return Sum(list, func(e Expense) Money {
		if !e.Recurring {
			return decimal.Zero
		}
		return e.Amount
	})
}

// =============================================================================
// LOANS
// =============================================================================

// PaymentTolerance is how far a client-proposed installment may stray from
// the recomputed EMI before the application is rejected.
var PaymentTolerance = decimal.NewFromInt(1)

// MaxLoanTermYears bounds the amortization schedule.
const MaxLoanTermYears = 40

// LoanApplication is the payload for opening a loan. MonthlyPayment is
// optional and only checked against the recomputed installment.
type LoanApplication struct {
	Amount         Money               `json:"amount"`
	InterestRate   Money               `json:"interest_rate"`
	Term           int                 `json:"term"`
	MonthlyPayment decimal.NullDecimal `json:"monthly_payment"`
}

// LoanPayment is the payload for a manual repayment.
type LoanPayment struct {
	ItemRef
	Amount Money `json:"amount"`
}

func loanID(l Loan) ItemID { return l.ID }

// OpenLoan validates an application and builds the loan. The stored
// installment is always the server-side EMI, rounded up to the cent.
func OpenLoan(app LoanApplication, id ItemID, now time.Time) (Loan, error) {
	if err := RequirePositive("amount", app.Amount); err != nil {
		return Loan{}, err
	}
	if err := RequireNonNegative("interest_rate", app.InterestRate); err != nil {
		return Loan{}, err
	}
	if app.Term <= 0 || app.Term > MaxLoanTermYears {
		return Loan{}, Invalid("term", "must be between 1 and 40 years")
	}

	emi := EMI(app.Amount, app.InterestRate, app.Term)
	if app.MonthlyPayment.Valid && app.MonthlyPayment.Decimal.Sub(emi).Abs().GreaterThan(PaymentTolerance) {
		return Loan{}, Invalid("monthly_payment", "does not match computed installment "+emi.StringFixed(2))
	}

	return Loan{
		ID:              id,
		Amount:          app.Amount,
		InterestRate:    app.InterestRate,
		Term:            app.Term,
		RemainingAmount: app.Amount,
		MonthlyPayment:  emi.RoundCeil(2),
		StartDate:       now,
	}, nil
}

// PayLoan applies a manual payment to the loan p points at and returns the
// amount actually applied. Overpayment is clamped to the remaining balance.
func PayLoan(loans []Loan, p LoanPayment) (Money, error) {
	if err := RequirePositive("amount", p.Amount); err != nil {
		return decimal.Zero, err
	}
	i, err := Resolve("loans", loans, loanID, p.ItemRef)
	if err != nil {
		return decimal.Zero, err
	}
	applied := decimal.Min(p.Amount, loans[i].RemainingAmount)
	loans[i].RemainingAmount = loans[i].RemainingAmount.Sub(applied)
	return applied, nil
}

// AmortizeLoans applies one month of scheduled installments to every active
// loan and returns the total paid. Each payment is computed against the
// loan's balance before the tick.
func AmortizeLoans(loans []Loan) Money {
	total := decimal.Zero
	for i := range loans {
		if !loans[i].Active() {
			continue
		}
		payment := decimal.Min(loans[i].MonthlyPayment, loans[i].RemainingAmount)
		loans[i].RemainingAmount = decimal.Max(decimal.Zero, loans[i].RemainingAmount.Sub(payment))
		total = total.Add(payment)
	}
	return total
}

// ScheduledPayments sums the installments of active loans.
func ScheduledPayments(loans []Loan) Money {
	return Sum(loans, func(l Loan) Money {
		if !l.Active() {
			return decimal.Zero
		}
		return l.MonthlyPayment
	})
}
