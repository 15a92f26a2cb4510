package jobsaving_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finpath/generic"
	"github.com/warp/finpath/jobsaving"
)

// sequentialIDs returns deterministic item ids: id-1, id-2, ...
func sequentialIDs() func() generic.ItemID {
	n := 0
	return func() generic.ItemID {
		n++
		return generic.ItemID(fmt.Sprintf("id-%d", n))
	}
}

func turn() generic.Turn {
	return generic.Turn{
		Now:   time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		NewID: sequentialIDs(),
	}
}

func apply(t *testing.T, s *jobsaving.State, tr generic.Turn, action generic.Action, payload any) *jobsaving.State {
	t.Helper()
	var raw []byte
	if payload != nil {
		raw = generic.EncodePayload(payload)
	}
	out, err := jobsaving.Apply(s, tr, action, raw)
	require.NoError(t, err)
	return out
}

func TestAdvanceMonth_SavesSalaryMinusRecurring(t *testing.T) {
	// GIVEN: Salary 50000 and one recurring expense of 15000, no loans
	// WHEN: One month passes
	// THEN: Savings grow by exactly 35000

	s := &jobsaving.State{
		Salary:   generic.DI(50000),
		Savings:  generic.DI(1000),
		Expenses: []generic.Expense{{ID: "rent", Category: "Rent", Amount: generic.DI(15000), Recurring: true}},
	}

	out := apply(t, s, turn(), generic.AdvanceMonth, nil)

	assert.True(t, out.Savings.Sub(s.Savings).Equal(generic.DI(35000)), "got %s", out.Savings)
}

func TestAdvanceMonth_IgnoresOneOffExpenses(t *testing.T) {
	s := &jobsaving.State{
		Salary: generic.DI(40000),
		Expenses: []generic.Expense{
			{ID: "rent", Category: "Rent", Amount: generic.DI(10000), Recurring: true},
			{ID: "tv", Category: "TV", Amount: generic.DI(25000), Recurring: false},
		},
	}

	out := apply(t, s, turn(), generic.AdvanceMonth, nil)

	assert.True(t, out.Savings.Equal(generic.DI(30000)), "got %s", out.Savings)
}

func TestAdvanceMonth_PaysLoanInstallments(t *testing.T) {
	s := &jobsaving.State{
		Salary: generic.DI(50000),
		Loans: []generic.Loan{
			{ID: "a", RemainingAmount: generic.DI(10000), MonthlyPayment: generic.DI(4000)},
			{ID: "b", RemainingAmount: generic.DI(1500), MonthlyPayment: generic.DI(4000)},
			{ID: "done", RemainingAmount: generic.DI(0), MonthlyPayment: generic.DI(4000)},
		},
	}

	out := apply(t, s, turn(), generic.AdvanceMonth, nil)

	// 4000 on a, the 1500 remaining on b, nothing on the repaid loan.
	assert.True(t, out.Savings.Equal(generic.DI(44500)), "got %s", out.Savings)
	assert.True(t, out.Loans[0].RemainingAmount.Equal(generic.DI(6000)))
	assert.True(t, out.Loans[1].RemainingAmount.IsZero())
	assert.True(t, out.Loans[2].RemainingAmount.IsZero())
}

func TestAdvanceMonth_MayRunIntoDebt(t *testing.T) {
	s := &jobsaving.State{
		Salary:   generic.DI(10000),
		Expenses: []generic.Expense{{ID: "rent", Category: "Rent", Amount: generic.DI(12000), Recurring: true}},
	}

	out := apply(t, s, turn(), generic.AdvanceMonth, nil)

	assert.True(t, out.Savings.Equal(generic.DI(-2000)))
}

func TestExpenses_AddRemoveModifyByID(t *testing.T) {
	s := &jobsaving.State{Salary: generic.DI(50000)}
	tr := turn()

	s = apply(t, s, tr, jobsaving.ActionAddExpense, generic.ExpenseInput{Category: "Rent", Amount: generic.DI(15000), Recurring: true})
	s = apply(t, s, tr, jobsaving.ActionAddExpense, generic.ExpenseInput{Category: "Food", Amount: generic.DI(5000), Recurring: true})
	require.Len(t, s.Expenses, 2)
	assert.Equal(t, generic.ItemID("id-1"), s.Expenses[0].ID)
	assert.Equal(t, generic.ItemID("id-2"), s.Expenses[1].ID)

	s = apply(t, s, tr, jobsaving.ActionModifyExpense, generic.ModifyExpenseInput{
		ItemRef: generic.ItemRef{ID: "id-2"},
		Expense: generic.ExpenseInput{Category: "Groceries", Amount: generic.DI(4500), Recurring: true},
	})
	assert.Equal(t, "Groceries", s.Expenses[1].Category)

	s = apply(t, s, tr, jobsaving.ActionRemoveExpense, generic.ItemRef{ID: "id-1"})
	require.Len(t, s.Expenses, 1)
	assert.Equal(t, generic.ItemID("id-2"), s.Expenses[0].ID)
}

func TestRemoveExpense_OutOfRange(t *testing.T) {
	s := &jobsaving.State{Expenses: []generic.Expense{{ID: "rent", Category: "Rent", Amount: generic.DI(1)}}}
	i := 4

	out, err := jobsaving.Apply(s, turn(), jobsaving.ActionRemoveExpense, generic.EncodePayload(generic.ItemRef{Index: &i}))

	assert.ErrorIs(t, err, generic.ErrInvalidIndex)
	assert.Same(t, s, out)
	assert.Len(t, s.Expenses, 1)
}

func TestAddSavings(t *testing.T) {
	s := &jobsaving.State{Savings: generic.DI(100)}

	out := apply(t, s, turn(), jobsaving.ActionAddSavings, jobsaving.AmountInput{Amount: generic.DI(50)})
	assert.True(t, out.Savings.Equal(generic.DI(150)))

	out = apply(t, out, turn(), jobsaving.ActionAddSavings, jobsaving.AmountInput{Amount: generic.DI(-150)})
	assert.True(t, out.Savings.IsZero())

	_, err := jobsaving.Apply(out, turn(), jobsaving.ActionAddSavings, generic.EncodePayload(jobsaving.AmountInput{Amount: generic.DI(-1)}))
	assert.ErrorIs(t, err, generic.ErrInsufficientFunds)

	_, err = jobsaving.Apply(out, turn(), jobsaving.ActionAddSavings, generic.EncodePayload(jobsaving.AmountInput{}))
	assert.ErrorIs(t, err, generic.ErrInvalidPayload)
}

func TestLoan_ApplyCreditsSavingsAndPayClamps(t *testing.T) {
	// GIVEN: A player with no savings
	// WHEN: They borrow 100000 at 12% over one year and then overpay it
	// THEN: Proceeds land in savings; only the remaining balance is charged

	s := &jobsaving.State{Salary: generic.DI(50000)}
	tr := turn()

	s = apply(t, s, tr, jobsaving.ActionApplyForLoan, generic.LoanApplication{
		Amount: generic.DI(100000), InterestRate: generic.DI(12), Term: 1,
	})
	require.Len(t, s.Loans, 1)
	assert.True(t, s.Savings.Equal(generic.DI(100000)))
	assert.True(t, s.Loans[0].MonthlyPayment.Equal(generic.D(8884.88)))
	assert.Equal(t, tr.Now, s.Loans[0].StartDate)

	s = apply(t, s, tr, jobsaving.ActionPayLoan, generic.LoanPayment{
		ItemRef: generic.ItemRef{ID: s.Loans[0].ID},
		Amount:  generic.DI(150000),
	})
	assert.True(t, s.Loans[0].RemainingAmount.IsZero())
	assert.True(t, s.Savings.IsZero(), "got %s", s.Savings)
}

func TestPayLoan_CannotOverdrawSavings(t *testing.T) {
	s := &jobsaving.State{
		Savings: generic.DI(100),
		Loans:   []generic.Loan{{ID: "l", RemainingAmount: generic.DI(5000), MonthlyPayment: generic.DI(500)}},
	}

	out, err := jobsaving.Apply(s, turn(), jobsaving.ActionPayLoan, generic.EncodePayload(generic.LoanPayment{
		ItemRef: generic.ItemRef{ID: "l"},
		Amount:  generic.DI(1000),
	}))

	var fundsErr *generic.InsufficientFundsError
	require.ErrorAs(t, err, &fundsErr)
	assert.Equal(t, "savings", fundsErr.Fund)
	assert.Same(t, s, out)
	assert.True(t, s.Loans[0].RemainingAmount.Equal(generic.DI(5000)), "input must not change")
}

func TestApplyForLoan_RejectsTamperedInstallment(t *testing.T) {
	s := &jobsaving.State{}
	payload := []byte(`{"amount":"100000","interest_rate":"12","term":1,"monthly_payment":"1"}`)

	_, err := jobsaving.Apply(s, turn(), jobsaving.ActionApplyForLoan, payload)

	assert.ErrorIs(t, err, generic.ErrInvalidPayload)
}

func TestUnknownAction(t *testing.T) {
	_, err := jobsaving.Apply(&jobsaving.State{}, turn(), "hire-employees", nil)

	var actionErr *generic.InvalidActionError
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, jobsaving.Path, actionErr.Path)
}
