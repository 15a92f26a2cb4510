package generic_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/finpath/generic"
)

func idx(i int) *int { return &i }

func threeExpenses() []generic.Expense {
	return []generic.Expense{
		{ID: "rent", Category: "Rent", Amount: generic.DI(15000), Recurring: true},
		{ID: "food", Category: "Food", Amount: generic.DI(7500), Recurring: true},
		{ID: "trip", Category: "Trip", Amount: generic.DI(20000), Recurring: false},
	}
}

// =============================================================================
// EXPENSES
// =============================================================================

func TestRemoveExpense_ByIDSurvivesEarlierRemoval(t *testing.T) {
	// GIVEN: A client holding ids from an old snapshot
	// WHEN: Two removals arrive, the first shifting positions
	// THEN: The second still removes the element it meant

	list := threeExpenses()
	list, err := generic.RemoveExpense(list, generic.ItemRef{ID: "rent"})
	require.NoError(t, err)
	list, err = generic.RemoveExpense(list, generic.ItemRef{ID: "trip"})
	require.NoError(t, err)

	require.Len(t, list, 1)
	assert.Equal(t, generic.ItemID("food"), list[0].ID)
}

func TestRemoveExpense_InvalidIndex(t *testing.T) {
	refs := []generic.ItemRef{
		{Index: idx(3)},
		{Index: idx(-1)},
		{},
		{ID: "missing"},
	}
	for _, ref := range refs {
		_, err := generic.RemoveExpense(threeExpenses(), ref)
		assert.ErrorIs(t, err, generic.ErrInvalidIndex)

		var idxErr *generic.InvalidIndexError
		assert.ErrorAs(t, err, &idxErr)
	}
}

func TestModifyExpense_KeepsID(t *testing.T) {
	list, err := generic.ModifyExpense(threeExpenses(), generic.ModifyExpenseInput{
		ItemRef: generic.ItemRef{Index: idx(1)},
		Expense: generic.ExpenseInput{Category: "Groceries", Amount: generic.DI(6000), Recurring: true},
	})
	require.NoError(t, err)

	assert.Equal(t, generic.ItemID("food"), list[1].ID)
	assert.Equal(t, "Groceries", list[1].Category)
	assert.True(t, list[1].Amount.Equal(generic.DI(6000)))
}

func TestAddExpense_RejectsNegativeAmount(t *testing.T) {
	_, err := generic.AddExpense(nil, generic.ExpenseInput{Category: "Refund", Amount: generic.DI(-100)}, "x")
	assert.ErrorIs(t, err, generic.ErrInvalidPayload)
}

func TestRecurringTotal(t *testing.T) {
	assert.True(t, generic.RecurringTotal(threeExpenses()).Equal(generic.DI(22500)))
	assert.True(t, generic.RecurringTotal(nil).IsZero())
}

// =============================================================================
// LOANS
// =============================================================================

func TestOpenLoan_RecomputesInstallment(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	loan, err := generic.OpenLoan(generic.LoanApplication{
		Amount:       generic.DI(100000),
		InterestRate: generic.DI(12),
		Term:         1,
	}, "loan-1", now)
	require.NoError(t, err)

	assert.True(t, loan.MonthlyPayment.Equal(generic.D(8884.88)), "got %s", loan.MonthlyPayment)
	assert.True(t, loan.RemainingAmount.Equal(generic.DI(100000)))
	assert.Equal(t, now, loan.StartDate)
}

func TestOpenLoan_RejectsMismatchedInstallment(t *testing.T) {
	_, err := generic.OpenLoan(generic.LoanApplication{
		Amount:         generic.DI(100000),
		InterestRate:   generic.DI(12),
		Term:           1,
		MonthlyPayment: decimal.NewNullDecimal(generic.DI(10)),
	}, "loan-1", time.Now())

	assert.ErrorIs(t, err, generic.ErrInvalidPayload)
}

func TestOpenLoan_AcceptsInstallmentWithinTolerance(t *testing.T) {
	_, err := generic.OpenLoan(generic.LoanApplication{
		Amount:         generic.DI(100000),
		InterestRate:   generic.DI(12),
		Term:           1,
		MonthlyPayment: decimal.NewNullDecimal(generic.D(8884.5)),
	}, "loan-1", time.Now())

	assert.NoError(t, err)
}

func TestPayLoan_ClampsOverpayment(t *testing.T) {
	loans := []generic.Loan{{ID: "l", RemainingAmount: generic.DI(500), MonthlyPayment: generic.DI(100)}}

	applied, err := generic.PayLoan(loans, generic.LoanPayment{ItemRef: generic.ItemRef{ID: "l"}, Amount: generic.DI(800)})
	require.NoError(t, err)

	assert.True(t, applied.Equal(generic.DI(500)))
	assert.True(t, loans[0].RemainingAmount.IsZero())
}

func TestAmortizeLoans_RemainingNeverIncreasesOrGoesNegative(t *testing.T) {
	loan, err := generic.OpenLoan(generic.LoanApplication{
		Amount: generic.DI(50000), InterestRate: generic.DI(9), Term: 1,
	}, "l", time.Now())
	require.NoError(t, err)
	loans := []generic.Loan{loan}

	prev := loans[0].RemainingAmount
	for month := 0; month < 24; month++ {
		paid := generic.AmortizeLoans(loans)
		cur := loans[0].RemainingAmount

		assert.False(t, cur.GreaterThan(prev), "month %d: remaining increased", month)
		assert.False(t, cur.IsNegative(), "month %d: remaining negative", month)
		assert.True(t, prev.Sub(cur).Equal(paid), "month %d: paid %s but balance moved %s", month, paid, prev.Sub(cur))
		prev = cur
	}
	assert.True(t, prev.IsZero(), "loan should be repaid after its term")
	assert.True(t, generic.AmortizeLoans(loans).IsZero(), "repaid loans charge nothing")
}

func TestErrorHelpers(t *testing.T) {
	assert.True(t, generic.IsClientError(&generic.InsufficientFundsError{Fund: "savings"}))
	assert.True(t, generic.IsClientError(&generic.InvalidActionError{Action: "x"}))
	assert.True(t, generic.IsNotFound(generic.ErrNoActivePath))
	assert.True(t, generic.IsConflict(errors.Join(errors.New("save"), generic.ErrConcurrentModification)))
	assert.False(t, generic.IsClientError(errors.New("disk full")))
}
