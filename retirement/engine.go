package retirement

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/finpath/generic"
)

// Path is the path identifier this package serves.
const Path = "early-retirement"

const (
	ActionMakeInvestment   generic.Action = "make-investment"
	ActionSellInvestment   generic.Action = "sell-investment"
	ActionChangeJob        generic.Action = "change-job"
	ActionAddExpense       generic.Action = "add-expense"
	ActionRemoveExpense    generic.Action = "remove-expense"
	ActionModifyExpense    generic.Action = "modify-expense"
	ActionSetRetirementAge generic.Action = "set-retirement-age"
)

// Market factor bounds for a tick.
const (
	MarketFactorMin = 0.95
	MarketFactorMax = 1.08
)

// HoldingMonth is the length of a month when holding time is measured on
// the wall clock.
const HoldingMonth = 30 * 24 * time.Hour

var twelve = decimal.NewFromInt(12)

// =============================================================================
// PAYLOADS
// =============================================================================

// InvestmentOrder is the payload for make-investment. ExpectedReturn falls
// back to DefaultReturns for the type.
type InvestmentOrder struct {
	Type           generic.InvestmentType `json:"type"`
	Amount         generic.Money          `json:"amount"`
	ExpectedReturn decimal.NullDecimal    `json:"expected_return"`
}

type JobChange struct {
	NewSalary generic.Money `json:"new_salary"`
	JobTitle  string        `json:"job_title"`
}

type RetirementAgeInput struct {
	Age int `json:"age"`
}

var table = generic.Table[*State]{
	Path: Path,
	Handlers: map[generic.Action]generic.Handler[*State]{
		ActionMakeInvestment:   {Run: makeInvestment, Spends: true},
		ActionSellInvestment:   {Run: sellInvestment},
		ActionChangeJob:        {Run: changeJob},
		ActionAddExpense:       {Run: addExpense},
		ActionRemoveExpense:    {Run: removeExpense},
		ActionModifyExpense:    {Run: modifyExpense},
		ActionSetRetirementAge: {Run: setRetirementAge},
		generic.AdvanceMonth:   {Run: advanceMonth},
	},
}

// Apply runs one action and returns the new state. s is not modified.
func Apply(s *State, t generic.Turn, action generic.Action, payload json.RawMessage) (*State, error) {
	return table.Apply(s, t, action, payload)
}

// Actions lists the supported actions.
func Actions() []generic.Action { return table.Actions() }

// =============================================================================
// INVESTMENTS
// =============================================================================

func investmentID(i generic.Investment) generic.ItemID { return i.ID }

func makeInvestment(s *State, t generic.Turn, raw json.RawMessage) error {
	in, err := generic.Decode[InvestmentOrder](raw)
	if err != nil {
		return err
	}
	if !in.Type.Valid() {
		return generic.Invalid("type", fmt.Sprintf("unknown investment type %q", in.Type))
	}
	if err := generic.RequirePositive("amount", in.Amount); err != nil {
		return err
	}
	expected := DefaultReturns[in.Type]
	if in.ExpectedReturn.Valid {
		expected = in.ExpectedReturn.Decimal
	}

	s.Savings = s.Savings.Sub(in.Amount)
	s.Investments = append(s.Investments, generic.Investment{
		ID:             t.ID(),
		Type:           in.Type,
		Amount:         in.Amount,
		PurchaseDate:   t.Now,
		PurchaseMonth:  t.Month,
		ExpectedReturn: expected,
	})
	return nil
}

func sellInvestment(s *State, t generic.Turn, raw json.RawMessage) error {
	ref, err := generic.Decode[generic.ItemRef](raw)
	if err != nil {
		return err
	}
	i, err := generic.Resolve("investments", s.Investments, investmentID, ref)
	if err != nil {
		return err
	}

	s.Savings = s.Savings.Add(SaleValue(s.Investments[i], t))
	s.Investments = slices.Delete(s.Investments, i, i+1)
	return nil
}

// MonthsHeld measures how long inv has been held under the turn's holding
// mode. It is never negative.
func MonthsHeld(inv generic.Investment, t generic.Turn) generic.Money {
	var months generic.Money
	switch t.Holding {
	case generic.HoldingGameMonths:
		months = decimal.NewFromInt(int64(t.Month - inv.PurchaseMonth))
	default:
		elapsed := t.Now.Sub(inv.PurchaseDate)
		months = decimal.NewFromFloat(float64(elapsed) / float64(HoldingMonth))
	}
	return decimal.Max(decimal.Zero, months)
}

// SaleValue is amount·(1 + expected_return·monthsHeld/12), to the cent.
func SaleValue(inv generic.Investment, t generic.Turn) generic.Money {
	gain := inv.ExpectedReturn.Mul(MonthsHeld(inv, t)).Div(twelve)
	return generic.Cents(inv.Amount.Mul(decimal.NewFromInt(1).Add(gain)))
}

// =============================================================================
// CAREER AND EXPENSES
// =============================================================================

// changeJob replaces the salary. A blank title keeps the current one.
func changeJob(s *State, _ generic.Turn, raw json.RawMessage) error {
	in, err := generic.Decode[JobChange](raw)
	if err != nil {
		return err
	}
	if err := generic.RequirePositive("new_salary", in.NewSalary); err != nil {
		return err
	}
	s.Salary = in.NewSalary
	if title := strings.TrimSpace(in.JobTitle); title != "" {
		s.JobTitle = title
	}
	return nil
}

func setRetirementAge(s *State, _ generic.Turn, raw json.RawMessage) error {
	in, err := generic.Decode[RetirementAgeInput](raw)
	if err != nil {
		return err
	}
	if in.Age < MinRetirementAge || in.Age > MaxRetirementAge {
		return generic.Invalid("age", fmt.Sprintf("must be between %d and %d", MinRetirementAge, MaxRetirementAge))
	}
	s.RetirementAge = in.Age
	return nil
}

func addExpense(s *State, t generic.Turn, raw json.RawMessage) error {
	in, err := generic.Decode[generic.ExpenseInput](raw)
	if err != nil {
		return err
	}
	s.Expenses, err = generic.AddExpense(s.Expenses, in, t.ID())
	return err
}

func removeExpense(s *State, _ generic.Turn, raw json.RawMessage) error {
	ref, err := generic.Decode[generic.ItemRef](raw)
	if err != nil {
		return err
	}
	s.Expenses, err = generic.RemoveExpense(s.Expenses, ref)
	return err
}

func modifyExpense(s *State, _ generic.Turn, raw json.RawMessage) error {
	in, err := generic.Decode[generic.ModifyExpenseInput](raw)
	if err != nil {
		return err
	}
	s.Expenses, err = generic.ModifyExpense(s.Expenses, in)
	return err
}

// =============================================================================
// MONTH TICK
// =============================================================================

// advanceMonth books salary and expenses, then moves every investment in two
// separate steps: its own expected monthly return, then one market factor
// shared by the whole portfolio.
func advanceMonth(s *State, t generic.Turn, _ json.RawMessage) error {
	if t.RNG == nil {
		return errors.New("retirement: advance-month needs a random source")
	}

	s.Savings = generic.Cents(s.Savings.Add(s.Salary).Sub(generic.RecurringTotal(s.Expenses)))

	for i := range s.Investments {
		inv := &s.Investments[i]
		inv.Amount = generic.CompoundGrowth(inv.Amount, inv.ExpectedReturn, 1)
	}

	factor := generic.Uniform(t.RNG, MarketFactorMin, MarketFactorMax)
	for i := range s.Investments {
		inv := &s.Investments[i]
		inv.Amount = generic.Cents(inv.Amount.Mul(factor))
	}

	if t.NextMonth()%12 == 0 {
		s.Age++
	}
	return nil
}
