package jobsaving

import (
	"encoding/json"

	"github.com/warp/finpath/generic"
)

// Path is the path identifier this package serves.
const Path = "job-saving"

const (
	ActionAddExpense    generic.Action = "add-expense"
	ActionRemoveExpense generic.Action = "remove-expense"
	ActionModifyExpense generic.Action = "modify-expense"
	ActionAddSavings    generic.Action = "add-savings"
	ActionApplyForLoan  generic.Action = "apply-for-loan"
	ActionPayLoan       generic.Action = "pay-loan"
)

// AmountInput is the payload for add-savings.
type AmountInput struct {
	Amount generic.Money `json:"amount"`
}

var table = generic.Table[*State]{
	Path: Path,
	Handlers: map[generic.Action]generic.Handler[*State]{
		ActionAddExpense:    {Run: addExpense},
		ActionRemoveExpense: {Run: removeExpense},
		ActionModifyExpense: {Run: modifyExpense},
		// Negative amounts are withdrawals, so the guard applies.
		ActionAddSavings:     {Run: addSavings, Spends: true},
		ActionApplyForLoan:   {Run: applyForLoan},
		ActionPayLoan:        {Run: payLoan, Spends: true},
		generic.AdvanceMonth: {Run: advanceMonth},
	},
}

// Apply runs one action and returns the new state. s is not modified.
func Apply(s *State, t generic.Turn, action generic.Action, payload json.RawMessage) (*State, error) {
	return table.Apply(s, t, action, payload)
}

// Actions lists the supported actions.
func Actions() []generic.Action { return table.Actions() }

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

func addSavings(s *State, _ generic.Turn, raw json.RawMessage) error {
	in, err := generic.Decode[AmountInput](raw)
	if err != nil {
		return err
	}
	if in.Amount.IsZero() {
		return generic.Invalid("amount", "must not be zero")
	}
	s.Savings = s.Savings.Add(in.Amount)
	return nil
}

// applyForLoan credits the proceeds straight into savings.
func applyForLoan(s *State, t generic.Turn, raw json.RawMessage) error {
	app, err := generic.Decode[generic.LoanApplication](raw)
	if err != nil {
		return err
	}
	loan, err := generic.OpenLoan(app, t.ID(), t.Now)
	if err != nil {
		return err
	}
	s.Loans = append(s.Loans, loan)
	s.Savings = s.Savings.Add(loan.Amount)
	return nil
}

func payLoan(s *State, _ generic.Turn, raw json.RawMessage) error {
	p, err := generic.Decode[generic.LoanPayment](raw)
	if err != nil {
		return err
	}
	applied, err := generic.PayLoan(s.Loans, p)
	if err != nil {
		return err
	}
	s.Savings = s.Savings.Sub(applied)
	return nil
}

// advanceMonth books salary, recurring expenses and loan installments.
func advanceMonth(s *State, _ generic.Turn, _ json.RawMessage) error {
	expenses := generic.RecurringTotal(s.Expenses)
	installments := generic.AmortizeLoans(s.Loans)

	s.Savings = generic.Cents(s.Savings.Add(s.Salary).Sub(expenses).Sub(installments))
	return nil
}
