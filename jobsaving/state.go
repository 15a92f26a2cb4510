// Package jobsaving implements the salaried-saving path: a monthly salary,
// a list of expenses, optional loans, and savings that absorb the difference.
package jobsaving

import "github.com/warp/finpath/generic"

// Salary bounds for a freshly started game.
var (
	MinStartingSalary = generic.DI(10000)
	MaxStartingSalary = generic.DI(250000)
)

// State is the job-saving subtree of a game.
type State struct {
	Salary   generic.Money     `json:"salary"`
	Savings  generic.Money     `json:"savings"`
	Expenses []generic.Expense `json:"expenses"`
	Loans    []generic.Loan    `json:"loans"`
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	c.Expenses = generic.CloneSlice(s.Expenses)
	c.Loans = generic.CloneSlice(s.Loans)
	return &c
}

// Funds exposes savings to the overdraw guard.
func (s *State) Funds() []generic.Fund {
	return []generic.Fund{{Name: "savings", Balance: s.Savings}}
}

var _ generic.State[*State] = (*State)(nil)
