// Package retirement implements the early-retirement path: a salaried
// player invests savings, rides a noisy market and works toward a target
// retirement age.
package retirement

import "github.com/warp/finpath/generic"

// Bounds for the player-chosen retirement age.
const (
	MinRetirementAge = 40
	MaxRetirementAge = 70
)

// DefaultReturns is the expected annual return assumed for an investment
// whose payload does not name one.
var DefaultReturns = map[generic.InvestmentType]generic.Money{
	generic.InvestStocks:     generic.D(0.08),
	generic.InvestBonds:      generic.D(0.05),
	generic.InvestRealEstate: generic.D(0.07),
	generic.InvestGold:       generic.D(0.04),
	generic.InvestIndexFunds: generic.D(0.09),
}

// State is the early-retirement subtree of a game.
type State struct {
	Age           int                  `json:"age"`
	Salary        generic.Money        `json:"salary"`
	JobTitle      string               `json:"job_title"`
	Savings       generic.Money        `json:"savings"`
	Investments   []generic.Investment `json:"investments"`
	Expenses      []generic.Expense    `json:"expenses"`
	RetirementAge int                  `json:"retirement_age"`
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	c.Investments = generic.CloneSlice(s.Investments)
	c.Expenses = generic.CloneSlice(s.Expenses)
	return &c
}

// Funds exposes savings to the overdraw guard.
func (s *State) Funds() []generic.Fund {
	return []generic.Fund{{Name: "savings", Balance: s.Savings}}
}

// Portfolio is savings plus the current value of every investment.
func (s *State) Portfolio() generic.Money {
	return s.Savings.Add(generic.Sum(s.Investments, func(i generic.Investment) generic.Money { return i.Amount }))
}

var _ generic.State[*State] = (*State)(nil)
