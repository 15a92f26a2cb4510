// Package business implements the business-typhoon path: a company with
// capital, staff, inventory and market share that sells stock every month
// and settles its accrued taxes quarterly.
package business

import "github.com/warp/finpath/generic"

// Details is the company's balance sheet and operating figures.
type Details struct {
	Capital         generic.Money `json:"capital"`
	Employees       int           `json:"employees"`
	Revenue         generic.Money `json:"revenue"`  // cumulative
	Expenses        generic.Money `json:"expenses"` // monthly recurring
	Inventory       int64         `json:"inventory"`
	MarketingBudget generic.Money `json:"marketing_budget"`
	MarketShare     generic.Money `json:"market_share"` // percent, no upper bound
	TaxLiability    generic.Money `json:"tax_liability"`
	TaxesPaid       generic.Money `json:"taxes_paid"`
}

// share is the market share used for revenue. An unset share counts as 1%.
func (d Details) share() generic.Money {
	if d.MarketShare.IsZero() {
		return generic.DI(1)
	}
	return d.MarketShare
}

// MonthReport records what the last tick did, for display.
type MonthReport struct {
	Month            int           `json:"month"`
	PotentialRevenue generic.Money `json:"potential_revenue"`
	Revenue          generic.Money `json:"revenue"`
	SoldUnits        int64         `json:"sold_units"`
	MarketFactor     generic.Money `json:"market_factor"`
	LoanPayments     generic.Money `json:"loan_payments"`
	TaxAccrued       generic.Money `json:"tax_accrued"`
	TaxesPaid        generic.Money `json:"taxes_paid"`
}

// State is the business-typhoon subtree of a game.
type State struct {
	Details   Details        `json:"business_details"`
	Loans     []generic.Loan `json:"loans"`
	LastMonth *MonthReport   `json:"last_month,omitempty"`
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	c.Loans = generic.CloneSlice(s.Loans)
	if s.LastMonth != nil {
		r := *s.LastMonth
		c.LastMonth = &r
	}
	return &c
}

// Funds exposes capital to the overdraw guard.
func (s *State) Funds() []generic.Fund {
	return []generic.Fund{{Name: "capital", Balance: s.Details.Capital}}
}

var _ generic.State[*State] = (*State)(nil)
