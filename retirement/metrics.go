package retirement

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/warp/finpath/generic"
)

// MaxProjectionYears caps the forward simulation in ComputeMetrics.
const MaxProjectionYears = 100

var (
	// withdrawalRate is the 4% rule: a portfolio of 25x annual expenses
	// sustains them indefinitely.
	withdrawalRate = decimal.NewFromFloat(0.04)
	targetMultiple = decimal.NewFromInt(25)
	hundred        = decimal.NewFromInt(100)
)

type Metrics struct {
	SavingsRate               decimal.NullDecimal `json:"savings_rate"`
	MonthlyExpenses           generic.Money       `json:"monthly_expenses"`
	MonthlySavings            generic.Money       `json:"monthly_savings"`
	TargetRetirementSavings   generic.Money       `json:"target_retirement_savings"`
	PortfolioValue            generic.Money       `json:"portfolio_value"`
	AverageReturn             generic.Money       `json:"average_return"`
	YearsToRetirement         int                 `json:"years_to_retirement"`
	TargetReachable           bool                `json:"target_reachable"`
	ProjectedRetirementAge    int                 `json:"projected_retirement_age"`
	ProjectedRetirementIncome generic.Money       `json:"projected_retirement_income"`
	RetirementReadiness       decimal.NullDecimal `json:"retirement_readiness"`
	OnTrack                   bool                `json:"on_track"`
}

// ComputeMetrics projects retirement readiness from s without modifying it.
func ComputeMetrics(s *State) Metrics {
	expenses := generic.RecurringTotal(s.Expenses)
	monthlySavings := s.Salary.Sub(expenses)
	target := expenses.Mul(twelve).Mul(targetMultiple)
	portfolio := s.Portfolio()
	avg := averageReturn(s.Investments, portfolio)

	years, reached := yearsToTarget(portfolio, target, avg, monthlySavings.Mul(twelve))
	projectedAge := s.Age + years

	return Metrics{
		SavingsRate:               generic.Percent(monthlySavings, s.Salary),
		MonthlyExpenses:           expenses,
		MonthlySavings:            monthlySavings,
		TargetRetirementSavings:   target,
		PortfolioValue:            portfolio,
		AverageReturn:             avg,
		YearsToRetirement:         years,
		TargetReachable:           reached,
		ProjectedRetirementAge:    projectedAge,
		ProjectedRetirementIncome: target.Mul(withdrawalRate),
		RetirementReadiness:       generic.Percent(portfolio, target),
		OnTrack:                   reached && projectedAge <= s.RetirementAge,
	}
}

// averageReturn is the amount-weighted expected return over the whole
// portfolio, savings included.
func averageReturn(investments []generic.Investment, portfolio generic.Money) generic.Money {
	if !portfolio.IsPositive() {
		return decimal.Zero
	}
	weighted := generic.Sum(investments, func(i generic.Investment) generic.Money {
		return i.Amount.Mul(i.ExpectedReturn)
	})
	return weighted.Div(portfolio)
}

// yearsToTarget simulates the portfolio a year at a time until it covers
// target, for at most MaxProjectionYears.
func yearsToTarget(portfolio, target, rate, annualSavings generic.Money) (int, bool) {
	growth := decimal.NewFromInt(1).Add(rate)
	sim := portfolio
	years := 0
	for years < MaxProjectionYears && sim.LessThan(target) {
		sim = generic.Cents(sim.Mul(growth).Add(annualSavings))
		years++
	}
	return years, !sim.LessThan(target)
}

// =============================================================================
// PLANNING TOOLS
// =============================================================================

// Slice is one asset class of a recommended allocation.
type Slice struct {
	Percentage int           `json:"percentage"`
	Amount     generic.Money `json:"amount"`
}

type Allocation struct {
	Stocks       Slice                                    `json:"stocks"`
	Bonds        Slice                                    `json:"bonds"`
	Alternatives Slice                                    `json:"alternatives"`
	Current      map[generic.InvestmentType]generic.Money `json:"current"`
}

// RecommendAllocation splits the portfolio by risk tolerance, 1 (low) to 10
// (high), and reports the current split by investment type.
func RecommendAllocation(investments []generic.Investment, risk int) (Allocation, error) {
	if risk < 1 || risk > 10 {
		return Allocation{}, generic.Invalid("risk", fmt.Sprintf("must be between 1 and 10, got %d", risk))
	}
	stocks := min(80, risk*8)
	bonds := max(10, 100-risk*8-10)
	const alternatives = 10

	total := generic.Sum(investments, func(i generic.Investment) generic.Money { return i.Amount })
	slice := func(pct int) Slice {
		return Slice{Percentage: pct, Amount: total.Mul(decimal.NewFromInt(int64(pct))).Div(hundred)}
	}

	current := make(map[generic.InvestmentType]generic.Money)
	for _, inv := range investments {
		current[inv.Type] = current[inv.Type].Add(inv.Amount)
	}

	return Allocation{
		Stocks:       slice(stocks),
		Bonds:        slice(bonds),
		Alternatives: slice(alternatives),
		Current:      current,
	}, nil
}

type Projection struct {
	InitialAmount    generic.Money `json:"initial_amount"`
	FinalAmount      generic.Money `json:"final_amount"`
	Growth           generic.Money `json:"growth"`
	AnnualizedReturn generic.Money `json:"annualized_return"`
}

// ProjectInvestment compounds inv yearly at its expected return, adding
// twelve monthly contributions each year. Growth excludes the contributions.
func ProjectInvestment(inv generic.Investment, years int, monthlyContribution generic.Money) Projection {
	yearly := monthlyContribution.Mul(twelve)
	growth := decimal.NewFromInt(1).Add(inv.ExpectedReturn)

	final := inv.Amount
	for range max(0, years) {
		final = generic.Cents(final.Mul(growth).Add(yearly))
	}

	contributed := yearly.Mul(decimal.NewFromInt(int64(max(0, years))))
	return Projection{
		InitialAmount:    inv.Amount,
		FinalAmount:      final,
		Growth:           final.Sub(inv.Amount).Sub(contributed),
		AnnualizedReturn: inv.ExpectedReturn.Mul(hundred),
	}
}
