package jobsaving

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/finpath/generic"
)

// Status is the overall financial-health label.
type Status string

const (
	StatusHealthy          Status = "Healthy"
	StatusModerate         Status = "Moderate"
	StatusNeedsImprovement Status = "Needs Improvement"
)

// Suggestion proposes trimming one expense by ten percent.
type Suggestion struct {
	Category        string        `json:"category"`
	CurrentAmount   generic.Money `json:"current_amount"`
	TargetReduction generic.Money `json:"target_reduction"`
	NewAmount       generic.Money `json:"new_amount"`
}

// Metrics is the read-only projection of a job-saving state.
// Ratios are null when their divisor is zero.
type Metrics struct {
	SavingsPercentage   decimal.NullDecimal `json:"savings_percentage"`
	MonthlyExpenses     generic.Money       `json:"monthly_expenses"`
	MonthlySurplus      generic.Money       `json:"monthly_surplus"`
	SurplusPercentage   decimal.NullDecimal `json:"surplus_percentage"`
	TotalEMI            generic.Money       `json:"total_emi"`
	EMIToIncomeRatio    decimal.NullDecimal `json:"emi_to_income_ratio"`
	EmergencyFundMonths decimal.NullDecimal `json:"emergency_fund_months"`
	Status              Status              `json:"status"`
	Suggestions         []Suggestion        `json:"suggestions"`
}

var (
	tenPercent = decimal.NewFromFloat(0.1)
	zero       = decimal.Zero
)

// ComputeMetrics derives health indicators from s without modifying it.
func ComputeMetrics(s *State) Metrics {
	expenses := generic.RecurringTotal(s.Expenses)
	surplus := s.Salary.Sub(expenses)
	emi := generic.ScheduledPayments(s.Loans)

	m := Metrics{
		SavingsPercentage:   generic.Percent(s.Savings, s.Salary),
		MonthlyExpenses:     expenses,
		MonthlySurplus:      surplus,
		SurplusPercentage:   generic.Percent(surplus, s.Salary),
		TotalEMI:            emi,
		EMIToIncomeRatio:    generic.Percent(emi, s.Salary),
		EmergencyFundMonths: generic.Ratio(s.Savings, expenses),
		Suggestions:         SuggestReductions(s.Expenses),
	}
	m.Status = status(m)
	return m
}

func status(m Metrics) Status {
	savings := valueOr(m.SavingsPercentage, zero)
	emi := valueOr(m.EMIToIncomeRatio, zero)
	// No recurring expenses means any fund covers them indefinitely.
	cover := valueOr(m.EmergencyFundMonths, decimal.NewFromInt(1_000_000))

	switch {
	case savings.GreaterThanOrEqual(decimal.NewFromInt(20)) &&
		emi.LessThanOrEqual(decimal.NewFromInt(40)) &&
		cover.GreaterThanOrEqual(decimal.NewFromInt(3)):
		return StatusHealthy
	case savings.GreaterThanOrEqual(decimal.NewFromInt(10)) &&
		emi.LessThanOrEqual(decimal.NewFromInt(50)) &&
		cover.GreaterThanOrEqual(decimal.NewFromInt(1)):
		return StatusModerate
	default:
		return StatusNeedsImprovement
	}
}

func valueOr(n decimal.NullDecimal, fallback decimal.Decimal) decimal.Decimal {
	if !n.Valid {
		return fallback
	}
	return n.Decimal
}

// SuggestReductions proposes a 10% cut on the three largest expenses.
func SuggestReductions(expenses []generic.Expense) []Suggestion {
	sorted := generic.CloneSlice(expenses)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Amount.GreaterThan(sorted[j].Amount)
	})
	if len(sorted) > 3 {
		sorted = sorted[:3]
	}

	out := make([]Suggestion, 0, len(sorted))
	for _, e := range sorted {
		cut := e.Amount.Mul(tenPercent)
		out = append(out, Suggestion{
			Category:        e.Category,
			CurrentAmount:   e.Amount,
			TargetReduction: cut,
			NewAmount:       e.Amount.Sub(cut),
		})
	}
	return out
}
