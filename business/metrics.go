package business

import (
	"github.com/shopspring/decimal"
	"github.com/warp/finpath/generic"
)

// InitialCapital is the capital every company starts with; ROI is measured
// against it.
var InitialCapital = generic.DI(10_000_000)

// Competitor is a fixed rival in the simulated market.
type Competitor struct {
	Name        string        `json:"name"`
	MarketShare generic.Money `json:"market_share"`
}

// Competitors is the market the player competes in.
var Competitors = []Competitor{
	{Name: "Industry Giant", MarketShare: generic.DI(35)},
	{Name: "Innovator Inc", MarketShare: generic.DI(15)},
	{Name: "Budget Solutions", MarketShare: generic.DI(20)},
	{Name: "Niche Player", MarketShare: generic.DI(8)},
}

type Health string

const (
	HealthExcellent Health = "Excellent"
	HealthStable    Health = "Stable"
	HealthAtRisk    Health = "At Risk"
)

// TaxSummary estimates the tax position on cumulative figures.
type TaxSummary struct {
	TaxableIncome    generic.Money       `json:"taxable_income"`
	EstimatedTax     generic.Money       `json:"estimated_tax"`
	EffectiveRate    decimal.NullDecimal `json:"effective_rate"`
	AccruedLiability generic.Money       `json:"accrued_liability"`
	TaxesPaid        generic.Money       `json:"taxes_paid"`
}

type Metrics struct {
	Profit              generic.Money       `json:"profit"`
	ProfitMargin        decimal.NullDecimal `json:"profit_margin"`
	ROI                 generic.Money       `json:"roi"`
	RevenuePerEmployee  decimal.NullDecimal `json:"revenue_per_employee"`
	InventoryTurnover   decimal.NullDecimal `json:"inventory_turnover"`
	CompetitivePosition generic.Money       `json:"competitive_position"`
	MarketRank          int                 `json:"market_rank"`
	Health              Health              `json:"health"`
	Tax                 TaxSummary          `json:"tax"`
}

// ComputeMetrics derives business indicators from s without modifying it.
func ComputeMetrics(s *State) Metrics {
	d := s.Details
	profit := d.Revenue.Sub(d.Expenses)

	return Metrics{
		Profit:              profit,
		ProfitMargin:        generic.Percent(profit, d.Revenue),
		ROI:                 d.Capital.Sub(InitialCapital).Div(InitialCapital).Mul(hundred),
		RevenuePerEmployee:  generic.Ratio(d.Revenue, decimal.NewFromInt(int64(d.Employees))),
		InventoryTurnover:   generic.Ratio(d.Revenue, decimal.NewFromInt(d.Inventory)),
		CompetitivePosition: competitivePosition(d.share()),
		MarketRank:          marketRank(d.share()),
		Health:              health(profit, d),
		Tax:                 taxSummary(profit, d),
	}
}

// competitivePosition averages the player's share relative to each rival;
// 1 means level with the average competitor.
func competitivePosition(share generic.Money) generic.Money {
	total := generic.Sum(Competitors, func(c Competitor) generic.Money {
		return share.Div(c.MarketShare)
	})
	return total.Div(decimal.NewFromInt(int64(len(Competitors))))
}

// marketRank is 1 + the number of rivals with a strictly larger share.
func marketRank(share generic.Money) int {
	rank := 1
	for _, c := range Competitors {
		if c.MarketShare.GreaterThan(share) {
			rank++
		}
	}
	return rank
}

func health(profit generic.Money, d Details) Health {
	switch {
	case profit.IsPositive() && d.Capital.GreaterThan(d.Expenses.Mul(decimal.NewFromInt(3))):
		return HealthExcellent
	case !profit.IsNegative() && d.Capital.GreaterThan(d.Expenses):
		return HealthStable
	default:
		return HealthAtRisk
	}
}

func taxSummary(taxable generic.Money, d Details) TaxSummary {
	est := decimal.Max(decimal.Zero, taxable.Mul(TaxRate))
	var rate decimal.NullDecimal
	if taxable.IsPositive() {
		rate = generic.Percent(est, taxable)
	}
	return TaxSummary{
		TaxableIncome:    taxable,
		EstimatedTax:     est,
		EffectiveRate:    rate,
		AccruedLiability: d.TaxLiability,
		TaxesPaid:        d.TaxesPaid,
	}
}
