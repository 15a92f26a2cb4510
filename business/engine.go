package business

import (
	"encoding/json"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/warp/finpath/generic"
)

// Path is the path identifier this package serves.
const Path = "business-typhoon"

const (
	ActionHireEmployees     generic.Action = "hire-employees"
	ActionFireEmployees     generic.Action = "fire-employees"
	ActionInvestMarketing   generic.Action = "invest-marketing"
	ActionPurchaseInventory generic.Action = "purchase-inventory"
	ActionSellProducts      generic.Action = "sell-products"
	ActionTakeLoan          generic.Action = "take-loan"
	ActionPayLoan           generic.Action = "pay-loan"
	ActionPayTaxes          generic.Action = "pay-taxes"
)

// Operating constants of the simulated market.
var (
	UnitPrice          = generic.DI(5000)
	RevenuePerEmployee = generic.DI(50000)
	TaxRate            = generic.D(0.25)
	// MarketingPerPoint is the spend that buys one point of market share.
	MarketingPerPoint = generic.DI(1_000_000)
)

// Market factor bounds for a tick.
const (
	MarketFactorMin = 0.9
	MarketFactorMax = 1.2
)

// TaxPeriod is how many months accrue before liability is settled.
const TaxPeriod = 3

var hundred = decimal.NewFromInt(100)

// =============================================================================
// PAYLOADS
// =============================================================================

type HireInput struct {
	Count      int           `json:"count"`
	Salary     generic.Money `json:"salary"`
	HiringCost generic.Money `json:"hiring_cost"`
}

type FireInput struct {
	Count         int           `json:"count"`
	Salary        generic.Money `json:"salary"`
	SeveranceCost generic.Money `json:"severance_cost"`
}

type AmountInput struct {
	Amount generic.Money `json:"amount"`
}

type InventoryPurchase struct {
	Quantity int64         `json:"quantity"`
	Cost     generic.Money `json:"cost"`
}

type Sale struct {
	Quantity int64         `json:"quantity"`
	Revenue  generic.Money `json:"revenue"`
}

var table = generic.Table[*State]{
	Path: Path,
	Handlers: map[generic.Action]generic.Handler[*State]{
		ActionHireEmployees:     {Run: hire, Spends: true},
		ActionFireEmployees:     {Run: fire, Spends: true},
		ActionInvestMarketing:   {Run: investMarketing, Spends: true},
		ActionPurchaseInventory: {Run: purchaseInventory, Spends: true},
		ActionSellProducts:      {Run: sellProducts},
		ActionTakeLoan:          {Run: takeLoan},
		ActionPayLoan:           {Run: payLoan, Spends: true},
		ActionPayTaxes:          {Run: payTaxes, Spends: true},
		generic.AdvanceMonth:    {Run: advanceMonth},
	},
}

// Apply runs one action and returns the new state. s is not modified.
func Apply(s *State, t generic.Turn, action generic.Action, payload json.RawMessage) (*State, error) {
	return table.Apply(s, t, action, payload)
}

// Actions lists the supported actions.
func Actions() []generic.Action { return table.Actions() }

// =============================================================================
// HANDLERS
// =============================================================================

func hire(s *State, _ generic.Turn, raw json.RawMessage) error {
	in, err := generic.Decode[HireInput](raw)
	if err != nil {
		return err
	}
	if in.Count <= 0 {
		return generic.Invalid("count", "must be positive")
	}
	if err := errors.Join(
		generic.RequireNonNegative("salary", in.Salary),
		generic.RequireNonNegative("hiring_cost", in.HiringCost),
	); err != nil {
		return err
	}

	n := decimal.NewFromInt(int64(in.Count))
	d := &s.Details
	d.Employees += in.Count
	d.Expenses = d.Expenses.Add(n.Mul(in.Salary))
	d.Capital = d.Capital.Sub(n.Mul(in.HiringCost))
	return nil
}

// fire lets go of count employees. Headcount and expenses floor at zero;
// salary and severance are charged on the requested count.
func fire(s *State, _ generic.Turn, raw json.RawMessage) error {
	in, err := generic.Decode[FireInput](raw)
	if err != nil {
		return err
	}
	if in.Count <= 0 {
		return generic.Invalid("count", "must be positive")
	}
	if err := errors.Join(
		generic.RequireNonNegative("salary", in.Salary),
		generic.RequireNonNegative("severance_cost", in.SeveranceCost),
	); err != nil {
		return err
	}

	d := &s.Details
	n := decimal.NewFromInt(int64(in.Count))
	d.Employees = max(0, d.Employees-in.Count)
	d.Expenses = decimal.Max(decimal.Zero, d.Expenses.Sub(n.Mul(in.Salary)))
	d.Capital = d.Capital.Sub(n.Mul(in.SeveranceCost))
	return nil
}

func investMarketing(s *State, _ generic.Turn, raw json.RawMessage) error {
	in, err := generic.Decode[AmountInput](raw)
	if err != nil {
		return err
	}
	if err := generic.RequirePositive("amount", in.Amount); err != nil {
		return err
	}

	d := &s.Details
	d.Capital = d.Capital.Sub(in.Amount)
	d.MarketingBudget = d.MarketingBudget.Add(in.Amount)
	d.MarketShare = d.share().Add(in.Amount.Div(MarketingPerPoint))
	return nil
}

func purchaseInventory(s *State, _ generic.Turn, raw json.RawMessage) error {
	in, err := generic.Decode[InventoryPurchase](raw)
	if err != nil {
		return err
	}
	if in.Quantity <= 0 {
		return generic.Invalid("quantity", "must be positive")
	}
	if err := generic.RequireNonNegative("cost", in.Cost); err != nil {
		return err
	}

	s.Details.Capital = s.Details.Capital.Sub(in.Cost)
	s.Details.Inventory += in.Quantity
	return nil
}

func sellProducts(s *State, _ generic.Turn, raw json.RawMessage) error {
	in, err := generic.Decode[Sale](raw)
	if err != nil {
		return err
	}
	if in.Quantity <= 0 {
		return generic.Invalid("quantity", "must be positive")
	}
	if err := generic.RequireNonNegative("revenue", in.Revenue); err != nil {
		return err
	}

	d := &s.Details
	d.Inventory = max(0, d.Inventory-in.Quantity)
	d.Revenue = d.Revenue.Add(in.Revenue)
	d.Capital = d.Capital.Add(in.Revenue)
	return nil
}

func takeLoan(s *State, t generic.Turn, raw json.RawMessage) error {
	app, err := generic.Decode[generic.LoanApplication](raw)
	if err != nil {
		return err
	}
	loan, err := generic.OpenLoan(app, t.ID(), t.Now)
	if err != nil {
		return err
	}
	s.Loans = append(s.Loans, loan)
	s.Details.Capital = s.Details.Capital.Add(loan.Amount)
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
	s.Details.Capital = s.Details.Capital.Sub(applied)
	return nil
}

// payTaxes records a voluntary tax payment. Accrued liability is left for
// the quarterly settlement in advanceMonth.
func payTaxes(s *State, _ generic.Turn, raw json.RawMessage) error {
	in, err := generic.Decode[AmountInput](raw)
	if err != nil {
		return err
	}
	if err := generic.RequirePositive("amount", in.Amount); err != nil {
		return err
	}

	d := &s.Details
	d.Capital = d.Capital.Sub(in.Amount)
	d.TaxesPaid = d.TaxesPaid.Add(in.Amount)
	return nil
}

// =============================================================================
// MONTH TICK
// =============================================================================

// advanceMonth sells what demand and stock allow, pays running costs and
// installments, accrues tax and settles it at the end of each quarter.
func advanceMonth(s *State, t generic.Turn, _ json.RawMessage) error {
	if t.RNG == nil {
		return errors.New("business: advance-month needs a random source")
	}
	d := &s.Details

	// Demand is capped by what the stock can cover at the fixed unit price.
	potential := decimal.NewFromInt(int64(d.Employees)).Mul(RevenuePerEmployee).Mul(d.share()).Div(hundred)
	actual := decimal.Min(potential, decimal.NewFromInt(d.Inventory).Mul(UnitPrice))
	sold := min(actual.Div(UnitPrice).Floor().IntPart(), d.Inventory)

	factor := generic.Uniform(t.RNG, MarketFactorMin, MarketFactorMax)
	final := generic.Cents(actual.Mul(factor))

	d.Revenue = d.Revenue.Add(final)
	d.Capital = d.Capital.Add(final)
	d.Inventory = max(0, d.Inventory-sold)

	d.Capital = d.Capital.Sub(d.Expenses)

	installments := generic.AmortizeLoans(s.Loans)
	d.Capital = d.Capital.Sub(installments)

	tax := generic.Cents(decimal.Max(decimal.Zero, final.Sub(d.Expenses).Mul(TaxRate)))
	d.TaxLiability = d.TaxLiability.Add(tax)

	report := &MonthReport{
		Month:            t.NextMonth(),
		PotentialRevenue: generic.Cents(potential),
		Revenue:          final,
		SoldUnits:        sold,
		MarketFactor:     factor.Round(4),
		LoanPayments:     installments,
		TaxAccrued:       tax,
		TaxesPaid:        decimal.Zero,
	}

	if t.NextMonth()%TaxPeriod == 0 {
		report.TaxesPaid = d.TaxLiability
		d.Capital = d.Capital.Sub(d.TaxLiability)
		d.TaxesPaid = d.TaxesPaid.Add(d.TaxLiability)
		d.TaxLiability = decimal.Zero
	}

	d.Capital = generic.Cents(d.Capital)
	s.LastMonth = report
	return nil
}
