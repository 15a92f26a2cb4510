/*
Package factory builds the starting state of each path.

PURPOSE:
  Path selection happens once per game. The factory turns a path id into a
  fresh GameState from a set of Presets: a randomized salary and expense
  template for job-saving, fixed company figures for business-typhoon, and a
  fixed starting career for early-retirement.

YAML OVERRIDES:
  Presets can be loaded from YAML so a deployment can tune the starting
  numbers without a rebuild. Fields left out keep their defaults:

    job_saving:
      min_salary: 10000
      max_salary: 250000
      expenses:
        - {category: Rent, share: 0.30, recurring: true}
    business:
      capital: 10000000
      employees: 5
    retirement:
      age: 30
      retirement_age: 65

  Validate rejects presets that would break the game's invariants, e.g. a
  salary range outside [10000, 250000] or a retirement age outside [40, 70].

SEE ALSO:
  - game/service.go: Service.SelectPath calls InitializeState
*/
package factory

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/warp/finpath/business"
	"github.com/warp/finpath/game"
	"github.com/warp/finpath/generic"
	"github.com/warp/finpath/jobsaving"
	"github.com/warp/finpath/retirement"
)

// =============================================================================
// PRESET TYPES
// =============================================================================

// ExpenseTemplate is a starting expense sized as a share of salary.
type ExpenseTemplate struct {
	Category  string        `yaml:"category"`
	Share     generic.Money `yaml:"share"`
	Recurring bool          `yaml:"recurring"`
}

type JobSavingPreset struct {
	MinSalary       generic.Money     `yaml:"min_salary"`
	MaxSalary       generic.Money     `yaml:"max_salary"`
	StartingSavings generic.Money     `yaml:"starting_savings"`
	Expenses        []ExpenseTemplate `yaml:"expenses"`
}

type BusinessPreset struct {
	Capital     generic.Money `yaml:"capital"`
	Employees   int           `yaml:"employees"`
	Expenses    generic.Money `yaml:"expenses"`
	Inventory   int64         `yaml:"inventory"`
	MarketShare generic.Money `yaml:"market_share"`
}

type RetirementPreset struct {
	Age           int           `yaml:"age"`
	Salary        generic.Money `yaml:"salary"`
	Savings       generic.Money `yaml:"savings"`
	JobTitle      string        `yaml:"job_title"`
	RetirementAge int           `yaml:"retirement_age"`
}

// Presets holds the starting figures of every path.
type Presets struct {
	JobSaving  JobSavingPreset  `yaml:"job_saving"`
	Business   BusinessPreset   `yaml:"business"`
	Retirement RetirementPreset `yaml:"retirement"`
}

var _ game.Initializer = Presets{}

// DefaultPresets returns the standard starting figures.
func DefaultPresets() Presets {
	return Presets{
		JobSaving: JobSavingPreset{
			MinSalary:       jobsaving.MinStartingSalary,
			MaxSalary:       jobsaving.MaxStartingSalary,
			StartingSavings: decimal.Zero,
			Expenses: []ExpenseTemplate{
				{Category: "Rent", Share: generic.D(0.30), Recurring: true},
				{Category: "Food", Share: generic.D(0.15), Recurring: true},
				{Category: "Transport", Share: generic.D(0.10), Recurring: true},
			},
		},
		Business: BusinessPreset{
			Capital:     business.InitialCapital,
			Employees:   5,
			Expenses:    generic.DI(100_000),
			Inventory:   0,
			MarketShare: generic.DI(1),
		},
		Retirement: RetirementPreset{
			Age:           30,
			Salary:        generic.DI(80_000),
			Savings:       generic.DI(200_000),
			JobTitle:      "Software Developer",
			RetirementAge: 65,
		},
	}
}

// LoadPresets reads YAML overrides from path on top of DefaultPresets.
func LoadPresets(path string) (Presets, error) {
	p := DefaultPresets()
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read presets: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse presets: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, err
	}
	return p, nil
}

// Validate checks that the presets produce a legal starting state.
func (p Presets) Validate() error {
	js := p.JobSaving
	if js.MinSalary.LessThan(jobsaving.MinStartingSalary) || js.MaxSalary.GreaterThan(jobsaving.MaxStartingSalary) {
		return fmt.Errorf("presets: job_saving salary range must lie within [%s, %s]",
			jobsaving.MinStartingSalary, jobsaving.MaxStartingSalary)
	}
	if js.MinSalary.GreaterThan(js.MaxSalary) {
		return fmt.Errorf("presets: job_saving min_salary %s exceeds max_salary %s", js.MinSalary, js.MaxSalary)
	}
	for _, e := range js.Expenses {
		if e.Category == "" || e.Share.IsNegative() {
			return fmt.Errorf("presets: job_saving expense %q needs a category and a non-negative share", e.Category)
		}
	}

	b := p.Business
	if !b.Capital.IsPositive() || b.Employees < 0 || b.Inventory < 0 || b.Expenses.IsNegative() || b.MarketShare.IsNegative() {
		return fmt.Errorf("presets: business figures must be non-negative with positive capital")
	}

	r := p.Retirement
	if r.RetirementAge < retirement.MinRetirementAge || r.RetirementAge > retirement.MaxRetirementAge {
		return fmt.Errorf("presets: retirement_age %d outside [%d, %d]",
			r.RetirementAge, retirement.MinRetirementAge, retirement.MaxRetirementAge)
	}
	if r.Age <= 0 || !r.Salary.IsPositive() {
		return fmt.Errorf("presets: retirement needs a positive age and salary")
	}
	return nil
}

// =============================================================================
// INITIALIZATION
// =============================================================================

// InitializeState builds a fresh game on path. Only job-saving draws from
// rng.
func (p Presets) InitializeState(path game.Path, rng generic.Rand, now time.Time) (game.GameState, error) {
	state := game.GameState{CurrentPath: path, LastPlayed: now}

	switch path {
	case game.PathJobSaving:
		if rng == nil {
			return game.GameState{}, fmt.Errorf("factory: %s needs a random source", path)
		}
		state.JobSaving = p.jobSaving(rng)
	case game.PathBusiness:
		state.Business = p.business()
	case game.PathRetirement:
		state.Retirement = p.retirement()
	default:
		return game.GameState{}, fmt.Errorf("%w: %q", generic.ErrInvalidPath, path)
	}
	return state, nil
}

// RandomSalary draws a whole salary uniformly from [min, max].
func RandomSalary(rng generic.Rand, min, max generic.Money) generic.Money {
	span := max.Sub(min).Add(decimal.NewFromInt(1))
	draw := span.Mul(decimal.NewFromFloat(rng.Float64())).Floor()
	return decimal.Min(max, min.Add(draw))
}

func (p Presets) jobSaving(rng generic.Rand) *jobsaving.State {
	js := p.JobSaving
	salary := RandomSalary(rng, js.MinSalary, js.MaxSalary)

	expenses := make([]generic.Expense, 0, len(js.Expenses))
	for _, tmpl := range js.Expenses {
		expenses = append(expenses, generic.Expense{
			ID:        generic.ItemID(uuid.NewString()),
			Category:  tmpl.Category,
			Amount:    generic.Cents(salary.Mul(tmpl.Share)),
			Recurring: tmpl.Recurring,
		})
	}
	return &jobsaving.State{
		Salary:   salary,
		Savings:  js.StartingSavings,
		Expenses: expenses,
		Loans:    []generic.Loan{},
	}
}

func (p Presets) business() *business.State {
	b := p.Business
	return &business.State{
		Details: business.Details{
			Capital:     b.Capital,
			Employees:   b.Employees,
			Expenses:    b.Expenses,
			Inventory:   b.Inventory,
			MarketShare: b.MarketShare,
		},
		Loans: []generic.Loan{},
	}
}

func (p Presets) retirement() *retirement.State {
	r := p.Retirement
	return &retirement.State{
		Age:           r.Age,
		Salary:        r.Salary,
		JobTitle:      r.JobTitle,
		Savings:       r.Savings,
		Investments:   []generic.Investment{},
		Expenses:      []generic.Expense{},
		RetirementAge: r.RetirementAge,
	}
}
