package generic

import "github.com/shopspring/decimal"

var (
	one           = decimal.NewFromInt(1)
	twelve        = decimal.NewFromInt(12)
	hundred       = decimal.NewFromInt(100)
	twelveHundred = decimal.NewFromInt(1200)
)

// EMI returns the equated monthly installment for a loan:
//
//	P·r·(1+r)^n / ((1+r)^n − 1),  r = annualRatePercent/1200, n = termYears·12
//
// A zero rate returns exactly P/n, the limit of the formula as r → 0.
// A non-positive term has no schedule and returns zero.
func EMI(principal, annualRatePercent Money, termYears int) Money {
	n := int64(termYears) * 12
	if n <= 0 {
		return decimal.Zero
	}
	months := decimal.NewFromInt(n)
	if annualRatePercent.IsZero() {
		return principal.Div(months)
	}

	r := annualRatePercent.Div(twelveHundred)
	growth := one.Add(r).Pow(months)
	return principal.Mul(r).Mul(growth).Div(growth.Sub(one))
}

// CompoundGrowth applies monthly compounding of an annual return:
// amount·(1 + annualReturn/12)^months.
func CompoundGrowth(amount, annualReturn Money, months int) Money {
	if months <= 0 {
		return amount
	}
	monthly := one.Add(annualReturn.Div(twelve))
	return amount.Mul(monthly.Pow(decimal.NewFromInt(int64(months))))
}

// Percent returns part/whole·100. The result is invalid when whole is zero.
func Percent(part, whole Money) decimal.NullDecimal {
	if whole.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(part.Div(whole).Mul(hundred))
}

// Ratio returns a/b. The result is invalid when b is zero.
func Ratio(a, b Money) decimal.NullDecimal {
	if b.IsZero() {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(a.Div(b))
}

// Cents rounds to two decimal places. Ticks round their outputs so repeated
// multiplication does not grow the stored precision without bound.
func Cents(m Money) Money {
	return m.Round(2)
}

// Sum adds up f(item) for every item.
func Sum[T any](items []T, f func(T) Money) Money {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(f(it))
	}
	return total
}

// Uniform draws a value uniformly from [lo, hi) using the turn's generator.
func Uniform(rng Rand, lo, hi float64) Money {
	return decimal.NewFromFloat(lo + rng.Float64()*(hi-lo))
}
