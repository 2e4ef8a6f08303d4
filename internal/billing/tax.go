package billing

import "github.com/shopspring/decimal"

// Legal withholding rate applied when the owner is a company. Not
// user-configurable.
const companyRetentionRate = 15.0

// Standard Spanish VAT bands used to classify noisy upstream expense data.
const (
	vatRateStandard     = 21.0
	vatRateReduced      = 10.0
	vatRateSuperReduced = 4.0
	vatRateExempt       = 0.0
)

// RetentionRateFor returns the withholding percentage for an owner type.
// Unknown or missing owner types default to 0 so invoice generation never
// hard-fails on incomplete classification data.
func RetentionRateFor(t OwnerType) float64 {
	if t == OwnerTypeEmpresa {
		return companyRetentionRate
	}
	return 0
}

// Round2 rounds a monetary amount half-up to two decimal places. Every
// intermediate value must pass through here at the point it becomes a
// persisted line item field, so that the stored rows sum exactly to the
// stored totals.
func Round2(x float64) float64 {
	f, _ := decimal.NewFromFloat(x).Round(2).Float64()
	return f
}

// ExtractVATBase returns the net base of a VAT-inclusive gross amount,
// rounded to two decimals.
func ExtractVATBase(gross, vatRate float64) float64 {
	g := decimal.NewFromFloat(gross)
	divisor := decimal.NewFromInt(1).Add(decimal.NewFromFloat(vatRate).Div(decimal.NewFromInt(100)))
	f, _ := g.DivRound(divisor, 2).Float64()
	return f
}

// InferVATRate classifies a raw (amount, vatAmount) pair into one of the
// standard VAT bands by the ratio vatAmount/amount*100:
//
//	>= 18 -> 21, >= 7 -> 10, >= 2 -> 4, else 0
//
// Callers must recompute the VAT from the returned rate instead of trusting
// the raw vatAmount, which guards against rounding drift in upstream
// expense records.
func InferVATRate(amount, vatAmount float64) float64 {
	if amount <= 0 || vatAmount <= 0 {
		return vatRateExempt
	}
	ratio := vatAmount / amount * 100
	switch {
	case ratio >= 18:
		return vatRateStandard
	case ratio >= 7:
		return vatRateReduced
	case ratio >= 2:
		return vatRateSuperReduced
	default:
		return vatRateExempt
	}
}

// ApplyRate returns amount * rate/100 rounded to two decimals.
func ApplyRate(amount, rate float64) float64 {
	a := decimal.NewFromFloat(amount)
	r := decimal.NewFromFloat(rate).Div(decimal.NewFromInt(100))
	f, _ := a.Mul(r).Round(2).Float64()
	return f
}

// WithVAT returns amount * (1 + rate/100) rounded to two decimals.
func WithVAT(amount, rate float64) float64 {
	a := decimal.NewFromFloat(amount)
	r := decimal.NewFromInt(1).Add(decimal.NewFromFloat(rate).Div(decimal.NewFromInt(100)))
	f, _ := a.Mul(r).Round(2).Float64()
	return f
}
