// Package subsidy implements the ACA premium tax credit formula: FPL
// percentage, the sliding applicable-percentage scale, and the monthly
// subsidy against a benchmark premium. Pure computation, no I/O.
package subsidy

import (
	"github.com/shopspring/decimal"

	"ichra-quotes/internal/models"
)

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
)

// Applicable is the tagged outcome of the sliding-scale lookup: either
// an eligible percentage of income, or ineligibility above 400% FPL.
type Applicable struct {
	Eligible   bool
	Percentage decimal.Decimal
}

// applicableTier is one inclusive upper bound of the sliding scale.
type applicableTier struct {
	maxFPL int64   // inclusive upper bound, percent of FPL
	pct    float64 // expected contribution, percent of income
}

var applicableTiers = []applicableTier{
	{maxFPL: 150, pct: 0},
	{maxFPL: 200, pct: 2.0},
	{maxFPL: 250, pct: 4.0},
	{maxFPL: 300, pct: 6.0},
	{maxFPL: 400, pct: 8.5},
}

// ApplicablePercentage maps an FPL percentage to the expected-contribution
// percentage. Above 400% the household is ineligible, a distinct state
// rather than a sentinel percentage.
func ApplicablePercentage(fplPercentage decimal.Decimal) Applicable {
	for _, tier := range applicableTiers {
		if fplPercentage.LessThanOrEqual(decimal.NewFromInt(tier.maxFPL)) {
			return Applicable{Eligible: true, Percentage: decimal.NewFromFloat(tier.pct)}
		}
	}
	return Applicable{Eligible: false}
}

// Compute derives the full subsidy determination for one household
// against a benchmark premium. fplPercentage = income / fplAmount * 100;
// expected monthly contribution = income * applicablePct / 100 / 12;
// monthly subsidy = max(0, benchmark - expected). Ineligible households
// get a zero subsidy regardless of arithmetic.
func Compute(benchmarkPremium decimal.Decimal, household models.Household, fplYear int) (models.SubsidyResult, error) {
	fplAmount, err := FPLAmount(fplYear, household.Size)
	if err != nil {
		return models.SubsidyResult{}, err
	}

	fplPercentage := household.AnnualIncome.Div(fplAmount).Mul(hundred)

	applicable := ApplicablePercentage(fplPercentage)
	result := models.SubsidyResult{
		FPLPercentage:    fplPercentage,
		BenchmarkPremium: benchmarkPremium,
		MonthlySubsidy:   decimal.Zero,
		Eligible:         applicable.Eligible,
	}
	if !applicable.Eligible {
		return result, nil
	}

	result.ApplicablePercentage = applicable.Percentage

	expectedMonthly := household.AnnualIncome.
		Mul(applicable.Percentage).
		Div(hundred).
		Div(twelve)

	subsidy := benchmarkPremium.Sub(expectedMonthly)
	if subsidy.IsNegative() {
		subsidy = decimal.Zero
	}
	result.MonthlySubsidy = subsidy
	return result, nil
}
