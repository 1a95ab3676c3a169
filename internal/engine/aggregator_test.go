package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

func offer(planID string, market models.Market, metal models.MetalLevel, effective, memberCost, savings string) models.PlanOffer {
	return models.PlanOffer{
		PlanID:           planID,
		Carrier:          "Anthem",
		PlanName:         "Plan " + planID,
		MetalLevel:       metal,
		Market:           market,
		FullPremium:      dec(effective),
		EffectivePremium: dec(effective),
		MemberCost:       dec(memberCost),
		MonthlySavings:   dec(savings),
	}
}

func memberResult(id string, best models.PlanOffer, others []models.PlanOffer, prevEmployer, prevMember, contribution string, eligible bool) models.MemberQuoteResult {
	offers := append([]models.PlanOffer{best}, others...)
	return models.MemberQuoteResult{
		MemberID: id,
		Geography: models.RatingGeography{
			CountyID:     "08031",
			RatingAreaID: "CO-3",
		},
		PreviousContribution: models.PreviousContribution{
			EmployerAmount: dec(prevEmployer),
			MemberAmount:   dec(prevMember),
		},
		Subsidy:           models.SubsidyResult{Eligible: eligible},
		RecommendedPlans:  offers,
		BestPlan:          &offers[0],
		ICHRAContribution: dec(contribution),
		MemberCost:        best.MemberCost,
		MonthlySavings:    best.MonthlySavings,
	}
}

func completedCalc() *models.AffordabilityCalculation {
	now := time.Now()
	return &models.AffordabilityCalculation{
		CalculationID: "calc-1",
		GroupID:       "group-1",
		Status:        models.CalculationCompleted,
		CompletedAt:   &now,
		Summary:       models.AffordabilitySummary{TotalMembers: 2, AffordableMembers: 2, Overall: "affordable"},
	}
}

func aggGroup() *models.Group {
	return &models.Group{ID: "group-1", Name: "Acme"}
}

func TestAggregate_EmployerAndEmployeeTotals(t *testing.T) {
	agg := NewQuoteAggregator(AggregatorOptions{ExpiryDays: 30}, logger.NewTestLogger(t))

	members := []models.MemberQuoteResult{
		memberResult("m1", offer("p1", models.MarketOn, models.MetalSilver, "210", "0", "390"), nil, "400", "200", "300", true),
		memberResult("m2", offer("p2", models.MarketOff, models.MetalGold, "500", "250", "100"), nil, "350", "250", "250", false),
	}

	quote, err := agg.Aggregate(aggGroup(), models.PlanFilters{OnMarket: true, OffMarket: true}, members, nil, completedCalc())
	require.NoError(t, err)

	// Employer: old 400+350=750, new 300+250=550.
	assert.True(t, quote.EmployerSummary.OldTotalCost.Equal(dec("750")))
	assert.True(t, quote.EmployerSummary.NewTotalCost.Equal(dec("550")))
	assert.True(t, quote.EmployerSummary.MonthlySavings.Equal(dec("200")))
	assert.True(t, quote.EmployerSummary.AnnualSavings.Equal(dec("2400")))
	assert.Equal(t, 2, quote.EmployerSummary.TotalMembers)

	// Employee: old 200+250=450, new 0+250=250.
	assert.True(t, quote.ComparisonSummary.EmployeeOldTotalCost.Equal(dec("450")))
	assert.True(t, quote.ComparisonSummary.EmployeeNewTotalCost.Equal(dec("250")))
	assert.True(t, quote.ComparisonSummary.EmployeeMonthlySavings.Equal(dec("200")))

	// One of two members is subsidy eligible.
	assert.True(t, quote.ComparisonSummary.SubsidyEligibleRate.Equal(dec("50")))

	assert.Equal(t, "calc-1", quote.AffordabilityID)
	assert.Equal(t, models.QuoteStatusActive, quote.Status)
	assert.NotEmpty(t, quote.ID)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, 30), quote.ExpiresAt, time.Minute)
}

func TestAggregate_ZeroPreviousCostYieldsZeroPercentage(t *testing.T) {
	agg := NewQuoteAggregator(AggregatorOptions{}, logger.NewTestLogger(t))

	members := []models.MemberQuoteResult{
		memberResult("m1", offer("p1", models.MarketOn, models.MetalSilver, "210", "0", "0"), nil, "0", "0", "300", true),
	}

	quote, err := agg.Aggregate(aggGroup(), models.PlanFilters{}, members, nil, completedCalc())
	require.NoError(t, err)
	assert.True(t, quote.EmployerSummary.SavingsPercentage.IsZero())
}

func TestAggregate_PlanStatistics(t *testing.T) {
	agg := NewQuoteAggregator(AggregatorOptions{}, logger.NewTestLogger(t))

	// p1 appears for both members; unique count must dedupe it.
	shared := offer("p1", models.MarketOn, models.MetalSilver, "300", "0", "0")
	members := []models.MemberQuoteResult{
		memberResult("m1", shared, []models.PlanOffer{offer("p2", models.MarketOn, models.MetalGold, "500", "200", "0")}, "0", "0", "300", true),
		memberResult("m2", shared, []models.PlanOffer{offer("p3", models.MarketOff, models.MetalBronze, "250", "0", "0")}, "0", "0", "300", true),
	}

	quote, err := agg.Aggregate(aggGroup(), models.PlanFilters{}, members, nil, completedCalc())
	require.NoError(t, err)

	cs := quote.ComparisonSummary
	assert.True(t, cs.MinPremium.Equal(dec("250")))
	assert.True(t, cs.MaxPremium.Equal(dec("500")))
	// (300+500+300+250)/4 = 337.5
	assert.True(t, cs.AveragePremium.Equal(dec("337.5")))
	assert.Equal(t, 3, cs.UniquePlanCount)

	// Selected plans are the distinct best plans, p1 once.
	require.Len(t, quote.SelectedPlans, 1)
	assert.Equal(t, "p1", quote.SelectedPlans[0].PlanID)
}

func TestAggregate_RequiresCompletedCompliance(t *testing.T) {
	agg := NewQuoteAggregator(AggregatorOptions{}, logger.NewTestLogger(t))
	members := []models.MemberQuoteResult{
		memberResult("m1", offer("p1", models.MarketOn, models.MetalSilver, "210", "0", "0"), nil, "0", "0", "300", true),
	}

	pending := &models.AffordabilityCalculation{Status: models.CalculationPending}
	_, err := agg.Aggregate(aggGroup(), models.PlanFilters{}, members, nil, pending)
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeComplianceUnavailable, errs.CodeOf(err))

	_, err = agg.Aggregate(aggGroup(), models.PlanFilters{}, members, nil, nil)
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeComplianceUnavailable, errs.CodeOf(err))
}

func TestAggregate_EmptyMemberSetFails(t *testing.T) {
	agg := NewQuoteAggregator(AggregatorOptions{}, logger.NewTestLogger(t))
	_, err := agg.Aggregate(aggGroup(), models.PlanFilters{}, nil, []models.MemberSkip{{MemberID: "m1"}}, completedCalc())
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeNoPlansAvailable, errs.CodeOf(err))
}

func TestAggregate_SkipsAreRecorded(t *testing.T) {
	agg := NewQuoteAggregator(AggregatorOptions{}, logger.NewTestLogger(t))
	members := []models.MemberQuoteResult{
		memberResult("m1", offer("p1", models.MarketOn, models.MetalSilver, "210", "0", "0"), nil, "0", "0", "300", true),
	}
	skips := []models.MemberSkip{{MemberID: "m2", Reason: string(errs.ErrCodeGeographyNotResolved)}}

	quote, err := agg.Aggregate(aggGroup(), models.PlanFilters{}, members, skips, completedCalc())
	require.NoError(t, err)
	require.Len(t, quote.SkippedMembers, 1)
	assert.Equal(t, "m2", quote.SkippedMembers[0].MemberID)
	// Skipped members do not count toward totals.
	assert.Equal(t, 1, quote.EmployerSummary.TotalMembers)
}

func TestPercentageOf(t *testing.T) {
	assert.True(t, percentageOf(dec("200"), dec("750")).Round(2).Equal(dec("26.67")))
	assert.True(t, percentageOf(dec("5"), decimal.Zero).IsZero())
}
