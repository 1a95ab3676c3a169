// internal/engine/aggregator.go
package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/models"
)

// ==========================
// Quote Aggregator
// ==========================

// AggregatorOptions tunes quote assembly.
type AggregatorOptions struct {
	// ExpiryDays sets how long a persisted quote remains servable.
	ExpiryDays int
}

// QuoteAggregator folds per-member results and the group affordability
// determination into the final QuoteResult. All aggregate savings are
// recomputed from the member rows on every call; nothing is carried over
// from prior runs.
type QuoteAggregator struct {
	opts AggregatorOptions
	log  logger.Logger
}

func NewQuoteAggregator(opts AggregatorOptions, log logger.Logger) *QuoteAggregator {
	if opts.ExpiryDays <= 0 {
		opts.ExpiryDays = 30
	}
	return &QuoteAggregator{
		opts: opts,
		log:  log.WithFields(map[string]interface{}{"component": "quote-aggregator"}),
	}
}

// Aggregate assembles the root quote. It requires a completed affordability
// calculation; pricing success alone never produces a quote without the
// compliance determination.
func (a *QuoteAggregator) Aggregate(
	group *models.Group,
	filters models.PlanFilters,
	memberResults []models.MemberQuoteResult,
	skips []models.MemberSkip,
	calc *models.AffordabilityCalculation,
) (*models.QuoteResult, error) {
	if len(memberResults) == 0 {
		return nil, errs.NewNoPlansAvailableError("every member in group " + group.ID + " was dropped")
	}
	if calc == nil || calc.Status != models.CalculationCompleted {
		status := "missing"
		if calc != nil {
			status = string(calc.Status)
		}
		return nil, errs.NewComplianceUnavailableError(group.ID, status)
	}

	employer := models.EmployerSummary{TotalMembers: len(memberResults)}
	comparison := models.ComparisonSummary{}
	eligible := 0

	for _, mq := range memberResults {
		employer.OldTotalCost = employer.OldTotalCost.Add(mq.PreviousContribution.EmployerAmount)
		employer.NewTotalCost = employer.NewTotalCost.Add(mq.ICHRAContribution)
		comparison.EmployeeOldTotalCost = comparison.EmployeeOldTotalCost.Add(mq.PreviousContribution.MemberAmount)
		comparison.EmployeeNewTotalCost = comparison.EmployeeNewTotalCost.Add(mq.MemberCost)
		if mq.Subsidy.Eligible {
			eligible++
		}
	}

	employer.MonthlySavings = employer.OldTotalCost.Sub(employer.NewTotalCost)
	employer.AnnualSavings = employer.MonthlySavings.Mul(decimal.NewFromInt(12))
	employer.SavingsPercentage = percentageOf(employer.MonthlySavings, employer.OldTotalCost)

	comparison.EmployeeMonthlySavings = comparison.EmployeeOldTotalCost.Sub(comparison.EmployeeNewTotalCost)
	comparison.SubsidyEligibleRate = percentageOf(
		decimal.NewFromInt(int64(eligible)),
		decimal.NewFromInt(int64(len(memberResults))),
	)

	min, max, avg, unique := planStatistics(memberResults)
	comparison.MinPremium = min
	comparison.MaxPremium = max
	comparison.AveragePremium = avg
	comparison.UniquePlanCount = unique

	now := time.Now().UTC()
	quote := &models.QuoteResult{
		ID:                uuid.New().String(),
		GroupID:           group.ID,
		GeneratedAt:       now,
		Filters:           filters,
		EmployerSummary:   employer,
		ComparisonSummary: comparison,
		MemberQuotes:      memberResults,
		SelectedPlans:     selectedPlans(memberResults),
		SkippedMembers:    skips,
		AffordabilityID:   calc.CalculationID,
		Status:            models.QuoteStatusActive,
		ExpiresAt:         now.AddDate(0, 0, a.opts.ExpiryDays),
	}

	a.log.Info("quote aggregated", map[string]interface{}{
		"quoteId":        quote.ID,
		"groupId":        group.ID,
		"members":        len(memberResults),
		"skipped":        len(skips),
		"monthlySavings": employer.MonthlySavings.String(),
	})
	return quote, nil
}

// percentageOf returns part/whole*100, with a zero whole yielding 0
// rather than an error.
func percentageOf(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Div(whole).Mul(decimal.NewFromInt(100))
}

// planStatistics scans every offer across every member.
func planStatistics(memberResults []models.MemberQuoteResult) (min, max, avg decimal.Decimal, unique int) {
	seen := make(map[string]struct{})
	var sum decimal.Decimal
	count := 0
	for _, mq := range memberResults {
		for _, offer := range mq.RecommendedPlans {
			seen[offer.PlanID] = struct{}{}
			if count == 0 || offer.FullPremium.LessThan(min) {
				min = offer.FullPremium
			}
			if count == 0 || offer.FullPremium.GreaterThan(max) {
				max = offer.FullPremium
			}
			sum = sum.Add(offer.FullPremium)
			count++
		}
	}
	if count > 0 {
		avg = sum.Div(decimal.NewFromInt(int64(count)))
	}
	return min, max, avg, len(seen)
}

// selectedPlans is the distinct set of best plans across members, in
// member order.
func selectedPlans(memberResults []models.MemberQuoteResult) []models.PlanOffer {
	seen := make(map[string]struct{})
	var plans []models.PlanOffer
	for _, mq := range memberResults {
		if mq.BestPlan == nil {
			continue
		}
		if _, ok := seen[mq.BestPlan.PlanID]; ok {
			continue
		}
		seen[mq.BestPlan.PlanID] = struct{}{}
		plans = append(plans, *mq.BestPlan)
	}
	return plans
}
