// internal/engine/filter.go
package engine

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/models"
)

// ==========================
// Filter Reapplier
// ==========================

// FilterReapplier derives a new comparison from a stored quote's
// already-priced offers. It never prices anything, never touches an
// external service and never mutates the stored quote.
type FilterReapplier struct {
	log logger.Logger
}

func NewFilterReapplier(log logger.Logger) *FilterReapplier {
	return &FilterReapplier{
		log: log.WithFields(map[string]interface{}{"component": "filter-reapplier"}),
	}
}

// Reapply filters every member's offer list, re-sorts by member cost and
// recomputes per-member and group aggregates against the original
// previous-cost baselines. Members whose offers are all filtered out stay
// in the view with a nil best plan and zero new cost.
func (f *FilterReapplier) Reapply(quote *models.QuoteResult, filters models.PlanFilters) (*models.FilteredQuoteView, error) {
	if err := validateOfferFilters(filters); err != nil {
		return nil, err
	}
	if quote.AffordabilityID == "" {
		return nil, errs.NewComplianceUnavailableError(quote.GroupID, "missing")
	}

	eligible := 0
	memberViews := make([]models.MemberQuoteResult, 0, len(quote.MemberQuotes))
	employer := models.EmployerSummary{TotalMembers: len(quote.MemberQuotes)}
	comparison := models.ComparisonSummary{}

	for _, mq := range quote.MemberQuotes {
		view := refilterMember(mq, filters)

		employer.OldTotalCost = employer.OldTotalCost.Add(mq.PreviousContribution.EmployerAmount)
		employer.NewTotalCost = employer.NewTotalCost.Add(view.ICHRAContribution)
		comparison.EmployeeOldTotalCost = comparison.EmployeeOldTotalCost.Add(mq.PreviousContribution.MemberAmount)
		comparison.EmployeeNewTotalCost = comparison.EmployeeNewTotalCost.Add(view.MemberCost)
		if view.Subsidy.Eligible {
			eligible++
		}
		memberViews = append(memberViews, view)
	}

	employer.MonthlySavings = employer.OldTotalCost.Sub(employer.NewTotalCost)
	employer.AnnualSavings = employer.MonthlySavings.Mul(decimal.NewFromInt(12))
	employer.SavingsPercentage = percentageOf(employer.MonthlySavings, employer.OldTotalCost)

	comparison.EmployeeMonthlySavings = comparison.EmployeeOldTotalCost.Sub(comparison.EmployeeNewTotalCost)
	if len(memberViews) > 0 {
		comparison.SubsidyEligibleRate = percentageOf(
			decimal.NewFromInt(int64(eligible)),
			decimal.NewFromInt(int64(len(memberViews))),
		)
	}
	min, max, avg, unique := planStatistics(memberViews)
	comparison.MinPremium = min
	comparison.MaxPremium = max
	comparison.AveragePremium = avg
	comparison.UniquePlanCount = unique

	f.log.Info("filters reapplied", map[string]interface{}{
		"quoteId": quote.ID,
		"groupId": quote.GroupID,
		"members": len(memberViews),
	})

	return &models.FilteredQuoteView{
		QuoteID:           quote.ID,
		GroupID:           quote.GroupID,
		Filters:           filters,
		EmployerSummary:   employer,
		ComparisonSummary: comparison,
		MemberQuotes:      memberViews,
		AffordabilityID:   quote.AffordabilityID,
	}, nil
}

// refilterMember rebuilds one member's view from the stored offers. The
// input result is copied, never modified.
func refilterMember(mq models.MemberQuoteResult, filters models.PlanFilters) models.MemberQuoteResult {
	kept := make([]models.PlanOffer, 0, len(mq.RecommendedPlans))
	onMarket, offMarket := 0, 0
	for _, offer := range mq.RecommendedPlans {
		if !offerMatches(offer, filters) {
			continue
		}
		kept = append(kept, offer)
		if offer.Market == models.MarketOn {
			onMarket++
		} else {
			offMarket++
		}
	}

	sort.Slice(kept, func(i, j int) bool {
		return kept[i].MemberCost.LessThan(kept[j].MemberCost)
	})

	view := mq
	view.RecommendedPlans = kept
	view.BestPlan = nil
	view.MemberCost = decimal.Zero
	view.MonthlySavings = decimal.Zero
	view.Summary = models.MemberSummary{
		OnMarketPlans:   onMarket,
		OffMarketPlans:  offMarket,
		SubsidyEligible: mq.Subsidy.Eligible,
	}
	if len(kept) > 0 {
		best := kept[0]
		view.BestPlan = &best
		view.MemberCost = best.MemberCost
		view.MonthlySavings = best.MonthlySavings
		view.Summary.BestPlanCost = best.MemberCost
		view.Summary.MonthlySavings = best.MonthlySavings
	}
	return view
}

// offerMatches applies the carrier/metal/market predicates. Market flags
// are additive; neither flag set means both markets pass.
func offerMatches(offer models.PlanOffer, filters models.PlanFilters) bool {
	if filters.OnMarket != filters.OffMarket {
		if filters.OnMarket && offer.Market != models.MarketOn {
			return false
		}
		if filters.OffMarket && offer.Market != models.MarketOff {
			return false
		}
	}
	if filters.MetalLevel != "" && offer.MetalLevel != filters.MetalLevel {
		return false
	}
	if filters.Carrier != "" && !strings.EqualFold(offer.Carrier, filters.Carrier) {
		return false
	}
	return true
}

// validateOfferFilters rejects filter values that could never match.
func validateOfferFilters(filters models.PlanFilters) error {
	switch filters.MetalLevel {
	case "", models.MetalBronze, models.MetalSilver, models.MetalGold, models.MetalPlatinum:
	default:
		return errs.NewInvalidFilterInputError("unknown metal level " + string(filters.MetalLevel))
	}
	if filters.Page < 0 || filters.PageSize < 0 {
		return errs.NewInvalidFilterInputError("page and pageSize must be non-negative")
	}
	return nil
}
