// internal/engine/member_builder.go
package engine

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/common/metrics"
	"ichra-quotes/internal/marketplace"
	"ichra-quotes/internal/models"
	"ichra-quotes/internal/subsidy"
)

// ==========================
// Member Quote Builder
// ==========================

// BuilderOptions tunes the per-member pipeline.
type BuilderOptions struct {
	// RecommendedPlans caps the offer list kept per member.
	RecommendedPlans int

	// FPLYear selects the federal poverty line table.
	FPLYear int

	// DefaultIncome and DefaultFamilySize substitute for members that
	// did not report household data. The substitution is flagged on the
	// subsidy result so consumers can tell estimated from reported.
	DefaultIncome     decimal.Decimal
	DefaultFamilySize int
}

// MemberQuoteBuilder runs the full per-member pipeline: resolve rating
// geography, fetch plan candidates, determine the subsidy, price every
// candidate and fold in the employer's ICHRA contribution.
type MemberQuoteBuilder struct {
	geo       marketplace.GeoResolver
	catalog   marketplace.PlanCatalog
	pricing   marketplace.PricingLookup
	benchmark *subsidy.BenchmarkSelector
	opts      BuilderOptions
	log       logger.Logger
}

func NewMemberQuoteBuilder(
	geo marketplace.GeoResolver,
	catalog marketplace.PlanCatalog,
	pricing marketplace.PricingLookup,
	benchmark *subsidy.BenchmarkSelector,
	opts BuilderOptions,
	log logger.Logger,
) *MemberQuoteBuilder {
	if opts.RecommendedPlans <= 0 {
		opts.RecommendedPlans = 10
	}
	if opts.DefaultIncome.IsZero() {
		opts.DefaultIncome = decimal.NewFromInt(50000)
	}
	if opts.DefaultFamilySize <= 0 {
		opts.DefaultFamilySize = 1
	}
	return &MemberQuoteBuilder{
		geo:       geo,
		catalog:   catalog,
		pricing:   pricing,
		benchmark: benchmark,
		opts:      opts,
		log:       log.WithFields(map[string]interface{}{"component": "member-builder"}),
	}
}

// Build produces one member's slice of the group quote. A nil result with
// a non-nil skip means the member was excluded without failing the run;
// a non-nil error aborts the whole group operation.
func (b *MemberQuoteBuilder) Build(ctx context.Context, group *models.Group, member models.Member, filters models.PlanFilters) (*models.MemberQuoteResult, *models.MemberSkip, error) {
	start := time.Now()
	defer func() {
		metrics.MemberBuildDuration.Observe(time.Since(start).Seconds())
	}()

	resolution, err := b.geo.ResolveCounty(ctx, member.Zip)
	if err != nil {
		if errors.Is(err, marketplace.ErrNotFound) || errs.IsCode(err, errs.ErrCodeGeographyNotResolved) {
			b.log.Warn("member skipped, geography not resolved", map[string]interface{}{
				"memberId": member.ID,
				"zip":      member.Zip,
			})
			return nil, &models.MemberSkip{
				MemberID: member.ID,
				Reason:   string(errs.ErrCodeGeographyNotResolved),
				Detail:   "zip " + member.Zip + " did not resolve to a rating county",
			}, nil
		}
		return nil, nil, err
	}
	geo := resolution.Primary()

	page, err := b.catalog.GetPlansForCounty(ctx, geo.CountyID, filters)
	if err != nil {
		return nil, nil, err
	}

	subsidyResult, err := b.determineSubsidy(ctx, group, member, geo)
	if err != nil {
		if errs.IsCode(err, errs.ErrCodeNoSilverBenchmark) {
			b.log.Warn("member skipped, no silver benchmark in rating area", map[string]interface{}{
				"memberId":     member.ID,
				"ratingAreaId": geo.RatingAreaID,
			})
			return nil, &models.MemberSkip{
				MemberID: member.ID,
				Reason:   string(errs.ErrCodeNoSilverBenchmark),
				Detail:   "no priced on-market silver plan in rating area " + geo.RatingAreaID,
			}, nil
		}
		return nil, nil, err
	}

	offers, err := b.priceCandidates(ctx, group, member, geo, page.Plans, subsidyResult)
	if err != nil {
		return nil, nil, err
	}
	if len(offers) == 0 {
		b.log.Warn("member dropped, no priced candidates", map[string]interface{}{
			"memberId": member.ID,
			"countyId": geo.CountyID,
			"plans":    len(page.Plans),
		})
		return nil, &models.MemberSkip{
			MemberID: member.ID,
			Reason:   string(errs.ErrCodeNoPlansAvailable),
			Detail:   "no candidate plan could be priced for county " + geo.CountyID,
		}, nil
	}

	sort.Slice(offers, func(i, j int) bool {
		return offers[i].EffectivePremium.LessThan(offers[j].EffectivePremium)
	})

	onMarket, offMarket := 0, 0
	for _, offer := range offers {
		if offer.Market == models.MarketOn {
			onMarket++
		} else {
			offMarket++
		}
	}

	recommended := offers
	if len(recommended) > b.opts.RecommendedPlans {
		recommended = recommended[:b.opts.RecommendedPlans]
	}
	best := recommended[0]

	result := &models.MemberQuoteResult{
		MemberID:             member.ID,
		Geography:            geo,
		PreviousContribution: member.PreviousContribution,
		Subsidy:              *subsidyResult,
		RecommendedPlans:     recommended,
		BestPlan:             &best,
		ICHRAContribution:    b.contributionFor(group, member),
		MemberCost:           best.MemberCost,
		MonthlySavings:       best.MonthlySavings,
		Summary: models.MemberSummary{
			BestPlanCost:    best.MemberCost,
			MonthlySavings:  best.MonthlySavings,
			OnMarketPlans:   onMarket,
			OffMarketPlans:  offMarket,
			SubsidyEligible: subsidyResult.Eligible,
		},
	}
	return result, nil, nil
}

// determineSubsidy resolves the household (with flagged defaults), checks
// eligibility and anchors the formula on the second-lowest Silver premium.
// An eligible household in a rating area with no priced Silver plan fails
// with ErrCodeNoSilverBenchmark; Build turns that into a member skip.
// Ineligible households never consult the benchmark, so a benchmark-less
// rating area does not exclude them.
func (b *MemberQuoteBuilder) determineSubsidy(ctx context.Context, group *models.Group, member models.Member, geo models.RatingGeography) (*models.SubsidyResult, error) {
	household := models.Household{
		AnnualIncome: b.opts.DefaultIncome,
		Size:         b.opts.DefaultFamilySize,
	}
	incomeDefaulted, sizeDefaulted := true, true
	if member.HouseholdIncome != nil {
		household.AnnualIncome = *member.HouseholdIncome
		incomeDefaulted = false
	}
	if member.FamilySize != nil {
		household.Size = *member.FamilySize
		sizeDefaulted = false
	}

	fplAmount, err := subsidy.FPLAmount(b.opts.FPLYear, household.Size)
	if err != nil {
		return nil, errs.NewInternalError(err)
	}
	fplPercentage := household.AnnualIncome.Div(fplAmount).Mul(decimal.NewFromInt(100))

	// Ineligible households never need a benchmark; skip the Silver
	// catalog and pricing calls entirely so they cost no budget.
	if !subsidy.ApplicablePercentage(fplPercentage).Eligible {
		return &models.SubsidyResult{
			FPLPercentage:   fplPercentage,
			MonthlySubsidy:  decimal.Zero,
			Eligible:        false,
			IncomeDefaulted: incomeDefaulted,
			SizeDefaulted:   sizeDefaulted,
		}, nil
	}

	bench, err := b.benchmark.Select(ctx, geo, member.Age, member.TobaccoUse, group.EffectiveDate)
	if err != nil {
		return nil, err
	}

	result, err := subsidy.Compute(bench.Premium, household, b.opts.FPLYear)
	if err != nil {
		return nil, errs.NewInternalError(err)
	}
	result.BenchmarkDegraded = bench.Degraded
	result.IncomeDefaulted = incomeDefaulted
	result.SizeDefaulted = sizeDefaulted
	return &result, nil
}

// priceCandidates prices every active candidate for the member. Plans the
// pricing service does not know for this rating area are silently dropped;
// transport failures that survive scheduler retries abort the run.
func (b *MemberQuoteBuilder) priceCandidates(ctx context.Context, group *models.Group, member models.Member, geo models.RatingGeography, plans []models.Plan, sub *models.SubsidyResult) ([]models.PlanOffer, error) {
	contribution := b.contributionFor(group, member)
	previousTotal := member.PreviousContribution.TotalCost()

	offers := make([]models.PlanOffer, 0, len(plans))
	for _, plan := range plans {
		if !plan.Active {
			continue
		}
		premium, err := b.pricing.GetPremium(ctx, plan.ID, geo.RatingAreaID, member.Age, member.TobaccoUse, group.EffectiveDate)
		if err != nil {
			if errors.Is(err, marketplace.ErrNotFound) {
				continue
			}
			return nil, err
		}

		offer := models.PlanOffer{
			PlanID:           plan.ID,
			Carrier:          plan.Carrier,
			PlanName:         plan.Name,
			MetalLevel:       plan.MetalLevel,
			Market:           plan.Market,
			FullPremium:      premium,
			EffectivePremium: premium,
		}

		// Subsidies only apply to marketplace plans for eligible members.
		if plan.Market == models.MarketOn && sub.Eligible {
			subsidized := premium.Sub(sub.MonthlySubsidy)
			if subsidized.IsNegative() {
				subsidized = decimal.Zero
			}
			offer.Subsidy = &models.OfferSubsidy{
				MonthlySubsidy:    sub.MonthlySubsidy,
				SubsidizedPremium: subsidized,
				BenchmarkDegraded: sub.BenchmarkDegraded,
			}
			offer.EffectivePremium = subsidized
		}

		memberCost := offer.EffectivePremium.Sub(contribution)
		if memberCost.IsNegative() {
			memberCost = decimal.Zero
		}
		offer.MemberCost = memberCost
		offer.MonthlySavings = previousTotal.Sub(offer.EffectivePremium)

		offers = append(offers, offer)
	}
	return offers, nil
}

func (b *MemberQuoteBuilder) contributionFor(group *models.Group, member models.Member) decimal.Decimal {
	class := group.ClassByID(member.ClassID)
	if class == nil {
		return decimal.Zero
	}
	return class.ContributionFor(member.Age, member.DependentsCount)
}
