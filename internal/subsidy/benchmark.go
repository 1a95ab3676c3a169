// internal/subsidy/benchmark.go
package subsidy

import (
	"context"
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
	"ichra-quotes/internal/marketplace"
	"ichra-quotes/internal/models"
)

// Benchmark is the second-lowest-cost Silver determination for one
// member in one rating area.
type Benchmark struct {
	Premium  decimal.Decimal
	PlanID   string
	Degraded bool // exactly one priced Silver plan was available
}

// BenchmarkSelector finds the benchmark Silver premium that anchors the
// subsidy formula.
type BenchmarkSelector struct {
	catalog marketplace.PlanCatalog
	pricing marketplace.PricingLookup
	log     logger.Logger
}

func NewBenchmarkSelector(catalog marketplace.PlanCatalog, pricing marketplace.PricingLookup, log logger.Logger) *BenchmarkSelector {
	return &BenchmarkSelector{
		catalog: catalog,
		pricing: pricing,
		log:     log.WithFields(map[string]interface{}{"component": "benchmark-selector"}),
	}
}

type pricedPlan struct {
	planID  string
	premium decimal.Decimal
}

// Select fetches all active on-market Silver plans for the member's
// county, prices each, and returns the second cheapest. Exactly one
// priced plan degrades confidence but still yields a benchmark; zero is
// a hard failure for this member's subsidy calculation.
func (s *BenchmarkSelector) Select(ctx context.Context, geo models.RatingGeography, age int, tobacco bool, asOfDate string) (*Benchmark, error) {
	page, err := s.catalog.GetPlansForCounty(ctx, geo.CountyID, models.PlanFilters{
		OnMarket:   true,
		MetalLevel: models.MetalSilver,
	})
	if err != nil {
		return nil, err
	}

	priced := make([]pricedPlan, 0, len(page.Plans))
	for _, plan := range page.Plans {
		if !plan.Active || plan.Market != models.MarketOn || plan.MetalLevel != models.MetalSilver {
			continue
		}
		premium, err := s.pricing.GetPremium(ctx, plan.ID, geo.RatingAreaID, age, tobacco, asOfDate)
		if err != nil {
			if errors.Is(err, marketplace.ErrNotFound) {
				s.log.Debug("silver plan has no premium for member", map[string]interface{}{
					"planId":       plan.ID,
					"ratingAreaId": geo.RatingAreaID,
				})
				continue
			}
			return nil, err
		}
		priced = append(priced, pricedPlan{planID: plan.ID, premium: premium})
	}

	switch len(priced) {
	case 0:
		return nil, errs.NewNoSilverBenchmarkError(geo.RatingAreaID)
	case 1:
		s.log.Warn("single silver plan in rating area, benchmark degraded", map[string]interface{}{
			"ratingAreaId": geo.RatingAreaID,
			"planId":       priced[0].planID,
		})
		return &Benchmark{Premium: priced[0].premium, PlanID: priced[0].planID, Degraded: true}, nil
	}

	sort.Slice(priced, func(i, j int) bool {
		return priced[i].premium.LessThan(priced[j].premium)
	})
	return &Benchmark{Premium: priced[1].premium, PlanID: priced[1].planID}, nil
}
