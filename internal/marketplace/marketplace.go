// Package marketplace defines the external collaborators the quote
// engine consumes: rating geography, plan catalogs and premium pricing.
// Implementations route every request through the shared rate scheduler.
package marketplace

import (
	"context"

	"github.com/shopspring/decimal"

	"ichra-quotes/internal/models"
)

// CountyResolution is the outcome of a zip lookup. Some zips span
// multiple rating counties; the first entry is the primary match.
type CountyResolution struct {
	Single   bool                     `json:"single"`
	Counties []models.RatingGeography `json:"counties"`
}

// Primary returns the county used for quoting.
func (r *CountyResolution) Primary() models.RatingGeography {
	return r.Counties[0]
}

// GeoResolver maps a zip code to marketplace rating geography.
type GeoResolver interface {
	ResolveCounty(ctx context.Context, zip string) (*CountyResolution, error)
}

// PlanPage is one page of catalog results.
type PlanPage struct {
	Plans    []models.Plan `json:"plans"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

// PlanCatalog retrieves eligible plans for a rating county.
type PlanCatalog interface {
	GetPlansForCounty(ctx context.Context, countyID string, filters models.PlanFilters) (*PlanPage, error)
}

// PricingLookup prices one plan for one member.
type PricingLookup interface {
	GetPremium(ctx context.Context, planID, ratingAreaID string, age int, tobacco bool, asOfDate string) (decimal.Decimal, error)
}
