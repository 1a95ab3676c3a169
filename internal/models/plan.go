// internal/models/plan.go
package models

import "github.com/shopspring/decimal"

// Market distinguishes marketplace (subsidy-eligible) plans from
// off-exchange distribution.
type Market string

const (
	MarketOn  Market = "on"
	MarketOff Market = "off"
)

type MetalLevel string

const (
	MetalBronze   MetalLevel = "bronze"
	MetalSilver   MetalLevel = "silver"
	MetalGold     MetalLevel = "gold"
	MetalPlatinum MetalLevel = "platinum"
)

// Plan is a catalog entry as returned by the plan catalog collaborator.
type Plan struct {
	ID          string     `json:"id"`
	Carrier     string     `json:"carrier"`
	Name        string     `json:"name"`
	MetalLevel  MetalLevel `json:"metalLevel"`
	Market      Market     `json:"market"`
	HSAEligible bool       `json:"hsaEligible"`
	Active      bool       `json:"active"`
}

// PlanFilters narrows catalog queries and offer re-filtering.
type PlanFilters struct {
	OnMarket    bool       `json:"onMarket"`
	OffMarket   bool       `json:"offMarket"`
	MetalLevel  MetalLevel `json:"metalLevel,omitempty"`
	Carrier     string     `json:"carrier,omitempty"`
	HSAEligible *bool      `json:"hsaEligible,omitempty"`
	Page        int        `json:"page,omitempty"`
	PageSize    int        `json:"pageSize,omitempty"`
}

// OfferSubsidy carries the subsidy-adjusted pricing that only exists for
// on-market offers priced for a subsidy-eligible member.
type OfferSubsidy struct {
	MonthlySubsidy     decimal.Decimal `json:"monthlySubsidy"`
	SubsidizedPremium  decimal.Decimal `json:"subsidizedPremium"`
	BenchmarkDegraded  bool            `json:"benchmarkDegraded,omitempty"`
}

// PlanOffer is a plan priced for one member in one run. Subsidy is nil for
// off-market offers and for ineligible members; EffectivePremium is the
// premium the member would actually pay before the ICHRA contribution.
type PlanOffer struct {
	PlanID           string          `json:"planId"`
	Carrier          string          `json:"carrier"`
	PlanName         string          `json:"planName"`
	MetalLevel       MetalLevel      `json:"metalLevel"`
	Market           Market          `json:"market"`
	FullPremium      decimal.Decimal `json:"fullPremium"`
	Subsidy          *OfferSubsidy   `json:"subsidy,omitempty"`
	EffectivePremium decimal.Decimal `json:"effectivePremium"`
	MemberCost       decimal.Decimal `json:"memberCost"`
	MonthlySavings   decimal.Decimal `json:"monthlySavings"`
}
