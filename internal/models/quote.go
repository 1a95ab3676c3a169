// internal/models/quote.go
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RatingGeography is the marketplace rating location resolved for a zip.
type RatingGeography struct {
	CountyID     string `json:"countyId"`
	CountyName   string `json:"countyName,omitempty"`
	State        string `json:"state,omitempty"`
	RatingAreaID string `json:"ratingAreaId"`
}

// SubsidyResult is the ACA premium tax credit determination for one member.
type SubsidyResult struct {
	FPLPercentage        decimal.Decimal `json:"fplPercentage"`
	ApplicablePercentage decimal.Decimal `json:"applicablePercentage"`
	BenchmarkPremium     decimal.Decimal `json:"benchmarkPremium"`
	MonthlySubsidy       decimal.Decimal `json:"monthlySubsidy"`
	Eligible             bool            `json:"eligible"`
	BenchmarkDegraded    bool            `json:"benchmarkDegraded,omitempty"`
	IncomeDefaulted      bool            `json:"incomeDefaulted,omitempty"`
	SizeDefaulted        bool            `json:"sizeDefaulted,omitempty"`
}

// MemberSummary condenses the best-offer economics for presentation.
type MemberSummary struct {
	BestPlanCost    decimal.Decimal `json:"bestPlanCost"`
	MonthlySavings  decimal.Decimal `json:"monthlySavings"`
	OnMarketPlans   int             `json:"onMarketPlans"`
	OffMarketPlans  int             `json:"offMarketPlans"`
	SubsidyEligible bool            `json:"subsidyEligible"`
}

// MemberQuoteResult is one member's priced slice of the group quote. The
// previous contribution baseline is carried along so filter reapplication
// on a stored quote never needs the original group record.
type MemberQuoteResult struct {
	MemberID             string               `json:"memberId"`
	Geography            RatingGeography      `json:"geography"`
	PreviousContribution PreviousContribution `json:"previousContribution"`
	Subsidy              SubsidyResult        `json:"subsidy"`
	RecommendedPlans     []PlanOffer          `json:"recommendedPlans"`
	BestPlan             *PlanOffer           `json:"bestPlan,omitempty"`
	ICHRAContribution    decimal.Decimal      `json:"ichraContribution"`
	MemberCost           decimal.Decimal      `json:"memberCost"`
	MonthlySavings       decimal.Decimal      `json:"monthlySavings"`
	Summary              MemberSummary        `json:"summary"`
}

// MemberSkip records a member excluded from the aggregate and why.
type MemberSkip struct {
	MemberID string `json:"memberId"`
	Reason   string `json:"reason"`
	Detail   string `json:"detail,omitempty"`
}

type EmployerSummary struct {
	OldTotalCost      decimal.Decimal `json:"oldTotalCost"`
	NewTotalCost      decimal.Decimal `json:"newTotalCost"`
	MonthlySavings    decimal.Decimal `json:"monthlySavings"`
	AnnualSavings     decimal.Decimal `json:"annualSavings"`
	SavingsPercentage decimal.Decimal `json:"savingsPercentage"`
	TotalMembers      int             `json:"totalMembers"`
}

// ComparisonSummary rolls employee-side economics and plan statistics
// across all retained members.
type ComparisonSummary struct {
	EmployeeOldTotalCost   decimal.Decimal `json:"employeeOldTotalCost"`
	EmployeeNewTotalCost   decimal.Decimal `json:"employeeNewTotalCost"`
	EmployeeMonthlySavings decimal.Decimal `json:"employeeMonthlySavings"`
	SubsidyEligibleRate    decimal.Decimal `json:"subsidyEligibleRate"`
	MinPremium             decimal.Decimal `json:"minPremium"`
	MaxPremium             decimal.Decimal `json:"maxPremium"`
	AveragePremium         decimal.Decimal `json:"averagePremium"`
	UniquePlanCount        int             `json:"uniquePlanCount"`
}

type QuoteStatus string

const (
	QuoteStatusActive  QuoteStatus = "active"
	QuoteStatusExpired QuoteStatus = "expired"
)

// QuoteResult is the root aggregate produced by one quote generation.
type QuoteResult struct {
	ID                string              `json:"id"`
	GroupID           string              `json:"groupId"`
	GeneratedAt       time.Time           `json:"generatedAt"`
	Filters           PlanFilters         `json:"filters"`
	EmployerSummary   EmployerSummary     `json:"employerSummary"`
	ComparisonSummary ComparisonSummary   `json:"comparisonSummary"`
	MemberQuotes      []MemberQuoteResult `json:"memberQuotes"`
	SelectedPlans     []PlanOffer         `json:"selectedPlans"`
	SkippedMembers    []MemberSkip        `json:"skippedMembers,omitempty"`
	AffordabilityID   string              `json:"affordabilityId"`
	Status            QuoteStatus         `json:"status"`
	ExpiresAt         time.Time           `json:"expiresAt"`
}

// FilteredQuoteView is a derived comparison over a stored quote's offers.
// The underlying QuoteResult is never mutated.
type FilteredQuoteView struct {
	QuoteID           string              `json:"quoteId"`
	GroupID           string              `json:"groupId"`
	Filters           PlanFilters         `json:"filters"`
	EmployerSummary   EmployerSummary     `json:"employerSummary"`
	ComparisonSummary ComparisonSummary   `json:"comparisonSummary"`
	MemberQuotes      []MemberQuoteResult `json:"memberQuotes"`
	AffordabilityID   string              `json:"affordabilityId"`
}
