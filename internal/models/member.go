// internal/models/member.go
package models

import "github.com/shopspring/decimal"

// Household is the income/size input to the subsidy calculation.
type Household struct {
	AnnualIncome decimal.Decimal `json:"annualIncome"`
	Size         int             `json:"size"`
}

// PreviousContribution captures what the member's prior group coverage cost.
type PreviousContribution struct {
	EmployerAmount decimal.Decimal `json:"employerAmount"`
	MemberAmount   decimal.Decimal `json:"memberAmount"`
	PlanName       string          `json:"planName,omitempty"`
}

// TotalCost returns the combined employer + member prior premium.
func (p PreviousContribution) TotalCost() decimal.Decimal {
	return p.EmployerAmount.Add(p.MemberAmount)
}

// Member is an immutable snapshot of a covered employee, read-only
// input to a quote run.
type Member struct {
	ID                   string               `json:"id"`
	Age                  int                  `json:"age"`
	TobaccoUse           bool                 `json:"tobaccoUse"`
	Zip                  string               `json:"zip"`
	DependentsCount      int                  `json:"dependentsCount"`
	ClassID              string               `json:"classId"`
	HouseholdIncome      *decimal.Decimal     `json:"householdIncome,omitempty"`
	FamilySize           *int                 `json:"familySize,omitempty"`
	PreviousContribution PreviousContribution `json:"previousContribution"`
}

// AgeBand is a contribution tier with inclusive min/max ages.
type AgeBand struct {
	MinAge               int             `json:"minAge"`
	MaxAge               int             `json:"maxAge"`
	EmployeeContribution decimal.Decimal `json:"employeeContribution"`
}

// Contains reports whether age falls inside the band. Bounds are inclusive:
// a member whose age equals MaxAge belongs to this band, not the next.
func (b AgeBand) Contains(age int) bool {
	return age >= b.MinAge && age <= b.MaxAge
}

// ContributionClass defines the employer's ICHRA contribution for a
// class of members, either flat or age-banded.
type ContributionClass struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	EmployeeContribution  decimal.Decimal `json:"employeeContribution"`
	DependentContribution decimal.Decimal `json:"dependentContribution"`
	AgeBands              []AgeBand       `json:"ageBands,omitempty"`
}

// ContributionFor resolves the monthly ICHRA contribution for a member of
// the given age. Age bands win when one matches; otherwise the class's
// flat amounts apply (dependent contribution per dependent).
func (c ContributionClass) ContributionFor(age, dependents int) decimal.Decimal {
	for _, band := range c.AgeBands {
		if band.Contains(age) {
			return band.EmployeeContribution
		}
	}
	total := c.EmployeeContribution
	if dependents > 0 {
		total = total.Add(c.DependentContribution.Mul(decimal.NewFromInt(int64(dependents))))
	}
	return total
}

// Group is the employer group being quoted.
type Group struct {
	ID            string              `json:"id"`
	ExternalID    string              `json:"externalId"`
	Name          string              `json:"name"`
	EffectiveDate string              `json:"effectiveDate"`
	PlanYear      int                 `json:"planYear"`
	ContactEmail  string              `json:"contactEmail,omitempty"`
	ContactPhone  string              `json:"contactPhone,omitempty"`
	Members       []Member            `json:"members"`
	Classes       []ContributionClass `json:"classes"`
}

// ClassByID returns the contribution class with the given id, or nil.
func (g *Group) ClassByID(id string) *ContributionClass {
	for i := range g.Classes {
		if g.Classes[i].ID == id {
			return &g.Classes[i]
		}
	}
	return nil
}
