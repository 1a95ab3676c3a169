// internal/models/affordability.go
package models

import "time"

// CalculationStatus is the lifecycle of a group affordability calculation.
type CalculationStatus string

const (
	CalculationPending   CalculationStatus = "pending"
	CalculationCompleted CalculationStatus = "completed"
	CalculationFailed    CalculationStatus = "failed"
)

// MemberCompliance is the per-member determination returned by the
// external affordability service, merged verbatim.
type MemberCompliance struct {
	MemberID       string  `json:"memberId"`
	Affordable     bool    `json:"affordable"`
	RequiredAmount float64 `json:"requiredAmount,omitempty"`
	SafeHarbor     string  `json:"safeHarbor,omitempty"`
}

// AffordabilitySummary is the external service's group rollup.
type AffordabilitySummary struct {
	TotalMembers      int    `json:"totalMembers"`
	AffordableMembers int    `json:"affordableMembers"`
	Overall           string `json:"overall"`
}

// AffordabilityCalculation tracks one submission to the external
// affordability service for a group.
type AffordabilityCalculation struct {
	CalculationID string               `json:"calculationId"`
	GroupID       string               `json:"groupId"`
	Status        CalculationStatus    `json:"status"`
	SubmittedAt   time.Time            `json:"submittedAt"`
	CompletedAt   *time.Time           `json:"completedAt,omitempty"`
	PerMember     []MemberCompliance   `json:"perMember,omitempty"`
	Summary       AffordabilitySummary `json:"summary"`
	FailureReason string               `json:"failureReason,omitempty"`
}

// Terminal reports whether the calculation will not change again.
func (c *AffordabilityCalculation) Terminal() bool {
	return c.Status == CalculationCompleted || c.Status == CalculationFailed
}
