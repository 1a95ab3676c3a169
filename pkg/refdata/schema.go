// pkg/refdata/schema.go
package refdata

// Registry is the on-disk reference dataset: federal poverty guidelines
// keyed by plan year. Deployments ship an updated file each January
// instead of waiting for a binary release.
type Registry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	FPLTables   []FPLTable `json:"fplTables"`
}

// FPLTable carries one plan year's poverty guidelines for the 48
// contiguous states: amounts for household sizes 1-8 plus the fixed
// per-person increment applied beyond size 8.
type FPLTable struct {
	PlanYear           int     `json:"planYear"`
	HouseholdAmounts   []int64 `json:"householdAmounts"`
	PerPersonIncrement int64   `json:"perPersonIncrement"`
}
