// pkg/refdata/registry.go
package refdata

import (
	"encoding/json"
	"fmt"
	"os"
)

func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, err
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Validate checks internal consistency before the dataset is trusted
// for subsidy math.
func (r *Registry) Validate() error {
	if len(r.FPLTables) == 0 {
		return fmt.Errorf("registry has no FPL tables")
	}
	seen := make(map[int]bool, len(r.FPLTables))
	for _, t := range r.FPLTables {
		if t.PlanYear < 2000 || t.PlanYear > 2100 {
			return fmt.Errorf("implausible plan year %d", t.PlanYear)
		}
		if seen[t.PlanYear] {
			return fmt.Errorf("duplicate FPL table for plan year %d", t.PlanYear)
		}
		seen[t.PlanYear] = true

		if len(t.HouseholdAmounts) != 8 {
			return fmt.Errorf("plan year %d: expected 8 household amounts, got %d", t.PlanYear, len(t.HouseholdAmounts))
		}
		for i, amount := range t.HouseholdAmounts {
			if amount <= 0 {
				return fmt.Errorf("plan year %d: household amount for size %d must be positive", t.PlanYear, i+1)
			}
			if i > 0 && amount <= t.HouseholdAmounts[i-1] {
				return fmt.Errorf("plan year %d: household amounts must increase with size", t.PlanYear)
			}
		}
		if t.PerPersonIncrement <= 0 {
			return fmt.Errorf("plan year %d: per-person increment must be positive", t.PlanYear)
		}
	}
	return nil
}
