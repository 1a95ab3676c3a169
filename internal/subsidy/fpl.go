// internal/subsidy/fpl.go
package subsidy

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// fplTable holds the federal poverty guidelines (48 contiguous states)
// for a plan year: the amounts for household sizes 1-8 plus the fixed
// per-person increment applied beyond size 8.
type fplTable struct {
	bySize    [8]int64
	increment int64
}

var fplTables = map[int]fplTable{
	2023: {
		bySize:    [8]int64{14580, 19720, 24860, 30000, 35140, 40280, 45420, 50560},
		increment: 5140,
	},
	2024: {
		bySize:    [8]int64{15060, 20440, 25820, 31200, 36580, 41960, 47340, 52720},
		increment: 5380,
	},
	2025: {
		bySize:    [8]int64{15650, 21150, 26650, 32150, 37650, 43150, 48650, 54150},
		increment: 5500,
	},
}

// RegisterFPLTable installs or replaces the guideline table for a plan
// year. Called once at startup when a reference dataset is configured;
// not safe for concurrent use with FPLAmount.
func RegisterFPLTable(planYear int, amounts [8]int64, increment int64) {
	fplTables[planYear] = fplTable{bySize: amounts, increment: increment}
}

// FPLAmount returns the poverty guideline for the household size in the
// given plan year. Sizes beyond 8 add the per-person increment to the
// size-8 amount.
func FPLAmount(fplYear, householdSize int) (decimal.Decimal, error) {
	table, ok := fplTables[fplYear]
	if !ok {
		return decimal.Zero, fmt.Errorf("no FPL table for plan year %d", fplYear)
	}
	if householdSize < 1 {
		return decimal.Zero, fmt.Errorf("household size must be at least 1, got %d", householdSize)
	}
	if householdSize <= 8 {
		return decimal.NewFromInt(table.bySize[householdSize-1]), nil
	}
	extra := int64(householdSize-8) * table.increment
	return decimal.NewFromInt(table.bySize[7] + extra), nil
}
