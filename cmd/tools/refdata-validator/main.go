// cmd/tools/refdata-validator/main.go
//
// Validates a poverty-guideline reference dataset before it is shipped
// to a deployment:
//
//	go run ./cmd/tools/refdata-validator -path configs/fpl-refdata.json
package main

import (
	"flag"
	"fmt"
	"os"

	"ichra-quotes/pkg/refdata"
)

func main() {
	path := flag.String("path", "configs/fpl-refdata.json", "Path to the reference dataset")
	flag.Parse()

	reg, err := refdata.LoadRegistry(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s is not a valid reference dataset: %v\n", *path, err)
		os.Exit(1)
	}

	fmt.Printf("%s is valid (version %s, updated %s)\n", *path, reg.Version, reg.LastUpdated)
	for _, table := range reg.FPLTables {
		fmt.Printf("  plan year %d: size-1 amount %d, size-8 amount %d, increment %d\n",
			table.PlanYear,
			table.HouseholdAmounts[0],
			table.HouseholdAmounts[7],
			table.PerPersonIncrement,
		)
	}
}
