package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/zip3-etl/internal/zip3"
)

// printReport displays a run summary followed by the coverage table.
func printReport(rep *zip3.Report) {
	fmt.Printf("Run %s (%s) finished in %s\n", rep.RunID, rep.Mode, rep.Elapsed.Round(10*time.Millisecond))
	fmt.Printf("  ZCTAs: %d  states: %d\n", rep.ZCTACount, rep.StateCount)
	fmt.Printf("  assigned: %d (within: %d, centroid: %d)  unassigned: %d\n",
		rep.Assigned(), rep.AssignedWithin, rep.AssignedCentroid, rep.Unassigned)
	if rep.Mode == zip3.ModeTrimmed {
		fmt.Printf("  dropped empty after trim: %d\n", rep.TrimmedEmpty)
	}
	fmt.Printf("  dissolved groups: %d  invalid after repair: %d  invalid after simplify: %d\n",
		rep.DissolvedCount, rep.InvalidAfterRepair, rep.InvalidAfterSimplify)

	if len(rep.UnassignedGEOIDs) > 0 {
		show := rep.UnassignedGEOIDs
		if len(show) > 10 {
			show = show[:10]
		}
		fmt.Printf("  unassigned GEOIDs: %s", strings.Join(show, ", "))
		if len(rep.UnassignedGEOIDs) > 10 {
			fmt.Printf(" (+%d more)", len(rep.UnassignedGEOIDs)-10)
		}
		fmt.Println()
	}

	printCoverage(rep)
}

// printCoverage displays the per-state coverage table, worst states first.
func printCoverage(rep *zip3.Report) {
	if len(rep.Coverage) == 0 {
		fmt.Println("No coverage computed")
		return
	}

	fmt.Printf("%-6s %10s %-10s\n", "State", "Coverage", "Band")
	fmt.Println(strings.Repeat("-", 30))
	for _, c := range rep.Coverage {
		fmt.Printf("%-6s %9.1f%% %-10s\n", c.State, c.Ratio*100, c.Band())
	}
}
