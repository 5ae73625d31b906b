package zip3

import (
	"time"

	"github.com/google/uuid"
)

// Mode identifies which pipeline produced a report.
type Mode string

const (
	ModeDissolved Mode = "dissolved"
	ModeTrimmed   Mode = "trimmed"
)

// Report aggregates the non-fatal statistics of one pipeline run. Stages
// record warnings here instead of failing per record; the caller renders the
// report once the run completes.
type Report struct {
	RunID     uuid.UUID
	Mode      Mode
	StartedAt time.Time
	Elapsed   time.Duration

	ZCTACount  int
	StateCount int

	AssignedWithin   int
	AssignedCentroid int
	Unassigned       int
	UnassignedGEOIDs []string

	TrimmedEmpty int

	DissolvedCount       int
	InvalidAfterRepair   int
	InvalidAfterSimplify int

	Coverage []StateCoverage
}

// NewReport creates a report for one run, stamped with a fresh run ID.
func NewReport(mode Mode) *Report {
	return &Report{
		RunID:     uuid.New(),
		Mode:      mode,
		StartedAt: time.Now().UTC(),
	}
}

// Finish records the total elapsed time.
func (r *Report) Finish() {
	r.Elapsed = time.Since(r.StartedAt)
}

// Assigned returns the total number of assigned features across both tiers.
func (r *Report) Assigned() int {
	return r.AssignedWithin + r.AssignedCentroid
}

// MaxCoverage returns the largest per-state coverage ratio, or 0 when no
// coverage has been computed.
func (r *Report) MaxCoverage() float64 {
	var max float64
	for _, c := range r.Coverage {
		if c.Ratio > max {
			max = c.Ratio
		}
	}
	return max
}
