package zip3

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestNewReport(t *testing.T) {
	r := NewReport(ModeTrimmed)
	assert.Equal(t, ModeTrimmed, r.Mode)
	assert.NotEqual(t, uuid.Nil, r.RunID)
	assert.False(t, r.StartedAt.IsZero())
}

func TestReport_Assigned(t *testing.T) {
	r := &Report{AssignedWithin: 900, AssignedCentroid: 50}
	assert.Equal(t, 950, r.Assigned())
}

func TestReport_MaxCoverage(t *testing.T) {
	r := &Report{}
	assert.Zero(t, r.MaxCoverage())

	r.Coverage = []StateCoverage{
		{State: "KA", Ratio: 0.91},
		{State: "KB", Ratio: 1.07},
		{State: "KC", Ratio: 0.99},
	}
	assert.InDelta(t, 1.07, r.MaxCoverage(), 1e-9)
}

func TestReport_Finish(t *testing.T) {
	r := NewReport(ModeDissolved)
	r.Finish()
	assert.GreaterOrEqual(t, r.Elapsed.Nanoseconds(), int64(0))
}
