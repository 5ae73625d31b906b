package zip3

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrim_ClipsToOwningState(t *testing.T) {
	states := testStates(t)
	// Straddler assigned to BB by centroid; after trim only the BB-side
	// portion (x in [10,14]) must remain.
	assignments := []Assignment{
		{GEOID: "54321", ZIP3: "543", State: "BB", Tier: TierCentroid, Geom: mustWKT(t, squareWKT(8, 2, 14, 6))},
	}

	rep := NewReport(ModeTrimmed)
	got, err := Trim(context.Background(), assignments, states, 2, rep)
	require.NoError(t, err)

	require.Len(t, got, 1)
	area, err := got[0].Geom.Area()
	require.NoError(t, err)
	assert.InDelta(t, 16.0, area, 1e-9) // 4 wide x 4 tall

	within, err := got[0].Geom.Within(mustWKT(t, squareWKT(10, 0, 20, 10)))
	require.NoError(t, err)
	assert.True(t, within)
	assert.Equal(t, 0, rep.TrimmedEmpty)
}

func TestTrim_InteriorGeometryUnchanged(t *testing.T) {
	states := testStates(t)
	assignments := []Assignment{
		{GEOID: "12345", ZIP3: "123", State: "AA", Tier: TierWithin, Geom: mustWKT(t, squareWKT(2, 2, 4, 4))},
	}

	rep := NewReport(ModeTrimmed)
	got, err := Trim(context.Background(), assignments, states, 1, rep)
	require.NoError(t, err)

	require.Len(t, got, 1)
	area, err := got[0].Geom.Area()
	require.NoError(t, err)
	assert.InDelta(t, 4.0, area, 1e-9)
}

func TestTrim_DropsEmptyIntersections(t *testing.T) {
	states := testStates(t)
	// Misassigned record: geometry is entirely outside its owning state, so
	// the clip comes back empty. Dropped and counted, not fatal.
	assignments := []Assignment{
		{GEOID: "00001", ZIP3: "000", State: "AA", Tier: TierCentroid, Geom: mustWKT(t, squareWKT(15, 2, 17, 4))},
		{GEOID: "12345", ZIP3: "123", State: "AA", Tier: TierWithin, Geom: mustWKT(t, squareWKT(1, 1, 2, 2))},
	}

	rep := NewReport(ModeTrimmed)
	got, err := Trim(context.Background(), assignments, states, 2, rep)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "12345", got[0].GEOID)
	assert.Equal(t, 1, rep.TrimmedEmpty)
}

func TestTrim_MissingStateBoundary(t *testing.T) {
	assignments := []Assignment{
		{GEOID: "12345", ZIP3: "123", State: "XX", Geom: mustWKT(t, squareWKT(1, 1, 2, 2))},
	}

	rep := NewReport(ModeTrimmed)
	_, err := Trim(context.Background(), assignments, testStates(t), 1, rep)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "XX")
}

func TestTrim_StableAcrossConcurrency(t *testing.T) {
	states := testStates(t)
	assignments := []Assignment{
		{GEOID: "10001", ZIP3: "100", State: "AA", Geom: mustWKT(t, squareWKT(1, 1, 3, 3))},
		{GEOID: "20002", ZIP3: "200", State: "BB", Geom: mustWKT(t, squareWKT(11, 1, 13, 3))},
		{GEOID: "10002", ZIP3: "100", State: "AA", Geom: mustWKT(t, squareWKT(5, 5, 7, 7))},
	}

	collect := func(concurrency int) []string {
		rep := NewReport(ModeTrimmed)
		got, err := Trim(context.Background(), assignments, states, concurrency, rep)
		require.NoError(t, err)
		ids := make([]string, len(got))
		for i, a := range got {
			ids[i] = a.GEOID
		}
		return ids
	}

	assert.Equal(t, collect(1), collect(4))
}
