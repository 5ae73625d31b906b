package zip3

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDissolve_MergesSameGroup(t *testing.T) {
	// Two adjacent ZCTAs sharing ZIP3 "111" in state CC collapse into a
	// single record whose area is the union of both.
	assignments := []Assignment{
		{GEOID: "11100", ZIP3: "111", State: "CC", Geom: mustWKT(t, squareWKT(0, 0, 2, 2))},
		{GEOID: "11199", ZIP3: "111", State: "CC", Geom: mustWKT(t, squareWKT(2, 0, 4, 2))},
	}

	rep := NewReport(ModeDissolved)
	got, err := Dissolve(context.Background(), assignments, 2, rep)
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "CC", got[0].State)
	assert.Equal(t, "111", got[0].ZIP3)

	area, err := got[0].Geom.Area()
	require.NoError(t, err)
	assert.InDelta(t, 8.0, area, 1e-9)

	assert.Equal(t, 1, rep.DissolvedCount)
	assert.Equal(t, 0, rep.InvalidAfterRepair)
}

func TestDissolve_SeparateGroupsSorted(t *testing.T) {
	assignments := []Assignment{
		{GEOID: "22200", ZIP3: "222", State: "CC", Geom: mustWKT(t, squareWKT(10, 0, 12, 2))},
		{GEOID: "11100", ZIP3: "111", State: "CC", Geom: mustWKT(t, squareWKT(0, 0, 2, 2))},
		{GEOID: "33300", ZIP3: "333", State: "BB", Geom: mustWKT(t, squareWKT(20, 0, 22, 2))},
	}

	rep := NewReport(ModeDissolved)
	got, err := Dissolve(context.Background(), assignments, 3, rep)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, "BB", got[0].State)
	assert.Equal(t, "333", got[0].ZIP3)
	assert.Equal(t, "CC", got[1].State)
	assert.Equal(t, "111", got[1].ZIP3)
	assert.Equal(t, "CC", got[2].State)
	assert.Equal(t, "222", got[2].ZIP3)
	assert.Equal(t, 3, rep.DissolvedCount)
}

func TestDissolve_DisjointMembersKeptAsMultiPolygon(t *testing.T) {
	// ZIP3 territory is not always contiguous; the union of disjoint parts
	// must preserve total area.
	assignments := []Assignment{
		{GEOID: "44400", ZIP3: "444", State: "DD", Geom: mustWKT(t, squareWKT(0, 0, 1, 1))},
		{GEOID: "44401", ZIP3: "444", State: "DD", Geom: mustWKT(t, squareWKT(5, 5, 6, 6))},
	}

	rep := NewReport(ModeDissolved)
	got, err := Dissolve(context.Background(), assignments, 1, rep)
	require.NoError(t, err)

	require.Len(t, got, 1)
	area, err := got[0].Geom.Area()
	require.NoError(t, err)
	assert.InDelta(t, 2.0, area, 1e-9)
}

func TestDissolve_RepairsInvalidGeometry(t *testing.T) {
	// A single-member group skips the union, so a self-intersecting bowtie
	// flows straight to the validity check and the zero-buffer repair.
	bowtie := mustWKT(t, "POLYGON ((0 0, 4 4, 4 0, 0 4, 0 0))")
	valid, err := bowtie.IsValid()
	require.NoError(t, err)
	require.False(t, valid)

	assignments := []Assignment{
		{GEOID: "55500", ZIP3: "555", State: "EE", Geom: bowtie},
	}

	rep := NewReport(ModeDissolved)
	got, err := Dissolve(context.Background(), assignments, 1, rep)
	require.NoError(t, err)

	require.Len(t, got, 1)
	valid, err = got[0].Geom.IsValid()
	require.NoError(t, err)
	assert.True(t, valid)
	assert.Equal(t, 0, rep.InvalidAfterRepair)
}

func TestDissolve_Empty(t *testing.T) {
	rep := NewReport(ModeDissolved)
	got, err := Dissolve(context.Background(), nil, 1, rep)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, 0, rep.DissolvedCount)
}
