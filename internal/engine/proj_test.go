package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	geom "github.com/twpayne/go-geom"
)

// A roughly 1x1 degree cell over Kansas.
func kansasCell(t *testing.T) *Geometry {
	t.Helper()
	g, err := FromWKT("POLYGON ((-98 38, -97 38, -97 39, -98 39, -98 38))")
	require.NoError(t, err)
	return g
}

func TestTransform_SameCRS_NoOp(t *testing.T) {
	r := NewReprojector()
	g := kansasCell(t)

	out, err := r.Transform(g, "EPSG:4326", "EPSG:4326")
	require.NoError(t, err)
	assert.Same(t, g, out)
}

func TestTransform_ToAlbers_AreaIsMetric(t *testing.T) {
	r := NewReprojector()
	g := kansasCell(t)

	out, err := r.Transform(g, "EPSG:4326", "EPSG:5070")
	require.NoError(t, err)

	area, err := out.Area()
	require.NoError(t, err)
	// One degree cell at ~38N is roughly 9.7e9 m^2; accept a broad band.
	assert.Greater(t, area, 8e9)
	assert.Less(t, area, 12e9)
}

func TestTransform_RoundTrip(t *testing.T) {
	r := NewReprojector()
	g := kansasCell(t)

	albers, err := r.Transform(g, "EPSG:4326", "EPSG:5070")
	require.NoError(t, err)
	back, err := r.Transform(albers, "EPSG:5070", "EPSG:4326")
	require.NoError(t, err)

	orig, err := g.Geom()
	require.NoError(t, err)
	got, err := back.Geom()
	require.NoError(t, err)

	origFlat := orig.FlatCoords()
	gotFlat := got.FlatCoords()
	require.Equal(t, len(origFlat), len(gotFlat))
	for i := range origFlat {
		assert.Less(t, math.Abs(origFlat[i]-gotFlat[i]), 1e-6)
	}
}

func TestTransform_InvalidCRS(t *testing.T) {
	r := NewReprojector()
	g := kansasCell(t)

	_, err := r.Transform(g, "EPSG:4326", "EPSG:0")
	assert.Error(t, err)
}

func TestTransform_PreservesGeometryType(t *testing.T) {
	r := NewReprojector()

	mp := geom.NewMultiPolygonFlat(geom.XY, []float64{
		-98, 38, -97, 38, -97, 39, -98, 39, -98, 38,
	}, [][]int{{10}})
	g, err := FromGeom(mp)
	require.NoError(t, err)

	out, err := r.Transform(g, "EPSG:4326", "EPSG:5070")
	require.NoError(t, err)

	gg, err := out.Geom()
	require.NoError(t, err)
	_, ok := gg.(*geom.MultiPolygon)
	assert.True(t, ok)
}
