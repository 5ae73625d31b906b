package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	geom "github.com/twpayne/go-geom"
)

func square(t *testing.T, minX, minY, maxX, maxY float64) *Geometry {
	t.Helper()
	g := geom.NewPolygonFlat(geom.XY, []float64{
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY,
	}, []int{10})
	p, err := FromGeom(g)
	require.NoError(t, err)
	return p
}

func TestWithin(t *testing.T) {
	inner := square(t, 1, 1, 2, 2)
	outer := square(t, 0, 0, 10, 10)

	within, err := inner.Within(outer)
	require.NoError(t, err)
	assert.True(t, within)

	within, err = outer.Within(inner)
	require.NoError(t, err)
	assert.False(t, within)
}

func TestPrepared(t *testing.T) {
	state := square(t, 0, 0, 10, 10).Prepare()

	got, err := state.Contains(square(t, 2, 2, 4, 4))
	require.NoError(t, err)
	assert.True(t, got)

	got, err = state.Contains(square(t, 8, 8, 12, 12))
	require.NoError(t, err)
	assert.False(t, got)

	got, err = state.Intersects(square(t, 8, 8, 12, 12))
	require.NoError(t, err)
	assert.True(t, got)

	got, err = state.Intersects(square(t, 20, 20, 21, 21))
	require.NoError(t, err)
	assert.False(t, got)
}

func TestBounds(t *testing.T) {
	box, err := square(t, -98, 38, -97, 39).Bounds()
	require.NoError(t, err)
	assert.Equal(t, Box{MinX: -98, MinY: 38, MaxX: -97, MaxY: 39}, box)
}

func TestBox_Contains(t *testing.T) {
	outer := Box{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}

	assert.True(t, outer.Contains(Box{MinX: 1, MinY: 1, MaxX: 9, MaxY: 9}))
	// Containment is inclusive: a box equal to its container passes so the
	// exact predicate gets the final say.
	assert.True(t, outer.Contains(outer))
	assert.False(t, outer.Contains(Box{MinX: 5, MinY: 5, MaxX: 11, MaxY: 9}))
}

func TestIntersects(t *testing.T) {
	a := square(t, 0, 0, 5, 5)
	b := square(t, 4, 4, 8, 8)
	c := square(t, 6, 6, 7, 7)

	got, err := a.Intersects(b)
	require.NoError(t, err)
	assert.True(t, got)

	got, err = a.Intersects(c)
	require.NoError(t, err)
	assert.False(t, got)
}

func TestIntersection_Area(t *testing.T) {
	a := square(t, 0, 0, 4, 4)
	b := square(t, 2, 0, 6, 4)

	clipped, err := a.Intersection(b)
	require.NoError(t, err)

	area, err := clipped.Area()
	require.NoError(t, err)
	assert.InDelta(t, 8.0, area, 1e-9)
}

func TestIntersection_Disjoint_IsEmpty(t *testing.T) {
	a := square(t, 0, 0, 1, 1)
	b := square(t, 5, 5, 6, 6)

	clipped, err := a.Intersection(b)
	require.NoError(t, err)

	empty, err := clipped.IsEmpty()
	require.NoError(t, err)
	assert.True(t, empty)
}

func TestUnionAll(t *testing.T) {
	a := square(t, 0, 0, 1, 1)
	b := square(t, 1, 0, 2, 1)
	c := square(t, 2, 0, 3, 1)

	u, err := UnionAll([]*Geometry{a, b, c})
	require.NoError(t, err)

	area, err := u.Area()
	require.NoError(t, err)
	assert.InDelta(t, 3.0, area, 1e-9)
}

func TestUnionAll_Empty(t *testing.T) {
	_, err := UnionAll(nil)
	assert.Error(t, err)
}

func TestCentroid(t *testing.T) {
	a := square(t, 0, 0, 2, 2)

	c, err := a.Centroid()
	require.NoError(t, err)

	g, err := c.Geom()
	require.NoError(t, err)
	pt, ok := g.(*geom.Point)
	require.True(t, ok)
	assert.InDelta(t, 1.0, pt.X(), 1e-9)
	assert.InDelta(t, 1.0, pt.Y(), 1e-9)
}

func TestRepairZeroBuffer_Bowtie(t *testing.T) {
	// Self-intersecting "bowtie" ring.
	bowtie, err := FromWKT("POLYGON ((0 0, 4 4, 4 0, 0 4, 0 0))")
	require.NoError(t, err)

	valid, err := bowtie.IsValid()
	require.NoError(t, err)
	require.False(t, valid)

	repaired, err := bowtie.RepairZeroBuffer()
	require.NoError(t, err)

	valid, err = repaired.IsValid()
	require.NoError(t, err)
	assert.True(t, valid)
}

func TestSimplify_ReducesVertices(t *testing.T) {
	// Square with a redundant midpoint on each edge.
	g, err := FromWKT("POLYGON ((0 0, 5 0.01, 10 0, 10 10, 0 10, 0 0))")
	require.NoError(t, err)

	simplified, err := g.Simplify(1.0)
	require.NoError(t, err)

	gg, err := simplified.Geom()
	require.NoError(t, err)
	poly, ok := gg.(*geom.Polygon)
	require.True(t, ok)
	assert.Less(t, poly.LinearRing(0).NumCoords(), 6)
}

func TestSimplify_Idempotent(t *testing.T) {
	g, err := FromWKT("POLYGON ((0 0, 5 0.01, 10 0, 10 10, 0 10, 0 0))")
	require.NoError(t, err)

	once, err := g.Simplify(1.0)
	require.NoError(t, err)
	twice, err := once.Simplify(1.0)
	require.NoError(t, err)

	a1, err := once.Area()
	require.NoError(t, err)
	a2, err := twice.Area()
	require.NoError(t, err)
	assert.InDelta(t, a1, a2, 1e-9)
}

func TestFromWKT_Invalid(t *testing.T) {
	_, err := FromWKT("POLYGON oops")
	assert.Error(t, err)
}

func TestGeomRoundTrip(t *testing.T) {
	a := square(t, 0, 0, 3, 3)
	g, err := a.Geom()
	require.NoError(t, err)

	b, err := FromGeom(g)
	require.NoError(t, err)

	areaA, err := a.Area()
	require.NoError(t, err)
	areaB, err := b.Area()
	require.NoError(t, err)
	assert.Equal(t, areaA, areaB)
}
