// Package engine wraps the GEOS and PROJ libraries behind a small geometry
// facade: predicates, overlay operations, validity repair, simplification,
// area/centroid computation, and CRS reprojection. All pipeline stages consume
// geometry exclusively through this package.
package engine

import (
	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// Geometry wraps a GEOS geometry.
type Geometry struct {
	g *geos.Geom
}

// do runs a GEOS operation, converting GEOS panics into errors. go-geos
// reports errors from the underlying C library by panicking.
func do[T any](op string, f func() T) (out T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = eris.Errorf("engine: %s: %v", op, r)
		}
	}()
	out = f()
	return out, nil
}

// FromGeom converts a go-geom geometry into an engine Geometry.
func FromGeom(g geom.T) (*Geometry, error) {
	data, err := wkb.Marshal(g, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "engine: marshal WKB")
	}
	return FromWKB(data)
}

// FromWKB parses a WKB-encoded geometry.
func FromWKB(data []byte) (*Geometry, error) {
	g, err := geos.NewGeomFromWKB(data)
	if err != nil {
		return nil, eris.Wrap(err, "engine: parse WKB")
	}
	return &Geometry{g: g}, nil
}

// FromWKT parses a WKT-encoded geometry.
func FromWKT(wkt string) (*Geometry, error) {
	g, err := geos.NewGeomFromWKT(wkt)
	if err != nil {
		return nil, eris.Wrap(err, "engine: parse WKT")
	}
	return &Geometry{g: g}, nil
}

// Geom converts the Geometry back into a go-geom geometry.
func (p *Geometry) Geom() (geom.T, error) {
	data, err := do("encode WKB", func() []byte { return p.g.ToWKB() })
	if err != nil {
		return nil, err
	}
	g, err := wkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "engine: unmarshal WKB")
	}
	return g, nil
}

// WKT renders the geometry as WKT. Intended for logs and tests.
func (p *Geometry) WKT() string {
	s, err := do("encode WKT", func() string { return p.g.ToWKT() })
	if err != nil {
		return "<invalid geometry>"
	}
	return s
}

// Within reports whether p is fully contained in o.
func (p *Geometry) Within(o *Geometry) (bool, error) {
	return do("within", func() bool { return p.g.Within(o.g) })
}

// Box is an axis-aligned bounding box.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// Contains reports whether b fully contains other.
func (b Box) Contains(other Box) bool {
	return other.MinX >= b.MinX && other.MinY >= b.MinY &&
		other.MaxX <= b.MaxX && other.MaxY <= b.MaxY
}

// Bounds returns the geometry's axis-aligned bounding box.
func (p *Geometry) Bounds() (Box, error) {
	b, err := do("bounds", func() *geos.Box2D { return p.g.Bounds() })
	if err != nil {
		return Box{}, err
	}
	return Box{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY}, nil
}

// Prepared caches internal indexes of one geometry for repeated predicate
// tests against many others, a large win when a handful of state boundaries
// are probed by tens of thousands of features.
type Prepared struct {
	pg *geos.PrepGeom
}

// Prepare builds the prepared form of the geometry.
func (p *Geometry) Prepare() *Prepared {
	return &Prepared{pg: p.g.Prepare()}
}

// Contains reports whether the prepared geometry fully contains o.
func (p *Prepared) Contains(o *Geometry) (bool, error) {
	return do("prepared contains", func() bool { return p.pg.Contains(o.g) })
}

// Intersects reports whether the prepared geometry shares any point with o.
func (p *Prepared) Intersects(o *Geometry) (bool, error) {
	return do("prepared intersects", func() bool { return p.pg.Intersects(o.g) })
}

// Intersects reports whether p and o share any point.
func (p *Geometry) Intersects(o *Geometry) (bool, error) {
	return do("intersects", func() bool { return p.g.Intersects(o.g) })
}

// Intersection returns the geometric intersection of p and o.
func (p *Geometry) Intersection(o *Geometry) (*Geometry, error) {
	g, err := do("intersection", func() *geos.Geom { return p.g.Intersection(o.g) })
	if err != nil {
		return nil, err
	}
	return &Geometry{g: g}, nil
}

// Union returns the union of p and o.
func (p *Geometry) Union(o *Geometry) (*Geometry, error) {
	g, err := do("union", func() *geos.Geom { return p.g.Union(o.g) })
	if err != nil {
		return nil, err
	}
	return &Geometry{g: g}, nil
}

// UnionAll dissolves a group of geometries into one.
func UnionAll(gs []*Geometry) (*Geometry, error) {
	if len(gs) == 0 {
		return nil, eris.New("engine: union of empty group")
	}
	out := gs[0]
	for _, g := range gs[1:] {
		u, err := out.Union(g)
		if err != nil {
			return nil, err
		}
		out = u
	}
	return out, nil
}

// Centroid returns the centroid point of the geometry.
func (p *Geometry) Centroid() (*Geometry, error) {
	g, err := do("centroid", func() *geos.Geom { return p.g.Centroid() })
	if err != nil {
		return nil, err
	}
	return &Geometry{g: g}, nil
}

// IsValid reports whether the geometry is topologically valid.
func (p *Geometry) IsValid() (bool, error) {
	return do("validity test", func() bool { return p.g.IsValid() })
}

// IsEmpty reports whether the geometry is empty.
func (p *Geometry) IsEmpty() (bool, error) {
	return do("emptiness test", func() bool { return p.g.IsEmpty() })
}

// RepairZeroBuffer applies the zero-distance-buffer idiom that resolves most
// self-intersection artifacts introduced by overlay operations.
func (p *Geometry) RepairZeroBuffer() (*Geometry, error) {
	g, err := do("zero buffer repair", func() *geos.Geom { return p.g.Buffer(0, 8) })
	if err != nil {
		return nil, err
	}
	return &Geometry{g: g}, nil
}

// Simplify reduces vertex density with a Douglas-Peucker distance tolerance.
// The tolerance is in the geometry's CRS units, so callers must reproject to a
// linear-unit CRS first.
func (p *Geometry) Simplify(tolerance float64) (*Geometry, error) {
	g, err := do("simplify", func() *geos.Geom { return p.g.Simplify(tolerance) })
	if err != nil {
		return nil, err
	}
	return &Geometry{g: g}, nil
}

// Area returns the geometry's area in squared CRS units.
func (p *Geometry) Area() (float64, error) {
	return do("area", func() float64 { return p.g.Area() })
}
