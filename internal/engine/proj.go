package engine

import (
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-proj/v10"
)

// Reprojector transforms geometries between coordinate reference systems.
// Transformations are built lazily and cached per (source, target) pair.
// PROJ transformation objects are not safe for concurrent use, so all calls
// serialize on an internal mutex.
type Reprojector struct {
	mu    sync.Mutex
	cache map[string]*proj.PJ
}

// NewReprojector creates an empty Reprojector.
func NewReprojector() *Reprojector {
	return &Reprojector{cache: make(map[string]*proj.PJ)}
}

// transformation returns a cached lon/lat-order transformation from src to dst.
// CRS definitions may be authority codes ("EPSG:5070") or WKT from a .prj file.
func (r *Reprojector) transformation(src, dst string) (*proj.PJ, error) {
	key := src + "\x00" + dst
	if pj, ok := r.cache[key]; ok {
		return pj, nil
	}

	pj, err := proj.NewCRSToCRS(src, dst, nil)
	if err != nil {
		return nil, eris.Wrapf(err, "engine: create transformation %s -> %s", src, dst)
	}
	// Force traditional GIS axis order (lon/lat = x/y) regardless of the
	// authority definition, so shapefile coordinates pass through unchanged.
	pj, err = pj.NormalizeForVisualization()
	if err != nil {
		return nil, eris.Wrapf(err, "engine: normalize transformation %s -> %s", src, dst)
	}

	r.cache[key] = pj
	return pj, nil
}

// Transform reprojects a geometry from src to dst CRS.
func (r *Reprojector) Transform(g *Geometry, src, dst string) (*Geometry, error) {
	if src == dst {
		return g, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	pj, err := r.transformation(src, dst)
	if err != nil {
		return nil, err
	}

	// Geom() decodes a fresh go-geom copy, so its flat coordinates can be
	// rewritten in place.
	gg, err := g.Geom()
	if err != nil {
		return nil, err
	}
	if err := transformFlatCoords(pj, gg.FlatCoords(), gg.Stride()); err != nil {
		return nil, err
	}

	return FromGeom(gg)
}

// transformFlatCoords applies pj to every coordinate pair in flat, in place.
func transformFlatCoords(pj *proj.PJ, flat []float64, stride int) error {
	if stride < 2 {
		return eris.Errorf("engine: unsupported coordinate stride %d", stride)
	}
	for i := 0; i+1 < len(flat); i += stride {
		out, err := pj.Forward(proj.NewCoord(flat[i], flat[i+1], 0, 0))
		if err != nil {
			return eris.Wrap(err, "engine: transform coordinate")
		}
		flat[i] = out.X()
		flat[i+1] = out.Y()
	}
	return nil
}
