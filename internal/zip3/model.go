// Package zip3 implements the State × ZIP3 transformation core: assigning
// ZCTA polygons to states, trimming them to state borders, dissolving by
// (state, ZIP3), simplifying for rendering, and validating per-state coverage.
package zip3

import (
	"github.com/sells-group/zip3-etl/internal/engine"
)

// Feature is a ZCTA polygon prepared for assignment.
type Feature struct {
	GEOID string
	ZIP3  string
	Geom  *engine.Geometry
}

// StateFeature is a state boundary polygon.
type StateFeature struct {
	FIPS string
	Code string
	Geom *engine.Geometry
}

// Tier identifies which assignment strategy matched a feature.
type Tier string

const (
	// TierWithin is the primary pass: the full ZCTA polygon is within the state.
	TierWithin Tier = "within"
	// TierCentroid is the fallback pass: only the ZCTA centroid is within the
	// state, typically because the polygon straddles a state line.
	TierCentroid Tier = "centroid"
)

// Assignment maps one ZCTA to exactly one state. Geom is the original ZCTA
// polygon until the border trimmer replaces it with the state intersection.
type Assignment struct {
	GEOID string
	ZIP3  string
	State string
	Tier  Tier
	Geom  *engine.Geometry
}

// Dissolved is one output polygon, keyed by (state, ZIP3).
type Dissolved struct {
	State string
	ZIP3  string
	Geom  *engine.Geometry
}
