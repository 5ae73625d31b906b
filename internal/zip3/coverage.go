package zip3

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zip3-etl/internal/engine"
)

// StateCoverage is the per-state area ratio between the dissolved ZIP3 layer
// and the authoritative state boundary. Ratios above 1.0 indicate boundary
// overshoot; well below 1.0 indicates ZCTAs do not blanket the state (vast
// unpopulated areas, island geography).
type StateCoverage struct {
	State string
	Ratio float64
}

// Band classifies a coverage ratio for reporting. The bands are informational
// only; the hard gate is CheckGate.
func (c StateCoverage) Band() string {
	switch {
	case c.Ratio >= 0.95:
		return "excellent"
	case c.Ratio >= 0.85:
		return "good"
	case c.Ratio >= 0.75:
		return "fair"
	default:
		return "poor"
	}
}

// CoverageOptions configures the coverage computation.
type CoverageOptions struct {
	SourceCRS    string // CRS both layers are currently in
	EqualAreaCRS string // projection under which areas are compared
}

// Coverage computes, for every state present in both layers, the ratio of the
// dissolved ZIP3 area to the state boundary area under an equal-area
// projection. Results are sorted ascending by ratio.
func Coverage(dissolved []Dissolved, states []StateFeature, reproj *engine.Reprojector, opts CoverageOptions) ([]StateCoverage, error) {
	byState := make(map[string][]*engine.Geometry)
	for _, d := range dissolved {
		byState[d.State] = append(byState[d.State], d.Geom)
	}

	var coverage []StateCoverage
	for _, s := range states {
		geoms, ok := byState[s.Code]
		if !ok {
			continue
		}

		merged, err := engine.UnionAll(geoms)
		if err != nil {
			return nil, eris.Wrapf(err, "zip3: union dissolved polygons for %s", s.Code)
		}
		merged, err = reproj.Transform(merged, opts.SourceCRS, opts.EqualAreaCRS)
		if err != nil {
			return nil, eris.Wrapf(err, "zip3: project dissolved layer for %s", s.Code)
		}
		zip3Area, err := merged.Area()
		if err != nil {
			return nil, eris.Wrapf(err, "zip3: dissolved area for %s", s.Code)
		}

		boundary, err := reproj.Transform(s.Geom, opts.SourceCRS, opts.EqualAreaCRS)
		if err != nil {
			return nil, eris.Wrapf(err, "zip3: project boundary for %s", s.Code)
		}
		stateArea, err := boundary.Area()
		if err != nil {
			return nil, eris.Wrapf(err, "zip3: boundary area for %s", s.Code)
		}
		if stateArea <= 0 {
			return nil, eris.Errorf("zip3: state %s has non-positive boundary area", s.Code)
		}

		coverage = append(coverage, StateCoverage{State: s.Code, Ratio: zip3Area / stateArea})
	}

	sort.Slice(coverage, func(i, j int) bool {
		if coverage[i].Ratio != coverage[j].Ratio {
			return coverage[i].Ratio < coverage[j].Ratio
		}
		return coverage[i].State < coverage[j].State
	})

	return coverage, nil
}

// CheckGate fails when any state's coverage ratio exceeds maxRatio. Used by
// the trimmed pipeline, where overshoot past the threshold means the trimming
// step did not achieve its purpose.
func CheckGate(coverage []StateCoverage, maxRatio float64) error {
	var violations []string
	worst := 0.0
	for _, c := range coverage {
		if c.Ratio > maxRatio {
			violations = append(violations, c.State)
			if c.Ratio > worst {
				worst = c.Ratio
			}
		}
	}
	if len(violations) > 0 {
		return eris.Errorf("zip3: coverage gate violated: %d state(s) exceed %.0f%% (worst %.1f%%): %s",
			len(violations), maxRatio*100, worst*100, strings.Join(violations, ", "))
	}
	return nil
}
