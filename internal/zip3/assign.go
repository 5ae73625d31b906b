package zip3

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zip3-etl/internal/engine"
)

// strategy is one assignment tier: it selects the geometry to test against
// state polygons with the "within" predicate. Strategies are tried in order;
// the first tier that matches a feature wins.
type strategy struct {
	tier     Tier
	testGeom func(*engine.Geometry) (*engine.Geometry, error)
}

// assignStrategies is the two-tier chain: full polygon containment first,
// centroid containment for border-straddling polygons second. The original
// polygon geometry is retained in the assignment either way.
var assignStrategies = []strategy{
	{tier: TierWithin, testGeom: func(g *engine.Geometry) (*engine.Geometry, error) { return g, nil }},
	{tier: TierCentroid, testGeom: (*engine.Geometry).Centroid},
}

// stateIndex is a state boundary prepared for repeated containment tests:
// the bounding box rejects most (feature, state) pairs before the prepared
// geometry runs the exact predicate.
type stateIndex struct {
	StateFeature
	box  engine.Box
	prep *engine.Prepared
}

// indexStates sorts states by code and precomputes each boundary's bounding
// box and prepared geometry.
func indexStates(states []StateFeature) ([]stateIndex, error) {
	indexed := make([]stateIndex, len(states))
	for i, s := range states {
		box, err := s.Geom.Bounds()
		if err != nil {
			return nil, eris.Wrapf(err, "zip3: bounds for state %s", s.Code)
		}
		indexed[i] = stateIndex{StateFeature: s, box: box, prep: s.Geom.Prepare()}
	}
	sort.Slice(indexed, func(i, j int) bool { return indexed[i].Code < indexed[j].Code })
	return indexed, nil
}

// Assign maps every ZCTA feature to at most one state. Features that match no
// state under either tier are dropped and recorded on the report; they never
// fail the run. States are evaluated in sorted state-code order and ties are
// broken by largest overlap area, so assignment is deterministic.
func Assign(zctas []Feature, states []StateFeature, rep *Report) ([]Assignment, error) {
	if len(states) == 0 {
		return nil, eris.New("zip3: no state features to assign against")
	}

	indexed, err := indexStates(states)
	if err != nil {
		return nil, err
	}

	log := zap.L().With(zap.String("component", "zip3.assign"))

	assignments := make([]Assignment, 0, len(zctas))
	pending := zctas

	for _, strat := range assignStrategies {
		if len(pending) == 0 {
			break
		}

		var next []Feature
		matched := 0

		for _, f := range pending {
			testGeom, err := strat.testGeom(f.Geom)
			if err != nil {
				return nil, eris.Wrapf(err, "zip3: build %s test geometry for %s", strat.tier, f.GEOID)
			}

			state, ok, err := matchState(f.Geom, testGeom, indexed)
			if err != nil {
				return nil, eris.Wrapf(err, "zip3: match %s for %s", strat.tier, f.GEOID)
			}
			if !ok {
				next = append(next, f)
				continue
			}

			assignments = append(assignments, Assignment{
				GEOID: f.GEOID,
				ZIP3:  f.ZIP3,
				State: state,
				Tier:  strat.tier,
				Geom:  f.Geom,
			})
			matched++
		}

		switch strat.tier {
		case TierWithin:
			rep.AssignedWithin = matched
		case TierCentroid:
			rep.AssignedCentroid = matched
		}

		log.Info("assignment pass complete",
			zap.String("tier", string(strat.tier)),
			zap.Int("matched", matched),
			zap.Int("remaining", len(next)),
		)

		pending = next
	}

	// Whatever is still pending matched no state under either tier. Typically
	// a centroid sitting exactly on a boundary or offshore after coastline
	// simplification. Reported, not retried.
	rep.Unassigned = len(pending)
	for _, f := range pending {
		rep.UnassignedGEOIDs = append(rep.UnassignedGEOIDs, f.GEOID)
	}
	if len(pending) > 0 {
		log.Warn("features unassigned after both tiers", zap.Int("count", len(pending)))
	}

	return assignments, nil
}

// matchState tests testGeom against every state with the "within" predicate,
// skipping states whose bounding box cannot contain it. When tolerance quirks
// make a geometry fall within more than one state, the state with the largest
// overlap against the original polygon wins; exact area ties fall to the
// lexicographically smallest state code, which is the first candidate in
// iteration order.
func matchState(origGeom, testGeom *engine.Geometry, states []stateIndex) (string, bool, error) {
	testBox, err := testGeom.Bounds()
	if err != nil {
		return "", false, err
	}

	var candidates []stateIndex
	for _, s := range states {
		if !s.box.Contains(testBox) {
			continue
		}
		within, err := s.prep.Contains(testGeom)
		if err != nil {
			return "", false, err
		}
		if within {
			candidates = append(candidates, s)
		}
	}

	switch len(candidates) {
	case 0:
		return "", false, nil
	case 1:
		return candidates[0].Code, true, nil
	}

	best := candidates[0].Code
	bestArea := -1.0
	for _, s := range candidates {
		overlap, err := origGeom.Intersection(s.Geom)
		if err != nil {
			return "", false, err
		}
		area, err := overlap.Area()
		if err != nil {
			return "", false, err
		}
		if area > bestArea {
			bestArea = area
			best = s.Code
		}
	}
	return best, true, nil
}
