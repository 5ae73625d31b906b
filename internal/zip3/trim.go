package zip3

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/zip3-etl/internal/engine"
)

// Trim replaces each assignment's geometry with its intersection against the
// owning state's boundary polygon, eliminating slivers that overshoot the
// state line. Assignments whose clipped geometry comes back empty (possible
// only through float/tolerance artifacts) are dropped and counted.
//
// Trimming partitions cleanly by state, so states are processed in parallel
// and the per-state results concatenated.
func Trim(ctx context.Context, assignments []Assignment, states []StateFeature, concurrency int, rep *Report) ([]Assignment, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	stateGeom := make(map[string]*engine.Geometry, len(states))
	for _, s := range states {
		stateGeom[s.Code] = s.Geom
	}

	byState := partitionByState(assignments)
	codes := sortedKeys(byState)

	type chunk struct {
		trimmed []Assignment
		dropped int
	}
	chunks := make([]chunk, len(codes))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, code := range codes {
		boundary, ok := stateGeom[code]
		if !ok {
			return nil, eris.Errorf("zip3: no boundary polygon for state %s", code)
		}
		group := byState[code]

		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return eris.Wrap(err, "zip3: trim cancelled")
			}

			out := make([]Assignment, 0, len(group))
			dropped := 0
			for _, a := range group {
				clipped, err := a.Geom.Intersection(boundary)
				if err != nil {
					return eris.Wrapf(err, "zip3: clip %s to %s", a.GEOID, code)
				}
				empty, err := clipped.IsEmpty()
				if err != nil {
					return eris.Wrapf(err, "zip3: test clipped %s", a.GEOID)
				}
				if empty {
					dropped++
					continue
				}
				a.Geom = clipped
				out = append(out, a)
			}
			chunks[i] = chunk{trimmed: out, dropped: dropped}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var trimmed []Assignment
	for _, c := range chunks {
		trimmed = append(trimmed, c.trimmed...)
		rep.TrimmedEmpty += c.dropped
	}

	if rep.TrimmedEmpty > 0 {
		zap.L().Warn("dropped empty geometries after trim", zap.Int("count", rep.TrimmedEmpty))
	}

	return trimmed, nil
}

// partitionByState groups assignments by state code.
func partitionByState(assignments []Assignment) map[string][]Assignment {
	byState := make(map[string][]Assignment)
	for _, a := range assignments {
		byState[a.State] = append(byState[a.State], a)
	}
	return byState
}

// sortedKeys returns map keys in sorted order for stable iteration.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
