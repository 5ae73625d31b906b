package zip3

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/zip3-etl/internal/engine"
)

// Dissolve unions assignment geometries grouped by (state, ZIP3) into one
// polygon per group. Unioning overlapping or adjacent inputs can produce
// self-intersecting output, so each union is validity-tested and repaired
// once with a zero-distance buffer; geometry still invalid after that is
// retained and counted, never fatal.
//
// Groups partition by state, so states dissolve in parallel. The merged
// output is sorted by (state, ZIP3).
func Dissolve(ctx context.Context, assignments []Assignment, concurrency int, rep *Report) ([]Dissolved, error) {
	if concurrency <= 0 {
		concurrency = 1
	}

	byState := partitionByState(assignments)
	codes := sortedKeys(byState)

	type chunk struct {
		dissolved []Dissolved
		invalid   int
	}
	chunks := make([]chunk, len(codes))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, code := range codes {
		group := byState[code]

		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return eris.Wrap(err, "zip3: dissolve cancelled")
			}

			byZIP3 := make(map[string][]*engine.Geometry)
			for _, a := range group {
				byZIP3[a.ZIP3] = append(byZIP3[a.ZIP3], a.Geom)
			}

			out := make([]Dissolved, 0, len(byZIP3))
			invalid := 0
			for _, zip3 := range sortedKeys(byZIP3) {
				merged, flagged, err := dissolveGroup(byZIP3[zip3])
				if err != nil {
					return eris.Wrapf(err, "zip3: dissolve %s/%s", code, zip3)
				}
				if flagged {
					invalid++
				}
				out = append(out, Dissolved{State: code, ZIP3: zip3, Geom: merged})
			}
			chunks[i] = chunk{dissolved: out, invalid: invalid}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var dissolved []Dissolved
	for _, c := range chunks {
		dissolved = append(dissolved, c.dissolved...)
		rep.InvalidAfterRepair += c.invalid
	}

	sort.Slice(dissolved, func(i, j int) bool {
		if dissolved[i].State != dissolved[j].State {
			return dissolved[i].State < dissolved[j].State
		}
		return dissolved[i].ZIP3 < dissolved[j].ZIP3
	})

	rep.DissolvedCount = len(dissolved)
	if rep.InvalidAfterRepair > 0 {
		zap.L().Warn("geometries still invalid after repair", zap.Int("count", rep.InvalidAfterRepair))
	}

	return dissolved, nil
}

// dissolveGroup unions one (state, ZIP3) group and applies at most one repair
// attempt. The returned flag reports geometry that stayed invalid.
func dissolveGroup(geoms []*engine.Geometry) (*engine.Geometry, bool, error) {
	merged, err := engine.UnionAll(geoms)
	if err != nil {
		return nil, false, err
	}

	valid, err := merged.IsValid()
	if err != nil {
		return nil, false, err
	}
	if valid {
		return merged, false, nil
	}

	repaired, err := merged.RepairZeroBuffer()
	if err != nil {
		return nil, false, err
	}
	valid, err = repaired.IsValid()
	if err != nil {
		return nil, false, err
	}
	if !valid {
		// Downstream visualization tools tolerate minor residual invalidity;
		// keep the repaired geometry and flag it.
		return repaired, true, nil
	}
	return repaired, false, nil
}
