package pipeline

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zip3-etl/internal/export"
	"github.com/sells-group/zip3-etl/internal/zip3"
)

// RunTrimmed executes the border-trimmed run. It adopts the CRS and state set
// of a previously exported reference GeoPackage, clips each assigned ZCTA to
// its owning state's boundary before dissolving, and fails hard when any
// state's coverage exceeds the configured ceiling, since overshoot past it
// means trimming did not do its job.
func (p *Pipeline) RunTrimmed(ctx context.Context) (*zip3.Report, error) {
	rep := zip3.NewReport(zip3.ModeTrimmed)
	log := zap.L().With(
		zap.String("component", "pipeline.trimmed"),
		zap.String("run_id", rep.RunID.String()),
	)
	log.Info("starting trimmed run")

	var ref *export.Reference
	if err := p.stage(log, "load_reference", func() error {
		var err error
		ref, err = export.ReadReference(p.cfg.Inputs.ReferenceGPKG)
		if err != nil {
			return err
		}
		if len(ref.States) == 0 {
			return eris.Errorf("pipeline: reference %s carries no states", p.cfg.Inputs.ReferenceGPKG)
		}
		log.Info("reference loaded",
			zap.String("layer", ref.Layer),
			zap.String("crs", ref.SRS.CRS()),
			zap.Int("states", len(ref.States)),
		)
		return nil
	}); err != nil {
		return nil, err
	}

	keep := make(map[string]bool, len(ref.States))
	for _, code := range ref.States {
		keep[code] = true
	}

	var zctas []zip3.Feature
	var states []zip3.StateFeature
	if err := p.stage(log, "load_inputs", func() error {
		loaded, srcSRS, err := p.loadZCTAs()
		if err != nil {
			return err
		}
		// The trimmed run works in the reference CRS throughout.
		for i := range loaded {
			loaded[i].Geom, err = p.reproj.Transform(loaded[i].Geom, srcSRS.CRS(), ref.SRS.CRS())
			if err != nil {
				return eris.Wrapf(err, "pipeline: reproject ZCTA %s", loaded[i].GEOID)
			}
		}
		zctas = loaded

		states, err = p.loadStates(ctx, ref.SRS.CRS(), keep)
		return err
	}); err != nil {
		return nil, err
	}
	rep.ZCTACount = len(zctas)
	rep.StateCount = len(states)

	var assignments []zip3.Assignment
	if err := p.stage(log, "assign", func() error {
		var err error
		assignments, err = zip3.Assign(zctas, states, rep)
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(log, "trim", func() error {
		var err error
		assignments, err = zip3.Trim(ctx, assignments, states, p.cfg.Pipeline.Concurrency, rep)
		return err
	}); err != nil {
		return nil, err
	}

	var dissolved []zip3.Dissolved
	if err := p.stage(log, "dissolve", func() error {
		var err error
		dissolved, err = zip3.Dissolve(ctx, assignments, p.cfg.Pipeline.Concurrency, rep)
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(log, "simplify", func() error {
		return zip3.Simplify(dissolved, p.reproj, zip3.SimplifyOptions{
			SourceCRS:   ref.SRS.CRS(),
			SimplifyCRS: p.cfg.Pipeline.TrimSimplifyCRS,
			ToleranceM:  p.cfg.Pipeline.TrimToleranceM,
		}, rep)
	}); err != nil {
		return nil, err
	}

	if err := p.stage(log, "coverage", func() error {
		coverage, err := zip3.Coverage(dissolved, states, p.reproj, zip3.CoverageOptions{
			SourceCRS:    ref.SRS.CRS(),
			EqualAreaCRS: p.cfg.Coverage.EqualAreaCRS,
		})
		if err != nil {
			return err
		}
		rep.Coverage = coverage
		return zip3.CheckGate(coverage, p.cfg.Coverage.MaxRatio)
	}); err != nil {
		return nil, err
	}

	if err := p.stage(log, "export", func() error {
		if err := os.MkdirAll(p.cfg.Output.Dir, 0o755); err != nil {
			return eris.Wrap(err, "pipeline: create output dir")
		}
		if err := export.WriteShapefile(p.outPath("state_zip3_trimmed.shp"), dissolved, ref.SRS.Definition); err != nil {
			return err
		}
		if err := export.WriteGeoPackage(p.outPath("state_zip3_trimmed.gpkg"), p.cfg.Output.Layer, dissolved, ref.SRS); err != nil {
			return err
		}
		return export.WriteCoverageWorkbook(p.outPath("coverage_trimmed.xlsx"), rep)
	}); err != nil {
		return nil, err
	}

	rep.Finish()
	log.Info("trimmed run complete",
		zap.Int("zctas", rep.ZCTACount),
		zap.Int("dissolved", rep.DissolvedCount),
		zap.Int("trimmed_empty", rep.TrimmedEmpty),
		zap.Duration("elapsed", rep.Elapsed),
	)
	return rep, nil
}
