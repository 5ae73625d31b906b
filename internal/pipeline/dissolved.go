package pipeline

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zip3-etl/internal/export"
	"github.com/sells-group/zip3-etl/internal/zip3"
)

// RunDissolved executes the nationwide dissolve: every ZCTA is assigned to a
// state, groups are dissolved to one polygon per (state, ZIP3), simplified in
// web-mercator units, and exported. Coverage is computed for reporting but
// never gates the run.
func (p *Pipeline) RunDissolved(ctx context.Context) (*zip3.Report, error) {
	rep := zip3.NewReport(zip3.ModeDissolved)
	log := zap.L().With(
		zap.String("component", "pipeline.dissolved"),
		zap.String("run_id", rep.RunID.String()),
	)
	log.Info("starting dissolved run")

	var zctas []zip3.Feature
	var states []zip3.StateFeature
	var srs export.SRS

	if err := p.stage(log, "load_inputs", func() error {
		var err error
		zctas, srs, err = p.loadZCTAs()
		if err != nil {
			return err
		}
		states, err = p.loadStates(ctx, srs.CRS(), nil)
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
			SourceCRS:   srs.CRS(),
			SimplifyCRS: p.cfg.Pipeline.DissolveSimplifyCRS,
			ToleranceM:  p.cfg.Pipeline.DissolveToleranceM,
		}, rep)
	}); err != nil {
		return nil, err
	}

	if err := p.stage(log, "coverage", func() error {
		coverage, err := zip3.Coverage(dissolved, states, p.reproj, zip3.CoverageOptions{
			SourceCRS:    srs.CRS(),
			EqualAreaCRS: p.cfg.Coverage.EqualAreaCRS,
		})
		if err != nil {
			return err
		}
		rep.Coverage = coverage
		return nil
	}); err != nil {
		return nil, err
	}

	if err := p.stage(log, "export", func() error {
		if err := os.MkdirAll(p.cfg.Output.Dir, 0o755); err != nil {
			return eris.Wrap(err, "pipeline: create output dir")
		}
		if err := export.WriteShapefile(p.outPath("state_zip3_dissolved.shp"), dissolved, srs.Definition); err != nil {
			return err
		}
		if err := export.WriteGeoPackage(p.outPath("state_zip3_dissolved.gpkg"), p.cfg.Output.Layer, dissolved, srs); err != nil {
			return err
		}
		return export.WriteCoverageWorkbook(p.outPath("coverage_dissolved.xlsx"), rep)
	}); err != nil {
		return nil, err
	}

	rep.Finish()
	log.Info("dissolved run complete",
		zap.Int("zctas", rep.ZCTACount),
		zap.Int("dissolved", rep.DissolvedCount),
		zap.Duration("elapsed", rep.Elapsed),
	)
	return rep, nil
}
