package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/zip3-etl/internal/export"
	"github.com/sells-group/zip3-etl/internal/zip3"
)

// RunCoverage re-analyzes an existing GeoPackage export against the state
// boundary layer without rebuilding anything. Useful for grading a prior run
// or a hand-edited layer.
func (p *Pipeline) RunCoverage(ctx context.Context, gpkgPath string) (*zip3.Report, error) {
	rep := zip3.NewReport(zip3.ModeDissolved)
	log := zap.L().With(
		zap.String("component", "pipeline.coverage"),
		zap.String("gpkg", gpkgPath),
	)

	var ref *export.Reference
	var dissolved []zip3.Dissolved
	if err := p.stage(log, "load_layer", func() error {
		var err error
		ref, err = export.ReadReference(gpkgPath)
		if err != nil {
			return err
		}
		dissolved, err = export.ReadLayer(gpkgPath, ref.Layer)
		return err
	}); err != nil {
		return nil, err
	}
	rep.DissolvedCount = len(dissolved)

	keep := make(map[string]bool, len(ref.States))
	for _, code := range ref.States {
		keep[code] = true
	}

	var states []zip3.StateFeature
	if err := p.stage(log, "load_states", func() error {
		var err error
		states, err = p.loadStates(ctx, ref.SRS.CRS(), keep)
		return err
	}); err != nil {
		return nil, err
	}
	rep.StateCount = len(states)

	if err := p.stage(log, "coverage", func() error {
		coverage, err := zip3.Coverage(dissolved, states, p.reproj, zip3.CoverageOptions{
			SourceCRS:    ref.SRS.CRS(),
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

	rep.Finish()
	return rep, nil
}
