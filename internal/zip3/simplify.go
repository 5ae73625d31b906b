package zip3

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zip3-etl/internal/engine"
)

// SimplifyOptions configures the vertex-reduction pass.
type SimplifyOptions struct {
	SourceCRS   string  // CRS the dissolved layer is currently in
	SimplifyCRS string  // projected CRS whose units the tolerance is expressed in
	ToleranceM  float64 // simplification distance tolerance
}

// Simplify reduces vertex density of every dissolved polygon in place. The
// tolerance is a linear distance, meaningless in a degree-based CRS, so each
// geometry is reprojected to the configured projected CRS, simplified, and
// reprojected back. Simplification can invalidate a polygon, so validity is
// re-checked with one repair attempt, mirroring the dissolve stage.
func Simplify(dissolved []Dissolved, reproj *engine.Reprojector, opts SimplifyOptions, rep *Report) error {
	if opts.ToleranceM <= 0 {
		return eris.Errorf("zip3: invalid simplify tolerance %v", opts.ToleranceM)
	}

	invalid := 0
	for i := range dissolved {
		projected, err := reproj.Transform(dissolved[i].Geom, opts.SourceCRS, opts.SimplifyCRS)
		if err != nil {
			return eris.Wrapf(err, "zip3: project %s/%s for simplify", dissolved[i].State, dissolved[i].ZIP3)
		}

		simplified, err := projected.Simplify(opts.ToleranceM)
		if err != nil {
			return eris.Wrapf(err, "zip3: simplify %s/%s", dissolved[i].State, dissolved[i].ZIP3)
		}

		simplified, flagged, err := revalidate(simplified)
		if err != nil {
			return eris.Wrapf(err, "zip3: revalidate %s/%s", dissolved[i].State, dissolved[i].ZIP3)
		}
		if flagged {
			invalid++
		}

		back, err := reproj.Transform(simplified, opts.SimplifyCRS, opts.SourceCRS)
		if err != nil {
			return eris.Wrapf(err, "zip3: unproject %s/%s after simplify", dissolved[i].State, dissolved[i].ZIP3)
		}
		dissolved[i].Geom = back
	}

	rep.InvalidAfterSimplify = invalid
	if invalid > 0 {
		zap.L().Warn("geometries invalid after simplify", zap.Int("count", invalid))
	}

	return nil
}

// revalidate applies one zero-buffer repair if g is invalid; the flag reports
// geometry that stayed invalid after the attempt.
func revalidate(g *engine.Geometry) (*engine.Geometry, bool, error) {
	valid, err := g.IsValid()
	if err != nil {
		return nil, false, err
	}
	if valid {
		return g, false, nil
	}

	repaired, err := g.RepairZeroBuffer()
	if err != nil {
		return nil, false, err
	}
	valid, err = repaired.IsValid()
	if err != nil {
		return nil, false, err
	}
	return repaired, !valid, nil
}
