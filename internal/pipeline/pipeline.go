// Package pipeline orchestrates the ZIP3 boundary runs: load Census inputs,
// assign ZCTAs to states, dissolve to (state, ZIP3) polygons, simplify, and
// export.
package pipeline

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zip3-etl/internal/census"
	"github.com/sells-group/zip3-etl/internal/config"
	"github.com/sells-group/zip3-etl/internal/engine"
	"github.com/sells-group/zip3-etl/internal/export"
	"github.com/sells-group/zip3-etl/internal/zip3"
)

// Pipeline wires the stages of a run together.
type Pipeline struct {
	cfg        *config.Config
	reproj     *engine.Reprojector
	downloader *census.Downloader
}

// New creates a Pipeline from configuration.
func New(cfg *config.Config) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		reproj: engine.NewReprojector(),
		downloader: census.NewDownloader(census.DownloadOptions{
			Timeout:    time.Duration(cfg.Download.TimeoutSecs) * time.Second,
			RatePerSec: cfg.Download.RatePerSec,
			MaxRetries: cfg.Download.MaxRetries,
		}),
	}
}

// stage runs one named stage and logs its elapsed time.
func (p *Pipeline) stage(log *zap.Logger, name string, fn func() error) error {
	start := time.Now()
	if err := fn(); err != nil {
		log.Error("stage failed",
			zap.String("stage", name),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return err
	}
	log.Info("stage complete",
		zap.String("stage", name),
		zap.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// loadZCTAs reads the ZCTA shapefile into feature structs along with its CRS.
func (p *Pipeline) loadZCTAs() ([]zip3.Feature, export.SRS, error) {
	path := p.cfg.Inputs.ZCTAShapefile
	if err := census.CheckShapefile(path); err != nil {
		return nil, export.SRS{}, err
	}

	wkt, err := census.ReadCRS(path)
	if err != nil {
		return nil, export.SRS{}, err
	}
	srs := srsFromWKT(wkt)

	zctas, err := census.ReadZCTAs(path)
	if err != nil {
		return nil, export.SRS{}, err
	}

	features := make([]zip3.Feature, 0, len(zctas))
	for _, z := range zctas {
		g, err := engine.FromGeom(z.Geom)
		if err != nil {
			return nil, export.SRS{}, eris.Wrapf(err, "pipeline: load ZCTA %s", z.GEOID)
		}
		features = append(features, zip3.Feature{GEOID: z.GEOID, ZIP3: z.ZIP3, Geom: g})
	}
	return features, srs, nil
}

// loadStates reads the state boundary shapefile, downloading the archive
// first when the shapefile is missing, and reprojects boundaries into
// targetCRS. A non-nil keep set restricts the result to those state codes.
func (p *Pipeline) loadStates(ctx context.Context, targetCRS string, keep map[string]bool) ([]zip3.StateFeature, error) {
	path := p.cfg.Inputs.StateShapefile
	if err := census.CheckShapefile(path); err != nil {
		zap.L().Info("state shapefile missing, downloading",
			zap.String("component", "pipeline"),
			zap.String("url", p.cfg.Download.StateURL),
		)
		downloaded, dlErr := p.downloader.Download(ctx, p.cfg.Download.StateURL, p.cfg.Inputs.StateDir)
		if dlErr != nil {
			return nil, eris.Wrap(dlErr, "pipeline: download state boundaries")
		}
		path = downloaded
	}

	srcWKT, err := census.ReadCRS(path)
	if err != nil {
		return nil, err
	}
	srcCRS := srsFromWKT(srcWKT).CRS()

	states, err := census.ReadStates(path)
	if err != nil {
		return nil, err
	}

	features := make([]zip3.StateFeature, 0, len(states))
	for _, s := range states {
		if keep != nil && !keep[s.Code] {
			continue
		}
		g, err := engine.FromGeom(s.Geom)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: load state %s", s.Code)
		}
		g, err = p.reproj.Transform(g, srcCRS, targetCRS)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: reproject state %s", s.Code)
		}
		features = append(features, zip3.StateFeature{FIPS: s.FIPS, Code: s.Code, Geom: g})
	}
	if len(features) == 0 {
		return nil, eris.New("pipeline: no state boundaries after filtering")
	}

	sort.Slice(features, func(i, j int) bool { return features[i].Code < features[j].Code })
	return features, nil
}

// outPath joins the output directory with a file name.
func (p *Pipeline) outPath(name string) string {
	return filepath.Join(p.cfg.Output.Dir, name)
}

// srsFromWKT builds an SRS record from a .prj definition, guessing the EPSG
// code from the datum name.
func srsFromWKT(wkt string) export.SRS {
	srs := export.SRS{
		ID:         export.GuessSRID(wkt),
		Name:       crsName(wkt),
		Definition: wkt,
	}
	if srs.ID > 0 {
		srs.Organization = "EPSG"
	} else {
		srs.Organization = "NONE"
	}
	return srs
}

// crsName extracts the first quoted name from a WKT definition.
func crsName(wkt string) string {
	start := strings.Index(wkt, `"`)
	if start < 0 {
		return "unknown"
	}
	end := strings.Index(wkt[start+1:], `"`)
	if end < 0 {
		return "unknown"
	}
	return wkt[start+1 : start+1+end]
}
