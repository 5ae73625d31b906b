package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/zip3-etl/internal/db"
	"github.com/sells-group/zip3-etl/internal/export"
)

// RunPublish loads a GeoPackage export and writes it to the configured
// PostGIS table. With replace=false, rows upsert on (stusps, zip3) so the
// table can be republished in place.
func (p *Pipeline) RunPublish(ctx context.Context, pool db.Pool, gpkgPath string, replace bool) (int64, error) {
	log := zap.L().With(
		zap.String("component", "pipeline.publish"),
		zap.String("gpkg", gpkgPath),
	)

	ref, err := export.ReadReference(gpkgPath)
	if err != nil {
		return 0, err
	}
	dissolved, err := export.ReadLayer(gpkgPath, ref.Layer)
	if err != nil {
		return 0, err
	}

	n, err := export.Publish(ctx, pool, export.PublishOptions{
		Schema:    p.cfg.Postgres.Schema,
		Table:     p.cfg.Postgres.Table,
		SRID:      ref.SRS.ID,
		BatchSize: p.cfg.Postgres.BatchSize,
		Replace:   replace,
	}, dissolved)
	if err != nil {
		return 0, err
	}

	log.Info("publish complete",
		zap.String("table", p.cfg.Postgres.Schema+"."+p.cfg.Postgres.Table),
		zap.Int64("rows", n),
	)
	return n, nil
}
