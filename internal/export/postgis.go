package export

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	geom "github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/zip3-etl/internal/db"
	"github.com/sells-group/zip3-etl/internal/zip3"
)

// PublishOptions configures the PostGIS sink.
type PublishOptions struct {
	Schema    string
	Table     string
	SRID      int
	BatchSize int
	Replace   bool // truncate and COPY instead of upserting on (stusps, zip3)
}

var publishColumns = []string{"stusps", "zip3", "geom"}

// EnsureTable creates the target schema and table when missing. The table is
// keyed on (stusps, zip3) so republishing stays idempotent.
func EnsureTable(ctx context.Context, pool db.Pool, opts PublishOptions) error {
	schemaSQL := fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", pgx.Identifier{opts.Schema}.Sanitize())
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return eris.Wrapf(err, "export: create schema %s", opts.Schema)
	}

	tableSQL := fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (
			stusps TEXT NOT NULL,
			zip3   TEXT NOT NULL,
			geom   geometry(MultiPolygon, %d),
			PRIMARY KEY (stusps, zip3)
		)`,
		pgx.Identifier{opts.Schema, opts.Table}.Sanitize(), opts.SRID,
	)
	if _, err := pool.Exec(ctx, tableSQL); err != nil {
		return eris.Wrapf(err, "export: create table %s.%s", opts.Schema, opts.Table)
	}
	return nil
}

// Publish writes the dissolved layer to PostGIS. Geometry travels as EWKB
// with the layer SRID stamped in, which PostGIS accepts natively over COPY.
func Publish(ctx context.Context, pool db.Pool, opts PublishOptions, dissolved []zip3.Dissolved) (int64, error) {
	if err := EnsureTable(ctx, pool, opts); err != nil {
		return 0, err
	}

	rows := make([][]any, 0, len(dissolved))
	for _, d := range dissolved {
		g, err := d.Geom.Geom()
		if err != nil {
			return 0, eris.Wrapf(err, "export: decode %s/%s", d.State, d.ZIP3)
		}
		data, err := encodeEWKB(g, opts.SRID)
		if err != nil {
			return 0, eris.Wrapf(err, "export: encode %s/%s", d.State, d.ZIP3)
		}
		rows = append(rows, []any{d.State, d.ZIP3, data})
	}

	log := zap.L().With(
		zap.String("component", "export.postgis"),
		zap.String("table", opts.Schema+"."+opts.Table),
	)

	var n int64
	var err error
	if opts.Replace {
		truncateSQL := fmt.Sprintf("TRUNCATE %s", pgx.Identifier{opts.Schema, opts.Table}.Sanitize())
		if _, err := pool.Exec(ctx, truncateSQL); err != nil {
			return 0, eris.Wrapf(err, "export: truncate %s.%s", opts.Schema, opts.Table)
		}
		n, err = db.CopyBatched(ctx, pool, opts.Schema, opts.Table, publishColumns, rows, opts.BatchSize)
	} else {
		n, err = db.BulkUpsert(ctx, pool, db.UpsertConfig{
			Table:        opts.Schema + "." + opts.Table,
			Columns:      publishColumns,
			ConflictKeys: []string{"stusps", "zip3"},
		}, rows)
	}
	if err != nil {
		return 0, err
	}

	log.Info("published to postgis", zap.Int64("rows", n))
	return n, nil
}

// encodeEWKB marshals geometry as EWKB with the given SRID.
func encodeEWKB(g geom.T, srid int) ([]byte, error) {
	switch t := g.(type) {
	case *geom.Polygon:
		// Normalize to MultiPolygon to match the column type.
		mp := geom.NewMultiPolygon(geom.XY).SetSRID(srid)
		if err := mp.Push(t); err != nil {
			return nil, err
		}
		return ewkb.Marshal(mp, ewkb.NDR)
	case *geom.MultiPolygon:
		t.SetSRID(srid)
		return ewkb.Marshal(t, ewkb.NDR)
	default:
		return nil, eris.Errorf("export: unsupported geometry type %T", g)
	}
}
