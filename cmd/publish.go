package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/zip3-etl/internal/pipeline"
)

var publishCmd = &cobra.Command{
	Use:   "publish [gpkg]",
	Short: "Publish an exported layer to PostGIS",
	Long: `Loads a GeoPackage export and writes it to the configured PostGIS table.
Rows upsert on (stusps, zip3) so the table can be republished in place; use
--replace to truncate and reload instead.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		gpkgPath := cfg.Inputs.ReferenceGPKG
		if len(args) > 0 {
			gpkgPath = args[0]
		}
		replace, _ := cmd.Flags().GetBool("replace")

		pool, err := postgresPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := pipeline.New(cfg).RunPublish(ctx, pool, gpkgPath, replace)
		if err != nil {
			return err
		}

		fmt.Printf("Published %d rows to %s.%s\n", n, cfg.Postgres.Schema, cfg.Postgres.Table)
		return nil
	},
}

func init() {
	publishCmd.Flags().Bool("replace", false, "truncate the table and reload instead of upserting")
	rootCmd.AddCommand(publishCmd)
}

// postgresPool connects to the configured PostGIS database.
func postgresPool(ctx context.Context) (*pgxpool.Pool, error) {
	dsn := cfg.Postgres.DatabaseURL
	if dsn == "" {
		return nil, eris.New("publish: no database_url configured (set postgres.database_url or ZIP3_POSTGRES_DATABASE_URL)")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, eris.Wrap(err, "publish: create connection pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "publish: ping database")
	}

	return pool, nil
}
