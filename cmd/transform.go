package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/zip3-etl/internal/pipeline"
)

var transformCmd = &cobra.Command{
	Use:   "transform",
	Short: "Dissolve ZCTAs into nationwide (state, ZIP3) polygons",
	Long: `Reads the ZCTA shapefile, assigns every ZCTA to a state (containment first,
centroid fallback for border straddlers), dissolves by (state, ZIP3), and
exports the layer as shapefile and GeoPackage. State boundaries are downloaded
from census.gov when missing.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rep, err := pipeline.New(cfg).RunDissolved(ctx)
		if err != nil {
			return err
		}

		printReport(rep)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(transformCmd)
}
