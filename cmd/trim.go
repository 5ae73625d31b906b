package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/zip3-etl/internal/pipeline"
)

var trimCmd = &cobra.Command{
	Use:   "trim",
	Short: "Rebuild the ZIP3 layer clipped to state borders",
	Long: `Rebuilds the (state, ZIP3) layer with each ZCTA clipped to its owning state's
boundary, eliminating cross-border overshoot. The CRS and state set come from
the reference GeoPackage of a previous transform run. Fails when any state's
coverage of its boundary exceeds the configured ceiling.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rep, err := pipeline.New(cfg).RunTrimmed(ctx)
		if err != nil {
			return err
		}

		printReport(rep)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trimCmd)
}
