package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sells-group/zip3-etl/internal/pipeline"
)

var coverageCmd = &cobra.Command{
	Use:   "coverage [gpkg]",
	Short: "Analyze per-state coverage of an exported layer",
	Long: `Compares each state's dissolved ZIP3 area against its boundary area under an
equal-area projection and prints the ratios with quality bands. Defaults to
the reference GeoPackage when no path is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		gpkgPath := cfg.Inputs.ReferenceGPKG
		if len(args) > 0 {
			gpkgPath = args[0]
		}

		rep, err := pipeline.New(cfg).RunCoverage(ctx, gpkgPath)
		if err != nil {
			return err
		}

		printCoverage(rep)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(coverageCmd)
}
