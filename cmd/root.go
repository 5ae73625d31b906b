package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/zip3-etl/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "zip3-etl",
	Short: "Build state-aware ZIP3 boundary layers from Census data",
	Long: "Loads Census ZCTA polygons and state boundaries, assigns each ZCTA to a state,\n" +
		"dissolves to one polygon per (state, ZIP3), and exports shapefile, GeoPackage,\n" +
		"and PostGIS layers.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
