package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nearest-stops/stopsync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "stopsync",
	Short: "Transit stop harvesting pipeline",
	Long:  "Crawls regional carrier sub-sites and PDF timetables, extracts stops with coordinates, resolves missing coordinates, and diffs against the previous snapshot.",
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
