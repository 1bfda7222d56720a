package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nearest-stops/stopsync/internal/fetcher"
	"github.com/nearest-stops/stopsync/internal/geocode"
	"github.com/nearest-stops/stopsync/internal/pdf"
	"github.com/nearest-stops/stopsync/internal/pipeline"
	"github.com/nearest-stops/stopsync/internal/site"
	"github.com/nearest-stops/stopsync/internal/store"
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection: harvest stops, resolve coordinates, diff, persist",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, closeFn, err := buildPipeline(ctx)
		if err != nil {
			return err
		}
		defer closeFn()

		res, err := p.Run(ctx)
		if err != nil {
			return err
		}

		if res.ZeroStops {
			fmt.Println("collection produced zero stops; previous snapshot preserved")
			return nil
		}
		fmt.Printf("routes: %d, stops: %d, new: %d, removed: %d\n",
			res.Report.RoutesTotalNew, res.Report.StopsTotalNew,
			len(res.Report.NewStops), len(res.Report.RemovedStops))
		return nil
	},
}

// buildPipeline wires the collaborators from config. The returned close
// function releases the run store.
func buildPipeline(ctx context.Context) (*pipeline.Pipeline, func(), error) {
	sites, err := site.Load(cfg.Data.SitesPath)
	if err != nil {
		return nil, nil, eris.Wrap(err, "load site table")
	}

	extractor, err := pdf.NewExtractor(cfg.PDF)
	if err != nil {
		return nil, nil, err
	}

	fetch := fetcher.New(fetcher.Options{
		UserAgent:    cfg.HTTP.UserAgent,
		Timeout:      time.Duration(cfg.HTTP.TimeoutSecs) * time.Second,
		MaxRetries:   cfg.HTTP.MaxRetries,
		HostInterval: cfg.HTTP.RequestInterval(),
	})

	geocoder := geocode.New(cfg.HTTP.UserAgent, cfg.Geocode.CountryCode, cfg.Geocode.CountryName)

	runs, err := store.NewSQLite(cfg.Data.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	if err := runs.Migrate(ctx); err != nil {
		runs.Close()
		return nil, nil, err
	}

	closeFn := func() {
		if err := runs.Close(); err != nil {
			zap.L().Warn("close run store", zap.Error(err))
		}
	}
	return pipeline.New(cfg, fetch, sites, extractor, geocoder, runs), closeFn, nil
}

func init() {
	rootCmd.AddCommand(collectCmd)
}
