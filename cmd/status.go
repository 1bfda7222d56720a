package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nearest-stops/stopsync/internal/store"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent collection runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		runs, err := store.NewSQLite(cfg.Data.DatabasePath)
		if err != nil {
			return err
		}
		defer runs.Close()
		if err := runs.Migrate(ctx); err != nil {
			return err
		}

		entries, err := runs.ListRuns(ctx, statusLimit)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		if len(entries) == 0 {
			zap.L().Info("no runs recorded, run 'stopsync collect' first")
			return nil
		}

		formatRuns(os.Stdout, entries)
		return nil
	},
}

// formatRuns writes a tabular representation of runs to w.
func formatRuns(out io.Writer, runs []store.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSTATUS\tSTARTED\tDURATION\tROUTES\tSTOPS\tNEW\tREMOVED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t-------\t--------\t------\t-----\t---\t-------\t-----")

	for _, r := range runs {
		dur := "-"
		if r.FinishedAt != nil {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		errMsg := r.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.ID[:8], r.Status,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			dur, r.RoutesTotal, r.StopsTotal, r.NewStops, r.RemovedStops, errMsg,
		)
	}
	_ = w.Flush()
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "maximum runs to show")
	rootCmd.AddCommand(statusCmd)
}
