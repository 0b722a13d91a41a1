package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fortuna/courtcast/internal/app"
	"github.com/fortuna/courtcast/internal/ingest"
)

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Pull data from the upstream stats provider",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "refresh",
			Short: "Teams, standings, rosters, today's and recent games",
			RunE: withApp(func(ctx context.Context, a *app.App) error {
				report, err := a.Ingest.RunIncrementalRefresh(ctx, a.Season(season))
				printReport(report)
				return err
			}),
		},
		&cobra.Command{
			Use:   "full",
			Short: "Refresh plus every game of the season",
			RunE: withApp(func(ctx context.Context, a *app.App) error {
				report, err := a.Ingest.RunFullIngestion(ctx, a.Season(season))
				printReport(report)
				return err
			}),
		},
		&cobra.Command{
			Use:   "historical",
			Short: "Team season stats and game logs of the training seasons",
			RunE: withApp(func(ctx context.Context, a *app.App) error {
				counts, err := a.History.IngestAllHistoricalData(ctx)
				seasons := make([]string, 0, len(counts))
				for s := range counts {
					seasons = append(seasons, s)
				}
				sort.Strings(seasons)

				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"Season", "Team stats", "Game logs"})
				for _, s := range seasons {
					c := counts[s]
					table.Append([]string{s, humanize.Comma(int64(c.TeamStats)), humanize.Comma(int64(c.GameLogs))})
				}
				table.Render()
				return err
			}),
		},
	)
	return cmd
}

func printReport(r *ingest.RefreshReport) {
	if r == nil {
		return
	}
	fmt.Printf("%s ingestion of %s finished in %s\n", r.Type, r.Season, r.Duration.Round(time.Millisecond))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Step", "Written", "Skipped", "Failed", "Error"})
	for _, s := range r.Steps {
		table.Append([]string{
			s.Name,
			humanize.Comma(int64(s.Result.Written)),
			humanize.Comma(int64(s.Result.Skipped)),
			humanize.Comma(int64(s.Result.Failed)),
			s.Error,
		})
	}
	table.SetFooter([]string{"total", humanize.Comma(int64(r.Written())), "", "", ""})
	table.Render()
}
