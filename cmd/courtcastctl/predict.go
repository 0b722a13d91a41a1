package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fortuna/courtcast/internal/app"
	"github.com/fortuna/courtcast/internal/prediction"
	"github.com/fortuna/courtcast/internal/store"
)

func predictCmd() *cobra.Command {
	var (
		date   string
		simple bool
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Generate and store a prediction for every team",
		RunE: withApp(func(ctx context.Context, a *app.App) error {
			var day time.Time
			if date != "" {
				d, err := time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
				day = d
			}
			s := a.Season(season)

			var (
				rows []*store.TeamPrediction
				err  error
			)
			switch {
			case simple:
				rows, err = a.Pipeline.GenerateSimplePredictions(ctx, s, day)
			case day.IsZero():
				res, ferr := a.Predictions.GenerateFreshPredictions(ctx, s)
				if ferr != nil {
					return ferr
				}
				fmt.Printf("stored %d predictions for %s with %s\n", res.Count, res.Season, res.ModelVersion)
				return nil
			default:
				rows, err = a.Pipeline.GeneratePredictions(ctx, s, day)
			}
			if err != nil {
				return err
			}
			a.Predictions.InvalidateCache(ctx, s)

			version := ""
			if len(rows) > 0 {
				version = rows[0].ModelVersion
			}
			fmt.Printf("stored %d predictions for %s with %s\n", len(rows), s, version)
			return nil
		}),
	}
	cmd.Flags().StringVar(&date, "date", "", "prediction date YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&simple, "simple", false, "use the statistical projection instead of the model")
	return cmd
}

func predictionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predictions",
		Short: "Print the latest predictions by conference",
		RunE: withApp(func(ctx context.Context, a *app.App) error {
			preds, err := a.Predictions.AllPredictions(ctx, a.Season(season))
			if err != nil {
				return err
			}
			fmt.Printf("%s predictions from %s (%s, %s)\n",
				preds.Season, preds.PredictionDate.Format("2006-01-02"),
				preds.ModelVersion, humanize.Time(preds.PredictionDate))
			if preds.MAEWins != nil {
				fmt.Printf("validation MAE: %.1f wins\n", *preds.MAEWins)
			}
			for _, conf := range []struct {
				name string
				rows []*prediction.TeamPrediction
			}{{"East", preds.East}, {"West", preds.West}} {
				fmt.Printf("\n%s\n", conf.name)
				printPredictions(conf.rows)
			}
			return nil
		}),
	}
}

func printPredictions(rows []*prediction.TeamPrediction) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Rank", "Team", "W", "L", "Range", "Playoffs"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, r := range rows {
		bounds := ""
		if r.WinsLowerBound != nil && r.WinsUpperBound != nil {
			bounds = fmt.Sprintf("%.0f-%.0f", *r.WinsLowerBound, *r.WinsUpperBound)
		}
		table.Append([]string{
			fmt.Sprint(r.PredictedConferenceRank),
			r.Abbreviation,
			fmt.Sprintf("%.1f", r.PredictedWins),
			fmt.Sprintf("%.1f", r.PredictedLosses),
			bounds,
			fmt.Sprintf("%.0f%%", r.PlayoffProbability*100),
		})
	}
	table.Render()
}
