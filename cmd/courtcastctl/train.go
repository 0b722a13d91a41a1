package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fortuna/courtcast/internal/app"
)

func trainCmd() *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a model on the stored history and make it active",
		RunE: withApp(func(ctx context.Context, a *app.App) error {
			res, err := a.Pipeline.TrainAndSave(ctx, version)
			if err != nil {
				return err
			}
			fmt.Printf("trained %s in %s (%d train / %d validation samples)\n",
				res.ModelVersion, res.Duration.Round(time.Second), res.TrainingSamples, res.ValidationSamples)
			fmt.Printf("best epoch %d of %d, validation loss %.5f, MAE %.3f\n",
				res.BestEpoch, res.EpochsRun, res.BestValLoss, res.MAE)

			targets := make([]string, 0, len(res.PerTargetMAE))
			for t := range res.PerTargetMAE {
				targets = append(targets, t)
			}
			sort.Strings(targets)
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Target", "MAE"})
			for _, t := range targets {
				table.Append([]string{t, fmt.Sprintf("%.3f", res.PerTargetMAE[t])})
			}
			table.Render()
			fmt.Printf("model: %s\nscaler: %s\n", res.ModelPath, res.ScalerPath)
			return nil
		}),
	}
	cmd.Flags().StringVar(&version, "version", "", "model version (default: lstm_vYYYYMMDD_HHMM)")
	return cmd
}
