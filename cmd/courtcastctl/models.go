package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/fortuna/courtcast/internal/app"
	"github.com/fortuna/courtcast/internal/pipeline"
)

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Inspect and prune trained model artifacts",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List trained models and their artifacts",
			RunE: withApp(func(ctx context.Context, a *app.App) error {
				models, err := a.Repos.Models.List(ctx)
				if err != nil {
					return err
				}
				names, err := a.Artifacts.List(ctx)
				if err != nil {
					return err
				}
				stored := make(map[string]bool, len(names))
				for _, n := range names {
					stored[n] = true
				}

				table := tablewriter.NewWriter(os.Stdout)
				table.SetHeader([]string{"Version", "Type", "Trained", "Val loss", "MAE wins", "Active", "Artifact"})
				for _, m := range models {
					row := []string{m.ModelVersion, m.ModelType, humanize.Time(m.TrainedAt), "", "", "", "missing"}
					if m.ValidationLoss != nil {
						row[3] = fmt.Sprintf("%.5f", *m.ValidationLoss)
					}
					if m.MAEWins != nil {
						row[4] = fmt.Sprintf("%.2f", *m.MAEWins)
					}
					if m.IsActive {
						row[5] = "*"
					}
					if stored[m.ModelVersion] {
						row[6] = "stored"
						delete(stored, m.ModelVersion)
						delete(stored, pipeline.ScalerArtifact(m.ModelVersion))
					}
					if m.ModelType == pipeline.ModelTypeSimple {
						row[6] = "n/a"
					}
					table.Append(row)
				}
				table.Render()

				for n := range stored {
					fmt.Printf("orphaned artifact: %s\n", n)
				}
				return nil
			}),
		},
		&cobra.Command{
			Use:   "delete NAME",
			Short: "Delete a model's artifact and scaler",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return withApp(func(ctx context.Context, a *app.App) error {
					name := args[0]
					if active, err := a.Repos.Models.Active(ctx); err == nil && active.ModelVersion == name {
						return fmt.Errorf("%s is the active model", name)
					}
					removed := 0
					for _, n := range []string{name, pipeline.ScalerArtifact(name)} {
						ok, err := a.Artifacts.Delete(ctx, n)
						if err != nil {
							return err
						}
						if ok {
							removed++
						}
					}
					if removed == 0 {
						return fmt.Errorf("no artifacts named %s", name)
					}
					fmt.Printf("deleted %d artifacts of %s\n", removed, name)
					return nil
				})(cmd, args)
			},
		},
	)
	return cmd
}
