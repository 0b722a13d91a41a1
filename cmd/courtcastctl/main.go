// Command courtcastctl runs ingestion, training and prediction by hand and
// prints what the service has stored.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fortuna/courtcast/internal/app"
	"github.com/fortuna/courtcast/internal/config"
	"github.com/fortuna/courtcast/internal/logging"
)

var (
	season   string
	logLevel string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "courtcastctl",
		Short:         "Operate the courtcast ingestion and forecasting pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&season, "season", "", "season such as 2025-26 (default: CURRENT_SEASON)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "override LOG_LEVEL")

	root.AddCommand(ingestCmd(), trainCmd(), predictCmd(), predictionsCmd(), modelsCmd())
	return root
}

// withApp loads the configuration, builds the app and hands it to fn.
func withApp(fn func(ctx context.Context, a *app.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if season != "" && !config.ValidSeason(season) {
			return fmt.Errorf("--season must look like 2025-26, got %q", season)
		}
		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		logging.Setup(level, cfg.AppEnv)

		a, err := app.New(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a)
	}
}
