package app

import (
	"context"

	"github.com/fortuna/courtcast/internal/jobs"
	"github.com/fortuna/courtcast/internal/scheduler"
)

// JobHandlers maps every job type to the service call it runs.
func (a *App) JobHandlers() map[jobs.Type]jobs.Handler {
	return map[jobs.Type]jobs.Handler{
		jobs.TypeIncrementalRefresh: func(ctx context.Context, p map[string]string) (interface{}, error) {
			return a.Ingest.RunIncrementalRefresh(ctx, a.Season(p[jobs.ParamSeason]))
		},
		jobs.TypeFullIngestion: func(ctx context.Context, p map[string]string) (interface{}, error) {
			return a.Ingest.RunFullIngestion(ctx, a.Season(p[jobs.ParamSeason]))
		},
		jobs.TypeHistorical: func(ctx context.Context, _ map[string]string) (interface{}, error) {
			return a.History.IngestAllHistoricalData(ctx)
		},
		jobs.TypeTrain: func(ctx context.Context, p map[string]string) (interface{}, error) {
			return a.Pipeline.TrainAndSave(ctx, p[jobs.ParamVersion])
		},
		jobs.TypePredict: func(ctx context.Context, p map[string]string) (interface{}, error) {
			return a.Predictions.GenerateFreshPredictions(ctx, a.Season(p[jobs.ParamSeason]))
		},
	}
}

// SchedulerConfig maps the configured intervals and cron specs.
func (a *App) SchedulerConfig() scheduler.Config {
	cfg := scheduler.DefaultConfig()
	cfg.IncrementalInterval = a.Config.IngestionPollInterval
	cfg.LivePollInterval = a.Config.LivePollInterval
	cfg.FullIngestionCron = a.Config.FullIngestionCron
	cfg.RetrainCron = a.Config.RetrainCron
	cfg.PredictCron = a.Config.PredictCron
	return cfg
}

// ScheduledTasks runs the periodic work against the current season.
func (a *App) ScheduledTasks() scheduler.Tasks {
	season := a.Config.CurrentSeason
	return scheduler.Tasks{
		Incremental: func(ctx context.Context) error {
			_, err := a.Ingest.RunIncrementalRefresh(ctx, season)
			return err
		},
		LivePoll: func(ctx context.Context) error {
			_, err := a.Ingest.IngestTodayGames(ctx)
			return err
		},
		FullIngestion: func(ctx context.Context) error {
			_, err := a.Ingest.RunFullIngestion(ctx, season)
			return err
		},
		Retrain: func(ctx context.Context) error {
			_, err := a.Pipeline.TrainAndSave(ctx, "")
			return err
		},
		Predict: func(ctx context.Context) error {
			_, err := a.Predictions.GenerateFreshPredictions(ctx, season)
			return err
		},
	}
}
