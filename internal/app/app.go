// Package app assembles the stores, clients and services shared by the
// courtcast daemon and the courtcastctl tool.
package app

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/fortuna/courtcast/internal/artifacts"
	"github.com/fortuna/courtcast/internal/cache"
	"github.com/fortuna/courtcast/internal/config"
	"github.com/fortuna/courtcast/internal/history"
	"github.com/fortuna/courtcast/internal/ingest"
	"github.com/fortuna/courtcast/internal/logging"
	"github.com/fortuna/courtcast/internal/ml"
	"github.com/fortuna/courtcast/internal/pipeline"
	"github.com/fortuna/courtcast/internal/prediction"
	"github.com/fortuna/courtcast/internal/publisher"
	"github.com/fortuna/courtcast/internal/ratelimit"
	"github.com/fortuna/courtcast/internal/service"
	"github.com/fortuna/courtcast/internal/store"
	"github.com/fortuna/courtcast/internal/store/repository"
	"github.com/fortuna/courtcast/internal/upstream/nba"
)

const (
	redisMaxAttempts = 30
	redisRetryDelay  = 2 * time.Second
	streamMaxLen     = 10000
)

// Repositories are the Postgres-backed stores.
type Repositories struct {
	Teams         *repository.TeamRepository
	Players       *repository.PlayerRepository
	Games         *repository.GameRepository
	Stats         *repository.StatsRepository
	Standings     *repository.StandingsRepository
	IngestionLogs *repository.IngestionLogRepository
	SeasonStats   *repository.SeasonStatsRepository
	GameLogs      *repository.GameLogRepository
	Predictions   *repository.PredictionRepository
	Models        *repository.ModelRepository
}

// NewRepositories builds every repository over db.
func NewRepositories(db *store.Database) Repositories {
	return Repositories{
		Teams:         repository.NewTeamRepository(db),
		Players:       repository.NewPlayerRepository(db),
		Games:         repository.NewGameRepository(db),
		Stats:         repository.NewStatsRepository(db),
		Standings:     repository.NewStandingsRepository(db),
		IngestionLogs: repository.NewIngestionLogRepository(db),
		SeasonStats:   repository.NewSeasonStatsRepository(db),
		GameLogs:      repository.NewGameLogRepository(db),
		Predictions:   repository.NewPredictionRepository(db),
		Models:        repository.NewModelRepository(db),
	}
}

// App holds the wired components.
type App struct {
	Config *config.Config

	DB        *store.Database
	Cache     *cache.RedisCache
	Repos     Repositories
	Artifacts artifacts.Store
	// Events publishes to the Redis streams and to any subscriber added
	// with Events.Subscribe.
	Events *publisher.Fanout

	Ingest      *ingest.Service
	History     *history.Aggregator
	Pipeline    *pipeline.Pipeline
	Predictions *prediction.Service
	Games       *service.GameService
	Players     *service.PlayerService
	League      *service.LeagueService

	logger zerolog.Logger
}

// New connects to Postgres and Redis, applies migrations and builds the
// services.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg, logger: logging.Component("app")}

	db, err := store.NewDatabase(ctx, cfg.DatabaseDSN())
	if err != nil {
		return nil, errors.Wrap(err, "connecting to database")
	}
	a.DB = db
	if err := db.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "running migrations")
	}
	a.logger.Info().Str("host", cfg.DatabaseHost).Msg("database ready")

	rc, err := connectRedis(ctx, cfg, a.logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	a.Cache = rc

	art, err := artifacts.New(ctx, artifacts.Config{
		Backend:   cfg.ModelStorageBackend,
		LocalPath: cfg.ModelLocalPath,
		Bucket:    cfg.ModelBucket,
		Prefix:    cfg.ModelGCSPrefix,
	})
	if err != nil {
		a.Close()
		return nil, errors.Wrap(err, "opening artifact store")
	}
	a.Artifacts = art

	a.Repos = NewRepositories(db)
	a.Events = publisher.NewFanout(publisher.NewStreamPublisher(rc.Client(), streamMaxLen))
	a.build()
	return a, nil
}

func connectRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*cache.RedisCache, error) {
	var lastErr error
	for i := 1; i <= redisMaxAttempts; i++ {
		rc, err := cache.NewRedisCache(cache.Config{
			Addr:     cfg.RedisAddr(),
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err == nil {
			logger.Info().Str("addr", cfg.RedisAddr()).Msg("redis ready")
			return rc, nil
		}
		lastErr = err
		logger.Warn().Err(err).Int("attempt", i).Int("max", redisMaxAttempts).Msg("redis connection failed")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redisRetryDelay):
		}
	}
	return nil, errors.Wrapf(lastErr, "connecting to redis after %d attempts", redisMaxAttempts)
}

func (a *App) build() {
	cfg := a.Config
	r := a.Repos

	provider := nba.NewClient(nba.Config{
		StatsURL:   cfg.UpstreamStatsURL,
		LiveURL:    cfg.UpstreamLiveURL,
		Timeout:    cfg.UpstreamTimeout,
		MaxRetries: cfg.UpstreamMaxRetries,
		RetryDelay: 2 * time.Second,
	}, ratelimit.New(cfg.UpstreamMinInterval))

	a.Ingest = ingest.NewService(provider, ingest.Stores{
		Teams:     r.Teams,
		Players:   r.Players,
		Games:     r.Games,
		Stats:     r.Stats,
		Standings: r.Standings,
		Logs:      r.IngestionLogs,
	}, a.Cache, a.Events, ingest.Options{
		BoxScoreCap: cfg.BoxScoreCap,
		RecentDays:  cfg.RecentDays,
	})

	a.History = history.NewAggregator(provider, history.Stores{
		Teams:       r.Teams,
		SeasonStats: r.SeasonStats,
		GameLogs:    r.GameLogs,
	}, history.Config{
		TrainingSeasons: cfg.TrainingSeasons,
		Sequence: history.SequenceConfig{
			SequenceLength: cfg.ModelSequenceLength,
			StepSize:       cfg.ModelStepSize,
		},
	})

	a.Pipeline = pipeline.New(a.History, pipeline.Stores{
		Teams:       r.Teams,
		SeasonStats: r.SeasonStats,
		Predictions: r.Predictions,
		Models:      r.Models,
	}, a.Artifacts, a.Cache, pipeline.Config{
		HiddenSize: cfg.ModelHiddenSize,
		NumLayers:  cfg.ModelNumLayers,
		Dropout:    cfg.ModelDropout,
		Scaler:     ml.ScalerKind(strings.ToLower(cfg.ModelScaler)),
		Train: ml.TrainConfig{
			Epochs:       cfg.ModelEpochs,
			BatchSize:    cfg.ModelBatchSize,
			LearningRate: cfg.ModelLearningRate,
			Patience:     cfg.ModelPatience,
			Seed:         ml.SplitSeed,
			Device:       cfg.TrainerDevice,
			Workers:      cfg.TrainerWorkers,
		},
	})

	a.Predictions = prediction.NewService(prediction.Stores{
		Teams:       r.Teams,
		Predictions: r.Predictions,
		Standings:   r.Standings,
		Models:      r.Models,
	}, a.Pipeline, a.Cache, a.Events, cfg.CurrentSeason)

	stores := service.Stores{
		Teams:         r.Teams,
		Games:         r.Games,
		Players:       r.Players,
		Stats:         r.Stats,
		Standings:     r.Standings,
		IngestionLogs: r.IngestionLogs,
	}
	a.Games = service.NewGameService(stores, a.Cache)
	a.Players = service.NewPlayerService(stores, a.Cache)
	a.League = service.NewLeagueService(stores, a.Cache)
}

// Season returns season, or the configured current season when empty.
func (a *App) Season(season string) string {
	if season == "" {
		return a.Config.CurrentSeason
	}
	return season
}

// Close releases the artifact store, Redis and Postgres.
func (a *App) Close() {
	if c, ok := a.Artifacts.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing artifact store")
		}
	}
	if a.Cache != nil {
		a.Cache.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
