package config

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// Database
	DatabaseHost     string `envconfig:"DB_HOST" default:"localhost"`
	DatabasePort     int    `envconfig:"DB_PORT" default:"5432"`
	DatabaseName     string `envconfig:"DB_NAME" default:"courtcast"`
	DatabaseUser     string `envconfig:"DB_USER" default:"courtcast"`
	DatabasePassword string `envconfig:"DB_PASSWORD" default:"courtcast"`
	DatabaseSSLMode  string `envconfig:"DB_SSL_MODE" default:"disable"`

	// Redis
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Application
	AppEnv   string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`

	// API
	APIHost     string `envconfig:"API_HOST" default:"0.0.0.0"`
	APIPort     int    `envconfig:"API_PORT" default:"8000"`
	WSPort      int    `envconfig:"WS_PORT" default:"8001"`
	MetricsPort int    `envconfig:"METRICS_PORT" default:"9090"`

	// Upstream provider
	UpstreamStatsURL    string        `envconfig:"UPSTREAM_STATS_URL" default:"https://stats.nba.com/stats"`
	UpstreamLiveURL     string        `envconfig:"UPSTREAM_LIVE_URL" default:"https://cdn.nba.com/static/json/liveData"`
	UpstreamTimeout     time.Duration `envconfig:"UPSTREAM_TIMEOUT" default:"30s"`
	UpstreamMinInterval time.Duration `envconfig:"UPSTREAM_MIN_INTERVAL" default:"600ms"`
	UpstreamMaxRetries  int           `envconfig:"UPSTREAM_MAX_RETRIES" default:"3"`

	// Ingestion
	IngestionPollInterval time.Duration `envconfig:"INGESTION_POLL_INTERVAL" default:"300s"`
	HistoricalSeasons     int           `envconfig:"HISTORICAL_SEASONS" default:"5"`
	CurrentSeason         string        `envconfig:"CURRENT_SEASON" default:"2025-26"`
	// TrainingSeasons defaults to the HistoricalSeasons seasons before
	// CurrentSeason.
	TrainingSeasons       []string      `envconfig:"TRAINING_SEASONS"`
	BoxScoreCap           int           `envconfig:"BOX_SCORE_CAP" default:"20"`
	RecentDays            int           `envconfig:"RECENT_DAYS" default:"7"`

	// Scheduler
	EnableScheduler   bool          `envconfig:"ENABLE_SCHEDULER" default:"true"`
	LivePollInterval  time.Duration `envconfig:"LIVE_POLL_INTERVAL" default:"30s"`
	FullIngestionCron string        `envconfig:"FULL_INGESTION_CRON" default:"0 4 * * *"`
	RetrainCron       string        `envconfig:"RETRAIN_CRON" default:"0 5 * * 1"`
	PredictCron       string        `envconfig:"PREDICT_CRON" default:"30 6 * * *"`

	// Model
	ModelSequenceLength int     `envconfig:"MODEL_SEQUENCE_LENGTH" default:"10"`
	ModelStepSize       int     `envconfig:"MODEL_STEP_SIZE" default:"5"`
	ModelHiddenSize     int     `envconfig:"MODEL_HIDDEN_SIZE" default:"64"`
	ModelNumLayers      int     `envconfig:"MODEL_NUM_LAYERS" default:"2"`
	ModelDropout        float64 `envconfig:"MODEL_DROPOUT" default:"0.2"`
	ModelLearningRate   float64 `envconfig:"MODEL_LEARNING_RATE" default:"0.001"`
	ModelBatchSize      int     `envconfig:"MODEL_BATCH_SIZE" default:"16"`
	ModelEpochs         int     `envconfig:"MODEL_EPOCHS" default:"100"`
	ModelPatience       int     `envconfig:"MODEL_PATIENCE" default:"15"`
	ModelScaler         string  `envconfig:"MODEL_SCALER" default:"minmax"`
	TrainerDevice       string  `envconfig:"TRAINER_DEVICE" default:"cpu"`
	TrainerWorkers      int     `envconfig:"TRAINER_WORKERS" default:"0"`

	// Model storage
	ModelStorageBackend string `envconfig:"MODEL_STORAGE_BACKEND" default:"local"`
	ModelLocalPath      string `envconfig:"MODEL_LOCAL_PATH" default:"trained_models"`
	ModelBucket         string `envconfig:"MODEL_BUCKET" default:""`
	ModelGCSPrefix      string `envconfig:"MODEL_GCS_PREFIX" default:"models"`
}

var seasonPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)

// Load loads configuration from environment variables
// It first attempts to load from .env file if present
func Load() (*Config, error) {
	// Try to load .env file (ignore error if doesn't exist)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment config: %w", err)
	}

	if len(cfg.TrainingSeasons) == 0 && ValidSeason(cfg.CurrentSeason) {
		cfg.TrainingSeasons = PriorSeasons(cfg.CurrentSeason, cfg.HistoricalSeasons)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if !ValidSeason(c.CurrentSeason) {
		return fmt.Errorf("CURRENT_SEASON must look like 2025-26, got %q", c.CurrentSeason)
	}
	if len(c.TrainingSeasons) == 0 {
		return fmt.Errorf("TRAINING_SEASONS or a positive HISTORICAL_SEASONS is required")
	}
	for _, s := range c.TrainingSeasons {
		if !ValidSeason(s) {
			return fmt.Errorf("TRAINING_SEASONS entry %q is not a season", s)
		}
	}

	switch strings.ToLower(c.ModelStorageBackend) {
	case "local":
	case "gcs":
		if c.ModelBucket == "" {
			return fmt.Errorf("MODEL_BUCKET is required for the gcs backend")
		}
	default:
		return fmt.Errorf("MODEL_STORAGE_BACKEND must be local or gcs, got %q", c.ModelStorageBackend)
	}

	switch strings.ToLower(c.ModelScaler) {
	case "minmax", "standard":
	default:
		return fmt.Errorf("MODEL_SCALER must be minmax or standard, got %q", c.ModelScaler)
	}

	if c.IngestionPollInterval <= 0 {
		return fmt.Errorf("INGESTION_POLL_INTERVAL must be positive")
	}
	if c.UpstreamMinInterval < 0 {
		return fmt.Errorf("UPSTREAM_MIN_INTERVAL must not be negative")
	}
	if c.ModelSequenceLength <= 0 || c.ModelStepSize <= 0 {
		return fmt.Errorf("MODEL_SEQUENCE_LENGTH and MODEL_STEP_SIZE must be positive")
	}

	return nil
}

// ValidSeason reports whether s is a season label such as "2024-25".
func ValidSeason(s string) bool {
	return seasonPattern.MatchString(s)
}

// PriorSeasons returns the n seasons before season, oldest first.
func PriorSeasons(season string, n int) []string {
	start, err := strconv.Atoi(season[:4])
	if err != nil || n <= 0 {
		return nil
	}
	out := make([]string, 0, n)
	for y := start - n; y < start; y++ {
		out = append(out, fmt.Sprintf("%d-%02d", y, (y+1)%100))
	}
	return out
}

// DatabaseDSN returns the PostgreSQL connection string
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DatabaseHost,
		c.DatabasePort,
		c.DatabaseUser,
		c.DatabasePassword,
		c.DatabaseName,
		c.DatabaseSSLMode,
	)
}

// RedisAddr returns the Redis address
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// APIAddr returns the REST listen address
func (c *Config) APIAddr() string {
	return fmt.Sprintf("%s:%d", c.APIHost, c.APIPort)
}
