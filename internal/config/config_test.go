package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CURRENT_SEASON", "2025-26")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 600*time.Millisecond, cfg.UpstreamMinInterval)
	assert.Equal(t, 300*time.Second, cfg.IngestionPollInterval)
	assert.Equal(t, []string{"2020-21", "2021-22", "2022-23", "2023-24", "2024-25"}, cfg.TrainingSeasons)
	assert.Equal(t, "local", cfg.ModelStorageBackend)
	assert.Equal(t, 20, cfg.BoxScoreCap)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr())
}

func TestLoad_HistoricalSeasons(t *testing.T) {
	t.Setenv("CURRENT_SEASON", "2000-01")
	t.Setenv("HISTORICAL_SEASONS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"1998-99", "1999-00"}, cfg.TrainingSeasons)

	t.Setenv("TRAINING_SEASONS", "2015-16,2016-17")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"2015-16", "2016-17"}, cfg.TrainingSeasons)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			CurrentSeason:         "2025-26",
			TrainingSeasons:       []string{"2023-24"},
			ModelStorageBackend:   "local",
			ModelScaler:           "minmax",
			IngestionPollInterval: time.Minute,
			ModelSequenceLength:   10,
			ModelStepSize:         5,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad season", mutate: func(c *Config) { c.CurrentSeason = "2025" }, wantErr: "CURRENT_SEASON"},
		{name: "no training seasons", mutate: func(c *Config) { c.TrainingSeasons = nil }, wantErr: "TRAINING_SEASONS"},
		{name: "bad training season", mutate: func(c *Config) { c.TrainingSeasons = []string{"x"} }, wantErr: "TRAINING_SEASONS"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.ModelStorageBackend = "gcs" }, wantErr: "MODEL_BUCKET"},
		{name: "gcs with bucket", mutate: func(c *Config) { c.ModelStorageBackend = "gcs"; c.ModelBucket = "b" }},
		{name: "unknown backend", mutate: func(c *Config) { c.ModelStorageBackend = "s3" }, wantErr: "MODEL_STORAGE_BACKEND"},
		{name: "unknown scaler", mutate: func(c *Config) { c.ModelScaler = "robust" }, wantErr: "MODEL_SCALER"},
		{name: "zero poll interval", mutate: func(c *Config) { c.IngestionPollInterval = 0 }, wantErr: "INGESTION_POLL_INTERVAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	c := &Config{
		DatabaseHost:     "db",
		DatabasePort:     5433,
		DatabaseUser:     "u",
		DatabasePassword: "p",
		DatabaseName:     "n",
		DatabaseSSLMode:  "disable",
	}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=n sslmode=disable", c.DatabaseDSN())
}
