package pipeline

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/artifacts"
	"github.com/fortuna/courtcast/internal/cache"
	"github.com/fortuna/courtcast/internal/history"
	"github.com/fortuna/courtcast/internal/ml"
	"github.com/fortuna/courtcast/internal/store"
	"github.com/fortuna/courtcast/internal/store/memstore"
)

var fixedNow = time.Date(2025, 10, 15, 6, 30, 0, 0, time.UTC)

type harness struct {
	ms    *memstore.Store
	mr    *miniredis.Miniredis
	cache *cache.RedisCache
	art   *artifacts.LocalStore
	agg   *history.Aggregator
	p     *Pipeline
	teams []*store.Team
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{ms: memstore.New()}

	h.mr = miniredis.RunT(t)
	h.cache = cache.NewFromClient(redis.NewClient(&redis.Options{Addr: h.mr.Addr()}))

	var err error
	h.art, err = artifacts.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for i, spec := range []struct {
		abbr, conf string
	}{{"BOS", store.ConferenceEast}, {"NYK", store.ConferenceEast}, {"DEN", store.ConferenceWest}, {"OKC", store.ConferenceWest}} {
		team := &store.Team{NBAID: 1610612700 + i, Abbreviation: spec.abbr, Name: spec.abbr, Conference: spec.conf}
		_, err := h.ms.Teams.Upsert(ctx, team)
		require.NoError(t, err)
		h.teams = append(h.teams, team)
	}

	h.agg = history.NewAggregator(nil, history.Stores{
		Teams:       h.ms.Teams,
		SeasonStats: h.ms.SeasonStats,
		GameLogs:    h.ms.GameLogs,
	}, history.Config{TrainingSeasons: []string{"2022-23", "2023-24"}})

	h.p = New(h.agg, Stores{
		Teams:       h.ms.Teams,
		SeasonStats: h.ms.SeasonStats,
		Predictions: h.ms.Predictions,
		Models:      h.ms.Models,
	}, h.art, h.cache, Config{
		HiddenSize: 4,
		NumLayers:  1,
		Dropout:    0,
		Scaler:     ml.ScalerMinMax,
		Train:      ml.TrainConfig{Epochs: 3, BatchSize: 4, LearningRate: 0.01, Patience: 5, Seed: 42, Workers: 2},
		Now:        func() time.Time { return fixedNow },
	})
	return h
}

// seedLogs stores n games in which the team wins strength games in ten.
func (h *harness) seedLogs(t *testing.T, team *store.Team, season string, n, strength int) {
	t.Helper()
	year, err := strconv.Atoi(season[:4])
	require.NoError(t, err)
	start := time.Date(year, 10, 20, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		wl := "L"
		if i%10 < strength {
			wl = "W"
		}
		_, err := h.ms.GameLogs.Upsert(context.Background(), &store.TeamGameLog{
			TeamID:    team.ID,
			NBAGameID: fmt.Sprintf("%s-%d-%d", season, team.ID, i),
			Season:    season,
			GameDate:  start.AddDate(0, 0, 2*i),
			WL:        wl,
			PTS:       100 + strength + i%7,
			FGPct:     0.44 + float64(strength)/100,
			FG3Pct:    0.35,
			FTPct:     0.78,
			AST:       20 + strength,
			REB:       42,
			TOV:       14 - strength/2,
			PlusMinus: strength - 5,
		})
		require.NoError(t, err)
	}
}

func (h *harness) seedTraining(t *testing.T) {
	t.Helper()
	strengths := []int{7, 4, 6, 8}
	for _, season := range []string{"2022-23", "2023-24"} {
		for i, team := range h.teams {
			h.seedLogs(t, team, season, 50, strengths[i])
			wins := strengths[i] * 82 / 10
			_, err := h.ms.SeasonStats.Upsert(context.Background(), &store.TeamSeasonStats{
				TeamID: team.ID, Season: season, GamesPlayed: 82,
				Wins: wins, Losses: 82 - wins, WinPct: float64(wins) / 82,
				ConferenceRank: store.Ptr(4 - i%2), PPG: store.Ptr(110.0 + float64(i)),
			})
			require.NoError(t, err)
		}
	}
}

func TestTrainAndSave(t *testing.T) {
	h := newHarness(t)
	h.seedTraining(t)
	ctx := context.Background()
	h.cache.Set(ctx, cache.ActiveModelKey(), map[string]string{"model_version": "old"}, time.Hour)

	res, err := h.p.TrainAndSave(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "lstm_v20251015_0630", res.ModelVersion)
	assert.Equal(t, 7, res.TrainingSamples)
	assert.Equal(t, 1, res.ValidationSamples)
	assert.Contains(t, res.PerTargetMAE, "wins")

	md, err := h.ms.Models.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.ModelVersion, md.ModelVersion)
	assert.Equal(t, ModelTypeLSTM, md.ModelType)
	assert.Equal(t, res.BestEpoch+1, *md.EpochsTrained)
	assert.Equal(t, []int{4, 32}, md.HiddenUnits)
	assert.Equal(t, []string{"2022-23", "2023-24"}, md.TrainingSeasons)
	require.NotNil(t, md.MAEWins)
	assert.InDelta(t, res.PerTargetMAE["wins"], *md.MAEWins, 1e-12)

	for _, name := range []string{res.ModelVersion, ScalerArtifact(res.ModelVersion)} {
		ok, err := h.art.Exists(ctx, name)
		require.NoError(t, err)
		assert.True(t, ok, name)
	}
	assert.False(t, h.mr.Exists(cache.ActiveModelKey()))
}

func TestTrainAndSave_SwapsActiveModel(t *testing.T) {
	h := newHarness(t)
	h.seedTraining(t)
	ctx := context.Background()

	_, err := h.p.TrainAndSave(ctx, "lstm_a")
	require.NoError(t, err)
	_, err = h.p.TrainAndSave(ctx, "lstm_b")
	require.NoError(t, err)

	models, err := h.ms.Models.List(ctx)
	require.NoError(t, err)
	active := 0
	for _, m := range models {
		if m.IsActive {
			active++
			assert.Equal(t, "lstm_b", m.ModelVersion)
		}
	}
	assert.Equal(t, 1, active)
}

func TestTrainAndSave_InProgress(t *testing.T) {
	h := newHarness(t)
	h.p.training.Lock()
	defer h.p.training.Unlock()

	_, err := h.p.TrainAndSave(context.Background(), "v")
	assert.ErrorIs(t, err, ErrTrainingInProgress)
}

func TestTrainAndSave_NoData(t *testing.T) {
	h := newHarness(t)
	_, err := h.p.TrainAndSave(context.Background(), "v")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientTrainingData))
}

func TestGeneratePredictions_NoActiveModel(t *testing.T) {
	h := newHarness(t)
	_, err := h.p.GeneratePredictions(context.Background(), "2025-26", time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrNoActiveModel))
	assert.Equal(t, apperr.Fatal, apperr.Classify(err))
}

func TestGeneratePredictions(t *testing.T) {
	h := newHarness(t)
	h.seedTraining(t)
	ctx := context.Background()

	res, err := h.p.TrainAndSave(ctx, "lstm_test")
	require.NoError(t, err)

	for i, team := range h.teams[:3] {
		h.seedLogs(t, team, "2025-26", 20, 5+i)
	}
	h.seedLogs(t, h.teams[3], "2025-26", 5, 9)

	// A fresh pipeline reads the artifacts back from the store.
	fresh := New(h.agg, h.p.stores, h.art, h.cache, h.p.cfg)
	preds, err := fresh.GeneratePredictions(ctx, "2025-26", time.Time{})
	require.NoError(t, err)
	require.Len(t, preds, 3)

	mae, err := h.ms.Models.Active(ctx)
	require.NoError(t, err)
	ranks := map[string][]int{}
	for _, p := range preds {
		assert.Equal(t, res.ModelVersion, p.ModelVersion)
		assert.Equal(t, time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC), p.PredictionDate)
		assert.GreaterOrEqual(t, p.PredictedWins, 0.0)
		assert.LessOrEqual(t, p.PredictedWins, 82.0)
		require.NotNil(t, p.WinsLowerBound)
		require.NotNil(t, p.WinsUpperBound)
		assert.InDelta(t, ml.ClampWins(p.PredictedWins-*mae.MAEWins), *p.WinsLowerBound, 1e-9)
		assert.InDelta(t, ml.ClampWins(p.PredictedWins+*mae.MAEWins), *p.WinsUpperBound, 1e-9)

		for _, team := range h.teams {
			if team.ID == p.TeamID {
				ranks[team.Conference] = append(ranks[team.Conference], p.PredictedConferenceRank)
			}
		}
	}
	assert.ElementsMatch(t, []int{1, 2}, ranks[store.ConferenceEast])
	assert.ElementsMatch(t, []int{1}, ranks[store.ConferenceWest])

	// Same day replaces rather than duplicates.
	_, err = fresh.GeneratePredictions(ctx, "2025-26", time.Time{})
	require.NoError(t, err)
	rows, err := h.ms.Predictions.ListByDate(ctx, "2025-26", fixedNow)
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestAssignConferenceRanks(t *testing.T) {
	mk := func(nbaID int, conf string, wins float64) *projection {
		return &projection{team: &store.Team{NBAID: nbaID, Conference: conf}, forecast: ml.Forecast{Wins: wins}}
	}
	a := mk(3, store.ConferenceEast, 40)
	b := mk(1, store.ConferenceEast, 50)
	c := mk(2, store.ConferenceEast, 40)
	d := mk(9, store.ConferenceWest, 30)

	assignConferenceRanks([]*projection{a, b, c, d})
	assert.Equal(t, 1, b.rank)
	assert.Equal(t, 2, c.rank)
	assert.Equal(t, 3, a.rank)
	assert.Equal(t, 1, d.rank)
}

func TestSimpleProjection(t *testing.T) {
	prior := []*store.TeamSeasonStats{
		{Season: "2024-25", Wins: 50, PPG: store.Ptr(115.0), DefRating: store.Ptr(108.0), Pace: store.Ptr(99.0)},
		{Season: "2023-24", Wins: 40, PPG: store.Ptr(108.0), DefRating: store.Ptr(112.0)},
	}

	f := simpleProjection(prior, nil)
	assert.Equal(t, 45.7, f.Wins)
	assert.Equal(t, 36.3, f.Losses)
	assert.Equal(t, 0.557, f.WinPct)
	assert.Equal(t, 0.85, f.PlayoffProbability)
	assert.Equal(t, 112.0, f.PPG)
	// No OPPG recorded: falls back to the defensive rating.
	assert.Equal(t, 109.7, f.OPPG)
	assert.Equal(t, 56.6, f.Pace)

	current := &store.TeamSeasonStats{Season: "2025-26", GamesPlayed: 20, Wins: 15}
	f = simpleProjection(prior, current)
	assert.Equal(t, 55.2, f.Wins)
	assert.Equal(t, 0.95, f.PlayoffProbability)

	f = simpleProjection(prior, &store.TeamSeasonStats{GamesPlayed: 10, Wins: 10})
	assert.Equal(t, 45.7, f.Wins)
}

func TestPlayoffProbability(t *testing.T) {
	tests := []struct {
		wins float64
		want float64
	}{
		{60, 0.95}, {50, 0.95}, {47, 0.85}, {42, 0.70}, {40, 0.45}, {35, 0.25}, {20, 0.10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, playoffProbability(tt.wins), "wins=%v", tt.wins)
	}
}

func TestGenerateSimplePredictions(t *testing.T) {
	h := newHarness(t)
	h.seedTraining(t)
	ctx := context.Background()

	preds, err := h.p.GenerateSimplePredictions(ctx, "2025-26", time.Time{})
	require.NoError(t, err)
	require.Len(t, preds, 4)

	md, err := h.ms.Models.Active(ctx)
	require.NoError(t, err)
	assert.Equal(t, ModelTypeSimple, md.ModelType)
	assert.Equal(t, "simple_v20251015_0630", md.ModelVersion)

	byTeam := map[int]*store.TeamPrediction{}
	for _, p := range preds {
		byTeam[p.TeamID] = p
		assert.Nil(t, p.WinsLowerBound)
	}
	// OKC (8 in 10) out-projects DEN (6 in 10) in the West.
	assert.Equal(t, 1, byTeam[h.teams[3].ID].PredictedConferenceRank)
	assert.Equal(t, 2, byTeam[h.teams[2].ID].PredictedConferenceRank)

	// With a simple model active, GeneratePredictions reuses the projection.
	again, err := h.p.GeneratePredictions(ctx, "2025-26", fixedNow.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, again, 4)
	assert.Equal(t, md.ModelVersion, again[0].ModelVersion)
}
