package history

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/store"
	"github.com/fortuna/courtcast/internal/store/memstore"
	"github.com/fortuna/courtcast/internal/upstream"
)

type fakeProvider struct {
	upstream.Provider // unused methods panic

	stats     map[string][]upstream.TeamStatsRecord
	standings map[string][]upstream.StandingRecord
	logs      map[int][]upstream.GameLogRecord
	logErr    error
}

func (f *fakeProvider) TeamSeasonStats(_ context.Context, season string) ([]upstream.TeamStatsRecord, error) {
	return f.stats[season], nil
}

func (f *fakeProvider) Standings(_ context.Context, season string) ([]upstream.StandingRecord, error) {
	return f.standings[season], nil
}

func (f *fakeProvider) TeamGameLog(_ context.Context, team int, _ string) ([]upstream.GameLogRecord, error) {
	if f.logErr != nil {
		return nil, f.logErr
	}
	return f.logs[team], nil
}

// makeLogs builds n chronological logs: every third game a loss, points
// rising by one per game.
func makeLogs(teamID int, season string, n int) []*store.TeamGameLog {
	start := time.Date(2023, 10, 24, 0, 0, 0, 0, time.UTC)
	out := make([]*store.TeamGameLog, n)
	for i := 0; i < n; i++ {
		wl := "W"
		if i%3 == 2 {
			wl = "L"
		}
		out[i] = &store.TeamGameLog{
			TeamID:    teamID,
			NBAGameID: fmt.Sprintf("00223%05d", i),
			Season:    season,
			GameDate:  start.AddDate(0, 0, 2*i),
			WL:        wl,
			PTS:       100 + i,
			FGPct:     0.5,
			FG3Pct:    0.36,
			FTPct:     0.8,
			AST:       25,
			REB:       44,
			TOV:       12,
			STL:       7,
			BLK:       5,
			OREB:      10,
			DREB:      34,
			PlusMinus: 4,
		}
	}
	return out
}

func TestBuildSequence_Threshold(t *testing.T) {
	cfg := DefaultSequenceConfig

	_, ok := BuildSequence(makeLogs(1, "2023-24", cfg.MinGames()-1), cfg)
	assert.False(t, ok)

	seq, ok := BuildSequence(makeLogs(1, "2023-24", cfg.MinGames()), cfg)
	require.True(t, ok)
	require.Len(t, seq, 10)
	for _, row := range seq {
		assert.Len(t, row, NumFeatures)
	}

	_, ok = BuildSequence(nil, SequenceConfig{})
	assert.False(t, ok)
}

func TestBuildSequence_Features(t *testing.T) {
	seq, ok := BuildSequence(makeLogs(1, "2023-24", 60), DefaultSequenceConfig)
	require.True(t, ok)

	first := seq[0]
	assert.Equal(t, 5.0, first[0])                     // games played
	assert.Equal(t, 4.0, first[1])                     // W in games 0..4 (loss at 2)
	assert.Equal(t, 1.0, first[2])                     // L
	assert.InDelta(t, 0.8, first[3], 1e-9)             // running win pct
	assert.InDelta(t, 102.0, first[4], 1e-9)           // mean of 100..104
	assert.InDelta(t, 50.0, first[5], 1e-9)            // fg% x100
	assert.InDelta(t, 36.0, first[6], 1e-9)            // 3p% x100
	assert.InDelta(t, 80.0, first[7], 1e-9)            // ft% x100
	assert.Equal(t, []float64{25, 44, 12, 7, 5, 10, 34, 4}, first[8:16])
	assert.Equal(t, []float64{100, 110, 110, 0}, first[16:])

	second := seq[1]
	assert.Equal(t, 10.0, second[0])
	// Games 0..9 hold losses at 2, 5, 8.
	assert.InDelta(t, 0.7, second[3], 1e-9)

	// Only the first 50 games are used.
	assert.Equal(t, 50.0, seq[9][0])
	assert.InDelta(t, 147.0, seq[9][4], 1e-9)
}

func TestTargets(t *testing.T) {
	full := &store.TeamSeasonStats{
		Wins: 64, Losses: 18, WinPct: 0.78,
		ConferenceRank: store.Ptr(1), PlayoffSeed: store.Ptr(1),
		PPG: store.Ptr(120.6), OPPG: store.Ptr(109.2), Pace: store.Ptr(97.2), DefRating: store.Ptr(110.6),
	}
	assert.Equal(t, []float64{64, 18, 0.78, 1, 1, 120.6, 109.2, 97.2, 110.6}, Targets(full))

	bare := &store.TeamSeasonStats{Wins: 20, Losses: 62, WinPct: 0.244, ConferenceRank: store.Ptr(14)}
	assert.Equal(t, []float64{20, 62, 0.244, 14, 0, 110, 110, 100, 110}, Targets(bare))

	assert.Equal(t, 15.0, Targets(&store.TeamSeasonStats{})[TargetConferenceRank])
}

type env struct {
	ms   *memstore.Store
	agg  *Aggregator
	prov *fakeProvider
	bos  *store.Team
	lal  *store.Team
}

func newEnv(t *testing.T, seasons ...string) *env {
	t.Helper()
	ctx := context.Background()
	e := &env{ms: memstore.New(), prov: &fakeProvider{}}

	e.bos = &store.Team{NBAID: 1610612738, Abbreviation: "BOS", Name: "Boston Celtics", Conference: store.ConferenceEast}
	e.lal = &store.Team{NBAID: 1610612747, Abbreviation: "LAL", Name: "Los Angeles Lakers", Conference: store.ConferenceWest}
	for _, tm := range []*store.Team{e.bos, e.lal} {
		_, err := e.ms.Teams.Upsert(ctx, tm)
		require.NoError(t, err)
	}

	e.agg = NewAggregator(e.prov, Stores{
		Teams:       e.ms.Teams,
		SeasonStats: e.ms.SeasonStats,
		GameLogs:    e.ms.GameLogs,
	}, Config{TrainingSeasons: seasons})
	return e
}

func (e *env) seedLogs(t *testing.T, teamID int, season string, n int) {
	t.Helper()
	for _, l := range makeLogs(teamID, season, n) {
		_, err := e.ms.GameLogs.Upsert(context.Background(), l)
		require.NoError(t, err)
	}
}

func TestIngestTeamSeasonStats(t *testing.T) {
	e := newEnv(t)
	e.prov.stats = map[string][]upstream.TeamStatsRecord{
		"2023-24": {
			{TeamID: 1610612738, GP: 82, PTS: store.Ptr(120.6), FGPct: store.Ptr(0.487), OppPTS: store.Ptr(109.2),
				Pace: store.Ptr(97.2), OffRating: store.Ptr(122.2), DefRating: store.Ptr(110.6)},
			{TeamID: 1610612747, GP: 82, PTS: store.Ptr(118.0)},
			{TeamID: 1610612799, GP: 82},
		},
	}
	e.prov.standings = map[string][]upstream.StandingRecord{
		"2023-24": {
			{TeamID: 1610612738, Wins: 64, Losses: 18, WinPct: 0.78, PlayoffRank: store.Ptr(1)},
			{TeamID: 1610612747, Wins: 47, Losses: 35, WinPct: 0.573, PlayoffRank: store.Ptr(11)},
		},
	}
	ctx := context.Background()

	n, err := e.agg.IngestTeamSeasonStats(ctx, "2023-24")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	bos, err := e.ms.SeasonStats.Get(ctx, e.bos.ID, "2023-24")
	require.NoError(t, err)
	assert.Equal(t, 64, bos.Wins)
	assert.InDelta(t, 48.7, *bos.FGPct, 1e-9)
	assert.InDelta(t, 109.2, *bos.OPPG, 1e-9)
	assert.InDelta(t, 11.6, *bos.NetRating, 1e-9)
	require.NotNil(t, bos.PlayoffSeed)
	assert.Equal(t, 1, *bos.PlayoffSeed)

	lal, err := e.ms.SeasonStats.Get(ctx, e.lal.ID, "2023-24")
	require.NoError(t, err)
	assert.Equal(t, 100.0, *lal.Pace)
	assert.Equal(t, 110.0, *lal.OffRating)
	assert.Equal(t, 110.0, *lal.DefRating)
	assert.Equal(t, 0.0, *lal.NetRating)
	assert.Equal(t, 110.0, *lal.OPPG)
	assert.Nil(t, lal.FGPct)
	assert.Nil(t, lal.PlayoffSeed)
	assert.Equal(t, 11, *lal.ConferenceRank)
}

func TestIngestAllHistoricalData(t *testing.T) {
	e := newEnv(t, "2022-23", "2023-24")
	d := time.Date(2023, 1, 5, 0, 0, 0, 0, time.UTC)
	e.prov.logs = map[int][]upstream.GameLogRecord{
		1610612738: {
			{GameID: "0022200002", GameDate: d.AddDate(0, 0, 2), WL: "W", PTS: 120},
			{GameID: "0022200001", GameDate: d, WL: "L", PTS: 99},
		},
	}

	counts, err := e.agg.IngestAllHistoricalData(context.Background())
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, 2, counts["2023-24"].GameLogs)

	logs, err := e.ms.GameLogs.ListForTeamSeason(context.Background(), e.bos.ID, "2023-24")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "0022200001", logs[0].NBAGameID)
}

func TestIngestTeamGameLogs_UnknownTeam(t *testing.T) {
	e := newEnv(t)
	_, err := e.agg.IngestTeamGameLogs(context.Background(), 42, "2023-24")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrReferencedEntityMissing))
}

func TestTrainingData(t *testing.T) {
	e := newEnv(t, "2023-24")
	ctx := context.Background()

	_, err := e.agg.TrainingData(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientTrainingData))

	e.seedLogs(t, e.bos.ID, "2023-24", 82)
	e.seedLogs(t, e.lal.ID, "2023-24", 30)
	for _, tm := range []*store.Team{e.bos, e.lal} {
		_, err := e.ms.SeasonStats.Upsert(ctx, &store.TeamSeasonStats{TeamID: tm.ID, Season: "2023-24", Wins: 50, Losses: 32})
		require.NoError(t, err)
	}

	ds, err := e.agg.TrainingData(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, ds.Len())
	assert.Equal(t, Sample{TeamID: e.bos.ID, Season: "2023-24"}, ds.Samples[0])
	assert.Len(t, ds.X[0], 10)
	assert.Len(t, ds.Y[0], NumTargets)
}

func TestInferenceSequence_ShrinksWindows(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	e.seedLogs(t, e.bos.ID, "2025-26", 23)
	seq, err := e.agg.InferenceSequence(ctx, e.bos.ID, "2025-26")
	require.NoError(t, err)
	require.Len(t, seq, 10)
	assert.Equal(t, 2.0, seq[0][0])
	assert.Equal(t, 20.0, seq[9][0])

	e.seedLogs(t, e.lal.ID, "2025-26", 9)
	_, err = e.agg.InferenceSequence(ctx, e.lal.ID, "2025-26")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInsufficientTrainingData))

	n, err := e.agg.GamesPlayed(ctx, e.lal.ID, "2025-26")
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}
