package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/courtcast/internal/cache"
	"github.com/fortuna/courtcast/internal/store"
	"github.com/fortuna/courtcast/internal/store/memstore"
)

type fixture struct {
	ms     *memstore.Store
	mr     *miniredis.Miniredis
	cache  *cache.RedisCache
	stores Stores
	home   *store.Team
	away   *store.Team
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{ms: memstore.New()}
	f.mr = miniredis.RunT(t)
	f.cache = cache.NewFromClient(redis.NewClient(&redis.Options{Addr: f.mr.Addr()}))
	f.stores = Stores{
		Teams:         f.ms.Teams,
		Games:         f.ms.Games,
		Players:       f.ms.Players,
		Stats:         f.ms.Stats,
		Standings:     f.ms.Standings,
		IngestionLogs: f.ms.IngestionLogs,
	}

	f.home = &store.Team{NBAID: 1610612738, Abbreviation: "BOS", Name: "Celtics", Conference: store.ConferenceEast}
	f.away = &store.Team{NBAID: 1610612747, Abbreviation: "LAL", Name: "Lakers", Conference: store.ConferenceWest}
	for _, team := range []*store.Team{f.home, f.away} {
		_, err := f.ms.Teams.Upsert(ctx, team)
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) game(t *testing.T, nbaID string, date time.Time, status string) *store.Game {
	t.Helper()
	g := &store.Game{
		NBAGameID: nbaID, Season: "2025-26", GameDate: date,
		HomeTeamID: f.home.ID, AwayTeamID: f.away.ID, Status: status,
		HomeScore: store.Ptr(101), AwayScore: store.Ptr(99),
	}
	_, err := f.ms.Games.Upsert(context.Background(), g)
	require.NoError(t, err)
	return g
}

func TestTodayGames(t *testing.T) {
	f := newFixture(t)
	now := time.Date(2026, 1, 10, 19, 0, 0, 0, time.UTC)
	f.game(t, "0022500500", now.Add(-time.Hour), store.GameStatusLive)
	f.game(t, "0022500490", now.AddDate(0, 0, -1), store.GameStatusFinal)

	svc := NewGameService(f.stores, f.cache)
	svc.now = func() time.Time { return now }

	games, err := svc.TodayGames(context.Background())
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "0022500500", games[0].Game.NBAGameID)
	assert.Equal(t, "BOS", games[0].HomeTeam.Abbreviation)
	assert.Equal(t, "LAL", games[0].AwayTeam.Abbreviation)
	assert.True(t, f.mr.Exists(cache.TodayKey()))
	assert.False(t, f.mr.Exists(cache.LiveKey("0022500500")))

	f.game(t, "0022500501", now, store.GameStatusScheduled)
	games, err = svc.TodayGames(context.Background())
	require.NoError(t, err)
	assert.Len(t, games, 1, "served from cache")
}

func TestLiveGame(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g := f.game(t, "0022500500", time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), store.GameStatusLive)

	tatum := &store.Player{NBAID: 1628369, FirstName: "Jayson", LastName: "Tatum", TeamID: &f.home.ID}
	james := &store.Player{NBAID: 2544, FirstName: "LeBron", LastName: "James", TeamID: &f.away.ID}
	for _, p := range []*store.Player{tatum, james} {
		_, err := f.ms.Players.Upsert(ctx, p)
		require.NoError(t, err)
	}
	for _, st := range []*store.PlayerGameStats{
		{PlayerID: tatum.ID, GameID: g.ID, TeamID: f.home.ID, Points: 31},
		{PlayerID: james.ID, GameID: g.ID, TeamID: f.away.ID, Points: 27},
		{PlayerID: 9999, GameID: g.ID, TeamID: f.away.ID, Points: 2},
	} {
		_, err := f.ms.Stats.Upsert(ctx, st)
		require.NoError(t, err)
	}

	svc := NewGameService(f.stores, f.cache)
	box, err := svc.LiveGame(ctx, "0022500500")
	require.NoError(t, err)
	require.Len(t, box.HomeTeamStats, 1)
	require.Len(t, box.AwayTeamStats, 1, "lines without a known player are dropped")
	assert.Equal(t, 31, box.HomeTeamStats[0].Stats.Points)
	assert.Equal(t, "LeBron James", box.AwayTeamStats[0].Player.FullName())
	assert.Equal(t, cache.TTLLive, f.mr.TTL(cache.LiveKey("0022500500")))

	f.game(t, "0022500490", time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC), store.GameStatusFinal)
	_, err = svc.LiveGame(ctx, "0022500490")
	require.NoError(t, err)
	assert.Equal(t, cache.TTLGameFinal, f.mr.TTL(cache.GameKey("0022500490")))

	_, err = svc.LiveGame(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestPlayerSeasonStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g1 := f.game(t, "g1", time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC), store.GameStatusFinal)
	g2 := f.game(t, "g2", time.Date(2025, 11, 3, 0, 0, 0, 0, time.UTC), store.GameStatusFinal)

	p := &store.Player{NBAID: 1628369, FirstName: "Jayson", LastName: "Tatum", TeamID: &f.home.ID}
	_, err := f.ms.Players.Upsert(ctx, p)
	require.NoError(t, err)
	for i, g := range []*store.Game{g1, g2} {
		_, err := f.ms.Stats.Upsert(ctx, &store.PlayerGameStats{PlayerID: p.ID, GameID: g.ID, TeamID: f.home.ID, Points: 20 + 10*i})
		require.NoError(t, err)
	}

	svc := NewPlayerService(f.stores, f.cache)
	out, err := svc.PlayerSeasonStats(ctx, p.ID, "2025-26")
	require.NoError(t, err)
	assert.Equal(t, 2, out.Averages.GamesPlayed)
	assert.Equal(t, 25.0, out.Averages.Points)
	assert.True(t, f.mr.Exists(cache.PlayerStatsKey(p.ID, "2025-26")))

	profile, err := svc.Player(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, profile.Team)
	assert.Equal(t, "BOS", profile.Team.Abbreviation)

	_, err = svc.PlayerSeasonStats(ctx, p.ID, "2019-20")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestStandings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, st := range []*store.TeamStanding{
		{TeamID: f.home.ID, Season: "2025-26", Wins: 30, Losses: 10, WinPct: 0.75, ConferenceRank: store.Ptr(1)},
		{TeamID: f.away.ID, Season: "2025-26", Wins: 22, Losses: 18, WinPct: 0.55, ConferenceRank: store.Ptr(6)},
	} {
		_, err := f.ms.Standings.Upsert(ctx, st)
		require.NoError(t, err)
	}

	svc := NewLeagueService(f.stores, f.cache)
	out, err := svc.Standings(ctx, "2025-26")
	require.NoError(t, err)
	require.Len(t, out.East, 1)
	require.Len(t, out.West, 1)
	assert.Equal(t, "BOS", out.East[0].Abbreviation)
	assert.Equal(t, 6, *out.West[0].ConferenceRank)

	f.mr.FastForward(cache.TTLStandings + time.Second)
	assert.False(t, f.mr.Exists(cache.StandingsKey("2025-26")))

	empty, err := svc.Standings(ctx, "1999-00")
	require.NoError(t, err)
	assert.Empty(t, empty.East)
	assert.NotNil(t, empty.West)
}

func TestTeamAndLogs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	svc := NewLeagueService(f.stores, f.cache)

	team, err := svc.Team(ctx, f.away.ID)
	require.NoError(t, err)
	assert.Equal(t, "Lakers", team.Name)
	assert.True(t, f.mr.Exists(cache.TeamKey(f.away.ID)))

	_, err = svc.Team(ctx, 424242)
	assert.True(t, errors.Is(err, store.ErrNotFound))

	teams, err := svc.Teams(ctx)
	require.NoError(t, err)
	assert.Len(t, teams, 2)

	for i := 0; i < 3; i++ {
		l, err := f.ms.IngestionLogs.Start(ctx, "incremental")
		require.NoError(t, err)
		require.NoError(t, f.ms.IngestionLogs.Finish(ctx, l.ID, store.IngestionSuccess, i, nil))
	}
	logs, err := svc.RecentIngestionLogs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, 2, logs[0].RecordsProcessed)
}
