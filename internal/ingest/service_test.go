package ingest

import (
	"context"
	"database/sql/driver"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/cache"
	"github.com/fortuna/courtcast/internal/publisher"
	"github.com/fortuna/courtcast/internal/store"
	"github.com/fortuna/courtcast/internal/store/memstore"
	"github.com/fortuna/courtcast/internal/upstream"
)

const (
	bos = 1610612738
	lal = 1610612747
	nyk = 1610612752
)

type fakeProvider struct {
	teams        []upstream.TeamRecord
	rosters      map[int][]upstream.RosterRecord
	rosterErrs   map[int]error
	standings    []upstream.StandingRecord
	standingsErr error
	scoreboard   *upstream.Scoreboard
	boxScores    map[string][]upstream.BoxScoreLine
	boxErrs      map[string]error
	found        []upstream.GameFinderRow

	mu       sync.Mutex
	boxCalls []string
	from, to time.Time
}

func (f *fakeProvider) Teams(context.Context) ([]upstream.TeamRecord, error) { return f.teams, nil }

func (f *fakeProvider) Roster(_ context.Context, team int, _ string) ([]upstream.RosterRecord, error) {
	return f.rosters[team], f.rosterErrs[team]
}

func (f *fakeProvider) Standings(context.Context, string) ([]upstream.StandingRecord, error) {
	return f.standings, f.standingsErr
}

func (f *fakeProvider) Scoreboard(context.Context) (*upstream.Scoreboard, error) {
	if f.scoreboard == nil {
		return &upstream.Scoreboard{}, nil
	}
	return f.scoreboard, nil
}

func (f *fakeProvider) BoxScore(_ context.Context, gameID string) ([]upstream.BoxScoreLine, error) {
	f.mu.Lock()
	f.boxCalls = append(f.boxCalls, gameID)
	f.mu.Unlock()
	return f.boxScores[gameID], f.boxErrs[gameID]
}

func (f *fakeProvider) FindGames(_ context.Context, from, to time.Time, _ string) ([]upstream.GameFinderRow, error) {
	f.from, f.to = from, to
	return f.found, nil
}

func (f *fakeProvider) TeamSeasonStats(context.Context, string) ([]upstream.TeamStatsRecord, error) {
	return nil, nil
}

func (f *fakeProvider) TeamGameLog(context.Context, int, string) ([]upstream.GameLogRecord, error) {
	return nil, nil
}

type recordingPublisher struct{ events []publisher.Event }

func (r *recordingPublisher) Publish(_ context.Context, ev publisher.Event) error {
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingPublisher) ofType(t string) []publisher.Event {
	var out []publisher.Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	svc   *Service
	ms    *memstore.Store
	prov  *fakeProvider
	cache *cache.RedisCache
	pub   *recordingPublisher
	now   time.Time
}

func newHarness(t *testing.T, prov *fakeProvider) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	h := &harness{
		ms:    memstore.New(),
		prov:  prov,
		cache: cache.NewFromClient(client),
		pub:   &recordingPublisher{},
		now:   time.Date(2025, 11, 20, 18, 0, 0, 0, time.UTC),
	}
	h.svc = NewService(prov, h.stores(), h.cache, h.pub, Options{
		BoxScoreCap: 2,
		Now:         func() time.Time { return h.now },
	})
	return h
}

func (h *harness) stores() Stores {
	return Stores{
		Teams:     h.ms.Teams,
		Players:   h.ms.Players,
		Games:     h.ms.Games,
		Stats:     h.ms.Stats,
		Standings: h.ms.Standings,
		Logs:      h.ms.IngestionLogs,
	}
}

func threeTeams() []upstream.TeamRecord {
	return []upstream.TeamRecord{
		{NBAID: bos, Abbreviation: "BOS", Nickname: "Celtics", City: "Boston"},
		{NBAID: lal, Abbreviation: "LAL", Nickname: "Lakers", City: "Los Angeles"},
		{NBAID: nyk, Abbreviation: "NYK", Nickname: "Knicks", City: "New York"},
	}
}

func TestIngestTeams_IdempotentWithDerivedConference(t *testing.T) {
	h := newHarness(t, &fakeProvider{teams: threeTeams()})
	ctx := context.Background()

	res, err := h.svc.IngestTeams(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Written)

	first, err := h.ms.Teams.GetByNBAID(ctx, bos)
	require.NoError(t, err)
	assert.Equal(t, store.ConferenceEast, first.Conference)
	assert.Equal(t, "Boston Celtics", first.Name)

	lakers, err := h.ms.Teams.GetByNBAID(ctx, lal)
	require.NoError(t, err)
	assert.Equal(t, store.ConferenceWest, lakers.Conference)

	_, err = h.svc.IngestTeams(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, h.ms.Counts()["teams"])

	again, err := h.ms.Teams.GetByNBAID(ctx, bos)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	logs, err := h.ms.IngestionLogs.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, store.IngestionSuccess, logs[0].Status)
	assert.Equal(t, 3, logs[0].RecordsProcessed)
	assert.NotNil(t, logs[0].CompletedAt)
	assert.Len(t, h.pub.ofType(publisher.EventIngestionCompleted), 2)
}

func TestIngestRoster_UpdateKeepsIdentity(t *testing.T) {
	bd := time.Date(1998, 3, 3, 0, 0, 0, 0, time.UTC)
	prov := &fakeProvider{
		teams: threeTeams(),
		rosters: map[int][]upstream.RosterRecord{
			bos: {{PlayerID: 1628369, FirstName: "Jayson", LastName: "Tatum", Jersey: store.Ptr("0"), BirthDate: &bd, YearsPro: 8}},
		},
	}
	h := newHarness(t, prov)
	ctx := context.Background()

	_, err := h.svc.IngestTeams(ctx)
	require.NoError(t, err)
	res, err := h.svc.IngestRoster(ctx, bos, "2025-26")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)

	before, err := h.ms.Players.GetByNBAID(ctx, 1628369)
	require.NoError(t, err)

	prov.rosters[bos][0].Jersey = store.Ptr("00")
	_, err = h.svc.IngestRoster(ctx, bos, "2025-26")
	require.NoError(t, err)

	after, err := h.ms.Players.GetByNBAID(ctx, 1628369)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, "00", *after.JerseyNumber)
	require.NotNil(t, after.TeamID)
	bosTeam, _ := h.ms.Teams.GetByNBAID(ctx, bos)
	assert.Equal(t, bosTeam.ID, *after.TeamID)
	assert.Equal(t, 1, h.ms.Counts()["players"])
}

func TestIngestRoster_UnknownTeamFailsLog(t *testing.T) {
	h := newHarness(t, &fakeProvider{})
	_, err := h.svc.IngestRoster(context.Background(), bos, "2025-26")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrReferencedEntityMissing))

	logs, err := h.ms.IngestionLogs.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, store.IngestionFailed, logs[0].Status)
	require.NotNil(t, logs[0].ErrorMessage)
}

func TestIngestStandings_SkipsUnknownTeamAndCaches(t *testing.T) {
	prov := &fakeProvider{
		teams: threeTeams(),
		standings: []upstream.StandingRecord{
			{TeamID: bos, Wins: 10, Losses: 4, WinPct: 0.714, PlayoffRank: store.Ptr(2)},
			{TeamID: 999, Wins: 1, Losses: 1},
		},
	}
	h := newHarness(t, prov)
	ctx := context.Background()

	_, err := h.svc.IngestTeams(ctx)
	require.NoError(t, err)
	res, err := h.svc.IngestStandings(ctx, "2025-26")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 1, res.Skipped)
	assert.True(t, errors.Is(res.Errors()[0], apperr.ErrReferencedEntityMissing))

	var cached []*store.StandingView
	require.True(t, h.cache.Get(ctx, cache.StandingsKey("2025-26"), &cached))
	require.Len(t, cached, 1)
	assert.Equal(t, "BOS", cached[0].Abbreviation)
	assert.Equal(t, 10, cached[0].Wins)
}

func TestIngestTodayGames(t *testing.T) {
	prov := &fakeProvider{
		teams: threeTeams(),
		scoreboard: &upstream.Scoreboard{
			GameDate: time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC),
			Games: []upstream.ScoreboardGame{
				{GameID: "0022500201", StatusCode: 2, Period: store.Ptr(3), Clock: "04:05",
					HomeTeamID: bos, AwayTeamID: nyk, HomeScore: 80, AwayScore: 75,
					HomeQuarters: []int{30, 25, 25}, AwayQuarters: []int{20, 30, 25}},
				{GameID: "0022500202", StatusCode: 1, HomeTeamID: lal, AwayTeamID: bos},
				{GameID: "0022500203", StatusCode: 3, HomeTeamID: lal, AwayTeamID: 42},
			},
		},
	}
	h := newHarness(t, prov)
	ctx := context.Background()

	_, err := h.svc.IngestTeams(ctx)
	require.NoError(t, err)
	res, err := h.svc.IngestTodayGames(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Written)
	assert.Equal(t, 1, res.Skipped)

	live, err := h.ms.Games.GetByNBAID(ctx, "0022500201")
	require.NoError(t, err)
	assert.Equal(t, store.GameStatusLive, live.Status)
	assert.Equal(t, "2025-26", live.Season)
	assert.Equal(t, []int{30, 25, 25}, live.HomeQuarters)
	require.NotNil(t, live.GameClock)
	assert.Equal(t, "04:05", *live.GameClock)

	sched, err := h.ms.Games.GetByNBAID(ctx, "0022500202")
	require.NoError(t, err)
	assert.Equal(t, store.GameStatusScheduled, sched.Status)
	assert.Nil(t, sched.HomeScore)

	var today []*store.Game
	require.True(t, h.cache.Get(ctx, cache.TodayKey(), &today))
	assert.Len(t, today, 2)

	var liveCached store.Game
	require.True(t, h.cache.Get(ctx, cache.LiveKey("0022500201"), &liveCached))
	assert.Equal(t, 80, *liveCached.HomeScore)

	require.Len(t, h.pub.ofType(publisher.EventGamesLive), 1)
}

func finderRows() []upstream.GameFinderRow {
	d := time.Date(2025, 11, 18, 0, 0, 0, 0, time.UTC)
	w, l := "W", "L"
	return []upstream.GameFinderRow{
		{GameID: "G1", TeamID: bos, GameDate: d, Matchup: "BOS vs. NYK", WL: &w, PTS: store.Ptr(110)},
		{GameID: "G1", TeamID: nyk, GameDate: d, Matchup: "NYK @ BOS", WL: &l, PTS: store.Ptr(101)},
		{GameID: "G2", TeamID: lal, GameDate: d, Matchup: "LAL vs. BOS", WL: &l, PTS: store.Ptr(99)},
		{GameID: "G2", TeamID: bos, GameDate: d, Matchup: "BOS @ LAL", WL: &w, PTS: store.Ptr(104)},
		{GameID: "G3", TeamID: nyk, GameDate: d, Matchup: "NYK vs. LAL", WL: &w, PTS: store.Ptr(120)},
		{GameID: "G3", TeamID: lal, GameDate: d, Matchup: "LAL @ NYK", WL: &l, PTS: store.Ptr(118)},
		{GameID: "G4", TeamID: bos, GameDate: d.AddDate(0, 0, 3), Matchup: "BOS vs. LAL"},
		{GameID: "G4", TeamID: lal, GameDate: d.AddDate(0, 0, 3), Matchup: "LAL @ BOS"},
		{GameID: "G5", TeamID: bos, GameDate: d, Matchup: "BOS vs. ???"},
	}
}

func TestIngestRecentGames_PairsAndCapsBoxScores(t *testing.T) {
	prov := &fakeProvider{
		teams: threeTeams(),
		found: finderRows(),
		boxScores: map[string][]upstream.BoxScoreLine{
			"G1": {
				{PlayerID: 1628369, TeamID: bos, FirstName: "Jayson", LastName: "Tatum", Points: 30},
				{PlayerID: 1628973, TeamID: nyk, FirstName: "Jalen", LastName: "Brunson", Points: 28},
			},
			"G2": {{PlayerID: 1628369, TeamID: bos, FirstName: "Jayson", LastName: "Tatum", Points: 25}},
		},
	}
	h := newHarness(t, prov)
	ctx := context.Background()

	_, err := h.svc.IngestTeams(ctx)
	require.NoError(t, err)
	res, err := h.svc.IngestRecentGames(ctx, 7, "2025-26")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 11, 13, 0, 0, 0, 0, time.UTC), prov.from)
	assert.Equal(t, time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC), prov.to)

	assert.Equal(t, 4, h.ms.Counts()["games"])
	assert.Equal(t, []string{"G1", "G2"}, prov.boxCalls)
	assert.Equal(t, 3, h.ms.Counts()["player_game_stats"])
	assert.Equal(t, 2, h.ms.Counts()["players"])
	assert.Equal(t, 1, res.Skipped)

	g1, err := h.ms.Games.GetByNBAID(ctx, "G1")
	require.NoError(t, err)
	assert.Equal(t, store.GameStatusFinal, g1.Status)
	assert.Equal(t, 110, *g1.HomeScore)
	assert.Equal(t, 101, *g1.AwayScore)

	g4, err := h.ms.Games.GetByNBAID(ctx, "G4")
	require.NoError(t, err)
	assert.Equal(t, store.GameStatusScheduled, g4.Status)

	// Same payload again: no new rows.
	before := h.ms.Counts()
	_, err = h.svc.IngestRecentGames(ctx, 7, "2025-26")
	require.NoError(t, err)
	after := h.ms.Counts()
	for _, table := range []string{"games", "players", "player_game_stats"} {
		assert.Equal(t, before[table], after[table], table)
	}
}

func TestIngestAllSeasonGames_UsesResultAndNoCap(t *testing.T) {
	prov := &fakeProvider{teams: threeTeams(), found: finderRows()}
	h := newHarness(t, prov)
	ctx := context.Background()

	_, err := h.svc.IngestTeams(ctx)
	require.NoError(t, err)
	_, err = h.svc.IngestAllSeasonGames(ctx, "2025-26")
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), prov.from)
	assert.Equal(t, time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC), prov.to)
	assert.ElementsMatch(t, []string{"G1", "G2", "G3"}, prov.boxCalls)
}

func TestIngestBoxScore_UnknownGame(t *testing.T) {
	h := newHarness(t, &fakeProvider{})
	_, err := h.svc.IngestBoxScore(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrReferencedEntityMissing))
}

func TestRunIncrementalRefresh_ContinuesPastFailedStep(t *testing.T) {
	prov := &fakeProvider{
		teams:        threeTeams(),
		standingsErr: apperr.Mark(errors.New("503 after retries"), apperr.ErrUpstreamUnavailable),
		found:        finderRows(),
	}
	h := newHarness(t, prov)

	report, err := h.svc.RunIncrementalRefresh(context.Background(), "2025-26")
	require.NoError(t, err)
	require.Len(t, report.Steps, 5)
	assert.Equal(t, []string{"standings"}, report.FailedSteps())
	assert.Equal(t, "recent_games", report.Steps[4].Name)
	assert.Equal(t, 4, h.ms.Counts()["games"])

	logs, err := h.ms.IngestionLogs.Recent(context.Background(), 0)
	require.NoError(t, err)
	var refresh *store.IngestionLog
	for _, l := range logs {
		if l.IngestionType == TypeIncrementalRefresh {
			refresh = l
		}
	}
	require.NotNil(t, refresh)
	assert.Equal(t, store.IngestionSuccess, refresh.Status)
	require.NotNil(t, refresh.ErrorMessage)
	assert.Contains(t, *refresh.ErrorMessage, "standings")
	assert.Equal(t, report.Written(), refresh.RecordsProcessed)
}

// clientTimeout has the shape the nba client returns once an
// http.Client timeout has exhausted its retries.
func clientTimeout(endpoint string) error {
	return apperr.Mark(
		errors.Wrapf(&url.Error{Op: "Get", URL: "https://stats.nba.com/stats/" + endpoint, Err: context.DeadlineExceeded},
			"%s unavailable after 2 attempts", endpoint),
		apperr.ErrUpstreamUnavailable,
	)
}

func TestRunIncrementalRefresh_ClientTimeoutsSkipOnlyTheItem(t *testing.T) {
	prov := &fakeProvider{
		teams: threeTeams(),
		rosters: map[int][]upstream.RosterRecord{
			bos: {{PlayerID: 1628369, FirstName: "Jayson", LastName: "Tatum", YearsPro: 8}},
		},
		rosterErrs: map[int]error{lal: clientTimeout("commonteamroster")},
		found:      finderRows()[:8],
		boxScores: map[string][]upstream.BoxScoreLine{
			"G2": {
				{PlayerID: 1628369, TeamID: bos, FirstName: "Jayson", LastName: "Tatum", Points: 25},
				{PlayerID: 2544, TeamID: lal, FirstName: "LeBron", LastName: "James", Points: 31},
			},
		},
		boxErrs: map[string]error{"G1": clientTimeout("boxscore")},
	}
	h := newHarness(t, prov)

	report, err := h.svc.RunIncrementalRefresh(context.Background(), "2025-26")
	require.NoError(t, err)
	require.Len(t, report.Steps, 5)
	assert.Empty(t, report.FailedSteps())

	rosters := report.Steps[2]
	assert.Equal(t, "rosters", rosters.Name)
	assert.Equal(t, 1, rosters.Result.Skipped)
	assert.Equal(t, 1, rosters.Result.Written)

	recent := report.Steps[4]
	assert.Equal(t, "recent_games", recent.Name)
	assert.Empty(t, recent.Error)
	assert.Equal(t, 1, recent.Result.Skipped)
	assert.Zero(t, recent.Result.Failed)
	assert.True(t, errors.Is(recent.Result.Errors()[0], context.DeadlineExceeded))

	assert.Equal(t, []string{"G1", "G2"}, prov.boxCalls)
	assert.Equal(t, 4, h.ms.Counts()["games"])
	assert.Equal(t, 2, h.ms.Counts()["player_game_stats"])
}

type countingTeams struct {
	TeamStore
	mu     sync.Mutex
	getAll int
}

func (c *countingTeams) GetAll(ctx context.Context) ([]*store.Team, error) {
	c.mu.Lock()
	c.getAll++
	c.mu.Unlock()
	return c.TeamStore.GetAll(ctx)
}

func (c *countingTeams) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.getAll
}

func TestUnknownTeamReloadsDirectoryOncePerOperation(t *testing.T) {
	prov := &fakeProvider{
		teams: threeTeams(),
		standings: []upstream.StandingRecord{
			{TeamID: 999, Wins: 1, Losses: 1},
			{TeamID: bos, Wins: 10, Losses: 4},
			{TeamID: 999, Wins: 2, Losses: 2},
			{TeamID: 999, Wins: 3, Losses: 3},
		},
	}
	h := newHarness(t, prov)
	stores := h.stores()
	teams := &countingTeams{TeamStore: stores.Teams}
	stores.Teams = teams
	svc := NewService(prov, stores, h.cache, h.pub, Options{Now: func() time.Time { return h.now }})
	ctx := context.Background()

	_, err := svc.IngestTeams(ctx)
	require.NoError(t, err)
	require.Zero(t, teams.calls())

	res, err := svc.IngestStandings(ctx, "2025-26")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 3, res.Skipped)
	assert.Equal(t, 1, teams.calls())

	// A new operation gets one fresh look at the directory.
	_, err = svc.IngestStandings(ctx, "2025-26")
	require.NoError(t, err)
	assert.Equal(t, 2, teams.calls())
}

func TestUnknownTeamResolvesOnceIngested(t *testing.T) {
	prov := &fakeProvider{
		teams:     threeTeams()[:1],
		standings: []upstream.StandingRecord{{TeamID: lal, Wins: 5, Losses: 5}},
	}
	h := newHarness(t, prov)
	ctx := context.Background()

	_, err := h.svc.IngestTeams(ctx)
	require.NoError(t, err)
	res, err := h.svc.IngestStandings(ctx, "2025-26")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)

	prov.teams = threeTeams()
	_, err = h.svc.IngestTeams(ctx)
	require.NoError(t, err)
	res, err = h.svc.IngestStandings(ctx, "2025-26")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Written)
	assert.Zero(t, res.Skipped)
}

func TestRunFullIngestion_AbortsWhenStoreIsDown(t *testing.T) {
	h := newHarness(t, &fakeProvider{teams: threeTeams()})
	h.ms.FailWith = driver.ErrBadConn

	_, err := h.svc.RunFullIngestion(context.Background(), "2025-26")
	require.Error(t, err)
	assert.Equal(t, apperr.Abort, apperr.Classify(err))
}

func TestSeasonHelpers(t *testing.T) {
	assert.Equal(t, "2025-26", SeasonFor(time.Date(2025, 10, 21, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-25", SeasonFor(time.Date(2025, 4, 13, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "1999-00", SeasonFor(time.Date(1999, 12, 1, 0, 0, 0, 0, time.UTC)))

	y, err := SeasonStartYear("2023-24")
	require.NoError(t, err)
	assert.Equal(t, 2023, y)
	_, err = SeasonStartYear("2023")
	assert.Error(t, err)

	assert.Equal(t, store.ConferenceEast, ConferenceFor("MIA"))
	assert.Equal(t, store.ConferenceWest, ConferenceFor("OKC"))
}
