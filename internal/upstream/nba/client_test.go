package nba

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/ratelimit"
)

const rosterPayload = `{
  "resource": "commonteamroster",
  "resultSets": [{
    "name": "CommonTeamRoster",
    "headers": ["TeamID","SEASON","PLAYER","NUM","POSITION","HEIGHT","WEIGHT","BIRTH_DATE","AGE","EXP","PLAYER_ID"],
    "rowSet": [
      [1610612738,"2025","Jayson Tatum","0","F","6-8","210","MAR 03, 1998",27.0,"8",1628369],
      [1610612738,"2025","Rookie Guy","12","G","6-3","190","Jan 15, 2005",20.0,"R",1642000],
      [1610612738,"2025","Broken Row","1","G","6-3","190","",20.0,"1","not-a-number"]
    ]
  }]
}`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Config{
		StatsURL:   srv.URL + "/stats",
		LiveURL:    srv.URL + "/live",
		Timeout:    2 * time.Second,
		MaxRetries: 2,
		RetryDelay: time.Millisecond,
	}, ratelimit.New(0))
}

func TestClient_RosterParsesAndSkipsDrift(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stats/commonteamroster", r.URL.Path)
		assert.Equal(t, "1610612738", r.URL.Query().Get("TeamID"))
		assert.Equal(t, "2025-26", r.URL.Query().Get("Season"))
		w.Write([]byte(rosterPayload))
	}))

	recs, err := c.Roster(context.Background(), 1610612738, "2025-26")
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, 1628369, recs[0].PlayerID)
	assert.Equal(t, "Jayson", recs[0].FirstName)
	assert.Equal(t, "Tatum", recs[0].LastName)
	assert.Equal(t, 8, recs[0].YearsPro)
	require.NotNil(t, recs[0].BirthDate)
	assert.Equal(t, time.Date(1998, 3, 3, 0, 0, 0, 0, time.UTC), *recs[0].BirthDate)
	require.NotNil(t, recs[0].Weight)
	assert.Equal(t, 210, *recs[0].Weight)

	assert.Equal(t, 0, recs[1].YearsPro)
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(rosterPayload))
	}))

	recs, err := c.Roster(context.Background(), 1610612738, "2025-26")
	require.NoError(t, err)
	assert.Len(t, recs, 2)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_ExhaustedRetriesMarkUnavailable(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := c.Standings(context.Background(), "2025-26")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrUpstreamUnavailable))
	assert.Equal(t, apperr.Skip, apperr.Classify(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := c.BoxScore(context.Background(), "0022500001")
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperr.ErrUpstreamUnavailable))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_LimiterGatesEveryAttempt(t *testing.T) {
	var stamps []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stamps = append(stamps, time.Now())
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	interval := 40 * time.Millisecond
	c := NewClient(Config{StatsURL: srv.URL, MaxRetries: 2, RetryDelay: time.Millisecond}, ratelimit.New(interval))

	_, err := c.Standings(context.Background(), "2025-26")
	require.Error(t, err)
	require.Len(t, stamps, 3)
	for i := 1; i < len(stamps); i++ {
		assert.GreaterOrEqual(t, stamps[i].Sub(stamps[i-1]), interval-5*time.Millisecond)
	}
}

func TestClient_CanceledContext(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Roster(ctx, 1, "2025-26")
	require.Error(t, err)
	assert.Equal(t, apperr.Abort, apperr.Classify(err))
}

func TestClient_ScoreboardAndBoxScore(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/live/scoreboard/todaysScoreboard_00.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"scoreboard":{"gameDate":"2025-10-21","games":[
		  {"gameId":"0022500001","gameStatus":2,"period":3,"gameClock":"PT04M05.00S",
		   "homeTeam":{"teamId":1610612738,"score":80,"periods":[{"period":1,"score":30},{"period":2,"score":25},{"period":3,"score":25}]},
		   "awayTeam":{"teamId":1610612752,"score":75,"periods":[{"period":1,"score":20},{"period":2,"score":30},{"period":3,"score":25}]}},
		  {"gameId":"","gameStatus":1,"homeTeam":{"teamId":1},"awayTeam":{"teamId":2}}
		]}}`))
	})
	mux.HandleFunc("/live/boxscore/boxscore_0022500001.json", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"game":{"gameId":"0022500001",
		  "homeTeam":{"teamId":1610612738,"players":[
		    {"personId":1628369,"firstName":"Jayson","familyName":"Tatum","statistics":{"minutes":"PT25M30.00S","points":22,"fieldGoalsMade":8,"fieldGoalsAttempted":15,"reboundsTotal":7,"plusMinusPoints":5.0}}]},
		  "awayTeam":{"teamId":1610612752,"players":[
		    {"personId":1628973,"firstName":"Jalen","familyName":"Brunson","statistics":{"minutes":"","points":30}},
		    {"personId":0,"firstName":"Ghost"}]}}}`))
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	sb, err := c.Scoreboard(ctx)
	require.NoError(t, err)
	require.Len(t, sb.Games, 1)
	g := sb.Games[0]
	assert.Equal(t, 2, g.StatusCode)
	assert.Equal(t, "04:05", g.Clock)
	assert.Equal(t, []int{30, 25, 25}, g.HomeQuarters)
	assert.Equal(t, 75, g.AwayScore)

	lines, err := c.BoxScore(ctx, "0022500001")
	require.NoError(t, err)
	require.Len(t, lines, 2)
	require.NotNil(t, lines[0].Minutes)
	assert.InDelta(t, 25.5, *lines[0].Minutes, 1e-9)
	require.NotNil(t, lines[0].PlusMinus)
	assert.Equal(t, 5, *lines[0].PlusMinus)
	assert.Equal(t, 1610612752, lines[1].TeamID)
	assert.Nil(t, lines[1].Minutes)
}

func TestClient_TeamSeasonStatsMergesAdvanced(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("MeasureType") == "Advanced" {
			w.Write([]byte(`{"resultSets":[{"name":"LeagueDashTeamStats",
			  "headers":["TEAM_ID","GP","PACE","OFF_RATING","DEF_RATING"],
			  "rowSet":[[1610612738,82,97.5,120.1,110.4]]}]}`))
			return
		}
		w.Write([]byte(`{"resultSets":[{"name":"LeagueDashTeamStats",
		  "headers":["TEAM_ID","GP","PTS","FG_PCT","FG3_PCT","FT_PCT","OREB","DREB","AST","TOV","STL","BLK"],
		  "rowSet":[[1610612738,82,117.9,0.481,0.388,0.806,10.9,35.6,26.9,11.9,6.8,6.6],
		            [1610612752,82,112.8,0.470,0.370,0.780,11.0,33.0,24.0,12.0,7.0,5.0]]}]}`))
	}))

	recs, err := c.TeamSeasonStats(context.Background(), "2023-24")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, 1610612738, recs[0].TeamID)
	require.NotNil(t, recs[0].Pace)
	assert.InDelta(t, 97.5, *recs[0].Pace, 1e-9)
	assert.Nil(t, recs[1].Pace)
	require.NotNil(t, recs[1].FGPct)
	assert.InDelta(t, 0.47, *recs[1].FGPct, 1e-9)
}

func TestClient_TeamsIsStatic(t *testing.T) {
	c := NewClient(Config{}, ratelimit.New(0))
	teams, err := c.Teams(context.Background())
	require.NoError(t, err)
	assert.Len(t, teams, 30)
	for _, tm := range teams {
		assert.Nil(t, tm.Conference)
		assert.NotEmpty(t, tm.Abbreviation)
	}
}

func TestClient_SlowResponseIsSkippableNotAbort(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-time.After(300 * time.Millisecond):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		StatsURL:   srv.URL + "/stats",
		LiveURL:    srv.URL + "/live",
		Timeout:    50 * time.Millisecond,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
	}, ratelimit.New(0))

	_, err := c.BoxScore(context.Background(), "0022500001")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, errors.Is(err, apperr.ErrUpstreamUnavailable))
	assert.Equal(t, apperr.Skip, apperr.Classify(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}
