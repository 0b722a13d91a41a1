// Package nba implements upstream.Provider over the league's public stats
// and live-data JSON endpoints.
package nba

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/metrics"
	"github.com/fortuna/courtcast/internal/ratelimit"
	"github.com/fortuna/courtcast/internal/upstream"
)

const (
	DefaultStatsURL = "https://stats.nba.com/stats"
	DefaultLiveURL  = "https://cdn.nba.com/static/json/liveData"

	leagueID   = "00"
	seasonType = "Regular Season"
)

// Config holds client settings.
type Config struct {
	StatsURL   string
	LiveURL    string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Client is the stats/live-data API client. Every outbound request,
// retries included, first passes through the shared limiter.
type Client struct {
	statsURL   string
	liveURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	maxRetries int
	retryDelay time.Duration
	logger     zerolog.Logger
}

var _ upstream.Provider = (*Client)(nil)

// NewClient creates a client sharing the process-wide limiter.
func NewClient(cfg Config, limiter *ratelimit.Limiter) *Client {
	if cfg.StatsURL == "" {
		cfg.StatsURL = DefaultStatsURL
	}
	if cfg.LiveURL == "" {
		cfg.LiveURL = DefaultLiveURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultMinInterval)
	}

	return &Client{
		statsURL:   cfg.StatsURL,
		liveURL:    cfg.LiveURL,
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		logger:     log.With().Str("component", "upstream").Logger(),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        20,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Teams returns the franchise directory. It makes no request.
func (c *Client) Teams(context.Context) ([]upstream.TeamRecord, error) {
	return staticTeams(), nil
}

// Roster fetches a team's roster for a season.
func (c *Client) Roster(ctx context.Context, teamNBAID int, season string) ([]upstream.RosterRecord, error) {
	body, err := c.stats(ctx, "commonteamroster", url.Values{
		"TeamID":   {strconv.Itoa(teamNBAID)},
		"Season":   {season},
		"LeagueID": {leagueID},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching roster for team %d", teamNBAID)
	}
	recs, drifts, err := parseRoster(body)
	c.logDrift("commonteamroster", drifts)
	return recs, err
}

// Standings fetches league standings for a season.
func (c *Client) Standings(ctx context.Context, season string) ([]upstream.StandingRecord, error) {
	body, err := c.stats(ctx, "leaguestandingsv3", url.Values{
		"LeagueID":   {leagueID},
		"Season":     {season},
		"SeasonType": {seasonType},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching standings for %s", season)
	}
	recs, drifts, err := parseStandings(body)
	c.logDrift("leaguestandingsv3", drifts)
	return recs, err
}

// Scoreboard fetches the live scoreboard for the current game day.
func (c *Client) Scoreboard(ctx context.Context) (*upstream.Scoreboard, error) {
	body, err := c.get(ctx, "scoreboard", c.liveURL+"/scoreboard/todaysScoreboard_00.json", nil)
	if err != nil {
		return nil, errors.Wrap(err, "fetching scoreboard")
	}
	sb, drifts, err := parseScoreboard(body)
	c.logDrift("scoreboard", drifts)
	return sb, err
}

// BoxScore fetches the per-player lines of one game.
func (c *Client) BoxScore(ctx context.Context, gameID string) ([]upstream.BoxScoreLine, error) {
	body, err := c.get(ctx, "boxscore", c.liveURL+"/boxscore/boxscore_"+url.PathEscape(gameID)+".json", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "fetching box score %s", gameID)
	}
	lines, drifts, err := parseBoxScore(body)
	c.logDrift("boxscore", drifts)
	return lines, err
}

// FindGames lists regular-season games in [from, to], one row per team.
func (c *Client) FindGames(ctx context.Context, from, to time.Time, season string) ([]upstream.GameFinderRow, error) {
	body, err := c.stats(ctx, "leaguegamefinder", url.Values{
		"DateFrom":     {from.Format("01/02/2006")},
		"DateTo":       {to.Format("01/02/2006")},
		"LeagueID":     {leagueID},
		"Season":       {season},
		"SeasonType":   {seasonType},
		"PlayerOrTeam": {"T"},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "finding games %s..%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}
	rows, drifts, err := parseGameFinder(body)
	c.logDrift("leaguegamefinder", drifts)
	return rows, err
}

// TeamSeasonStats fetches per-game team aggregates for a season, with
// pace and ratings merged in from the advanced table when available.
func (c *Client) TeamSeasonStats(ctx context.Context, season string) ([]upstream.TeamStatsRecord, error) {
	params := func(measure string) url.Values {
		return url.Values{
			"Season":      {season},
			"SeasonType":  {seasonType},
			"PerMode":     {"PerGame"},
			"MeasureType": {measure},
			"LeagueID":    {leagueID},
		}
	}

	body, err := c.stats(ctx, "leaguedashteamstats", params("Base"))
	if err != nil {
		return nil, errors.Wrapf(err, "fetching team stats for %s", season)
	}
	base, drifts, err := parseTeamStats(body, "LeagueDashTeamStats")
	c.logDrift("leaguedashteamstats", drifts)
	if err != nil {
		return nil, err
	}

	adv := map[int]*upstream.TeamStatsRecord{}
	body, err = c.stats(ctx, "leaguedashteamstats", params("Advanced"))
	if err == nil {
		adv, drifts, err = parseTeamStats(body, "LeagueDashTeamStats")
		c.logDrift("leaguedashteamstats advanced", drifts)
	}
	if err != nil {
		if apperr.Classify(err) == apperr.Abort {
			return nil, err
		}
		// Ratings fall back to league-average defaults downstream.
		c.logger.Warn().Err(err).Str("season", season).Msg("advanced team stats unavailable")
		adv = map[int]*upstream.TeamStatsRecord{}
	}

	return mergeAdvanced(base, adv), nil
}

// TeamGameLog fetches a team's regular-season game log, newest first.
func (c *Client) TeamGameLog(ctx context.Context, teamNBAID int, season string) ([]upstream.GameLogRecord, error) {
	body, err := c.stats(ctx, "teamgamelog", url.Values{
		"TeamID":     {strconv.Itoa(teamNBAID)},
		"Season":     {season},
		"SeasonType": {seasonType},
		"LeagueID":   {leagueID},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "fetching game log for team %d", teamNBAID)
	}
	recs, drifts, err := parseGameLog(body)
	c.logDrift("teamgamelog", drifts)
	return recs, err
}

func (c *Client) stats(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	return c.get(ctx, endpoint, c.statsURL+"/"+endpoint, params)
}

// get performs a GET with bounded exponential backoff. 429, 5xx and
// network errors are retried; once retries are exhausted the error is
// marked ErrUpstreamUnavailable. Other statuses fail immediately.
func (c *Client) get(ctx context.Context, endpoint, rawURL string, params url.Values) ([]byte, error) {
	if len(params) > 0 {
		rawURL += "?" + params.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.retryDelay * time.Duration(1<<uint(attempt-1))
			c.logger.Info().
				Str("endpoint", endpoint).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("retrying upstream request after backoff")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}

		body, retryable, err := c.do(ctx, endpoint, rawURL)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
		c.logger.Warn().
			Err(err).
			Str("endpoint", endpoint).
			Int("attempt", attempt+1).
			Msg("retryable upstream failure")
	}

	return nil, apperr.Mark(
		errors.Wrapf(lastErr, "%s unavailable after %d attempts", endpoint, c.maxRetries+1),
		apperr.ErrUpstreamUnavailable,
	)
}

func (c *Client) do(ctx context.Context, endpoint, rawURL string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Mozilla/5.0 (courtcast)")
	req.Header.Set("Referer", "https://www.nba.com/")
	req.Header.Set("Origin", "https://www.nba.com")
	req.Header.Set("x-nba-stats-origin", "stats")
	req.Header.Set("x-nba-stats-token", "true")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordUpstreamCall(endpoint, "network_error", time.Since(start).Seconds())
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordUpstreamCall(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, true, fmt.Errorf("reading response body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, false, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("retryable status %d", resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("upstream returned status %d for %s", resp.StatusCode, endpoint)
	}
}

func (c *Client) logDrift(endpoint string, drifts []error) {
	for _, d := range drifts {
		metrics.RecordError("upstream", "schema_drift")
		c.logger.Warn().Err(d).Str("endpoint", endpoint).Msg("skipping drifted record")
	}
}
