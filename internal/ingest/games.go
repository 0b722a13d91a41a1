package ingest

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/cache"
	"github.com/fortuna/courtcast/internal/publisher"
	"github.com/fortuna/courtcast/internal/store"
	"github.com/fortuna/courtcast/internal/upstream"
)

// statusFor maps the live scoreboard status code.
func statusFor(code int) string {
	switch code {
	case 2:
		return store.GameStatusLive
	case 3:
		return store.GameStatusFinal
	default:
		return store.GameStatusScheduled
	}
}

// IngestTodayGames upserts the live scoreboard, caches today's slate and
// each live game, and publishes live-game events.
func (s *Service) IngestTodayGames(ctx context.Context) (Result, error) {
	return s.logged(ctx, TypeTodayGames, func(ctx context.Context, res *Result) error {
		sb, err := s.provider.Scoreboard(ctx)
		if err != nil {
			return errors.Wrap(err, "fetching scoreboard")
		}

		day := sb.GameDate
		if day.IsZero() {
			day = s.today()
		}
		season := SeasonFor(day)

		games := make([]*store.Game, 0, len(sb.Games))
		for _, sg := range sb.Games {
			game, err := s.upsertScoreboardGame(ctx, day, season, sg)
			if abort := res.record("game:"+sg.GameID, err); abort != nil {
				return abort
			}
			if err != nil {
				continue
			}
			games = append(games, game)

			switch game.Status {
			case store.GameStatusLive:
				s.cache.Set(ctx, cache.LiveKey(game.NBAGameID), game, cache.TTLLive)
				s.publish(ctx, publisher.Event{Type: publisher.EventGamesLive, Payload: game})
			case store.GameStatusFinal:
				s.cache.Set(ctx, cache.GameKey(game.NBAGameID), game, cache.TTLGameFinal)
			}
		}

		s.cache.Set(ctx, cache.TodayKey(), games, cache.TTLTodayGames)
		return nil
	})
}

func (s *Service) upsertScoreboardGame(ctx context.Context, day time.Time, season string, sg upstream.ScoreboardGame) (*store.Game, error) {
	homeID, err := s.teamID(ctx, sg.HomeTeamID)
	if err != nil {
		return nil, err
	}
	awayID, err := s.teamID(ctx, sg.AwayTeamID)
	if err != nil {
		return nil, err
	}

	g := &store.Game{
		NBAGameID:    sg.GameID,
		Season:       season,
		GameDate:     day,
		HomeTeamID:   homeID,
		AwayTeamID:   awayID,
		HomeQuarters: sg.HomeQuarters,
		AwayQuarters: sg.AwayQuarters,
		Status:       statusFor(sg.StatusCode),
		Period:       sg.Period,
	}
	if g.Status != store.GameStatusScheduled {
		g.HomeScore = store.Ptr(sg.HomeScore)
		g.AwayScore = store.Ptr(sg.AwayScore)
	}
	if sg.Clock != "" {
		g.GameClock = store.Ptr(sg.Clock)
	}
	if _, err := s.stores.Games.Upsert(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

// IngestBoxScore upserts one game's player lines. The game must already
// be stored; unseen players are created on the fly.
func (s *Service) IngestBoxScore(ctx context.Context, gameNBAID string) (Result, error) {
	return s.logged(ctx, TypeBoxScore, func(ctx context.Context, res *Result) error {
		return s.ingestBoxScore(ctx, gameNBAID, res)
	})
}

func (s *Service) ingestBoxScore(ctx context.Context, gameNBAID string, res *Result) error {
	game, err := s.stores.Games.GetByNBAID(ctx, gameNBAID)
	if err != nil {
		if isNotFound(err) {
			return apperr.MissingRef("game", gameNBAID)
		}
		return err
	}

	lines, err := s.provider.BoxScore(ctx, gameNBAID)
	if err != nil {
		return err
	}

	var keys []string
	for _, line := range lines {
		playerID, err := s.upsertLine(ctx, game, line)
		if err == nil {
			keys = append(keys, cache.PlayerStatsKey(playerID, game.Season))
		}
		key := "stats:" + gameNBAID + ":" + strconv.Itoa(line.PlayerID)
		if abort := res.record(key, err); abort != nil {
			return abort
		}
	}
	s.cache.Delete(ctx, keys...)
	return nil
}

func (s *Service) upsertLine(ctx context.Context, game *store.Game, line upstream.BoxScoreLine) (int, error) {
	teamID, err := s.teamID(ctx, line.TeamID)
	if err != nil {
		return 0, err
	}
	playerID, err := s.playerID(ctx, line, teamID)
	if err != nil {
		return 0, err
	}
	_, err = s.stores.Stats.Upsert(ctx, &store.PlayerGameStats{
		PlayerID:  playerID,
		GameID:    game.ID,
		TeamID:    teamID,
		Minutes:   line.Minutes,
		Points:    line.Points,
		FGM:       line.FGM,
		FGA:       line.FGA,
		FG3M:      line.FG3M,
		FG3A:      line.FG3A,
		FTM:       line.FTM,
		FTA:       line.FTA,
		OREB:      line.OREB,
		DREB:      line.DREB,
		REB:       line.REB,
		AST:       line.AST,
		STL:       line.STL,
		BLK:       line.BLK,
		TOV:       line.TOV,
		PF:        line.PF,
		PlusMinus: line.PlusMinus,
	})
	return playerID, err
}

// IngestRecentGames upserts the games of the last days and fetches box
// scores for the final ones, at most BoxScoreCap per run.
func (s *Service) IngestRecentGames(ctx context.Context, days int, season string) (Result, error) {
	return s.logged(ctx, TypeRecentGames, func(ctx context.Context, res *Result) error {
		to := s.today()
		from := to.AddDate(0, 0, -days)
		rows, err := s.provider.FindGames(ctx, from, to, season)
		if err != nil {
			return errors.Wrap(err, "finding recent games")
		}
		return s.ingestFound(ctx, rows, season, finalByPoints, s.opts.BoxScoreCap, res)
	})
}

// IngestAllSeasonGames upserts every game of a season and fetches the box
// score of every final one.
func (s *Service) IngestAllSeasonGames(ctx context.Context, season string) (Result, error) {
	return s.logged(ctx, TypeSeasonGames, func(ctx context.Context, res *Result) error {
		from, to, err := seasonWindow(season)
		if err != nil {
			return err
		}
		rows, err := s.provider.FindGames(ctx, from, to, season)
		if err != nil {
			return errors.Wrapf(err, "finding games for %s", season)
		}
		return s.ingestFound(ctx, rows, season, finalByResult, 0, res)
	})
}

// finalRule decides whether a paired game is over.
type finalRule func(home, away *upstream.GameFinderRow) bool

// finalByPoints treats a game with any points on the board as final.
func finalByPoints(home, away *upstream.GameFinderRow) bool {
	return pts(home) > 0 || pts(away) > 0
}

// finalByResult treats a game with a W/L result as final.
func finalByResult(home, away *upstream.GameFinderRow) bool {
	return home.WL != nil || away.WL != nil
}

func pts(r *upstream.GameFinderRow) int {
	if r.PTS == nil {
		return 0
	}
	return *r.PTS
}

// pairedGame joins the home and away rows of one game.
type pairedGame struct {
	id   string
	date time.Time
	home *upstream.GameFinderRow
	away *upstream.GameFinderRow
}

// pairGames merges the two per-team finder rows of each game, keeping the
// upstream order. " vs. " marks the home side and " @ " the away side.
func pairGames(rows []upstream.GameFinderRow) ([]pairedGame, []error) {
	index := map[string]int{}
	var games []pairedGame
	for i := range rows {
		r := &rows[i]
		n, ok := index[r.GameID]
		if !ok {
			n = len(games)
			index[r.GameID] = n
			games = append(games, pairedGame{id: r.GameID, date: r.GameDate})
		}
		switch {
		case strings.Contains(r.Matchup, " vs. "):
			games[n].home = r
		case strings.Contains(r.Matchup, " @ "):
			games[n].away = r
		}
	}

	out := games[:0]
	var drifts []error
	for _, g := range games {
		if g.home == nil || g.away == nil {
			drifts = append(drifts, apperr.SchemaDrift("game "+g.id, "MATCHUP"))
			continue
		}
		out = append(out, g)
	}
	return out, drifts
}

func (s *Service) ingestFound(ctx context.Context, rows []upstream.GameFinderRow, season string, isFinal finalRule, boxCap int, res *Result) error {
	games, drifts := pairGames(rows)
	for _, d := range drifts {
		res.record("game", d)
	}

	var finals []string
	for _, pg := range games {
		final, err := s.upsertFoundGame(ctx, season, pg, isFinal)
		if abort := res.record("game:"+pg.id, err); abort != nil {
			return abort
		}
		if err == nil && final {
			finals = append(finals, pg.id)
		}
	}

	if boxCap > 0 && len(finals) > boxCap {
		s.logger.Info().Int("final_games", len(finals)).Int("cap", boxCap).Msg("capping box score fetches")
		finals = finals[:boxCap]
	}

	for _, id := range finals {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.ingestBoxScore(ctx, id, res)
		switch {
		case err == nil:
		case apperr.Classify(err) == apperr.Abort:
			return err
		default:
			res.record("boxscore:"+id, err)
		}
	}
	return nil
}

func (s *Service) upsertFoundGame(ctx context.Context, season string, pg pairedGame, isFinal finalRule) (bool, error) {
	homeID, err := s.teamID(ctx, pg.home.TeamID)
	if err != nil {
		return false, err
	}
	awayID, err := s.teamID(ctx, pg.away.TeamID)
	if err != nil {
		return false, err
	}

	final := isFinal(pg.home, pg.away)
	g := &store.Game{
		NBAGameID:  pg.id,
		Season:     season,
		GameDate:   pg.date,
		HomeTeamID: homeID,
		AwayTeamID: awayID,
		Status:     store.GameStatusScheduled,
	}
	if final {
		g.Status = store.GameStatusFinal
		g.HomeScore = store.Ptr(pts(pg.home))
		g.AwayScore = store.Ptr(pts(pg.away))
	}
	_, err = s.stores.Games.Upsert(ctx, g)
	return final, err
}
