// Package history ingests season-level team history and turns it into
// fixed-shape training and inference sequences.
package history

import (
	"context"
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/logging"
	"github.com/fortuna/courtcast/internal/store"
	"github.com/fortuna/courtcast/internal/upstream"
)

// TeamStore resolves teams.
type TeamStore interface {
	GetAll(ctx context.Context) ([]*store.Team, error)
	GetByNBAID(ctx context.Context, nbaID int) (*store.Team, error)
}

// SeasonStatsStore reads and writes team season aggregates.
type SeasonStatsStore interface {
	Upsert(ctx context.Context, s *store.TeamSeasonStats) (int, error)
	Get(ctx context.Context, teamID int, season string) (*store.TeamSeasonStats, error)
}

// GameLogStore reads and writes per-team game logs.
type GameLogStore interface {
	Upsert(ctx context.Context, l *store.TeamGameLog) (int, error)
	ListForTeamSeason(ctx context.Context, teamID int, season string) ([]*store.TeamGameLog, error)
}

// Stores groups the repositories the aggregator uses.
type Stores struct {
	Teams       TeamStore
	SeasonStats SeasonStatsStore
	GameLogs    GameLogStore
}

// Config selects the seasons and sequence shape.
type Config struct {
	TrainingSeasons []string
	Sequence        SequenceConfig
}

// Aggregator is the historical aggregator.
type Aggregator struct {
	provider upstream.Provider
	stores   Stores
	cfg      Config
	logger   zerolog.Logger
}

// NewAggregator creates an aggregator.
func NewAggregator(provider upstream.Provider, stores Stores, cfg Config) *Aggregator {
	if cfg.Sequence.SequenceLength <= 0 || cfg.Sequence.StepSize <= 0 {
		cfg.Sequence = DefaultSequenceConfig
	}
	return &Aggregator{
		provider: provider,
		stores:   stores,
		cfg:      cfg,
		logger:   logging.Component("history"),
	}
}

// Sequence returns the configured sequence shape.
func (a *Aggregator) Sequence() SequenceConfig {
	return a.cfg.Sequence
}

// Seasons returns the configured training seasons.
func (a *Aggregator) Seasons() []string {
	return a.cfg.TrainingSeasons
}

// SeasonCounts is what IngestAllHistoricalData did for one season.
type SeasonCounts struct {
	TeamStats    int `json:"team_stats"`
	GameLogs     int `json:"game_logs"`
	SkippedTeams int `json:"skipped_teams"`
}

// IngestTeamSeasonStats stores the league team-stats feed for a season,
// joined with that season's standings for record and seeding.
func (a *Aggregator) IngestTeamSeasonStats(ctx context.Context, season string) (int, error) {
	rows, err := a.provider.TeamSeasonStats(ctx, season)
	if err != nil {
		return 0, errors.Wrapf(err, "fetching team stats for %s", season)
	}
	standings, err := a.provider.Standings(ctx, season)
	if err != nil {
		return 0, errors.Wrapf(err, "fetching standings for %s", season)
	}
	byTeam := make(map[int]upstream.StandingRecord, len(standings))
	for _, s := range standings {
		byTeam[s.TeamID] = s
	}

	count := 0
	for _, row := range rows {
		team, err := a.stores.Teams.GetByNBAID(ctx, row.TeamID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				a.logger.Warn().Int("team_nba_id", row.TeamID).Str("season", season).Msg("team not ingested, skipping stats")
				continue
			}
			return count, err
		}

		st := seasonStats(team.ID, season, row, byTeam[row.TeamID])
		if _, err := a.stores.SeasonStats.Upsert(ctx, st); err != nil {
			if apperr.Classify(err) == apperr.Abort {
				return count, err
			}
			a.logger.Warn().Err(err).Int("team_id", team.ID).Str("season", season).Msg("skipping team stats")
			continue
		}
		count++
	}

	a.logger.Info().Str("season", season).Int("teams", count).Msg("ingested team season stats")
	return count, nil
}

func seasonStats(teamID int, season string, row upstream.TeamStatsRecord, standing upstream.StandingRecord) *store.TeamSeasonStats {
	pace := orDefault(row.Pace, 100)
	off := orDefault(row.OffRating, 110)
	def := orDefault(row.DefRating, 110)
	oppg := orDefault(row.OppPTS, def)

	st := &store.TeamSeasonStats{
		TeamID:         teamID,
		Season:         season,
		GamesPlayed:    row.GP,
		Wins:           standing.Wins,
		Losses:         standing.Losses,
		WinPct:         standing.WinPct,
		PPG:            row.PTS,
		FGPct:          percent(row.FGPct),
		FG3Pct:         percent(row.FG3Pct),
		FTPct:          percent(row.FTPct),
		OREB:           row.OREB,
		AST:            row.AST,
		TOV:            row.TOV,
		OPPG:           &oppg,
		DREB:           row.DREB,
		STL:            row.STL,
		BLK:            row.BLK,
		Pace:           &pace,
		OffRating:      &off,
		DefRating:      &def,
		NetRating:      store.Ptr(off - def),
		ConferenceRank: standing.PlayoffRank,
		DivisionRank:   standing.DivisionRank,
	}
	if r := standing.PlayoffRank; r != nil && *r <= 10 {
		st.PlayoffSeed = store.Ptr(*r)
	}
	return st
}

func percent(v *float64) *float64 {
	if v == nil {
		return nil
	}
	return store.Ptr(*v * 100)
}

// IngestTeamGameLogs stores a team's game log for a season.
func (a *Aggregator) IngestTeamGameLogs(ctx context.Context, teamNBAID int, season string) (int, error) {
	team, err := a.stores.Teams.GetByNBAID(ctx, teamNBAID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return 0, apperr.MissingRef("team", teamNBAID)
		}
		return 0, err
	}

	recs, err := a.provider.TeamGameLog(ctx, teamNBAID, season)
	if err != nil {
		return 0, errors.Wrapf(err, "fetching game log for team %d in %s", teamNBAID, season)
	}

	count := 0
	for _, r := range recs {
		_, err := a.stores.GameLogs.Upsert(ctx, &store.TeamGameLog{
			TeamID:    team.ID,
			NBAGameID: r.GameID,
			Season:    season,
			GameDate:  r.GameDate,
			Matchup:   r.Matchup,
			WL:        r.WL,
			PTS:       r.PTS,
			FGPct:     r.FGPct,
			FG3Pct:    r.FG3Pct,
			FTPct:     r.FTPct,
			OREB:      r.OREB,
			DREB:      r.DREB,
			REB:       r.REB,
			AST:       r.AST,
			STL:       r.STL,
			BLK:       r.BLK,
			TOV:       r.TOV,
			PlusMinus: r.PlusMinus,
		})
		if err != nil {
			if apperr.Classify(err) == apperr.Abort {
				return count, err
			}
			a.logger.Warn().Err(err).Str("game_id", r.GameID).Msg("skipping game log")
			continue
		}
		count++
	}
	return count, nil
}

// IngestAllHistoricalData ingests team stats and every team's game logs
// for each training season. A failing team or season is skipped; a lost
// store connection aborts.
func (a *Aggregator) IngestAllHistoricalData(ctx context.Context) (map[string]SeasonCounts, error) {
	out := make(map[string]SeasonCounts, len(a.cfg.TrainingSeasons))

	teams, err := a.stores.Teams.GetAll(ctx)
	if err != nil {
		return out, err
	}

	for _, season := range a.cfg.TrainingSeasons {
		var counts SeasonCounts

		n, err := a.IngestTeamSeasonStats(ctx, season)
		if err != nil {
			if apperr.Classify(err) == apperr.Abort {
				return out, err
			}
			a.logger.Error().Err(err).Str("season", season).Msg("team season stats failed")
		}
		counts.TeamStats = n

		for _, t := range teams {
			n, err := a.IngestTeamGameLogs(ctx, t.NBAID, season)
			counts.GameLogs += n
			if err != nil {
				if apperr.Classify(err) == apperr.Abort {
					return out, err
				}
				counts.SkippedTeams++
				a.logger.Warn().Err(err).Str("team", t.Abbreviation).Str("season", season).Msg("game logs failed")
			}
		}

		out[season] = counts
		a.logger.Info().
			Str("season", season).
			Int("team_stats", counts.TeamStats).
			Int("game_logs", counts.GameLogs).
			Int("skipped_teams", counts.SkippedTeams).
			Msg("historical season ingested")
	}
	return out, nil
}

// Sample identifies one training row.
type Sample struct {
	TeamID int    `json:"team_id"`
	Season string `json:"season"`
}

// Dataset is the assembled training data: X is samples x SequenceLength x
// NumFeatures, Y is samples x NumTargets.
type Dataset struct {
	X       [][][]float64
	Y       [][]float64
	Samples []Sample
}

// Len returns the number of samples.
func (d *Dataset) Len() int {
	return len(d.X)
}

// TrainingData builds one sample per (team, season) over the training
// seasons. Pairs without a full sequence or without season stats are
// skipped.
func (a *Aggregator) TrainingData(ctx context.Context) (*Dataset, error) {
	teams, err := a.stores.Teams.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{}
	skipped := 0
	for _, season := range a.cfg.TrainingSeasons {
		for _, t := range teams {
			logs, err := a.stores.GameLogs.ListForTeamSeason(ctx, t.ID, season)
			if err != nil {
				return nil, err
			}
			seq, ok := BuildSequence(logs, a.cfg.Sequence)
			if !ok {
				skipped++
				continue
			}
			stats, err := a.stores.SeasonStats.Get(ctx, t.ID, season)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					skipped++
					continue
				}
				return nil, err
			}
			ds.X = append(ds.X, seq)
			ds.Y = append(ds.Y, Targets(stats))
			ds.Samples = append(ds.Samples, Sample{TeamID: t.ID, Season: season})
		}
	}

	if ds.Len() == 0 {
		return nil, apperr.Mark(
			fmt.Errorf("no buildable team seasons in %v", a.cfg.TrainingSeasons),
			apperr.ErrInsufficientTrainingData,
		)
	}
	a.logger.Info().Int("samples", ds.Len()).Int("skipped", skipped).Msg("assembled training data")
	return ds, nil
}

// InferenceSequence builds a sequence from a partial season. The window
// size shrinks to fit the games played so far, aligned from the season
// start like the training windows.
func (a *Aggregator) InferenceSequence(ctx context.Context, teamID int, season string) ([][]float64, error) {
	logs, err := a.stores.GameLogs.ListForTeamSeason(ctx, teamID, season)
	if err != nil {
		return nil, err
	}

	cfg := a.cfg.Sequence
	step := min(cfg.StepSize, len(logs)/cfg.SequenceLength)
	if step < 1 {
		return nil, apperr.Mark(
			fmt.Errorf("team %d has %d games in %s, need %d", teamID, len(logs), season, cfg.SequenceLength),
			apperr.ErrInsufficientTrainingData,
		)
	}

	seq, _ := BuildSequence(logs, SequenceConfig{SequenceLength: cfg.SequenceLength, StepSize: step})
	return seq, nil
}

// GamesPlayed counts the stored game logs of a team in a season.
func (a *Aggregator) GamesPlayed(ctx context.Context, teamID int, season string) (int, error) {
	logs, err := a.stores.GameLogs.ListForTeamSeason(ctx, teamID, season)
	if err != nil {
		return 0, err
	}
	return len(logs), nil
}
