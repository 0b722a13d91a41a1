// Package prediction serves stored forecasts to readers and refreshes them
// on demand.
package prediction

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/cache"
	"github.com/fortuna/courtcast/internal/logging"
	"github.com/fortuna/courtcast/internal/publisher"
	"github.com/fortuna/courtcast/internal/store"
)

// DefaultHistoryLimit caps PredictionHistory when no limit is given.
const DefaultHistoryLimit = 10

// Generator produces a fresh set of predictions.
type Generator interface {
	GeneratePredictions(ctx context.Context, season string, date time.Time) ([]*store.TeamPrediction, error)
}

// TeamStore reads teams.
type TeamStore interface {
	GetAll(ctx context.Context) ([]*store.Team, error)
	GetByID(ctx context.Context, id int) (*store.Team, error)
}

// PredictionStore reads prediction snapshots.
type PredictionStore interface {
	LatestDate(ctx context.Context, season string) (time.Time, bool, error)
	ListByDate(ctx context.Context, season string, date time.Time) ([]*store.TeamPrediction, error)
	LatestForTeam(ctx context.Context, teamID int, season string) (*store.TeamPrediction, error)
	History(ctx context.Context, teamID int, season string, limit int) ([]*store.TeamPrediction, error)
}

// StandingsStore reads current standings.
type StandingsStore interface {
	ListBySeason(ctx context.Context, season string) ([]*store.StandingView, error)
}

// ModelStore reads the active model.
type ModelStore interface {
	Active(ctx context.Context) (*store.ModelMetadata, error)
}

// Stores groups the repositories the service reads.
type Stores struct {
	Teams       TeamStore
	Predictions PredictionStore
	Standings   StandingsStore
	Models      ModelStore
}

// TeamPrediction is a stored prediction joined with its team.
type TeamPrediction struct {
	*store.TeamPrediction
	Abbreviation string `json:"abbreviation"`
	TeamName     string `json:"team_name"`
	Conference   string `json:"conference"`
}

// Predictions is the latest league-wide snapshot of a season.
type Predictions struct {
	Season         string            `json:"season"`
	PredictionDate time.Time         `json:"prediction_date"`
	ModelVersion   string            `json:"model_version"`
	MAEWins        *float64          `json:"mae_wins,omitempty"`
	East           []*TeamPrediction `json:"east"`
	West           []*TeamPrediction `json:"west"`
}

// Comparison sets a team's latest prediction against its current record.
type Comparison struct {
	TeamID        int     `json:"team_id"`
	Abbreviation  string  `json:"abbreviation"`
	TeamName      string  `json:"team_name"`
	Conference    string  `json:"conference"`
	PredictedWins float64 `json:"predicted_wins"`
	ActualWins    int     `json:"actual_wins"`
	ActualLosses  int     `json:"actual_losses"`
	WinsDiff      float64 `json:"wins_diff"`
	PredictedRank int     `json:"predicted_rank"`
	ActualRank    *int    `json:"actual_rank,omitempty"`
	RankDiff      *int    `json:"rank_diff,omitempty"`
}

// Refresh reports a GenerateFreshPredictions run.
type Refresh struct {
	Season         string    `json:"season"`
	Count          int       `json:"count"`
	ModelVersion   string    `json:"model_version"`
	PredictionDate time.Time `json:"prediction_date"`
	Invalidated    int       `json:"invalidated_keys"`
}

// Service is the prediction read service.
type Service struct {
	stores    Stores
	generator Generator
	cache     cache.Cache
	publisher publisher.Publisher
	season    string
	logger    zerolog.Logger
}

// NewService creates the service. defaultSeason is used when a caller
// passes an empty season. A nil publisher discards events.
func NewService(stores Stores, gen Generator, c cache.Cache, pub publisher.Publisher, defaultSeason string) *Service {
	if pub == nil {
		pub = publisher.Nop{}
	}
	return &Service{
		stores:    stores,
		generator: gen,
		cache:     c,
		publisher: pub,
		season:    defaultSeason,
		logger:    logging.Component("prediction"),
	}
}

// Season resolves an optional season.
func (s *Service) Season(season string) string {
	if season == "" {
		return s.season
	}
	return season
}

// AllPredictions returns the latest snapshot of a season split by
// conference, each side in predicted rank order.
func (s *Service) AllPredictions(ctx context.Context, season string) (*Predictions, error) {
	season = s.Season(season)
	key := cache.AllPredictionsKey(season)

	var cached Predictions
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	date, ok, err := s.stores.Predictions.LatestDate(ctx, season)
	if err != nil {
		return nil, errors.Wrapf(err, "latest prediction date for %s", season)
	}
	if !ok {
		return nil, errors.Wrapf(store.ErrNotFound, "no predictions for %s", season)
	}
	rows, err := s.stores.Predictions.ListByDate(ctx, season, date)
	if err != nil {
		return nil, errors.Wrapf(err, "listing predictions for %s", season)
	}
	teams, err := s.teamIndex(ctx)
	if err != nil {
		return nil, err
	}

	out := &Predictions{Season: season, PredictionDate: date, East: []*TeamPrediction{}, West: []*TeamPrediction{}}
	for _, row := range rows {
		tp := join(row, teams[row.TeamID])
		if tp.Conference == store.ConferenceWest {
			out.West = append(out.West, tp)
		} else {
			out.East = append(out.East, tp)
		}
		out.ModelVersion = row.ModelVersion
	}

	if md, err := s.activeModel(ctx); err == nil && md.ModelVersion == out.ModelVersion {
		out.MAEWins = md.MAEWins
	}

	s.cache.Set(ctx, key, out, cache.TTLPredictions)
	return out, nil
}

// TeamPrediction returns a team's latest prediction for a season.
func (s *Service) TeamPrediction(ctx context.Context, teamID int, season string) (*TeamPrediction, error) {
	season = s.Season(season)
	key := cache.TeamPredictionKey(season, teamID)

	var cached TeamPrediction
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	team, err := s.stores.Teams.GetByID(ctx, teamID)
	if err != nil {
		return nil, errors.Wrapf(err, "team %d", teamID)
	}
	row, err := s.stores.Predictions.LatestForTeam(ctx, teamID, season)
	if err != nil {
		return nil, errors.Wrapf(err, "prediction for team %d", teamID)
	}

	out := join(row, team)
	s.cache.Set(ctx, key, out, cache.TTLPredictions)
	return out, nil
}

// PredictionHistory returns a team's snapshots for a season, newest first.
func (s *Service) PredictionHistory(ctx context.Context, teamID int, season string, limit int) ([]*store.TeamPrediction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.stores.Predictions.History(ctx, teamID, s.Season(season), limit)
	if err != nil {
		return nil, errors.Wrapf(err, "prediction history for team %d", teamID)
	}
	if rows == nil {
		rows = []*store.TeamPrediction{}
	}
	return rows, nil
}

// PredictionsVsActual joins the latest predictions with the standings.
// Teams without a standing are left out.
func (s *Service) PredictionsVsActual(ctx context.Context, season string) ([]*Comparison, error) {
	season = s.Season(season)
	preds, err := s.AllPredictions(ctx, season)
	if err != nil {
		return nil, err
	}
	standings, err := s.stores.Standings.ListBySeason(ctx, season)
	if err != nil {
		return nil, errors.Wrapf(err, "standings for %s", season)
	}
	byTeam := make(map[int]*store.StandingView, len(standings))
	for _, st := range standings {
		byTeam[st.TeamID] = st
	}

	out := []*Comparison{}
	for _, side := range [][]*TeamPrediction{preds.East, preds.West} {
		for _, p := range side {
			st, ok := byTeam[p.TeamID]
			if !ok {
				continue
			}
			c := &Comparison{
				TeamID:        p.TeamID,
				Abbreviation:  p.Abbreviation,
				TeamName:      p.TeamName,
				Conference:    p.Conference,
				PredictedWins: p.PredictedWins,
				ActualWins:    st.Wins,
				ActualLosses:  st.Losses,
				WinsDiff:      p.PredictedWins - float64(st.Wins),
				PredictedRank: p.PredictedConferenceRank,
				ActualRank:    st.ConferenceRank,
			}
			if st.ConferenceRank != nil {
				c.RankDiff = store.Ptr(p.PredictedConferenceRank - *st.ConferenceRank)
			}
			out = append(out, c)
		}
	}
	return out, nil
}

// GenerateFreshPredictions runs the prediction step for today, drops the
// season's cached predictions and announces the refresh.
func (s *Service) GenerateFreshPredictions(ctx context.Context, season string) (*Refresh, error) {
	season = s.Season(season)
	rows, err := s.generator.GeneratePredictions(ctx, season, time.Time{})
	if err != nil {
		return nil, err
	}

	res := &Refresh{Season: season, Count: len(rows)}
	if len(rows) > 0 {
		res.ModelVersion = rows[0].ModelVersion
		res.PredictionDate = rows[0].PredictionDate
	}
	res.Invalidated = s.InvalidateCache(ctx, season)

	ev := publisher.Event{
		Type: publisher.EventPredictionsRefreshed,
		Payload: publisher.PredictionsRefreshed{
			Season:       season,
			Count:        res.Count,
			ModelVersion: res.ModelVersion,
		},
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn().Err(err).Str("season", season).Msg("refresh event not published")
	}

	s.logger.Info().
		Str("season", season).
		Int("count", res.Count).
		Str("model_version", res.ModelVersion).
		Msg("predictions refreshed")
	return res, nil
}

// ModelInfo returns the active model's metadata.
func (s *Service) ModelInfo(ctx context.Context) (*store.ModelMetadata, error) {
	key := cache.ActiveModelKey()
	var cached store.ModelMetadata
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	md, err := s.activeModel(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, key, md, cache.TTLModel)
	return md, nil
}

// InvalidateCache drops every cached prediction of a season and returns
// how many keys went.
func (s *Service) InvalidateCache(ctx context.Context, season string) int {
	n := s.cache.DeletePattern(ctx, cache.PredictionsPattern(s.Season(season)))
	s.logger.Debug().Str("season", season).Int("keys", n).Msg("prediction cache invalidated")
	return n
}

func (s *Service) activeModel(ctx context.Context) (*store.ModelMetadata, error) {
	md, err := s.stores.Models.Active(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Mark(errors.New("no model is active"), apperr.ErrNoActiveModel)
		}
		return nil, err
	}
	return md, nil
}

func (s *Service) teamIndex(ctx context.Context) (map[int]*store.Team, error) {
	teams, err := s.stores.Teams.GetAll(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing teams")
	}
	idx := make(map[int]*store.Team, len(teams))
	for _, t := range teams {
		idx[t.ID] = t
	}
	return idx, nil
}

func join(row *store.TeamPrediction, team *store.Team) *TeamPrediction {
	tp := &TeamPrediction{TeamPrediction: row}
	if team != nil {
		tp.Abbreviation = team.Abbreviation
		tp.TeamName = team.Name
		tp.Conference = team.Conference
	}
	return tp
}
