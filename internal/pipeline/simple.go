package pipeline

import (
	"context"
	"math"
	"time"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/ml"
	"github.com/fortuna/courtcast/internal/store"
)

var seasonWeights = []float64{0.4, 0.3, 0.2, 0.1}

// GenerateSimplePredictions projects each team from a weighted average of
// its previous seasons, registers the projection as the active model and
// stores the snapshots. It needs no trained model.
func (p *Pipeline) GenerateSimplePredictions(ctx context.Context, season string, date time.Time) ([]*store.TeamPrediction, error) {
	now := p.cfg.Now()
	md := &store.ModelMetadata{
		ModelVersion:    "simple_v" + now.Format("20060102_1504"),
		ModelType:       ModelTypeSimple,
		TrainedAt:       now,
		TrainingSeasons: p.history.Seasons(),
		EpochsTrained:   store.Ptr(0),
		BatchSize:       store.Ptr(0),
		SequenceLength:  store.Ptr(0),
		HiddenUnits:     []int{},
		DropoutRate:     store.Ptr(0.0),
		LearningRate:    store.Ptr(0.0),
		TrainingLoss:    store.Ptr(0.0),
		ValidationLoss:  store.Ptr(0.0),
	}
	if err := p.stores.Models.Activate(ctx, md); err != nil {
		return nil, err
	}
	p.invalidateActive(ctx)
	return p.simplePredictions(ctx, season, p.day(date), md.ModelVersion)
}

func (p *Pipeline) simplePredictions(ctx context.Context, season string, day time.Time, version string) ([]*store.TeamPrediction, error) {
	teams, err := p.stores.Teams.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	var ps []*projection
	for _, team := range teams {
		all, err := p.stores.SeasonStats.ListForTeam(ctx, team.ID)
		if err != nil {
			if apperr.Classify(err) == apperr.Abort {
				return nil, err
			}
			p.logger.Warn().Err(err).Str("team", team.Abbreviation).Msg("skipping team")
			continue
		}

		var prior []*store.TeamSeasonStats
		var current *store.TeamSeasonStats
		for _, s := range all {
			switch {
			case s.Season == season:
				current = s
			case s.Season < season && len(prior) < len(seasonWeights):
				prior = append(prior, s)
			}
		}
		if len(prior) == 0 {
			p.logger.Warn().Str("team", team.Abbreviation).Str("season", season).Msg("no prior seasons, skipping team")
			continue
		}
		ps = append(ps, &projection{team: team, forecast: simpleProjection(prior, current)})
	}
	assignConferenceRanks(ps)

	return p.save(ctx, season, day, &store.ModelMetadata{ModelVersion: version, ModelType: ModelTypeSimple}, ps)
}

// simpleProjection weights up to four prior seasons, newest first, 0.4,
// 0.3, 0.2 and 0.1 (renormalized when fewer exist). With more than ten
// games played this season the win total is blended 60/40 with the
// current pace over 82 games.
func simpleProjection(prior []*store.TeamSeasonStats, current *store.TeamSeasonStats) ml.Forecast {
	weights := seasonWeights[:len(prior)]
	var total float64
	for _, w := range weights {
		total += w
	}
	avg := func(get func(*store.TeamSeasonStats) float64) float64 {
		var v float64
		for i, s := range prior {
			v += weights[i] / total * get(s)
		}
		return v
	}
	value := func(f func(*store.TeamSeasonStats) *float64) func(*store.TeamSeasonStats) float64 {
		return func(s *store.TeamSeasonStats) float64 {
			if v := f(s); v != nil {
				return *v
			}
			return 0
		}
	}

	wins := avg(func(s *store.TeamSeasonStats) float64 { return float64(s.Wins) })
	if current != nil && current.GamesPlayed > 10 {
		pace := float64(current.Wins) / float64(current.GamesPlayed) * 82
		wins = 0.6*pace + 0.4*wins
	}

	ppg := avg(value(func(s *store.TeamSeasonStats) *float64 { return s.PPG }))
	def := avg(value(func(s *store.TeamSeasonStats) *float64 { return s.DefRating }))
	oppg := avg(value(func(s *store.TeamSeasonStats) *float64 { return s.OPPG }))
	if oppg == 0 {
		oppg = def
	}
	pace := avg(value(func(s *store.TeamSeasonStats) *float64 { return s.Pace }))

	return ml.Forecast{
		Wins:               round(wins, 1),
		Losses:             round(82-wins, 1),
		WinPct:             round(wins/82, 3),
		PlayoffProbability: playoffProbability(wins),
		PPG:                orDefault(round(ppg, 1), 110),
		OPPG:               orDefault(round(oppg, 1), 110),
		Pace:               orDefault(round(pace, 1), 100),
		DefRating:          orDefault(round(def, 1), 110),
	}
}

func playoffProbability(wins float64) float64 {
	switch {
	case wins >= 50:
		return 0.95
	case wins >= 45:
		return 0.85
	case wins >= 42:
		return 0.70
	case wins >= 38:
		return 0.45
	case wins >= 35:
		return 0.25
	default:
		return 0.10
	}
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}
