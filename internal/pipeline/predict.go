package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/metrics"
	"github.com/fortuna/courtcast/internal/ml"
	"github.com/fortuna/courtcast/internal/store"
)

type projection struct {
	team     *store.Team
	forecast ml.Forecast
	rank     int
}

// assignConferenceRanks ranks teams within each conference by projected
// wins, most first. Equal wins go to the lower nba_id.
func assignConferenceRanks(ps []*projection) {
	byConf := make(map[string][]*projection)
	for _, p := range ps {
		byConf[p.team.Conference] = append(byConf[p.team.Conference], p)
	}
	for _, group := range byConf {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].forecast.Wins != group[j].forecast.Wins {
				return group[i].forecast.Wins > group[j].forecast.Wins
			}
			return group[i].team.NBAID < group[j].team.NBAID
		})
		for i, p := range group {
			p.rank = i + 1
		}
	}
}

func (p *Pipeline) day(date time.Time) time.Time {
	if date.IsZero() {
		date = p.cfg.Now()
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (p *Pipeline) activeModel(ctx context.Context) (*store.ModelMetadata, error) {
	md, err := p.stores.Models.Active(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Mark(errors.New("no model is active"), apperr.ErrNoActiveModel)
		}
		return nil, err
	}
	return md, nil
}

// GeneratePredictions projects every team's season with the active model
// and stores one snapshot per team for the date. A zero date means today.
// Teams without enough games are skipped.
func (p *Pipeline) GeneratePredictions(ctx context.Context, season string, date time.Time) ([]*store.TeamPrediction, error) {
	md, err := p.activeModel(ctx)
	if err != nil {
		return nil, err
	}
	if md.ModelType == ModelTypeSimple {
		return p.simplePredictions(ctx, season, p.day(date), md.ModelVersion)
	}

	lm, err := p.load(ctx, md.ModelVersion)
	if err != nil {
		return nil, err
	}
	teams, err := p.stores.Teams.GetAll(ctx)
	if err != nil {
		return nil, err
	}

	var ps []*projection
	for _, team := range teams {
		seq, err := p.history.InferenceSequence(ctx, team.ID, season)
		if err != nil {
			if apperr.Classify(err) == apperr.Abort {
				return nil, err
			}
			p.logger.Warn().Err(err).Str("team", team.Abbreviation).Str("season", season).Msg("no sequence, skipping team")
			continue
		}
		out := lm.model.Predict(lm.pre.TransformSequence(seq))
		raw, err := lm.pre.InverseTransformTargets([][]float64{out})
		if err != nil {
			return nil, err
		}
		ps = append(ps, &projection{team: team, forecast: ml.Clip(ml.ForecastFromTargets(raw[0]))})
	}
	assignConferenceRanks(ps)

	return p.save(ctx, season, p.day(date), md, ps)
}

func (p *Pipeline) save(ctx context.Context, season string, day time.Time, md *store.ModelMetadata, ps []*projection) ([]*store.TeamPrediction, error) {
	out := make([]*store.TeamPrediction, 0, len(ps))
	for _, pr := range ps {
		f := pr.forecast
		row := &store.TeamPrediction{
			Season:                   season,
			TeamID:                   pr.team.ID,
			PredictionDate:           day,
			ModelVersion:             md.ModelVersion,
			PredictedWins:            f.Wins,
			PredictedLosses:          f.Losses,
			PredictedWinPct:          f.WinPct,
			PredictedConferenceRank:  pr.rank,
			PlayoffProbability:       f.PlayoffProbability,
			PredictedPPG:             store.Ptr(f.PPG),
			PredictedOPPG:            store.Ptr(f.OPPG),
			PredictedPace:            store.Ptr(f.Pace),
			PredictedDefensiveRating: store.Ptr(f.DefRating),
		}
		if mae := md.MAEWins; mae != nil {
			row.WinsLowerBound = store.Ptr(ml.ClampWins(f.Wins - *mae))
			row.WinsUpperBound = store.Ptr(ml.ClampWins(f.Wins + *mae))
		}
		if _, err := p.stores.Predictions.Upsert(ctx, row); err != nil {
			if apperr.Classify(err) == apperr.Abort {
				return out, err
			}
			p.logger.Warn().Err(err).Str("team", pr.team.Abbreviation).Msg("skipping prediction")
			continue
		}
		out = append(out, row)
	}

	metrics.RecordPredictions(md.ModelType, len(out))
	p.logger.Info().
		Str("season", season).
		Str("model_version", md.ModelVersion).
		Int("teams", len(out)).
		Msg("predictions generated")
	return out, nil
}
