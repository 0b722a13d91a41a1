package ingest

import (
	"context"
	"time"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/store"
)

type step struct {
	name string
	run  func(ctx context.Context) (Result, error)
}

// RunIncrementalRefresh runs teams, standings, rosters, today's games and
// the last RecentDays of games, in that order.
func (s *Service) RunIncrementalRefresh(ctx context.Context, season string) (*RefreshReport, error) {
	return s.refresh(ctx, TypeIncrementalRefresh, season, []step{
		{"teams", s.IngestTeams},
		{"standings", func(ctx context.Context) (Result, error) { return s.IngestStandings(ctx, season) }},
		{"rosters", func(ctx context.Context) (Result, error) { return s.IngestAllRosters(ctx, season) }},
		{"today_games", s.IngestTodayGames},
		{"recent_games", func(ctx context.Context) (Result, error) {
			return s.IngestRecentGames(ctx, s.opts.RecentDays, season)
		}},
	})
}

// RunFullIngestion is RunIncrementalRefresh with the whole season in place
// of the recent window.
func (s *Service) RunFullIngestion(ctx context.Context, season string) (*RefreshReport, error) {
	return s.refresh(ctx, TypeFullIngestion, season, []step{
		{"teams", s.IngestTeams},
		{"standings", func(ctx context.Context) (Result, error) { return s.IngestStandings(ctx, season) }},
		{"rosters", func(ctx context.Context) (Result, error) { return s.IngestAllRosters(ctx, season) }},
		{"today_games", s.IngestTodayGames},
		{"season_games", func(ctx context.Context) (Result, error) { return s.IngestAllSeasonGames(ctx, season) }},
	})
}

// refresh runs the steps in order. A failed step is reported and the next
// one runs; only an abort-class error stops the sequence.
func (s *Service) refresh(ctx context.Context, kind, season string, steps []step) (*RefreshReport, error) {
	report := &RefreshReport{Type: kind, Season: season}
	start := time.Now()

	entry, err := s.stores.Logs.Start(ctx, kind)
	if err != nil {
		return report, err
	}

	var runErr error
	for _, st := range steps {
		res, err := st.run(ctx)
		sr := StepReport{Name: st.name, Result: res}
		if err != nil {
			sr.Error = err.Error()
		}
		report.Steps = append(report.Steps, sr)

		if err != nil && apperr.Classify(err) == apperr.Abort {
			runErr = err
			break
		}
	}
	report.Duration = time.Since(start)

	status := store.IngestionSuccess
	errMsg := report.summary()
	if runErr != nil {
		status = store.IngestionFailed
		msg := runErr.Error()
		errMsg = &msg
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.stores.Logs.Finish(finishCtx, entry.ID, status, report.Written(), errMsg); err != nil {
		s.logger.Error().Err(err).Int("log_id", entry.ID).Msg("failed to close ingestion log")
	}

	s.logger.Info().
		Str("type", kind).
		Str("season", season).
		Str("status", status).
		Int("written", report.Written()).
		Strs("failed_steps", report.FailedSteps()).
		Dur("duration", report.Duration).
		Msg("refresh finished")

	return report, runErr
}
