package ingest

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/cache"
	"github.com/fortuna/courtcast/internal/store"
	"github.com/fortuna/courtcast/internal/upstream"
)

var eastern = map[string]bool{
	"BOS": true, "BKN": true, "NYK": true, "PHI": true, "TOR": true,
	"CHI": true, "CLE": true, "DET": true, "IND": true, "MIL": true,
	"ATL": true, "CHA": true, "MIA": true, "ORL": true, "WAS": true,
}

// ConferenceFor derives the conference from a team abbreviation.
func ConferenceFor(abbr string) string {
	if eastern[abbr] {
		return store.ConferenceEast
	}
	return store.ConferenceWest
}

const logoURLFormat = "https://cdn.nba.com/logos/nba/%d/global/L/logo.svg"

// IngestTeams upserts the franchise directory.
func (s *Service) IngestTeams(ctx context.Context) (Result, error) {
	return s.logged(ctx, TypeTeams, func(ctx context.Context, res *Result) error {
		recs, err := s.provider.Teams(ctx)
		if err != nil {
			return errors.Wrap(err, "fetching teams")
		}

		var keys []string
		for _, rec := range recs {
			key := "team:" + strconv.Itoa(rec.NBAID)
			id, err := s.upsertTeam(ctx, rec)
			if err == nil {
				s.rememberTeam(rec.NBAID, id)
				keys = append(keys, cache.TeamKey(id))
			}
			if abort := res.record(key, err); abort != nil {
				return abort
			}
		}
		s.cache.Delete(ctx, keys...)
		return nil
	})
}

func (s *Service) upsertTeam(ctx context.Context, rec upstream.TeamRecord) (int, error) {
	if rec.NBAID == 0 || rec.Abbreviation == "" {
		return 0, apperr.SchemaDrift("team", "id/abbreviation")
	}
	conference := ConferenceFor(rec.Abbreviation)
	if rec.Conference != nil && *rec.Conference != "" {
		conference = *rec.Conference
	}
	name := rec.Nickname
	if rec.City != "" {
		name = rec.City + " " + rec.Nickname
	}
	t := &store.Team{
		NBAID:        rec.NBAID,
		Abbreviation: rec.Abbreviation,
		Name:         name,
		Conference:   conference,
		Division:     rec.Division,
		LogoURL:      store.Ptr(fmt.Sprintf(logoURLFormat, rec.NBAID)),
	}
	if rec.City != "" {
		t.City = store.Ptr(rec.City)
	}
	return s.stores.Teams.Upsert(ctx, t)
}

// IngestRoster upserts a team's roster and points each player at the team.
func (s *Service) IngestRoster(ctx context.Context, teamNBAID int, season string) (Result, error) {
	return s.logged(ctx, TypeRoster, func(ctx context.Context, res *Result) error {
		return s.ingestRoster(ctx, teamNBAID, season, res)
	})
}

// IngestAllRosters refreshes every stored team's roster under one log
// entry. A team whose roster cannot be fetched is skipped.
func (s *Service) IngestAllRosters(ctx context.Context, season string) (Result, error) {
	return s.logged(ctx, TypeRosters, func(ctx context.Context, res *Result) error {
		teams, err := s.stores.Teams.GetAll(ctx)
		if err != nil {
			return err
		}
		for _, t := range teams {
			if err := ctx.Err(); err != nil {
				return err
			}
			err := s.ingestRoster(ctx, t.NBAID, season, res)
			switch {
			case err == nil:
			case apperr.Classify(err) == apperr.Abort:
				return err
			default:
				res.record("roster:"+strconv.Itoa(t.NBAID), err)
			}
		}
		return nil
	})
}

func (s *Service) ingestRoster(ctx context.Context, teamNBAID int, season string, res *Result) error {
	teamID, err := s.teamID(ctx, teamNBAID)
	if err != nil {
		return err
	}
	recs, err := s.provider.Roster(ctx, teamNBAID, season)
	if err != nil {
		return err
	}

	for _, rec := range recs {
		years := rec.YearsPro
		p := &store.Player{
			NBAID:        rec.PlayerID,
			FirstName:    rec.FirstName,
			LastName:     rec.LastName,
			TeamID:       &teamID,
			JerseyNumber: rec.Jersey,
			Position:     rec.Position,
			Height:       rec.Height,
			Weight:       rec.Weight,
			BirthDate:    rec.BirthDate,
			Country:      rec.Country,
			YearsPro:     &years,
			IsActive:     true,
		}
		id, err := s.stores.Players.Upsert(ctx, p)
		if err == nil {
			s.players.Store(rec.PlayerID, id)
		}
		if abort := res.record("player:"+strconv.Itoa(rec.PlayerID), err); abort != nil {
			return abort
		}
	}
	return nil
}

// IngestStandings replaces the season's standings snapshot and refreshes
// the standings cache entry.
func (s *Service) IngestStandings(ctx context.Context, season string) (Result, error) {
	return s.logged(ctx, TypeStandings, func(ctx context.Context, res *Result) error {
		recs, err := s.provider.Standings(ctx, season)
		if err != nil {
			return errors.Wrapf(err, "fetching standings for %s", season)
		}

		for _, rec := range recs {
			key := "standing:" + strconv.Itoa(rec.TeamID)
			err := s.upsertStanding(ctx, season, rec)
			if abort := res.record(key, err); abort != nil {
				return abort
			}
		}

		views, err := s.stores.Standings.ListBySeason(ctx, season)
		if err != nil {
			return err
		}
		s.cache.Set(ctx, cache.StandingsKey(season), views, cache.TTLStandings)
		return nil
	})
}

func (s *Service) upsertStanding(ctx context.Context, season string, rec upstream.StandingRecord) error {
	teamID, err := s.teamID(ctx, rec.TeamID)
	if err != nil {
		return err
	}
	_, err = s.stores.Standings.Upsert(ctx, &store.TeamStanding{
		TeamID:         teamID,
		Season:         season,
		Wins:           rec.Wins,
		Losses:         rec.Losses,
		WinPct:         rec.WinPct,
		ConferenceRank: rec.PlayoffRank,
		DivisionRank:   rec.DivisionRank,
		GamesBack:      rec.ConferenceGB,
		Streak:         rec.CurrentStreak,
		Last10:         rec.Last10,
		HomeRecord:     rec.Home,
		AwayRecord:     rec.Road,
	})
	return err
}
