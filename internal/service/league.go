package service

import (
	"context"
	"fmt"

	"github.com/fortuna/courtcast/internal/cache"
	"github.com/fortuna/courtcast/internal/store"
)

// DefaultLogLimit caps RecentIngestionLogs when no limit is given.
const DefaultLogLimit = 20

// LeagueService handles teams, standings and ingestion history
type LeagueService struct {
	stores Stores
	cache  cache.Cache
}

// NewLeagueService creates a new league service
func NewLeagueService(stores Stores, c cache.Cache) *LeagueService {
	return &LeagueService{stores: stores, cache: c}
}

// Teams lists every team by abbreviation
func (s *LeagueService) Teams(ctx context.Context) ([]*store.Team, error) {
	teams, err := s.stores.Teams.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching teams: %w", err)
	}
	return teams, nil
}

// Team retrieves one team
func (s *LeagueService) Team(ctx context.Context, id int) (*store.Team, error) {
	key := cache.TeamKey(id)
	var cached store.Team
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	team, err := s.stores.Teams.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching team %d: %w", id, err)
	}
	s.cache.Set(ctx, key, team, cache.TTLTeam)
	return team, nil
}

// Standings returns a season's standings split by conference, each side
// in conference rank order
func (s *LeagueService) Standings(ctx context.Context, season string) (*Standings, error) {
	key := cache.StandingsKey(season)
	var cached Standings
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	rows, err := s.stores.Standings.ListBySeason(ctx, season)
	if err != nil {
		return nil, fmt.Errorf("fetching standings for %s: %w", season, err)
	}

	out := &Standings{Season: season, East: []*store.StandingView{}, West: []*store.StandingView{}}
	for _, row := range rows {
		if row.Conference == store.ConferenceWest {
			out.West = append(out.West, row)
		} else {
			out.East = append(out.East, row)
		}
	}
	s.cache.Set(ctx, key, out, cache.TTLStandings)
	return out, nil
}

// RecentIngestionLogs lists the latest ingestion runs, newest first
func (s *LeagueService) RecentIngestionLogs(ctx context.Context, limit int) ([]*store.IngestionLog, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	logs, err := s.stores.IngestionLogs.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("fetching ingestion logs: %w", err)
	}
	if logs == nil {
		logs = []*store.IngestionLog{}
	}
	return logs, nil
}

// Standings is a season table split by conference
type Standings struct {
	Season string                `json:"season"`
	East   []*store.StandingView `json:"east"`
	West   []*store.StandingView `json:"west"`
}
