package service

import (
	"context"
	"fmt"

	"github.com/fortuna/courtcast/internal/cache"
	"github.com/fortuna/courtcast/internal/store"
)

// PlayerService handles player reads
type PlayerService struct {
	stores Stores
	cache  cache.Cache
}

// NewPlayerService creates a new player service
func NewPlayerService(stores Stores, c cache.Cache) *PlayerService {
	return &PlayerService{stores: stores, cache: c}
}

// Player retrieves a player with their current team
func (s *PlayerService) Player(ctx context.Context, playerID int) (*PlayerProfile, error) {
	key := cache.PlayerKey(playerID)
	var cached PlayerProfile
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	player, err := s.stores.Players.GetByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("fetching player: %w", err)
	}

	profile := &PlayerProfile{Player: player}
	if player.TeamID != nil {
		profile.Team, _ = s.stores.Teams.GetByID(ctx, *player.TeamID)
	}
	s.cache.Set(ctx, key, profile, cache.TTLPlayer)
	return profile, nil
}

// PlayerSeasonStats retrieves a player's averages over a season's final games
func (s *PlayerService) PlayerSeasonStats(ctx context.Context, playerID int, season string) (*PlayerSeasonStats, error) {
	key := cache.PlayerStatsKey(playerID, season)
	var cached PlayerSeasonStats
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	player, err := s.stores.Players.GetByID(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("fetching player: %w", err)
	}
	averages, err := s.stores.Stats.SeasonAverages(ctx, playerID, season)
	if err != nil {
		return nil, fmt.Errorf("calculating season averages: %w", err)
	}

	out := &PlayerSeasonStats{Player: player, Averages: averages}
	s.cache.Set(ctx, key, out, cache.TTLStats)
	return out, nil
}

// PlayerProfile contains player details with team information
type PlayerProfile struct {
	Player *store.Player `json:"player"`
	Team   *store.Team   `json:"team,omitempty"`
}

// PlayerSeasonStats pairs a player with their season averages
type PlayerSeasonStats struct {
	Player   *store.Player               `json:"player"`
	Averages *store.PlayerSeasonAverages `json:"averages"`
}
