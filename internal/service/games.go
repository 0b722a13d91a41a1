package service

import (
	"context"
	"fmt"
	"time"

	"github.com/fortuna/courtcast/internal/cache"
	"github.com/fortuna/courtcast/internal/store"
)

// GameService handles game reads
type GameService struct {
	stores Stores
	cache  cache.Cache
	now    func() time.Time
}

// NewGameService creates a new game service
func NewGameService(stores Stores, c cache.Cache) *GameService {
	return &GameService{stores: stores, cache: c, now: time.Now}
}

// TodayGames returns today's scoreboard with team details. The cached
// slate is shared with ingestion, which refreshes it on every poll.
func (s *GameService) TodayGames(ctx context.Context) ([]*GameSummary, error) {
	key := cache.TodayKey()
	var games []*store.Game
	if !s.cache.Get(ctx, key, &games) {
		y, m, d := s.now().Date()
		var err error
		games, err = s.stores.Games.ListByDate(ctx, time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
		if err != nil {
			return nil, fmt.Errorf("fetching today's games: %w", err)
		}
		s.cache.Set(ctx, key, games, cache.TTLTodayGames)
	}

	return s.enrichGamesWithTeams(ctx, games)
}

// LiveGame returns a game's box score. The game row comes from the live
// or final cache entry when ingestion has written one.
func (s *GameService) LiveGame(ctx context.Context, nbaGameID string) (*BoxScore, error) {
	game := &store.Game{}
	if !s.cache.Get(ctx, cache.LiveKey(nbaGameID), game) && !s.cache.Get(ctx, cache.GameKey(nbaGameID), game) {
		var err error
		game, err = s.stores.Games.GetByNBAID(ctx, nbaGameID)
		if err != nil {
			return nil, fmt.Errorf("fetching game %s: %w", nbaGameID, err)
		}
		if game.Status == store.GameStatusFinal {
			s.cache.Set(ctx, cache.GameKey(nbaGameID), game, cache.TTLGameFinal)
		} else {
			s.cache.Set(ctx, cache.LiveKey(nbaGameID), game, cache.TTLLive)
		}
	}

	return s.boxScore(ctx, game)
}

// enrichGamesWithTeams adds team details to games
func (s *GameService) enrichGamesWithTeams(ctx context.Context, games []*store.Game) ([]*GameSummary, error) {
	summaries := make([]*GameSummary, 0, len(games))

	for _, game := range games {
		homeTeam, err := s.stores.Teams.GetByID(ctx, game.HomeTeamID)
		if err != nil {
			return nil, fmt.Errorf("fetching home team for game %s: %w", game.NBAGameID, err)
		}

		awayTeam, err := s.stores.Teams.GetByID(ctx, game.AwayTeamID)
		if err != nil {
			return nil, fmt.Errorf("fetching away team for game %s: %w", game.NBAGameID, err)
		}

		summaries = append(summaries, &GameSummary{
			Game:     game,
			HomeTeam: homeTeam,
			AwayTeam: awayTeam,
		})
	}

	return summaries, nil
}

// GameSummary contains game details with team information
type GameSummary struct {
	Game     *store.Game `json:"game"`
	HomeTeam *store.Team `json:"home_team"`
	AwayTeam *store.Team `json:"away_team"`
}
