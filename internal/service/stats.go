package service

import (
	"context"
	"fmt"

	"github.com/fortuna/courtcast/internal/store"
)

// boxScore splits a game's stat lines by side and attaches players and teams
func (s *GameService) boxScore(ctx context.Context, game *store.Game) (*BoxScore, error) {
	lines, err := s.stores.Stats.ListByGame(ctx, game.ID)
	if err != nil {
		return nil, fmt.Errorf("fetching box score: %w", err)
	}

	homeTeamStats := make([]*PlayerStatLine, 0)
	awayTeamStats := make([]*PlayerStatLine, 0)

	for _, stat := range lines {
		player, err := s.stores.Players.GetByID(ctx, stat.PlayerID)
		if err != nil {
			continue // Skip if player not found
		}

		statLine := &PlayerStatLine{
			Player: player,
			Stats:  stat,
		}

		if stat.TeamID == game.HomeTeamID {
			homeTeamStats = append(homeTeamStats, statLine)
		} else {
			awayTeamStats = append(awayTeamStats, statLine)
		}
	}

	homeTeam, err := s.stores.Teams.GetByID(ctx, game.HomeTeamID)
	if err != nil {
		return nil, fmt.Errorf("fetching home team: %w", err)
	}

	awayTeam, err := s.stores.Teams.GetByID(ctx, game.AwayTeamID)
	if err != nil {
		return nil, fmt.Errorf("fetching away team: %w", err)
	}

	return &BoxScore{
		Game:          game,
		HomeTeam:      homeTeam,
		AwayTeam:      awayTeam,
		HomeTeamStats: homeTeamStats,
		AwayTeamStats: awayTeamStats,
	}, nil
}

// BoxScore contains the complete box score for a game
type BoxScore struct {
	Game          *store.Game       `json:"game"`
	HomeTeam      *store.Team       `json:"home_team"`
	AwayTeam      *store.Team       `json:"away_team"`
	HomeTeamStats []*PlayerStatLine `json:"home_team_stats"`
	AwayTeamStats []*PlayerStatLine `json:"away_team_stats"`
}

// PlayerStatLine combines player info with their game stats
type PlayerStatLine struct {
	Player *store.Player          `json:"player"`
	Stats  *store.PlayerGameStats `json:"stats"`
}
