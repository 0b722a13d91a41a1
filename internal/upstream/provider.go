// Package upstream defines the league data provider contract and the typed
// records it yields. Payloads are parsed into these records at the client
// boundary; optional upstream fields are pointers.
package upstream

import (
	"context"
	"time"
)

// Provider is the upstream league statistics source.
type Provider interface {
	Teams(ctx context.Context) ([]TeamRecord, error)
	Roster(ctx context.Context, teamNBAID int, season string) ([]RosterRecord, error)
	Standings(ctx context.Context, season string) ([]StandingRecord, error)
	Scoreboard(ctx context.Context) (*Scoreboard, error)
	BoxScore(ctx context.Context, gameID string) ([]BoxScoreLine, error)
	FindGames(ctx context.Context, from, to time.Time, season string) ([]GameFinderRow, error)
	TeamSeasonStats(ctx context.Context, season string) ([]TeamStatsRecord, error)
	TeamGameLog(ctx context.Context, teamNBAID int, season string) ([]GameLogRecord, error)
}

// TeamRecord is one franchise from the team directory.
type TeamRecord struct {
	NBAID        int
	Abbreviation string
	Nickname     string
	City         string
	Conference   *string
	Division     *string
}

// RosterRecord is one player on a team roster.
type RosterRecord struct {
	PlayerID  int
	FirstName string
	LastName  string
	Jersey    *string
	Position  *string
	Height    *string
	Weight    *int
	BirthDate *time.Time
	Country   *string
	YearsPro  int
}

// StandingRecord is one team's row in the league standings.
type StandingRecord struct {
	TeamID          int
	Wins            int
	Losses          int
	WinPct          float64
	PlayoffRank     *int
	DivisionRank    *int
	ConferenceGB    *float64
	CurrentStreak   *string
	Last10          *string
	Home            *string
	Road            *string
	ConferenceLabel *string
}

// ScoreboardGame is one game on the live scoreboard.
type ScoreboardGame struct {
	GameID       string
	StatusCode   int
	Period       *int
	Clock        string
	HomeTeamID   int
	AwayTeamID   int
	HomeScore    int
	AwayScore    int
	HomeQuarters []int
	AwayQuarters []int
}

// Scoreboard is the live scoreboard for the provider's current game day.
type Scoreboard struct {
	GameDate time.Time
	Games    []ScoreboardGame
}

// BoxScoreLine is one player's line in a game.
type BoxScoreLine struct {
	PlayerID  int
	TeamID    int
	FirstName string
	LastName  string
	Minutes   *float64
	Points    int
	FGM       int
	FGA       int
	FG3M      int
	FG3A      int
	FTM       int
	FTA       int
	OREB      int
	DREB      int
	REB       int
	AST       int
	STL       int
	BLK       int
	TOV       int
	PF        int
	PlusMinus *int
}

// GameFinderRow is one team's perspective of a game from the game finder.
// Each game appears twice, once per team.
type GameFinderRow struct {
	GameID   string
	TeamID   int
	GameDate time.Time
	Matchup  string
	WL       *string
	PTS      *int
}

// TeamStatsRecord is one team's per-game season aggregate.
type TeamStatsRecord struct {
	TeamID    int
	GP        int
	PTS       *float64
	FGPct     *float64
	FG3Pct    *float64
	FTPct     *float64
	OREB      *float64
	DREB      *float64
	AST       *float64
	TOV       *float64
	STL       *float64
	BLK       *float64
	OppPTS    *float64
	Pace      *float64
	OffRating *float64
	DefRating *float64
}

// GameLogRecord is one game from a team's season game log.
type GameLogRecord struct {
	GameID    string
	GameDate  time.Time
	Matchup   string
	WL        string
	PTS       int
	FGPct     float64
	FG3Pct    float64
	FTPct     float64
	OREB      int
	DREB      int
	REB       int
	AST       int
	STL       int
	BLK       int
	TOV       int
	PlusMinus int
}
