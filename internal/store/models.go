package store

import (
	"time"
)

// Game statuses
const (
	GameStatusScheduled = "scheduled"
	GameStatusLive      = "live"
	GameStatusFinal     = "final"
)

// Ingestion log statuses
const (
	IngestionRunning = "running"
	IngestionSuccess = "success"
	IngestionFailed  = "failed"
)

// Conferences
const (
	ConferenceEast = "East"
	ConferenceWest = "West"
)

// Team represents a franchise, keyed by the provider team id
type Team struct {
	ID           int       `json:"id" db:"id"`
	NBAID        int       `json:"nba_id" db:"nba_id"`
	Abbreviation string    `json:"abbreviation" db:"abbreviation"`
	Name         string    `json:"name" db:"name"`
	City         *string   `json:"city,omitempty" db:"city"`
	Conference   string    `json:"conference" db:"conference"`
	Division     *string   `json:"division,omitempty" db:"division"`
	LogoURL      *string   `json:"logo_url,omitempty" db:"logo_url"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// Player represents a player, keyed by the provider player id
type Player struct {
	ID           int        `json:"id" db:"id"`
	NBAID        int        `json:"nba_id" db:"nba_id"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	TeamID       *int       `json:"team_id,omitempty" db:"team_id"`
	JerseyNumber *string    `json:"jersey_number,omitempty" db:"jersey_number"`
	Position     *string    `json:"position,omitempty" db:"position"`
	Height       *string    `json:"height,omitempty" db:"height"`
	Weight       *int       `json:"weight,omitempty" db:"weight"`
	BirthDate    *time.Time `json:"birth_date,omitempty" db:"birth_date"`
	Country      *string    `json:"country,omitempty" db:"country"`
	YearsPro     *int       `json:"years_pro,omitempty" db:"years_pro"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// FullName returns "First Last", trimmed when either part is empty.
func (p *Player) FullName() string {
	switch {
	case p.FirstName == "":
		return p.LastName
	case p.LastName == "":
		return p.FirstName
	default:
		return p.FirstName + " " + p.LastName
	}
}

// Game represents a game, keyed by the provider game id
type Game struct {
	ID           int       `json:"id" db:"id"`
	NBAGameID    string    `json:"nba_game_id" db:"nba_game_id"`
	Season       string    `json:"season" db:"season"`
	SeasonType   string    `json:"season_type" db:"season_type"`
	GameDate     time.Time `json:"game_date" db:"game_date"`
	HomeTeamID   int       `json:"home_team_id" db:"home_team_id"`
	AwayTeamID   int       `json:"away_team_id" db:"away_team_id"`
	HomeScore    *int      `json:"home_score,omitempty" db:"home_score"`
	AwayScore    *int      `json:"away_score,omitempty" db:"away_score"`
	HomeQuarters []int     `json:"home_quarters,omitempty" db:"home_quarters"`
	AwayQuarters []int     `json:"away_quarters,omitempty" db:"away_quarters"`
	Status       string    `json:"status" db:"status"`
	Period       *int      `json:"period,omitempty" db:"period"`
	GameClock    *string   `json:"game_clock,omitempty" db:"game_clock"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// PlayerGameStats is one box-score line, unique on (player, game)
type PlayerGameStats struct {
	ID        int       `json:"id" db:"id"`
	PlayerID  int       `json:"player_id" db:"player_id"`
	GameID    int       `json:"game_id" db:"game_id"`
	TeamID    int       `json:"team_id" db:"team_id"`
	Minutes   *float64  `json:"minutes,omitempty" db:"minutes"`
	Points    int       `json:"points" db:"points"`
	FGM       int       `json:"fgm" db:"fgm"`
	FGA       int       `json:"fga" db:"fga"`
	FG3M      int       `json:"fg3m" db:"fg3m"`
	FG3A      int       `json:"fg3a" db:"fg3a"`
	FTM       int       `json:"ftm" db:"ftm"`
	FTA       int       `json:"fta" db:"fta"`
	OREB      int       `json:"oreb" db:"oreb"`
	DREB      int       `json:"dreb" db:"dreb"`
	REB       int       `json:"reb" db:"reb"`
	AST       int       `json:"ast" db:"ast"`
	STL       int       `json:"stl" db:"stl"`
	BLK       int       `json:"blk" db:"blk"`
	TOV       int       `json:"tov" db:"tov"`
	PF        int       `json:"pf" db:"pf"`
	PlusMinus *int      `json:"plus_minus,omitempty" db:"plus_minus"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// PlayerSeasonAverages aggregates a player's box-score lines for a season
type PlayerSeasonAverages struct {
	PlayerID    int     `json:"player_id"`
	Season      string  `json:"season"`
	GamesPlayed int     `json:"games_played"`
	Minutes     float64 `json:"minutes"`
	Points      float64 `json:"points"`
	Rebounds    float64 `json:"rebounds"`
	Assists     float64 `json:"assists"`
	Steals      float64 `json:"steals"`
	Blocks      float64 `json:"blocks"`
	FGPct       float64 `json:"fg_pct"`
	FG3Pct      float64 `json:"fg3_pct"`
	FTPct       float64 `json:"ft_pct"`
}

// TeamStanding is the latest record snapshot, unique on (team, season)
type TeamStanding struct {
	ID             int       `json:"id" db:"id"`
	TeamID         int       `json:"team_id" db:"team_id"`
	Season         string    `json:"season" db:"season"`
	Wins           int       `json:"wins" db:"wins"`
	Losses         int       `json:"losses" db:"losses"`
	WinPct         float64   `json:"win_pct" db:"win_pct"`
	ConferenceRank *int      `json:"conference_rank,omitempty" db:"conference_rank"`
	DivisionRank   *int      `json:"division_rank,omitempty" db:"division_rank"`
	GamesBack      *float64  `json:"games_back,omitempty" db:"games_back"`
	Streak         *string   `json:"streak,omitempty" db:"streak"`
	Last10         *string   `json:"last_10,omitempty" db:"last_10"`
	HomeRecord     *string   `json:"home_record,omitempty" db:"home_record"`
	AwayRecord     *string   `json:"away_record,omitempty" db:"away_record"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// StandingView is a standing joined with its team, as served to readers
type StandingView struct {
	TeamStanding
	Abbreviation string `json:"abbreviation"`
	TeamName     string `json:"team_name"`
	Conference   string `json:"conference"`
}

// IngestionLog records one ingestion run: running -> success|failed
type IngestionLog struct {
	ID               int        `json:"id" db:"id"`
	IngestionType    string     `json:"ingestion_type" db:"ingestion_type"`
	StartedAt        time.Time  `json:"started_at" db:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	Status           string     `json:"status" db:"status"`
	RecordsProcessed int        `json:"records_processed" db:"records_processed"`
	ErrorMessage     *string    `json:"error_message,omitempty" db:"error_message"`
}

// TeamSeasonStats holds season aggregates, unique on (team, season)
type TeamSeasonStats struct {
	ID             int       `json:"id" db:"id"`
	TeamID         int       `json:"team_id" db:"team_id"`
	Season         string    `json:"season" db:"season"`
	GamesPlayed    int       `json:"games_played" db:"games_played"`
	Wins           int       `json:"wins" db:"wins"`
	Losses         int       `json:"losses" db:"losses"`
	WinPct         float64   `json:"win_pct" db:"win_pct"`
	PPG            *float64  `json:"ppg,omitempty" db:"ppg"`
	FGPct          *float64  `json:"fg_pct,omitempty" db:"fg_pct"`
	FG3Pct         *float64  `json:"fg3_pct,omitempty" db:"fg3_pct"`
	FTPct          *float64  `json:"ft_pct,omitempty" db:"ft_pct"`
	OREB           *float64  `json:"oreb,omitempty" db:"oreb"`
	AST            *float64  `json:"ast,omitempty" db:"ast"`
	TOV            *float64  `json:"tov,omitempty" db:"tov"`
	OPPG           *float64  `json:"oppg,omitempty" db:"oppg"`
	DREB           *float64  `json:"dreb,omitempty" db:"dreb"`
	STL            *float64  `json:"stl,omitempty" db:"stl"`
	BLK            *float64  `json:"blk,omitempty" db:"blk"`
	Pace           *float64  `json:"pace,omitempty" db:"pace"`
	OffRating      *float64  `json:"off_rating,omitempty" db:"off_rating"`
	DefRating      *float64  `json:"def_rating,omitempty" db:"def_rating"`
	NetRating      *float64  `json:"net_rating,omitempty" db:"net_rating"`
	ConferenceRank *int      `json:"conference_rank,omitempty" db:"conference_rank"`
	DivisionRank   *int      `json:"division_rank,omitempty" db:"division_rank"`
	PlayoffSeed    *int      `json:"playoff_seed,omitempty" db:"playoff_seed"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// TeamGameLog is one team's line for one game, unique on (team, game)
type TeamGameLog struct {
	ID        int       `json:"id" db:"id"`
	TeamID    int       `json:"team_id" db:"team_id"`
	NBAGameID string    `json:"nba_game_id" db:"nba_game_id"`
	Season    string    `json:"season" db:"season"`
	GameDate  time.Time `json:"game_date" db:"game_date"`
	Matchup   string    `json:"matchup" db:"matchup"`
	WL        string    `json:"wl" db:"wl"`
	PTS       int       `json:"pts" db:"pts"`
	FGPct     float64   `json:"fg_pct" db:"fg_pct"`
	FG3Pct    float64   `json:"fg3_pct" db:"fg3_pct"`
	FTPct     float64   `json:"ft_pct" db:"ft_pct"`
	OREB      int       `json:"oreb" db:"oreb"`
	DREB      int       `json:"dreb" db:"dreb"`
	REB       int       `json:"reb" db:"reb"`
	AST       int       `json:"ast" db:"ast"`
	STL       int       `json:"stl" db:"stl"`
	BLK       int       `json:"blk" db:"blk"`
	TOV       int       `json:"tov" db:"tov"`
	PlusMinus int       `json:"plus_minus" db:"plus_minus"`
}

// TeamPrediction is one forecast snapshot, unique on (season, team, date)
type TeamPrediction struct {
	ID                       int       `json:"id" db:"id"`
	Season                   string    `json:"season" db:"season"`
	TeamID                   int       `json:"team_id" db:"team_id"`
	PredictionDate           time.Time `json:"prediction_date" db:"prediction_date"`
	ModelVersion             string    `json:"model_version" db:"model_version"`
	PredictedWins            float64   `json:"predicted_wins" db:"predicted_wins"`
	PredictedLosses          float64   `json:"predicted_losses" db:"predicted_losses"`
	PredictedWinPct          float64   `json:"predicted_win_pct" db:"predicted_win_pct"`
	PredictedConferenceRank  int       `json:"predicted_conference_rank" db:"predicted_conference_rank"`
	PlayoffProbability       float64   `json:"playoff_probability" db:"playoff_probability"`
	PredictedPPG             *float64  `json:"predicted_ppg,omitempty" db:"predicted_ppg"`
	PredictedOPPG            *float64  `json:"predicted_oppg,omitempty" db:"predicted_oppg"`
	PredictedPace            *float64  `json:"predicted_pace,omitempty" db:"predicted_pace"`
	PredictedDefensiveRating *float64  `json:"predicted_defensive_rating,omitempty" db:"predicted_defensive_rating"`
	WinsLowerBound           *float64  `json:"wins_lower_bound,omitempty" db:"wins_lower_bound"`
	WinsUpperBound           *float64  `json:"wins_upper_bound,omitempty" db:"wins_upper_bound"`
	CreatedAt                time.Time `json:"created_at" db:"created_at"`
}

// ModelMetadata describes one trained model version; at most one is active
type ModelMetadata struct {
	ID              int       `json:"id" db:"id"`
	ModelVersion    string    `json:"model_version" db:"model_version"`
	ModelType       string    `json:"model_type" db:"model_type"`
	TrainedAt       time.Time `json:"trained_at" db:"trained_at"`
	TrainingSeasons []string  `json:"training_seasons" db:"training_seasons"`
	EpochsTrained   *int      `json:"epochs_trained,omitempty" db:"epochs_trained"`
	BatchSize       *int      `json:"batch_size,omitempty" db:"batch_size"`
	SequenceLength  *int      `json:"sequence_length,omitempty" db:"sequence_length"`
	HiddenUnits     []int     `json:"hidden_units,omitempty" db:"hidden_units"`
	DropoutRate     *float64  `json:"dropout_rate,omitempty" db:"dropout_rate"`
	LearningRate    *float64  `json:"learning_rate,omitempty" db:"learning_rate"`
	TrainingLoss    *float64  `json:"training_loss,omitempty" db:"training_loss"`
	ValidationLoss  *float64  `json:"validation_loss,omitempty" db:"validation_loss"`
	MAEWins         *float64  `json:"mae_wins,omitempty" db:"mae_wins"`
	MAEPPG          *float64  `json:"mae_ppg,omitempty" db:"mae_ppg"`
	ModelPath       *string   `json:"model_path,omitempty" db:"model_path"`
	ScalerPath      *string   `json:"scaler_path,omitempty" db:"scaler_path"`
	IsActive        bool      `json:"is_active" db:"is_active"`
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
