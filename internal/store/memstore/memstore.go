// Package memstore is an in-memory implementation of the repository
// method sets. It honors the same natural keys and upsert policies as the
// Postgres repositories and backs the package tests of ingest, history,
// pipeline, prediction, service and the REST layer.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fortuna/courtcast/internal/store"
)

// Store groups the per-entity views over one shared state.
type Store struct {
	mu  sync.Mutex
	now func() time.Time

	teams       map[int]*store.Team
	players     map[int]*store.Player
	games       map[int]*store.Game
	stats       map[int]*store.PlayerGameStats
	standings   map[int]*store.TeamStanding
	logs        map[int]*store.IngestionLog
	seasonStats map[int]*store.TeamSeasonStats
	gameLogs    map[int]*store.TeamGameLog
	predictions map[int]*store.TeamPrediction
	models      map[int]*store.ModelMetadata
	nextID      int

	Teams         *Teams
	Players       *Players
	Games         *Games
	Stats         *Stats
	Standings     *Standings
	IngestionLogs *IngestionLogs
	SeasonStats   *SeasonStats
	GameLogs      *GameLogs
	Predictions   *Predictions
	Models        *Models

	// FailWith, when set, is returned by every operation. Tests use it to
	// simulate a lost database connection.
	FailWith error
}

// New returns an empty store.
func New() *Store {
	s := &Store{
		now:         time.Now,
		teams:       map[int]*store.Team{},
		players:     map[int]*store.Player{},
		games:       map[int]*store.Game{},
		stats:       map[int]*store.PlayerGameStats{},
		standings:   map[int]*store.TeamStanding{},
		logs:        map[int]*store.IngestionLog{},
		seasonStats: map[int]*store.TeamSeasonStats{},
		gameLogs:    map[int]*store.TeamGameLog{},
		predictions: map[int]*store.TeamPrediction{},
		models:      map[int]*store.ModelMetadata{},
	}
	s.Teams = &Teams{s}
	s.Players = &Players{s}
	s.Games = &Games{s}
	s.Stats = &Stats{s}
	s.Standings = &Standings{s}
	s.IngestionLogs = &IngestionLogs{s}
	s.SeasonStats = &SeasonStats{s}
	s.GameLogs = &GameLogs{s}
	s.Predictions = &Predictions{s}
	s.Models = &Models{s}
	return s
}

// SetClock overrides the timestamp source.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

func (s *Store) id() int {
	s.nextID++
	return s.nextID
}

func (s *Store) lock() (func(), error) {
	s.mu.Lock()
	if s.FailWith != nil {
		err := s.FailWith
		s.mu.Unlock()
		return nil, store.Classify(err)
	}
	return s.mu.Unlock, nil
}

func cp[T any](v *T) *T {
	c := *v
	return &c
}

// Counts reports rows per table, for idempotence assertions.
func (s *Store) Counts() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]int{
		"teams":             len(s.teams),
		"players":           len(s.players),
		"games":             len(s.games),
		"player_game_stats": len(s.stats),
		"team_standings":    len(s.standings),
		"ingestion_logs":    len(s.logs),
		"team_season_stats": len(s.seasonStats),
		"team_game_logs":    len(s.gameLogs),
		"team_predictions":  len(s.predictions),
		"model_metadata":    len(s.models),
	}
}

// Teams mirrors repository.TeamRepository.
type Teams struct{ s *Store }

func (r *Teams) Upsert(_ context.Context, t *store.Team) (int, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	now := r.s.now()
	for _, ex := range r.s.teams {
		if ex.NBAID == t.NBAID {
			division, logo := t.Division, t.LogoURL
			if division == nil {
				division = ex.Division
			}
			if logo == nil {
				logo = ex.LogoURL
			}
			ex.Abbreviation, ex.Name, ex.City, ex.Conference = t.Abbreviation, t.Name, t.City, t.Conference
			ex.Division, ex.LogoURL, ex.UpdatedAt = division, logo, now
			t.ID = ex.ID
			return ex.ID, nil
		}
	}
	t.ID = r.s.id()
	t.CreatedAt, t.UpdatedAt = now, now
	r.s.teams[t.ID] = cp(t)
	return t.ID, nil
}

func (r *Teams) GetAll(context.Context) ([]*store.Team, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	out := make([]*store.Team, 0, len(r.s.teams))
	for _, t := range r.s.teams {
		out = append(out, cp(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Abbreviation < out[j].Abbreviation })
	return out, nil
}

func (r *Teams) GetByID(_ context.Context, id int) (*store.Team, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if t, ok := r.s.teams[id]; ok {
		return cp(t), nil
	}
	return nil, fmt.Errorf("team not found: %d: %w", id, store.ErrNotFound)
}

func (r *Teams) GetByNBAID(_ context.Context, nbaID int) (*store.Team, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, t := range r.s.teams {
		if t.NBAID == nbaID {
			return cp(t), nil
		}
	}
	return nil, fmt.Errorf("team not found with provider id %d: %w", nbaID, store.ErrNotFound)
}

func (r *Teams) Count(context.Context) (int, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()
	return len(r.s.teams), nil
}

// Players mirrors repository.PlayerRepository.
type Players struct{ s *Store }

func (r *Players) Upsert(_ context.Context, p *store.Player) (int, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	now := r.s.now()
	for id, ex := range r.s.players {
		if ex.NBAID == p.NBAID {
			next := cp(p)
			if next.Country == nil {
				next.Country = ex.Country
			}
			next.ID, next.CreatedAt, next.UpdatedAt = id, ex.CreatedAt, now
			r.s.players[id] = next
			p.ID = id
			return id, nil
		}
	}
	p.ID = r.s.id()
	p.CreatedAt, p.UpdatedAt = now, now
	r.s.players[p.ID] = cp(p)
	return p.ID, nil
}

func (r *Players) EnsureExists(_ context.Context, nbaID int, firstName, lastName string, teamID *int) (int, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	for id, p := range r.s.players {
		if p.NBAID == nbaID {
			return id, nil
		}
	}
	now := r.s.now()
	p := &store.Player{
		ID: r.s.id(), NBAID: nbaID, FirstName: firstName, LastName: lastName,
		TeamID: teamID, IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	r.s.players[p.ID] = p
	return p.ID, nil
}

func (r *Players) GetByID(_ context.Context, id int) (*store.Player, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if p, ok := r.s.players[id]; ok {
		return cp(p), nil
	}
	return nil, fmt.Errorf("player not found: %d: %w", id, store.ErrNotFound)
}

func (r *Players) GetByNBAID(_ context.Context, nbaID int) (*store.Player, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, p := range r.s.players {
		if p.NBAID == nbaID {
			return cp(p), nil
		}
	}
	return nil, fmt.Errorf("player not found with provider id %d: %w", nbaID, store.ErrNotFound)
}

// Games mirrors repository.GameRepository.
type Games struct{ s *Store }

func (r *Games) Upsert(_ context.Context, g *store.Game) (int, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	now := r.s.now()
	if g.SeasonType == "" {
		g.SeasonType = "Regular Season"
	}
	for id, ex := range r.s.games {
		if ex.NBAGameID != g.NBAGameID {
			continue
		}
		next := cp(g)
		next.ID, next.CreatedAt, next.UpdatedAt = id, ex.CreatedAt, now
		if next.HomeScore == nil {
			next.HomeScore = ex.HomeScore
		}
		if next.AwayScore == nil {
			next.AwayScore = ex.AwayScore
		}
		if len(next.HomeQuarters) == 0 {
			next.HomeQuarters = ex.HomeQuarters
		}
		if len(next.AwayQuarters) == 0 {
			next.AwayQuarters = ex.AwayQuarters
		}
		if next.Period == nil {
			next.Period = ex.Period
		}
		r.s.games[id] = next
		g.ID = id
		return id, nil
	}
	g.ID = r.s.id()
	g.CreatedAt, g.UpdatedAt = now, now
	r.s.games[g.ID] = cp(g)
	return g.ID, nil
}

func (r *Games) GetByID(_ context.Context, id int) (*store.Game, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	if g, ok := r.s.games[id]; ok {
		return cp(g), nil
	}
	return nil, fmt.Errorf("game not found: %d: %w", id, store.ErrNotFound)
}

func (r *Games) GetByNBAID(_ context.Context, nbaGameID string) (*store.Game, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, g := range r.s.games {
		if g.NBAGameID == nbaGameID {
			return cp(g), nil
		}
	}
	return nil, fmt.Errorf("game not found: %s: %w", nbaGameID, store.ErrNotFound)
}

func (r *Games) ListByDate(_ context.Context, day time.Time) ([]*store.Game, error) {
	return r.filter(func(g *store.Game) bool {
		return g.GameDate.Format("2006-01-02") == day.Format("2006-01-02")
	})
}

func (r *Games) Count(context.Context) (int, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()
	return len(r.s.games), nil
}

func (r *Games) filter(keep func(*store.Game) bool) ([]*store.Game, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*store.Game
	for _, g := range r.s.games {
		if keep(g) {
			out = append(out, cp(g))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GameDate.Equal(out[j].GameDate) {
			return out[i].GameDate.Before(out[j].GameDate)
		}
		return out[i].NBAGameID < out[j].NBAGameID
	})
	return out, nil
}

// Stats mirrors repository.StatsRepository.
type Stats struct{ s *Store }

func (r *Stats) Upsert(_ context.Context, st *store.PlayerGameStats) (int, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	now := r.s.now()
	for id, ex := range r.s.stats {
		if ex.PlayerID == st.PlayerID && ex.GameID == st.GameID {
			next := cp(st)
			next.ID, next.CreatedAt, next.UpdatedAt = id, ex.CreatedAt, now
			r.s.stats[id] = next
			st.ID = id
			return id, nil
		}
	}
	st.ID = r.s.id()
	st.CreatedAt, st.UpdatedAt = now, now
	r.s.stats[st.ID] = cp(st)
	return st.ID, nil
}

func (r *Stats) ListByGame(_ context.Context, gameID int) ([]*store.PlayerGameStats, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*store.PlayerGameStats
	for _, st := range r.s.stats {
		if st.GameID == gameID {
			out = append(out, cp(st))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TeamID != out[j].TeamID {
			return out[i].TeamID < out[j].TeamID
		}
		return out[i].Points > out[j].Points
	})
	return out, nil
}

func (r *Stats) SeasonAverages(_ context.Context, playerID int, season string) (*store.PlayerSeasonAverages, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	avg := &store.PlayerSeasonAverages{PlayerID: playerID, Season: season}
	var fgm, fga, fg3m, fg3a, ftm, fta int
	var minutesN int
	for _, st := range r.s.stats {
		g, ok := r.s.games[st.GameID]
		if st.PlayerID != playerID || !ok || g.Season != season || g.Status != store.GameStatusFinal {
			continue
		}
		avg.GamesPlayed++
		if st.Minutes != nil {
			avg.Minutes += *st.Minutes
			minutesN++
		}
		avg.Points += float64(st.Points)
		avg.Rebounds += float64(st.REB)
		avg.Assists += float64(st.AST)
		avg.Steals += float64(st.STL)
		avg.Blocks += float64(st.BLK)
		fgm, fga = fgm+st.FGM, fga+st.FGA
		fg3m, fg3a = fg3m+st.FG3M, fg3a+st.FG3A
		ftm, fta = ftm+st.FTM, fta+st.FTA
	}
	if avg.GamesPlayed == 0 {
		return nil, fmt.Errorf("no stats for player %d in %s: %w", playerID, season, store.ErrNotFound)
	}
	n := float64(avg.GamesPlayed)
	if minutesN > 0 {
		avg.Minutes /= float64(minutesN)
	}
	avg.Points /= n
	avg.Rebounds /= n
	avg.Assists /= n
	avg.Steals /= n
	avg.Blocks /= n
	avg.FGPct = pct(fgm, fga)
	avg.FG3Pct = pct(fg3m, fg3a)
	avg.FTPct = pct(ftm, fta)
	return avg, nil
}

func pct(made, att int) float64 {
	if att == 0 {
		return 0
	}
	return float64(made) / float64(att) * 100
}

// Standings mirrors repository.StandingsRepository.
type Standings struct{ s *Store }

func (r *Standings) Upsert(_ context.Context, st *store.TeamStanding) (int, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	now := r.s.now()
	for id, ex := range r.s.standings {
		if ex.TeamID == st.TeamID && ex.Season == st.Season {
			next := cp(st)
			next.ID, next.CreatedAt, next.UpdatedAt = id, ex.CreatedAt, now
			r.s.standings[id] = next
			st.ID = id
			return id, nil
		}
	}
	st.ID = r.s.id()
	st.CreatedAt, st.UpdatedAt = now, now
	r.s.standings[st.ID] = cp(st)
	return st.ID, nil
}

func (r *Standings) ListBySeason(_ context.Context, season string) ([]*store.StandingView, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*store.StandingView
	for _, st := range r.s.standings {
		if st.Season != season {
			continue
		}
		v := &store.StandingView{TeamStanding: *st}
		if t, ok := r.s.teams[st.TeamID]; ok {
			v.Abbreviation, v.TeamName, v.Conference = t.Abbreviation, t.Name, t.Conference
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Conference != out[j].Conference {
			return out[i].Conference < out[j].Conference
		}
		ri, rj := rankOr(out[i].ConferenceRank), rankOr(out[j].ConferenceRank)
		if ri != rj {
			return ri < rj
		}
		return out[i].WinPct > out[j].WinPct
	})
	return out, nil
}

func rankOr(r *int) int {
	if r == nil {
		return 1 << 30
	}
	return *r
}

// IngestionLogs mirrors repository.IngestionLogRepository.
type IngestionLogs struct{ s *Store }

func (r *IngestionLogs) Start(_ context.Context, ingestionType string) (*store.IngestionLog, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	l := &store.IngestionLog{ID: r.s.id(), IngestionType: ingestionType, StartedAt: r.s.now(), Status: store.IngestionRunning}
	r.s.logs[l.ID] = cp(l)
	return l, nil
}

func (r *IngestionLogs) Finish(_ context.Context, id int, status string, records int, errMsg *string) error {
	unlock, err := r.s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	l, ok := r.s.logs[id]
	if !ok {
		return fmt.Errorf("ingestion log %d: %w", id, store.ErrNotFound)
	}
	now := r.s.now()
	l.Status, l.RecordsProcessed, l.ErrorMessage, l.CompletedAt = status, records, errMsg, &now
	return nil
}

func (r *IngestionLogs) Recent(_ context.Context, limit int) ([]*store.IngestionLog, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	out := make([]*store.IngestionLog, 0, len(r.s.logs))
	for _, l := range r.s.logs {
		out = append(out, cp(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SeasonStats mirrors repository.SeasonStatsRepository.
type SeasonStats struct{ s *Store }

func (r *SeasonStats) Upsert(_ context.Context, st *store.TeamSeasonStats) (int, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	now := r.s.now()
	for id, ex := range r.s.seasonStats {
		if ex.TeamID == st.TeamID && ex.Season == st.Season {
			next := cp(st)
			next.ID, next.CreatedAt, next.UpdatedAt = id, ex.CreatedAt, now
			r.s.seasonStats[id] = next
			st.ID = id
			return id, nil
		}
	}
	st.ID = r.s.id()
	st.CreatedAt, st.UpdatedAt = now, now
	r.s.seasonStats[st.ID] = cp(st)
	return st.ID, nil
}

func (r *SeasonStats) Get(_ context.Context, teamID int, season string) (*store.TeamSeasonStats, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, st := range r.s.seasonStats {
		if st.TeamID == teamID && st.Season == season {
			return cp(st), nil
		}
	}
	return nil, fmt.Errorf("season stats not found for team %d in %s: %w", teamID, season, store.ErrNotFound)
}

func (r *SeasonStats) ListForTeam(_ context.Context, teamID int) ([]*store.TeamSeasonStats, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*store.TeamSeasonStats
	for _, st := range r.s.seasonStats {
		if st.TeamID == teamID {
			out = append(out, cp(st))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Season > out[j].Season })
	return out, nil
}

// GameLogs mirrors repository.GameLogRepository.
type GameLogs struct{ s *Store }

func (r *GameLogs) Upsert(_ context.Context, l *store.TeamGameLog) (int, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	for id, ex := range r.s.gameLogs {
		if ex.TeamID == l.TeamID && ex.NBAGameID == l.NBAGameID {
			next := cp(l)
			next.ID = id
			r.s.gameLogs[id] = next
			l.ID = id
			return id, nil
		}
	}
	l.ID = r.s.id()
	r.s.gameLogs[l.ID] = cp(l)
	return l.ID, nil
}

func (r *GameLogs) ListForTeamSeason(_ context.Context, teamID int, season string) ([]*store.TeamGameLog, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*store.TeamGameLog
	for _, l := range r.s.gameLogs {
		if l.TeamID == teamID && l.Season == season {
			out = append(out, cp(l))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GameDate.Equal(out[j].GameDate) {
			return out[i].GameDate.Before(out[j].GameDate)
		}
		return out[i].NBAGameID < out[j].NBAGameID
	})
	return out, nil
}

// Predictions mirrors repository.PredictionRepository.
type Predictions struct{ s *Store }

func sameDay(a, b time.Time) bool {
	return a.Format("2006-01-02") == b.Format("2006-01-02")
}

func (r *Predictions) Upsert(_ context.Context, p *store.TeamPrediction) (int, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return 0, err
	}
	defer unlock()

	now := r.s.now()
	for id, ex := range r.s.predictions {
		if ex.Season == p.Season && ex.TeamID == p.TeamID && sameDay(ex.PredictionDate, p.PredictionDate) {
			next := cp(p)
			next.ID, next.CreatedAt = id, now
			r.s.predictions[id] = next
			p.ID = id
			return id, nil
		}
	}
	p.ID = r.s.id()
	p.CreatedAt = now
	r.s.predictions[p.ID] = cp(p)
	return p.ID, nil
}

func (r *Predictions) LatestDate(_ context.Context, season string) (time.Time, bool, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return time.Time{}, false, err
	}
	defer unlock()

	var latest time.Time
	found := false
	for _, p := range r.s.predictions {
		if p.Season == season && (!found || p.PredictionDate.After(latest)) {
			latest, found = p.PredictionDate, true
		}
	}
	return latest, found, nil
}

func (r *Predictions) ListByDate(_ context.Context, season string, date time.Time) ([]*store.TeamPrediction, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*store.TeamPrediction
	for _, p := range r.s.predictions {
		if p.Season == season && sameDay(p.PredictionDate, date) {
			out = append(out, cp(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PredictedConferenceRank != out[j].PredictedConferenceRank {
			return out[i].PredictedConferenceRank < out[j].PredictedConferenceRank
		}
		return out[i].TeamID < out[j].TeamID
	})
	return out, nil
}

func (r *Predictions) LatestForTeam(ctx context.Context, teamID int, season string) (*store.TeamPrediction, error) {
	hist, err := r.History(ctx, teamID, season, 1)
	if err != nil {
		return nil, err
	}
	if len(hist) == 0 {
		return nil, fmt.Errorf("no prediction for team %d in %s: %w", teamID, season, store.ErrNotFound)
	}
	return hist[0], nil
}

func (r *Predictions) History(_ context.Context, teamID int, season string, limit int) ([]*store.TeamPrediction, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*store.TeamPrediction
	for _, p := range r.s.predictions {
		if p.TeamID == teamID && p.Season == season {
			out = append(out, cp(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PredictionDate.After(out[j].PredictionDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Models mirrors repository.ModelRepository.
type Models struct{ s *Store }

func (r *Models) Active(context.Context) (*store.ModelMetadata, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, m := range r.s.models {
		if m.IsActive {
			return cp(m), nil
		}
	}
	return nil, fmt.Errorf("active model: %w", store.ErrNotFound)
}

func (r *Models) GetByVersion(_ context.Context, version string) (*store.ModelMetadata, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	for _, m := range r.s.models {
		if m.ModelVersion == version {
			return cp(m), nil
		}
	}
	return nil, fmt.Errorf("model not found: %s: %w", version, store.ErrNotFound)
}

func (r *Models) List(context.Context) ([]*store.ModelMetadata, error) {
	unlock, err := r.s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	out := make([]*store.ModelMetadata, 0, len(r.s.models))
	for _, m := range r.s.models {
		out = append(out, cp(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *Models) Activate(_ context.Context, m *store.ModelMetadata) error {
	unlock, err := r.s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if m.ModelType == "" {
		m.ModelType = "lstm"
	}
	for _, ex := range r.s.models {
		ex.IsActive = false
	}
	m.IsActive = true
	for id, ex := range r.s.models {
		if ex.ModelVersion == m.ModelVersion {
			m.ID = id
			r.s.models[id] = cp(m)
			return nil
		}
	}
	m.ID = r.s.id()
	r.s.models[m.ID] = cp(m)
	return nil
}
