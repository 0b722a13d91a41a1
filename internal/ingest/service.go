// Package ingest synchronizes the relational store with the upstream
// provider. Every operation is idempotent: records are upserted on their
// natural keys, so re-running a step never duplicates rows.
package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/cache"
	"github.com/fortuna/courtcast/internal/logging"
	"github.com/fortuna/courtcast/internal/metrics"
	"github.com/fortuna/courtcast/internal/publisher"
	"github.com/fortuna/courtcast/internal/store"
	"github.com/fortuna/courtcast/internal/upstream"
)

// Ingestion types, as written to ingestion_logs.
const (
	TypeTeams              = "teams"
	TypeRoster             = "roster"
	TypeRosters            = "rosters"
	TypeStandings          = "standings"
	TypeTodayGames         = "today_games"
	TypeBoxScore           = "box_score"
	TypeRecentGames        = "recent_games"
	TypeSeasonGames        = "season_games"
	TypeIncrementalRefresh = "incremental_refresh"
	TypeFullIngestion      = "full_ingestion"
)

// TeamStore is the slice of the team repository ingestion needs.
type TeamStore interface {
	Upsert(ctx context.Context, t *store.Team) (int, error)
	GetAll(ctx context.Context) ([]*store.Team, error)
}

// PlayerStore is the slice of the player repository ingestion needs.
type PlayerStore interface {
	Upsert(ctx context.Context, p *store.Player) (int, error)
	EnsureExists(ctx context.Context, nbaID int, firstName, lastName string, teamID *int) (int, error)
}

// GameStore is the slice of the game repository ingestion needs.
type GameStore interface {
	Upsert(ctx context.Context, g *store.Game) (int, error)
	GetByNBAID(ctx context.Context, nbaGameID string) (*store.Game, error)
}

// StatsStore stores box-score lines.
type StatsStore interface {
	Upsert(ctx context.Context, s *store.PlayerGameStats) (int, error)
}

// StandingsStore stores standings snapshots.
type StandingsStore interface {
	Upsert(ctx context.Context, st *store.TeamStanding) (int, error)
	ListBySeason(ctx context.Context, season string) ([]*store.StandingView, error)
}

// LogStore records ingestion runs.
type LogStore interface {
	Start(ctx context.Context, ingestionType string) (*store.IngestionLog, error)
	Finish(ctx context.Context, id int, status string, records int, errMsg *string) error
}

// Stores groups the repositories the service writes to.
type Stores struct {
	Teams     TeamStore
	Players   PlayerStore
	Games     GameStore
	Stats     StatsStore
	Standings StandingsStore
	Logs      LogStore
}

// Options tunes the service.
type Options struct {
	// BoxScoreCap bounds the box scores fetched by one recent-games run.
	BoxScoreCap int
	// RecentDays is the look-back of the incremental refresh.
	RecentDays int
	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Service is the ingestion service.
type Service struct {
	provider upstream.Provider
	stores   Stores
	cache    cache.Cache
	pub      publisher.Publisher
	opts     Options
	logger   zerolog.Logger

	teamMu     sync.RWMutex
	teamIDs    map[int]int      // provider id -> store id
	teamMisses map[int]struct{} // provider ids still unknown after a reload, per operation
	players    sync.Map         // provider id -> store id
}

// NewService wires the service. cache and pub may be nil.
func NewService(provider upstream.Provider, stores Stores, c cache.Cache, pub publisher.Publisher, opts Options) *Service {
	if opts.BoxScoreCap <= 0 {
		opts.BoxScoreCap = 20
	}
	if opts.RecentDays <= 0 {
		opts.RecentDays = 7
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if c == nil {
		c = nopCache{}
	}
	if pub == nil {
		pub = publisher.Nop{}
	}
	return &Service{
		provider: provider,
		stores:   stores,
		cache:    c,
		pub:      pub,
		opts:     opts,
		logger:   logging.Component("ingest"),
	}
}

// teamID resolves a provider team id to the stored id. An unknown id
// triggers one reload of the directory; if it is still unknown it is
// reported missing without another reload until the next operation.
func (s *Service) teamID(ctx context.Context, nbaID int) (int, error) {
	s.teamMu.RLock()
	id, ok := s.teamIDs[nbaID]
	_, missed := s.teamMisses[nbaID]
	s.teamMu.RUnlock()
	if ok {
		return id, nil
	}
	if missed {
		return 0, apperr.MissingRef("team", nbaID)
	}

	if err := s.loadTeams(ctx); err != nil {
		return 0, err
	}

	s.teamMu.Lock()
	id, ok = s.teamIDs[nbaID]
	if !ok {
		if s.teamMisses == nil {
			s.teamMisses = map[int]struct{}{}
		}
		s.teamMisses[nbaID] = struct{}{}
	}
	s.teamMu.Unlock()
	if !ok {
		return 0, apperr.MissingRef("team", nbaID)
	}
	return id, nil
}

func (s *Service) loadTeams(ctx context.Context) error {
	teams, err := s.stores.Teams.GetAll(ctx)
	if err != nil {
		return err
	}
	ids := make(map[int]int, len(teams))
	for _, t := range teams {
		ids[t.NBAID] = t.ID
	}
	s.teamMu.Lock()
	s.teamIDs = ids
	s.teamMu.Unlock()
	return nil
}

func (s *Service) rememberTeam(nbaID, id int) {
	s.teamMu.Lock()
	if s.teamIDs == nil {
		s.teamIDs = map[int]int{}
	}
	s.teamIDs[nbaID] = id
	delete(s.teamMisses, nbaID)
	s.teamMu.Unlock()
}

func (s *Service) forgetTeamMisses() {
	s.teamMu.Lock()
	s.teamMisses = nil
	s.teamMu.Unlock()
}

// playerID resolves a provider player id, creating a minimal player row
// when the player has never been seen.
func (s *Service) playerID(ctx context.Context, line upstream.BoxScoreLine, teamID int) (int, error) {
	if id, ok := s.players.Load(line.PlayerID); ok {
		return id.(int), nil
	}
	id, err := s.stores.Players.EnsureExists(ctx, line.PlayerID, line.FirstName, line.LastName, &teamID)
	if err != nil {
		return 0, err
	}
	s.players.Store(line.PlayerID, id)
	return id, nil
}

// logged wraps an operation in an ingestion log entry and records metrics.
func (s *Service) logged(ctx context.Context, kind string, fn func(ctx context.Context, res *Result) error) (Result, error) {
	res := Result{Type: kind}
	start := time.Now()

	entry, err := s.stores.Logs.Start(ctx, kind)
	if err != nil {
		return res, err
	}

	s.forgetTeamMisses()
	runErr := fn(ctx, &res)

	status := store.IngestionSuccess
	var errMsg *string
	if runErr != nil {
		status = store.IngestionFailed
		msg := runErr.Error()
		errMsg = &msg
	}

	// The run context may already be canceled; the log still has to close.
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.stores.Logs.Finish(finishCtx, entry.ID, status, res.Written, errMsg); err != nil {
		s.logger.Error().Err(err).Int("log_id", entry.ID).Msg("failed to close ingestion log")
	}

	metrics.RecordIngestion(kind, status, time.Since(start).Seconds())
	metrics.RecordRecords(kind, res.Written, res.Skipped, res.Failed)

	evt := s.logger.Info()
	if runErr != nil {
		evt = s.logger.Error().Err(runErr)
	}
	evt.Str("type", kind).
		Int("written", res.Written).
		Int("skipped", res.Skipped).
		Int("failed", res.Failed).
		Dur("duration", time.Since(start)).
		Msg("ingestion finished")

	s.publish(finishCtx, publisher.Event{
		Type: publisher.EventIngestionCompleted,
		Payload: publisher.IngestionCompleted{
			IngestionType: kind,
			Status:        status,
			Records:       res.Written,
		},
	})

	return res, runErr
}

func (s *Service) publish(ctx context.Context, ev publisher.Event) {
	if err := s.pub.Publish(ctx, ev); err != nil {
		metrics.RecordError("publisher", "publish")
		s.logger.Warn().Err(err).Str("event", ev.Type).Msg("publish failed")
	}
}

func (s *Service) today() time.Time {
	now := s.opts.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func isNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

type nopCache struct{}

func (nopCache) Get(context.Context, string, interface{}) bool { return false }

func (nopCache) Set(context.Context, string, interface{}, time.Duration) {}

func (nopCache) Delete(context.Context, ...string) int { return 0 }

func (nopCache) DeletePattern(context.Context, string) int { return 0 }
