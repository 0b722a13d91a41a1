package history

import (
	"github.com/fortuna/courtcast/internal/store"
)

// FeatureNames labels the per-window features, in column order.
var FeatureNames = []string{
	"games_played", "window_wins", "window_losses", "running_win_pct",
	"ppg", "fg_pct", "fg3_pct", "ft_pct",
	"ast", "reb", "tov", "stl", "blk", "oreb", "dreb", "plus_minus",
	"pace", "off_rating", "def_rating", "net_rating",
}

// TargetNames labels the end-of-season targets, in column order.
var TargetNames = []string{
	"wins", "losses", "win_pct", "conference_rank", "playoff",
	"ppg", "oppg", "pace", "def_rating",
}

// Target column indexes used outside this package.
const (
	TargetWins = iota
	TargetLosses
	TargetWinPct
	TargetConferenceRank
	TargetPlayoff
	TargetPPG
	TargetOPPG
	TargetPace
	TargetDefRating
)

// NumFeatures and NumTargets are the widths of one window and one target row.
const (
	NumFeatures = 20
	NumTargets  = 9
)

// SequenceConfig shapes a sequence: SequenceLength windows of StepSize games.
type SequenceConfig struct {
	SequenceLength int
	StepSize       int
}

// DefaultSequenceConfig is ten windows of five games.
var DefaultSequenceConfig = SequenceConfig{SequenceLength: 10, StepSize: 5}

// MinGames is the number of games a full sequence needs.
func (c SequenceConfig) MinGames() int {
	return c.SequenceLength * c.StepSize
}

// BuildSequence turns chronologically ordered game logs into a
// SequenceLength x NumFeatures array. It reports false when there are
// fewer than MinGames logs.
func BuildSequence(logs []*store.TeamGameLog, cfg SequenceConfig) ([][]float64, bool) {
	if cfg.SequenceLength <= 0 || cfg.StepSize <= 0 || len(logs) < cfg.MinGames() {
		return nil, false
	}

	seq := make([][]float64, cfg.SequenceLength)
	runningWins := 0
	for i := 0; i < cfg.SequenceLength; i++ {
		start := i * cfg.StepSize
		end := start + cfg.StepSize
		window := logs[start:end]

		var w, l int
		var sums [12]float64
		for _, g := range window {
			switch g.WL {
			case "W":
				w++
			case "L":
				l++
			}
			sums[0] += float64(g.PTS)
			sums[1] += g.FGPct
			sums[2] += g.FG3Pct
			sums[3] += g.FTPct
			sums[4] += float64(g.AST)
			sums[5] += float64(g.REB)
			sums[6] += float64(g.TOV)
			sums[7] += float64(g.STL)
			sums[8] += float64(g.BLK)
			sums[9] += float64(g.OREB)
			sums[10] += float64(g.DREB)
			sums[11] += float64(g.PlusMinus)
		}
		runningWins += w

		n := float64(len(window))
		row := make([]float64, 0, NumFeatures)
		row = append(row,
			float64(end),
			float64(w),
			float64(l),
			float64(runningWins)/float64(end),
			sums[0]/n,
			sums[1]/n*100,
			sums[2]/n*100,
			sums[3]/n*100,
		)
		for _, s := range sums[4:] {
			row = append(row, s/n)
		}
		// Pace and ratings are not in the game log.
		row = append(row, 100, 110, 110, 0)
		seq[i] = row
	}
	return seq, true
}

// Targets extracts the nine end-of-season targets, substituting league
// defaults where a value is missing.
func Targets(s *store.TeamSeasonStats) []float64 {
	playoff := 0.0
	if s.PlayoffSeed != nil && *s.PlayoffSeed <= 10 {
		playoff = 1
	}
	rank := 15.0
	if s.ConferenceRank != nil && *s.ConferenceRank > 0 {
		rank = float64(*s.ConferenceRank)
	}
	return []float64{
		float64(s.Wins),
		float64(s.Losses),
		s.WinPct,
		rank,
		playoff,
		orDefault(s.PPG, 110),
		orDefault(s.OPPG, 110),
		orDefault(s.Pace, 100),
		orDefault(s.DefRating, 110),
	}
}

func orDefault(v *float64, def float64) float64 {
	if v == nil || *v == 0 {
		return def
	}
	return *v
}
