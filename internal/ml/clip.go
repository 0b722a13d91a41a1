package ml

import "math"

// Forecast is one team's end-of-season projection in raw units.
type Forecast struct {
	Wins               float64 `json:"wins"`
	Losses             float64 `json:"losses"`
	WinPct             float64 `json:"win_pct"`
	ConferenceRank     float64 `json:"conference_rank"`
	PlayoffProbability float64 `json:"playoff_probability"`
	PPG                float64 `json:"ppg"`
	OPPG               float64 `json:"oppg"`
	Pace               float64 `json:"pace"`
	DefRating          float64 `json:"def_rating"`
}

// ForecastFromTargets reads a target row in the order wins, losses,
// win_pct, conference_rank, playoff, ppg, oppg, pace, def_rating.
func ForecastFromTargets(v []float64) Forecast {
	return Forecast{
		Wins:               v[0],
		Losses:             v[1],
		WinPct:             v[2],
		ConferenceRank:     v[3],
		PlayoffProbability: v[4],
		PPG:                v[5],
		OPPG:               v[6],
		Pace:               v[7],
		DefRating:          v[8],
	}
}

// Clip bounds every field to a plausible range. The conference rank is
// rounded to the nearest seed first.
func Clip(f Forecast) Forecast {
	return Forecast{
		Wins:               clamp(f.Wins, 0, 82),
		Losses:             clamp(f.Losses, 0, 82),
		WinPct:             clamp(f.WinPct, 0, 1),
		ConferenceRank:     clamp(math.Round(f.ConferenceRank), 1, 15),
		PlayoffProbability: clamp(f.PlayoffProbability, 0, 1),
		PPG:                clamp(f.PPG, 90, 140),
		OPPG:               clamp(f.OPPG, 90, 140),
		Pace:               clamp(f.Pace, 90, 110),
		DefRating:          clamp(f.DefRating, 95, 125),
	}
}

// ClampWins bounds a win count to a regular season.
func ClampWins(w float64) float64 {
	return clamp(w, 0, 82)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
