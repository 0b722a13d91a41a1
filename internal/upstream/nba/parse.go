package nba

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/courtcast/internal/apperr"
	"github.com/fortuna/courtcast/internal/upstream"
)

// Date layouts used by the stats endpoints. Month names parse
// case-insensitively, so "OCT 07, 1996" matches too.
const (
	layoutLongDate = "Jan 02, 2006"
	layoutISODate  = "2006-01-02"
	layoutISOTime  = "2006-01-02T15:04:05"
)

// Each parser returns whole-call failures as err and per-row drift as
// drifts; drifted rows are left out of the result.

func parseRoster(body []byte) ([]upstream.RosterRecord, []error, error) {
	resp, err := decodeStats(body)
	if err != nil {
		return nil, nil, err
	}
	t, err := resp.table("CommonTeamRoster")
	if err != nil {
		return nil, nil, err
	}
	if err := t.require("PLAYER_ID", "PLAYER"); err != nil {
		return nil, nil, err
	}

	var out []upstream.RosterRecord
	drifts := t.each(func(r row) error {
		id, err := r.int("PLAYER_ID")
		if err != nil {
			return err
		}
		name, err := r.string("PLAYER")
		if err != nil {
			return err
		}
		weight, err := r.optInt("WEIGHT")
		if err != nil {
			return err
		}

		rec := upstream.RosterRecord{
			PlayerID: id,
			Jersey:   r.optString("NUM"),
			Position: r.optString("POSITION"),
			Height:   r.optString("HEIGHT"),
			Weight:   weight,
			Country:  r.optString("COUNTRY"),
			YearsPro: parseExperience(r.optString("EXP")),
		}
		rec.FirstName, rec.LastName = splitName(name)
		if bd, err := r.date("BIRTH_DATE", layoutLongDate, layoutISOTime, layoutISODate); err == nil {
			rec.BirthDate = &bd
		}
		out = append(out, rec)
		return nil
	})
	return out, drifts, nil
}

// parseExperience maps the roster EXP column: "R" is a rookie, anything
// unparseable counts as zero.
func parseExperience(exp *string) int {
	if exp == nil || strings.EqualFold(*exp, "R") {
		return 0
	}
	n, err := strconv.Atoi(*exp)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// splitName splits "First Last Jr." at the first space.
func splitName(full string) (string, string) {
	full = strings.TrimSpace(full)
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i], strings.TrimSpace(full[i+1:])
	}
	return full, ""
}

func parseStandings(body []byte) ([]upstream.StandingRecord, []error, error) {
	resp, err := decodeStats(body)
	if err != nil {
		return nil, nil, err
	}
	t, err := resp.table("Standings")
	if err != nil {
		return nil, nil, err
	}
	if err := t.require("TeamID", "WINS", "LOSSES"); err != nil {
		return nil, nil, err
	}

	var out []upstream.StandingRecord
	drifts := t.each(func(r row) error {
		var rec upstream.StandingRecord
		var err error
		if rec.TeamID, err = r.int("TeamID"); err != nil {
			return err
		}
		if rec.Wins, err = r.int("WINS"); err != nil {
			return err
		}
		if rec.Losses, err = r.int("LOSSES"); err != nil {
			return err
		}
		if rec.WinPct, err = r.floatOr("WinPCT", 0); err != nil {
			return err
		}
		if rec.PlayoffRank, err = r.optInt("PlayoffRank"); err != nil {
			return err
		}
		if rec.DivisionRank, err = r.optInt("DivisionRank"); err != nil {
			return err
		}
		if rec.ConferenceGB, err = r.optFloat("ConferenceGamesBack"); err != nil {
			return err
		}
		rec.CurrentStreak = r.optString("strCurrentStreak")
		rec.Last10 = r.optString("L10")
		rec.Home = r.optString("HOME")
		rec.Road = r.optString("ROAD")
		rec.ConferenceLabel = r.optString("Conference")
		out = append(out, rec)
		return nil
	})
	return out, drifts, nil
}

func parseGameFinder(body []byte) ([]upstream.GameFinderRow, []error, error) {
	resp, err := decodeStats(body)
	if err != nil {
		return nil, nil, err
	}
	t, err := resp.table("LeagueGameFinderResults")
	if err != nil {
		return nil, nil, err
	}
	if err := t.require("GAME_ID", "TEAM_ID", "MATCHUP"); err != nil {
		return nil, nil, err
	}

	var out []upstream.GameFinderRow
	drifts := t.each(func(r row) error {
		var rec upstream.GameFinderRow
		var err error
		if rec.GameID, err = r.string("GAME_ID"); err != nil {
			return err
		}
		if rec.TeamID, err = r.int("TEAM_ID"); err != nil {
			return err
		}
		if rec.Matchup, err = r.string("MATCHUP"); err != nil {
			return err
		}
		if rec.GameDate, err = r.date("GAME_DATE", layoutISODate, layoutLongDate); err != nil {
			return err
		}
		if rec.PTS, err = r.optInt("PTS"); err != nil {
			return err
		}
		rec.WL = r.optString("WL")
		out = append(out, rec)
		return nil
	})
	return out, drifts, nil
}

func parseTeamStats(body []byte, setName string) (map[int]*upstream.TeamStatsRecord, []error, error) {
	resp, err := decodeStats(body)
	if err != nil {
		return nil, nil, err
	}
	t, err := resp.table(setName)
	if err != nil {
		return nil, nil, err
	}
	if err := t.require("TEAM_ID"); err != nil {
		return nil, nil, err
	}

	out := make(map[int]*upstream.TeamStatsRecord)
	drifts := t.each(func(r row) error {
		id, err := r.int("TEAM_ID")
		if err != nil {
			return err
		}
		rec := &upstream.TeamStatsRecord{TeamID: id}
		if rec.GP, err = r.intOr("GP", 0); err != nil {
			return err
		}
		fields := []struct {
			col string
			dst **float64
		}{
			{"PTS", &rec.PTS}, {"FG_PCT", &rec.FGPct}, {"FG3_PCT", &rec.FG3Pct}, {"FT_PCT", &rec.FTPct},
			{"OREB", &rec.OREB}, {"DREB", &rec.DREB}, {"AST", &rec.AST}, {"TOV", &rec.TOV},
			{"STL", &rec.STL}, {"BLK", &rec.BLK}, {"OPP_PTS", &rec.OppPTS},
			{"PACE", &rec.Pace}, {"OFF_RATING", &rec.OffRating}, {"DEF_RATING", &rec.DefRating},
		}
		for _, f := range fields {
			if *f.dst, err = r.optFloat(f.col); err != nil {
				return err
			}
		}
		out[id] = rec
		return nil
	})
	return out, drifts, nil
}

// mergeAdvanced copies the ratings from the advanced table onto the base rows.
func mergeAdvanced(base, adv map[int]*upstream.TeamStatsRecord) []upstream.TeamStatsRecord {
	out := make([]upstream.TeamStatsRecord, 0, len(base))
	for id, rec := range base {
		if a, ok := adv[id]; ok {
			if rec.Pace == nil {
				rec.Pace = a.Pace
			}
			if rec.OffRating == nil {
				rec.OffRating = a.OffRating
			}
			if rec.DefRating == nil {
				rec.DefRating = a.DefRating
			}
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TeamID < out[j].TeamID })
	return out
}

func parseGameLog(body []byte) ([]upstream.GameLogRecord, []error, error) {
	resp, err := decodeStats(body)
	if err != nil {
		return nil, nil, err
	}
	t, err := resp.table("TeamGameLog")
	if err != nil {
		return nil, nil, err
	}
	if err := t.require("Game_ID", "GAME_DATE", "WL"); err != nil {
		return nil, nil, err
	}

	var out []upstream.GameLogRecord
	drifts := t.each(func(r row) error {
		var rec upstream.GameLogRecord
		var err error
		if rec.GameID, err = r.string("Game_ID"); err != nil {
			return err
		}
		if rec.GameDate, err = r.date("GAME_DATE", layoutLongDate, layoutISODate); err != nil {
			return err
		}
		if rec.WL, err = r.string("WL"); err != nil {
			return err
		}
		if m := r.optString("MATCHUP"); m != nil {
			rec.Matchup = *m
		}
		ints := []struct {
			col string
			dst *int
		}{
			{"PTS", &rec.PTS}, {"OREB", &rec.OREB}, {"DREB", &rec.DREB}, {"REB", &rec.REB},
			{"AST", &rec.AST}, {"STL", &rec.STL}, {"BLK", &rec.BLK}, {"TOV", &rec.TOV},
			{"PLUS_MINUS", &rec.PlusMinus},
		}
		for _, f := range ints {
			if *f.dst, err = r.intOr(f.col, 0); err != nil {
				return err
			}
		}
		floats := []struct {
			col string
			dst *float64
		}{
			{"FG_PCT", &rec.FGPct}, {"FG3_PCT", &rec.FG3Pct}, {"FT_PCT", &rec.FTPct},
		}
		for _, f := range floats {
			if *f.dst, err = r.floatOr(f.col, 0); err != nil {
				return err
			}
		}
		out = append(out, rec)
		return nil
	})
	return out, drifts, nil
}

// Live data payloads.

type liveScoreboard struct {
	Scoreboard *struct {
		GameDate string     `json:"gameDate"`
		Games    []liveGame `json:"games"`
	} `json:"scoreboard"`
}

type liveGame struct {
	GameID     string   `json:"gameId"`
	GameStatus int      `json:"gameStatus"`
	Period     *int     `json:"period"`
	GameClock  string   `json:"gameClock"`
	HomeTeam   liveTeam `json:"homeTeam"`
	AwayTeam   liveTeam `json:"awayTeam"`
}

type liveTeam struct {
	TeamID  int          `json:"teamId"`
	Score   *int         `json:"score"`
	Periods []livePeriod `json:"periods"`
	Players []livePlayer `json:"players"`
}

type livePeriod struct {
	Period int `json:"period"`
	Score  int `json:"score"`
}

type livePlayer struct {
	PersonID   int    `json:"personId"`
	FirstName  string `json:"firstName"`
	FamilyName string `json:"familyName"`
	Statistics *struct {
		Minutes         string   `json:"minutes"`
		Points          int      `json:"points"`
		FieldGoalsMade  int      `json:"fieldGoalsMade"`
		FieldGoalsAtt   int      `json:"fieldGoalsAttempted"`
		ThreesMade      int      `json:"threePointersMade"`
		ThreesAtt       int      `json:"threePointersAttempted"`
		FreeThrowsMade  int      `json:"freeThrowsMade"`
		FreeThrowsAtt   int      `json:"freeThrowsAttempted"`
		ReboundsOff     int      `json:"reboundsOffensive"`
		ReboundsDef     int      `json:"reboundsDefensive"`
		ReboundsTotal   int      `json:"reboundsTotal"`
		Assists         int      `json:"assists"`
		Steals          int      `json:"steals"`
		Blocks          int      `json:"blocks"`
		Turnovers       int      `json:"turnovers"`
		FoulsPersonal   int      `json:"foulsPersonal"`
		PlusMinusPoints *float64 `json:"plusMinusPoints"`
	} `json:"statistics"`
}

type liveBoxScore struct {
	Game *struct {
		GameID   string   `json:"gameId"`
		HomeTeam liveTeam `json:"homeTeam"`
		AwayTeam liveTeam `json:"awayTeam"`
	} `json:"game"`
}

func parseScoreboard(body []byte) (*upstream.Scoreboard, []error, error) {
	var payload liveScoreboard
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, errors.Mark(errors.Wrap(err, "decoding scoreboard"), apperr.ErrUpstreamSchemaDrift)
	}
	if payload.Scoreboard == nil {
		return nil, nil, apperr.SchemaDrift("scoreboard", "scoreboard")
	}

	sb := &upstream.Scoreboard{}
	if d, err := time.Parse(layoutISODate, payload.Scoreboard.GameDate); err == nil {
		sb.GameDate = d
	}

	var drifts []error
	for _, g := range payload.Scoreboard.Games {
		switch {
		case g.GameID == "":
			drifts = append(drifts, apperr.SchemaDrift("scoreboard game", "gameId"))
			continue
		case g.HomeTeam.TeamID == 0 || g.AwayTeam.TeamID == 0:
			drifts = append(drifts, apperr.SchemaDrift("scoreboard game "+g.GameID, "teamId"))
			continue
		}
		sb.Games = append(sb.Games, upstream.ScoreboardGame{
			GameID:       g.GameID,
			StatusCode:   g.GameStatus,
			Period:       g.Period,
			Clock:        FormatClock(g.GameClock),
			HomeTeamID:   g.HomeTeam.TeamID,
			AwayTeamID:   g.AwayTeam.TeamID,
			HomeScore:    derefInt(g.HomeTeam.Score),
			AwayScore:    derefInt(g.AwayTeam.Score),
			HomeQuarters: periodScores(g.HomeTeam.Periods),
			AwayQuarters: periodScores(g.AwayTeam.Periods),
		})
	}
	return sb, drifts, nil
}

func parseBoxScore(body []byte) ([]upstream.BoxScoreLine, []error, error) {
	var payload liveBoxScore
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, nil, errors.Mark(errors.Wrap(err, "decoding box score"), apperr.ErrUpstreamSchemaDrift)
	}
	if payload.Game == nil {
		return nil, nil, apperr.SchemaDrift("boxscore", "game")
	}

	var out []upstream.BoxScoreLine
	var drifts []error
	for _, team := range []liveTeam{payload.Game.HomeTeam, payload.Game.AwayTeam} {
		for _, p := range team.Players {
			if p.PersonID == 0 || p.Statistics == nil {
				drifts = append(drifts, apperr.SchemaDrift("boxscore player", "personId/statistics"))
				continue
			}
			s := p.Statistics
			line := upstream.BoxScoreLine{
				PlayerID:  p.PersonID,
				TeamID:    team.TeamID,
				FirstName: p.FirstName,
				LastName:  p.FamilyName,
				Minutes:   ParseMinutes(s.Minutes),
				Points:    s.Points,
				FGM:       s.FieldGoalsMade,
				FGA:       s.FieldGoalsAtt,
				FG3M:      s.ThreesMade,
				FG3A:      s.ThreesAtt,
				FTM:       s.FreeThrowsMade,
				FTA:       s.FreeThrowsAtt,
				OREB:      s.ReboundsOff,
				DREB:      s.ReboundsDef,
				REB:       s.ReboundsTotal,
				AST:       s.Assists,
				STL:       s.Steals,
				BLK:       s.Blocks,
				TOV:       s.Turnovers,
				PF:        s.FoulsPersonal,
			}
			if s.PlusMinusPoints != nil {
				pm := int(*s.PlusMinusPoints)
				line.PlusMinus = &pm
			}
			out = append(out, line)
		}
	}
	return out, drifts, nil
}

// FormatClock renders an ISO-8601 game clock ("PT11M58.00S") as "11:58".
// Empty or malformed clocks render as "".
func FormatClock(iso string) string {
	d, ok := parseISODuration(iso)
	if !ok {
		return ""
	}
	total := int(d.Seconds())
	return twoDigits(total/60) + ":" + twoDigits(total%60)
}

// ParseMinutes converts an ISO-8601 duration or "MM:SS" into fractional
// minutes. Empty input yields nil.
func ParseMinutes(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if d, ok := parseISODuration(s); ok {
		m := d.Minutes()
		return &m
	}
	if mm, ss, found := strings.Cut(s, ":"); found {
		m, err1 := strconv.ParseFloat(mm, 64)
		sec, err2 := strconv.ParseFloat(ss, 64)
		if err1 == nil && err2 == nil {
			v := m + sec/60
			return &v
		}
	}
	return nil
}

func parseISODuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "PT") || len(s) < 3 {
		return 0, false
	}
	d, err := time.ParseDuration(strings.ToLower(s[2:]))
	if err != nil {
		return 0, false
	}
	return d, true
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func periodScores(periods []livePeriod) []int {
	if len(periods) == 0 {
		return nil
	}
	out := make([]int, len(periods))
	for i, p := range periods {
		out[i] = p.Score
	}
	return out
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
