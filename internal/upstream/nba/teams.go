package nba

import "github.com/fortuna/courtcast/internal/upstream"

// teamDirectory is the static franchise list. Conference is left for the
// caller to derive.
var teamDirectory = []struct {
	id       int
	abbr     string
	nickname string
	city     string
	division string
}{
	{1610612737, "ATL", "Hawks", "Atlanta", "Southeast"},
	{1610612738, "BOS", "Celtics", "Boston", "Atlantic"},
	{1610612739, "CLE", "Cavaliers", "Cleveland", "Central"},
	{1610612740, "NOP", "Pelicans", "New Orleans", "Southwest"},
	{1610612741, "CHI", "Bulls", "Chicago", "Central"},
	{1610612742, "DAL", "Mavericks", "Dallas", "Southwest"},
	{1610612743, "DEN", "Nuggets", "Denver", "Northwest"},
	{1610612744, "GSW", "Warriors", "Golden State", "Pacific"},
	{1610612745, "HOU", "Rockets", "Houston", "Southwest"},
	{1610612746, "LAC", "Clippers", "Los Angeles", "Pacific"},
	{1610612747, "LAL", "Lakers", "Los Angeles", "Pacific"},
	{1610612748, "MIA", "Heat", "Miami", "Southeast"},
	{1610612749, "MIL", "Bucks", "Milwaukee", "Central"},
	{1610612750, "MIN", "Timberwolves", "Minnesota", "Northwest"},
	{1610612751, "BKN", "Nets", "Brooklyn", "Atlantic"},
	{1610612752, "NYK", "Knicks", "New York", "Atlantic"},
	{1610612753, "ORL", "Magic", "Orlando", "Southeast"},
	{1610612754, "IND", "Pacers", "Indiana", "Central"},
	{1610612755, "PHI", "76ers", "Philadelphia", "Atlantic"},
	{1610612756, "PHX", "Suns", "Phoenix", "Pacific"},
	{1610612757, "POR", "Trail Blazers", "Portland", "Northwest"},
	{1610612758, "SAC", "Kings", "Sacramento", "Pacific"},
	{1610612759, "SAS", "Spurs", "San Antonio", "Southwest"},
	{1610612760, "OKC", "Thunder", "Oklahoma City", "Northwest"},
	{1610612761, "TOR", "Raptors", "Toronto", "Atlantic"},
	{1610612762, "UTA", "Jazz", "Utah", "Northwest"},
	{1610612763, "MEM", "Grizzlies", "Memphis", "Southwest"},
	{1610612764, "WAS", "Wizards", "Washington", "Southeast"},
	{1610612765, "DET", "Pistons", "Detroit", "Central"},
	{1610612766, "CHA", "Hornets", "Charlotte", "Southeast"},
}

func staticTeams() []upstream.TeamRecord {
	out := make([]upstream.TeamRecord, 0, len(teamDirectory))
	for _, t := range teamDirectory {
		division := t.division
		out = append(out, upstream.TeamRecord{
			NBAID:        t.id,
			Abbreviation: t.abbr,
			Nickname:     t.nickname,
			City:         t.city,
			Division:     &division,
		})
	}
	return out
}
