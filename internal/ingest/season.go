package ingest

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// SeasonFor returns the "YYYY-YY" season a calendar date belongs to.
// Seasons start in October.
func SeasonFor(d time.Time) string {
	start := d.Year()
	if d.Month() < time.October {
		start--
	}
	return fmt.Sprintf("%d-%02d", start, (start+1)%100)
}

// SeasonStartYear parses the first year of a "YYYY-YY" season.
func SeasonStartYear(season string) (int, error) {
	if len(season) != 7 || season[4] != '-' {
		return 0, errors.Newf("invalid season %q", season)
	}
	year, err := strconv.Atoi(season[:4])
	if err != nil {
		return 0, errors.Wrapf(err, "invalid season %q", season)
	}
	return year, nil
}

// seasonWindow is the calendar range searched for a season's games:
// October 1 of the start year through June 30 of the next.
func seasonWindow(season string) (time.Time, time.Time, error) {
	year, err := SeasonStartYear(season)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from := time.Date(year, time.October, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year+1, time.June, 30, 0, 0, 0, 0, time.UTC)
	return from, to, nil
}
