package utils

import (
	"time"
)

var marketLocation = loadMarketLocation()

func loadMarketLocation() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		return time.UTC
	}
	return loc
}

// TimeNowET returns the current time in the US equities market timezone.
func TimeNowET() time.Time {
	return time.Now().In(marketLocation)
}

// StartOfDayET returns midnight (America/New_York) of the day containing t.
func StartOfDayET(t time.Time) time.Time {
	et := t.In(marketLocation)
	return time.Date(et.Year(), et.Month(), et.Day(), 0, 0, 0, 0, marketLocation)
}
