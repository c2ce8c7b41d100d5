// Package timeutil provides calendar helpers pinned to the Brasília timezone (UTC-3).
// Day boundaries matter for the journey: distinct answer days, greetings and the
// "as of today" date used to compute a child's age.
package timeutil

import (
	"time"
)

// BrasiliaTZ is America/Sao_Paulo. Brazil abolished DST in 2019, so a fixed
// zone is exact and avoids depending on tzdata in slim containers.
var BrasiliaTZ = time.FixedZone("America/Sao_Paulo", -3*60*60)

// Common layouts.
const (
	// FormatDate is the ISO date layout used for birthdates and day keys.
	FormatDate = "2006-01-02"
	// FormatBrazilianDate is DD/MM/YYYY, accepted on input from legacy profile records.
	FormatBrazilianDate = "02/01/2006"
)

// Clock abstracts "now" so handlers can be tested at a fixed instant.
type Clock func() time.Time

// SystemClock returns the current time.
func SystemClock() time.Time { return time.Now() }

// ToBrasilia converts a time to the Brasília timezone.
func ToBrasilia(t time.Time) time.Time {
	return t.In(BrasiliaTZ)
}

// Date creates midnight of the given calendar date in Brasília.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, BrasiliaTZ)
}

// DateKey returns the YYYY-MM-DD key of t's calendar day in Brasília.
func DateKey(t time.Time) string {
	return ToBrasilia(t).Format(FormatDate)
}

// ParseDate parses a calendar date given either as YYYY-MM-DD, DD/MM/YYYY or RFC3339.
// The result is midnight in Brasília. For RFC3339 only the date as written
// counts: "2025-01-05T00:00:00Z" is January 5th, whatever its offset.
func ParseDate(value string) (time.Time, error) {
	for _, layout := range []string{FormatDate, FormatBrazilianDate} {
		if t, err := time.ParseInLocation(layout, value, BrasiliaTZ); err == nil {
			return t, nil
		}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := t.Date()
	return Date(y, m, d), nil
}

// DayPeriod is a coarse part of the day used for greetings.
type DayPeriod string

const (
	Morning   DayPeriod = "morning"
	Afternoon DayPeriod = "afternoon"
	Evening   DayPeriod = "evening"
)

// PeriodOf maps a wall-clock hour to a DayPeriod: [5,12) morning, [12,18) afternoon,
// anything else evening.
func PeriodOf(hour int) DayPeriod {
	switch {
	case hour >= 5 && hour < 12:
		return Morning
	case hour >= 12 && hour < 18:
		return Afternoon
	default:
		return Evening
	}
}
