package appdata

import (
	"fmt"
	"time"
)

// Granularity selects the bucket size for score series.
type Granularity string

const (
	// GranularityDaily buckets contributions per civil day.
	GranularityDaily Granularity = "daily"
	// GranularityWeekly buckets contributions per week number within the year.
	GranularityWeekly Granularity = "weekly"
	// GranularityMonthly buckets contributions per calendar month.
	GranularityMonthly Granularity = "monthly"
)

// ParseGranularity maps a raw query value onto a Granularity.
func ParseGranularity(rawInput string) (Granularity, error) {
	switch Granularity(rawInput) {
	case GranularityDaily, GranularityWeekly, GranularityMonthly:
		return Granularity(rawInput), nil
	case "":
		return GranularityDaily, nil
	default:
		return "", fmt.Errorf("appdata: unknown granularity %q", rawInput)
	}
}

// BucketOf returns the series bucket label for a civil day. Weeks are counted
// within the year from day-of-year, offset by the weekday of January 1st so
// that weeks break on Sundays.
func BucketOf(day DayKey, granularity Granularity, location *time.Location) string {
	switch granularity {
	case GranularityWeekly:
		start := day.Start(location)
		jan1 := time.Date(start.Year(), time.January, 1, 0, 0, 0, 0, location)
		week := (start.YearDay() - 1 + int(jan1.Weekday()))/7 + 1
		return fmt.Sprintf("%04d-W%02d", start.Year(), week)
	case GranularityMonthly:
		start := day.Start(location)
		return fmt.Sprintf("%04d-%02d", start.Year(), int(start.Month()))
	default:
		return day.String()
	}
}
