// Package scoring turns a record collection and population ledger into
// per-department competition scores, time series, and individual totals.
// Everything here is pure over its inputs.
package scoring

import (
	"fmt"
	"sort"
	"time"

	"github.com/lamplight-apps/chapterboard/internal/appdata"
)

// DefaultDailyCap is the per-user, per-day chapter contribution ceiling.
// Admin bulk records are exempt.
const DefaultDailyCap = 4

// Mode selects between per-capita and raw aggregation.
type Mode string

const (
	// ModeAverage divides each contribution by the effective department
	// population at the contribution's day.
	ModeAverage Mode = "average"
	// ModeTotal sums capped chapter counts without per-capita division.
	ModeTotal Mode = "total"
)

// ParseMode maps a raw query value onto a Mode.
func ParseMode(rawInput string) (Mode, error) {
	switch Mode(rawInput) {
	case ModeAverage, ModeTotal:
		return Mode(rawInput), nil
	case "":
		return ModeAverage, nil
	default:
		return "", fmt.Errorf("scoring: unknown mode %q", rawInput)
	}
}

// PopulationResolver answers effective-population lookups; satisfied by
// population.Ledger.
type PopulationResolver interface {
	EffectivePopulation(day appdata.DayKey, departmentID string) int
}

// Input bundles everything a scoring pass reads.
type Input struct {
	Records     []appdata.ReadingRecord
	Departments []appdata.Department
	Populations PopulationResolver
	Window      appdata.Window
	Location    *time.Location
	DailyCap    int
}

func (in Input) dailyCap() int {
	if in.DailyCap > 0 {
		return in.DailyCap
	}
	return DefaultDailyCap
}

func (in Input) location() *time.Location {
	if in.Location != nil {
		return in.Location
	}
	return time.UTC
}

// contribution is one scoring unit after per-day grouping and capping:
// either a capped (user, day) group or a single uncapped admin record.
type contribution struct {
	departmentID string
	day          appdata.DayKey
	chapters     int
}

// contributions applies window filtering, per-(user, day) grouping, and the
// daily cap. Grouping happens at record-day granularity regardless of any
// later bucketing, so capping never leaks across bucket boundaries.
func contributions(in Input) []contribution {
	location := in.location()
	dailyCap := in.dailyCap()

	type groupKey struct {
		departmentID string
		userID       string
		day          appdata.DayKey
	}
	groups := make(map[groupKey]int)
	var groupOrder []groupKey
	var adminContribs []contribution

	for _, record := range in.Records {
		day := appdata.DayOf(record.Date, location)
		if !in.Window.Contains(day) {
			continue
		}
		if record.IsAdminRecord {
			adminContribs = append(adminContribs, contribution{
				departmentID: record.DepartmentID,
				day:          day,
				chapters:     record.Chapters,
			})
			continue
		}
		key := groupKey{departmentID: record.DepartmentID, userID: record.UserID, day: day}
		if _, seen := groups[key]; !seen {
			groupOrder = append(groupOrder, key)
		}
		groups[key] += record.Chapters
	}

	result := make([]contribution, 0, len(groupOrder)+len(adminContribs))
	for _, key := range groupOrder {
		chapters := groups[key]
		if chapters > dailyCap {
			chapters = dailyCap
		}
		result = append(result, contribution{
			departmentID: key.departmentID,
			day:          key.day,
			chapters:     chapters,
		})
	}
	return append(result, adminContribs...)
}

func (c contribution) value(in Input, mode Mode) float64 {
	if mode == ModeTotal {
		return float64(c.chapters)
	}
	population := in.Populations.EffectivePopulation(c.day, c.departmentID)
	if population <= 0 {
		population = 1
	}
	return float64(c.chapters) / float64(population)
}

// Standing is one ranked department.
type Standing struct {
	DepartmentID string  `json:"departmentId"`
	Name         string  `json:"name"`
	Color        string  `json:"color,omitempty"`
	Emoji        string  `json:"emoji,omitempty"`
	Score        float64 `json:"score"`
	Rank         int     `json:"rank"`
}

// Standings computes the department ranking for the competition window.
// Records attributed to departments no longer in the directory are ignored
// here (orphaned attribution is a display-only concern). Ties break on
// ascending department id so the ordering is deterministic.
func Standings(in Input, mode Mode) []Standing {
	totals := make(map[string]float64, len(in.Departments))
	for _, contrib := range contributions(in) {
		totals[contrib.departmentID] += contrib.value(in, mode)
	}

	standings := make([]Standing, 0, len(in.Departments))
	for _, department := range in.Departments {
		standings = append(standings, Standing{
			DepartmentID: department.ID,
			Name:         department.Name,
			Color:        department.Color,
			Emoji:        department.Emoji,
			Score:        totals[department.ID],
		})
	}

	sort.SliceStable(standings, func(i, j int) bool {
		if standings[i].Score != standings[j].Score {
			return standings[i].Score > standings[j].Score
		}
		return standings[i].DepartmentID < standings[j].DepartmentID
	})
	for index := range standings {
		standings[index].Rank = index + 1
	}
	return standings
}

// SeriesPoint carries per-department scores for one time bucket.
type SeriesPoint struct {
	Bucket string             `json:"bucket"`
	Scores map[string]float64 `json:"scores"`
}

// Series buckets contributions at the requested granularity. Each grouped
// contribution lands in the bucket of its representative day with capping and
// normalization already applied at record-day granularity.
func Series(in Input, mode Mode, granularity appdata.Granularity) []SeriesPoint {
	location := in.location()
	buckets := make(map[string]map[string]float64)

	for _, contrib := range contributions(in) {
		bucket := appdata.BucketOf(contrib.day, granularity, location)
		if buckets[bucket] == nil {
			buckets[bucket] = make(map[string]float64)
		}
		buckets[bucket][contrib.departmentID] += contrib.value(in, mode)
	}

	labels := make([]string, 0, len(buckets))
	for label := range buckets {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	points := make([]SeriesPoint, 0, len(labels))
	for _, label := range labels {
		points = append(points, SeriesPoint{Bucket: label, Scores: buckets[label]})
	}
	return points
}

// IndividualTotal is one row of the admin-only individual leaderboard.
type IndividualTotal struct {
	UserID       string `json:"userId"`
	UserName     string `json:"userName,omitempty"`
	DepartmentID string `json:"departmentId,omitempty"`
	Chapters     int    `json:"chapters"`
	Rank         int    `json:"rank"`
}

// IndividualTotals sums raw uncapped chapters per user inside the window.
// The department column reflects the user's current profile assignment, not
// per-record attribution; the display name prefers the live profile too.
func IndividualTotals(in Input, profiles []appdata.UserProfile) []IndividualTotal {
	location := in.location()

	byUID := make(map[string]appdata.UserProfile, len(profiles))
	for _, profile := range profiles {
		byUID[profile.UID] = profile
	}

	totals := make(map[string]*IndividualTotal)
	var order []string
	for _, record := range in.Records {
		if record.IsAdminRecord {
			continue
		}
		day := appdata.DayOf(record.Date, location)
		if !in.Window.Contains(day) {
			continue
		}
		row, seen := totals[record.UserID]
		if !seen {
			row = &IndividualTotal{UserID: record.UserID, UserName: record.UserName}
			totals[record.UserID] = row
			order = append(order, record.UserID)
		}
		row.Chapters += record.Chapters
	}

	rows := make([]IndividualTotal, 0, len(order))
	for _, userID := range order {
		row := *totals[userID]
		if profile, ok := byUID[userID]; ok {
			row.DepartmentID = profile.DepartmentID
			if profile.DisplayName != "" {
				row.UserName = profile.DisplayName
			}
		}
		rows = append(rows, row)
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Chapters != rows[j].Chapters {
			return rows[i].Chapters > rows[j].Chapters
		}
		return rows[i].UserID < rows[j].UserID
	})
	for index := range rows {
		rows[index].Rank = index + 1
	}
	return rows
}
