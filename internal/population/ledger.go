package population

import (
	"sort"
	"sync"
	"time"

	"github.com/lamplight-apps/chapterboard/internal/appdata"
)

const (
	// DefaultPopulation applies when the ledger has no entries at all.
	DefaultPopulation = 10
	// fallbackPopulation applies when the effective entry lacks the department
	// key. Never zero, so downstream per-capita division is always defined.
	fallbackPopulation = 1
)

// Ledger answers "population of department D as of day T" over an ordered
// sequence of effective-from entries, and accepts replace-by-day upserts.
// Entries are kept sorted ascending by start date.
type Ledger struct {
	mu       sync.RWMutex
	entries  []appdata.PopulationEntry
	location *time.Location
}

// NewLedger constructs a Ledger for the given competition timezone.
func NewLedger(location *time.Location) *Ledger {
	if location == nil {
		location = time.UTC
	}
	return &Ledger{location: location}
}

// EffectivePopulation resolves the population of a department on a civil day.
// The effective entry is the latest one whose start day is not after the
// requested day. A missing department key in that entry resolves to 1; no
// qualifying entry falls back to the chronologically earliest entry; an empty
// ledger resolves to DefaultPopulation.
func (l *Ledger) EffectivePopulation(day appdata.DayKey, departmentID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.entries) == 0 {
		return DefaultPopulation
	}

	for index := len(l.entries) - 1; index >= 0; index-- {
		entry := l.entries[index]
		if appdata.DayOf(entry.StartDate, l.location).After(day) {
			continue
		}
		return departmentPopulation(entry, departmentID)
	}

	return departmentPopulation(l.entries[0], departmentID)
}

// Apply upserts the populations effective from the given day: any existing
// entry on the same civil day is replaced rather than appended next to.
func (l *Ledger) Apply(day appdata.DayKey, populations map[string]int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.entries[:0]
	for _, entry := range l.entries {
		if appdata.DayOf(entry.StartDate, l.location) == day {
			continue
		}
		kept = append(kept, entry)
	}

	copied := make(map[string]int, len(populations))
	for departmentID, count := range populations {
		copied[departmentID] = count
	}

	l.entries = append(kept, appdata.PopulationEntry{
		StartDate:   day.Start(l.location),
		Populations: copied,
	})
	l.sortLocked()
}

// Replace swaps the full entry set, used when ingesting a remote snapshot.
func (l *Ledger) Replace(entries []appdata.PopulationEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = make([]appdata.PopulationEntry, len(entries))
	copy(l.entries, entries)
	l.sortLocked()
}

// Snapshot returns a copy of the entries for persistence.
func (l *Ledger) Snapshot() []appdata.PopulationEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	snapshot := make([]appdata.PopulationEntry, len(l.entries))
	copy(snapshot, l.entries)
	return snapshot
}

func (l *Ledger) sortLocked() {
	sort.SliceStable(l.entries, func(i, j int) bool {
		return l.entries[i].StartDate.Before(l.entries[j].StartDate)
	})
}

func departmentPopulation(entry appdata.PopulationEntry, departmentID string) int {
	if count, ok := entry.Populations[departmentID]; ok && count > 0 {
		return count
	}
	return fallbackPopulation
}
