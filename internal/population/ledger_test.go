package population

import (
	"testing"
	"time"

	"github.com/lamplight-apps/chapterboard/internal/appdata"
)

func mustDay(t *testing.T, value string) appdata.DayKey {
	t.Helper()
	day, err := appdata.NewDayKey(value)
	if err != nil {
		t.Fatalf("unexpected day key error: %v", err)
	}
	return day
}

func entryOn(t *testing.T, day string, populations map[string]int) appdata.PopulationEntry {
	t.Helper()
	return appdata.PopulationEntry{
		StartDate:   mustDay(t, day).Start(time.UTC),
		Populations: populations,
	}
}

func TestEffectivePopulationPicksLatestEntryNotAfterTheDay(t *testing.T) {
	ledger := NewLedger(time.UTC)
	ledger.Replace([]appdata.PopulationEntry{
		entryOn(t, "2026-02-08", map[string]int{"gideon": 10}),
		entryOn(t, "2026-04-01", map[string]int{"gideon": 20}),
	})

	cases := []struct {
		day      string
		expected int
	}{
		{day: "2026-02-08", expected: 10},
		{day: "2026-03-31", expected: 10},
		{day: "2026-04-01", expected: 20},
		{day: "2026-07-15", expected: 20},
	}
	for _, testCase := range cases {
		got := ledger.EffectivePopulation(mustDay(t, testCase.day), "gideon")
		if got != testCase.expected {
			t.Fatalf("day %s: expected population %d, got %d", testCase.day, testCase.expected, got)
		}
	}
}

func TestEffectivePopulationFallsBackToEarliestEntryBeforeAllStarts(t *testing.T) {
	ledger := NewLedger(time.UTC)
	ledger.Replace([]appdata.PopulationEntry{
		entryOn(t, "2026-04-01", map[string]int{"gideon": 20}),
		entryOn(t, "2026-02-08", map[string]int{"gideon": 10}),
	})

	if got := ledger.EffectivePopulation(mustDay(t, "2026-01-01"), "gideon"); got != 10 {
		t.Fatalf("expected the earliest entry's population 10, got %d", got)
	}
}

func TestEffectivePopulationMissingDepartmentKeyResolvesToOne(t *testing.T) {
	ledger := NewLedger(time.UTC)
	ledger.Replace([]appdata.PopulationEntry{
		entryOn(t, "2026-02-08", map[string]int{"gideon": 10}),
	})

	if got := ledger.EffectivePopulation(mustDay(t, "2026-03-01"), "daniel"); got != 1 {
		t.Fatalf("expected fallback population 1 for a missing key, got %d", got)
	}
}

func TestEffectivePopulationEmptyLedgerUsesDefault(t *testing.T) {
	ledger := NewLedger(time.UTC)

	if got := ledger.EffectivePopulation(mustDay(t, "2026-03-01"), "gideon"); got != DefaultPopulation {
		t.Fatalf("expected default population %d, got %d", DefaultPopulation, got)
	}
}

func TestApplyReplacesEntryOnTheSameDay(t *testing.T) {
	ledger := NewLedger(time.UTC)
	ledger.Apply(mustDay(t, "2026-02-08"), map[string]int{"gideon": 10})
	ledger.Apply(mustDay(t, "2026-02-08"), map[string]int{"gideon": 12})

	entries := ledger.Snapshot()
	if len(entries) != 1 {
		t.Fatalf("expected same-day apply to replace, got %d entries", len(entries))
	}
	if got := ledger.EffectivePopulation(mustDay(t, "2026-03-01"), "gideon"); got != 12 {
		t.Fatalf("expected replaced population 12, got %d", got)
	}
}

func TestApplyKeepsEntriesSortedByStartDate(t *testing.T) {
	ledger := NewLedger(time.UTC)
	ledger.Apply(mustDay(t, "2026-04-01"), map[string]int{"gideon": 20})
	ledger.Apply(mustDay(t, "2026-02-08"), map[string]int{"gideon": 10})

	entries := ledger.Snapshot()
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if !entries[0].StartDate.Before(entries[1].StartDate) {
		t.Fatalf("expected ascending start dates, got %v then %v",
			entries[0].StartDate, entries[1].StartDate)
	}
}

func TestApplyCopiesTheInputMap(t *testing.T) {
	ledger := NewLedger(time.UTC)
	populations := map[string]int{"gideon": 10}
	ledger.Apply(mustDay(t, "2026-02-08"), populations)

	populations["gideon"] = 99
	if got := ledger.EffectivePopulation(mustDay(t, "2026-03-01"), "gideon"); got != 10 {
		t.Fatalf("expected the ledger to be isolated from caller mutation, got %d", got)
	}
}
