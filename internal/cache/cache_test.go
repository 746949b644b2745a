package cache

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lamplight-apps/chapterboard/internal/appdata"
)

func openTestCache(t *testing.T) *SnapshotCache {
	t.Helper()
	snapshotCache, err := Open(Config{
		Path:  filepath.Join(t.TempDir(), "snapshot.db"),
		Clock: func() time.Time { return time.Unix(1770000000, 0) },
	})
	if err != nil {
		t.Fatalf("unexpected cache open error: %v", err)
	}
	t.Cleanup(func() {
		if err := snapshotCache.Close(); err != nil {
			t.Errorf("unexpected cache close error: %v", err)
		}
	})
	return snapshotCache
}

func TestLoadReportsMissWhenEmpty(t *testing.T) {
	snapshotCache := openTestCache(t)

	if _, ok := snapshotCache.Load(); ok {
		t.Fatalf("expected a miss on an empty cache")
	}
}

func TestStoreThenLoadRoundTripsTheDocument(t *testing.T) {
	snapshotCache := openTestCache(t)

	doc := appdata.Document{
		Records: []appdata.ReadingRecord{{
			ID: "rec-1", DepartmentID: "gideon", UserID: "user-1", Chapters: 3,
			Date: time.Date(2026, 3, 5, 12, 0, 0, 0, time.UTC),
		}},
		Departments: []appdata.Department{{ID: "gideon", Name: "Gideon"}},
	}
	if err := snapshotCache.Store(doc); err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}

	loaded, ok := snapshotCache.Load()
	if !ok {
		t.Fatalf("expected a hit after storing")
	}
	if len(loaded.Records) != 1 || loaded.Records[0].ID != "rec-1" {
		t.Fatalf("unexpected records %+v", loaded.Records)
	}
	if len(loaded.Departments) != 1 || loaded.Departments[0].Name != "Gideon" {
		t.Fatalf("unexpected departments %+v", loaded.Departments)
	}
}

func TestStoreReplacesThePreviousSnapshot(t *testing.T) {
	snapshotCache := openTestCache(t)

	if err := snapshotCache.Store(appdata.Document{
		Departments: []appdata.Department{{ID: "gideon", Name: "Gideon"}},
	}); err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}
	if err := snapshotCache.Store(appdata.Document{
		Departments: []appdata.Department{{ID: "daniel", Name: "Daniel"}},
	}); err != nil {
		t.Fatalf("unexpected store error: %v", err)
	}

	loaded, ok := snapshotCache.Load()
	if !ok {
		t.Fatalf("expected a hit after storing")
	}
	if len(loaded.Departments) != 1 || loaded.Departments[0].ID != "daniel" {
		t.Fatalf("expected the newer snapshot, got %+v", loaded.Departments)
	}
}
