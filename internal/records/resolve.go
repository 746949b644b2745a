package records

import (
	"github.com/lamplight-apps/chapterboard/internal/appdata"
)

// upsertAction enumerates the outcomes of resolving a daily submission
// against the working collection.
type upsertAction int

const (
	actionNone upsertAction = iota
	actionDelete
	actionUpdate
	actionCreate
)

// Submission is one user- or admin-entered daily chapter count. Non-admin
// submissions key on (user, day); admin submissions key on (department, day).
// A zero chapter count is a tombstone for the matching record. The identifier
// fields carry the validated scalar types; callers construct them at the
// boundary so the store never sees blank or oversized identifiers.
type Submission struct {
	Chapters      appdata.ChapterCount
	Day           appdata.DayKey
	UserID        appdata.UserID
	UserName      string
	DepartmentID  appdata.DepartmentID
	IsAdminRecord bool
}

// matches reports whether an existing record occupies the same
// (key, calendar-day) slot as the submission.
func (s Submission) matches(record appdata.ReadingRecord, day appdata.DayKey) bool {
	if record.IsAdminRecord != s.IsAdminRecord {
		return false
	}
	if day != s.Day {
		return false
	}
	if s.IsAdminRecord {
		return record.DepartmentID == s.DepartmentID.String()
	}
	return record.UserID == s.UserID.String()
}

// resolveUpsert decides how a submission changes the slot occupied by
// existing (nil when the slot is empty). It never generates ids or
// timestamps; the store performs the side effects it prescribes. Repeating
// the same submission against its own outcome converges, which is what makes
// the store-level operation idempotent per (key, day).
func resolveUpsert(existing *appdata.ReadingRecord, submission Submission) upsertAction {
	if submission.Chapters.IsTombstone() {
		if existing == nil {
			return actionNone
		}
		return actionDelete
	}
	if existing == nil {
		return actionCreate
	}
	return actionUpdate
}
