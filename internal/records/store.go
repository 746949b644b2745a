package records

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lamplight-apps/chapterboard/internal/appdata"
	"go.uber.org/zap"
)

const (
	// defaultPendingTTL bounds how long an unconfirmed local mutation keeps
	// overriding remote snapshots before it is abandoned.
	defaultPendingTTL = 12 * time.Hour
	// defaultEmptySnapshotFloor is the working-collection size above which an
	// empty remote record set is treated as an incomplete fetch.
	defaultEmptySnapshotFloor = 3
)

var (
	errMissingIDProvider    = errors.New("id provider is required")
	errMissingSubmissionKey = errors.New("submission missing its identifier key")
	noOpLogger              = zap.NewNop()
)

// ServiceError carries a dot-separated operation code for store failures.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opStoreNew    = "records.store.new"
	opUpsertDaily = "records.upsert_daily"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// StoreConfig describes the dependencies of a record store.
type StoreConfig struct {
	Location           *time.Location
	Clock              func() time.Time
	IDProvider         IDProvider
	PendingTTL         time.Duration
	EmptySnapshotFloor int
	Logger             *zap.Logger
}

type pendingWrite struct {
	record appdata.ReadingRecord
	stamp  time.Time
}

// Store owns the authoritative in-memory record collection and merges remote
// snapshots with mutations the local client has made but which may not yet be
// reflected remotely.
type Store struct {
	mu             sync.Mutex
	records        []appdata.ReadingRecord
	pendingWrites  map[string]pendingWrite
	pendingDeletes map[string]time.Time

	location   *time.Location
	clock      func() time.Time
	idProvider IDProvider
	pendingTTL time.Duration
	emptyFloor int
	logger     *zap.Logger
}

// NewStore constructs a Store with validated configuration.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.IDProvider == nil {
		return nil, newServiceError(opStoreNew, "missing_id_provider", errMissingIDProvider)
	}

	location := cfg.Location
	if location == nil {
		location = time.UTC
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	pendingTTL := cfg.PendingTTL
	if pendingTTL <= 0 {
		pendingTTL = defaultPendingTTL
	}
	emptyFloor := cfg.EmptySnapshotFloor
	if emptyFloor <= 0 {
		emptyFloor = defaultEmptySnapshotFloor
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Store{
		pendingWrites:  make(map[string]pendingWrite),
		pendingDeletes: make(map[string]time.Time),
		location:       location,
		clock:          clock,
		idProvider:     cfg.IDProvider,
		pendingTTL:     pendingTTL,
		emptyFloor:     emptyFloor,
		logger:         logger,
	}, nil
}

// UpsertResult reports what a daily submission did to the working collection.
type UpsertResult struct {
	// Changed is false only for a tombstone that found nothing to delete.
	Changed bool
	// Deleted reports that the matching record was removed.
	Deleted bool
	// Record is the stored record after an update or create.
	Record appdata.ReadingRecord
}

// UpsertDaily applies a daily submission under the one-record-per-key-per-day
// rule: a same-slot resubmission updates in place preserving the record id, a
// zero count deletes the matching record, and an empty slot gets a new record
// stamped at civil noon of the submission day. The operation is idempotent
// per (key, day).
func (s *Store) UpsertDaily(submission Submission) (UpsertResult, error) {
	if submission.IsAdminRecord {
		if submission.DepartmentID == "" {
			return UpsertResult{}, newServiceError(opUpsertDaily, "missing_department", errMissingSubmissionKey)
		}
	} else if submission.UserID == "" {
		return UpsertResult{}, newServiceError(opUpsertDaily, "missing_user", errMissingSubmissionKey)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	matchIndex := -1
	for index, record := range s.records {
		if submission.matches(record, appdata.DayOf(record.Date, s.location)) {
			matchIndex = index
			break
		}
	}

	var existing *appdata.ReadingRecord
	if matchIndex >= 0 {
		existing = &s.records[matchIndex]
	}

	now := s.clock().UTC()
	switch resolveUpsert(existing, submission) {
	case actionNone:
		return UpsertResult{}, nil

	case actionDelete:
		removed := s.records[matchIndex]
		s.records = append(s.records[:matchIndex], s.records[matchIndex+1:]...)
		delete(s.pendingWrites, removed.ID)
		s.pendingDeletes[removed.ID] = now
		return UpsertResult{Changed: true, Deleted: true, Record: removed}, nil

	case actionUpdate:
		s.records[matchIndex].Chapters = submission.Chapters.Int()
		if submission.UserName != "" {
			s.records[matchIndex].UserName = submission.UserName
		}
		updated := s.records[matchIndex]
		s.pendingWrites[updated.ID] = pendingWrite{record: updated, stamp: now}
		delete(s.pendingDeletes, updated.ID)
		return UpsertResult{Changed: true, Record: updated}, nil

	default: // actionCreate
		rawID, err := s.idProvider.NewID()
		var recordID appdata.RecordID
		if err == nil {
			recordID, err = appdata.NewRecordID(rawID)
		}
		if err != nil {
			s.logger.Error("record store error",
				zap.String("operation", opUpsertDaily),
				zap.String("reason", "id_generation_failed"),
				zap.Error(err))
			return UpsertResult{}, newServiceError(opUpsertDaily, "id_generation_failed", err)
		}
		created := appdata.ReadingRecord{
			ID:            recordID.String(),
			DepartmentID:  submission.DepartmentID.String(),
			UserID:        submission.UserID.String(),
			UserName:      submission.UserName,
			Chapters:      submission.Chapters.Int(),
			Date:          submission.Day.CanonicalInstant(s.location),
			IsAdminRecord: submission.IsAdminRecord,
		}
		if created.IsAdminRecord {
			created.UserID = ""
		}
		s.records = append(s.records, created)
		s.pendingWrites[created.ID] = pendingWrite{record: created, stamp: now}
		delete(s.pendingDeletes, created.ID)
		return UpsertResult{Changed: true, Record: created}, nil
	}
}

// ReconcileOutcome reports what a remote snapshot did to the working collection.
type ReconcileOutcome struct {
	// Applied is false when the snapshot was rejected by the empty-snapshot guard.
	Applied bool
	// Changed reports that the working collection was replaced.
	Changed bool
	// GuardTripped reports that an empty record set was rejected as suspicious.
	GuardTripped bool
}

// Reconcile merges a fetched remote record set with local pending state:
// records whose delete has not propagated stay suppressed, records whose
// write has not propagated stay visible, and confirmed pendings are pruned.
// Pendings older than the configured horizon are abandoned so a permanently
// failing remote cannot accumulate unbounded local drift.
func (s *Store) Reconcile(remoteRecords []appdata.ReadingRecord) ReconcileOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.expirePendingLocked()

	if len(remoteRecords) == 0 && len(s.records) > s.emptyFloor {
		s.logger.Warn("rejecting suspicious empty remote snapshot",
			zap.Int("local_records", len(s.records)))
		return ReconcileOutcome{GuardTripped: true}
	}

	remoteIDs := make(map[string]struct{}, len(remoteRecords))
	for _, record := range remoteRecords {
		remoteIDs[record.ID] = struct{}{}
	}

	// Propagation confirmations.
	for recordID := range s.pendingWrites {
		if _, present := remoteIDs[recordID]; present {
			delete(s.pendingWrites, recordID)
		}
	}
	for recordID := range s.pendingDeletes {
		if _, present := remoteIDs[recordID]; !present {
			delete(s.pendingDeletes, recordID)
		}
	}

	merged := make([]appdata.ReadingRecord, 0, len(remoteRecords)+len(s.pendingWrites))
	for _, record := range remoteRecords {
		if _, deleted := s.pendingDeletes[record.ID]; deleted {
			continue
		}
		merged = append(merged, record)
	}
	for _, pending := range s.pendingWrites {
		merged = append(merged, pending.record)
	}

	if recordSetsEqual(s.records, merged) {
		return ReconcileOutcome{Applied: true}
	}

	s.records = merged
	return ReconcileOutcome{Applied: true, Changed: true}
}

// Replace swaps the working collection wholesale, bypassing the merge. Used
// when loading the startup cache and when restoring from backup.
func (s *Store) Replace(records []appdata.ReadingRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make([]appdata.ReadingRecord, len(records))
	copy(s.records, records)
}

// Snapshot returns a copy of the working collection.
func (s *Store) Snapshot() []appdata.ReadingRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := make([]appdata.ReadingRecord, len(s.records))
	copy(snapshot, s.records)
	return snapshot
}

// Len reports the size of the working collection.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// PendingCounts reports the sizes of the unconfirmed mutation sets.
func (s *Store) PendingCounts() (writes int, deletes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pendingWrites), len(s.pendingDeletes)
}

func (s *Store) expirePendingLocked() {
	horizon := s.clock().UTC().Add(-s.pendingTTL)
	for recordID, pending := range s.pendingWrites {
		if pending.stamp.Before(horizon) {
			s.logger.Warn("abandoning unconfirmed pending write",
				zap.String("record_id", recordID))
			delete(s.pendingWrites, recordID)
		}
	}
	for recordID, stamp := range s.pendingDeletes {
		if stamp.Before(horizon) {
			s.logger.Warn("abandoning unconfirmed pending delete",
				zap.String("record_id", recordID))
			delete(s.pendingDeletes, recordID)
		}
	}
}

func recordSetsEqual(current, merged []appdata.ReadingRecord) bool {
	if len(current) != len(merged) {
		return false
	}
	byID := make(map[string]appdata.ReadingRecord, len(current))
	for _, record := range current {
		byID[record.ID] = record
	}
	for _, record := range merged {
		existing, ok := byID[record.ID]
		if !ok {
			return false
		}
		if existing.DepartmentID != record.DepartmentID ||
			existing.UserID != record.UserID ||
			existing.UserName != record.UserName ||
			existing.Chapters != record.Chapters ||
			existing.IsAdminRecord != record.IsAdminRecord ||
			!existing.Date.Equal(record.Date) {
			return false
		}
	}
	return true
}
