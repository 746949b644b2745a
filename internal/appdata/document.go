package appdata

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidRecordID indicates that a record identifier is empty or exceeds storage bounds.
	ErrInvalidRecordID = errors.New("appdata: invalid record id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("appdata: invalid user id")
	// ErrInvalidDepartmentID indicates that a department identifier is empty or exceeds storage bounds.
	ErrInvalidDepartmentID = errors.New("appdata: invalid department id")
	// ErrInvalidChapterCount indicates a negative chapter count.
	ErrInvalidChapterCount = errors.New("appdata: invalid chapter count")
	// ErrMalformedDocument indicates the wire document could not be decoded.
	ErrMalformedDocument = errors.New("appdata: malformed document")
)

// RecordID represents a validated reading-record identifier.
type RecordID string

// NewRecordID validates raw input and returns a RecordID.
func NewRecordID(rawInput string) (RecordID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidRecordID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidRecordID, maxIdentifierLength)
	}
	return RecordID(trimmed), nil
}

// String returns the underlying string identifier.
func (id RecordID) String() string {
	return string(id)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// DepartmentID represents a validated department identifier.
type DepartmentID string

// NewDepartmentID validates raw input and returns a DepartmentID.
func NewDepartmentID(rawInput string) (DepartmentID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidDepartmentID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidDepartmentID, maxIdentifierLength)
	}
	return DepartmentID(trimmed), nil
}

// String returns the underlying string identifier.
func (id DepartmentID) String() string {
	return string(id)
}

// ChapterCount represents a validated non-negative chapter count.
// Zero is a valid value and acts as a deletion tombstone on submission.
type ChapterCount int

// NewChapterCount validates the value and returns a ChapterCount.
func NewChapterCount(value int) (ChapterCount, error) {
	if value < 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChapterCount, value)
	}
	return ChapterCount(value), nil
}

// Int exposes the raw count.
func (c ChapterCount) Int() int {
	return int(c)
}

// IsTombstone reports whether a submission of this count deletes the matching record.
func (c ChapterCount) IsTombstone() bool {
	return c == 0
}

// ReadingRecord is one logged reading event. DepartmentID and UserName are
// snapshotted at write time so historical attribution survives later profile
// changes.
type ReadingRecord struct {
	ID            string    `json:"id"`
	DepartmentID  string    `json:"departmentId"`
	UserID        string    `json:"userId,omitempty"`
	UserName      string    `json:"userName,omitempty"`
	Chapters      int       `json:"chapters"`
	Date          time.Time `json:"date"`
	IsAdminRecord bool      `json:"isAdminRecord,omitempty"`
}

// Department is one competing group. Deleting a department does not delete
// its historical records.
type Department struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
	Emoji string `json:"emoji,omitempty"`
}

// UserProfile binds an authenticated identity to a department. DepartmentID
// stays empty until the user completes onboarding.
type UserProfile struct {
	UID          string `json:"uid"`
	DisplayName  string `json:"displayName,omitempty"`
	Email        string `json:"email,omitempty"`
	DepartmentID string `json:"departmentId,omitempty"`
	IsAdmin      bool   `json:"isAdmin,omitempty"`
}

// PopulationEntry declares department populations effective from StartDate.
type PopulationEntry struct {
	StartDate   time.Time      `json:"startDate"`
	Populations map[string]int `json:"populations"`
}

// Document is the full application state as exchanged with the remote store.
// Every field is independently optional on ingest: a nil slice means the
// remote document did not carry the field and the corresponding local state
// must be left untouched, which is distinct from present-and-empty.
type Document struct {
	Records     []ReadingRecord   `json:"records,omitempty"`
	PopHistory  []PopulationEntry `json:"popHistory,omitempty"`
	Users       []UserProfile     `json:"users,omitempty"`
	Departments []Department      `json:"departments,omitempty"`
}

// Encode serializes the document for the wire and the local cache.
func (d Document) Encode() ([]byte, error) {
	return json.Marshal(d)
}

// Decode parses a wire document. Unknown fields are ignored; missing fields
// decode to nil slices so callers can apply per-field-presence merging.
func Decode(payload []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return Document{}, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	return doc, nil
}
