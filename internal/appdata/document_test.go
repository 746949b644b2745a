package appdata

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeDistinguishesMissingFieldsFromEmptyFields(t *testing.T) {
	doc, err := Decode([]byte(`{"records": []}`))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	if doc.Records == nil {
		t.Fatalf("expected records to decode as present-and-empty")
	}
	if len(doc.Records) != 0 {
		t.Fatalf("expected zero records, got %d", len(doc.Records))
	}
	if doc.Users != nil || doc.Departments != nil || doc.PopHistory != nil {
		t.Fatalf("expected absent fields to stay nil, got %+v", doc)
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	doc, err := Decode([]byte(`{"departments": [{"id": "gideon", "name": "Gideon"}], "futureField": 42}`))
	if err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}
	if len(doc.Departments) != 1 || doc.Departments[0].ID != "gideon" {
		t.Fatalf("unexpected departments %+v", doc.Departments)
	}
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	if _, err := Decode([]byte(`{"records": "not a list"`)); !errors.Is(err, ErrMalformedDocument) {
		t.Fatalf("expected ErrMalformedDocument, got %v", err)
	}
}

func TestEncodeOmitsNilFields(t *testing.T) {
	payload, err := Document{Departments: []Department{{ID: "gideon", Name: "Gideon"}}}.Encode()
	if err != nil {
		t.Fatalf("unexpected encode error: %v", err)
	}
	encoded := string(payload)
	if strings.Contains(encoded, "records") || strings.Contains(encoded, "users") {
		t.Fatalf("expected absent fields omitted from the wire, got %s", encoded)
	}
	if !strings.Contains(encoded, `"departments"`) {
		t.Fatalf("expected departments on the wire, got %s", encoded)
	}
}

func TestIdentifierValidationBounds(t *testing.T) {
	if _, err := NewRecordID("   "); !errors.Is(err, ErrInvalidRecordID) {
		t.Fatalf("expected ErrInvalidRecordID for blank input, got %v", err)
	}
	if _, err := NewUserID(strings.Repeat("x", maxIdentifierLength+1)); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID for oversized input, got %v", err)
	}
	if _, err := NewDepartmentID("gideon"); err != nil {
		t.Fatalf("unexpected department id error: %v", err)
	}

	id, err := NewRecordID("  rec-1  ")
	if err != nil {
		t.Fatalf("unexpected record id error: %v", err)
	}
	if id.String() != "rec-1" {
		t.Fatalf("expected trimmed id, got %q", id)
	}
}

func TestChapterCountTombstone(t *testing.T) {
	if _, err := NewChapterCount(-1); !errors.Is(err, ErrInvalidChapterCount) {
		t.Fatalf("expected ErrInvalidChapterCount, got %v", err)
	}
	zero, err := NewChapterCount(0)
	if err != nil {
		t.Fatalf("unexpected chapter count error: %v", err)
	}
	if !zero.IsTombstone() {
		t.Fatalf("expected zero to act as a tombstone")
	}
	three, err := NewChapterCount(3)
	if err != nil {
		t.Fatalf("unexpected chapter count error: %v", err)
	}
	if three.IsTombstone() || three.Int() != 3 {
		t.Fatalf("unexpected count behavior for %v", three)
	}
}
