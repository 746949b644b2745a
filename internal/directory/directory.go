// Package directory maintains the mutable department definitions and
// user-to-department assignments consulted by scoring and record entry.
package directory

import (
	"crypto/subtle"
	"errors"
	"strings"
	"sync"

	"github.com/lamplight-apps/chapterboard/internal/appdata"
)

var (
	// ErrInvalidIdentity indicates sign-in claims without a usable identifier.
	ErrInvalidIdentity = errors.New("directory: invalid identity")
	// ErrUnknownDepartment indicates an assignment to a department that does not exist.
	ErrUnknownDepartment = errors.New("directory: unknown department")
	// ErrDuplicateDepartment indicates an add for an id already in use.
	ErrDuplicateDepartment = errors.New("directory: duplicate department")
)

// IdentityClaims is the edge-triggered input delivered by the external
// identity provider on sign-in.
type IdentityClaims struct {
	Subject     string
	DisplayName string
	Email       string
}

// Directory holds the profile and department sets. All methods are safe for
// concurrent use.
type Directory struct {
	mu          sync.RWMutex
	departments []appdata.Department
	profiles    []appdata.UserProfile
	adminKey    string
}

// NewDirectory constructs a Directory gated by the shared admin key. The gate
// is a UI convenience inherited from the product, not a security boundary.
func NewDirectory(adminKey string) *Directory {
	return &Directory{adminKey: adminKey}
}

// EnsureProfile looks up or creates the profile for a signed-in identity,
// reporting whether a new profile was created so callers can persist it.
// Display fields refresh from non-empty claims; department assignment is
// never touched here, so a freshly created profile stays department-less
// until onboarding completes.
func (d *Directory) EnsureProfile(claims IdentityClaims) (appdata.UserProfile, bool, error) {
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return appdata.UserProfile{}, false, ErrInvalidIdentity
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	for index, profile := range d.profiles {
		if profile.UID != subject {
			continue
		}
		if name := strings.TrimSpace(claims.DisplayName); name != "" {
			d.profiles[index].DisplayName = name
		}
		if email := strings.TrimSpace(claims.Email); email != "" {
			d.profiles[index].Email = email
		}
		return d.profiles[index], false, nil
	}

	created := appdata.UserProfile{
		UID:         subject,
		DisplayName: strings.TrimSpace(claims.DisplayName),
		Email:       strings.TrimSpace(claims.Email),
	}
	d.profiles = append(d.profiles, created)
	return created, true, nil
}

// AssignDepartment completes onboarding by binding a profile to a department.
func (d *Directory) AssignDepartment(uid, departmentID string) (appdata.UserProfile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.departmentExistsLocked(departmentID) {
		return appdata.UserProfile{}, ErrUnknownDepartment
	}
	for index, profile := range d.profiles {
		if profile.UID == uid {
			d.profiles[index].DepartmentID = departmentID
			return d.profiles[index], nil
		}
	}
	return appdata.UserProfile{}, ErrInvalidIdentity
}

// MarkAdmin flags a profile as administrative after an admin-key unlock.
func (d *Directory) MarkAdmin(uid string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for index, profile := range d.profiles {
		if profile.UID == uid {
			d.profiles[index].IsAdmin = true
			return
		}
	}
}

// Profile returns the profile for a uid, if known.
func (d *Directory) Profile(uid string) (appdata.UserProfile, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, profile := range d.profiles {
		if profile.UID == uid {
			return profile, true
		}
	}
	return appdata.UserProfile{}, false
}

// AddDepartment registers a new competing department.
func (d *Directory) AddDepartment(department appdata.Department) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.departmentExistsLocked(department.ID) {
		return ErrDuplicateDepartment
	}
	d.departments = append(d.departments, department)
	return nil
}

// RemoveDepartment drops a department definition. Historical records keep
// their attribution; nothing cascades.
func (d *Directory) RemoveDepartment(departmentID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	for index, department := range d.departments {
		if department.ID == departmentID {
			d.departments = append(d.departments[:index], d.departments[index+1:]...)
			return true
		}
	}
	return false
}

// Departments returns a copy of the department set in input order.
func (d *Directory) Departments() []appdata.Department {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snapshot := make([]appdata.Department, len(d.departments))
	copy(snapshot, d.departments)
	return snapshot
}

// Profiles returns a copy of the profile set.
func (d *Directory) Profiles() []appdata.UserProfile {
	d.mu.RLock()
	defer d.mu.RUnlock()

	snapshot := make([]appdata.UserProfile, len(d.profiles))
	copy(snapshot, d.profiles)
	return snapshot
}

// ReplaceDepartments swaps the department set, used on snapshot ingest.
func (d *Directory) ReplaceDepartments(departments []appdata.Department) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.departments = make([]appdata.Department, len(departments))
	copy(d.departments, departments)
}

// ReplaceProfiles swaps the profile set, used on snapshot ingest.
func (d *Directory) ReplaceProfiles(profiles []appdata.UserProfile) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.profiles = make([]appdata.UserProfile, len(profiles))
	copy(d.profiles, profiles)
}

// CheckAdminKey compares a candidate against the shared admin key in
// constant time. An empty configured key locks the gate entirely.
func (d *Directory) CheckAdminKey(candidate string) bool {
	if d.adminKey == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(d.adminKey), []byte(candidate)) == 1
}

func (d *Directory) departmentExistsLocked(departmentID string) bool {
	for _, department := range d.departments {
		if department.ID == departmentID {
			return true
		}
	}
	return false
}
