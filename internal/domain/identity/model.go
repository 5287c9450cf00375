package identity

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/telecare/telecare/internal/platform/auth"
)

// Account is the common identity behind every role. Profile holds the
// role-specific record and its concrete type always matches Role.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      auth.Role `json:"role"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile is one of *PatientProfile, *DoctorProfile or *PharmacistProfile.
type Profile interface {
	role() auth.Role
}

type PatientProfile struct {
	ID          uuid.UUID  `json:"id"`
	AccountID   uuid.UUID  `json:"account_id"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Phone       *string    `json:"phone,omitempty"`
}

type DoctorProfile struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Specialty string    `json:"specialty"`
	Location  string    `json:"location"`
}

type PharmacistProfile struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Pharmacy  string    `json:"pharmacy"`
}

func (*PatientProfile) role() auth.Role    { return auth.RolePatient }
func (*DoctorProfile) role() auth.Role     { return auth.RoleDoctor }
func (*PharmacistProfile) role() auth.Role { return auth.RolePharmacist }

func (a *Account) Patient() (*PatientProfile, bool) {
	p, ok := a.Profile.(*PatientProfile)
	return p, ok && p != nil
}

func (a *Account) Doctor() (*DoctorProfile, bool) {
	p, ok := a.Profile.(*DoctorProfile)
	return p, ok && p != nil
}

func (a *Account) Pharmacist() (*PharmacistProfile, bool) {
	p, ok := a.Profile.(*PharmacistProfile)
	return p, ok && p != nil
}

// checkProfile reports a mismatch between Role and the profile variant.
func (a *Account) checkProfile() error {
	if a.Profile == nil {
		return fmt.Errorf("profile is required for role %s", a.Role)
	}
	if got := a.Profile.role(); got != a.Role {
		return fmt.Errorf("profile for role %s does not match account role %s", got, a.Role)
	}
	return nil
}

// accountJSON decodes the profile variant selected by role.
type accountJSON struct {
	ID        uuid.UUID       `json:"id"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Role      auth.Role       `json:"role"`
	Profile   json.RawMessage `json:"profile"`
	CreatedAt time.Time       `json:"created_at"`
}

func (a *Account) UnmarshalJSON(data []byte) error {
	var raw accountJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Account{ID: raw.ID, Email: raw.Email, Name: raw.Name, Role: raw.Role, CreatedAt: raw.CreatedAt}

	var p Profile
	switch raw.Role {
	case auth.RolePatient:
		p = &PatientProfile{}
	case auth.RoleDoctor:
		p = &DoctorProfile{}
	case auth.RolePharmacist:
		p = &PharmacistProfile{}
	default:
		return fmt.Errorf("unknown role %q", raw.Role)
	}
	if len(raw.Profile) > 0 && string(raw.Profile) != "null" {
		if err := json.Unmarshal(raw.Profile, p); err != nil {
			return fmt.Errorf("decode %s profile: %w", raw.Role, err)
		}
	}
	a.Profile = p
	return nil
}

// DoctorSummary is the directory entry patients browse when booking.
type DoctorSummary struct {
	AccountID uuid.UUID `json:"account_id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty"`
	Location  string    `json:"location"`
}
