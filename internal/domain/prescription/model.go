package prescription

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

type Medication struct {
	Name         string `json:"name" validate:"required"`
	Dosage       string `json:"dosage" validate:"required"`
	Frequency    string `json:"frequency" validate:"required"`
	Duration     string `json:"duration" validate:"required"`
	Instructions string `json:"instructions,omitempty"`
}

// Prescription belongs to exactly one appointment. DoctorID and PatientID
// are account ids; PatientID always comes from the appointment.
type Prescription struct {
	ID            uuid.UUID    `db:"id" json:"id"`
	DoctorID      uuid.UUID    `db:"doctor_id" json:"doctor_id"`
	PatientID     uuid.UUID    `db:"patient_id" json:"patient_id"`
	AppointmentID uuid.UUID    `db:"appointment_id" json:"appointment_id"`
	Diagnosis     string       `db:"diagnosis" json:"diagnosis"`
	Medications   []Medication `db:"medications" json:"medications"`
	Notes         string       `db:"notes" json:"notes"`
	Status        Status       `db:"status" json:"status"`
	IssuedAt      time.Time    `db:"issued_at" json:"issued_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// Patch holds the fields an update may change. Nil means unchanged.
type Patch struct {
	Diagnosis   *string
	Medications []Medication
	Notes       *string
	Status      *Status
}

func (p Patch) empty() bool {
	return p.Diagnosis == nil && p.Medications == nil && p.Notes == nil && p.Status == nil
}
