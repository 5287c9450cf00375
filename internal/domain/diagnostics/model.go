package diagnostics

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// openStatuses are the statuses a doctor may still cancel from.
var openStatuses = []Status{StatusPending, StatusAccepted, StatusDeclined}

// uploadableStatuses are the statuses results may be uploaded from. Results
// arriving after a cancel are still recorded; a completed test is final.
var uploadableStatuses = []Status{StatusPending, StatusAccepted, StatusDeclined, StatusCancelled}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Result is the outcome of a test. AttachmentRef points at a stored file;
// the file itself is not handled here.
type Result struct {
	ResultDate     time.Time `json:"result_date"`
	Findings       string    `json:"findings"`
	Interpretation string    `json:"interpretation,omitempty"`
	Technician     string    `json:"technician,omitempty"`
	AttachmentRef  string    `json:"attachment_ref,omitempty"`
	Notes          string    `json:"notes,omitempty"`
}

// DiagnosticTest is a test a doctor asks a patient to take. PatientID is a
// patient profile id; DoctorID is the requesting doctor's account id.
// HasResults is true exactly when Status is completed.
type DiagnosticTest struct {
	ID          uuid.UUID `db:"id" json:"id"`
	PatientID   uuid.UUID `db:"patient_id" json:"patient_id"`
	DoctorID    uuid.UUID `db:"doctor_id" json:"doctor_id"`
	TestType    string    `db:"test_type" json:"test_type"`
	Priority    Priority  `db:"priority" json:"priority"`
	RequestDate time.Time `db:"request_date" json:"request_date"`
	Status      Status    `db:"status" json:"status"`
	Notes       string    `db:"notes" json:"notes"`
	HasResults  bool      `db:"has_results" json:"has_results"`
	Result      *Result   `db:"result" json:"result,omitempty"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
