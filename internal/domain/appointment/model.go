package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending        Status = "pending"
	StatusDoctorAccepted Status = "doctor_accepted"
	StatusConfirmed      Status = "confirmed"
	StatusCompleted      Status = "completed"
	StatusDeclined       Status = "declined"
	StatusCancelled      Status = "cancelled"
	StatusNoShow         Status = "no_show"
)

// transitions lists the allowed target statuses for each source status.
// Statuses without an entry are terminal.
var transitions = map[Status][]Status{
	StatusPending:        {StatusDoctorAccepted, StatusDeclined, StatusCancelled, StatusNoShow},
	StatusDoctorAccepted: {StatusConfirmed, StatusCancelled, StatusNoShow},
	StatusConfirmed:      {StatusCompleted, StatusCancelled, StatusNoShow},
}

var allStatuses = []Status{
	StatusPending, StatusDoctorAccepted, StatusConfirmed,
	StatusCompleted, StatusDeclined, StatusCancelled, StatusNoShow,
}

func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from -> to is an edge of the lifecycle.
func CanTransition(from, to Status) bool {
	for _, t := range transitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// sourcesOf returns every status that may move to `to`, in lifecycle order.
func sourcesOf(to Status) []Status {
	var out []Status
	for _, from := range allStatuses {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

type VisitType string

const (
	VisitInPerson VisitType = "in-person"
	VisitVideo    VisitType = "video"
	VisitPhone    VisitType = "phone"
)

func (t VisitType) Valid() bool {
	switch t {
	case VisitInPerson, VisitVideo, VisitPhone:
		return true
	}
	return false
}

// Appointment is a visit between a patient and a doctor. PatientID and
// DoctorID are account ids. Date and Time are fixed at creation.
type Appointment struct {
	ID            uuid.UUID   `db:"id" json:"id"`
	PatientID     uuid.UUID   `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID   `db:"doctor_id" json:"doctor_id"`
	Date          time.Time   `db:"scheduled_date" json:"date"`
	Time          string      `db:"scheduled_time" json:"time"`
	Type          VisitType   `db:"visit_type" json:"type"`
	Reason        string      `db:"reason" json:"reason"`
	Status        Status      `db:"status" json:"status"`
	Notes         string      `db:"notes" json:"notes"`
	Location      string      `db:"location" json:"location"`
	Room          string      `db:"room" json:"room"`
	Prescriptions []uuid.UUID `db:"prescription_ids" json:"prescriptions"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`
}

// ScheduledAt combines Date and Time in UTC. A malformed Time counts as
// midnight.
func (a *Appointment) ScheduledAt() time.Time {
	y, m, d := a.Date.Date()
	tod, err := time.Parse("15:04", a.Time)
	if err != nil {
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(y, m, d, tod.Hour(), tod.Minute(), 0, 0, time.UTC)
}

// Involves reports whether account is the patient or the doctor on a.
func (a *Appointment) Involves(account uuid.UUID) bool {
	return a.PatientID == account || a.DoctorID == account
}

// StatusChange is one row of an appointment's status history. From is nil
// for the creation entry.
type StatusChange struct {
	ID            uuid.UUID `db:"id" json:"id"`
	AppointmentID uuid.UUID `db:"appointment_id" json:"appointment_id"`
	From          *Status   `db:"from_status" json:"from,omitempty"`
	To            Status    `db:"to_status" json:"to"`
	ActorID       uuid.UUID `db:"actor_id" json:"actor_id"`
	ChangedAt     time.Time `db:"changed_at" json:"changed_at"`
}

// PatientView partitions a patient's appointments. Every appointment lands
// in exactly one bucket.
type PatientView struct {
	Upcoming []*Appointment `json:"upcoming"`
	Past     []*Appointment `json:"past"`
	Tracking []*Appointment `json:"tracking"`
}

// DoctorView groups a doctor's appointments by status. Past holds completed,
// cancelled and no_show.
type DoctorView struct {
	Pending   []*Appointment `json:"pending"`
	Accepted  []*Appointment `json:"accepted"`
	Confirmed []*Appointment `json:"confirmed"`
	Past      []*Appointment `json:"past"`
	Declined  []*Appointment `json:"declined"`
}
