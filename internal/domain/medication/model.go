package medication

import (
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type Action string

const (
	ActionContinue    Action = "continue"
	ActionAdjust      Action = "adjust"
	ActionDiscontinue Action = "discontinue"
)

func (a Action) Valid() bool {
	switch a {
	case ActionContinue, ActionAdjust, ActionDiscontinue:
		return true
	}
	return false
}

type ReviewedMedication struct {
	Name       string `json:"name" validate:"required"`
	Dosage     string `json:"dosage"`
	Frequency  string `json:"frequency"`
	Assessment string `json:"assessment"`
	Action     Action `json:"action" validate:"required,oneof=continue adjust discontinue"`
}

// Review is a doctor's periodic assessment of a patient's drug list.
// PatientID is a patient profile id.
type Review struct {
	ID             uuid.UUID            `db:"id" json:"id"`
	PatientID      uuid.UUID            `db:"patient_id" json:"patient_id"`
	DoctorID       uuid.UUID            `db:"doctor_id" json:"doctor_id"`
	ReviewDate     time.Time            `db:"review_date" json:"review_date"`
	Medications    []ReviewedMedication `db:"medications" json:"medications"`
	Summary        string               `db:"summary" json:"summary"`
	NextReviewDate *time.Time           `db:"next_review_date" json:"next_review_date,omitempty"`
	CreatedAt      time.Time            `db:"created_at" json:"created_at"`
}

type DiscrepancyStatus string

const (
	DiscrepancyPending  DiscrepancyStatus = "pending"
	DiscrepancyResolved DiscrepancyStatus = "resolved"
	DiscrepancyConflict DiscrepancyStatus = "conflict"
)

func (s DiscrepancyStatus) Valid() bool {
	switch s {
	case DiscrepancyPending, DiscrepancyResolved, DiscrepancyConflict:
		return true
	}
	return false
}

type Discrepancy struct {
	ID          uuid.UUID         `json:"id"`
	Medication  string            `json:"medication"`
	Description string            `json:"description"`
	SourceA     string            `json:"source_a"`
	SourceB     string            `json:"source_b"`
	Status      DiscrepancyStatus `json:"status"`
	Resolution  *string           `json:"resolution,omitempty"`
}

// Reconciliation compares a patient's medication lists across sources.
// Status is never stored; it is refreshed from Discrepancies on every read
// and after every mutation.
type Reconciliation struct {
	ID            uuid.UUID         `db:"id" json:"id"`
	PatientID     uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	Sources       []string          `db:"sources" json:"sources"`
	Discrepancies []Discrepancy     `db:"discrepancies" json:"discrepancies"`
	Status        DiscrepancyStatus `db:"-" json:"status"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `db:"updated_at" json:"updated_at"`
}

// Rollup folds discrepancy statuses into the overall status: conflict wins
// over pending, which wins over resolved. No discrepancies is resolved.
func Rollup(ds []Discrepancy) DiscrepancyStatus {
	statuses := lo.Map(ds, func(d Discrepancy, _ int) DiscrepancyStatus { return d.Status })
	switch {
	case lo.Contains(statuses, DiscrepancyConflict):
		return DiscrepancyConflict
	case lo.Contains(statuses, DiscrepancyPending):
		return DiscrepancyPending
	}
	return DiscrepancyResolved
}

func (r *Reconciliation) refresh() {
	if r.Sources == nil {
		r.Sources = []string{}
	}
	if r.Discrepancies == nil {
		r.Discrepancies = []Discrepancy{}
	}
	r.Status = Rollup(r.Discrepancies)
}
