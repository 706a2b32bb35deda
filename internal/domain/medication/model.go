package medication

import (
	"time"

	"github.com/google/uuid"
)

// Medication maps to the medication table.
type Medication struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	Name         string     `db:"name" json:"name"`
	Dosage       string     `db:"dosage" json:"dosage"`
	Form         *string    `db:"form" json:"form,omitempty"`
	Route        *string    `db:"route" json:"route,omitempty"`
	PrescriberID *uuid.UUID `db:"prescriber_id" json:"prescriber_id,omitempty"`
	Instructions *string    `db:"instructions" json:"instructions,omitempty"`
	RefillsLeft  int        `db:"refills_left" json:"refills_left"`
	Status       string     `db:"status" json:"status"`
	StartDate    *time.Time `db:"start_date" json:"start_date,omitempty"`
	EndDate      *time.Time `db:"end_date" json:"end_date,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Prescription maps to the prescription table.
type Prescription struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	MedicationID uuid.UUID  `db:"medication_id" json:"medication_id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	ProviderID   uuid.UUID  `db:"provider_id" json:"provider_id"`
	Quantity     int        `db:"quantity" json:"quantity"`
	Refills      int        `db:"refills" json:"refills"`
	Pharmacy     *string    `db:"pharmacy" json:"pharmacy,omitempty"`
	Status       string     `db:"status" json:"status"`
	WrittenAt    time.Time  `db:"written_at" json:"written_at"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// DoseEntry maps to the dose_entry table. One row per scheduled dose.
type DoseEntry struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	MedicationID  uuid.UUID  `db:"medication_id" json:"medication_id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	ScheduledTime time.Time  `db:"scheduled_time" json:"scheduled_time"`
	Taken         bool       `db:"taken" json:"taken"`
	TakenAt       *time.Time `db:"taken_at" json:"taken_at,omitempty"`
	Skipped       bool       `db:"skipped" json:"skipped"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`

	// Status is derived, not stored.
	Status string `db:"-" json:"status"`
}

// Dose status values.
const (
	DoseTaken    = "taken"
	DoseSkipped  = "skipped"
	DoseDueNow   = "due-now"
	DoseOverdue  = "overdue"
	DoseUpcoming = "upcoming"
)

// DueWindow is the half-width of the "due now" window around a dose's
// scheduled time.
const DueWindow = 30 * time.Minute

// Classify derives the dose status relative to now.
func (d *DoseEntry) Classify(now time.Time) string {
	switch {
	case d.Taken:
		return DoseTaken
	case d.Skipped:
		return DoseSkipped
	case absDuration(d.ScheduledTime.Sub(now)) <= DueWindow:
		return DoseDueNow
	case d.ScheduledTime.Before(now.Add(-DueWindow)):
		return DoseOverdue
	default:
		return DoseUpcoming
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// AdherenceSummary reports adherence over a window.
type AdherenceSummary struct {
	PatientID    uuid.UUID `json:"patient_id"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	TakenCount   int       `json:"taken_count"`
	MissedCount  int       `json:"missed_count"`
	SkippedCount int       `json:"skipped_count"`
	Rate         float64   `json:"rate"`
	StreakDays   int       `json:"streak_days"`
}
