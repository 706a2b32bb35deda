package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Appointment maps to the appointment table.
type Appointment struct {
	ID             uuid.UUID `db:"id" json:"id"`
	PatientID      uuid.UUID `db:"patient_id" json:"patient_id"`
	ProviderID     uuid.UUID `db:"provider_id" json:"provider_id"`
	Type           string    `db:"type" json:"type"`
	Status         string    `db:"status" json:"status"`
	ScheduledStart time.Time `db:"scheduled_start" json:"scheduled_start"`
	ScheduledEnd   time.Time `db:"scheduled_end" json:"scheduled_end"`
	Reason         *string   `db:"reason" json:"reason,omitempty"`
	Location       *string   `db:"location" json:"location,omitempty"`
	Notes          *string   `db:"notes" json:"notes,omitempty"`
	CancelReason   *string   `db:"cancel_reason" json:"cancel_reason,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Appointment types.
const (
	TypeInPerson     = "in-person"
	TypeTelemedicine = "telemedicine"
)

// Appointment statuses.
const (
	StatusRequested = "requested"
	StatusConfirmed = "confirmed"
	StatusCheckedIn = "checked-in"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no-show"
)
