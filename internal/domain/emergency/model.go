package emergency

import (
	"time"

	"github.com/google/uuid"
)

// Contact maps to the emergency_contact table. Priority 1 is contacted
// first.
type Contact struct {
	ID           uuid.UUID `db:"id" json:"id"`
	PatientID    uuid.UUID `db:"patient_id" json:"patient_id"`
	Name         string    `db:"name" json:"name"`
	Relationship string    `db:"relationship" json:"relationship"`
	Phone        string    `db:"phone" json:"phone"`
	Email        string    `db:"email" json:"email"`
	Priority     int       `db:"priority" json:"priority"`
	Verified     bool      `db:"verified" json:"verified"`
	NotifyBy     string    `db:"notify_by" json:"notify_by"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Notify preferences.
const (
	NotifySMS   = "sms"
	NotifyEmail = "email"
	NotifyBoth  = "both"
)

// Alert maps to the emergency_alert table.
type Alert struct {
	ID           uuid.UUID      `db:"id" json:"id"`
	PatientID    uuid.UUID      `db:"patient_id" json:"patient_id"`
	Message      string         `db:"message" json:"message"`
	Location     string         `db:"location" json:"location,omitempty"`
	Status       string         `db:"status" json:"status"`
	Outcomes     []AlertOutcome `db:"outcomes" json:"outcomes"`
	DispatchedAt time.Time      `db:"dispatched_at" json:"dispatched_at"`
}

// AlertOutcome records the delivery result for one contact.
type AlertOutcome struct {
	ContactID uuid.UUID `json:"contact_id"`
	Name      string    `json:"name"`
	Channel   string    `json:"channel"`
	Sent      bool      `json:"sent"`
	Error     string    `json:"error,omitempty"`
}

// Alert statuses.
const (
	AlertSent    = "sent"
	AlertPartial = "partial"
	AlertFailed  = "failed"
)

// DispatchRequest triggers an alert to the patient's contacts.
type DispatchRequest struct {
	Message  string `json:"message"`
	Location string `json:"location"`
}
