package telemedicine

import (
	"time"

	"github.com/google/uuid"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/auth"
)

// Session maps to the telemedicine_session table.
type Session struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	AppointmentID  uuid.UUID  `db:"appointment_id" json:"appointment_id"`
	PatientID      uuid.UUID  `db:"patient_id" json:"patient_id"`
	ProviderID     uuid.UUID  `db:"provider_id" json:"provider_id"`
	Status         string     `db:"status" json:"status"`
	JoinURL        string     `db:"join_url" json:"join_url"`
	RoomToken      string     `db:"room_token" json:"-"`
	PatientJoined  bool       `db:"patient_joined" json:"patient_joined"`
	ProviderJoined bool       `db:"provider_joined" json:"provider_joined"`
	StartedAt      *time.Time `db:"started_at" json:"started_at,omitempty"`
	EndedAt        *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Session statuses.
const (
	StatusScheduled  = "scheduled"
	StatusWaiting    = "waiting"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusExpired    = "expired"
	StatusCancelled  = "cancelled"
)

// MaxSessionDuration is how long a session may stay open after it starts
// before the watcher expires it.
const MaxSessionDuration = 2 * time.Hour

// JoinResult is returned to a participant joining a session.
type JoinResult struct {
	Session   *Session `json:"session"`
	JoinURL   string   `json:"join_url"`
	RoomToken string   `json:"room_token"`
}

// ConnectionTest reports a pre-call network check.
type ConnectionTest struct {
	LatencyMS      int       `json:"latency_ms"`
	BandwidthClass string    `json:"bandwidth_class"`
	Passed         bool      `json:"passed"`
	TestedAt       time.Time `json:"tested_at"`
}

// open reports whether the session still counts against the watcher.
func (s *Session) open() bool {
	return s.Status == StatusWaiting || s.Status == StatusInProgress
}

// participant reports whether userID is a party to the session. Admins
// count as participants everywhere.
func (s *Session) participant(userID uuid.UUID, roles []string) bool {
	return userID == s.PatientID || userID == s.ProviderID || auth.HasRole(roles, auth.RoleAdmin)
}
