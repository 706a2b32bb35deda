package wearable

import (
	"time"

	"github.com/google/uuid"
)

// Integration maps to the wearable_integration table. One row per
// patient and vendor; tokens never leave the API.
type Integration struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	Provider     string     `db:"provider" json:"provider"`
	Status       string     `db:"status" json:"status"`
	AccessToken  string     `db:"access_token" json:"-"`
	RefreshToken string     `db:"refresh_token" json:"-"`
	Scope        string     `db:"scope" json:"scope,omitempty"`
	ConnectedAt  *time.Time `db:"connected_at" json:"connected_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// Integration providers.
const (
	ProviderWithings    = "withings"
	ProviderFitbit      = "fitbit"
	ProviderGarmin      = "garmin"
	ProviderAppleHealth = "apple-health"
)

// Integration statuses.
const (
	StatusDisconnected = "disconnected"
	StatusPending      = "pending"
	StatusConnected    = "connected"
	StatusDisabled     = "disabled"
)

// Device maps to the wearable_device table.
type Device struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	IntegrationID uuid.UUID  `db:"integration_id" json:"integration_id"`
	Model         string     `db:"model" json:"model"`
	Battery       *int       `db:"battery" json:"battery,omitempty"`
	LastSeenAt    *time.Time `db:"last_seen_at" json:"last_seen_at,omitempty"`
	Status        string     `db:"status" json:"status"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Measurement maps to the measurement table.
type Measurement struct {
	ID         uuid.UUID `db:"id" json:"id"`
	DeviceID   uuid.UUID `db:"device_id" json:"device_id"`
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	Kind       string    `db:"kind" json:"kind"`
	Value      float64   `db:"value" json:"value"`
	Unit       string    `db:"unit" json:"unit"`
	MeasuredAt time.Time `db:"measured_at" json:"measured_at"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Measurement kinds.
const (
	KindHeartRate     = "heart-rate"
	KindSteps         = "steps"
	KindWeight        = "weight"
	KindBloodPressure = "blood-pressure"
	KindSpO2          = "spo2"
	KindSleep         = "sleep"
)

// NoDevicesPrompt is returned alongside an empty device list when the
// patient has no connected integration, so the dashboard can render the
// connect call to action.
const NoDevicesPrompt = "no-devices-connected"

// ConnectStart is returned when a patient begins the OAuth flow.
type ConnectStart struct {
	Provider     string `json:"provider"`
	AuthorizeURL string `json:"authorize_url"`
	State        string `json:"state"`
}

// DeviceList is the device listing payload. Prompt is set only when
// there is nothing connected.
type DeviceList struct {
	Data   []*Device `json:"data"`
	Prompt string    `json:"prompt,omitempty"`
}
