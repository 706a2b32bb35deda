package ehr

import (
	"time"

	"github.com/google/uuid"
)

// Integration maps to the ehr_integration table. ClientSecret is write
// only and never leaves the API.
type Integration struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	Name           string     `db:"name" json:"name"`
	Vendor         string     `db:"vendor" json:"vendor"`
	BaseURL        string     `db:"base_url" json:"base_url"`
	ClientID       string     `db:"client_id" json:"client_id"`
	ClientSecret   string     `db:"client_secret" json:"-"`
	Status         string     `db:"status" json:"status"`
	LastTestAt     *time.Time `db:"last_test_at" json:"last_test_at,omitempty"`
	LastTestResult *string    `db:"last_test_result" json:"last_test_result,omitempty"`
	LastSyncAt     *time.Time `db:"last_sync_at" json:"last_sync_at,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Integration vendors.
const (
	VendorEpic   = "epic"
	VendorCerner = "cerner"
	VendorAthena = "athena"
	VendorCustom = "custom"
)

// Integration statuses.
const (
	StatusUnconfigured = "unconfigured"
	StatusConfigured   = "configured"
	StatusConnected    = "connected"
	StatusError        = "error"
)

// SyncJob maps to the sync_job table and records one pull of resources
// out of an integration.
type SyncJob struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	IntegrationID uuid.UUID  `db:"integration_id" json:"integration_id"`
	ResourceTypes []string   `db:"resource_types" json:"resource_types"`
	Status        string     `db:"status" json:"status"`
	Fetched       int        `db:"fetched" json:"fetched"`
	Stored        int        `db:"stored" json:"stored"`
	Failed        int        `db:"failed" json:"failed"`
	Error         *string    `db:"error" json:"error,omitempty"`
	StartedAt     time.Time  `db:"started_at" json:"started_at"`
	FinishedAt    *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// Sync job statuses.
const (
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// ConfigureRequest carries integration credentials.
type ConfigureRequest struct {
	Name         string `json:"name"`
	Vendor       string `json:"vendor"`
	BaseURL      string `json:"base_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// TestResult reports the outcome of a connection test.
type TestResult struct {
	OK       bool      `json:"ok"`
	Status   string    `json:"status"`
	Message  string    `json:"message,omitempty"`
	TestedAt time.Time `json:"tested_at"`
}
