package fhirresource

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// StoredResource maps to the stored_resource table. The resource body is
// kept as raw JSONB; resource_type, fhir_id, and patient_id are extracted
// at write time so the browser can search without unpacking JSON.
type StoredResource struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	ResourceType string          `db:"resource_type" json:"resource_type"`
	FHIRID       string          `db:"fhir_id" json:"fhir_id"`
	PatientID    *uuid.UUID      `db:"patient_id" json:"patient_id,omitempty"`
	VersionID    int             `db:"version_id" json:"version_id"`
	Source       string          `db:"source" json:"source"`
	Body         json.RawMessage `db:"body" json:"body"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

// Resource sources.
const (
	SourceLocal = "local"
	SourceSync  = "ehr-sync"
)

// SearchParams narrows a resource listing.
type SearchParams struct {
	ResourceType string
	PatientID    uuid.UUID
	FHIRID       string
	Text         string
	Limit        int
	Offset       int
}

// ImportResult summarizes a bundle or NDJSON import.
type ImportResult struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}
