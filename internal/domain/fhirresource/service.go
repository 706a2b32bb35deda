package fhirresource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/fhir"
)

type Service struct {
	repo      Repository
	validator *fhir.Validator
	logger    zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		validator: fhir.NewValidator(),
		logger:    logger.With().Str("component", "fhirresource").Logger(),
	}
}

// Validate runs structural validation without storing anything.
func (s *Service) Validate(body json.RawMessage) *fhir.ValidationResult {
	return s.validator.ValidateResource(body)
}

// Upsert stores a raw resource, replacing any stored copy with the same
// resourceType and id. The body must pass structural validation.
func (s *Service) Upsert(ctx context.Context, body json.RawMessage, source string, patientID *uuid.UUID) (*StoredResource, error) {
	if source != SourceLocal && source != SourceSync {
		return nil, fmt.Errorf("invalid source %q", source)
	}
	result := s.validator.ValidateResource(body)
	if !result.Valid {
		return nil, &ValidationError{Result: result}
	}

	resourceType, fhirID := extractIdentity(body)
	if fhirID == "" {
		fhirID = uuid.NewString()
		body = withID(body, fhirID)
	}
	if patientID == nil {
		patientID = extractPatientRef(body)
	}

	existing, err := s.repo.GetByTypeAndFHIRID(ctx, resourceType, fhirID)
	if err == nil && existing != nil {
		existing.Body = body
		existing.Source = source
		existing.PatientID = patientID
		if err := s.repo.Update(ctx, existing); err != nil {
			return nil, fmt.Errorf("update resource: %w", err)
		}
		return existing, nil
	}

	sr := &StoredResource{
		ResourceType: resourceType,
		FHIRID:       fhirID,
		PatientID:    patientID,
		Source:       source,
		Body:         body,
	}
	if err := s.repo.Create(ctx, sr); err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return sr, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*StoredResource, error) {
	return s.repo.GetByID(ctx, id)
}

// Read resolves a resource by its FHIR identity, Patient/123 style.
func (s *Service) Read(ctx context.Context, resourceType, fhirID string) (*StoredResource, error) {
	if !fhir.KnownResourceType(resourceType) {
		return nil, fmt.Errorf("unknown resource type %q", resourceType)
	}
	return s.repo.GetByTypeAndFHIRID(ctx, resourceType, fhirID)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return fmt.Errorf("resource not found")
	}
	return s.repo.Delete(ctx, id)
}

// Search returns matching resources as a FHIR searchset bundle.
func (s *Service) Search(ctx context.Context, params SearchParams, baseURL string) (*fhir.Bundle, error) {
	if params.ResourceType != "" && !fhir.KnownResourceType(params.ResourceType) {
		return nil, fmt.Errorf("unknown resource type %q", params.ResourceType)
	}
	if params.Limit <= 0 || params.Limit > 200 {
		params.Limit = 50
	}
	items, total, err := s.repo.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("search resources: %w", err)
	}
	bodies := make([]json.RawMessage, 0, len(items))
	for _, it := range items {
		bodies = append(bodies, it.Body)
	}
	return fhir.NewSearchBundle(bodies, total, baseURL), nil
}

func (s *Service) List(ctx context.Context, params SearchParams) ([]*StoredResource, int, error) {
	if params.Limit <= 0 || params.Limit > 200 {
		params.Limit = 50
	}
	return s.repo.Search(ctx, params)
}

func (s *Service) TypeCounts(ctx context.Context) (map[string]int, error) {
	return s.repo.ListTypes(ctx)
}

// ImportBundle upserts every entry of a FHIR bundle. Entries that fail
// validation are skipped and reported, not fatal.
func (s *Service) ImportBundle(ctx context.Context, raw json.RawMessage, source string, patientID *uuid.UUID) (*ImportResult, error) {
	var bundle struct {
		ResourceType string `json:"resourceType"`
		Entry        []struct {
			Resource json.RawMessage `json:"resource"`
		} `json:"entry"`
	}
	if err := json.Unmarshal(raw, &bundle); err != nil {
		return nil, fmt.Errorf("parse bundle: %w", err)
	}
	if bundle.ResourceType != "Bundle" {
		return nil, fmt.Errorf("expected a Bundle, got %q", bundle.ResourceType)
	}

	result := &ImportResult{}
	for i, entry := range bundle.Entry {
		if len(entry.Resource) == 0 {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: missing resource", i))
			continue
		}
		sr, err := s.Upsert(ctx, entry.Resource, source, patientID)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("entry %d: %v", i, err))
			continue
		}
		if sr.VersionID > 1 {
			result.Updated++
		} else {
			result.Created++
		}
	}
	s.logger.Info().Int("created", result.Created).Int("updated", result.Updated).
		Int("failed", result.Failed).Msg("bundle import finished")
	return result, nil
}

// ExportPatient streams every resource linked to the patient as NDJSON.
func (s *Service) ExportPatient(ctx context.Context, patientID uuid.UUID, w io.Writer) (int, error) {
	items, _, err := s.repo.Search(ctx, SearchParams{PatientID: patientID, Limit: 10000})
	if err != nil {
		return 0, fmt.Errorf("load patient resources: %w", err)
	}
	writer := fhir.NewNDJSONWriter(w)
	for _, it := range items {
		if err := writer.WriteResource(it.Body); err != nil {
			return 0, fmt.Errorf("write resource: %w", err)
		}
	}
	if err := writer.Flush(); err != nil {
		return 0, err
	}
	return len(items), nil
}

// ValidationError carries the structural issues so the handler can emit
// an OperationOutcome payload.
type ValidationError struct {
	Result *fhir.ValidationResult
}

func (e *ValidationError) Error() string {
	if len(e.Result.Issues) > 0 {
		return e.Result.Issues[0].Diagnostics
	}
	return "resource failed validation"
}

func extractIdentity(body json.RawMessage) (resourceType, fhirID string) {
	var probe struct {
		ResourceType string `json:"resourceType"`
		ID           string `json:"id"`
	}
	_ = json.Unmarshal(body, &probe)
	return probe.ResourceType, probe.ID
}

// extractPatientRef pulls a patient UUID from subject or patient
// references when the stored id happens to be one of ours.
func extractPatientRef(body json.RawMessage) *uuid.UUID {
	var probe struct {
		Subject *fhir.Reference `json:"subject"`
		Patient *fhir.Reference `json:"patient"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return nil
	}
	for _, ref := range []*fhir.Reference{probe.Subject, probe.Patient} {
		if ref == nil {
			continue
		}
		raw := ref.Reference
		if len(raw) > len("Patient/") && raw[:len("Patient/")] == "Patient/" {
			if id, err := uuid.Parse(raw[len("Patient/"):]); err == nil {
				return &id
			}
		}
	}
	return nil
}

func withID(body json.RawMessage, id string) json.RawMessage {
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return body
	}
	m["id"] = id
	out, err := json.Marshal(m)
	if err != nil {
		return body
	}
	return out
}
