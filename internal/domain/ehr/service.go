package ehr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TechCorp07/klara-test-sub003/internal/domain/fhirresource"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/fhir"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/metrics"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/upstream"
)

var validVendors = map[string]bool{
	VendorEpic:   true,
	VendorCerner: true,
	VendorAthena: true,
	VendorCustom: true,
}

// Fetcher is the slice of the upstream client the sync path needs.
type Fetcher interface {
	GetJSON(ctx context.Context, path string, out any) error
}

// ResourceImporter stores pulled resources. Satisfied by the
// fhirresource service.
type ResourceImporter interface {
	ImportBundle(ctx context.Context, raw json.RawMessage, source string, patientID *uuid.UUID) (*fhirresource.ImportResult, error)
}

// InboxNotifier records an in-app notification for a user.
type InboxNotifier interface {
	Push(ctx context.Context, userID uuid.UUID, kind, title, body string) error
}

type Service struct {
	integrations IntegrationRepository
	jobs         SyncJobRepository
	importer     ResourceImporter
	metrics      *metrics.Metrics
	logger       zerolog.Logger

	mu      sync.Mutex
	clients map[uuid.UUID]Fetcher

	timeout time.Duration

	// newClient is swapped in tests.
	newClient func(target, baseURL string) Fetcher
	now       func() time.Time
}

func NewService(integrations IntegrationRepository, jobs SyncJobRepository, importer ResourceImporter, m *metrics.Metrics, logger zerolog.Logger) *Service {
	log := logger.With().Str("component", "ehr").Logger()
	s := &Service{
		integrations: integrations,
		jobs:         jobs,
		importer:     importer,
		metrics:      m,
		logger:       log,
		clients:      make(map[uuid.UUID]Fetcher),
		timeout:      30 * time.Second,
		now:          time.Now,
	}
	s.newClient = func(target, baseURL string) Fetcher {
		c := upstream.NewClient(target, baseURL, s.timeout, log)
		if s.metrics != nil {
			c.SetMetrics(s.metrics.UpstreamCalls)
		}
		return c
	}
	return s
}

// SetUpstreamTimeout overrides the per-request timeout for vendor
// calls. Values <= 0 keep the default.
func (s *Service) SetUpstreamTimeout(d time.Duration) {
	if d > 0 {
		s.timeout = d
	}
}

// Configure creates or reconfigures an integration. Credentials move the
// integration out of unconfigured; they are replaced wholesale, never
// merged.
func (s *Service) Configure(ctx context.Context, id uuid.UUID, req *ConfigureRequest) (*Integration, error) {
	if !validVendors[req.Vendor] {
		return nil, fmt.Errorf("invalid vendor %q", req.Vendor)
	}
	if req.Name == "" || req.BaseURL == "" {
		return nil, fmt.Errorf("name and base_url are required")
	}
	if !strings.HasPrefix(req.BaseURL, "http://") && !strings.HasPrefix(req.BaseURL, "https://") {
		return nil, fmt.Errorf("base_url must be an http(s) URL")
	}

	status := StatusConfigured
	if req.ClientID == "" || req.ClientSecret == "" {
		status = StatusUnconfigured
	}

	if id != uuid.Nil {
		integ, err := s.integrations.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("integration not found")
		}
		integ.Name = req.Name
		integ.Vendor = req.Vendor
		integ.BaseURL = req.BaseURL
		integ.ClientID = req.ClientID
		integ.ClientSecret = req.ClientSecret
		integ.Status = status
		if err := s.integrations.Update(ctx, integ); err != nil {
			return nil, fmt.Errorf("update integration: %w", err)
		}
		s.dropClient(id)
		return integ, nil
	}

	integ := &Integration{
		Name:         req.Name,
		Vendor:       req.Vendor,
		BaseURL:      req.BaseURL,
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		Status:       status,
	}
	if err := s.integrations.Create(ctx, integ); err != nil {
		return nil, fmt.Errorf("create integration: %w", err)
	}
	return integ, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Integration, error) {
	return s.integrations.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]*Integration, error) {
	return s.integrations.List(ctx)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.integrations.GetByID(ctx, id); err != nil {
		return fmt.Errorf("integration not found")
	}
	s.dropClient(id)
	return s.integrations.Delete(ctx, id)
}

// TestConnection probes the vendor's capability endpoint. Success moves
// the integration to connected; failure records the message and moves it
// to error.
func (s *Service) TestConnection(ctx context.Context, id uuid.UUID) (*TestResult, error) {
	integ, err := s.integrations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("integration not found")
	}
	if integ.Status == StatusUnconfigured {
		return nil, fmt.Errorf("integration is not configured")
	}

	now := s.now().UTC()
	result := &TestResult{TestedAt: now}

	var capability map[string]any
	err = s.client(integ).GetJSON(ctx, "/metadata", &capability)
	integ.LastTestAt = &now
	if err != nil {
		if errors.Is(err, upstream.ErrCircuitOpen) {
			return nil, err
		}
		msg := err.Error()
		integ.Status = StatusError
		integ.LastTestResult = &msg
		if uerr := s.integrations.Update(ctx, integ); uerr != nil {
			return nil, fmt.Errorf("record test result: %w", uerr)
		}
		result.Status = StatusError
		result.Message = msg
		return result, nil
	}

	ok := "ok"
	integ.Status = StatusConnected
	integ.LastTestResult = &ok
	if err := s.integrations.Update(ctx, integ); err != nil {
		return nil, fmt.Errorf("record test result: %w", err)
	}
	result.OK = true
	result.Status = StatusConnected
	return result, nil
}

// Sync pulls the named resource types out of the integration and stores
// them through the importer. Each call records one SyncJob.
func (s *Service) Sync(ctx context.Context, id uuid.UUID, resourceTypes []string) (*SyncJob, error) {
	integ, err := s.integrations.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("integration not found")
	}
	if integ.Status == StatusUnconfigured {
		return nil, fmt.Errorf("integration is not configured")
	}
	if len(resourceTypes) == 0 {
		resourceTypes = []string{"Patient", "Observation", "MedicationRequest", "Condition", "AllergyIntolerance"}
	}
	for _, rt := range resourceTypes {
		if !fhir.KnownResourceType(rt) {
			return nil, fmt.Errorf("unknown resource type %q", rt)
		}
	}

	job := &SyncJob{
		IntegrationID: integ.ID,
		ResourceTypes: resourceTypes,
		Status:        JobRunning,
		StartedAt:     s.now().UTC(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create sync job: %w", err)
	}

	client := s.client(integ)
	var syncErr error
	for _, rt := range resourceTypes {
		var bundle json.RawMessage
		if err := client.GetJSON(ctx, "/"+rt+"?_count=100", &bundle); err != nil {
			syncErr = fmt.Errorf("fetch %s: %w", rt, err)
			break
		}
		job.Fetched += countEntries(bundle)
		result, err := s.importer.ImportBundle(ctx, bundle, fhirresource.SourceSync, nil)
		if err != nil {
			syncErr = fmt.Errorf("import %s: %w", rt, err)
			break
		}
		job.Stored += result.Created + result.Updated
		job.Failed += result.Failed
	}

	now := s.now().UTC()
	job.FinishedAt = &now
	if syncErr != nil {
		msg := syncErr.Error()
		job.Status = JobFailed
		job.Error = &msg
		integ.Status = StatusError
		integ.LastTestResult = &msg
	} else {
		job.Status = JobCompleted
		integ.Status = StatusConnected
		integ.LastSyncAt = &now
	}
	if err := s.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("finish sync job: %w", err)
	}
	if err := s.integrations.Update(ctx, integ); err != nil {
		return nil, fmt.Errorf("record sync outcome: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SyncJobsRun.WithLabelValues(job.Status).Inc()
	}
	if syncErr != nil && errors.Is(syncErr, upstream.ErrCircuitOpen) {
		return job, syncErr
	}
	s.logger.Info().Str("integration", integ.Name).Str("status", job.Status).
		Int("fetched", job.Fetched).Int("stored", job.Stored).Msg("sync finished")
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context, integrationID uuid.UUID, limit, offset int) ([]*SyncJob, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.jobs.ListByIntegration(ctx, integrationID, limit, offset)
}

func (s *Service) client(integ *Integration) Fetcher {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[integ.ID]; ok {
		return c
	}
	c := s.newClient(integ.Vendor+":"+integ.Name, integ.BaseURL)
	s.clients[integ.ID] = c
	return c
}

func (s *Service) dropClient(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, id)
}

func countEntries(bundle json.RawMessage) int {
	var probe struct {
		Entry []json.RawMessage `json:"entry"`
	}
	if err := json.Unmarshal(bundle, &probe); err != nil {
		return 0
	}
	return len(probe.Entry)
}
