package wearable

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/metrics"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/upstream"
)

var validProviders = map[string]bool{
	ProviderWithings:    true,
	ProviderFitbit:      true,
	ProviderGarmin:      true,
	ProviderAppleHealth: true,
}

var validKinds = map[string]string{
	KindHeartRate:     "bpm",
	KindSteps:         "count",
	KindWeight:        "kg",
	KindBloodPressure: "mmHg",
	KindSpO2:          "%",
	KindSleep:         "min",
}

// vendor OAuth endpoints
var providerEndpoints = map[string]struct {
	authorizeURL string
	tokenBase    string
	tokenPath    string
}{
	ProviderWithings:    {"https://account.withings.com/oauth2_user/authorize2", "https://wbsapi.withings.net", "/v2/oauth2"},
	ProviderFitbit:      {"https://www.fitbit.com/oauth2/authorize", "https://api.fitbit.com", "/oauth2/token"},
	ProviderGarmin:      {"https://connect.garmin.com/oauth2Confirm", "https://diauth.garmin.com", "/di-oauth2-service/oauth/token"},
	ProviderAppleHealth: {"https://appleid.apple.com/auth/authorize", "https://appleid.apple.com", "/auth/token"},
}

// ProviderCredentials holds our app registration with one vendor.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
}

// Config carries the OAuth settings for all vendors. A zero Timeout
// falls back to 30 seconds per vendor call.
type Config struct {
	RedirectURI string
	Credentials map[string]ProviderCredentials
	Timeout     time.Duration
}

// TokenExchanger is the slice of the upstream client the callback needs.
type TokenExchanger interface {
	PostJSON(ctx context.Context, path string, body, out any) error
}

const stateTTL = 10 * time.Minute

type pendingState struct {
	integrationID uuid.UUID
	patientID     uuid.UUID
	provider      string
	expires       time.Time
}

type Service struct {
	integrations IntegrationRepository
	devices      DeviceRepository
	measurements MeasurementRepository
	cfg          Config
	metrics      *metrics.Metrics
	logger       zerolog.Logger

	mu     sync.Mutex
	states map[string]pendingState

	exchangers map[string]TokenExchanger

	// newExchanger is swapped in tests.
	newExchanger func(provider, baseURL string) TokenExchanger
	now          func() time.Time
}

func NewService(integrations IntegrationRepository, devices DeviceRepository, measurements MeasurementRepository, cfg Config, logger zerolog.Logger) *Service {
	log := logger.With().Str("component", "wearable").Logger()
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	s := &Service{
		integrations: integrations,
		devices:      devices,
		measurements: measurements,
		cfg:          cfg,
		logger:       log,
		states:       make(map[string]pendingState),
		exchangers:   make(map[string]TokenExchanger),
		now:          time.Now,
	}
	s.newExchanger = func(provider, baseURL string) TokenExchanger {
		c := upstream.NewClient("wearable:"+provider, baseURL, s.cfg.Timeout, log)
		if s.metrics != nil {
			c.SetMetrics(s.metrics.UpstreamCalls)
		}
		return c
	}
	return s
}

// SetMetrics wires the metrics registry used for vendor call counters.
func (s *Service) SetMetrics(m *metrics.Metrics) { s.metrics = m }

// StartConnect begins the OAuth flow for one vendor. The returned state
// must come back unchanged on the callback.
func (s *Service) StartConnect(ctx context.Context, patientID uuid.UUID, provider string) (*ConnectStart, error) {
	if !validProviders[provider] {
		return nil, fmt.Errorf("invalid provider %q", provider)
	}
	if patientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}

	integ, err := s.integrations.GetByPatientAndProvider(ctx, patientID, provider)
	if err != nil {
		integ = &Integration{PatientID: patientID, Provider: provider, Status: StatusPending}
		if err := s.integrations.Create(ctx, integ); err != nil {
			return nil, fmt.Errorf("create integration: %w", err)
		}
	} else {
		if integ.Status == StatusConnected {
			return nil, fmt.Errorf("%s is already connected", provider)
		}
		integ.Status = StatusPending
		if err := s.integrations.Update(ctx, integ); err != nil {
			return nil, fmt.Errorf("update integration: %w", err)
		}
	}

	state, err := randomState()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	s.mu.Lock()
	s.states[state] = pendingState{
		integrationID: integ.ID,
		patientID:     patientID,
		provider:      provider,
		expires:       s.now().Add(stateTTL),
	}
	s.mu.Unlock()

	ep := providerEndpoints[provider]
	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", s.cfg.Credentials[provider].ClientID)
	q.Set("redirect_uri", s.cfg.RedirectURI)
	q.Set("state", state)
	return &ConnectStart{
		Provider:     provider,
		AuthorizeURL: ep.authorizeURL + "?" + q.Encode(),
		State:        state,
	}, nil
}

// HandleCallback finishes the OAuth flow: the state is checked and the
// code exchanged for tokens through the vendor's token endpoint.
func (s *Service) HandleCallback(ctx context.Context, state, code string) (*Integration, error) {
	if code == "" {
		return nil, fmt.Errorf("code is required")
	}

	s.mu.Lock()
	pending, ok := s.states[state]
	if ok {
		delete(s.states, state)
	}
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown state")
	}
	if s.now().After(pending.expires) {
		return nil, fmt.Errorf("state expired")
	}

	integ, err := s.integrations.GetByID(ctx, pending.integrationID)
	if err != nil {
		return nil, fmt.Errorf("integration not found")
	}

	creds := s.cfg.Credentials[pending.provider]
	var tokens struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		Scope        string `json:"scope"`
	}
	err = s.exchanger(pending.provider).PostJSON(ctx, providerEndpoints[pending.provider].tokenPath, map[string]string{
		"grant_type":    "authorization_code",
		"code":          code,
		"client_id":     creds.ClientID,
		"client_secret": creds.ClientSecret,
		"redirect_uri":  s.cfg.RedirectURI,
	}, &tokens)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	if tokens.AccessToken == "" {
		return nil, fmt.Errorf("vendor returned no access token")
	}

	now := s.now().UTC()
	integ.Status = StatusConnected
	integ.AccessToken = tokens.AccessToken
	integ.RefreshToken = tokens.RefreshToken
	integ.Scope = tokens.Scope
	integ.ConnectedAt = &now
	if err := s.integrations.Update(ctx, integ); err != nil {
		return nil, fmt.Errorf("store tokens: %w", err)
	}
	s.logger.Info().Str("provider", integ.Provider).Str("patient_id", integ.PatientID.String()).
		Msg("wearable integration connected")
	return integ, nil
}

// Disconnect drops the vendor link and its tokens.
func (s *Service) Disconnect(ctx context.Context, patientID uuid.UUID, provider string) (*Integration, error) {
	integ, err := s.integrations.GetByPatientAndProvider(ctx, patientID, provider)
	if err != nil {
		return nil, fmt.Errorf("integration not found")
	}
	integ.Status = StatusDisconnected
	integ.AccessToken = ""
	integ.RefreshToken = ""
	integ.ConnectedAt = nil
	if err := s.integrations.Update(ctx, integ); err != nil {
		return nil, fmt.Errorf("update integration: %w", err)
	}
	return integ, nil
}

func (s *Service) ListIntegrations(ctx context.Context, patientID uuid.UUID) ([]*Integration, error) {
	return s.integrations.ListByPatient(ctx, patientID)
}

// ListDevices returns the patient's devices under connected
// integrations. When nothing is connected the payload carries the
// no-devices prompt.
func (s *Service) ListDevices(ctx context.Context, patientID uuid.UUID) (*DeviceList, error) {
	devices, err := s.devices.ListConnectedByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	list := &DeviceList{Data: devices}
	if list.Data == nil {
		list.Data = []*Device{}
	}
	if len(list.Data) == 0 {
		connected := false
		integrations, err := s.integrations.ListByPatient(ctx, patientID)
		if err != nil {
			return nil, fmt.Errorf("list integrations: %w", err)
		}
		for _, integ := range integrations {
			if integ.Status == StatusConnected {
				connected = true
				break
			}
		}
		if !connected {
			list.Prompt = NoDevicesPrompt
		}
	}
	return list, nil
}

// IngestBatch stores a batch of measurements reported for one device.
// The owning patient comes from the device's integration, never from
// the payload.
func (s *Service) IngestBatch(ctx context.Context, deviceID uuid.UUID, batch []*Measurement) (int, error) {
	if len(batch) == 0 {
		return 0, fmt.Errorf("batch is empty")
	}
	device, err := s.devices.GetByID(ctx, deviceID)
	if err != nil {
		return 0, fmt.Errorf("device not found")
	}
	integ, err := s.integrations.GetByID(ctx, device.IntegrationID)
	if err != nil {
		return 0, fmt.Errorf("integration not found")
	}
	if integ.Status != StatusConnected {
		return 0, fmt.Errorf("integration is %s", integ.Status)
	}

	for _, m := range batch {
		unit, ok := validKinds[m.Kind]
		if !ok {
			return 0, fmt.Errorf("invalid measurement kind %q", m.Kind)
		}
		if m.MeasuredAt.IsZero() {
			return 0, fmt.Errorf("measured_at is required")
		}
		m.DeviceID = deviceID
		m.PatientID = integ.PatientID
		if m.Unit == "" {
			m.Unit = unit
		}
	}
	if err := s.measurements.CreateBatch(ctx, batch); err != nil {
		return 0, fmt.Errorf("store measurements: %w", err)
	}

	now := s.now().UTC()
	device.LastSeenAt = &now
	if err := s.devices.Upsert(ctx, device); err != nil {
		return 0, fmt.Errorf("touch device: %w", err)
	}
	return len(batch), nil
}

func (s *Service) RegisterDevice(ctx context.Context, integrationID uuid.UUID, model string) (*Device, error) {
	integ, err := s.integrations.GetByID(ctx, integrationID)
	if err != nil {
		return nil, fmt.Errorf("integration not found")
	}
	if integ.Status != StatusConnected {
		return nil, fmt.Errorf("integration is %s", integ.Status)
	}
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	device := &Device{IntegrationID: integrationID, Model: model, Status: "active"}
	if err := s.devices.Upsert(ctx, device); err != nil {
		return nil, fmt.Errorf("store device: %w", err)
	}
	return device, nil
}

// Measurements queries a patient's readings by kind and time range.
func (s *Service) Measurements(ctx context.Context, patientID uuid.UUID, kind string, from, to time.Time, limit, offset int) ([]*Measurement, int, error) {
	if kind != "" {
		if _, ok := validKinds[kind]; !ok {
			return nil, 0, fmt.Errorf("invalid measurement kind %q", kind)
		}
	}
	if to.IsZero() {
		to = s.now().UTC()
	}
	if from.IsZero() {
		from = to.AddDate(0, 0, -30)
	}
	if !to.After(from) {
		return nil, 0, fmt.Errorf("time range is empty")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.measurements.ListByPatient(ctx, patientID, kind, from, to, limit, offset)
}

func (s *Service) exchanger(provider string) TokenExchanger {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.exchangers[provider]; ok {
		return e
	}
	e := s.newExchanger(provider, providerEndpoints[provider].tokenBase)
	s.exchangers[provider] = e
	return e
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
