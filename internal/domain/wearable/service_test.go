package wearable

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type mockIntegrationRepo struct {
	integrations map[uuid.UUID]*Integration
}

func newMockIntegrationRepo() *mockIntegrationRepo {
	return &mockIntegrationRepo{integrations: make(map[uuid.UUID]*Integration)}
}

func (m *mockIntegrationRepo) Create(_ context.Context, i *Integration) error {
	i.ID = uuid.New()
	cp := *i
	m.integrations[i.ID] = &cp
	return nil
}

func (m *mockIntegrationRepo) GetByID(_ context.Context, id uuid.UUID) (*Integration, error) {
	i, ok := m.integrations[id]
	if !ok {
		return nil, fmt.Errorf("integration not found")
	}
	cp := *i
	return &cp, nil
}

func (m *mockIntegrationRepo) GetByPatientAndProvider(_ context.Context, patientID uuid.UUID, provider string) (*Integration, error) {
	for _, i := range m.integrations {
		if i.PatientID == patientID && i.Provider == provider {
			cp := *i
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("integration not found")
}

func (m *mockIntegrationRepo) Update(_ context.Context, i *Integration) error {
	if _, ok := m.integrations[i.ID]; !ok {
		return fmt.Errorf("integration not found")
	}
	cp := *i
	m.integrations[i.ID] = &cp
	return nil
}

func (m *mockIntegrationRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Integration, error) {
	var out []*Integration
	for _, i := range m.integrations {
		if i.PatientID == patientID {
			cp := *i
			out = append(out, &cp)
		}
	}
	return out, nil
}

type mockDeviceRepo struct {
	devices      map[uuid.UUID]*Device
	integrations *mockIntegrationRepo
}

func newMockDeviceRepo(integrations *mockIntegrationRepo) *mockDeviceRepo {
	return &mockDeviceRepo{devices: make(map[uuid.UUID]*Device), integrations: integrations}
}

func (m *mockDeviceRepo) Upsert(_ context.Context, d *Device) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	cp := *d
	m.devices[d.ID] = &cp
	return nil
}

func (m *mockDeviceRepo) GetByID(_ context.Context, id uuid.UUID) (*Device, error) {
	d, ok := m.devices[id]
	if !ok {
		return nil, fmt.Errorf("device not found")
	}
	cp := *d
	return &cp, nil
}

func (m *mockDeviceRepo) ListConnectedByPatient(_ context.Context, patientID uuid.UUID) ([]*Device, error) {
	var out []*Device
	for _, d := range m.devices {
		integ, ok := m.integrations.integrations[d.IntegrationID]
		if !ok || integ.PatientID != patientID || integ.Status != StatusConnected {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

type mockMeasurementRepo struct {
	measurements []*Measurement
}

func (m *mockMeasurementRepo) CreateBatch(_ context.Context, batch []*Measurement) error {
	for _, mm := range batch {
		mm.ID = uuid.New()
		cp := *mm
		m.measurements = append(m.measurements, &cp)
	}
	return nil
}

func (m *mockMeasurementRepo) ListByPatient(_ context.Context, patientID uuid.UUID, kind string, from, to time.Time, _, _ int) ([]*Measurement, int, error) {
	var out []*Measurement
	for _, mm := range m.measurements {
		if mm.PatientID != patientID {
			continue
		}
		if kind != "" && mm.Kind != kind {
			continue
		}
		if mm.MeasuredAt.Before(from) || !mm.MeasuredAt.Before(to) {
			continue
		}
		cp := *mm
		out = append(out, &cp)
	}
	return out, len(out), nil
}

type mockExchanger struct {
	response map[string]string
	err      error
	lastBody map[string]string
}

func (m *mockExchanger) PostJSON(_ context.Context, _ string, body, out any) error {
	m.lastBody, _ = body.(map[string]string)
	if m.err != nil {
		return m.err
	}
	tokens := out.(*struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		Scope        string `json:"scope"`
	})
	tokens.AccessToken = m.response["access_token"]
	tokens.RefreshToken = m.response["refresh_token"]
	tokens.Scope = m.response["scope"]
	return nil
}

func newTestService(integrations *mockIntegrationRepo, devices *mockDeviceRepo, measurements *mockMeasurementRepo, exchanger *mockExchanger) *Service {
	cfg := Config{
		RedirectURI: "https://portal.example.com/api/v1/wearables/integrations/callback",
		Credentials: map[string]ProviderCredentials{
			ProviderFitbit: {ClientID: "fitbit-client", ClientSecret: "fitbit-secret"},
		},
	}
	svc := NewService(integrations, devices, measurements, cfg, zerolog.Nop())
	svc.newExchanger = func(_, _ string) TokenExchanger { return exchanger }
	return svc
}

func connect(t *testing.T, svc *Service, patientID uuid.UUID) *Integration {
	t.Helper()
	start, err := svc.StartConnect(context.Background(), patientID, ProviderFitbit)
	if err != nil {
		t.Fatalf("StartConnect: %v", err)
	}
	integ, err := svc.HandleCallback(context.Background(), start.State, "auth-code")
	if err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	return integ
}

func TestStartConnect(t *testing.T) {
	repo := newMockIntegrationRepo()
	svc := newTestService(repo, newMockDeviceRepo(repo), &mockMeasurementRepo{}, &mockExchanger{})
	patientID := uuid.New()

	start, err := svc.StartConnect(context.Background(), patientID, ProviderFitbit)
	if err != nil {
		t.Fatalf("StartConnect: %v", err)
	}
	if start.State == "" {
		t.Error("expected state")
	}
	if !strings.Contains(start.AuthorizeURL, "state="+start.State) {
		t.Errorf("authorize url %q missing state", start.AuthorizeURL)
	}
	if !strings.Contains(start.AuthorizeURL, "client_id=fitbit-client") {
		t.Errorf("authorize url %q missing client id", start.AuthorizeURL)
	}

	integ, err := repo.GetByPatientAndProvider(context.Background(), patientID, ProviderFitbit)
	if err != nil {
		t.Fatalf("integration not stored: %v", err)
	}
	if integ.Status != StatusPending {
		t.Errorf("status = %q, want %q", integ.Status, StatusPending)
	}
}

func TestStartConnectRejectsUnknownProvider(t *testing.T) {
	repo := newMockIntegrationRepo()
	svc := newTestService(repo, newMockDeviceRepo(repo), &mockMeasurementRepo{}, &mockExchanger{})
	if _, err := svc.StartConnect(context.Background(), uuid.New(), "polar"); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestHandleCallback(t *testing.T) {
	repo := newMockIntegrationRepo()
	exchanger := &mockExchanger{response: map[string]string{
		"access_token": "at-1", "refresh_token": "rt-1", "scope": "activity heartrate",
	}}
	svc := newTestService(repo, newMockDeviceRepo(repo), &mockMeasurementRepo{}, exchanger)
	patientID := uuid.New()

	integ := connect(t, svc, patientID)
	if integ.Status != StatusConnected {
		t.Errorf("status = %q, want %q", integ.Status, StatusConnected)
	}
	if integ.ConnectedAt == nil {
		t.Error("expected connected_at set")
	}
	stored := repo.integrations[integ.ID]
	if stored.AccessToken != "at-1" || stored.RefreshToken != "rt-1" {
		t.Error("expected tokens stored")
	}
	if exchanger.lastBody["code"] != "auth-code" {
		t.Errorf("exchange body code = %q, want auth-code", exchanger.lastBody["code"])
	}
}

func TestHandleCallbackRejectsReplayedState(t *testing.T) {
	repo := newMockIntegrationRepo()
	exchanger := &mockExchanger{response: map[string]string{"access_token": "at-1"}}
	svc := newTestService(repo, newMockDeviceRepo(repo), &mockMeasurementRepo{}, exchanger)

	start, _ := svc.StartConnect(context.Background(), uuid.New(), ProviderFitbit)
	if _, err := svc.HandleCallback(context.Background(), start.State, "code"); err != nil {
		t.Fatalf("HandleCallback: %v", err)
	}
	if _, err := svc.HandleCallback(context.Background(), start.State, "code"); err == nil {
		t.Error("expected error replaying state")
	}
}

func TestHandleCallbackExpiredState(t *testing.T) {
	repo := newMockIntegrationRepo()
	svc := newTestService(repo, newMockDeviceRepo(repo), &mockMeasurementRepo{}, &mockExchanger{})

	start, _ := svc.StartConnect(context.Background(), uuid.New(), ProviderFitbit)
	svc.now = func() time.Time { return time.Now().Add(stateTTL + time.Minute) }
	if _, err := svc.HandleCallback(context.Background(), start.State, "code"); err == nil {
		t.Error("expected error for expired state")
	}
}

func TestDisconnectClearsTokens(t *testing.T) {
	repo := newMockIntegrationRepo()
	exchanger := &mockExchanger{response: map[string]string{"access_token": "at-1", "refresh_token": "rt-1"}}
	svc := newTestService(repo, newMockDeviceRepo(repo), &mockMeasurementRepo{}, exchanger)
	patientID := uuid.New()
	connect(t, svc, patientID)

	integ, err := svc.Disconnect(context.Background(), patientID, ProviderFitbit)
	if err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if integ.Status != StatusDisconnected {
		t.Errorf("status = %q, want %q", integ.Status, StatusDisconnected)
	}
	stored := repo.integrations[integ.ID]
	if stored.AccessToken != "" || stored.RefreshToken != "" {
		t.Error("expected tokens cleared")
	}
}

func TestListDevicesPromptWhenNothingConnected(t *testing.T) {
	repo := newMockIntegrationRepo()
	devices := newMockDeviceRepo(repo)
	svc := newTestService(repo, devices, &mockMeasurementRepo{}, &mockExchanger{})
	patientID := uuid.New()

	list, err := svc.ListDevices(context.Background(), patientID)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(list.Data) != 0 {
		t.Errorf("devices = %d, want 0", len(list.Data))
	}
	if list.Prompt != NoDevicesPrompt {
		t.Errorf("prompt = %q, want %q", list.Prompt, NoDevicesPrompt)
	}
}

func TestListDevicesNoPromptWhenConnected(t *testing.T) {
	repo := newMockIntegrationRepo()
	devices := newMockDeviceRepo(repo)
	exchanger := &mockExchanger{response: map[string]string{"access_token": "at-1"}}
	svc := newTestService(repo, devices, &mockMeasurementRepo{}, exchanger)
	patientID := uuid.New()
	connect(t, svc, patientID)

	list, err := svc.ListDevices(context.Background(), patientID)
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(list.Data) != 0 {
		t.Errorf("devices = %d, want 0", len(list.Data))
	}
	if list.Prompt != "" {
		t.Errorf("prompt = %q, want empty with a connected integration", list.Prompt)
	}
}

func TestListDevicesExcludesDisabledIntegrations(t *testing.T) {
	repo := newMockIntegrationRepo()
	devices := newMockDeviceRepo(repo)
	exchanger := &mockExchanger{response: map[string]string{"access_token": "at-1"}}
	svc := newTestService(repo, devices, &mockMeasurementRepo{}, exchanger)
	patientID := uuid.New()
	integ := connect(t, svc, patientID)

	device, err := svc.RegisterDevice(context.Background(), integ.ID, "Charge 6")
	if err != nil {
		t.Fatalf("RegisterDevice: %v", err)
	}

	list, _ := svc.ListDevices(context.Background(), patientID)
	if len(list.Data) != 1 || list.Data[0].ID != device.ID {
		t.Fatalf("devices = %+v, want the registered device", list.Data)
	}

	stored := repo.integrations[integ.ID]
	stored.Status = StatusDisabled

	list, _ = svc.ListDevices(context.Background(), patientID)
	if len(list.Data) != 0 {
		t.Errorf("devices = %d, want 0 once integration disabled", len(list.Data))
	}
}

func TestIngestBatch(t *testing.T) {
	repo := newMockIntegrationRepo()
	devices := newMockDeviceRepo(repo)
	measurements := &mockMeasurementRepo{}
	exchanger := &mockExchanger{response: map[string]string{"access_token": "at-1"}}
	svc := newTestService(repo, devices, measurements, exchanger)
	patientID := uuid.New()
	integ := connect(t, svc, patientID)
	device, _ := svc.RegisterDevice(context.Background(), integ.ID, "Charge 6")

	now := time.Now().UTC()
	n, err := svc.IngestBatch(context.Background(), device.ID, []*Measurement{
		{Kind: KindHeartRate, Value: 72, MeasuredAt: now},
		{Kind: KindSteps, Value: 4200, MeasuredAt: now},
	})
	if err != nil {
		t.Fatalf("IngestBatch: %v", err)
	}
	if n != 2 {
		t.Errorf("ingested = %d, want 2", n)
	}
	for _, m := range measurements.measurements {
		if m.PatientID != patientID {
			t.Error("expected patient id stamped from integration")
		}
		if m.Unit == "" {
			t.Error("expected default unit filled in")
		}
	}
	if devices.devices[device.ID].LastSeenAt == nil {
		t.Error("expected device last_seen_at touched")
	}
}

func TestIngestBatchRejectsInvalidKind(t *testing.T) {
	repo := newMockIntegrationRepo()
	devices := newMockDeviceRepo(repo)
	measurements := &mockMeasurementRepo{}
	exchanger := &mockExchanger{response: map[string]string{"access_token": "at-1"}}
	svc := newTestService(repo, devices, measurements, exchanger)
	integ := connect(t, svc, uuid.New())
	device, _ := svc.RegisterDevice(context.Background(), integ.ID, "Charge 6")

	_, err := svc.IngestBatch(context.Background(), device.ID, []*Measurement{
		{Kind: "mood", Value: 5, MeasuredAt: time.Now()},
	})
	if err == nil {
		t.Fatal("expected error for invalid kind")
	}
	if len(measurements.measurements) != 0 {
		t.Error("invalid batch must not be stored")
	}
}

func TestMeasurementsQuery(t *testing.T) {
	repo := newMockIntegrationRepo()
	devices := newMockDeviceRepo(repo)
	measurements := &mockMeasurementRepo{}
	exchanger := &mockExchanger{response: map[string]string{"access_token": "at-1"}}
	svc := newTestService(repo, devices, measurements, exchanger)
	patientID := uuid.New()
	integ := connect(t, svc, patientID)
	device, _ := svc.RegisterDevice(context.Background(), integ.ID, "Charge 6")

	now := time.Now().UTC()
	svc.IngestBatch(context.Background(), device.ID, []*Measurement{
		{Kind: KindHeartRate, Value: 70, MeasuredAt: now.Add(-time.Hour)},
		{Kind: KindHeartRate, Value: 80, MeasuredAt: now.Add(-48 * time.Hour)},
		{Kind: KindSteps, Value: 1000, MeasuredAt: now.Add(-time.Hour)},
	})

	items, total, err := svc.Measurements(context.Background(), patientID, KindHeartRate,
		now.Add(-24*time.Hour), now, 0, 0)
	if err != nil {
		t.Fatalf("Measurements: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("results = %d, want 1", total)
	}
	if items[0].Value != 70 {
		t.Errorf("value = %v, want 70", items[0].Value)
	}

	if _, _, err := svc.Measurements(context.Background(), patientID, "mood", time.Time{}, time.Time{}, 0, 0); err == nil {
		t.Error("expected error for invalid kind")
	}
}
