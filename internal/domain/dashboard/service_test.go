package dashboard

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TechCorp07/klara-test-sub003/internal/domain/appointment"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/emergency"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/medication"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/telemedicine"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/wearable"
)

type stubAppointments struct {
	upcoming []*appointment.Appointment
	provider []*appointment.Appointment
	err      error
}

func (s *stubAppointments) Upcoming(_ context.Context, _ uuid.UUID, _ int) ([]*appointment.Appointment, error) {
	return s.upcoming, s.err
}

func (s *stubAppointments) ListByProvider(_ context.Context, _ uuid.UUID, _, _ int) ([]*appointment.Appointment, int, error) {
	return s.provider, len(s.provider), s.err
}

type stubMedications struct {
	doses     []*medication.DoseEntry
	adherence *medication.AdherenceSummary
}

func (s *stubMedications) DaySchedule(_ context.Context, _ uuid.UUID, _ time.Time) ([]*medication.DoseEntry, error) {
	return s.doses, nil
}

func (s *stubMedications) Adherence(_ context.Context, _ uuid.UUID, _, _ time.Time) (*medication.AdherenceSummary, error) {
	return s.adherence, nil
}

type stubInbox struct {
	unread int
	err    error
}

func (s *stubInbox) UnreadCount(_ context.Context, _ uuid.UUID) (int, error) {
	return s.unread, s.err
}

type stubDevices struct {
	list *wearable.DeviceList
}

func (s *stubDevices) ListDevices(_ context.Context, _ uuid.UUID) (*wearable.DeviceList, error) {
	return s.list, nil
}

type stubSessions struct {
	waiting []*telemedicine.Session
}

func (s *stubSessions) WaitingForProvider(_ context.Context, _ uuid.UUID) ([]*telemedicine.Session, error) {
	return s.waiting, nil
}

type stubAlerts struct {
	recent []*emergency.Alert
}

func (s *stubAlerts) RecentAlerts(_ context.Context, _ int) ([]*emergency.Alert, error) {
	return s.recent, nil
}

func TestPatientDashboard(t *testing.T) {
	next := &appointment.Appointment{ID: uuid.New(), Status: appointment.StatusConfirmed}
	doses := []*medication.DoseEntry{{ID: uuid.New(), Status: medication.DoseUpcoming}}
	svc := NewService(
		&stubAppointments{upcoming: []*appointment.Appointment{next}},
		&stubMedications{doses: doses, adherence: &medication.AdherenceSummary{Rate: 92.5, StreakDays: 4}},
		&stubInbox{unread: 3},
		&stubDevices{list: &wearable.DeviceList{Data: []*wearable.Device{{ID: uuid.New()}}}},
		&stubSessions{},
		&stubAlerts{},
		zerolog.Nop(),
	)

	d, err := svc.Patient(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Patient: %v", err)
	}
	if d.NextAppointment == nil || d.NextAppointment.ID != next.ID {
		t.Error("expected next appointment")
	}
	if len(d.TodaysDoses) != 1 {
		t.Errorf("doses = %d, want 1", len(d.TodaysDoses))
	}
	if d.Adherence == nil || d.Adherence.Rate != 92.5 {
		t.Error("expected adherence summary")
	}
	if d.UnreadCount != 3 {
		t.Errorf("unread = %d, want 3", d.UnreadCount)
	}
	if d.DeviceCount != 1 || d.DevicePrompt != "" {
		t.Errorf("devices = %d prompt = %q, want 1 device and no prompt", d.DeviceCount, d.DevicePrompt)
	}
}

func TestPatientDashboardCarriesDevicePrompt(t *testing.T) {
	svc := NewService(
		&stubAppointments{},
		&stubMedications{},
		&stubInbox{},
		&stubDevices{list: &wearable.DeviceList{Data: []*wearable.Device{}, Prompt: wearable.NoDevicesPrompt}},
		&stubSessions{},
		&stubAlerts{},
		zerolog.Nop(),
	)

	d, err := svc.Patient(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Patient: %v", err)
	}
	if d.DeviceCount != 0 {
		t.Errorf("devices = %d, want 0", d.DeviceCount)
	}
	if d.DevicePrompt != wearable.NoDevicesPrompt {
		t.Errorf("prompt = %q, want %q", d.DevicePrompt, wearable.NoDevicesPrompt)
	}
}

func TestPatientDashboardToleratesSectionFailure(t *testing.T) {
	svc := NewService(
		&stubAppointments{err: fmt.Errorf("db down")},
		&stubMedications{},
		&stubInbox{err: fmt.Errorf("db down")},
		&stubDevices{list: &wearable.DeviceList{Data: []*wearable.Device{}}},
		&stubSessions{},
		&stubAlerts{},
		zerolog.Nop(),
	)

	d, err := svc.Patient(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Patient: %v", err)
	}
	if d.NextAppointment != nil || d.UnreadCount != 0 {
		t.Error("failed sections must stay zero-valued")
	}
	if d.TodaysDoses == nil {
		t.Error("doses must never be nil")
	}
}

func TestProviderDashboard(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	today := &appointment.Appointment{ID: uuid.New(), ScheduledStart: now.Add(2 * time.Hour)}
	tomorrow := &appointment.Appointment{ID: uuid.New(), ScheduledStart: now.AddDate(0, 0, 1).Add(2 * time.Hour)}
	waiting := &telemedicine.Session{ID: uuid.New(), Status: telemedicine.StatusWaiting}
	alert := &emergency.Alert{ID: uuid.New(), Status: emergency.AlertSent}

	svc := NewService(
		&stubAppointments{provider: []*appointment.Appointment{today, tomorrow}},
		&stubMedications{},
		&stubInbox{},
		&stubDevices{list: &wearable.DeviceList{}},
		&stubSessions{waiting: []*telemedicine.Session{waiting}},
		&stubAlerts{recent: []*emergency.Alert{alert}},
		zerolog.Nop(),
	)
	svc.now = func() time.Time { return now }

	d, err := svc.Provider(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Provider: %v", err)
	}
	if len(d.TodaysAppointments) != 1 || d.TodaysAppointments[0].ID != today.ID {
		t.Errorf("todays appointments = %d, want only today's", len(d.TodaysAppointments))
	}
	if len(d.WaitingSessions) != 1 {
		t.Errorf("waiting sessions = %d, want 1", len(d.WaitingSessions))
	}
	if len(d.RecentAlerts) != 1 {
		t.Errorf("recent alerts = %d, want 1", len(d.RecentAlerts))
	}
}
