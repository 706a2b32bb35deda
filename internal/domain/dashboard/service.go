package dashboard

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TechCorp07/klara-test-sub003/internal/domain/appointment"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/emergency"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/medication"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/telemedicine"
	"github.com/TechCorp07/klara-test-sub003/internal/domain/wearable"
)

// The dashboard composes read paths of the other domains. Each
// dependency is the narrow slice it actually reads.

type AppointmentReader interface {
	Upcoming(ctx context.Context, patientID uuid.UUID, limit int) ([]*appointment.Appointment, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*appointment.Appointment, int, error)
}

type MedicationReader interface {
	DaySchedule(ctx context.Context, patientID uuid.UUID, day time.Time) ([]*medication.DoseEntry, error)
	Adherence(ctx context.Context, patientID uuid.UUID, from, to time.Time) (*medication.AdherenceSummary, error)
}

type InboxReader interface {
	UnreadCount(ctx context.Context, userID uuid.UUID) (int, error)
}

type DeviceReader interface {
	ListDevices(ctx context.Context, patientID uuid.UUID) (*wearable.DeviceList, error)
}

type SessionReader interface {
	WaitingForProvider(ctx context.Context, providerID uuid.UUID) ([]*telemedicine.Session, error)
}

type AlertReader interface {
	RecentAlerts(ctx context.Context, limit int) ([]*emergency.Alert, error)
}

// PatientDashboard is the patient home screen payload.
type PatientDashboard struct {
	NextAppointment *appointment.Appointment     `json:"next_appointment,omitempty"`
	TodaysDoses     []*medication.DoseEntry      `json:"todays_doses"`
	Adherence       *medication.AdherenceSummary `json:"adherence,omitempty"`
	UnreadCount     int                          `json:"unread_count"`
	DeviceCount     int                          `json:"device_count"`
	DevicePrompt    string                       `json:"device_prompt,omitempty"`
}

// ProviderDashboard is the provider home screen payload.
type ProviderDashboard struct {
	TodaysAppointments []*appointment.Appointment `json:"todays_appointments"`
	WaitingSessions    []*telemedicine.Session    `json:"waiting_sessions"`
	RecentAlerts       []*emergency.Alert         `json:"recent_alerts"`
}

type Service struct {
	appointments AppointmentReader
	medications  MedicationReader
	inbox        InboxReader
	devices      DeviceReader
	sessions     SessionReader
	alerts       AlertReader
	logger       zerolog.Logger

	now func() time.Time
}

func NewService(appointments AppointmentReader, medications MedicationReader, inbox InboxReader, devices DeviceReader, sessions SessionReader, alerts AlertReader, logger zerolog.Logger) *Service {
	return &Service{
		appointments: appointments,
		medications:  medications,
		inbox:        inbox,
		devices:      devices,
		sessions:     sessions,
		alerts:       alerts,
		logger:       logger.With().Str("component", "dashboard").Logger(),
		now:          time.Now,
	}
}

// Patient assembles the patient home screen. A failing section logs and
// leaves its zero value rather than failing the whole dashboard.
func (s *Service) Patient(ctx context.Context, patientID uuid.UUID) (*PatientDashboard, error) {
	d := &PatientDashboard{TodaysDoses: []*medication.DoseEntry{}}
	now := s.now()

	if upcoming, err := s.appointments.Upcoming(ctx, patientID, 1); err != nil {
		s.logger.Warn().Err(err).Msg("dashboard: upcoming appointments")
	} else if len(upcoming) > 0 {
		d.NextAppointment = upcoming[0]
	}

	if doses, err := s.medications.DaySchedule(ctx, patientID, now); err != nil {
		s.logger.Warn().Err(err).Msg("dashboard: dose schedule")
	} else if doses != nil {
		d.TodaysDoses = doses
	}

	if adherence, err := s.medications.Adherence(ctx, patientID, now.AddDate(0, 0, -30), now); err != nil {
		s.logger.Warn().Err(err).Msg("dashboard: adherence")
	} else {
		d.Adherence = adherence
	}

	if unread, err := s.inbox.UnreadCount(ctx, patientID); err != nil {
		s.logger.Warn().Err(err).Msg("dashboard: unread count")
	} else {
		d.UnreadCount = unread
	}

	if devices, err := s.devices.ListDevices(ctx, patientID); err != nil {
		s.logger.Warn().Err(err).Msg("dashboard: devices")
	} else {
		d.DeviceCount = len(devices.Data)
		d.DevicePrompt = devices.Prompt
	}

	return d, nil
}

// Provider assembles the provider home screen.
func (s *Service) Provider(ctx context.Context, providerID uuid.UUID) (*ProviderDashboard, error) {
	d := &ProviderDashboard{
		TodaysAppointments: []*appointment.Appointment{},
		WaitingSessions:    []*telemedicine.Session{},
		RecentAlerts:       []*emergency.Alert{},
	}
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	dayEnd := dayStart.AddDate(0, 0, 1)

	if appts, _, err := s.appointments.ListByProvider(ctx, providerID, 200, 0); err != nil {
		s.logger.Warn().Err(err).Msg("dashboard: provider appointments")
	} else {
		for _, a := range appts {
			if !a.ScheduledStart.Before(dayStart) && a.ScheduledStart.Before(dayEnd) {
				d.TodaysAppointments = append(d.TodaysAppointments, a)
			}
		}
	}

	if sessions, err := s.sessions.WaitingForProvider(ctx, providerID); err != nil {
		s.logger.Warn().Err(err).Msg("dashboard: waiting sessions")
	} else if sessions != nil {
		d.WaitingSessions = sessions
	}

	if alerts, err := s.alerts.RecentAlerts(ctx, 10); err != nil {
		s.logger.Warn().Err(err).Msg("dashboard: recent alerts")
	} else if alerts != nil {
		d.RecentAlerts = alerts
	}

	return d, nil
}
