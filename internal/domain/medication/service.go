package medication

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/auth"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/metrics"
)

// ErrNotOwner is returned when a patient acts on another patient's dose.
var ErrNotOwner = errors.New("dose belongs to another patient")

var validMedicationStatuses = map[string]bool{
	"active":       true,
	"paused":       true,
	"discontinued": true,
	"completed":    true,
}

var validPrescriptionStatuses = map[string]bool{
	"active":    true,
	"filled":    true,
	"expired":   true,
	"cancelled": true,
}

// InboxNotifier records an in-app notification for a user.
type InboxNotifier interface {
	Push(ctx context.Context, userID uuid.UUID, kind, title, body string) error
}

type Service struct {
	medications   MedicationRepository
	prescriptions PrescriptionRepository
	doses         DoseRepository
	metrics       *metrics.Metrics
	inbox         InboxNotifier

	mu       sync.Mutex
	reminded map[uuid.UUID]time.Time

	// now is swappable in tests.
	now func() time.Time
}

func NewService(meds MedicationRepository, rx PrescriptionRepository, doses DoseRepository, m *metrics.Metrics) *Service {
	return &Service{
		medications:   meds,
		prescriptions: rx,
		doses:         doses,
		metrics:       m,
		reminded:      make(map[uuid.UUID]time.Time),
		now:           time.Now,
	}
}

// SetInbox wires the in-app notification sink after construction.
func (s *Service) SetInbox(inbox InboxNotifier) { s.inbox = inbox }

// -- Medications --

func (s *Service) CreateMedication(ctx context.Context, m *Medication) error {
	if m.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if m.Dosage == "" {
		return fmt.Errorf("dosage is required")
	}
	if m.Status == "" {
		m.Status = "active"
	}
	if !validMedicationStatuses[m.Status] {
		return fmt.Errorf("invalid status: %s", m.Status)
	}
	return s.medications.Create(ctx, m)
}

func (s *Service) GetMedication(ctx context.Context, id uuid.UUID) (*Medication, error) {
	return s.medications.GetByID(ctx, id)
}

func (s *Service) UpdateMedication(ctx context.Context, m *Medication) error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !validMedicationStatuses[m.Status] {
		return fmt.Errorf("invalid status: %s", m.Status)
	}
	return s.medications.Update(ctx, m)
}

func (s *Service) DeleteMedication(ctx context.Context, id uuid.UUID) error {
	return s.medications.Delete(ctx, id)
}

func (s *Service) ListMedicationsByPatient(ctx context.Context, patientID uuid.UUID, activeOnly bool, limit, offset int) ([]*Medication, int, error) {
	return s.medications.ListByPatient(ctx, patientID, activeOnly, limit, offset)
}

// -- Prescriptions --

func (s *Service) CreatePrescription(ctx context.Context, p *Prescription) error {
	if p.MedicationID == uuid.Nil || p.PatientID == uuid.Nil || p.ProviderID == uuid.Nil {
		return fmt.Errorf("medication_id, patient_id, and provider_id are required")
	}
	if p.Quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if p.Status == "" {
		p.Status = "active"
	}
	if !validPrescriptionStatuses[p.Status] {
		return fmt.Errorf("invalid status: %s", p.Status)
	}
	if p.WrittenAt.IsZero() {
		p.WrittenAt = s.now()
	}
	return s.prescriptions.Create(ctx, p)
}

func (s *Service) GetPrescription(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) UpdatePrescription(ctx context.Context, p *Prescription) error {
	if !validPrescriptionStatuses[p.Status] {
		return fmt.Errorf("invalid status: %s", p.Status)
	}
	return s.prescriptions.Update(ctx, p)
}

func (s *Service) ListPrescriptionsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListByPatient(ctx, patientID, limit, offset)
}

// -- Doses --

func (s *Service) ScheduleDose(ctx context.Context, d *DoseEntry) error {
	if d.MedicationID == uuid.Nil || d.PatientID == uuid.Nil {
		return fmt.Errorf("medication_id and patient_id are required")
	}
	if d.ScheduledTime.IsZero() {
		return fmt.Errorf("scheduled_time is required")
	}
	return s.doses.Create(ctx, d)
}

// DaySchedule returns the patient's doses for the calendar day containing
// day, each classified relative to the current time.
func (s *Service) DaySchedule(ctx context.Context, patientID uuid.UUID, day time.Time) ([]*DoseEntry, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	entries, err := s.doses.ListByPatientBetween(ctx, patientID, start, start.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	now := s.now()
	for _, d := range entries {
		d.Status = d.Classify(now)
	}
	return entries, nil
}

// MarkTaken stamps the dose as taken. Only the dose's patient or a
// provider may mark it. Doses already taken or skipped are conflicts
// and nothing is written.
func (s *Service) MarkTaken(ctx context.Context, doseID, actor uuid.UUID, roles []string) (*DoseEntry, error) {
	d, err := s.doses.GetByID(ctx, doseID)
	if err != nil {
		return nil, fmt.Errorf("dose not found")
	}
	if d.PatientID != actor && !auth.HasRole(roles, auth.RoleProvider) {
		return nil, ErrNotOwner
	}
	if d.Taken {
		return nil, fmt.Errorf("dose already marked taken")
	}
	if d.Skipped {
		return nil, fmt.Errorf("dose already marked skipped")
	}
	now := s.now()
	d.Taken = true
	d.TakenAt = &now
	if err := s.doses.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("update dose: %w", err)
	}
	if s.metrics != nil {
		s.metrics.DosesMarked.WithLabelValues("taken").Inc()
	}
	d.Status = DoseTaken
	return d, nil
}

// MarkSkipped records a deliberate skip. Only the dose's patient or a
// provider may skip it. Taken doses cannot be skipped.
func (s *Service) MarkSkipped(ctx context.Context, doseID, actor uuid.UUID, roles []string) (*DoseEntry, error) {
	d, err := s.doses.GetByID(ctx, doseID)
	if err != nil {
		return nil, fmt.Errorf("dose not found")
	}
	if d.PatientID != actor && !auth.HasRole(roles, auth.RoleProvider) {
		return nil, ErrNotOwner
	}
	if d.Taken {
		return nil, fmt.Errorf("dose already marked taken")
	}
	if d.Skipped {
		return nil, fmt.Errorf("dose already marked skipped")
	}
	d.Skipped = true
	if err := s.doses.Update(ctx, d); err != nil {
		return nil, fmt.Errorf("update dose: %w", err)
	}
	if s.metrics != nil {
		s.metrics.DosesMarked.WithLabelValues("skipped").Inc()
	}
	d.Status = DoseSkipped
	return d, nil
}

// RemindDue pushes an inbox reminder for every unresolved dose inside the
// due window that has not been reminded yet. Each dose is reminded at most
// once. Returns the number of reminders pushed.
func (s *Service) RemindDue(ctx context.Context) (int, error) {
	if s.inbox == nil {
		return 0, nil
	}
	now := s.now()
	doses, err := s.doses.ListUnresolvedBetween(ctx, now.Add(-DueWindow), now.Add(DueWindow))
	if err != nil {
		return 0, err
	}

	pushed := 0
	for _, d := range doses {
		s.mu.Lock()
		_, seen := s.reminded[d.ID]
		if !seen {
			s.reminded[d.ID] = now
		}
		s.mu.Unlock()
		if seen {
			continue
		}

		name := "your medication"
		if med, err := s.medications.GetByID(ctx, d.MedicationID); err == nil {
			name = med.Name
		}
		title := fmt.Sprintf("Time to take %s", name)
		body := fmt.Sprintf("Your %s dose is due.", d.ScheduledTime.Format("15:04"))
		if err := s.inbox.Push(ctx, d.PatientID, "dose.due", title, body); err != nil {
			continue
		}
		pushed++
	}

	s.mu.Lock()
	for id, t := range s.reminded {
		if now.Sub(t) > 24*time.Hour {
			delete(s.reminded, id)
		}
	}
	s.mu.Unlock()

	return pushed, nil
}

// StartReminders runs RemindDue on the given interval until ctx is
// cancelled.
func (s *Service) StartReminders(ctx context.Context, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = time.Minute
	}
	log := logger.With().Str("component", "medication").Logger()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.RemindDue(ctx); err != nil {
					log.Error().Err(err).Msg("dose reminder sweep failed")
				} else if n > 0 {
					log.Info().Int("reminders", n).Msg("dose reminders pushed")
				}
			}
		}
	}()
}

// Adherence summarises dose adherence over the window [from, to).
// A dose counts as missed once it is overdue and neither taken nor
// skipped. The streak is the number of consecutive days ending today
// with no missed dose.
func (s *Service) Adherence(ctx context.Context, patientID uuid.UUID, from, to time.Time) (*AdherenceSummary, error) {
	if !from.Before(to) {
		return nil, fmt.Errorf("window start must precede end")
	}
	entries, err := s.doses.ListByPatientBetween(ctx, patientID, from, to)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sum := &AdherenceSummary{PatientID: patientID, WindowStart: from, WindowEnd: to}
	missedDays := make(map[string]bool)
	for _, d := range entries {
		switch d.Classify(now) {
		case DoseTaken:
			sum.TakenCount++
		case DoseSkipped:
			sum.SkippedCount++
		case DoseOverdue:
			sum.MissedCount++
			missedDays[d.ScheduledTime.Format("2006-01-02")] = true
		}
	}

	if denom := sum.TakenCount + sum.MissedCount; denom > 0 {
		sum.Rate = float64(sum.TakenCount) / float64(denom) * 100
	} else {
		sum.Rate = 100
	}

	for day := now; !day.Before(from); day = day.AddDate(0, 0, -1) {
		if missedDays[day.Format("2006-01-02")] {
			break
		}
		sum.StreakDays++
	}

	return sum, nil
}
