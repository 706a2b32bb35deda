package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// InboxNotifier pushes a notification to a user's inbox. The inbox
// service satisfies this; a nil notifier disables events.
type InboxNotifier interface {
	Push(ctx context.Context, userID uuid.UUID, kind, title, body string) error
}

var validTypes = map[string]bool{
	TypeInPerson:     true,
	TypeTelemedicine: true,
}

// cancellable lists the statuses an appointment may be cancelled from.
var cancellable = map[string]bool{
	StatusRequested: true,
	StatusConfirmed: true,
}

type Service struct {
	repo  Repository
	inbox InboxNotifier
	now   func() time.Time
}

func NewService(repo Repository, inbox InboxNotifier) *Service {
	return &Service{repo: repo, inbox: inbox, now: time.Now}
}

// Request creates a new appointment in the requested state.
func (s *Service) Request(ctx context.Context, a *Appointment) error {
	if a.PatientID == uuid.Nil || a.ProviderID == uuid.Nil {
		return fmt.Errorf("patient_id and provider_id are required")
	}
	if a.Type == "" {
		a.Type = TypeInPerson
	}
	if !validTypes[a.Type] {
		return fmt.Errorf("invalid type: %s", a.Type)
	}
	if a.ScheduledStart.IsZero() || a.ScheduledEnd.IsZero() {
		return fmt.Errorf("scheduled_start and scheduled_end are required")
	}
	if !a.ScheduledEnd.After(a.ScheduledStart) {
		return fmt.Errorf("scheduled_end must be after scheduled_start")
	}
	if a.ScheduledStart.Before(s.now()) {
		return fmt.Errorf("cannot schedule in the past")
	}
	a.Status = StatusRequested
	return s.repo.Create(ctx, a)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.GetByID(ctx, id)
}

// Confirm moves a requested appointment to confirmed and notifies the
// patient's inbox.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("appointment not found")
	}
	if a.Status != StatusRequested {
		return nil, fmt.Errorf("cannot confirm from status %s", a.Status)
	}
	a.Status = StatusConfirmed
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	s.notify(ctx, a.PatientID, "appointment.confirmed", "Appointment confirmed",
		fmt.Sprintf("Your appointment on %s was confirmed.", a.ScheduledStart.Format("Jan 2 at 3:04 PM")))
	return a, nil
}

// Cancel cancels a requested or confirmed appointment with a reason.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("appointment not found")
	}
	if !cancellable[a.Status] {
		return nil, fmt.Errorf("cannot cancel from status %s", a.Status)
	}
	if reason == "" {
		return nil, fmt.Errorf("cancel reason is required")
	}
	a.Status = StatusCancelled
	a.CancelReason = &reason
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	s.notify(ctx, a.PatientID, "appointment.cancelled", "Appointment cancelled",
		fmt.Sprintf("Your appointment on %s was cancelled: %s", a.ScheduledStart.Format("Jan 2 at 3:04 PM"), reason))
	return a, nil
}

// Reschedule moves an appointment to a new slot and resets it to requested.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, start, end time.Time) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("appointment not found")
	}
	if a.Status == StatusCompleted || a.Status == StatusCancelled {
		return nil, fmt.Errorf("cannot reschedule from status %s", a.Status)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("scheduled_end must be after scheduled_start")
	}
	if start.Before(s.now()) {
		return nil, fmt.Errorf("cannot schedule in the past")
	}
	a.ScheduledStart = start
	a.ScheduledEnd = end
	a.Status = StatusRequested
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	return a, nil
}

// CheckIn marks a confirmed appointment as checked in.
func (s *Service) CheckIn(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed, StatusCheckedIn)
}

// Complete marks a checked-in appointment as completed.
func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusCheckedIn, StatusCompleted)
}

// MarkNoShow marks a confirmed appointment as a no-show.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, StatusConfirmed, StatusNoShow)
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, from, to string) (*Appointment, error) {
	a, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("appointment not found")
	}
	if a.Status != from {
		return nil, fmt.Errorf("cannot move to %s from status %s", to, a.Status)
	}
	a.Status = to
	if err := s.repo.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update appointment: %w", err)
	}
	return a, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) ListByProvider(ctx context.Context, providerID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.repo.ListByProvider(ctx, providerID, limit, offset)
}

func (s *Service) ListBetween(ctx context.Context, from, to time.Time, limit, offset int) ([]*Appointment, int, error) {
	if !from.Before(to) {
		return nil, 0, fmt.Errorf("range start must precede end")
	}
	return s.repo.ListBetween(ctx, from, to, limit, offset)
}

func (s *Service) Upcoming(ctx context.Context, patientID uuid.UUID, limit int) ([]*Appointment, error) {
	return s.repo.ListUpcoming(ctx, patientID, s.now(), limit)
}

func (s *Service) notify(ctx context.Context, userID uuid.UUID, kind, title, body string) {
	if s.inbox == nil {
		return
	}
	// Inbox delivery is best effort; the state change already committed.
	_ = s.inbox.Push(ctx, userID, kind, title, body)
}
