package emergency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/metrics"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/notification"
)

var validNotifyBy = map[string]bool{
	NotifySMS:   true,
	NotifyEmail: true,
	NotifyBoth:  true,
}

// Notifier delivers rendered notifications. Satisfied by the
// notification dispatcher.
type Notifier interface {
	Send(ctx context.Context, n *notification.Notification) error
}

// Renderer renders notification templates. Satisfied by the template
// engine.
type Renderer interface {
	Render(templateID string, data map[string]string) (subject, body string, err error)
}

// NameResolver looks up a user's display name. Satisfied by the account
// service.
type NameResolver interface {
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

// InboxNotifier records an in-app notification for a user.
type InboxNotifier interface {
	Push(ctx context.Context, userID uuid.UUID, kind, title, body string) error
}

type Service struct {
	contacts ContactRepository
	alerts   AlertRepository
	notifier Notifier
	renderer Renderer
	names    NameResolver
	inbox    InboxNotifier
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	now func() time.Time
}

func NewService(contacts ContactRepository, alerts AlertRepository, notifier Notifier, renderer Renderer, names NameResolver, m *metrics.Metrics, logger zerolog.Logger) *Service {
	return &Service{
		contacts: contacts,
		alerts:   alerts,
		notifier: notifier,
		renderer: renderer,
		names:    names,
		metrics:  m,
		logger:   logger.With().Str("component", "emergency").Logger(),
		now:      time.Now,
	}
}

// SetInbox wires the in-app notification sink after construction.
func (s *Service) SetInbox(inbox InboxNotifier) { s.inbox = inbox }

func (s *Service) CreateContact(ctx context.Context, c *Contact) (*Contact, error) {
	if err := validateContact(c); err != nil {
		return nil, err
	}
	c.Verified = false
	if err := s.contacts.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create contact: %w", err)
	}
	return c, nil
}

func (s *Service) UpdateContact(ctx context.Context, id uuid.UUID, upd *Contact) (*Contact, error) {
	c, err := s.contacts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("contact not found")
	}
	upd.ID = c.ID
	upd.PatientID = c.PatientID
	if err := validateContact(upd); err != nil {
		return nil, err
	}
	// contact details changed, verification no longer holds
	if upd.Phone != c.Phone || upd.Email != c.Email {
		upd.Verified = false
	} else {
		upd.Verified = c.Verified
	}
	if err := s.contacts.Update(ctx, upd); err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	return upd, nil
}

func (s *Service) GetContact(ctx context.Context, id uuid.UUID) (*Contact, error) {
	return s.contacts.GetByID(ctx, id)
}

func (s *Service) DeleteContact(ctx context.Context, id uuid.UUID) error {
	if _, err := s.contacts.GetByID(ctx, id); err != nil {
		return fmt.Errorf("contact not found")
	}
	return s.contacts.Delete(ctx, id)
}

func (s *Service) ListContacts(ctx context.Context, patientID uuid.UUID) ([]*Contact, error) {
	return s.contacts.ListByPatient(ctx, patientID)
}

// VerifyContact marks a contact as verified after an out-of-band check.
func (s *Service) VerifyContact(ctx context.Context, id uuid.UUID) (*Contact, error) {
	c, err := s.contacts.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("contact not found")
	}
	c.Verified = true
	if err := s.contacts.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("update contact: %w", err)
	}
	return c, nil
}

// Dispatch sends the emergency alert to every contact of the patient in
// priority order and records the per-contact outcomes.
func (s *Service) Dispatch(ctx context.Context, patientID uuid.UUID, req *DispatchRequest) (*Alert, error) {
	if req.Message == "" {
		return nil, fmt.Errorf("message is required")
	}
	contacts, err := s.contacts.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	if len(contacts) == 0 {
		return nil, fmt.Errorf("patient has no emergency contacts")
	}

	patientName := "the patient"
	if s.names != nil {
		if name, err := s.names.DisplayName(ctx, patientID); err == nil {
			patientName = name
		}
	}
	location := req.Location
	if location == "" {
		location = "unknown"
	}
	subject, body, err := s.renderer.Render("emergency-alert", map[string]string{
		"patient_name": patientName,
		"message":      req.Message,
		"location":     location,
	})
	if err != nil {
		return nil, fmt.Errorf("render alert: %w", err)
	}

	alert := &Alert{
		PatientID:    patientID,
		Message:      req.Message,
		Location:     req.Location,
		DispatchedAt: s.now().UTC(),
	}
	sent, failed := 0, 0
	for _, c := range contacts {
		for _, ch := range channelsFor(c) {
			outcome := AlertOutcome{ContactID: c.ID, Name: c.Name, Channel: string(ch.channel)}
			err := s.notifier.Send(ctx, &notification.Notification{
				Channel:   ch.channel,
				Recipient: ch.recipient,
				Subject:   subject,
				Body:      body,
			})
			if err != nil {
				outcome.Error = err.Error()
				failed++
			} else {
				outcome.Sent = true
				sent++
			}
			alert.Outcomes = append(alert.Outcomes, outcome)
		}
	}

	switch {
	case failed == 0:
		alert.Status = AlertSent
	case sent == 0:
		alert.Status = AlertFailed
	default:
		alert.Status = AlertPartial
	}

	if err := s.alerts.Create(ctx, alert); err != nil {
		return nil, fmt.Errorf("record alert: %w", err)
	}
	if s.metrics != nil {
		s.metrics.AlertsSent.Inc()
	}
	if s.inbox != nil {
		_ = s.inbox.Push(ctx, patientID, "emergency.alert",
			"Emergency alert sent",
			fmt.Sprintf("Your emergency contacts were notified (%d sent, %d failed).", sent, failed))
	}
	s.logger.Info().Str("patient_id", patientID.String()).Str("status", alert.Status).
		Int("sent", sent).Int("failed", failed).Msg("emergency alert dispatched")
	return alert, nil
}

func (s *Service) GetAlert(ctx context.Context, id uuid.UUID) (*Alert, error) {
	return s.alerts.GetByID(ctx, id)
}

func (s *Service) ListAlerts(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Alert, int, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.alerts.ListByPatient(ctx, patientID, limit, offset)
}

func (s *Service) RecentAlerts(ctx context.Context, limit int) ([]*Alert, error) {
	if limit <= 0 || limit > 50 {
		limit = 10
	}
	return s.alerts.ListRecent(ctx, limit)
}

type contactChannel struct {
	channel   notification.Channel
	recipient string
}

func channelsFor(c *Contact) []contactChannel {
	var out []contactChannel
	if (c.NotifyBy == NotifySMS || c.NotifyBy == NotifyBoth) && c.Phone != "" {
		out = append(out, contactChannel{notification.ChannelSMS, c.Phone})
	}
	if (c.NotifyBy == NotifyEmail || c.NotifyBy == NotifyBoth) && c.Email != "" {
		out = append(out, contactChannel{notification.ChannelEmail, c.Email})
	}
	return out
}

func validateContact(c *Contact) error {
	if c.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if !validNotifyBy[c.NotifyBy] {
		return fmt.Errorf("invalid notify_by %q", c.NotifyBy)
	}
	if (c.NotifyBy == NotifySMS || c.NotifyBy == NotifyBoth) && c.Phone == "" {
		return fmt.Errorf("phone is required for sms notification")
	}
	if (c.NotifyBy == NotifyEmail || c.NotifyBy == NotifyBoth) && c.Email == "" {
		return fmt.Errorf("email is required for email notification")
	}
	if c.Priority <= 0 {
		c.Priority = 1
	}
	return nil
}
