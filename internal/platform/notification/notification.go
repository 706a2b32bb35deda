// Package notification delivers Email/SMS messages for the portal with
// template rendering, in-memory tracking, and retry of failed sends.
package notification

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Channel represents the delivery channel for a notification.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Notification represents a single outbound notification.
type Notification struct {
	ID           string            `json:"id"`
	Channel      Channel           `json:"channel"`
	Recipient    string            `json:"recipient"`
	Subject      string            `json:"subject,omitempty"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, body string) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Template defines a reusable notification template.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in portal
// templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      "dose-reminder",
			Name:    "Dose Reminder",
			Subject: "Time to take {{medication}}",
			Body:    "Hi {{patient_name}}, it is time to take {{dosage}} of {{medication}}. Open the portal to mark it as taken.",
			Channel: ChannelSMS,
		},
		{
			ID:      "dose-overdue",
			Name:    "Dose Overdue",
			Subject: "Missed dose of {{medication}}",
			Body:    "Hi {{patient_name}}, your {{time}} dose of {{medication}} is overdue. Please take it or mark it as skipped.",
			Channel: ChannelSMS,
		},
		{
			ID:      "appointment-reminder",
			Name:    "Appointment Reminder",
			Subject: "Appointment Reminder",
			Body:    "Dear {{patient_name}}, this is a reminder of your {{visit_type}} appointment on {{date}} at {{time}} with {{provider}}.",
			Channel: ChannelEmail,
		},
		{
			ID:      "appointment-confirmed",
			Name:    "Appointment Confirmed",
			Subject: "Your appointment is confirmed",
			Body:    "Dear {{patient_name}}, your appointment with {{provider}} on {{date}} at {{time}} has been confirmed.",
			Channel: ChannelEmail,
		},
		{
			ID:      "appointment-cancelled",
			Name:    "Appointment Cancelled",
			Subject: "Your appointment was cancelled",
			Body:    "Dear {{patient_name}}, your appointment with {{provider}} on {{date}} has been cancelled. Reason: {{reason}}",
			Channel: ChannelEmail,
		},
		{
			ID:      "session-ready",
			Name:    "Telemedicine Session Ready",
			Subject: "Your video visit is ready",
			Body:    "Hi {{patient_name}}, {{provider}} is ready for your video visit. Join from the portal now.",
			Channel: ChannelSMS,
		},
		{
			ID:      "emergency-alert",
			Name:    "Emergency Alert",
			Subject: "Emergency alert for {{patient_name}}",
			Body:    "This is an emergency alert regarding {{patient_name}}. {{message}} Last known location: {{location}}.",
			Channel: ChannelSMS,
		},
		{
			ID:      "password-reset",
			Name:    "Password Reset",
			Subject: "Password Reset Request",
			Body:    "You requested a password reset. Click the following link to reset your password: {{reset_link}}",
			Channel: ChannelEmail,
		},
		{
			ID:      "device-sync-failed",
			Name:    "Device Sync Failed",
			Subject: "We could not sync your {{device}}",
			Body:    "Hi {{patient_name}}, syncing data from your {{device}} failed. Reconnect the device from the portal to resume tracking.",
			Channel: ChannelEmail,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using
// the supplied data map. Keys present in the template but absent from data
// are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

func (e *TemplateEngine) channelOf(templateID string) Channel {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if t, ok := e.templates[templateID]; ok {
		return t.Channel
	}
	return ChannelEmail
}

// Dispatcher orchestrates sending, tracking, and retry of notifications.
type Dispatcher struct {
	emailSender EmailSender
	smsSender   SMSSender
	templates   *TemplateEngine
	logger      zerolog.Logger

	mu   sync.RWMutex
	sent map[string]*Notification
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(email EmailSender, sms SMSSender, tpl *TemplateEngine, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		emailSender: email,
		smsSender:   sms,
		templates:   tpl,
		logger:      logger.With().Str("component", "notification").Logger(),
		sent:        make(map[string]*Notification),
	}
}

// Send dispatches a notification through the appropriate channel, assigns
// an ID and timestamps, and records the result.
func (d *Dispatcher) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = "pending"

	sendErr := d.deliver(ctx, n)

	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
		d.logger.Error().Err(sendErr).
			Str("notification_id", n.ID).
			Str("channel", string(n.Channel)).
			Msg("notification delivery failed")
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
	}

	d.mu.Lock()
	d.sent[n.ID] = n
	d.mu.Unlock()

	return sendErr
}

// SendFromTemplate renders a template and sends the resulting notification.
func (d *Dispatcher) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	subject, body, err := d.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		Channel:      d.templates.channelOf(templateID),
		Recipient:    recipient,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}

	if err := d.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Get retrieves a notification record by ID.
func (d *Dispatcher) Get(id string) (*Notification, error) {
	d.mu.RLock()
	n, ok := d.sent[id]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return n, nil
}

// ListByRecipient returns notifications for a given recipient, up to limit.
func (d *Dispatcher) ListByRecipient(recipient string, limit int) []*Notification {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var result []*Notification
	for _, n := range d.sent {
		if n.Recipient == recipient {
			result = append(result, n)
			if len(result) >= limit {
				break
			}
		}
	}
	return result
}

// Retry re-sends a failed notification. Returns an error if the
// notification is not in "failed" status.
func (d *Dispatcher) Retry(ctx context.Context, id string) error {
	d.mu.RLock()
	n, ok := d.sent[id]
	d.mu.RUnlock()
	if !ok {
		return fmt.Errorf("notification %q not found", id)
	}
	if n.Status != "failed" {
		return fmt.Errorf("notification %q is not in failed status (current: %s)", id, n.Status)
	}

	sendErr := d.deliver(ctx, n)

	d.mu.Lock()
	if sendErr != nil {
		n.Status = "failed"
		n.Error = sendErr.Error()
	} else {
		n.Status = "sent"
		sentAt := time.Now().UTC()
		n.SentAt = &sentAt
		n.Error = ""
	}
	d.mu.Unlock()

	return sendErr
}

func (d *Dispatcher) deliver(ctx context.Context, n *Notification) error {
	switch n.Channel {
	case ChannelEmail:
		return d.emailSender.SendEmail(ctx, n.Recipient, n.Subject, n.Body)
	case ChannelSMS:
		return d.smsSender.SendSMS(ctx, n.Recipient, n.Body)
	default:
		return fmt.Errorf("unsupported notification channel: %s", n.Channel)
	}
}

// LogEmailSender writes emails to the log instead of a real gateway. It
// stands in until SMTP credentials are configured.
type LogEmailSender struct {
	Logger zerolog.Logger
}

// SendEmail logs the message and reports success.
func (s *LogEmailSender) SendEmail(_ context.Context, to, subject, _ string) error {
	s.Logger.Info().Str("to", to).Str("subject", subject).Msg("email (log sender)")
	return nil
}

// LogSMSSender writes SMS messages to the log instead of a real gateway.
type LogSMSSender struct {
	Logger zerolog.Logger
}

// SendSMS logs the message and reports success.
func (s *LogSMSSender) SendSMS(_ context.Context, to, _ string) error {
	s.Logger.Info().Str("to", to).Msg("sms (log sender)")
	return nil
}

// Stats returns counts of notifications grouped by status.
func (d *Dispatcher) Stats() map[string]int {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range d.sent {
		stats[n.Status]++
	}
	return stats
}
