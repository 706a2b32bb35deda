package notification

import (
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newDispatcher(email *MockEmailSender, sms *MockSMSSender) *Dispatcher {
	return NewDispatcher(email, sms, NewTemplateEngine(), zerolog.Nop())
}

func TestRenderDoseReminder(t *testing.T) {
	e := NewTemplateEngine()
	subject, body, err := e.Render("dose-reminder", map[string]string{
		"patient_name": "Ana",
		"medication":   "Metformin",
		"dosage":       "500mg",
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "Time to take Metformin" {
		t.Errorf("unexpected subject %q", subject)
	}
	if !strings.Contains(body, "500mg of Metformin") {
		t.Errorf("body missing dosage: %q", body)
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	e := NewTemplateEngine()
	if _, _, err := e.Render("no-such-template", nil); err == nil {
		t.Fatal("expected error for unknown template")
	}
}

func TestRenderLeavesUnknownPlaceholders(t *testing.T) {
	e := NewTemplateEngine()
	_, body, err := e.Render("emergency-alert", map[string]string{"patient_name": "Ana"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(body, "{{message}}") {
		t.Errorf("unfilled placeholder should remain, got %q", body)
	}
}

func TestSendFromTemplateUsesTemplateChannel(t *testing.T) {
	email := &MockEmailSender{}
	sms := &MockSMSSender{}
	d := newDispatcher(email, sms)

	n, err := d.SendFromTemplate(context.Background(), "emergency-alert", map[string]string{
		"patient_name": "Ana",
		"message":      "Fall detected.",
		"location":     "Home",
	}, "+15551234567")
	if err != nil {
		t.Fatalf("SendFromTemplate: %v", err)
	}
	if n.Channel != ChannelSMS {
		t.Errorf("expected sms channel, got %s", n.Channel)
	}
	if len(sms.Calls()) != 1 {
		t.Fatalf("expected 1 sms call, got %d", len(sms.Calls()))
	}
	if len(email.Calls()) != 0 {
		t.Error("email sender should not be called for sms template")
	}
	if n.Status != "sent" || n.SentAt == nil {
		t.Errorf("expected sent status with timestamp, got %s", n.Status)
	}
}

func TestSendFailureRecordsError(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	d := newDispatcher(email, &MockSMSSender{})

	n, err := d.SendFromTemplate(context.Background(), "password-reset", map[string]string{
		"reset_link": "https://portal.example/reset/abc",
	}, "ana@example.com")
	if err == nil {
		t.Fatal("expected send error")
	}
	if n.Status != "failed" || n.Error == "" {
		t.Errorf("expected failed status with error, got %s / %q", n.Status, n.Error)
	}
}

func TestRetryFailedNotification(t *testing.T) {
	email := &MockEmailSender{ShouldFail: true, FailError: "smtp down"}
	d := newDispatcher(email, &MockSMSSender{})

	n, _ := d.SendFromTemplate(context.Background(), "appointment-confirmed", map[string]string{
		"patient_name": "Ana",
	}, "ana@example.com")

	email.ShouldFail = false
	if err := d.Retry(context.Background(), n.ID); err != nil {
		t.Fatalf("Retry: %v", err)
	}

	got, err := d.Get(n.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != "sent" || got.Error != "" {
		t.Errorf("expected sent after retry, got %s / %q", got.Status, got.Error)
	}
}

func TestRetryRejectsNonFailed(t *testing.T) {
	d := newDispatcher(&MockEmailSender{}, &MockSMSSender{})
	n, err := d.SendFromTemplate(context.Background(), "appointment-confirmed", nil, "ana@example.com")
	if err != nil {
		t.Fatalf("SendFromTemplate: %v", err)
	}
	if err := d.Retry(context.Background(), n.ID); err == nil {
		t.Fatal("expected error retrying a sent notification")
	}
}

func TestListByRecipient(t *testing.T) {
	d := newDispatcher(&MockEmailSender{}, &MockSMSSender{})
	for i := 0; i < 3; i++ {
		if _, err := d.SendFromTemplate(context.Background(), "appointment-reminder", nil, "ana@example.com"); err != nil {
			t.Fatalf("SendFromTemplate: %v", err)
		}
	}
	if _, err := d.SendFromTemplate(context.Background(), "appointment-reminder", nil, "bob@example.com"); err != nil {
		t.Fatalf("SendFromTemplate: %v", err)
	}

	got := d.ListByRecipient("ana@example.com", 10)
	if len(got) != 3 {
		t.Errorf("expected 3 notifications, got %d", len(got))
	}
	if got := d.ListByRecipient("ana@example.com", 2); len(got) != 2 {
		t.Errorf("limit not applied, got %d", len(got))
	}
}

func TestStats(t *testing.T) {
	email := &MockEmailSender{}
	d := newDispatcher(email, &MockSMSSender{})
	if _, err := d.SendFromTemplate(context.Background(), "appointment-reminder", nil, "a@example.com"); err != nil {
		t.Fatalf("SendFromTemplate: %v", err)
	}
	email.ShouldFail = true
	email.FailError = "down"
	_, _ = d.SendFromTemplate(context.Background(), "appointment-reminder", nil, "b@example.com")

	stats := d.Stats()
	if stats["sent"] != 1 || stats["failed"] != 1 {
		t.Errorf("unexpected stats: %v", stats)
	}
}
