package emergency

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/notification"
)

type mockContactRepo struct {
	contacts map[uuid.UUID]*Contact
	seq      int
}

func newMockContactRepo() *mockContactRepo {
	return &mockContactRepo{contacts: make(map[uuid.UUID]*Contact)}
}

func (m *mockContactRepo) Create(_ context.Context, c *Contact) error {
	c.ID = uuid.New()
	m.seq++
	cp := *c
	m.contacts[c.ID] = &cp
	return nil
}

func (m *mockContactRepo) GetByID(_ context.Context, id uuid.UUID) (*Contact, error) {
	c, ok := m.contacts[id]
	if !ok {
		return nil, fmt.Errorf("contact not found")
	}
	cp := *c
	return &cp, nil
}

func (m *mockContactRepo) Update(_ context.Context, c *Contact) error {
	if _, ok := m.contacts[c.ID]; !ok {
		return fmt.Errorf("contact not found")
	}
	cp := *c
	m.contacts[c.ID] = &cp
	return nil
}

func (m *mockContactRepo) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.contacts, id)
	return nil
}

func (m *mockContactRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Contact, error) {
	var out []*Contact
	for _, c := range m.contacts {
		if c.PatientID == patientID {
			cp := *c
			out = append(out, &cp)
		}
	}
	// priority order
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Priority < out[i].Priority {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

type mockAlertRepo struct {
	alerts map[uuid.UUID]*Alert
}

func newMockAlertRepo() *mockAlertRepo {
	return &mockAlertRepo{alerts: make(map[uuid.UUID]*Alert)}
}

func (m *mockAlertRepo) Create(_ context.Context, a *Alert) error {
	a.ID = uuid.New()
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *mockAlertRepo) GetByID(_ context.Context, id uuid.UUID) (*Alert, error) {
	a, ok := m.alerts[id]
	if !ok {
		return nil, fmt.Errorf("alert not found")
	}
	cp := *a
	return &cp, nil
}

func (m *mockAlertRepo) ListByPatient(_ context.Context, patientID uuid.UUID, _, _ int) ([]*Alert, int, error) {
	var out []*Alert
	for _, a := range m.alerts {
		if a.PatientID == patientID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *mockAlertRepo) ListRecent(_ context.Context, limit int) ([]*Alert, error) {
	var out []*Alert
	for _, a := range m.alerts {
		cp := *a
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type mockNotifier struct {
	sent    []*notification.Notification
	failFor map[string]bool
}

func (m *mockNotifier) Send(_ context.Context, n *notification.Notification) error {
	cp := *n
	m.sent = append(m.sent, &cp)
	if m.failFor[n.Recipient] {
		return fmt.Errorf("delivery failed")
	}
	return nil
}

type mockInbox struct {
	pushed []string
}

func (m *mockInbox) Push(_ context.Context, _ uuid.UUID, kind, _, _ string) error {
	m.pushed = append(m.pushed, kind)
	return nil
}

type staticNames struct{ name string }

func (s staticNames) DisplayName(_ context.Context, _ uuid.UUID) (string, error) {
	return s.name, nil
}

func newTestService(contacts *mockContactRepo, alerts *mockAlertRepo, notifier *mockNotifier) (*Service, *mockInbox) {
	svc := NewService(contacts, alerts, notifier, notification.NewTemplateEngine(),
		staticNames{name: "Ana Lopez"}, nil, zerolog.Nop())
	inbox := &mockInbox{}
	svc.SetInbox(inbox)
	return svc, inbox
}

func addContact(t *testing.T, svc *Service, patientID uuid.UUID, name, notifyBy string, priority int) *Contact {
	t.Helper()
	c, err := svc.CreateContact(context.Background(), &Contact{
		PatientID:    patientID,
		Name:         name,
		Relationship: "spouse",
		Phone:        "+15550000001",
		Email:        name + "@example.com",
		Priority:     priority,
		NotifyBy:     notifyBy,
	})
	if err != nil {
		t.Fatalf("CreateContact(%s): %v", name, err)
	}
	return c
}

func TestCreateContactValidation(t *testing.T) {
	svc, _ := newTestService(newMockContactRepo(), newMockAlertRepo(), &mockNotifier{})

	tests := []struct {
		name    string
		contact Contact
	}{
		{"missing patient", Contact{Name: "A", Phone: "1", NotifyBy: NotifySMS}},
		{"missing name", Contact{PatientID: uuid.New(), Phone: "1", NotifyBy: NotifySMS}},
		{"bad notify_by", Contact{PatientID: uuid.New(), Name: "A", Phone: "1", NotifyBy: "carrier-pigeon"}},
		{"sms without phone", Contact{PatientID: uuid.New(), Name: "A", NotifyBy: NotifySMS}},
		{"email without email", Contact{PatientID: uuid.New(), Name: "A", NotifyBy: NotifyEmail}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateContact(context.Background(), &tt.contact); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestUpdateContactResetsVerification(t *testing.T) {
	contacts := newMockContactRepo()
	svc, _ := newTestService(contacts, newMockAlertRepo(), &mockNotifier{})
	patientID := uuid.New()
	c := addContact(t, svc, patientID, "rosa", NotifyBoth, 1)

	if _, err := svc.VerifyContact(context.Background(), c.ID); err != nil {
		t.Fatalf("VerifyContact: %v", err)
	}

	upd := *c
	upd.Phone = "+15550009999"
	got, err := svc.UpdateContact(context.Background(), c.ID, &upd)
	if err != nil {
		t.Fatalf("UpdateContact: %v", err)
	}
	if got.Verified {
		t.Error("changing phone must reset verification")
	}

	upd2 := *got
	upd2.Relationship = "sibling"
	got2, err := svc.UpdateContact(context.Background(), c.ID, &upd2)
	if err != nil {
		t.Fatalf("UpdateContact: %v", err)
	}
	if got2.Verified != got.Verified {
		t.Error("unrelated edits must keep verification state")
	}
}

func TestDispatch(t *testing.T) {
	contacts := newMockContactRepo()
	alerts := newMockAlertRepo()
	notifier := &mockNotifier{}
	svc, inbox := newTestService(contacts, alerts, notifier)
	patientID := uuid.New()

	addContact(t, svc, patientID, "rosa", NotifyBoth, 1)
	addContact(t, svc, patientID, "marco", NotifySMS, 2)

	alert, err := svc.Dispatch(context.Background(), patientID, &DispatchRequest{
		Message:  "Fall detected.",
		Location: "Home",
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if alert.Status != AlertSent {
		t.Errorf("status = %q, want %q", alert.Status, AlertSent)
	}
	// rosa gets sms+email, marco gets sms
	if len(alert.Outcomes) != 3 {
		t.Fatalf("outcomes = %d, want 3", len(alert.Outcomes))
	}
	if len(notifier.sent) != 3 {
		t.Fatalf("notifications sent = %d, want 3", len(notifier.sent))
	}
	if !strings.Contains(notifier.sent[0].Body, "Ana Lopez") {
		t.Errorf("body %q missing patient name", notifier.sent[0].Body)
	}
	if !strings.Contains(notifier.sent[0].Body, "Fall detected.") {
		t.Errorf("body %q missing message", notifier.sent[0].Body)
	}
	// priority 1 contact first
	if notifier.sent[0].Recipient != "+15550000001" && notifier.sent[0].Recipient != "rosa@example.com" {
		t.Errorf("first recipient = %q, want rosa's", notifier.sent[0].Recipient)
	}
	if len(alerts.alerts) != 1 {
		t.Error("expected alert recorded")
	}
	if len(inbox.pushed) != 1 || inbox.pushed[0] != "emergency.alert" {
		t.Errorf("inbox events = %v, want [emergency.alert]", inbox.pushed)
	}
}

func TestDispatchPartialFailure(t *testing.T) {
	contacts := newMockContactRepo()
	alerts := newMockAlertRepo()
	notifier := &mockNotifier{failFor: map[string]bool{"marco@example.com": true}}
	svc, _ := newTestService(contacts, alerts, notifier)
	patientID := uuid.New()

	addContact(t, svc, patientID, "rosa", NotifySMS, 1)
	addContact(t, svc, patientID, "marco", NotifyEmail, 2)

	alert, err := svc.Dispatch(context.Background(), patientID, &DispatchRequest{Message: "Help."})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if alert.Status != AlertPartial {
		t.Errorf("status = %q, want %q", alert.Status, AlertPartial)
	}
	var failedOutcome *AlertOutcome
	for i := range alert.Outcomes {
		if !alert.Outcomes[i].Sent {
			failedOutcome = &alert.Outcomes[i]
		}
	}
	if failedOutcome == nil || failedOutcome.Error == "" {
		t.Error("expected failed outcome with error recorded")
	}
}

func TestDispatchRequiresContactsAndMessage(t *testing.T) {
	svc, _ := newTestService(newMockContactRepo(), newMockAlertRepo(), &mockNotifier{})
	patientID := uuid.New()

	if _, err := svc.Dispatch(context.Background(), patientID, &DispatchRequest{Message: "Help."}); err == nil {
		t.Error("expected error with no contacts")
	}
	addContact(t, svc, patientID, "rosa", NotifySMS, 1)
	if _, err := svc.Dispatch(context.Background(), patientID, &DispatchRequest{}); err == nil {
		t.Error("expected error with empty message")
	}
}
