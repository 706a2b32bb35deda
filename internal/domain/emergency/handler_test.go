package emergency

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/auth"
)

// asUser impersonates an authenticated user for route tests.
func asUser(id uuid.UUID, roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			ctx = context.WithValue(ctx, auth.UserIDKey, id.String())
			ctx = context.WithValue(ctx, auth.UserRolesKey, roles)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func newContactServer(userID uuid.UUID, roles ...string) (*echo.Echo, *Service) {
	svc, _ := newTestService(newMockContactRepo(), newMockAlertRepo(), &mockNotifier{})
	h := NewHandler(svc)
	e := echo.New()
	e.Use(asUser(userID, roles...))
	h.RegisterRoutes(e.Group("/api/v1"))
	return e, svc
}

func TestContactsScopedToPatient(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	e, svc := newContactServer(alice, auth.RolePatient)

	theirs := addContact(t, svc, bob, "Maria", NotifySMS, 1)

	// Foreign contacts are invisible on every by-id route.
	for _, route := range []struct {
		method, path string
	}{
		{http.MethodGet, "/api/v1/emergency-contacts/" + theirs.ID.String()},
		{http.MethodPut, "/api/v1/emergency-contacts/" + theirs.ID.String()},
		{http.MethodDelete, "/api/v1/emergency-contacts/" + theirs.ID.String()},
		{http.MethodPost, "/api/v1/emergency-contacts/" + theirs.ID.String() + "/verify"},
	} {
		req := httptest.NewRequest(route.method, route.path, strings.NewReader(`{"name":"X","phone":"+15550000009","notify_by":"sms"}`))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected 404, got %d", route.method, route.path, rec.Code)
		}
	}

	// The contact survived untouched.
	got, err := svc.GetContact(context.Background(), theirs.ID)
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if got.Name != "Maria" {
		t.Errorf("contact mutated by a stranger: %+v", got)
	}

	// A listing override by a non-provider falls back to the caller's
	// own contacts.
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/emergency-contacts?patient_id="+bob.String(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), theirs.ID.String()) {
		t.Error("listing leaked another patient's contact")
	}
}

func TestCreateContactPinsPatientToSubject(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	e, svc := newContactServer(alice, auth.RolePatient)

	body := `{"patient_id":"` + bob.String() + `","name":"Luis","relationship":"brother","phone":"+15550000002","notify_by":"sms"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/emergency-contacts", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created Contact
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if created.PatientID != alice {
		t.Errorf("contact created for %s, want the authenticated subject %s", created.PatientID, alice)
	}

	own, err := svc.ListContacts(context.Background(), alice)
	if err != nil || len(own) != 1 {
		t.Fatalf("ListContacts(alice) = %v, %v", own, err)
	}
	foreign, _ := svc.ListContacts(context.Background(), bob)
	if len(foreign) != 0 {
		t.Errorf("contact landed under the body-supplied patient")
	}
}

func TestAlertsScopedToPatient(t *testing.T) {
	alice := uuid.New()
	bob := uuid.New()
	e, svc := newContactServer(alice, auth.RolePatient)

	addContact(t, svc, bob, "Maria", NotifySMS, 1)
	alert, err := svc.Dispatch(context.Background(), bob, &DispatchRequest{Message: "help"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/emergency-alerts/"+alert.ID.String(), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 on another patient's alert, got %d", rec.Code)
	}

	// Providers see it.
	pe := echo.New()
	pe.Use(asUser(uuid.New(), auth.RoleProvider))
	NewHandler(svc).RegisterRoutes(pe.Group("/api/v1"))
	rec = httptest.NewRecorder()
	pe.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/emergency-alerts/"+alert.ID.String(), nil))
	if rec.Code != http.StatusOK {
		t.Errorf("provider read: expected 200, got %d", rec.Code)
	}
}
