package fhirresource

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

func seedResource(t *testing.T, repo *mockRepo, patientID uuid.UUID, fhirID string) *StoredResource {
	t.Helper()
	sr := &StoredResource{
		ResourceType: "Observation",
		FHIRID:       fhirID,
		PatientID:    &patientID,
		Source:       SourceLocal,
		Body:         json.RawMessage(`{"resourceType":"Observation","id":"` + fhirID + `"}`),
	}
	if err := repo.Create(context.Background(), sr); err != nil {
		t.Fatalf("seed resource: %v", err)
	}
	return sr
}

func TestReadsScopedToPatient(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	alice, bob := uuid.New(), uuid.New()

	e := echo.New()
	e.Use(asUser(alice, auth.RolePatient))
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))

	foreign := seedResource(t, repo, bob, "obs-bob")
	own := seedResource(t, repo, alice, "obs-alice")

	// Listings exclude other patients' resources.
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fhir-resources", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), foreign.ID.String()) {
		t.Error("another patient's resources must not be listed")
	}
	if !strings.Contains(rec.Body.String(), own.ID.String()) {
		t.Error("the caller's own resources should be listed")
	}

	// Direct reads of a foreign resource come back not-found.
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fhir/Observation/obs-bob", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 reading a foreign resource, got %d", rec.Code)
	}
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fhir-resources/"+foreign.ID.String(), nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 fetching a foreign resource, got %d", rec.Code)
	}
}

func TestExportScopedToPatient(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	alice, bob := uuid.New(), uuid.New()

	e := echo.New()
	e.Use(asUser(alice, auth.RolePatient))
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))

	seedResource(t, repo, bob, "obs-bob")
	seedResource(t, repo, alice, "obs-alice")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fhir/Patient/"+bob.String()+"/$export", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 exporting another patient's record, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fhir/Patient/"+alice.String()+"/$export", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 exporting own record, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "obs-alice") {
		t.Error("export should include the caller's resources")
	}
}

func TestProviderReadsUnscoped(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	provider, bob := uuid.New(), uuid.New()

	e := echo.New()
	e.Use(asUser(provider, auth.RoleProvider))
	NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))

	foreign := seedResource(t, repo, bob, "obs-bob")

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/fhir-resources/"+foreign.ID.String(), nil))
	if rec.Code != http.StatusOK {
		t.Errorf("provider read should succeed, got %d", rec.Code)
	}
}
