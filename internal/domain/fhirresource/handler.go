package fhirresource

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/auth"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/fhir"
	"github.com/TechCorp07/klara-test-sub003/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/fhir-resources", h.List)
	api.GET("/fhir-resources/:id", h.Get)
	api.GET("/fhir/:type", h.Search)
	api.GET("/fhir/:type/:fhirID", h.Read)
	api.POST("/fhir/$validate", h.Validate)
	api.GET("/fhir/Patient/:id/$export", h.Export)

	providerGroup := api.Group("", auth.RequireRole(auth.RoleProvider, auth.RoleAdmin))
	providerGroup.GET("/fhir-resources/types", h.TypeCounts)
	providerGroup.POST("/fhir-resources", h.Upsert)
	providerGroup.POST("/fhir-resources/import", h.Import)
	providerGroup.DELETE("/fhir-resources/:id", h.Delete)
}

// patientScope returns the patient the caller's reads are limited to.
// Providers are unrestricted.
func patientScope(c echo.Context) (uuid.UUID, bool, error) {
	ctx := c.Request().Context()
	if auth.HasRole(auth.RolesFromContext(ctx), auth.RoleProvider) {
		return uuid.Nil, false, nil
	}
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, false, echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
	}
	return id, true, nil
}

// inScope reports whether a stored resource belongs to the scoped patient.
func inScope(sr *StoredResource, own uuid.UUID) bool {
	return sr.PatientID != nil && *sr.PatientID == own
}

func (h *Handler) List(c echo.Context) error {
	params, err := searchParamsFrom(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if own, limited, err := patientScope(c); err != nil {
		return err
	} else if limited {
		params.PatientID = own
	}
	items, total, err := h.svc.List(c.Request().Context(), params)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, params.Limit, params.Offset))
}

func (h *Handler) TypeCounts(c echo.Context) error {
	counts, err := h.svc.TypeCounts(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, counts)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sr, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("resource", c.Param("id")))
	}
	if own, limited, serr := patientScope(c); serr != nil {
		return serr
	} else if limited && !inScope(sr, own) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("resource", c.Param("id")))
	}
	return c.JSON(http.StatusOK, sr)
}

// Search serves a FHIR-style searchset for one resource type.
func (h *Handler) Search(c echo.Context) error {
	params, err := searchParamsFrom(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	params.ResourceType = c.Param("type")
	if own, limited, serr := patientScope(c); serr != nil {
		return serr
	} else if limited {
		params.PatientID = own
	}
	baseURL := c.Scheme() + "://" + c.Request().Host + "/api/v1/fhir"
	bundle, err := h.svc.Search(c.Request().Context(), params, baseURL)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, bundle)
}

func (h *Handler) Read(c echo.Context) error {
	sr, err := h.svc.Read(c.Request().Context(), c.Param("type"), c.Param("fhirID"))
	if err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(c.Param("type"), c.Param("fhirID")))
	}
	if own, limited, serr := patientScope(c); serr != nil {
		return serr
	} else if limited && !inScope(sr, own) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome(c.Param("type"), c.Param("fhirID")))
	}
	return c.JSONBlob(http.StatusOK, sr.Body)
}

func (h *Handler) Validate(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("read body: "+err.Error()))
	}
	result := h.svc.Validate(body)
	status := http.StatusOK
	if !result.Valid {
		status = http.StatusUnprocessableEntity
	}
	return c.JSON(status, result.ToOperationOutcome())
}

func (h *Handler) Upsert(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("read body: "+err.Error()))
	}
	sr, err := h.svc.Upsert(c.Request().Context(), body, SourceLocal, nil)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return c.JSON(http.StatusUnprocessableEntity, verr.Result.ToOperationOutcome())
		}
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	status := http.StatusCreated
	if sr.VersionID > 1 {
		status = http.StatusOK
	}
	return c.JSON(status, sr)
}

func (h *Handler) Import(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("read body: "+err.Error()))
	}
	result, err := h.svc.ImportBundle(c.Request().Context(), json.RawMessage(body), SourceLocal, nil)
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome(err.Error()))
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Export(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.ErrorOutcome("invalid patient id"))
	}
	if own, limited, serr := patientScope(c); serr != nil {
		return serr
	} else if limited && patientID != own {
		return c.JSON(http.StatusForbidden, fhir.ErrorOutcome("patients may export only their own record"))
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/fhir+ndjson")
	c.Response().WriteHeader(http.StatusOK)
	if _, err := h.svc.ExportPatient(c.Request().Context(), patientID, c.Response()); err != nil {
		return err
	}
	return nil
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("resource", c.Param("id")))
	}
	return c.NoContent(http.StatusNoContent)
}

func searchParamsFrom(c echo.Context) (SearchParams, error) {
	page := pagination.FromContext(c)
	params := SearchParams{
		ResourceType: c.QueryParam("type"),
		FHIRID:       c.QueryParam("fhir_id"),
		Text:         c.QueryParam("q"),
		Limit:        page.Limit,
		Offset:       page.Offset,
	}
	if raw := c.QueryParam("patient_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return params, errors.New("invalid patient_id")
		}
		params.PatientID = id
	}
	return params, nil
}
