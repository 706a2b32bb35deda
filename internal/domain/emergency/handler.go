package emergency

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/auth"
	"github.com/TechCorp07/klara-test-sub003/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/emergency-contacts", h.ListContacts)
	api.POST("/emergency-contacts", h.CreateContact)
	api.GET("/emergency-contacts/:id", h.GetContact)
	api.PUT("/emergency-contacts/:id", h.UpdateContact)
	api.DELETE("/emergency-contacts/:id", h.DeleteContact)
	api.POST("/emergency-contacts/:id/verify", h.VerifyContact)

	api.POST("/emergency-alerts", h.Dispatch)
	api.GET("/emergency-alerts", h.ListAlerts)
	api.GET("/emergency-alerts/:id", h.GetAlert)
}

func (h *Handler) patientID(c echo.Context) (uuid.UUID, error) {
	ctx := c.Request().Context()
	if raw := c.QueryParam("patient_id"); raw != "" && auth.HasRole(auth.RolesFromContext(ctx), auth.RoleProvider) {
		return uuid.Parse(raw)
	}
	return uuid.Parse(auth.UserIDFromContext(ctx))
}

// canAccess reports whether the caller may touch records for the patient.
func canAccess(c echo.Context, patientID uuid.UUID) bool {
	ctx := c.Request().Context()
	if auth.HasRole(auth.RolesFromContext(ctx), auth.RoleProvider) {
		return true
	}
	own, err := uuid.Parse(auth.UserIDFromContext(ctx))
	return err == nil && own == patientID
}

func (h *Handler) ListContacts(c echo.Context) error {
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	items, err := h.svc.ListContacts(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) CreateContact(c echo.Context) error {
	var contact Contact
	if err := c.Bind(&contact); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	// The owner comes from the authenticated subject (or a provider's
	// patient_id override), never from the request body.
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	contact.PatientID = patientID
	created, err := h.svc.CreateContact(c.Request().Context(), &contact)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) GetContact(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	contact, err := h.svc.GetContact(c.Request().Context(), id)
	if err != nil || !canAccess(c, contact.PatientID) {
		return echo.NewHTTPError(http.StatusNotFound, "contact not found")
	}
	return c.JSON(http.StatusOK, contact)
}

func (h *Handler) UpdateContact(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var contact Contact
	if err := c.Bind(&contact); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if existing, err := h.svc.GetContact(c.Request().Context(), id); err != nil || !canAccess(c, existing.PatientID) {
		return echo.NewHTTPError(http.StatusNotFound, "contact not found")
	}
	updated, err := h.svc.UpdateContact(c.Request().Context(), id, &contact)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *Handler) DeleteContact(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if existing, err := h.svc.GetContact(c.Request().Context(), id); err != nil || !canAccess(c, existing.PatientID) {
		return echo.NewHTTPError(http.StatusNotFound, "contact not found")
	}
	if err := h.svc.DeleteContact(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) VerifyContact(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if existing, err := h.svc.GetContact(c.Request().Context(), id); err != nil || !canAccess(c, existing.PatientID) {
		return echo.NewHTTPError(http.StatusNotFound, "contact not found")
	}
	contact, err := h.svc.VerifyContact(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, contact)
}

func (h *Handler) Dispatch(c echo.Context) error {
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req DispatchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	alert, err := h.svc.Dispatch(c.Request().Context(), patientID, &req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, alert)
}

func (h *Handler) ListAlerts(c echo.Context) error {
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	page := pagination.FromContext(c)
	items, total, err := h.svc.ListAlerts(c.Request().Context(), patientID, page.Limit, page.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page.Limit, page.Offset))
}

func (h *Handler) GetAlert(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	alert, err := h.svc.GetAlert(c.Request().Context(), id)
	if err != nil || !canAccess(c, alert.PatientID) {
		return echo.NewHTTPError(http.StatusNotFound, "alert not found")
	}
	return c.JSON(http.StatusOK, alert)
}
