package wearable

import (
	"net/http"
	"time"

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
	g := api.Group("/wearables")
	g.GET("/integrations", h.ListIntegrations)
	g.POST("/integrations/:provider/connect", h.StartConnect)
	g.GET("/integrations/callback", h.Callback)
	g.POST("/integrations/:provider/disconnect", h.Disconnect)
	g.GET("/devices", h.ListDevices)
	g.POST("/devices", h.RegisterDevice)
	g.POST("/devices/:id/measurements", h.Ingest)
	g.GET("/measurements", h.Measurements)
}

func (h *Handler) patientID(c echo.Context) (uuid.UUID, error) {
	ctx := c.Request().Context()
	if raw := c.QueryParam("patient_id"); raw != "" && auth.HasRole(auth.RolesFromContext(ctx), auth.RoleProvider) {
		return uuid.Parse(raw)
	}
	return uuid.Parse(auth.UserIDFromContext(ctx))
}

func (h *Handler) ListIntegrations(c echo.Context) error {
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	items, err := h.svc.ListIntegrations(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) StartConnect(c echo.Context) error {
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	start, err := h.svc.StartConnect(c.Request().Context(), patientID, c.Param("provider"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, start)
}

func (h *Handler) Callback(c echo.Context) error {
	integ, err := h.svc.HandleCallback(c.Request().Context(), c.QueryParam("state"), c.QueryParam("code"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, integ)
}

func (h *Handler) Disconnect(c echo.Context) error {
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	integ, err := h.svc.Disconnect(c.Request().Context(), patientID, c.Param("provider"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.JSON(http.StatusOK, integ)
}

func (h *Handler) ListDevices(c echo.Context) error {
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	list, err := h.svc.ListDevices(c.Request().Context(), patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, list)
}

func (h *Handler) RegisterDevice(c echo.Context) error {
	var req struct {
		IntegrationID uuid.UUID `json:"integration_id"`
		Model         string    `json:"model"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	device, err := h.svc.RegisterDevice(c.Request().Context(), req.IntegrationID, req.Model)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, device)
}

func (h *Handler) Ingest(c echo.Context) error {
	deviceID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid device id")
	}
	var req struct {
		Measurements []*Measurement `json:"measurements"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	n, err := h.svc.IngestBatch(c.Request().Context(), deviceID, req.Measurements)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]int{"ingested": n})
}

func (h *Handler) Measurements(c echo.Context) error {
	patientID, err := h.patientID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var from, to time.Time
	if raw := c.QueryParam("from"); raw != "" {
		from, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from")
		}
	}
	if raw := c.QueryParam("to"); raw != "" {
		to, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to")
		}
	}
	page := pagination.FromContext(c)
	items, total, err := h.svc.Measurements(c.Request().Context(), patientID, c.QueryParam("kind"), from, to, page.Limit, page.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page.Limit, page.Offset))
}
