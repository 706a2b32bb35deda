package telemedicine

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/sessions", h.Create)
	api.GET("/sessions/:id", h.Get)
	api.POST("/sessions/:id/join", h.Join)
	api.POST("/sessions/:id/end", h.End)
	api.POST("/sessions/:id/cancel", h.Cancel)
	api.POST("/sessions/connection-test", h.ConnectionTest)

	providerGroup := api.Group("", auth.RequireRole(auth.RoleProvider, auth.RoleAdmin))
	providerGroup.GET("/sessions/waiting", h.Waiting)
}

func (h *Handler) Create(c echo.Context) error {
	var req struct {
		AppointmentID uuid.UUID `json:"appointment_id"`
		PatientID     uuid.UUID `json:"patient_id"`
		ProviderID    uuid.UUID `json:"provider_id"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.CreateForAppointment(c.Request().Context(), req.AppointmentID, req.PatientID, req.ProviderID)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	sess, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "session not found")
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) Join(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	userID, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
	}
	result, err := h.svc.Join(ctx, id, userID, auth.RolesFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) End(c echo.Context) error {
	return h.sessionAction(c, h.svc.End)
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.sessionAction(c, h.svc.Cancel)
}

func (h *Handler) sessionAction(c echo.Context, fn func(context.Context, uuid.UUID, uuid.UUID, []string) (*Session, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	userID, _ := uuid.Parse(auth.UserIDFromContext(ctx))
	sess, err := fn(ctx, id, userID, auth.RolesFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) ConnectionTest(c echo.Context) error {
	var req struct {
		LatencyMS     int `json:"latency_ms"`
		BandwidthKbps int `json:"bandwidth_kbps"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.svc.TestConnection(req.LatencyMS, req.BandwidthKbps))
}

func (h *Handler) Waiting(c echo.Context) error {
	ctx := c.Request().Context()
	providerID, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
	}
	if raw := c.QueryParam("provider_id"); raw != "" {
		providerID, err = uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid provider_id")
		}
	}
	items, err := h.svc.WaitingForProvider(ctx, providerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}
