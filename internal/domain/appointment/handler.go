package appointment

import (
	"context"
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
	api.POST("/appointments", h.Request)
	api.GET("/appointments", h.List)
	api.GET("/appointments/upcoming", h.Upcoming)
	api.GET("/appointments/:id", h.Get)
	api.POST("/appointments/:id/cancel", h.Cancel)
	api.POST("/appointments/:id/reschedule", h.Reschedule)

	providerGroup := api.Group("", auth.RequireRole(auth.RoleProvider, auth.RoleAdmin))
	providerGroup.POST("/appointments/:id/confirm", h.Confirm)
	providerGroup.POST("/appointments/:id/check-in", h.CheckIn)
	providerGroup.POST("/appointments/:id/complete", h.Complete)
	providerGroup.POST("/appointments/:id/no-show", h.MarkNoShow)
}

func (h *Handler) Request(c echo.Context) error {
	var a Appointment
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	if !auth.HasRole(auth.RolesFromContext(ctx), auth.RoleProvider) {
		// Patients book for themselves regardless of the body.
		own, err := uuid.Parse(auth.UserIDFromContext(ctx))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
		}
		a.PatientID = own
	}
	if err := h.svc.Request(c.Request().Context(), &a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := h.svc.Get(c.Request().Context(), id)
	if err != nil || !canView(c, a) {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	ctx := c.Request().Context()

	if raw := c.QueryParam("provider_id"); raw != "" {
		if !auth.HasRole(auth.RolesFromContext(ctx), auth.RoleProvider) {
			return echo.NewHTTPError(http.StatusForbidden, "provider role required")
		}
		pid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid provider_id")
		}
		items, total, err := h.svc.ListByProvider(ctx, pid, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	if fromRaw, toRaw := c.QueryParam("from"), c.QueryParam("to"); fromRaw != "" && toRaw != "" {
		if !auth.HasRole(auth.RolesFromContext(ctx), auth.RoleProvider) {
			return echo.NewHTTPError(http.StatusForbidden, "provider role required")
		}
		from, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid from")
		}
		to, err := time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid to")
		}
		items, total, err := h.svc.ListBetween(ctx, from, to, pg.Limit, pg.Offset)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
	}

	patientID, err := patientIDParam(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListByPatient(ctx, patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) Upcoming(c echo.Context) error {
	patientID, err := patientIDParam(c)
	if err != nil {
		return err
	}
	items, err := h.svc.Upcoming(c.Request().Context(), patientID, 10)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) Confirm(c echo.Context) error {
	return h.statusAction(c, h.svc.Confirm)
}

func (h *Handler) CheckIn(c echo.Context) error {
	return h.statusAction(c, h.svc.CheckIn)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.statusAction(c, h.svc.Complete)
}

func (h *Handler) MarkNoShow(c echo.Context) error {
	return h.statusAction(c, h.svc.MarkNoShow)
}

func (h *Handler) Cancel(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if existing, err := h.svc.Get(c.Request().Context(), id); err != nil || !canView(c, existing) {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	a, err := h.svc.Cancel(c.Request().Context(), id, req.Reason)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) Reschedule(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		ScheduledStart time.Time `json:"scheduled_start"`
		ScheduledEnd   time.Time `json:"scheduled_end"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if existing, err := h.svc.Get(c.Request().Context(), id); err != nil || !canView(c, existing) {
		return echo.NewHTTPError(http.StatusNotFound, "appointment not found")
	}
	a, err := h.svc.Reschedule(c.Request().Context(), id, req.ScheduledStart, req.ScheduledEnd)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) statusAction(c echo.Context, fn func(context.Context, uuid.UUID) (*Appointment, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	a, err := fn(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, a)
}

// patientIDParam resolves the target patient. Providers may address any
// patient with an explicit patient_id query parameter; everyone else is
// scoped to the authenticated subject.
func patientIDParam(c echo.Context) (uuid.UUID, error) {
	ctx := c.Request().Context()
	if raw := c.QueryParam("patient_id"); raw != "" && auth.HasRole(auth.RolesFromContext(ctx), auth.RoleProvider) {
		id, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
		return id, nil
	}
	id, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "patient_id is required")
	}
	return id, nil
}

// canView reports whether the caller is a participant of the appointment
// or holds the provider role.
func canView(c echo.Context, a *Appointment) bool {
	ctx := c.Request().Context()
	if auth.HasRole(auth.RolesFromContext(ctx), auth.RoleProvider) {
		return true
	}
	own, err := uuid.Parse(auth.UserIDFromContext(ctx))
	return err == nil && (own == a.PatientID || own == a.ProviderID)
}
