package ehr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/TechCorp07/klara-test-sub003/internal/platform/auth"
	"github.com/TechCorp07/klara-test-sub003/internal/platform/upstream"
	"github.com/TechCorp07/klara-test-sub003/pkg/pagination"
)

type Handler struct {
	svc   *Service
	inbox InboxNotifier
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// SetInbox wires the in-app notification sink. When set, the admin who
// triggered a sync gets an inbox entry with the job outcome.
func (h *Handler) SetInbox(inbox InboxNotifier) { h.inbox = inbox }

// RegisterRoutes exposes integration management to admins only.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/ehr-integrations", auth.RequireRole(auth.RoleAdmin))
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PUT("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/test", h.Test)
	g.POST("/:id/sync", h.Sync)
	g.GET("/:id/jobs", h.Jobs)
}

func (h *Handler) Create(c echo.Context) error {
	var req ConfigureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	integ, err := h.svc.Configure(c.Request().Context(), uuid.Nil, &req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, integ)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req ConfigureRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	integ, err := h.svc.Configure(c.Request().Context(), id, &req)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, integ)
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": items})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	integ, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "integration not found")
	}
	return c.JSON(http.StatusOK, integ)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Test(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	result, err := h.svc.TestConnection(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, upstream.ErrCircuitOpen) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "upstream temporarily unavailable")
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) Sync(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req struct {
		ResourceTypes []string `json:"resource_types"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	job, err := h.svc.Sync(c.Request().Context(), id, req.ResourceTypes)
	if err != nil {
		if errors.Is(err, upstream.ErrCircuitOpen) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "upstream temporarily unavailable")
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	if h.inbox != nil {
		if actor, perr := uuid.Parse(auth.UserIDFromContext(c.Request().Context())); perr == nil {
			title := fmt.Sprintf("EHR sync %s", job.Status)
			body := fmt.Sprintf("%d fetched, %d stored, %d failed.", job.Fetched, job.Stored, job.Failed)
			_ = h.inbox.Push(c.Request().Context(), actor, "ehr.sync", title, body)
		}
	}
	return c.JSON(http.StatusOK, job)
}

func (h *Handler) Jobs(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	page := pagination.FromContext(c)
	items, total, err := h.svc.ListJobs(c.Request().Context(), id, page.Limit, page.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, page.Limit, page.Offset))
}
