package dashboard

import (
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
	api.GET("/dashboard/patient", h.Patient)
	api.GET("/dashboard/provider", h.Provider, auth.RequireRole(auth.RoleProvider, auth.RoleAdmin))
}

func (h *Handler) Patient(c echo.Context) error {
	ctx := c.Request().Context()
	patientID, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
	}
	if raw := c.QueryParam("patient_id"); raw != "" && auth.HasRole(auth.RolesFromContext(ctx), auth.RoleProvider) {
		patientID, err = uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient_id")
		}
	}
	d, err := h.svc.Patient(ctx, patientID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Provider(c echo.Context) error {
	ctx := c.Request().Context()
	providerID, err := uuid.Parse(auth.UserIDFromContext(ctx))
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid subject")
	}
	d, err := h.svc.Provider(ctx, providerID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}
