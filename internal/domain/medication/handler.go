package medication

import (
	"context"
	"errors"
	"net/http"
	"strconv"
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
	api.GET("/medications", h.ListMedications)
	api.GET("/medications/:id", h.GetMedication)
	api.GET("/prescriptions", h.ListPrescriptions)
	api.GET("/prescriptions/:id", h.GetPrescription)
	api.GET("/doses", h.DaySchedule)
	api.POST("/doses/:id/take", h.MarkTaken)
	api.POST("/doses/:id/skip", h.MarkSkipped)
	api.GET("/adherence", h.Adherence)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleProvider, auth.RoleAdmin))
	writeGroup.POST("/medications", h.CreateMedication)
	writeGroup.PUT("/medications/:id", h.UpdateMedication)
	writeGroup.DELETE("/medications/:id", h.DeleteMedication)
	writeGroup.POST("/prescriptions", h.CreatePrescription)
	writeGroup.PUT("/prescriptions/:id", h.UpdatePrescription)
	writeGroup.POST("/doses", h.ScheduleDose)
}

func (h *Handler) CreateMedication(c echo.Context) error {
	var m Medication
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreateMedication(c.Request().Context(), &m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMedication(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.GetMedication(c.Request().Context(), id)
	if err != nil || !canView(c, m.PatientID) {
		return echo.NewHTTPError(http.StatusNotFound, "medication not found")
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMedications(c echo.Context) error {
	pg := pagination.FromContext(c)
	patientID, err := patientIDParam(c)
	if err != nil {
		return err
	}
	activeOnly := c.QueryParam("active") == "true"
	items, total, err := h.svc.ListMedicationsByPatient(c.Request().Context(), patientID, activeOnly, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdateMedication(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var m Medication
	if err := c.Bind(&m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	m.ID = id
	if err := h.svc.UpdateMedication(c.Request().Context(), &m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedication(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteMedication(c.Request().Context(), id); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreatePrescription(c echo.Context) error {
	var p Prescription
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.CreatePrescription(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPrescription(c.Request().Context(), id)
	if err != nil || !canView(c, p.PatientID) {
		return echo.NewHTTPError(http.StatusNotFound, "prescription not found")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	pg := pagination.FromContext(c)
	patientID, err := patientIDParam(c)
	if err != nil {
		return err
	}
	items, total, err := h.svc.ListPrescriptionsByPatient(c.Request().Context(), patientID, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) UpdatePrescription(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var p Prescription
	if err := c.Bind(&p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p.ID = id
	if err := h.svc.UpdatePrescription(c.Request().Context(), &p); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ScheduleDose(c echo.Context) error {
	var d DoseEntry
	if err := c.Bind(&d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.ScheduleDose(c.Request().Context(), &d); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, d)
}

// DaySchedule lists the patient's doses for a day (default today),
// classified against the current time.
func (h *Handler) DaySchedule(c echo.Context) error {
	patientID, err := patientIDParam(c)
	if err != nil {
		return err
	}
	day := time.Now()
	if raw := c.QueryParam("date"); raw != "" {
		day, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid date, want YYYY-MM-DD")
		}
	}
	entries, err := h.svc.DaySchedule(c.Request().Context(), patientID, day)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": entries})
}

func (h *Handler) MarkTaken(c echo.Context) error {
	return h.markDose(c, h.svc.MarkTaken)
}

func (h *Handler) MarkSkipped(c echo.Context) error {
	return h.markDose(c, h.svc.MarkSkipped)
}

func (h *Handler) markDose(c echo.Context, fn func(context.Context, uuid.UUID, uuid.UUID, []string) (*DoseEntry, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	actor, _ := uuid.Parse(auth.UserIDFromContext(ctx))
	d, err := fn(ctx, id, actor, auth.RolesFromContext(ctx))
	if err != nil {
		if errors.Is(err, ErrNotOwner) {
			return echo.NewHTTPError(http.StatusForbidden, err.Error())
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Adherence(c echo.Context) error {
	patientID, err := patientIDParam(c)
	if err != nil {
		return err
	}
	days := 30
	if raw := c.QueryParam("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days <= 0 || days > 365 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid days")
		}
	}
	to := time.Now()
	from := to.AddDate(0, 0, -days)
	sum, err := h.svc.Adherence(c.Request().Context(), patientID, from, to)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, sum)
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

// canView reports whether the caller may see records for the patient.
func canView(c echo.Context, patientID uuid.UUID) bool {
	ctx := c.Request().Context()
	if auth.HasRole(auth.RolesFromContext(ctx), auth.RoleProvider) {
		return true
	}
	own, err := uuid.Parse(auth.UserIDFromContext(ctx))
	return err == nil && own == patientID
}
