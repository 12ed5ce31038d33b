package report

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/domain/patient"
	"github.com/medrec/medrec/internal/platform/apperr"
	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/export"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/export", auth.RequireRole(auth.RoleUser))
	g.GET("/patients", h.Patients)
	g.GET("/patient/:patientId", h.Patient)
	g.GET("/investigation/:investigationId", h.Investigation)
}

func (h *Handler) Patients(c echo.Context) error {
	owner, err := patient.Owner(c)
	if err != nil {
		return err
	}
	f, err := h.svc.Patients(c.Request().Context(), owner)
	if err != nil {
		return apperr.HTTP(err)
	}
	return attachment(c, f)
}

func (h *Handler) Patient(c echo.Context) error {
	owner, err := patient.Owner(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	f, err := h.svc.Patient(c.Request().Context(), owner, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return attachment(c, f)
}

func (h *Handler) Investigation(c echo.Context) error {
	owner, err := patient.Owner(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("investigationId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid investigation id")
	}
	f, err := h.svc.Investigation(c.Request().Context(), owner, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return attachment(c, f)
}

func attachment(c echo.Context, f *File) error {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", f.Name))
	return c.Blob(http.StatusOK, export.ContentType, f.Data)
}
