package clinical

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/domain/patient"
	"github.com/medrec/medrec/internal/platform/apperr"
	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts clinical entries under their patient. The section may
// be given in the body or as ?section=.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/patients/:patientId/clinical", auth.RequireRole(auth.RoleUser))
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:entryId", h.Get)
	g.PUT("/:entryId", h.Update)
	g.PATCH("/:entryId", h.Update)
	g.DELETE("/:entryId", h.Delete)
}

func (h *Handler) Create(c echo.Context) error {
	owner, patientID, err := scope(c)
	if err != nil {
		return err
	}
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Section == "" {
		req.Section = c.QueryParam("section")
	}
	e, err := h.svc.Create(c.Request().Context(), owner, patientID, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, e)
}

func (h *Handler) List(c echo.Context) error {
	owner, patientID, err := scope(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	entries, total, err := h.svc.List(c.Request().Context(), owner, patientID, c.QueryParam("section"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, pg))
}

func (h *Handler) Get(c echo.Context) error {
	owner, patientID, err := scope(c)
	if err != nil {
		return err
	}
	entryID, err := uuid.Parse(c.Param("entryId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	e, err := h.svc.Get(c.Request().Context(), owner, patientID, entryID, c.QueryParam("section"))
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Update(c echo.Context) error {
	owner, patientID, err := scope(c)
	if err != nil {
		return err
	}
	entryID, err := uuid.Parse(c.Param("entryId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req UpdateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Section == "" {
		req.Section = c.QueryParam("section")
	}
	e, err := h.svc.Update(c.Request().Context(), owner, patientID, entryID, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, e)
}

func (h *Handler) Delete(c echo.Context) error {
	owner, patientID, err := scope(c)
	if err != nil {
		return err
	}
	entryID, err := uuid.Parse(c.Param("entryId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), owner, patientID, entryID, c.QueryParam("section")); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func scope(c echo.Context) (owner, patientID uuid.UUID, err error) {
	if owner, err = patient.Owner(c); err != nil {
		return
	}
	if patientID, err = uuid.Parse(c.Param("patientId")); err != nil {
		err = echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	return
}
