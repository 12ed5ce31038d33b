package image

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/domain/patient"
	"github.com/medrec/medrec/internal/platform/apperr"
	"github.com/medrec/medrec/internal/platform/auth"
	"github.com/medrec/medrec/internal/platform/blobstore"
)

const formField = "image"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/images", auth.RequireRole(auth.RoleUser))
	g.POST("/patient/:id", h.UploadForPatient)
	g.GET("/patient/:id", h.ListForPatient)
	g.DELETE("/patient/:id", h.Delete)
	g.POST("/investigation/:id", h.UploadForInvestigation)
	g.GET("/investigation/:id", h.ListForInvestigation)
	g.GET("/:id/content", h.Content)
	g.DELETE("/:id", h.Delete)
}

func (h *Handler) UploadForPatient(c echo.Context) error {
	return h.upload(c, h.svc.UploadForPatient)
}

func (h *Handler) UploadForInvestigation(c echo.Context) error {
	return h.upload(c, h.svc.UploadForInvestigation)
}

type uploadFunc func(ctx context.Context, ownerID, targetID uuid.UUID, up Upload) (*Image, error)

func (h *Handler) upload(c echo.Context, fn uploadFunc) error {
	owner, err := patient.Owner(c)
	if err != nil {
		return err
	}
	target, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	fh, err := c.FormFile(formField)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field \"image\" is required")
	}
	if fh.Size > h.svc.MaxBytes() {
		return tooLarge(h.svc.MaxBytes())
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable upload")
	}
	defer f.Close()

	img, err := fn(c.Request().Context(), owner, target, Upload{
		FileName:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Description: c.FormValue("description"),
		Body:        f,
	})
	if errors.Is(err, blobstore.ErrFileTooLarge) {
		return tooLarge(h.svc.MaxBytes())
	}
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, img)
}

func tooLarge(max int64) error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("image exceeds the maximum size of %d bytes", max))
}

func (h *Handler) ListForPatient(c echo.Context) error {
	owner, err := patient.Owner(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	images, err := h.svc.ListForPatient(c.Request().Context(), owner, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, images)
}

func (h *Handler) ListForInvestigation(c echo.Context) error {
	owner, err := patient.Owner(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	images, err := h.svc.ListForInvestigation(c.Request().Context(), owner, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, images)
}

func (h *Handler) Content(c echo.Context) error {
	owner, err := patient.Owner(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	img, rc, err := h.svc.Open(c.Request().Context(), owner, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	defer rc.Close()

	c.Response().Header().Set("Cache-Control", "private, max-age=3600")
	c.Response().Header().Set(echo.HeaderContentLength, fmt.Sprint(img.SizeBytes))
	return c.Stream(http.StatusOK, img.ContentType, rc)
}

func (h *Handler) Delete(c echo.Context) error {
	owner, err := patient.Owner(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), owner, id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}
