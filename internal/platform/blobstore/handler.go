package blobstore

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthstore/healthstore/internal/platform/auth"
	"github.com/healthstore/healthstore/pkg/response"
)

// Handler serves file upload and download.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the file routes on an authenticated group.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/files", h.Upload)
	g.GET("/files/:id", h.Download)
	g.GET("/files/:id/metadata", h.Metadata)
}

// multipart framing overhead allowed on top of the file limit
const formOverhead = 1 << 20

func (h *Handler) Upload(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	req := c.Request()
	req.Body = http.MaxBytesReader(c.Response(), req.Body, h.svc.MaxSize()+formOverhead)

	file, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, ErrFileTooLarge.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	meta := Metadata{
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		OwnerID:     p.UserID,
	}
	if p.IsPatient() {
		self := p.UserID
		meta.PatientID = &self
	} else if raw := c.FormValue("patientId"); raw != "" {
		pid, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patientId")
		}
		meta.PatientID = &pid
	}

	out, err := h.svc.Upload(req.Context(), meta, src)
	if err != nil {
		switch {
		case errors.Is(err, ErrFileTooLarge):
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, ErrInvalidContentType):
			return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
		case errors.Is(err, ErrMissingFileName), errors.Is(err, ErrEmptyFile):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return err
	}
	return response.Created(c, out)
}

func (h *Handler) readable(c echo.Context, withContent bool) (*Metadata, []byte, error) {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return nil, nil, err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, nil, echo.NewHTTPError(http.StatusBadRequest, "invalid file id")
	}

	var (
		meta    *Metadata
		content []byte
	)
	if withContent {
		meta, content, err = h.svc.Download(c.Request().Context(), id)
	} else {
		meta, err = h.svc.Metadata(c.Request().Context(), id)
	}
	if errors.Is(err, ErrBlobNotFound) {
		return nil, nil, echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return nil, nil, err
	}
	if !CanRead(meta, p.UserID, p.IsPatient()) {
		return nil, nil, echo.NewHTTPError(http.StatusForbidden, "not allowed to read this file")
	}
	return meta, content, nil
}

func (h *Handler) Download(c echo.Context) error {
	meta, content, err := h.readable(c, true)
	if err != nil {
		return err
	}
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, meta.FileName))
	c.Response().Header().Set("X-Content-SHA256", meta.SHA256)
	return c.Stream(http.StatusOK, meta.ContentType, bytes.NewReader(content))
}

func (h *Handler) Metadata(c echo.Context) error {
	meta, _, err := h.readable(c, false)
	if err != nil {
		return err
	}
	return response.OK(c, meta)
}
