package vitals

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthstore/healthstore/internal/platform/auth"
	"github.com/healthstore/healthstore/pkg/pagination"
	"github.com/healthstore/healthstore/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/health-vitals")
	g.GET("", h.List)
	g.GET("/alerts/critical", h.Critical, auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor))
	g.GET("/:id", h.Get)
	g.POST("", h.Create)
	g.PUT("/:id", h.Update, auth.RequireRole(auth.RoleDoctor))
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrVitalNotFound), errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error()).SetInternal(err)
	case errors.Is(err, ErrPatientRequired), errors.Is(err, ErrInvalidVital):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return err
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) List(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	f := ListFilter{
		CriticalOnly: c.QueryParam("isCritical") == "true",
		Limit:        pg.Limit,
		Offset:       pg.Offset,
	}
	if raw := c.QueryParam("patient"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
		}
		f.PatientID = &id
	}
	items, total, err := h.svc.List(c.Request().Context(), p, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Critical(c echo.Context) error {
	items, err := h.svc.Critical(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(items),
		"data":    items,
	})
}

func (h *Handler) Get(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	rec, err := h.svc.Get(c.Request().Context(), p, id)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, rec)
}

func (h *Handler) Create(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var in VitalInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec, err := h.svc.Create(c.Request().Context(), p, in)
	if err != nil {
		return httpError(err)
	}
	return response.Created(c, rec)
}

func (h *Handler) Update(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in VitalInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	rec, err := h.svc.Update(c.Request().Context(), p, id, in)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, rec)
}
