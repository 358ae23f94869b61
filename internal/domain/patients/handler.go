package patients

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
	doctorOnly := auth.RequireRole(auth.RoleDoctor)

	g := api.Group("/patients")
	g.GET("", h.List, auth.RequireRole(auth.RoleAdmin, auth.RoleDoctor))
	g.GET("/records/:recordId", h.GetRecord)
	g.PUT("/records/:recordId", h.UpdateRecord, doctorOnly)
	g.GET("/:id", h.Get)
	g.GET("/:id/records", h.ListRecords)
	g.POST("/:id/records", h.CreateRecord, doctorOnly)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrPatientNotFound), errors.Is(err, ErrRecordNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error()).SetInternal(err)
	case errors.Is(err, ErrInvalidRecord):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return err
}

func parseUUID(c echo.Context, name, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+what+" id")
	}
	return id, nil
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), PatientFilter{
		Search: c.QueryParam("search"),
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Get(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := parseUUID(c, "id", "patient")
	if err != nil {
		return err
	}
	patient, err := h.svc.Get(c.Request().Context(), p, id)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, patient)
}

type recordList struct {
	Success bool      `json:"success"`
	Count   int       `json:"count"`
	Data    []*Record `json:"data"`
}

func (h *Handler) ListRecords(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var id uuid.UUID
	if !p.IsPatient() {
		if id, err = parseUUID(c, "id", "patient"); err != nil {
			return err
		}
	}
	items, err := h.svc.Records(c.Request().Context(), p, id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, recordList{Success: true, Count: len(items), Data: items})
}

func (h *Handler) CreateRecord(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := parseUUID(c, "id", "patient")
	if err != nil {
		return err
	}
	var in RecordInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.CreateRecord(c.Request().Context(), p, id, in)
	if err != nil {
		return httpError(err)
	}
	return response.Created(c, r)
}

func (h *Handler) GetRecord(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := parseUUID(c, "recordId", "record")
	if err != nil {
		return err
	}
	r, err := h.svc.Record(c.Request().Context(), p, id)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, r)
}

func (h *Handler) UpdateRecord(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := parseUUID(c, "recordId", "record")
	if err != nil {
		return err
	}
	var in RecordInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	r, err := h.svc.UpdateRecord(c.Request().Context(), p, id, in)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, r)
}
