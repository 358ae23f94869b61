package dashboard

import (
	"github.com/labstack/echo/v4"

	"github.com/healthstore/healthstore/internal/platform/auth"
	"github.com/healthstore/healthstore/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/dashboard")
	g.GET("/admin", h.Admin, auth.RequireRole(auth.RoleAdmin))
	g.GET("/store", h.Store, auth.RequireRole(auth.RoleAdmin, auth.RoleStoreManager))
	g.GET("/doctor", h.Doctor, auth.RequireRole(auth.RoleDoctor))
	g.GET("/patient", h.Patient, auth.RequireRole(auth.RolePatient))
}

func (h *Handler) Admin(c echo.Context) error {
	d, err := h.svc.Admin(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, d)
}

func (h *Handler) Store(c echo.Context) error {
	d, err := h.svc.Store(c.Request().Context())
	if err != nil {
		return err
	}
	return response.OK(c, d)
}

func (h *Handler) Doctor(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Doctor(c.Request().Context(), p.UserID)
	if err != nil {
		return err
	}
	return response.OK(c, d)
}

func (h *Handler) Patient(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Patient(c.Request().Context(), p.UserID)
	if err != nil {
		return err
	}
	return response.OK(c, d)
}
