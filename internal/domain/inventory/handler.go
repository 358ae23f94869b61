package inventory

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/healthstore/healthstore/internal/platform/auth"
	"github.com/healthstore/healthstore/internal/platform/report"
	"github.com/healthstore/healthstore/pkg/pagination"
	"github.com/healthstore/healthstore/pkg/response"
)

type Handler struct {
	svc *Service
	now func() time.Time
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.RequireRole(auth.RoleAdmin, auth.RoleStoreManager)

	g := api.Group("/medicines")
	g.GET("", h.List)
	g.GET("/alerts/low-stock", h.LowStock, staff)
	g.GET("/alerts/low-stock.xlsx", h.LowStockReport, staff)
	g.GET("/:id", h.Get)
	g.POST("", h.Create, staff)
	g.PUT("/:id", h.Update, staff)
	g.DELETE("/:id", h.Delete, staff)
	g.PATCH("/:id/stock", h.AdjustStock, staff)
}

func httpError(err error) error {
	var se *StockError
	switch {
	case errors.As(err, &se), errors.Is(err, ErrMedicineInactive):
		return echo.NewHTTPError(http.StatusConflict, err.Error()).SetInternal(err)
	case errors.Is(err, ErrMedicineNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	case errors.Is(err, ErrInvalidMedicine):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return err
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid medicine id")
	}
	return id, nil
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := ListFilter{
		Search:   c.QueryParam("search"),
		Category: Category(c.QueryParam("category")),
		LowStock: c.QueryParam("lowStock") == "true" || c.QueryParam("minStock") == "true",
		Limit:    pg.Limit,
		Offset:   pg.Offset,
	}
	if f.Category != "" && !f.Category.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid category")
	}
	items, total, err := h.svc.List(c.Request().Context(), f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) LowStock(c echo.Context) error {
	items, err := h.svc.LowStock(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(items),
		"data":    items,
	})
}

func (h *Handler) LowStockReport(c echo.Context) error {
	items, err := h.svc.LowStock(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	data, err := report.Render(LowStockSheet(items))
	if err != nil {
		return err
	}
	return report.Send(c, report.Filename("low-stock", h.now()), data)
}

// LowStockSheet lays out low-stock medicines as a report sheet.
func LowStockSheet(items []*Medicine) *report.Sheet {
	s := &report.Sheet{
		Name: "Low Stock",
		Columns: []report.Column{
			{Header: "Name", Width: 30},
			{Header: "Category", Width: 20},
			{Header: "Manufacturer", Width: 24},
			{Header: "Batch", Width: 14},
			{Header: "Expiry", Width: 12},
			{Header: "Stock", Width: 10},
			{Header: "Min Level", Width: 10},
			{Header: "Unit", Width: 10},
			{Header: "Price", Width: 10},
		},
	}
	for _, m := range items {
		s.AddRow(m.Name, string(m.Category), m.Manufacturer, m.BatchNumber,
			m.ExpiryDate.Format("2006-01-02"), m.Stock, m.MinStockLevel, m.Unit, m.Price)
	}
	return s
}

func (h *Handler) Get(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	m, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, m)
}

func (h *Handler) Create(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var in MedicineInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.Create(c.Request().Context(), p, in)
	if err != nil {
		return httpError(err)
	}
	return response.Created(c, m)
}

func (h *Handler) Update(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var in MedicineInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.Update(c.Request().Context(), id, in)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, m)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Deactivate(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return response.Message(c, "Medicine deleted successfully")
}

type stockRequest struct {
	Delta int `json:"delta"`
}

func (h *Handler) AdjustStock(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var req stockRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	m, err := h.svc.AdjustStock(c.Request().Context(), id, req.Delta)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, m)
}
