package orders

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

// ExportLimit caps the rows of one orders workbook.
const ExportLimit = 5000

type Handler struct {
	ledger *Ledger
	now    func() time.Time
}

func NewHandler(ledger *Ledger) *Handler {
	return &Handler{ledger: ledger, now: time.Now}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	staff := auth.RequireRole(auth.RoleAdmin, auth.RoleStoreManager)

	g := api.Group("/orders")
	g.GET("", h.List)
	g.GET("/export.xlsx", h.Export, staff)
	g.GET("/:id", h.Get)
	g.POST("", h.Place)
	g.PUT("/:id/status", h.SetStatus, staff)
	g.PUT("/:id/cancel", h.Cancel)
}

func httpError(err error) error {
	var se *StockError
	switch {
	case errors.As(err, &se), errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, err.Error()).SetInternal(err)
	case errors.Is(err, ErrOrderNotFound), errors.Is(err, ErrPatientNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	case errors.Is(err, ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error()).SetInternal(err)
	case errors.Is(err, ErrInvalidOrder), errors.Is(err, ErrPatientRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return err
}

func parseID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid order id")
	}
	return id, nil
}

func parseFilter(c echo.Context) (ListFilter, error) {
	f := ListFilter{
		Status:        Status(c.QueryParam("status")),
		PaymentStatus: PaymentStatus(c.QueryParam("paymentStatus")),
	}
	if f.Status != "" && !f.Status.Valid() {
		return f, echo.NewHTTPError(http.StatusBadRequest, "invalid status")
	}
	if f.PaymentStatus != "" && !f.PaymentStatus.Valid() {
		return f, echo.NewHTTPError(http.StatusBadRequest, "invalid payment status")
	}
	if raw := c.QueryParam("patient"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return f, echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
		}
		f.PatientID = &id
	}
	return f, nil
}

func (h *Handler) List(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	f.Limit, f.Offset = pg.Limit, pg.Offset

	items, total, err := h.ledger.List(c.Request().Context(), p, f)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Export(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	f, err := parseFilter(c)
	if err != nil {
		return err
	}
	f.Limit = ExportLimit

	items, _, err := h.ledger.List(c.Request().Context(), p, f)
	if err != nil {
		return httpError(err)
	}
	data, err := report.Render(OrdersSheet(items), LinesSheet(items))
	if err != nil {
		return err
	}
	return report.Send(c, report.Filename("orders", h.now()), data)
}

// OrdersSheet lays out one row per order.
func OrdersSheet(items []*Order) *report.Sheet {
	s := &report.Sheet{
		Name: "Orders",
		Columns: []report.Column{
			{Header: "Order ID", Width: 38},
			{Header: "Patient ID", Width: 38},
			{Header: "Placed", Width: 20},
			{Header: "Status", Width: 12},
			{Header: "Payment", Width: 10},
			{Header: "Method", Width: 10},
			{Header: "Lines", Width: 8},
			{Header: "Subtotal", Width: 12},
			{Header: "Tax", Width: 10},
			{Header: "Discount", Width: 10},
			{Header: "Total", Width: 12},
		},
	}
	for _, o := range items {
		s.AddRow(o.ID.String(), o.PatientID.String(), o.CreatedAt.UTC().Format(time.DateTime),
			string(o.Status), string(o.PaymentStatus), o.PaymentMethod, len(o.Items),
			o.Subtotal, o.Tax, o.Discount, o.Total)
	}
	return s
}

// LinesSheet lays out one row per order line.
func LinesSheet(items []*Order) *report.Sheet {
	s := &report.Sheet{
		Name: "Lines",
		Columns: []report.Column{
			{Header: "Order ID", Width: 38},
			{Header: "Medicine ID", Width: 38},
			{Header: "Name", Width: 30},
			{Header: "Quantity", Width: 10},
			{Header: "Price", Width: 10},
			{Header: "Total", Width: 12},
		},
	}
	for _, o := range items {
		for _, it := range o.Items {
			s.AddRow(o.ID.String(), it.MedicineID.String(), it.Name, it.Quantity, it.Price, it.Total)
		}
	}
	return s
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
	o, err := h.ledger.Get(c.Request().Context(), p, id)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, o)
}

func (h *Handler) Place(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	var req PlaceOrderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	o, err := h.ledger.PlaceOrder(c.Request().Context(), p, req)
	if err != nil {
		return httpError(err)
	}
	return response.Created(c, o)
}

func (h *Handler) SetStatus(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var upd StatusUpdate
	if err := c.Bind(&upd); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	o, err := h.ledger.SetStatus(c.Request().Context(), id, upd, p)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, o)
}

func (h *Handler) Cancel(c echo.Context) error {
	p, err := auth.MustPrincipal(c)
	if err != nil {
		return err
	}
	id, err := parseID(c)
	if err != nil {
		return err
	}
	o, err := h.ledger.CancelOrder(c.Request().Context(), id, p)
	if err != nil {
		return httpError(err)
	}
	return response.OK(c, o)
}
