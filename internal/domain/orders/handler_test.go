package orders

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/healthstore/healthstore/internal/platform/auth"
	"github.com/healthstore/healthstore/internal/platform/middleware"
)

func newTestServer(fx *fixture) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(zerolog.New(io.Discard))
	api := e.Group("/api/v1", auth.DevAuthMiddleware())
	NewHandler(fx.ledger).RegisterRoutes(api)
	return e
}

func do(e *echo.Echo, method, path, body string, p auth.Principal) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	req.Header.Set(auth.DevUserHeader, p.UserID.String())
	req.Header.Set(auth.DevRoleHeader, string(p.Role))
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Total   int             `json:"total"`
	Details map[string]any  `json:"details"`
	Data    json.RawMessage `json:"data"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env
}

func decodeOrder(t *testing.T, rec *httptest.ResponseRecorder) Order {
	t.Helper()
	var o Order
	if err := json.Unmarshal(decode(t, rec).Data, &o); err != nil {
		t.Fatal(err)
	}
	return o
}

func TestHandler_PlaceOrder(t *testing.T) {
	fx := newFixture()
	e := newTestServer(fx)
	a := fx.store.addMedicine("Paracetamol", 5.99, 10, 2, false)

	rec := do(e, http.MethodPost, "/api/v1/orders", `{"items":[{"medicine":"`+a.ID.String()+`","quantity":2}]}`, fx.patient)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	o := decodeOrder(t, rec)
	if !approx(o.Total, 13.178) || o.Items[0].MedicineID != a.ID || o.PatientID != fx.patient.UserID {
		t.Errorf("order %+v", o)
	}
}

func TestHandler_PlaceOrderErrors(t *testing.T) {
	fx := newFixture()
	e := newTestServer(fx)
	a := fx.store.addMedicine("A", 1, 1, 0, false)

	rec := do(e, http.MethodPost, "/api/v1/orders", `{"items":[{"medicine":"`+a.ID.String()+`","quantity":3}]}`, fx.patient)
	if rec.Code != http.StatusConflict {
		t.Fatalf("insufficient: expected 409, got %d", rec.Code)
	}
	env := decode(t, rec)
	if env.Success || env.Details["product"] != a.ID.String() || env.Details["available"] != float64(1) {
		t.Errorf("envelope = %+v", env)
	}
	if !strings.Contains(env.Message, "Available: 1") {
		t.Errorf("message = %q", env.Message)
	}

	if rec := do(e, http.MethodPost, "/api/v1/orders", `{"items":[]}`, fx.patient); rec.Code != http.StatusBadRequest {
		t.Errorf("empty cart: expected 400, got %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/api/v1/orders", `{"items":[{"medicine":"`+a.ID.String()+`","quantity":1}]}`, manager); rec.Code != http.StatusBadRequest {
		t.Errorf("staff without patient: expected 400, got %d", rec.Code)
	}
	if rec := do(e, http.MethodPost, "/api/v1/orders", `{"items":`, fx.patient); rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: expected 400, got %d", rec.Code)
	}
}

func TestHandler_StatusAndCancel(t *testing.T) {
	fx := newFixture()
	e := newTestServer(fx)
	a := fx.store.addMedicine("A", 2, 10, 0, false)
	o := fx.place(t, cart(line(a, 4)))
	base := "/api/v1/orders/" + o.ID.String()

	if rec := do(e, http.MethodPut, base+"/status", `{"status":"processing"}`, fx.patient); rec.Code != http.StatusForbidden {
		t.Errorf("patient status: expected 403, got %d", rec.Code)
	}
	rec := do(e, http.MethodPut, base+"/status", `{"status":"processing"}`, manager)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got := decodeOrder(t, rec); got.Status != StatusProcessing || got.ProcessedBy == nil {
		t.Errorf("order %+v", got)
	}
	if rec := do(e, http.MethodPut, base+"/status", `{"status":"pending"}`, manager); rec.Code != http.StatusConflict {
		t.Errorf("illegal transition: expected 409, got %d", rec.Code)
	}

	rec = do(e, http.MethodPut, base+"/cancel", "", fx.patient)
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: expected 200, got %d", rec.Code)
	}
	if fx.store.stock(a.ID) != 10 {
		t.Errorf("stock = %d", fx.store.stock(a.ID))
	}
	if rec := do(e, http.MethodPut, base+"/cancel", "", fx.patient); rec.Code != http.StatusConflict {
		t.Errorf("second cancel: expected 409, got %d", rec.Code)
	}
}

func TestHandler_GetScope(t *testing.T) {
	fx := newFixture()
	e := newTestServer(fx)
	a := fx.store.addMedicine("A", 2, 10, 0, false)
	o := fx.place(t, cart(line(a, 1)))

	if rec := do(e, http.MethodGet, "/api/v1/orders/"+o.ID.String(), "", fx.patient); rec.Code != http.StatusOK {
		t.Errorf("own: expected 200, got %d", rec.Code)
	}
	other := auth.Principal{UserID: manager.UserID, Role: auth.RolePatient}
	if rec := do(e, http.MethodGet, "/api/v1/orders/"+o.ID.String(), "", other); rec.Code != http.StatusForbidden {
		t.Errorf("foreign: expected 403, got %d", rec.Code)
	}
	if rec := do(e, http.MethodGet, "/api/v1/orders/"+manager.UserID.String(), "", manager); rec.Code != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", rec.Code)
	}
}

func TestHandler_ListFilters(t *testing.T) {
	fx := newFixture()
	e := newTestServer(fx)
	a := fx.store.addMedicine("A", 2, 10, 0, false)
	fx.place(t, cart(line(a, 1)))
	cancelled := fx.place(t, cart(line(a, 1)))
	do(e, http.MethodPut, "/api/v1/orders/"+cancelled.ID.String()+"/cancel", "", fx.patient)

	if env := decode(t, do(e, http.MethodGet, "/api/v1/orders", "", manager)); env.Total != 2 {
		t.Errorf("all: total = %d", env.Total)
	}
	if env := decode(t, do(e, http.MethodGet, "/api/v1/orders?status=cancelled", "", manager)); env.Total != 1 {
		t.Errorf("cancelled: total = %d", env.Total)
	}
	if rec := do(e, http.MethodGet, "/api/v1/orders?status=lost", "", manager); rec.Code != http.StatusBadRequest {
		t.Errorf("bad status: expected 400, got %d", rec.Code)
	}
}

func TestHandler_Export(t *testing.T) {
	fx := newFixture()
	e := newTestServer(fx)
	a := fx.store.addMedicine("A", 2, 10, 0, false)
	b := fx.store.addMedicine("B", 3, 10, 0, false)
	fx.place(t, cart(line(a, 1), line(b, 2)))

	if rec := do(e, http.MethodGet, "/api/v1/orders/export.xlsx", "", fx.patient); rec.Code != http.StatusForbidden {
		t.Errorf("patient export: expected 403, got %d", rec.Code)
	}
	rec := do(e, http.MethodGet, "/api/v1/orders/export.xlsx", "", manager)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	orders, _ := f.GetRows("Orders")
	lines, _ := f.GetRows("Lines")
	if len(orders) != 2 || len(lines) != 3 {
		t.Errorf("orders rows=%d lines rows=%d", len(orders), len(lines))
	}
	if orders[1][6] != "2" {
		t.Errorf("line count cell = %q", orders[1][6])
	}
}
