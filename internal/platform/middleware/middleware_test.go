package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/healthstore/healthstore/internal/platform/auth"
	"github.com/healthstore/healthstore/internal/platform/telemetry"
)

var quietLogger = zerolog.New(io.Discard)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get("request_id").(string)
		if rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if rid := c.Get("request_id").(string); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	}

	_ = RequestID()(handler)(c)
	if rec.Header().Get(RequestIDHeader) != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", rec.Header().Get(RequestIDHeader))
	}
}

func TestLogger_HandlesError(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = ErrorHandler(quietLogger)
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if zerolog.Ctx(c.Request().Context()) == nil {
			t.Error("expected request-scoped logger on context")
		}
		return echo.NewHTTPError(http.StatusNotFound, "medicine not found")
	}

	if err := Logger(quietLogger)(handler)(c); err != nil {
		t.Fatalf("logger should consume the error, got %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 written by error handler, got %d", rec.Code)
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/panic", nil), httptest.NewRecorder())

	err := Recovery(quietLogger)(func(c echo.Context) error { panic("test panic") })(c)
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

type stockDetails struct{}

func (stockDetails) Error() string { return "insufficient stock" }
func (stockDetails) Details() map[string]any {
	return map[string]any{"product": "p1", "available": 3}
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    int
		wantMessage string
		wantDetails bool
	}{
		{"http error", echo.NewHTTPError(http.StatusForbidden, "not yours"), http.StatusForbidden, "not yours", false},
		{"internal detail", echo.NewHTTPError(http.StatusConflict, "insufficient stock").SetInternal(stockDetails{}), http.StatusConflict, "insufficient stock", true},
		{"plain error hidden", errors.New("pq: connection reset"), http.StatusInternalServerError, "internal server error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

			ErrorHandler(quietLogger)(tt.err, c)

			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var body ErrorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Success {
				t.Error("expected success=false")
			}
			if body.Message != tt.wantMessage {
				t.Errorf("expected message %q, got %q", tt.wantMessage, body.Message)
			}
			if tt.wantDetails && body.Details["product"] != "p1" {
				t.Errorf("expected details, got %v", body.Details)
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	mw := RateLimit(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2})
	h := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	e := echo.New()
	call := func(user string) error {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if user != "" {
			req = req.WithContext(auth.WithPrincipal(req.Context(), auth.Principal{UserID: uuid.MustParse(user), Role: auth.RolePatient}))
		}
		return h(e.NewContext(req, httptest.NewRecorder()))
	}

	alice := uuid.NewString()
	for i := 0; i < 2; i++ {
		if err := call(alice); err != nil {
			t.Fatalf("request %d within burst rejected: %v", i, err)
		}
	}
	err := call(alice)
	var he *echo.HTTPError
	if !errors.As(err, &he) || he.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %v", err)
	}

	if err := call(uuid.NewString()); err != nil {
		t.Errorf("other user must have an independent bucket, got %v", err)
	}
}

func TestLimiterStore_EvictsIdle(t *testing.T) {
	s := newLimiterStore(RateLimitConfig{RequestsPerSecond: 1, BurstSize: 1, IdleTTL: time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.get("a")
	s.get("b")
	now = now.Add(2 * time.Minute)
	s.get("c")

	if s.size() != 1 {
		t.Errorf("expected idle limiters evicted, have %d", s.size())
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	_ = SecurityHeaders()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Cache-Control", "Strict-Transport-Security"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("expected %s header", h)
		}
	}
}

func TestMetrics_RecordsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := telemetry.NewMetrics(reg)

	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/orders/123", nil), httptest.NewRecorder())
	c.SetPath("/api/v1/orders/:id")

	_ = Metrics(m)(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	})(c)

	got := testutil.ToFloat64(m.HTTPRequests.WithLabelValues(http.MethodGet, "/api/v1/orders/:id", "404"))
	if got != 1 {
		t.Errorf("expected 1 request recorded under route template, got %v", got)
	}
}

func TestTracing_PassesThrough(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	called := false
	if err := Tracing()(func(c echo.Context) error { called = true; return nil })(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected handler to run")
	}
}
