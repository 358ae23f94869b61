package users

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/healthstore/healthstore/internal/platform/auth"
	"github.com/healthstore/healthstore/internal/platform/middleware"
)

func newTestServer(svc *Service) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = middleware.ErrorHandler(zerolog.New(io.Discard))
	api := e.Group("/api/v1", auth.DevAuthMiddleware())
	NewHandler(svc).RegisterRoutes(api)
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

func TestHandler_AdminOnly(t *testing.T) {
	svc, _ := newService()
	e := newTestServer(svc)
	for _, role := range []auth.Role{auth.RoleStoreManager, auth.RoleDoctor, auth.RolePatient} {
		rec := do(e, http.MethodGet, "/api/v1/users", "", auth.Principal{UserID: uuid.New(), Role: role})
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s: expected 403, got %d", role, rec.Code)
		}
	}
}

func TestHandler_CRUD(t *testing.T) {
	svc, _ := newService()
	e := newTestServer(svc)

	rec := do(e, http.MethodPost, "/api/v1/users",
		`{"name":"Dr. Grey","email":"Grey@Example.com","role":"doctor","specialization":"surgery"}`, admin)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created User
	if err := json.Unmarshal(decode(t, rec).Data, &created); err != nil {
		t.Fatal(err)
	}
	if created.Email != "grey@example.com" || created.Specialization != "surgery" {
		t.Errorf("created = %+v", created)
	}

	rec = do(e, http.MethodPost, "/api/v1/users", `{"name":"Copy","email":"grey@example.com"}`, admin)
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate: expected 409, got %d", rec.Code)
	}
	rec = do(e, http.MethodPost, "/api/v1/users", `{"name":"X","email":"x@example.com","role":"nurse"}`, admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad role: expected 400, got %d", rec.Code)
	}

	path := "/api/v1/users/" + created.ID.String()
	rec = do(e, http.MethodPut, path, `{"licenseNumber":"MD-42"}`, admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d", rec.Code)
	}
	rec = do(e, http.MethodGet, "/api/v1/users?role=doctor&search=grey", "", admin)
	if env := decode(t, rec); env.Total != 1 {
		t.Errorf("filtered total = %d", env.Total)
	}

	rec = do(e, http.MethodDelete, path, "", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}
	rec = do(e, http.MethodGet, path, "", admin)
	var got User
	_ = json.Unmarshal(decode(t, rec).Data, &got)
	if got.IsActive || got.LicenseNumber != "MD-42" {
		t.Errorf("after delete: %+v", got)
	}

	rec = do(e, http.MethodGet, "/api/v1/users/"+uuid.NewString(), "", admin)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing: expected 404, got %d", rec.Code)
	}
	rec = do(e, http.MethodDelete, "/api/v1/users/"+admin.UserID.String(), "", admin)
	if rec.Code != http.StatusForbidden {
		t.Errorf("self delete: expected 403, got %d", rec.Code)
	}
}
