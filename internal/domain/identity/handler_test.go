package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/platform/auth"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo) {
	svc, _, _ := newTestService(t)
	return NewHandler(svc), echo.New()
}

func postJSON(e *echo.Echo, path, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestHandler_Register(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := postJSON(e, "/api/v1/auth/register", `{"username":"alice","password":"password1"}`)

	if err := h.Register(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Error("response leaks password material")
	}
	var res AuthResult
	json.Unmarshal(rec.Body.Bytes(), &res)
	if res.Token == "" || res.User == nil || res.User.Username != "alice" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}
}

func TestHandler_Register_BadRequest(t *testing.T) {
	h, e := newTestHandler(t)
	c, _ := postJSON(e, "/api/v1/auth/register", `{"username":"al","password":"password1"}`)

	err := h.Register(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_Register_Conflict(t *testing.T) {
	h, e := newTestHandler(t)
	c, _ := postJSON(e, "/api/v1/auth/register", `{"username":"alice","password":"password1"}`)
	if err := h.Register(c); err != nil {
		t.Fatalf("first register: %v", err)
	}
	c, _ = postJSON(e, "/api/v1/auth/register", `{"username":"alice","password":"password1"}`)
	err := h.Register(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_Login(t *testing.T) {
	h, e := newTestHandler(t)
	c, _ := postJSON(e, "/api/v1/auth/register", `{"username":"alice","password":"password1"}`)
	if err := h.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}

	c, rec := postJSON(e, "/api/v1/auth/login", `{"username":"alice","password":"password1"}`)
	if err := h.Login(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = postJSON(e, "/api/v1/auth/login", `{"username":"alice","password":"nope-nope"}`)
	err := h.Login(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_Me(t *testing.T) {
	h, e := newTestHandler(t)
	c, rec := postJSON(e, "/api/v1/auth/register", `{"username":"alice","password":"password1"}`)
	if err := h.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	var res AuthResult
	json.Unmarshal(rec.Body.Bytes(), &res)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req = req.WithContext(auth.WithIdentity(context.Background(), res.User.ID.String(), "alice", []string{auth.RoleUser}))
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	if err := h.Me(c); err != nil {
		t.Fatalf("me: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"username":"alice"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil), httptest.NewRecorder())
	err := h.Me(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 without identity, got %v", err)
	}
}
