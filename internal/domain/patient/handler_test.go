package patient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medrec/medrec/internal/platform/auth"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc, _ := newTestService(nil)
	return NewHandler(svc), echo.New()
}

func authedRequest(method, target, body string, owner uuid.UUID) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	ctx := auth.WithIdentity(context.Background(), owner.String(), "doctor", []string{auth.RoleUser})
	return req.WithContext(ctx)
}

const createBody = `{"patientId":"P000123","name":"Abdul Karim","dateOfBirth":"1950-01-10",
	"sex":"Male","patientMobile":"01911111111","tags":["ckd"]}`

func createViaHandler(t *testing.T, h *Handler, e *echo.Echo, owner uuid.UUID) map[string]interface{} {
	t.Helper()
	rec := httptest.NewRecorder()
	c := e.NewContext(authedRequest(http.MethodPost, "/api/v1/patients", createBody, owner), rec)
	if err := h.Create(c); err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	return body
}

func TestHandler_Create(t *testing.T) {
	h, e := newTestHandler()
	body := createViaHandler(t, h, e, uuid.New())

	if body["patientId"] != "P000123" {
		t.Errorf("unexpected patientId %v", body["patientId"])
	}
	if body["dateOfBirth"] != "1950-01-10" {
		t.Errorf("unexpected dateOfBirth %v", body["dateOfBirth"])
	}
	if body["ageCategory"] != "Senior Citizen" || body["isSeniorCitizen"] != true {
		t.Errorf("derived fields missing: %v", body)
	}
	if body["primaryContact"] != "01911111111" {
		t.Errorf("unexpected primaryContact %v", body["primaryContact"])
	}
	if body["religion"] != "Islam" {
		t.Errorf("unexpected religion %v", body["religion"])
	}
}

func TestHandler_Create_Unauthenticated(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/patients", strings.NewReader(createBody))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	err := h.Create(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %v", err)
	}
}

func TestHandler_Create_Conflict(t *testing.T) {
	h, e := newTestHandler()
	owner := uuid.New()
	createViaHandler(t, h, e, owner)

	c := e.NewContext(authedRequest(http.MethodPost, "/api/v1/patients", createBody, owner), httptest.NewRecorder())
	err := h.Create(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusConflict {
		t.Errorf("expected 409, got %v", err)
	}
}

func TestHandler_Get(t *testing.T) {
	h, e := newTestHandler()
	owner := uuid.New()
	created := createViaHandler(t, h, e, owner)

	rec := httptest.NewRecorder()
	c := e.NewContext(authedRequest(http.MethodGet, "/", "", owner), rec)
	c.SetParamNames("id")
	c.SetParamValues(created["id"].(string))
	if err := h.Get(c); err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c = e.NewContext(authedRequest(http.MethodGet, "/", "", owner), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	err := h.Get(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}

	c = e.NewContext(authedRequest(http.MethodGet, "/", "", uuid.New()), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(created["id"].(string))
	err = h.Get(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404 for another owner, got %v", err)
	}
}

func TestHandler_List(t *testing.T) {
	h, e := newTestHandler()
	owner := uuid.New()
	createViaHandler(t, h, e, owner)

	rec := httptest.NewRecorder()
	c := e.NewContext(authedRequest(http.MethodGet, "/api/v1/patients?page=1&limit=5", "", owner), rec)
	if err := h.List(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	var body struct {
		Data  []map[string]interface{} `json:"data"`
		Total int                      `json:"total"`
		Limit int                      `json:"limit"`
	}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body.Total != 1 || len(body.Data) != 1 || body.Limit != 5 {
		t.Errorf("unexpected page %+v", body)
	}
}

func TestHandler_Search(t *testing.T) {
	h, e := newTestHandler()
	owner := uuid.New()
	createViaHandler(t, h, e, owner)

	rec := httptest.NewRecorder()
	c := e.NewContext(authedRequest(http.MethodGet, "/api/v1/patients/search?q=karim", "", owner), rec)
	if err := h.Search(c); err != nil {
		t.Fatalf("search: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Abdul Karim") {
		t.Errorf("expected hit, got %s", rec.Body.String())
	}

	c = e.NewContext(authedRequest(http.MethodGet, "/api/v1/patients/search?q=k", "", owner), httptest.NewRecorder())
	err := h.Search(c)
	if he, ok := err.(*echo.HTTPError); !ok || he.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %v", err)
	}
}

func TestHandler_UpdateAndDelete(t *testing.T) {
	h, e := newTestHandler()
	owner := uuid.New()
	created := createViaHandler(t, h, e, owner)
	id := created["id"].(string)

	rec := httptest.NewRecorder()
	c := e.NewContext(authedRequest(http.MethodPatch, "/", `{"district":"Sylhet"}`, owner), rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	if err := h.Update(c); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"district":"Sylhet"`) {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	c = e.NewContext(authedRequest(http.MethodDelete, "/", "", owner), rec)
	c.SetParamNames("id")
	c.SetParamValues(id)
	if err := h.Delete(c); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}
