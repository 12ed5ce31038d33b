package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestSecurityHeaders(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		path    string
		handler echo.HandlerFunc
		wantErr int
	}{
		{
			name:   "json record",
			method: http.MethodGet,
			path:   "/api/v1/patients",
			handler: func(c echo.Context) error {
				return c.JSON(http.StatusOK, map[string]string{"name": "Rahima Begum"})
			},
		},
		{
			name:   "image bytes",
			method: http.MethodGet,
			path:   "/api/v1/images/7b0c/content",
			handler: func(c echo.Context) error {
				return c.Blob(http.StatusOK, "image/png", []byte{0x89, 'P', 'N', 'G'})
			},
		},
		{
			name:   "handler error",
			method: http.MethodDelete,
			path:   "/api/v1/investigations/missing",
			handler: func(c echo.Context) error {
				return echo.NewHTTPError(http.StatusNotFound, "investigation not found")
			},
			wantErr: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			rec := httptest.NewRecorder()
			c := e.NewContext(httptest.NewRequest(tt.method, tt.path, nil), rec)

			err := SecurityHeaders()(tt.handler)(c)
			if tt.wantErr == 0 && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != 0 {
				var he *echo.HTTPError
				if !errors.As(err, &he) || he.Code != tt.wantErr {
					t.Fatalf("err = %v, want %d", err, tt.wantErr)
				}
			}

			for _, kv := range securityHeaders {
				if got := rec.Header().Get(kv[0]); got != kv[1] {
					t.Errorf("%s = %q, want %q", kv[0], got, kv[1])
				}
			}
		})
	}
}

func TestSecurityHeaders_NoStore(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/export/patients", nil), rec)

	h := SecurityHeaders()(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	if err := h(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q, want no-store", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); got != "default-src 'none'; frame-ancestors 'none'" {
		t.Errorf("Content-Security-Policy = %q", got)
	}
}
