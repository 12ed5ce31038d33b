package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newSanitizeEcho() *echo.Echo {
	e := echo.New()
	e.Use(Sanitize(zerolog.Nop()))
	ok := func(c echo.Context) error { return c.String(http.StatusOK, "ok") }
	e.GET("/*", ok)
	e.POST("/*", ok)
	return e
}

func TestSanitize_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header [2]string
	}{
		{"dot dot", "/../../etc/passwd", [2]string{}},
		{"encoded dot dot", "/%2e%2e/%2e%2e/etc/passwd", [2]string{}},
		{"double encoded", "/%252e%252e/etc/passwd", [2]string{}},
		{"null byte in path", "/api/v1/patients%00", [2]string{}},
		{"null byte in query", "/api/v1/patients/search?q=ab%00c", [2]string{}},
		{"script in query", "/api/v1/patients/search?q=%3Cscript%3Ealert(1)%3C/script%3E", [2]string{}},
		{"oversized header", "/api/v1/patients", [2]string{"X-Custom", strings.Repeat("a", maxHeaderValueSize+1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newSanitizeEcho()
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header[0] != "" {
				req.Header.Set(tt.header[0], tt.header[1])
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestSanitize_HeaderInjection(t *testing.T) {
	e := newSanitizeEcho()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients", nil)
	// Header.Set would reject the newline, so write the map directly.
	req.Header["X-Injected"] = []string{"value\r\nSet-Cookie: a=b"}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSanitize_NormalRequestPassesThrough(t *testing.T) {
	e := newSanitizeEcho()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients/search?q=Rahim%20Uddin", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hello\x00world", "helloworld"},
		{"hello\x01world\x07test\x1Bend", "helloworldtestend"},
		{"line1\nline2\ttab\rreturn", "line1\nline2\ttab\rreturn"},
		{"   Chronic liver disease   ", "Chronic liver disease"},
		{"", ""},
		{"\x00\x00\x00", ""},
		{"রহিম উদ্দিন", "রহিম উদ্দিন"},
	}
	for _, tt := range tests {
		if got := SanitizeString(tt.in); got != tt.want {
			t.Errorf("SanitizeString(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
