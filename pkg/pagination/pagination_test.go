package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(query string) Params {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/patients"+query, nil)
	return FromContext(e.NewContext(req, httptest.NewRecorder()))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"?limit=25&offset=50", 25, 50},
		{"?page=3&limit=20", 20, 40},
		{"?page=2", DefaultLimit, DefaultLimit},
		{"?page=2&offset=99", DefaultLimit, DefaultLimit},
		{"?limit=500", MaxLimit, 0},
		{"?limit=-1&offset=-5", DefaultLimit, 0},
		{"?page=0", DefaultLimit, 0},
		{"?limit=abc&page=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		p := paramsFor(tt.query)
		if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
			t.Errorf("FromContext(%q) = %+v, want limit %d offset %d", tt.query, p, tt.wantLimit, tt.wantOffset)
		}
	}
}

func TestParams_Page(t *testing.T) {
	if got := (Params{Limit: 10, Offset: 0}).Page(); got != 1 {
		t.Errorf("Page = %d, want 1", got)
	}
	if got := (Params{Limit: 10, Offset: 30}).Page(); got != 4 {
		t.Errorf("Page = %d, want 4", got)
	}
	if got := (Params{}).Page(); got != 1 {
		t.Errorf("zero Params Page = %d, want 1", got)
	}
}

func TestParams_HasNextAndPrevious(t *testing.T) {
	p := Params{Limit: 10, Offset: 10}
	if !p.HasNext(25) {
		t.Error("expected next page at offset 10 of 25")
	}
	if p.HasNext(20) {
		t.Error("expected no next page at offset 10 of 20")
	}
	if !p.HasPrevious() {
		t.Error("expected previous page")
	}
	if (Params{Limit: 10}).HasPrevious() {
		t.Error("first page has no previous")
	}
}

func TestNewResponse(t *testing.T) {
	resp := NewResponse([]string{"a", "b"}, 25, Params{Limit: 10, Offset: 10})

	if resp.Total != 25 || resp.Limit != 10 || resp.Offset != 10 {
		t.Errorf("unexpected envelope %+v", resp)
	}
	if resp.Page != 2 || resp.TotalPages != 3 {
		t.Errorf("Page/TotalPages = %d/%d, want 2/3", resp.Page, resp.TotalPages)
	}
	if !resp.HasMore {
		t.Error("expected HasMore")
	}

	empty := NewResponse([]string{}, 0, Params{Limit: 10})
	if empty.TotalPages != 0 || empty.HasMore {
		t.Errorf("empty envelope = %+v", empty)
	}
}
