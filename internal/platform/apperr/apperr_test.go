package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", Invalid("name is required"), http.StatusBadRequest},
		{"not found", NotFound("patient"), http.StatusNotFound},
		{"duplicate", Duplicate("patient id %s already exists", "P000001"), http.StatusConflict},
		{"unauthorized", Unauthorized("invalid username or password"), http.StatusUnauthorized},
		{"wrapped", fmt.Errorf("create patient: %w", NotFound("patient")), http.StatusNotFound},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.want {
				t.Errorf("StatusCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestHTTP_Message(t *testing.T) {
	he := HTTP(fmt.Errorf("wrap: %w", NotFound("investigation")))
	if he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", he.Code)
	}
	if he.Message != "investigation not found" {
		t.Errorf("unexpected message %v", he.Message)
	}
}

func TestHTTP_InternalHidesCause(t *testing.T) {
	cause := errors.New("connection refused")
	he := HTTP(cause)
	if he.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", he.Code)
	}
	if he.Message != "internal server error" {
		t.Errorf("cause leaked: %v", he.Message)
	}
	if !errors.Is(he.Internal, cause) {
		t.Error("expected cause kept as Internal")
	}
}
