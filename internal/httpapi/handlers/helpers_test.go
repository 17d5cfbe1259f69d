package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"bodyconsumer/internal/consume"
	"bodyconsumer/internal/service"

	"github.com/labstack/echo/v4"
)

func TestMapServiceError(t *testing.T) {
	t.Parallel()

	tooLarge := fmt.Errorf("%w: %w", consume.ErrRead, &http.MaxBytesError{Limit: 10})
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"not found", service.ErrNotFound, http.StatusNotFound},
		{"invalid input", service.ErrInvalidInput, http.StatusBadRequest},
		{"conflict", service.ErrConflict, http.StatusConflict},
		{"already started", consume.ErrAlreadyStarted, http.StatusConflict},
		{"conversion", fmt.Errorf("%w: json: bad", consume.ErrConversion), http.StatusUnprocessableEntity},
		{"aborted", consume.ErrAborted, http.StatusServiceUnavailable},
		{"read", fmt.Errorf("%w: reset", consume.ErrRead), http.StatusBadRequest},
		{"too large", tooLarge, http.StatusRequestEntityTooLarge},
		{"unknown", errors.New("something else"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := mapServiceError(tt.err)
			httpErr, ok := got.(*echo.HTTPError)
			if !ok {
				t.Fatalf("expected *echo.HTTPError, got %T", got)
			}
			if httpErr.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", httpErr.Code, tt.wantStatus)
			}
		})
	}
}

func TestBlobURIFromParam(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":         "",
		"abc":      "blob:abc",
		"blob:abc": "blob:abc",
		"  abc  ":  "blob:abc",
	}
	for in, want := range tests {
		if got := blobURIFromParam(in); got != want {
			t.Fatalf("blobURIFromParam(%q) = %q, want %q", in, got, want)
		}
	}
}
