package handlers

import (
	"errors"
	"net/http"
	"strings"

	"bodyconsumer/internal/consume"
	"bodyconsumer/internal/service"

	"github.com/labstack/echo/v4"
)

const (
	HeaderBlobSize = "X-Blob-Size"
	HeaderBodyType = "X-Body-Type"
)

func mapServiceError(err error) error {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, consume.ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrConflict), errors.Is(err, consume.ErrAlreadyStarted):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrUnavailable), errors.Is(err, consume.ErrAborted):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, consume.ErrConversion):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &tooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
	case errors.Is(err, consume.ErrRead):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func blobURIFromParam(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "blob:") {
		return raw
	}
	return "blob:" + raw
}

func blobIDFromURI(uri string) string {
	return strings.TrimPrefix(uri, "blob:")
}
