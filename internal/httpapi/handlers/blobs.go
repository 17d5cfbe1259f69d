package handlers

import (
	"net/http"
	"time"

	"bodyconsumer/internal/auth"

	"github.com/labstack/echo/v4"
)

func (h *Handler) GetBlob(c echo.Context) error {
	uri := blobURIFromParam(c.Param("id"))
	blob, f, err := h.svc.OpenBlob(c.Request().Context(), uri)
	if err != nil {
		return mapServiceError(err)
	}
	defer f.Close()

	header := c.Response().Header()
	contentType := blob.MimeType
	if contentType == "" {
		contentType = echo.MIMEOctetStream
	}
	header.Set(echo.HeaderContentType, contentType)
	header.Set(HeaderBlobSize, sizeHeader(f.Size()))
	if blob.Digest != "" {
		header.Set("ETag", `"`+blob.Digest+`"`)
	}
	http.ServeContent(c.Response(), c.Request(), "", time.Time{}, f)
	return nil
}

func (h *Handler) DeleteBlob(c echo.Context) error {
	if err := h.svc.DeleteBlob(c.Request().Context(), blobURIFromParam(c.Param("id"))); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) CreateToken(c echo.Context) error {
	var req struct {
		Subject string `json:"subject"`
		Name    string `json:"name"`
		IsAdmin bool   `json:"isAdmin"`
	}
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	created, err := h.svc.CreateToken(c.Request().Context(), req.Subject, req.Name, req.IsAdmin)
	if err != nil {
		return mapServiceError(err)
	}
	claims, _ := auth.GetClaims(c)
	c.Logger().Infof("token %s created for %s by %s", created.ID, req.Subject, claims.Subject)
	return c.JSON(http.StatusCreated, map[string]any{
		"id":    created.ID,
		"token": created.Token,
	})
}

func (h *Handler) Health(c echo.Context) error {
	stats := h.svc.Stats()
	return c.JSON(http.StatusOK, map[string]any{
		"ok":        true,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"inFlight":  stats.InFlight,
		"blobs":     stats.Blobs,
	})
}
