package handlers

import (
	"net/http"
	"strconv"

	"bodyconsumer/internal/auth"
	"bodyconsumer/internal/consume"
	"bodyconsumer/internal/service"
	"bodyconsumer/internal/storage"

	"github.com/labstack/echo/v4"
)

// Consume reads the request body as the type named in the path.
func (h *Handler) Consume(c echo.Context) error {
	typ, err := consume.ParseType(c.Param("type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	req := c.Request()
	body := req.Body
	if h.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(c.Response(), req.Body, h.cfg.MaxBodyBytes)
	}
	claims, _ := auth.GetClaims(c)

	value, err := h.svc.ConsumeBody(req.Context(), service.ConsumeInput{
		Type:        typ,
		Body:        body,
		ContentType: req.Header.Get(echo.HeaderContentType),
		BlobURI:     blobURIFromParam(c.QueryParam("blob")),
		Subject:     claims.Subject,
	})
	if err != nil {
		return mapServiceError(err)
	}

	switch value.Type {
	case consume.TypeRawBytes, consume.TypeBytes:
		c.Response().Header().Set(HeaderBodyType, value.Type.String())
		return c.Blob(http.StatusOK, echo.MIMEOctetStream, value.Bytes)
	case consume.TypeText:
		return c.String(http.StatusOK, value.Text)
	case consume.TypeJSON:
		return c.JSON(http.StatusOK, map[string]any{"value": value.JSON})
	case consume.TypeFormData:
		return c.JSON(http.StatusOK, map[string]any{"entries": formEntries(value.Form)})
	case consume.TypeBlob:
		return c.JSON(http.StatusCreated, blobPayload(value.Blob))
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected consume type")
	}
}

func formEntries(form *consume.FormData) []map[string]any {
	if form == nil {
		return []map[string]any{}
	}
	out := make([]map[string]any, 0, form.Len())
	for _, e := range form.Entries {
		entry := map[string]any{"name": e.Name}
		if e.File != nil {
			entry["file"] = map[string]any{
				"filename":    e.File.Filename,
				"contentType": e.File.ContentType,
				"size":        len(e.File.Data),
			}
		} else {
			entry["value"] = e.Value
		}
		out = append(out, entry)
	}
	return out
}

func blobPayload(blob *storage.Blob) map[string]any {
	return map[string]any{
		"uri":      blob.URI,
		"id":       blobIDFromURI(blob.URI),
		"size":     blob.Size,
		"digest":   blob.Digest,
		"mimeType": blob.MimeType,
		"href":     "/api/v1/blobs/" + blobIDFromURI(blob.URI),
	}
}

func sizeHeader(n int64) string { return strconv.FormatInt(n, 10) }
