package api

import (
	"context"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"relay/internal/server/metadata"
	"relay/internal/server/service"

	"github.com/labstack/echo/v4"
)

const healthTimeout = 3 * time.Second

// Handler contains the HTTP handlers for the relay API.
type Handler struct {
	svc    *service.Relay
	checks map[string]metadata.Pinger
}

// NewHandler creates a handler. checks are probed by /health, keyed by the
// name reported for each.
func NewHandler(svc *service.Relay, checks map[string]metadata.Pinger) *Handler {
	return &Handler{svc: svc, checks: checks}
}

// HandleUpload handles POST /api/upload.
// Accepts a multipart form with a "file" field and optional "description",
// "password" and "expiration" (hours) fields.
func (h *Handler) HandleUpload(c echo.Context) error {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "file is required (use form field 'file')",
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		slog.Error("failed to open multipart file", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to read uploaded file",
		})
	}
	defer src.Close()

	result, err := h.svc.Upload(c.Request().Context(), service.UploadRequest{
		DisplayName: fileHeader.Filename,
		Body:        src,
		Size:        fileHeader.Size,
		Description: c.FormValue("description"),
		Password:    c.FormValue("password"),
		Expiration:  c.FormValue("expiration"),
		Uploader:    uploaderOf(c),
	})
	if err != nil {
		return mapServiceError(c, err)
	}

	return c.JSON(http.StatusCreated, result)
}

// HandleList handles GET /api/files.
func (h *Handler) HandleList(c echo.Context) error {
	records, err := h.svc.List(c.Request().Context())
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, records)
}

// HandleInfo handles GET /api/info/:key.
// Returns file metadata without serving the bytes.
func (h *Handler) HandleInfo(c echo.Context) error {
	info, err := h.svc.Info(c.Request().Context(), c.Param("key"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleDownload handles GET and POST /d/:key.
// The password is read from the POST body only; a query parameter is ignored.
func (h *Handler) HandleDownload(c echo.Context) error {
	key := c.Param("key")
	password := c.Request().PostFormValue("password")

	dl, err := h.svc.Download(c.Request().Context(), key, password)
	if err != nil {
		return mapServiceError(c, err)
	}
	defer dl.Body.Close()

	c.Response().Header().Set(echo.HeaderContentDisposition,
		mime.FormatMediaType("attachment", map[string]string{"filename": dl.DisplayName}))
	http.ServeContent(c.Response(), c.Request(), dl.DisplayName, dl.ModTime, dl.Body)
	return nil
}

// HandleStats handles GET /api/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		slog.Error("failed to collect stats", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{
			"error": "failed to retrieve stats",
		})
	}
	return c.JSON(http.StatusOK, stats)
}

// HandleHealth handles GET /health.
// Reports "degraded" with per-check detail when any probe fails.
func (h *Handler) HandleHealth(c echo.Context) error {
	status := "healthy"
	results := make(map[string]string, len(h.checks))

	for name, check := range h.checks {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		err := check.Ping(ctx)
		cancel()
		if err != nil {
			status = "degraded"
			results[name] = "error: " + err.Error()
			continue
		}
		results[name] = "ok"
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, echo.Map{
		"status": status,
		"checks": results,
	})
}

// mapServiceError translates service-layer errors into HTTP responses.
// Internal causes are logged, never returned to the client.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrFileTooLarge):
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{
			"error": "file exceeds maximum allowed size",
		})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "file not found"})
	case errors.Is(err, service.ErrPasswordRequired):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "password_required"})
	case errors.Is(err, service.ErrDenied):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "invalid password"})
	default:
		slog.Error("request failed",
			"method", c.Request().Method,
			"path", c.Request().URL.Path,
			"error", err,
		)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
	}
}
