package api

import (
	"net/http"
	"strconv"

	"relay/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// multipartOverhead is headroom for form fields and boundaries on top of
// the file itself.
const multipartOverhead = 1 << 20

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType},
	}))
	e.Use(RequestLogger())

	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)

	bodyLimit := middleware.BodyLimit(strconv.FormatInt(cfg.MaxFileSize+multipartOverhead, 10))
	e.POST("/api/upload", handler.HandleUpload, bodyLimit)

	e.GET("/api/files", handler.HandleList)
	e.GET("/api/info/:key", handler.HandleInfo)

	e.GET("/d/:key", handler.HandleDownload)
	e.POST("/d/:key", handler.HandleDownload)

	return e
}
