package api

import (
	"strings"

	"relay/internal/server/metadata"

	"github.com/labstack/echo/v4"
)

// uploaderOf snapshots the requesting client. RealIP takes the first
// X-Forwarded-For hop when present.
func uploaderOf(c echo.Context) metadata.Uploader {
	ip := c.RealIP()
	if ip == "" {
		ip = "Unknown"
	}
	return metadata.Uploader{IP: ip, Device: deviceOf(c.Request().UserAgent())}
}

// deviceOf extracts the platform segment of a User-Agent, e.g.
// "Windows NT 10.0; Win64; x64" from a browser string.
func deviceOf(userAgent string) string {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return "Unknown"
	}
	open := strings.IndexByte(userAgent, '(')
	if open < 0 {
		return userAgent
	}
	rest := userAgent[open+1:]
	if end := strings.IndexByte(rest, ')'); end >= 0 {
		rest = rest[:end]
	}
	if rest = strings.TrimSpace(rest); rest == "" {
		return userAgent
	}
	return rest
}
