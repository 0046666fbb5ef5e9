package nethttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gofiber/fiber/v2"

	"github.com/cratery/cratery/internal/platform/mlog"
)

// WithCorrelationID assigns a correlation ID to every request that doesn't
// already carry one, echoing it back on the response.
func WithCorrelationID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		cid := c.Get(headerCorrelationID)
		if cid == "" {
			cid = uuid.New().String()
		}

		c.Set(headerCorrelationID, cid)
		c.Request().Header.Set(headerCorrelationID, cid)

		return c.Next()
	}
}

// WithHTTPLogging installs logger into each request's context (so handlers
// reach it via mlog.NewLoggerFromContext) and logs the method, path and
// latency of every response at Info level.
func WithHTTPLogging(logger mlog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := mlog.ContextWithLogger(c.UserContext(), logger)
		c.SetUserContext(ctx)

		start := time.Now()
		err := c.Next()

		logger.Infof("%s %s %d %s", c.Method(), c.Path(), c.Response().StatusCode(), time.Since(start))

		return err
	}
}

// IPAddrFromRemoteAddr strips the port from a host:port remote address.
func IPAddrFromRemoteAddr(s string) string {
	idx := strings.LastIndex(s, ":")
	if idx == -1 {
		return s
	}

	return s[:idx]
}

// GetRemoteAddress returns the client address, preferring proxy headers.
func GetRemoteAddress(r *http.Request) string {
	realIP := r.Header.Get(headerRealIP)
	forwardedFor := r.Header.Get(headerForwardedFor)

	if realIP == "" && forwardedFor == "" {
		return IPAddrFromRemoteAddr(r.RemoteAddr)
	}

	if forwardedFor != "" {
		parts := strings.Split(forwardedFor, ",")
		for i, p := range parts {
			parts[i] = strings.TrimSpace(p)
		}

		return parts[0]
	}

	return realIP
}
