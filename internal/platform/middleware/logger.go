package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hdp/pcm/internal/platform/auth"
)

// Logger emits one event per request. When the request carries an
// authenticated caller, the client and its organization are included so the
// access log doubles as an audit trail of which party touched which resource.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)

			evt := logger.Info()
			if err != nil {
				evt = logger.Error().Err(err)
			}
			if rid, ok := c.Get("request_id").(string); ok && rid != "" {
				evt = evt.Str("request_id", rid)
			}
			// The caller is attached by RequireAuth, which runs inside
			// this middleware, so it is visible here after next returns.
			if caller := auth.CallerFrom(c); caller != nil {
				evt = evt.
					Str("client_id", caller.ClientID).
					Str("organization_id", caller.OrganizationID)
			}
			evt.
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP()).
				Msg("request")

			return err
		}
	}
}
