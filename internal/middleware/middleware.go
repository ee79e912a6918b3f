// Package middleware provides the request logging chain shared by the
// proxy listener and the admin interface.
package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"
)

func newLoggingMiddleware(handler http.Handler, logger *zerolog.Logger) http.Handler {
	logHandler := hlog.NewHandler(*logger)

	requestID := hlog.RequestIDHandler("id", "X-Request-ID")

	urlHandler := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log := zerolog.Ctx(r.Context())
			log.UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("url", r.URL.Redacted())
			})
			next.ServeHTTP(w, r)
		})
	}

	access := hlog.AccessHandler(func(req *http.Request, status, size int, duration time.Duration) {
		level := zerolog.InfoLevel
		if status == 0 {
			level = zerolog.ErrorLevel
		} else if status >= http.StatusInternalServerError {
			level = zerolog.WarnLevel
		}

		l := hlog.FromRequest(req).WithLevel(level) //nolint:zerologlint
		l.
			Str("ip", req.RemoteAddr).
			Str("method", req.Method).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("Processed request")
	})

	return logHandler(requestID(access(urlHandler(handler))))
}

// Apply wraps the handler with request ID assignment and access
// logging. The logger ends up on the request context, so downstream
// handlers can enrich it via hlog.FromRequest.
func Apply(handler http.Handler, logger *zerolog.Logger) http.Handler {
	return newLoggingMiddleware(handler, logger)
}
