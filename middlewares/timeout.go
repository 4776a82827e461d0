package middlewares

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/priyanshudevsingh/quickmailer/internal/httpapi"
)

// DefaultTimeout is the default request timeout.
const DefaultTimeout = 30 * time.Second

// Timeout bounds the request context. Handlers run on the request
// goroutine and are expected to return once the context is done; a
// deadline hit before anything was written becomes a 503.
func Timeout(timeout time.Duration) httpapi.Middleware {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return func(next httpapi.HandlerFunc) httpapi.HandlerFunc {
		return func(c *httpapi.Context) error {
			ctx, cancel := context.WithTimeout(c.Context(), timeout)
			defer cancel()
			c.SetContext(ctx)

			err := next(c)
			if !errors.Is(ctx.Err(), context.DeadlineExceeded) || c.Written() {
				return err
			}

			c.Logger().WarnContext(ctx, "request timeout", slog.String("timeout", timeout.String()))
			return httpapi.NewHTTPError(http.StatusServiceUnavailable, httpapi.CodeServiceUnavailable,
				"request timed out", errors.Join(&TimeoutError{Duration: timeout}, err))
		}
	}
}
