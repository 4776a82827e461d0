package middlewares

import (
	"log/slog"
	"net/http"
	"runtime"

	"github.com/priyanshudevsingh/quickmailer/internal/httpapi"
)

// DefaultStackSize is the default maximum stack trace size in bytes.
const DefaultStackSize = 4096

type RecoverConfig struct {
	StackSize         int
	DisablePrintStack bool
}

type RecoverOption func(*RecoverConfig)

func WithRecoverStackSize(size int) RecoverOption {
	return func(cfg *RecoverConfig) {
		cfg.StackSize = size
	}
}

func WithRecoverDisablePrintStack() RecoverOption {
	return func(cfg *RecoverConfig) {
		cfg.DisablePrintStack = true
	}
}

// Recover turns a panic into a 500 response wrapping a *PanicError.
func Recover(opts ...RecoverOption) httpapi.Middleware {
	cfg := &RecoverConfig{
		StackSize: DefaultStackSize,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next httpapi.HandlerFunc) httpapi.HandlerFunc {
		return func(c *httpapi.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				var stack []byte
				if !cfg.DisablePrintStack {
					stack = make([]byte, cfg.StackSize)
					stack = stack[:runtime.Stack(stack, false)]
				}

				attrs := []any{slog.Any("panic", r)}
				if stack != nil {
					attrs = append(attrs, slog.String("stack", string(stack)))
				}
				c.Logger().ErrorContext(c.Context(), "panic recovered", attrs...)

				err = httpapi.NewHTTPError(http.StatusInternalServerError, httpapi.CodeInternal,
					"internal server error", &PanicError{Value: r, Stack: stack})
			}()

			return next(c)
		}
	}
}
