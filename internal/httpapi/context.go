package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/internal/user"
	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
)

// maxJSONBody caps JSON request bodies. Uploads use multipart and are
// limited separately.
const maxJSONBody = 1 << 20

type (
	userKey      struct{}
	requestIDKey struct{}
)

// Context wraps one request and its response.
type Context struct {
	w      *ResponseWriter
	r      *http.Request
	logger *slog.Logger
}

func newContext(w http.ResponseWriter, r *http.Request, l *slog.Logger) *Context {
	return &Context{w: NewResponseWriter(w), r: r, logger: l}
}

func (c *Context) Request() *http.Request { return c.r }

func (c *Context) Response() http.ResponseWriter { return c.w }

func (c *Context) Context() context.Context { return c.r.Context() }

func (c *Context) Param(name string) string { return chi.URLParam(c.r, name) }

func (c *Context) Query(name string) string { return c.r.URL.Query().Get(name) }

func (c *Context) Header(name string) string { return c.r.Header.Get(name) }

func (c *Context) SetHeader(name, value string) { c.w.Header().Set(name, value) }

func (c *Context) JSON(code int, v any) error {
	c.w.Header().Set("Content-Type", "application/json; charset=utf-8")
	c.w.WriteHeader(code)
	return json.NewEncoder(c.w).Encode(v)
}

// successBody is the JSON success envelope.
type successBody struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Success writes {"success": true, "message": ..., "data": ...}.
func (c *Context) Success(code int, message string, data any) error {
	return c.JSON(code, successBody{Success: true, Message: message, Data: data})
}

func (c *Context) NoContent(code int) error {
	c.w.WriteHeader(code)
	return nil
}

func (c *Context) Redirect(code int, url string) error {
	http.Redirect(c.w, c.r, url, code)
	return nil
}

// Bind decodes a JSON body into v.
func (c *Context) Bind(v any) error {
	body := http.MaxBytesReader(c.w, c.r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return NewHTTPError(http.StatusRequestEntityTooLarge, CodeValidation, "request body too large", err)
		case errors.Is(err, io.EOF):
			return NewHTTPError(http.StatusBadRequest, CodeValidation, "request body is required", err)
		default:
			return NewHTTPError(http.StatusBadRequest, CodeValidation, "invalid JSON body", err)
		}
	}
	return nil
}

// Set stores value in the request context seen by later handlers.
func (c *Context) Set(key, value any) {
	c.r = c.r.WithContext(context.WithValue(c.r.Context(), key, value))
}

func (c *Context) Get(key any) any { return c.r.Context().Value(key) }

// SetContext replaces the request context seen by later handlers.
func (c *Context) SetContext(ctx context.Context) {
	c.r = c.r.WithContext(ctx)
}

// Written reports whether a response was already started.
func (c *Context) Written() bool { return c.w.Written() }

func (c *Context) Logger() *slog.Logger { return c.logger }

// User returns the authenticated user, or nil outside authenticated routes.
func (c *Context) User() *user.User {
	return UserFromContext(c.r.Context())
}

// UserID returns the authenticated user's ID, or uuid.Nil.
func (c *Context) UserID() uuid.UUID {
	if u := c.User(); u != nil {
		return u.ID
	}
	return uuid.Nil
}

func WithUser(ctx context.Context, u *user.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func UserFromContext(ctx context.Context) *user.User {
	u, _ := ctx.Value(userKey{}).(*user.User)
	return u
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDExtractor adds "request_id" to log records.
func RequestIDExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id := RequestIDFromContext(ctx); id != "" {
			return slog.String("request_id", id), true
		}
		return slog.Attr{}, false
	}
}

// UserIDExtractor adds "user_id" to log records on authenticated routes.
func UserIDExtractor() logger.ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		if u := UserFromContext(ctx); u != nil {
			return slog.String("user_id", u.ID.String()), true
		}
		return slog.Attr{}, false
	}
}
