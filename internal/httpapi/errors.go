package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/priyanshudevsingh/quickmailer/internal/apperr"
	"github.com/priyanshudevsingh/quickmailer/internal/credential"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer"
)

// Error codes rendered in the "code" field.
const (
	CodeValidation         = "validation_error"
	CodeNotFound           = "not_found"
	CodeConflict           = "conflict"
	CodeUnauthorized       = "unauthorized"
	CodeReauthRequired     = "reauth_required"
	CodeDraftsUnsupported  = "drafts_unsupported"
	CodeProvider           = "provider_error"
	CodeMessageBuild       = "message_build_failed"
	CodeInternal           = "internal_error"
	CodeMethodNotAllowed   = "method_not_allowed"
	CodeRequestCancelled   = "request_cancelled"
	CodeServiceUnavailable = "service_unavailable"
)

// HTTPError is an error with everything needed to render it.
type HTTPError struct {
	// Err is the underlying error, logged but never rendered.
	Err       error
	Message   string
	ErrorCode string
	Code      int
}

func (e *HTTPError) Error() string { return e.Message }

func (e *HTTPError) Unwrap() error { return e.Err }

// NewHTTPError creates an HTTPError.
func NewHTTPError(code int, errorCode, message string, cause error) *HTTPError {
	return &HTTPError{Code: code, ErrorCode: errorCode, Message: message, Err: cause}
}

func ErrBadRequest(message string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, CodeValidation, message, nil)
}

func ErrUnauthorized(message string) *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func ErrNotFound(message string) *HTTPError {
	return NewHTTPError(http.StatusNotFound, CodeNotFound, message, nil)
}

// errorBody is the JSON error envelope.
type errorBody struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"requestId,omitempty"`
}

// ToHTTPError classifies err. Errors that are already *HTTPError pass
// through; unknown errors become a 500 without leaking their text.
func ToHTTPError(err error) *HTTPError {
	var he *HTTPError
	if errors.As(err, &he) {
		return he
	}

	switch {
	case errors.Is(err, credential.ErrReauthRequired), errors.Is(err, mailer.ErrTokenRejected):
		return NewHTTPError(http.StatusUnauthorized, CodeReauthRequired,
			"mailbox access expired, please sign in again", err)
	case errors.Is(err, apperr.ErrValidation):
		return NewHTTPError(http.StatusBadRequest, CodeValidation, apperr.Message(err, "invalid request"), err)
	case errors.Is(err, apperr.ErrNotFound):
		return NewHTTPError(http.StatusNotFound, CodeNotFound, apperr.Message(err, "not found"), err)
	case errors.Is(err, apperr.ErrConflict):
		return NewHTTPError(http.StatusConflict, CodeConflict, apperr.Message(err, "conflict"), err)
	case errors.Is(err, apperr.ErrUnauthorized):
		return NewHTTPError(http.StatusUnauthorized, CodeUnauthorized, apperr.Message(err, "unauthorized"), err)
	case errors.Is(err, mailer.ErrDraftUnsupported):
		return NewHTTPError(http.StatusNotImplemented, CodeDraftsUnsupported,
			"the configured mail provider cannot create drafts", err)
	case errors.Is(err, mailer.ErrProviderCall):
		return NewHTTPError(http.StatusBadGateway, CodeProvider, "mail provider rejected the request", err)
	case errors.Is(err, mailer.ErrMessageBuild):
		return NewHTTPError(http.StatusInternalServerError, CodeMessageBuild, "message could not be built", err)
	case errors.Is(err, context.Canceled):
		// Client went away; the status is never seen.
		return NewHTTPError(499, CodeRequestCancelled, "request cancelled", err)
	case errors.Is(err, context.DeadlineExceeded):
		return NewHTTPError(http.StatusServiceUnavailable, CodeServiceUnavailable, "request timed out", err)
	default:
		return NewHTTPError(http.StatusInternalServerError, CodeInternal, "internal server error", err)
	}
}
