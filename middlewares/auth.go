package middlewares

import (
	"context"
	"errors"
	"net/http"

	"github.com/priyanshudevsingh/quickmailer/internal/auth"
	"github.com/priyanshudevsingh/quickmailer/internal/httpapi"
	"github.com/priyanshudevsingh/quickmailer/internal/user"
)

// Authenticator resolves a bearer token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*user.User, error)
}

type AuthConfig struct {
	Extractor httpapi.Extractor
}

type AuthOption func(*AuthConfig)

// WithAuthExtractor sets a custom token extractor chain.
func WithAuthExtractor(ext httpapi.Extractor) AuthOption {
	return func(cfg *AuthConfig) {
		cfg.Extractor = ext
	}
}

// Auth requires a valid session token and stores the user in the request
// context. Tokens come from the Authorization header by default.
func Auth(authn Authenticator, opts ...AuthOption) httpapi.Middleware {
	cfg := &AuthConfig{
		Extractor: httpapi.NewExtractor(httpapi.FromBearerToken()),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	return func(next httpapi.HandlerFunc) httpapi.HandlerFunc {
		return func(c *httpapi.Context) error {
			token, ok := cfg.Extractor.Extract(c)
			if !ok {
				return httpapi.ErrUnauthorized("access token required")
			}

			u, err := authn.Authenticate(c.Context(), token)
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				return httpapi.NewHTTPError(http.StatusUnauthorized, httpapi.CodeUnauthorized, "token expired", err)
			case errors.Is(err, auth.ErrInvalidToken):
				return httpapi.NewHTTPError(http.StatusUnauthorized, httpapi.CodeUnauthorized, "invalid token", err)
			case err != nil:
				return err
			}

			c.SetContext(httpapi.WithUser(c.Context(), u))
			return next(c)
		}
	}
}
