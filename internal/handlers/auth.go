package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/priyanshudevsingh/quickmailer/internal/auth"
	"github.com/priyanshudevsingh/quickmailer/internal/httpapi"
	"github.com/priyanshudevsingh/quickmailer/internal/user"
	"github.com/priyanshudevsingh/quickmailer/pkg/cookie"
	"github.com/priyanshudevsingh/quickmailer/pkg/oauth"
)

const (
	stateCookie = "qm_oauth_state"
	stateTTL    = 10 * time.Minute
)

// AuthService runs the Google sign-in flow.
type AuthService interface {
	AuthURL(state string) string
	Callback(ctx context.Context, code string) (*auth.Session, error)
	Renew(u *user.User) (*auth.Session, error)
}

// AuthHandler serves /api/auth.
type AuthHandler struct {
	svc         AuthService
	cookies     *cookie.Manager
	frontendURL string
	guard       Guard
}

// NewAuthHandler creates an AuthHandler. With a frontendURL the callback
// redirects to <frontendURL>/auth-callback carrying the token; without one
// it answers with JSON.
func NewAuthHandler(svc AuthService, cookies *cookie.Manager, frontendURL string, guard Guard) *AuthHandler {
	return &AuthHandler{
		svc:         svc,
		cookies:     cookies,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		guard:       guard,
	}
}

func (h *AuthHandler) Routes(r httpapi.Router) {
	r.Route("/api/auth", func(r httpapi.Router) {
		r.GET("/google", h.redirect)
		r.GET("/google/url", h.authURL)
		r.GET("/google/callback", h.callback)

		r.Group(func(r httpapi.Router) {
			r.Use(h.guard.all()...)
			r.GET("/me", h.me)
			r.GET("/profile", h.me)
			r.POST("/refresh", h.refresh)
			r.POST("/logout", h.logout)
		})
	})
}

// startFlow stores a fresh CSRF state and returns the consent URL.
func (h *AuthHandler) startFlow(c *httpapi.Context) string {
	state := auth.NewState()
	h.cookies.Set(c.Response(), stateCookie, state, stateTTL)
	return h.svc.AuthURL(state)
}

func (h *AuthHandler) redirect(c *httpapi.Context) error {
	return c.Redirect(http.StatusFound, h.startFlow(c))
}

func (h *AuthHandler) authURL(c *httpapi.Context) error {
	return c.Success(http.StatusOK, "Google auth URL generated", map[string]string{"authUrl": h.startFlow(c)})
}

func (h *AuthHandler) callback(c *httpapi.Context) error {
	if reason := c.Query("error"); reason != "" {
		return httpapi.ErrUnauthorized("Google sign-in failed: " + reason)
	}

	want, err := h.cookies.Pop(c.Response(), c.Request(), stateCookie)
	if err != nil || want != c.Query("state") {
		return httpapi.NewHTTPError(http.StatusBadRequest, httpapi.CodeValidation, "invalid OAuth state", err)
	}
	code := c.Query("code")
	if code == "" {
		return httpapi.ErrBadRequest("authorization code is required")
	}

	sess, err := h.svc.Callback(c.Context(), code)
	switch {
	case errors.Is(err, oauth.ErrEmailNotVerified):
		return httpapi.NewHTTPError(http.StatusUnauthorized, httpapi.CodeUnauthorized, "Google account email is not verified", err)
	case errors.Is(err, oauth.ErrExchangeFailed):
		return httpapi.NewHTTPError(http.StatusUnauthorized, httpapi.CodeUnauthorized, "Google sign-in failed", err)
	case err != nil:
		return err
	}

	if h.frontendURL != "" {
		q := url.Values{"token": {sess.Token}, "success": {"true"}}
		return c.Redirect(http.StatusFound, h.frontendURL+"/auth-callback?"+q.Encode())
	}
	return c.Success(http.StatusOK, "Login successful", sess)
}

func (h *AuthHandler) me(c *httpapi.Context) error {
	return c.Success(http.StatusOK, "Profile retrieved", map[string]any{"user": c.User()})
}

func (h *AuthHandler) refresh(c *httpapi.Context) error {
	sess, err := h.svc.Renew(c.User())
	if err != nil {
		return err
	}
	return c.Success(http.StatusOK, "Token refreshed", sess)
}

// logout is an acknowledgement; session tokens are stateless and the
// client drops its copy.
func (h *AuthHandler) logout(c *httpapi.Context) error {
	return c.Success(http.StatusOK, "Logout successful", nil)
}
