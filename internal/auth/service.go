package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/priyanshudevsingh/quickmailer/internal/credential"
	"github.com/priyanshudevsingh/quickmailer/internal/user"
	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
	"github.com/priyanshudevsingh/quickmailer/pkg/oauth"
)

var ErrMissingCode = errors.New("auth: authorization code is required")

// Provider is the subset of the OAuth provider used for sign-in.
type Provider interface {
	AuthCodeURL(state string, opts ...oauth2.AuthCodeOption) string
	Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error)
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*oauth.UserInfo, error)
}

// Users resolves and loads accounts.
type Users interface {
	FindOrCreate(ctx context.Context, info oauth.UserInfo, cred credential.Credential) (*user.User, error)
	Get(ctx context.Context, id uuid.UUID) (*user.User, error)
}

// Session is the result of a successful sign-in.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      *user.User `json:"user"`
}

// Service runs the Google sign-in flow.
type Service struct {
	provider Provider
	users    Users
	tokens   *Tokens
	logger   *slog.Logger
}

// NewService creates a Service. A nil logger discards output.
func NewService(provider Provider, users Users, tokens *Tokens, log *slog.Logger) *Service {
	if log == nil {
		log = logger.NewNope()
	}
	return &Service{provider: provider, users: users, tokens: tokens, logger: log}
}

// NewState returns a random CSRF state for the consent redirect.
func NewState() string {
	return uuid.NewString()
}

// AuthURL returns the Google consent URL carrying state.
func (s *Service) AuthURL(state string) string {
	return s.provider.AuthCodeURL(state)
}

// Callback trades code for mailbox tokens, stores them on the account and
// issues a session token. When Google omits the refresh token the stored
// one is kept.
func (s *Service) Callback(ctx context.Context, code string) (*Session, error) {
	if code == "" {
		return nil, ErrMissingCode
	}

	tok, err := s.provider.Exchange(ctx, code, "")
	if err != nil {
		return nil, err
	}
	info, err := s.provider.FetchUserInfo(ctx, tok)
	if err != nil {
		return nil, err
	}

	u, err := s.users.FindOrCreate(ctx, *info, credential.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	})
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken == "" {
		s.logger.WarnContext(ctx, "sign-in without refresh token",
			slog.String("user_id", u.ID.String()))
	}

	signed, exp, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user signed in", slog.String("user_id", u.ID.String()))
	return &Session{Token: signed, ExpiresAt: exp, User: u}, nil
}

// Authenticate resolves a bearer token to its account.
func (s *Service) Authenticate(ctx context.Context, token string) (*user.User, error) {
	id, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	u, err := s.users.Get(ctx, id)
	if errors.Is(err, user.ErrNotFound) {
		return nil, fmt.Errorf("%w: account no longer exists", ErrInvalidToken)
	}
	return u, err
}

// Renew issues a fresh session token for an authenticated user.
func (s *Service) Renew(u *user.User) (*Session, error) {
	signed, exp, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	return &Session{Token: signed, ExpiresAt: exp, User: u}, nil
}
