package user

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/internal/credential"
	"github.com/priyanshudevsingh/quickmailer/pkg/cache"
	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
	"github.com/priyanshudevsingh/quickmailer/pkg/oauth"
)

// Service implements sign-in bookkeeping on top of a Repo.
type Service struct {
	repo   Repo
	logger *slog.Logger
	now    func() time.Time
	cache  *cache.Loader[*User]
}

// Option configures a Service.
type Option func(*Service)

// WithCache serves Get from c for up to ttl. Every authenticated request
// loads its user, so this keeps those reads off the database. Writes
// through the Service drop the cached entry.
func WithCache(c cache.Cache[*User], ttl time.Duration) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = cache.NewLoader(c, ttl)
		}
	}
}

// NewService creates a Service. A nil logger discards output.
func NewService(repo Repo, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = logger.NewNope()
	}
	s := &Service{repo: repo, logger: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindOrCreate resolves the account for a signed-in Google profile, first by
// Google ID and then by email, creating it when neither matches. Profile
// fields and the credential are overwritten with the fresh values.
func (s *Service) FindOrCreate(ctx context.Context, info oauth.UserInfo, cred credential.Credential) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(info.Email))
	if info.ID == "" || email == "" {
		return nil, ErrNoIdentity
	}

	u, err := s.repo.FindByGoogleID(ctx, info.ID)
	if errors.Is(err, ErrNotFound) {
		u, err = s.repo.FindByEmail(ctx, email)
	}

	switch {
	case errors.Is(err, ErrNotFound):
		now := s.now()
		u = &User{
			ID:        uuid.New(),
			GoogleID:  info.ID,
			Email:     email,
			Name:      info.Name,
			Picture:   info.Picture,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Create(ctx, u); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		s.logger.InfoContext(ctx, "user created", slog.String("user_id", u.ID.String()))
	case err != nil:
		return nil, fmt.Errorf("find user: %w", err)
	default:
		u.GoogleID = info.ID
		u.Email = email
		u.Name = info.Name
		u.Picture = info.Picture
		u.UpdatedAt = s.now()
		if err := s.repo.UpdateProfile(ctx, u); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	}

	if err := s.repo.SaveCredential(ctx, u.ID, cred); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	s.forget(ctx, u.ID)
	return u, nil
}

// Get returns the user with id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*User, error) {
	if s.cache == nil {
		return s.repo.FindByID(ctx, id)
	}
	return s.cache.Get(ctx, id.String(), func(ctx context.Context) (*User, error) {
		return s.repo.FindByID(ctx, id)
	})
}

// RecordDeliveries adds successful sends and drafts to the user's counters.
// Zero counts are a no-op.
func (s *Service) RecordDeliveries(ctx context.Context, id uuid.UUID, sent, drafts int) error {
	if sent == 0 && drafts == 0 {
		return nil
	}
	if err := s.repo.IncrementStats(ctx, id, sent, drafts); err != nil {
		return err
	}
	s.forget(ctx, id)
	return nil
}

func (s *Service) forget(ctx context.Context, id uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Forget(ctx, id.String()); err != nil {
		s.logger.WarnContext(ctx, "drop cached user", slog.String("user_id", id.String()), slog.Any("error", err))
	}
}
