// Package credential keeps a user's mailbox access token usable: it hands
// out the stored token while it is valid and refreshes it at most once per
// expiry, even when many goroutines or instances ask at the same time.
package credential

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
	"github.com/priyanshudevsingh/quickmailer/pkg/redis"
)

var (
	// ErrReauthRequired means the user has to sign in again: there is no
	// refresh token or the provider refused it.
	ErrReauthRequired = errors.New("credential: re-authentication required")

	ErrLoadFailed = errors.New("credential: failed to load credential")
	ErrSaveFailed = errors.New("credential: failed to save credential")
	ErrLockFailed = errors.New("credential: failed to acquire refresh lock")
)

// Credential is a user's OAuth token set. A zero Expiry means the token
// carries no known expiry and is treated as valid.
type Credential struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// Valid reports whether the access token can be used at now.
func (c Credential) Valid(now time.Time) bool {
	return c.AccessToken != "" && (c.Expiry.IsZero() || now.Before(c.Expiry))
}

// Store loads and persists credentials.
type Store interface {
	Credential(ctx context.Context, userID uuid.UUID) (Credential, error)
	SaveCredential(ctx context.Context, userID uuid.UUID, c Credential) error
}

// Refresher trades a refresh token for a new token set.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// Locker serializes refreshes across processes. The returned func releases
// the lock.
type Locker interface {
	Lock(ctx context.Context, key string) (func(context.Context) error, error)
}

// Outcome labels a single EnsureValid call for metrics.
type Outcome string

const (
	OutcomeCached    Outcome = "cached"
	OutcomeRefreshed Outcome = "refreshed"
	OutcomeReauth    Outcome = "reauth_required"
	OutcomeError     Outcome = "error"
)

// Manager implements refresh-before-use for stored credentials.
type Manager struct {
	store     Store
	refresher Refresher
	locker    Locker
	now       func() time.Time
	observe   func(Outcome)
	logger    *slog.Logger
	group     singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithLocker adds a cross-process lock around refreshes.
func WithLocker(l Locker) Option {
	return func(m *Manager) { m.locker = l }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithObserver receives the outcome of every EnsureValid call.
func WithObserver(fn func(Outcome)) Option {
	return func(m *Manager) {
		if fn != nil {
			m.observe = fn
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewManager creates a Manager over store and refresher.
func NewManager(store Store, refresher Refresher, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		refresher: refresher,
		now:       time.Now,
		observe:   func(Outcome) {},
		logger:    logger.NewNope(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureValid returns a usable access token for userID, refreshing and
// persisting a new one when the stored token has expired. Concurrent callers
// for the same user share one refresh. It never retries a failed refresh.
func (m *Manager) EnsureValid(ctx context.Context, userID uuid.UUID) (string, error) {
	cred, err := m.store.Credential(ctx, userID)
	if err != nil {
		m.observe(OutcomeError)
		return "", errors.Join(ErrLoadFailed, err)
	}
	if cred.Valid(m.now()) {
		m.observe(OutcomeCached)
		return cred.AccessToken, nil
	}

	v, err, _ := m.group.Do(userID.String(), func() (any, error) {
		return m.refresh(ctx, userID)
	})
	if err != nil {
		if errors.Is(err, ErrReauthRequired) {
			m.observe(OutcomeReauth)
		} else {
			m.observe(OutcomeError)
		}
		return "", err
	}

	res := v.(refreshResult)
	m.observe(res.outcome)
	return res.token, nil
}

type refreshResult struct {
	token   string
	outcome Outcome
}

func (m *Manager) refresh(ctx context.Context, userID uuid.UUID) (refreshResult, error) {
	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, userID.String())
		if err != nil {
			return refreshResult{}, errors.Join(ErrLockFailed, err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.WarnContext(ctx, "release refresh lock",
					slog.String("user_id", userID.String()),
					slog.Any("error", err))
			}
		}()
	}

	// Another holder may have refreshed while we waited.
	cred, err := m.store.Credential(ctx, userID)
	if err != nil {
		return refreshResult{}, errors.Join(ErrLoadFailed, err)
	}
	if cred.Valid(m.now()) {
		return refreshResult{token: cred.AccessToken, outcome: OutcomeCached}, nil
	}
	if cred.RefreshToken == "" {
		return refreshResult{}, ErrReauthRequired
	}

	tok, err := m.refresher.Refresh(ctx, cred.RefreshToken)
	if err != nil {
		m.logger.WarnContext(ctx, "access token refresh failed",
			slog.String("user_id", userID.String()),
			slog.Any("error", err))
		return refreshResult{}, errors.Join(ErrReauthRequired, err)
	}

	next := Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cred.RefreshToken
	}
	if next.AccessToken == "" {
		return refreshResult{}, ErrReauthRequired
	}
	if err := m.store.SaveCredential(ctx, userID, next); err != nil {
		return refreshResult{}, errors.Join(ErrSaveFailed, err)
	}

	m.logger.DebugContext(ctx, "access token refreshed", slog.String("user_id", userID.String()))
	return refreshResult{token: next.AccessToken, outcome: OutcomeRefreshed}, nil
}

// RedisLocker adapts a redis.Locker. Each lock lives for ttl and callers
// wait up to wait for it.
func RedisLocker(l *redis.Locker, ttl, wait time.Duration) Locker {
	return redisLocker{locker: l, ttl: ttl, wait: wait}
}

type redisLocker struct {
	locker    *redis.Locker
	ttl, wait time.Duration
}

func (r redisLocker) Lock(ctx context.Context, key string) (func(context.Context) error, error) {
	lock, err := r.locker.Acquire(ctx, "refresh:"+key, r.ttl, r.wait)
	if err != nil {
		return nil, err
	}
	return lock.Release, nil
}
