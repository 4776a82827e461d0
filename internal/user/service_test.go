package user_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyanshudevsingh/quickmailer/internal/credential"
	"github.com/priyanshudevsingh/quickmailer/internal/user"
	"github.com/priyanshudevsingh/quickmailer/pkg/cache"
	"github.com/priyanshudevsingh/quickmailer/pkg/oauth"
)

type memRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*user.User
	creds map[uuid.UUID]credential.Credential
}

func newMemRepo() *memRepo {
	return &memRepo{users: map[uuid.UUID]*user.User{}, creds: map[uuid.UUID]credential.Credential{}}
}

func (m *memRepo) find(match func(*user.User) bool) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, user.ErrNotFound
}

func (m *memRepo) FindByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	return m.find(func(u *user.User) bool { return u.ID == id })
}

func (m *memRepo) FindByGoogleID(_ context.Context, gid string) (*user.User, error) {
	return m.find(func(u *user.User) bool { return u.GoogleID == gid })
}

func (m *memRepo) FindByEmail(_ context.Context, email string) (*user.User, error) {
	return m.find(func(u *user.User) bool { return u.Email == email })
}

func (m *memRepo) Create(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memRepo) UpdateProfile(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return user.ErrNotFound
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memRepo) IncrementStats(_ context.Context, id uuid.UUID, sent, drafts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.EmailsSent += sent
	u.DraftsCreated += drafts
	return nil
}

func (m *memRepo) Credential(_ context.Context, id uuid.UUID) (credential.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds[id], nil
}

func (m *memRepo) SaveCredential(_ context.Context, id uuid.UUID, c credential.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[id] = c
	return nil
}

func TestFindOrCreate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cred := credential.Credential{AccessToken: "a", RefreshToken: "r"}

	t.Run("creates new user", func(t *testing.T) {
		t.Parallel()

		repo := newMemRepo()
		svc := user.NewService(repo, nil)

		u, err := svc.FindOrCreate(ctx, oauth.UserInfo{ID: "g-1", Email: " Ada@Example.com ", Name: "Ada"}, cred)
		require.NoError(t, err)
		assert.Equal(t, "ada@example.com", u.Email)
		assert.Equal(t, "g-1", u.GoogleID)
		assert.False(t, u.CreatedAt.IsZero())
		assert.Equal(t, cred, repo.creds[u.ID])
	})

	t.Run("returns existing user by google id", func(t *testing.T) {
		t.Parallel()

		repo := newMemRepo()
		svc := user.NewService(repo, nil)

		first, err := svc.FindOrCreate(ctx, oauth.UserInfo{ID: "g-1", Email: "ada@example.com", Name: "Ada"}, cred)
		require.NoError(t, err)

		rotated := credential.Credential{AccessToken: "a2", RefreshToken: "r2"}
		second, err := svc.FindOrCreate(ctx, oauth.UserInfo{ID: "g-1", Email: "ada@example.com", Name: "Ada L."}, rotated)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, "Ada L.", second.Name)
		assert.Len(t, repo.users, 1)
		assert.Equal(t, rotated, repo.creds[first.ID])
	})

	t.Run("links google id to account found by email", func(t *testing.T) {
		t.Parallel()

		repo := newMemRepo()
		existing := &user.User{ID: uuid.New(), Email: "ada@example.com"}
		require.NoError(t, repo.Create(ctx, existing))

		u, err := user.NewService(repo, nil).FindOrCreate(ctx, oauth.UserInfo{ID: "g-9", Email: "ada@example.com"}, cred)
		require.NoError(t, err)
		assert.Equal(t, existing.ID, u.ID)
		assert.Equal(t, "g-9", repo.users[existing.ID].GoogleID)
	})

	t.Run("rejects profile without identity", func(t *testing.T) {
		t.Parallel()

		_, err := user.NewService(newMemRepo(), nil).FindOrCreate(ctx, oauth.UserInfo{Email: "ada@example.com"}, cred)
		require.ErrorIs(t, err, user.ErrNoIdentity)
	})
}

type failingRepo struct{ *memRepo }

func (failingRepo) FindByGoogleID(context.Context, string) (*user.User, error) {
	return nil, errors.New("connection reset")
}

func TestFindOrCreate_RepoFailure(t *testing.T) {
	t.Parallel()

	svc := user.NewService(failingRepo{newMemRepo()}, nil)
	_, err := svc.FindOrCreate(context.Background(), oauth.UserInfo{ID: "g", Email: "a@example.com"}, credential.Credential{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, user.ErrNotFound)
}

func TestRecordDeliveries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := newMemRepo()
	u := &user.User{ID: uuid.New(), Email: "ada@example.com"}
	require.NoError(t, repo.Create(ctx, u))

	svc := user.NewService(repo, nil)
	require.NoError(t, svc.RecordDeliveries(ctx, u.ID, 3, 0))
	require.NoError(t, svc.RecordDeliveries(ctx, u.ID, 0, 2))
	require.NoError(t, svc.RecordDeliveries(ctx, uuid.New(), 0, 0))

	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.EmailsSent)
	assert.Equal(t, 2, got.DraftsCreated)
}

type countingRepo struct {
	*memRepo
	reads atomic.Int32
}

func (c *countingRepo) FindByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	c.reads.Add(1)
	return c.memRepo.FindByID(ctx, id)
}

func TestGetCached(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := &countingRepo{memRepo: newMemRepo()}
	u := &user.User{ID: uuid.New(), Email: "ada@example.com"}
	require.NoError(t, repo.Create(ctx, u))

	svc := user.NewService(repo, nil, user.WithCache(cache.NewMemory[*user.User](), time.Minute))

	for range 3 {
		got, err := svc.Get(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Email, got.Email)
	}
	assert.Equal(t, int32(1), repo.reads.Load())

	require.NoError(t, svc.RecordDeliveries(ctx, u.ID, 2, 1))
	got, err := svc.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.EmailsSent)
	assert.Equal(t, 1, got.DraftsCreated)
	assert.Equal(t, int32(2), repo.reads.Load())

	_, err = svc.Get(ctx, uuid.New())
	require.ErrorIs(t, err, user.ErrNotFound)
}
