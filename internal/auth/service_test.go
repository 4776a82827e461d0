package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/priyanshudevsingh/quickmailer/internal/auth"
	"github.com/priyanshudevsingh/quickmailer/internal/credential"
	"github.com/priyanshudevsingh/quickmailer/internal/user"
	"github.com/priyanshudevsingh/quickmailer/pkg/oauth"
)

type fakeProvider struct {
	token       *oauth2.Token
	info        *oauth.UserInfo
	exchangeErr error
	infoErr     error
	gotCode     string
}

func (p *fakeProvider) AuthCodeURL(state string, _ ...oauth2.AuthCodeOption) string {
	return "https://accounts.example.com/o/oauth2/auth?state=" + state
}

func (p *fakeProvider) Exchange(_ context.Context, code, _ string) (*oauth2.Token, error) {
	p.gotCode = code
	if p.exchangeErr != nil {
		return nil, p.exchangeErr
	}
	return p.token, nil
}

func (p *fakeProvider) FetchUserInfo(context.Context, *oauth2.Token) (*oauth.UserInfo, error) {
	if p.infoErr != nil {
		return nil, p.infoErr
	}
	return p.info, nil
}

type fakeUsers struct {
	byID  map[uuid.UUID]*user.User
	saved credential.Credential
}

func (u *fakeUsers) FindOrCreate(_ context.Context, info oauth.UserInfo, cred credential.Credential) (*user.User, error) {
	u.saved = cred
	for _, existing := range u.byID {
		if existing.GoogleID == info.ID {
			return existing, nil
		}
	}
	nu := &user.User{ID: uuid.New(), GoogleID: info.ID, Email: info.Email, Name: info.Name}
	u.byID[nu.ID] = nu
	return nu, nil
}

func (u *fakeUsers) Get(_ context.Context, id uuid.UUID) (*user.User, error) {
	if v, ok := u.byID[id]; ok {
		return v, nil
	}
	return nil, user.ErrNotFound
}

func newService(t *testing.T, p *fakeProvider) (*auth.Service, *fakeUsers, *auth.Tokens) {
	t.Helper()

	tokens, err := auth.NewTokens(auth.Config{Secret: secret})
	require.NoError(t, err)
	users := &fakeUsers{byID: map[uuid.UUID]*user.User{}}
	return auth.NewService(p, users, tokens, nil), users, tokens
}

func TestAuthURLCarriesState(t *testing.T) {
	t.Parallel()

	svc, _, _ := newService(t, &fakeProvider{})
	state := auth.NewState()
	assert.NotEqual(t, state, auth.NewState())
	assert.Contains(t, svc.AuthURL(state), "state="+state)
}

func TestCallback(t *testing.T) {
	t.Parallel()

	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	p := &fakeProvider{
		token: &oauth2.Token{AccessToken: "ya29.a", RefreshToken: "1//r", Expiry: expiry},
		info:  &oauth.UserInfo{ID: "g-1", Email: "ada@example.com", Name: "Ada"},
	}
	svc, users, tokens := newService(t, p)

	sess, err := svc.Callback(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "code-1", p.gotCode)
	assert.Equal(t, "ada@example.com", sess.User.Email)
	assert.Equal(t, credential.Credential{AccessToken: "ya29.a", RefreshToken: "1//r", Expiry: expiry}, users.saved)

	id, err := tokens.Parse(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, id)

	u, err := svc.Authenticate(context.Background(), sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, u.ID)
}

func TestCallbackFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")

	t.Run("missing code", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newService(t, &fakeProvider{})
		_, err := svc.Callback(context.Background(), "")
		require.ErrorIs(t, err, auth.ErrMissingCode)
	})

	t.Run("exchange fails", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newService(t, &fakeProvider{exchangeErr: errors.Join(oauth.ErrExchangeFailed, boom)})
		_, err := svc.Callback(context.Background(), "stale")
		require.ErrorIs(t, err, oauth.ErrExchangeFailed)
	})

	t.Run("unverified email", func(t *testing.T) {
		t.Parallel()
		svc, users, _ := newService(t, &fakeProvider{token: &oauth2.Token{AccessToken: "a"}, infoErr: oauth.ErrEmailNotVerified})
		_, err := svc.Callback(context.Background(), "code")
		require.ErrorIs(t, err, oauth.ErrEmailNotVerified)
		assert.Empty(t, users.byID)
	})
}

func TestAuthenticateUnknownAccount(t *testing.T) {
	t.Parallel()

	svc, _, tokens := newService(t, &fakeProvider{})
	signed, _, err := tokens.Issue(uuid.New(), "gone@example.com")
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), signed)
	require.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestRenew(t *testing.T) {
	t.Parallel()

	svc, _, tokens := newService(t, &fakeProvider{})
	u := &user.User{ID: uuid.New(), Email: "ada@example.com"}

	sess, err := svc.Renew(u)
	require.NoError(t, err)
	assert.Same(t, u, sess.User)
	assert.True(t, sess.ExpiresAt.After(time.Now()))

	id, err := tokens.Parse(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
}
