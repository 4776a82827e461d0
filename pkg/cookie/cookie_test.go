package cookie_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/priyanshudevsingh/quickmailer/pkg/cookie"
)

const secret = "0123456789abcdef0123456789abcdef"

// roundTrip copies cookies set on rec into a new request.
func roundTrip(rec *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	return req
}

func TestNewRejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := cookie.New("short")
	require.ErrorIs(t, err, cookie.ErrBadSecret)
}

func TestSetGet(t *testing.T) {
	t.Parallel()

	m, err := cookie.New(secret, cookie.WithSecure(true))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Set(rec, "oauth_state", "csrf-123", 10*time.Minute)

	set := rec.Result().Cookies()
	require.Len(t, set, 1)
	assert.True(t, set[0].HttpOnly)
	assert.True(t, set[0].Secure)
	assert.Equal(t, http.SameSiteLaxMode, set[0].SameSite)
	assert.Equal(t, 600, set[0].MaxAge)
	assert.NotContains(t, set[0].Value, "csrf-123")

	got, err := m.Get(roundTrip(rec), "oauth_state")
	require.NoError(t, err)
	assert.Equal(t, "csrf-123", got)
}

func TestGetFailures(t *testing.T) {
	t.Parallel()

	m, err := cookie.New(secret)
	require.NoError(t, err)

	t.Run("missing", func(t *testing.T) {
		t.Parallel()
		_, err := m.Get(httptest.NewRequest(http.MethodGet, "/", nil), "oauth_state")
		require.ErrorIs(t, err, cookie.ErrNotFound)
	})

	t.Run("tampered", func(t *testing.T) {
		t.Parallel()

		rec := httptest.NewRecorder()
		m.Set(rec, "oauth_state", "csrf-123", time.Minute)
		c := rec.Result().Cookies()[0]
		parts := strings.Split(c.Value, ".")
		parts[1] = "9999999999"

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(&http.Cookie{Name: "oauth_state", Value: strings.Join(parts, ".")})
		_, err := m.Get(req, "oauth_state")
		require.ErrorIs(t, err, cookie.ErrBadSig)
	})

	t.Run("other secret", func(t *testing.T) {
		t.Parallel()

		other, err := cookie.New(strings.Repeat("x", 32))
		require.NoError(t, err)
		rec := httptest.NewRecorder()
		other.Set(rec, "oauth_state", "csrf-123", time.Minute)

		_, err = m.Get(roundTrip(rec), "oauth_state")
		require.ErrorIs(t, err, cookie.ErrBadSig)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()

		now := time.Now()
		clock := now
		m, err := cookie.New(secret, cookie.WithClock(func() time.Time { return clock }))
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		m.Set(rec, "oauth_state", "csrf-123", time.Minute)
		req := roundTrip(rec)

		clock = now.Add(2 * time.Minute)
		_, err = m.Get(req, "oauth_state")
		require.ErrorIs(t, err, cookie.ErrExpired)
	})
}

func TestPopDeletes(t *testing.T) {
	t.Parallel()

	m, err := cookie.New(secret)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	m.Set(rec, "oauth_state", "csrf-123", time.Minute)

	out := httptest.NewRecorder()
	got, err := m.Pop(out, roundTrip(rec), "oauth_state")
	require.NoError(t, err)
	assert.Equal(t, "csrf-123", got)

	deleted := out.Result().Cookies()
	require.Len(t, deleted, 1)
	assert.Equal(t, "oauth_state", deleted[0].Name)
	assert.Negative(t, deleted[0].MaxAge)
}
