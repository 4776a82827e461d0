// Package cookie sets and reads HMAC-signed cookies that carry their own
// expiry. It backs short-lived values such as the OAuth login state.
package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound  = errors.New("cookie: not found")
	ErrBadSecret = errors.New("cookie: secret must be 32+ bytes")
	ErrBadSig    = errors.New("cookie: invalid signature")
	ErrExpired   = errors.New("cookie: expired")
)

const minSecretLen = 32

// Manager signs cookies with a shared secret.
type Manager struct {
	secret   []byte
	path     string
	secure   bool
	sameSite http.SameSite
	now      func() time.Time
}

// Option configures the Manager.
type Option func(*Manager)

// New creates a Manager. The secret must be at least 32 bytes.
func New(secret string, opts ...Option) (*Manager, error) {
	if len(secret) < minSecretLen {
		return nil, ErrBadSecret
	}
	m := &Manager{
		secret:   []byte(secret),
		path:     "/",
		sameSite: http.SameSiteLaxMode,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func WithPath(path string) Option {
	return func(m *Manager) { m.path = path }
}

// WithSecure marks cookies Secure. Enable it behind HTTPS.
func WithSecure(secure bool) Option {
	return func(m *Manager) { m.secure = secure }
}

func WithSameSite(ss http.SameSite) Option {
	return func(m *Manager) { m.sameSite = ss }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Set writes value signed together with its expiry.
//
// Format: base64(value).expiryUnix.base64(hmac(value|expiryUnix))
func (m *Manager) Set(w http.ResponseWriter, name, value string, ttl time.Duration) {
	exp := strconv.FormatInt(m.now().Add(ttl).Unix(), 10)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(value)) + "." + exp + "." +
		base64.RawURLEncoding.EncodeToString(m.sign(value, exp))
	http.SetCookie(w, m.cookie(name, encoded, int(ttl.Seconds())))
}

// Get verifies and returns a value written by Set.
func (m *Manager) Get(r *http.Request, name string) (string, error) {
	c, err := r.Cookie(name)
	if err != nil {
		return "", ErrNotFound
	}

	parts := strings.Split(c.Value, ".")
	if len(parts) != 3 {
		return "", ErrBadSig
	}
	value, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", ErrBadSig
	}
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return "", ErrBadSig
	}
	if !hmac.Equal(sig, m.sign(string(value), parts[1])) {
		return "", ErrBadSig
	}

	exp, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", ErrBadSig
	}
	if !m.now().Before(time.Unix(exp, 0)) {
		return "", ErrExpired
	}
	return string(value), nil
}

// Pop reads the cookie and deletes it in the same response, so the value
// can be used only once.
func (m *Manager) Pop(w http.ResponseWriter, r *http.Request, name string) (string, error) {
	v, err := m.Get(r, name)
	if !errors.Is(err, ErrNotFound) {
		m.Delete(w, name)
	}
	return v, err
}

func (m *Manager) Delete(w http.ResponseWriter, name string) {
	http.SetCookie(w, m.cookie(name, "", -1))
}

func (m *Manager) sign(value, exp string) []byte {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(value))
	mac.Write([]byte{'|'})
	mac.Write([]byte(exp))
	return mac.Sum(nil)
}

func (m *Manager) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     m.path,
		MaxAge:   maxAge,
		Secure:   m.secure,
		HttpOnly: true,
		SameSite: m.sameSite,
	}
}
