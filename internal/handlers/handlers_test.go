package handlers_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/priyanshudevsingh/quickmailer/internal/handlers"
	"github.com/priyanshudevsingh/quickmailer/internal/httpapi"
	"github.com/priyanshudevsingh/quickmailer/internal/user"
)

var owner = &user.User{ID: uuid.MustParse("0190d3b8-8d1e-7c4a-9f0e-1b2c3d4e5f60"), Email: "ada@example.com", Name: "Ada"}

// guard authenticates every request carrying "Authorization: Bearer ok"
// as owner.
func guard() handlers.Guard {
	return handlers.Guard{
		Auth: func(next httpapi.HandlerFunc) httpapi.HandlerFunc {
			return func(c *httpapi.Context) error {
				if c.Header("Authorization") != "Bearer ok" {
					return httpapi.ErrUnauthorized("access token required")
				}
				c.SetContext(httpapi.WithUser(c.Context(), owner))
				return next(c)
			}
		},
	}
}

func newServer(h ...httpapi.Handler) *httpapi.Server {
	return httpapi.NewServer(httpapi.WithHandlers(h...))
}

func request(method, target string, body io.Reader, contentType string) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.Header.Set("Authorization", "Bearer ok")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	return request(method, target, r, "application/json")
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

// form builds a multipart body from fields and files (name -> content).
type formFile struct {
	field, name string
	content     []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFile) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		part, err := w.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, err = part.Write(f.content)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}
