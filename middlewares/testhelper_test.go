package middlewares_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/priyanshudevsingh/quickmailer/internal/httpapi"
)

type routes func(r httpapi.Router)

func (f routes) Routes(r httpapi.Router) { f(r) }

// serve runs req through a single /x route wrapped in route-level mw, so
// errors returned by mw are visible to outer middleware.
func serve(t *testing.T, req *http.Request, h httpapi.HandlerFunc, mw ...httpapi.Middleware) *httptest.ResponseRecorder {
	t.Helper()
	return do(httpapi.NewServer(httpapi.WithHandlers(routes(func(r httpapi.Router) {
		r.GET("/x", h, mw...)
		r.POST("/x", h, mw...)
	}))), req)
}

// serveGlobal installs mw as global middleware instead.
func serveGlobal(t *testing.T, req *http.Request, h httpapi.HandlerFunc, mw ...httpapi.Middleware) *httptest.ResponseRecorder {
	t.Helper()
	return do(httpapi.NewServer(
		httpapi.WithMiddleware(mw...),
		httpapi.WithHandlers(routes(func(r httpapi.Router) {
			r.GET("/x", h)
			r.POST("/x", h)
		})),
	), req)
}

func do(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func ok(c *httpapi.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Code, body.Error
}
