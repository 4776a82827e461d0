// Package handlers declares the JSON API routes on top of the domain
// services.
package handlers

import (
	"errors"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/priyanshudevsingh/quickmailer/internal/httpapi"
)

// Guard holds the middleware applied to authenticated route groups.
// Timeout is skipped on routes that stream a whole bulk run.
type Guard struct {
	Auth    httpapi.Middleware
	Timeout httpapi.Middleware
}

func (g Guard) all() []httpapi.Middleware {
	return g.authOnly(g.Timeout)
}

func (g Guard) authOnly(extra ...httpapi.Middleware) []httpapi.Middleware {
	var mw []httpapi.Middleware
	if g.Auth != nil {
		mw = append(mw, g.Auth)
	}
	for _, m := range extra {
		if m != nil {
			mw = append(mw, m)
		}
	}
	return mw
}

// maxMultipartMemory is the part of a multipart form kept in memory; the
// rest spills to temporary files.
const maxMultipartMemory = 8 << 20

// parseMultipart parses a multipart body no larger than limit.
func parseMultipart(c *httpapi.Context, limit int64) error {
	r := c.Request()
	r.Body = http.MaxBytesReader(c.Response(), r.Body, limit)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) || errors.Is(err, multipart.ErrMessageTooLarge) {
			return httpapi.NewHTTPError(http.StatusRequestEntityTooLarge, httpapi.CodeValidation, "upload too large", err)
		}
		return httpapi.NewHTTPError(http.StatusBadRequest, httpapi.CodeValidation, "expected a multipart form", err)
	}
	return nil
}

func cleanupMultipart(c *httpapi.Context) {
	if form := c.Request().MultipartForm; form != nil {
		_ = form.RemoveAll()
	}
}

// download sets headers for a file sent as an attachment.
func download(c *httpapi.Context, contentType, filename string) {
	c.SetHeader("Content-Type", contentType)
	c.SetHeader("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
}
