package handlers

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/internal/attachment"
	"github.com/priyanshudevsingh/quickmailer/internal/httpapi"
)

// multipartOverhead covers form boundaries and headers around the file.
const multipartOverhead = 1 << 20

// AttachmentService manages a user's uploaded files.
type AttachmentService interface {
	Upload(ctx context.Context, owner uuid.UUID, fh *multipart.FileHeader) (*attachment.Attachment, error)
	List(ctx context.Context, owner uuid.UUID) ([]*attachment.Attachment, error)
	Get(ctx context.Context, owner, id uuid.UUID) (*attachment.Attachment, error)
	Delete(ctx context.Context, owner, id uuid.UUID) error
	Stats(ctx context.Context, owner uuid.UUID) (attachment.Stats, error)
	Open(ctx context.Context, owner, id uuid.UUID) (io.ReadCloser, *attachment.Attachment, error)
}

// AttachmentHandler serves /api/attachments.
type AttachmentHandler struct {
	svc     AttachmentService
	maxSize int64
	guard   Guard
}

// NewAttachmentHandler creates an AttachmentHandler. maxSize bounds the
// upload body; the service enforces the exact file size.
func NewAttachmentHandler(svc AttachmentService, maxSize int64, guard Guard) *AttachmentHandler {
	return &AttachmentHandler{svc: svc, maxSize: maxSize, guard: guard}
}

func (h *AttachmentHandler) Routes(r httpapi.Router) {
	r.Route("/api/attachments", func(r httpapi.Router) {
		r.Use(h.guard.all()...)
		r.GET("/", h.list)
		r.POST("/", h.upload)
		r.GET("/stats", h.stats)
		r.GET("/{id}", h.get)
		r.GET("/{id}/download", h.download)
		r.DELETE("/{id}", h.delete)
	})
}

func (h *AttachmentHandler) upload(c *httpapi.Context) error {
	if err := parseMultipart(c, h.maxSize+multipartOverhead); err != nil {
		return err
	}
	defer cleanupMultipart(c)

	_, fh, err := c.Request().FormFile("file")
	if err != nil {
		return httpapi.ErrBadRequest("no file provided")
	}
	a, err := h.svc.Upload(c.Context(), c.UserID(), fh)
	if err != nil {
		return err
	}
	return c.Success(http.StatusCreated, "File uploaded successfully", map[string]any{"attachment": a})
}

func (h *AttachmentHandler) list(c *httpapi.Context) error {
	list, err := h.svc.List(c.Context(), c.UserID())
	if err != nil {
		return err
	}
	return c.Success(http.StatusOK, "Attachments retrieved", map[string]any{"attachments": list, "count": len(list)})
}

func (h *AttachmentHandler) stats(c *httpapi.Context) error {
	st, err := h.svc.Stats(c.Context(), c.UserID())
	if err != nil {
		return err
	}
	return c.Success(http.StatusOK, "Attachment statistics retrieved", map[string]any{"stats": st})
}

func (h *AttachmentHandler) get(c *httpapi.Context) error {
	id, err := httpapi.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.Get(c.Context(), c.UserID(), id)
	if err != nil {
		return err
	}
	return c.Success(http.StatusOK, "Attachment retrieved", map[string]any{"attachment": a})
}

func (h *AttachmentHandler) download(c *httpapi.Context) error {
	id, err := httpapi.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	rc, a, err := h.svc.Open(c.Context(), c.UserID(), id)
	if err != nil {
		return err
	}
	defer rc.Close()

	download(c, a.MimeType, a.OriginalName)
	if a.Size > 0 {
		c.SetHeader("Content-Length", strconv.FormatInt(a.Size, 10))
	}
	c.Response().WriteHeader(http.StatusOK)
	_, err = io.Copy(c.Response(), rc)
	return err
}

func (h *AttachmentHandler) delete(c *httpapi.Context) error {
	id, err := httpapi.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Context(), c.UserID(), id); err != nil {
		return err
	}
	return c.Success(http.StatusOK, "Attachment deleted", nil)
}
