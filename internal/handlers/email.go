package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/internal/delivery"
	"github.com/priyanshudevsingh/quickmailer/internal/httpapi"
)

// DeliveryService sends single messages and bulk runs.
type DeliveryService interface {
	Send(ctx context.Context, userID uuid.UUID, req delivery.SendRequest) (*delivery.SendResult, error)
	Bulk(ctx context.Context, userID uuid.UUID, req delivery.BulkRequest) (*delivery.BulkResult, error)
	EnqueueBulk(ctx context.Context, userID uuid.UUID, req delivery.BulkRequest) (*delivery.Run, error)
	GetRun(ctx context.Context, userID, runID uuid.UUID) (*delivery.Run, error)
	CancelRun(ctx context.Context, userID, runID uuid.UUID) (*delivery.Run, error)
}

// EmailHandler serves /api/email and /api/bulk-runs.
type EmailHandler struct {
	svc       DeliveryService
	maxUpload int64
	guard     Guard
}

// NewEmailHandler creates an EmailHandler. maxUpload bounds recipient
// sheet uploads.
func NewEmailHandler(svc DeliveryService, maxUpload int64, guard Guard) *EmailHandler {
	return &EmailHandler{svc: svc, maxUpload: maxUpload, guard: guard}
}

func (h *EmailHandler) Routes(r httpapi.Router) {
	r.Route("/api/email", func(r httpapi.Router) {
		r.Group(func(r httpapi.Router) {
			r.Use(h.guard.all()...)
			r.POST("/send", h.send)
			r.POST("/draft", h.draft)
		})
		// Synchronous bulk runs last as long as the batch.
		r.Group(func(r httpapi.Router) {
			r.Use(h.guard.authOnly()...)
			r.POST("/mass-send", h.massSend)
			r.POST("/mass-draft", h.massDraft)
		})
	})

	r.Route("/api/bulk-runs", func(r httpapi.Router) {
		r.Use(h.guard.all()...)
		r.POST("/", h.startRun)
		r.GET("/{id}", h.getRun)
		r.POST("/{id}/cancel", h.cancelRun)
	})
}

func (h *EmailHandler) send(c *httpapi.Context) error {
	var req delivery.SendRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	return h.deliver(c, req)
}

func (h *EmailHandler) draft(c *httpapi.Context) error {
	var req delivery.SendRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	req.Type = delivery.SendDraft
	return h.deliver(c, req)
}

func (h *EmailHandler) deliver(c *httpapi.Context, req delivery.SendRequest) error {
	res, err := h.svc.Send(c.Context(), c.UserID(), req)
	if err != nil {
		return err
	}

	msg := "Email sent successfully"
	switch res.Type {
	case delivery.SendDraft:
		msg = "Draft created successfully"
	case delivery.SendScheduled:
		msg = "Email scheduled successfully"
	}
	return c.Success(http.StatusOK, msg, res)
}

func (h *EmailHandler) massSend(c *httpapi.Context) error {
	return h.bulk(c, delivery.ModeSend)
}

func (h *EmailHandler) massDraft(c *httpapi.Context) error {
	return h.bulk(c, delivery.ModeDraft)
}

func (h *EmailHandler) bulk(c *httpapi.Context, mode delivery.Mode) error {
	req, err := h.bulkRequest(c, mode)
	if err != nil {
		return err
	}
	defer release(c, req)

	res, err := h.svc.Bulk(c.Context(), c.UserID(), req)
	if err != nil {
		return err
	}
	msg := "Mass email completed"
	if mode == delivery.ModeDraft {
		msg = "Mass drafts created"
	}
	return c.Success(http.StatusOK, msg, res)
}

// startRun queues a background bulk run. The multipart "mode" field
// selects send or draft.
func (h *EmailHandler) startRun(c *httpapi.Context) error {
	req, err := h.bulkRequest(c, "")
	if err != nil {
		return err
	}
	defer release(c, req)

	run, err := h.svc.EnqueueBulk(c.Context(), c.UserID(), req)
	if err != nil {
		return err
	}
	return c.Success(http.StatusAccepted, "Bulk run queued", map[string]any{"run": run})
}

func (h *EmailHandler) getRun(c *httpapi.Context) error {
	id, err := httpapi.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	run, err := h.svc.GetRun(c.Context(), c.UserID(), id)
	if err != nil {
		return err
	}
	return c.Success(http.StatusOK, "Bulk run retrieved", map[string]any{"run": run})
}

func (h *EmailHandler) cancelRun(c *httpapi.Context) error {
	id, err := httpapi.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	run, err := h.svc.CancelRun(c.Context(), c.UserID(), id)
	if err != nil {
		return err
	}
	return c.Success(http.StatusOK, "Bulk run cancellation requested", map[string]any{"run": run})
}

// bulkRequest reads templateId, attachmentIds and the recipient sheet
// from a multipart form. The sheet part is "file" or "excelFile". An empty
// mode is taken from the "mode" field.
func (h *EmailHandler) bulkRequest(c *httpapi.Context, mode delivery.Mode) (delivery.BulkRequest, error) {
	if err := parseMultipart(c, h.maxUpload+multipartOverhead); err != nil {
		return delivery.BulkRequest{}, err
	}
	r := c.Request()

	req := delivery.BulkRequest{Mode: mode}
	if req.Mode == "" {
		req.Mode = delivery.Mode(strings.ToLower(strings.TrimSpace(r.FormValue("mode"))))
	}

	if raw := strings.TrimSpace(r.FormValue("templateId")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			cleanupMultipart(c)
			return delivery.BulkRequest{}, httpapi.ErrBadRequest("invalid templateId")
		}
		req.TemplateID = id
	}

	ids, err := parseIDs(r.FormValue("attachmentIds"))
	if err != nil {
		cleanupMultipart(c)
		return delivery.BulkRequest{}, httpapi.ErrBadRequest("invalid attachmentIds format, expected a JSON array")
	}
	req.AttachmentIDs = ids

	for _, field := range []string{"file", "excelFile"} {
		if f, _, err := r.FormFile(field); err == nil {
			req.Sheet = f
			break
		}
	}
	return req, nil
}

// release closes the sheet and removes spilled form files.
func release(c *httpapi.Context, req delivery.BulkRequest) {
	if closer, ok := req.Sheet.(io.Closer); ok {
		_ = closer.Close()
	}
	cleanupMultipart(c)
}

// parseIDs accepts a JSON array of UUIDs or a comma separated list.
func parseIDs(raw string) ([]uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var ids []uuid.UUID
	if strings.HasPrefix(raw, "[") {
		err := json.Unmarshal([]byte(raw), &ids)
		return ids, err
	}
	for part := range strings.SplitSeq(raw, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
