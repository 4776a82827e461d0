package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river/rivertype"

	"github.com/priyanshudevsingh/quickmailer/internal/apperr"
	"github.com/priyanshudevsingh/quickmailer/internal/template"
	"github.com/priyanshudevsingh/quickmailer/pkg/job"
	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer"
	"github.com/priyanshudevsingh/quickmailer/pkg/placeholder"
	"github.com/priyanshudevsingh/quickmailer/pkg/sheet"
)

// SendType selects how a single message is delivered.
type SendType string

const (
	SendImmediate SendType = "immediate"
	SendScheduled SendType = "scheduled"
	SendDraft     SendType = "draft"
)

// SendRequest is a single message request. Content comes from TemplateID
// rendered with Placeholders, or from Subject and Body directly.
type SendRequest struct {
	To            string            `json:"to"`
	TemplateID    *uuid.UUID        `json:"templateId,omitempty"`
	Subject       string            `json:"subject,omitempty"`
	Body          string            `json:"body,omitempty"`
	Placeholders  map[string]string `json:"placeholders,omitempty"`
	AttachmentIDs []uuid.UUID       `json:"attachmentIds,omitempty"`
	Type          SendType          `json:"type,omitempty"`
	ScheduledAt   *time.Time        `json:"scheduledAt,omitempty"`
}

// SendResult describes an accepted single message.
type SendResult struct {
	Success     bool       `json:"success"`
	MessageID   string     `json:"messageId,omitempty"`
	JobID       int64      `json:"jobId,omitempty"`
	Type        SendType   `json:"type"`
	To          string     `json:"to"`
	Subject     string     `json:"subject"`
	ScheduledAt *time.Time `json:"scheduledAt,omitempty"`
}

// BulkRequest starts a bulk run from a template and a recipient sheet.
type BulkRequest struct {
	TemplateID    uuid.UUID
	AttachmentIDs []uuid.UUID
	Sheet         io.Reader
	Mode          Mode
}

// Templates loads a user's active templates.
type Templates interface {
	Get(ctx context.Context, owner, id uuid.UUID) (*template.Template, error)
}

// Attachments resolves attachment IDs to message attachments.
type Attachments interface {
	Resolve(ctx context.Context, owner uuid.UUID, ids []uuid.UUID) ([]mailer.Attachment, error)
}

// Counters records successful deliveries on the user's account.
type Counters interface {
	RecordDeliveries(ctx context.Context, userID uuid.UUID, sent, drafts int) error
}

// Jobs enqueues and cancels background jobs.
type Jobs interface {
	Enqueue(ctx context.Context, name string, payload any, opts ...job.EnqueueOption) (int64, error)
	Cancel(ctx context.Context, jobID int64) (rivertype.JobState, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Tokens       TokenSource
	Builder      *mailer.Builder
	Provider     mailer.Provider
	Orchestrator *Orchestrator
	Templates    Templates
	Attachments  Attachments
	Counters     Counters
	Runs         RunRepo
	Jobs         Jobs
	Notifier     Notifier
	Logger       *slog.Logger
}

// Service implements single sends, synchronous bulk runs and background
// bulk runs.
type Service struct {
	Deps
	now func() time.Time
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = logger.NewNope()
	}
	if d.Notifier == nil {
		d.Notifier = nopNotifier{}
	}
	return &Service{Deps: d, now: time.Now}
}

// Send delivers one message now, stores it as a draft, or schedules it.
func (s *Service) Send(ctx context.Context, userID uuid.UUID, req SendRequest) (*SendResult, error) {
	req.To = strings.TrimSpace(req.To)
	if !sheet.IsEmail(req.To) {
		return nil, apperr.Validation("valid recipient email is required")
	}
	if req.Type == "" {
		req.Type = SendImmediate
	}

	subject, body, err := s.content(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	switch req.Type {
	case SendImmediate, SendDraft:
	case SendScheduled:
		return s.schedule(ctx, userID, req, subject, body)
	default:
		return nil, apperr.Validation("unknown send type %q", req.Type)
	}

	mode := ModeSend
	if req.Type == SendDraft {
		mode = ModeDraft
	}
	id, err := s.deliver(ctx, userID, mode, req.To, subject, body, req.AttachmentIDs)
	if err != nil {
		return nil, err
	}
	return &SendResult{Success: true, MessageID: id, Type: req.Type, To: req.To, Subject: subject}, nil
}

// content resolves the final subject and body. Template placeholders not
// supplied by the caller are left in place.
func (s *Service) content(ctx context.Context, userID uuid.UUID, req SendRequest) (string, string, error) {
	if req.TemplateID != nil {
		t, err := s.Templates.Get(ctx, userID, *req.TemplateID)
		if err != nil {
			return "", "", err
		}
		return placeholder.Render(t.Subject, req.Placeholders), placeholder.Render(t.Body, req.Placeholders), nil
	}
	if strings.TrimSpace(req.Subject) != "" && strings.TrimSpace(req.Body) != "" {
		return req.Subject, req.Body, nil
	}
	return "", "", apperr.Validation("either templateId with placeholders or subject and body are required")
}

func (s *Service) schedule(ctx context.Context, userID uuid.UUID, req SendRequest, subject, body string) (*SendResult, error) {
	if req.ScheduledAt == nil || !req.ScheduledAt.After(s.now()) {
		return nil, apperr.Validation("invalid or past scheduled time")
	}
	jobID, err := s.Jobs.Enqueue(ctx, scheduledSendTaskName, ScheduledSendPayload{
		UserID:        userID,
		To:            req.To,
		Subject:       subject,
		Body:          body,
		AttachmentIDs: req.AttachmentIDs,
	}, job.ScheduledAt(*req.ScheduledAt), job.MaxAttempts(1))
	if err != nil {
		return nil, fmt.Errorf("schedule send: %w", err)
	}
	return &SendResult{
		Success:     true,
		JobID:       jobID,
		Type:        SendScheduled,
		To:          req.To,
		Subject:     subject,
		ScheduledAt: req.ScheduledAt,
	}, nil
}

// deliver builds and submits one message and bumps the user's counters.
func (s *Service) deliver(ctx context.Context, userID uuid.UUID, mode Mode, to, subject, body string, attachmentIDs []uuid.UUID) (string, error) {
	token, err := s.Tokens.EnsureValid(ctx, userID)
	if err != nil {
		return "", err
	}

	attachments, err := s.Attachments.Resolve(ctx, userID, attachmentIDs)
	if err != nil {
		return "", err
	}

	raw, err := s.Builder.Build(ctx, mailer.Message{To: to, Subject: subject, HTML: body, Attachments: attachments})
	if err != nil {
		return "", err
	}

	id, err := submit(ctx, s.Provider, mode, token, raw)
	if err != nil {
		return "", err
	}

	s.count(ctx, userID, mode, 1)
	return id, nil
}

func (s *Service) count(ctx context.Context, userID uuid.UUID, mode Mode, n int) {
	sent, drafts := n, 0
	if mode == ModeDraft {
		sent, drafts = 0, n
	}
	if err := s.Counters.RecordDeliveries(ctx, userID, sent, drafts); err != nil {
		s.Logger.WarnContext(ctx, "record delivery counters",
			slog.String("user_id", userID.String()),
			slog.Any("error", err))
	}
}

// prepareBulk validates req, loads the template and parses the sheet
// against its placeholders.
func (s *Service) prepareBulk(ctx context.Context, userID uuid.UUID, req BulkRequest) (*template.Template, []sheet.Recipient, error) {
	if !req.Mode.valid() {
		return nil, nil, apperr.Validation("mode must be send or draft")
	}
	if req.TemplateID == uuid.Nil {
		return nil, nil, apperr.Validation("template ID is required")
	}
	if req.Sheet == nil {
		return nil, nil, apperr.Validation("recipient sheet is required")
	}

	t, err := s.Templates.Get(ctx, userID, req.TemplateID)
	if err != nil {
		return nil, nil, err
	}

	recipients, err := sheet.Parse(req.Sheet, t.Placeholders)
	if err != nil {
		return nil, nil, apperr.Invalid(err)
	}
	return t, recipients, nil
}

// Bulk runs a bulk request to completion within ctx.
func (s *Service) Bulk(ctx context.Context, userID uuid.UUID, req BulkRequest) (*BulkResult, error) {
	t, recipients, err := s.prepareBulk(ctx, userID, req)
	if err != nil {
		return nil, err
	}
	attachments, err := s.Attachments.Resolve(ctx, userID, req.AttachmentIDs)
	if err != nil {
		return nil, err
	}

	res, err := s.Orchestrator.Run(ctx, Batch{
		UserID:      userID,
		Subject:     t.Subject,
		Body:        t.Body,
		Attachments: attachments,
		Recipients:  recipients,
		Mode:        req.Mode,
	})
	if err != nil {
		return nil, err
	}
	s.count(context.WithoutCancel(ctx), userID, req.Mode, res.SuccessCount)
	return res, nil
}

// EnqueueBulk validates req up front, stores a queued run and hands it to
// the job queue.
func (s *Service) EnqueueBulk(ctx context.Context, userID uuid.UUID, req BulkRequest) (*Run, error) {
	t, recipients, err := s.prepareBulk(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	run := &Run{
		ID:         uuid.New(),
		UserID:     userID,
		TemplateID: t.ID,
		Mode:       req.Mode,
		Status:     RunQueued,
		Total:      len(recipients),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	payload := RunPayload{
		Subject:       t.Subject,
		Body:          t.Body,
		AttachmentIDs: req.AttachmentIDs,
		Recipients:    recipients,
	}
	if err := s.Runs.CreateRun(ctx, run, payload); err != nil {
		return nil, fmt.Errorf("create bulk run: %w", err)
	}

	jobID, err := s.Jobs.Enqueue(ctx, bulkSendTaskName, BulkSendPayload{RunID: run.ID}, job.MaxAttempts(1))
	if err != nil {
		_ = s.Runs.FinishRun(context.WithoutCancel(ctx), run.ID, RunFailed, nil, "could not enqueue run")
		return nil, fmt.Errorf("enqueue bulk run: %w", err)
	}
	if err := s.Runs.SetJobID(ctx, run.ID, jobID); err != nil {
		s.Logger.WarnContext(ctx, "store bulk run job id",
			slog.String("run_id", run.ID.String()),
			slog.Any("error", err))
	}
	run.JobID = jobID
	return run, nil
}

// GetRun returns a run owned by userID.
func (s *Service) GetRun(ctx context.Context, userID, runID uuid.UUID) (*Run, error) {
	run, err := s.Runs.GetRun(ctx, userID, runID)
	if errors.Is(err, ErrRunNotFound) {
		return nil, apperr.NotFound("bulk run")
	}
	return run, err
}

// CancelRun stops a queued or running run. A queued run is cancelled at
// once; a running one stops before its next recipient and records the
// rest as cancelled.
func (s *Service) CancelRun(ctx context.Context, userID, runID uuid.UUID) (*Run, error) {
	run, err := s.GetRun(ctx, userID, runID)
	if err != nil {
		return nil, err
	}
	if run.Status.Terminal() {
		return nil, apperr.Conflict("bulk run already %s", run.Status)
	}

	state := rivertype.JobStateCancelled
	if run.JobID != 0 {
		if state, err = s.Jobs.Cancel(ctx, run.JobID); err != nil {
			return nil, fmt.Errorf("cancel bulk run job: %w", err)
		}
	}

	if state == rivertype.JobStateCancelled || run.Status == RunQueued {
		if err := s.Runs.FinishRun(ctx, run.ID, RunCancelled, nil, ""); err != nil {
			return nil, err
		}
	}
	return s.GetRun(ctx, userID, runID)
}
