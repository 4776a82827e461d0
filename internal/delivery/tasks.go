package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/internal/credential"
	"github.com/priyanshudevsingh/quickmailer/pkg/job"
)

const (
	bulkSendTaskName      = "bulk_send"
	scheduledSendTaskName = "scheduled_send"
)

// BulkSendPayload identifies the run a bulk_send job executes.
type BulkSendPayload struct {
	RunID uuid.UUID `json:"run_id"`
}

// BulkSendTask executes background bulk runs.
type BulkSendTask struct {
	svc *Service
}

// NewBulkSendTask creates the bulk_send task.
func NewBulkSendTask(svc *Service) *BulkSendTask {
	return &BulkSendTask{svc: svc}
}

func (t *BulkSendTask) Name() string { return bulkSendTaskName }

// Handle runs the stored batch. Outcomes, including failure to obtain a
// token, are written to the run instead of being returned, so the job is
// never retried and recipients are never contacted twice.
func (t *BulkSendTask) Handle(ctx context.Context, p BulkSendPayload) error {
	s := t.svc
	log := s.Logger.With(slog.String("run_id", p.RunID.String()))
	// Run bookkeeping must land even after cancellation.
	bg := context.WithoutCancel(ctx)

	run, payload, err := s.Runs.LoadRun(ctx, p.RunID)
	if err != nil {
		return err
	}
	started, err := s.Runs.StartRun(ctx, run.ID)
	if err != nil {
		return err
	}
	if !started {
		log.InfoContext(ctx, "bulk run no longer queued, skipping")
		return nil
	}
	if id, ok := job.JobID(ctx); ok {
		log = log.With(slog.Int64("job_id", id))
	}

	begin := time.Now()
	run.Status = RunRunning

	attachments, err := s.Attachments.Resolve(ctx, run.UserID, payload.AttachmentIDs)
	if err != nil {
		return t.fail(bg, log, run, begin, err)
	}

	res, err := s.Orchestrator.Run(ctx, Batch{
		UserID:      run.UserID,
		Subject:     payload.Subject,
		Body:        payload.Body,
		Attachments: attachments,
		Recipients:  payload.Recipients,
		Mode:        run.Mode,
		OnProgress: func(done, _ int) {
			if err := s.Runs.UpdateProgress(bg, run.ID, done); err != nil {
				log.WarnContext(ctx, "update bulk run progress", slog.Any("error", err))
			}
		},
	})
	if err != nil {
		return t.fail(bg, log, run, begin, err)
	}

	status := RunCompleted
	if res.Cancelled {
		status = RunCancelled
	}
	if err := s.Runs.FinishRun(bg, run.ID, status, res, ""); err != nil {
		return err
	}
	s.count(bg, run.UserID, run.Mode, res.SuccessCount)

	run.Status = status
	run.Result = res
	run.Processed = res.TotalRecipients
	run.SuccessCount = res.SuccessCount
	run.FailureCount = res.FailureCount
	t.finished(bg, log, run, begin)
	return nil
}

func (t *BulkSendTask) fail(ctx context.Context, log *slog.Logger, run *Run, begin time.Time, cause error) error {
	msg := cause.Error()
	if errors.Is(cause, credential.ErrReauthRequired) {
		msg = "mailbox access expired, sign in again"
	}
	if err := t.svc.Runs.FinishRun(ctx, run.ID, RunFailed, nil, msg); err != nil {
		return err
	}
	log.WarnContext(ctx, "bulk run failed", slog.Any("error", cause))

	run.Status = RunFailed
	run.Error = msg
	t.finished(ctx, log, run, begin)
	return nil
}

func (t *BulkSendTask) finished(ctx context.Context, log *slog.Logger, run *Run, begin time.Time) {
	t.svc.Orchestrator.recorder.Run(run.Mode, run.Status, time.Since(begin))
	if err := t.svc.Notifier.RunFinished(ctx, run); err != nil {
		log.WarnContext(ctx, "bulk run notification failed", slog.Any("error", err))
	}
}

// ScheduledSendPayload is a rendered message waiting for its send time.
type ScheduledSendPayload struct {
	UserID        uuid.UUID   `json:"user_id"`
	To            string      `json:"to"`
	Subject       string      `json:"subject"`
	Body          string      `json:"body"`
	AttachmentIDs []uuid.UUID `json:"attachment_ids,omitempty"`
}

// ScheduledSendTask sends messages accepted with SendScheduled.
type ScheduledSendTask struct {
	svc *Service
}

// NewScheduledSendTask creates the scheduled_send task.
func NewScheduledSendTask(svc *Service) *ScheduledSendTask {
	return &ScheduledSendTask{svc: svc}
}

func (t *ScheduledSendTask) Name() string { return scheduledSendTaskName }

func (t *ScheduledSendTask) Handle(ctx context.Context, p ScheduledSendPayload) error {
	id, err := t.svc.deliver(ctx, p.UserID, ModeSend, p.To, p.Subject, p.Body, p.AttachmentIDs)
	if err != nil {
		t.svc.Logger.WarnContext(ctx, "scheduled send failed",
			slog.String("user_id", p.UserID.String()),
			slog.Any("error", err))
		return err
	}
	t.svc.Logger.InfoContext(ctx, "scheduled send delivered",
		slog.String("user_id", p.UserID.String()),
		slog.String("message_id", id))
	return nil
}
