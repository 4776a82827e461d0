package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer"
	"github.com/priyanshudevsingh/quickmailer/pkg/placeholder"
	"github.com/priyanshudevsingh/quickmailer/pkg/sheet"
)

const cancelledReason = "cancelled"

// Batch is one bulk run over parsed recipients.
type Batch struct {
	UserID      uuid.UUID
	Subject     string
	Body        string
	Attachments []mailer.Attachment
	Recipients  []sheet.Recipient
	Mode        Mode
	// Pacing overrides the mode's default pause. Negative disables it.
	Pacing time.Duration
	// OnProgress is called after each recipient with the processed count.
	OnProgress func(done, total int)
}

// Orchestrator runs bulk batches sequentially with per-recipient failure
// isolation.
type Orchestrator struct {
	tokens      TokenSource
	builder     *mailer.Builder
	provider    mailer.Provider
	recorder    Recorder
	logger      *slog.Logger
	sendPacing  time.Duration
	draftPacing time.Duration
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithPacing sets the default pauses between recipients per mode.
func WithPacing(send, draft time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		o.sendPacing = send
		o.draftPacing = draft
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) OrchestratorOption {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

func WithOrchestratorLogger(l *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(tokens TokenSource, builder *mailer.Builder, provider mailer.Provider, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		tokens:      tokens,
		builder:     builder,
		provider:    provider,
		recorder:    nopRecorder{},
		logger:      logger.NewNope(),
		sendPacing:  DefaultSendPacing,
		draftPacing: DefaultDraftPacing,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run delivers b. It fails only when the user's token cannot be obtained,
// in which case no recipient is attempted. Per-recipient failures are
// recorded in the result. When ctx is cancelled the remaining recipients
// are recorded as failed and the partial result is returned with
// Cancelled set.
func (o *Orchestrator) Run(ctx context.Context, b Batch) (*BulkResult, error) {
	if !b.Mode.valid() {
		return nil, fmt.Errorf("delivery: unknown mode %q", b.Mode)
	}

	token, err := o.tokens.EnsureValid(ctx, b.UserID)
	if err != nil {
		return nil, err
	}

	attachments := o.builder.Prefetch(ctx, b.Attachments)
	pacing := o.pacing(b)
	total := len(b.Recipients)

	res := &BulkResult{
		TotalRecipients: total,
		Results:         make([]RecipientResult, 0, total),
	}

	for i, r := range b.Recipients {
		if ctx.Err() != nil {
			o.cancelRemaining(res, b.Recipients[i:])
			break
		}

		rr := o.deliver(ctx, token, b, r, attachments)
		if !rr.Success && ctx.Err() != nil {
			rr.Error = cancelledReason
		}
		res.add(rr)
		o.recorder.Recipient(b.Mode, rr.Success)
		if b.OnProgress != nil {
			b.OnProgress(i+1, total)
		}

		if i < total-1 && pacing > 0 && !sleep(ctx, pacing) {
			o.cancelRemaining(res, b.Recipients[i+1:])
			break
		}
	}

	o.logger.InfoContext(ctx, "bulk batch finished",
		slog.String("user_id", b.UserID.String()),
		slog.String("mode", string(b.Mode)),
		slog.Int("total", res.TotalRecipients),
		slog.Int("success", res.SuccessCount),
		slog.Int("failed", res.FailureCount),
		slog.Bool("cancelled", res.Cancelled))

	return res, nil
}

func (o *Orchestrator) deliver(ctx context.Context, token string, b Batch, r sheet.Recipient, attachments []mailer.Attachment) RecipientResult {
	raw, err := o.builder.Build(ctx, mailer.Message{
		To:          r.Email,
		Subject:     placeholder.Render(b.Subject, r.Values),
		HTML:        placeholder.Render(b.Body, r.Values),
		Attachments: attachments,
	})
	if err != nil {
		return RecipientResult{Email: r.Email, Error: err.Error()}
	}

	id, err := submit(ctx, o.provider, b.Mode, token, raw)
	if err != nil {
		o.logger.WarnContext(ctx, "recipient delivery failed",
			slog.String("mode", string(b.Mode)),
			slog.Any("error", err))
		return RecipientResult{Email: r.Email, Error: err.Error()}
	}
	return RecipientResult{Email: r.Email, Success: true, MessageID: id}
}

func (o *Orchestrator) pacing(b Batch) time.Duration {
	switch {
	case b.Pacing != 0:
		return b.Pacing
	case b.Mode == ModeDraft:
		return o.draftPacing
	default:
		return o.sendPacing
	}
}

func (o *Orchestrator) cancelRemaining(res *BulkResult, rest []sheet.Recipient) {
	res.Cancelled = true
	for _, r := range rest {
		res.add(RecipientResult{Email: r.Email, Error: cancelledReason})
	}
}

func (r *BulkResult) add(rr RecipientResult) {
	r.Results = append(r.Results, rr)
	if rr.Success {
		r.SuccessCount++
	} else {
		r.FailureCount++
	}
}

// submit hands raw to the provider according to mode.
func submit(ctx context.Context, p mailer.Provider, mode Mode, token, raw string) (string, error) {
	var (
		id  string
		err error
	)
	if mode == ModeDraft {
		id, err = p.CreateDraft(ctx, token, raw)
	} else {
		id, err = p.Send(ctx, token, raw)
	}
	if err != nil && !errors.Is(err, mailer.ErrProviderCall) && !errors.Is(err, mailer.ErrDraftUnsupported) {
		err = errors.Join(mailer.ErrProviderCall, err)
	}
	return id, err
}

// sleep waits d and reports false when ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
