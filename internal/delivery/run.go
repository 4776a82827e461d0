package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/pkg/sheet"
)

var ErrRunNotFound = errors.New("delivery: bulk run not found")

// RunStatus is the lifecycle state of a background bulk run.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the run can no longer change.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// Run is a background bulk send or draft run.
type Run struct {
	ID           uuid.UUID   `json:"id"`
	UserID       uuid.UUID   `json:"userId"`
	TemplateID   uuid.UUID   `json:"templateId"`
	Mode         Mode        `json:"mode"`
	Status       RunStatus   `json:"status"`
	Total        int         `json:"total"`
	Processed    int         `json:"processed"`
	SuccessCount int         `json:"successCount"`
	FailureCount int         `json:"failureCount"`
	Result       *BulkResult `json:"result,omitempty"`
	Error        string      `json:"error,omitempty"`
	JobID        int64       `json:"jobId,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// RunPayload is everything the background task needs, captured when the
// run is accepted so later template edits do not affect it.
type RunPayload struct {
	Subject       string            `json:"subject"`
	Body          string            `json:"body"`
	AttachmentIDs []uuid.UUID       `json:"attachmentIds"`
	Recipients    []sheet.Recipient `json:"recipients"`
}

// RunRepo persists bulk runs. Owner-scoped lookups return ErrRunNotFound
// for foreign runs.
type RunRepo interface {
	CreateRun(ctx context.Context, run *Run, payload RunPayload) error
	SetJobID(ctx context.Context, id uuid.UUID, jobID int64) error
	GetRun(ctx context.Context, owner, id uuid.UUID) (*Run, error)
	LoadRun(ctx context.Context, id uuid.UUID) (*Run, RunPayload, error)
	// StartRun moves a queued run to running and reports whether it did.
	StartRun(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateProgress(ctx context.Context, id uuid.UUID, processed int) error
	FinishRun(ctx context.Context, id uuid.UUID, status RunStatus, result *BulkResult, errMsg string) error
}
