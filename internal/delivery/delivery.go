// Package delivery renders templates per recipient and hands the built
// messages to the user's mailbox provider, one at a time or in bulk from a
// recipient sheet, synchronously or as a background run.
package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Mode selects whether messages are sent or stored as drafts.
type Mode string

const (
	ModeSend  Mode = "send"
	ModeDraft Mode = "draft"
)

func (m Mode) valid() bool { return m == ModeSend || m == ModeDraft }

// Default pause between recipients.
const (
	DefaultSendPacing  = 100 * time.Millisecond
	DefaultDraftPacing = 50 * time.Millisecond
)

// RecipientResult is the outcome for one recipient.
type RecipientResult struct {
	Email     string `json:"email"`
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// BulkResult aggregates a bulk run. SuccessCount + FailureCount always
// equals TotalRecipients.
type BulkResult struct {
	TotalRecipients int               `json:"totalRecipients"`
	SuccessCount    int               `json:"successCount"`
	FailureCount    int               `json:"failureCount"`
	Cancelled       bool              `json:"cancelled,omitempty"`
	Results         []RecipientResult `json:"results"`
}

// TokenSource returns a usable mailbox access token for a user.
type TokenSource interface {
	EnsureValid(ctx context.Context, userID uuid.UUID) (string, error)
}

// Recorder receives delivery metrics.
type Recorder interface {
	Recipient(mode Mode, success bool)
	Run(mode Mode, status RunStatus, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) Recipient(Mode, bool)               {}
func (nopRecorder) Run(Mode, RunStatus, time.Duration) {}
