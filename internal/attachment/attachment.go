// Package attachment stores files users attach to outgoing mail. Rows are
// soft-deleted; the stored bytes are purged right away when possible and
// by a periodic task otherwise.
package attachment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("attachment: not found")

// Attachment is an uploaded file owned by a user.
type Attachment struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"userId"`
	OriginalName string    `json:"originalName"`
	StorageKey   string    `json:"-"`
	MimeType     string    `json:"mimeType"`
	Size         int64     `json:"size"`
	IsActive     bool      `json:"isActive"`
	Purged       bool      `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// TypeStats aggregates attachments sharing a major MIME type.
type TypeStats struct {
	Count int   `json:"count"`
	Size  int64 `json:"size"`
}

// Stats summarizes a user's active attachments.
type Stats struct {
	Total       int                  `json:"total"`
	TotalSize   int64                `json:"totalSize"`
	TotalSizeMB float64              `json:"totalSizeMB"`
	ByType      map[string]TypeStats `json:"byType"`
}

// Repo persists attachment rows. Owner-scoped lookups only see active rows.
type Repo interface {
	List(ctx context.Context, owner uuid.UUID) ([]*Attachment, error)
	Get(ctx context.Context, owner, id uuid.UUID) (*Attachment, error)
	GetMany(ctx context.Context, owner uuid.UUID, ids []uuid.UUID) ([]*Attachment, error)
	Create(ctx context.Context, a *Attachment) error
	// Deactivate soft-deletes the row and returns it.
	Deactivate(ctx context.Context, owner, id uuid.UUID) (*Attachment, error)
	MarkPurged(ctx context.Context, id uuid.UUID) error
	// PendingPurge lists inactive rows whose bytes are still stored.
	PendingPurge(ctx context.Context, limit int) ([]*Attachment, error)
}
