// Package template manages a user's reusable email templates: subject and
// HTML body with {{name}} placeholders, soft-deleted rather than removed.
package template

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("template: not found")
	ErrDuplicateName = errors.New("template: name already exists")
)

const (
	MaxNameLength    = 100
	MaxSubjectLength = 200
	MaxBodyLength    = 50000
)

// Template is a stored email template. Placeholders is derived from
// Subject and Body on every write.
type Template struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"userId"`
	Name         string    `json:"name"`
	Subject      string    `json:"subject"`
	Body         string    `json:"body"`
	Placeholders []string  `json:"placeholders"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Stats summarizes a user's active templates.
type Stats struct {
	Total               int `json:"total"`
	WithPlaceholders    int `json:"withPlaceholders"`
	WithoutPlaceholders int `json:"withoutPlaceholders"`
}

// Repo persists templates. Get, Update and Deactivate only see active
// templates of the owner and return ErrNotFound otherwise. Create and
// Update return ErrDuplicateName when the owner already has an active
// template with the same name.
type Repo interface {
	List(ctx context.Context, owner uuid.UUID, includeInactive bool) ([]*Template, error)
	Get(ctx context.Context, owner, id uuid.UUID) (*Template, error)
	Create(ctx context.Context, t *Template) error
	Update(ctx context.Context, t *Template) error
	Deactivate(ctx context.Context, owner, id uuid.UUID) error
	NameTaken(ctx context.Context, owner uuid.UUID, name string, exclude uuid.UUID) (bool, error)
	Search(ctx context.Context, owner uuid.UUID, query string) ([]*Template, error)
	Stats(ctx context.Context, owner uuid.UUID) (Stats, error)
}
