// Package user stores accounts created by Google sign-in together with
// their encrypted mailbox credentials and send counters.
package user

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/internal/credential"
)

var (
	ErrNotFound   = errors.New("user: not found")
	ErrNoIdentity = errors.New("user: profile has no google id or email")
)

// User is an account. Tokens never leave the repository in this type.
type User struct {
	ID            uuid.UUID `json:"id"`
	GoogleID      string    `json:"-"`
	Email         string    `json:"email"`
	Name          string    `json:"name"`
	Picture       string    `json:"picture"`
	EmailsSent    int       `json:"emailsSent"`
	DraftsCreated int       `json:"draftsCreated"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Repo persists users. Lookups return ErrNotFound when nothing matches.
type Repo interface {
	credential.Store

	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByGoogleID(ctx context.Context, googleID string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	UpdateProfile(ctx context.Context, u *User) error
	IncrementStats(ctx context.Context, id uuid.UUID, sent, drafts int) error
}
