// Package stats builds the per-user dashboard summary.
package stats

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/priyanshudevsingh/quickmailer/internal/attachment"
	"github.com/priyanshudevsingh/quickmailer/internal/template"
	"github.com/priyanshudevsingh/quickmailer/internal/user"
)

// Dashboard is the summary shown on the user's home screen.
type Dashboard struct {
	Templates   int     `json:"templates"`
	Attachments int     `json:"attachments"`
	EmailsSent  int     `json:"emailsSent"`
	Drafts      int     `json:"drafts"`
	User        Profile `json:"user"`
}

type Profile struct {
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	JoinedAt time.Time `json:"joinedAt"`
}

type (
	Users interface {
		Get(ctx context.Context, id uuid.UUID) (*user.User, error)
	}
	Templates interface {
		Stats(ctx context.Context, owner uuid.UUID) (template.Stats, error)
	}
	Attachments interface {
		Stats(ctx context.Context, owner uuid.UUID) (attachment.Stats, error)
	}
)

type Service struct {
	users       Users
	templates   Templates
	attachments Attachments
}

func NewService(users Users, templates Templates, attachments Attachments) *Service {
	return &Service{users: users, templates: templates, attachments: attachments}
}

// Dashboard loads the three sources concurrently and fails if any fails.
func (s *Service) Dashboard(ctx context.Context, userID uuid.UUID) (*Dashboard, error) {
	var (
		u  *user.User
		ts template.Stats
		as attachment.Stats
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		u, err = s.users.Get(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		ts, err = s.templates.Stats(ctx, userID)
		return err
	})
	g.Go(func() (err error) {
		as, err = s.attachments.Stats(ctx, userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Dashboard{
		Templates:   ts.Total,
		Attachments: as.Total,
		EmailsSent:  u.EmailsSent,
		Drafts:      u.DraftsCreated,
		User: Profile{
			Name:     u.Name,
			Email:    u.Email,
			JoinedAt: u.CreatedAt,
		},
	}, nil
}
