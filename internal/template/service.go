package template

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/internal/apperr"
	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer"
	"github.com/priyanshudevsingh/quickmailer/pkg/placeholder"
	"github.com/priyanshudevsingh/quickmailer/pkg/sanitizer"
	"github.com/priyanshudevsingh/quickmailer/pkg/sheet"
)

// Input carries the fields of a new template.
type Input struct {
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Patch carries the fields to change. Nil or empty fields are kept.
type Patch struct {
	Name    *string `json:"name"`
	Subject *string `json:"subject"`
	Body    *string `json:"body"`
}

// Service implements template management for a single owner at a time.
type Service struct {
	repo   Repo
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service. A nil logger discards output.
func NewService(repo Repo, log *slog.Logger) *Service {
	if log == nil {
		log = logger.NewNope()
	}
	return &Service{repo: repo, logger: log, now: time.Now}
}

// List returns the owner's templates, newest first. Inactive templates are
// included only when all is set.
func (s *Service) List(ctx context.Context, owner uuid.UUID, all bool) ([]*Template, error) {
	return s.repo.List(ctx, owner, all)
}

// Get returns an active template of owner.
func (s *Service) Get(ctx context.Context, owner, id uuid.UUID) (*Template, error) {
	t, err := s.repo.Get(ctx, owner, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("template")
	}
	return t, err
}

// Create validates in and stores a new template.
func (s *Service) Create(ctx context.Context, owner uuid.UUID, in Input) (*Template, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Subject = strings.TrimSpace(in.Subject)
	if in.Name == "" || in.Subject == "" || strings.TrimSpace(in.Body) == "" {
		return nil, apperr.Validation("name, subject, and body are required")
	}
	if err := validateLengths(in.Name, in.Subject, in.Body); err != nil {
		return nil, err
	}
	if err := s.ensureNameFree(ctx, owner, in.Name, uuid.Nil); err != nil {
		return nil, err
	}

	now := s.now()
	t := &Template{
		ID:           uuid.New(),
		UserID:       owner,
		Name:         in.Name,
		Subject:      in.Subject,
		Body:         in.Body,
		Placeholders: placeholder.ExtractAll(in.Subject, in.Body),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, mapWriteError(err, t.Name)
	}
	return t, nil
}

// Update applies p to an active template. Placeholders are recomputed when
// the subject or body changes.
func (s *Service) Update(ctx context.Context, owner, id uuid.UUID, p Patch) (*Template, error) {
	t, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	if name := trimmed(p.Name); name != "" && name != t.Name {
		if err := s.ensureNameFree(ctx, owner, name, t.ID); err != nil {
			return nil, err
		}
		t.Name = name
	}

	contentChanged := false
	if subject := trimmed(p.Subject); subject != "" {
		t.Subject = subject
		contentChanged = true
	}
	if p.Body != nil && strings.TrimSpace(*p.Body) != "" {
		t.Body = *p.Body
		contentChanged = true
	}
	if err := validateLengths(t.Name, t.Subject, t.Body); err != nil {
		return nil, err
	}
	if contentChanged {
		t.Placeholders = placeholder.ExtractAll(t.Subject, t.Body)
	}

	t.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, t); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, apperr.NotFound("template")
		}
		return nil, mapWriteError(err, t.Name)
	}
	return t, nil
}

// Delete soft-deletes a template.
func (s *Service) Delete(ctx context.Context, owner, id uuid.UUID) error {
	err := s.repo.Deactivate(ctx, owner, id)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("template")
	}
	return err
}

// Search matches query case-insensitively against name, subject and body.
func (s *Service) Search(ctx context.Context, owner uuid.UUID, query string) ([]*Template, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, apperr.Validation("search query is required")
	}
	return s.repo.Search(ctx, owner, query)
}

// Stats counts the owner's active templates.
func (s *Service) Stats(ctx context.Context, owner uuid.UUID) (Stats, error) {
	return s.repo.Stats(ctx, owner)
}

// Duplicate copies a template under name, or "<name> (Copy)" when name is
// empty. A numeric suffix is appended until the name is free.
func (s *Service) Duplicate(ctx context.Context, owner, id uuid.UUID, name string) (*Template, error) {
	src, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	base := strings.TrimSpace(name)
	if base == "" {
		base = src.Name + " (Copy)"
	}
	final := base
	for n := 1; ; n++ {
		taken, err := s.repo.NameTaken(ctx, owner, final, uuid.Nil)
		if err != nil {
			return nil, err
		}
		if !taken {
			break
		}
		final = fmt.Sprintf("%s %d", base, n)
	}
	if utf8.RuneCountInString(final) > MaxNameLength {
		return nil, apperr.Validation("name must be at most %d characters", MaxNameLength)
	}

	now := s.now()
	t := &Template{
		ID:           uuid.New(),
		UserID:       owner,
		Name:         final,
		Subject:      src.Subject,
		Body:         src.Body,
		Placeholders: append([]string(nil), src.Placeholders...),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, mapWriteError(err, t.Name)
	}
	return t, nil
}

// Import creates a template from a Markdown document whose YAML
// frontmatter supplies name and subject. The body is rendered to HTML and
// cleaned for mail clients; placeholders survive both steps.
func (s *Service) Import(ctx context.Context, owner uuid.UUID, doc []byte) (*Template, error) {
	parsed, err := mailer.ParseTemplate(doc)
	if err != nil {
		return nil, apperr.Invalid(err)
	}

	html, err := mailer.MarkdownToHTML([]byte(parsed.Body))
	if err != nil {
		return nil, apperr.Invalid(err)
	}

	return s.Create(ctx, owner, Input{
		Name:    metaString(parsed.Metadata, "name"),
		Subject: metaString(parsed.Metadata, "subject"),
		Body:    sanitizer.Clean(html),
	})
}

// RecipientSheet returns an XLSX file with an email column and one column
// per placeholder of the template, plus its suggested filename.
func (s *Service) RecipientSheet(ctx context.Context, owner, id uuid.UUID) ([]byte, string, error) {
	t, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, "", err
	}
	data, err := sheet.Template(t.Placeholders)
	if err != nil {
		return nil, "", err
	}
	return data, "mass-email-template-" + t.ID.String() + ".xlsx", nil
}

func (s *Service) ensureNameFree(ctx context.Context, owner uuid.UUID, name string, exclude uuid.UUID) error {
	taken, err := s.repo.NameTaken(ctx, owner, name, exclude)
	if err != nil {
		return err
	}
	if taken {
		return apperr.Conflict("template name %q already exists", name)
	}
	return nil
}

func validateLengths(name, subject, body string) error {
	switch {
	case utf8.RuneCountInString(name) > MaxNameLength:
		return apperr.Validation("name must be at most %d characters", MaxNameLength)
	case utf8.RuneCountInString(subject) > MaxSubjectLength:
		return apperr.Validation("subject must be at most %d characters", MaxSubjectLength)
	case utf8.RuneCountInString(body) > MaxBodyLength:
		return apperr.Validation("body must be at most %d characters", MaxBodyLength)
	}
	return nil
}

// mapWriteError turns a unique-name race lost at insert time into the same
// conflict the pre-check reports.
func mapWriteError(err error, name string) error {
	if errors.Is(err, ErrDuplicateName) {
		return apperr.Conflict("template name %q already exists", name)
	}
	return err
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}
