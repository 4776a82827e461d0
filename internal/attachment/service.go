package attachment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"time"

	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/internal/apperr"
	"github.com/priyanshudevsingh/quickmailer/pkg/logger"
	"github.com/priyanshudevsingh/quickmailer/pkg/mailer"
	"github.com/priyanshudevsingh/quickmailer/pkg/storage"
)

// Service implements attachment management over a Repo and a Storage.
type Service struct {
	repo    Repo
	store   storage.Storage
	maxSize int64
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMaxSize caps upload size in bytes.
func WithMaxSize(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxSize = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewService creates a Service.
func NewService(repo Repo, store storage.Storage, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		store:   store,
		maxSize: storage.DefaultMaxFileSize,
		logger:  logger.NewNope(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload validates and stores fh for owner.
func (s *Service) Upload(ctx context.Context, owner uuid.UUID, fh *multipart.FileHeader) (*Attachment, error) {
	if fh == nil {
		return nil, apperr.Validation("no file provided")
	}

	info, err := storage.PutFile(ctx, s.store, fh,
		storage.WithPrefix(owner.String()),
		storage.WithValidation(storage.AttachmentRules(s.maxSize)...),
	)
	if err != nil {
		if isValidationError(err) {
			return nil, apperr.Invalid(err)
		}
		return nil, err
	}

	now := s.now()
	a := &Attachment{
		ID:           uuid.New(),
		UserID:       owner,
		OriginalName: fh.Filename,
		StorageKey:   info.Key,
		MimeType:     info.ContentType,
		Size:         info.Size,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, a); err != nil {
		if derr := s.store.Delete(context.WithoutCancel(ctx), info.Key); derr != nil {
			s.logger.WarnContext(ctx, "orphaned attachment bytes",
				slog.String("key", info.Key), slog.Any("error", derr))
		}
		return nil, fmt.Errorf("save attachment: %w", err)
	}
	return a, nil
}

func isValidationError(err error) bool {
	var fve *storage.FileValidationError
	return errors.As(err, &fve) || errors.Is(err, storage.ErrEmptyFile)
}

// List returns the owner's active attachments, newest first.
func (s *Service) List(ctx context.Context, owner uuid.UUID) ([]*Attachment, error) {
	return s.repo.List(ctx, owner)
}

// Get returns an active attachment of owner.
func (s *Service) Get(ctx context.Context, owner, id uuid.UUID) (*Attachment, error) {
	a, err := s.repo.Get(ctx, owner, id)
	if errors.Is(err, ErrNotFound) {
		return nil, apperr.NotFound("attachment")
	}
	return a, err
}

// Delete soft-deletes an attachment and tries to purge its bytes. A purge
// failure is logged and left to PurgeTask.
func (s *Service) Delete(ctx context.Context, owner, id uuid.UUID) error {
	a, err := s.repo.Deactivate(ctx, owner, id)
	if errors.Is(err, ErrNotFound) {
		return apperr.NotFound("attachment")
	}
	if err != nil {
		return err
	}
	s.purge(ctx, a)
	return nil
}

func (s *Service) purge(ctx context.Context, a *Attachment) bool {
	if err := s.store.Delete(ctx, a.StorageKey); err != nil {
		s.logger.WarnContext(ctx, "attachment purge failed",
			slog.String("attachment", a.ID.String()),
			slog.String("key", a.StorageKey),
			slog.Any("error", err))
		return false
	}
	if err := s.repo.MarkPurged(ctx, a.ID); err != nil {
		s.logger.WarnContext(ctx, "mark attachment purged",
			slog.String("attachment", a.ID.String()),
			slog.Any("error", err))
		return false
	}
	return true
}

// Stats aggregates the owner's active attachments.
func (s *Service) Stats(ctx context.Context, owner uuid.UUID) (Stats, error) {
	list, err := s.repo.List(ctx, owner)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Total: len(list), ByType: make(map[string]TypeStats)}
	for _, a := range list {
		st.TotalSize += a.Size
		major := storage.MajorType(a.MimeType)
		ts := st.ByType[major]
		ts.Count++
		ts.Size += a.Size
		st.ByType[major] = ts
	}
	st.TotalSizeMB = math.Round(float64(st.TotalSize)/1024/1024*100) / 100
	return st, nil
}

// Open streams an attachment's bytes. The caller closes the reader.
func (s *Service) Open(ctx context.Context, owner, id uuid.UUID) (io.ReadCloser, *Attachment, error) {
	a, err := s.Get(ctx, owner, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Get(ctx, a.StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, apperr.NotFound("attachment file")
	}
	if err != nil {
		return nil, nil, err
	}
	return rc, a, nil
}

// Resolve maps ids to message attachments for owner. Unknown, foreign and
// deleted ids are skipped. Bytes are loaded later through Fetch.
func (s *Service) Resolve(ctx context.Context, owner uuid.UUID, ids []uuid.UUID) ([]mailer.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.repo.GetMany(ctx, owner, ids)
	if err != nil {
		return nil, fmt.Errorf("load attachments: %w", err)
	}
	out := make([]mailer.Attachment, 0, len(rows))
	for _, a := range rows {
		out = append(out, mailer.Attachment{
			Filename:    a.OriginalName,
			ContentType: a.MimeType,
			Key:         a.StorageKey,
		})
	}
	return out, nil
}

// Fetch loads stored bytes by key. It satisfies mailer.Fetcher.
func (s *Service) Fetch(ctx context.Context, key string) ([]byte, error) {
	return storage.ReadAll(ctx, s.store, key)
}

var _ mailer.Fetcher = (*Service)(nil)
