package attachment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/priyanshudevsingh/quickmailer/pkg/db"
)

// PostgresRepo is the Repo over the attachments table.
type PostgresRepo struct {
	db db.Querier
}

// NewPostgresRepo creates a PostgresRepo.
func NewPostgresRepo(q db.Querier) *PostgresRepo {
	return &PostgresRepo{db: q}
}

var _ Repo = (*PostgresRepo)(nil)

const attachmentColumns = `id, user_id, original_name, storage_key, mime_type, size_bytes, is_active, purged, created_at, updated_at`

func scanAttachment(row pgx.Row) (*Attachment, error) {
	var a Attachment
	if err := row.Scan(&a.ID, &a.UserID, &a.OriginalName, &a.StorageKey, &a.MimeType,
		&a.Size, &a.IsActive, &a.Purged, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *PostgresRepo) query(ctx context.Context, sql string, args ...any) ([]*Attachment, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Attachment, 0)
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) List(ctx context.Context, owner uuid.UUID) ([]*Attachment, error) {
	return r.query(ctx, `SELECT `+attachmentColumns+` FROM attachments
		WHERE user_id = $1 AND is_active ORDER BY created_at DESC`, owner)
}

func (r *PostgresRepo) Get(ctx context.Context, owner, id uuid.UUID) (*Attachment, error) {
	a, err := scanAttachment(r.db.QueryRow(ctx, `SELECT `+attachmentColumns+` FROM attachments
		WHERE id = $1 AND user_id = $2 AND is_active`, id, owner))
	if errors.Is(db.NotFound(err), db.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

// GetMany keeps the order of ids.
func (r *PostgresRepo) GetMany(ctx context.Context, owner uuid.UUID, ids []uuid.UUID) ([]*Attachment, error) {
	found, err := r.query(ctx, `SELECT `+attachmentColumns+` FROM attachments
		WHERE user_id = $1 AND is_active AND id = ANY($2)`, owner, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]*Attachment, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	out := make([]*Attachment, 0, len(found))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
			delete(byID, id)
		}
	}
	return out, nil
}

func (r *PostgresRepo) Create(ctx context.Context, a *Attachment) error {
	_, err := r.db.Exec(ctx, `INSERT INTO attachments (`+attachmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.UserID, a.OriginalName, a.StorageKey, a.MimeType, a.Size, a.IsActive, a.Purged, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r *PostgresRepo) Deactivate(ctx context.Context, owner, id uuid.UUID) (*Attachment, error) {
	a, err := scanAttachment(r.db.QueryRow(ctx, `UPDATE attachments SET is_active = FALSE, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND is_active
		RETURNING `+attachmentColumns, id, owner))
	if errors.Is(db.NotFound(err), db.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *PostgresRepo) MarkPurged(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `UPDATE attachments SET purged = TRUE, updated_at = now() WHERE id = $1`, id)
	return err
}

func (r *PostgresRepo) PendingPurge(ctx context.Context, limit int) ([]*Attachment, error) {
	return r.query(ctx, `SELECT `+attachmentColumns+` FROM attachments
		WHERE NOT is_active AND NOT purged ORDER BY updated_at LIMIT $1`, limit)
}
