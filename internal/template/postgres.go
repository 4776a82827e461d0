package template

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/priyanshudevsingh/quickmailer/pkg/db"
)

// PostgresRepo is the Repo over the templates table.
type PostgresRepo struct {
	db db.Querier
}

// NewPostgresRepo creates a PostgresRepo.
func NewPostgresRepo(q db.Querier) *PostgresRepo {
	return &PostgresRepo{db: q}
}

var _ Repo = (*PostgresRepo)(nil)

const templateColumns = `id, user_id, name, subject, body, placeholders, is_active, created_at, updated_at`

func scanTemplate(row pgx.Row) (*Template, error) {
	var t Template
	err := row.Scan(&t.ID, &t.UserID, &t.Name, &t.Subject, &t.Body, &t.Placeholders, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if t.Placeholders == nil {
		t.Placeholders = []string{}
	}
	return &t, nil
}

func (r *PostgresRepo) query(ctx context.Context, sql string, args ...any) ([]*Template, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*Template, 0)
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) List(ctx context.Context, owner uuid.UUID, includeInactive bool) ([]*Template, error) {
	return r.query(ctx, `SELECT `+templateColumns+` FROM templates
		WHERE user_id = $1 AND (is_active OR $2)
		ORDER BY created_at DESC`, owner, includeInactive)
}

func (r *PostgresRepo) Get(ctx context.Context, owner, id uuid.UUID) (*Template, error) {
	t, err := scanTemplate(r.db.QueryRow(ctx, `SELECT `+templateColumns+` FROM templates
		WHERE id = $1 AND user_id = $2 AND is_active`, id, owner))
	if errors.Is(db.NotFound(err), db.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (r *PostgresRepo) Create(ctx context.Context, t *Template) error {
	_, err := r.db.Exec(ctx, `INSERT INTO templates (`+templateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.UserID, t.Name, t.Subject, t.Body, t.Placeholders, t.IsActive, t.CreatedAt, t.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateName
	}
	return err
}

func (r *PostgresRepo) Update(ctx context.Context, t *Template) error {
	tag, err := r.db.Exec(ctx, `UPDATE templates
		SET name = $3, subject = $4, body = $5, placeholders = $6, updated_at = $7
		WHERE id = $1 AND user_id = $2 AND is_active`,
		t.ID, t.UserID, t.Name, t.Subject, t.Body, t.Placeholders, t.UpdatedAt)
	if db.IsUniqueViolation(err) {
		return ErrDuplicateName
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Deactivate(ctx context.Context, owner, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `UPDATE templates SET is_active = FALSE, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND is_active`, id, owner)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) NameTaken(ctx context.Context, owner uuid.UUID, name string, exclude uuid.UUID) (bool, error) {
	var taken bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM templates WHERE user_id = $1 AND name = $2 AND is_active AND id <> $3)`,
		owner, name, exclude).Scan(&taken)
	return taken, err
}

func (r *PostgresRepo) Search(ctx context.Context, owner uuid.UUID, query string) ([]*Template, error) {
	pattern := "%" + escapeLike(query) + "%"
	return r.query(ctx, `SELECT `+templateColumns+` FROM templates
		WHERE user_id = $1 AND is_active
		  AND (name ILIKE $2 OR subject ILIKE $2 OR body ILIKE $2)
		ORDER BY created_at DESC`, owner, pattern)
}

func (r *PostgresRepo) Stats(ctx context.Context, owner uuid.UUID) (Stats, error) {
	var s Stats
	err := r.db.QueryRow(ctx, `SELECT
			count(*),
			count(*) FILTER (WHERE cardinality(placeholders) > 0)
		FROM templates WHERE user_id = $1 AND is_active`, owner).Scan(&s.Total, &s.WithPlaceholders)
	s.WithoutPlaceholders = s.Total - s.WithPlaceholders
	return s, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
