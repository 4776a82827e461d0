package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/priyanshudevsingh/quickmailer/internal/credential"
	"github.com/priyanshudevsingh/quickmailer/pkg/db"
	"github.com/priyanshudevsingh/quickmailer/pkg/secret"
)

// PostgresRepo is the Repo over the users table. Access and refresh
// tokens are sealed with cipher before they are written.
type PostgresRepo struct {
	db     db.Querier
	cipher *secret.Cipher
}

// NewPostgresRepo creates a PostgresRepo.
func NewPostgresRepo(q db.Querier, cipher *secret.Cipher) *PostgresRepo {
	return &PostgresRepo{db: q, cipher: cipher}
}

var _ Repo = (*PostgresRepo)(nil)

const userColumns = `id, COALESCE(google_id, ''), email, name, picture, emails_sent, drafts_created, created_at, updated_at`

func (r *PostgresRepo) findBy(ctx context.Context, where string, arg any) (*User, error) {
	var u User
	err := r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg).Scan(
		&u.ID, &u.GoogleID, &u.Email, &u.Name, &u.Picture,
		&u.EmailsSent, &u.DraftsCreated, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(db.NotFound(err), db.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *PostgresRepo) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return r.findBy(ctx, "id = $1", id)
}

func (r *PostgresRepo) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	return r.findBy(ctx, "google_id = $1", googleID)
}

func (r *PostgresRepo) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findBy(ctx, "lower(email) = lower($1)", email)
}

func (r *PostgresRepo) Create(ctx context.Context, u *User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, google_id, email, name, picture, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)`,
		u.ID, u.GoogleID, u.Email, u.Name, u.Picture, u.CreatedAt, u.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) UpdateProfile(ctx context.Context, u *User) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET google_id = NULLIF($2, ''), email = $3, name = $4, picture = $5, updated_at = $6
		WHERE id = $1`,
		u.ID, u.GoogleID, u.Email, u.Name, u.Picture, u.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) IncrementStats(ctx context.Context, id uuid.UUID, sent, drafts int) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users SET emails_sent = emails_sent + $2, drafts_created = drafts_created + $3, updated_at = now()
		WHERE id = $1`, id, sent, drafts)
	return err
}

// Credential loads and decrypts the user's tokens.
func (r *PostgresRepo) Credential(ctx context.Context, id uuid.UUID) (credential.Credential, error) {
	var (
		access, refresh string
		expiry          *time.Time
	)
	err := r.db.QueryRow(ctx,
		`SELECT access_token, refresh_token, token_expiry FROM users WHERE id = $1`, id,
	).Scan(&access, &refresh, &expiry)
	if err != nil {
		if errors.Is(db.NotFound(err), db.ErrNoRows) {
			return credential.Credential{}, ErrNotFound
		}
		return credential.Credential{}, err
	}

	var c credential.Credential
	if c.AccessToken, err = r.cipher.Open(access); err != nil {
		return credential.Credential{}, fmt.Errorf("open access token: %w", err)
	}
	if c.RefreshToken, err = r.cipher.Open(refresh); err != nil {
		return credential.Credential{}, fmt.Errorf("open refresh token: %w", err)
	}
	if expiry != nil {
		c.Expiry = *expiry
	}
	return c, nil
}

// SaveCredential encrypts and stores c. An empty refresh token keeps the
// stored one.
func (r *PostgresRepo) SaveCredential(ctx context.Context, id uuid.UUID, c credential.Credential) error {
	access, err := r.cipher.Seal(c.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token: %w", err)
	}
	refresh, err := r.cipher.Seal(c.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token: %w", err)
	}

	var expiry *time.Time
	if !c.Expiry.IsZero() {
		expiry = &c.Expiry
	}

	tag, err := r.db.Exec(ctx, `
		UPDATE users
		SET access_token = $2,
		    refresh_token = CASE WHEN $3::text = '' THEN refresh_token ELSE $3 END,
		    token_expiry = $4,
		    updated_at = now()
		WHERE id = $1`, id, access, refresh, expiry)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
