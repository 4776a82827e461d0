package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/priyanshudevsingh/quickmailer/pkg/db"
)

// PostgresRunRepo is the RunRepo over the bulk_runs table.
type PostgresRunRepo struct {
	db db.Querier
}

// NewPostgresRunRepo creates a PostgresRunRepo.
func NewPostgresRunRepo(q db.Querier) *PostgresRunRepo {
	return &PostgresRunRepo{db: q}
}

var _ RunRepo = (*PostgresRunRepo)(nil)

const runColumns = `id, user_id, COALESCE(template_id, '00000000-0000-0000-0000-000000000000'::uuid), mode, status,
	total, processed, success_count, failure_count, result, error, COALESCE(job_id, 0), created_at, updated_at`

func scanRun(row pgx.Row, extra ...any) (*Run, error) {
	var (
		r      Run
		result []byte
	)
	dest := append([]any{&r.ID, &r.UserID, &r.TemplateID, &r.Mode, &r.Status,
		&r.Total, &r.Processed, &r.SuccessCount, &r.FailureCount, &result, &r.Error, &r.JobID,
		&r.CreatedAt, &r.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(db.NotFound(err), db.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}
	if len(result) > 0 {
		r.Result = &BulkResult{}
		if err := json.Unmarshal(result, r.Result); err != nil {
			return nil, fmt.Errorf("decode run result: %w", err)
		}
	}
	return &r, nil
}

func (p *PostgresRunRepo) CreateRun(ctx context.Context, run *Run, payload RunPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode run payload: %w", err)
	}
	_, err = p.db.Exec(ctx, `INSERT INTO bulk_runs
		(id, user_id, template_id, mode, status, total, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID, run.UserID, run.TemplateID, run.Mode, run.Status, run.Total, data, run.CreatedAt, run.UpdatedAt)
	return err
}

func (p *PostgresRunRepo) SetJobID(ctx context.Context, id uuid.UUID, jobID int64) error {
	_, err := p.db.Exec(ctx, `UPDATE bulk_runs SET job_id = $2, updated_at = now() WHERE id = $1`, id, jobID)
	return err
}

func (p *PostgresRunRepo) GetRun(ctx context.Context, owner, id uuid.UUID) (*Run, error) {
	return scanRun(p.db.QueryRow(ctx, `SELECT `+runColumns+` FROM bulk_runs WHERE id = $1 AND user_id = $2`, id, owner))
}

func (p *PostgresRunRepo) LoadRun(ctx context.Context, id uuid.UUID) (*Run, RunPayload, error) {
	var raw []byte
	run, err := scanRun(p.db.QueryRow(ctx, `SELECT `+runColumns+`, payload FROM bulk_runs WHERE id = $1`, id), &raw)
	if err != nil {
		return nil, RunPayload{}, err
	}
	var payload RunPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, RunPayload{}, fmt.Errorf("decode run payload: %w", err)
	}
	return run, payload, nil
}

func (p *PostgresRunRepo) StartRun(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := p.db.Exec(ctx, `UPDATE bulk_runs SET status = $2, updated_at = now()
		WHERE id = $1 AND status = $3`, id, RunRunning, RunQueued)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *PostgresRunRepo) UpdateProgress(ctx context.Context, id uuid.UUID, processed int) error {
	_, err := p.db.Exec(ctx, `UPDATE bulk_runs SET processed = $2, updated_at = now() WHERE id = $1`, id, processed)
	return err
}

// FinishRun never overwrites a run that already reached a terminal state.
func (p *PostgresRunRepo) FinishRun(ctx context.Context, id uuid.UUID, status RunStatus, result *BulkResult, errMsg string) error {
	var (
		data                  []byte
		processed, ok, failed int
	)
	if result != nil {
		var err error
		if data, err = json.Marshal(result); err != nil {
			return fmt.Errorf("encode run result: %w", err)
		}
		processed, ok, failed = result.TotalRecipients, result.SuccessCount, result.FailureCount
	}
	_, err := p.db.Exec(ctx, `UPDATE bulk_runs
		SET status = $2, result = $3, error = $4,
		    processed = GREATEST(processed, $5), success_count = $6, failure_count = $7,
		    updated_at = now()
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`,
		id, status, data, errMsg, processed, ok, failed)
	return err
}
