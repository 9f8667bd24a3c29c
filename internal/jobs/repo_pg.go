package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/scope"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const jobColumns = `
id, idempotency_key, org_id, target_scope, target_id, company_id, group_id, period,
prompt_id, prompt_ref, prompt_snapshot, transcript_refs, trigger, nonce, status,
attempt_count, max_attempts, admitted_period, next_attempt_at, output_ref, error_code,
last_error, created_at, updated_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateIfAbsent relies on the unique idempotency_key constraint.
func (r *PGRepo) CreateIfAbsent(ctx context.Context, j Job) (Job, bool, error) {
	refs, err := json.Marshal(nonNilRefs(j.TranscriptRefs))
	if err != nil {
		return Job{}, false, errors.Wrap(err, "marshal transcript refs")
	}
	const insert = `
INSERT INTO jobs (
	id, idempotency_key, org_id, target_scope, target_id, company_id, group_id, period,
	prompt_id, prompt_ref, prompt_snapshot, transcript_refs, trigger, nonce, status,
	attempt_count, max_attempts, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
ON CONFLICT (idempotency_key) DO NOTHING`
	res, err := r.DB.ExecContext(ctx, insert,
		j.ID,
		j.IdempotencyKey,
		j.OrgID,
		string(j.Target),
		j.TargetID,
		j.CompanyID,
		j.GroupID,
		j.Period,
		j.PromptID,
		j.PromptRef,
		j.PromptSnapshot,
		string(refs),
		string(j.Trigger),
		j.Nonce,
		string(j.Status),
		j.AttemptCount,
		j.MaxAttempts,
		j.CreatedAt,
		j.UpdatedAt,
	)
	if err != nil {
		return Job{}, false, errors.Wrap(err, "insert job")
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return j, true, nil
	}
	existing, err := r.GetByKey(ctx, j.IdempotencyKey)
	if err != nil {
		return Job{}, false, err
	}
	return existing, false, nil
}

// Get returns a job by id.
func (r *PGRepo) Get(ctx context.Context, id string) (Job, error) {
	return r.getOne(ctx, `SELECT`+jobColumns+` FROM jobs WHERE id = $1`, id)
}

// GetByKey returns a job by idempotency key.
func (r *PGRepo) GetByKey(ctx context.Context, key string) (Job, error) {
	return r.getOne(ctx, `SELECT`+jobColumns+` FROM jobs WHERE idempotency_key = $1`, key)
}

// Transition reads the job, applies the change and writes it back only if the
// status has not moved in between.
func (r *PGRepo) Transition(ctx context.Context, id string, to Status, at time.Time, mutate func(*Job)) (Job, error) {
	j, err := r.Get(ctx, id)
	if err != nil {
		return Job{}, err
	}
	if !CanTransition(j.Status, to) {
		return Job{}, ErrInvalidTransition
	}
	from := j.Status
	if mutate != nil {
		mutate(&j)
	}
	j.Status = to
	j.UpdatedAt = at

	const update = `
UPDATE jobs
SET status = $3,
    attempt_count = $4,
    next_attempt_at = $5,
    output_ref = $6,
    error_code = $7,
    last_error = $8,
    started_at = $9,
    completed_at = $10,
    updated_at = $11
WHERE id = $1 AND status = $2`
	res, err := r.DB.ExecContext(ctx, update,
		id,
		string(from),
		string(j.Status),
		j.AttemptCount,
		nullTime(j.NextAttemptAt),
		j.OutputRef,
		j.ErrorCode,
		j.LastError,
		nullTime(j.StartedAt),
		nullTime(j.CompletedAt),
		j.UpdatedAt,
	)
	if err != nil {
		return Job{}, errors.Wrapf(err, "update job %s", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return Job{}, ErrInvalidTransition
	}
	return j, nil
}

// MarkAdmitted sets the admitted period once.
func (r *PGRepo) MarkAdmitted(ctx context.Context, id, periodID string, at time.Time) (bool, error) {
	const update = `
UPDATE jobs SET admitted_period = $2, updated_at = $3
WHERE id = $1 AND admitted_period = ''`
	res, err := r.DB.ExecContext(ctx, update, id, periodID, at)
	if err != nil {
		return false, errors.Wrapf(err, "mark job %s admitted", id)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// ListByCompany returns jobs whose subject is the company, newest first.
func (r *PGRepo) ListByCompany(ctx context.Context, orgID, companyID string) ([]Job, error) {
	return r.list(ctx, `SELECT`+jobColumns+` FROM jobs WHERE org_id = $1 AND company_id = $2 ORDER BY created_at DESC, id`, orgID, companyID)
}

// ListByGroup returns jobs run under the group, newest first.
func (r *PGRepo) ListByGroup(ctx context.Context, orgID, groupID string) ([]Job, error) {
	return r.list(ctx, `SELECT`+jobColumns+` FROM jobs WHERE org_id = $1 AND group_id = $2 ORDER BY created_at DESC, id`, orgID, groupID)
}

// ListByStatus returns jobs in the status, newest first.
func (r *PGRepo) ListByStatus(ctx context.Context, status Status) ([]Job, error) {
	return r.list(ctx, `SELECT`+jobColumns+` FROM jobs WHERE status = $1 ORDER BY created_at DESC, id`, string(status))
}

// ListCompleted returns completed jobs for the org and target scope, newest first.
func (r *PGRepo) ListCompleted(ctx context.Context, orgID string, target scope.Scope) ([]Job, error) {
	return r.list(ctx, `SELECT`+jobColumns+` FROM jobs WHERE org_id = $1 AND target_scope = $2 AND status = 'Completed' ORDER BY completed_at DESC`, orgID, string(target))
}

// CancelPending cancels Pending jobs for the target.
func (r *PGRepo) CancelPending(ctx context.Context, target scope.Scope, targetID, companyID string, at time.Time) (int, error) {
	const update = `
UPDATE jobs SET status = 'Canceled', error_code = 'CANCELED', updated_at = $4
WHERE status = 'Pending' AND target_scope = $1 AND target_id = $2 AND ($3 = '' OR company_id = $3)`
	res, err := r.DB.ExecContext(ctx, update, string(target), targetID, companyID, at)
	if err != nil {
		return 0, errors.Wrap(err, "cancel pending jobs")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *PGRepo) getOne(ctx context.Context, query string, arg string) (Job, error) {
	j, err := scanJob(r.DB.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Job{}, ErrNotFound
		}
		return Job{}, err
	}
	return j, nil
}

func (r *PGRepo) list(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func scanJob(row rowScanner) (Job, error) {
	var j Job
	var target, trigger, status string
	var refs []byte
	var nextAttemptAt, startedAt, completedAt sql.NullTime
	err := row.Scan(
		&j.ID,
		&j.IdempotencyKey,
		&j.OrgID,
		&target,
		&j.TargetID,
		&j.CompanyID,
		&j.GroupID,
		&j.Period,
		&j.PromptID,
		&j.PromptRef,
		&j.PromptSnapshot,
		&refs,
		&trigger,
		&j.Nonce,
		&status,
		&j.AttemptCount,
		&j.MaxAttempts,
		&j.AdmittedPeriod,
		&nextAttemptAt,
		&j.OutputRef,
		&j.ErrorCode,
		&j.LastError,
		&j.CreatedAt,
		&j.UpdatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return Job{}, err
	}
	j.Target = scope.Scope(target)
	j.Trigger = Trigger(trigger)
	j.Status = Status(status)
	j.NextAttemptAt = timePtr(nextAttemptAt)
	j.StartedAt = timePtr(startedAt)
	j.CompletedAt = timePtr(completedAt)
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &j.TranscriptRefs); err != nil {
			return Job{}, errors.Wrapf(err, "decode transcript refs for job %s", j.ID)
		}
	}
	return j, nil
}

func nonNilRefs(refs []TranscriptRef) []TranscriptRef {
	if refs == nil {
		return []TranscriptRef{}
	}
	return refs
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

var _ Repo = (*PGRepo)(nil)
var _ Repo = (*MemoryRepo)(nil)
