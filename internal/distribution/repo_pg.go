package distribution

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

// Claim relies on job_id being the primary key.
func (r *PGRepo) Claim(ctx context.Context, d Dispatch) (bool, error) {
	recipients, err := json.Marshal(d.Recipients)
	if err != nil {
		return false, err
	}
	const insert = `
INSERT INTO email_dispatches (job_id, recipients, subject, status, attempts, created_at)
VALUES ($1, $2, $3, $4, 0, $5)
ON CONFLICT (job_id) DO NOTHING`
	res, err := r.DB.ExecContext(ctx, insert, d.JobID, string(recipients), d.Subject, d.Status, d.CreatedAt)
	if err != nil {
		return false, errors.Wrapf(err, "claim email dispatch for job %s", d.JobID)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Update writes the dispatch status fields.
func (r *PGRepo) Update(ctx context.Context, d Dispatch) error {
	var sentAt sql.NullTime
	if d.SentAt != nil {
		sentAt = sql.NullTime{Time: *d.SentAt, Valid: true}
	}
	const update = `
UPDATE email_dispatches
SET status = $2, attempts = $3, last_error = $4, sent_at = $5
WHERE job_id = $1`
	res, err := r.DB.ExecContext(ctx, update, d.JobID, d.Status, d.Attempts, d.LastError, sentAt)
	if err != nil {
		return errors.Wrapf(err, "update email dispatch for job %s", d.JobID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the dispatch for a job.
func (r *PGRepo) Get(ctx context.Context, jobID string) (Dispatch, error) {
	const query = `
SELECT job_id, recipients, subject, status, attempts, last_error, sent_at, created_at
FROM email_dispatches
WHERE job_id = $1`
	var d Dispatch
	var recipients []byte
	var sentAt sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, jobID).Scan(&d.JobID, &recipients, &d.Subject, &d.Status, &d.Attempts, &d.LastError, &sentAt, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Dispatch{}, ErrNotFound
		}
		return Dispatch{}, err
	}
	if err := json.Unmarshal(recipients, &d.Recipients); err != nil {
		return Dispatch{}, errors.Wrapf(err, "decode recipients for job %s", jobID)
	}
	if sentAt.Valid {
		t := sentAt.Time
		d.SentAt = &t
	}
	return d, nil
}

var _ Repo = (*PGRepo)(nil)
var _ Repo = (*MemoryRepo)(nil)
