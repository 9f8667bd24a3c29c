package transcripts

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

// Record inserts the transcript unless one exists for (company, period).
func (r *PGRepo) Record(ctx context.Context, t Transcript) (Transcript, bool, error) {
	const insert = `
INSERT INTO transcripts (company_id, period, document_ref, received_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (company_id, period) DO NOTHING`
	res, err := r.DB.ExecContext(ctx, insert, t.CompanyID, t.Period, t.DocumentRef, t.ReceivedAt)
	if err != nil {
		return Transcript{}, false, errors.Wrap(err, "insert transcript")
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return t, true, nil
	}
	existing, err := r.Get(ctx, t.CompanyID, t.Period)
	if err != nil {
		return Transcript{}, false, err
	}
	return existing, false, nil
}

// Get returns the transcript for (company, period).
func (r *PGRepo) Get(ctx context.Context, companyID, period string) (Transcript, error) {
	const query = `
SELECT company_id, period, document_ref, received_at
FROM transcripts
WHERE company_id = $1 AND period = $2`
	var t Transcript
	err := r.DB.QueryRowContext(ctx, query, companyID, period).Scan(&t.CompanyID, &t.Period, &t.DocumentRef, &t.ReceivedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transcript{}, ErrNotFound
		}
		return Transcript{}, err
	}
	return t, nil
}

// ListByCompany returns the company's transcripts, newest period first.
func (r *PGRepo) ListByCompany(ctx context.Context, companyID string) ([]Transcript, error) {
	const query = `
SELECT company_id, period, document_ref, received_at
FROM transcripts
WHERE company_id = $1`
	out, err := r.query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	SortNewestFirst(out)
	return out, nil
}

// ListForPeriod returns the transcripts of companyIDs for period, in companyIDs order.
func (r *PGRepo) ListForPeriod(ctx context.Context, companyIDs []string, period string) ([]Transcript, error) {
	if len(companyIDs) == 0 {
		return []Transcript{}, nil
	}
	ids, err := json.Marshal(companyIDs)
	if err != nil {
		return nil, err
	}
	const query = `
SELECT t.company_id, t.period, t.document_ref, t.received_at
FROM transcripts t
JOIN jsonb_array_elements_text($1::jsonb) WITH ORDINALITY AS ids(company_id, ord) ON ids.company_id = t.company_id
WHERE t.period = $2
ORDER BY ids.ord`
	return r.query(ctx, query, string(ids), period)
}

func (r *PGRepo) query(ctx context.Context, query string, args ...any) ([]Transcript, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Transcript, 0)
	for rows.Next() {
		var t Transcript
		if err := rows.Scan(&t.CompanyID, &t.Period, &t.DocumentRef, &t.ReceivedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

var _ Repo = (*PGRepo)(nil)
var _ Repo = (*MemoryRepo)(nil)
