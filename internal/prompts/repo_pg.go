package prompts

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"

	"transcript-backend/internal/shared/scope"
)

const uniqueViolation = "23505"

// PGRepo implements Repo using Postgres. Versions are assigned in the insert and
// a concurrent writer that loses the race on (scope, owner_id, version) retries.
type PGRepo struct {
	DB *sql.DB
}

// Append stores the next version.
func (r *PGRepo) Append(ctx context.Context, p Prompt) (Prompt, error) {
	const query = `
INSERT INTO prompts (id, scope, owner_id, version, text, cleared, created_at)
SELECT $1, $2, $3, COALESCE(MAX(version), 0) + 1, $4, $5, $6
FROM prompts
WHERE scope = $2 AND owner_id = $3
RETURNING version`

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := r.DB.QueryRowContext(ctx, query, p.ID, string(p.Scope), p.OwnerID, p.Text, p.Cleared, p.CreatedAt).Scan(&p.Version)
		if err == nil {
			return p, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			lastErr = err
			continue
		}
		return Prompt{}, errors.Wrap(err, "insert prompt version")
	}
	return Prompt{}, errors.Wrap(lastErr, "insert prompt version: contention")
}

// History returns the version log oldest first.
func (r *PGRepo) History(ctx context.Context, s scope.Scope, ownerID string) ([]Prompt, error) {
	const query = `
SELECT id, scope, owner_id, version, text, cleared, created_at
FROM prompts
WHERE scope = $1 AND owner_id = $2
ORDER BY version`
	rows, err := r.DB.QueryContext(ctx, query, string(s), ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Prompt, 0)
	for rows.Next() {
		var p Prompt
		var sc string
		if err := rows.Scan(&p.ID, &sc, &p.OwnerID, &p.Version, &p.Text, &p.Cleared, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Scope = scope.Scope(sc)
		out = append(out, p)
	}
	return out, rows.Err()
}

var _ Repo = (*PGRepo)(nil)
var _ Repo = (*MemoryRepo)(nil)
