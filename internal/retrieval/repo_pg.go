package retrieval

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgconn"

	"transcript-backend/internal/shared/scope"
)

const uniqueViolation = "23505"

// PGRepo implements SessionRepo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) Create(ctx context.Context, s Session) error {
	const insert = `
INSERT INTO ask_sessions (id, org_id, scope, target_id, k, include_sector_outputs, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, insert, s.ID, s.OrgID, string(s.Scope), s.TargetID, s.K, s.IncludeSectorOutputs, s.CreatedAt)
	if err != nil {
		return errors.Wrap(err, "insert ask session")
	}
	return nil
}

func (r *PGRepo) Get(ctx context.Context, id string) (Session, error) {
	const query = `
SELECT id, org_id, scope, target_id, k, include_sector_outputs, created_at
FROM ask_sessions
WHERE id = $1`
	var s Session
	var sc string
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&s.ID, &s.OrgID, &sc, &s.TargetID, &s.K, &s.IncludeSectorOutputs, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrSessionNotFound
		}
		return Session{}, err
	}
	s.Scope = scope.Scope(sc)

	const turns = `
SELECT seq, question, answer, asked_at
FROM ask_turns
WHERE session_id = $1
ORDER BY seq`
	s.Turns, err = r.turns(ctx, turns, id)
	if err != nil {
		return Session{}, err
	}
	return s, nil
}

// AppendTurn assigns the next sequence number in the insert and retries when a
// concurrent writer took it.
func (r *PGRepo) AppendTurn(ctx context.Context, sessionID string, t Turn) (Turn, error) {
	const query = `
INSERT INTO ask_turns (session_id, seq, question, answer, asked_at)
SELECT $1, COALESCE(MAX(seq), 0) + 1, $2, $3, $4
FROM ask_turns
WHERE session_id = $1
RETURNING seq`

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		err := r.DB.QueryRowContext(ctx, query, sessionID, t.Question, t.Answer, t.AskedAt).Scan(&t.Seq)
		if err == nil {
			return t, nil
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			lastErr = err
			continue
		}
		return Turn{}, errors.Wrap(err, "insert ask turn")
	}
	return Turn{}, errors.Wrap(lastErr, "insert ask turn: contention")
}

func (r *PGRepo) TurnsForTarget(ctx context.Context, orgID string, sc scope.Scope, targetID string) ([]Turn, error) {
	const query = `
SELECT t.seq, t.question, t.answer, t.asked_at
FROM ask_turns t
JOIN ask_sessions s ON s.id = t.session_id
WHERE s.org_id = $1 AND s.scope = $2 AND s.target_id = $3
ORDER BY t.asked_at, t.seq`
	return r.turns(ctx, query, orgID, string(sc), targetID)
}

func (r *PGRepo) turns(ctx context.Context, query string, args ...any) ([]Turn, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Turn, 0)
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.Seq, &t.Question, &t.Answer, &t.AskedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

var _ SessionRepo = (*PGRepo)(nil)
var _ SessionRepo = (*MemoryRepo)(nil)
