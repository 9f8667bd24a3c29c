package trigger

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// PGDeadLetters implements DeadLetterRepo using Postgres.
type PGDeadLetters struct {
	DB *sql.DB
}

func (r *PGDeadLetters) Add(ctx context.Context, d DeadLetter) error {
	arrival, err := json.Marshal(d.Arrival)
	if err != nil {
		return err
	}
	const insert = `
INSERT INTO dead_letters (id, arrival, reason, error, created_at)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.DB.ExecContext(ctx, insert, d.ID, string(arrival), d.Reason, d.Error, d.CreatedAt); err != nil {
		return errors.Wrap(err, "insert dead letter")
	}
	return nil
}

func (r *PGDeadLetters) List(ctx context.Context, limit int) ([]DeadLetter, error) {
	const query = `
SELECT id, arrival, reason, error, created_at
FROM dead_letters
ORDER BY created_at DESC
LIMIT $1`
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list dead letters")
	}
	defer rows.Close()

	out := make([]DeadLetter, 0)
	for rows.Next() {
		var d DeadLetter
		var arrival []byte
		if err := rows.Scan(&d.ID, &arrival, &d.Reason, &d.Error, &d.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(arrival, &d.Arrival); err != nil {
			return nil, errors.Wrapf(err, "decode dead letter %s", d.ID)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

var _ DeadLetterRepo = (*PGDeadLetters)(nil)
var _ DeadLetterRepo = (*MemoryDeadLetters)(nil)
