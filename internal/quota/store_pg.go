package quota

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

type pgStore struct {
	DB *sql.DB
}

// NewPGStore constructs a Postgres-backed quota counter store.
func NewPGStore(db *sql.DB) *pgStore {
	return &pgStore{DB: db}
}

func (s *pgStore) Increment(ctx context.Context, orgID, periodID string, limit int, at time.Time) (c Counter, admitted bool, err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return Counter{}, false, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
INSERT INTO quota_counters (org_id, period_id, count, "limit", updated_at)
VALUES ($1, $2, 0, $3, $4)
ON CONFLICT (org_id, period_id) DO NOTHING`, orgID, periodID, limit, at); err != nil {
		return Counter{}, false, errors.Wrap(err, "ensure quota counter")
	}

	c = Counter{OrgID: orgID, PeriodID: periodID, Limit: limit}
	if err = tx.QueryRowContext(ctx, `
SELECT count, updated_at FROM quota_counters WHERE org_id = $1 AND period_id = $2 FOR UPDATE`,
		orgID, periodID).Scan(&c.Count, &c.UpdatedAt); err != nil {
		return Counter{}, false, errors.Wrap(err, "lock quota counter")
	}

	if c.Count < limit {
		c.Count++
		c.UpdatedAt = at
		admitted = true
		if _, err = tx.ExecContext(ctx, `
UPDATE quota_counters SET count = $3, "limit" = $4, updated_at = $5
WHERE org_id = $1 AND period_id = $2`, orgID, periodID, c.Count, limit, at); err != nil {
			return Counter{}, false, errors.Wrap(err, "increment quota counter")
		}
	}
	if err = tx.Commit(); err != nil {
		return Counter{}, false, err
	}
	return c, admitted, nil
}

func (s *pgStore) Get(ctx context.Context, orgID, periodID string, limit int) (Counter, error) {
	c := Counter{OrgID: orgID, PeriodID: periodID, Limit: limit}
	err := s.DB.QueryRowContext(ctx, `
SELECT count, updated_at FROM quota_counters WHERE org_id = $1 AND period_id = $2`,
		orgID, periodID).Scan(&c.Count, &c.UpdatedAt)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return Counter{}, err
	}
	return c, nil
}
