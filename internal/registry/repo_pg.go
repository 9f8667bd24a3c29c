package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"transcript-backend/internal/shared/apperr"
	"transcript-backend/internal/shared/scope"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const groupColumns = `id, org_id, kind, name, auto_email, recipients, require_all_reported, created_at, updated_at`

const companyColumns = `id, org_id, name, ticker, isin, auto_email, recipients, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func encodeRecipients(list []string) ([]byte, error) {
	if list == nil {
		list = []string{}
	}
	return json.Marshal(list)
}

func decodeRecipients(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "decode recipients")
	}
	return out, nil
}

func scanGroup(row rowScanner) (Group, error) {
	var g Group
	var kind string
	var recipients []byte
	if err := row.Scan(&g.ID, &g.OrgID, &kind, &g.Name, &g.AutoEmail, &recipients, &g.RequireAllReported, &g.CreatedAt, &g.UpdatedAt); err != nil {
		return Group{}, err
	}
	g.Kind = Kind(kind)
	list, err := decodeRecipients(recipients)
	if err != nil {
		return Group{}, err
	}
	g.Recipients = list
	return g, nil
}

func scanCompany(row rowScanner) (Company, error) {
	var c Company
	var recipients []byte
	if err := row.Scan(&c.ID, &c.OrgID, &c.Name, &c.Ticker, &c.ISIN, &c.AutoEmail, &recipients, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Company{}, err
	}
	list, err := decodeRecipients(recipients)
	if err != nil {
		return Company{}, err
	}
	c.Recipients = list
	return c, nil
}

// CreateGroup inserts a new group with its initial members.
func (r *PGRepo) CreateGroup(ctx context.Context, g Group) error {
	recipients, err := encodeRecipients(g.Recipients)
	if err != nil {
		return err
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	const insertGroup = `
INSERT INTO groups (` + groupColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO NOTHING`
	res, err := tx.ExecContext(ctx, insertGroup, g.ID, g.OrgID, string(g.Kind), g.Name, g.AutoEmail, recipients, g.RequireAllReported, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "insert group")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrConflict
	}

	const insertMember = `INSERT INTO group_members (group_id, company_id, position, added_at) VALUES ($1, $2, $3, $4)`
	for i, companyID := range g.Members {
		if _, err := tx.ExecContext(ctx, insertMember, g.ID, companyID, i+1, g.CreatedAt); err != nil {
			return errors.Wrapf(err, "insert member %s", companyID)
		}
	}
	return tx.Commit()
}

// GetGroup returns a group with its ordered members.
func (r *PGRepo) GetGroup(ctx context.Context, groupID string) (Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`
	g, err := scanGroup(r.DB.QueryRowContext(ctx, query, groupID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Group{}, ErrGroupNotFound
		}
		return Group{}, err
	}
	members, err := r.loadMembers(ctx, groupID)
	if err != nil {
		return Group{}, err
	}
	g.Members = members
	return g, nil
}

// ListGroups returns the organization's groups ordered by name.
func (r *PGRepo) ListGroups(ctx context.Context, orgID string) ([]Group, error) {
	query := `SELECT ` + groupColumns + ` FROM groups WHERE org_id = $1 ORDER BY name, id`
	return r.queryGroups(ctx, query, orgID)
}

// GroupsForCompany returns every group the company currently belongs to.
func (r *PGRepo) GroupsForCompany(ctx context.Context, companyID string) ([]Group, error) {
	const query = `
SELECT g.id, g.org_id, g.kind, g.name, g.auto_email, g.recipients, g.require_all_reported, g.created_at, g.updated_at
FROM groups g
JOIN group_members m ON m.group_id = g.id
WHERE m.company_id = $1
ORDER BY g.id`
	return r.queryGroups(ctx, query, companyID)
}

func (r *PGRepo) queryGroups(ctx context.Context, query string, arg string) ([]Group, error) {
	rows, err := r.DB.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Group, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		members, err := r.loadMembers(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Members = members
	}
	return out, nil
}

func (r *PGRepo) loadMembers(ctx context.Context, groupID string) ([]string, error) {
	const query = `SELECT company_id FROM group_members WHERE group_id = $1 ORDER BY position`
	rows, err := r.DB.QueryContext(ctx, query, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	members := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		members = append(members, id)
	}
	return members, rows.Err()
}

// DeleteGroup removes a group; membership rows cascade.
func (r *PGRepo) DeleteGroup(ctx context.Context, groupID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGroupNotFound
	}
	return nil
}

// AddMember appends a company at the end of the group's member order.
func (r *PGRepo) AddMember(ctx context.Context, groupID, companyID string, at time.Time) (bool, error) {
	if _, err := r.GetCompany(ctx, companyID); err != nil {
		return false, err
	}
	const query = `
INSERT INTO group_members (group_id, company_id, position, added_at)
SELECT g.id, $2, COALESCE((SELECT MAX(position) FROM group_members WHERE group_id = $1), 0) + 1, $3
FROM groups g
WHERE g.id = $1
ON CONFLICT (group_id, company_id) DO NOTHING`
	res, err := r.DB.ExecContext(ctx, query, groupID, companyID, at)
	if err != nil {
		return false, errors.Wrap(err, "insert member")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		g, err := r.GetGroup(ctx, groupID)
		if err != nil {
			return false, err
		}
		if g.HasMember(companyID) {
			return false, nil
		}
		return false, errors.Newf("member %s not added to group %s", companyID, groupID)
	}
	_, _ = r.DB.ExecContext(ctx, `UPDATE groups SET updated_at = $2 WHERE id = $1`, groupID, at)
	return true, nil
}

// RemoveMember drops a company from a group.
func (r *PGRepo) RemoveMember(ctx context.Context, groupID, companyID string) (bool, error) {
	if _, err := r.GetGroup(ctx, groupID); err != nil {
		return false, err
	}
	res, err := r.DB.ExecContext(ctx, `DELETE FROM group_members WHERE group_id = $1 AND company_id = $2`, groupID, companyID)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UpsertCompany creates or updates a company.
func (r *PGRepo) UpsertCompany(ctx context.Context, c Company) (Company, error) {
	recipients, err := encodeRecipients(c.Recipients)
	if err != nil {
		return Company{}, err
	}
	const query = `
INSERT INTO companies (` + companyColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET
    name = EXCLUDED.name,
    ticker = EXCLUDED.ticker,
    isin = EXCLUDED.isin,
    auto_email = EXCLUDED.auto_email,
    recipients = EXCLUDED.recipients,
    updated_at = EXCLUDED.updated_at
RETURNING ` + companyColumns
	out, err := scanCompany(r.DB.QueryRowContext(ctx, query, c.ID, c.OrgID, c.Name, c.Ticker, c.ISIN, c.AutoEmail, recipients, c.CreatedAt, c.UpdatedAt))
	if err != nil {
		return Company{}, errors.Wrap(err, "upsert company")
	}
	return out, nil
}

// GetCompany returns a company by id.
func (r *PGRepo) GetCompany(ctx context.Context, companyID string) (Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE id = $1`
	c, err := scanCompany(r.DB.QueryRowContext(ctx, query, companyID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Company{}, ErrCompanyNotFound
		}
		return Company{}, err
	}
	return c, nil
}

// ListCompanies returns the organization's companies ordered by name.
func (r *PGRepo) ListCompanies(ctx context.Context, orgID string) ([]Company, error) {
	query := `SELECT ` + companyColumns + ` FROM companies WHERE org_id = $1 ORDER BY name, id`
	rows, err := r.DB.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Company, 0)
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SearchCompanies matches name, ticker and ISIN with ILIKE, prefix matches first.
func (r *PGRepo) SearchCompanies(ctx context.Context, orgID, query string, limit int) ([]Company, error) {
	q := likeEscaper.Replace(query)
	const search = `
SELECT ` + companyColumns + `
FROM companies
WHERE org_id = $1 AND (name ILIKE $2 OR ticker ILIKE $2 OR isin ILIKE $2)
ORDER BY (name ILIKE $3 OR ticker ILIKE $3 OR isin ILIKE $3) DESC, name, id
LIMIT $4`
	rows, err := r.DB.QueryContext(ctx, search, orgID, "%"+q+"%", q+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]Company, 0)
	for rows.Next() {
		c, err := scanCompany(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SetAutoEmail toggles result emails for a group or company.
func (r *PGRepo) SetAutoEmail(ctx context.Context, target scope.Scope, id string, on bool, at time.Time) error {
	table, notFound, err := settingsTable(target)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE `+table+` SET auto_email = $2, updated_at = $3 WHERE id = $1`, id, on, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound
	}
	return nil
}

// SetRecipients replaces the recipient list of a group or company.
func (r *PGRepo) SetRecipients(ctx context.Context, target scope.Scope, id string, recipients []string, at time.Time) error {
	table, notFound, err := settingsTable(target)
	if err != nil {
		return err
	}
	raw, err := encodeRecipients(recipients)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, `UPDATE `+table+` SET recipients = $2, updated_at = $3 WHERE id = $1`, id, raw, at)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return notFound
	}
	return nil
}

func settingsTable(target scope.Scope) (table string, notFound error, err error) {
	switch target {
	case scope.Group:
		return "groups", ErrGroupNotFound, nil
	case scope.Company:
		return "companies", ErrCompanyNotFound, nil
	default:
		return "", nil, apperr.Validationf("scope %q has no settings", target)
	}
}

var _ Repo = (*PGRepo)(nil)
var _ Repo = (*MemoryRepo)(nil)
