package store

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/unionhall/ratingengine/internal/domain"
)

// OrgRepo handles persistence for Organization records.
type OrgRepo struct{}

// Upsert inserts or replaces an organization row. Organizations are
// owned by upstream processes; this write path exists for seeding and
// record merges.
func (r *OrgRepo) Upsert(ctx context.Context, db *sql.DB, org domain.Organization) error {
	const q = `INSERT INTO organizations (org_id, name, role, integrity_violation, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(org_id) DO UPDATE SET
	name = excluded.name,
	role = excluded.role,
	integrity_violation = excluded.integrity_violation`
	_, err := db.ExecContext(ctx, q,
		org.ID,
		org.Name,
		string(org.Role),
		boolToInt(org.IntegrityViolation),
		org.CreatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("upsert organization: %w", err)
	}
	return nil
}

// GetByID retrieves an organization by its ID.
func (r *OrgRepo) GetByID(ctx context.Context, db *sql.DB, orgID string) (*domain.Organization, error) {
	const q = `SELECT org_id, name, role, integrity_violation, created_at
FROM organizations WHERE org_id = ?`

	row := db.QueryRowContext(ctx, q, orgID)

	var o domain.Organization
	var role string
	var violation int
	err := row.Scan(&o.ID, &o.Name, &role, &violation, &o.CreatedAtUnix)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrOrgNotFound
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	o.Role = domain.RoleCategory(role)
	o.IntegrityViolation = violation != 0
	return &o, nil
}

// List returns all organizations, optionally filtered by role.
func (r *OrgRepo) List(ctx context.Context, db *sql.DB, role domain.RoleCategory) ([]domain.Organization, error) {
	builder := sq.Select("org_id", "name", "role", "integrity_violation", "created_at").
		From("organizations").
		OrderBy("org_id ASC")
	if role != "" {
		builder = builder.Where(sq.Eq{"role": string(role)})
	}

	q, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build org list query: %w", err)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	defer rows.Close()

	var orgs []domain.Organization
	for rows.Next() {
		var o domain.Organization
		var roleStr string
		var violation int
		if err := rows.Scan(&o.ID, &o.Name, &roleStr, &violation, &o.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan organization: %w", err)
		}
		o.Role = domain.RoleCategory(roleStr)
		o.IntegrityViolation = violation != 0
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
