package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/unionhall/ratingengine/internal/domain"
)

// AuditRepo handles persistence for AuditRecord entries. Audit rows are
// append-only; nothing in the engine updates or deletes them.
type AuditRepo struct{}

// RecordTx inserts an audit record within an existing transaction.
func (r *AuditRepo) RecordTx(ctx context.Context, tx *sql.Tx, rec domain.AuditRecord) error {
	const q = `INSERT INTO audit_records (id, org_id, as_of_date, action, breakdown_json, gates_json, policy_version, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		rec.ID, rec.OrgID, rec.AsOfDate, rec.Action,
		rec.BreakdownJSON, rec.GatesJSON, rec.PolicyVersion, rec.CreatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("record audit: %w", err)
	}
	return nil
}

// ListByOrg returns all audit records for an organization, oldest first.
func (r *AuditRepo) ListByOrg(ctx context.Context, db *sql.DB, orgID string) ([]domain.AuditRecord, error) {
	const q = `SELECT id, org_id, as_of_date, action, breakdown_json, gates_json, policy_version, created_at
FROM audit_records
WHERE org_id = ?
ORDER BY created_at ASC`

	rows, err := db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, fmt.Errorf("list audit records: %w", err)
	}
	defer rows.Close()

	var records []domain.AuditRecord
	for rows.Next() {
		var a domain.AuditRecord
		if err := rows.Scan(&a.ID, &a.OrgID, &a.AsOfDate, &a.Action,
			&a.BreakdownJSON, &a.GatesJSON, &a.PolicyVersion, &a.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan audit record: %w", err)
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
