package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/unionhall/ratingengine/internal/domain"
)

// DiscrepancyRepo handles persistence for DiscrepancyRecord entries.
type DiscrepancyRepo struct{}

// CreateTx inserts a discrepancy record within an existing transaction.
func (r *DiscrepancyRepo) CreateTx(ctx context.Context, tx *sql.Tx, d domain.DiscrepancyRecord) error {
	const q = `INSERT INTO discrepancy_records (id, org_id, component_a, component_b, score_a, score_b, level, resolution, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := tx.ExecContext(ctx, q,
		d.ID, d.OrgID, d.ComponentA, d.ComponentB, d.ScoreA, d.ScoreB,
		string(d.Level), d.Resolution, d.CreatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("create discrepancy record: %w", err)
	}
	return nil
}

// ListByOrg returns all discrepancy records for an organization,
// oldest first.
func (r *DiscrepancyRepo) ListByOrg(ctx context.Context, db *sql.DB, orgID string) ([]domain.DiscrepancyRecord, error) {
	const q = `SELECT id, org_id, component_a, component_b, score_a, score_b, level, resolution, created_at
FROM discrepancy_records
WHERE org_id = ?
ORDER BY created_at ASC`

	rows, err := db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, fmt.Errorf("list discrepancy records: %w", err)
	}
	defer rows.Close()

	var out []domain.DiscrepancyRecord
	for rows.Next() {
		var d domain.DiscrepancyRecord
		var level string
		if err := rows.Scan(&d.ID, &d.OrgID, &d.ComponentA, &d.ComponentB,
			&d.ScoreA, &d.ScoreB, &level, &d.Resolution, &d.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan discrepancy record: %w", err)
		}
		d.Level = domain.DiscrepancyLevel(level)
		out = append(out, d)
	}
	return out, rows.Err()
}
