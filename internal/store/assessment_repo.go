package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/unionhall/ratingengine/internal/domain"
)

// AssessmentRepo handles persistence for all assessment variants.
// Assessments are immutable once complete: the write path only inserts
// or soft-deactivates, never edits.
type AssessmentRepo struct{}

// CreateCompliance inserts a structured compliance assessment.
func (r *AssessmentRepo) CreateCompliance(ctx context.Context, db *sql.DB, a domain.ComplianceAssessment) error {
	if a.Severity < 1 || a.Severity > 5 {
		return domain.NewEngineError(domain.ErrInvalidAssessment.Code,
			fmt.Sprintf("severity %d out of range [1, 5]", a.Severity))
	}
	const q = `INSERT INTO compliance_assessments (id, org_id, type, severity, confidence, assessed_at, active)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		a.ID, a.OrgID, a.Type, a.Severity, string(a.Confidence),
		a.AssessedAt.Unix(), boolToInt(a.Active),
	)
	if err != nil {
		return fmt.Errorf("create compliance assessment: %w", err)
	}
	return nil
}

// CreateExpert inserts an expert-judgment assessment.
func (r *AssessmentRepo) CreateExpert(ctx context.Context, db *sql.DB, a domain.ExpertAssessment) error {
	if a.Score < 0 || a.Score > 100 {
		return domain.NewEngineError(domain.ErrInvalidAssessment.Code,
			fmt.Sprintf("expert score %.2f out of range [0, 100]", a.Score))
	}
	const q = `INSERT INTO expert_assessments (id, org_id, score, confidence, expert_id, reputation, assessed_at, active)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	var rep any
	if a.Reputation != nil {
		rep = *a.Reputation
	}
	_, err := db.ExecContext(ctx, q,
		a.ID, a.OrgID, a.Score, string(a.Confidence), a.ExpertID, rep,
		a.AssessedAt.Unix(), boolToInt(a.Active),
	)
	if err != nil {
		return fmt.Errorf("create expert assessment: %w", err)
	}
	return nil
}

// CreateAgreement inserts a formal agreement record.
func (r *AssessmentRepo) CreateAgreement(ctx context.Context, db *sql.DB, a domain.AgreementRecord) error {
	const q = `INSERT INTO agreement_records (id, org_id, certified_at, lodged_at, signed_at, voted_at, active)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		a.ID, a.OrgID,
		unixOrNil(a.CertifiedAt), unixOrNil(a.LodgedAt),
		unixOrNil(a.SignedAt), unixOrNil(a.VotedAt),
		boolToInt(a.Active),
	)
	if err != nil {
		return fmt.Errorf("create agreement record: %w", err)
	}
	return nil
}

// CreateCategorical inserts a 4-point sub-assessment.
func (r *AssessmentRepo) CreateCategorical(ctx context.Context, db *sql.DB, a domain.CategoricalAssessment) error {
	for name, v := range a.Criteria {
		if v < 1 || v > 4 {
			return domain.NewEngineError(domain.ErrInvalidAssessment.Code,
				fmt.Sprintf("criterion %q value %d out of range [1, 4]", name, v))
		}
	}
	criteriaJSON, err := json.Marshal(a.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	const q = `INSERT INTO categorical_assessments (id, org_id, family, criteria_json, overall, assessed_at, active)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = db.ExecContext(ctx, q,
		a.ID, a.OrgID, string(a.Family), string(criteriaJSON), a.Overall,
		a.AssessedAt.Unix(), boolToInt(a.Active),
	)
	if err != nil {
		return fmt.Errorf("create categorical assessment: %w", err)
	}
	return nil
}

// ListCompliance returns active compliance assessments for an
// organization with assessed_at inside [from, to].
func (r *AssessmentRepo) ListCompliance(ctx context.Context, db *sql.DB, orgID string, from, to time.Time) ([]domain.ComplianceAssessment, error) {
	const q = `SELECT id, org_id, type, severity, confidence, assessed_at, active
FROM compliance_assessments
WHERE org_id = ? AND active = 1 AND assessed_at >= ? AND assessed_at <= ?
ORDER BY assessed_at ASC`

	rows, err := db.QueryContext(ctx, q, orgID, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("list compliance assessments: %w", err)
	}
	defer rows.Close()

	var out []domain.ComplianceAssessment
	for rows.Next() {
		var a domain.ComplianceAssessment
		var conf string
		var at int64
		var active int
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Type, &a.Severity, &conf, &at, &active); err != nil {
			return nil, fmt.Errorf("scan compliance assessment: %w", err)
		}
		a.Confidence = domain.ConfidenceTag(conf)
		a.AssessedAt = time.Unix(at, 0).UTC()
		a.Active = active != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListExpert returns active expert assessments for an organization with
// assessed_at inside [from, to].
func (r *AssessmentRepo) ListExpert(ctx context.Context, db *sql.DB, orgID string, from, to time.Time) ([]domain.ExpertAssessment, error) {
	const q = `SELECT id, org_id, score, confidence, expert_id, reputation, assessed_at, active
FROM expert_assessments
WHERE org_id = ? AND active = 1 AND assessed_at >= ? AND assessed_at <= ?
ORDER BY assessed_at ASC`

	rows, err := db.QueryContext(ctx, q, orgID, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("list expert assessments: %w", err)
	}
	defer rows.Close()

	var out []domain.ExpertAssessment
	for rows.Next() {
		var a domain.ExpertAssessment
		var conf string
		var rep sql.NullFloat64
		var at int64
		var active int
		if err := rows.Scan(&a.ID, &a.OrgID, &a.Score, &conf, &a.ExpertID, &rep, &at, &active); err != nil {
			return nil, fmt.Errorf("scan expert assessment: %w", err)
		}
		a.Confidence = domain.ConfidenceTag(conf)
		if rep.Valid {
			v := rep.Float64
			a.Reputation = &v
		}
		a.AssessedAt = time.Unix(at, 0).UTC()
		a.Active = active != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListAgreements returns all active agreement records for an
// organization. Agreements are not windowed: the engine bands the most
// recent certification date no matter how old it is.
func (r *AssessmentRepo) ListAgreements(ctx context.Context, db *sql.DB, orgID string) ([]domain.AgreementRecord, error) {
	const q = `SELECT id, org_id, certified_at, lodged_at, signed_at, voted_at, active
FROM agreement_records
WHERE org_id = ? AND active = 1
ORDER BY certified_at ASC`

	rows, err := db.QueryContext(ctx, q, orgID)
	if err != nil {
		return nil, fmt.Errorf("list agreement records: %w", err)
	}
	defer rows.Close()

	var out []domain.AgreementRecord
	for rows.Next() {
		var a domain.AgreementRecord
		var cert, lodged, signed, voted sql.NullInt64
		var active int
		if err := rows.Scan(&a.ID, &a.OrgID, &cert, &lodged, &signed, &voted, &active); err != nil {
			return nil, fmt.Errorf("scan agreement record: %w", err)
		}
		a.CertifiedAt = timeOrNil(cert)
		a.LodgedAt = timeOrNil(lodged)
		a.SignedAt = timeOrNil(signed)
		a.VotedAt = timeOrNil(voted)
		a.Active = active != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// ListCategorical returns active categorical assessments for an
// organization with assessed_at inside [from, to].
func (r *AssessmentRepo) ListCategorical(ctx context.Context, db *sql.DB, orgID string, from, to time.Time) ([]domain.CategoricalAssessment, error) {
	const q = `SELECT id, org_id, family, criteria_json, overall, assessed_at, active
FROM categorical_assessments
WHERE org_id = ? AND active = 1 AND assessed_at >= ? AND assessed_at <= ?
ORDER BY assessed_at ASC`

	rows, err := db.QueryContext(ctx, q, orgID, from.Unix(), to.Unix())
	if err != nil {
		return nil, fmt.Errorf("list categorical assessments: %w", err)
	}
	defer rows.Close()

	var out []domain.CategoricalAssessment
	for rows.Next() {
		var a domain.CategoricalAssessment
		var family, criteriaJSON string
		var at int64
		var active int
		if err := rows.Scan(&a.ID, &a.OrgID, &family, &criteriaJSON, &a.Overall, &at, &active); err != nil {
			return nil, fmt.Errorf("scan categorical assessment: %w", err)
		}
		if err := json.Unmarshal([]byte(criteriaJSON), &a.Criteria); err != nil {
			return nil, fmt.Errorf("unmarshal criteria: %w", err)
		}
		a.Family = domain.CategoricalFamily(family)
		a.AssessedAt = time.Unix(at, 0).UTC()
		a.Active = active != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

// Deactivate soft-deletes an assessment row in the named table.
func (r *AssessmentRepo) Deactivate(ctx context.Context, db *sql.DB, table, id string) error {
	switch table {
	case "compliance_assessments", "expert_assessments", "agreement_records", "categorical_assessments":
	default:
		return fmt.Errorf("unknown assessment table %q", table)
	}
	_, err := db.ExecContext(ctx, "UPDATE "+table+" SET active = 0 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deactivate assessment: %w", err)
	}
	return nil
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
