package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/unionhall/ratingengine/internal/domain"
)

// AssessmentReader is the SQLite-backed assessment source handed to
// the rating engine. It bundles the stateless repos with an open
// database so the engine sees one read contract.
type AssessmentReader struct {
	DB *sql.DB

	orgs        OrgRepo
	assessments AssessmentRepo
}

// NewAssessmentReader creates a reader over an open database.
func NewAssessmentReader(db *sql.DB) *AssessmentReader {
	return &AssessmentReader{DB: db}
}

// Organization returns one organization by ID.
func (r *AssessmentReader) Organization(ctx context.Context, orgID string) (*domain.Organization, error) {
	return r.orgs.GetByID(ctx, r.DB, orgID)
}

// Organizations lists organizations, optionally filtered by role.
func (r *AssessmentReader) Organizations(ctx context.Context, role domain.RoleCategory) ([]domain.Organization, error) {
	return r.orgs.List(ctx, r.DB, role)
}

// Compliance returns active compliance assessments in [from, to].
func (r *AssessmentReader) Compliance(ctx context.Context, orgID string, from, to time.Time) ([]domain.ComplianceAssessment, error) {
	return r.assessments.ListCompliance(ctx, r.DB, orgID, from, to)
}

// Expert returns active expert assessments in [from, to].
func (r *AssessmentReader) Expert(ctx context.Context, orgID string, from, to time.Time) ([]domain.ExpertAssessment, error) {
	return r.assessments.ListExpert(ctx, r.DB, orgID, from, to)
}

// Agreements returns all active agreement records.
func (r *AssessmentReader) Agreements(ctx context.Context, orgID string) ([]domain.AgreementRecord, error) {
	return r.assessments.ListAgreements(ctx, r.DB, orgID)
}

// Categorical returns active categorical assessments in [from, to].
func (r *AssessmentReader) Categorical(ctx context.Context, orgID string, from, to time.Time) ([]domain.CategoricalAssessment, error) {
	return r.assessments.ListCategorical(ctx, r.DB, orgID, from, to)
}
