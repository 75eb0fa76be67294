package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/unionhall/ratingengine/internal/domain"
)

// RatingRepo handles persistence for FinalRating rows. One row exists
// per (organization, as-of date); the UNIQUE constraint on that pair is
// the serialization point for concurrent recalculations.
type RatingRepo struct{}

var ratingColumns = []string{
	"id", "org_id", "as_of_date", "score", "tier", "ordinal_score",
	"components_json", "agreement_status", "confidence",
	"discrepancy_level", "review_required", "gate_applied", "gate_reason",
	"gates_json", "policy_version", "algorithm", "expires_at",
	"next_review_at", "created_at",
}

// CreateTx inserts a new rating row. A row already present for the same
// (org, date) surfaces as domain.ErrRatingConflict, which callers treat
// as an expected, retryable condition.
func (r *RatingRepo) CreateTx(ctx context.Context, tx *sql.Tx, fr domain.FinalRating) error {
	componentsJSON, gatesJSON, err := marshalRatingJSON(fr)
	if err != nil {
		return err
	}

	const q = `INSERT INTO final_ratings (id, org_id, as_of_date, score, tier, ordinal_score, components_json, agreement_status, confidence, discrepancy_level, review_required, gate_applied, gate_reason, gates_json, policy_version, algorithm, expires_at, next_review_at, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		fr.ID, fr.OrgID, fr.AsOfDate, fr.Score, string(fr.Tier), fr.OrdinalScore,
		componentsJSON, string(fr.AgreementStatus), string(fr.Confidence),
		string(fr.DiscrepancyLevel), boolToInt(fr.ReviewRequired),
		boolToInt(fr.GateApplied), fr.GateReason, gatesJSON,
		fr.PolicyVersion, fr.Algorithm, fr.ExpiresAtUnix, fr.NextReviewUnix,
		fr.CreatedAtUnix,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return domain.ErrRatingConflict
		}
		return fmt.Errorf("create rating: %w", err)
	}
	return nil
}

// ReplaceTx overwrites the row for (org, date) in place, keeping the
// row's id so external references stay valid. Used only for the
// idempotent same-date recompute path; any other supersession creates
// a new row for a new date.
func (r *RatingRepo) ReplaceTx(ctx context.Context, tx *sql.Tx, fr domain.FinalRating) error {
	componentsJSON, gatesJSON, err := marshalRatingJSON(fr)
	if err != nil {
		return err
	}

	const q = `UPDATE final_ratings SET
		score = ?, tier = ?, ordinal_score = ?, components_json = ?,
		agreement_status = ?, confidence = ?, discrepancy_level = ?,
		review_required = ?, gate_applied = ?, gate_reason = ?, gates_json = ?,
		policy_version = ?, algorithm = ?, expires_at = ?, next_review_at = ?,
		created_at = ?
	WHERE org_id = ? AND as_of_date = ?`

	res, err := tx.ExecContext(ctx, q,
		fr.Score, string(fr.Tier), fr.OrdinalScore, componentsJSON,
		string(fr.AgreementStatus), string(fr.Confidence), string(fr.DiscrepancyLevel),
		boolToInt(fr.ReviewRequired), boolToInt(fr.GateApplied), fr.GateReason, gatesJSON,
		fr.PolicyVersion, fr.Algorithm, fr.ExpiresAtUnix, fr.NextReviewUnix,
		fr.CreatedAtUnix,
		fr.OrgID, fr.AsOfDate,
	)
	if err != nil {
		return fmt.Errorf("replace rating: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrRatingNotFound
	}
	return nil
}

// GetForDate returns the rating row for an exact (org, date) pair.
func (r *RatingRepo) GetForDate(ctx context.Context, db *sql.DB, orgID, asOfDate string) (*domain.FinalRating, error) {
	q, args, err := sq.Select(ratingColumns...).
		From("final_ratings").
		Where(sq.Eq{"org_id": orgID, "as_of_date": asOfDate}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rating query: %w", err)
	}
	return r.queryOne(ctx, db, q, args)
}

// LatestBefore returns the most recent rating strictly before asOfDate,
// expired or not. Used by the publisher to compute the history diff.
func (r *RatingRepo) LatestBefore(ctx context.Context, db *sql.DB, orgID, asOfDate string) (*domain.FinalRating, error) {
	q, args, err := sq.Select(ratingColumns...).
		From("final_ratings").
		Where(sq.Eq{"org_id": orgID}).
		Where(sq.Lt{"as_of_date": asOfDate}).
		OrderBy("as_of_date DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rating query: %w", err)
	}
	return r.queryOne(ctx, db, q, args)
}

// Current returns the organization's most recent non-expired rating.
// The "current rating" is always this derived query, never a cached
// field that triggers must keep in sync.
func (r *RatingRepo) Current(ctx context.Context, db *sql.DB, orgID string, now time.Time) (*domain.FinalRating, error) {
	q, args, err := sq.Select(ratingColumns...).
		From("final_ratings").
		Where(sq.Eq{"org_id": orgID}).
		Where(sq.Gt{"expires_at": now.Unix()}).
		OrderBy("as_of_date DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build current rating query: %w", err)
	}
	return r.queryOne(ctx, db, q, args)
}

// ListOptions filters a rating listing.
type ListOptions struct {
	OrgID          string
	Tier           domain.RatingTier
	ReviewRequired bool
	Limit          uint64
}

// List returns rating rows matching the options, newest first.
func (r *RatingRepo) List(ctx context.Context, db *sql.DB, opts ListOptions) ([]domain.FinalRating, error) {
	builder := sq.Select(ratingColumns...).
		From("final_ratings").
		OrderBy("as_of_date DESC, org_id ASC")
	if opts.OrgID != "" {
		builder = builder.Where(sq.Eq{"org_id": opts.OrgID})
	}
	if opts.Tier != "" {
		builder = builder.Where(sq.Eq{"tier": string(opts.Tier)})
	}
	if opts.ReviewRequired {
		builder = builder.Where(sq.Eq{"review_required": 1})
	}
	if opts.Limit > 0 {
		builder = builder.Limit(opts.Limit)
	}

	q, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rating list query: %w", err)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	defer rows.Close()

	var out []domain.FinalRating
	for rows.Next() {
		fr, err := scanRating(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *fr)
	}
	return out, rows.Err()
}

func (r *RatingRepo) queryOne(ctx context.Context, db *sql.DB, q string, args []any) (*domain.FinalRating, error) {
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query rating: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("query rating: %w", err)
		}
		return nil, domain.ErrRatingNotFound
	}
	return scanRating(rows)
}

func scanRating(rows *sql.Rows) (*domain.FinalRating, error) {
	var fr domain.FinalRating
	var tier, agreement, confidence, discLevel string
	var componentsJSON, gatesJSON string
	var review, gateApplied int
	err := rows.Scan(
		&fr.ID, &fr.OrgID, &fr.AsOfDate, &fr.Score, &tier, &fr.OrdinalScore,
		&componentsJSON, &agreement, &confidence, &discLevel,
		&review, &gateApplied, &fr.GateReason, &gatesJSON,
		&fr.PolicyVersion, &fr.Algorithm, &fr.ExpiresAtUnix,
		&fr.NextReviewUnix, &fr.CreatedAtUnix,
	)
	if err != nil {
		return nil, fmt.Errorf("scan rating: %w", err)
	}
	fr.Tier = domain.RatingTier(tier)
	fr.AgreementStatus = domain.AgreementStatus(agreement)
	fr.Confidence = domain.ConfidenceGrade(confidence)
	fr.DiscrepancyLevel = domain.DiscrepancyLevel(discLevel)
	fr.ReviewRequired = review != 0
	fr.GateApplied = gateApplied != 0
	if err := json.Unmarshal([]byte(componentsJSON), &fr.Components); err != nil {
		return nil, fmt.Errorf("unmarshal components: %w", err)
	}
	if err := json.Unmarshal([]byte(gatesJSON), &fr.Gates); err != nil {
		return nil, fmt.Errorf("unmarshal gates: %w", err)
	}
	return &fr, nil
}

func marshalRatingJSON(fr domain.FinalRating) (components string, gates string, err error) {
	componentsJSON, err := json.Marshal(fr.Components)
	if err != nil {
		return "", "", fmt.Errorf("marshal components: %w", err)
	}
	gatesJSON, err := json.Marshal(fr.Gates)
	if err != nil {
		return "", "", fmt.Errorf("marshal gates: %w", err)
	}
	return string(componentsJSON), string(gatesJSON), nil
}
