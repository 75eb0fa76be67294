package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/unionhall/ratingengine/internal/domain"
)

// HistoryRepo handles the append-only rating history log.
type HistoryRepo struct{}

// AppendTx inserts a history entry within an existing transaction.
func (r *HistoryRepo) AppendTx(ctx context.Context, tx *sql.Tx, e domain.RatingHistoryEntry) error {
	changedJSON, err := json.Marshal(e.ChangedComponents)
	if err != nil {
		return fmt.Errorf("marshal changed components: %w", err)
	}

	const q = `INSERT INTO rating_history (id, org_id, from_rating_id, to_rating_id, score_delta, from_tier, to_tier, tier_changed, changed_components_json, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q,
		e.ID, e.OrgID, e.FromRatingID, e.ToRatingID, e.ScoreDelta,
		string(e.FromTier), string(e.ToTier), boolToInt(e.TierChanged),
		string(changedJSON), e.CreatedAtUnix,
	)
	if err != nil {
		return fmt.Errorf("append history entry: %w", err)
	}
	return nil
}

// ListByOrg returns history entries for an organization, oldest first,
// optionally restricted to entries created on or after `since`.
func (r *HistoryRepo) ListByOrg(ctx context.Context, db *sql.DB, orgID string, since time.Time) ([]domain.RatingHistoryEntry, error) {
	builder := sq.Select(
		"id", "org_id", "from_rating_id", "to_rating_id", "score_delta",
		"from_tier", "to_tier", "tier_changed", "changed_components_json",
		"created_at",
	).
		From("rating_history").
		Where(sq.Eq{"org_id": orgID}).
		OrderBy("created_at ASC")
	if !since.IsZero() {
		builder = builder.Where(sq.GtOrEq{"created_at": since.Unix()})
	}

	q, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build history query: %w", err)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []domain.RatingHistoryEntry
	for rows.Next() {
		var e domain.RatingHistoryEntry
		var fromTier, toTier, changedJSON string
		var tierChanged int
		if err := rows.Scan(&e.ID, &e.OrgID, &e.FromRatingID, &e.ToRatingID,
			&e.ScoreDelta, &fromTier, &toTier, &tierChanged, &changedJSON,
			&e.CreatedAtUnix); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		e.FromTier = domain.RatingTier(fromTier)
		e.ToTier = domain.RatingTier(toTier)
		e.TierChanged = tierChanged != 0
		if err := json.Unmarshal([]byte(changedJSON), &e.ChangedComponents); err != nil {
			return nil, fmt.Errorf("unmarshal changed components: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
