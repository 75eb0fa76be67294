package rating

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/unionhall/ratingengine/internal/domain"
	"github.com/unionhall/ratingengine/internal/store"
)

// Publisher is the pipeline's only side-effecting stage: it persists
// the FinalRating, the audit record, any discrepancy record, and the
// history diff against whichever prior row is actually present at
// write time.
type Publisher struct {
	DB            *sql.DB
	Ratings       *store.RatingRepo
	History       *store.HistoryRepo
	Discrepancies *store.DiscrepancyRepo
	Audits        *store.AuditRepo
	Log           *slog.Logger

	// Epsilon is the score movement below which no history entry is
	// written.
	Epsilon float64
}

// NewPublisher wires a publisher over an open database.
func NewPublisher(db *sql.DB, log *slog.Logger, epsilon float64) *Publisher {
	return &Publisher{
		DB:            db,
		Ratings:       &store.RatingRepo{},
		History:       &store.HistoryRepo{},
		Discrepancies: &store.DiscrepancyRepo{},
		Audits:        &store.AuditRepo{},
		Log:           log,
		Epsilon:       epsilon,
	}
}

// Publish writes fr as the rating for (org, date). The first write for
// a date inserts; a concurrent or repeated calculation for the same
// date hits the unique constraint and falls through to the replace
// path, which recomputes the history diff against the row it found.
func (p *Publisher) Publish(ctx context.Context, fr domain.FinalRating, disc *domain.DiscrepancyRecord) (*domain.FinalRating, error) {
	prev, err := p.Ratings.LatestBefore(ctx, p.DB, fr.OrgID, fr.AsOfDate)
	if err != nil && !errors.Is(err, domain.ErrRatingNotFound) {
		return nil, err
	}

	err = p.writeNew(ctx, fr, prev, disc)
	if errors.Is(err, domain.ErrRatingConflict) {
		p.Log.Debug("rating exists for date, replacing", "org", fr.OrgID, "date", fr.AsOfDate)
		return p.replaceExisting(ctx, fr, disc)
	}
	if err != nil {
		return nil, err
	}
	return &fr, nil
}

func (p *Publisher) writeNew(ctx context.Context, fr domain.FinalRating, prev *domain.FinalRating, disc *domain.DiscrepancyRecord) error {
	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := p.Ratings.CreateTx(ctx, tx, fr); err != nil {
		return err
	}
	if err := p.writeSideRecords(ctx, tx, fr, prev, disc, "calculate"); err != nil {
		return err
	}
	return tx.Commit()
}

func (p *Publisher) replaceExisting(ctx context.Context, fr domain.FinalRating, disc *domain.DiscrepancyRecord) (*domain.FinalRating, error) {
	// The diff must be computed against the row actually present, not
	// the stale pre-conflict read.
	existing, err := p.Ratings.GetForDate(ctx, p.DB, fr.OrgID, fr.AsOfDate)
	if err != nil {
		return nil, err
	}
	// The row keeps its identity across same-date revisions so history
	// and audit references stay resolvable.
	fr.ID = existing.ID

	tx, err := p.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := p.Ratings.ReplaceTx(ctx, tx, fr); err != nil {
		return nil, err
	}
	if err := p.writeSideRecords(ctx, tx, fr, existing, disc, "recalculate"); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &fr, nil
}

func (p *Publisher) writeSideRecords(ctx context.Context, tx *sql.Tx, fr domain.FinalRating, prev *domain.FinalRating, disc *domain.DiscrepancyRecord, action string) error {
	if prev != nil {
		if entry, changed := p.diff(prev, &fr); changed {
			if err := p.History.AppendTx(ctx, tx, entry); err != nil {
				return err
			}
		}
	}

	if disc != nil {
		if err := p.Discrepancies.CreateTx(ctx, tx, *disc); err != nil {
			return err
		}
	}

	breakdown, err := json.Marshal(fr.Components)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	gates, err := json.Marshal(fr.Gates)
	if err != nil {
		return fmt.Errorf("marshal gate trace: %w", err)
	}
	audit := domain.AuditRecord{
		ID:            uuid.NewString(),
		OrgID:         fr.OrgID,
		AsOfDate:      fr.AsOfDate,
		Action:        action,
		BreakdownJSON: string(breakdown),
		GatesJSON:     string(gates),
		PolicyVersion: fr.PolicyVersion,
		CreatedAtUnix: time.Now().Unix(),
	}
	return p.Audits.RecordTx(ctx, tx, audit)
}

// diff builds the history entry between two consecutive ratings. A
// change below epsilon with the same tier is negligible and produces
// no entry.
func (p *Publisher) diff(prev, next *domain.FinalRating) (domain.RatingHistoryEntry, bool) {
	delta := next.Score - prev.Score
	tierChanged := prev.Tier != next.Tier
	if !tierChanged && math.Abs(delta) <= p.Epsilon {
		return domain.RatingHistoryEntry{}, false
	}

	prevComponents := make(map[string]domain.ComponentScore, len(prev.Components))
	for _, c := range prev.Components {
		prevComponents[c.Component] = c
	}
	var changed []string
	for _, c := range next.Components {
		old, ok := prevComponents[c.Component]
		if !ok || old.HasData != c.HasData || math.Abs(old.Value-c.Value) > p.Epsilon {
			changed = append(changed, c.Component)
		}
	}

	return domain.RatingHistoryEntry{
		ID:                uuid.NewString(),
		OrgID:             next.OrgID,
		FromRatingID:      prev.ID,
		ToRatingID:        next.ID,
		ScoreDelta:        delta,
		FromTier:          prev.Tier,
		ToTier:            next.Tier,
		TierChanged:       tierChanged,
		ChangedComponents: changed,
		CreatedAtUnix:     time.Now().Unix(),
	}, true
}
