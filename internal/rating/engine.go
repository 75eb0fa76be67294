package rating

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/unionhall/ratingengine/internal/config"
	"github.com/unionhall/ratingengine/internal/domain"
	"github.com/unionhall/ratingengine/internal/policy"
	"github.com/unionhall/ratingengine/internal/store"
)

// AssessmentSource is the read contract the engine depends on. The
// store package provides the SQLite implementation; the upstream
// system of record can substitute its own.
type AssessmentSource interface {
	Organization(ctx context.Context, orgID string) (*domain.Organization, error)
	Organizations(ctx context.Context, role domain.RoleCategory) ([]domain.Organization, error)
	Compliance(ctx context.Context, orgID string, from, to time.Time) ([]domain.ComplianceAssessment, error)
	Expert(ctx context.Context, orgID string, from, to time.Time) ([]domain.ExpertAssessment, error)
	Agreements(ctx context.Context, orgID string) ([]domain.AgreementRecord, error)
	Categorical(ctx context.Context, orgID string, from, to time.Time) ([]domain.CategoricalAssessment, error)
}

// PolicyProvider resolves the scoring policy in force at a date.
type PolicyProvider interface {
	SnapshotAsOf(ctx context.Context, asOf time.Time) (*policy.Snapshot, error)
}

// Engine runs the full rating pipeline for one organization at a time:
// repository read, normalization, confidence, weighting, discrepancy
// detection, hard gates, publication. Each invocation is a pure
// synchronous computation except for the final publish; callers may
// run many organizations in parallel.
type Engine struct {
	Cfg        *config.Config
	DB         *sql.DB
	Source     AssessmentSource
	Policy     PolicyProvider
	Algorithms *Registry
	Estimator  *Estimator
	Gates      *Evaluator
	Publisher  *Publisher
	Ratings    *store.RatingRepo
	History    *store.HistoryRepo
	Log        *slog.Logger
}

// NewEngine wires an engine with the standard pipeline stages.
func NewEngine(cfg *config.Config, db *sql.DB, source AssessmentSource, provider PolicyProvider, log *slog.Logger) *Engine {
	return &Engine{
		Cfg:        cfg,
		DB:         db,
		Source:     source,
		Policy:     provider,
		Algorithms: NewRegistry(cfg.HybridCriticalWeight),
		Estimator:  NewEstimator(cfg),
		Gates:      NewEvaluator(),
		Publisher:  NewPublisher(db, log, cfg.HistoryEpsilon),
		Ratings:    &store.RatingRepo{},
		History:    &store.HistoryRepo{},
		Log:        log,
	}
}

// CalculateRating computes and publishes the rating for one
// organization as of one date.
func (e *Engine) CalculateRating(ctx context.Context, orgID string, asOf time.Time) (*domain.FinalRating, error) {
	org, err := e.Source.Organization(ctx, orgID)
	if err != nil {
		return nil, err
	}

	snap, err := e.Policy.SnapshotAsOf(ctx, asOf)
	if err != nil {
		return nil, err
	}

	// Fetch once over the wider of the scoring and counting windows,
	// then filter locally.
	complianceDays := e.Cfg.Lookback.ComplianceDays
	countDays := e.Cfg.Lookback.ProjectCountDays
	fetchDays := complianceDays
	if countDays > fetchDays {
		fetchDays = countDays
	}
	complianceAll, err := e.Source.Compliance(ctx, orgID, asOf.AddDate(0, 0, -fetchDays), asOf)
	if err != nil {
		return nil, err
	}
	complianceItems := filterComplianceSince(complianceAll, asOf.AddDate(0, 0, -complianceDays))
	projectCount := len(filterComplianceSince(complianceAll, asOf.AddDate(0, 0, -countDays)))

	expertItems, err := e.Source.Expert(ctx, orgID, asOf.AddDate(0, 0, -e.Cfg.Lookback.ExpertDays), asOf)
	if err != nil {
		return nil, err
	}
	agreements, err := e.Source.Agreements(ctx, orgID)
	if err != nil {
		return nil, err
	}
	categoricalItems, err := e.Source.Categorical(ctx, orgID, asOf.AddDate(0, 0, -e.Cfg.Lookback.CategoricalDays), asOf)
	if err != nil {
		return nil, err
	}

	// Normalize.
	normalizer := &Normalizer{Policy: snap}
	project, err := normalizer.Compliance(complianceItems)
	if err != nil {
		return nil, err
	}
	expert := normalizer.Expert(asOf, expertItems)
	agreement, agreementStatus := normalizer.Agreement(asOf, agreements)
	families := normalizer.Categorical(org.Role, categoricalItems)
	ordinal, ordinalHasData, err := normalizer.OrdinalOverall(families)
	if err != nil {
		return nil, err
	}
	if !ordinalHasData {
		ordinal = 0
	}

	// Weight and aggregate.
	projectWeight, expertWeight := DynamicWeights(projectCount)
	agreementWeight, err := snap.ComponentWeight(domain.ComponentAgreement)
	if err != nil {
		return nil, err
	}
	inputs := []WeightedScore{
		{Component: domain.ComponentProject, Score: project.Value, Weight: projectWeight, HasData: project.HasData},
		{Component: domain.ComponentExpert, Score: expert.Value, Weight: expertWeight, HasData: expert.HasData},
		{Component: domain.ComponentAgreement, Score: agreement.Value, Weight: agreementWeight, Critical: true, HasData: agreement.HasData},
	}

	algo, err := e.Algorithms.Get(e.Cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	score, aggErr := algo.Aggregate(inputs)
	tier := domain.TierUnknown
	if aggErr != nil {
		if !errors.Is(aggErr, domain.ErrNoScorableComponents) && !errors.Is(aggErr, domain.ErrNoCriticalComponents) {
			return nil, aggErr
		}
		// No scorable data: the rating is explicitly unknown, not zero.
		score = 0
	} else {
		tier, err = snap.TierFor(score)
		if err != nil {
			return nil, err
		}
	}

	// Confidence, blended with the same weights the aggregation used.
	// A source with no data still drags the blend down through its
	// very-low grade; its weight stays in so the result reflects what
	// the aggregation leaned on. The agreement grade joins only when
	// the selected algorithm gives critical components weight.
	projectGrade := e.Estimator.Grade(domain.ComponentProject, project.SampleCount, project.NewestAt, asOf)
	expertGrade := e.Estimator.Grade(domain.ComponentExpert, expert.SampleCount, expert.NewestAt, asOf)
	grades := []WeightedGrade{
		{Grade: projectGrade, Weight: projectWeight},
		{Grade: expertGrade, Weight: expertWeight},
	}
	if algo.ConsidersCritical() {
		agreementGrade := e.Estimator.Grade(domain.ComponentAgreement, agreement.SampleCount, agreement.NewestAt, asOf)
		grades = append(grades, WeightedGrade{Grade: agreementGrade, Weight: agreementWeight})
	}
	confidence := Combined(grades)

	// Discrepancy between direct observation and expert judgment.
	detector := NewDetector(e.Cfg.Discrepancy, snap)
	finding, err := detector.Compare(project, expert)
	if err != nil {
		return nil, err
	}
	discLevel := domain.DiscrepancyNone
	reviewRequired := false
	var discRecord *domain.DiscrepancyRecord
	if finding != nil {
		discLevel = finding.Level
		reviewRequired = finding.RequiresReview
		if finding.Level != domain.DiscrepancyNone {
			discRecord = &domain.DiscrepancyRecord{
				ID:            uuid.NewString(),
				OrgID:         orgID,
				ComponentA:    domain.ComponentProject,
				ComponentB:    domain.ComponentExpert,
				ScoreA:        project.Value,
				ScoreB:        expert.Value,
				Level:         finding.Level,
				Resolution:    finding.Resolution,
				CreatedAtUnix: time.Now().Unix(),
			}
		}
	}

	// Hard gates, strictly post-aggregation.
	finalTier, gateTrace, gateApplied, gateReason := e.Gates.Apply(GateInput{
		Tier:               tier,
		AgreementStatus:    agreementStatus,
		IntegrityViolation: org.IntegrityViolation,
	})

	components := []domain.ComponentScore{project, expert, agreement}
	for _, family := range domain.CategoricalFamilies {
		components = append(components, families[family])
	}

	fr := domain.FinalRating{
		ID:               uuid.NewString(),
		OrgID:            orgID,
		AsOfDate:         asOf.Format("2006-01-02"),
		Score:            score,
		Tier:             finalTier,
		OrdinalScore:     ordinal,
		Components:       components,
		AgreementStatus:  agreementStatus,
		Confidence:       confidence,
		DiscrepancyLevel: discLevel,
		ReviewRequired:   reviewRequired,
		GateApplied:      gateApplied,
		GateReason:       gateReason,
		Gates:            gateTrace,
		PolicyVersion:    snap.Version,
		Algorithm:        algo.Name(),
		ExpiresAtUnix:    asOf.AddDate(0, 6, 0).Unix(),
		NextReviewUnix:   nextReview(asOf, confidence).Unix(),
		CreatedAtUnix:    time.Now().Unix(),
	}

	e.Log.Debug("calculated rating",
		"org", orgID, "date", fr.AsOfDate, "score", score, "tier", finalTier,
		"confidence", confidence, "gate_applied", gateApplied)

	return e.Publisher.Publish(ctx, fr, discRecord)
}

// GetCurrentRating returns the organization's most recent non-expired
// rating, or domain.ErrRatingNotFound.
func (e *Engine) GetCurrentRating(ctx context.Context, orgID string) (*domain.FinalRating, error) {
	return e.Ratings.Current(ctx, e.DB, orgID, time.Now())
}

// GetRatingHistory returns the organization's history entries created
// on or after `since` (the zero time means all).
func (e *Engine) GetRatingHistory(ctx context.Context, orgID string, since time.Time) ([]domain.RatingHistoryEntry, error) {
	return e.History.ListByOrg(ctx, e.DB, orgID, since)
}

// RecalculateAll runs the pipeline for every organization (optionally
// filtered by role). One organization's failure never aborts the
// sweep; failures are collected and successes commit independently.
func (e *Engine) RecalculateAll(ctx context.Context, asOf time.Time, role domain.RoleCategory) (*domain.BatchSummary, error) {
	orgs, err := e.Source.Organizations(ctx, role)
	if err != nil {
		return nil, err
	}

	summary := &domain.BatchSummary{AsOfDate: asOf.Format("2006-01-02")}
	for _, org := range orgs {
		if _, err := e.CalculateRating(ctx, org.ID, asOf); err != nil {
			e.Log.Warn("batch calculation failed", "org", org.ID, "err", err)
			summary.Failures = append(summary.Failures, domain.BatchFailure{
				OrgID:  org.ID,
				Reason: err.Error(),
			})
			continue
		}
		summary.Calculated++
	}
	return summary, nil
}

func filterComplianceSince(items []domain.ComplianceAssessment, since time.Time) []domain.ComplianceAssessment {
	var out []domain.ComplianceAssessment
	for _, a := range items {
		if !a.AssessedAt.Before(since) {
			out = append(out, a)
		}
	}
	return out
}

func nextReview(asOf time.Time, grade domain.ConfidenceGrade) time.Time {
	switch grade {
	case domain.ConfidenceVeryLow:
		return asOf.AddDate(0, 0, 30)
	case domain.ConfidenceLow:
		return asOf.AddDate(0, 0, 60)
	default:
		return asOf.AddDate(0, 0, 90)
	}
}
