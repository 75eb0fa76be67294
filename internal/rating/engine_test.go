package rating

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/unionhall/ratingengine/internal/config"
	"github.com/unionhall/ratingengine/internal/domain"
	"github.com/unionhall/ratingengine/internal/logging"
	"github.com/unionhall/ratingengine/internal/policy"
	"github.com/unionhall/ratingengine/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *sql.DB) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.NewDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("NewDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	pol := policy.NewStore(db)
	if err := pol.Seed(context.Background(), policy.DefaultSeed(), testAsOf.AddDate(-1, 0, 0)); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	cfg := config.Default()
	cfg.DBPath = filepath.Join(dir, "test.db")

	eng := NewEngine(cfg, db, store.NewAssessmentReader(db), pol, logging.New("error"))
	return eng, db
}

func insertOrg(t *testing.T, db *sql.DB, org domain.Organization) {
	t.Helper()
	repo := &store.OrgRepo{}
	if err := repo.Upsert(context.Background(), db, org); err != nil {
		t.Fatalf("Upsert org: %v", err)
	}
}

func insertCompliance(t *testing.T, db *sql.DB, orgID, typ string, severity int, at time.Time) {
	t.Helper()
	repo := &store.AssessmentRepo{}
	err := repo.CreateCompliance(context.Background(), db, domain.ComplianceAssessment{
		ID: uuid.NewString(), OrgID: orgID, Type: typ, Severity: severity,
		Confidence: domain.TagMedium, AssessedAt: at, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateCompliance: %v", err)
	}
}

func insertExpert(t *testing.T, db *sql.DB, orgID string, score float64, at time.Time) {
	t.Helper()
	repo := &store.AssessmentRepo{}
	err := repo.CreateExpert(context.Background(), db, domain.ExpertAssessment{
		ID: uuid.NewString(), OrgID: orgID, Score: score,
		Confidence: domain.TagHigh, ExpertID: "organiser-1",
		AssessedAt: at, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateExpert: %v", err)
	}
}

func insertAgreement(t *testing.T, db *sql.DB, orgID string, certifiedAt time.Time) {
	t.Helper()
	repo := &store.AssessmentRepo{}
	err := repo.CreateAgreement(context.Background(), db, domain.AgreementRecord{
		ID: uuid.NewString(), OrgID: orgID, CertifiedAt: &certifiedAt, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateAgreement: %v", err)
	}
}

// A new organization with one strong expert assessment, no project
// history, and an agreement certified two years back: the rating leans
// entirely on expert judgment and no gate binds.
func TestCalculateRating_ExpertOnly(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	insertOrg(t, db, domain.Organization{ID: "org-a", Name: "Apex Formwork", Role: domain.RoleTrade})
	insertExpert(t, db, "org-a", 90, daysAgo(10))
	insertAgreement(t, db, "org-a", daysAgo(700))

	fr, err := eng.CalculateRating(ctx, "org-a", testAsOf)
	if err != nil {
		t.Fatalf("CalculateRating: %v", err)
	}
	// Zero projects -> expert weight 1.0 -> aggregate 90.
	if !almostEqual(fr.Score, 90, 0.01) {
		t.Errorf("expected score 90, got %f", fr.Score)
	}
	if fr.Tier != domain.TierGreen {
		t.Errorf("expected green, got %s", fr.Tier)
	}
	if fr.AgreementStatus != domain.AgreementRecent {
		t.Errorf("expected recent agreement, got %s", fr.AgreementStatus)
	}
	if fr.GateApplied {
		t.Errorf("no gate should bind: %q", fr.GateReason)
	}
	// One 10-day-old expert assessment grades medium; project carries
	// zero weight.
	if fr.Confidence != domain.ConfidenceMedium {
		t.Errorf("expected medium confidence, got %s", fr.Confidence)
	}
}

// Rich project history contradicting the expert view: dynamic weights
// flip to 90/10 project, the aggregate lands in red, and the critical
// discrepancy defers to human review. The open integrity finding is
// traced but does not bind below its cap.
func TestCalculateRating_ProjectHistoryDominates(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	insertOrg(t, db, domain.Organization{
		ID: "org-b", Name: "Bligh Civil", Role: domain.RoleTrade, IntegrityViolation: true,
	})
	// 5 at severity 3 (impact 50) + 5 at severity 4 (impact 30) = project 40.
	for i := 0; i < 5; i++ {
		insertCompliance(t, db, "org-b", "payment_history", 3, daysAgo(10+i))
		insertCompliance(t, db, "org-b", "payment_history", 4, daysAgo(20+i))
	}
	insertExpert(t, db, "org-b", 90, daysAgo(10))
	insertAgreement(t, db, "org-b", daysAgo(100))

	fr, err := eng.CalculateRating(ctx, "org-b", testAsOf)
	if err != nil {
		t.Fatalf("CalculateRating: %v", err)
	}
	// 0.9*40 + 0.1*90 = 45.
	if !almostEqual(fr.Score, 45, 0.01) {
		t.Errorf("expected score 45, got %f", fr.Score)
	}
	if fr.Tier != domain.TierRed {
		t.Errorf("expected red, got %s", fr.Tier)
	}
	// Gap 50 with a red/green tier split: critical, review required.
	if fr.DiscrepancyLevel != domain.DiscrepancyCritical {
		t.Errorf("expected critical discrepancy, got %s", fr.DiscrepancyLevel)
	}
	if !fr.ReviewRequired {
		t.Error("critical discrepancy must require review")
	}
	// Red already sits below the integrity cap (amber).
	if fr.GateApplied {
		t.Errorf("integrity gate should not bind below its cap: %q", fr.GateReason)
	}
	var sawIntegrity bool
	for _, g := range fr.Gates {
		if g.Name == "integrity" && !g.Fired {
			sawIntegrity = true
		}
	}
	if !sawIntegrity {
		t.Error("integrity gate evaluation missing from the trace")
	}
	if fr.Confidence != domain.ConfidenceHigh {
		t.Errorf("expected high confidence from rich fresh data, got %s", fr.Confidence)
	}

	// The deferred discrepancy is persisted.
	discs, err := (&store.DiscrepancyRepo{}).ListByOrg(ctx, db, "org-b")
	if err != nil {
		t.Fatalf("ListByOrg: %v", err)
	}
	if len(discs) != 1 || discs[0].Resolution != domain.ResolutionDeferred {
		t.Errorf("expected one deferred discrepancy record, got %+v", discs)
	}
}

// No formal agreement at all: the hard gate caps an otherwise green
// score at red.
func TestCalculateRating_NoAgreementGate(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	insertOrg(t, db, domain.Organization{ID: "org-c", Name: "Cardow Interiors", Role: domain.RoleTrade})
	insertExpert(t, db, "org-c", 90, daysAgo(10))

	fr, err := eng.CalculateRating(ctx, "org-c", testAsOf)
	if err != nil {
		t.Fatalf("CalculateRating: %v", err)
	}
	if !almostEqual(fr.Score, 90, 0.01) {
		t.Errorf("score is pre-gate: expected 90, got %f", fr.Score)
	}
	if fr.Tier != domain.TierRed {
		t.Errorf("expected red cap, got %s", fr.Tier)
	}
	if !fr.GateApplied || fr.GateReason != ReasonNoAgreement {
		t.Errorf("expected no_agreement gate, got applied=%v reason=%q", fr.GateApplied, fr.GateReason)
	}
}

// Under a critical-aware algorithm the agreement component carries
// real aggregation weight, so its confidence grade joins the blend
// with the same weight. One fresh certification lifts a single
// medium-graded expert assessment to overall high.
func TestCalculateRating_HybridBlendsAgreementConfidence(t *testing.T) {
	eng, db := newTestEngine(t)
	eng.Cfg.Algorithm = "hybrid"
	ctx := context.Background()

	insertOrg(t, db, domain.Organization{ID: "org-hy", Name: "Hyland Cranes", Role: domain.RoleTrade})
	insertExpert(t, db, "org-hy", 90, daysAgo(10))
	insertAgreement(t, db, "org-hy", daysAgo(100))

	fr, err := eng.CalculateRating(ctx, "org-hy", testAsOf)
	if err != nil {
		t.Fatalf("CalculateRating: %v", err)
	}
	// base 90 (expert only), critical 100 (current agreement):
	// 90*0.8 + 100*0.2 = 92.
	if !almostEqual(fr.Score, 92, 0.01) {
		t.Errorf("expected score 92, got %f", fr.Score)
	}
	if fr.Tier != domain.TierGreen {
		t.Errorf("expected green, got %s", fr.Tier)
	}
	// Expert grades medium (0.7, weight 1.0); agreement grades high
	// (0.9, policy weight 8): blend 7.9/9 = 0.88 -> high. With the
	// agreement grade left out this would sit at medium.
	if fr.Confidence != domain.ConfidenceHigh {
		t.Errorf("expected high confidence, got %s", fr.Confidence)
	}
}

func TestCalculateRating_NoDataAtAll(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	insertOrg(t, db, domain.Organization{ID: "org-d", Name: "Dormant Pty Ltd", Role: domain.RoleUnknown})

	fr, err := eng.CalculateRating(ctx, "org-d", testAsOf)
	if err != nil {
		t.Fatalf("CalculateRating: %v", err)
	}
	if fr.Tier != domain.TierUnknown {
		t.Errorf("expected unknown tier, got %s", fr.Tier)
	}
	if fr.Score != 0 {
		t.Errorf("unknown rating carries score 0, got %f", fr.Score)
	}
	if fr.Confidence != domain.ConfidenceVeryLow {
		t.Errorf("expected very_low confidence, got %s", fr.Confidence)
	}
	if fr.GateApplied || len(fr.Gates) != 0 {
		t.Errorf("gates must be skipped for unknown: applied=%v trace=%v", fr.GateApplied, fr.Gates)
	}
}

func TestCalculateRating_UnknownOrg(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.CalculateRating(context.Background(), "nobody", testAsOf)
	if err == nil {
		t.Fatal("expected error for unknown organization")
	}
	engErr, ok := err.(*domain.EngineError)
	if !ok || engErr.Code != domain.ErrOrgNotFound.Code {
		t.Fatalf("expected ErrOrgNotFound, got %v", err)
	}
}

// Recomputing the same (org, date) with unchanged inputs replaces the
// row in place and writes no history entry.
func TestCalculateRating_SameDateIdempotent(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	insertOrg(t, db, domain.Organization{ID: "org-e", Name: "Everline Scaffolds", Role: domain.RoleTrade})
	insertExpert(t, db, "org-e", 72, daysAgo(5))
	insertAgreement(t, db, "org-e", daysAgo(50))

	first, err := eng.CalculateRating(ctx, "org-e", testAsOf)
	if err != nil {
		t.Fatalf("first CalculateRating: %v", err)
	}
	second, err := eng.CalculateRating(ctx, "org-e", testAsOf)
	if err != nil {
		t.Fatalf("second CalculateRating: %v", err)
	}
	if first.Tier != second.Tier || !almostEqual(first.Score, second.Score, 0.001) {
		t.Errorf("recompute diverged: %f/%s vs %f/%s", first.Score, first.Tier, second.Score, second.Tier)
	}

	history, err := eng.GetRatingHistory(ctx, "org-e", time.Time{})
	if err != nil {
		t.Fatalf("GetRatingHistory: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("identical recompute must not append history, got %d entries", len(history))
	}

	ratings, err := eng.Ratings.List(ctx, db, store.ListOptions{OrgID: "org-e"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ratings) != 1 {
		t.Errorf("expected exactly one rating row, got %d", len(ratings))
	}
}

// A same-date recompute with changed inputs keeps the stored row's id,
// so the history entry it writes references a row that still exists.
func TestCalculateRating_SameDateRevisionKeepsRowID(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	insertOrg(t, db, domain.Organization{ID: "org-r", Name: "Redgum Formwork", Role: domain.RoleTrade})
	insertExpert(t, db, "org-r", 72, daysAgo(5))
	insertAgreement(t, db, "org-r", daysAgo(50))

	first, err := eng.CalculateRating(ctx, "org-r", testAsOf)
	if err != nil {
		t.Fatalf("first CalculateRating: %v", err)
	}

	// A second expert view lands the same day and the rating is rerun
	// for the same date.
	insertExpert(t, db, "org-r", 30, daysAgo(3))
	second, err := eng.CalculateRating(ctx, "org-r", testAsOf)
	if err != nil {
		t.Fatalf("second CalculateRating: %v", err)
	}
	// (72 + 30) / 2 = 51.
	if !almostEqual(second.Score, 51, 0.01) {
		t.Errorf("expected revised score 51, got %f", second.Score)
	}
	if second.ID != first.ID {
		t.Errorf("same-date revision must keep the row id: %s -> %s", first.ID, second.ID)
	}

	stored, err := eng.Ratings.GetForDate(ctx, db, "org-r", testAsOf.Format("2006-01-02"))
	if err != nil {
		t.Fatalf("GetForDate: %v", err)
	}
	if stored.ID != first.ID || !almostEqual(stored.Score, 51, 0.01) {
		t.Errorf("stored row diverged: %+v", stored)
	}

	history, err := eng.GetRatingHistory(ctx, "org-r", time.Time{})
	if err != nil {
		t.Fatalf("GetRatingHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history entry for the revision, got %d", len(history))
	}
	if history[0].FromRatingID != stored.ID || history[0].ToRatingID != stored.ID {
		t.Errorf("history references a missing row: %s -> %s (stored %s)",
			history[0].FromRatingID, history[0].ToRatingID, stored.ID)
	}
}

// A later calculation with changed inputs appends a history diff naming
// the components that moved.
func TestCalculateRating_HistoryOnChange(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	insertOrg(t, db, domain.Organization{ID: "org-f", Name: "Fairbank Concreting", Role: domain.RoleTrade})
	insertExpert(t, db, "org-f", 85, daysAgo(5))
	insertAgreement(t, db, "org-f", daysAgo(50))

	first, err := eng.CalculateRating(ctx, "org-f", testAsOf)
	if err != nil {
		t.Fatalf("first CalculateRating: %v", err)
	}

	// A severe incident lands before the next month's run.
	nextMonth := testAsOf.AddDate(0, 1, 0)
	insertCompliance(t, db, "org-f", "safety_incidents", 5, testAsOf.AddDate(0, 0, 10))

	second, err := eng.CalculateRating(ctx, "org-f", nextMonth)
	if err != nil {
		t.Fatalf("second CalculateRating: %v", err)
	}
	if second.Score >= first.Score {
		t.Fatalf("severity-5 incident should drag the score down: %f -> %f", first.Score, second.Score)
	}

	history, err := eng.GetRatingHistory(ctx, "org-f", time.Time{})
	if err != nil {
		t.Fatalf("GetRatingHistory: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one history entry, got %d", len(history))
	}
	e := history[0]
	if e.FromRatingID != first.ID || e.ToRatingID != second.ID {
		t.Errorf("history links wrong ratings: %s -> %s", e.FromRatingID, e.ToRatingID)
	}
	var changedProject bool
	for _, c := range e.ChangedComponents {
		if c == domain.ComponentProject {
			changedProject = true
		}
	}
	if !changedProject {
		t.Errorf("expected project among changed components, got %v", e.ChangedComponents)
	}
}

func TestGetCurrentRating_Expiry(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	insertOrg(t, db, domain.Organization{ID: "org-g", Name: "Gantry Group", Role: domain.RoleGeneral})
	insertExpert(t, db, "org-g", 65, daysAgo(5))
	insertAgreement(t, db, "org-g", daysAgo(30))

	// A rating as of today expires six months out and is current.
	if _, err := eng.CalculateRating(ctx, "org-g", time.Now().UTC()); err != nil {
		t.Fatalf("CalculateRating: %v", err)
	}
	fr, err := eng.GetCurrentRating(ctx, "org-g")
	if err != nil {
		t.Fatalf("GetCurrentRating: %v", err)
	}
	if fr.OrgID != "org-g" {
		t.Errorf("wrong org: %s", fr.OrgID)
	}

	// An organization rated only long ago has no current rating.
	insertOrg(t, db, domain.Organization{ID: "org-h", Name: "Halcyon Demo", Role: domain.RoleTrade})
	insertExpert(t, db, "org-h", 65, time.Now().UTC().AddDate(-2, 0, 0).AddDate(0, 0, -5))
	insertAgreement(t, db, "org-h", time.Now().UTC().AddDate(-2, 0, -30))
	if _, err := eng.CalculateRating(ctx, "org-h", time.Now().UTC().AddDate(-2, 0, 0)); err != nil {
		t.Fatalf("CalculateRating: %v", err)
	}
	if _, err := eng.GetCurrentRating(ctx, "org-h"); err == nil {
		t.Fatal("expected no current rating for an expired row")
	}
}

func TestRecalculateAll_CollectsFailures(t *testing.T) {
	eng, db := newTestEngine(t)
	ctx := context.Background()

	insertOrg(t, db, domain.Organization{ID: "org-ok", Name: "Okeford Joinery", Role: domain.RoleTrade})
	insertExpert(t, db, "org-ok", 80, daysAgo(5))
	insertAgreement(t, db, "org-ok", daysAgo(30))

	// An assessment type with no policy weight makes this one fail.
	insertOrg(t, db, domain.Organization{ID: "org-bad", Name: "Brokenshire", Role: domain.RoleTrade})
	insertCompliance(t, db, "org-bad", "unmapped_type", 2, daysAgo(5))

	summary, err := eng.RecalculateAll(ctx, testAsOf, "")
	if err != nil {
		t.Fatalf("RecalculateAll: %v", err)
	}
	if summary.Calculated != 1 {
		t.Errorf("expected 1 success, got %d", summary.Calculated)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].OrgID != "org-bad" {
		t.Errorf("expected org-bad to fail, got %+v", summary.Failures)
	}

	// The successful organization's rating committed despite the failure.
	if _, err := eng.Ratings.GetForDate(ctx, db, "org-ok", testAsOf.Format("2006-01-02")); err != nil {
		t.Errorf("successful rating missing: %v", err)
	}
}
