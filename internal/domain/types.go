// Package domain defines the core types for the employer rating engine.
package domain

import (
	"math"
	"time"
)

// RoleCategory classifies an organization for weighting purposes.
type RoleCategory string

const (
	RoleTrade   RoleCategory = "trade_contractor"
	RoleGeneral RoleCategory = "general_contractor"
	RoleBoth    RoleCategory = "both"
	RoleUnknown RoleCategory = "unknown"
)

// ValidRole reports whether r is one of the known role categories.
func ValidRole(r RoleCategory) bool {
	switch r {
	case RoleTrade, RoleGeneral, RoleBoth, RoleUnknown:
		return true
	}
	return false
}

// Organization is the rated entity. Created and mutated by upstream
// processes; the engine only reads it.
type Organization struct {
	ID                 string
	Name               string
	Role               RoleCategory
	IntegrityViolation bool // an open sham-contracting or misclassification finding
	CreatedAtUnix      int64
}

// ConfidenceTag is the per-assessment confidence declared at capture time.
type ConfidenceTag string

const (
	TagHigh   ConfidenceTag = "high"
	TagMedium ConfidenceTag = "medium"
	TagLow    ConfidenceTag = "low"
)

// ComplianceAssessment is a structured compliance check from direct
// project observation. Severity runs 1 (minor) to 5 (worst) and is
// mapped to a score impact via the versioned severity table.
type ComplianceAssessment struct {
	ID         string
	OrgID      string
	Type       string // payment_history, safety_incidents, agreement_adherence, ...
	Severity   int
	Confidence ConfidenceTag
	AssessedAt time.Time
	Active     bool
}

// ExpertAssessment is a free-form field-expert evaluation with an
// overall 0-100 score. Reputation is the expert's historical accuracy
// in [0,1]; nil means unknown.
type ExpertAssessment struct {
	ID         string
	OrgID      string
	Score      float64
	Confidence ConfidenceTag
	ExpertID   string
	Reputation *float64
	AssessedAt time.Time
	Active     bool
}

// AgreementRecord holds the milestone dates of a formal labor agreement.
// It carries no score of its own; the engine scores it by age bands.
type AgreementRecord struct {
	ID          string
	OrgID       string
	CertifiedAt *time.Time
	LodgedAt    *time.Time
	SignedAt    *time.Time
	VotedAt     *time.Time
	Active      bool
}

// CategoricalFamily names one of the 4-point sub-assessment families.
type CategoricalFamily string

const (
	FamilyRelationship  CategoricalFamily = "relationship_respect"
	FamilySafety        CategoricalFamily = "safety"
	FamilySubcontractor CategoricalFamily = "subcontractor_use"
	FamilyRoleSpecific  CategoricalFamily = "role_specific"
)

// CategoricalFamilies lists all families in a stable order.
var CategoricalFamilies = []CategoricalFamily{
	FamilyRelationship,
	FamilySafety,
	FamilySubcontractor,
	FamilyRoleSpecific,
}

// CategoricalAssessment is one 4-point sub-assessment. Criteria values
// are ordinal 1-4 where 4 is best; this is the canonical direction for
// the whole engine (see InvertOrdinal for the legacy convention).
type CategoricalAssessment struct {
	ID         string
	OrgID      string
	Family     CategoricalFamily
	Criteria   map[string]int
	Overall    int
	AssessedAt time.Time
	Active     bool
}

// InvertOrdinal converts between the canonical 4-point direction
// (4 = best) and the legacy direction (1 = best). The mapping is its
// own inverse.
func InvertOrdinal(v float64) float64 {
	return 5 - v
}

// OrdinalMidpoint is the default for a criterion with zero observations.
const OrdinalMidpoint = 2.5

// ClampScore bounds a continuous score to the canonical 0-100 range.
func ClampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}

// ClampOrdinal bounds a 4-point value to [1,4].
func ClampOrdinal(v float64) float64 {
	return math.Max(1, math.Min(4, v))
}

// Component names for the continuous scoring path.
const (
	ComponentProject   = "project"
	ComponentExpert    = "expert"
	ComponentAgreement = "agreement"
)

// ComponentScore is one source's normalized contribution. HasData is
// the explicit no-data signal: a false value must never be coerced to
// a zero or midpoint score downstream.
type ComponentScore struct {
	Component     string
	Value         float64
	HasData       bool
	NotApplicable bool
	SampleCount   int
	NewestAt      time.Time
}

// AgreementStatus is the banded formal-agreement state.
type AgreementStatus string

const (
	AgreementCurrent AgreementStatus = "current" // certified within 1 year
	AgreementRecent  AgreementStatus = "recent"  // 1-2 years
	AgreementAging   AgreementStatus = "aging"   // 2-3 years
	AgreementLapsed  AgreementStatus = "lapsed"  // older than 3 years
	AgreementNone    AgreementStatus = "none"
)

// RatingTier is the categorical rating, best to worst.
type RatingTier string

const (
	TierGreen    RatingTier = "green"
	TierAmber    RatingTier = "amber"
	TierRed      RatingTier = "red"
	TierCritical RatingTier = "critical"
	TierUnknown  RatingTier = "unknown"
)

// TierRank orders tiers for monotonicity checks: higher is better.
// TierUnknown ranks 0 and is never compared by gates.
func TierRank(t RatingTier) int {
	switch t {
	case TierGreen:
		return 4
	case TierAmber:
		return 3
	case TierRed:
		return 2
	case TierCritical:
		return 1
	default:
		return 0
	}
}

// ConfidenceGrade is the qualitative data-quality grade.
type ConfidenceGrade string

const (
	ConfidenceHigh    ConfidenceGrade = "high"
	ConfidenceMedium  ConfidenceGrade = "medium"
	ConfidenceLow     ConfidenceGrade = "low"
	ConfidenceVeryLow ConfidenceGrade = "very_low"
)

// ConfidenceValue maps a grade to the 0-1 scale used for blending.
func ConfidenceValue(g ConfidenceGrade) float64 {
	switch g {
	case ConfidenceHigh:
		return 0.9
	case ConfidenceMedium:
		return 0.7
	case ConfidenceLow:
		return 0.5
	default:
		return 0.3
	}
}

// DiscrepancyLevel classifies the size of disagreement between two
// independently derived component ratings.
type DiscrepancyLevel string

const (
	DiscrepancyNone     DiscrepancyLevel = "none"
	DiscrepancyMinor    DiscrepancyLevel = "minor"
	DiscrepancyModerate DiscrepancyLevel = "moderate"
	DiscrepancyMajor    DiscrepancyLevel = "major"
	DiscrepancyCritical DiscrepancyLevel = "critical"
)

// EscalateDiscrepancy bumps a level one step toward critical.
func EscalateDiscrepancy(l DiscrepancyLevel) DiscrepancyLevel {
	switch l {
	case DiscrepancyNone:
		return DiscrepancyMinor
	case DiscrepancyMinor:
		return DiscrepancyModerate
	case DiscrepancyModerate:
		return DiscrepancyMajor
	default:
		return DiscrepancyCritical
	}
}

// GateResult records one hard gate's evaluation, including
// evaluated-but-not-binding outcomes.
type GateResult struct {
	Name     string
	Fired    bool
	Reason   string
	PreTier  RatingTier
	PostTier RatingTier
}

// FinalRating is the engine's single output row for one
// (organization, as-of date). Never mutated in place: a recompute for
// the same date replaces the row, anything else supersedes it.
type FinalRating struct {
	ID               string
	OrgID            string
	AsOfDate         string // YYYY-MM-DD
	Score            float64
	Tier             RatingTier
	OrdinalScore     float64 // 4-point convention summary, 4 = best
	Components       []ComponentScore
	AgreementStatus  AgreementStatus
	Confidence       ConfidenceGrade
	DiscrepancyLevel DiscrepancyLevel
	ReviewRequired   bool
	GateApplied      bool
	GateReason       string
	Gates            []GateResult
	PolicyVersion    int
	Algorithm        string
	ExpiresAtUnix    int64
	NextReviewUnix   int64
	CreatedAtUnix    int64
}

// RatingHistoryEntry is the append-only diff between two consecutive
// FinalRating rows for one organization.
type RatingHistoryEntry struct {
	ID                string
	OrgID             string
	FromRatingID      string
	ToRatingID        string
	ScoreDelta        float64
	FromTier          RatingTier
	ToTier            RatingTier
	TierChanged       bool
	ChangedComponents []string
	CreatedAtUnix     int64
}

// DiscrepancyRecord persists a disagreement beyond threshold and its
// resolution outcome.
type DiscrepancyRecord struct {
	ID            string
	OrgID         string
	ComponentA    string
	ComponentB    string
	ScoreA        float64
	ScoreB        float64
	Level         DiscrepancyLevel
	Resolution    string // auto_resolved | deferred_to_review
	CreatedAtUnix int64
}

// Resolution outcomes for discrepancy records.
const (
	ResolutionAuto     = "auto_resolved"
	ResolutionDeferred = "deferred_to_review"
)

// AuditRecord is the immutable trace of one calculation: the full
// component breakdown and gate trail that produced a FinalRating.
type AuditRecord struct {
	ID            string
	OrgID         string
	AsOfDate      string
	Action        string
	BreakdownJSON string
	GatesJSON     string
	PolicyVersion int
	CreatedAtUnix int64
}

// BatchFailure reports one organization's failed calculation in a
// batch run.
type BatchFailure struct {
	OrgID  string
	Reason string
}

// BatchSummary is the result of a full recalculation sweep. Failures
// never abort the sweep; successes commit independently.
type BatchSummary struct {
	AsOfDate   string
	Calculated int
	Failures   []BatchFailure
}
