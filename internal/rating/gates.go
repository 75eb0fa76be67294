package rating

import "github.com/unionhall/ratingengine/internal/domain"

// Gate reasons, machine-readable.
const (
	ReasonNoAgreement        = "no_agreement"
	ReasonAgreementLapsed    = "agreement_lapsed"
	ReasonIntegrityViolation = "integrity_violation"
)

// GateInput carries the gate conditions for one calculation. Gates see
// only the post-aggregation tier; their outcomes never feed back into
// component normalization for the same run.
type GateInput struct {
	Tier               domain.RatingTier
	AgreementStatus    domain.AgreementStatus
	IntegrityViolation bool
}

// Gate is one absolute override rule. Gates are monotonic downgrades:
// an implementation may cap the tier but never raise it.
type Gate interface {
	Name() string
	Evaluate(in GateInput) domain.GateResult
}

// AgreementGate caps the rating when no formal agreement exists or the
// most recent one has lapsed. A current, recent, or aging agreement
// imposes no cap.
type AgreementGate struct {
	NoAgreementCap domain.RatingTier
	LapsedCap      domain.RatingTier
}

// Name returns the gate name.
func (g *AgreementGate) Name() string { return "agreement" }

// Evaluate applies the agreement cap if one is warranted.
func (g *AgreementGate) Evaluate(in GateInput) domain.GateResult {
	switch in.AgreementStatus {
	case domain.AgreementNone:
		return capTier(g.Name(), in.Tier, g.NoAgreementCap, ReasonNoAgreement)
	case domain.AgreementLapsed:
		return capTier(g.Name(), in.Tier, g.LapsedCap, ReasonAgreementLapsed)
	default:
		return domain.GateResult{Name: g.Name(), PreTier: in.Tier, PostTier: in.Tier}
	}
}

// IntegrityGate caps the rating one tier below the best while an
// integrity finding (sham subcontracting, misclassification) is open:
// such an organization can never show as fully compliant.
type IntegrityGate struct {
	Cap domain.RatingTier
}

// Name returns the gate name.
func (g *IntegrityGate) Name() string { return "integrity" }

// Evaluate applies the integrity cap while a finding is active.
func (g *IntegrityGate) Evaluate(in GateInput) domain.GateResult {
	if !in.IntegrityViolation {
		return domain.GateResult{Name: g.Name(), PreTier: in.Tier, PostTier: in.Tier}
	}
	return capTier(g.Name(), in.Tier, g.Cap, ReasonIntegrityViolation)
}

// capTier downgrades tier to cap when tier ranks above it. The result
// records the gate's condition reason even when it did not bind, so
// reviewers can see it was evaluated.
func capTier(name string, tier, cap domain.RatingTier, reason string) domain.GateResult {
	res := domain.GateResult{Name: name, Reason: reason, PreTier: tier, PostTier: tier}
	if domain.TierRank(tier) > domain.TierRank(cap) {
		res.Fired = true
		res.PostTier = cap
	}
	return res
}

// Evaluator runs the hard gates in their fixed, documented order:
// formal agreement first, integrity violations second. Each gate sees
// the tier as left by the previous one.
type Evaluator struct {
	Gates []Gate
}

// NewEvaluator creates the standard gate chain.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		Gates: []Gate{
			&AgreementGate{NoAgreementCap: domain.TierRed, LapsedCap: domain.TierAmber},
			&IntegrityGate{Cap: domain.TierAmber},
		},
	}
}

// Apply evaluates every gate against the pre-gate tier and returns the
// final tier, the full trace, whether any gate bound, and the first
// binding gate's reason. An unknown tier skips gating entirely: there
// is nothing to downgrade.
func (e *Evaluator) Apply(in GateInput) (domain.RatingTier, []domain.GateResult, bool, string) {
	if in.Tier == domain.TierUnknown {
		return in.Tier, nil, false, ""
	}

	tier := in.Tier
	var results []domain.GateResult
	var applied bool
	var reason string
	for _, g := range e.Gates {
		step := in
		step.Tier = tier
		res := g.Evaluate(step)
		results = append(results, res)
		if res.Fired {
			tier = res.PostTier
			if !applied {
				reason = res.Reason
			}
			applied = true
		}
	}
	return tier, results, applied, reason
}
