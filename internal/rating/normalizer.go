// Package rating implements the multi-source weighted rating pipeline:
// normalization, confidence grading, weighted aggregation, discrepancy
// detection, hard gates, and publication.
package rating

import (
	"time"

	"github.com/unionhall/ratingengine/internal/domain"
	"github.com/unionhall/ratingengine/internal/policy"
)

// Recency bands for expert judgment: more recent assessments carry
// more weight.
const (
	recencyNearDays = 30
	recencyMidDays  = 90

	recencyNearMult = 1.0
	recencyMidMult  = 0.8
	recencyFarMult  = 0.6
)

// defaultReputation applies when an expert's historical accuracy is
// unknown.
const defaultReputation = 0.7

// Agreement age bands in days, with fixed scores per band.
const (
	agreementCurrentDays = 365
	agreementRecentDays  = 730
	agreementAgingDays   = 1095

	agreementCurrentScore = 100
	agreementRecentScore  = 85
	agreementAgingScore   = 60
	agreementLapsedScore  = 30
)

// familyCriteria names the canonical criteria per 4-point family. A
// criterion absent from every assessment in window defaults to the
// ordinal midpoint so one missing field does not null out the family.
var familyCriteria = map[domain.CategoricalFamily][]string{
	domain.FamilyRelationship:  {"union_respect", "delegate_access", "dispute_handling"},
	domain.FamilySafety:        {"incident_response", "site_conditions", "consultation", "training"},
	domain.FamilySubcontractor: {"engagement_terms", "payment_flowdown", "labour_hire_use"},
	domain.FamilyRoleSpecific:  {"project_management", "workforce_planning", "compliance_systems"},
}

// Normalizer converts each assessment type's raw fields into the
// common units: continuous 0-100 scores or ordinal 1-4 values. Every
// method is a pure function of its inputs and the policy snapshot.
type Normalizer struct {
	Policy *policy.Snapshot
}

// Compliance computes the project component: a per-type weighted
// average of severity impacts. Zero assessments yield an explicit
// no-data component, never a zero score.
func (n *Normalizer) Compliance(items []domain.ComplianceAssessment) (domain.ComponentScore, error) {
	cs := domain.ComponentScore{Component: domain.ComponentProject}
	if len(items) == 0 {
		return cs, nil
	}

	var weightedSum, totalWeight float64
	for _, a := range items {
		impact, err := n.Policy.SeverityImpact(a.Severity)
		if err != nil {
			return cs, err
		}
		weight, err := n.Policy.TypeWeight(a.Type)
		if err != nil {
			return cs, err
		}
		weightedSum += impact * weight
		totalWeight += weight
		if a.AssessedAt.After(cs.NewestAt) {
			cs.NewestAt = a.AssessedAt
		}
	}
	if totalWeight <= 0 {
		// Every matched type carries zero weight: scorable data exists
		// but contributes nothing, so this stays a no-data component.
		return cs, nil
	}

	cs.Value = domain.ClampScore(weightedSum / totalWeight)
	cs.HasData = true
	cs.SampleCount = len(items)
	return cs, nil
}

// Expert computes the expert-judgment component: a confidence-weighted
// average where each assessment's weight is its confidence-tag base
// times the expert's reputation multiplier times a recency multiplier.
func (n *Normalizer) Expert(asOf time.Time, items []domain.ExpertAssessment) domain.ComponentScore {
	cs := domain.ComponentScore{Component: domain.ComponentExpert}
	if len(items) == 0 {
		return cs
	}

	var weightedSum, totalWeight float64
	for _, a := range items {
		w := tagBaseWeight(a.Confidence) * reputationMultiplier(a.Reputation) * recencyMultiplier(asOf, a.AssessedAt)
		weightedSum += a.Score * w
		totalWeight += w
		if a.AssessedAt.After(cs.NewestAt) {
			cs.NewestAt = a.AssessedAt
		}
	}
	if totalWeight <= 0 {
		return cs
	}

	cs.Value = domain.ClampScore(weightedSum / totalWeight)
	cs.HasData = true
	cs.SampleCount = len(items)
	return cs
}

// Agreement derives the formal-agreement component from the most
// recent certification date. Agreements are banded, never averaged.
// Absence of any certified record yields AgreementNone with no data.
func (n *Normalizer) Agreement(asOf time.Time, records []domain.AgreementRecord) (domain.ComponentScore, domain.AgreementStatus) {
	cs := domain.ComponentScore{Component: domain.ComponentAgreement}

	// Certifications after asOf do not exist yet from the calculation
	// date's point of view; a backdated recompute must see whatever was
	// in force then.
	var latest *time.Time
	for _, rec := range records {
		if rec.CertifiedAt == nil || rec.CertifiedAt.After(asOf) {
			continue
		}
		if latest == nil || rec.CertifiedAt.After(*latest) {
			latest = rec.CertifiedAt
		}
	}
	if latest == nil {
		return cs, domain.AgreementNone
	}

	ageDays := int(asOf.Sub(*latest).Hours() / 24)
	var status domain.AgreementStatus
	switch {
	case ageDays <= agreementCurrentDays:
		cs.Value, status = agreementCurrentScore, domain.AgreementCurrent
	case ageDays <= agreementRecentDays:
		cs.Value, status = agreementRecentScore, domain.AgreementRecent
	case ageDays <= agreementAgingDays:
		cs.Value, status = agreementAgingScore, domain.AgreementAging
	default:
		cs.Value, status = agreementLapsedScore, domain.AgreementLapsed
	}
	cs.HasData = true
	cs.SampleCount = 1
	cs.NewestAt = *latest
	return cs, status
}

// Categorical computes one 1-4 component per family: per-criterion
// averages across assessments, combined into an unweighted family
// mean. The role-specific family is explicitly not applicable for
// roles that have no such criteria; that is distinct from a zero score.
func (n *Normalizer) Categorical(role domain.RoleCategory, items []domain.CategoricalAssessment) map[domain.CategoricalFamily]domain.ComponentScore {
	byFamily := make(map[domain.CategoricalFamily][]domain.CategoricalAssessment)
	for _, a := range items {
		byFamily[a.Family] = append(byFamily[a.Family], a)
	}

	out := make(map[domain.CategoricalFamily]domain.ComponentScore, len(domain.CategoricalFamilies))
	for _, family := range domain.CategoricalFamilies {
		cs := domain.ComponentScore{Component: string(family)}

		if family == domain.FamilyRoleSpecific && !FamilyApplicable(role, family) {
			cs.NotApplicable = true
			out[family] = cs
			continue
		}

		group := byFamily[family]
		if len(group) == 0 {
			out[family] = cs
			continue
		}

		var familySum float64
		for _, criterion := range familyCriteria[family] {
			var sum float64
			var count int
			for _, a := range group {
				if v, ok := a.Criteria[criterion]; ok {
					sum += float64(v)
					count++
				}
				if a.AssessedAt.After(cs.NewestAt) {
					cs.NewestAt = a.AssessedAt
				}
			}
			if count == 0 {
				familySum += domain.OrdinalMidpoint
				continue
			}
			familySum += sum / float64(count)
		}

		cs.Value = domain.ClampOrdinal(familySum / float64(len(familyCriteria[family])))
		cs.HasData = true
		cs.SampleCount = len(group)
		out[family] = cs
	}
	return out
}

// OrdinalOverall combines the family components into the engine's
// 4-point convention summary, weighted by policy family weights.
// Not-applicable families contribute nothing, not a zero. The second
// return is false when no family has data.
func (n *Normalizer) OrdinalOverall(families map[domain.CategoricalFamily]domain.ComponentScore) (float64, bool, error) {
	var weightedSum, totalWeight float64
	for _, family := range domain.CategoricalFamilies {
		cs := families[family]
		if cs.NotApplicable || !cs.HasData {
			continue
		}
		w, err := n.Policy.FamilyWeight(family)
		if err != nil {
			return 0, false, err
		}
		weightedSum += cs.Value * w
		totalWeight += w
	}
	if totalWeight <= 0 {
		return 0, false, nil
	}
	return domain.ClampOrdinal(weightedSum / totalWeight), true, nil
}

func tagBaseWeight(tag domain.ConfidenceTag) float64 {
	switch tag {
	case domain.TagHigh:
		return 1.0
	case domain.TagMedium:
		return 0.7
	default:
		return 0.4
	}
}

func reputationMultiplier(rep *float64) float64 {
	if rep == nil {
		return defaultReputation
	}
	if *rep < 0 {
		return 0
	}
	if *rep > 1 {
		return 1
	}
	return *rep
}

func recencyMultiplier(asOf, assessedAt time.Time) float64 {
	ageDays := int(asOf.Sub(assessedAt).Hours() / 24)
	switch {
	case ageDays <= recencyNearDays:
		return recencyNearMult
	case ageDays <= recencyMidDays:
		return recencyMidMult
	default:
		return recencyFarMult
	}
}
