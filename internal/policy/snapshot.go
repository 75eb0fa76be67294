// Package policy manages the versioned scoring policy: weight
// configurations, the severity table, and the rating threshold bands.
// Policy rows are append-only with effective dating so any historical
// calculation remains reconstructable.
package policy

import (
	"fmt"
	"math"
	"sort"

	"github.com/unionhall/ratingengine/internal/domain"
)

// Weight scopes as stored in weight_configs.
const (
	ScopeAssessmentType = "assessment_type"
	ScopeComponent      = "component"
	ScopeFamily         = "categorical_family"
)

// Band maps one contiguous score range to a rating tier. Min is
// inclusive; Max is exclusive except on the topmost band.
type Band struct {
	Min  float64
	Max  float64
	Tier domain.RatingTier
}

// Snapshot is the scoring policy active as of one calculation date.
// It is immutable once loaded; a calculation never sees a policy edit
// made after its as-of date.
type Snapshot struct {
	Version          int
	TypeWeights      map[string]float64
	ComponentWeights map[string]float64
	FamilyWeights    map[domain.CategoricalFamily]float64
	SeverityImpacts  map[int]float64
	Bands            []Band
}

// TypeWeight returns the weight for a compliance assessment type.
// A missing mapping is fatal for the calculation, never guessed.
func (s *Snapshot) TypeWeight(name string) (float64, error) {
	w, ok := s.TypeWeights[name]
	if !ok {
		return 0, domain.NewEngineError(domain.ErrPolicyIncomplete.Code,
			fmt.Sprintf("no weight configured for assessment type %q (policy v%d)", name, s.Version))
	}
	return w, nil
}

// ComponentWeight returns the static weight for a scoring component.
func (s *Snapshot) ComponentWeight(name string) (float64, error) {
	w, ok := s.ComponentWeights[name]
	if !ok {
		return 0, domain.NewEngineError(domain.ErrPolicyIncomplete.Code,
			fmt.Sprintf("no weight configured for component %q (policy v%d)", name, s.Version))
	}
	return w, nil
}

// FamilyWeight returns the weight for a categorical family.
func (s *Snapshot) FamilyWeight(f domain.CategoricalFamily) (float64, error) {
	w, ok := s.FamilyWeights[f]
	if !ok {
		return 0, domain.NewEngineError(domain.ErrPolicyIncomplete.Code,
			fmt.Sprintf("no weight configured for categorical family %q (policy v%d)", f, s.Version))
	}
	return w, nil
}

// SeverityImpact maps a 1-5 severity level to its score impact.
func (s *Snapshot) SeverityImpact(level int) (float64, error) {
	v, ok := s.SeverityImpacts[level]
	if !ok {
		return 0, domain.NewEngineError(domain.ErrPolicyIncomplete.Code,
			fmt.Sprintf("no severity impact configured for level %d (policy v%d)", level, s.Version))
	}
	return v, nil
}

// TierFor maps a 0-100 score to its categorical tier.
func (s *Snapshot) TierFor(score float64) (domain.RatingTier, error) {
	for i, b := range s.Bands {
		last := i == len(s.Bands)-1
		if score >= b.Min && (score < b.Max || (last && score <= b.Max)) {
			return b.Tier, nil
		}
	}
	return domain.TierUnknown, domain.NewEngineError(domain.ErrNoThresholdBand.Code,
		fmt.Sprintf("score %.2f falls outside every threshold band (policy v%d)", score, s.Version))
}

// Validate checks the structural invariants of the snapshot: bands must
// partition [0,100] with no gaps or overlaps, and all weights must be
// inside [0,10].
func (s *Snapshot) Validate() error {
	var problems []string

	if len(s.Bands) == 0 {
		problems = append(problems, "no threshold bands")
	} else {
		bands := make([]Band, len(s.Bands))
		copy(bands, s.Bands)
		sort.Slice(bands, func(i, j int) bool { return bands[i].Min < bands[j].Min })

		if bands[0].Min != 0 {
			problems = append(problems, fmt.Sprintf("bands start at %.2f, not 0", bands[0].Min))
		}
		if bands[len(bands)-1].Max != 100 {
			problems = append(problems, fmt.Sprintf("bands end at %.2f, not 100", bands[len(bands)-1].Max))
		}
		for i := 1; i < len(bands); i++ {
			if math.Abs(bands[i].Min-bands[i-1].Max) > 1e-9 {
				problems = append(problems, fmt.Sprintf("gap or overlap between bands at %.2f and %.2f", bands[i-1].Max, bands[i].Min))
			}
		}
		for _, b := range bands {
			if b.Min >= b.Max {
				problems = append(problems, fmt.Sprintf("band [%.2f, %.2f) is empty or inverted", b.Min, b.Max))
			}
		}
	}

	checkWeights := func(label string, m map[string]float64) {
		for name, w := range m {
			if w < 0 || w > 10 {
				problems = append(problems, fmt.Sprintf("%s weight %q = %.2f outside [0, 10]", label, name, w))
			}
		}
	}
	checkWeights("type", s.TypeWeights)
	checkWeights("component", s.ComponentWeights)
	for f, w := range s.FamilyWeights {
		if w < 0 || w > 10 {
			problems = append(problems, fmt.Sprintf("family weight %q = %.2f outside [0, 10]", f, w))
		}
	}

	if len(problems) > 0 {
		return domain.NewEngineError(domain.ErrPolicyIncomplete.Code,
			fmt.Sprintf("policy v%d invalid: %v", s.Version, problems))
	}
	return nil
}
