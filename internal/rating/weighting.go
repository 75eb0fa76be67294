package rating

import (
	"math"

	"github.com/unionhall/ratingengine/internal/domain"
)

// WeightedScore is one normalized component score plus the weight it
// carries in aggregation. Critical components (the formal agreement)
// reach the aggregate only through the critical-aware algorithms; the
// plain algorithms leave them to the hard gates.
type WeightedScore struct {
	Component string
	Score     float64
	Weight    float64
	Critical  bool
	HasData   bool
}

// Algorithm is one pure aggregation function, selected by
// configuration. The set is closed: the four implementations below.
// ConsidersCritical reports whether critical components carry weight in
// the aggregate; the confidence blend uses it to mirror the weights the
// aggregation actually leaned on.
type Algorithm interface {
	Name() string
	Aggregate(inputs []WeightedScore) (float64, error)
	ConsidersCritical() bool
}

// WeightedAverage is sum(score*weight)/sum(weight) over non-critical
// components with data. Weights normalize automatically.
type WeightedAverage struct{}

// Name returns the algorithm selector string.
func (WeightedAverage) Name() string { return "weighted_average" }

// ConsidersCritical reports that critical components stay out.
func (WeightedAverage) ConsidersCritical() bool { return false }

// Aggregate computes the normalized weighted average.
func (WeightedAverage) Aggregate(inputs []WeightedScore) (float64, error) {
	var weightedSum, totalWeight float64
	for _, in := range inputs {
		if !in.HasData || in.Critical || in.Weight <= 0 {
			continue
		}
		weightedSum += in.Score * in.Weight
		totalWeight += in.Weight
	}
	if totalWeight <= 0 {
		return 0, domain.ErrNoScorableComponents
	}
	return domain.ClampScore(weightedSum / totalWeight), nil
}

// WeightedSum is sum(score*weight), unnormalized. The caller owns
// making the weights sum sensibly; the result is still clamped to the
// scoring domain.
type WeightedSum struct{}

// Name returns the algorithm selector string.
func (WeightedSum) Name() string { return "weighted_sum" }

// ConsidersCritical reports that critical components stay out.
func (WeightedSum) ConsidersCritical() bool { return false }

// Aggregate computes the clamped unnormalized sum.
func (WeightedSum) Aggregate(inputs []WeightedScore) (float64, error) {
	var sum float64
	var any bool
	for _, in := range inputs {
		if !in.HasData || in.Critical || in.Weight <= 0 {
			continue
		}
		sum += in.Score * in.Weight
		any = true
	}
	if !any {
		return 0, domain.ErrNoScorableComponents
	}
	return domain.ClampScore(sum), nil
}

// MinimumOfCritical returns the minimum score among critical
// components, ignoring everything else: one bad critical factor
// dominates.
type MinimumOfCritical struct{}

// Name returns the algorithm selector string.
func (MinimumOfCritical) Name() string { return "minimum_of_critical" }

// ConsidersCritical reports that critical components decide the result.
func (MinimumOfCritical) ConsidersCritical() bool { return true }

// Aggregate returns the worst critical component score.
func (MinimumOfCritical) Aggregate(inputs []WeightedScore) (float64, error) {
	min := math.Inf(1)
	var any bool
	for _, in := range inputs {
		if !in.HasData || !in.Critical {
			continue
		}
		if in.Score < min {
			min = in.Score
		}
		any = true
	}
	if !any {
		return 0, domain.ErrNoCriticalComponents
	}
	return domain.ClampScore(min), nil
}

// Hybrid blends a weighted average of the non-critical components with
// the critical score: base*(1-cw) + critical*cw. With no critical data
// it degrades to the plain weighted average.
type Hybrid struct {
	CriticalWeight float64
}

// Name returns the algorithm selector string.
func (Hybrid) Name() string { return "hybrid" }

// ConsidersCritical reports that critical components carry weight.
func (Hybrid) ConsidersCritical() bool { return true }

// Aggregate computes the blended score.
func (h Hybrid) Aggregate(inputs []WeightedScore) (float64, error) {
	base, baseErr := WeightedAverage{}.Aggregate(inputs)

	var critSum, critWeight float64
	for _, in := range inputs {
		if !in.HasData || !in.Critical {
			continue
		}
		w := in.Weight
		if w <= 0 {
			w = 1
		}
		critSum += in.Score * w
		critWeight += w
	}

	switch {
	case baseErr != nil && critWeight <= 0:
		return 0, domain.ErrNoScorableComponents
	case baseErr != nil:
		return domain.ClampScore(critSum / critWeight), nil
	case critWeight <= 0:
		return base, nil
	}

	critical := critSum / critWeight
	return domain.ClampScore(base*(1-h.CriticalWeight) + critical*h.CriticalWeight), nil
}

// Registry holds the closed set of aggregation algorithms keyed by
// selector name.
type Registry struct {
	algorithms map[string]Algorithm
}

// NewRegistry creates a registry with all four algorithms registered.
func NewRegistry(hybridCriticalWeight float64) *Registry {
	r := &Registry{algorithms: map[string]Algorithm{}}
	for _, a := range []Algorithm{
		WeightedAverage{},
		WeightedSum{},
		MinimumOfCritical{},
		Hybrid{CriticalWeight: hybridCriticalWeight},
	} {
		r.algorithms[a.Name()] = a
	}
	return r
}

// Get returns the algorithm registered under name.
func (r *Registry) Get(name string) (Algorithm, error) {
	a, ok := r.algorithms[name]
	if !ok {
		return nil, domain.ErrUnknownAlgorithm
	}
	return a, nil
}

// DynamicWeights computes the project/expert split from the
// organization's project assessment count over the trailing year:
// projectWeight = min(0.9, 0.1*N). Zero projects means full reliance
// on expert judgment; ten or more caps the split at 90/10 so expert
// judgment never vanishes entirely.
func DynamicWeights(projectCount int) (projectWeight, expertWeight float64) {
	projectWeight = math.Min(0.9, 0.1*float64(projectCount))
	return projectWeight, 1 - projectWeight
}

// FamilyApplicable reports whether a categorical family applies to a
// role. Role-specific criteria exist only for builder-type roles;
// everywhere else the family is marked not applicable rather than
// scored as zero.
func FamilyApplicable(role domain.RoleCategory, family domain.CategoricalFamily) bool {
	if family != domain.FamilyRoleSpecific {
		return true
	}
	return role == domain.RoleGeneral || role == domain.RoleBoth
}
