package rating

import (
	"time"

	"github.com/unionhall/ratingengine/internal/config"
	"github.com/unionhall/ratingengine/internal/domain"
)

// Estimator derives qualitative data-quality grades from assessment
// count and recency. Thresholds are joint: a tier requires both its
// count and its recency bound to hold, and each source has its own
// bands.
type Estimator struct {
	Bands map[string]config.ConfidenceBands
}

// NewEstimator builds an estimator from the runtime configuration.
func NewEstimator(cfg *config.Config) *Estimator {
	return &Estimator{Bands: cfg.Confidence}
}

// Grade returns the confidence grade for one source. Zero assessments
// or a source with no configured bands grade very-low.
func (e *Estimator) Grade(source string, count int, newest time.Time, asOf time.Time) domain.ConfidenceGrade {
	if count <= 0 || newest.IsZero() {
		return domain.ConfidenceVeryLow
	}
	bands, ok := e.Bands[source]
	if !ok {
		return domain.ConfidenceVeryLow
	}

	ageDays := int(asOf.Sub(newest).Hours() / 24)
	switch {
	case count >= bands.HighCount && ageDays <= bands.HighMaxAgeDays:
		return domain.ConfidenceHigh
	case count >= bands.MediumCount && ageDays <= bands.MediumMaxAgeDays:
		return domain.ConfidenceMedium
	case count >= bands.LowCount && ageDays <= bands.LowMaxAgeDays:
		return domain.ConfidenceLow
	default:
		return domain.ConfidenceVeryLow
	}
}

// WeightedGrade pairs one source's grade with the weight that source
// carried in the aggregation.
type WeightedGrade struct {
	Grade  domain.ConfidenceGrade
	Weight float64
}

// Combined blends per-source grades on the 0-1 numeric scale, weighted
// by the same weights the weighting engine used, then re-maps the
// blend to a tier by fixed cutoffs.
func Combined(parts []WeightedGrade) domain.ConfidenceGrade {
	var weightedSum, totalWeight float64
	for _, p := range parts {
		if p.Weight <= 0 {
			continue
		}
		weightedSum += domain.ConfidenceValue(p.Grade) * p.Weight
		totalWeight += p.Weight
	}
	if totalWeight <= 0 {
		return domain.ConfidenceVeryLow
	}

	blend := weightedSum / totalWeight
	switch {
	case blend >= 0.8:
		return domain.ConfidenceHigh
	case blend >= 0.6:
		return domain.ConfidenceMedium
	case blend >= 0.4:
		return domain.ConfidenceLow
	default:
		return domain.ConfidenceVeryLow
	}
}
