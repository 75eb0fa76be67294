package rating

import (
	"math"

	"github.com/unionhall/ratingengine/internal/config"
	"github.com/unionhall/ratingengine/internal/domain"
	"github.com/unionhall/ratingengine/internal/policy"
)

// Finding is the outcome of comparing two independently derived
// component scores.
type Finding struct {
	Level          domain.DiscrepancyLevel
	Gap            float64
	TierMismatch   bool
	RequiresReview bool
	Resolution     string
}

// Detector classifies disagreement between two component scores into
// discrepancy levels and decides whether automatic reconciliation
// suffices.
type Detector struct {
	Cutoffs config.DiscrepancyConfig
	Policy  *policy.Snapshot
}

// NewDetector builds a detector for one calculation's policy snapshot.
func NewDetector(cutoffs config.DiscrepancyConfig, snap *policy.Snapshot) *Detector {
	return &Detector{Cutoffs: cutoffs, Policy: snap}
}

// Compare classifies the disagreement between two component scores.
// Returns nil when either side has no data: a missing source is a
// confidence problem, not a discrepancy. When the two sides map to
// different categorical tiers the level escalates one step beyond what
// the numeric gap alone would give.
func (d *Detector) Compare(a, b domain.ComponentScore) (*Finding, error) {
	if !a.HasData || !b.HasData {
		return nil, nil
	}

	gap := math.Abs(a.Value - b.Value)
	level := d.levelForGap(gap)

	tierA, err := d.Policy.TierFor(a.Value)
	if err != nil {
		return nil, err
	}
	tierB, err := d.Policy.TierFor(b.Value)
	if err != nil {
		return nil, err
	}

	mismatch := tierA != tierB
	if mismatch {
		level = domain.EscalateDiscrepancy(level)
	}

	f := &Finding{
		Level:        level,
		Gap:          gap,
		TierMismatch: mismatch,
	}
	// Major and critical disagreement always goes to a human,
	// regardless of how confident the rest of the pipeline is.
	if level == domain.DiscrepancyMajor || level == domain.DiscrepancyCritical {
		f.RequiresReview = true
		f.Resolution = domain.ResolutionDeferred
	} else {
		f.Resolution = domain.ResolutionAuto
	}
	return f, nil
}

func (d *Detector) levelForGap(gap float64) domain.DiscrepancyLevel {
	switch {
	case gap >= d.Cutoffs.CriticalGap:
		return domain.DiscrepancyCritical
	case gap >= d.Cutoffs.MajorGap:
		return domain.DiscrepancyMajor
	case gap >= d.Cutoffs.ModerateGap:
		return domain.DiscrepancyModerate
	case gap >= d.Cutoffs.MinorGap:
		return domain.DiscrepancyMinor
	default:
		return domain.DiscrepancyNone
	}
}
