// Package merge classifies and resolves field-level conflicts between
// two edits of the same organization record. It protects the engine's
// inputs during concurrent editing; it plays no part in the rating
// math itself.
package merge

import (
	"strconv"
	"time"
)

// FieldClass groups fields by merge semantics.
type FieldClass string

const (
	// ClassIdentity fields define who the organization is; conflicting
	// edits are never auto-resolved.
	ClassIdentity FieldClass = "identity"
	// ClassContact fields are freely auto-mergeable.
	ClassContact FieldClass = "contact"
	// ClassNumeric fields resolve by the configured numeric strategy.
	ClassNumeric FieldClass = "numeric"
	// ClassDescriptive is the default for everything else.
	ClassDescriptive FieldClass = "descriptive"
)

// NumericStrategy selects how conflicting numeric fields resolve.
type NumericStrategy string

const (
	PreferLarger     NumericStrategy = "prefer_larger"
	PreferMostRecent NumericStrategy = "prefer_most_recent"
)

var fieldClasses = map[string]FieldClass{
	"name":           ClassIdentity,
	"legal_name":     ClassIdentity,
	"abn":            ClassIdentity,
	"registry_id":    ClassIdentity,
	"role":           ClassIdentity,
	"phone":          ClassContact,
	"email":          ClassContact,
	"address":        ClassContact,
	"website":        ClassContact,
	"contact_person": ClassContact,
	"employee_count": ClassNumeric,
	"annual_volume":  ClassNumeric,
	"site_count":     ClassNumeric,
}

// Classify returns the merge class for a field name.
func Classify(field string) FieldClass {
	if c, ok := fieldClasses[field]; ok {
		return c
	}
	return ClassDescriptive
}

// Conflict is one field with different values on the two sides of a
// merge, each stamped with its edit time.
type Conflict struct {
	Field    string
	Ours     string
	Theirs   string
	OursAt   time.Time
	TheirsAt time.Time
}

// Decision is the resolution for one conflict. Auto is false when a
// human must pick the value.
type Decision struct {
	Field  string
	Class  FieldClass
	Value  string
	Auto   bool
	Reason string
}

// Merger resolves field conflicts by class semantics.
type Merger struct {
	Numeric NumericStrategy
}

// NewMerger creates a merger with the given numeric strategy.
func NewMerger(numeric NumericStrategy) *Merger {
	return &Merger{Numeric: numeric}
}

// Resolve decides one conflict.
func (m *Merger) Resolve(c Conflict) Decision {
	class := Classify(c.Field)
	d := Decision{Field: c.Field, Class: class}

	if c.Ours == c.Theirs {
		d.Value = c.Ours
		d.Auto = true
		d.Reason = "values agree"
		return d
	}

	switch class {
	case ClassIdentity:
		d.Auto = false
		d.Reason = "identity fields require human review"
		return d

	case ClassNumeric:
		if m.Numeric == PreferLarger {
			ours, errA := strconv.ParseFloat(c.Ours, 64)
			theirs, errB := strconv.ParseFloat(c.Theirs, 64)
			if errA != nil || errB != nil {
				d.Auto = false
				d.Reason = "numeric field holds non-numeric values"
				return d
			}
			d.Auto = true
			d.Reason = "prefer larger value"
			if ours >= theirs {
				d.Value = c.Ours
			} else {
				d.Value = c.Theirs
			}
			return d
		}
		return m.mostRecent(c, d, "prefer most recent value")

	default:
		// Contact and descriptive fields merge freely.
		return m.mostRecent(c, d, "prefer most recent edit")
	}
}

// ResolveAll decides every conflict and reports whether any decision
// needs a human.
func (m *Merger) ResolveAll(conflicts []Conflict) ([]Decision, bool) {
	var requiresHuman bool
	decisions := make([]Decision, 0, len(conflicts))
	for _, c := range conflicts {
		d := m.Resolve(c)
		if !d.Auto {
			requiresHuman = true
		}
		decisions = append(decisions, d)
	}
	return decisions, requiresHuman
}

func (m *Merger) mostRecent(c Conflict, d Decision, reason string) Decision {
	d.Auto = true
	d.Reason = reason
	if c.TheirsAt.After(c.OursAt) {
		d.Value = c.Theirs
	} else {
		d.Value = c.Ours
	}
	return d
}
