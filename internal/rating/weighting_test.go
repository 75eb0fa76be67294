package rating

import (
	"errors"
	"math"
	"testing"

	"github.com/unionhall/ratingengine/internal/domain"
)

func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

func TestWeightedAverage_SkipsCriticalComponents(t *testing.T) {
	inputs := []WeightedScore{
		{Component: domain.ComponentProject, Score: 40, Weight: 0.9, HasData: true},
		{Component: domain.ComponentExpert, Score: 90, Weight: 0.1, HasData: true},
		{Component: domain.ComponentAgreement, Score: 100, Weight: 8, Critical: true, HasData: true},
	}
	// (40*0.9 + 90*0.1) / 1.0 = 45; the critical agreement stays out.
	got, err := WeightedAverage{}.Aggregate(inputs)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !almostEqual(got, 45, 0.01) {
		t.Errorf("expected 45, got %f", got)
	}
}

func TestWeightedAverage_SkipsNoData(t *testing.T) {
	inputs := []WeightedScore{
		{Component: domain.ComponentProject, Score: 0, Weight: 0, HasData: false},
		{Component: domain.ComponentExpert, Score: 90, Weight: 1.0, HasData: true},
	}
	got, err := WeightedAverage{}.Aggregate(inputs)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !almostEqual(got, 90, 0.01) {
		t.Errorf("expected 90, got %f", got)
	}
}

func TestWeightedAverage_NoScorableComponents(t *testing.T) {
	inputs := []WeightedScore{
		{Component: domain.ComponentProject, HasData: false},
		{Component: domain.ComponentAgreement, Score: 100, Weight: 8, Critical: true, HasData: true},
	}
	_, err := WeightedAverage{}.Aggregate(inputs)
	if !errors.Is(err, domain.ErrNoScorableComponents) {
		t.Fatalf("expected ErrNoScorableComponents, got %v", err)
	}
}

func TestWeightedSum_Clamps(t *testing.T) {
	inputs := []WeightedScore{
		{Component: domain.ComponentProject, Score: 80, Weight: 1.0, HasData: true},
		{Component: domain.ComponentExpert, Score: 90, Weight: 1.0, HasData: true},
	}
	// 80 + 90 = 170, clamped to 100.
	got, err := WeightedSum{}.Aggregate(inputs)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got != 100 {
		t.Errorf("expected clamp to 100, got %f", got)
	}
}

func TestMinimumOfCritical(t *testing.T) {
	inputs := []WeightedScore{
		{Component: domain.ComponentProject, Score: 20, Weight: 0.5, HasData: true},
		{Component: domain.ComponentAgreement, Score: 60, Weight: 8, Critical: true, HasData: true},
	}
	got, err := MinimumOfCritical{}.Aggregate(inputs)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if got != 60 {
		t.Errorf("expected 60 (worst critical), got %f", got)
	}
}

func TestMinimumOfCritical_NoCriticalData(t *testing.T) {
	inputs := []WeightedScore{
		{Component: domain.ComponentProject, Score: 20, Weight: 0.5, HasData: true},
		{Component: domain.ComponentAgreement, Critical: true, HasData: false},
	}
	_, err := MinimumOfCritical{}.Aggregate(inputs)
	if !errors.Is(err, domain.ErrNoCriticalComponents) {
		t.Fatalf("expected ErrNoCriticalComponents, got %v", err)
	}
}

func TestHybrid_BlendsCritical(t *testing.T) {
	h := Hybrid{CriticalWeight: 0.2}
	inputs := []WeightedScore{
		{Component: domain.ComponentProject, Score: 50, Weight: 1.0, HasData: true},
		{Component: domain.ComponentAgreement, Score: 100, Weight: 8, Critical: true, HasData: true},
	}
	// base = 50, critical = 100: 50*0.8 + 100*0.2 = 60
	got, err := h.Aggregate(inputs)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !almostEqual(got, 60, 0.01) {
		t.Errorf("expected 60, got %f", got)
	}
}

func TestHybrid_DegradesWithoutCritical(t *testing.T) {
	h := Hybrid{CriticalWeight: 0.2}
	inputs := []WeightedScore{
		{Component: domain.ComponentProject, Score: 50, Weight: 1.0, HasData: true},
		{Component: domain.ComponentAgreement, Critical: true, HasData: false},
	}
	got, err := h.Aggregate(inputs)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !almostEqual(got, 50, 0.01) {
		t.Errorf("expected plain average 50, got %f", got)
	}
}

func TestHybrid_CriticalOnly(t *testing.T) {
	h := Hybrid{CriticalWeight: 0.2}
	inputs := []WeightedScore{
		{Component: domain.ComponentAgreement, Score: 85, Weight: 8, Critical: true, HasData: true},
	}
	got, err := h.Aggregate(inputs)
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !almostEqual(got, 85, 0.01) {
		t.Errorf("expected 85, got %f", got)
	}
}

func TestRegistry_KnownAndUnknown(t *testing.T) {
	reg := NewRegistry(0.2)
	for _, name := range []string{"weighted_average", "weighted_sum", "minimum_of_critical", "hybrid"} {
		a, err := reg.Get(name)
		if err != nil {
			t.Fatalf("Get(%q): %v", name, err)
		}
		if a.Name() != name {
			t.Errorf("expected %q, got %q", name, a.Name())
		}
	}
	if _, err := reg.Get("median"); !errors.Is(err, domain.ErrUnknownAlgorithm) {
		t.Fatalf("expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestConsidersCritical(t *testing.T) {
	cases := map[string]bool{
		"weighted_average":    false,
		"weighted_sum":        false,
		"minimum_of_critical": true,
		"hybrid":              true,
	}
	reg := NewRegistry(0.2)
	for name, want := range cases {
		a, err := reg.Get(name)
		if err != nil {
			t.Fatalf("Get(%q): %v", name, err)
		}
		if a.ConsidersCritical() != want {
			t.Errorf("%s: ConsidersCritical = %v, want %v", name, a.ConsidersCritical(), want)
		}
	}
}

func TestDynamicWeights(t *testing.T) {
	cases := []struct {
		count   int
		project float64
	}{
		{0, 0.0},
		{1, 0.1},
		{5, 0.5},
		{9, 0.9},
		{10, 0.9},
		{40, 0.9},
	}
	for _, c := range cases {
		pw, ew := DynamicWeights(c.count)
		if !almostEqual(pw, c.project, 0.001) {
			t.Errorf("count %d: expected project weight %f, got %f", c.count, c.project, pw)
		}
		if !almostEqual(pw+ew, 1.0, 0.001) {
			t.Errorf("count %d: weights do not sum to 1 (%f + %f)", c.count, pw, ew)
		}
	}
}

func TestFamilyApplicable(t *testing.T) {
	if FamilyApplicable(domain.RoleTrade, domain.FamilyRoleSpecific) {
		t.Error("role-specific family should not apply to trade contractors")
	}
	if !FamilyApplicable(domain.RoleGeneral, domain.FamilyRoleSpecific) {
		t.Error("role-specific family should apply to general contractors")
	}
	if !FamilyApplicable(domain.RoleBoth, domain.FamilyRoleSpecific) {
		t.Error("role-specific family should apply to dual-role organizations")
	}
	if !FamilyApplicable(domain.RoleTrade, domain.FamilySafety) {
		t.Error("safety family should apply to every role")
	}
}
