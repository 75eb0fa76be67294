package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/unionhall/ratingengine/internal/domain"
)

// SeedBand is the YAML shape of one threshold band.
type SeedBand struct {
	Min  float64 `yaml:"min"`
	Max  float64 `yaml:"max"`
	Tier string  `yaml:"tier"`
}

// SeedFile is a complete policy version expressed as YAML, loaded by
// the seed command or shipped as the built-in default.
type SeedFile struct {
	TypeWeights      map[string]float64 `yaml:"type_weights"`
	ComponentWeights map[string]float64 `yaml:"component_weights"`
	FamilyWeights    map[string]float64 `yaml:"family_weights"`
	SeverityImpacts  map[int]float64    `yaml:"severity_impacts"`
	ThresholdBands   []SeedBand         `yaml:"threshold_bands"`
}

// LoadSeedFile reads and parses a YAML policy seed.
func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy seed: %w", err)
	}
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse policy seed YAML: %w", err)
	}
	if err := seed.check(); err != nil {
		return nil, err
	}
	return &seed, nil
}

func (s *SeedFile) check() error {
	var problems []string
	if len(s.TypeWeights) == 0 {
		problems = append(problems, "type_weights is empty")
	}
	if len(s.SeverityImpacts) == 0 {
		problems = append(problems, "severity_impacts is empty")
	}
	if len(s.ThresholdBands) == 0 {
		problems = append(problems, "threshold_bands is empty")
	}
	if len(problems) > 0 {
		return domain.NewEngineError(domain.ErrPolicyIncomplete.Code,
			fmt.Sprintf("policy seed invalid: %v", problems))
	}
	return nil
}

// DefaultSeed returns the built-in policy used when no seed file is
// supplied. Values mirror the standard field-operations policy.
func DefaultSeed() *SeedFile {
	return &SeedFile{
		TypeWeights: map[string]float64{
			"payment_history":          3.0,
			"safety_incidents":         4.0,
			"agreement_adherence":      3.0,
			"record_keeping":           2.0,
			"subcontracting_practices": 2.0,
		},
		ComponentWeights: map[string]float64{
			domain.ComponentProject:   5.0,
			domain.ComponentExpert:    3.0,
			domain.ComponentAgreement: 8.0,
		},
		FamilyWeights: map[string]float64{
			string(domain.FamilyRelationship):  3.0,
			string(domain.FamilySafety):        4.0,
			string(domain.FamilySubcontractor): 2.0,
			string(domain.FamilyRoleSpecific):  2.0,
		},
		SeverityImpacts: map[int]float64{
			1: 90,
			2: 70,
			3: 50,
			4: 30,
			5: 10,
		},
		ThresholdBands: []SeedBand{
			{Min: 0, Max: 25, Tier: string(domain.TierCritical)},
			{Min: 25, Max: 50, Tier: string(domain.TierRed)},
			{Min: 50, Max: 75, Tier: string(domain.TierAmber)},
			{Min: 75, Max: 100, Tier: string(domain.TierGreen)},
		},
	}
}
