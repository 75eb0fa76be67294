// Package config loads the engine's runtime configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/unionhall/ratingengine/internal/domain"
)

// LookbackConfig sets the assessment windows per source, in days.
type LookbackConfig struct {
	ComplianceDays  int `yaml:"compliance_days"`
	ExpertDays      int `yaml:"expert_days"`
	CategoricalDays int `yaml:"categorical_days"`
	// ProjectCountDays is the trailing window used for the dynamic
	// project/expert weight split.
	ProjectCountDays int `yaml:"project_count_days"`
}

// ConfidenceBands sets the joint count/recency thresholds for one
// source. A tier requires both its count and recency bound to hold.
type ConfidenceBands struct {
	HighCount        int `yaml:"high_count"`
	HighMaxAgeDays   int `yaml:"high_max_age_days"`
	MediumCount      int `yaml:"medium_count"`
	MediumMaxAgeDays int `yaml:"medium_max_age_days"`
	LowCount         int `yaml:"low_count"`
	LowMaxAgeDays    int `yaml:"low_max_age_days"`
}

// DiscrepancyConfig sets the gap cutoffs, on the 0-100 scale, at which
// each discrepancy level begins.
type DiscrepancyConfig struct {
	MinorGap    float64 `yaml:"minor_gap"`
	ModerateGap float64 `yaml:"moderate_gap"`
	MajorGap    float64 `yaml:"major_gap"`
	CriticalGap float64 `yaml:"critical_gap"`
}

// Config holds the engine's runtime configuration.
type Config struct {
	DBPath               string                     `yaml:"db_path"`
	LogLevel             string                     `yaml:"log_level"`
	Algorithm            string                     `yaml:"algorithm"`
	HybridCriticalWeight float64                    `yaml:"hybrid_critical_weight"`
	HistoryEpsilon       float64                    `yaml:"history_epsilon"`
	Lookback             LookbackConfig             `yaml:"lookback"`
	Confidence           map[string]ConfidenceBands `yaml:"confidence"`
	Discrepancy          DiscrepancyConfig          `yaml:"discrepancy"`
}

// Load reads a YAML config file, applies defaults, and validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a config with every default applied and no file read.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills every unset field with its default.
func (c *Config) ApplyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Algorithm == "" {
		c.Algorithm = "weighted_average"
	}
	if c.HybridCriticalWeight == 0 {
		c.HybridCriticalWeight = 0.2
	}
	if c.HistoryEpsilon == 0 {
		c.HistoryEpsilon = 0.01
	}
	if c.Lookback.ComplianceDays == 0 {
		c.Lookback.ComplianceDays = 365
	}
	if c.Lookback.ExpertDays == 0 {
		c.Lookback.ExpertDays = 180
	}
	if c.Lookback.CategoricalDays == 0 {
		c.Lookback.CategoricalDays = 365
	}
	if c.Lookback.ProjectCountDays == 0 {
		c.Lookback.ProjectCountDays = 365
	}
	if c.Confidence == nil {
		c.Confidence = map[string]ConfidenceBands{}
	}
	if _, ok := c.Confidence[domain.ComponentProject]; !ok {
		c.Confidence[domain.ComponentProject] = ConfidenceBands{
			HighCount: 3, HighMaxAgeDays: 90,
			MediumCount: 2, MediumMaxAgeDays: 180,
			LowCount: 1, LowMaxAgeDays: 365,
		}
	}
	if _, ok := c.Confidence[domain.ComponentExpert]; !ok {
		c.Confidence[domain.ComponentExpert] = ConfidenceBands{
			HighCount: 2, HighMaxAgeDays: 60,
			MediumCount: 1, MediumMaxAgeDays: 90,
			LowCount: 1, LowMaxAgeDays: 180,
		}
	}
	if _, ok := c.Confidence[domain.ComponentAgreement]; !ok {
		c.Confidence[domain.ComponentAgreement] = ConfidenceBands{
			HighCount: 1, HighMaxAgeDays: 365,
			MediumCount: 1, MediumMaxAgeDays: 730,
			LowCount: 1, LowMaxAgeDays: 1095,
		}
	}
	if c.Discrepancy.MinorGap == 0 {
		c.Discrepancy.MinorGap = 5
	}
	if c.Discrepancy.ModerateGap == 0 {
		c.Discrepancy.ModerateGap = 15
	}
	if c.Discrepancy.MajorGap == 0 {
		c.Discrepancy.MajorGap = 30
	}
	if c.Discrepancy.CriticalGap == 0 {
		c.Discrepancy.CriticalGap = 50
	}
}

// Validate checks the configuration and returns one error listing all
// problems found.
func (c *Config) Validate() error {
	var problems []string

	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	switch c.Algorithm {
	case "weighted_average", "weighted_sum", "minimum_of_critical", "hybrid":
	default:
		problems = append(problems, fmt.Sprintf("algorithm %q is not one of weighted_average, weighted_sum, minimum_of_critical, hybrid", c.Algorithm))
	}
	if c.HybridCriticalWeight < 0 || c.HybridCriticalWeight > 1 {
		problems = append(problems, "hybrid_critical_weight must be in [0,1]")
	}
	if c.HistoryEpsilon < 0 {
		problems = append(problems, "history_epsilon must not be negative")
	}
	d := c.Discrepancy
	if !(d.MinorGap < d.ModerateGap && d.ModerateGap < d.MajorGap && d.MajorGap < d.CriticalGap) {
		problems = append(problems, "discrepancy gap cutoffs must be strictly increasing")
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}
