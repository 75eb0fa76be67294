package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/unionhall/ratingengine/internal/domain"
)

// validYAML returns a minimal valid configuration.
func validYAML() string {
	return `
db_path: /tmp/ratings.db
log_level: debug
algorithm: hybrid
hybrid_critical_weight: 0.3
lookback:
  compliance_days: 180
`
}

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Valid(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, validYAML())

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DBPath != "/tmp/ratings.db" {
		t.Errorf("DBPath = %q, want /tmp/ratings.db", cfg.DBPath)
	}
	if cfg.Algorithm != "hybrid" {
		t.Errorf("Algorithm = %q, want hybrid", cfg.Algorithm)
	}
	if cfg.HybridCriticalWeight != 0.3 {
		t.Errorf("HybridCriticalWeight = %f, want 0.3", cfg.HybridCriticalWeight)
	}
	// Explicit value kept, unset sibling defaulted.
	if cfg.Lookback.ComplianceDays != 180 {
		t.Errorf("ComplianceDays = %d, want 180", cfg.Lookback.ComplianceDays)
	}
	if cfg.Lookback.ExpertDays != 180 {
		t.Errorf("ExpertDays = %d, want default 180", cfg.Lookback.ExpertDays)
	}
	if cfg.Discrepancy.CriticalGap != 50 {
		t.Errorf("CriticalGap = %f, want default 50", cfg.Discrepancy.CriticalGap)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "db_path: [unclosed")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid YAML, got nil")
	}
}

func TestLoad_MissingDBPath(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "log_level: info\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing db_path, got nil")
	}
	engErr, ok := err.(*domain.EngineError)
	if !ok || engErr.Code != domain.ErrConfigInvalid.Code {
		t.Fatalf("expected ErrConfigInvalid, got %v", err)
	}
}

func TestLoad_UnknownAlgorithm(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "db_path: /tmp/r.db\nalgorithm: median\n")

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for unknown algorithm, got nil")
	}
}

func TestLoad_BadDiscrepancyCutoffs(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
db_path: /tmp/r.db
discrepancy:
  minor_gap: 20
  moderate_gap: 10
  major_gap: 30
  critical_gap: 50
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for non-increasing cutoffs, got nil")
	}
}

func TestDefault_ConfidenceBands(t *testing.T) {
	cfg := Default()
	for _, source := range []string{domain.ComponentProject, domain.ComponentExpert, domain.ComponentAgreement} {
		bands, ok := cfg.Confidence[source]
		if !ok {
			t.Fatalf("no default confidence bands for %s", source)
		}
		if bands.HighCount < bands.MediumCount || bands.MediumCount < bands.LowCount {
			t.Errorf("%s: count thresholds not monotonic: %+v", source, bands)
		}
		if bands.HighMaxAgeDays > bands.MediumMaxAgeDays || bands.MediumMaxAgeDays > bands.LowMaxAgeDays {
			t.Errorf("%s: age thresholds not monotonic: %+v", source, bands)
		}
	}
}
