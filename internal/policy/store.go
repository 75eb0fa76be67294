package policy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/unionhall/ratingengine/internal/domain"
)

// Store loads and evolves the versioned policy tables. Rows are only
// ever appended or deactivated; a deactivated row still serves
// snapshots for dates before its replacement took effect.
type Store struct {
	DB *sql.DB
}

// NewStore creates a policy store over an open database.
func NewStore(db *sql.DB) *Store {
	return &Store{DB: db}
}

// SnapshotAsOf reconstructs the policy that was (or is) in force at the
// given date: for each key, the highest-versioned row whose
// effective_from is not after asOf.
func (s *Store) SnapshotAsOf(ctx context.Context, asOf time.Time) (*Snapshot, error) {
	snap := &Snapshot{
		TypeWeights:      map[string]float64{},
		ComponentWeights: map[string]float64{},
		FamilyWeights:    map[domain.CategoricalFamily]float64{},
		SeverityImpacts:  map[int]float64{},
	}
	cutoff := asOf.Unix()

	// Weights: rows ordered by version ascending so later versions
	// overwrite earlier ones per (scope, name).
	rows, err := s.DB.QueryContext(ctx,
		`SELECT scope, name, weight, version FROM weight_configs
WHERE effective_from <= ? ORDER BY version ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("load weight configs: %w", err)
	}
	defer rows.Close()

	any := false
	for rows.Next() {
		var scope, name string
		var weight float64
		var version int
		if err := rows.Scan(&scope, &name, &weight, &version); err != nil {
			return nil, fmt.Errorf("scan weight config: %w", err)
		}
		any = true
		if version > snap.Version {
			snap.Version = version
		}
		switch scope {
		case ScopeAssessmentType:
			snap.TypeWeights[name] = weight
		case ScopeComponent:
			snap.ComponentWeights[name] = weight
		case ScopeFamily:
			snap.FamilyWeights[domain.CategoricalFamily(name)] = weight
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate weight configs: %w", err)
	}
	if !any {
		return nil, domain.ErrPolicyNotSeeded
	}

	// Severity impacts, same overwrite-by-version scheme.
	sevRows, err := s.DB.QueryContext(ctx,
		`SELECT level, impact, version FROM severity_levels
WHERE effective_from <= ? ORDER BY version ASC`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("load severity levels: %w", err)
	}
	defer sevRows.Close()
	for sevRows.Next() {
		var level int
		var impact float64
		var version int
		if err := sevRows.Scan(&level, &impact, &version); err != nil {
			return nil, fmt.Errorf("scan severity level: %w", err)
		}
		if version > snap.Version {
			snap.Version = version
		}
		snap.SeverityImpacts[level] = impact
	}
	if err := sevRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate severity levels: %w", err)
	}

	// Threshold bands are replaced as a whole set per version: take the
	// highest version in force, then load that version's bands.
	var bandVersion sql.NullInt64
	err = s.DB.QueryRowContext(ctx,
		`SELECT MAX(version) FROM threshold_bands WHERE effective_from <= ?`, cutoff).
		Scan(&bandVersion)
	if err != nil {
		return nil, fmt.Errorf("find band version: %w", err)
	}
	if bandVersion.Valid {
		bandRows, err := s.DB.QueryContext(ctx,
			`SELECT min_score, max_score, tier FROM threshold_bands
WHERE version = ? ORDER BY min_score ASC`, bandVersion.Int64)
		if err != nil {
			return nil, fmt.Errorf("load threshold bands: %w", err)
		}
		defer bandRows.Close()
		for bandRows.Next() {
			var b Band
			var tier string
			if err := bandRows.Scan(&b.Min, &b.Max, &tier); err != nil {
				return nil, fmt.Errorf("scan threshold band: %w", err)
			}
			b.Tier = domain.RatingTier(tier)
			snap.Bands = append(snap.Bands, b)
		}
		if err := bandRows.Err(); err != nil {
			return nil, fmt.Errorf("iterate threshold bands: %w", err)
		}
		if int(bandVersion.Int64) > snap.Version {
			snap.Version = int(bandVersion.Int64)
		}
	}

	if err := snap.Validate(); err != nil {
		return nil, err
	}
	return snap, nil
}

// Seed writes a complete policy version from a seed file. Prior rows
// are deactivated, never removed, so earlier snapshots still resolve.
func (s *Store) Seed(ctx context.Context, seed *SeedFile, effectiveFrom time.Time) error {
	version, err := s.nextVersion(ctx)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	eff := effectiveFrom.Unix()

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"weight_configs", "severity_levels", "threshold_bands"} {
		if _, err := tx.ExecContext(ctx, "UPDATE "+table+" SET active = 0 WHERE active = 1"); err != nil {
			return fmt.Errorf("deactivate %s: %w", table, err)
		}
	}

	const weightQ = `INSERT INTO weight_configs (scope, name, weight, version, active, effective_from, created_at)
VALUES (?, ?, ?, ?, 1, ?, ?)`
	insertWeights := func(scope string, m map[string]float64) error {
		for name, w := range m {
			if _, err := tx.ExecContext(ctx, weightQ, scope, name, w, version, eff, now); err != nil {
				return fmt.Errorf("insert %s weight %q: %w", scope, name, err)
			}
		}
		return nil
	}
	if err := insertWeights(ScopeAssessmentType, seed.TypeWeights); err != nil {
		return err
	}
	if err := insertWeights(ScopeComponent, seed.ComponentWeights); err != nil {
		return err
	}
	if err := insertWeights(ScopeFamily, seed.FamilyWeights); err != nil {
		return err
	}

	const sevQ = `INSERT INTO severity_levels (level, impact, version, active, effective_from, created_at)
VALUES (?, ?, ?, 1, ?, ?)`
	for level, impact := range seed.SeverityImpacts {
		if _, err := tx.ExecContext(ctx, sevQ, level, impact, version, eff, now); err != nil {
			return fmt.Errorf("insert severity level %d: %w", level, err)
		}
	}

	const bandQ = `INSERT INTO threshold_bands (min_score, max_score, tier, version, active, effective_from, created_at)
VALUES (?, ?, ?, ?, 1, ?, ?)`
	for _, b := range seed.ThresholdBands {
		if _, err := tx.ExecContext(ctx, bandQ, b.Min, b.Max, b.Tier, version, eff, now); err != nil {
			return fmt.Errorf("insert threshold band [%.1f, %.1f): %w", b.Min, b.Max, err)
		}
	}

	return tx.Commit()
}

// SetWeight appends a new version for a single weight key. The prior
// row is deactivated but kept for historical snapshots.
func (s *Store) SetWeight(ctx context.Context, scope, name string, weight float64, effectiveFrom time.Time) error {
	if weight < 0 || weight > 10 {
		return domain.NewEngineError(domain.ErrPolicyIncomplete.Code,
			fmt.Sprintf("weight %.2f outside [0, 10]", weight))
	}
	version, err := s.nextVersion(ctx)
	if err != nil {
		return err
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE weight_configs SET active = 0 WHERE scope = ? AND name = ? AND active = 1`,
		scope, name); err != nil {
		return fmt.Errorf("deactivate prior weight: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO weight_configs (scope, name, weight, version, active, effective_from, created_at)
VALUES (?, ?, ?, ?, 1, ?, ?)`,
		scope, name, weight, version, effectiveFrom.Unix(), time.Now().Unix()); err != nil {
		return fmt.Errorf("insert weight: %w", err)
	}

	return tx.Commit()
}

func (s *Store) nextVersion(ctx context.Context) (int, error) {
	var max sql.NullInt64
	err := s.DB.QueryRowContext(ctx, `SELECT MAX(v) FROM (
SELECT MAX(version) AS v FROM weight_configs
UNION ALL SELECT MAX(version) FROM severity_levels
UNION ALL SELECT MAX(version) FROM threshold_bands)`).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("find max policy version: %w", err)
	}
	if !max.Valid {
		return 1, nil
	}
	return int(max.Int64) + 1, nil
}
