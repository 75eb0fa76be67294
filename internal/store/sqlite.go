// Package store provides SQLite-backed persistence for the rating engine.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS organizations (
	org_id              TEXT PRIMARY KEY,
	name                TEXT NOT NULL,
	role                TEXT NOT NULL DEFAULT 'unknown',
	integrity_violation INTEGER NOT NULL DEFAULT 0,
	created_at          INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS compliance_assessments (
	id          TEXT PRIMARY KEY,
	org_id      TEXT NOT NULL,
	type        TEXT NOT NULL,
	severity    INTEGER NOT NULL,
	confidence  TEXT NOT NULL DEFAULT 'medium',
	assessed_at INTEGER NOT NULL,
	active      INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_compliance_org_date ON compliance_assessments(org_id, assessed_at);

CREATE TABLE IF NOT EXISTS expert_assessments (
	id          TEXT PRIMARY KEY,
	org_id      TEXT NOT NULL,
	score       REAL NOT NULL,
	confidence  TEXT NOT NULL DEFAULT 'medium',
	expert_id   TEXT NOT NULL DEFAULT '',
	reputation  REAL,
	assessed_at INTEGER NOT NULL,
	active      INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_expert_org_date ON expert_assessments(org_id, assessed_at);

CREATE TABLE IF NOT EXISTS agreement_records (
	id           TEXT PRIMARY KEY,
	org_id       TEXT NOT NULL,
	certified_at INTEGER,
	lodged_at    INTEGER,
	signed_at    INTEGER,
	voted_at     INTEGER,
	active       INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_agreements_org ON agreement_records(org_id);

CREATE TABLE IF NOT EXISTS categorical_assessments (
	id            TEXT PRIMARY KEY,
	org_id        TEXT NOT NULL,
	family        TEXT NOT NULL,
	criteria_json TEXT NOT NULL DEFAULT '{}',
	overall       INTEGER NOT NULL DEFAULT 0,
	assessed_at   INTEGER NOT NULL,
	active        INTEGER NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS idx_categorical_org_family ON categorical_assessments(org_id, family);

CREATE TABLE IF NOT EXISTS weight_configs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	scope          TEXT NOT NULL,
	name           TEXT NOT NULL,
	weight         REAL NOT NULL,
	version        INTEGER NOT NULL DEFAULT 1,
	active         INTEGER NOT NULL DEFAULT 1,
	effective_from INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_weights_scope_name ON weight_configs(scope, name, version);

CREATE TABLE IF NOT EXISTS severity_levels (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	level          INTEGER NOT NULL,
	impact         REAL NOT NULL,
	version        INTEGER NOT NULL DEFAULT 1,
	active         INTEGER NOT NULL DEFAULT 1,
	effective_from INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS threshold_bands (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	min_score      REAL NOT NULL,
	max_score      REAL NOT NULL,
	tier           TEXT NOT NULL,
	version        INTEGER NOT NULL DEFAULT 1,
	active         INTEGER NOT NULL DEFAULT 1,
	effective_from INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS final_ratings (
	id                TEXT PRIMARY KEY,
	org_id            TEXT NOT NULL,
	as_of_date        TEXT NOT NULL,
	score             REAL NOT NULL DEFAULT 0.0,
	tier              TEXT NOT NULL,
	ordinal_score     REAL NOT NULL DEFAULT 0.0,
	components_json   TEXT NOT NULL DEFAULT '[]',
	agreement_status  TEXT NOT NULL DEFAULT 'none',
	confidence        TEXT NOT NULL DEFAULT 'very_low',
	discrepancy_level TEXT NOT NULL DEFAULT 'none',
	review_required   INTEGER NOT NULL DEFAULT 0,
	gate_applied      INTEGER NOT NULL DEFAULT 0,
	gate_reason       TEXT NOT NULL DEFAULT '',
	gates_json        TEXT NOT NULL DEFAULT '[]',
	policy_version    INTEGER NOT NULL DEFAULT 0,
	algorithm         TEXT NOT NULL DEFAULT '',
	expires_at        INTEGER NOT NULL DEFAULT 0,
	next_review_at    INTEGER NOT NULL DEFAULT 0,
	created_at        INTEGER NOT NULL DEFAULT 0,
	UNIQUE(org_id, as_of_date)
);
CREATE INDEX IF NOT EXISTS idx_ratings_org_date ON final_ratings(org_id, as_of_date);

CREATE TABLE IF NOT EXISTS rating_history (
	id                      TEXT PRIMARY KEY,
	org_id                  TEXT NOT NULL,
	from_rating_id          TEXT NOT NULL DEFAULT '',
	to_rating_id            TEXT NOT NULL,
	score_delta             REAL NOT NULL DEFAULT 0.0,
	from_tier               TEXT NOT NULL DEFAULT '',
	to_tier                 TEXT NOT NULL DEFAULT '',
	tier_changed            INTEGER NOT NULL DEFAULT 0,
	changed_components_json TEXT NOT NULL DEFAULT '[]',
	created_at              INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_history_org ON rating_history(org_id, created_at);

CREATE TABLE IF NOT EXISTS discrepancy_records (
	id          TEXT PRIMARY KEY,
	org_id      TEXT NOT NULL,
	component_a TEXT NOT NULL,
	component_b TEXT NOT NULL,
	score_a     REAL NOT NULL,
	score_b     REAL NOT NULL,
	level       TEXT NOT NULL,
	resolution  TEXT NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_discrepancy_org ON discrepancy_records(org_id);

CREATE TABLE IF NOT EXISTS audit_records (
	id             TEXT PRIMARY KEY,
	org_id         TEXT NOT NULL,
	as_of_date     TEXT NOT NULL,
	action         TEXT NOT NULL,
	breakdown_json TEXT NOT NULL DEFAULT '{}',
	gates_json     TEXT NOT NULL DEFAULT '[]',
	policy_version INTEGER NOT NULL DEFAULT 0,
	created_at     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_audit_org ON audit_records(org_id);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
