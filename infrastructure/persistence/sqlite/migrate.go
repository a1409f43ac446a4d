package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"
)

// migration moves the schema from version-1 to version.
type migration struct {
	version     int
	description string
	up          string
}

// migrations are applied in order; the applied version is kept in
// PRAGMA user_version.
var migrations = []migration{
	{
		version:     1,
		description: "nodes and edges tables",
		up: `
CREATE TABLE IF NOT EXISTS nodes (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	domain_id TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL DEFAULT '',
	team_id TEXT NOT NULL DEFAULT '',
	entity_type TEXT NOT NULL,
	search_name TEXT NOT NULL,
	search_path TEXT NOT NULL,
	search_props TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	record JSON NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_order ON nodes(org_id, updated_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_nodes_type ON nodes(org_id, entity_type);

CREATE TABLE IF NOT EXISTS edges (
	id TEXT PRIMARY KEY,
	org_id TEXT NOT NULL,
	domain_id TEXT NOT NULL DEFAULT '',
	project_id TEXT NOT NULL DEFAULT '',
	team_id TEXT NOT NULL DEFAULT '',
	edge_type TEXT NOT NULL,
	source_node_id TEXT NOT NULL,
	target_node_id TEXT NOT NULL,
	updated_at INTEGER NOT NULL,
	record JSON NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_edges_order ON edges(org_id, updated_at DESC, id DESC);
CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(org_id, source_node_id);
CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(org_id, target_node_id);
`,
	},
	{
		version:     2,
		description: "edge type index for facet grouping",
		up:          `CREATE INDEX IF NOT EXISTS idx_edges_type ON edges(org_id, edge_type);`,
	},
}

// latestVersion is the schema version Open migrates to.
func latestVersion() int {
	return migrations[len(migrations)-1].version
}

func schemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var v int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// migrate applies every migration above the current version, each in its
// own transaction.
func migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}
	if current > latestVersion() {
		return fmt.Errorf("schema version %d is newer than supported version %d", current, latestVersion())
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if m.version != current+1 {
			return fmt.Errorf("no migration found from version %d to %d", current, current+1)
		}
		if err := apply(ctx, db, m); err != nil {
			return fmt.Errorf("migration %d->%d failed: %w", current, m.version, err)
		}
		logger.Info("Applied SQLite migration",
			zap.Int("version", m.version),
			zap.String("description", m.description),
		)
		current = m.version
	}
	return nil
}

func apply(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.up); err != nil {
		return err
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", m.version)); err != nil {
		return err
	}
	return tx.Commit()
}
