// Package sqlite implements the fast graph source on an embedded SQLite
// database. Scope, filters, ordering and counts are all evaluated in SQL.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"kbquery/application/ports"
	"kbquery/domain/graph"
)

// Store is a FastGraphSource over SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ ports.FastGraphSource = (*Store)(nil)

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Every pooled connection to :memory: would be a separate database.
	if path == ":memory:" || strings.Contains(path, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := migrate(ctx, db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Import upserts every record of snapshot in one transaction.
func (s *Store) Import(ctx context.Context, snapshot *graph.Snapshot) error {
	if snapshot == nil {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO nodes (id, org_id, domain_id, project_id, team_id, entity_type,
			search_name, search_path, search_props, updated_at, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare node insert: %w", err)
	}
	defer nodeStmt.Close()

	edgeStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO edges (id, org_id, domain_id, project_id, team_id, edge_type,
			source_node_id, target_node_id, updated_at, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare edge insert: %w", err)
	}
	defer edgeStmt.Close()

	for _, n := range snapshot.Nodes {
		if n == nil || n.ID == "" {
			continue
		}
		record, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("encode node %s: %w", n.ID, err)
		}
		if _, err := nodeStmt.ExecContext(ctx,
			n.ID, n.Scope.OrgID, n.Scope.DomainID, n.Scope.ProjectID, n.Scope.TeamID, n.EntityType,
			strings.ToLower(n.DisplayName), strings.ToLower(n.CanonicalPath), strings.ToLower(n.Properties.String()),
			n.UpdatedAt.UnixNano(), string(record),
		); err != nil {
			return fmt.Errorf("insert node %s: %w", n.ID, err)
		}
	}

	for _, e := range snapshot.Edges {
		if e == nil || e.ID == "" {
			continue
		}
		record, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode edge %s: %w", e.ID, err)
		}
		if _, err := edgeStmt.ExecContext(ctx,
			e.ID, e.Scope.OrgID, e.Scope.DomainID, e.Scope.ProjectID, e.Scope.TeamID, e.EdgeType,
			e.SourceNodeID, e.TargetNodeID, e.UpdatedAt.UnixNano(), string(record),
		); err != nil {
			return fmt.Errorf("insert edge %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	s.logger.Info("Imported snapshot",
		zap.Int("nodes", len(snapshot.Nodes)),
		zap.Int("edges", len(snapshot.Edges)),
	)
	return nil
}

// CountNodes returns the exact number of nodes matching where
func (s *Store) CountNodes(ctx context.Context, where ports.NodeWhere) (int, error) {
	c := nodeClause(where)
	return s.count(ctx, "SELECT COUNT(*) FROM nodes"+c.sql(), c.args)
}

// QueryNodes returns up to limit nodes in connection order after afterID
func (s *Store) QueryNodes(ctx context.Context, where ports.NodeWhere, limit int, afterID string) ([]*graph.Node, error) {
	if limit <= 0 {
		return []*graph.Node{}, nil
	}
	c := nodeClause(where)
	c.after("nodes", afterID)
	query := "SELECT record FROM nodes" + c.sql() + " ORDER BY updated_at DESC, id DESC LIMIT ?"

	records, err := s.records(ctx, query, append(c.args, limit))
	if err != nil {
		return nil, fmt.Errorf("query nodes: %w", err)
	}
	nodes := make([]*graph.Node, 0, len(records))
	for _, raw := range records {
		var n graph.Node
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("decode node: %w", err)
		}
		nodes = append(nodes, &n)
	}
	return nodes, nil
}

// CountEdges returns the exact number of edges matching where
func (s *Store) CountEdges(ctx context.Context, where ports.EdgeWhere) (int, error) {
	c := edgeClause(where)
	return s.count(ctx, "SELECT COUNT(*) FROM edges"+c.sql(), c.args)
}

// QueryEdges returns up to limit edges in connection order after afterID
func (s *Store) QueryEdges(ctx context.Context, where ports.EdgeWhere, limit int, afterID string) ([]*graph.Edge, error) {
	if limit <= 0 {
		return []*graph.Edge{}, nil
	}
	c := edgeClause(where)
	c.after("edges", afterID)
	query := "SELECT record FROM edges" + c.sql() + " ORDER BY updated_at DESC, id DESC LIMIT ?"

	records, err := s.records(ctx, query, append(c.args, limit))
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	edges := make([]*graph.Edge, 0, len(records))
	for _, raw := range records {
		var e graph.Edge
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode edge: %w", err)
		}
		edges = append(edges, &e)
	}
	return edges, nil
}

// GroupCounts groups the scoped population with GROUP BY
func (s *Store) GroupCounts(ctx context.Context, scope graph.Scope) (*graph.GroupCounts, error) {
	nodes := nodeClause(ports.NodeWhere{Scope: scope})
	edges := edgeClause(ports.EdgeWhere{Scope: scope})

	var out graph.GroupCounts
	groups := []struct {
		dst    *[]graph.GroupCount
		table  string
		column string
		c      clause
	}{
		{&out.NodeTypes, "nodes", "entity_type", nodes},
		{&out.EdgeTypes, "edges", "edge_type", edges},
		{&out.Projects, "nodes", "project_id", nodes},
		{&out.Domains, "nodes", "domain_id", nodes},
		{&out.Teams, "nodes", "team_id", nodes},
	}
	for _, g := range groups {
		counts, err := s.groupBy(ctx, g.table, g.column, g.c)
		if err != nil {
			return nil, err
		}
		*g.dst = counts
	}
	return &out, nil
}

func (s *Store) groupBy(ctx context.Context, table, column string, c clause) ([]graph.GroupCount, error) {
	query := fmt.Sprintf("SELECT %[1]s, COUNT(*) FROM %[2]s%[3]s AND %[1]s <> '' GROUP BY %[1]s ORDER BY %[1]s",
		column, table, c.sql())

	rows, err := s.db.QueryContext(ctx, query, c.args...)
	if err != nil {
		return nil, fmt.Errorf("group %s by %s: %w", table, column, err)
	}
	defer rows.Close()

	out := make([]graph.GroupCount, 0)
	for rows.Next() {
		var gc graph.GroupCount
		if err := rows.Scan(&gc.Value, &gc.Count); err != nil {
			return nil, err
		}
		out = append(out, gc)
	}
	return out, rows.Err()
}

func (s *Store) count(ctx context.Context, query string, args []any) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

func (s *Store) records(ctx context.Context, query string, args []any) ([][]byte, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}
