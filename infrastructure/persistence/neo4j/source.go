// Package neo4j serves the generic graph source from a Neo4j database.
// Nodes are :KBNode vertices and edges are :KB_EDGE relationships; each
// carries its full record as a JSON property next to the indexed fields.
package neo4j

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"kbquery/application/ports"
	"kbquery/domain/graph"
	apperrors "kbquery/pkg/errors"
)

const (
	listNodesCypher = `
MATCH (n:KBNode {org_id: $org})
WHERE n.record IS NOT NULL
  AND (size($types) = 0 OR n.entity_type IN $types)
  AND ($search = '' OR n.search_text CONTAINS $search)
RETURN n.record AS record`

	listEdgesCypher = `
MATCH (s:KBNode)-[r:KB_EDGE {org_id: $org}]->(t:KBNode)
WHERE (size($types) = 0 OR r.edge_type IN $types)
  AND ($source = '' OR s.id = $source)
  AND ($target = '' OR t.id = $target)
RETURN r.record AS record`

	getNodeCypher = `
MATCH (n:KBNode {id: $id})
WHERE n.record IS NOT NULL
RETURN n.record AS record
LIMIT 1`

	upsertNodesCypher = `
UNWIND $rows AS row
MERGE (n:KBNode {id: row.id})
SET n.org_id = row.org_id,
    n.entity_type = row.entity_type,
    n.search_text = row.search_text,
    n.record = row.record`

	upsertEdgesCypher = `
UNWIND $rows AS row
MERGE (s:KBNode {id: row.source})
MERGE (t:KBNode {id: row.target})
MERGE (s)-[r:KB_EDGE {id: row.id}]->(t)
SET r.org_id = row.org_id,
    r.edge_type = row.edge_type,
    r.record = row.record`
)

var schemaStatements = []string{
	`CREATE CONSTRAINT kb_node_id IF NOT EXISTS FOR (n:KBNode) REQUIRE n.id IS UNIQUE`,
	`CREATE INDEX kb_node_org IF NOT EXISTS FOR (n:KBNode) ON (n.org_id, n.entity_type)`,
}

// Config holds the connection settings
type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	Timeout     time.Duration
	MaxPoolSize int
}

// Connect opens a driver and verifies connectivity
func Connect(ctx context.Context, cfg Config) (neo4j.DriverWithContext, error) {
	if strings.TrimSpace(cfg.URI) == "" {
		return nil, fmt.Errorf("neo4j: uri required")
	}
	if cfg.User == "" {
		cfg.User = "neo4j"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxPoolSize <= 0 {
		cfg.MaxPoolSize = 50
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.SocketConnectTimeout = cfg.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}
	return driver, nil
}

// Source is a GenericGraphSource backed by Neo4j.
type Source struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *zap.Logger
}

var _ ports.GenericGraphSource = (*Source)(nil)

// NewSource creates a new Source
func NewSource(driver neo4j.DriverWithContext, database string, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{driver: driver, database: database, logger: logger}
}

// Close closes the underlying driver
func (s *Source) Close(ctx context.Context) error {
	if s == nil || s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

// ListNodes returns the org's nodes, narrowed by type and search text
func (s *Source) ListNodes(ctx context.Context, orgID string, entityTypes []string, search string) ([]*graph.Node, error) {
	records, err := s.read(ctx, listNodesCypher, map[string]any{
		"org":    orgID,
		"types":  stringsOrEmpty(entityTypes),
		"search": strings.ToLower(strings.TrimSpace(search)),
	})
	if err != nil {
		return nil, s.unavailable("listNodes", err)
	}
	return decodeNodes(records)
}

// ListEdges returns the org's edges, narrowed by type and endpoints
func (s *Source) ListEdges(ctx context.Context, orgID string, edgeTypes []string, sourceNodeID, targetNodeID string) ([]*graph.Edge, error) {
	records, err := s.read(ctx, listEdgesCypher, map[string]any{
		"org":    orgID,
		"types":  stringsOrEmpty(edgeTypes),
		"source": sourceNodeID,
		"target": targetNodeID,
	})
	if err != nil {
		return nil, s.unavailable("listEdges", err)
	}
	return decodeEdges(records)
}

// GetNodeByID returns the node or nil
func (s *Source) GetNodeByID(ctx context.Context, id string) (*graph.Node, error) {
	records, err := s.read(ctx, getNodeCypher, map[string]any{"id": id})
	if err != nil {
		return nil, s.unavailable("getNodeById", err)
	}
	nodes, err := decodeNodes(records)
	if err != nil || len(nodes) == 0 {
		return nil, err
	}
	return nodes[0], nil
}

// Import upserts the snapshot. Schema creation is best effort.
func (s *Source) Import(ctx context.Context, snapshot *graph.Snapshot) error {
	if snapshot == nil {
		return nil
	}
	nodeRows, err := nodeRows(snapshot.Nodes)
	if err != nil {
		return err
	}
	edgeRows, err := edgeRows(snapshot.Edges)
	if err != nil {
		return err
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		res, err := session.Run(ctx, stmt, nil)
		if err != nil {
			s.logger.Warn("Neo4j schema init failed (continuing)", zap.Error(err))
			continue
		}
		_, _ = res.Consume(ctx)
	}

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(nodeRows) > 0 {
			if _, err := tx.Run(ctx, upsertNodesCypher, map[string]any{"rows": nodeRows}); err != nil {
				return nil, err
			}
		}
		if len(edgeRows) > 0 {
			if _, err := tx.Run(ctx, upsertEdgesCypher, map[string]any{"rows": edgeRows}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4j import: %w", err)
	}

	s.logger.Info("Imported snapshot into Neo4j",
		zap.Int("nodes", len(nodeRows)),
		zap.Int("edges", len(edgeRows)),
	)
	return nil
}

func (s *Source) read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeRead,
		DatabaseName: s.database,
	})
	defer session.Close(ctx)

	out, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	records, _ := out.([]*neo4j.Record)
	return records, nil
}

func (s *Source) unavailable(op string, err error) error {
	s.logger.Debug("Neo4j read failed", zap.String("operation", op), zap.Error(err))
	return apperrors.NewSourceUnavailableError("neo4j", err).
		WithDetails(map[string]interface{}{"operation": op})
}

func nodeRows(nodes []*graph.Node) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			continue
		}
		record, err := json.Marshal(n)
		if err != nil {
			return nil, fmt.Errorf("encode node %s: %w", n.ID, err)
		}
		rows = append(rows, map[string]any{
			"id":          n.ID,
			"org_id":      n.Scope.OrgID,
			"entity_type": n.EntityType,
			"search_text": searchText(n),
			"record":      string(record),
		})
	}
	return rows, nil
}

func edgeRows(edges []*graph.Edge) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		if e == nil || e.ID == "" || e.SourceNodeID == "" || e.TargetNodeID == "" {
			continue
		}
		record, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("encode edge %s: %w", e.ID, err)
		}
		rows = append(rows, map[string]any{
			"id":        e.ID,
			"source":    e.SourceNodeID,
			"target":    e.TargetNodeID,
			"org_id":    e.Scope.OrgID,
			"edge_type": e.EdgeType,
			"record":    string(record),
		})
	}
	return rows, nil
}

// searchText is the lowered text CONTAINS runs over
func searchText(n *graph.Node) string {
	return strings.ToLower(strings.Join([]string{n.DisplayName, n.CanonicalPath, n.Properties.String()}, "\n"))
}

func decodeNodes(records []*neo4j.Record) ([]*graph.Node, error) {
	nodes := make([]*graph.Node, 0, len(records))
	for _, rec := range records {
		raw, err := recordJSON(rec)
		if err != nil {
			return nil, err
		}
		var n graph.Node
		if err := json.Unmarshal(raw, &n); err != nil {
			return nil, fmt.Errorf("decode node: %w", err)
		}
		nodes = append(nodes, &n)
	}
	return nodes, nil
}

func decodeEdges(records []*neo4j.Record) ([]*graph.Edge, error) {
	edges := make([]*graph.Edge, 0, len(records))
	for _, rec := range records {
		raw, err := recordJSON(rec)
		if err != nil {
			return nil, err
		}
		var e graph.Edge
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode edge: %w", err)
		}
		edges = append(edges, &e)
	}
	return edges, nil
}

func recordJSON(rec *neo4j.Record) ([]byte, error) {
	v, ok := rec.Get("record")
	if !ok {
		return nil, fmt.Errorf("neo4j: row has no record column")
	}
	raw, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("neo4j: record column is %T, want string", v)
	}
	return []byte(raw), nil
}

func stringsOrEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
