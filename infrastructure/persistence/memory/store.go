// Package memory provides an in-process graph store backed by ordered
// B-trees. It serves both source contracts and is loaded from snapshots.
package memory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/tidwall/btree"

	"kbquery/application/ports"
	"kbquery/domain/graph"
)

// Store keeps one tree per org in connection order plus id indexes.
// Stored records must not be mutated; replace them with PutNode/PutEdge.
type Store struct {
	mu        sync.RWMutex
	nodes     map[string]*btree.BTreeG[*graph.Node]
	edges     map[string]*btree.BTreeG[*graph.Edge]
	nodesByID map[string]*graph.Node
	edgesByID map[string]*graph.Edge
}

var (
	_ ports.FastGraphSource    = (*Store)(nil)
	_ ports.GenericGraphSource = (*Store)(nil)
)

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		nodes:     make(map[string]*btree.BTreeG[*graph.Node]),
		edges:     make(map[string]*btree.BTreeG[*graph.Edge]),
		nodesByID: make(map[string]*graph.Node),
		edgesByID: make(map[string]*graph.Edge),
	}
}

// NewStoreFromSnapshot creates a store holding snapshot
func NewStoreFromSnapshot(snapshot *graph.Snapshot) *Store {
	s := NewStore()
	s.Load(snapshot)
	return s
}

// NewStoreFromFile creates a store from a JSON snapshot file
func NewStoreFromFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	snapshot, err := graph.DecodeSnapshot(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewStoreFromSnapshot(snapshot), nil
}

func newNodeTree() *btree.BTreeG[*graph.Node] {
	return btree.NewBTreeGOptions[*graph.Node](graph.NodeBefore, btree.Options{NoLocks: true})
}

func newEdgeTree() *btree.BTreeG[*graph.Edge] {
	return btree.NewBTreeGOptions[*graph.Edge](graph.EdgeBefore, btree.Options{NoLocks: true})
}

// Load replaces the store contents with snapshot
func (s *Store) Load(snapshot *graph.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]*btree.BTreeG[*graph.Node])
	s.edges = make(map[string]*btree.BTreeG[*graph.Edge])
	s.nodesByID = make(map[string]*graph.Node)
	s.edgesByID = make(map[string]*graph.Edge)
	if snapshot == nil {
		return
	}
	for _, n := range snapshot.Nodes {
		s.putNode(n)
	}
	for _, e := range snapshot.Edges {
		s.putEdge(e)
	}
}

// PutNode inserts or replaces a node
func (s *Store) PutNode(n *graph.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putNode(n)
}

// PutEdge inserts or replaces an edge
func (s *Store) PutEdge(e *graph.Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putEdge(e)
}

func (s *Store) putNode(n *graph.Node) {
	if n == nil || n.ID == "" {
		return
	}
	if old, ok := s.nodesByID[n.ID]; ok {
		s.nodes[old.Scope.OrgID].Delete(old)
	}
	tree, ok := s.nodes[n.Scope.OrgID]
	if !ok {
		tree = newNodeTree()
		s.nodes[n.Scope.OrgID] = tree
	}
	tree.Set(n)
	s.nodesByID[n.ID] = n
}

func (s *Store) putEdge(e *graph.Edge) {
	if e == nil || e.ID == "" {
		return
	}
	if old, ok := s.edgesByID[e.ID]; ok {
		s.edges[old.Scope.OrgID].Delete(old)
	}
	tree, ok := s.edges[e.Scope.OrgID]
	if !ok {
		tree = newEdgeTree()
		s.edges[e.Scope.OrgID] = tree
	}
	tree.Set(e)
	s.edgesByID[e.ID] = e
}

// Stats returns the number of stored nodes and edges
func (s *Store) Stats() (nodes, edges int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.nodesByID), len(s.edgesByID)
}

// scanNodes visits the org's nodes in connection order, starting after
// afterID when it is present.
func (s *Store) scanNodes(orgID, afterID string, visit func(*graph.Node) bool) {
	tree, ok := s.nodes[orgID]
	if !ok {
		return
	}
	pivot, ok := s.nodesByID[afterID]
	if afterID == "" || !ok || pivot.Scope.OrgID != orgID {
		tree.Scan(visit)
		return
	}
	tree.Ascend(pivot, func(n *graph.Node) bool {
		if n.ID == afterID {
			return true
		}
		return visit(n)
	})
}

func (s *Store) scanEdges(orgID, afterID string, visit func(*graph.Edge) bool) {
	tree, ok := s.edges[orgID]
	if !ok {
		return
	}
	pivot, ok := s.edgesByID[afterID]
	if afterID == "" || !ok || pivot.Scope.OrgID != orgID {
		tree.Scan(visit)
		return
	}
	tree.Ascend(pivot, func(e *graph.Edge) bool {
		if e.ID == afterID {
			return true
		}
		return visit(e)
	})
}

// CountNodes returns the number of nodes matching where
func (s *Store) CountNodes(ctx context.Context, where ports.NodeWhere) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	s.scanNodes(where.Scope.OrgID, "", func(n *graph.Node) bool {
		if nodeMatches(n, where) {
			count++
		}
		return true
	})
	return count, nil
}

// QueryNodes returns up to limit matching nodes after afterID
func (s *Store) QueryNodes(ctx context.Context, where ports.NodeWhere, limit int, afterID string) ([]*graph.Node, error) {
	if limit <= 0 {
		return []*graph.Node{}, nil
	}
	return s.collectNodes(where, limit, afterID), nil
}

// collectNodes gathers matching nodes; limit < 0 means no limit.
func (s *Store) collectNodes(where ports.NodeWhere, limit int, afterID string) []*graph.Node {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*graph.Node, 0)
	if where.ID != "" {
		if n, ok := s.nodesByID[where.ID]; ok && nodeMatches(n, where) {
			out = append(out, n)
		}
		return out
	}
	s.scanNodes(where.Scope.OrgID, afterID, func(n *graph.Node) bool {
		if nodeMatches(n, where) {
			out = append(out, n)
		}
		return limit < 0 || len(out) < limit
	})
	return out
}

// CountEdges returns the number of edges matching where
func (s *Store) CountEdges(ctx context.Context, where ports.EdgeWhere) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	s.scanEdges(where.Scope.OrgID, "", func(e *graph.Edge) bool {
		if edgeMatches(e, where) {
			count++
		}
		return true
	})
	return count, nil
}

// QueryEdges returns up to limit matching edges after afterID
func (s *Store) QueryEdges(ctx context.Context, where ports.EdgeWhere, limit int, afterID string) ([]*graph.Edge, error) {
	if limit <= 0 {
		return []*graph.Edge{}, nil
	}
	return s.collectEdges(where, limit, afterID), nil
}

// collectEdges gathers matching edges; limit < 0 means no limit.
func (s *Store) collectEdges(where ports.EdgeWhere, limit int, afterID string) []*graph.Edge {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*graph.Edge, 0)
	s.scanEdges(where.Scope.OrgID, afterID, func(e *graph.Edge) bool {
		if edgeMatches(e, where) {
			out = append(out, e)
		}
		return limit < 0 || len(out) < limit
	})
	return out
}

// GroupCounts counts the scoped population
func (s *Store) GroupCounts(ctx context.Context, scope graph.Scope) (*graph.GroupCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var nodes []*graph.Node
	s.scanNodes(scope.OrgID, "", func(n *graph.Node) bool {
		if n.Scope.Matches(scope) {
			nodes = append(nodes, n)
		}
		return true
	})
	var edges []*graph.Edge
	s.scanEdges(scope.OrgID, "", func(e *graph.Edge) bool {
		if e.Scope.Matches(scope) {
			edges = append(edges, e)
		}
		return true
	})
	return graph.CountGroups(nodes, edges), nil
}

// ListNodes returns the org's nodes narrowed by type and search
func (s *Store) ListNodes(ctx context.Context, orgID string, entityTypes []string, search string) ([]*graph.Node, error) {
	return s.collectNodes(ports.NodeWhere{
		Scope:       graph.Scope{OrgID: orgID},
		EntityTypes: entityTypes,
		Search:      search,
	}, -1, ""), nil
}

// ListEdges returns the org's edges narrowed by type and endpoints
func (s *Store) ListEdges(ctx context.Context, orgID string, edgeTypes []string, sourceNodeID, targetNodeID string) ([]*graph.Edge, error) {
	return s.collectEdges(ports.EdgeWhere{
		Scope:        graph.Scope{OrgID: orgID},
		EdgeTypes:    edgeTypes,
		SourceNodeID: sourceNodeID,
		TargetNodeID: targetNodeID,
	}, -1, ""), nil
}

// GetNodeByID returns the node or nil
func (s *Store) GetNodeByID(ctx context.Context, id string) (*graph.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nodesByID[id], nil
}

func nodeMatches(n *graph.Node, where ports.NodeWhere) bool {
	if !n.Scope.Matches(where.Scope) {
		return false
	}
	if len(where.EntityTypes) > 0 && !contains(where.EntityTypes, n.EntityType) {
		return false
	}
	if where.ID != "" && n.ID != where.ID {
		return false
	}
	return n.MatchesSearch(where.Search)
}

func edgeMatches(e *graph.Edge, where ports.EdgeWhere) bool {
	if !e.Scope.Matches(where.Scope) {
		return false
	}
	if len(where.EdgeTypes) > 0 && !contains(where.EdgeTypes, e.EdgeType) {
		return false
	}
	if where.SourceNodeID != "" && e.SourceNodeID != where.SourceNodeID {
		return false
	}
	if where.TargetNodeID != "" && e.TargetNodeID != where.TargetNodeID {
		return false
	}
	return where.TouchingNodeID == "" || e.Touches(where.TouchingNodeID)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
