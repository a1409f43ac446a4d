package queries

import (
	"kbquery/application/ports"
	"kbquery/domain/graph"
	"kbquery/pkg/common"
)

// NodeEdge is a node with the cursor that resumes after it.
type NodeEdge struct {
	Cursor string      `json:"cursor"`
	Node   *graph.Node `json:"node"`
}

// NodeConnection is one forward page of nodes.
type NodeConnection struct {
	Edges      []NodeEdge      `json:"edges"`
	PageInfo   common.PageInfo `json:"pageInfo"`
	TotalCount int             `json:"totalCount"`
}

// EdgeEdge is an edge record with the cursor that resumes after it.
type EdgeEdge struct {
	Cursor string      `json:"cursor"`
	Edge   *graph.Edge `json:"edge"`
}

// EdgeConnection is one forward page of edges.
type EdgeConnection struct {
	Edges      []EdgeEdge      `json:"edges"`
	PageInfo   common.PageInfo `json:"pageInfo"`
	TotalCount int             `json:"totalCount"`
}

// page is a window of up to first+1 records in connection order plus the
// exact size of the population it was cut from.
type page[T any] struct {
	window []T
	total  int
}

func newNodeConnection(p page[*graph.Node], first int, hasCursor bool) *NodeConnection {
	window := p.window
	hasNext := len(window) > first
	if hasNext {
		window = window[:first]
	}

	conn := &NodeConnection{
		Edges:      make([]NodeEdge, 0, len(window)),
		TotalCount: p.total,
	}
	for _, n := range window {
		conn.Edges = append(conn.Edges, NodeEdge{Cursor: common.EncodeCursor(n.ID), Node: n})
	}
	conn.PageInfo = common.PageInfo{HasNextPage: hasNext, HasPreviousPage: hasCursor}
	if len(conn.Edges) > 0 {
		conn.PageInfo.StartCursor = conn.Edges[0].Cursor
		conn.PageInfo.EndCursor = conn.Edges[len(conn.Edges)-1].Cursor
	}
	return conn
}

func newEdgeConnection(p page[*graph.Edge], first int, hasCursor bool) *EdgeConnection {
	window := p.window
	hasNext := len(window) > first
	if hasNext {
		window = window[:first]
	}

	conn := &EdgeConnection{
		Edges:      make([]EdgeEdge, 0, len(window)),
		TotalCount: p.total,
	}
	for _, e := range window {
		conn.Edges = append(conn.Edges, EdgeEdge{Cursor: common.EncodeCursor(e.ID), Edge: e})
	}
	conn.PageInfo = common.PageInfo{HasNextPage: hasNext, HasPreviousPage: hasCursor}
	if len(conn.Edges) > 0 {
		conn.PageInfo.StartCursor = conn.Edges[0].Cursor
		conn.PageInfo.EndCursor = conn.Edges[len(conn.Edges)-1].Cursor
	}
	return conn
}

// pageNodes sorts nodes into connection order and cuts the window that
// follows afterID. An afterID that is no longer present restarts at the top.
func pageNodes(nodes []*graph.Node, afterID string, first int) page[*graph.Node] {
	sorted := make([]*graph.Node, len(nodes))
	copy(sorted, nodes)
	graph.SortNodes(sorted)

	start := 0
	if afterID != "" {
		for i, n := range sorted {
			if n.ID == afterID {
				start = i + 1
				break
			}
		}
	}
	return page[*graph.Node]{window: cutWindow(sorted, start, first), total: len(sorted)}
}

// pageEdges is pageNodes for edges.
func pageEdges(edges []*graph.Edge, afterID string, first int) page[*graph.Edge] {
	sorted := make([]*graph.Edge, len(edges))
	copy(sorted, edges)
	graph.SortEdges(sorted)

	start := 0
	if afterID != "" {
		for i, e := range sorted {
			if e.ID == afterID {
				start = i + 1
				break
			}
		}
	}
	return page[*graph.Edge]{window: cutWindow(sorted, start, first), total: len(sorted)}
}

func cutWindow[T any](items []T, start, first int) []T {
	end := start + first + 1
	if end > len(items) {
		end = len(items)
	}
	if start > end {
		start = end
	}
	return items[start:end]
}

// filterNodes re-applies scope and filters locally for sources that cannot.
func filterNodes(nodes []*graph.Node, where ports.NodeWhere) []*graph.Node {
	out := make([]*graph.Node, 0, len(nodes))
	for _, n := range nodes {
		if n == nil || !n.Scope.Matches(where.Scope) {
			continue
		}
		if len(where.EntityTypes) > 0 && !contains(where.EntityTypes, n.EntityType) {
			continue
		}
		if where.ID != "" && n.ID != where.ID {
			continue
		}
		if !n.MatchesSearch(where.Search) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// filterEdges re-applies scope and filters locally for sources that cannot.
func filterEdges(edges []*graph.Edge, where ports.EdgeWhere) []*graph.Edge {
	out := make([]*graph.Edge, 0, len(edges))
	for _, e := range edges {
		if e == nil || !e.Scope.Matches(where.Scope) {
			continue
		}
		if len(where.EdgeTypes) > 0 && !contains(where.EdgeTypes, e.EdgeType) {
			continue
		}
		if where.SourceNodeID != "" && e.SourceNodeID != where.SourceNodeID {
			continue
		}
		if where.TargetNodeID != "" && e.TargetNodeID != where.TargetNodeID {
			continue
		}
		if where.TouchingNodeID != "" && !e.Touches(where.TouchingNodeID) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
