package graph

import "sort"

// Every listing, page and scene uses the same order: most recently updated
// first, ties broken by id descending.

// NodeBefore reports whether a sorts ahead of b in connection order.
func NodeBefore(a, b *Node) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}

// EdgeBefore reports whether a sorts ahead of b in connection order.
func EdgeBefore(a, b *Edge) bool {
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}

// SortNodes orders nodes in place by connection order.
func SortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool { return NodeBefore(nodes[i], nodes[j]) })
}

// SortEdges orders edges in place by connection order.
func SortEdges(edges []*Edge) {
	sort.SliceStable(edges, func(i, j int) bool { return EdgeBefore(edges[i], edges[j]) })
}
