package ports

import (
	"context"
	"time"

	"kbquery/domain/graph"
)

// NodeWhere is the node filter pushed down to a fast source.
type NodeWhere struct {
	Scope       graph.Scope
	EntityTypes []string
	Search      string
	ID          string
}

// EdgeWhere is the edge filter pushed down to a fast source.
type EdgeWhere struct {
	Scope        graph.Scope
	EdgeTypes    []string
	SourceNodeID string
	TargetNodeID string

	// TouchingNodeID matches edges whose source or target is the node.
	TouchingNodeID string
}

// FastGraphSource is an indexed store that evaluates scope and filters
// itself, returns exact counts and pages in connection order
// (updatedAt desc, id desc).
type FastGraphSource interface {
	// CountNodes returns the exact number of nodes matching where
	CountNodes(ctx context.Context, where NodeWhere) (int, error)

	// QueryNodes returns up to limit nodes in connection order, starting
	// after the node afterID when it is set and still present
	QueryNodes(ctx context.Context, where NodeWhere, limit int, afterID string) ([]*graph.Node, error)

	// CountEdges returns the exact number of edges matching where
	CountEdges(ctx context.Context, where EdgeWhere) (int, error)

	// QueryEdges returns up to limit edges in connection order after afterID
	QueryEdges(ctx context.Context, where EdgeWhere, limit int, afterID string) ([]*graph.Edge, error)

	// GroupCounts returns raw grouped counts over the scoped population
	GroupCounts(ctx context.Context, scope graph.Scope) (*graph.GroupCounts, error)
}

// GenericGraphSource is a slower store that only narrows by org and a few
// optional filters. Callers re-apply scope and filters locally.
type GenericGraphSource interface {
	// ListNodes returns every node of the org, optionally narrowed by type and search
	ListNodes(ctx context.Context, orgID string, entityTypes []string, search string) ([]*graph.Node, error)

	// ListEdges returns every edge of the org, optionally narrowed
	ListEdges(ctx context.Context, orgID string, edgeTypes []string, sourceNodeID, targetNodeID string) ([]*graph.Edge, error)

	// GetNodeByID returns the node or nil when it does not exist
	GetNodeByID(ctx context.Context, id string) (*graph.Node, error)
}

// FacetCache stores computed facets per normalized scope key.
type FacetCache interface {
	Get(ctx context.Context, key string) (*graph.Facets, bool)
	Set(ctx context.Context, key string, facets *graph.Facets, ttl time.Duration) error
}

// LabelKind names the dimension a facet value belongs to.
type LabelKind string

const (
	LabelNodeType LabelKind = "nodeType"
	LabelEdgeType LabelKind = "edgeType"
	LabelProject  LabelKind = "project"
	LabelDomain   LabelKind = "domain"
	LabelTeam     LabelKind = "team"
)

// LabelResolver maps raw identifiers to human-readable names.
type LabelResolver interface {
	Label(ctx context.Context, kind LabelKind, value string) (string, bool)
}

// Clock abstracts time for TTL bookkeeping.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time { return time.Now() }

// QueryMetrics observes how the read path resolved a request.
type QueryMetrics interface {
	ObserveTier(operation, tier, outcome string)
	ObserveFacetCache(hit bool)
	ObserveSceneTruncated()
}

// NopMetrics discards all observations.
type NopMetrics struct{}

func (NopMetrics) ObserveTier(string, string, string) {}
func (NopMetrics) ObserveFacetCache(bool)             {}
func (NopMetrics) ObserveSceneTruncated()             {}
