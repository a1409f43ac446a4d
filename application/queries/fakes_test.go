package queries

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"kbquery/application/ports"
	"kbquery/domain/graph"
)

var baseTime = time.Date(2025, time.March, 1, 12, 0, 0, 0, time.UTC)

func newNode(id, entityType string, age int, scope graph.Scope) *graph.Node {
	return &graph.Node{
		ID:          id,
		TenantID:    scope.OrgID,
		ProjectID:   scope.ProjectID,
		EntityType:  entityType,
		DisplayName: "node " + id,
		Scope:       scope,
		Properties:  graph.Properties{"name": id},
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime.Add(-time.Duration(age) * time.Minute),
	}
}

func newEdge(id, edgeType, from, to string, age int, scope graph.Scope) *graph.Edge {
	return &graph.Edge{
		ID:           id,
		TenantID:     scope.OrgID,
		EdgeType:     edgeType,
		SourceNodeID: from,
		TargetNodeID: to,
		Scope:        scope,
		CreatedAt:    baseTime,
		UpdatedAt:    baseTime.Add(-time.Duration(age) * time.Minute),
	}
}

// fakeFast evaluates filters over in-memory slices the way an indexed
// store would.
type fakeFast struct {
	mu         sync.Mutex
	nodes      []*graph.Node
	edges      []*graph.Edge
	err        error
	groupCalls int
}

func (f *fakeFast) CountNodes(ctx context.Context, where ports.NodeWhere) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(filterNodes(f.nodes, where)), nil
}

func (f *fakeFast) QueryNodes(ctx context.Context, where ports.NodeWhere, limit int, afterID string) ([]*graph.Node, error) {
	if f.err != nil {
		return nil, f.err
	}
	return pageNodes(filterNodes(f.nodes, where), afterID, limit-1).window, nil
}

func (f *fakeFast) CountEdges(ctx context.Context, where ports.EdgeWhere) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	return len(filterEdges(f.edges, where)), nil
}

func (f *fakeFast) QueryEdges(ctx context.Context, where ports.EdgeWhere, limit int, afterID string) ([]*graph.Edge, error) {
	if f.err != nil {
		return nil, f.err
	}
	return pageEdges(filterEdges(f.edges, where), afterID, limit-1).window, nil
}

func (f *fakeFast) GroupCounts(ctx context.Context, scope graph.Scope) (*graph.GroupCounts, error) {
	f.mu.Lock()
	f.groupCalls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return graph.CountGroups(
		filterNodes(f.nodes, ports.NodeWhere{Scope: scope}),
		filterEdges(f.edges, ports.EdgeWhere{Scope: scope}),
	), nil
}

// fakeGeneric only narrows by org, like the slower backends.
type fakeGeneric struct {
	mu        sync.Mutex
	nodes     []*graph.Node
	edges     []*graph.Edge
	err       error
	listCalls int
}

func (f *fakeGeneric) ListNodes(ctx context.Context, orgID string, entityTypes []string, search string) ([]*graph.Node, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*graph.Node
	for _, n := range f.nodes {
		if n.Scope.OrgID == orgID {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeGeneric) ListEdges(ctx context.Context, orgID string, edgeTypes []string, sourceNodeID, targetNodeID string) ([]*graph.Edge, error) {
	f.mu.Lock()
	f.listCalls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []*graph.Edge
	for _, e := range f.edges {
		if e.Scope.OrgID != orgID {
			continue
		}
		if sourceNodeID != "" && e.SourceNodeID != sourceNodeID {
			continue
		}
		if targetNodeID != "" && e.TargetNodeID != targetNodeID {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeGeneric) GetNodeByID(ctx context.Context, id string) (*graph.Node, error) {
	if f.err != nil {
		return nil, f.err
	}
	return findNode(f.nodes, id), nil
}

// MockFastSource is a mock implementation of ports.FastGraphSource
type MockFastSource struct {
	mock.Mock
}

func (m *MockFastSource) CountNodes(ctx context.Context, where ports.NodeWhere) (int, error) {
	args := m.Called(ctx, where)
	return args.Int(0), args.Error(1)
}

func (m *MockFastSource) QueryNodes(ctx context.Context, where ports.NodeWhere, limit int, afterID string) ([]*graph.Node, error) {
	args := m.Called(ctx, where, limit, afterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*graph.Node), args.Error(1)
}

func (m *MockFastSource) CountEdges(ctx context.Context, where ports.EdgeWhere) (int, error) {
	args := m.Called(ctx, where)
	return args.Int(0), args.Error(1)
}

func (m *MockFastSource) QueryEdges(ctx context.Context, where ports.EdgeWhere, limit int, afterID string) ([]*graph.Edge, error) {
	args := m.Called(ctx, where, limit, afterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*graph.Edge), args.Error(1)
}

func (m *MockFastSource) GroupCounts(ctx context.Context, scope graph.Scope) (*graph.GroupCounts, error) {
	args := m.Called(ctx, scope)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*graph.GroupCounts), args.Error(1)
}

// mapCache is a FacetCache without expiry.
type mapCache struct {
	mu      sync.Mutex
	entries map[string]*graph.Facets
	sets    int
}

func newMapCache() *mapCache {
	return &mapCache{entries: make(map[string]*graph.Facets)}
}

func (c *mapCache) Get(ctx context.Context, key string) (*graph.Facets, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.entries[key]
	return f, ok
}

func (c *mapCache) Set(ctx context.Context, key string, facets *graph.Facets, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = facets
	c.sets++
	return nil
}

type mapLabels map[string]string

func (m mapLabels) Label(ctx context.Context, kind ports.LabelKind, value string) (string, bool) {
	label, ok := m[string(kind)+":"+value]
	return label, ok
}

// recordingMetrics collects tier outcomes as "op/tier/outcome".
type recordingMetrics struct {
	mu        sync.Mutex
	tiers     []string
	hits      int
	misses    int
	truncated int
}

func (r *recordingMetrics) ObserveTier(op, tier, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tiers = append(r.tiers, op+"/"+tier+"/"+outcome)
}

func (r *recordingMetrics) ObserveFacetCache(hit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if hit {
		r.hits++
	} else {
		r.misses++
	}
}

func (r *recordingMetrics) ObserveSceneTruncated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.truncated++
}

func newService(fast ports.FastGraphSource, generic ports.GenericGraphSource, opts Options) *GraphQueryService {
	return NewGraphQueryService(fast, generic, newMapCache(), nil, nil, zap.NewNop(), opts)
}
