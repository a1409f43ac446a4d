package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kbquery/application/ports"
	"kbquery/application/queries"
	"kbquery/domain/graph"
)

var (
	t0   = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	org1 = graph.Scope{OrgID: "org1"}
)

func node(id, typ string, minutesAgo int, scope graph.Scope) *graph.Node {
	return &graph.Node{
		ID:          id,
		EntityType:  typ,
		DisplayName: "Node " + id,
		Scope:       scope,
		Properties:  graph.Properties{"owner": "team-" + id},
		UpdatedAt:   t0.Add(-time.Duration(minutesAgo) * time.Minute),
	}
}

func edge(id, typ, from, to string, minutesAgo int, scope graph.Scope) *graph.Edge {
	return &graph.Edge{ID: id, EdgeType: typ, SourceNodeID: from, TargetNodeID: to, Scope: scope, UpdatedAt: t0.Add(-time.Duration(minutesAgo) * time.Minute)}
}

func openStore(t *testing.T, snapshot *graph.Snapshot) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "kb.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Import(context.Background(), snapshot))
	return s
}

func seeded(t *testing.T) *Store {
	return openStore(t, &graph.Snapshot{
		Nodes: []*graph.Node{
			node("a", "service", 3, org1),
			node("b", "service", 1, graph.Scope{OrgID: "org1", TeamID: "core", ProjectID: "p1"}),
			node("c", "database", 2, graph.Scope{OrgID: "org1", DomainID: "data"}),
			node("d", "service", 0, org1),
			node("x", "service", 0, graph.Scope{OrgID: "org2"}),
		},
		Edges: []*graph.Edge{
			edge("ab", "calls", "a", "b", 0, org1),
			edge("ac", "reads", "a", "c", 1, org1),
			edge("dc", "reads", "d", "c", 2, org1),
			edge("xx", "calls", "x", "x", 0, graph.Scope{OrgID: "org2"}),
		},
	})
}

func nodeIDs(nodes []*graph.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func edgeIDs(edges []*graph.Edge) []string {
	out := make([]string, 0, len(edges))
	for _, e := range edges {
		out = append(out, e.ID)
	}
	return out
}

func TestStore_KeysetPaging(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	first, err := s.QueryNodes(ctx, ports.NodeWhere{Scope: org1}, 2, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b"}, nodeIDs(first))

	next, err := s.QueryNodes(ctx, ports.NodeWhere{Scope: org1}, 2, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, nodeIDs(next))

	stale, err := s.QueryNodes(ctx, ports.NodeWhere{Scope: org1}, 2, "gone")
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b"}, nodeIDs(stale))

	foreign, err := s.QueryNodes(ctx, ports.NodeWhere{Scope: org1}, 2, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b"}, nodeIDs(foreign))
}

func TestStore_CursorOutsideFiltersRestarts(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()
	services := ports.NodeWhere{Scope: org1, EntityTypes: []string{"service"}}

	// "c" is a database, so it is not part of the service listing.
	nodes, err := s.QueryNodes(ctx, services, 10, "c")
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "b", "a"}, nodeIDs(nodes))

	nodes, err = s.QueryNodes(ctx, services, 10, "b")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, nodeIDs(nodes))

	edges, err := s.QueryEdges(ctx, ports.EdgeWhere{Scope: org1, EdgeTypes: []string{"reads"}}, 10, "ab")
	require.NoError(t, err)
	assert.Equal(t, []string{"ac", "dc"}, edgeIDs(edges))
}

func TestStore_TieBreakOnID(t *testing.T) {
	s := openStore(t, &graph.Snapshot{Nodes: []*graph.Node{
		node("n1", "t", 0, org1), node("n3", "t", 0, org1), node("n2", "t", 0, org1),
	}})

	all, err := s.QueryNodes(context.Background(), ports.NodeWhere{Scope: org1}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"n3", "n2", "n1"}, nodeIDs(all))

	after, err := s.QueryNodes(context.Background(), ports.NodeWhere{Scope: org1}, 10, "n3")
	require.NoError(t, err)
	assert.Equal(t, []string{"n2", "n1"}, nodeIDs(after))
}

func TestStore_FiltersArePushedDown(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		where ports.NodeWhere
		want  []string
	}{
		{"type", ports.NodeWhere{Scope: org1, EntityTypes: []string{"database"}}, []string{"c"}},
		{"team", ports.NodeWhere{Scope: graph.Scope{OrgID: "org1", TeamID: "core"}}, []string{"b"}},
		{"domain", ports.NodeWhere{Scope: graph.Scope{OrgID: "org1", DomainID: "data"}}, []string{"c"}},
		{"search name", ports.NodeWhere{Scope: org1, Search: "NODE A"}, []string{"a"}},
		{"search props", ports.NodeWhere{Scope: org1, Search: "team-d"}, []string{"d"}},
		{"search is literal", ports.NodeWhere{Scope: org1, Search: "%"}, []string{}},
		{"id", ports.NodeWhere{Scope: org1, ID: "c"}, []string{"c"}},
		{"id in other org", ports.NodeWhere{Scope: org1, ID: "x"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nodes, err := s.QueryNodes(ctx, tt.where, 10, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, nodeIDs(nodes))

			count, err := s.CountNodes(ctx, tt.where)
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), count)
		})
	}
}

func TestStore_Edges(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	touching, err := s.QueryEdges(ctx, ports.EdgeWhere{Scope: org1, TouchingNodeID: "c"}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"ac", "dc"}, edgeIDs(touching))

	after, err := s.QueryEdges(ctx, ports.EdgeWhere{Scope: org1}, 10, "ab")
	require.NoError(t, err)
	assert.Equal(t, []string{"ac", "dc"}, edgeIDs(after))

	count, err := s.CountEdges(ctx, ports.EdgeWhere{Scope: org1, EdgeTypes: []string{"reads", "calls"}, SourceNodeID: "a"})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestStore_RecordsRoundTrip(t *testing.T) {
	s := seeded(t)

	nodes, err := s.QueryNodes(context.Background(), ports.NodeWhere{Scope: org1, ID: "b"}, 1, "")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "Node b", nodes[0].DisplayName)
	assert.Equal(t, "p1", nodes[0].Scope.ProjectID)
	assert.Equal(t, "team-b", nodes[0].Properties["owner"])
	assert.True(t, nodes[0].UpdatedAt.Equal(t0.Add(-time.Minute)))
}

func TestStore_ImportReplaces(t *testing.T) {
	s := seeded(t)
	ctx := context.Background()

	require.NoError(t, s.Import(ctx, &graph.Snapshot{Nodes: []*graph.Node{node("a", "queue", -10, org1)}}))

	nodes, err := s.QueryNodes(ctx, ports.NodeWhere{Scope: org1}, 1, "")
	require.NoError(t, err)
	assert.Equal(t, "queue", nodes[0].EntityType)
	count, err := s.CountNodes(ctx, ports.NodeWhere{Scope: org1})
	require.NoError(t, err)
	assert.Equal(t, 4, count)
}

func TestStore_GroupCounts(t *testing.T) {
	s := seeded(t)

	counts, err := s.GroupCounts(context.Background(), org1)

	require.NoError(t, err)
	assert.Equal(t, []graph.GroupCount{{Value: "database", Count: 1}, {Value: "service", Count: 3}}, counts.NodeTypes)
	assert.Equal(t, []graph.GroupCount{{Value: "calls", Count: 1}, {Value: "reads", Count: 2}}, counts.EdgeTypes)
	assert.Equal(t, []graph.GroupCount{{Value: "p1", Count: 1}}, counts.Projects)
	assert.Equal(t, []graph.GroupCount{{Value: "data", Count: 1}}, counts.Domains)
	assert.Equal(t, []graph.GroupCount{{Value: "core", Count: 1}}, counts.Teams)

	empty, err := s.GroupCounts(context.Background(), graph.Scope{OrgID: "nobody"})
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
}

func TestStore_ServesTheQueryService(t *testing.T) {
	a := node("A", "t", 1, org1)
	b := node("B", "t", 2, org1)
	s := openStore(t, &graph.Snapshot{
		Nodes: []*graph.Node{a, b},
		Edges: []*graph.Edge{edge("A->B", "rel", "A", "B", 1, org1)},
	})
	svc := queries.NewGraphQueryService(s, nil, nil, nil, nil, zap.NewNop(), queries.Options{})
	ctx := context.Background()

	page, err := svc.ListNodes(ctx, queries.ListNodesQuery{Scope: org1, First: 1})
	require.NoError(t, err)
	require.Len(t, page.Edges, 1)
	assert.Equal(t, 2, page.TotalCount)
	assert.True(t, page.PageInfo.HasNextPage)

	next, err := svc.ListNodes(ctx, queries.ListNodesQuery{Scope: org1, First: 1, After: page.PageInfo.EndCursor})
	require.NoError(t, err)
	require.Len(t, next.Edges, 1)
	assert.Equal(t, "B", next.Edges[0].Node.ID)
	assert.False(t, next.PageInfo.HasNextPage)

	scene, err := svc.GetScene(ctx, queries.GetSceneQuery{Scope: org1, NodeID: "A", Depth: 2, Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, graph.SceneSummary{NodeCount: 2, EdgeCount: 1}, scene.Summary)
}

func TestOpen_MigratesSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "kb.db")

	s, err := Open(ctx, path, zap.NewNop())
	require.NoError(t, err)
	v, err := schemaVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, latestVersion(), v)
	require.NoError(t, s.Close())

	// Reopening an up to date database is a no-op.
	s, err = Open(ctx, path, zap.NewNop())
	require.NoError(t, err)
	_, err = s.db.ExecContext(ctx, "PRAGMA user_version = 99")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(ctx, path, zap.NewNop())
	assert.ErrorContains(t, err, "newer than supported")
}
