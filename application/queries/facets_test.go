package queries

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kbquery/domain/graph"
)

func facetData() ([]*graph.Node, []*graph.Edge) {
	nodes := []*graph.Node{
		newNode("s1", "service", 0, graph.Scope{OrgID: "org1", ProjectID: "checkout", TeamID: "core"}),
		newNode("s2", "service", 1, graph.Scope{OrgID: "org1", ProjectID: "checkout", TeamID: "core"}),
		newNode("d1", "database", 2, graph.Scope{OrgID: "org1", ProjectID: "billing", DomainID: "finance"}),
		newNode("q1", "queue", 3, graph.Scope{OrgID: "org1", ProjectID: "billing", DomainID: "finance"}),
		newNode("q2", "queue", 4, graph.Scope{OrgID: "org2", ProjectID: "billing"}),
	}
	edges := []*graph.Edge{
		newEdge("e1", "calls", "s1", "s2", 0, org1),
		newEdge("e2", "reads_from", "s1", "d1", 1, org1),
		newEdge("e3", "calls", "s2", "d1", 2, org1),
		newEdge("e4", "calls", "q2", "q2", 3, graph.Scope{OrgID: "org2"}),
	}
	return nodes, edges
}

func values(fv []graph.FacetValue) []string {
	out := make([]string, 0, len(fv))
	for _, v := range fv {
		out = append(out, v.Value)
	}
	return out
}

func TestGetFacets_CountsAndSorts(t *testing.T) {
	nodes, edges := facetData()

	for name, svc := range backends(nodes, edges) {
		t.Run(name, func(t *testing.T) {
			facets, err := svc.GetFacets(context.Background(), GetFacetsQuery{Scope: org1})

			require.NoError(t, err)
			// Equal counts order by label.
			assert.Equal(t, []graph.FacetValue{
				{Value: "service", Label: "Service", Count: 2},
				{Value: "database", Label: "Database", Count: 1},
				{Value: "queue", Label: "Queue", Count: 1},
			}, facets.NodeTypes)
			assert.Equal(t, []graph.FacetValue{
				{Value: "calls", Label: "Calls", Count: 2},
				{Value: "reads_from", Label: "Reads From", Count: 1},
			}, facets.EdgeTypes)
			assert.Equal(t, []string{"billing", "checkout"}, values(facets.Projects))
			assert.Equal(t, []graph.FacetValue{{Value: "finance", Label: "Finance", Count: 2}}, facets.Domains)
			assert.Equal(t, []graph.FacetValue{{Value: "core", Label: "Core", Count: 2}}, facets.Teams)
		})
	}
}

func TestGetFacets_NarrowScope(t *testing.T) {
	nodes, edges := facetData()
	svc := newService(&fakeFast{nodes: nodes, edges: edges}, nil, Options{})

	facets, err := svc.GetFacets(context.Background(), GetFacetsQuery{Scope: graph.Scope{OrgID: "org1", TeamID: "core"}})

	require.NoError(t, err)
	assert.Equal(t, []string{"service"}, values(facets.NodeTypes))
	assert.Empty(t, facets.Domains)
	assert.Empty(t, facets.EdgeTypes, "edges carry no team")
}

func TestGetFacets_UsesLabelResolver(t *testing.T) {
	nodes, edges := facetData()
	labels := mapLabels{
		"nodeType:service": "Microservice",
		"project:billing":  "Billing Platform",
	}
	svc := NewGraphQueryService(&fakeFast{nodes: nodes, edges: edges}, nil, newMapCache(), labels, nil, zap.NewNop(), Options{})

	facets, err := svc.GetFacets(context.Background(), GetFacetsQuery{Scope: org1})

	require.NoError(t, err)
	assert.Equal(t, "Microservice", facets.NodeTypes[0].Label)
	assert.Equal(t, graph.FacetValue{Value: "billing", Label: "Billing Platform", Count: 2}, facets.Projects[0])
	assert.Equal(t, "Checkout", facets.Projects[1].Label)
}

func TestGetFacets_SecondCallServedFromCache(t *testing.T) {
	nodes, edges := facetData()
	fast := &fakeFast{nodes: nodes, edges: edges}
	cache := newMapCache()
	metrics := &recordingMetrics{}
	svc := NewGraphQueryService(fast, nil, cache, nil, metrics, zap.NewNop(), Options{})

	first, err := svc.GetFacets(context.Background(), GetFacetsQuery{Scope: org1})
	require.NoError(t, err)
	second, err := svc.GetFacets(context.Background(), GetFacetsQuery{Scope: graph.Scope{OrgID: " org1 "}})
	require.NoError(t, err)

	assert.Equal(t, 1, fast.groupCalls)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.sets)
	assert.Equal(t, 1, metrics.hits)
	assert.Equal(t, 1, metrics.misses)

	_, err = svc.GetFacets(context.Background(), GetFacetsQuery{Scope: graph.Scope{OrgID: "org1", TeamID: "core"}})
	require.NoError(t, err)
	assert.Equal(t, 2, fast.groupCalls, "a different scope is a different key")
}

func TestGetFacets_FastFailureOrEmptyFallsBackToGeneric(t *testing.T) {
	nodes, edges := facetData()

	tests := map[string]func(m *MockFastSource){
		"error": func(m *MockFastSource) {
			m.On("GroupCounts", mock.Anything, org1).Return(nil, errors.New("timeout"))
		},
		"empty": func(m *MockFastSource) {
			m.On("GroupCounts", mock.Anything, org1).Return(&graph.GroupCounts{
				NodeTypes: []graph.GroupCount{{Value: "", Count: 3}, {Value: "service", Count: 0}},
			}, nil)
		},
	}

	for name, setup := range tests {
		t.Run(name, func(t *testing.T) {
			fast := new(MockFastSource)
			setup(fast)
			generic := &fakeGeneric{nodes: nodes, edges: edges}
			svc := newService(fast, generic, Options{})

			facets, err := svc.GetFacets(context.Background(), GetFacetsQuery{Scope: org1})

			require.NoError(t, err)
			assert.Equal(t, []string{"service", "database", "queue"}, values(facets.NodeTypes))
			assert.Equal(t, 2, generic.listCalls, "nodes and edges fetched once each")
			fast.AssertExpectations(t)
		})
	}
}

func TestGetFacets_EmptyEverywhereUsesSample(t *testing.T) {
	svc := newService(&fakeFast{}, &fakeGeneric{}, Options{})

	facets, err := svc.GetFacets(context.Background(), GetFacetsQuery{Scope: org1})

	require.NoError(t, err)
	assert.Equal(t, []graph.FacetValue{
		{Value: "service", Label: "Service", Count: 2},
		{Value: "database", Label: "Database", Count: 1},
		{Value: "queue", Label: "Queue", Count: 1},
	}, facets.NodeTypes)
	assert.Len(t, facets.EdgeTypes, 3)
	assert.Empty(t, facets.Projects)
	assert.NotNil(t, facets.Teams)
}

func TestGetFacets_OrderingProperty(t *testing.T) {
	var nodes []*graph.Node
	types := []string{"b", "a", "c", "a", "d", "c", "a", "e", "b"}
	for i, typ := range types {
		nodes = append(nodes, newNode("n"+string(rune('0'+i)), typ, i, org1))
	}
	svc := newService(nil, &fakeGeneric{nodes: nodes}, Options{})

	facets, err := svc.GetFacets(context.Background(), GetFacetsQuery{Scope: org1})

	require.NoError(t, err)
	for i := 1; i < len(facets.NodeTypes); i++ {
		prev, cur := facets.NodeTypes[i-1], facets.NodeTypes[i]
		assert.GreaterOrEqual(t, prev.Count, cur.Count)
		if prev.Count == cur.Count {
			assert.LessOrEqual(t, prev.Label, cur.Label)
		}
	}
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, values(facets.NodeTypes))
}
