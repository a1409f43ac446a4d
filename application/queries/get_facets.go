package queries

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"kbquery/application/ports"
	"kbquery/domain/graph"
	"kbquery/domain/sample"
)

// GetFacets returns grouped counts of node types, edge types and geography
// within the scope. Results are cached per normalized scope for the facet TTL.
func (s *GraphQueryService) GetFacets(ctx context.Context, q GetFacetsQuery) (*graph.Facets, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "GetFacets")
	defer span.End()

	scope := q.Scope.Normalize()
	key := scope.CacheKey()

	if s.cache != nil {
		if cached, ok := s.cache.Get(ctx, key); ok {
			s.metrics.ObserveFacetCache(true)
			return cached, nil
		}
		s.metrics.ObserveFacetCache(false)
	}

	var tiers []tier[*graph.GroupCounts]
	if s.fast != nil {
		tiers = append(tiers, tier[*graph.GroupCounts]{name: tierFast, run: func(ctx context.Context) (*graph.GroupCounts, error) {
			return s.fast.GroupCounts(ctx, scope)
		}})
	}
	if s.generic != nil {
		tiers = append(tiers, tier[*graph.GroupCounts]{name: tierGeneric, run: func(ctx context.Context) (*graph.GroupCounts, error) {
			return s.genericGroupCounts(ctx, scope)
		}})
	}
	tiers = append(tiers, tier[*graph.GroupCounts]{name: tierSample, run: func(ctx context.Context) (*graph.GroupCounts, error) {
		snapshot := sample.ScopedSample(scope)
		return graph.CountGroups(snapshot.Nodes, snapshot.Edges), nil
	}})

	res := resolveTiers(ctx, s, "getFacets", scope, func(g *graph.GroupCounts) bool { return !g.IsEmpty() }, tiers)
	facets := s.labelFacets(ctx, res.value)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, facets, s.opts.FacetTTL); err != nil {
			s.logger.Warn("Failed to cache facets", zap.String("key", key), zap.Error(err))
		}
	}
	return facets, nil
}

// genericGroupCounts fetches the org's nodes and edges concurrently and
// counts the scoped subset locally.
func (s *GraphQueryService) genericGroupCounts(ctx context.Context, scope graph.Scope) (*graph.GroupCounts, error) {
	var nodes []*graph.Node
	var edges []*graph.Edge

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		nodes, err = s.generic.ListNodes(gctx, scope.OrgID, nil, "")
		return err
	})
	g.Go(func() error {
		var err error
		edges, err = s.generic.ListEdges(gctx, scope.OrgID, nil, "", "")
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return graph.CountGroups(
		filterNodes(nodes, ports.NodeWhere{Scope: scope}),
		filterEdges(edges, ports.EdgeWhere{Scope: scope}),
	), nil
}

// labelFacets drops empty buckets, attaches labels and sorts each grouping.
func (s *GraphQueryService) labelFacets(ctx context.Context, counts *graph.GroupCounts) *graph.Facets {
	if counts == nil {
		counts = &graph.GroupCounts{}
	}
	return &graph.Facets{
		NodeTypes: s.labelGroup(ctx, ports.LabelNodeType, counts.NodeTypes),
		EdgeTypes: s.labelGroup(ctx, ports.LabelEdgeType, counts.EdgeTypes),
		Projects:  s.labelGroup(ctx, ports.LabelProject, counts.Projects),
		Domains:   s.labelGroup(ctx, ports.LabelDomain, counts.Domains),
		Teams:     s.labelGroup(ctx, ports.LabelTeam, counts.Teams),
	}
}

func (s *GraphQueryService) labelGroup(ctx context.Context, kind ports.LabelKind, group []graph.GroupCount) []graph.FacetValue {
	values := make([]graph.FacetValue, 0, len(group))
	for _, c := range group {
		if c.Value == "" || c.Count <= 0 {
			continue
		}
		values = append(values, graph.FacetValue{
			Value: c.Value,
			Label: s.label(ctx, kind, c.Value),
			Count: c.Count,
		})
	}
	graph.SortFacetValues(values)
	return values
}

func (s *GraphQueryService) label(ctx context.Context, kind ports.LabelKind, value string) string {
	if s.labels != nil {
		if label, ok := s.labels.Label(ctx, kind, value); ok && label != "" {
			return label
		}
	}
	return graph.Humanize(value)
}
