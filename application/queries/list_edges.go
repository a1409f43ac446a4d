package queries

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"kbquery/application/ports"
	"kbquery/domain/graph"
	"kbquery/domain/sample"
	"kbquery/pkg/common"
)

// ListEdges returns one page of edges visible under the query scope, with
// the same fallback chain as ListNodes.
func (s *GraphQueryService) ListEdges(ctx context.Context, q ListEdgesQuery) (*EdgeConnection, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "ListEdges")
	defer span.End()

	scope := q.Scope.Normalize()
	first := common.ClampPageSize(q.First, s.opts.EdgePageDefault, s.opts.PageMax)
	afterID, hasCursor := common.DecodeCursor(q.After)
	where := ports.EdgeWhere{
		Scope:        scope,
		EdgeTypes:    typeFilter(q.EdgeType),
		SourceNodeID: strings.TrimSpace(q.SourceNodeID),
		TargetNodeID: strings.TrimSpace(q.TargetNodeID),
	}
	sampleEligible := !hasCursor && !q.narrowed()

	var tiers []tier[page[*graph.Edge]]
	if s.fast != nil {
		tiers = append(tiers, tier[page[*graph.Edge]]{name: tierFast, run: func(ctx context.Context) (page[*graph.Edge], error) {
			total, err := s.fast.CountEdges(ctx, where)
			if err != nil {
				return page[*graph.Edge]{}, err
			}
			edges, err := s.fast.QueryEdges(ctx, where, first+1, afterID)
			if err != nil {
				return page[*graph.Edge]{}, err
			}
			return page[*graph.Edge]{window: edges, total: total}, nil
		}})
	}
	if s.generic != nil {
		tiers = append(tiers, tier[page[*graph.Edge]]{name: tierGeneric, run: func(ctx context.Context) (page[*graph.Edge], error) {
			edges, err := s.generic.ListEdges(ctx, scope.OrgID, where.EdgeTypes, where.SourceNodeID, where.TargetNodeID)
			if err != nil {
				return page[*graph.Edge]{}, err
			}
			return pageEdges(filterEdges(edges, where), afterID, first), nil
		}})
	}
	if sampleEligible {
		tiers = append(tiers, tier[page[*graph.Edge]]{name: tierSample, run: func(ctx context.Context) (page[*graph.Edge], error) {
			return pageEdges(sample.ScopedSample(scope).Edges, "", first), nil
		}})
	}

	accept := func(p page[*graph.Edge]) bool {
		return !(sampleEligible && p.total == 0)
	}
	res := resolveTiers(ctx, s, "listEdges", scope, accept, tiers)

	span.SetAttributes(attribute.String("kb.tier", res.tier), attribute.Int("kb.total", res.value.total))
	s.logger.Debug("Listed edges",
		zap.String("orgId", scope.OrgID),
		zap.String("tier", res.tier),
		zap.Int("first", first),
		zap.Int("total", res.value.total),
	)

	return newEdgeConnection(res.value, first, hasCursor), nil
}
