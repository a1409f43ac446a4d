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

// ListNodes returns one page of nodes visible under the query scope.
//
// The fast source answers first. The generic source is consulted when the
// fast one fails, and also when it reports an empty tenant on an unfiltered
// first page, in which case the built-in sample is the last resort.
func (s *GraphQueryService) ListNodes(ctx context.Context, q ListNodesQuery) (*NodeConnection, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "ListNodes")
	defer span.End()

	scope := q.Scope.Normalize()
	first := common.ClampPageSize(q.First, s.opts.NodePageDefault, s.opts.PageMax)
	afterID, hasCursor := common.DecodeCursor(q.After)
	where := ports.NodeWhere{
		Scope:       scope,
		EntityTypes: typeFilter(q.EntityType),
		Search:      strings.TrimSpace(q.Search),
	}
	sampleEligible := !hasCursor && !q.narrowed()

	var tiers []tier[page[*graph.Node]]
	if s.fast != nil {
		tiers = append(tiers, tier[page[*graph.Node]]{name: tierFast, run: func(ctx context.Context) (page[*graph.Node], error) {
			total, err := s.fast.CountNodes(ctx, where)
			if err != nil {
				return page[*graph.Node]{}, err
			}
			nodes, err := s.fast.QueryNodes(ctx, where, first+1, afterID)
			if err != nil {
				return page[*graph.Node]{}, err
			}
			return page[*graph.Node]{window: nodes, total: total}, nil
		}})
	}
	if s.generic != nil {
		tiers = append(tiers, tier[page[*graph.Node]]{name: tierGeneric, run: func(ctx context.Context) (page[*graph.Node], error) {
			nodes, err := s.generic.ListNodes(ctx, scope.OrgID, where.EntityTypes, where.Search)
			if err != nil {
				return page[*graph.Node]{}, err
			}
			return pageNodes(filterNodes(nodes, where), afterID, first), nil
		}})
	}
	if sampleEligible {
		tiers = append(tiers, tier[page[*graph.Node]]{name: tierSample, run: func(ctx context.Context) (page[*graph.Node], error) {
			return pageNodes(sample.ScopedSample(scope).Nodes, "", first), nil
		}})
	}

	accept := func(p page[*graph.Node]) bool {
		return !(sampleEligible && p.total == 0)
	}
	res := resolveTiers(ctx, s, "listNodes", scope, accept, tiers)

	span.SetAttributes(attribute.String("kb.tier", res.tier), attribute.Int("kb.total", res.value.total))
	s.logger.Debug("Listed nodes",
		zap.String("orgId", scope.OrgID),
		zap.String("tier", res.tier),
		zap.Int("first", first),
		zap.Int("total", res.value.total),
	)

	return newNodeConnection(res.value, first, hasCursor), nil
}
