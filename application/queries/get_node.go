package queries

import (
	"context"
	"strings"

	"kbquery/application/ports"
	"kbquery/domain/graph"
	"kbquery/domain/sample"
)

// GetNode returns the node with the given id when it is visible under the
// query scope, or nil when no tier knows it.
func (s *GraphQueryService) GetNode(ctx context.Context, q GetNodeQuery) (*graph.Node, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "GetNode")
	defer span.End()

	node, _ := s.resolveNode(ctx, q.Scope.Normalize(), strings.TrimSpace(q.NodeID), true, true)
	return node, nil
}

// resolveNode looks a node up through the tiers and reports which tier
// found it. A node outside scope is treated as missing.
func (s *GraphQueryService) resolveNode(ctx context.Context, scope graph.Scope, id string, withFast, withSample bool) (*graph.Node, string) {
	var tiers []tier[*graph.Node]
	if withFast && s.fast != nil {
		tiers = append(tiers, tier[*graph.Node]{name: tierFast, run: func(ctx context.Context) (*graph.Node, error) {
			nodes, err := s.fast.QueryNodes(ctx, ports.NodeWhere{Scope: scope, ID: id}, 1, "")
			if err != nil || len(nodes) == 0 {
				return nil, err
			}
			return nodes[0], nil
		}})
	}
	if s.generic != nil {
		tiers = append(tiers, tier[*graph.Node]{name: tierGeneric, run: func(ctx context.Context) (*graph.Node, error) {
			node, err := s.generic.GetNodeByID(ctx, id)
			if err != nil || node == nil {
				return nil, err
			}
			if !node.Scope.Matches(scope) {
				return nil, nil
			}
			return node, nil
		}})
	}
	if withSample {
		tiers = append(tiers, tier[*graph.Node]{name: tierSample, run: func(ctx context.Context) (*graph.Node, error) {
			return findNode(sample.ScopedSample(scope).Nodes, id), nil
		}})
	}

	res := resolveTiers(ctx, s, "getNode", scope, func(n *graph.Node) bool { return n != nil }, tiers)
	if !res.ok {
		return nil, ""
	}
	return res.value, res.tier
}

func findNode(nodes []*graph.Node, id string) *graph.Node {
	for _, n := range nodes {
		if n.ID == id {
			return n
		}
	}
	return nil
}
