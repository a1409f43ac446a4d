package queries

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"kbquery/application/ports"
	"kbquery/domain/graph"
	"kbquery/domain/sample"
	"kbquery/pkg/errors"
)

// GetScene returns the neighborhood within Depth hops of the root node,
// bounded by the node limit and the edge cap. The result is closed: every
// returned edge joins two returned nodes.
func (s *GraphQueryService) GetScene(ctx context.Context, q GetSceneQuery) (*graph.Scene, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "GetScene")
	defer span.End()

	scope := q.Scope.Normalize()
	rootID := strings.TrimSpace(q.NodeID)

	root, foundIn := s.resolveNode(ctx, scope, rootID, true, true)
	if root == nil {
		return nil, errors.NewNotFoundError(fmt.Sprintf("node %s", rootID))
	}

	b := &sceneBuilder{
		svc:       s,
		scope:     scope,
		edgeTypes: cleanTypes(q.EdgeTypes),
		depth:     clampInt(q.Depth, 1, 1, s.opts.SceneMaxDepth),
		nodeCap:   clampInt(q.Limit, s.opts.SceneDefaultLimit, 1, s.opts.SceneNodeCap),
		edgeCap:   s.opts.SceneEdgeCap,
		from:      foundIn,
	}
	// A sample root is expanded over the sample only; it has no neighbors in
	// the real sources.
	if foundIn == tierSample {
		b.sample = sample.ScopedSample(scope)
	}

	scene := b.build(ctx, root)

	span.SetAttributes(
		attribute.Int("kb.scene.nodes", scene.Summary.NodeCount),
		attribute.Int("kb.scene.edges", scene.Summary.EdgeCount),
		attribute.Bool("kb.scene.truncated", scene.Summary.Truncated),
	)
	if scene.Summary.Truncated {
		s.metrics.ObserveSceneTruncated()
	}
	s.logger.Debug("Built scene",
		zap.String("orgId", scope.OrgID),
		zap.String("rootId", rootID),
		zap.String("tier", foundIn),
		zap.Int("depth", b.depth),
		zap.Int("nodes", scene.Summary.NodeCount),
		zap.Int("edges", scene.Summary.EdgeCount),
		zap.Bool("truncated", scene.Summary.Truncated),
	)
	return scene, nil
}

// sceneBuilder walks the graph breadth-first from a root.
type sceneBuilder struct {
	svc       *GraphQueryService
	scope     graph.Scope
	edgeTypes []string
	depth     int
	nodeCap   int
	edgeCap   int
	sample    *graph.Snapshot
	lookups   map[string]*graph.Node

	// from is the tier the root was found in. A root the fast store does
	// not hold is expanded without it.
	from string
}

type visit struct {
	id    string
	depth int
}

func (b *sceneBuilder) build(ctx context.Context, root *graph.Node) *graph.Scene {
	nodes := map[string]*graph.Node{root.ID: root}
	order := []*graph.Node{root}
	edges := make([]*graph.Edge, 0)
	seen := make(map[string]bool)
	dropped := make(map[string]bool)
	// incident counts accepted edges per node, so a later fetch for that
	// node can be sized to still reach edges it has not seen.
	incident := make(map[string]int)
	truncated := false

	queue := []visit{{id: root.ID, depth: 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= b.depth {
			continue
		}

		// Edges touching cur are read in pages until the edge budget is
		// spent or the source runs out, so dropped edges cannot hide
		// later ones.
		after := ""
		for {
			remaining := b.edgeCap - len(edges)
			if remaining < 0 {
				remaining = 0
			}
			want := remaining + incident[cur.id] + 1
			batch := b.edgesTouching(ctx, cur.id, want, after)

			full := false
			for _, e := range batch {
				if seen[e.ID] || dropped[e.ID] {
					continue
				}

				far := e.Opposite(cur.id)
				_, visited := nodes[far]
				var farNode *graph.Node
				if !visited {
					farNode = b.resolve(ctx, far)
					if farNode == nil {
						// Dangling or out of scope endpoint.
						dropped[e.ID] = true
						continue
					}
				}

				if len(edges) >= b.edgeCap {
					truncated = true
					full = true
					break
				}
				if !visited {
					if len(order) >= b.nodeCap {
						truncated = true
						continue
					}
					nodes[far] = farNode
					order = append(order, farNode)
					queue = append(queue, visit{id: far, depth: cur.depth + 1})
				}

				seen[e.ID] = true
				edges = append(edges, e)
				incident[e.SourceNodeID]++
				if e.TargetNodeID != e.SourceNodeID {
					incident[e.TargetNodeID]++
				}
			}

			if full || len(batch) < want {
				break
			}
			last := batch[len(batch)-1].ID
			if last == after {
				break
			}
			after = last
		}
	}

	return graph.NewScene(order, edges, truncated)
}

// edgesTouching returns up to limit edges incident to id that follow
// afterID in connection order.
func (b *sceneBuilder) edgesTouching(ctx context.Context, id string, limit int, afterID string) []*graph.Edge {
	where := ports.EdgeWhere{Scope: b.scope, EdgeTypes: b.edgeTypes, TouchingNodeID: id}

	if b.sample != nil {
		return pageEdges(filterEdges(b.sample.Edges, where), afterID, limit-1).window
	}

	s := b.svc
	var tiers []tier[[]*graph.Edge]
	if s.fast != nil && b.from != tierGeneric {
		tiers = append(tiers, tier[[]*graph.Edge]{name: tierFast, run: func(ctx context.Context) ([]*graph.Edge, error) {
			return s.fast.QueryEdges(ctx, where, limit, afterID)
		}})
	}
	if s.generic != nil {
		tiers = append(tiers, tier[[]*graph.Edge]{name: tierGeneric, run: func(ctx context.Context) ([]*graph.Edge, error) {
			outgoing, err := s.generic.ListEdges(ctx, b.scope.OrgID, b.edgeTypes, id, "")
			if err != nil {
				return nil, err
			}
			incoming, err := s.generic.ListEdges(ctx, b.scope.OrgID, b.edgeTypes, "", id)
			if err != nil {
				return nil, err
			}
			return pageEdges(filterEdges(dedupeEdges(outgoing, incoming), where), afterID, limit-1).window, nil
		}})
	}

	res := resolveTiers(ctx, s, "sceneEdges", b.scope, nil, tiers)
	return res.value
}

// resolve looks up a neighbor once per build; misses are remembered too.
func (b *sceneBuilder) resolve(ctx context.Context, id string) *graph.Node {
	if n, ok := b.lookups[id]; ok {
		return n
	}
	var n *graph.Node
	if b.sample != nil {
		n = findNode(b.sample.Nodes, id)
	} else {
		n, _ = b.svc.resolveNode(ctx, b.scope, id, b.from != tierGeneric, false)
	}
	if b.lookups == nil {
		b.lookups = make(map[string]*graph.Node)
	}
	b.lookups[id] = n
	return n
}

func dedupeEdges(groups ...[]*graph.Edge) []*graph.Edge {
	seen := make(map[string]bool)
	var out []*graph.Edge
	for _, group := range groups {
		for _, e := range group {
			if e == nil || seen[e.ID] {
				continue
			}
			seen[e.ID] = true
			out = append(out, e)
		}
	}
	return out
}

func cleanTypes(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" && !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

// clampInt returns def when v is unset, otherwise v bounded to [lo, hi].
func clampInt(v, def, lo, hi int) int {
	if v <= 0 {
		v = def
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
