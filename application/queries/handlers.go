package queries

import (
	"context"
	"fmt"

	"kbquery/application/queries/bus"
)

// RegisterHandlers registers every read query of the service on the bus.
func RegisterHandlers(b *bus.QueryBus, svc *GraphQueryService) error {
	registrations := []struct {
		query   bus.Query
		handler bus.QueryHandlerFunc
	}{
		{ListNodesQuery{}, func(ctx context.Context, q bus.Query) (interface{}, error) {
			return svc.ListNodes(ctx, q.(ListNodesQuery))
		}},
		{ListEdgesQuery{}, func(ctx context.Context, q bus.Query) (interface{}, error) {
			return svc.ListEdges(ctx, q.(ListEdgesQuery))
		}},
		{GetNodeQuery{}, func(ctx context.Context, q bus.Query) (interface{}, error) {
			return svc.GetNode(ctx, q.(GetNodeQuery))
		}},
		{GetSceneQuery{}, func(ctx context.Context, q bus.Query) (interface{}, error) {
			return svc.GetScene(ctx, q.(GetSceneQuery))
		}},
		{GetFacetsQuery{}, func(ctx context.Context, q bus.Query) (interface{}, error) {
			return svc.GetFacets(ctx, q.(GetFacetsQuery))
		}},
	}

	for _, r := range registrations {
		if err := b.Register(r.query, r.handler); err != nil {
			return fmt.Errorf("failed to register %T: %w", r.query, err)
		}
	}
	return nil
}
