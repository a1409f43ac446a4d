package queries

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"kbquery/domain/graph"
)

// Tier names, also used as metric and log labels.
const (
	tierFast    = "fast"
	tierGeneric = "generic"
	tierSample  = "sample"
)

// Tier outcomes.
const (
	outcomeHit      = "hit"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// tier is one source attempt in a resolution chain.
type tier[T any] struct {
	name string
	run  func(ctx context.Context) (T, error)
}

// resolved is the answer of a chain and the tier that produced it.
// ok is false when no tier produced an accepted answer.
type resolved[T any] struct {
	value T
	tier  string
	ok    bool
}

// resolveTiers runs tiers in order and returns the first answer accept
// approves. A tier error is logged and hands over to the next tier, so a
// failing backend never fails the request.
func resolveTiers[T any](
	ctx context.Context,
	s *GraphQueryService,
	operation string,
	scope graph.Scope,
	accept func(T) bool,
	tiers []tier[T],
) resolved[T] {
	for _, t := range tiers {
		tctx, span := s.tracer.Start(ctx, operation+"."+t.name)
		span.SetAttributes(
			attribute.String("kb.tier", t.name),
			attribute.String("kb.org_id", scope.OrgID),
		)

		value, err := t.run(tctx)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.End()
			s.metrics.ObserveTier(operation, t.name, outcomeError)
			s.logger.Warn("Source tier failed, falling back",
				zap.String("operation", operation),
				zap.String("tier", t.name),
				zap.String("orgId", scope.OrgID),
				zap.Error(err),
			)
			continue
		}

		if accept != nil && !accept(value) {
			span.SetAttributes(attribute.String("kb.outcome", outcomeRejected))
			span.End()
			s.metrics.ObserveTier(operation, t.name, outcomeRejected)
			s.logger.Debug("Source tier answer not accepted",
				zap.String("operation", operation),
				zap.String("tier", t.name),
				zap.String("orgId", scope.OrgID),
			)
			continue
		}

		span.SetAttributes(attribute.String("kb.outcome", outcomeHit))
		span.End()
		s.metrics.ObserveTier(operation, t.name, outcomeHit)
		if t.name == tierSample {
			s.logger.Info("Serving sample graph",
				zap.String("operation", operation),
				zap.String("orgId", scope.OrgID),
			)
		}
		return resolved[T]{value: value, tier: t.name, ok: true}
	}

	s.logger.Debug("No source tier answered",
		zap.String("operation", operation),
		zap.String("orgId", scope.OrgID),
	)
	var zero T
	return resolved[T]{value: zero}
}
