// Package queries implements the read path over the knowledge-base graph:
// paginated listings, single-node lookup, bounded scenes and facets. Every
// operation resolves through an ordered chain of sources (fast, generic,
// sample) and degrades instead of failing when a source is unavailable.
package queries

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"kbquery/application/ports"
	"kbquery/pkg/common"
)

// Options holds the page and cap limits applied by the service.
type Options struct {
	NodePageDefault   int
	EdgePageDefault   int
	PageMax           int
	SceneDefaultLimit int
	SceneNodeCap      int
	SceneEdgeCap      int
	SceneMaxDepth     int
	FacetTTL          time.Duration
}

// DefaultOptions returns the stock limits.
func DefaultOptions() Options {
	return Options{
		NodePageDefault:   common.DefaultNodePageSize,
		EdgePageDefault:   common.DefaultEdgePageSize,
		PageMax:           common.MaxPageSize,
		SceneDefaultLimit: 50,
		SceneNodeCap:      200,
		SceneEdgeCap:      400,
		SceneMaxDepth:     3,
		FacetTTL:          15 * time.Minute,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.NodePageDefault <= 0 {
		o.NodePageDefault = d.NodePageDefault
	}
	if o.EdgePageDefault <= 0 {
		o.EdgePageDefault = d.EdgePageDefault
	}
	if o.PageMax <= 0 {
		o.PageMax = d.PageMax
	}
	if o.SceneNodeCap <= 0 {
		o.SceneNodeCap = d.SceneNodeCap
	}
	if o.SceneDefaultLimit <= 0 {
		o.SceneDefaultLimit = d.SceneDefaultLimit
	}
	if o.SceneEdgeCap <= 0 {
		o.SceneEdgeCap = d.SceneEdgeCap
	}
	if o.SceneMaxDepth <= 0 {
		o.SceneMaxDepth = d.SceneMaxDepth
	}
	if o.FacetTTL <= 0 {
		o.FacetTTL = d.FacetTTL
	}
	return o
}

// GraphQueryService answers read queries over the tiered sources.
// The fast and generic sources are optional; the built-in sample always is.
type GraphQueryService struct {
	fast    ports.FastGraphSource
	generic ports.GenericGraphSource
	cache   ports.FacetCache
	labels  ports.LabelResolver
	metrics ports.QueryMetrics
	logger  *zap.Logger
	tracer  trace.Tracer
	opts    Options
}

// NewGraphQueryService creates a new query service
func NewGraphQueryService(
	fast ports.FastGraphSource,
	generic ports.GenericGraphSource,
	cache ports.FacetCache,
	labels ports.LabelResolver,
	metrics ports.QueryMetrics,
	logger *zap.Logger,
	opts Options,
) *GraphQueryService {
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraphQueryService{
		fast:    fast,
		generic: generic,
		cache:   cache,
		labels:  labels,
		metrics: metrics,
		logger:  logger,
		tracer:  otel.Tracer("kbquery/application/queries"),
		opts:    opts.withDefaults(),
	}
}

// Options returns the effective limits.
func (s *GraphQueryService) Options() Options {
	return s.opts
}
