package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	querybus "kbquery/application/queries/bus"
	"kbquery/interfaces/http/rest/handlers"
	"kbquery/interfaces/http/rest/middleware"
	"kbquery/pkg/common"
	apperrors "kbquery/pkg/errors"
)

// ReadinessCheck reports whether the backing sources can serve requests
type ReadinessCheck func(ctx context.Context) error

// Options configures optional router features
type Options struct {
	EnableCORS bool
	Debug      bool

	// Metrics is mounted at /metrics when set
	Metrics  http.Handler
	Observer middleware.HTTPObserver

	Ready ReadinessCheck

	// RateLimiter throttles /api/v1 per org when set
	RateLimiter *middleware.OrgRateLimiter
}

// Router creates and configures the HTTP router
type Router struct {
	queryBus *querybus.QueryBus
	logger   *zap.Logger
	opts     Options
}

// NewRouter creates a new router instance
func NewRouter(queryBus *querybus.QueryBus, logger *zap.Logger, opts Options) *Router {
	return &Router{
		queryBus: queryBus,
		logger:   logger,
		opts:     opts,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()
	errs := apperrors.NewErrorHandler(rt.logger, rt.opts.Debug)

	// Global middleware
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(errs.Middleware)
	router.Use(middleware.Logger(rt.logger))
	if rt.opts.Observer != nil {
		router.Use(middleware.Metrics(rt.opts.Observer))
	}

	if rt.opts.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{
				"Accept", "Content-Type", "X-Request-ID",
				middleware.HeaderOrgID, middleware.HeaderDomainID,
				middleware.HeaderProjectID, middleware.HeaderTeamID,
			},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)
	if rt.opts.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", rt.opts.Metrics)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Scope(errs))
		if rt.opts.RateLimiter != nil {
			r.Use(middleware.RateLimit(rt.opts.RateLimiter, errs))
		}

		graphHandler := handlers.NewGraphHandler(rt.queryBus, errs, rt.logger)
		r.Route("/nodes", func(r chi.Router) {
			r.Get("/", graphHandler.ListNodes)
			r.Get("/{nodeID}", graphHandler.GetNode)
			r.Get("/{nodeID}/scene", graphHandler.GetScene)
		})
		r.Get("/edges", graphHandler.ListEdges)
		r.Get("/facets", graphHandler.GetFacets)
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	_ = common.RespondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// readinessCheck reports whether the sources answer within two seconds
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	if rt.opts.Ready != nil {
		ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := rt.opts.Ready(ctx); err != nil {
			rt.logger.Warn("Readiness check failed", zap.Error(err))
			_ = common.RespondError(w, http.StatusServiceUnavailable, "NOT_READY", err.Error())
			return
		}
	}
	_ = common.RespondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
