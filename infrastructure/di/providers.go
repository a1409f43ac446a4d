package di

import (
	"context"
	"fmt"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"go.uber.org/zap"

	"kbquery/application/ports"
	"kbquery/application/queries"
	querybus "kbquery/application/queries/bus"
	"kbquery/infrastructure/cache"
	"kbquery/infrastructure/config"
	"kbquery/infrastructure/labels"
	"kbquery/infrastructure/observability"
	"kbquery/infrastructure/persistence/dynamodb"
	"kbquery/infrastructure/persistence/memory"
	"kbquery/infrastructure/persistence/neo4j"
	"kbquery/infrastructure/persistence/resilient"
	"kbquery/infrastructure/persistence/sqlite"
	"kbquery/interfaces/http/rest"
	"kbquery/interfaces/http/rest/middleware"
)

const serviceName = "kbquery"

// ProvideLogger creates a new logger instance
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.IsProduction() {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.LogLevel != "" {
		level, err := zap.ParseAtomicLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		zcfg.Level = level
	}

	logger, err := zcfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", serviceName)), nil
}

// ProvideTracing installs the OTLP tracer provider when tracing is enabled
func ProvideTracing(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*observability.TracerProvider, error) {
	if !cfg.EnableTracing {
		return nil, nil
	}
	tp, err := observability.InitTracing(ctx, serviceName, cfg.Environment, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}
	logger.Info("Tracing enabled", zap.String("endpoint", cfg.OTLPEndpoint))
	return tp, nil
}

// ProvideCollector creates the Prometheus collector
func ProvideCollector() *observability.Collector {
	return observability.NewCollector(serviceName)
}

// ProvideQueryMetrics exposes the collector to the query service
func ProvideQueryMetrics(c *observability.Collector) ports.QueryMetrics {
	return c
}

// ProvideSQLiteStore opens the fast store, or returns nil when it is disabled
func ProvideSQLiteStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*sqlite.Store, func(), error) {
	if cfg.FastSource != config.FastSourceSQLite {
		return nil, func() {}, nil
	}
	store, err := sqlite.Open(ctx, cfg.SQLitePath, logger.Named("sqlite"))
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close SQLite store", zap.Error(err))
		}
	}
	return store, cleanup, nil
}

// ProvideFastSource guards the SQLite store with a circuit breaker
func ProvideFastSource(store *sqlite.Store, cfg *config.Config, logger *zap.Logger) ports.FastGraphSource {
	if store == nil {
		return nil
	}
	return resilient.NewFastSource(store, breakerConfig(cfg, "fast-source"), logger)
}

// ProvideGenericSource connects the configured generic source
func ProvideGenericSource(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.GenericGraphSource, func(), error) {
	switch cfg.GenericSource {
	case config.GenericSourceDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, nil, fmt.Errorf("load AWS config: %w", err)
		}
		source := dynamodb.NewSource(awsdynamodb.NewFromConfig(awsCfg), cfg.DynamoDBTable, cfg.DynamoDBNodeIndex, logger.Named("dynamodb"))
		return resilient.NewGenericSource(source, breakerConfig(cfg, "dynamodb"), logger), func() {}, nil

	case config.GenericSourceNeo4j:
		driver, err := neo4j.Connect(ctx, neo4j.Config{
			URI:      cfg.Neo4jURI,
			User:     cfg.Neo4jUser,
			Password: cfg.Neo4jPassword,
			Database: cfg.Neo4jDatabase,
		})
		if err != nil {
			return nil, nil, err
		}
		source := neo4j.NewSource(driver, cfg.Neo4jDatabase, logger.Named("neo4j"))
		cleanup := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := source.Close(ctx); err != nil {
				logger.Warn("Failed to close Neo4j driver", zap.Error(err))
			}
		}
		return resilient.NewGenericSource(source, breakerConfig(cfg, "neo4j"), logger), cleanup, nil

	default:
		if cfg.SnapshotFile == "" {
			return memory.NewStore(), func() {}, nil
		}
		store, err := memory.NewStoreFromFile(cfg.SnapshotFile)
		if err != nil {
			return nil, nil, err
		}
		nodes, edges := store.Stats()
		logger.Info("Loaded snapshot into memory store",
			zap.String("file", cfg.SnapshotFile),
			zap.Int("nodes", nodes),
			zap.Int("edges", edges),
		)
		return store, func() {}, nil
	}
}

// ProvideFacetCache creates the configured facet cache
func ProvideFacetCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.FacetCache, func(), error) {
	if cfg.FacetCache == config.FacetCacheRedis {
		client, err := cache.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() { _ = client.Close() }
		return cache.NewRedisFacetCache(client, cache.DefaultKeyPrefix, logger.Named("facet-cache")), cleanup, nil
	}

	mem := cache.NewInMemoryFacetCache(ports.SystemClock{})
	janitorCtx, cancel := context.WithCancel(context.Background())
	go mem.RunJanitor(janitorCtx, cfg.FacetCacheTTL)
	return mem, cancel, nil
}

// ProvideLabelResolver loads the label catalog when one is configured.
// The catalog is hot reloaded in development.
func ProvideLabelResolver(ctx context.Context, cfg *config.Config, logger *zap.Logger) (ports.LabelResolver, func(), error) {
	if cfg.LabelsFile == "" {
		return nil, func() {}, nil
	}
	resolver, err := labels.LoadCatalogResolver(cfg.LabelsFile, logger.Named("labels"))
	if err != nil {
		return nil, nil, err
	}
	if !cfg.IsDevelopment() {
		return resolver, func() {}, nil
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	if err := resolver.Watch(watchCtx); err != nil {
		logger.Warn("Label catalog hot reload disabled", zap.Error(err))
	}
	return resolver, cancel, nil
}

// ProvideQueryOptions maps configuration onto query limits
func ProvideQueryOptions(cfg *config.Config) queries.Options {
	opts := queries.DefaultOptions()
	opts.NodePageDefault = cfg.NodePageDefault
	opts.EdgePageDefault = cfg.EdgePageDefault
	opts.PageMax = cfg.PageMax
	opts.SceneDefaultLimit = cfg.SceneDefaultLimit
	opts.SceneNodeCap = cfg.SceneNodeCap
	opts.SceneEdgeCap = cfg.SceneEdgeCap
	opts.FacetTTL = cfg.FacetCacheTTL
	return opts
}

// ProvideQueryBus creates a query bus with the read handlers registered
func ProvideQueryBus(svc *queries.GraphQueryService, collector *observability.Collector) (*querybus.QueryBus, error) {
	b := querybus.NewQueryBus(querybus.NewMetricsMiddleware(collector))
	if err := queries.RegisterHandlers(b, svc); err != nil {
		return nil, err
	}
	return b, nil
}

// ProvideReadiness pings the fast store when there is one
func ProvideReadiness(store *sqlite.Store) rest.ReadinessCheck {
	if store == nil {
		return nil
	}
	return store.Ping
}

// ProvideRateLimiter creates the per-org limiter, or nil when disabled
func ProvideRateLimiter(cfg *config.Config) (*middleware.OrgRateLimiter, func()) {
	if cfg.RateLimitPerMinute == 0 {
		return nil, func() {}
	}
	limiter := middleware.NewOrgRateLimiter(cfg.RateLimitPerMinute, cfg.RateLimitBurst)
	ctx, cancel := context.WithCancel(context.Background())
	go limiter.RunJanitor(ctx, 5*time.Minute)
	return limiter, cancel
}

// ProvideHTTPHandler builds the HTTP router
func ProvideHTTPHandler(
	b *querybus.QueryBus,
	collector *observability.Collector,
	ready rest.ReadinessCheck,
	limiter *middleware.OrgRateLimiter,
	cfg *config.Config,
	logger *zap.Logger,
) http.Handler {
	opts := rest.Options{
		EnableCORS:  cfg.EnableCORS,
		Debug:       cfg.IsDevelopment(),
		Ready:       ready,
		RateLimiter: limiter,
	}
	if cfg.EnableMetrics {
		opts.Metrics = collector.Handler()
		opts.Observer = collector
	}
	return rest.NewRouter(b, logger.Named("http"), opts).Setup()
}

func breakerConfig(cfg *config.Config, name string) resilient.BreakerConfig {
	bc := resilient.DefaultBreakerConfig(name)
	if cfg.BreakerFailureRatio > 0 {
		bc.FailureThreshold = cfg.BreakerFailureRatio
	}
	if cfg.BreakerMinRequests > 0 {
		bc.MinRequests = uint32(cfg.BreakerMinRequests)
	}
	if cfg.BreakerOpenTimeout > 0 {
		bc.Timeout = cfg.BreakerOpenTimeout
	}
	return bc
}
