//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"kbquery/application/queries"
	"kbquery/infrastructure/config"
)

// SuperSet is the main provider set containing all providers
var SuperSet = wire.NewSet(
	ProvideLogger,
	ProvideTracing,
	ProvideCollector,
	ProvideQueryMetrics,
	ProvideSQLiteStore,
	ProvideFastSource,
	ProvideGenericSource,
	ProvideFacetCache,
	ProvideLabelResolver,
	ProvideQueryOptions,
	queries.NewGraphQueryService,
	ProvideQueryBus,
	ProvideReadiness,
	ProvideRateLimiter,
	ProvideHTTPHandler,
	wire.Struct(new(Container), "*"),
)

// InitializeContainer creates a fully wired container
func InitializeContainer(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	wire.Build(SuperSet)
	return nil, nil, nil
}
