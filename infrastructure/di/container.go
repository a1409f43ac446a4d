package di

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"kbquery/application/queries"
	querybus "kbquery/application/queries/bus"
	"kbquery/infrastructure/config"
	"kbquery/infrastructure/observability"
)

// Container holds all application dependencies
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Collector
	Service  *queries.GraphQueryService
	QueryBus *querybus.QueryBus
	Handler  http.Handler
	Tracing  *observability.TracerProvider
}

// Shutdown flushes telemetry and syncs the logger
func (c *Container) Shutdown(ctx context.Context) error {
	err := c.Tracing.Shutdown(ctx)
	_ = c.Logger.Sync()
	return err
}
