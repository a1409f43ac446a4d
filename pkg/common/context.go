package common

import (
	"context"

	"kbquery/domain/graph"
)

// ContextKey represents a context key type
type ContextKey string

// Context keys
const (
	ContextKeyScope     ContextKey = "scope"
	ContextKeyRequestID ContextKey = "request_id"
)

// WithScope adds the caller's scope filter to context
func WithScope(ctx context.Context, scope graph.Scope) context.Context {
	return context.WithValue(ctx, ContextKeyScope, scope)
}

// GetScope extracts the scope filter from context
func GetScope(ctx context.Context) (graph.Scope, bool) {
	scope, ok := ctx.Value(ContextKeyScope).(graph.Scope)
	return scope, ok
}

// WithRequestID adds request ID to context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) (string, bool) {
	requestID, ok := ctx.Value(ContextKeyRequestID).(string)
	return requestID, ok
}
