// Package resilient guards graph sources with circuit breakers so a failing
// backend is skipped quickly instead of timing out on every request.
package resilient

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"kbquery/application/ports"
	"kbquery/domain/graph"
	apperrors "kbquery/pkg/errors"
)

// BreakerConfig holds configuration for a source circuit breaker
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns the default configuration for name
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

func newBreaker(cfg BreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// Cancelled requests say nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
}

// execute runs fn through cb, turning a rejection into a source-unavailable
// error so the caller's fallback chain moves on.
func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, apperrors.NewSourceUnavailableError(cb.Name(), err)
		}
		return zero, err
	}
	v, _ := out.(T)
	return v, nil
}

// FastSource decorates a FastGraphSource with a circuit breaker.
type FastSource struct {
	next ports.FastGraphSource
	cb   *gobreaker.CircuitBreaker
}

var _ ports.FastGraphSource = (*FastSource)(nil)

// NewFastSource wraps next
func NewFastSource(next ports.FastGraphSource, cfg BreakerConfig, logger *zap.Logger) *FastSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FastSource{next: next, cb: newBreaker(cfg, logger)}
}

// State returns the breaker state
func (s *FastSource) State() gobreaker.State { return s.cb.State() }

func (s *FastSource) CountNodes(ctx context.Context, where ports.NodeWhere) (int, error) {
	return execute(s.cb, func() (int, error) { return s.next.CountNodes(ctx, where) })
}

func (s *FastSource) QueryNodes(ctx context.Context, where ports.NodeWhere, limit int, afterID string) ([]*graph.Node, error) {
	return execute(s.cb, func() ([]*graph.Node, error) { return s.next.QueryNodes(ctx, where, limit, afterID) })
}

func (s *FastSource) CountEdges(ctx context.Context, where ports.EdgeWhere) (int, error) {
	return execute(s.cb, func() (int, error) { return s.next.CountEdges(ctx, where) })
}

func (s *FastSource) QueryEdges(ctx context.Context, where ports.EdgeWhere, limit int, afterID string) ([]*graph.Edge, error) {
	return execute(s.cb, func() ([]*graph.Edge, error) { return s.next.QueryEdges(ctx, where, limit, afterID) })
}

func (s *FastSource) GroupCounts(ctx context.Context, scope graph.Scope) (*graph.GroupCounts, error) {
	return execute(s.cb, func() (*graph.GroupCounts, error) { return s.next.GroupCounts(ctx, scope) })
}

// GenericSource decorates a GenericGraphSource with a circuit breaker.
type GenericSource struct {
	next ports.GenericGraphSource
	cb   *gobreaker.CircuitBreaker
}

var _ ports.GenericGraphSource = (*GenericSource)(nil)

// NewGenericSource wraps next
func NewGenericSource(next ports.GenericGraphSource, cfg BreakerConfig, logger *zap.Logger) *GenericSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenericSource{next: next, cb: newBreaker(cfg, logger)}
}

// State returns the breaker state
func (s *GenericSource) State() gobreaker.State { return s.cb.State() }

func (s *GenericSource) ListNodes(ctx context.Context, orgID string, entityTypes []string, search string) ([]*graph.Node, error) {
	return execute(s.cb, func() ([]*graph.Node, error) { return s.next.ListNodes(ctx, orgID, entityTypes, search) })
}

func (s *GenericSource) ListEdges(ctx context.Context, orgID string, edgeTypes []string, sourceNodeID, targetNodeID string) ([]*graph.Edge, error) {
	return execute(s.cb, func() ([]*graph.Edge, error) {
		return s.next.ListEdges(ctx, orgID, edgeTypes, sourceNodeID, targetNodeID)
	})
}

func (s *GenericSource) GetNodeByID(ctx context.Context, id string) (*graph.Node, error) {
	return execute(s.cb, func() (*graph.Node, error) { return s.next.GetNodeByID(ctx, id) })
}
