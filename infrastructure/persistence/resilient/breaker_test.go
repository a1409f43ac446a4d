package resilient

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kbquery/application/ports"
	"kbquery/domain/graph"
	"kbquery/infrastructure/persistence/memory"
	apperrors "kbquery/pkg/errors"
)

type failingFast struct {
	ports.FastGraphSource
	calls int
}

func (f *failingFast) CountNodes(context.Context, ports.NodeWhere) (int, error) {
	f.calls++
	return 0, errors.New("connection refused")
}

func TestFastSource_OpensAfterRepeatedFailures(t *testing.T) {
	inner := &failingFast{}
	source := NewFastSource(inner, DefaultBreakerConfig("fast"), zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := source.CountNodes(ctx, ports.NodeWhere{})
		require.Error(t, err)
		assert.False(t, apperrors.IsSourceUnavailable(err), "backend error passes through")
	}
	assert.Equal(t, gobreaker.StateOpen, source.State())

	_, err := source.CountNodes(ctx, ports.NodeWhere{})

	require.Error(t, err)
	assert.True(t, apperrors.IsSourceUnavailable(err))
	assert.Equal(t, 5, inner.calls, "open breaker does not reach the backend")
}

func TestFastSource_CancelledCallsDoNotTrip(t *testing.T) {
	inner := &cancelledFast{}
	source := NewFastSource(inner, DefaultBreakerConfig("fast"), zap.NewNop())

	for i := 0; i < 10; i++ {
		_, _ = source.QueryNodes(context.Background(), ports.NodeWhere{}, 1, "")
	}

	assert.Equal(t, gobreaker.StateClosed, source.State())
}

type cancelledFast struct {
	ports.FastGraphSource
}

func (cancelledFast) QueryNodes(context.Context, ports.NodeWhere, int, string) ([]*graph.Node, error) {
	return nil, context.Canceled
}

func TestSources_PassResultsThrough(t *testing.T) {
	store := memory.NewStoreFromSnapshot(&graph.Snapshot{
		Nodes: []*graph.Node{{ID: "a", EntityType: "service", Scope: graph.Scope{OrgID: "org1"}}},
	})
	fast := NewFastSource(store, DefaultBreakerConfig("fast"), nil)
	generic := NewGenericSource(store, DefaultBreakerConfig("generic"), nil)
	ctx := context.Background()

	count, err := fast.CountNodes(ctx, ports.NodeWhere{Scope: graph.Scope{OrgID: "org1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	n, err := generic.GetNodeByID(ctx, "a")
	require.NoError(t, err)
	require.NotNil(t, n)
	assert.Equal(t, "service", n.EntityType)

	missing, err := generic.GetNodeByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
