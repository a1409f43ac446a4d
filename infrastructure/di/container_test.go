package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbquery/application/queries"
	"kbquery/domain/graph"
	"kbquery/infrastructure/config"
)

func TestInitializeContainer_LocalStack(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "error"
	cfg.SQLitePath = filepath.Join(t.TempDir(), "kb.db")
	cfg.EnableMetrics = true

	c, cleanup, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	// An empty tenant is answered from the sample graph.
	conn, err := c.Service.ListNodes(context.Background(), queries.ListNodesQuery{Scope: graph.Scope{OrgID: "org1"}})
	require.NoError(t, err)
	assert.NotEmpty(t, conn.Edges)

	for _, path := range []string{"/health", "/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		c.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	assert.NoError(t, c.Shutdown(context.Background()))
}

func TestInitializeContainer_WithoutFastSource(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "error"
	cfg.FastSource = config.FastSourceNone

	c, cleanup, err := InitializeContainer(context.Background(), cfg)
	require.NoError(t, err)
	defer cleanup()

	facets, err := c.Service.GetFacets(context.Background(), queries.GetFacetsQuery{Scope: graph.Scope{OrgID: "org1"}})
	require.NoError(t, err)
	assert.NotEmpty(t, facets.NodeTypes)

	rec := httptest.NewRecorder()
	c.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInitializeContainer_BadSnapshot(t *testing.T) {
	cfg := config.Default()
	cfg.FastSource = config.FastSourceNone
	cfg.SnapshotFile = filepath.Join(t.TempDir(), "missing.json")

	_, _, err := InitializeContainer(context.Background(), cfg)

	assert.Error(t, err)
}
