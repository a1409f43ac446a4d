package labels

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kbquery/application/ports"
)

const catalogYAML = `
nodeType:
  service: Service
  k8s_cluster: Kubernetes Cluster
team:
  core: Core Platform
`

func writeCatalog(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "labels.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestCatalogResolver_Label(t *testing.T) {
	path := writeCatalog(t, t.TempDir(), catalogYAML)

	r, err := LoadCatalogResolver(path, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	label, ok := r.Label(ctx, ports.LabelNodeType, "k8s_cluster")
	assert.True(t, ok)
	assert.Equal(t, "Kubernetes Cluster", label)

	label, ok = r.Label(ctx, ports.LabelTeam, "core")
	assert.True(t, ok)
	assert.Equal(t, "Core Platform", label)

	_, ok = r.Label(ctx, ports.LabelTeam, "unknown")
	assert.False(t, ok)

	_, ok = r.Label(ctx, ports.LabelProject, "core")
	assert.False(t, ok, "kinds are independent")
}

func TestCatalogResolver_ReloadKeepsCatalogOnParseError(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, catalogYAML)
	r, err := LoadCatalogResolver(path, zap.NewNop())
	require.NoError(t, err)

	writeCatalog(t, dir, "nodeType: [not, a, map")
	assert.Error(t, r.Reload())

	label, ok := r.Label(context.Background(), ports.LabelNodeType, "service")
	assert.True(t, ok)
	assert.Equal(t, "Service", label)
}

func TestCatalogResolver_WatchPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	path := writeCatalog(t, dir, catalogYAML)
	r, err := LoadCatalogResolver(path, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Watch(ctx))

	writeCatalog(t, dir, "nodeType:\n  service: Microservice\n")

	assert.Eventually(t, func() bool {
		label, _ := r.Label(context.Background(), ports.LabelNodeType, "service")
		return label == "Microservice"
	}, 5*time.Second, 50*time.Millisecond)
}

func TestReadCatalog_Errors(t *testing.T) {
	_, err := ReadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	empty := writeCatalog(t, t.TempDir(), "")
	catalog, err := ReadCatalog(empty)
	require.NoError(t, err)
	assert.Empty(t, catalog)
}
