package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.ServerAddress)
	assert.Equal(t, FastSourceSQLite, cfg.FastSource)
	assert.Equal(t, GenericSourceMemory, cfg.GenericSource)
	assert.Equal(t, 15*time.Minute, cfg.FacetCacheTTL)
	assert.Equal(t, 20, cfg.NodePageDefault)
	assert.Equal(t, 50, cfg.EdgePageDefault)
	assert.Equal(t, 100, cfg.PageMax)
	assert.Equal(t, 200, cfg.SceneNodeCap)
	assert.Equal(t, 400, cfg.SceneEdgeCap)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kbquery.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
serverAddress: ":9090"
genericSource: neo4j
neo4jUri: bolt://graph:7687
facetCacheTtl: 2m
pageMax: 50
nodePageDefault: 10
edgePageDefault: 25
`), 0o644))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("SERVER_ADDRESS", ":7070")
	t.Setenv("SCENE_NODE_CAP", "75")

	cfg, err := LoadConfig()

	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.ServerAddress, "env wins over file")
	assert.Equal(t, GenericSourceNeo4j, cfg.GenericSource)
	assert.Equal(t, "bolt://graph:7687", cfg.Neo4jURI)
	assert.Equal(t, 2*time.Minute, cfg.FacetCacheTTL)
	assert.Equal(t, 50, cfg.PageMax)
	assert.Equal(t, 75, cfg.SceneNodeCap)
	assert.Equal(t, 400, cfg.SceneEdgeCap, "unset keys keep defaults")
}

func TestLoadConfig_BadFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))

	_, err := LoadConfig()

	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown fast source", func(c *Config) { c.FastSource = "postgres" }},
		{"sqlite without path", func(c *Config) { c.SQLitePath = "" }},
		{"dynamodb without table", func(c *Config) { c.GenericSource = GenericSourceDynamoDB; c.DynamoDBTable = "" }},
		{"neo4j without uri", func(c *Config) { c.GenericSource = GenericSourceNeo4j }},
		{"redis without addr", func(c *Config) { c.FacetCache = FacetCacheRedis }},
		{"zero ttl", func(c *Config) { c.FacetCacheTTL = 0 }},
		{"default above max", func(c *Config) { c.NodePageDefault = 500 }},
		{"negative scene cap", func(c *Config) { c.SceneEdgeCap = -1 }},
		{"ratio above one", func(c *Config) { c.BreakerFailureRatio = 1.5 }},
		{"tracing without endpoint", func(c *Config) { c.EnableTracing = true }},
	}

	require.NoError(t, Default().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
