package neo4j

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kbquery/domain/graph"
)

func TestRows_MapRecordsForUpsert(t *testing.T) {
	updated := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	nodes := []*graph.Node{
		{ID: "a", EntityType: "service", DisplayName: "Checkout", Scope: graph.Scope{OrgID: "org1"}, Properties: graph.Properties{"Tier": "Gold"}, UpdatedAt: updated},
		nil,
		{ID: ""},
	}

	rows, err := nodeRows(nodes)

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "a", rows[0]["id"])
	assert.Equal(t, "org1", rows[0]["org_id"])
	assert.Equal(t, "service", rows[0]["entity_type"])
	assert.Contains(t, rows[0]["search_text"], "checkout")
	assert.Contains(t, rows[0]["search_text"], `"tier":"gold"`)

	var back graph.Node
	require.NoError(t, json.Unmarshal([]byte(rows[0]["record"].(string)), &back))
	assert.True(t, back.UpdatedAt.Equal(updated))

	edges, err := edgeRows([]*graph.Edge{
		{ID: "ab", EdgeType: "calls", SourceNodeID: "a", TargetNodeID: "b", Scope: graph.Scope{OrgID: "org1"}},
		{ID: "dangling", SourceNodeID: "a"},
	})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "b", edges[0]["target"])
}

func TestDecode_ReadsRecordColumn(t *testing.T) {
	n := &graph.Node{ID: "a", EntityType: "service", Scope: graph.Scope{OrgID: "org1", TeamID: "core"}}
	raw, err := json.Marshal(n)
	require.NoError(t, err)

	nodes, err := decodeNodes([]*neo4j.Record{{Keys: []string{"record"}, Values: []any{string(raw)}}})

	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, "core", nodes[0].Scope.TeamID)

	e := &graph.Edge{ID: "ab", EdgeType: "calls", SourceNodeID: "a", TargetNodeID: "b"}
	raw, err = json.Marshal(e)
	require.NoError(t, err)
	edges, err := decodeEdges([]*neo4j.Record{{Keys: []string{"record"}, Values: []any{string(raw)}}})
	require.NoError(t, err)
	assert.Equal(t, "calls", edges[0].EdgeType)
}

func TestDecode_RejectsMalformedRows(t *testing.T) {
	_, err := decodeNodes([]*neo4j.Record{{Keys: []string{"other"}, Values: []any{"x"}}})
	assert.Error(t, err)

	_, err = decodeNodes([]*neo4j.Record{{Keys: []string{"record"}, Values: []any{int64(4)}}})
	assert.Error(t, err)

	_, err = decodeEdges([]*neo4j.Record{{Keys: []string{"record"}, Values: []any{"{"}}})
	assert.Error(t, err)
}

func TestStringsOrEmpty(t *testing.T) {
	assert.Equal(t, []string{}, stringsOrEmpty(nil))
	assert.Equal(t, []string{"a"}, stringsOrEmpty([]string{"a"}))
}
