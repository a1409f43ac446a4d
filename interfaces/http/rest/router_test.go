package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kbquery/application/queries"
	querybus "kbquery/application/queries/bus"
	"kbquery/domain/graph"
	"kbquery/infrastructure/persistence/memory"
	"kbquery/interfaces/http/rest/middleware"
)

var t0 = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type errorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func setupRouter(t *testing.T, opts Options) http.Handler {
	t.Helper()
	org := graph.Scope{OrgID: "org1"}
	store := memory.NewStoreFromSnapshot(&graph.Snapshot{
		Nodes: []*graph.Node{
			{ID: "a", EntityType: "service", DisplayName: "Checkout", Scope: org, UpdatedAt: t0},
			{ID: "b", EntityType: "database", DisplayName: "Orders", Scope: org, UpdatedAt: t0.Add(-time.Minute)},
			{ID: "c", EntityType: "service", DisplayName: "Billing", Scope: graph.Scope{OrgID: "org1", TeamID: "core"}, UpdatedAt: t0.Add(-2 * time.Minute)},
		},
		Edges: []*graph.Edge{
			{ID: "ab", EdgeType: "reads", SourceNodeID: "a", TargetNodeID: "b", Scope: org, UpdatedAt: t0},
			{ID: "ca", EdgeType: "calls", SourceNodeID: "c", TargetNodeID: "a", Scope: org, UpdatedAt: t0},
		},
	})
	svc := queries.NewGraphQueryService(store, store, nil, nil, nil, zap.NewNop(), queries.Options{})
	b := querybus.NewQueryBus()
	require.NoError(t, queries.RegisterHandlers(b, svc))
	return NewRouter(b, zap.NewNop(), opts).Setup()
}

func get(t *testing.T, h http.Handler, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

var org1 = map[string]string{middleware.HeaderOrgID: "org1"}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success)
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestRouter_ListNodes(t *testing.T) {
	h := setupRouter(t, Options{})

	rec := get(t, h, "/api/v1/nodes?first=2", org1)

	require.Equal(t, http.StatusOK, rec.Code)
	var conn queries.NodeConnection
	decodeData(t, rec, &conn)
	require.Len(t, conn.Edges, 2)
	assert.Equal(t, "a", conn.Edges[0].Node.ID)
	assert.Equal(t, 3, conn.TotalCount)
	assert.True(t, conn.PageInfo.HasNextPage)

	rec = get(t, h, "/api/v1/nodes?first=2&after="+conn.PageInfo.EndCursor, org1)
	decodeData(t, rec, &conn)
	require.Len(t, conn.Edges, 1)
	assert.Equal(t, "c", conn.Edges[0].Node.ID)
	assert.True(t, conn.PageInfo.HasPreviousPage)
}

func TestRouter_ScopeHeaders(t *testing.T) {
	h := setupRouter(t, Options{})

	rec := get(t, h, "/api/v1/nodes", map[string]string{middleware.HeaderOrgID: "org1", middleware.HeaderTeamID: "core"})
	var conn queries.NodeConnection
	decodeData(t, rec, &conn)
	require.Len(t, conn.Edges, 1)
	assert.Equal(t, "c", conn.Edges[0].Node.ID)

	missing := get(t, h, "/api/v1/nodes", nil)
	assert.Equal(t, http.StatusBadRequest, missing.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(missing.Body.Bytes(), &body))
	assert.Equal(t, "VALIDATION", body.Type)
}

func TestRouter_BadQueryParameters(t *testing.T) {
	h := setupRouter(t, Options{})

	tests := []string{
		"/api/v1/nodes?first=abc",
		"/api/v1/nodes?first=-1",
		"/api/v1/edges?first=x",
		"/api/v1/nodes/a/scene?depth=two",
	}
	for _, path := range tests {
		t.Run(path, func(t *testing.T) {
			assert.Equal(t, http.StatusBadRequest, get(t, h, path, org1).Code)
		})
	}
}

func TestRouter_GetNode(t *testing.T) {
	h := setupRouter(t, Options{})

	rec := get(t, h, "/api/v1/nodes/b", org1)
	require.Equal(t, http.StatusOK, rec.Code)
	var n graph.Node
	decodeData(t, rec, &n)
	assert.Equal(t, "Orders", n.DisplayName)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/nodes/zzz", org1).Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/nodes/b", map[string]string{middleware.HeaderOrgID: "org2"}).Code)
}

func TestRouter_GetScene(t *testing.T) {
	h := setupRouter(t, Options{})

	rec := get(t, h, "/api/v1/nodes/a/scene?edgeTypes=reads", org1)

	require.Equal(t, http.StatusOK, rec.Code)
	var scene graph.Scene
	decodeData(t, rec, &scene)
	assert.Equal(t, graph.SceneSummary{NodeCount: 2, EdgeCount: 1}, scene.Summary)

	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/v1/nodes/zzz/scene", org1).Code)
}

func TestRouter_ListEdgesAndFacets(t *testing.T) {
	h := setupRouter(t, Options{})

	rec := get(t, h, "/api/v1/edges?targetId=a", org1)
	var conn queries.EdgeConnection
	decodeData(t, rec, &conn)
	require.Len(t, conn.Edges, 1)
	assert.Equal(t, "ca", conn.Edges[0].Edge.ID)

	rec = get(t, h, "/api/v1/facets", org1)
	require.Equal(t, http.StatusOK, rec.Code)
	var facets graph.Facets
	decodeData(t, rec, &facets)
	require.NotEmpty(t, facets.NodeTypes)
	assert.Equal(t, "service", facets.NodeTypes[0].Value)
	assert.Equal(t, 2, facets.NodeTypes[0].Count)
}

func TestRouter_HealthAndReadiness(t *testing.T) {
	h := setupRouter(t, Options{})
	assert.Equal(t, http.StatusOK, get(t, h, "/health", nil).Code)
	assert.Equal(t, http.StatusOK, get(t, h, "/ready", nil).Code)
	assert.Equal(t, http.StatusNotFound, get(t, h, "/metrics", nil).Code)

	failing := setupRouter(t, Options{Ready: func(context.Context) error { return errors.New("sqlite closed") }})
	assert.Equal(t, http.StatusServiceUnavailable, get(t, failing, "/ready", nil).Code)
}

type recordingObserver struct {
	routes []string
}

func (o *recordingObserver) ObserveHTTP(method, route string, status int, _ time.Duration) {
	o.routes = append(o.routes, route)
}

func TestRouter_MetricsAndCORS(t *testing.T) {
	observer := &recordingObserver{}
	h := setupRouter(t, Options{
		EnableCORS: true,
		Observer:   observer,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		}),
	})

	assert.Equal(t, "# metrics", get(t, h, "/metrics", nil).Body.String())

	rec := get(t, h, "/api/v1/nodes/a", map[string]string{middleware.HeaderOrgID: "org1", "Origin": "http://example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, observer.routes, "/api/v1/nodes/{nodeID}")
}
