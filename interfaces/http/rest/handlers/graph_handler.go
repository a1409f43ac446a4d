package handlers

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"kbquery/application/queries"
	querybus "kbquery/application/queries/bus"
	"kbquery/domain/graph"
	"kbquery/pkg/common"
	apperrors "kbquery/pkg/errors"
	"kbquery/pkg/utils"
)

// GraphHandler serves the read operations over HTTP
type GraphHandler struct {
	queryBus *querybus.QueryBus
	errors   *apperrors.ErrorHandler
	logger   *zap.Logger
}

// NewGraphHandler creates a new graph handler
func NewGraphHandler(queryBus *querybus.QueryBus, errs *apperrors.ErrorHandler, logger *zap.Logger) *GraphHandler {
	return &GraphHandler{
		queryBus: queryBus,
		errors:   errs,
		logger:   logger,
	}
}

// ListNodesRequest holds the query string of GET /nodes
type ListNodesRequest struct {
	EntityType string `query:"entityType" validate:"max=200"`
	Search     string `query:"search" validate:"max=500"`
	First      int    `query:"first" validate:"gte=0"`
	After      string `query:"after" validate:"max=1024"`
}

// ListEdgesRequest holds the query string of GET /edges
type ListEdgesRequest struct {
	EdgeType string `query:"edgeType" validate:"max=200"`
	SourceID string `query:"sourceId" validate:"max=200"`
	TargetID string `query:"targetId" validate:"max=200"`
	First    int    `query:"first" validate:"gte=0"`
	After    string `query:"after" validate:"max=1024"`
}

// SceneRequest holds the query string of GET /nodes/{nodeID}/scene
type SceneRequest struct {
	EdgeTypes []string `query:"edgeTypes" validate:"max=50,dive,max=200"`
	Depth     int      `query:"depth" validate:"gte=0"`
	Limit     int      `query:"limit" validate:"gte=0"`
}

// ListNodes handles GET /nodes
func (h *GraphHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListNodesRequest{
		EntityType: q.Get("entityType"),
		Search:     q.Get("search"),
		After:      q.Get("after"),
	}
	var err error
	if req.First, err = intParam(r, "first"); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	h.ask(w, r, "list nodes", queries.ListNodesQuery{
		Scope:      scopeOf(r),
		EntityType: req.EntityType,
		Search:     req.Search,
		First:      req.First,
		After:      req.After,
	})
}

// ListEdges handles GET /edges
func (h *GraphHandler) ListEdges(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListEdgesRequest{
		EdgeType: q.Get("edgeType"),
		SourceID: q.Get("sourceId"),
		TargetID: q.Get("targetId"),
		After:    q.Get("after"),
	}
	var err error
	if req.First, err = intParam(r, "first"); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	h.ask(w, r, "list edges", queries.ListEdgesQuery{
		Scope:        scopeOf(r),
		EdgeType:     req.EdgeType,
		SourceNodeID: req.SourceID,
		TargetNodeID: req.TargetID,
		First:        req.First,
		After:        req.After,
	})
}

// GetNode handles GET /nodes/{nodeID}
func (h *GraphHandler) GetNode(w http.ResponseWriter, r *http.Request) {
	nodeID := chi.URLParam(r, "nodeID")

	result, err := h.queryBus.Ask(r.Context(), queries.GetNodeQuery{Scope: scopeOf(r), NodeID: nodeID})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	node, _ := result.(*graph.Node)
	if node == nil {
		h.errors.Handle(w, r, apperrors.NewNotFoundError(fmt.Sprintf("node %s", nodeID)))
		return
	}
	h.respond(w, node)
}

// GetScene handles GET /nodes/{nodeID}/scene
func (h *GraphHandler) GetScene(w http.ResponseWriter, r *http.Request) {
	req := SceneRequest{EdgeTypes: listParam(r, "edgeTypes")}
	var err error
	if req.Depth, err = intParam(r, "depth"); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if req.Limit, err = intParam(r, "limit"); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	h.ask(w, r, "get scene", queries.GetSceneQuery{
		Scope:     scopeOf(r),
		NodeID:    chi.URLParam(r, "nodeID"),
		EdgeTypes: req.EdgeTypes,
		Depth:     req.Depth,
		Limit:     req.Limit,
	})
}

// GetFacets handles GET /facets
func (h *GraphHandler) GetFacets(w http.ResponseWriter, r *http.Request) {
	h.ask(w, r, "get facets", queries.GetFacetsQuery{Scope: scopeOf(r)})
}

func (h *GraphHandler) ask(w http.ResponseWriter, r *http.Request, op string, query querybus.Query) {
	result, err := h.queryBus.Ask(r.Context(), query)
	if err != nil {
		if !apperrors.IsValidation(err) && !apperrors.IsNotFound(err) {
			h.logger.Error("Failed to "+op, zap.Error(err))
		}
		h.errors.Handle(w, r, err)
		return
	}
	h.respond(w, result)
}

func (h *GraphHandler) respond(w http.ResponseWriter, data interface{}) {
	if err := common.RespondJSON(w, http.StatusOK, data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func scopeOf(r *http.Request) graph.Scope {
	scope, _ := common.GetScope(r.Context())
	return scope
}

// intParam parses an optional integer query parameter; absent is zero
func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.NewValidationError(fmt.Sprintf("%s must be an integer", name))
	}
	return v, nil
}

// listParam reads a comma separated or repeated query parameter
func listParam(r *http.Request, name string) []string {
	var out []string
	for _, raw := range r.URL.Query()[name] {
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
