package queries

import (
	"strings"

	"kbquery/domain/graph"
	"kbquery/pkg/errors"
)

// ListNodesQuery represents a request for one page of nodes
type ListNodesQuery struct {
	Scope      graph.Scope
	EntityType string
	Search     string
	First      int
	After      string
}

// Validate validates the ListNodesQuery
func (q ListNodesQuery) Validate() error {
	return validateScope(q.Scope)
}

func (q ListNodesQuery) narrowed() bool {
	return strings.TrimSpace(q.EntityType) != "" || strings.TrimSpace(q.Search) != ""
}

// ListEdgesQuery represents a request for one page of edges
type ListEdgesQuery struct {
	Scope        graph.Scope
	EdgeType     string
	SourceNodeID string
	TargetNodeID string
	First        int
	After        string
}

// Validate validates the ListEdgesQuery
func (q ListEdgesQuery) Validate() error {
	return validateScope(q.Scope)
}

func (q ListEdgesQuery) narrowed() bool {
	return strings.TrimSpace(q.EdgeType) != "" ||
		strings.TrimSpace(q.SourceNodeID) != "" ||
		strings.TrimSpace(q.TargetNodeID) != ""
}

// GetNodeQuery represents a query to get a single node
type GetNodeQuery struct {
	Scope  graph.Scope
	NodeID string
}

// Validate validates the GetNodeQuery
func (q GetNodeQuery) Validate() error {
	if err := validateScope(q.Scope); err != nil {
		return err
	}
	if strings.TrimSpace(q.NodeID) == "" {
		return errors.NewValidationError("node id is required")
	}
	return nil
}

// GetSceneQuery asks for the bounded neighborhood around a root node.
// Depth and Limit fall back to configured defaults when zero.
type GetSceneQuery struct {
	Scope     graph.Scope
	NodeID    string
	EdgeTypes []string
	Depth     int
	Limit     int
}

// Validate validates the GetSceneQuery
func (q GetSceneQuery) Validate() error {
	if err := validateScope(q.Scope); err != nil {
		return err
	}
	if strings.TrimSpace(q.NodeID) == "" {
		return errors.NewValidationError("node id is required")
	}
	return nil
}

// GetFacetsQuery represents a request for grouped counts within a scope
type GetFacetsQuery struct {
	Scope graph.Scope
}

// Validate validates the GetFacetsQuery
func (q GetFacetsQuery) Validate() error {
	return validateScope(q.Scope)
}

func validateScope(scope graph.Scope) error {
	if strings.TrimSpace(scope.OrgID) == "" {
		return errors.NewValidationError("orgId is required")
	}
	return nil
}

func typeFilter(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return []string{value}
}
