// Package graph holds the read-side model of the knowledge base: scoped
// nodes and edges, the connection ordering shared by every listing, and the
// facet and scene payloads built from them.
package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// Properties is the open key/value payload of a node or edge. Its shape
// varies by entity type, so nothing outside search and transport inspects it.
type Properties map[string]any

// Identity ties a record to its cross-source logical key.
type Identity struct {
	LogicalKey       string `json:"logicalKey"`
	ExternalID       string `json:"externalId,omitempty"`
	OriginEndpointID string `json:"originEndpointId,omitempty"`
	OriginVendor     string `json:"originVendor,omitempty"`
	Provenance       string `json:"provenance,omitempty"`
}

// Node is an entity in the knowledge base.
type Node struct {
	ID            string     `json:"id"`
	TenantID      string     `json:"tenantId"`
	ProjectID     string     `json:"projectId,omitempty"`
	EntityType    string     `json:"entityType"`
	DisplayName   string     `json:"displayName"`
	CanonicalPath string     `json:"canonicalPath,omitempty"`
	SourceSystem  string     `json:"sourceSystem,omitempty"`
	Properties    Properties `json:"properties"`
	Version       int        `json:"version"`
	Phase         string     `json:"phase,omitempty"`
	Scope         Scope      `json:"scope"`
	Identity      Identity   `json:"identity"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// Edge is a typed relationship between two nodes of the same org.
type Edge struct {
	ID               string     `json:"id"`
	TenantID         string     `json:"tenantId"`
	ProjectID        string     `json:"projectId,omitempty"`
	EdgeType         string     `json:"edgeType"`
	SourceNodeID     string     `json:"sourceNodeId"`
	TargetNodeID     string     `json:"targetNodeId"`
	SourceLogicalKey string     `json:"sourceLogicalKey"`
	TargetLogicalKey string     `json:"targetLogicalKey"`
	Scope            Scope      `json:"scope"`
	Confidence       *float64   `json:"confidence,omitempty"`
	Metadata         Properties `json:"metadata"`
	Identity         Identity   `json:"identity"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// Touches reports whether nodeID is either endpoint of e.
func (e *Edge) Touches(nodeID string) bool {
	return e.SourceNodeID == nodeID || e.TargetNodeID == nodeID
}

// Opposite returns the endpoint of e that is not nodeID. For self loops it
// returns nodeID.
func (e *Edge) Opposite(nodeID string) string {
	if e.SourceNodeID == nodeID {
		return e.TargetNodeID
	}
	return e.SourceNodeID
}

// MatchesSearch does a case-insensitive substring match of term against the
// display name, canonical path and serialized properties. An empty term
// matches everything.
func (n *Node) MatchesSearch(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	if strings.Contains(strings.ToLower(n.DisplayName), term) ||
		strings.Contains(strings.ToLower(n.CanonicalPath), term) {
		return true
	}
	return strings.Contains(strings.ToLower(n.Properties.String()), term)
}

// String serializes the properties as JSON with sorted keys. It is the text
// search runs over, so every backend stores the same rendering.
func (p Properties) String() string {
	if len(p) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	return string(raw)
}

// Snapshot is a point-in-time export of a scoped graph.
type Snapshot struct {
	Nodes []*Node `json:"nodes"`
	Edges []*Edge `json:"edges"`
}

// DecodeSnapshot reads a JSON snapshot. Nil entries are dropped.
func DecodeSnapshot(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	nodes := s.Nodes[:0]
	for _, n := range s.Nodes {
		if n != nil {
			nodes = append(nodes, n)
		}
	}
	edges := s.Edges[:0]
	for _, e := range s.Edges {
		if e != nil {
			edges = append(edges, e)
		}
	}
	s.Nodes, s.Edges = nodes, edges
	return &s, nil
}
