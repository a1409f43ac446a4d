// Package sample builds the synthetic graph shown to tenants whose scoped
// graph is still empty. The graph is fixed and derived only from its inputs;
// it is never written to a backing store.
package sample

import (
	"time"

	"kbquery/domain/graph"

	"github.com/google/uuid"
)

// SourceSystem tags every sample record.
const SourceSystem = "sample"

// Timestamp is stamped on every sample record.
var Timestamp = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// namespace seeds the name-based ids of sample records.
var namespace = uuid.MustParse("6f1c3b1e-7a52-4c8e-9d37-0b8f6f9b2a41")

type nodeSpec struct {
	slug        string
	entityType  string
	displayName string
	path        string
	props       graph.Properties
}

type edgeSpec struct {
	slug     string
	edgeType string
	from, to string
}

var nodeSpecs = []nodeSpec{
	{"checkout-service", "service", "Checkout Service", "services/checkout", graph.Properties{"language": "go", "tier": "frontend"}},
	{"payments-service", "service", "Payments Service", "services/payments", graph.Properties{"language": "go", "tier": "backend"}},
	{"orders-db", "database", "Orders Database", "datastores/orders", graph.Properties{"engine": "postgres"}},
	{"payment-events", "queue", "Payment Events", "queues/payment-events", graph.Properties{"broker": "kafka"}},
}

var edgeSpecs = []edgeSpec{
	{"checkout-calls-payments", "calls", "checkout-service", "payments-service"},
	{"checkout-reads-orders", "reads_from", "checkout-service", "orders-db"},
	{"payments-publishes-events", "publishes_to", "payments-service", "payment-events"},
}

// BuildSample returns the sample graph stamped with orgID and projectID.
// Identical inputs always yield identical ids and contents.
func BuildSample(orgID, projectID string) *graph.Snapshot {
	scope := graph.Scope{OrgID: orgID, ProjectID: projectID}

	ids := make(map[string]string, len(nodeSpecs))
	keys := make(map[string]string, len(nodeSpecs))
	nodes := make([]*graph.Node, 0, len(nodeSpecs))
	for _, spec := range nodeSpecs {
		id := recordID(orgID, projectID, "node", spec.slug)
		key := logicalKey(spec.entityType, spec.slug)
		ids[spec.slug] = id
		keys[spec.slug] = key

		props := graph.Properties{"sample": true}
		for k, v := range spec.props {
			props[k] = v
		}
		nodes = append(nodes, &graph.Node{
			ID:            id,
			TenantID:      orgID,
			ProjectID:     projectID,
			EntityType:    spec.entityType,
			DisplayName:   spec.displayName,
			CanonicalPath: spec.path,
			SourceSystem:  SourceSystem,
			Properties:    props,
			Version:       1,
			Scope:         scope,
			Identity:      graph.Identity{LogicalKey: key, Provenance: SourceSystem},
			CreatedAt:     Timestamp,
			UpdatedAt:     Timestamp,
		})
	}

	edges := make([]*graph.Edge, 0, len(edgeSpecs))
	for _, spec := range edgeSpecs {
		edges = append(edges, &graph.Edge{
			ID:               recordID(orgID, projectID, "edge", spec.slug),
			TenantID:         orgID,
			ProjectID:        projectID,
			EdgeType:         spec.edgeType,
			SourceNodeID:     ids[spec.from],
			TargetNodeID:     ids[spec.to],
			SourceLogicalKey: keys[spec.from],
			TargetLogicalKey: keys[spec.to],
			Scope:            scope,
			Metadata:         graph.Properties{"sample": true},
			Identity:         graph.Identity{LogicalKey: logicalKey(spec.edgeType, spec.slug), Provenance: SourceSystem},
			CreatedAt:        Timestamp,
			UpdatedAt:        Timestamp,
		})
	}

	return &graph.Snapshot{Nodes: nodes, Edges: edges}
}

// ScopedSample returns the sample graph for filter, keeping only records
// whose scope matches it.
func ScopedSample(filter graph.Scope) *graph.Snapshot {
	full := BuildSample(filter.OrgID, filter.ProjectID)
	out := &graph.Snapshot{}
	for _, n := range full.Nodes {
		if n.Scope.Matches(filter) {
			out.Nodes = append(out.Nodes, n)
		}
	}
	for _, e := range full.Edges {
		if e.Scope.Matches(filter) {
			out.Edges = append(out.Edges, e)
		}
	}
	return out
}

func recordID(orgID, projectID, kind, slug string) string {
	return uuid.NewSHA1(namespace, []byte(orgID+"/"+projectID+"/"+kind+"/"+slug)).String()
}

func logicalKey(kind, slug string) string {
	return "sample:" + kind + ":" + slug
}
