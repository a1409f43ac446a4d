package graph

// SceneSummary describes the size of a scene and whether caps cut it short.
type SceneSummary struct {
	NodeCount int  `json:"nodeCount"`
	EdgeCount int  `json:"edgeCount"`
	Truncated bool `json:"truncated"`
}

// Scene is the bounded neighborhood of a root node.
type Scene struct {
	Nodes   []*Node      `json:"nodes"`
	Edges   []*Edge      `json:"edges"`
	Summary SceneSummary `json:"summary"`
}

// NewScene sorts nodes and edges into connection order and fills the summary.
func NewScene(nodes []*Node, edges []*Edge, truncated bool) *Scene {
	SortNodes(nodes)
	SortEdges(edges)
	return &Scene{
		Nodes: nodes,
		Edges: edges,
		Summary: SceneSummary{
			NodeCount: len(nodes),
			EdgeCount: len(edges),
			Truncated: truncated,
		},
	}
}
