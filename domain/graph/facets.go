package graph

import "sort"

// FacetValue is one labeled bucket of a facet grouping.
type FacetValue struct {
	Value string `json:"value"`
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Facets holds the five independent groupings over a scoped population.
type Facets struct {
	NodeTypes []FacetValue `json:"nodeTypes"`
	EdgeTypes []FacetValue `json:"edgeTypes"`
	Projects  []FacetValue `json:"projects"`
	Domains   []FacetValue `json:"domains"`
	Teams     []FacetValue `json:"teams"`
}

// GroupCount is a raw grouped count as produced by a backend.
type GroupCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// GroupCounts is the unlabeled form of Facets.
type GroupCounts struct {
	NodeTypes []GroupCount `json:"nodeTypes"`
	EdgeTypes []GroupCount `json:"edgeTypes"`
	Projects  []GroupCount `json:"projects"`
	Domains   []GroupCount `json:"domains"`
	Teams     []GroupCount `json:"teams"`
}

// IsEmpty reports whether no grouping holds a usable bucket.
func (g *GroupCounts) IsEmpty() bool {
	if g == nil {
		return true
	}
	for _, group := range [][]GroupCount{g.NodeTypes, g.EdgeTypes, g.Projects, g.Domains, g.Teams} {
		for _, c := range group {
			if c.Value != "" && c.Count > 0 {
				return false
			}
		}
	}
	return true
}

// CountGroups groups nodes by type and geography, and edges by type.
func CountGroups(nodes []*Node, edges []*Edge) *GroupCounts {
	nodeTypes := newCounter()
	projects := newCounter()
	domains := newCounter()
	teams := newCounter()
	for _, n := range nodes {
		nodeTypes.add(n.EntityType)
		projects.add(n.Scope.ProjectID)
		domains.add(n.Scope.DomainID)
		teams.add(n.Scope.TeamID)
	}
	edgeTypes := newCounter()
	for _, e := range edges {
		edgeTypes.add(e.EdgeType)
	}
	return &GroupCounts{
		NodeTypes: nodeTypes.counts(),
		EdgeTypes: edgeTypes.counts(),
		Projects:  projects.counts(),
		Domains:   domains.counts(),
		Teams:     teams.counts(),
	}
}

// SortFacetValues orders values by count descending, then label ascending.
// Equal count and label keep their insertion order.
func SortFacetValues(values []FacetValue) {
	sort.SliceStable(values, func(i, j int) bool {
		if values[i].Count != values[j].Count {
			return values[i].Count > values[j].Count
		}
		return values[i].Label < values[j].Label
	})
}

// counter keeps first-seen order so that ties stay deterministic.
type counter struct {
	order []string
	n     map[string]int
}

func newCounter() *counter {
	return &counter{n: make(map[string]int)}
}

func (c *counter) add(v string) {
	if v == "" {
		return
	}
	if _, ok := c.n[v]; !ok {
		c.order = append(c.order, v)
	}
	c.n[v]++
}

func (c *counter) counts() []GroupCount {
	out := make([]GroupCount, 0, len(c.order))
	for _, v := range c.order {
		out = append(out, GroupCount{Value: v, Count: c.n[v]})
	}
	return out
}
