package sqlite

import (
	"fmt"
	"strings"

	"kbquery/application/ports"
	"kbquery/domain/graph"
)

// clause accumulates AND-ed conditions and their arguments.
type clause struct {
	conds []string
	args  []any
}

func (c *clause) add(cond string, args ...any) {
	c.conds = append(c.conds, cond)
	c.args = append(c.args, args...)
}

func (c *clause) in(column string, values []string) {
	if len(values) == 0 {
		return
	}
	marks := make([]string, len(values))
	for i, v := range values {
		marks[i] = "?"
		c.args = append(c.args, v)
	}
	c.conds = append(c.conds, fmt.Sprintf("%s IN (%s)", column, strings.Join(marks, ", ")))
}

// after restricts rows to those strictly behind the cursor row in
// (updated_at DESC, id DESC) order. The cursor row has to pass the
// conditions added so far; when it does not, nothing is imposed and paging
// restarts, as it does for a cursor row that no longer exists.
func (c *clause) after(table, afterID string) {
	if afterID == "" {
		return
	}
	row := clause{
		conds: append([]string{"id = ?"}, c.conds...),
		args:  append([]any{afterID}, c.args...),
	}
	// Unqualified columns inside the subqueries bind to the cursor row.
	from := "FROM " + table + row.sql()
	args := append(append([]any{}, row.args...), row.args...)
	c.add(fmt.Sprintf("(NOT EXISTS (SELECT 1 %[1]s) OR (updated_at, id) < (SELECT updated_at, id %[1]s))", from), args...)
}

func (c clause) sql() string {
	if len(c.conds) == 0 {
		return " WHERE 1 = 1"
	}
	return " WHERE " + strings.Join(c.conds, " AND ")
}

func scopeClause(scope graph.Scope) clause {
	var c clause
	c.add("org_id = ?", scope.OrgID)
	if scope.DomainID != "" {
		c.add("domain_id = ?", scope.DomainID)
	}
	if scope.ProjectID != "" {
		c.add("project_id = ?", scope.ProjectID)
	}
	if scope.TeamID != "" {
		c.add("team_id = ?", scope.TeamID)
	}
	return c
}

func nodeClause(where ports.NodeWhere) clause {
	c := scopeClause(where.Scope)
	c.in("entity_type", where.EntityTypes)
	if where.ID != "" {
		c.add("id = ?", where.ID)
	}
	if term := strings.ToLower(strings.TrimSpace(where.Search)); term != "" {
		c.add("(instr(search_name, ?) > 0 OR instr(search_path, ?) > 0 OR instr(search_props, ?) > 0)", term, term, term)
	}
	return c
}

func edgeClause(where ports.EdgeWhere) clause {
	c := scopeClause(where.Scope)
	c.in("edge_type", where.EdgeTypes)
	if where.SourceNodeID != "" {
		c.add("source_node_id = ?", where.SourceNodeID)
	}
	if where.TargetNodeID != "" {
		c.add("target_node_id = ?", where.TargetNodeID)
	}
	if where.TouchingNodeID != "" {
		c.add("(source_node_id = ? OR target_node_id = ?)", where.TouchingNodeID, where.TouchingNodeID)
	}
	return c
}
