package graph

import "strings"

// WildcardScope marks an unset optional scope field in cache keys.
const WildcardScope = "*"

// Scope is the hierarchical visibility filter carried by every node and edge.
// OrgID is mandatory; the remaining fields narrow visibility when set.
type Scope struct {
	OrgID     string `json:"orgId"`
	DomainID  string `json:"domainId,omitempty"`
	ProjectID string `json:"projectId,omitempty"`
	TeamID    string `json:"teamId,omitempty"`
}

// Matches reports whether s (a candidate's scope) is visible under filter.
// The org must always match; optional filter fields constrain only when set.
func (s Scope) Matches(filter Scope) bool {
	if s.OrgID != filter.OrgID {
		return false
	}
	if filter.DomainID != "" && s.DomainID != filter.DomainID {
		return false
	}
	if filter.ProjectID != "" && s.ProjectID != filter.ProjectID {
		return false
	}
	if filter.TeamID != "" && s.TeamID != filter.TeamID {
		return false
	}
	return true
}

// Normalize trims surrounding whitespace from every field.
func (s Scope) Normalize() Scope {
	return Scope{
		OrgID:     strings.TrimSpace(s.OrgID),
		DomainID:  strings.TrimSpace(s.DomainID),
		ProjectID: strings.TrimSpace(s.ProjectID),
		TeamID:    strings.TrimSpace(s.TeamID),
	}
}

// CacheKey renders the normalized scope as org|domain|project|team.
func (s Scope) CacheKey() string {
	n := s.Normalize()
	return strings.Join([]string{
		n.OrgID,
		orWildcard(n.DomainID),
		orWildcard(n.ProjectID),
		orWildcard(n.TeamID),
	}, "|")
}

// IsZero reports whether no org is set.
func (s Scope) IsZero() bool {
	return strings.TrimSpace(s.OrgID) == ""
}

func orWildcard(v string) string {
	if v == "" {
		return WildcardScope
	}
	return v
}
