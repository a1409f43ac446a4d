package common

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// Page size bounds shared by the listing endpoints
const (
	DefaultNodePageSize = 20
	DefaultEdgePageSize = 50
	MaxPageSize         = 100
)

// CursorData is the payload wrapped by an opaque pagination cursor.
type CursorData struct {
	ID string `json:"id"`
}

// EncodeCursor creates an opaque cursor that resumes after the record id.
func EncodeCursor(id string) string {
	if id == "" {
		return ""
	}
	data, err := json.Marshal(CursorData{ID: id})
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor returns the record id wrapped by cursor. Any malformed token
// reports ok=false so the caller resumes from the start.
func DecodeCursor(cursor string) (id string, ok bool) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return "", false
	}

	// Accept padded tokens from clients that re-encode them.
	data, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(cursor, "="))
	if err != nil {
		return "", false
	}

	var cd CursorData
	if err := json.Unmarshal(data, &cd); err != nil {
		return "", false
	}
	if cd.ID == "" {
		return "", false
	}
	return cd.ID, true
}

// ClampPageSize returns the page size to use: def when first is unset,
// maxSize when first exceeds it.
func ClampPageSize(first, def, maxSize int) int {
	if maxSize <= 0 {
		maxSize = MaxPageSize
	}
	if def <= 0 || def > maxSize {
		def = maxSize
	}
	if first <= 0 {
		return def
	}
	if first > maxSize {
		return maxSize
	}
	return first
}

// PageInfo describes where a page sits in a forward-only connection.
type PageInfo struct {
	HasNextPage     bool   `json:"hasNextPage"`
	HasPreviousPage bool   `json:"hasPreviousPage"`
	StartCursor     string `json:"startCursor,omitempty"`
	EndCursor       string `json:"endCursor,omitempty"`
}
