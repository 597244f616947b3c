package synclog

import "encoding/json"

// ActionType classifies the mutation an action describes.
type ActionType string

const (
	ActionInsert ActionType = "insert"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// Action is an immutable record of a data mutation broadcast to connected
// clients of one company. Consumers treat it as a "something changed,
// re-fetch" hint, never as an authoritative delta.
type Action struct {
	ID        string     `json:"id"`
	Type      ActionType `json:"type"`
	Module    string     `json:"module"`
	EntityID  string     `json:"entity_id"`
	CompanyID string     `json:"company_id"`
	ClientID  string     `json:"client_id,omitempty"`
	UserID    string     `json:"user_id"`

	// Timestamp is origin wall-clock milliseconds and the log ordering key.
	Timestamp int64 `json:"timestamp"`

	Data json.RawMessage `json:"data,omitempty"`

	// QueryPaths lists dependent query identifiers clients should invalidate.
	QueryPaths []string `json:"query_paths,omitempty"`
}
