package dto

import "encoding/json"

type BroadcastRequest struct {
	Type       string          `json:"type" binding:"required,oneof=insert update delete"`
	Module     string          `json:"module" binding:"required"`
	EntityID   string          `json:"entity_id" binding:"required"`
	CompanyID  string          `json:"company_id" binding:"required"`
	ClientID   string          `json:"client_id"`
	UserID     string          `json:"user_id" binding:"required"`
	Data       json.RawMessage `json:"data"`
	QueryPaths []string        `json:"query_paths"`
}

type BroadcastResponse struct {
	ActionID  string `json:"action_id"`
	Timestamp int64  `json:"timestamp"`
	Dropped   uint64 `json:"dropped_total"`
}

type MissedActionsRequest struct {
	CompanyID string `form:"company_id" binding:"required"`
	Since     int64  `form:"since"`
}
