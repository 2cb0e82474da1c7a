package api

import "encoding/json"

// ErrorResponse is the JSON error body for HTTP endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse is the JSON body for GET /health.
type HealthResponse struct {
	Status  string         `json:"status"`
	Details map[string]any `json:"details,omitempty"`
}

// NotifyRequest is the body for POST /internal/notify: the excluded
// CRUD layer pushes notifications to a user's personal room through it.
type NotifyRequest struct {
	TargetUserID string          `json:"targetUserId"`
	Payload      json.RawMessage `json:"payload"`
}
