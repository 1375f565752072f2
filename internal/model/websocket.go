package model

// WebSocket message types
const (
	WSMessageTypeJob  = "job"
	WSMessageTypePing = "ping"
	WSMessageTypePong = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSJobMessage pushes the full job row to subscribers on every mutation.
// Delivery is at-most-once per change; reconnecting observers must re-fetch
// current state to catch transitions that happened while detached.
type WSJobMessage struct {
	Type string `json:"type"`
	Job  *Job   `json:"job"`
}
