// models/chat.go
package models

import "time"

// ChatRequest is the body of POST /chat
type ChatRequest struct {
	Message   string   `json:"message" binding:"required,min=1,max=4000"`
	Context   []string `json:"context,omitempty"`    // Caller-supplied evidence, appended under "Additional Context"
	SessionID string   `json:"session_id,omitempty"` // Defaults to "default"
}

// Source is one retrieved passage backing an answer
type Source struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata"`
}

// ChatResponse is always returned with 200, even when the turn degraded
type ChatResponse struct {
	Response   string    `json:"response"`
	Sources    []Source  `json:"sources"`
	Confidence float64   `json:"confidence"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChatTurn is one entry of a session's conversation
type ChatTurn struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type ChatHistoryResponse struct {
	SessionID string     `json:"session_id"`
	Turns     []ChatTurn `json:"turns"`
	Count     int        `json:"count"`
}
