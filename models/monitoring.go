package models

import "time"

// HealthResponse reports per-dependency status
type HealthResponse struct {
	Status    string            `json:"status"` // "healthy" or "degraded"
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
}

// InteractionLogEntry is one line of interactions.jsonl
type InteractionLogEntry struct {
	Timestamp time.Time      `json:"timestamp"`
	Query     string         `json:"query"`
	Response  string         `json:"response"`
	Source    string         `json:"source"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ErrorLogEntry is one line of errors.jsonl
type ErrorLogEntry struct {
	Timestamp    time.Time      `json:"timestamp"`
	ErrorType    string         `json:"error_type"`
	ErrorMessage string         `json:"error_message"`
	Context      map[string]any `json:"context,omitempty"`
}

// MonitoringMetrics is the recorder's counter snapshot
type MonitoringMetrics struct {
	TotalRequests       int64     `json:"total_requests"`
	TotalErrors         int64     `json:"total_errors"`
	TotalInteractions   int64     `json:"total_interactions"`
	AverageResponseTime float64   `json:"average_response_time"` // seconds
	Uptime              float64   `json:"uptime"`                // seconds
	StartedAt           time.Time `json:"started_at"`
	LastError           *string   `json:"last_error"`
}

type MetricsResponse struct {
	Monitoring   MonitoringMetrics `json:"monitoring"`
	Documents    *DocumentStats    `json:"documents,omitempty"`
	Updates      *DocumentStats    `json:"updates,omitempty"`
	Orchestrator string            `json:"orchestrator"`
	Sessions     int               `json:"sessions"`
}
