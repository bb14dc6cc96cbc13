package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics
type Metrics struct {
	RequestCounter      metric.Int64Counter
	RequestDuration     metric.Float64Histogram
	TokensUsed          metric.Int64Counter
	IngestDuration      metric.Float64Histogram
	SearchDuration      metric.Float64Histogram
	ToolInvocations     metric.Int64Counter
	ChatTurns           metric.Int64Counter
	CircuitBreakerState metric.Int64Counter
}

// InitMetrics initializes all application metrics
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("legal-ai-assistant")

	requestCounter, err := meter.Int64Counter(
		"http.requests.total",
		metric.WithDescription("Total HTTP requests"),
	)
	if err != nil {
		return nil, err
	}

	requestDuration, err := meter.Float64Histogram(
		"http.request.duration",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	tokensUsed, err := meter.Int64Counter(
		"gemini.tokens.used",
		metric.WithDescription("Total Gemini tokens used"),
	)
	if err != nil {
		return nil, err
	}

	ingestDuration, err := meter.Float64Histogram(
		"documents.ingest.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	searchDuration, err := meter.Float64Histogram(
		"documents.search.duration",
		metric.WithDescription("Similarity search duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	toolInvocations, err := meter.Int64Counter(
		"tools.invocations.total",
		metric.WithDescription("Total tool invocations by the chat orchestrator"),
	)
	if err != nil {
		return nil, err
	}

	chatTurns, err := meter.Int64Counter(
		"chat.turns.total",
		metric.WithDescription("Total chat turns by outcome"),
	)
	if err != nil {
		return nil, err
	}

	circuitBreakerState, err := meter.Int64Counter(
		"circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state changes"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		RequestCounter:      requestCounter,
		RequestDuration:     requestDuration,
		TokensUsed:          tokensUsed,
		IngestDuration:      ingestDuration,
		SearchDuration:      searchDuration,
		ToolInvocations:     toolInvocations,
		ChatTurns:           chatTurns,
		CircuitBreakerState: circuitBreakerState,
	}, nil
}

// RecordRequest records HTTP request metrics
func (m *Metrics) RecordRequest(method, path, status string, duration float64) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.path", path),
		attribute.String("http.status", status),
	}

	m.RequestCounter.Add(context.Background(), 1, metric.WithAttributes(attrs...))
	m.RequestDuration.Record(context.Background(), duration, metric.WithAttributes(attrs...))
}

// RecordTokensUsed records Gemini token usage
func (m *Metrics) RecordTokensUsed(tokens int64, model string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("gemini.model", model),
		attribute.String("service", "gemini"),
	}

	m.TokensUsed.Add(context.Background(), tokens, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordIngest(duration float64, collection string) {
	if m == nil {
		return
	}
	m.IngestDuration.Record(context.Background(), duration,
		metric.WithAttributes(attribute.String("db.collection", collection)))
}

func (m *Metrics) RecordSearch(duration float64, collection string, hits int) {
	if m == nil {
		return
	}
	m.SearchDuration.Record(context.Background(), duration, metric.WithAttributes(
		attribute.String("db.collection", collection),
		attribute.Int("search.hits", hits),
	))
}

func (m *Metrics) RecordToolInvocation(tool string, success bool) {
	if m == nil {
		return
	}
	m.ToolInvocations.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.Bool("tool.success", success),
	))
}

// RecordChatTurn counts a finished turn; outcome is "answered", "fallback",
// "parse_failure", "error" or "not_initialized".
func (m *Metrics) RecordChatTurn(outcome string) {
	if m == nil {
		return
	}
	m.ChatTurns.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("chat.outcome", outcome)))
}

// RecordCircuitBreakerState records circuit breaker state changes
func (m *Metrics) RecordCircuitBreakerState(service, state string) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("service", service),
		attribute.String("state", state),
	}

	m.CircuitBreakerState.Add(context.Background(), 1, metric.WithAttributes(attrs...))
}
