package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"legal-ai-assistant/internal/config"
	"legal-ai-assistant/internal/logger"
	"legal-ai-assistant/internal/telemetry"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"
)

const degradedReply = "I'm experiencing high demand right now. Please try again in a moment."

var ErrRateLimited = errors.New("rate limit exceeded: wait before retry")

type GeminiClient struct {
	breaker      *gobreaker.CircuitBreaker
	rateLimiter  *rate.Limiter
	tokenCounter *TokenCounter
	client       *genai.Client
	metrics      *telemetry.Metrics
	model        string
	temperature  float32
}

type TokenCounter struct {
	mu              sync.Mutex
	limits          RateLimits
	minuteTokens    int
	dailyTokens     int
	minuteRequests  int
	dailyRequests   int
	lastMinuteReset time.Time
	lastDayReset    time.Time
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

func NewGeminiClient(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, err
	}

	// Configure rate limits based on tier
	limits := getRateLimits(cfg.GeminiTier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		IsSuccessful: func(err error) bool {
			// A cancelled turn says nothing about the health of the API.
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			metrics.RecordCircuitBreakerState("gemini", to.String())
		},
	})

	// RPM limit with some buffer
	burst := limits.RPM / 10
	if burst < 1 {
		burst = 1
	}
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), burst)

	return &GeminiClient{
		breaker:      breaker,
		rateLimiter:  rateLimiter,
		tokenCounter: &TokenCounter{limits: limits},
		client:       client,
		metrics:      metrics,
		model:        cfg.GeminiModel,
		temperature:  float32(cfg.GeminiTemperature),
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// Generate runs one model call over the conversation, offering tools as
// function declarations.
func (gc *GeminiClient) Generate(ctx context.Context, messages []Message, tools []ToolSpec) (*Generation, error) {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.generate_content")
	defer span.End()

	system, history, last, err := toGenaiContents(messages)
	if err != nil {
		return nil, err
	}

	estimatedTokens := estimateTokens(messages)
	span.SetAttributes(
		attribute.Int("gemini.estimated_tokens", estimatedTokens),
		attribute.Int("gemini.history_messages", len(history)),
		attribute.Int("gemini.tools", len(tools)),
		attribute.String("gemini.model", gc.model),
	)

	if !gc.tokenCounter.CanConsume(estimatedTokens, 1) {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, ErrRateLimited
	}

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return nil, err
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.configureModel(system, tools)
		cs := model.StartChat()
		cs.History = history

		resp, err := cs.SendMessage(ctx, last...)
		if err != nil {
			span.SetAttributes(attribute.Bool("gemini.error", true))
			span.SetAttributes(attribute.String("gemini.error_message", err.Error()))
			return nil, err
		}

		actualTokens := extractTokenUsage(resp)
		gc.tokenCounter.RecordUsage(actualTokens, 1)
		gc.metrics.RecordTokensUsed(int64(actualTokens), gc.model)

		span.SetAttributes(attribute.Int("gemini.actual_tokens", actualTokens))
		return resp, nil
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
			return &Generation{Text: degradedReply}, nil
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	resp := result.(*genai.GenerateContentResponse)
	gen := fromResponse(resp)
	span.SetAttributes(
		attribute.Bool("gemini.success", true),
		attribute.Int("gemini.tool_calls", len(gen.ToolCalls)),
	)
	return gen, nil
}

func (gc *GeminiClient) configureModel(system *genai.Content, tools []ToolSpec) *genai.GenerativeModel {
	model := gc.client.GenerativeModel(gc.model)
	model.SetTemperature(gc.temperature)
	model.SetMaxOutputTokens(2048)
	model.SetCandidateCount(1)

	model.SafetySettings = []*genai.SafetySetting{
		{Category: genai.HarmCategoryHarassment, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategoryHateSpeech, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategoryDangerousContent, Threshold: genai.HarmBlockMediumAndAbove},
		{Category: genai.HarmCategorySexuallyExplicit, Threshold: genai.HarmBlockMediumAndAbove},
	}

	model.SystemInstruction = system
	if decls := functionDeclarations(tools); len(decls) > 0 {
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return model
}

// functionDeclarations exposes every tool with a single required "query" argument.
func functionDeclarations(tools []ToolSpec) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {
						Type:        genai.TypeString,
						Description: "The legal question or search terms to pass to the tool",
					},
				},
				Required: []string{"query"},
			},
		})
	}
	return decls
}

// toGenaiContents maps the conversation onto Gemini chat contents. System
// messages become the system instruction, consecutive messages with the same
// Gemini role are merged, and the final user content is split off to be sent.
func toGenaiContents(messages []Message) (*genai.Content, []*genai.Content, []genai.Part, error) {
	var systemParts []string
	var contents []*genai.Content

	appendParts := func(role string, parts ...genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, parts...)
			return
		}
		contents = append(contents, &genai.Content{Role: role, Parts: parts})
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			systemParts = append(systemParts, m.Content)
		case RoleUser:
			appendParts("user", genai.Text(m.Content))
		case RoleAssistant:
			var parts []genai.Part
			if strings.TrimSpace(m.Content) != "" {
				parts = append(parts, genai.Text(m.Content))
			}
			for _, call := range m.ToolCalls {
				parts = append(parts, genai.FunctionCall{
					Name: call.Name,
					Args: map[string]any{"query": call.Query},
				})
			}
			appendParts("model", parts...)
		case RoleTool:
			appendParts("user", genai.FunctionResponse{
				Name:     m.ToolName,
				Response: map[string]any{"result": m.Content},
			})
		default:
			return nil, nil, nil, fmt.Errorf("unsupported message role %q", m.Role)
		}
	}

	if len(contents) == 0 || contents[len(contents)-1].Role != "user" {
		return nil, nil, nil, errors.New("conversation must end with a user or tool message")
	}

	var system *genai.Content
	if len(systemParts) > 0 {
		system = &genai.Content{
			Role:  "system",
			Parts: []genai.Part{genai.Text(strings.Join(systemParts, "\n\n"))},
		}
	}

	last := contents[len(contents)-1]
	return system, contents[:len(contents)-1], last.Parts, nil
}

// fromResponse collects text and function calls from the first candidate.
func fromResponse(resp *genai.GenerateContentResponse) *Generation {
	gen := &Generation{}
	if resp == nil {
		return gen
	}
	if resp.UsageMetadata != nil {
		gen.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return gen
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		switch p := part.(type) {
		case genai.Text:
			text.WriteString(string(p))
		case genai.FunctionCall:
			query, _ := p.Args["query"].(string)
			gen.ToolCalls = append(gen.ToolCalls, ToolCall{Name: p.Name, Query: query})
		}
	}
	gen.Text = strings.TrimSpace(text.String())
	return gen
}

func (tc *TokenCounter) CanConsume(tokens, requests int) bool {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	now := time.Now()

	// Reset counters if time windows expired
	if now.Sub(tc.lastMinuteReset) >= time.Minute {
		tc.minuteTokens = 0
		tc.minuteRequests = 0
		tc.lastMinuteReset = now
	}

	if now.Sub(tc.lastDayReset) >= 24*time.Hour {
		tc.dailyTokens = 0
		tc.dailyRequests = 0
		tc.lastDayReset = now
	}

	if tc.minuteRequests+requests > tc.limits.RPM {
		return false
	}
	if tc.minuteTokens+tokens > tc.limits.TPM {
		return false
	}
	if tc.dailyRequests+requests > tc.limits.RPD {
		return false
	}

	return true
}

func (tc *TokenCounter) RecordUsage(tokens, requests int) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	tc.minuteTokens += tokens
	tc.minuteRequests += requests
	tc.dailyTokens += tokens
	tc.dailyRequests += requests
}

// Rough estimation: 1 token ≈ 4 characters
func estimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Content)
		for _, call := range m.ToolCalls {
			total += len(call.Name) + len(call.Query)
		}
	}
	return total / 4
}

// Extract token usage from Gemini response
func extractTokenUsage(resp *genai.GenerateContentResponse) int {
	if resp.UsageMetadata != nil {
		return int(resp.UsageMetadata.TotalTokenCount)
	}

	// Fallback: estimate from response text
	totalText := 0
	for _, candidate := range resp.Candidates {
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if text, ok := part.(genai.Text); ok {
					totalText += len(text)
				}
			}
		}
	}

	estimated := totalText / 4
	if estimated < 1 {
		estimated = 1 // Minimum 1 token
	}

	return estimated
}

// Close the client
func (gc *GeminiClient) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
