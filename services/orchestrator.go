package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"legal-ai-assistant/internal/ai"
	"legal-ai-assistant/internal/logger"
	"legal-ai-assistant/internal/telemetry"
	"legal-ai-assistant/internal/vectorstore"
	"legal-ai-assistant/models"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	NotInitializedMessage   = "Error: the legal assistant is still starting up. Please try again shortly."
	GenerationFailedMessage = "Error: the legal assistant could not process your request right now. Please try again later."
	ParseFailureMessage     = "I'm sorry, I had trouble formulating an answer to that question. Please try rephrasing it."

	DefaultMaxToolIterations = 4
	DefaultTurnTimeout       = 60 * time.Second
)

const systemPreamble = `You are a legal research assistant for Indian law (the Constitution, central acts and recent legislation).

Follow these rules in order:
1. Answer from the "Context from legal documents" section and the earlier conversation whenever they contain the answer. Do not call any tool in that case.
2. When the answer draws on a specific document, cite its source label, for example "(Source: constitution.json)".
3. Call ` + UpdateSearchToolName + ` only when the question explicitly asks about recent legislative changes (new bills, amendments, notifications) or when the context is insufficient to answer.
4. Call ` + FallbackToolName + ` only after ` + UpdateSearchToolName + ` has also failed to produce relevant information.
5. Never invent sources, article numbers or citations that do not appear in the context or tool results.
6. Answer in plain language and keep the answer focused on the question.`

// OrchestratorState is the lifecycle state of a ConversationOrchestrator.
type OrchestratorState int

const (
	StateUninitialized OrchestratorState = iota
	StateReady
)

func (s OrchestratorState) String() string {
	if s == StateReady {
		return "ready"
	}
	return "uninitialized"
}

type OrchestratorConfig struct {
	MaxToolIterations int
	TurnTimeout       time.Duration
	HistoryLimit      int
	SearchK           int
}

// ChatResult is the outcome of one chat turn. It is never nil and never
// carries an error; degraded turns explain themselves in Answer.
type ChatResult struct {
	Answer     string
	Sources    []models.Source
	Confidence float64
}

// ConversationOrchestrator runs the tool-augmented reasoning loop for each
// chat turn. It is Uninitialized until Initialize wires a model and tools.
type ConversationOrchestrator struct {
	docs      DocumentSearcher
	assembler *ContextAssembler
	recorder  *InteractionRecorder
	metrics   *telemetry.Metrics
	cfg       OrchestratorConfig

	mu     sync.RWMutex
	state  OrchestratorState
	model  ai.LanguageModel
	tools  *ToolRegistry
	memory *ConversationMemory
}

func NewConversationOrchestrator(docs DocumentSearcher, assembler *ContextAssembler, recorder *InteractionRecorder, metrics *telemetry.Metrics, cfg OrchestratorConfig) *ConversationOrchestrator {
	if cfg.MaxToolIterations <= 0 {
		cfg.MaxToolIterations = DefaultMaxToolIterations
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if assembler == nil {
		assembler = NewContextAssembler(DefaultMaxEvidenceChars)
	}
	return &ConversationOrchestrator{
		docs:      docs,
		assembler: assembler,
		recorder:  recorder,
		metrics:   metrics,
		cfg:       cfg,
	}
}

// Initialize wires the model and tools and moves to Ready. A FallbackTool is
// added when no terminal tool is given, so every turn can end with a refusal.
func (o *ConversationOrchestrator) Initialize(model ai.LanguageModel, tools ...Tool) error {
	if model == nil {
		return errors.New("language model is required")
	}

	registry, err := NewToolRegistry(tools...)
	if err != nil {
		return err
	}
	if _, ok := registry.Terminal(); !ok {
		if registry, err = NewToolRegistry(append(tools, NewFallbackTool())...); err != nil {
			return err
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.model = model
	o.tools = registry
	o.memory = NewConversationMemory(o.cfg.HistoryLimit)
	o.state = StateReady

	logger.Info("Conversation orchestrator ready",
		"tools", registry.Names(),
		"max_tool_iterations", o.cfg.MaxToolIterations,
		"turn_timeout", o.cfg.TurnTimeout.String(),
	)
	return nil
}

// Shutdown returns to Uninitialized and drops all conversation memory.
func (o *ConversationOrchestrator) Shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.memory != nil {
		o.memory.ClearAll()
	}
	o.model = nil
	o.tools = nil
	o.memory = nil
	o.state = StateUninitialized
}

func (o *ConversationOrchestrator) State() OrchestratorState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// History returns the stored turns of a session.
func (o *ConversationOrchestrator) History(sessionID string) []Turn {
	o.mu.RLock()
	memory := o.memory
	o.mu.RUnlock()
	if memory == nil {
		return []Turn{}
	}
	return memory.History(sessionID)
}

func (o *ConversationOrchestrator) ClearHistory(sessionID string) {
	o.mu.RLock()
	memory := o.memory
	o.mu.RUnlock()
	if memory != nil {
		memory.Clear(sessionID)
	}
}

func (o *ConversationOrchestrator) Sessions() int {
	o.mu.RLock()
	memory := o.memory
	o.mu.RUnlock()
	if memory == nil {
		return 0
	}
	return memory.Sessions()
}

// turnOutcome describes how the reasoning loop ended.
type turnOutcome struct {
	answer     string
	status     string
	toolsUsed  []string
	iterations int
}

// GetResponse answers one question. It never panics and never returns an
// error: failures are reported through the answer text.
func (o *ConversationOrchestrator) GetResponse(ctx context.Context, sessionID, query string, extra []string) *ChatResult {
	start := time.Now()
	sessionID = SessionKey(sessionID)

	o.mu.RLock()
	state, model, tools, memory := o.state, o.model, o.tools, o.memory
	o.mu.RUnlock()

	if state != StateReady {
		o.recorder.LogError(ErrNotInitialized, map[string]any{"query": query, "session_id": sessionID})
		o.metrics.RecordChatTurn("not_initialized")
		return &ChatResult{Answer: NotInitializedMessage, Sources: []models.Source{}}
	}

	ctx, span := otel.Tracer("orchestrator").Start(ctx, "chat.turn")
	defer span.End()

	turnCtx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	var hits []vectorstore.Hit
	if o.docs != nil {
		found, err := o.docs.Search(turnCtx, query, o.cfg.SearchK)
		if err != nil {
			logger.Warn("Document search failed, continuing without evidence", "session_id", sessionID, "error", err)
		} else {
			hits = found
		}
	}

	evidence := o.assembler.Assemble(hits, extra)
	conversation := memory.Session(sessionID)
	messages := composeMessages(conversation.Turns(), evidence, query)

	outcome := o.reason(turnCtx, model, tools, messages)
	confidence := confidenceScore(hits)
	duration := time.Since(start)

	span.SetAttributes(
		attribute.String("chat.session_id", sessionID),
		attribute.String("chat.outcome", outcome.status),
		attribute.Int("chat.hits", len(hits)),
		attribute.Int("chat.iterations", outcome.iterations),
		attribute.Float64("chat.confidence", confidence),
	)

	o.recorder.LogInteraction(query, outcome.answer, "chat", map[string]any{
		"session_id":  sessionID,
		"outcome":     outcome.status,
		"tools_used":  outcome.toolsUsed,
		"hit_count":   len(hits),
		"confidence":  confidence,
		"iterations":  outcome.iterations,
		"duration_ms": duration.Milliseconds(),
		"truncated":   evidence.Truncated,
	})
	o.recorder.TrackRequest("chat", duration)
	o.metrics.RecordChatTurn(outcome.status)

	if outcome.status != "model_error" {
		now := time.Now().UTC()
		conversation.Append(
			Turn{Role: ai.RoleUser, Content: query, At: now},
			Turn{Role: ai.RoleAssistant, Content: outcome.answer, At: now},
		)
	}

	sources := make([]models.Source, len(hits))
	for i, h := range hits {
		sources[i] = models.Source{Content: h.Content, Metadata: h.Metadata}
	}

	return &ChatResult{
		Answer:     outcome.answer,
		Sources:    sources,
		Confidence: confidence,
	}
}

// reason calls the model until it produces a final answer, a terminal tool
// ends the turn, the iteration bound is hit or the turn deadline expires.
func (o *ConversationOrchestrator) reason(ctx context.Context, model ai.LanguageModel, tools *ToolRegistry, messages []ai.Message) turnOutcome {
	specs := tools.Specs()
	out := turnOutcome{toolsUsed: []string{}}

	for out.iterations < o.cfg.MaxToolIterations {
		if ctx.Err() != nil {
			return o.fallThrough(tools, out, ctx.Err())
		}
		out.iterations++
		logger.Debug("Reasoning", "iteration", out.iterations, "messages", len(messages))

		gen, err := model.Generate(ctx, messages, specs)
		if err != nil {
			if ctx.Err() != nil {
				return o.fallThrough(tools, out, ctx.Err())
			}
			logger.Error("Language model call failed", "iteration", out.iterations, "error", err)
			o.recorder.LogError(err, map[string]any{"stage": "generate", "iteration": out.iterations})
			out.answer, out.status = GenerationFailedMessage, "model_error"
			return out
		}
		if gen == nil {
			gen = &ai.Generation{}
		}

		if len(gen.ToolCalls) == 0 {
			if text := strings.TrimSpace(gen.Text); text != "" {
				out.answer, out.status = text, "answered"
				return out
			}
			messages = append(messages, ai.Message{
				Role:    ai.RoleUser,
				Content: "Your previous reply was empty. Answer the question from the context, or call one of the available tools.",
			})
			continue
		}

		messages = append(messages, ai.Message{Role: ai.RoleAssistant, Content: gen.Text, ToolCalls: gen.ToolCalls})
		for _, call := range gen.ToolCalls {
			tool, ok := tools.Lookup(call.Name)
			if !ok {
				logger.Warn("Model requested unknown tool", "tool", call.Name)
				messages = append(messages, ai.Message{
					Role:     ai.RoleTool,
					ToolName: call.Name,
					Content:  fmt.Sprintf("Unknown tool %q. Available tools: %s.", call.Name, strings.Join(tools.Names(), ", ")),
				})
				continue
			}

			logger.Debug("Invoking tool", "tool", call.Name, "kind", tool.Kind().String(), "query", call.Query)
			result, err := tool.Run(ctx, call.Query)
			o.metrics.RecordToolInvocation(call.Name, err == nil)
			out.toolsUsed = append(out.toolsUsed, call.Name)

			if err != nil {
				if ctx.Err() != nil {
					return o.fallThrough(tools, out, ctx.Err())
				}
				err = fmt.Errorf("%w: %s: %w", ErrToolFailure, call.Name, err)
				logger.Warn("Tool failed", "tool", call.Name, "error", err)
				o.recorder.LogError(err, map[string]any{"tool": call.Name, "query": call.Query})
				result = "The tool failed to return results."
			}

			if tool.Kind() == TerminalTool {
				out.answer, out.status = result, "fallback"
				return out
			}
			if strings.TrimSpace(result) == "" {
				result = "The tool returned no output."
			}
			messages = append(messages, ai.Message{Role: ai.RoleTool, ToolName: call.Name, Content: result})
		}
	}

	err := fmt.Errorf("%w after %d model calls", ErrParseFailure, out.iterations)
	logger.Warn("No final answer produced", "error", err)
	o.recorder.LogError(err, map[string]any{"tools_used": out.toolsUsed})
	out.answer, out.status = ParseFailureMessage, "parse_failure"
	return out
}

// fallThrough ends a turn whose deadline expired with the terminal tool's
// answer.
func (o *ConversationOrchestrator) fallThrough(tools *ToolRegistry, out turnOutcome, cause error) turnOutcome {
	logger.Warn("Chat turn deadline reached, falling back", "iterations", out.iterations, "error", cause)

	out.answer, out.status = CannotAnswerMessage, "timeout"
	if terminal, ok := tools.Terminal(); ok {
		if answer, err := terminal.Run(context.Background(), ""); err == nil && answer != "" {
			out.answer = answer
		}
		out.toolsUsed = append(out.toolsUsed, terminal.Name())
		o.metrics.RecordToolInvocation(terminal.Name(), true)
	}
	return out
}

// composeMessages builds the model input: policy preamble, history window,
// then the evidence block and question as the final user message.
func composeMessages(history []Turn, evidence EvidenceBlock, query string) []ai.Message {
	messages := make([]ai.Message, 0, len(history)+2)
	messages = append(messages, ai.Message{Role: ai.RoleSystem, Content: systemPreamble})
	for _, t := range history {
		messages = append(messages, ai.Message{Role: t.Role, Content: t.Content})
	}
	messages = append(messages, ai.Message{
		Role:    ai.RoleUser,
		Content: evidence.String() + "\n\nQuestion: " + query,
	})
	return messages
}

// confidenceScore is 0 without hits, else 1 - min(1, mean distance).
func confidenceScore(hits []vectorstore.Hit) float64 {
	if len(hits) == 0 {
		return 0
	}
	var sum float64
	for _, h := range hits {
		sum += h.Distance
	}
	mean := sum / float64(len(hits))
	return 1 - math.Min(1, math.Max(0, mean))
}
