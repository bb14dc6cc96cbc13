package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"legal-ai-assistant/internal/ai"
	"legal-ai-assistant/internal/vectorstore"
)

func newTestOrchestrator(t *testing.T, cfg OrchestratorConfig) (*ConversationOrchestrator, *DocumentStore, *InteractionRecorder) {
	t.Helper()
	docs, recorder := newTestDocs(t)
	o := NewConversationOrchestrator(docs, NewContextAssembler(DefaultMaxEvidenceChars), recorder, nil, cfg)
	return o, docs, recorder
}

func newUpdateStub() *countingTool {
	return &countingTool{name: UpdateSearchToolName, kind: EvidenceTool, out: "Recent legal updates:\n- Bill: The Telecommunications Bill, 2023"}
}

func TestGetResponseBeforeInitialize(t *testing.T) {
	o, _, recorder := newTestOrchestrator(t, OrchestratorConfig{})

	res := o.GetResponse(context.Background(), "", "What does Article 21 protect?", nil)
	if res == nil {
		t.Fatal("nil result")
	}
	if res.Answer != NotInitializedMessage {
		t.Errorf("Answer = %q", res.Answer)
	}
	if res.Sources == nil || len(res.Sources) != 0 {
		t.Errorf("Sources = %v, want empty", res.Sources)
	}
	if o.State() != StateUninitialized {
		t.Errorf("State = %v", o.State())
	}
	if logged, _ := recorder.GetErrors(); len(logged) != 1 || logged[0].ErrorType != "NotInitialized" {
		t.Errorf("unexpected error log %+v", logged)
	}
}

func TestInitializeRequiresModel(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, OrchestratorConfig{})
	if err := o.Initialize(nil); err == nil {
		t.Error("expected error without a model")
	}
}

func TestInitializeAddsFallbackTool(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, OrchestratorConfig{})
	model := &scriptedModel{respond: func(context.Context, int, []ai.Message) (*ai.Generation, error) {
		return answer("ok"), nil
	}}
	if err := o.Initialize(model, newUpdateStub()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	o.GetResponse(context.Background(), "", "hello", nil)
	specs := model.tools[0]
	if len(specs) != 2 || specs[0].Name != UpdateSearchToolName || specs[1].Name != FallbackToolName {
		t.Errorf("offered tools %+v", specs)
	}
}

func TestGetResponseAnswersFromLocalEvidence(t *testing.T) {
	o, docs, recorder := newTestOrchestrator(t, OrchestratorConfig{})
	ctx := context.Background()

	if _, err := docs.Ingest(ctx, "Article 21 protects the right to life.", map[string]any{"source": "constitution.json"}); err != nil {
		t.Fatal(err)
	}

	model := &scriptedModel{respond: func(_ context.Context, _ int, messages []ai.Message) (*ai.Generation, error) {
		if strings.Contains(lastContent(messages), "Source: constitution.json\nArticle 21 protects the right to life.") {
			return answer("Article 21 protects the right to life and personal liberty (Source: constitution.json)."), nil
		}
		return callTool(UpdateSearchToolName, "Article 21"), nil
	}}
	update := newUpdateStub()
	if err := o.Initialize(model, update, NewFallbackTool()); err != nil {
		t.Fatal(err)
	}

	res := o.GetResponse(ctx, "s1", "What does Article 21 protect?", nil)

	if !strings.Contains(res.Answer, "life") {
		t.Errorf("Answer = %q", res.Answer)
	}
	if len(res.Sources) == 0 || res.Sources[0].Content != "Article 21 protects the right to life." {
		t.Fatalf("Sources = %+v", res.Sources)
	}
	if res.Sources[0].Metadata["source"] != "constitution.json" {
		t.Errorf("source metadata %v", res.Sources[0].Metadata)
	}
	if update.calls.Load() != 0 {
		t.Errorf("update tool called %d times for a locally answerable question", update.calls.Load())
	}
	if res.Confidence <= 0 || res.Confidence > 1 {
		t.Errorf("Confidence = %v", res.Confidence)
	}

	interactions, _ := recorder.GetInteractions()
	if len(interactions) != 1 {
		t.Fatalf("got %d interaction records", len(interactions))
	}
	in := interactions[0]
	if in.Query != "What does Article 21 protect?" || in.Response != res.Answer || in.Source != "chat" {
		t.Errorf("unexpected record %+v", in)
	}
	if in.Metadata["session_id"] != "s1" || in.Metadata["outcome"] != "answered" {
		t.Errorf("unexpected metadata %v", in.Metadata)
	}
}

func TestGetResponseEmptyIndex(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, OrchestratorConfig{})

	model := &scriptedModel{respond: func(_ context.Context, _ int, messages []ai.Message) (*ai.Generation, error) {
		last := messages[len(messages)-1]
		switch {
		case last.Role == ai.RoleTool && last.ToolName == UpdateSearchToolName:
			return callTool(FallbackToolName, ""), nil
		case strings.Contains(last.Content, NoDocumentsMessage):
			return callTool(UpdateSearchToolName, "right to privacy"), nil
		}
		return answer("unexpected"), nil
	}}
	update := &countingTool{name: UpdateSearchToolName, kind: EvidenceTool, out: NoUpdatesFoundMessage}
	if err := o.Initialize(model, update, NewFallbackTool()); err != nil {
		t.Fatal(err)
	}

	res := o.GetResponse(context.Background(), "", "Is privacy a fundamental right?", nil)

	if len(res.Sources) != 0 {
		t.Errorf("Sources = %v, want none", res.Sources)
	}
	if res.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0 without hits", res.Confidence)
	}
	if res.Answer != CannotAnswerMessage || strings.Contains(res.Answer, "Source:") {
		t.Errorf("Answer = %q", res.Answer)
	}
	if update.calls.Load() != 1 {
		t.Errorf("update tool calls = %d, want 1", update.calls.Load())
	}
}

func TestGetResponseFallbackTool(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, OrchestratorConfig{})
	model := &scriptedModel{respond: func(context.Context, int, []ai.Message) (*ai.Generation, error) {
		return callTool(FallbackToolName, "anything"), nil
	}}
	if err := o.Initialize(model, newUpdateStub(), NewFallbackTool()); err != nil {
		t.Fatal(err)
	}

	res := o.GetResponse(context.Background(), "", "What is the airspeed of a swallow?", nil)
	if res.Answer != CannotAnswerMessage {
		t.Errorf("Answer = %q", res.Answer)
	}
	if model.Calls() != 1 {
		t.Errorf("model called %d times, terminal tool must end the turn", model.Calls())
	}
}

func TestGetResponseUsesToolOutput(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, OrchestratorConfig{})
	update := newUpdateStub()

	model := &scriptedModel{respond: func(_ context.Context, call int, messages []ai.Message) (*ai.Generation, error) {
		if call == 1 {
			return callTool(UpdateSearchToolName, "telecom bill"), nil
		}
		last := messages[len(messages)-1]
		if last.Role != ai.RoleTool || last.ToolName != UpdateSearchToolName {
			return nil, fmt.Errorf("expected tool result, got %+v", last)
		}
		prev := messages[len(messages)-2]
		if prev.Role != ai.RoleAssistant || len(prev.ToolCalls) != 1 {
			return nil, fmt.Errorf("expected assistant tool call, got %+v", prev)
		}
		return answer("The Telecommunications Bill, 2023 was recently introduced."), nil
	}}
	if err := o.Initialize(model, update, NewFallbackTool()); err != nil {
		t.Fatal(err)
	}

	res := o.GetResponse(context.Background(), "", "Any recent telecom bills?", nil)
	if res.Answer != "The Telecommunications Bill, 2023 was recently introduced." {
		t.Errorf("Answer = %q", res.Answer)
	}
	if update.calls.Load() != 1 || update.queries[0] != "telecom bill" {
		t.Errorf("update tool calls=%d queries=%v", update.calls.Load(), update.queries)
	}
}

func TestGetResponseParseFailure(t *testing.T) {
	o, _, recorder := newTestOrchestrator(t, OrchestratorConfig{MaxToolIterations: 3})
	model := &scriptedModel{respond: func(_ context.Context, call int, _ []ai.Message) (*ai.Generation, error) {
		if call%2 == 0 {
			return answer("   "), nil
		}
		return callTool("web_search", "q"), nil
	}}
	if err := o.Initialize(model, newUpdateStub(), NewFallbackTool()); err != nil {
		t.Fatal(err)
	}

	res := o.GetResponse(context.Background(), "", "question", nil)
	if res.Answer != ParseFailureMessage {
		t.Errorf("Answer = %q", res.Answer)
	}
	if model.Calls() != 3 {
		t.Errorf("model calls = %d, want 3", model.Calls())
	}

	logged, _ := recorder.GetErrors()
	var parseErrors int
	for _, e := range logged {
		if e.ErrorType == "ParseFailure" {
			parseErrors++
		}
	}
	if parseErrors != 1 {
		t.Errorf("logged %d parse failures", parseErrors)
	}
}

func TestGetResponseNilGeneration(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, OrchestratorConfig{MaxToolIterations: 2})
	model := &scriptedModel{respond: func(context.Context, int, []ai.Message) (*ai.Generation, error) {
		return nil, nil
	}}
	if err := o.Initialize(model, NewFallbackTool()); err != nil {
		t.Fatal(err)
	}

	res := o.GetResponse(context.Background(), "s", "question", nil)
	if res == nil {
		t.Fatal("nil result")
	}
	if res.Answer != ParseFailureMessage {
		t.Errorf("Answer = %q", res.Answer)
	}
	if model.Calls() != 2 {
		t.Errorf("model calls = %d, want 2", model.Calls())
	}
}

func TestGetResponseModelError(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, OrchestratorConfig{})
	model := &scriptedModel{respond: func(context.Context, int, []ai.Message) (*ai.Generation, error) {
		return nil, errors.New("googleapi: Error 500")
	}}
	if err := o.Initialize(model, NewFallbackTool()); err != nil {
		t.Fatal(err)
	}

	res := o.GetResponse(context.Background(), "s", "question", nil)
	if res.Answer != GenerationFailedMessage {
		t.Errorf("Answer = %q", res.Answer)
	}
	if len(o.History("s")) != 0 {
		t.Error("failed turn was added to history")
	}
}

func TestGetResponseToolFailureIsAbsorbed(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, OrchestratorConfig{})
	broken := &countingTool{name: UpdateSearchToolName, kind: EvidenceTool, err: errors.New("scrape failed")}

	model := &scriptedModel{respond: func(_ context.Context, call int, messages []ai.Message) (*ai.Generation, error) {
		if call == 1 {
			return callTool(UpdateSearchToolName, "q"), nil
		}
		return answer("Answered without updates: " + lastContent(messages)), nil
	}}
	if err := o.Initialize(model, broken, NewFallbackTool()); err != nil {
		t.Fatal(err)
	}

	res := o.GetResponse(context.Background(), "", "question", nil)
	if !strings.HasPrefix(res.Answer, "Answered without updates") {
		t.Errorf("Answer = %q", res.Answer)
	}
}

func TestGetResponseDeadlineFallsThrough(t *testing.T) {
	o, _, recorder := newTestOrchestrator(t, OrchestratorConfig{TurnTimeout: 30 * time.Millisecond})
	model := &scriptedModel{respond: func(ctx context.Context, _ int, _ []ai.Message) (*ai.Generation, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	if err := o.Initialize(model, newUpdateStub(), NewFallbackTool()); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	res := o.GetResponse(context.Background(), "", "slow question", nil)
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("turn took %v", elapsed)
	}
	if res.Answer != CannotAnswerMessage {
		t.Errorf("Answer = %q", res.Answer)
	}

	interactions, _ := recorder.GetInteractions()
	if len(interactions) != 1 || interactions[0].Metadata["outcome"] != "timeout" {
		t.Errorf("unexpected interaction log %+v", interactions)
	}
}

func TestGetResponseDeadlineDuringTool(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, OrchestratorConfig{TurnTimeout: 30 * time.Millisecond})
	slow := &slowTool{}
	model := &scriptedModel{respond: func(context.Context, int, []ai.Message) (*ai.Generation, error) {
		return callTool(UpdateSearchToolName, "q"), nil
	}}
	if err := o.Initialize(model, slow, NewFallbackTool()); err != nil {
		t.Fatal(err)
	}

	if res := o.GetResponse(context.Background(), "", "q", nil); res.Answer != CannotAnswerMessage {
		t.Errorf("Answer = %q", res.Answer)
	}
}

type slowTool struct{}

func (slowTool) Name() string        { return UpdateSearchToolName }
func (slowTool) Description() string { return "blocks until cancelled" }
func (slowTool) Kind() ToolKind      { return EvidenceTool }
func (slowTool) Run(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestConversationHistory(t *testing.T) {
	o, _, _ := newTestOrchestrator(t, OrchestratorConfig{HistoryLimit: 4})
	model := &scriptedModel{respond: func(_ context.Context, call int, _ []ai.Message) (*ai.Generation, error) {
		return answer(fmt.Sprintf("answer %d", call)), nil
	}}
	if err := o.Initialize(model, NewFallbackTool()); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		o.GetResponse(ctx, "alice", fmt.Sprintf("question %d", i), nil)
	}
	o.GetResponse(ctx, "bob", "bob's question", nil)

	history := o.History("alice")
	if len(history) != 4 {
		t.Fatalf("history has %d turns, want 4", len(history))
	}
	if history[0].Role != ai.RoleUser || history[0].Content != "question 2" || history[3].Content != "answer 3" {
		t.Errorf("unexpected window %+v", history)
	}

	// The third call for alice saw the first two exchanges
	third := model.seen[2]
	if len(third) != 6 || third[1].Content != "question 1" || third[2].Content != "answer 1" {
		t.Errorf("history not passed to model: %+v", third)
	}

	if got := o.History("bob"); len(got) != 2 {
		t.Errorf("bob has %d turns", len(got))
	}

	o.ClearHistory("alice")
	if len(o.History("alice")) != 0 {
		t.Error("ClearHistory left turns")
	}
	if o.Sessions() != 2 {
		t.Errorf("Sessions() = %d", o.Sessions())
	}

	o.Shutdown()
	if o.State() != StateUninitialized || len(o.History("bob")) != 0 {
		t.Error("Shutdown must clear memory and return to uninitialized")
	}
	if res := o.GetResponse(ctx, "bob", "again", nil); res.Answer != NotInitializedMessage {
		t.Errorf("Answer after shutdown = %q", res.Answer)
	}
}

func TestConfidenceScore(t *testing.T) {
	tests := []struct {
		name      string
		distances []float64
		want      float64
	}{
		{"no hits", nil, 0},
		{"exact match", []float64{0}, 1},
		{"mean of distances", []float64{0.2, 0.4}, 0.7},
		{"far hits clamp at zero", []float64{1.5, 1.9}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hits := make([]vectorstore.Hit, len(tt.distances))
			for i, d := range tt.distances {
				hits[i] = vectorstore.Hit{Distance: d}
			}
			if got := confidenceScore(hits); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("confidenceScore() = %v, want %v", got, tt.want)
			}
		})
	}
}
