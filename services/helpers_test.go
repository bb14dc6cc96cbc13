package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"legal-ai-assistant/internal/ai"
	"legal-ai-assistant/internal/vectorstore"
)

func newTestDocs(t *testing.T) (*DocumentStore, *InteractionRecorder) {
	t.Helper()
	recorder := NewInteractionRecorder(t.TempDir())
	store := vectorstore.NewMemoryStore(ai.NewHashEmbedder(256))
	docs := NewDocumentStore(store, DocumentStoreOptions{
		Collection:   "legal_documents",
		ChunkSize:    200,
		ChunkOverlap: 20,
		Recorder:     recorder,
	})
	return docs, recorder
}

// failingStore fails every call with err.
type failingStore struct {
	err error
}

func (s failingStore) Add(context.Context, []string, []string, []map[string]any) error { return s.err }
func (s failingStore) Query(context.Context, []string, int) (*vectorstore.QueryResult, error) {
	return nil, s.err
}
func (s failingStore) Get(context.Context, []string) (*vectorstore.GetResult, error) {
	return nil, s.err
}
func (s failingStore) Count(context.Context) (int, error) { return 0, s.err }
func (s failingStore) Reset(context.Context) error        { return s.err }

var errBackend = errors.New("connection reset by peer")

// scriptedModel answers each Generate call with respond and keeps what it saw.
type scriptedModel struct {
	mu      sync.Mutex
	calls   int
	seen    [][]ai.Message
	tools   [][]ai.ToolSpec
	respond func(ctx context.Context, call int, messages []ai.Message) (*ai.Generation, error)
}

func (m *scriptedModel) Generate(ctx context.Context, messages []ai.Message, tools []ai.ToolSpec) (*ai.Generation, error) {
	m.mu.Lock()
	m.calls++
	call := m.calls
	m.seen = append(m.seen, append([]ai.Message(nil), messages...))
	m.tools = append(m.tools, tools)
	m.mu.Unlock()
	return m.respond(ctx, call, messages)
}

func (m *scriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func answer(text string) *ai.Generation {
	return &ai.Generation{Text: text}
}

func callTool(name, query string) *ai.Generation {
	return &ai.Generation{ToolCalls: []ai.ToolCall{{Name: name, Query: query}}}
}

// lastContent is the content of the final message.
func lastContent(messages []ai.Message) string {
	if len(messages) == 0 {
		return ""
	}
	return messages[len(messages)-1].Content
}

// countingTool returns out (or err) and counts invocations.
type countingTool struct {
	name  string
	kind  ToolKind
	out   string
	err   error
	calls atomic.Int32

	mu      sync.Mutex
	queries []string
}

func (t *countingTool) Name() string        { return t.name }
func (t *countingTool) Description() string { return "test tool " + t.name }
func (t *countingTool) Kind() ToolKind      { return t.kind }

func (t *countingTool) Run(_ context.Context, query string) (string, error) {
	t.calls.Add(1)
	t.mu.Lock()
	t.queries = append(t.queries, query)
	t.mu.Unlock()
	return t.out, t.err
}
