package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"legal-ai-assistant/internal/ai"
	"legal-ai-assistant/internal/legalupdates"
	"legal-ai-assistant/internal/logger"
	"legal-ai-assistant/internal/vectorstore"
)

const (
	UpdateSearchToolName = "legal_updates_search"
	FallbackToolName     = "cannot_answer"

	NoUpdatesFoundMessage = "No relevant documents found."
	CannotAnswerMessage   = "I cannot answer this question based on the available information and tools."
)

// ToolKind separates tools that gather evidence from tools whose output ends
// the turn.
type ToolKind int

const (
	EvidenceTool ToolKind = iota
	TerminalTool
)

func (k ToolKind) String() string {
	switch k {
	case EvidenceTool:
		return "evidence"
	case TerminalTool:
		return "terminal"
	default:
		return fmt.Sprintf("ToolKind(%d)", int(k))
	}
}

// Tool is a capability the model may call with a single query argument.
type Tool interface {
	Name() string
	Description() string
	Kind() ToolKind
	Run(ctx context.Context, query string) (string, error)
}

// ToolRegistry dispatches tool calls by name. Declaration order is kept for
// the specs offered to the model.
type ToolRegistry struct {
	order  []Tool
	byName map[string]Tool
}

func NewToolRegistry(tools ...Tool) (*ToolRegistry, error) {
	r := &ToolRegistry{byName: make(map[string]Tool, len(tools))}
	for _, t := range tools {
		if t == nil {
			continue
		}
		name := t.Name()
		if name == "" {
			return nil, errors.New("tool name must not be empty")
		}
		if _, dup := r.byName[name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", name)
		}
		r.byName[name] = t
		r.order = append(r.order, t)
	}
	return r, nil
}

func (r *ToolRegistry) Lookup(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Terminal returns the first registered terminal tool.
func (r *ToolRegistry) Terminal() (Tool, bool) {
	for _, t := range r.order {
		if t.Kind() == TerminalTool {
			return t, true
		}
	}
	return nil, false
}

func (r *ToolRegistry) Names() []string {
	names := make([]string, len(r.order))
	for i, t := range r.order {
		names[i] = t.Name()
	}
	return names
}

func (r *ToolRegistry) Specs() []ai.ToolSpec {
	specs := make([]ai.ToolSpec, len(r.order))
	for i, t := range r.order {
		specs[i] = ai.ToolSpec{Name: t.Name(), Description: t.Description()}
	}
	return specs
}

// UpdateCollector yields legal update records relevant to a query.
type UpdateCollector interface {
	CollectFor(ctx context.Context, query string) []legalupdates.Record
}

// DocumentSearcher is the read side of a DocumentStore.
type DocumentSearcher interface {
	Search(ctx context.Context, query string, k int) ([]vectorstore.Hit, error)
}

// UpdateSearchTool looks for recent bills and amendments. When no source has
// anything it falls back to the indexed documents, and finally to a fixed
// "nothing found" sentence.
type UpdateSearchTool struct {
	feed       UpdateCollector
	searchers  []DocumentSearcher
	maxResults int
}

// NewUpdateSearchTool builds the tool. searchers are tried in order when the
// live sources return nothing; the first with hits wins.
func NewUpdateSearchTool(feed UpdateCollector, maxResults int, searchers ...DocumentSearcher) *UpdateSearchTool {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &UpdateSearchTool{feed: feed, searchers: searchers, maxResults: maxResults}
}

func (t *UpdateSearchTool) Name() string   { return UpdateSearchToolName }
func (t *UpdateSearchTool) Kind() ToolKind { return EvidenceTool }

func (t *UpdateSearchTool) Description() string {
	return "Searches recent Indian legislative activity (bills, constitutional amendments and amendments to specific sections). " +
		"Use only when the question asks about recent legal changes or the provided context does not contain the answer. " +
		"The query should name the law, bill, article or section of interest."
}

// Run only fails when ctx is done. Individual source failures are skipped.
func (t *UpdateSearchTool) Run(ctx context.Context, query string) (string, error) {
	var records []legalupdates.Record
	if t.feed != nil {
		records = t.feed.CollectFor(ctx, query)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if len(records) > 0 {
		ranked := legalupdates.Rank(records, query, t.maxResults)
		lines := make([]string, 0, len(ranked)+1)
		lines = append(lines, "Recent legal updates:")
		for _, r := range ranked {
			lines = append(lines, r.Bullet())
		}
		return strings.Join(lines, "\n"), nil
	}

	for _, s := range t.searchers {
		hits, err := s.Search(ctx, query, 0)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			logger.Warn("Update search fallback failed", "tool", UpdateSearchToolName, "error", fmt.Errorf("%w: %w", ErrToolFailure, err))
			continue
		}
		if len(hits) > 0 {
			return formatDocumentHits(hits), nil
		}
	}

	return NoUpdatesFoundMessage, nil
}

func formatDocumentHits(hits []vectorstore.Hit) string {
	blocks := make([]string, len(hits))
	for i, h := range hits {
		source, _ := h.Metadata["source"].(string)
		if source == "" {
			source = "Unknown"
		}
		blocks[i] = fmt.Sprintf("Source: %s\nContent: %s", source, strings.TrimSpace(h.Content))
	}
	return "Based on existing documents:\n" + strings.Join(blocks, "\n\n")
}

// FallbackTool ends the turn with a fixed refusal.
type FallbackTool struct{}

func NewFallbackTool() *FallbackTool { return &FallbackTool{} }

func (FallbackTool) Name() string   { return FallbackToolName }
func (FallbackTool) Kind() ToolKind { return TerminalTool }

func (FallbackTool) Description() string {
	return "Declares that the question cannot be answered. Use only after " + UpdateSearchToolName +
		" has also failed to produce relevant information."
}

func (FallbackTool) Run(context.Context, string) (string, error) {
	return CannotAnswerMessage, nil
}

// UpdatesSink stores scraped update records in store, skipping records that
// are already indexed. It reports how many records were added.
func UpdatesSink(store *DocumentStore) legalupdates.Sink {
	return func(ctx context.Context, records []legalupdates.Record) (int, error) {
		var (
			added int
			errs  []error
		)
		for _, r := range records {
			meta := r.Metadata()
			source := SourceName(meta)

			if _, found, err := store.GetByID(ctx, source+"_0"); err != nil {
				errs = append(errs, err)
				continue
			} else if found {
				continue
			}

			if _, err := store.Ingest(ctx, r.Content(), meta); err != nil {
				errs = append(errs, err)
				if ctx.Err() != nil {
					break
				}
				continue
			}
			added++
		}
		return added, errors.Join(errs...)
	}
}
