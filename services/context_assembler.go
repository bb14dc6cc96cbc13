package services

import (
	"fmt"
	"strings"

	"legal-ai-assistant/internal/vectorstore"
)

const (
	evidenceHeader   = "Context from legal documents:"
	addendumHeader   = "Additional Context:"
	truncationSuffix = "..."

	NoDocumentsMessage = "No relevant legal documents were found for this query."

	DefaultMaxEvidenceChars = 12000
)

// EvidenceSegment is one retrieved passage with its source label.
type EvidenceSegment struct {
	Label   string
	Content string
}

// EvidenceBlock is the grounding text handed to the model for one turn.
type EvidenceBlock struct {
	Segments  []EvidenceSegment
	Addendum  []string
	Truncated bool
}

// ContextAssembler turns search hits and caller context into an
// EvidenceBlock. Output depends only on its inputs.
type ContextAssembler struct {
	maxChars int
}

// NewContextAssembler caps the combined segment content at maxChars runes.
// maxChars <= 0 disables the cap.
func NewContextAssembler(maxChars int) *ContextAssembler {
	return &ContextAssembler{maxChars: maxChars}
}

func (a *ContextAssembler) Assemble(hits []vectorstore.Hit, extra []string) EvidenceBlock {
	block := EvidenceBlock{Segments: []EvidenceSegment{}}

	used := 0
	for i, hit := range hits {
		content := strings.TrimSpace(hit.Content)
		if a.maxChars > 0 {
			if used >= a.maxChars {
				block.Truncated = true
				break
			}
			runes := []rune(content)
			if room := a.maxChars - used; len(runes) > room {
				content = string(runes[:room]) + truncationSuffix
				block.Truncated = true
				used = a.maxChars
			} else {
				used += len(runes)
			}
		}
		block.Segments = append(block.Segments, EvidenceSegment{
			Label:   sourceLabel(hit.Metadata, i),
			Content: content,
		})
	}

	for _, e := range extra {
		if e = strings.TrimSpace(e); e != "" {
			block.Addendum = append(block.Addendum, e)
		}
	}
	return block
}

// sourceLabel falls back to "Document N" (1-based) without a source.
func sourceLabel(metadata map[string]any, i int) string {
	if s, ok := metadata["source"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return fmt.Sprintf("Document %d", i+1)
}

// HasEvidence reports whether any passage was retrieved.
func (b EvidenceBlock) HasEvidence() bool {
	return len(b.Segments) > 0
}

func (b EvidenceBlock) String() string {
	var sb strings.Builder
	sb.WriteString(evidenceHeader)
	sb.WriteString("\n")

	if len(b.Segments) == 0 {
		sb.WriteString(NoDocumentsMessage)
	}
	for i, seg := range b.Segments {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("Source: ")
		sb.WriteString(seg.Label)
		sb.WriteString("\n")
		sb.WriteString(seg.Content)
	}

	if len(b.Addendum) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(addendumHeader)
		sb.WriteString("\n")
		sb.WriteString(strings.Join(b.Addendum, "\n\n"))
	}
	return sb.String()
}
