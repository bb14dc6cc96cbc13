package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hibiken/asynq"

	"legal-ai-assistant/internal/logger"
	"legal-ai-assistant/internal/vectorstore"
	"legal-ai-assistant/services"
)

const (
	TaskIngestDocument = "document:ingest"
	TaskIngestPDF      = "pdf:ingest"

	QueueCritical = "critical"
	QueueDefault  = "default"
)

type DocumentIngestPayload struct {
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type PDFIngestPayload struct {
	FilePath     string `json:"file_path"`
	Constitution bool   `json:"constitution"`
}

// Task creators
func NewDocumentIngestTask(content string, metadata map[string]any) (*asynq.Task, error) {
	payload, err := json.Marshal(DocumentIngestPayload{Content: content, Metadata: metadata})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
		asynq.Queue(QueueDefault),
	), nil
}

func NewPDFIngestTask(filePath string, constitution bool) (*asynq.Task, error) {
	payload, err := json.Marshal(PDFIngestPayload{FilePath: filePath, Constitution: constitution})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestPDF,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(30*time.Minute),
		asynq.Queue(QueueCritical),
	), nil
}

// Ingester is the part of services.DocumentStore the worker writes through.
type Ingester interface {
	Ingest(ctx context.Context, content string, metadata map[string]any) (services.IngestResult, error)
}

// Task handlers
type TaskProcessor struct {
	docs      Ingester
	extractor *services.PDFExtractor
}

func NewTaskProcessor(docs Ingester, extractor *services.PDFExtractor) *TaskProcessor {
	if extractor == nil {
		extractor = services.NewPDFExtractor(0)
	}
	return &TaskProcessor{docs: docs, extractor: extractor}
}

// Register adds the processor's handlers to mux.
func (p *TaskProcessor) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TaskIngestDocument, p.IngestDocument)
	mux.HandleFunc(TaskIngestPDF, p.IngestPDF)
}

func (p *TaskProcessor) IngestDocument(ctx context.Context, t *asynq.Task) error {
	var payload DocumentIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	res, err := p.docs.Ingest(ctx, payload.Content, payload.Metadata)
	if err != nil {
		return retryable(err)
	}

	logger.Info("Document ingested", "task", t.Type(), "source", res.Source, "chunks", res.Chunks)
	return nil
}

// IngestPDF extracts a PDF, splits it into articles and ingests each one.
// Articles that are already indexed are skipped so a retried task resumes
// where the previous attempt stopped.
func (p *TaskProcessor) IngestPDF(ctx context.Context, t *asynq.Task) error {
	var payload PDFIngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %w", asynq.SkipRetry)
	}

	result, err := p.extractor.ExtractFile(ctx, payload.FilePath)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	base := filepath.Base(payload.FilePath)
	articles := services.SplitArticles(result.Text)
	res, err := services.IngestArticles(ctx, p.docs, base, articles, payload.Constitution)
	if err != nil {
		logger.Warn("PDF ingestion interrupted",
			"file", base,
			"added", res.Added,
			"skipped", res.Skipped,
			"error", err,
		)
		return retryable(err)
	}

	logger.Info("PDF ingested",
		"file", base,
		"pages", result.Pages,
		"articles", len(articles),
		"added", res.Added,
		"skipped", res.Skipped,
		"chunks", res.Chunks,
	)
	return nil
}

// retryable marks failures that another attempt cannot fix.
func retryable(err error) error {
	switch {
	case errors.Is(err, services.ErrEmptyDocument), errors.Is(err, vectorstore.ErrDuplicateID):
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}
