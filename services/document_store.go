package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"legal-ai-assistant/internal/chunker"
	"legal-ai-assistant/internal/logger"
	"legal-ai-assistant/internal/telemetry"
	"legal-ai-assistant/internal/vectorstore"
	"legal-ai-assistant/models"
)

const DefaultSearchK = 5

type DocumentStoreOptions struct {
	Collection   string
	ChunkSize    int
	ChunkOverlap int
	DefaultK     int
	Recorder     *InteractionRecorder
	Metrics      *telemetry.Metrics
}

// DocumentStore chunks documents into one vector store collection and
// searches it.
type DocumentStore struct {
	store        vectorstore.Store
	collection   string
	chunkSize    int
	chunkOverlap int
	defaultK     int
	recorder     *InteractionRecorder
	metrics      *telemetry.Metrics
	now          func() time.Time
}

// IngestResult confirms a successful ingest.
type IngestResult struct {
	Source  string
	Chunks  int
	Message string
}

func NewDocumentStore(store vectorstore.Store, opts DocumentStoreOptions) *DocumentStore {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = chunker.DefaultChunkSize
	}
	if opts.DefaultK <= 0 {
		opts.DefaultK = DefaultSearchK
	}
	if opts.Collection == "" {
		opts.Collection = "legal_documents"
	}
	return &DocumentStore{
		store:        store,
		collection:   opts.Collection,
		chunkSize:    opts.ChunkSize,
		chunkOverlap: opts.ChunkOverlap,
		defaultK:     opts.DefaultK,
		recorder:     opts.Recorder,
		metrics:      opts.Metrics,
		now:          time.Now,
	}
}

func (d *DocumentStore) Collection() string {
	return d.collection
}

// SourceName picks the source label for a document: metadata "source", then
// "{title}.json", then "document.json".
func SourceName(metadata map[string]any) string {
	if s, ok := metadata["source"].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	if t, ok := metadata["title"].(string); ok && strings.TrimSpace(t) != "" {
		return strings.TrimSpace(t) + ".json"
	}
	return "document.json"
}

// Ingest chunks content and stores every chunk in one batch with ids
// "{source}_{index}". Nothing is stored when any part of the batch fails.
func (d *DocumentStore) Ingest(ctx context.Context, content string, metadata map[string]any) (IngestResult, error) {
	start := time.Now()
	source := SourceName(metadata)

	if d == nil || d.store == nil {
		err := ErrStoreUnavailable
		logger.Error("Document ingestion failed", "source", source, "error", err)
		if d != nil {
			d.recorder.LogError(err, map[string]any{"operation": "ingest", "source": source})
		}
		return IngestResult{}, err
	}

	chunks := chunker.Split(source, content, d.chunkSize, d.chunkOverlap)
	if len(chunks) == 0 {
		return IngestResult{}, fmt.Errorf("%w: %s", ErrEmptyDocument, source)
	}

	ingestedAt := d.now().UTC().Format(time.RFC3339)
	ids := make([]string, len(chunks))
	documents := make([]string, len(chunks))
	metadatas := make([]map[string]any, len(chunks))
	for i, c := range chunks {
		meta := make(map[string]any, len(metadata)+4)
		for k, v := range metadata {
			meta[k] = v
		}
		meta["source"] = source
		meta["chunk_index"] = c.Index
		meta["chunk_total"] = c.TotalInSource
		meta["ingested_at"] = ingestedAt

		ids[i] = fmt.Sprintf("%s_%d", source, c.Index)
		documents[i] = c.Text
		metadatas[i] = meta
	}

	if err := d.store.Add(ctx, ids, documents, metadatas); err != nil {
		err = fmt.Errorf("%w: %w", ErrIngestFailure, err)
		logger.Error("Document ingestion failed",
			"source", source,
			"collection", d.collection,
			"chunks", len(chunks),
			"error", err,
		)
		d.recorder.LogError(err, map[string]any{
			"operation":  "ingest",
			"source":     source,
			"collection": d.collection,
			"chunks":     len(chunks),
		})
		return IngestResult{}, err
	}

	duration := time.Since(start)
	d.recorder.TrackRequest("ingest", duration)
	d.metrics.RecordIngest(duration.Seconds(), d.collection)
	logger.Info("Document ingested",
		"source", source,
		"collection", d.collection,
		"chunks", len(chunks),
		"duration", duration.String(),
	)

	return IngestResult{
		Source:  source,
		Chunks:  len(chunks),
		Message: fmt.Sprintf("Successfully ingested %s (%d chunks)", source, len(chunks)),
	}, nil
}

// Search returns up to k hits, nearest first. k <= 0 uses the default.
func (d *DocumentStore) Search(ctx context.Context, query string, k int) ([]vectorstore.Hit, error) {
	if d == nil || d.store == nil {
		return nil, ErrStoreUnavailable
	}
	if strings.TrimSpace(query) == "" {
		return []vectorstore.Hit{}, nil
	}
	if k <= 0 {
		k = d.defaultK
	}

	start := time.Now()
	res, err := d.store.Query(ctx, []string{query}, k)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrSearchFailure, err)
		logger.Error("Document search failed", "collection", d.collection, "error", err)
		d.recorder.LogError(err, map[string]any{
			"operation":  "search",
			"collection": d.collection,
			"query":      query,
		})
		return nil, err
	}

	hits := res.Hits(0)
	d.metrics.RecordSearch(time.Since(start).Seconds(), d.collection, len(hits))
	return hits, nil
}

// GetByID looks up one passage. A miss is (nil, false, nil).
func (d *DocumentStore) GetByID(ctx context.Context, id string) (*vectorstore.Hit, bool, error) {
	if d == nil || d.store == nil {
		return nil, false, ErrStoreUnavailable
	}

	res, err := d.store.Get(ctx, []string{id})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrSearchFailure, err)
	}
	if len(res.IDs) == 0 {
		return nil, false, nil
	}
	return &vectorstore.Hit{
		ID:       res.IDs[0],
		Content:  res.Documents[0],
		Metadata: res.Metadatas[0],
	}, true, nil
}

// Stats counts chunks and distinct sources.
func (d *DocumentStore) Stats(ctx context.Context) (models.DocumentStats, error) {
	if d == nil || d.store == nil {
		return models.DocumentStats{}, ErrStoreUnavailable
	}

	total, err := d.store.Count(ctx)
	if err != nil {
		return models.DocumentStats{}, fmt.Errorf("%w: %w", ErrSearchFailure, err)
	}
	all, err := d.store.Get(ctx, nil)
	if err != nil {
		return models.DocumentStats{}, fmt.Errorf("%w: %w", ErrSearchFailure, err)
	}

	sources := make(map[string]struct{})
	for _, meta := range all.Metadatas {
		if s, ok := meta["source"].(string); ok && s != "" {
			sources[s] = struct{}{}
		}
	}

	return models.DocumentStats{
		TotalChunks:        total,
		TotalUniqueSources: len(sources),
	}, nil
}

// Reset deletes every passage in the collection.
func (d *DocumentStore) Reset(ctx context.Context) error {
	if d == nil || d.store == nil {
		return ErrStoreUnavailable
	}
	if err := d.store.Reset(ctx); err != nil {
		return fmt.Errorf("reset %s: %w", d.collection, err)
	}
	logger.Warn("Document collection reset", "collection", d.collection)
	return nil
}
