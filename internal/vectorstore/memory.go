package vectorstore

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process Store. Passages are kept in insertion order.
type MemoryStore struct {
	mu       sync.RWMutex
	embedder Embedder
	passages []passage
	index    map[string]int // id -> position in passages
}

func NewMemoryStore(embedder Embedder) *MemoryStore {
	return &MemoryStore{
		embedder: embedder,
		index:    make(map[string]int),
	}
}

func (s *MemoryStore) Add(ctx context.Context, ids, documents []string, metadatas []map[string]any) error {
	if err := validateBatch(ids, documents, metadatas); err != nil {
		return err
	}

	s.mu.RLock()
	for _, id := range ids {
		if _, ok := s.index[id]; ok {
			s.mu.RUnlock()
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
	}
	s.mu.RUnlock()

	vectors, err := embedAll(ctx, s.embedder, documents)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Re-check under the write lock; a concurrent Add may have won the race.
	for _, id := range ids {
		if _, ok := s.index[id]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateID, id)
		}
	}

	for i, id := range ids {
		s.index[id] = len(s.passages)
		s.passages = append(s.passages, passage{
			id:        id,
			document:  documents[i],
			metadata:  copyMetadata(metadatas[i]),
			embedding: vectors[i],
		})
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, queryTexts []string, nResults int) (*QueryResult, error) {
	if len(queryTexts) == 0 {
		return nil, ErrEmptyQuery
	}

	vectors, err := embedAll(ctx, s.embedder, queryTexts)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	snapshot := make([]passage, len(s.passages))
	copy(snapshot, s.passages)
	s.mu.RUnlock()

	result := newQueryResult(len(queryTexts))
	for i, vec := range vectors {
		passages, dists, err := rank(vec, snapshot, nResults)
		if err != nil {
			return nil, err
		}
		result.setRow(i, passages, dists)
	}
	return result, nil
}

func (s *MemoryStore) Get(_ context.Context, ids []string) (*GetResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var selected []passage
	if ids == nil {
		selected = s.passages
	} else {
		for _, id := range ids {
			if pos, ok := s.index[id]; ok {
				selected = append(selected, s.passages[pos])
			}
		}
	}

	result := &GetResult{
		IDs:       make([]string, len(selected)),
		Documents: make([]string, len(selected)),
		Metadatas: make([]map[string]any, len(selected)),
	}
	for i, p := range selected {
		result.IDs[i] = p.id
		result.Documents[i] = p.document
		result.Metadatas[i] = copyMetadata(p.metadata)
	}
	return result, nil
}

func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passages), nil
}

func (s *MemoryStore) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passages = nil
	s.index = make(map[string]int)
	return nil
}
