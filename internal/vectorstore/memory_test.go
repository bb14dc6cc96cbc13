package vectorstore

import (
	"context"
	"errors"
	"math"
	"testing"
)

// tableEmbedder returns fixed vectors and fails for texts listed in fail.
type tableEmbedder struct {
	vectors map[string][]float32
	fail    map[string]bool
}

func (e *tableEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.fail[text] {
		return nil, errors.New("embedding service unavailable")
	}
	if v, ok := e.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

func newTestStore() (*MemoryStore, *tableEmbedder) {
	emb := &tableEmbedder{
		vectors: map[string][]float32{
			"east":       {1, 0, 0},
			"north":      {0, 1, 0},
			"north-east": {1, 1, 0},
			"west":       {-1, 0, 0},
			"q-east":     {1, 0, 0},
		},
		fail: map[string]bool{},
	}
	return NewMemoryStore(emb), emb
}

func meta(source string) map[string]any {
	return map[string]any{"source": source}
}

func TestMemoryStoreQueryOrdersByDistance(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	err := s.Add(ctx,
		[]string{"w", "n", "ne", "e"},
		[]string{"west", "north", "north-east", "east"},
		[]map[string]any{meta("a"), meta("b"), meta("c"), meta("d")},
	)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	res, err := s.Query(ctx, []string{"q-east"}, 3)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	hits := res.Hits(0)
	want := []string{"e", "ne", "n"}
	if len(hits) != len(want) {
		t.Fatalf("got %d hits, want %d", len(hits), len(want))
	}
	for i, id := range want {
		if hits[i].ID != id {
			t.Errorf("hit %d = %s, want %s", i, hits[i].ID, id)
		}
	}
	if hits[0].Distance != 0 {
		t.Errorf("exact match distance = %v, want 0", hits[0].Distance)
	}
	if d := hits[1].Distance; math.Abs(d-(1-1/math.Sqrt2)) > 1e-6 {
		t.Errorf("north-east distance = %v", d)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Distance < hits[i-1].Distance {
			t.Errorf("distances not ascending at %d", i)
		}
	}
	if hits[0].Metadata["source"] != "d" {
		t.Errorf("metadata not carried: %v", hits[0].Metadata)
	}
}

func TestMemoryStoreTiesKeepInsertionOrder(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.Add(ctx, []string{"first", "second"}, []string{"east", "east"}, []map[string]any{meta("x"), meta("y")}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ctx, []string{"third"}, []string{"east"}, []map[string]any{meta("z")}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	res, err := s.Query(ctx, []string{"q-east"}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	got := res.IDs[0]
	want := []string{"first", "second", "third"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tie order = %v, want %v", got, want)
		}
	}
}

func TestMemoryStoreEmptyQuery(t *testing.T) {
	s, _ := newTestStore()
	res, err := s.Query(context.Background(), []string{"q-east"}, 5)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if hits := res.Hits(0); len(hits) != 0 {
		t.Errorf("expected no hits from an empty store, got %v", hits)
	}
	if _, err := s.Query(context.Background(), nil, 5); !errors.Is(err, ErrEmptyQuery) {
		t.Errorf("expected ErrEmptyQuery, got %v", err)
	}
}

func TestMemoryStoreAddIsAtomic(t *testing.T) {
	s, emb := newTestStore()
	ctx := context.Background()
	emb.fail["north"] = true

	err := s.Add(ctx, []string{"e", "n"}, []string{"east", "north"}, []map[string]any{meta("a"), meta("b")})
	if err == nil {
		t.Fatal("expected embedding failure")
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("failed batch left %d passages behind", n)
	}
}

func TestMemoryStoreRejectsDuplicates(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	if err := s.Add(ctx, []string{"a", "a"}, []string{"east", "west"}, []map[string]any{meta("a"), meta("a")}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("in-batch duplicate: got %v", err)
	}
	if err := s.Add(ctx, []string{"a"}, []string{"east"}, []map[string]any{meta("a")}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(ctx, []string{"b", "a"}, []string{"north", "west"}, []map[string]any{meta("b"), meta("a")}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("existing duplicate: got %v", err)
	}
	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestMemoryStoreInvalidBatch(t *testing.T) {
	s, _ := newTestStore()
	err := s.Add(context.Background(), []string{"a", "b"}, []string{"east"}, []map[string]any{meta("a")})
	if !errors.Is(err, ErrInvalidBatch) {
		t.Errorf("got %v, want ErrInvalidBatch", err)
	}
}

func TestMemoryStoreGetAndReset(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()
	if err := s.Add(ctx, []string{"a", "b", "c"}, []string{"east", "west", "north"}, []map[string]any{meta("1"), meta("2"), meta("3")}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	got, err := s.Get(ctx, []string{"c", "missing", "a"})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got.IDs) != 2 || got.IDs[0] != "c" || got.IDs[1] != "a" {
		t.Errorf("Get ids = %v, want [c a]", got.IDs)
	}
	if got.Documents[0] != "north" {
		t.Errorf("Get documents = %v", got.Documents)
	}

	all, _ := s.Get(ctx, nil)
	if len(all.IDs) != 3 || all.IDs[0] != "a" || all.IDs[2] != "c" {
		t.Errorf("Get(nil) = %v, want insertion order", all.IDs)
	}

	// Returned metadata must not alias stored metadata.
	all.Metadatas[0]["source"] = "mutated"
	again, _ := s.Get(ctx, []string{"a"})
	if again.Metadatas[0]["source"] != "1" {
		t.Error("stored metadata was mutated through a result")
	}

	if err := s.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if n, _ := s.Count(ctx); n != 0 {
		t.Errorf("Count after Reset = %d", n)
	}
	if err := s.Add(ctx, []string{"a"}, []string{"east"}, []map[string]any{meta("1")}); err != nil {
		t.Errorf("re-adding after Reset: %v", err)
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2}, []float32{2, 4}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := cosineDistance(tt.a, tt.b)
			if err != nil {
				t.Fatalf("cosineDistance: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	if _, err := cosineDistance([]float32{1}, []float32{1, 2}); !errors.Is(err, ErrEmbedMismatch) {
		t.Errorf("expected ErrEmbedMismatch, got %v", err)
	}
}
