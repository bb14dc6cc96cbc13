package services

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestRecorderInteractions(t *testing.T) {
	dir := t.TempDir()
	r := NewInteractionRecorder(dir)
	fixed := time.Date(2024, 8, 15, 9, 30, 0, 0, time.UTC)
	r.now = func() time.Time { return fixed }

	r.LogInteraction("What is Article 14?", "Equality before law.", "chat", map[string]any{"session_id": "s1", "hit_count": 2})
	r.LogInteraction("And Article 15?", "Prohibits discrimination.", "chat", nil)

	got, err := r.GetInteractions()
	if err != nil {
		t.Fatalf("GetInteractions: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].Query != "What is Article 14?" || got[1].Response != "Prohibits discrimination." {
		t.Errorf("entries out of order: %+v", got)
	}
	if !got[0].Timestamp.Equal(fixed) {
		t.Errorf("timestamp = %v", got[0].Timestamp)
	}
	// Numbers come back from JSON as float64
	if got[0].Metadata["session_id"] != "s1" || got[0].Metadata["hit_count"] != float64(2) {
		t.Errorf("metadata = %v", got[0].Metadata)
	}

	if m := r.Metrics(); m.TotalInteractions != 2 {
		t.Errorf("TotalInteractions = %d", m.TotalInteractions)
	}
	if _, err := os.Stat(filepath.Join(dir, interactionsFile)); err != nil {
		t.Errorf("log file missing: %v", err)
	}
}

func TestRecorderErrors(t *testing.T) {
	r := NewInteractionRecorder(t.TempDir())

	r.LogError(fmt.Errorf("%w: %w", ErrSearchFailure, errBackend), map[string]any{"query": "q"})
	r.LogError(errors.New("plain failure"), nil)
	r.LogError(nil, nil)

	got, err := r.GetErrors()
	if err != nil {
		t.Fatalf("GetErrors: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	if got[0].ErrorType != "SearchFailure" || got[0].Context["query"] != "q" {
		t.Errorf("first entry %+v", got[0])
	}
	if got[1].ErrorType != "*errors.errorString" || got[1].ErrorMessage != "plain failure" {
		t.Errorf("second entry %+v", got[1])
	}

	m := r.Metrics()
	if m.TotalErrors != 2 || m.LastError == nil || *m.LastError != "plain failure" {
		t.Errorf("metrics = %+v", m)
	}
}

func TestRecorderMissingAndMalformedLogs(t *testing.T) {
	dir := t.TempDir()
	r := NewInteractionRecorder(dir)

	got, err := r.GetInteractions()
	if err != nil || got == nil || len(got) != 0 {
		t.Fatalf("missing log = (%v, %v), want empty", got, err)
	}

	content := `{"timestamp":"2024-01-01T00:00:00Z","query":"ok","response":"fine","source":"chat"}
not json at all

{"timestamp":"2024-01-01T00:01:00Z","query":"also ok","response":"fine","source":"chat"}
`
	if err := os.WriteFile(filepath.Join(dir, interactionsFile), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = r.GetInteractions()
	if err != nil {
		t.Fatalf("GetInteractions: %v", err)
	}
	if len(got) != 2 || got[1].Query != "also ok" {
		t.Errorf("got %+v", got)
	}
}

func TestRecorderTrackRequest(t *testing.T) {
	r := NewInteractionRecorder(t.TempDir())
	r.TrackRequest("chat", 2*time.Second)
	r.TrackRequest("ingest", 4*time.Second)

	m := r.Metrics()
	if m.TotalRequests != 2 || m.AverageResponseTime != 3 {
		t.Errorf("metrics = %+v", m)
	}
	if m.Uptime < 0 || m.StartedAt.IsZero() {
		t.Errorf("uptime %v started %v", m.Uptime, m.StartedAt)
	}
}

func TestRecorderConcurrentWrites(t *testing.T) {
	r := NewInteractionRecorder(t.TempDir())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r.LogInteraction(fmt.Sprintf("q%d", i), "a", "chat", map[string]any{"i": i})
		}(i)
	}
	wg.Wait()

	got, err := r.GetInteractions()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 20 {
		t.Errorf("got %d entries, want 20", len(got))
	}
}

func TestNilRecorder(t *testing.T) {
	var r *InteractionRecorder
	r.LogInteraction("q", "a", "chat", nil)
	r.LogError(errBackend, nil)
	r.TrackRequest("chat", time.Second)

	if got, err := r.GetErrors(); err != nil || len(got) != 0 {
		t.Errorf("GetErrors() = %v, %v", got, err)
	}
	if m := r.Metrics(); m.TotalRequests != 0 {
		t.Errorf("Metrics() = %+v", m)
	}
}
