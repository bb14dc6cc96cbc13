package services

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"legal-ai-assistant/internal/logger"
	"legal-ai-assistant/models"
)

const (
	interactionsFile = "interactions.jsonl"
	errorsFile       = "errors.jsonl"

	// Lines longer than this are skipped when replaying a log
	maxLogLineSize = 4 << 20
)

type (
	InteractionLogEntry = models.InteractionLogEntry
	ErrorLogEntry       = models.ErrorLogEntry
)

// InteractionRecorder appends one NDJSON line per chat turn and per error,
// and keeps the request counters served by /metrics. It never returns write
// errors to callers; they are reported through the process logger.
// A nil recorder is valid and records nothing.
type InteractionRecorder struct {
	dir              string
	interactionsPath string
	errorsPath       string
	now              func() time.Time

	writeMu sync.Mutex

	mu                sync.Mutex
	startedAt         time.Time
	totalRequests     int64
	totalErrors       int64
	totalInteractions int64
	totalDuration     time.Duration
	lastError         *string
}

func NewInteractionRecorder(dir string) *InteractionRecorder {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		logger.Error("Failed to create interaction log directory", "dir", dir, "error", err)
	}

	return &InteractionRecorder{
		dir:              dir,
		interactionsPath: filepath.Join(dir, interactionsFile),
		errorsPath:       filepath.Join(dir, errorsFile),
		now:              time.Now,
		startedAt:        time.Now(),
	}
}

// LogInteraction records one completed turn.
func (r *InteractionRecorder) LogInteraction(query, response, source string, metadata map[string]any) {
	if r == nil {
		return
	}

	entry := InteractionLogEntry{
		Timestamp: r.now().UTC(),
		Query:     query,
		Response:  response,
		Source:    source,
		Metadata:  metadata,
	}
	if err := r.appendLine(r.interactionsPath, entry); err != nil {
		logger.Error("Failed to write interaction log", "path", r.interactionsPath, "error", err)
	}

	r.mu.Lock()
	r.totalInteractions++
	r.mu.Unlock()
}

// LogError records a failure together with whatever context the caller has.
func (r *InteractionRecorder) LogError(err error, context map[string]any) {
	if r == nil || err == nil {
		return
	}

	msg := err.Error()
	entry := ErrorLogEntry{
		Timestamp:    r.now().UTC(),
		ErrorType:    errorType(err),
		ErrorMessage: msg,
		Context:      context,
	}
	if werr := r.appendLine(r.errorsPath, entry); werr != nil {
		logger.Error("Failed to write error log", "path", r.errorsPath, "error", werr, "original_error", msg)
	}

	r.mu.Lock()
	r.totalErrors++
	r.lastError = &msg
	r.mu.Unlock()
}

// TrackRequest adds one request of the given duration to the counters.
func (r *InteractionRecorder) TrackRequest(operation string, duration time.Duration) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.totalRequests++
	r.totalDuration += duration
	r.mu.Unlock()

	logger.Debug("Request tracked", "operation", operation, "duration", duration.String())
}

// Metrics returns a snapshot of the counters.
func (r *InteractionRecorder) Metrics() models.MonitoringMetrics {
	if r == nil {
		return models.MonitoringMetrics{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var avg float64
	if r.totalRequests > 0 {
		avg = r.totalDuration.Seconds() / float64(r.totalRequests)
	}

	var last *string
	if r.lastError != nil {
		msg := *r.lastError
		last = &msg
	}

	return models.MonitoringMetrics{
		TotalRequests:       r.totalRequests,
		TotalErrors:         r.totalErrors,
		TotalInteractions:   r.totalInteractions,
		AverageResponseTime: avg,
		Uptime:              r.now().Sub(r.startedAt).Seconds(),
		StartedAt:           r.startedAt.UTC(),
		LastError:           last,
	}
}

// GetInteractions replays interactions.jsonl. A missing log is empty.
func (r *InteractionRecorder) GetInteractions() ([]InteractionLogEntry, error) {
	if r == nil {
		return []InteractionLogEntry{}, nil
	}
	return readLog[InteractionLogEntry](r.interactionsPath)
}

// GetErrors replays errors.jsonl. A missing log is empty.
func (r *InteractionRecorder) GetErrors() ([]ErrorLogEntry, error) {
	if r == nil {
		return []ErrorLogEntry{}, nil
	}
	return readLog[ErrorLogEntry](r.errorsPath)
}

func (r *InteractionRecorder) appendLine(path string, v any) error {
	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}
	line = append(line, '\n')

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func readLog[T any](path string) ([]T, error) {
	entries := []T{}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return entries, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineSize)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry T
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			logger.Warn("Skipping malformed log line", "path", path, "line", lineNo, "error", err)
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read %s: %w", path, err)
	}
	return entries, nil
}
