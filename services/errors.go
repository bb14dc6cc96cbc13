package services

import (
	"errors"
	"fmt"
)

var (
	ErrNotInitialized   = errors.New("assistant not initialized")
	ErrStoreUnavailable = errors.New("vector store unavailable")
	ErrIngestFailure    = errors.New("document ingestion failed")
	ErrSearchFailure    = errors.New("document search failed")
	ErrToolFailure      = errors.New("tool invocation failed")
	ErrParseFailure     = errors.New("model output could not be parsed into an answer")
	ErrEmptyDocument    = errors.New("document has no content")
)

var errorTypes = []struct {
	err  error
	name string
}{
	{ErrNotInitialized, "NotInitialized"},
	{ErrStoreUnavailable, "StoreUnavailable"},
	{ErrIngestFailure, "IngestFailure"},
	{ErrSearchFailure, "SearchFailure"},
	{ErrToolFailure, "ToolFailure"},
	{ErrParseFailure, "ParseFailure"},
	{ErrEmptyDocument, "EmptyDocument"},
}

// errorType names err for the error log: the taxonomy name when it wraps one
// of the sentinels above, else its Go type.
func errorType(err error) string {
	for _, t := range errorTypes {
		if errors.Is(err, t.err) {
			return t.name
		}
	}
	return fmt.Sprintf("%T", err)
}
