package utils

import (
	"context"
	"time"
)

const (
	// DefaultTimeout covers store lookups and stats
	DefaultTimeout = 10 * time.Second

	// LongTimeout is for ingestion, which embeds every chunk
	LongTimeout = 2 * time.Minute

	// ShortTimeout is for cache and rate limiter round trips
	ShortTimeout = 2 * time.Second
)

// WithTimeout creates a context with default timeout
func WithTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, DefaultTimeout)
}

// WithLongTimeout creates a context for ingestion requests
func WithLongTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, LongTimeout)
}
