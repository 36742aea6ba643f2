// Package store defines the persistence boundary for record reads and writes.
// The core reads through Fetcher; only consumers write, through Writer,
// followed by a cache invalidation and a refresh request.
package store

import (
	"context"

	"casegov/internal/record"
)

// Fetcher is the record-read interface supplied by the persistence system.
type Fetcher interface {
	// Fetch returns one record or sentinel.ErrNotFound.
	Fetch(ctx context.Context, entityType record.EntityType, id string) (record.Record, error)

	// FetchMany returns the records that exist among ids in one round trip.
	// Ids with no matching record are simply absent from the result.
	FetchMany(ctx context.Context, entityType record.EntityType, ids []string) (map[string]record.Record, error)
}

// Patch is a partial update to one record.
type Patch struct {
	EntityType record.EntityType `json:"entityType"`
	ID         string            `json:"id"`
	Fields     map[string]any    `json:"fields"`
}

// WriteResult reports the outcome of a write without raising field-level
// failures to error status; callers decide how to surface them.
type WriteResult struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors"`
}

// Writer is the record-write interface supplied by the persistence system.
type Writer interface {
	Write(ctx context.Context, patch Patch) (WriteResult, error)
}

// Store combines both sides of the persistence boundary.
type Store interface {
	Fetcher
	Writer
}
