// Package docstore is a small document-database abstraction over Firestore,
// Postgres JSONB and an in-memory map. Documents are JSON objects addressed by
// collection and id.
package docstore

import (
	"context"
	"errors"
)

var (
	ErrNotFound      = errors.New("document not found")
	ErrAlreadyExists = errors.New("document already exists")
)

// Ref addresses one document.
type Ref struct {
	Collection string
	ID         string
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

// Snapshot is a read of one document. Exists is false for a missing document;
// DataTo then returns ErrNotFound.
type Snapshot interface {
	Exists() bool
	DataTo(dst any) error
}

// WatchFunc receives the current document state, or an error from the
// underlying listener.
type WatchFunc func(Snapshot, error)

// Subscription is a live Watch. Stop is idempotent and returns only after any
// in-flight callback has finished; no callback starts after it returns.
type Subscription interface {
	Stop()
}

type Filter struct {
	Field string
	Value any
}

type Query struct {
	Collection string
	Where      []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Store is implemented by Memory, Postgres and Firestore.
//
// Field paths in Merge, Update and Increment are dotted ("current.calories").
type Store interface {
	Get(ctx context.Context, ref Ref) (Snapshot, error)
	// Create fails with ErrAlreadyExists when the document exists.
	Create(ctx context.Context, ref Ref, data any) error
	// Set overwrites the whole document.
	Set(ctx context.Context, ref Ref, data any) error
	// Merge writes the given field paths, creating the document if needed.
	Merge(ctx context.Context, ref Ref, fields map[string]any) error
	// Update writes the given field paths and fails with ErrNotFound when the
	// document is absent.
	Update(ctx context.Context, ref Ref, fields map[string]any) error
	// Increment atomically adds each delta to its numeric field, treating
	// missing fields and documents as zero, and sets the plain values in
	// extra. It returns the document after the write.
	Increment(ctx context.Context, ref Ref, deltas map[string]float64, extra map[string]any) (Snapshot, error)
	Delete(ctx context.Context, ref Ref) error
	Watch(ctx context.Context, ref Ref, fn WatchFunc) (Subscription, error)
	Query(ctx context.Context, q Query) ([]Snapshot, error)
	Ping(ctx context.Context) error
	Close() error
}
