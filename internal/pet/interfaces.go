package pet

import (
	"context"
	"io"
	"time"
)

// Store persists canonical pet records. Upsert is idempotent on ID: the
// second call for the same id updates in place and reports created=false.
type Store interface {
	Exists(ctx context.Context, id string) (bool, error)
	Upsert(ctx context.Context, p Pet) (created bool, err error)
	SaveMany(ctx context.Context, pets []Pet) SaveReport
}

// CheckpointStore reads and writes per-(source, type) resumption markers.
// Get returns (nil, nil) when no checkpoint exists yet. List filters by
// source and type; empty arguments match everything.
type CheckpointStore interface {
	Get(ctx context.Context, sourceID string, petType Type) (*Checkpoint, error)
	Put(ctx context.Context, cp Checkpoint) error
	List(ctx context.Context, sourceID string, petType Type) ([]Checkpoint, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes messages to a downstream topic (Pub/Sub or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches one URL and returns the raw body.
type Fetcher interface {
	FetchPage(ctx context.Context, url string) ([]byte, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces batch IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
