package pet

import (
	"errors"
	"fmt"
)

// ErrCrawlInProgress is returned when a crawl for the same (source, type)
// key is already running. Checkpoint writes are last-writer-wins, so
// same-key runs must be serialized.
var ErrCrawlInProgress = errors.New("crawl already in progress for this source and type")

// NetworkError wraps connection and timeout failures from the transport.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// HTTPStatusError is returned for non-2xx responses. Retryability is
// decided by the retry layer from the status code, not here.
type HTTPStatusError struct {
	URL    string
	Status int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("http status %d fetching %s", e.Status, e.URL)
}

// ParseError indicates the selector chain was exhausted for a page. Field
// level misses degrade to Unknown sentinels instead of raising this.
type ParseError struct {
	What string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed: %s", e.What)
}

// ValidationError indicates a required field was missing after
// normalization; the item is dropped and the batch continues.
type ValidationError struct {
	ID    string
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("item %s missing required field %q", e.ID, e.Field)
}

// PersistenceError wraps a record-store write failure for one item.
type PersistenceError struct {
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %s: %v", e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// QueueError wraps a downstream queue send failure.
type QueueError struct {
	Err error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("queue send: %v", e.Err)
}

func (e *QueueError) Unwrap() error { return e.Err }
