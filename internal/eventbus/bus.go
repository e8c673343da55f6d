// Package eventbus provides the bounded in-memory queue that carries
// upload lifecycle events from the processing pipeline to the SSE
// serializer.
//
// Each upload gets its own Bus. The pipeline publishes events as phases
// complete; the HTTP handler consumes them in order and writes one SSE
// frame per event. The queue is bounded so a slow client applies
// backpressure to the pipeline instead of growing memory without limit.
package eventbus

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned by Publish once the bus has been closed. The
// producer should treat it as "consumer gone" and stop emitting.
var ErrClosed = errors.New("event bus closed")

// minCapacity is the smallest queue the bus will allocate. Tiny queues
// make every publish a rendezvous with the consumer, which stalls the
// pipeline on each SSE write.
const minCapacity = 32

// Status identifies the pipeline phase an event belongs to.
type Status string

// Pipeline statuses in the order they occur. Completed and Error are
// terminal: exactly one of them ends every stream.
const (
	StatusUploading Status = "uploading"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Event is one progress frame of an upload stream. The JSON encoding is
// the SSE wire format: counters are always present, identity and result
// fields appear once known, and everything unset is omitted.
type Event struct {
	Status   Status  `json:"status"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message"`

	// Running analysis counters. Zero until analysis begins.
	NullCount      int64 `json:"null_count"`
	ProcessedCount int64 `json:"processed_count"`

	// Dimensions of the CSV, present once the header has been read.
	// TotalRows starts as a newline-count estimate and becomes exact
	// when analysis finishes.
	TotalRows    *int64 `json:"total_rows,omitempty"`
	TotalColumns *int   `json:"total_columns,omitempty"`

	// File identity, present from the metadata-insert checkpoint onward.
	FileID           *int64 `json:"file_id,omitempty"`
	FileReference    string `json:"file_reference,omitempty"`
	OriginalFilename string `json:"original_filename,omitempty"`
	StoredFilename   string `json:"stored_filename,omitempty"`
	FileSize         *int64 `json:"file_size,omitempty"`
	FilePath         string `json:"file_path,omitempty"`

	// Wall-clock seconds for the whole pipeline, set only on the
	// completed event.
	TimeConsumption *float64 `json:"time_consumption,omitempty"`
}

// Bus is a bounded FIFO event queue for a single upload. It is safe for
// one producer and one consumer running concurrently; Close may be
// called from either side any number of times.
type Bus struct {
	ch   chan Event
	done chan struct{}
	once sync.Once
}

// New creates a bus that buffers up to capacity events. Capacities
// below the minimum are raised to it.
func New(capacity int) *Bus {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	return &Bus{
		ch:   make(chan Event, capacity),
		done: make(chan struct{}),
	}
}

// Publish appends ev to the queue, blocking while the queue is full.
// It returns ErrClosed if the bus has been closed and ctx.Err() if the
// context ends while waiting. A publish after Close never enqueues.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}

	select {
	case b.ch <- ev:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns the next event in publish order. It blocks until an
// event arrives, the bus is closed, or ctx ends. After Close, any
// backlog is still drained in order; ok reports false only once the
// queue is empty for good.
func (b *Bus) Consume(ctx context.Context) (ev Event, ok bool, err error) {
	select {
	case ev = <-b.ch:
		return ev, true, nil
	case <-ctx.Done():
		return Event{}, false, ctx.Err()
	case <-b.done:
		// Close raced with a pending publish; drain whatever landed.
		select {
		case ev = <-b.ch:
			return ev, true, nil
		default:
			return Event{}, false, nil
		}
	}
}

// Close marks the bus finished. It is idempotent and safe to call
// concurrently with Publish and Consume. Events already queued remain
// consumable; new publishes are rejected.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.done) })
}
