// Package core provides the business logic for CSV upload and analysis.
//
// This package is the heart of the service, containing all domain logic
// independent of any transport layer. It can be driven by HTTP handlers,
// CLI tools, or tests without modification.
//
// # Architecture
//
// The package is organized around a few key concepts:
//
//   - Service: The main entry point for all operations (upload, analyze,
//     query, delete). It composes the metadata store, the upload directory,
//     and the concurrency limiter.
//   - Pipeline: The upload-then-analyze state machine behind the streaming
//     endpoint. Each run owns an event bus that the HTTP layer drains.
//   - Limiter: A semaphore that bounds parallel uploads and supports
//     graceful drain on shutdown.
//
// # Streaming Pipeline
//
// [Service.StreamUpload] validates the request, claims a limiter slot, and
// returns an [eventbus.Bus] immediately. A background goroutine then runs
// the pipeline:
//
//  1. The file body is written to the upload directory via an atomic
//     temp-file rename.
//  2. A metadata row is inserted; on failure the stored file is removed
//     so disk and database never disagree.
//  3. The CSV is analyzed in bounded chunks, publishing progress events
//     whose rate is capped by the client's update_interval.
//  4. Results are persisted and a terminal completed event is published.
//
// Every run ends with exactly one terminal event, completed or error, and
// the bus is always closed so consumers never block forever.
//
// # Errors
//
// Callers branch on three sentinel conditions: [ValidationError] for
// rejected inputs, [ErrTooManyUploads] when the limiter is saturated, and
// [store.ErrNotFound] from lookups. Pipeline failures are not returned to
// the caller; they surface as error events on the bus.
package core
