package core

// pipeline.go drives the upload-then-analyze state machine behind the SSE
// endpoint. StreamUpload returns an event bus immediately; a background
// goroutine walks the pipeline and publishes progress frames onto it.
//
// Checkpoint events carry fixed progress values. Per-chunk analyzer events
// are the only ones coalesced by the client's update_interval; checkpoints
// and terminal frames are never dropped. Every run ends with exactly one
// terminal frame, completed or error, and the bus is always closed.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/csvinspect/csvinspect/internal/analyze"
	"github.com/csvinspect/csvinspect/internal/eventbus"
	"github.com/csvinspect/csvinspect/internal/procmem"
	"github.com/csvinspect/csvinspect/internal/store"
)

// busCapacity is the per-upload event queue length. It absorbs bursts of
// checkpoint frames while the SSE writer catches up; slower clients then
// throttle the analyzer through publish backpressure.
const busCapacity = 64

// Bounds for the update_interval query parameter.
const (
	DefaultUpdateInterval = 500 * time.Millisecond
	MinUpdateInterval     = 100 * time.Millisecond
	MaxUpdateInterval     = 5 * time.Second
)

// msgPrinter renders counts with thousands separators, matching the
// human-facing progress messages clients already parse.
var msgPrinter = message.NewPrinter(language.English)

// StreamUpload validates the request, claims an upload slot, and starts
// the pipeline. The returned bus carries all progress events; the caller
// must drain it until Consume reports closed. Errors are ValidationError,
// ErrTooManyUploads, or the context's error; once the bus is returned all
// failures surface as error events instead.
func (s *Service) StreamUpload(ctx context.Context, in UploadInput, interval time.Duration) (*eventbus.Bus, error) {
	if err := s.ValidateUpload(in.Filename, int64(len(in.Content))); err != nil {
		return nil, err
	}
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}

	if interval <= 0 {
		interval = DefaultUpdateInterval
	}

	p := &pipeline{
		svc:      s,
		bus:      eventbus.New(busCapacity),
		input:    in,
		interval: interval,
		start:    time.Now(),
	}
	go p.run(ctx)

	return p.bus, nil
}

// pipeline is the mutable state of one streaming upload. It lives on a
// single goroutine; the analyzer callbacks run on that same goroutine.
type pipeline struct {
	svc      *Service
	bus      *eventbus.Bus
	input    UploadInput
	interval time.Duration
	start    time.Time

	// Running counters mirrored onto every event.
	nullCount      int64
	processedCount int64
	totalRows      *int64
	totalColumns   *int

	// Set once the metadata insert succeeds; events gain the file
	// identity bundle from then on.
	rec *store.FileRecord

	lastPublish time.Time
}

// event assembles a frame from the pipeline's current state. Progress is
// rounded to two decimals at construction so the wire value is canonical.
func (p *pipeline) event(status eventbus.Status, progress float64, msg string) eventbus.Event {
	ev := eventbus.Event{
		Status:         status,
		Progress:       math.Round(progress*100) / 100,
		Message:        msg,
		NullCount:      p.nullCount,
		ProcessedCount: p.processedCount,
		TotalRows:      p.totalRows,
		TotalColumns:   p.totalColumns,
	}
	if p.rec != nil {
		ev.FileID = &p.rec.ID
		ev.FileReference = p.rec.FileReference
		ev.OriginalFilename = p.rec.OriginalFilename
		ev.StoredFilename = p.rec.StoredFilename
		ev.FileSize = &p.rec.FileSize
		ev.FilePath = p.rec.FilePath
	}
	return ev
}

// publish sends ev and reports whether anyone is still listening. A false
// return means the client disconnected or the bus closed; callers stop.
func (p *pipeline) publish(ctx context.Context, ev eventbus.Event) bool {
	if err := p.bus.Publish(ctx, ev); err != nil {
		return false
	}
	p.lastPublish = time.Now()
	return true
}

// publishThrottled coalesces per-chunk events to at most one per
// update_interval. Skipped events report success; the next one through
// carries the newer counters.
func (p *pipeline) publishThrottled(ctx context.Context, ev eventbus.Event) bool {
	if time.Since(p.lastPublish) < p.interval {
		return true
	}
	return p.publish(ctx, ev)
}

// run executes the upload phase and hands off to the analysis phase. It
// owns the limiter slot and the bus for the duration.
func (p *pipeline) run(ctx context.Context) {
	defer p.svc.limiter.Release()
	defer p.bus.Close()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("upload pipeline panic", "filename", p.input.Filename, "panic", r)
			p.publish(ctx, p.event(eventbus.StatusError, 1.00,
				fmt.Sprintf("An unexpected error occurred during file processing: %v. Please try again or contact support if the problem persists.", r)))
		}
	}()

	// The handler already validated the request, so the early
	// checkpoints narrate work that cannot fail here.
	for _, c := range []struct {
		progress float64
		message  string
	}{
		{0.00, "Validating file format and ensuring compatibility..."},
		{0.10, "Reading and processing uploaded file content into memory..."},
		{0.20, "Validating file size against maximum allowed limits..."},
		{0.30, "Generating secure unique identifier for file storage..."},
	} {
		if !p.publish(ctx, p.event(eventbus.StatusUploading, c.progress, c.message)) {
			return
		}
	}

	if !p.publish(ctx, p.event(eventbus.StatusUploading, 0.50, "Writing file to secure storage location on server...")) {
		return
	}
	name, absPath, err := p.svc.files.Write(p.input.Content, ".csv")
	if err != nil {
		slog.Error("failed to write upload to disk", "filename", p.input.Filename, "error", err)
		p.publish(ctx, p.event(eventbus.StatusError, 1.00,
			fmt.Sprintf("Error occurred while saving file to disk: %v. Please try again or contact support if the issue persists.", err)))
		return
	}

	if !p.publish(ctx, p.event(eventbus.StatusUploading, 0.70, "Persisting file metadata and creating database records...")) {
		return
	}
	rec, err := p.svc.store.InsertFile(ctx, store.NewFile{
		OriginalFilename: p.input.Filename,
		StoredFilename:   name,
		FilePath:         absPath,
		FileSize:         int64(len(p.input.Content)),
		ContentType:      contentTypeOrDefault(p.input.ContentType),
	})
	if err != nil {
		// Keep disk and database consistent: no row, no file.
		if delErr := p.svc.files.Delete(absPath); delErr != nil {
			slog.Warn("failed to remove stored file after insert failure", "path", absPath, "error", delErr)
		}
		slog.Error("failed to insert file metadata", "filename", p.input.Filename, "error", err)
		p.publish(ctx, p.event(eventbus.StatusError, 1.00,
			fmt.Sprintf("Database operation failed while storing file metadata: %v. The file has been removed from disk. Please try again.", err)))
		return
	}
	p.rec = &rec

	slog.Info("upload phase complete",
		"file_id", rec.ID,
		"file_reference", rec.FileReference,
		"original_filename", rec.OriginalFilename,
		"file_size", rec.FileSize,
	)

	if !p.publish(ctx, p.event(eventbus.StatusUploading, 0.90, "File metadata stored successfully. Preparing data quality analysis...")) {
		return
	}
	if !p.publish(ctx, p.event(eventbus.StatusUploading, 1.00, "File upload completed successfully. Initiating comprehensive data quality analysis...")) {
		return
	}

	p.analyzeStored(ctx)
}

// analyzeStored runs the chunked analyzer over the stored file, persists
// the results, and publishes the terminal frame. The record survives any
// failure here; only its analysis columns stay null.
func (p *pipeline) analyzeStored(ctx context.Context) {
	sampler := procmem.Start(0)
	defer sampler.Stop()

	if !p.publish(ctx, p.event(eventbus.StatusAnalyzing, 0.10, "Reading and parsing CSV file structure...")) {
		return
	}

	chunkSize := p.svc.cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = analyze.DefaultChunkSize
	}

	res, err := analyze.File(ctx, p.rec.FilePath, analyze.Options{
		ChunkSize: chunkSize,
		OnInfo: func(info analyze.Info) {
			rows, cols := info.TotalRows, info.TotalColumns
			p.totalRows = &rows
			p.totalColumns = &cols
			p.publish(ctx, p.event(eventbus.StatusAnalyzing, 0.20,
				msgPrinter.Sprintf("CSV file structure loaded. Beginning comprehensive chunked analysis of %d rows across %d columns...", rows, cols)))
		},
		OnProgress: func(pr analyze.Progress) {
			p.nullCount = pr.NullRows
			p.processedCount = pr.RowsProcessed
			total := pr.TotalRows
			p.totalRows = &total

			progress := 0.1 + 0.8*float64(pr.RowsProcessed)/float64(max(total, 1))
			progress = math.Min(math.Max(progress, 0.1), 0.9)

			// The chunk count is derived from the running row total, so
			// it can only grow; the ordinal never exceeds it.
			totalChunks := int((total + int64(chunkSize) - 1) / int64(chunkSize))
			if totalChunks < pr.Chunk {
				totalChunks = pr.Chunk
			}

			p.publishThrottled(ctx, p.event(eventbus.StatusAnalyzing, progress,
				msgPrinter.Sprintf("Processing chunk %d of %d (%d of %d rows processed). Found %d rows with null/undefined values so far...",
					pr.Chunk, totalChunks, pr.RowsProcessed, total, pr.NullRows)))
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			// Client disconnect: stop silently, keep the record as is.
			slog.Info("upload analysis cancelled", "file_id", p.rec.ID)
			return
		}
		slog.Error("analysis failed", "file_id", p.rec.ID, "path", p.rec.FilePath, "error", err)
		p.publish(ctx, p.event(eventbus.StatusError, 1.00,
			fmt.Sprintf("Data analysis encountered an error: %v. The file has been uploaded but analysis could not be completed. Please review the file format and try again.", err)))
		return
	}

	rows, cols := res.TotalRows, res.TotalColumns
	p.totalRows = &rows
	p.totalColumns = &cols
	p.nullCount = res.NullRows
	p.processedCount = res.TotalRows

	if !p.publish(ctx, p.event(eventbus.StatusAnalyzing, 0.90,
		msgPrinter.Sprintf("Data quality analysis completed successfully. Identified %d rows containing null or undefined values. Detected duplicate entries in %d column(s). Generating comprehensive report...",
			res.NullRows, len(res.DuplicateCounts)))) {
		return
	}

	sampler.Stop()

	update := store.AnalysisUpdate{
		NullCount:        res.NullRows,
		TotalRows:        res.TotalRows,
		TotalColumns:     int64(res.TotalColumns),
		DuplicateRecords: res.DuplicateCounts,
		AnalysisTime:     fmt.Sprintf("%.2f", time.Since(p.start).Seconds()),
	}
	if peak, sampled := sampler.PeakMB(); sampled {
		mem := fmt.Sprintf("%.2f", peak)
		update.MemoryUsageMB = &mem
	}

	// The analysis is complete and the file durable, so a disconnect
	// while the UPDATE is in flight must not abort it.
	if err := p.svc.store.UpdateFileAnalysis(context.WithoutCancel(ctx), p.rec.ID, update); err != nil {
		slog.Warn("failed to persist analysis results", "file_id", p.rec.ID, "error", err)
	}

	elapsed := math.Round(time.Since(p.start).Seconds()*100) / 100
	done := p.event(eventbus.StatusCompleted, 1.00,
		"File upload and data quality analysis completed successfully. Your comprehensive report is ready for review.")
	done.TimeConsumption = &elapsed
	p.publish(ctx, done)

	slog.Info("upload pipeline complete",
		"file_id", p.rec.ID,
		"total_rows", res.TotalRows,
		"total_columns", res.TotalColumns,
		"null_count", res.NullRows,
		"duplicate_columns", len(res.DuplicateCounts),
		"duration_ms", time.Since(p.start).Milliseconds(),
	)
}
