// Package analyze implements chunked data-quality analysis of CSV files.
//
// The analyzer streams a stored CSV through encoding/csv in fixed-size
// row chunks, so memory stays proportional to the chunk size and the
// per-column duplicate tallies rather than the file. For every file it
// reports three things: how many rows contain at least one
// null-equivalent cell, how many rows and columns the file has, and how
// many surplus duplicate values each column carries.
package analyze

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultChunkSize is the number of data rows per chunk when Options
// does not say otherwise.
const DefaultChunkSize = 100_000

// readBufferSize is used for both the row-count pass and the parse
// pass.
const readBufferSize = 1 << 20

// nullSentinels is the closed set of cell values treated as
// null-equivalent. Matching trims surrounding whitespace and ignores
// case; no other values qualify.
var nullSentinels = map[string]struct{}{
	"":          {},
	"null":      {},
	"none":      {},
	"undefined": {},
	"nan":       {},
	"n/a":       {},
	"na":        {},
}

// IsNullToken reports whether a cell counts as null-equivalent. The
// cell's raw form is untouched; trimming and lowercasing apply only to
// the membership test.
func IsNullToken(cell string) bool {
	if cell == "" {
		return true
	}
	_, ok := nullSentinels[strings.ToLower(strings.TrimSpace(cell))]
	return ok
}

// ErrEmptyFile marks a CSV without even a header row.
var ErrEmptyFile = errors.New("empty CSV file")

// ParseError reports a malformed CSV. Row is the 1-based data row where
// parsing failed, with the header excluded; 0 means the header itself
// was malformed. Line is the physical line number when the underlying
// parser knows it.
type ParseError struct {
	Row  int64
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	if errors.Is(e.Err, ErrEmptyFile) {
		return "empty CSV file"
	}
	if e.Row == 0 {
		return fmt.Sprintf("malformed CSV header: %v", e.Err)
	}
	return fmt.Sprintf("malformed CSV at row %d: %v", e.Row, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Info describes the file once the header has been read. TotalRows is
// the newline-count estimate, not the parsed total.
type Info struct {
	TotalRows    int64
	TotalColumns int
	Columns      []string
}

// Progress is reported after each chunk. TotalRows is the running
// denominator: the estimate, raised to RowsProcessed if the file turns
// out longer than estimated.
type Progress struct {
	Chunk         int
	RowsProcessed int64
	TotalRows     int64
	NullRows      int64
}

// Result carries the exact totals of a completed analysis.
// DuplicateCounts maps column name to the number of surplus values in
// that column (count-1 per repeated raw value); columns without
// duplicates are omitted, so an empty map means none anywhere.
type Result struct {
	TotalRows       int64
	TotalColumns    int
	NullRows        int64
	DuplicateCounts map[string]int64
}

// Options configures one analysis run.
type Options struct {
	// ChunkSize is the number of data rows per chunk. Values <= 0 use
	// DefaultChunkSize. Results are identical for any chunk size; only
	// callback granularity changes.
	ChunkSize int

	// OnInfo, when set, is called once after the header is read.
	OnInfo func(Info)

	// OnProgress, when set, is called after each chunk, including the
	// final partial one.
	OnProgress func(Progress)
}

// File analyzes the CSV at path. It returns a *ParseError for malformed
// content, ctx.Err() when cancelled between chunks, and a wrapped IO
// error otherwise.
//
// Rows are classified on raw cells: a row is null if any cell is a null
// sentinel, and duplicate tallies count every raw value, sentinels
// included. Blank lines are skipped entirely by the CSV parser, but a
// row of empty fields (",,") is a real row and counts as null.
func File(ctx context.Context, path string, opts Options) (Result, error) {
	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	estimate, err := countRows(path)
	if err != nil {
		return Result{}, err
	}

	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(NewBOMSkippingReader(bufio.NewReaderSize(f, readBufferSize)))
	r.ReuseRecord = true

	header, err := r.Read()
	if err == io.EOF {
		return Result{}, &ParseError{Err: ErrEmptyFile}
	}
	if err != nil {
		return Result{}, wrapCSVError(err, 0)
	}

	// ReuseRecord invalidates the slice on the next Read.
	columns := make([]string, len(header))
	copy(columns, header)

	if opts.OnInfo != nil {
		opts.OnInfo(Info{
			TotalRows:    estimate,
			TotalColumns: len(columns),
			Columns:      columns,
		})
	}

	// One raw-value frequency map per column. The field strings
	// returned by encoding/csv are freshly allocated per record, so
	// they are safe to retain as map keys despite ReuseRecord.
	counts := make([]map[string]int64, len(columns))
	for i := range counts {
		counts[i] = make(map[string]int64)
	}

	var (
		rows     int64
		nullRows int64
		chunk    int
	)

	eof := false
	for !eof {
		n := 0
		for n < chunkSize {
			rec, err := r.Read()
			if err == io.EOF {
				eof = true
				break
			}
			if err != nil {
				return Result{}, wrapCSVError(err, rows+1)
			}

			isNull := false
			for i, cell := range rec {
				counts[i][cell]++
				if !isNull && IsNullToken(cell) {
					isNull = true
				}
			}
			if isNull {
				nullRows++
			}
			rows++
			n++
		}
		if n == 0 {
			break
		}

		chunk++
		if opts.OnProgress != nil {
			opts.OnProgress(Progress{
				Chunk:         chunk,
				RowsProcessed: rows,
				TotalRows:     max(estimate, rows),
				NullRows:      nullRows,
			})
		}
		if !eof {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
		}
	}

	dupes := make(map[string]int64)
	for i, col := range columns {
		var surplus int64
		for _, n := range counts[i] {
			if n >= 2 {
				surplus += n - 1
			}
		}
		if surplus > 0 {
			dupes[col] = surplus
		}
	}

	return Result{
		TotalRows:       rows,
		TotalColumns:    len(columns),
		NullRows:        nullRows,
		DuplicateCounts: dupes,
	}, nil
}

// countRows estimates the number of data rows by counting newlines in
// large blocks, minus the header line. Quoted embedded newlines inflate
// the estimate and that is fine: it is only a progress denominator. A
// missing trailing newline is compensated so the common unterminated
// final row still counts.
func countRows(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	buf := make([]byte, readBufferSize)
	var (
		lines    int64
		total    int64
		lastByte byte
	)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			total += int64(n)
			lines += int64(bytes.Count(buf[:n], []byte{'\n'}))
			lastByte = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("count rows: %w", err)
		}
	}
	if total > 0 && lastByte != '\n' {
		lines++
	}
	if lines <= 1 {
		return 0, nil
	}
	return lines - 1, nil
}

// wrapCSVError converts encoding/csv errors into ParseError with the
// 1-based data row; other errors (IO) pass through wrapped.
func wrapCSVError(err error, row int64) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Row: row, Line: pe.Line, Err: pe.Err}
	}
	return fmt.Errorf("read csv: %w", err)
}
