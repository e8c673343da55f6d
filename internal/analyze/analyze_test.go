package analyze

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeTempCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp csv: %v", err)
	}
	return path
}

func TestIsNullToken(t *testing.T) {
	nulls := []string{
		"", " ", "\t", "null", "NULL", " Null ", "none", "NONE",
		"undefined", "Undefined", "nan", "NaN", "n/a", "N/A", "na", "NA", " na ",
	}
	for _, cell := range nulls {
		if !IsNullToken(cell) {
			t.Errorf("IsNullToken(%q) = false, want true", cell)
		}
	}

	values := []string{
		"0", "false", "nil", "n.a.", "nulls", "value", "-", "none!", "nana",
	}
	for _, cell := range values {
		if IsNullToken(cell) {
			t.Errorf("IsNullToken(%q) = true, want false", cell)
		}
	}
}

func TestFile_Counts(t *testing.T) {
	tests := []struct {
		name      string
		csv       string
		wantRows  int64
		wantNulls int64
		wantCols  int
		wantDupes map[string]int64
	}{
		{
			name:      "mixed nulls no duplicates",
			csv:       "a,b\n1,2\n3,\n,5\n",
			wantRows:  3,
			wantNulls: 2,
			wantCols:  2,
			wantDupes: map[string]int64{},
		},
		{
			name:      "every sentinel form",
			csv:       "c\n \nnull\nNone\nundefined\nNaN\nN/A\nvalue\n",
			wantRows:  7,
			wantNulls: 6,
			wantCols:  1,
			wantDupes: map[string]int64{},
		},
		{
			name:      "duplicates across columns",
			csv:       "x,y\na,1\nb,2\na,1\nc,2\na,3\n",
			wantRows:  5,
			wantNulls: 0,
			wantCols:  2,
			wantDupes: map[string]int64{"x": 2, "y": 2},
		},
		{
			name:      "duplicate counting is raw and case-sensitive",
			csv:       "c\nnull\nnull\nNULL\n",
			wantRows:  3,
			wantNulls: 3,
			wantCols:  1,
			wantDupes: map[string]int64{"c": 1},
		},
		{
			name:      "row of empty fields is a null row",
			csv:       "a,b,c\n,,\n1,2,3\n",
			wantRows:  2,
			wantNulls: 1,
			wantCols:  3,
			wantDupes: map[string]int64{},
		},
		{
			name:      "blank lines are skipped",
			csv:       "a,b\n1,2\n\n\n3,4\n",
			wantRows:  2,
			wantNulls: 0,
			wantCols:  2,
			wantDupes: map[string]int64{},
		},
		{
			name:      "header only",
			csv:       "a,b\n",
			wantRows:  0,
			wantNulls: 0,
			wantCols:  2,
			wantDupes: map[string]int64{},
		},
		{
			name:      "no trailing newline",
			csv:       "a,b\n1,2\n3,4",
			wantRows:  2,
			wantNulls: 0,
			wantCols:  2,
			wantDupes: map[string]int64{},
		},
		{
			name:      "crlf line endings",
			csv:       "a,b\r\n1,2\r\nnull,4\r\n",
			wantRows:  2,
			wantNulls: 1,
			wantCols:  2,
			wantDupes: map[string]int64{},
		},
		{
			name:      "quoted newline stays one row",
			csv:       "a,b\n\"x\ny\",2\n",
			wantRows:  1,
			wantNulls: 0,
			wantCols:  2,
			wantDupes: map[string]int64{},
		},
		{
			name:      "leading BOM does not corrupt the first column",
			csv:       "\xEF\xBB\xBFa,b\na,2\na,3\n",
			wantRows:  2,
			wantNulls: 0,
			wantCols:  2,
			wantDupes: map[string]int64{"a": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempCSV(t, tt.csv)

			res, err := File(context.Background(), path, Options{})
			if err != nil {
				t.Fatalf("File failed: %v", err)
			}

			if res.TotalRows != tt.wantRows {
				t.Errorf("TotalRows = %d, want %d", res.TotalRows, tt.wantRows)
			}
			if res.NullRows != tt.wantNulls {
				t.Errorf("NullRows = %d, want %d", res.NullRows, tt.wantNulls)
			}
			if res.TotalColumns != tt.wantCols {
				t.Errorf("TotalColumns = %d, want %d", res.TotalColumns, tt.wantCols)
			}
			if !reflect.DeepEqual(res.DuplicateCounts, tt.wantDupes) {
				t.Errorf("DuplicateCounts = %v, want %v", res.DuplicateCounts, tt.wantDupes)
			}
		})
	}
}

func TestFile_ParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		wantRow int64
	}{
		{
			name:    "short row",
			csv:     "a,b\n1,2\n3\n",
			wantRow: 2,
		},
		{
			name:    "long row",
			csv:     "a,b\n1,2,3\n",
			wantRow: 1,
		},
		{
			name:    "unterminated quote",
			csv:     "a,b\n\"x,2\n",
			wantRow: 1,
		},
		{
			name:    "malformed header",
			csv:     "a,\"b\n1,2\n",
			wantRow: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeTempCSV(t, tt.csv)

			_, err := File(context.Background(), path, Options{})
			if err == nil {
				t.Fatal("File succeeded on malformed CSV")
			}

			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error is %T, want *ParseError: %v", err, err)
			}
			if pe.Row != tt.wantRow {
				t.Errorf("ParseError.Row = %d, want %d", pe.Row, tt.wantRow)
			}
		})
	}
}

func TestFile_EmptyFile(t *testing.T) {
	path := writeTempCSV(t, "")

	_, err := File(context.Background(), path, Options{})
	if !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("error = %v, want ErrEmptyFile", err)
	}
	if got := err.Error(); got != "empty CSV file" {
		t.Errorf("Error() = %q, want %q", got, "empty CSV file")
	}
}

func TestFile_MissingFile(t *testing.T) {
	_, err := File(context.Background(), filepath.Join(t.TempDir(), "nope.csv"), Options{})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("error = %v, want fs.ErrNotExist", err)
	}
}

func TestFile_InfoCallback(t *testing.T) {
	path := writeTempCSV(t, "a,b,c\n1,2,3\n4,5,6\n")

	var got Info
	calls := 0
	_, err := File(context.Background(), path, Options{
		OnInfo: func(info Info) {
			got = info
			calls++
		},
	})
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}

	if calls != 1 {
		t.Errorf("OnInfo called %d times, want 1", calls)
	}
	if got.TotalRows != 2 {
		t.Errorf("Info.TotalRows = %d, want 2", got.TotalRows)
	}
	if got.TotalColumns != 3 {
		t.Errorf("Info.TotalColumns = %d, want 3", got.TotalColumns)
	}
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(got.Columns, want) {
		t.Errorf("Info.Columns = %v, want %v", got.Columns, want)
	}
}

func TestFile_EstimateWithoutTrailingNewline(t *testing.T) {
	path := writeTempCSV(t, "a\n1\n2")

	var estimate int64
	_, err := File(context.Background(), path, Options{
		OnInfo: func(info Info) { estimate = info.TotalRows },
	})
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	if estimate != 2 {
		t.Errorf("estimated rows = %d, want 2", estimate)
	}
}

func TestFile_ProgressSequence(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("a,b\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "%d,%d\n", i, i*2)
	}
	path := writeTempCSV(t, sb.String())

	var progress []Progress
	_, err := File(context.Background(), path, Options{
		ChunkSize:  3,
		OnProgress: func(p Progress) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}

	// 10 rows in chunks of 3: callbacks at 3, 6, 9, 10.
	wantRows := []int64{3, 6, 9, 10}
	if len(progress) != len(wantRows) {
		t.Fatalf("got %d progress callbacks, want %d", len(progress), len(wantRows))
	}
	for i, p := range progress {
		if p.Chunk != i+1 {
			t.Errorf("callback %d: Chunk = %d, want %d", i, p.Chunk, i+1)
		}
		if p.RowsProcessed != wantRows[i] {
			t.Errorf("callback %d: RowsProcessed = %d, want %d", i, p.RowsProcessed, wantRows[i])
		}
		if p.TotalRows < p.RowsProcessed {
			t.Errorf("callback %d: TotalRows %d < RowsProcessed %d", i, p.TotalRows, p.RowsProcessed)
		}
		if i > 0 && p.NullRows < progress[i-1].NullRows {
			t.Errorf("callback %d: NullRows decreased", i)
		}
	}
}

func TestFile_ContextCancellation(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("a\n")
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&sb, "%d\n", i)
	}
	path := writeTempCSV(t, sb.String())

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := File(ctx, path, Options{
		ChunkSize: 10,
		OnProgress: func(Progress) {
			calls++
			cancel()
		},
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("analyzer kept going after cancellation: %d callbacks", calls)
	}
}

// referenceAnalyze recomputes the result naively with the whole file in
// memory, as a cross-check for the chunked implementation.
func referenceAnalyze(t *testing.T, raw string) Result {
	t.Helper()

	records, err := csv.NewReader(strings.NewReader(raw)).ReadAll()
	if err != nil {
		t.Fatalf("reference parse failed: %v", err)
	}

	header := records[0]
	rows := records[1:]
	res := Result{
		TotalRows:       int64(len(rows)),
		TotalColumns:    len(header),
		DuplicateCounts: map[string]int64{},
	}

	for _, rec := range rows {
		for _, cell := range rec {
			if IsNullToken(cell) {
				res.NullRows++
				break
			}
		}
	}

	for i, col := range header {
		freq := make(map[string]int64)
		for _, rec := range rows {
			freq[rec[i]]++
		}
		var surplus int64
		for _, n := range freq {
			if n >= 2 {
				surplus += n - 1
			}
		}
		if surplus > 0 {
			res.DuplicateCounts[col] = surplus
		}
	}

	return res
}

func randomCSV(t *testing.T, rng *rand.Rand, rows, cols int) string {
	t.Helper()

	vocab := []string{
		"alpha", "beta", "", "null", "None", "NaN", " n/a ", "42",
		"x,y", `q"q`, "  ", "value-7", "NULL", "gamma",
	}

	var sb strings.Builder
	w := csv.NewWriter(&sb)

	header := make([]string, cols)
	for i := range header {
		header[i] = fmt.Sprintf("col_%d", i)
	}
	if err := w.Write(header); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for r := 0; r < rows; r++ {
		rec := make([]string, cols)
		for c := range rec {
			cell := vocab[rng.Intn(len(vocab))]
			// A lone empty field writes a blank line, which the reader
			// would then skip as an empty record.
			if cols == 1 && cell == "" {
				cell = "blank"
			}
			rec[c] = cell
		}
		if err := w.Write(rec); err != nil {
			t.Fatalf("write row: %v", err)
		}
	}
	w.Flush()
	return sb.String()
}

func TestFile_MatchesReference(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 10; trial++ {
		rows := rng.Intn(120)
		cols := 1 + rng.Intn(5)
		raw := randomCSV(t, rng, rows, cols)
		path := writeTempCSV(t, raw)

		want := referenceAnalyze(t, raw)
		got, err := File(context.Background(), path, Options{ChunkSize: 7})
		if err != nil {
			t.Fatalf("trial %d: File failed: %v", trial, err)
		}

		if !reflect.DeepEqual(got, want) {
			t.Errorf("trial %d (%d rows x %d cols): got %+v, want %+v",
				trial, rows, cols, got, want)
		}
	}
}

func TestFile_ChunkSizeInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	raw := randomCSV(t, rng, 137, 4)
	path := writeTempCSV(t, raw)

	base, err := File(context.Background(), path, Options{ChunkSize: 1})
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}

	for _, chunkSize := range []int{2, 7, 50, 137, 1000, 0} {
		res, err := File(context.Background(), path, Options{ChunkSize: chunkSize})
		if err != nil {
			t.Fatalf("chunk size %d: File failed: %v", chunkSize, err)
		}
		if !reflect.DeepEqual(res, base) {
			t.Errorf("chunk size %d: result %+v differs from %+v", chunkSize, res, base)
		}
	}
}
