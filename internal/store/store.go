// Package store persists file metadata and analysis results in
// PostgreSQL via pgx. Every exported operation is a single
// transaction; multi-statement reads run inside an explicit read-only
// transaction so the count and the page agree.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// fileColumns is the canonical column list; every SELECT and RETURNING
// uses it so scanFile stays in one place.
const fileColumns = `id, original_filename, stored_filename, file_path, file_size, content_type, file_reference, null_count, total_rows, total_columns, duplicate_records, analysis_time, memory_usage_mb, created_at, updated_at`

// DB wraps a pgx connection pool with the file-metadata operations.
type DB struct {
	pool *pgxpool.Pool
}

// New creates a DB on an existing pool. The caller owns the pool's
// lifecycle; Close is a convenience that closes it.
func New(pool *pgxpool.Pool) *DB {
	return &DB{pool: pool}
}

// Ping verifies database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

// Close closes the underlying pool.
func (d *DB) Close() {
	d.pool.Close()
}

func scanFile(row pgx.Row) (FileRecord, error) {
	var f FileRecord
	err := row.Scan(
		&f.ID,
		&f.OriginalFilename,
		&f.StoredFilename,
		&f.FilePath,
		&f.FileSize,
		&f.ContentType,
		&f.FileReference,
		&f.NullCount,
		&f.TotalRows,
		&f.TotalColumns,
		&f.DuplicateRecords,
		&f.AnalysisTime,
		&f.MemoryUsageMB,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	return f, err
}

// InsertFile stores a new file row. The store assigns the id, a fresh
// UUID file_reference, and both timestamps; the returned record is
// durable when the call returns.
func (d *DB) InsertFile(ctx context.Context, nf NewFile) (FileRecord, error) {
	row := d.pool.QueryRow(ctx, `
		INSERT INTO files (original_filename, stored_filename, file_path, file_size, content_type, file_reference)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING `+fileColumns,
		nf.OriginalFilename, nf.StoredFilename, nf.FilePath, nf.FileSize, nf.ContentType, uuid.New().String(),
	)
	rec, err := scanFile(row)
	if err != nil {
		return FileRecord{}, fmt.Errorf("insert file: %w", err)
	}
	return rec, nil
}

// UpdateFileAnalysis writes the analysis results onto an existing row
// and bumps updated_at. Returns ErrNotFound if the row is gone.
func (d *DB) UpdateFileAnalysis(ctx context.Context, id int64, u AnalysisUpdate) error {
	tag, err := d.pool.Exec(ctx, `
		UPDATE files
		SET null_count = $2,
		    total_rows = $3,
		    total_columns = $4,
		    duplicate_records = $5,
		    analysis_time = $6,
		    memory_usage_mb = $7,
		    updated_at = now()
		WHERE id = $1`,
		id, u.NullCount, u.TotalRows, u.TotalColumns, u.DuplicateRecords, u.AnalysisTime, u.MemoryUsageMB,
	)
	if err != nil {
		return fmt.Errorf("update file analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// GetFileByID fetches one row by primary key.
func (d *DB) GetFileByID(ctx context.Context, id int64) (FileRecord, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
	rec, err := scanFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return FileRecord{}, ErrNotFound
	}
	if err != nil {
		return FileRecord{}, fmt.Errorf("get file by id: %w", err)
	}
	return rec, nil
}

// GetFileByReference fetches one row by its immutable UUID reference.
func (d *DB) GetFileByReference(ctx context.Context, ref string) (FileRecord, error) {
	row := d.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE file_reference = $1`, ref)
	rec, err := scanFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return FileRecord{}, ErrNotFound
	}
	if err != nil {
		return FileRecord{}, fmt.Errorf("get file by reference: %w", err)
	}
	return rec, nil
}

// ListFiles returns one page of files, newest first, plus the total
// count for the same filter. Count and page run in one read-only
// transaction.
func (d *DB) ListFiles(ctx context.Context, p ListParams) ([]FileRecord, int64, error) {
	p = p.normalized()

	tx, err := d.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, 0, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	where := ""
	args := []any{}
	if p.Search != "" {
		where = " WHERE original_filename ILIKE $1"
		args = append(args, "%"+p.Search+"%")
	}

	var total int64
	if err := tx.QueryRow(ctx, "SELECT COUNT(*) FROM files"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count files: %w", err)
	}

	query := fmt.Sprintf(
		"SELECT %s FROM files%s ORDER BY id DESC LIMIT $%d OFFSET $%d",
		fileColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, p.Limit, (p.Page-1)*p.Limit)

	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query files: %w", err)
	}
	defer rows.Close()

	files := make([]FileRecord, 0, p.Limit)
	for rows.Next() {
		rec, err := scanFile(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("read files: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, fmt.Errorf("commit list: %w", err)
	}
	return files, total, nil
}

// DeleteFile removes a row and returns it so the caller can unlink the
// stored file and build the response. Returns ErrNotFound if no row
// matched.
func (d *DB) DeleteFile(ctx context.Context, id int64) (FileRecord, error) {
	row := d.pool.QueryRow(ctx, `DELETE FROM files WHERE id = $1 RETURNING `+fileColumns, id)
	rec, err := scanFile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return FileRecord{}, ErrNotFound
	}
	if err != nil {
		return FileRecord{}, fmt.Errorf("delete file: %w", err)
	}
	return rec, nil
}

// StoredFilenames returns every stored_filename known to the database.
// The orphan sweeper diffs this set against the upload directory.
func (d *DB) StoredFilenames(ctx context.Context) ([]string, error) {
	rows, err := d.pool.Query(ctx, `SELECT stored_filename FROM files`)
	if err != nil {
		return nil, fmt.Errorf("query stored filenames: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan stored filename: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read stored filenames: %w", err)
	}
	return names, nil
}
