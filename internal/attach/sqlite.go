// ABOUTME: SQLite implementation of ByteCache using modernc.org/sqlite
// ABOUTME: Durable across restarts with automatic schema creation

package attach

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteCache stores attachment bytes in a local SQLite database so cached
// downloads survive process restarts. Entries have no expiry here; pruning is
// this cache's own policy concern and can be done out of band.
type SQLiteCache struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteCache opens (or creates) the cache database at the given path.
// Parent directories are created if needed.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	logger := slog.Default().With("component", "attach-cache")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}

	// WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	c := &SQLiteCache{
		db:     db,
		logger: logger,
	}

	if err := c.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return c, nil
}

// createSchema sets up the cache table if it does not exist.
func (c *SQLiteCache) createSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS attachment_cache (
			file_id    TEXT PRIMARY KEY,
			data       BLOB NOT NULL,
			size       INTEGER NOT NULL,
			fetched_at TIMESTAMP NOT NULL
		)
	`)
	return err
}

// Get returns the cached bytes for a file id, if present.
func (c *SQLiteCache) Get(ctx context.Context, fileID string) ([]byte, bool, error) {
	var data []byte
	err := c.db.QueryRowContext(ctx,
		"SELECT data FROM attachment_cache WHERE file_id = ?", fileID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	return data, true, nil
}

// Put stores bytes under a file id, replacing any previous entry.
func (c *SQLiteCache) Put(ctx context.Context, fileID string, data []byte) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO attachment_cache (file_id, data, size, fetched_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			data = excluded.data,
			size = excluded.size,
			fetched_at = excluded.fetched_at
	`, fileID, data, len(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
