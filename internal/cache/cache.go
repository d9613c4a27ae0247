// Package cache implements the disposable, per-review-run cache: a
// sqlite-backed store for file reads and per-file validator session
// summaries. Its only caller is the CLI's --show-context file printing,
// which reads files through it; no LLM code path reads or writes it,
// and session summaries are stored only by this package's own API. It reuses the sqlite/golang-migrate stack but
// drops the daemon-lifetime concerns that stack otherwise carries:
// backups, downgrade protection, a fixed home-directory path. This
// store lives and dies with a single review.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"

	"github.com/golang-migrate/migrate/v4"
	sqlite_migrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
	_ "github.com/mattn/go-sqlite3"
)

// Cache is a disposable cache scoped to one review run. The zero
// value is not usable; construct with Open.
type Cache struct {
	db   *sql.DB
	path string
}

// Open creates (or reuses) the sqlite file at path, runs migrations,
// and returns a ready Cache. An empty path opens an in-memory
// database, useful for tests and for runs that skip disk entirely.
func Open(path string) (*Cache, error) {
	dsn := "file::memory:?cache=shared"
	if path != "" {
		dsn = fmt.Sprintf(
			"file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
			path,
		)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: migrate: %w", err)
	}

	return &Cache{db: db, path: path}, nil
}

func migrateUp(db *sql.DB) error {
	driver, err := sqlite_migrate.WithInstance(db, &sqlite_migrate.Config{})
	if err != nil {
		return err
	}

	src, err := httpfs.New(http.FS(sqlSchemas), "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("cache-migrations", src, "sqlite", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// Close closes the underlying database and, for a file-backed cache,
// removes it: the cache is disposable and never outlives its run.
func (c *Cache) Close() error {
	if err := c.db.Close(); err != nil {
		return err
	}
	if c.path == "" {
		return nil
	}
	if err := os.Remove(c.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cache: remove %s: %w", c.path, err)
	}
	return nil
}

// GetFile returns a previously cached file's content, if present.
func (c *Cache) GetFile(ctx context.Context, path string) (content string, ok bool, err error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT content FROM file_reads WHERE path = ?`, path)

	err = row.Scan(&content)
	switch {
	case err == sql.ErrNoRows:
		return "", false, nil
	case err != nil:
		return "", false, fmt.Errorf("cache: get file %s: %w", path, err)
	default:
		return content, true, nil
	}
}

// PutFile records a file's content as of the current read.
func (c *Cache) PutFile(ctx context.Context, path, content string) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO file_reads (path, content, size_bytes, read_at)
		VALUES (?, ?, ?, unixepoch())
		ON CONFLICT(path) DO UPDATE SET
			content = excluded.content,
			size_bytes = excluded.size_bytes,
			read_at = excluded.read_at
	`, path, content, len(content))
	if err != nil {
		return fmt.Errorf("cache: put file %s: %w", path, err)
	}
	return nil
}

// GetSessionSummary returns a previously cached per-file validator
// session summary, if present.
func (c *Cache) GetSessionSummary(ctx context.Context, sessionKey string) (summary string, tokens int64, ok bool, err error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT summary, token_count FROM session_summaries WHERE session_key = ?`,
		sessionKey)

	err = row.Scan(&summary, &tokens)
	switch {
	case err == sql.ErrNoRows:
		return "", 0, false, nil
	case err != nil:
		return "", 0, false, fmt.Errorf("cache: get session %s: %w", sessionKey, err)
	default:
		return summary, tokens, true, nil
	}
}

// PutSessionSummary records a per-file validator session's running
// summary, overwriting any prior entry for the same key.
func (c *Cache) PutSessionSummary(ctx context.Context, sessionKey, summary string, tokens int64) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO session_summaries (session_key, summary, token_count, updated_at)
		VALUES (?, ?, ?, unixepoch())
		ON CONFLICT(session_key) DO UPDATE SET
			summary = excluded.summary,
			token_count = excluded.token_count,
			updated_at = excluded.updated_at
	`, sessionKey, summary, tokens)
	if err != nil {
		return fmt.Errorf("cache: put session %s: %w", sessionKey, err)
	}
	return nil
}
