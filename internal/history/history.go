// Package history persists every tool-issued query to a local SQLite file so
// a session's database activity can be audited after the fact. The store is
// optional; servers run without one when no path is configured.
package history

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // registers "sqlite" database/sql driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Entry is one recorded tool invocation that reached a backend.
type Entry struct {
	ID         int64
	Backend    string
	Tool       string
	Query      string
	RowCount   int
	DurationMs int64
	Error      *string
	CreatedAt  string
}

// Log is an append-mostly audit log of queries.
type Log struct {
	conn *sql.DB
}

// Open opens (creating if needed) the SQLite file at path and brings the
// schema up to date.
func Open(path string) (*Log, error) {
	dsn := path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one writer; a single connection avoids lock
	// contention entirely.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := migrate(conn); err != nil {
		conn.Close() //nolint:errcheck
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Log{conn: conn}, nil
}

// migrate runs the embedded goose migrations. Goose's default logger writes
// to stdout, which would corrupt the MCP stdio stream, so it is silenced.
func migrate(conn *sql.DB) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}
	return goose.Up(conn, "migrations")
}

// Record inserts one entry and fills its ID.
func (l *Log) Record(e *Entry) error {
	res, err := l.conn.Exec(`
		INSERT INTO query_log (backend, tool, query, row_count, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Backend, e.Tool, e.Query, e.RowCount, e.DurationMs, e.Error,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record query: %w", err)
	}
	e.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("record query id: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(limit int) ([]Entry, error) {
	rows, err := l.conn.Query(`
		SELECT id, backend, tool, query, row_count, duration_ms, error, created_at
		FROM query_log
		ORDER BY id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list queries: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Backend, &e.Tool, &e.Query, &e.RowCount, &e.DurationMs, &e.Error, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan query_log: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query_log: %w", err)
	}
	return entries, nil
}

// Close closes the underlying database.
func (l *Log) Close() error {
	return l.conn.Close()
}
