package motherduck

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/joestump/biodata-mcp/internal/rowset"

	_ "github.com/marcboeker/go-duckdb" // registers "duckdb" database/sql driver
)

// session is the slice of a DuckDB connection the Manager needs. Tests
// substitute fakes through Manager.open.
type session interface {
	Query(ctx context.Context, query string, args ...any) (*rowset.RowSet, error)
	Close() error
}

// duckSession adapts *sql.DB to the session interface. MaxOpenConns is pinned
// to one so the single-session model holds even though database/sql is a pool
// underneath.
type duckSession struct {
	db *sql.DB
}

func dial(ctx context.Context, dsn string) (session, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &duckSession{db: db}, nil
}

func (s *duckSession) Query(ctx context.Context, query string, args ...any) (*rowset.RowSet, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck
	return rowset.Read(rows)
}

func (s *duckSession) Close() error {
	return s.db.Close()
}
