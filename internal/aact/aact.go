// Package aact provides read access to the public AACT clinical-trials
// Postgres database published by CTTI. Unlike the MotherDuck backend there is
// no pinned session here; database/sql pooling hands each query its own
// connection.
package aact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/url"

	"github.com/joestump/biodata-mcp/internal/rowset"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" database/sql driver
)

const (
	// Host and DBName identify the public AACT instance.
	Host   = "aact-db.ctti-clinicaltrials.org"
	DBName = "aact"

	// Schema holds the clinical-trial tables.
	Schema = "ctgov"
)

// Config carries the AACT credentials. Both fields are required.
type Config struct {
	User     string
	Password string
}

// Database is a pooled connection to AACT.
type Database struct {
	db *sql.DB
}

// Open connects to AACT and verifies the session with a ping.
func Open(ctx context.Context, cfg Config) (*Database, error) {
	if cfg.User == "" || cfg.Password == "" {
		return nil, errors.New("DB_USER and DB_PASSWORD environment variables must be set")
	}

	dsn := (&url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   Host,
		Path:   "/" + DBName,
	}).String()

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open aact: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping aact: %w", err)
	}

	var name, user string
	if err := db.QueryRowContext(ctx, "SELECT current_database(), current_user").Scan(&name, &user); err == nil {
		log.Printf("[aact] connected to %s as %s", name, user)
	}
	return &Database{db: db}, nil
}

// Query runs one read query on a pooled connection. Driver errors pass
// through unchanged so the tool layer can classify them.
func (d *Database) Query(ctx context.Context, query string, args ...any) (*rowset.RowSet, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck
	return rowset.Read(rows)
}

// Close releases the connection pool.
func (d *Database) Close() error {
	return d.db.Close()
}
