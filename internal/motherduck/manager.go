// Package motherduck owns the single MotherDuck session and the rules for
// using it: lazy connection with liveness probing, bounded reconnect retries,
// a per-query timeout, and dataset allow-list validation. All session access
// is serialized behind one mutex so a reconnect can never interleave with
// another caller's query.
package motherduck

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/joestump/biodata-mcp/internal/rowset"
	"github.com/joestump/biodata-mcp/internal/sqlguard"
)

const (
	defaultMaxRetries   = 3
	defaultRetryDelay   = time.Second
	defaultQueryTimeout = 30 * time.Second
)

// Config carries everything a Manager needs. Token is required; zero values
// elsewhere take the package defaults.
type Config struct {
	Token        string
	Database     string // optional home database in the md: DSN
	UserAgent    string
	AllowList    sqlguard.AllowList // empty allows every dataset
	MaxRetries   int
	RetryDelay   time.Duration
	QueryTimeout time.Duration
}

// ConnectError reports that every connection attempt failed.
type ConnectError struct {
	Attempts int
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed to initialize connection after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a query that exceeded the configured limit.
type TimeoutError struct {
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("query timed out after %s", e.Limit)
}

// Manager serializes access to one MotherDuck session.
type Manager struct {
	cfg Config
	dsn string

	mu   sync.Mutex
	sess session

	// open and sleep are swappable in tests.
	open  func(ctx context.Context) (session, error)
	sleep func(d time.Duration)
}

// New validates cfg, applies defaults, and builds the DSN. It does not dial;
// call Connect for an eager first connection or let the first query establish
// one.
func New(cfg Config) (*Manager, error) {
	if cfg.Token == "" {
		return nil, errors.New("MOTHERDUCK_TOKEN environment variable is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "biodatamcp"
	}

	m := &Manager{cfg: cfg, dsn: buildDSN(cfg)}
	m.open = func(ctx context.Context) (session, error) { return dial(ctx, m.dsn) }
	m.sleep = time.Sleep
	return m, nil
}

func buildDSN(cfg Config) string {
	v := url.Values{}
	v.Set("motherduck_token", cfg.Token)
	v.Set("custom_user_agent", cfg.UserAgent)
	v.Set("access_mode", "read_only")
	return "md:" + cfg.Database + "?" + v.Encode()
}

// Connect establishes the session eagerly so startup fails fast on bad
// credentials or an unreachable service.
func (m *Manager) Connect(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess != nil && m.probe(ctx, m.sess) {
		return nil
	}
	m.discard()
	return m.connect(ctx)
}

// ExecuteQuery validates query against the allow-list and runs it on the
// managed session under the configured timeout. Allow-list rejections return
// a *sqlguard.DeniedError without touching the connection; timeouts return a
// *TimeoutError; other execution failures come back unwrapped so callers can
// classify them.
func (m *Manager) ExecuteQuery(ctx context.Context, query string, args ...any) (*rowset.RowSet, error) {
	if err := m.cfg.AllowList.Check(query); err != nil {
		return nil, err
	}

	var rs *rowset.RowSet
	err := m.withSession(ctx, func(s session) error {
		qctx, cancel := context.WithTimeout(ctx, m.cfg.QueryTimeout)
		defer cancel()

		var err error
		rs, err = s.Query(qctx, query, args...)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return &TimeoutError{Limit: m.cfg.QueryTimeout}
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rs, nil
}

// withSession runs fn with the mutex held across probe, reconnect, and use.
// A session that errors inside fn is closed and forgotten so the next call
// reconnects.
func (m *Manager) withSession(ctx context.Context, fn func(session) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.sess == nil || !m.probe(ctx, m.sess) {
		m.discard()
		if err := m.connect(ctx); err != nil {
			return err
		}
	}

	if err := fn(m.sess); err != nil {
		m.discard()
		return err
	}
	return nil
}

// connect dials up to MaxRetries times with RetryDelay between attempts.
// Callers must hold mu.
func (m *Manager) connect(ctx context.Context) error {
	var lastErr error
	for attempt := 1; attempt <= m.cfg.MaxRetries; attempt++ {
		s, err := m.open(ctx)
		if err == nil {
			if m.probe(ctx, s) {
				m.sess = s
				log.Printf("[motherduck] session established (attempt %d)", attempt)
				return nil
			}
			closeSession(s)
			err = errors.New("liveness probe failed")
		}
		lastErr = err
		if attempt < m.cfg.MaxRetries {
			log.Printf("[motherduck] connection attempt %d/%d failed, retrying in %s: %v",
				attempt, m.cfg.MaxRetries, m.cfg.RetryDelay, err)
			m.sleep(m.cfg.RetryDelay)
		}
	}
	return &ConnectError{Attempts: m.cfg.MaxRetries, Err: lastErr}
}

// probe runs SELECT 1. Any failure means the session is unusable; probe
// itself never reports an error.
func (m *Manager) probe(ctx context.Context, s session) bool {
	if _, err := s.Query(ctx, "SELECT 1"); err != nil {
		log.Printf("[motherduck] liveness probe failed: %v", err)
		return false
	}
	return true
}

// discard closes and forgets the cached session. Callers must hold mu.
func (m *Manager) discard() {
	if m.sess == nil {
		return
	}
	closeSession(m.sess)
	m.sess = nil
}

func closeSession(s session) {
	if err := s.Close(); err != nil {
		log.Printf("[motherduck] closing session: %v", err)
	}
}

// Close releases the session. Safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sess == nil {
		return nil
	}
	err := m.sess.Close()
	m.sess = nil
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	return nil
}
