// Package cache is the content-addressed result cache for model calls,
// backed by SQLite, plus the run ledger that tracks spend and savings.
// Keys fingerprint the full inputs of a call, so any change to prompt,
// model, or selected content misses cleanly.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultTTL bounds how long a cached result stays valid. Prompts and
// model behavior drift; a day keeps re-runs cheap without fossilizing
// results.
const DefaultTTL = 24 * time.Hour

// Entry is one cached model result.
type Entry struct {
	Payload   json.RawMessage
	Tokens    int
	CostUSD   float64
	CreatedAt time.Time
}

// Options configures a cache.
type Options struct {
	TTL      time.Duration
	Disabled bool // force every lookup to miss; writes still happen
	Logger   *slog.Logger
}

// Cache is the SQLite-backed result store.
type Cache struct {
	db       *sql.DB
	ttl      time.Duration
	disabled bool
	logger   *slog.Logger
	ledger   *Ledger
}

// Open initializes or connects to the cache database at path.
func Open(path string, opts Options) (*Cache, error) {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS entries (
		fingerprint TEXT PRIMARY KEY,
		payload     TEXT NOT NULL,
		tokens      INTEGER NOT NULL,
		cost_usd    REAL NOT NULL,
		created_at  TEXT NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create cache schema: %w", err)
	}

	return &Cache{
		db:       db,
		ttl:      opts.TTL,
		disabled: opts.Disabled,
		logger:   opts.Logger,
		ledger:   NewLedger(),
	}, nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	return c.db.Close()
}

// Ledger returns the run ledger fed by this cache.
func (c *Cache) Ledger() *Ledger {
	return c.ledger
}

// Get looks up a fingerprint. Expired or unreadable rows degrade to a
// miss; a disabled cache always misses.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*Entry, bool) {
	if c.disabled {
		c.ledger.RecordMiss()
		return nil, false
	}

	var (
		payload   string
		tokens    int
		costUSD   float64
		createdAt string
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT payload, tokens, cost_usd, created_at FROM entries WHERE fingerprint = ?`,
		fingerprint,
	).Scan(&payload, &tokens, &costUSD, &createdAt)
	if err != nil {
		if err != sql.ErrNoRows {
			c.logger.Warn("cache read failed, treating as miss", "error", err)
			c.evict(ctx, fingerprint)
		}
		c.ledger.RecordMiss()
		return nil, false
	}

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil || time.Since(created) > c.ttl {
		c.evict(ctx, fingerprint)
		c.ledger.RecordMiss()
		return nil, false
	}

	if !json.Valid([]byte(payload)) {
		c.logger.Warn("corrupt cache payload, treating as miss", "fingerprint", fingerprint)
		c.evict(ctx, fingerprint)
		c.ledger.RecordMiss()
		return nil, false
	}

	c.ledger.RecordHit(costUSD, tokens)
	return &Entry{
		Payload:   json.RawMessage(payload),
		Tokens:    tokens,
		CostUSD:   costUSD,
		CreatedAt: created,
	}, true
}

// Put stores a result. Writes happen even when lookups are disabled, so a
// --no-cache run still warms the cache for the next one.
func (c *Cache) Put(ctx context.Context, fingerprint string, payload json.RawMessage, tokens int, costUSD float64) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO entries (fingerprint, payload, tokens, cost_usd, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		fingerprint, string(payload), tokens, costUSD,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

// Prune removes expired rows. Returns the number dropped.
func (c *Cache) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-c.ttl).Format(time.RFC3339Nano)
	res, err := c.db.ExecContext(ctx, `DELETE FROM entries WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cache prune: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (c *Cache) evict(ctx context.Context, fingerprint string) {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM entries WHERE fingerprint = ?`, fingerprint); err != nil {
		c.logger.Warn("cache evict failed", "fingerprint", fingerprint, "error", err)
	}
}
