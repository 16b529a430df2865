package ingest

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3" // driver

	"github.com/deckhand-audio/deckhand/internal/analysis"
)

// ErrCacheMiss is returned when no analysis is stored for a content hash.
var ErrCacheMiss = errors.New("ingest: analysis not cached")

// Cache persists analysis results keyed by content hash, so re-ingesting a
// known file skips the expensive tempo detection. Playlist contents are not
// persisted; only the per-file features are.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (and migrates) the sqlite file at path.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open analysis cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping analysis cache: %w", err)
	}
	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		return nil, fmt.Errorf("migrate analysis cache: %w", err)
	}
	return c, nil
}

func (c *Cache) migrate() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS analysis (
			hash        TEXT PRIMARY KEY,
			tempo       REAL NOT NULL,
			confidence  REAL NOT NULL,
			energy      REAL NOT NULL,
			profile     TEXT NOT NULL,
			duration    REAL NOT NULL
		)
	`)
	return err
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get returns the cached result for hash, or ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, hash string) (analysis.Result, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT tempo, confidence, energy, profile, duration FROM analysis WHERE hash = ?", hash)

	var res analysis.Result
	var profile string
	if err := row.Scan(&res.Tempo, &res.Confidence, &res.Energy, &profile, &res.Duration); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return analysis.Result{}, ErrCacheMiss
		}
		return analysis.Result{}, fmt.Errorf("load cached analysis: %w", err)
	}
	if err := json.Unmarshal([]byte(profile), &res.EnergyProfile); err != nil {
		return analysis.Result{}, fmt.Errorf("decode cached profile: %w", err)
	}
	return res, nil
}

// Put stores (or replaces) the result for hash.
func (c *Cache) Put(ctx context.Context, hash string, res analysis.Result) error {
	profile, err := json.Marshal(res.EnergyProfile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO analysis (hash, tempo, confidence, energy, profile, duration)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		hash, res.Tempo, res.Confidence, res.Energy, string(profile), res.Duration)
	if err != nil {
		return fmt.Errorf("store analysis: %w", err)
	}
	return nil
}
