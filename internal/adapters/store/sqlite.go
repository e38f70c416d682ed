package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS preferences (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pattern_type TEXT NOT NULL,
			pattern_value TEXT NOT NULL,
			action TEXT NOT NULL,
			confidence REAL NOT NULL,
			created_at TEXT NOT NULL,
			usage_count INTEGER NOT NULL DEFAULT 1,
			UNIQUE(pattern_type, pattern_value, action)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_preferences_lookup ON preferences(pattern_type, pattern_value)`,
		`CREATE TABLE IF NOT EXISTS decisions (
			id TEXT PRIMARY KEY,
			email_id TEXT NOT NULL,
			sender TEXT,
			subject TEXT,
			action TEXT NOT NULL,
			reasoning TEXT,
			confidence REAL,
			was_auto_decided BOOLEAN,
			decided_at TEXT NOT NULL
		)`,
	},
	upsert: `
		INSERT INTO preferences (pattern_type, pattern_value, action, confidence, usage_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(pattern_type, pattern_value, action) DO UPDATE SET
			confidence = MIN(1.0, preferences.confidence + ?),
			usage_count = preferences.usage_count + 1
	`,
	set: `
		INSERT INTO preferences (pattern_type, pattern_value, action, confidence, usage_count, created_at)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(pattern_type, pattern_value, action) DO UPDATE SET
			confidence = excluded.confidence,
			usage_count = 0
	`,
}

// SQLiteStore is a SQLite implementation of core.PreferenceStore
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore opens (or creates) the preference database at dbPath
func NewSQLiteStore(ctx context.Context, dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, unavailable("create store directory", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, unavailable("open SQLite database", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	s, err := newSQLStore(ctx, db, sqliteDialect, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initialise SQLite store at %s: %w", dbPath, err)
	}
	return &SQLiteStore{sqlStore: s}, nil
}
