package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Open initialises the SQLite database and applies the base schema.
func Open(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("apply pragma %s: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS podcasts (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            track_id INTEGER NOT NULL DEFAULT 0,
            subscribed INTEGER NOT NULL DEFAULT 0,
            etag TEXT,
            last_modified TEXT,
            link TEXT,
            title TEXT,
            description TEXT,
            image_url TEXT,
            feed_url TEXT,
            category TEXT
        );`,
		`CREATE INDEX IF NOT EXISTS idx_podcasts_track ON podcasts(track_id);`,
		`CREATE TABLE IF NOT EXISTS episodes (
            guid TEXT PRIMARY KEY,
            podcast_id INTEGER NOT NULL REFERENCES podcasts(id) ON DELETE CASCADE,
            last_played TIMESTAMP,
            progress REAL NOT NULL DEFAULT 0,
            title TEXT,
            description TEXT,
            image_url TEXT,
            audio_url TEXT,
            duration INTEGER NOT NULL DEFAULT 0,
            pub_date TEXT
        );`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_podcast ON episodes(podcast_id);`,
		`CREATE INDEX IF NOT EXISTS idx_episodes_last_played ON episodes(last_played);`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}

	return nil
}
