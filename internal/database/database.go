package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database holding sittings, speeches and MEPs.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens the database at the given path and migrates it.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying %s: %w", pragma, err)
		}
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Conn exposes the underlying connection for the analytics aggregate scans.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// NowMillis returns the current time as epoch milliseconds, the timestamp
// representation used across all tables.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// Stats contains aggregate database statistics for the status command.
type Stats struct {
	Sittings            int
	SittingsWithContent int
	Speeches            int
	SpeechesWithTopic   int
	SpeechesClassified  int
	SpeechesWithLang    int
	MEPs                int
	HistoricMEPs        int
}

// GetStats collects the counters shown by `eurowatch status`.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	queries := []struct {
		dst   *int
		query string
	}{
		{&s.Sittings, "SELECT COUNT(*) FROM sittings"},
		{&s.SittingsWithContent, "SELECT COUNT(*) FROM sittings WHERE content IS NOT NULL AND LENGTH(content) >= 100"},
		{&s.Speeches, "SELECT COUNT(*) FROM individual_speeches"},
		{&s.SpeechesWithTopic, "SELECT COUNT(*) FROM individual_speeches WHERE topic IS NOT NULL"},
		{&s.SpeechesClassified, "SELECT COUNT(*) FROM individual_speeches WHERE macro_topic IS NOT NULL"},
		{&s.SpeechesWithLang, "SELECT COUNT(*) FROM individual_speeches WHERE language IS NOT NULL"},
		{&s.MEPs, "SELECT COUNT(*) FROM meps"},
		{&s.HistoricMEPs, "SELECT COUNT(*) FROM meps WHERE source = 'historic'"},
	}
	for _, q := range queries {
		if err := db.conn.QueryRow(q.query).Scan(q.dst); err != nil {
			return nil, err
		}
	}
	return s, nil
}
