package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS meps (
    id INTEGER PRIMARY KEY,
    full_name TEXT NOT NULL,
    family_name TEXT,
    given_name TEXT,
    country TEXT,
    political_group TEXT,
    is_current INTEGER DEFAULT 1,
    source TEXT DEFAULT 'api',
    refreshed_at INTEGER
);

CREATE TABLE IF NOT EXISTS sittings (
    id TEXT PRIMARY KEY,
    activity_date TEXT UNIQUE NOT NULL,
    activity_type TEXT,
    label TEXT,
    content TEXT,
    document_id TEXT,
    notation_id TEXT,
    fetched_at INTEGER
);

CREATE TABLE IF NOT EXISTS individual_speeches (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sitting_id TEXT NOT NULL REFERENCES sittings(id) ON DELETE CASCADE,
    speech_order INTEGER NOT NULL,
    speaker_name TEXT,
    political_group_raw TEXT,
    political_group_std TEXT,
    political_group_kind TEXT CHECK(political_group_kind IN ('group', 'institution', 'role', 'unknown') OR political_group_kind IS NULL),
    political_group_reason TEXT,
    title TEXT,
    speech_content TEXT NOT NULL,
    language TEXT,
    topic TEXT,
    macro_topic TEXT,
    macro_specific_focus TEXT,
    macro_confidence REAL,
    macro_classified_by TEXT,
    macro_classified_at INTEGER,
    macro_classification_cost REAL,
    mep_id INTEGER,
    UNIQUE(sitting_id, speech_order)
);

CREATE TABLE IF NOT EXISTS cache_status (
    id INTEGER PRIMARY KEY CHECK(id = 1),
    refreshed_at INTEGER,
    speech_count INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sittings_date ON sittings(activity_date);
CREATE INDEX IF NOT EXISTS idx_speeches_sitting ON individual_speeches(sitting_id);
CREATE INDEX IF NOT EXISTS idx_speeches_macro ON individual_speeches(macro_topic);
CREATE INDEX IF NOT EXISTS idx_speeches_mep ON individual_speeches(mep_id);
CREATE INDEX IF NOT EXISTS idx_speeches_language ON individual_speeches(language);
CREATE INDEX IF NOT EXISTS idx_meps_name ON meps(full_name);
`)
			return err
		},
	},
}
