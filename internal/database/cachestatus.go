package database

import "database/sql"

// SetCacheStatus records a completed analytics cache warm.
func (db *DB) SetCacheStatus(speechCount int) error {
	_, err := db.conn.Exec(
		`INSERT INTO cache_status (id, refreshed_at, speech_count) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET refreshed_at = excluded.refreshed_at, speech_count = excluded.speech_count`,
		NowMillis(), speechCount,
	)
	return err
}

// GetCacheStatus returns the last warm timestamp, or nil when the cache has
// never been built.
func (db *DB) GetCacheStatus() (*CacheStatus, error) {
	var cs CacheStatus
	err := db.conn.QueryRow(
		"SELECT refreshed_at, speech_count FROM cache_status WHERE id = 1",
	).Scan(&cs.RefreshedAt, &cs.SpeechCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &cs, nil
}
